package httpserver

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"chatclient/internal/security"
	"chatclient/internal/ws"
)

type connectRequest struct {
	Token string `json:"token"`
}

type sessionResponse struct {
	State     string     `json:"state"`
	Connected bool       `json:"connected"`
	UserID    int64      `json:"user_id,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

func handleSessionStatus(sess Session, creds Credentials) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st := sess.State()
		resp := sessionResponse{State: st.String(), Connected: st == ws.StateOpen}
		if info, err := security.InspectToken(creds.Token()); err == nil {
			resp.UserID = info.UserID
			if !info.ExpiresAt.IsZero() {
				exp := info.ExpiresAt
				resp.ExpiresAt = &exp
			}
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// handleConnect installs a new token for REST calls and opens the push channel.
func handleConnect(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req connectRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
			return
		}
		token := strings.TrimSpace(req.Token)
		if !security.Usable(token, time.Now()) {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "token missing or expired"})
			return
		}

		// Connect is a no-op on a live session, so a different identity has to
		// tear the old socket down first.
		if token != deps.Credentials.Token() && deps.Session.State() != ws.StateIdle {
			deps.Session.Disconnect()
			deps.Store.CloseActive()
		}
		deps.Credentials.SetToken(token)
		if info, err := security.InspectToken(token); err == nil && info.UserID != 0 {
			deps.Store.SetSelf(info.UserID)
		}
		if err := deps.Session.Connect(r.Context(), token); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, sessionResponse{State: deps.Session.State().String(), Connected: deps.Session.State() == ws.StateOpen})
	}
}

// handleDisconnect is the logout path: the push channel closes without a
// reconnect and the token is forgotten.
func handleDisconnect(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deps.Session.Disconnect()
		deps.Credentials.SetToken("")
		deps.Store.CloseActive()
		writeJSON(w, http.StatusOK, sessionResponse{State: deps.Session.State().String()})
	}
}
