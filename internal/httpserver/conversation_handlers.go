package httpserver

import (
	"net/http"

	"chatclient/internal/service"
)

func handleListConversations(store *service.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		convs := store.Conversations()
		if len(convs) == 0 {
			fresh, err := store.RefreshConversations(r.Context())
			if err != nil {
				writeError(w, err)
				return
			}
			convs = fresh
		}
		writeJSON(w, http.StatusOK, convs)
	}
}

func handleRefreshConversations(store *service.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		convs, err := store.RefreshConversations(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, convs)
	}
}

func handleOpenConversation(store *service.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := pathID(r, "userID")
		if !ok {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid user id"})
			return
		}
		if me, ok := CurrentIdentity(r); ok && me.UserID == userID {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "cannot open a conversation with yourself"})
			return
		}
		msgs, err := store.OpenDirect(r.Context(), userID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, msgs)
	}
}

func handleCloseActive(store *service.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		store.CloseActive()
		writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
	}
}
