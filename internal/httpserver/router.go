package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"chatclient/internal/config"
	"chatclient/internal/domain"
	"chatclient/internal/logger"
	"chatclient/internal/service"
	"chatclient/internal/ws"
)

// Session is the push channel as seen by the local API.
type Session interface {
	Connect(ctx context.Context, token string) error
	Disconnect()
	State() ws.State
}

// Credentials holds the bearer token shared by REST calls.
type Credentials interface {
	Token() string
	SetToken(token string)
}

type Deps struct {
	Store       *service.Store
	Session     Session
	Credentials Credentials
	Logger      *zap.Logger
}

// NewRouter constructs the local UI API and wires routes and middleware.
func NewRouter(cfg *config.Config, deps Deps) http.Handler {
	log := logger.OrNop(deps.Logger).Named("http")
	r := chi.NewRouter()

	// Middlewares
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(log))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.RequestTimeout + 5*time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy", "session": deps.Session.State().String()})
	})

	r.Route("/api", func(r chi.Router) {
		r.Route("/session", func(r chi.Router) {
			r.Get("/", handleSessionStatus(deps.Session, deps.Credentials))
			r.Post("/connect", handleConnect(deps))
			r.Post("/disconnect", handleDisconnect(deps))
		})

		// Everything below talks to the platform API and needs a token.
		r.Group(func(r chi.Router) {
			r.Use(RequireToken(deps.Credentials))

			r.Post("/active/close", handleCloseActive(deps.Store))

			r.Route("/conversations", func(r chi.Router) {
				r.Get("/", handleListConversations(deps.Store))
				r.Post("/refresh", handleRefreshConversations(deps.Store))
				r.Post("/{userID}/open", handleOpenConversation(deps.Store))
				r.Get("/{userID}/messages", handleListMessages(deps.Store))
				r.Post("/{userID}/messages", handleSendMessage(deps.Store))
			})

			r.Route("/rooms", func(r chi.Router) {
				r.Get("/", handleListRooms(deps.Store))
				r.Post("/", handleCreateRoom(deps.Store))
				r.Get("/{roomID}", handleGetRoom(deps.Store))
				r.Post("/{roomID}/open", handleOpenRoom(deps.Store))
				r.Get("/{roomID}/messages", handleListRoomMessages(deps.Store))
				r.Post("/{roomID}/messages", handleSendRoomMessage(deps.Store))
				r.Post("/{roomID}/members", handleAddRoomMember(deps.Store))
				r.Delete("/{roomID}/members/{userID}", handleRemoveRoomMember(deps.Store))
			})
		})
	})

	return r
}

// writeJSON is a small helper to send JSON responses.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// writeError maps domain errors onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrUnauthorized), errors.Is(err, domain.ErrNoToken):
		status = http.StatusUnauthorized
	case errors.Is(err, domain.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrStaleResponse):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrUpstream):
		status = http.StatusBadGateway
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	return id, err == nil && id > 0
}
