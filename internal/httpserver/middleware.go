package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"chatclient/internal/security"
)

type contextKey string

const identityContextKey contextKey = "identity"

// WithIdentity returns a new context carrying the signed-in user's token info.
func WithIdentity(ctx context.Context, info security.TokenInfo) context.Context {
	return context.WithValue(ctx, identityContextKey, info)
}

// CurrentIdentity extracts the token info from context, if any.
func CurrentIdentity(r *http.Request) (security.TokenInfo, bool) {
	info, ok := r.Context().Value(identityContextKey).(security.TokenInfo)
	return info, ok
}

// RequireToken rejects requests while no usable token is configured and
// attaches what can be read from the token to the request context.
func RequireToken(creds Credentials) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := creds.Token()
			if !security.Usable(token, time.Now()) {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not signed in"})
				return
			}
			ctx := r.Context()
			if info, err := security.InspectToken(token); err == nil {
				ctx = WithIdentity(ctx, info)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Debug("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("took", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}
