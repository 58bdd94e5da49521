package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/pmassist/authd/internal/models"
	"github.com/pmassist/authd/internal/service"
	"github.com/sirupsen/logrus"
)

// SessionCookieName is the cookie used by same-site clients instead of
// the Authorization header.
const SessionCookieName = "pm_session"

type contextKey string

const (
	sessionContextKey contextKey = "session"
	userContextKey    contextKey = "user"
)

type AuthMiddleware struct {
	sessions *service.SessionService
	logger   *logrus.Logger
}

func NewAuthMiddleware(sessions *service.SessionService, logger *logrus.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		sessions: sessions,
		logger:   logger,
	}
}

// ExtractCredential pulls the bearer credential off a request: the
// Authorization header wins, then the session cookie, then a manual parse
// of the raw Cookie header for clients that mangle cookie encoding.
// Returns "" when no credential is present.
func ExtractCredential(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") && parts[1] != "" {
			return parts[1]
		}
	}

	if cookie, err := r.Cookie(SessionCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}

	for _, part := range strings.Split(r.Header.Get("Cookie"), ";") {
		part = strings.TrimSpace(part)
		if value, ok := strings.CutPrefix(part, SessionCookieName+"="); ok && value != "" {
			return value
		}
	}

	return ""
}

func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session, user, err := m.sessions.Resolve(r.Context(), ExtractCredential(r))
		if err != nil {
			m.logger.WithError(err).Error("Session resolution failed")
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(`{"error":{"code":"INTERNAL","message":"Something went wrong"}}`))
			return
		}

		if user == nil {
			m.respondUnauthenticated(w)
			return
		}

		ctx := context.WithValue(r.Context(), sessionContextKey, session)
		ctx = context.WithValue(ctx, userContextKey, user)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *AuthMiddleware) respondUnauthenticated(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":{"code":"UNAUTHENTICATED","message":"Authentication required"}}`))
}

// UserFromContext returns the authenticated user placed by RequireAuth.
func UserFromContext(ctx context.Context) *models.User {
	user, _ := ctx.Value(userContextKey).(*models.User)
	return user
}

// SessionFromContext returns the resolved session placed by RequireAuth.
func SessionFromContext(ctx context.Context) *models.Session {
	session, _ := ctx.Value(sessionContextKey).(*models.Session)
	return session
}
