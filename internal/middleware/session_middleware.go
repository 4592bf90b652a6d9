package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vtranslate/storefront/internal/config"
	"github.com/vtranslate/storefront/internal/service"
)

type contextKey string

const sessionIDKey contextKey = "session_id"

// SessionMiddleware binds every request to a browser session through a signed cookie.
type SessionMiddleware struct {
	tokens     *service.SessionTokenService
	cookieName string
	secure     bool
	logger     *logrus.Logger
}

func NewSessionMiddleware(tokens *service.SessionTokenService, cfg *config.SessionConfig, logger *logrus.Logger) *SessionMiddleware {
	return &SessionMiddleware{
		tokens:     tokens,
		cookieName: cfg.CookieName,
		secure:     cfg.SecureCookie,
		logger:     logger,
	}
}

func (m *SessionMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if cookie, err := r.Cookie(m.cookieName); err == nil {
			claims, err := m.tokens.Verify(cookie.Value)
			if err == nil {
				next.ServeHTTP(w, r.WithContext(WithSessionID(r.Context(), claims.SessionID)))
				return
			}
			m.logger.WithError(err).Debug("Session cookie rejected")
		}

		sessionID := service.NewSessionID()
		token, expiresAt, err := m.tokens.Issue(sessionID)
		if err != nil {
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		http.SetCookie(w, &http.Cookie{
			Name:     m.cookieName,
			Value:    token,
			Path:     "/",
			Expires:  expiresAt,
			MaxAge:   int(time.Until(expiresAt).Seconds()),
			HttpOnly: true,
			Secure:   m.secure,
			SameSite: http.SameSiteLaxMode,
		})
		m.logger.WithField("session_id", sessionID).Debug("Issued new session")

		next.ServeHTTP(w, r.WithContext(WithSessionID(r.Context(), sessionID)))
	})
}

func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionIDKey, sessionID)
}

func SessionIDFromContext(ctx context.Context) (string, bool) {
	sid, ok := ctx.Value(sessionIDKey).(string)
	return sid, ok && sid != ""
}
