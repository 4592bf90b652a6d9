package middleware

import (
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/vtranslate/storefront/internal/apperr"
	"github.com/vtranslate/storefront/internal/models"
	"github.com/vtranslate/storefront/internal/navigation"
	"github.com/vtranslate/storefront/internal/session"
)

// RequireUser redirects anonymous sessions away from gated pages.
func RequireUser(store session.Store, logger *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var user *models.CurrentUser
			if sid, ok := SessionIDFromContext(r.Context()); ok {
				u, err := session.NewState(store, sid).CurrentUser(r.Context())
				switch {
				case err == nil:
					user = u
				case !apperr.IsState(err):
					logger.WithError(err).Error("Failed to read current user")
				}
			}

			if to, redirect := navigation.Gate(navigation.Page(r.URL.Path), user); redirect {
				http.Redirect(w, r, to.String(), http.StatusSeeOther)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
