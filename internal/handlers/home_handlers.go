package handlers

import (
	"net/http"

	"github.com/vtranslate/storefront/internal/models"
	"github.com/vtranslate/storefront/internal/navigation"
)

type homeData struct {
	page
	User     *models.CurrentUser
	Customer *models.Customer
}

// Home is mounted behind RequireUser; a missing record still falls back to login.
func (h *PageHandlers) Home(w http.ResponseWriter, r *http.Request) {
	_, flows, state, ok := h.sessionContext(w, r)
	if !ok {
		return
	}

	user, err := state.CurrentUser(r.Context())
	if err != nil {
		redirect(w, r, navigation.PageLogin.String())
		return
	}

	data := homeData{
		page: page{Notices: flows.Auth.TakeNotices()},
		User: user,
	}
	if h.customers != nil {
		customer, err := h.customers.GetByEmail(r.Context(), user.Email)
		if err != nil {
			h.logger.WithError(err).Warn("Failed to load customer profile")
		}
		data.Customer = customer
	}
	h.views.render(w, http.StatusOK, "home", data)
}
