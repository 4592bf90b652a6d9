package handlers

import (
	"net/http"

	"github.com/vtranslate/storefront/internal/apperr"
	"github.com/vtranslate/storefront/internal/catalog"
	"github.com/vtranslate/storefront/internal/models"
	"github.com/vtranslate/storefront/internal/navigation"
)

type pricingData struct {
	page
	Plans []models.Plan
	Error string
}

func (h *PageHandlers) Pricing(w http.ResponseWriter, r *http.Request) {
	h.views.render(w, http.StatusOK, "pricing", pricingData{Plans: catalog.Plans()})
}

func (h *PageHandlers) SelectPlan(w http.ResponseWriter, r *http.Request) {
	_, _, state, ok := h.sessionContext(w, r)
	if !ok {
		return
	}

	if err := r.ParseForm(); err != nil {
		h.views.render(w, http.StatusBadRequest, "pricing", pricingData{Plans: catalog.Plans(), Error: "Invalid request"})
		return
	}

	plan, err := catalog.Select(models.PlanID(r.PostFormValue("planId")))
	if err != nil {
		h.views.render(w, http.StatusBadRequest, "pricing", pricingData{
			Plans: catalog.Plans(),
			Error: apperr.Message(err, "Unknown plan"),
		})
		return
	}

	if err := state.SetSelectedPlan(r.Context(), plan); err != nil {
		h.logger.WithError(err).WithField("plan_id", plan.ID).Error("Failed to store selected plan")
		h.views.render(w, http.StatusInternalServerError, "pricing", pricingData{
			Plans: catalog.Plans(),
			Error: "Could not save your plan selection. Please try again.",
		})
		return
	}

	redirect(w, r, navigation.AfterPlanSelected().String())
}
