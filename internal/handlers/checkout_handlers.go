package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/vtranslate/storefront/internal/catalog"
	"github.com/vtranslate/storefront/internal/checkout"
	"github.com/vtranslate/storefront/internal/models"
	"github.com/vtranslate/storefront/internal/navigation"
	"github.com/vtranslate/storefront/internal/registry"
	"github.com/vtranslate/storefront/internal/repository"
)

type paymentData struct {
	page
	checkout.View
	Recovery       *navigation.Recovery
	PublishableKey string
	ReturnURL      string
}

type successData struct {
	page
	Plan     *models.SelectedPlan
	Benefits []string
}

type ConfirmationResultRequest struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type ConfirmationResultResponse struct {
	Message string `json:"message"`
}

func (h *PageHandlers) Payment(w http.ResponseWriter, r *http.Request) {
	_, flows, _, ok := h.sessionContext(w, r)
	if !ok {
		return
	}

	if err := flows.Checkout.Begin(r.Context()); err != nil && !errors.Is(err, checkout.ErrBusy) {
		h.logger.WithError(err).Debug("Checkout did not reach Ready")
	}

	data := paymentData{
		View:           flows.Checkout.View(),
		PublishableKey: h.cfg.PublishableKey,
		ReturnURL:      navigation.ReturnURL(h.cfg.BaseURL),
	}
	if rec, ok := navigation.CheckoutRecovery(data.View); ok {
		data.Recovery = &rec
	}
	h.views.render(w, http.StatusOK, "payment", data)
}

func (h *PageHandlers) CheckoutSubmit(w http.ResponseWriter, r *http.Request) {
	_, flows, _, ok := h.sessionContext(w, r)
	if !ok {
		return
	}

	err := flows.Checkout.Submit()
	switch {
	case errors.Is(err, checkout.ErrBusy):
		respondWithError(w, http.StatusConflict, "BUSY", "Payment is already being processed")
		return
	case err != nil:
		respondWithError(w, http.StatusConflict, "INVALID_STATE", "Payment form is not ready")
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"state": flows.Checkout.State().String()})
}

func (h *PageHandlers) CheckoutResult(w http.ResponseWriter, r *http.Request) {
	_, flows, _, ok := h.sessionContext(w, r)
	if !ok {
		return
	}

	var req ConfirmationResultRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}

	message, err := flows.Checkout.ConfirmationFailed(req.Type, req.Message)
	if err != nil {
		respondWithError(w, http.StatusConflict, "INVALID_STATE", "No payment is being confirmed")
		return
	}
	respondWithJSON(w, http.StatusOK, ConfirmationResultResponse{Message: message})
}

// PaymentSuccess is the processor's return_url. The outcome is taken from the
// processor, never from the redirect query. Without a selected plan it renders
// the loading placeholder.
func (h *PageHandlers) PaymentSuccess(w http.ResponseWriter, r *http.Request) {
	sid, flows, state, ok := h.sessionContext(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	if intentID := q.Get("payment_intent"); intentID != "" {
		h.applyOutcome(r, sid, flows, intentID, q.Get("payment_intent_client_secret"))
	}

	data := successData{}
	plan, err := state.SelectedPlan(r.Context())
	if err == nil {
		data.Plan = plan
		data.Benefits = catalog.Features(plan.ID)
	} else {
		h.logger.WithError(err).Debug("Success page without selected plan")
	}
	h.views.render(w, http.StatusOK, "success", data)
}

// applyOutcome fetches the intent from the processor and, when the caller
// proves ownership with its client secret, records the real status.
func (h *PageHandlers) applyOutcome(r *http.Request, sessionID string, flows *registry.Flows, intentID, clientSecret string) {
	entry := h.logger.WithField("intent_id", intentID)

	intent, err := h.processor.GetIntent(r.Context(), intentID)
	if err != nil {
		entry.WithError(err).Warn("Failed to fetch payment intent")
		return
	}
	if clientSecret == "" || intent.ClientSecret != clientSecret {
		entry.Warn("Payment intent client secret mismatch")
		return
	}
	entry = entry.WithField("status", intent.Status)

	if flows.Checkout.View().ClientSecret == clientSecret {
		if err := flows.Checkout.Completed(intent.Status); err != nil {
			entry.WithError(err).Debug("Payment outcome not applied to checkout")
		}
	}

	if h.intents == nil {
		return
	}
	rec, err := h.intents.Get(r.Context(), intentID)
	if err != nil {
		if !errors.Is(err, repository.ErrIntentNotFound) {
			entry.WithError(err).Warn("Failed to load payment intent record")
		}
		return
	}
	if rec.SessionID != sessionID {
		entry.Warn("Payment intent belongs to another session")
		return
	}
	if rec.Status == intent.Status {
		return
	}
	if err := h.intents.UpdateStatus(r.Context(), intentID, intent.Status); err != nil {
		entry.WithError(err).Warn("Failed to update payment intent status")
	}
}
