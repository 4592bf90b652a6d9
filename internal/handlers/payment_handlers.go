package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/vtranslate/storefront/internal/apperr"
	"github.com/vtranslate/storefront/internal/middleware"
	"github.com/vtranslate/storefront/internal/models"
)

type IntentCreator interface {
	CreatePaymentIntent(ctx context.Context, req models.PaymentIntentRequest) (*models.PaymentIntentResult, error)
}

type PaymentHandlers struct {
	gateway IntentCreator
	logger  *logrus.Logger
}

func NewPaymentHandlers(gateway IntentCreator, logger *logrus.Logger) *PaymentHandlers {
	return &PaymentHandlers{
		gateway: gateway,
		logger:  logger,
	}
}

type CreatePaymentIntentRequest struct {
	Amount json.Number `json:"amount"`
	PlanID string      `json:"planId"`
}

// PaymentErrorResponse is the flat error shape of the payment intent API.
type PaymentErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func (h *PaymentHandlers) CreatePaymentIntent(w http.ResponseWriter, r *http.Request) {
	var body CreatePaymentIntentRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondWithJSON(w, http.StatusBadRequest, PaymentErrorResponse{Error: "Invalid request body"})
		return
	}

	var amount int64
	if body.Amount != "" {
		n, err := body.Amount.Int64()
		if err != nil {
			respondWithJSON(w, http.StatusBadRequest, PaymentErrorResponse{Error: "amount must be an integer number of cents"})
			return
		}
		amount = n
	}

	req := models.PaymentIntentRequest{Amount: amount, PlanID: models.PlanID(body.PlanID)}
	if sid, ok := middleware.SessionIDFromContext(r.Context()); ok {
		req.SessionID = sid
	}

	res, err := h.gateway.CreatePaymentIntent(r.Context(), req)
	if err != nil {
		var u *apperr.UpstreamError
		switch {
		case apperr.IsValidation(err):
			respondWithJSON(w, http.StatusBadRequest, PaymentErrorResponse{Error: apperr.Message(err, "Invalid request")})
		case errors.As(err, &u):
			respondWithJSON(w, http.StatusInternalServerError, PaymentErrorResponse{Error: u.Message, Details: u.Details})
		default:
			h.logger.WithError(err).Error("Unexpected payment intent failure")
			respondWithJSON(w, http.StatusInternalServerError, PaymentErrorResponse{Error: "Failed to create payment intent", Details: err.Error()})
		}
		return
	}

	respondWithJSON(w, http.StatusOK, res)
}
