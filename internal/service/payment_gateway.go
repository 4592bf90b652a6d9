package service

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vtranslate/storefront/internal/apperr"
	"github.com/vtranslate/storefront/internal/catalog"
	"github.com/vtranslate/storefront/internal/models"
)

const (
	MsgMissingFields      = "Missing required fields: amount and planId are required"
	MsgCreateIntentFailed = "Failed to create payment intent"

	dpmCheckerBaseURL = "https://dashboard.stripe.com/settings/payment_methods/review"
)

// IntentProcessor creates intents at the payment processor.
type IntentProcessor interface {
	CreateIntent(ctx context.Context, params models.IntentParams) (*models.ProcessorIntent, error)
}

// IntentRecorder keeps an audit record of created intents.
type IntentRecorder interface {
	Store(ctx context.Context, record *models.PaymentIntentRecord) error
}

type PaymentGateway struct {
	processor IntentProcessor
	recorder  IntentRecorder
	recordTTL time.Duration
	currency  string
	logger    *logrus.Logger
	nowF      func() time.Time
}

type GatewayOption func(*PaymentGateway)

func WithIntentRecorder(r IntentRecorder, ttl time.Duration) GatewayOption {
	return func(g *PaymentGateway) {
		g.recorder = r
		g.recordTTL = ttl
	}
}

func NewPaymentGateway(processor IntentProcessor, currency string, logger *logrus.Logger, opts ...GatewayOption) *PaymentGateway {
	g := &PaymentGateway{
		processor: processor,
		currency:  currency,
		logger:    logger,
		nowF:      time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// CreatePaymentIntent validates req locally and asks the processor for an intent.
func (g *PaymentGateway) CreatePaymentIntent(ctx context.Context, req models.PaymentIntentRequest) (*models.PaymentIntentResult, error) {
	if req.Amount <= 0 || req.PlanID == "" {
		return nil, apperr.Validation("amount", MsgMissingFields)
	}
	if _, ok := catalog.Lookup(req.PlanID); !ok {
		return nil, apperr.Validation("planId", "Unknown plan: "+string(req.PlanID))
	}

	intent, err := g.processor.CreateIntent(ctx, models.IntentParams{
		Amount:         req.Amount,
		Currency:       g.currency,
		PlanID:         req.PlanID,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		details := err.Error()
		var u *apperr.UpstreamError
		if errors.As(err, &u) && u.Message != "" {
			details = u.Message
		}
		g.logger.WithError(err).WithFields(logrus.Fields{
			"plan_id": req.PlanID,
			"amount":  req.Amount,
		}).Error("Payment processor rejected intent creation")
		return nil, &apperr.UpstreamError{
			Service: "payment",
			Status:  http.StatusInternalServerError,
			Message: MsgCreateIntentFailed,
			Details: details,
			Err:     err,
		}
	}

	g.record(ctx, req, intent)

	g.logger.WithFields(logrus.Fields{
		"intent_id": intent.ID,
		"plan_id":   req.PlanID,
		"amount":    req.Amount,
	}).Info("Payment intent created")

	return &models.PaymentIntentResult{
		ClientSecret:   intent.ClientSecret,
		DPMCheckerLink: DPMCheckerLink(intent.ID),
	}, nil
}

func (g *PaymentGateway) record(ctx context.Context, req models.PaymentIntentRequest, intent *models.ProcessorIntent) {
	if g.recorder == nil {
		return
	}
	now := g.nowF().UTC()
	rec := &models.PaymentIntentRecord{
		IntentID:       intent.ID,
		PlanID:         req.PlanID,
		Amount:         req.Amount,
		Currency:       g.currency,
		SessionID:      req.SessionID,
		IdempotencyKey: req.IdempotencyKey,
		Status:         intent.Status,
		CreatedAt:      now,
		ExpiresAt:      now.Add(g.recordTTL),
	}
	if err := g.recorder.Store(ctx, rec); err != nil {
		g.logger.WithError(err).WithField("intent_id", intent.ID).Warn("Failed to record payment intent")
	}
}

// DPMCheckerLink points at the processor dashboard's payment method review for intentID.
func DPMCheckerLink(intentID string) string {
	if intentID == "" {
		return ""
	}
	return dpmCheckerBaseURL + "?transaction_id=" + url.QueryEscape(intentID)
}
