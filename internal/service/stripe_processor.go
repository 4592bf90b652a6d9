package service

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"

	"github.com/vtranslate/storefront/internal/apperr"
	"github.com/vtranslate/storefront/internal/config"
	"github.com/vtranslate/storefront/internal/models"
)

// StripeProcessor creates and looks up PaymentIntents through the Stripe API.
type StripeProcessor struct {
	client *client.API
	logger *logrus.Logger
}

func NewStripeProcessor(cfg *config.StripeConfig, logger *logrus.Logger) *StripeProcessor {
	var backends *stripe.Backends
	if cfg.APIBaseURL != "" {
		b := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
			URL:           stripe.String(cfg.APIBaseURL),
			HTTPClient:    &http.Client{Timeout: 30 * time.Second},
			LeveledLogger: logger.WithField("component", "stripe"),
		})
		backends = &stripe.Backends{API: b, Connect: b, Uploads: b}
	}

	return &StripeProcessor{
		client: client.New(cfg.SecretKey, backends),
		logger: logger,
	}
}

func (p *StripeProcessor) CreateIntent(ctx context.Context, in models.IntentParams) (*models.ProcessorIntent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(in.Amount),
		Currency: stripe.String(in.Currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	params.AddMetadata("planId", string(in.PlanID))
	if in.IdempotencyKey != "" {
		params.SetIdempotencyKey(in.IdempotencyKey)
	}

	pi, err := p.client.PaymentIntents.New(params)
	if err != nil {
		return nil, p.upstream(err, "Stripe PaymentIntent creation failed")
	}
	return processorIntent(pi), nil
}

// GetIntent fetches the current status of a PaymentIntent.
func (p *StripeProcessor) GetIntent(ctx context.Context, intentID string) (*models.ProcessorIntent, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	pi, err := p.client.PaymentIntents.Get(intentID, params)
	if err != nil {
		return nil, p.upstream(err, "Stripe PaymentIntent lookup failed")
	}
	return processorIntent(pi), nil
}

func (p *StripeProcessor) upstream(err error, msg string) error {
	var se *stripe.Error
	if errors.As(err, &se) {
		p.logger.WithFields(logrus.Fields{
			"type":   se.Type,
			"code":   se.Code,
			"status": se.HTTPStatusCode,
		}).WithError(err).Error(msg)
		return &apperr.UpstreamError{Service: "stripe", Status: se.HTTPStatusCode, Message: se.Msg, Err: err}
	}
	p.logger.WithError(err).Error("Stripe request failed")
	return &apperr.UpstreamError{Service: "stripe", Message: err.Error(), Err: err}
}

func processorIntent(pi *stripe.PaymentIntent) *models.ProcessorIntent {
	return &models.ProcessorIntent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Status:       string(pi.Status),
	}
}
