package handlers

import (
	"context"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/vtranslate/storefront/internal/middleware"
	"github.com/vtranslate/storefront/internal/models"
	"github.com/vtranslate/storefront/internal/registry"
	"github.com/vtranslate/storefront/internal/session"
)

// PageConfig carries the values the rendered pages need.
type PageConfig struct {
	BaseURL        string
	PublishableKey string
	GoogleClientID string
}

// IntentStatusStore tracks processor outcomes of recorded intents.
type IntentStatusStore interface {
	Get(ctx context.Context, intentID string) (*models.PaymentIntentRecord, error)
	UpdateStatus(ctx context.Context, intentID, status string) error
}

// IntentLookup reads the authoritative state of an intent from the processor.
type IntentLookup interface {
	GetIntent(ctx context.Context, intentID string) (*models.ProcessorIntent, error)
}

type CustomerLookup interface {
	GetByEmail(ctx context.Context, email string) (*models.Customer, error)
}

// PageDeps wires the page handlers. Intents and Customers are optional.
type PageDeps struct {
	Flows     *registry.Registry
	Store     session.Store
	Processor IntentLookup
	Intents   IntentStatusStore
	Customers CustomerLookup
	Views     *Views
	Config    PageConfig
	Logger    *logrus.Logger
}

type PageHandlers struct {
	flows     *registry.Registry
	store     session.Store
	processor IntentLookup
	intents   IntentStatusStore
	customers CustomerLookup
	views     *Views
	cfg       PageConfig
	logger    *logrus.Logger
}

func NewPageHandlers(d PageDeps) *PageHandlers {
	return &PageHandlers{
		flows:     d.Flows,
		store:     d.Store,
		processor: d.Processor,
		intents:   d.Intents,
		customers: d.Customers,
		views:     d.Views,
		cfg:       d.Config,
		logger:    d.Logger,
	}
}

type page struct {
	Notices []models.Notice
}

// sessionContext resolves the session of r. ok is false when the session
// middleware did not run, in which case an error response was written.
func (h *PageHandlers) sessionContext(w http.ResponseWriter, r *http.Request) (string, *registry.Flows, *session.State, bool) {
	sid, ok := middleware.SessionIDFromContext(r.Context())
	if !ok {
		h.logger.WithField("path", r.URL.Path).Error("Request without session")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return "", nil, nil, false
	}
	return sid, h.flows.Get(r.Context(), sid), session.NewState(h.store, sid), true
}

func redirect(w http.ResponseWriter, r *http.Request, to string) {
	http.Redirect(w, r, to, http.StatusSeeOther)
}
