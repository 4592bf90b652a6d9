// Package checkout drives plan → payment intent → hosted confirmation for one session.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/vtranslate/storefront/internal/apperr"
	"github.com/vtranslate/storefront/internal/models"
)

type State int

const (
	StateLoading State = iota
	StatePlanMissing
	StateComputingAmount
	StateAwaitingIntent
	StateReady
	StateSubmitting
	StateSucceeded
	StateFailed
)

var stateNames = [...]string{
	StateLoading:         "Loading",
	StatePlanMissing:     "PlanMissing",
	StateComputingAmount: "ComputingAmount",
	StateAwaitingIntent:  "AwaitingIntent",
	StateReady:           "Ready",
	StateSubmitting:      "Submitting",
	StateSucceeded:       "Succeeded",
	StateFailed:          "Failed",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

var transitions = map[State][]State{
	StateLoading:         {StatePlanMissing, StateComputingAmount, StateFailed},
	StatePlanMissing:     {StateLoading},
	StateComputingAmount: {StateAwaitingIntent, StatePlanMissing},
	StateAwaitingIntent:  {StateReady, StateFailed},
	StateReady:           {StateSubmitting, StateLoading},
	StateSubmitting:      {StateSucceeded, StateFailed},
	StateSucceeded:       {StateLoading},
	StateFailed:          {StateLoading, StateSubmitting},
}

const (
	MsgNoPlan         = "No plan selected. Please select a plan first."
	MsgInvalidPrice   = "Invalid plan price"
	MsgNoClientSecret = "No client secret received from the server"
	MsgUnexpected     = "An unexpected error occurred."
	MsgPlanUnreadable = "Could not load your plan selection. Please try again."
)

const (
	msgIntentFallback = "Failed to create payment intent"
	statusSucceeded   = "succeeded"
	errTypeCard       = "card_error"
	errTypeValidation = "validation_error"
)

var (
	ErrBusy              = errors.New("checkout: request already in flight")
	ErrInvalidTransition = errors.New("checkout: invalid transition")
	ErrDiscarded         = errors.New("checkout: result discarded after close")
)

type PlanReader interface {
	SelectedPlan(ctx context.Context) (*models.SelectedPlan, error)
}

type IntentGateway interface {
	CreatePaymentIntent(ctx context.Context, req models.PaymentIntentRequest) (*models.PaymentIntentResult, error)
}

type View struct {
	State          State
	Plan           *models.SelectedPlan
	Amount         int64
	ClientSecret   string
	DPMCheckerLink string
	Message        string
	Busy           bool
}

type Controller struct {
	mu sync.Mutex

	state          State
	plan           *models.SelectedPlan
	amount         int64
	clientSecret   string
	dpmCheckerLink string
	message        string
	busy           bool

	// attempt is rotated after every successful payment so the next purchase
	// gets a fresh idempotency key.
	attempt uuid.UUID
	epoch   uint64

	sessionID string
	plans     PlanReader
	gateway   IntentGateway
	logger    *logrus.Entry
}

func NewController(sessionID string, plans PlanReader, gateway IntentGateway, logger *logrus.Entry) *Controller {
	return &Controller{
		state:     StateLoading,
		attempt:   uuid.New(),
		sessionID: sessionID,
		plans:     plans,
		gateway:   gateway,
		logger:    logger,
	}
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()

	v := View{
		State:          c.state,
		Amount:         c.amount,
		ClientSecret:   c.clientSecret,
		DPMCheckerLink: c.dpmCheckerLink,
		Message:        c.message,
		Busy:           c.busy || c.state == StateSubmitting,
	}
	if c.plan != nil {
		p := *c.plan
		v.Plan = &p
	}
	return v
}

// Begin runs the checkout entry sequence. An intent already held for the
// same plan is reused so reloading the page does not create another one.
// A confirmation left in Submitting was abandoned by the page that started it.
func (c *Controller) Begin(ctx context.Context) error {
	c.mu.Lock()
	if c.busy {
		c.mu.Unlock()
		return ErrBusy
	}
	if c.state == StateSubmitting {
		c.logger.Info("Abandoning unfinished payment confirmation")
		c.failLocked(StateFailed, "")
	}
	c.busy = true
	c.mu.Unlock()

	plan, readErr := c.plans.SelectedPlan(ctx)

	c.mu.Lock()
	if readErr == nil && c.reusableLocked(plan) {
		c.busy = false
		c.mu.Unlock()
		return nil
	}

	if c.state != StateLoading {
		if err := c.transition(StateLoading); err != nil {
			c.busy = false
			c.mu.Unlock()
			return err
		}
	}
	c.plan = nil
	c.amount = 0
	c.clientSecret = ""
	c.dpmCheckerLink = ""
	c.message = ""

	if readErr != nil {
		if !apperr.IsState(readErr) {
			c.logger.WithError(readErr).Error("Failed to read selected plan")
			c.failLocked(StateFailed, MsgPlanUnreadable)
			c.mu.Unlock()
			return readErr
		}
		c.failLocked(StatePlanMissing, MsgNoPlan)
		c.mu.Unlock()
		return readErr
	}
	c.plan = plan

	_ = c.transition(StateComputingAmount)
	amount, err := ComputeAmount(*plan)
	if err != nil {
		c.logger.WithError(err).WithField("plan_id", plan.ID).Warn("Invalid selected plan")
		c.failLocked(StatePlanMissing, MsgInvalidPrice)
		c.mu.Unlock()
		return err
	}
	c.amount = amount

	_ = c.transition(StateAwaitingIntent)
	req := models.PaymentIntentRequest{
		Amount:         amount,
		PlanID:         plan.ID,
		SessionID:      c.sessionID,
		IdempotencyKey: IdempotencyKey(c.sessionID, plan.ID, amount, c.attempt),
	}
	epoch := c.epoch
	c.mu.Unlock()

	res, err := c.gateway.CreatePaymentIntent(ctx, req)

	c.mu.Lock()
	defer c.mu.Unlock()
	if epoch != c.epoch {
		return ErrDiscarded
	}

	if err != nil {
		c.logger.WithError(err).WithField("plan_id", plan.ID).Error("Payment intent creation failed")
		c.failLocked(StateFailed, apperr.Message(err, msgIntentFallback))
		return err
	}
	if res == nil || res.ClientSecret == "" {
		c.logger.WithField("plan_id", plan.ID).Error("Payment intent created without client secret")
		c.failLocked(StateFailed, MsgNoClientSecret)
		return &apperr.UpstreamError{Service: "payment", Message: MsgNoClientSecret}
	}

	c.clientSecret = res.ClientSecret
	c.dpmCheckerLink = res.DPMCheckerLink
	c.busy = false
	return c.transition(StateReady)
}

// Submit marks the hosted form as submitted. A Failed flow may resubmit
// only while it still holds a client secret.
func (c *Controller) Submit() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case c.busy, c.state == StateSubmitting:
		return ErrBusy
	case c.state == StateFailed && c.clientSecret == "":
		return fmt.Errorf("%w: no client secret to resubmit", ErrInvalidTransition)
	}
	if err := c.transition(StateSubmitting); err != nil {
		return err
	}
	c.message = ""
	return nil
}

// ConfirmationFailed records a synchronous confirmation error from the
// payment widget and returns the text to display.
func (c *Controller) ConfirmationFailed(errType, message string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateSubmitting {
		return "", fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, c.state, StateFailed)
	}

	display := MsgUnexpected
	if (errType == errTypeCard || errType == errTypeValidation) && message != "" {
		display = message
	}
	c.logger.WithFields(logrus.Fields{"type": errType, "message": message}).Warn("Payment confirmation failed")

	c.message = display
	_ = c.transition(StateFailed)
	return display, nil
}

// Completed records the processor's final status for the submitted intent.
// Anything but succeeded fails the attempt so the user can resubmit. The
// success page never depends on it.
func (c *Controller) Completed(status string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if status != statusSucceeded {
		if c.state != StateSubmitting {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, c.state, StateFailed)
		}
		c.logger.WithField("status", status).Warn("Payment not completed")
		c.failLocked(StateFailed, MsgUnexpected)
		return nil
	}
	if err := c.transition(StateSucceeded); err != nil {
		return err
	}
	c.attempt = uuid.New()
	c.message = ""
	return nil
}

// Close drops any in-flight gateway result.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.epoch++
	c.busy = false
}

func (c *Controller) reusableLocked(plan *models.SelectedPlan) bool {
	if c.clientSecret == "" || c.plan == nil || *c.plan != *plan {
		return false
	}
	return c.state == StateReady || c.state == StateFailed
}

func (c *Controller) failLocked(to State, message string) {
	c.busy = false
	c.message = message
	if err := c.transition(to); err != nil {
		c.logger.WithError(err).Error("Checkout state change rejected")
	}
}

func (c *Controller) transition(to State) error {
	for _, allowed := range transitions[c.state] {
		if allowed == to {
			c.logger.WithFields(logrus.Fields{"from": c.state, "to": to}).Debug("Checkout transition")
			c.state = to
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, c.state, to)
}
