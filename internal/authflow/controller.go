// Package authflow drives the email → OTP → verified login flow of one browser session.
package authflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vtranslate/storefront/internal/apperr"
	"github.com/vtranslate/storefront/internal/models"
)

type State int

const (
	StateEnteringEmail State = iota
	StateOtpSent
	StateVerified
)

func (s State) String() string {
	switch s {
	case StateEnteringEmail:
		return "EnteringEmail"
	case StateOtpSent:
		return "OtpSent"
	case StateVerified:
		return "Verified"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// transitions lists every allowed state change. OtpSent→OtpSent is a resend,
// EnteringEmail→EnteringEmail a logout from the email step.
var transitions = map[State][]State{
	StateEnteringEmail: {StateOtpSent, StateEnteringEmail},
	StateOtpSent:       {StateOtpSent, StateEnteringEmail, StateVerified},
	StateVerified:      {StateEnteringEmail},
}

// ResendCooldown is the countdown length in seconds.
const ResendCooldown = 60

var (
	ErrBusy              = errors.New("authflow: request already in flight")
	ErrInvalidTransition = errors.New("authflow: invalid transition")
	ErrResendNotReady    = errors.New("authflow: resend not available yet")
	ErrDiscarded         = errors.New("authflow: result discarded after state change")
)

type OTPBackend interface {
	SendOTP(ctx context.Context, email string) error
	VerifyOTP(ctx context.Context, email, otp string) (*models.OTPVerification, error)
}

type UserStore interface {
	CurrentUser(ctx context.Context) (*models.CurrentUser, error)
	SetCurrentUser(ctx context.Context, user models.CurrentUser) error
	ClearCurrentUser(ctx context.Context) error
}

// CustomerRecorder keeps a durable profile of verified users.
type CustomerRecorder interface {
	RecordLogin(ctx context.Context, user models.CurrentUser) error
}

type Option func(*Controller)

func WithClock(clock Clock) Option {
	return func(c *Controller) { c.clock = clock }
}

func WithCustomerRecorder(r CustomerRecorder) Option {
	return func(c *Controller) { c.customers = r }
}

// View is a snapshot of the controller for rendering.
type View struct {
	State     State
	Email     string
	Digits    [CodeLength]string
	Focus     int
	Timer     int
	CanResend bool
	Busy      bool
	User      *models.CurrentUser
}

type Controller struct {
	mu sync.Mutex

	state     State
	email     string
	challenge *Challenge
	timer     int
	user      *models.CurrentUser
	busy      bool
	notices   []models.Notice

	// epoch changes whenever in-flight results must be dropped.
	epoch         uint64
	countdownGen  uint64
	stopCountdown func()

	backend   OTPBackend
	users     UserStore
	customers CustomerRecorder
	clock     Clock
	logger    *logrus.Entry
}

// NewController starts in Verified when users already holds a valid record.
func NewController(ctx context.Context, backend OTPBackend, users UserStore, logger *logrus.Entry, opts ...Option) *Controller {
	c := &Controller{
		state:   StateEnteringEmail,
		timer:   ResendCooldown,
		backend: backend,
		users:   users,
		clock:   realClock{},
		logger:  logger,
	}
	for _, opt := range opts {
		opt(c)
	}

	user, err := users.CurrentUser(ctx)
	switch {
	case err == nil:
		c.user = user
		c.state = StateVerified
	case apperr.IsState(err):
		var stateErr *apperr.StateError
		if errors.As(err, &stateErr) && !stateErr.Missing() {
			c.logger.WithError(err).Warn("Ignoring malformed current user record")
		}
	default:
		c.logger.WithError(err).Error("Failed to load current user")
	}

	return c
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
		State:     c.state,
		Email:     c.email,
		Timer:     c.timer,
		CanResend: c.state == StateOtpSent && c.timer == 0 && !c.busy,
		Busy:      c.busy,
	}
	if c.challenge != nil {
		v.Email = c.challenge.Email
		v.Digits = c.challenge.Digits()
		v.Focus = c.challenge.Focus()
	}
	if c.user != nil {
		u := *c.user
		v.User = &u
	}
	return v
}

// TakeNotices returns and clears the pending notifications.
func (c *Controller) TakeNotices() []models.Notice {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.notices
	c.notices = nil
	return out
}

// RequestOTP asks the backend to send a code to email.
func (c *Controller) RequestOTP(ctx context.Context, email string) error {
	email = strings.TrimSpace(email)

	c.mu.Lock()
	if err := c.checkRequest(StateEnteringEmail); err != nil {
		c.mu.Unlock()
		return err
	}
	c.email = email
	if email == "" {
		c.notify("Error", "Please enter your email.", models.NoticeDestructive)
		c.mu.Unlock()
		return apperr.Validation("email", "Email is required")
	}
	c.busy = true
	epoch := c.epoch
	c.mu.Unlock()

	return c.finishSend(ctx, email, epoch)
}

// Resend re-issues the code once the countdown has reached zero.
func (c *Controller) Resend(ctx context.Context) error {
	c.mu.Lock()
	if err := c.checkRequest(StateOtpSent); err != nil {
		c.mu.Unlock()
		return err
	}
	if c.timer > 0 {
		c.mu.Unlock()
		return ErrResendNotReady
	}
	c.busy = true
	epoch := c.epoch
	email := c.challenge.Email
	c.mu.Unlock()

	return c.finishSend(ctx, email, epoch)
}

func (c *Controller) finishSend(ctx context.Context, email string, epoch uint64) error {
	err := c.backend.SendOTP(ctx, email)

	c.mu.Lock()
	defer c.mu.Unlock()

	if epoch != c.epoch {
		c.logger.Debug("Discarding OTP send result after state change")
		return ErrDiscarded
	}
	c.busy = false

	if err != nil {
		c.logger.WithError(err).WithField("email", email).Error("Failed to send OTP")
		c.notify("Error", "Failed to send OTP. Please try again.", models.NoticeDestructive)
		return upstream("Failed to send OTP", err)
	}

	if err := c.transition(StateOtpSent); err != nil {
		return err
	}
	if c.challenge == nil || c.challenge.Email != email {
		c.challenge = NewChallenge(email)
	}
	c.startCountdownLocked()
	c.notify("OTP Sent", "Please check your email for the OTP code.", models.NoticeDefault)
	c.logger.WithField("email", email).Info("OTP sent")
	return nil
}

// EnterDigit stores one digit and returns the position that should receive focus.
func (c *Controller) EnterDigit(i int, value string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateOtpSent {
		return 0, ErrInvalidTransition
	}
	return c.challenge.Enter(i, value)
}

func (c *Controller) Backspace(i int) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateOtpSent {
		return 0, ErrInvalidTransition
	}
	return c.challenge.Backspace(i), nil
}

func (c *Controller) SetDigits(values []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateOtpSent {
		return ErrInvalidTransition
	}
	return c.challenge.SetDigits(values)
}

// Verify submits the entered code. On success the user record is persisted
// and the flow moves to Verified.
func (c *Controller) Verify(ctx context.Context) error {
	c.mu.Lock()
	if err := c.checkRequest(StateOtpSent); err != nil {
		c.mu.Unlock()
		return err
	}
	if !c.challenge.Complete() {
		c.notify("Error", "Please enter the 6-digit code.", models.NoticeDestructive)
		c.mu.Unlock()
		return apperr.Validation("otp", "OTP must have 6 digits")
	}
	c.busy = true
	epoch := c.epoch
	email := c.challenge.Email
	code := c.challenge.Code()
	c.mu.Unlock()

	res, err := c.backend.VerifyOTP(ctx, email, code)

	c.mu.Lock()
	if epoch != c.epoch {
		c.mu.Unlock()
		c.logger.Debug("Discarding OTP verification result after state change")
		return ErrDiscarded
	}
	c.busy = false

	if err != nil {
		c.notify("Error", "Invalid OTP. Please try again.", models.NoticeDestructive)
		c.mu.Unlock()
		c.logger.WithError(err).WithField("email", email).Warn("OTP verification failed")
		return upstream("Invalid OTP", err)
	}

	name := ""
	if res != nil {
		name = strings.TrimSpace(res.Name)
	}
	if name == "" {
		name = models.NameFromEmail(email)
	}
	user := models.CurrentUser{Email: email, Name: name, Provider: models.ProviderEmail}

	if err := c.users.SetCurrentUser(ctx, user); err != nil {
		c.notify("Error", "Could not complete login. Please try again.", models.NoticeDestructive)
		c.mu.Unlock()
		c.logger.WithError(err).Error("Failed to persist current user")
		return fmt.Errorf("failed to persist current user: %w", err)
	}

	if err := c.transition(StateVerified); err != nil {
		c.mu.Unlock()
		return err
	}
	c.stopCountdownLocked()
	c.user = &user
	c.challenge = nil
	c.email = ""
	c.timer = ResendCooldown
	c.notify("Login successful", fmt.Sprintf("Welcome, %s!", user.Name), models.NoticeDefault)
	recorder := c.customers
	c.mu.Unlock()

	c.logger.WithField("email", email).Info("User verified")

	if recorder != nil {
		if err := recorder.RecordLogin(ctx, user); err != nil {
			c.logger.WithError(err).Warn("Failed to record customer login")
		}
	}
	return nil
}

// Back returns from OTP entry to the email step, discarding digits.
func (c *Controller) Back() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateOtpSent {
		return ErrInvalidTransition
	}
	if err := c.transition(StateEnteringEmail); err != nil {
		return err
	}
	c.email = c.challenge.Email
	c.resetChallengeLocked()
	return nil
}

// Logout clears the user record and every piece of transient OTP state.
func (c *Controller) Logout(ctx context.Context) error {
	c.mu.Lock()
	if err := c.transition(StateEnteringEmail); err != nil {
		c.mu.Unlock()
		return err
	}
	c.user = nil
	c.email = ""
	c.resetChallengeLocked()
	c.notify("Logged out", "You have been successfully logged out.", models.NoticeDefault)
	c.mu.Unlock()

	if err := c.users.ClearCurrentUser(ctx); err != nil {
		c.logger.WithError(err).Error("Failed to clear current user")
		return fmt.Errorf("failed to clear current user: %w", err)
	}
	return nil
}

// Close stops the countdown. The controller must not be used afterwards.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopCountdownLocked()
	c.epoch++
}

func (c *Controller) resetChallengeLocked() {
	c.stopCountdownLocked()
	c.challenge = nil
	c.timer = ResendCooldown
	c.busy = false
	c.epoch++
}

func (c *Controller) checkRequest(want State) error {
	if c.busy {
		return ErrBusy
	}
	if c.state != want {
		return ErrInvalidTransition
	}
	return nil
}

func (c *Controller) transition(to State) error {
	for _, allowed := range transitions[c.state] {
		if allowed == to {
			c.logger.WithFields(logrus.Fields{"from": c.state, "to": to}).Debug("Auth flow transition")
			c.state = to
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, c.state, to)
}

func (c *Controller) notify(title, description string, variant models.NoticeVariant) {
	c.notices = append(c.notices, models.Notice{Title: title, Description: description, Variant: variant})
}

func (c *Controller) startCountdownLocked() {
	c.stopCountdownLocked()
	c.timer = ResendCooldown
	c.countdownGen++
	gen := c.countdownGen

	ticker := c.clock.NewTicker(time.Second)
	done := make(chan struct{})
	var once sync.Once
	stop := func() {
		once.Do(func() {
			close(done)
			ticker.Stop()
		})
	}
	c.stopCountdown = stop

	go func() {
		defer stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C():
				if !c.tick(gen) {
					return
				}
			}
		}
	}()
}

func (c *Controller) stopCountdownLocked() {
	if c.stopCountdown != nil {
		c.stopCountdown()
		c.stopCountdown = nil
	}
}

// tick advances the countdown owned by gen and reports whether it should keep running.
func (c *Controller) tick(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.countdownGen || c.state != StateOtpSent {
		return false
	}
	if c.timer > 0 {
		c.timer--
	}
	return c.timer > 0
}

func upstream(message string, err error) error {
	var u *apperr.UpstreamError
	if errors.As(err, &u) {
		return err
	}
	return &apperr.UpstreamError{Service: "otp", Message: message, Err: err}
}
