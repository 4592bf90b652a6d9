package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/vtranslate/storefront/internal/authflow"
	"github.com/vtranslate/storefront/internal/checkout"
	"github.com/vtranslate/storefront/internal/config"
	"github.com/vtranslate/storefront/internal/middleware"
	"github.com/vtranslate/storefront/internal/models"
	"github.com/vtranslate/storefront/internal/registry"
	"github.com/vtranslate/storefront/internal/repository"
	"github.com/vtranslate/storefront/internal/service"
	"github.com/vtranslate/storefront/internal/session"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

type stubOTP struct {
	mu        sync.Mutex
	sent      []string
	codes     []string
	sendErr   error
	verifyErr error
	name      string
}

func (s *stubOTP) SendOTP(ctx context.Context, email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, email)
	return s.sendErr
}

func (s *stubOTP) VerifyOTP(ctx context.Context, email, otp string) (*models.OTPVerification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes = append(s.codes, otp)
	if s.verifyErr != nil {
		return nil, s.verifyErr
	}
	return &models.OTPVerification{Name: s.name}, nil
}

func (s *stubOTP) sentTo() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.sent...)
}

func (s *stubOTP) verifiedCodes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.codes...)
}

type stubProcessor struct {
	mu      sync.Mutex
	params  []models.IntentParams
	intents map[string]models.ProcessorIntent
	err     error
}

func (p *stubProcessor) CreateIntent(ctx context.Context, in models.IntentParams) (*models.ProcessorIntent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.params = append(p.params, in)
	if p.err != nil {
		return nil, p.err
	}
	id := fmt.Sprintf("pi_%d", len(p.params))
	intent := models.ProcessorIntent{ID: id, ClientSecret: id + "_secret", Status: "requires_payment_method"}
	p.intents[id] = intent
	return &intent, nil
}

func (p *stubProcessor) GetIntent(ctx context.Context, intentID string) (*models.ProcessorIntent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	intent, ok := p.intents[intentID]
	if !ok {
		return nil, errors.New("no such payment_intent")
	}
	return &intent, nil
}

// setStatus stands in for the customer completing or abandoning payment.
func (p *stubProcessor) setStatus(intentID, status string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	intent, ok := p.intents[intentID]
	if !ok {
		intent = models.ProcessorIntent{ID: intentID, ClientSecret: intentID + "_secret"}
	}
	intent.Status = status
	p.intents[intentID] = intent
}

func (p *stubProcessor) calls() []models.IntentParams {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]models.IntentParams(nil), p.params...)
}

type stubIntents struct {
	mu      sync.Mutex
	records map[string]*models.PaymentIntentRecord
}

func (s *stubIntents) Store(ctx context.Context, record *models.PaymentIntentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := *record
	s.records[rec.IntentID] = &rec
	return nil
}

func (s *stubIntents) Get(ctx context.Context, intentID string) (*models.PaymentIntentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[intentID]
	if !ok {
		return nil, repository.ErrIntentNotFound
	}
	out := *rec
	return &out, nil
}

func (s *stubIntents) UpdateStatus(ctx context.Context, intentID, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[intentID]
	if !ok {
		return repository.ErrIntentNotFound
	}
	rec.Status = status
	return nil
}

func (s *stubIntents) status(intentID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.records[intentID]; ok {
		return rec.Status
	}
	return ""
}

type stubCustomers struct {
	customers map[string]*models.Customer
}

func (s *stubCustomers) GetByEmail(ctx context.Context, email string) (*models.Customer, error) {
	return s.customers[email], nil
}

type harness struct {
	t         *testing.T
	srv       *httptest.Server
	client    *http.Client
	otp       *stubOTP
	processor *stubProcessor
	intents   *stubIntents
	customers *stubCustomers
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger := quietLogger()

	sessionCfg := &config.SessionConfig{
		SecretKey:  "0123456789abcdef0123456789abcdef",
		CookieName: "sf_session",
		TTL:        time.Hour,
	}
	tokens, err := service.NewSessionTokenService(sessionCfg, logger)
	require.NoError(t, err)

	h := &harness{
		t:         t,
		otp:       &stubOTP{},
		processor: &stubProcessor{intents: make(map[string]models.ProcessorIntent)},
		intents:   &stubIntents{records: make(map[string]*models.PaymentIntentRecord)},
		customers: &stubCustomers{customers: make(map[string]*models.Customer)},
	}

	store := session.NewMemoryStore(time.Hour)
	gateway := service.NewPaymentGateway(h.processor, "usd", logger, service.WithIntentRecorder(h.intents, time.Hour))

	flows := registry.New(func(ctx context.Context, sessionID string) *registry.Flows {
		state := session.NewState(store, sessionID)
		entry := logrus.NewEntry(logger)
		return &registry.Flows{
			Auth:     authflow.NewController(ctx, h.otp, state, entry),
			Checkout: checkout.NewController(sessionID, state, gateway, entry),
		}
	}, time.Hour, logger)

	views, err := NewViews(logger)
	require.NoError(t, err)

	router := SetupRouter(RouterDeps{
		Pages: NewPageHandlers(PageDeps{
			Flows:     flows,
			Store:     store,
			Processor: h.processor,
			Intents:   h.intents,
			Customers: h.customers,
			Views:     views,
			Config: PageConfig{
				BaseURL:        "https://shop.example.com",
				PublishableKey: "pk_test_123",
			},
			Logger: logger,
		}),
		Payments: NewPaymentHandlers(gateway, logger),
		Sessions: middleware.NewSessionMiddleware(tokens, sessionCfg, logger),
		Store:    store,
		Logger:   logger,
	})

	h.srv = httptest.NewServer(router)
	t.Cleanup(h.srv.Close)
	t.Cleanup(flows.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	h.client = &http.Client{
		Jar: jar,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return h
}

func (h *harness) do(req *http.Request) (*http.Response, string) {
	h.t.Helper()
	resp, err := h.client.Do(req)
	require.NoError(h.t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(h.t, err)
	return resp, string(body)
}

func (h *harness) get(path string) (*http.Response, string) {
	h.t.Helper()
	req, err := http.NewRequest(http.MethodGet, h.srv.URL+path, nil)
	require.NoError(h.t, err)
	return h.do(req)
}

func (h *harness) postForm(path string, form url.Values) (*http.Response, string) {
	h.t.Helper()
	req, err := http.NewRequest(http.MethodPost, h.srv.URL+path, strings.NewReader(form.Encode()))
	require.NoError(h.t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return h.do(req)
}

func (h *harness) postJSON(path string, body string) (*http.Response, string) {
	h.t.Helper()
	req, err := http.NewRequest(http.MethodPost, h.srv.URL+path, bytes.NewBufferString(body))
	require.NoError(h.t, err)
	req.Header.Set("Content-Type", "application/json")
	return h.do(req)
}

func requireRedirect(t *testing.T, resp *http.Response, to string) {
	t.Helper()
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	require.Equal(t, to, resp.Header.Get("Location"))
}

func decode[T any](t *testing.T, body string) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal([]byte(body), &v))
	return v
}

func codeForm(code string) url.Values {
	form := url.Values{}
	for i, c := range code {
		form.Set(fmt.Sprintf("d%d", i), string(c))
	}
	return form
}

func TestHealth(t *testing.T) {
	h := newHarness(t)

	resp, body := h.get("/health")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "OK", body)
}

func TestHome_AnonymousRedirectsToLogin(t *testing.T) {
	h := newHarness(t)

	resp, _ := h.get("/")
	requireRedirect(t, resp, "/login")
}

func TestLoginFlow(t *testing.T) {
	h := newHarness(t)

	resp, _ := h.postForm("/login/otp", url.Values{"email": {"ana@example.com"}})
	requireRedirect(t, resp, "/login")
	require.Equal(t, []string{"ana@example.com"}, h.otp.sentTo())

	resp, body := h.get("/login")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, body, "Enter the OTP sent to your email")
	require.Contains(t, body, "OTP Sent")

	// Notices are shown once.
	_, body = h.get("/login")
	require.NotContains(t, body, "Please check your email for the OTP code.")

	resp, body = h.get("/api/login/status")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	status := decode[LoginStatusResponse](t, body)
	require.Equal(t, "OtpSent", status.State)
	require.Equal(t, "ana@example.com", status.Email)
	require.Greater(t, status.Timer, 0)
	require.False(t, status.CanResend)

	resp, body = h.postJSON("/api/login/digit", `{"op":"enter","index":0,"value":"1"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	digit := decode[DigitResponse](t, body)
	require.Equal(t, 1, digit.Focus)
	require.Equal(t, "1", digit.Digits[0])

	resp, _ = h.postForm("/login/verify", codeForm("123456"))
	requireRedirect(t, resp, "/")
	require.Equal(t, []string{"123456"}, h.otp.verifiedCodes())

	resp, body = h.get("/")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, body, "Welcome, ana!")
	require.Contains(t, body, "Login successful")
	require.NotContains(t, body, "Welcome back!")

	resp, _ = h.postForm("/logout", nil)
	requireRedirect(t, resp, "/login")

	resp, _ = h.get("/")
	requireRedirect(t, resp, "/login")
}

func TestRequestOTP_EmptyEmail(t *testing.T) {
	h := newHarness(t)

	resp, _ := h.postForm("/login/otp", url.Values{"email": {"  "}})
	requireRedirect(t, resp, "/login")
	require.Empty(t, h.otp.sentTo())

	_, body := h.get("/login")
	require.Contains(t, body, "Please enter your email.")
	require.Contains(t, body, "Enter your email to login")
}

func TestVerifyOTP_Rejected(t *testing.T) {
	h := newHarness(t)
	h.otp.verifyErr = errors.New("bad code")

	h.postForm("/login/otp", url.Values{"email": {"ana@example.com"}})
	resp, _ := h.postForm("/login/verify", codeForm("999999"))
	requireRedirect(t, resp, "/login")

	_, body := h.get("/login")
	require.Contains(t, body, "Invalid OTP. Please try again.")
	require.Contains(t, body, `value="9"`)

	resp, _ = h.get("/")
	requireRedirect(t, resp, "/login")
}

func TestBackToEmail(t *testing.T) {
	h := newHarness(t)

	h.postForm("/login/otp", url.Values{"email": {"ana@example.com"}})
	resp, _ := h.postForm("/login/back", nil)
	requireRedirect(t, resp, "/login")

	_, body := h.get("/login")
	require.Contains(t, body, "Enter your email to login")
	require.Contains(t, body, `value="ana@example.com"`)
}

func TestDigit_Errors(t *testing.T) {
	h := newHarness(t)

	resp, _ := h.postJSON("/api/login/digit", `{"op":"enter","index":0,"value":"1"}`)
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	h.postForm("/login/otp", url.Values{"email": {"ana@example.com"}})

	resp, body := h.postJSON("/api/login/digit", `{"op":"enter","index":0,"value":"x"}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "INVALID_DIGIT", decode[ErrorResponse](t, body).Error.Code)

	resp, _ = h.postJSON("/api/login/digit", `{"op":"paste"}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSelectPlan_Unknown(t *testing.T) {
	h := newHarness(t)

	resp, body := h.postForm("/pricing/select", url.Values{"planId": {"gold"}})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Contains(t, body, "Unknown plan: gold")
}

func TestPricing_ListsPlans(t *testing.T) {
	h := newHarness(t)

	resp, body := h.get("/pricing")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, body, "Choose Your Plan")
	require.Contains(t, body, "$19.99")
	require.Contains(t, body, "Popular")
}

func TestCheckoutFlow(t *testing.T) {
	h := newHarness(t)

	resp, _ := h.postForm("/pricing/select", url.Values{"planId": {"pro"}})
	requireRedirect(t, resp, "/payment")

	resp, body := h.get("/payment")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, body, "Complete Your Professional Plan Purchase")
	require.Contains(t, body, "pi_1_secret")
	require.Contains(t, body, "pk_test_123")

	calls := h.processor.calls()
	require.Len(t, calls, 1)
	require.Equal(t, int64(1999), calls[0].Amount)
	require.Equal(t, models.PlanPro, calls[0].PlanID)
	require.NotEmpty(t, calls[0].IdempotencyKey)

	// Reloading reuses the ready intent.
	h.get("/payment")
	require.Len(t, h.processor.calls(), 1)

	resp, _ = h.postJSON("/api/checkout/submit", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = h.postJSON("/api/checkout/submit", "")
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, body = h.postJSON("/api/checkout/result", `{"type":"card_error","message":"Your card was declined."}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "Your card was declined.", decode[ConfirmationResultResponse](t, body).Message)

	// A failed confirmation can be retried with the same intent.
	resp, _ = h.postJSON("/api/checkout/submit", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = h.postJSON("/api/checkout/result", `{"type":"api_error","message":"boom"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, checkout.MsgUnexpected, decode[ConfirmationResultResponse](t, body).Message)
}

func TestPayment_NoPlanOffersRecovery(t *testing.T) {
	h := newHarness(t)

	resp, body := h.get("/payment")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, body, checkout.MsgNoPlan)
	require.Contains(t, body, `href="/pricing"`)
	require.Empty(t, h.processor.calls())
}

func TestPayment_GatewayFailureShowsMessage(t *testing.T) {
	h := newHarness(t)
	h.processor.err = errors.New("processor down")

	h.postForm("/pricing/select", url.Values{"planId": {"basic"}})
	resp, body := h.get("/payment")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, body, service.MsgCreateIntentFailed)
	require.Contains(t, body, `href="/pricing"`)

	resp, _ = h.postJSON("/api/checkout/submit", "")
	require.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestCheckoutSubmit_NotReady(t *testing.T) {
	h := newHarness(t)

	resp, body := h.postJSON("/api/checkout/submit", "")
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	require.Equal(t, "INVALID_STATE", decode[ErrorResponse](t, body).Error.Code)

	resp, _ = h.postJSON("/api/checkout/result", `{"type":"card_error","message":"x"}`)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
}

func successURL(intentID, secret, redirectStatus string) string {
	q := url.Values{}
	q.Set("payment_intent", intentID)
	q.Set("payment_intent_client_secret", secret)
	q.Set("redirect_status", redirectStatus)
	return "/payment-success?" + q.Encode()
}

func TestPaymentSuccess(t *testing.T) {
	h := newHarness(t)

	h.postForm("/pricing/select", url.Values{"planId": {"pro"}})
	h.get("/payment")
	h.postJSON("/api/checkout/submit", "")
	h.processor.setStatus("pi_1", "succeeded")

	resp, body := h.get(successURL("pi_1", "pi_1_secret", "succeeded"))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, body, "Payment Successful!")
	require.Contains(t, body, "Thank you for subscribing to Professional.")
	require.Contains(t, body, "$19.99/month")
	require.Equal(t, "succeeded", h.intents.status("pi_1"))

	// The next checkout gets a new intent under a new key.
	h.get("/payment")
	calls := h.processor.calls()
	require.Len(t, calls, 2)
	require.NotEqual(t, calls[0].IdempotencyKey, calls[1].IdempotencyKey)
}

func TestPaymentSuccess_RecordsProcessorStatusNotRedirect(t *testing.T) {
	h := newHarness(t)

	h.postForm("/pricing/select", url.Values{"planId": {"pro"}})
	h.get("/payment")
	h.postJSON("/api/checkout/submit", "")

	resp, _ := h.get(successURL("pi_1", "pi_1_secret", "succeeded"))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "requires_payment_method", h.intents.status("pi_1"))

	// The unpaid attempt failed, so the same intent can be submitted again.
	resp, body := h.get("/payment")
	require.Contains(t, body, "pi_1_secret")
	require.Len(t, h.processor.calls(), 1)
	resp, _ = h.postJSON("/api/checkout/submit", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestPaymentSuccess_WrongClientSecretIgnored(t *testing.T) {
	h := newHarness(t)

	h.postForm("/pricing/select", url.Values{"planId": {"pro"}})
	h.get("/payment")
	h.postJSON("/api/checkout/submit", "")
	h.processor.setStatus("pi_1", "failed")

	h.get(successURL("pi_1", "guessed", "failed"))
	require.Equal(t, "requires_payment_method", h.intents.status("pi_1"))

	// Checkout is still confirming, so a second submit is rejected.
	resp, _ := h.postJSON("/api/checkout/submit", "")
	require.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestPaymentSuccess_IntentLookupFailure(t *testing.T) {
	h := newHarness(t)
	h.intents.records["pi_gone"] = &models.PaymentIntentRecord{
		IntentID: "pi_gone",
		Status:   "requires_payment_method",
	}

	h.postForm("/pricing/select", url.Values{"planId": {"basic"}})
	resp, body := h.get(successURL("pi_gone", "pi_gone_secret", "succeeded"))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, body, "Payment Successful!")
	require.Equal(t, "requires_payment_method", h.intents.status("pi_gone"))
}

func TestPaymentSuccess_ForeignIntentNotUpdated(t *testing.T) {
	h := newHarness(t)
	h.intents.records["pi_other"] = &models.PaymentIntentRecord{
		IntentID:  "pi_other",
		SessionID: "someone-else",
		Status:    "requires_payment_method",
	}
	h.processor.setStatus("pi_other", "succeeded")

	h.postForm("/pricing/select", url.Values{"planId": {"basic"}})
	resp, _ := h.get(successURL("pi_other", "pi_other_secret", "succeeded"))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "requires_payment_method", h.intents.status("pi_other"))
}

func TestPaymentSuccess_WithoutPlan(t *testing.T) {
	h := newHarness(t)

	resp, body := h.get("/payment-success")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, body, "Loading plan details...")
	require.NotContains(t, body, "Payment Successful!")
}

func TestCreatePaymentIntentAPI(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		procErr    error
		wantStatus int
		wantError  string
		wantSecret bool
	}{
		{
			name:       "valid request",
			body:       `{"amount":1999,"planId":"pro"}`,
			wantStatus: http.StatusOK,
			wantSecret: true,
		},
		{
			name:       "missing fields",
			body:       `{}`,
			wantStatus: http.StatusBadRequest,
			wantError:  service.MsgMissingFields,
		},
		{
			name:       "zero amount",
			body:       `{"amount":0,"planId":"pro"}`,
			wantStatus: http.StatusBadRequest,
			wantError:  service.MsgMissingFields,
		},
		{
			name:       "fractional amount",
			body:       `{"amount":19.99,"planId":"pro"}`,
			wantStatus: http.StatusBadRequest,
			wantError:  "amount must be an integer number of cents",
		},
		{
			name:       "unknown plan",
			body:       `{"amount":1999,"planId":"gold"}`,
			wantStatus: http.StatusBadRequest,
			wantError:  "Unknown plan: gold",
		},
		{
			name:       "malformed body",
			body:       `{"amount":`,
			wantStatus: http.StatusBadRequest,
			wantError:  "Invalid request body",
		},
		{
			name:       "processor failure",
			body:       `{"amount":1999,"planId":"pro"}`,
			procErr:    errors.New("card network unavailable"),
			wantStatus: http.StatusInternalServerError,
			wantError:  service.MsgCreateIntentFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.processor.err = tt.procErr

			resp, body := h.postJSON("/api/create-payment-intent", tt.body)
			require.Equal(t, tt.wantStatus, resp.StatusCode)

			if tt.wantSecret {
				res := decode[models.PaymentIntentResult](t, body)
				require.Equal(t, "pi_1_secret", res.ClientSecret)
				require.Contains(t, res.DPMCheckerLink, "transaction_id=pi_1")
				require.Empty(t, h.processor.calls()[0].IdempotencyKey)
				return
			}

			res := decode[PaymentErrorResponse](t, body)
			require.Equal(t, tt.wantError, res.Error)
			if tt.procErr != nil {
				require.Equal(t, tt.procErr.Error(), res.Details)
			}
		})
	}
}

func TestHome_GreetsReturningCustomer(t *testing.T) {
	h := newHarness(t)
	h.customers.customers["ana@example.com"] = &models.Customer{
		Email:      "ana@example.com",
		LoginCount: 4,
		CreatedAt:  time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC),
	}

	h.postForm("/login/otp", url.Values{"email": {"ana@example.com"}})
	h.postForm("/login/verify", codeForm("123456"))

	resp, body := h.get("/")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, body, "Welcome back! You have signed in 4 times since Mar 9, 2026.")
}
