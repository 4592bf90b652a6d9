package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/vtranslate/storefront/internal/apperr"
	"github.com/vtranslate/storefront/internal/authflow"
	"github.com/vtranslate/storefront/internal/navigation"
)

type loginData struct {
	page
	Auth           authflow.View
	OtpSent        bool
	GoogleClientID string
}

type LoginStatusResponse struct {
	State     string `json:"state"`
	Email     string `json:"email,omitempty"`
	Timer     int    `json:"timer"`
	CanResend bool   `json:"canResend"`
	Busy      bool   `json:"busy"`
}

type DigitRequest struct {
	Op    string `json:"op"`
	Index int    `json:"index"`
	Value string `json:"value"`
}

type DigitResponse struct {
	Focus  int                         `json:"focus"`
	Digits [authflow.CodeLength]string `json:"digits"`
}

func (h *PageHandlers) Login(w http.ResponseWriter, r *http.Request) {
	_, flows, _, ok := h.sessionContext(w, r)
	if !ok {
		return
	}

	view := flows.Auth.View()
	h.views.render(w, http.StatusOK, "login", loginData{
		page:           page{Notices: flows.Auth.TakeNotices()},
		Auth:           view,
		OtpSent:        view.State == authflow.StateOtpSent,
		GoogleClientID: h.cfg.GoogleClientID,
	})
}

func (h *PageHandlers) RequestOTP(w http.ResponseWriter, r *http.Request) {
	_, flows, _, ok := h.sessionContext(w, r)
	if !ok {
		return
	}

	if err := flows.Auth.RequestOTP(r.Context(), r.PostFormValue("email")); err != nil {
		h.logFlowError(err, "OTP request not completed")
	}
	redirect(w, r, navigation.PageLogin.String())
}

func (h *PageHandlers) ResendOTP(w http.ResponseWriter, r *http.Request) {
	_, flows, _, ok := h.sessionContext(w, r)
	if !ok {
		return
	}

	if err := flows.Auth.Resend(r.Context()); err != nil {
		h.logFlowError(err, "OTP resend not completed")
	}
	redirect(w, r, navigation.PageLogin.String())
}

func (h *PageHandlers) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	_, flows, _, ok := h.sessionContext(w, r)
	if !ok {
		return
	}

	digits := make([]string, authflow.CodeLength)
	for i := range digits {
		digits[i] = r.PostFormValue("d" + strconv.Itoa(i))
	}
	if err := flows.Auth.SetDigits(digits); err != nil {
		h.logFlowError(err, "OTP digits rejected")
		redirect(w, r, navigation.PageLogin.String())
		return
	}

	if err := flows.Auth.Verify(r.Context()); err != nil {
		h.logFlowError(err, "OTP verification not completed")
		redirect(w, r, navigation.PageLogin.String())
		return
	}
	redirect(w, r, navigation.AfterLogin().String())
}

func (h *PageHandlers) BackToEmail(w http.ResponseWriter, r *http.Request) {
	_, flows, _, ok := h.sessionContext(w, r)
	if !ok {
		return
	}

	if err := flows.Auth.Back(); err != nil {
		h.logFlowError(err, "Back to email ignored")
	}
	redirect(w, r, navigation.PageLogin.String())
}

func (h *PageHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	_, flows, _, ok := h.sessionContext(w, r)
	if !ok {
		return
	}

	if err := flows.Auth.Logout(r.Context()); err != nil {
		h.logger.WithError(err).Error("Logout failed")
	}
	redirect(w, r, navigation.AfterLogout().String())
}

func (h *PageHandlers) LoginStatus(w http.ResponseWriter, r *http.Request) {
	_, flows, _, ok := h.sessionContext(w, r)
	if !ok {
		return
	}

	v := flows.Auth.View()
	respondWithJSON(w, http.StatusOK, LoginStatusResponse{
		State:     v.State.String(),
		Email:     v.Email,
		Timer:     v.Timer,
		CanResend: v.CanResend,
		Busy:      v.Busy,
	})
}

// Digit applies one keystroke to the OTP fields and returns the field to focus.
func (h *PageHandlers) Digit(w http.ResponseWriter, r *http.Request) {
	_, flows, _, ok := h.sessionContext(w, r)
	if !ok {
		return
	}

	var req DigitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}

	var (
		focus int
		err   error
	)
	switch req.Op {
	case "enter":
		focus, err = flows.Auth.EnterDigit(req.Index, req.Value)
	case "backspace":
		focus, err = flows.Auth.Backspace(req.Index)
	default:
		respondWithError(w, http.StatusBadRequest, "INVALID_REQUEST", "op must be enter or backspace")
		return
	}

	switch {
	case errors.Is(err, authflow.ErrInvalidTransition):
		respondWithError(w, http.StatusConflict, "INVALID_STATE", "No OTP entry in progress")
		return
	case apperr.IsValidation(err):
		respondWithError(w, http.StatusBadRequest, "INVALID_DIGIT", apperr.Message(err, "Invalid digit"))
		return
	case err != nil:
		respondWithError(w, http.StatusInternalServerError, "INTERNAL", "Internal server error")
		return
	}

	respondWithJSON(w, http.StatusOK, DigitResponse{Focus: focus, Digits: flows.Auth.View().Digits})
}

func (h *PageHandlers) logFlowError(err error, msg string) {
	entry := h.logger.WithError(err)
	switch {
	case errors.Is(err, authflow.ErrBusy), errors.Is(err, authflow.ErrResendNotReady),
		errors.Is(err, authflow.ErrInvalidTransition), errors.Is(err, authflow.ErrDiscarded),
		apperr.IsValidation(err):
		entry.Debug(msg)
	default:
		entry.Warn(msg)
	}
}
