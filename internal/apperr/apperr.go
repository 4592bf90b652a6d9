// Package apperr defines the error taxonomy shared by the storefront flows.
package apperr

import (
	"errors"
	"fmt"
)

// ValidationError reports a missing or malformed field, detected before any external call.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func Validation(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// UpstreamError reports a non-success answer from the OTP backend, the gateway or the processor.
// Message is safe to show; Details carries the upstream diagnostic for logs.
type UpstreamError struct {
	Service string
	Status  int
	Message string
	Details string
	Err     error
}

func (e *UpstreamError) Error() string {
	msg := fmt.Sprintf("%s upstream error", e.Service)
	if e.Status != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.Status)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Details != "" {
		msg += ": " + e.Details
	}
	return msg
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

const (
	ReasonMissing   = "missing"
	ReasonMalformed = "malformed"
)

// StateError reports that a persisted record a flow depends on is missing or malformed.
type StateError struct {
	Key    string
	Reason string
	Err    error
}

func (e *StateError) Error() string {
	msg := fmt.Sprintf("state %q %s", e.Key, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *StateError) Unwrap() error {
	return e.Err
}

func (e *StateError) Missing() bool {
	return e.Reason == ReasonMissing
}

func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

func IsUpstream(err error) bool {
	var target *UpstreamError
	return errors.As(err, &target)
}

func IsState(err error) bool {
	var target *StateError
	return errors.As(err, &target)
}

// Message returns the user-facing text carried by a taxonomy error, or fallback.
func Message(err error, fallback string) string {
	var v *ValidationError
	if errors.As(err, &v) && v.Message != "" {
		return v.Message
	}
	var u *UpstreamError
	if errors.As(err, &u) && u.Message != "" {
		return u.Message
	}
	return fallback
}
