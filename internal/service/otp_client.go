package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/vtranslate/storefront/internal/apperr"
	"github.com/vtranslate/storefront/internal/config"
	"github.com/vtranslate/storefront/internal/models"
)

const maxOTPResponseBytes = 64 << 10

// OTPClient talks to the external OTP delivery and verification backend.
type OTPClient struct {
	sendURL    string
	verifyURL  string
	httpClient *http.Client
	logger     *logrus.Logger
}

func NewOTPClient(cfg *config.OTPConfig, logger *logrus.Logger) *OTPClient {
	return &OTPClient{
		sendURL:   cfg.SendURL,
		verifyURL: cfg.VerifyURL,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: logger,
	}
}

type sendOTPRequest struct {
	Email string `json:"email"`
}

type verifyOTPRequest struct {
	Email string `json:"email"`
	OTP   string `json:"otp"`
}

// SendOTP asks the backend to deliver a code. Any non-2xx status is a failure.
func (c *OTPClient) SendOTP(ctx context.Context, email string) error {
	resp, err := c.post(ctx, c.sendURL, sendOTPRequest{Email: email})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxOTPResponseBytes))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.WithFields(logrus.Fields{"status": resp.StatusCode, "email": email}).Warn("OTP send rejected")
		return &apperr.UpstreamError{Service: "otp", Status: resp.StatusCode, Message: "Failed to send OTP"}
	}
	return nil
}

// VerifyOTP checks otp for email. A success body may carry the user's name.
func (c *OTPClient) VerifyOTP(ctx context.Context, email, otp string) (*models.OTPVerification, error) {
	resp, err := c.post(ctx, c.verifyURL, verifyOTPRequest{Email: email, OTP: otp})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxOTPResponseBytes))
	if err != nil {
		return nil, &apperr.UpstreamError{Service: "otp", Status: resp.StatusCode, Message: "Failed to read OTP response", Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.WithFields(logrus.Fields{"status": resp.StatusCode, "email": email}).Warn("OTP verification rejected")
		return nil, &apperr.UpstreamError{Service: "otp", Status: resp.StatusCode, Message: "Invalid OTP"}
	}

	result := &models.OTPVerification{}
	if len(bytes.TrimSpace(body)) == 0 {
		return result, nil
	}
	if err := json.Unmarshal(body, result); err != nil {
		c.logger.WithError(err).Warn("Ignoring undecodable OTP verification body")
		return &models.OTPVerification{}, nil
	}
	return result, nil
}

func (c *OTPClient) post(ctx context.Context, url string, payload any) (*http.Response, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal OTP request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create OTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.WithError(err).WithField("url", url).Error("OTP backend unreachable")
		return nil, &apperr.UpstreamError{Service: "otp", Message: "OTP backend unreachable", Err: err}
	}
	return resp, nil
}
