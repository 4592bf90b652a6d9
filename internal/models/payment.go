package models

import (
	"time"
)

// PaymentIntentRequest asks the gateway for a new processor-side intent.
// Amount is in the smallest currency unit.
type PaymentIntentRequest struct {
	Amount         int64  `json:"amount"`
	PlanID         PlanID `json:"planId"`
	SessionID      string `json:"-"`
	IdempotencyKey string `json:"-"`
}

type PaymentIntentResult struct {
	ClientSecret   string `json:"clientSecret"`
	DPMCheckerLink string `json:"dpmCheckerLink,omitempty"`
}

// IntentParams is what the gateway hands to a payment processor.
type IntentParams struct {
	Amount         int64
	Currency       string
	PlanID         PlanID
	IdempotencyKey string
}

type ProcessorIntent struct {
	ID           string
	ClientSecret string
	Status       string
}

type PaymentIntentRecord struct {
	IntentID       string    `json:"intent_id" dynamodbav:"intent_id"`
	PlanID         PlanID    `json:"plan_id" dynamodbav:"plan_id"`
	Amount         int64     `json:"amount" dynamodbav:"amount"`
	Currency       string    `json:"currency" dynamodbav:"currency"`
	SessionID      string    `json:"session_id,omitempty" dynamodbav:"session_id,omitempty"`
	IdempotencyKey string    `json:"idempotency_key,omitempty" dynamodbav:"idempotency_key,omitempty"`
	Status         string    `json:"status" dynamodbav:"status"`
	CreatedAt      time.Time `json:"created_at" dynamodbav:"created_at"`
	ExpiresAt      time.Time `json:"expires_at" dynamodbav:"expires_at"`
}

func (r *PaymentIntentRecord) GetPK() string {
	return "INTENT#" + r.IntentID
}

func (r *PaymentIntentRecord) GetSK() string {
	return "METADATA"
}
