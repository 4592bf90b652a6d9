package models

import (
	"strings"
	"time"
)

type Provider string

const (
	ProviderEmail Provider = "email"
)

func (p Provider) Valid() bool {
	switch p {
	case ProviderEmail:
		return true
	}
	return false
}

// CurrentUser is the record stored under the currentUser session key.
// Its presence is the only authentication signal.
type CurrentUser struct {
	Email    string   `json:"email"`
	Name     string   `json:"name"`
	Provider Provider `json:"provider"`
}

// NameFromEmail returns the local part of an email address.
func NameFromEmail(email string) string {
	if i := strings.Index(email, "@"); i >= 0 {
		return email[:i]
	}
	return email
}

// Customer is the durable profile kept for every verified email.
type Customer struct {
	Email       string    `json:"email" dynamodbav:"email"`
	Name        string    `json:"name,omitempty" dynamodbav:"name,omitempty"`
	Provider    Provider  `json:"provider" dynamodbav:"provider"`
	LoginCount  int       `json:"login_count" dynamodbav:"login_count"`
	CreatedAt   time.Time `json:"created_at" dynamodbav:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" dynamodbav:"updated_at"`
	LastLoginAt time.Time `json:"last_login_at" dynamodbav:"last_login_at"`
}

func (c *Customer) GetPK() string {
	return "CUSTOMER#" + strings.ToLower(c.Email)
}

func (c *Customer) GetSK() string {
	return "PROFILE"
}
