package authflow

import (
	"strings"

	"github.com/vtranslate/storefront/internal/apperr"
)

const CodeLength = 6

// Challenge is the transient OTP entry state. It is never persisted.
type Challenge struct {
	Email  string
	digits [CodeLength]string
	focus  int
}

func NewChallenge(email string) *Challenge {
	return &Challenge{Email: email}
}

// Enter sets the digit at position i and returns the position that should
// hold focus next. An empty value clears the slot.
func (c *Challenge) Enter(i int, value string) (int, error) {
	if i < 0 || i >= CodeLength {
		return c.focus, apperr.Validation("otp", "digit position out of range")
	}
	if len(value) > 1 {
		return c.focus, apperr.Validation("otp", "each field accepts one digit")
	}
	if value != "" && (value[0] < '0' || value[0] > '9') {
		return c.focus, apperr.Validation("otp", "only numerals are accepted")
	}

	c.digits[i] = value
	c.focus = i
	if value != "" && i < CodeLength-1 {
		c.focus = i + 1
	}
	return c.focus, nil
}

// Backspace clears position i, or moves focus back when it is already empty.
func (c *Challenge) Backspace(i int) int {
	if i < 0 || i >= CodeLength {
		return c.focus
	}
	c.focus = i
	if c.digits[i] != "" {
		c.digits[i] = ""
		return c.focus
	}
	if i > 0 {
		c.focus = i - 1
	}
	return c.focus
}

// SetDigits replaces all six fields at once, as submitted by the OTP form.
func (c *Challenge) SetDigits(values []string) error {
	if len(values) != CodeLength {
		return apperr.Validation("otp", "expected six fields")
	}
	next := c.digits
	for i, v := range values {
		v = strings.TrimSpace(v)
		if len(v) > 1 || (v != "" && (v[0] < '0' || v[0] > '9')) {
			return apperr.Validation("otp", "each field accepts one digit")
		}
		next[i] = v
	}
	c.digits = next
	c.focus = CodeLength - 1
	for i, d := range c.digits {
		if d == "" {
			c.focus = i
			break
		}
	}
	return nil
}

func (c *Challenge) Digits() [CodeLength]string {
	return c.digits
}

func (c *Challenge) Focus() int {
	return c.focus
}

// Code concatenates the fields in position order.
func (c *Challenge) Code() string {
	return strings.Join(c.digits[:], "")
}

func (c *Challenge) Complete() bool {
	for _, d := range c.digits {
		if d == "" {
			return false
		}
	}
	return true
}
