package models

// OTPVerification is the decoded body of a successful verification call.
type OTPVerification struct {
	Name string `json:"name,omitempty"`
}
