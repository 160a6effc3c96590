package domain

import "time"

// Identity is the canonical identity extracted from any IdP source
// (webhook payload, API user object, or session claims). The upsert
// engine consumes only this shape and never sees the raw source.
type Identity struct {
	ExternalID    string
	Email         string
	DisplayName   string
	AvatarURL     *string
	EmailVerified bool
	LastLoginAt   *time.Time
}

// EmailAddress is one entry of an IdP user's email list.
type EmailAddress struct {
	Address            string `json:"address"`
	IsPrimary          bool   `json:"isPrimary"`
	VerificationStatus string `json:"verificationStatus"`
}

// Verified reports whether the IdP considers this address verified.
func (e EmailAddress) Verified() bool {
	return e.VerificationStatus == "verified"
}
