package tokenstore

import "time"

// Record is a persisted refresh token. Only the SHA-256 digest of the raw
// token is stored.
type Record struct {
	ID        string
	AccountID string
	Digest    string
	ExpiresAt time.Time
	Revoked   bool
	Device    string
	Origin    string
	CreatedAt time.Time
}

// Live reports whether the record can still be exchanged at now.
func (r Record) Live(now time.Time) bool {
	return !r.Revoked && now.Before(r.ExpiresAt)
}

// Purpose separates the single-use token families.
type Purpose string

const (
	PurposePasswordReset     Purpose = "password_reset"
	PurposeEmailVerification Purpose = "email_verification"
)

// Valid reports whether p is a known purpose.
func (p Purpose) Valid() bool {
	return p == PurposePasswordReset || p == PurposeEmailVerification
}

// OneTimeToken is a single-use token such as a password reset link.
type OneTimeToken struct {
	ID        string
	AccountID string
	Purpose   Purpose
	Digest    string
	ExpiresAt time.Time
	Used      bool
	CreatedAt time.Time
}
