// Package account defines the principal record the engine authenticates
// and the provider contract through which it is loaded.
package account

import (
	"context"
	"strings"
	"time"
)

// Account is the minimal principal view used for authentication.
type Account struct {
	ID            string
	Email         string
	PasswordHash  string
	Active        bool
	EmailVerified bool
}

// Identity is the principal carried by a verified access token.
type Identity struct {
	AccountID   string
	Email       string
	SessionID   string
	Permissions []string
	ExpiresAt   time.Time
}

// HasPermission reports whether name is among the embedded permission
// names. The names are a snapshot taken at issuance.
func (i Identity) HasPermission(name string) bool {
	for _, p := range i.Permissions {
		if p == name {
			return true
		}
	}
	return false
}

// Provider loads and updates accounts. Lookups return store.ErrNotFound
// for unknown accounts.
type Provider interface {
	AccountByEmail(ctx context.Context, email string) (Account, error)
	AccountByID(ctx context.Context, id string) (Account, error)
	UpdatePasswordHash(ctx context.Context, id, hash string) error
	MarkEmailVerified(ctx context.Context, id string) error
}

// NormalizeEmail lowercases and trims an email address for lookups.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
