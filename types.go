package volcanion

import (
	"context"
	"time"

	"github.com/rickymta/volcanion-auth/account"
)

// Account is the principal record the engine authenticates.
type Account = account.Account

// AccountProvider loads accounts by email or id and persists password
// and verification changes. Lookups return store.ErrNotFound for unknown
// accounts. store/postgres and store/memory both implement it.
type AccountProvider = account.Provider

// LoginRequest carries one login attempt. Origin keys the lockout counter
// together with Email; when empty it falls back to WithClientIP. Device is
// a free-form label stored with the refresh token.
type LoginRequest struct {
	Email    string
	Password string
	Device   string
	Origin   string
}

// TokenPair is returned by Login and Refresh. ExpiresIn is the access
// token lifetime in seconds.
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	TokenType        string    `json:"token_type"`
	ExpiresIn        int64     `json:"expires_in"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
	SessionID        string    `json:"session_id,omitempty"`
}

// Identity is a verified access token.
type Identity = account.Identity

// SessionInfo describes one cached session of an account.
type SessionInfo struct {
	ID        string        `json:"id"`
	Device    string        `json:"device,omitempty"`
	Origin    string        `json:"origin,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	TTL       time.Duration `json:"ttl"`
}

// sessionPayload is the JSON stored in the session cache.
type sessionPayload struct {
	Device    string    `json:"device,omitempty"`
	Origin    string    `json:"origin,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Notifier delivers single-use tokens to the account owner. Formatting and
// transport are up to the implementation.
type Notifier interface {
	SendPasswordReset(ctx context.Context, acct Account, token string, expiresAt time.Time) error
	SendEmailVerification(ctx context.Context, acct Account, token string, expiresAt time.Time) error
}

// MaintenanceReport counts the rows removed or deactivated by RunMaintenance.
type MaintenanceReport struct {
	RefreshTokensPurged int64 `json:"refresh_tokens_purged"`
	GrantsExpired       int64 `json:"grants_expired"`
	OneTimeTokensPurged int64 `json:"one_time_tokens_purged"`
}
