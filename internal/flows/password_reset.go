package flows

import (
	"context"
	"errors"
	"time"

	"github.com/rickymta/volcanion-auth/account"
)

// PasswordResetMetrics carries metric IDs needed by the reset flows.
type PasswordResetMetrics struct {
	Request            int
	ConfirmSuccess     int
	ConfirmFailure     int
	RateLimitHit       int
	SessionInvalidated int
}

// PasswordResetEvents carries audit event names used by the reset flows.
type PasswordResetEvents struct {
	Request string
	Confirm string
}

// PasswordResetErrors carries host-level sentinel errors used by the reset flows.
type PasswordResetErrors struct {
	FeatureDisabled error
	RateLimited     error
	InvalidInput    error
	TokenInvalid    error
	NotFound        error
	Limited         error
}

// PasswordResetDeps captures password reset dependencies.
type PasswordResetDeps struct {
	Enabled   bool
	MinLength int
	TokenTTL  time.Duration

	Allow          func(ctx context.Context, email string) error
	AccountByEmail func(ctx context.Context, email string) (Principal, error)
	IssueToken     func(ctx context.Context, accountID string, ttl time.Duration) (string, time.Time, error)
	ConsumeToken   func(ctx context.Context, raw string) (string, error)
	Notify         func(ctx context.Context, acct Principal, token string, expiresAt time.Time) error

	HashPassword       func(password string) (string, error)
	UpdatePasswordHash func(ctx context.Context, accountID, hash string) error
	RevokeAll          func(ctx context.Context, accountID string) (int64, error)
	DeleteAll          func(ctx context.Context, accountID string) (int64, error)

	Hooks   Hooks
	Metrics PasswordResetMetrics
	Events  PasswordResetEvents
	Errors  PasswordResetErrors
}

// RunRequestPasswordReset issues a single-use reset token and hands it to
// the notifier. Unknown and inactive accounts succeed silently so the
// response does not reveal which emails are registered.
func RunRequestPasswordReset(ctx context.Context, email string, deps PasswordResetDeps) error {
	if !deps.Enabled {
		return deps.Errors.FeatureDisabled
	}
	email = account.NormalizeEmail(email)
	if email == "" {
		return deps.Errors.InvalidInput
	}

	if deps.Allow != nil {
		if err := deps.Allow(ctx, email); err != nil {
			if errors.Is(err, deps.Errors.Limited) {
				deps.Hooks.inc(deps.Metrics.RateLimitHit)
				return deps.Errors.RateLimited
			}
			return err
		}
	}
	deps.Hooks.inc(deps.Metrics.Request)

	acct, err := deps.AccountByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, deps.Errors.NotFound) {
			return nil
		}
		return err
	}
	if !acct.Active {
		return nil
	}

	raw, expiresAt, err := deps.IssueToken(ctx, acct.ID, deps.TokenTTL)
	if err != nil {
		return err
	}
	if err := deps.Notify(ctx, acct, raw, expiresAt); err != nil {
		deps.Hooks.warn("password reset notification failed", "account_id", acct.ID, "error", err)
		deps.Hooks.audit(ctx, deps.Events.Request, false, acct.ID, "", err, nil)
		return err
	}

	deps.Hooks.audit(ctx, deps.Events.Request, true, acct.ID, "", nil, nil)
	return nil
}

// RunConfirmPasswordReset consumes the reset token, stores the new digest
// and terminates every refresh token and cached session of the account.
func RunConfirmPasswordReset(ctx context.Context, raw, newPassword string, deps PasswordResetDeps) error {
	if !deps.Enabled {
		return deps.Errors.FeatureDisabled
	}
	if len(newPassword) < deps.MinLength || raw == "" {
		deps.Hooks.inc(deps.Metrics.ConfirmFailure)
		return deps.Errors.InvalidInput
	}

	accountID, err := deps.ConsumeToken(ctx, raw)
	if err != nil {
		deps.Hooks.inc(deps.Metrics.ConfirmFailure)
		if errors.Is(err, deps.Errors.NotFound) {
			deps.Hooks.audit(ctx, deps.Events.Confirm, false, "", "", deps.Errors.TokenInvalid, nil)
			return deps.Errors.TokenInvalid
		}
		return err
	}

	hash, err := deps.HashPassword(newPassword)
	if err != nil {
		deps.Hooks.inc(deps.Metrics.ConfirmFailure)
		return err
	}
	if err := deps.UpdatePasswordHash(ctx, accountID, hash); err != nil {
		deps.Hooks.inc(deps.Metrics.ConfirmFailure)
		return err
	}

	revoked, err := deps.RevokeAll(ctx, accountID)
	if err != nil {
		deps.Hooks.warn("refresh tokens not revoked after reset", "account_id", accountID, "error", err)
	}
	dropped, err := deps.DeleteAll(ctx, accountID)
	if err != nil {
		deps.Hooks.warn("sessions not cleared after reset", "account_id", accountID, "error", err)
	} else if dropped > 0 {
		deps.Hooks.inc(deps.Metrics.SessionInvalidated)
	}

	deps.Hooks.inc(deps.Metrics.ConfirmSuccess)
	deps.Hooks.audit(ctx, deps.Events.Confirm, true, accountID, "", nil, func() map[string]string {
		return map[string]string{"tokens_revoked": itoa(revoked), "sessions_dropped": itoa(dropped)}
	})
	return nil
}
