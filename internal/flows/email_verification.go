package flows

import (
	"context"
	"errors"
	"time"
)

// EmailVerificationMetrics carries metric IDs needed by the verification flows.
type EmailVerificationMetrics struct {
	Request      int
	Success      int
	Failure      int
	RateLimitHit int
}

// EmailVerificationEvents carries audit event names used by the verification flows.
type EmailVerificationEvents struct {
	Request string
	Confirm string
}

// EmailVerificationErrors carries host-level sentinel errors used by the
// verification flows.
type EmailVerificationErrors struct {
	FeatureDisabled error
	RateLimited     error
	InvalidInput    error
	TokenInvalid    error
	NotFound        error
	Limited         error
}

// EmailVerificationDeps captures email verification dependencies.
type EmailVerificationDeps struct {
	Enabled  bool
	TokenTTL time.Duration

	Allow             func(ctx context.Context, accountID string) error
	AccountByID       func(ctx context.Context, accountID string) (Principal, error)
	IssueToken        func(ctx context.Context, accountID string, ttl time.Duration) (string, time.Time, error)
	ConsumeToken      func(ctx context.Context, raw string) (string, error)
	Notify            func(ctx context.Context, acct Principal, token string, expiresAt time.Time) error
	MarkEmailVerified func(ctx context.Context, accountID string) error

	Hooks   Hooks
	Metrics EmailVerificationMetrics
	Events  EmailVerificationEvents
	Errors  EmailVerificationErrors
}

// RunRequestEmailVerification sends a verification token to the account.
// Already verified accounts are a no-op.
func RunRequestEmailVerification(ctx context.Context, accountID string, deps EmailVerificationDeps) error {
	if !deps.Enabled {
		return deps.Errors.FeatureDisabled
	}
	if accountID == "" {
		return deps.Errors.InvalidInput
	}

	if deps.Allow != nil {
		if err := deps.Allow(ctx, accountID); err != nil {
			if errors.Is(err, deps.Errors.Limited) {
				deps.Hooks.inc(deps.Metrics.RateLimitHit)
				return deps.Errors.RateLimited
			}
			return err
		}
	}

	acct, err := deps.AccountByID(ctx, accountID)
	if err != nil {
		return err
	}
	if acct.EmailVerified {
		return nil
	}
	deps.Hooks.inc(deps.Metrics.Request)

	raw, expiresAt, err := deps.IssueToken(ctx, acct.ID, deps.TokenTTL)
	if err != nil {
		return err
	}
	if err := deps.Notify(ctx, acct, raw, expiresAt); err != nil {
		deps.Hooks.audit(ctx, deps.Events.Request, false, acct.ID, "", err, nil)
		return err
	}
	deps.Hooks.audit(ctx, deps.Events.Request, true, acct.ID, "", nil, nil)
	return nil
}

// RunConfirmEmailVerification consumes the token and marks the account's
// email verified. It returns the verified account id.
func RunConfirmEmailVerification(ctx context.Context, raw string, deps EmailVerificationDeps) (string, error) {
	if !deps.Enabled {
		return "", deps.Errors.FeatureDisabled
	}
	if raw == "" {
		deps.Hooks.inc(deps.Metrics.Failure)
		return "", deps.Errors.InvalidInput
	}

	accountID, err := deps.ConsumeToken(ctx, raw)
	if err != nil {
		deps.Hooks.inc(deps.Metrics.Failure)
		if errors.Is(err, deps.Errors.NotFound) {
			deps.Hooks.audit(ctx, deps.Events.Confirm, false, "", "", deps.Errors.TokenInvalid, nil)
			return "", deps.Errors.TokenInvalid
		}
		return "", err
	}

	if err := deps.MarkEmailVerified(ctx, accountID); err != nil {
		deps.Hooks.inc(deps.Metrics.Failure)
		return "", err
	}

	deps.Hooks.inc(deps.Metrics.Success)
	deps.Hooks.audit(ctx, deps.Events.Confirm, true, accountID, "", nil, nil)
	return accountID, nil
}
