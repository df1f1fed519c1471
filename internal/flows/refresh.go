package flows

import (
	"context"
	"errors"
	"time"
)

// RefreshMetrics carries metric IDs needed by the refresh flow.
type RefreshMetrics struct {
	RefreshSuccess       int
	RefreshFailure       int
	RefreshReuseDetected int
	RefreshRaceLost      int
	SessionInvalidated   int
}

// RefreshEvents carries audit event names used by the refresh flow.
type RefreshEvents struct {
	RefreshSuccess string
	RefreshInvalid string
	RefreshReuse   string
}

// RefreshErrors carries host-level sentinel errors used by the refresh flow.
type RefreshErrors struct {
	TokenInvalid  error
	TokenExpired  error
	TokenRevoked  error
	RefreshReuse  error
	NotFound      error
	Expired       error
	RotationRaced error
}

// RefreshSubject is what VerifyRefresh extracts from a refresh token.
type RefreshSubject struct {
	AccountID string
	Email     string
	SessionID string
}

// RefreshDeps captures refresh dependencies.
type RefreshDeps struct {
	RevokeFamilyOnReuse bool
	ExtendSessions      bool

	Now           func() time.Time
	VerifyRefresh func(raw string) (RefreshSubject, error)
	Lookup        func(ctx context.Context, raw string) (RefreshRecord, error)
	AccountByID   func(ctx context.Context, accountID string) (Principal, error)
	Permissions   func(ctx context.Context, accountID string) ([]string, error)
	Issue         func(IssueInput) (IssuedPair, error)
	Rotate        func(ctx context.Context, oldRaw, newRaw, accountID string) error
	Revoke        func(ctx context.Context, raw string) (bool, error)
	RevokeAll     func(ctx context.Context, accountID string) (int64, error)
	DeleteAll     func(ctx context.Context, accountID string) (int64, error)
	ExtendSession func(ctx context.Context, accountID, sessionID string) (bool, error)

	Hooks   Hooks
	Metrics RefreshMetrics
	Events  RefreshEvents
	Errors  RefreshErrors
}

// RunRefresh exchanges a live refresh token for a new pair. The old token
// is revoked and the new one persisted in one atomic rotation, so at most
// one of several concurrent callers presenting the same token succeeds.
// Permissions are re-read from the graph, never copied from the old token.
func RunRefresh(ctx context.Context, raw string, deps RefreshDeps) (IssuedPair, error) {
	reject := func(accountID string, err error, reason string) (IssuedPair, error) {
		deps.Hooks.inc(deps.Metrics.RefreshFailure)
		deps.Hooks.audit(ctx, deps.Events.RefreshInvalid, false, accountID, "", err, func() map[string]string {
			return map[string]string{"reason": reason}
		})
		return IssuedPair{}, err
	}

	subject, err := deps.VerifyRefresh(raw)
	if err != nil {
		if errors.Is(err, deps.Errors.Expired) {
			return reject("", deps.Errors.TokenExpired, "expired")
		}
		return reject("", deps.Errors.TokenInvalid, "invalid")
	}

	rec, err := deps.Lookup(ctx, raw)
	if err != nil {
		if errors.Is(err, deps.Errors.NotFound) {
			return reject(subject.AccountID, deps.Errors.TokenRevoked, "unknown")
		}
		return IssuedPair{}, err
	}
	if rec.AccountID != subject.AccountID {
		return reject(subject.AccountID, deps.Errors.TokenInvalid, "subject_mismatch")
	}
	if rec.Revoked {
		return handleReuse(ctx, subject, deps)
	}
	if !deps.Now().Before(rec.ExpiresAt) {
		return reject(subject.AccountID, deps.Errors.TokenExpired, "expired")
	}

	acct, err := deps.AccountByID(ctx, subject.AccountID)
	if err != nil {
		if errors.Is(err, deps.Errors.NotFound) {
			return reject(subject.AccountID, deps.Errors.TokenRevoked, "unknown_account")
		}
		return IssuedPair{}, err
	}
	if !acct.Active {
		if _, err := deps.Revoke(ctx, raw); err != nil {
			deps.Hooks.warn("refresh token of inactive account not revoked", "account_id", acct.ID, "error", err)
		}
		return reject(acct.ID, deps.Errors.TokenRevoked, "inactive_account")
	}

	perms, err := deps.Permissions(ctx, acct.ID)
	if err != nil {
		return IssuedPair{}, err
	}

	pair, err := deps.Issue(IssueInput{
		AccountID:   acct.ID,
		Email:       acct.Email,
		SessionID:   subject.SessionID,
		Permissions: perms,
	})
	if err != nil {
		return IssuedPair{}, err
	}
	pair.SessionID = subject.SessionID

	if err := deps.Rotate(ctx, raw, pair.RefreshToken, acct.ID); err != nil {
		if errors.Is(err, deps.Errors.RotationRaced) {
			deps.Hooks.inc(deps.Metrics.RefreshRaceLost)
			return reject(acct.ID, deps.Errors.TokenRevoked, "rotation_race")
		}
		return IssuedPair{}, err
	}

	if deps.ExtendSessions && subject.SessionID != "" && deps.ExtendSession != nil {
		if _, err := deps.ExtendSession(ctx, acct.ID, subject.SessionID); err != nil {
			deps.Hooks.warn("session not extended", "account_id", acct.ID, "error", err)
		}
	}

	deps.Hooks.inc(deps.Metrics.RefreshSuccess)
	deps.Hooks.audit(ctx, deps.Events.RefreshSuccess, true, acct.ID, subject.SessionID, nil, nil)
	return pair, nil
}

func handleReuse(ctx context.Context, subject RefreshSubject, deps RefreshDeps) (IssuedPair, error) {
	deps.Hooks.inc(deps.Metrics.RefreshReuseDetected)
	deps.Hooks.inc(deps.Metrics.RefreshFailure)

	var revoked, dropped int64
	if deps.RevokeFamilyOnReuse {
		var err error
		revoked, err = deps.RevokeAll(ctx, subject.AccountID)
		if err != nil {
			deps.Hooks.warn("refresh family not revoked", "account_id", subject.AccountID, "error", err)
		}
		dropped, err = deps.DeleteAll(ctx, subject.AccountID)
		if err != nil {
			deps.Hooks.warn("sessions not cleared after reuse", "account_id", subject.AccountID, "error", err)
		}
		if dropped > 0 {
			deps.Hooks.inc(deps.Metrics.SessionInvalidated)
		}
	}

	deps.Hooks.audit(ctx, deps.Events.RefreshReuse, false, subject.AccountID, subject.SessionID, deps.Errors.RefreshReuse, func() map[string]string {
		return map[string]string{
			"family_revoked":   boolString(deps.RevokeFamilyOnReuse),
			"tokens_revoked":   itoa(revoked),
			"sessions_dropped": itoa(dropped),
		}
	})
	return IssuedPair{}, deps.Errors.RefreshReuse
}
