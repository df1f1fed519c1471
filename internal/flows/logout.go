package flows

import (
	"context"
	"strconv"
)

// LogoutMetrics carries metric IDs needed by the logout flows.
type LogoutMetrics struct {
	Logout             int
	LogoutAll          int
	SessionInvalidated int
}

// LogoutEvents carries audit event names used by the logout flows.
type LogoutEvents struct {
	Logout    string
	LogoutAll string
}

// LogoutDeps captures logout dependencies.
type LogoutDeps struct {
	VerifyRefresh func(raw string) (RefreshSubject, error)
	Revoke        func(ctx context.Context, raw string) (bool, error)
	RevokeAll     func(ctx context.Context, accountID string) (int64, error)
	DeleteSession func(ctx context.Context, accountID, sessionID string) (bool, error)
	DeleteAll     func(ctx context.Context, accountID string) (int64, error)

	Hooks   Hooks
	Metrics LogoutMetrics
	Events  LogoutEvents
}

// RunLogout revokes one refresh token. It is idempotent: an unknown or
// already revoked token reports false with no error. When the token still
// verifies, its bound session is dropped from the cache as well.
func RunLogout(ctx context.Context, raw string, deps LogoutDeps) (bool, error) {
	revoked, err := deps.Revoke(ctx, raw)
	if err != nil {
		return false, err
	}

	var accountID, sessionID string
	if subject, err := deps.VerifyRefresh(raw); err == nil {
		accountID, sessionID = subject.AccountID, subject.SessionID
		if sessionID != "" {
			dropped, err := deps.DeleteSession(ctx, accountID, sessionID)
			if err != nil {
				deps.Hooks.warn("session not deleted on logout", "account_id", accountID, "error", err)
			} else if dropped {
				deps.Hooks.inc(deps.Metrics.SessionInvalidated)
			}
		}
	}

	if revoked {
		deps.Hooks.inc(deps.Metrics.Logout)
	}
	deps.Hooks.audit(ctx, deps.Events.Logout, true, accountID, sessionID, nil, func() map[string]string {
		return map[string]string{"revoked": boolString(revoked)}
	})
	return revoked, nil
}

// RunLogoutAll revokes every refresh token of accountID and clears its
// cached sessions. A cache failure is logged; the revocation count is
// still returned.
func RunLogoutAll(ctx context.Context, accountID string, deps LogoutDeps) (int64, error) {
	n, err := deps.RevokeAll(ctx, accountID)
	if err != nil {
		return 0, err
	}

	dropped, err := deps.DeleteAll(ctx, accountID)
	if err != nil {
		deps.Hooks.warn("sessions not cleared on logout-all", "account_id", accountID, "error", err)
	} else if dropped > 0 {
		deps.Hooks.inc(deps.Metrics.SessionInvalidated)
	}

	deps.Hooks.inc(deps.Metrics.LogoutAll)
	deps.Hooks.audit(ctx, deps.Events.LogoutAll, true, accountID, "", nil, func() map[string]string {
		return map[string]string{"tokens_revoked": itoa(n), "sessions_dropped": itoa(dropped)}
	})
	return n, nil
}

func itoa(n int64) string { return strconv.FormatInt(n, 10) }

func boolString(b bool) string { return strconv.FormatBool(b) }
