package flows

import (
	"context"
	"errors"

	"github.com/rickymta/volcanion-auth/account"
)

// LoginInput is one login attempt. Email is normalized by the flow.
type LoginInput struct {
	Email    string
	Password string
	Device   string
	Origin   string
}

// LoginMetrics carries metric IDs needed by the login flow.
type LoginMetrics struct {
	LoginSuccess     int
	LoginFailure     int
	LoginLocked      int
	SessionCreated   int
	PasswordUpgraded int
}

// LoginEvents carries audit event names used by the login flow.
type LoginEvents struct {
	LoginSuccess string
	LoginFailure string
	LoginLocked  string
}

// LoginErrors carries host-level sentinel errors used by the login flow.
type LoginErrors struct {
	InvalidCredentials error
	AccountLocked      error
	EmailNotVerified   error
	NotFound           error
}

// LoginDeps captures login dependencies.
type LoginDeps struct {
	RequireVerified bool
	UpgradeOnLogin  bool

	IsLocked      func(ctx context.Context, email, origin string) (bool, error)
	RecordAttempt func(ctx context.Context, email, origin string, success bool) error

	AccountByEmail     func(ctx context.Context, email string) (Principal, error)
	UpdatePasswordHash func(ctx context.Context, accountID, hash string) error

	VerifyPassword func(password, digest string) (bool, error)
	NeedsUpgrade   func(digest string) (bool, error)
	HashPassword   func(password string) (string, error)

	Permissions   func(ctx context.Context, accountID string) ([]string, error)
	CreateSession func(ctx context.Context, accountID, device, origin string) (string, error)
	DeleteSession func(ctx context.Context, accountID, sessionID string) error
	Issue         func(IssueInput) (IssuedPair, error)
	SaveRefresh   func(ctx context.Context, accountID, raw, device, origin string) error

	Hooks   Hooks
	Metrics LoginMetrics
	Events  LoginEvents
	Errors  LoginErrors
}

// RunLogin verifies the credentials, mints a token pair bound to a fresh
// session and resets the attempt counter. Every rejected attempt, including
// attempts made while locked, increments the counter.
func RunLogin(ctx context.Context, in LoginInput, deps LoginDeps) (IssuedPair, error) {
	email := account.NormalizeEmail(in.Email)
	origin := in.Origin

	fail := func(accountID string, err error, reason string) (IssuedPair, error) {
		if recErr := deps.RecordAttempt(ctx, email, origin, false); recErr != nil {
			deps.Hooks.warn("login attempt not recorded", "error", recErr)
		}
		deps.Hooks.inc(deps.Metrics.LoginFailure)
		deps.Hooks.audit(ctx, deps.Events.LoginFailure, false, accountID, "", err, func() map[string]string {
			return map[string]string{"reason": reason, "email": email}
		})
		return IssuedPair{}, err
	}

	if email == "" {
		return IssuedPair{}, deps.Errors.InvalidCredentials
	}

	locked, err := deps.IsLocked(ctx, email, origin)
	if err != nil {
		return IssuedPair{}, err
	}
	if locked {
		if recErr := deps.RecordAttempt(ctx, email, origin, false); recErr != nil {
			deps.Hooks.warn("login attempt not recorded", "error", recErr)
		}
		deps.Hooks.inc(deps.Metrics.LoginLocked)
		deps.Hooks.audit(ctx, deps.Events.LoginLocked, false, "", "", deps.Errors.AccountLocked, func() map[string]string {
			return map[string]string{"email": email}
		})
		return IssuedPair{}, deps.Errors.AccountLocked
	}

	acct, err := deps.AccountByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, deps.Errors.NotFound) {
			return fail("", deps.Errors.InvalidCredentials, "unknown_account")
		}
		return IssuedPair{}, err
	}
	if !acct.Active {
		return fail(acct.ID, deps.Errors.InvalidCredentials, "inactive_account")
	}

	ok, err := deps.VerifyPassword(in.Password, acct.PasswordHash)
	if err != nil {
		deps.Hooks.audit(ctx, deps.Events.LoginFailure, false, acct.ID, "", err, func() map[string]string {
			return map[string]string{"reason": "credential_format"}
		})
		return IssuedPair{}, err
	}
	if !ok {
		return fail(acct.ID, deps.Errors.InvalidCredentials, "bad_password")
	}

	if deps.RequireVerified && !acct.EmailVerified {
		deps.Hooks.audit(ctx, deps.Events.LoginFailure, false, acct.ID, "", deps.Errors.EmailNotVerified, func() map[string]string {
			return map[string]string{"reason": "email_not_verified"}
		})
		return IssuedPair{}, deps.Errors.EmailNotVerified
	}

	if deps.UpgradeOnLogin {
		upgradePassword(ctx, acct, in.Password, deps)
	}

	perms, err := deps.Permissions(ctx, acct.ID)
	if err != nil {
		return IssuedPair{}, err
	}

	sessionID, err := deps.CreateSession(ctx, acct.ID, in.Device, origin)
	if err != nil {
		return IssuedPair{}, err
	}
	deps.Hooks.inc(deps.Metrics.SessionCreated)

	pair, err := deps.Issue(IssueInput{
		AccountID:   acct.ID,
		Email:       acct.Email,
		SessionID:   sessionID,
		Permissions: perms,
	})
	if err != nil {
		discardSession(ctx, acct.ID, sessionID, deps)
		return IssuedPair{}, err
	}
	pair.SessionID = sessionID

	if err := deps.SaveRefresh(ctx, acct.ID, pair.RefreshToken, in.Device, origin); err != nil {
		discardSession(ctx, acct.ID, sessionID, deps)
		return IssuedPair{}, err
	}

	if err := deps.RecordAttempt(ctx, email, origin, true); err != nil {
		deps.Hooks.warn("login attempt counter not reset", "error", err)
	}

	deps.Hooks.inc(deps.Metrics.LoginSuccess)
	deps.Hooks.audit(ctx, deps.Events.LoginSuccess, true, acct.ID, sessionID, nil, func() map[string]string {
		return map[string]string{"device": in.Device}
	})
	return pair, nil
}

func upgradePassword(ctx context.Context, acct Principal, password string, deps LoginDeps) {
	if deps.NeedsUpgrade == nil || deps.HashPassword == nil || deps.UpdatePasswordHash == nil {
		return
	}
	needs, err := deps.NeedsUpgrade(acct.PasswordHash)
	if err != nil || !needs {
		return
	}
	hash, err := deps.HashPassword(password)
	if err != nil {
		deps.Hooks.warn("password rehash failed", "account_id", acct.ID, "error", err)
		return
	}
	if err := deps.UpdatePasswordHash(ctx, acct.ID, hash); err != nil {
		deps.Hooks.warn("password rehash not stored", "account_id", acct.ID, "error", err)
		return
	}
	deps.Hooks.inc(deps.Metrics.PasswordUpgraded)
}

func discardSession(ctx context.Context, accountID, sessionID string, deps LoginDeps) {
	if deps.DeleteSession == nil {
		return
	}
	if err := deps.DeleteSession(ctx, accountID, sessionID); err != nil {
		deps.Hooks.warn("orphan session not deleted", "account_id", accountID, "error", err)
	}
}
