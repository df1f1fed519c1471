package volcanion

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rickymta/volcanion-auth/internal/flows"
	"github.com/rickymta/volcanion-auth/internal/limiters"
	"github.com/rickymta/volcanion-auth/jwt"
	"github.com/rickymta/volcanion-auth/store"
	"github.com/rickymta/volcanion-auth/tokenstore"
)

// buildFlows wires every flow to the engine's collaborators. Each store
// and cache call goes through e.bounded.
func (e *Engine) buildFlows() flows.Service {
	hooks := flows.Hooks{
		MetricInc: func(id int) { e.metricInc(MetricID(id)) },
		EmitAudit: e.emitAudit,
		Warn:      e.logger.Warn,
	}

	return flows.New(flows.Deps{
		Login:             e.loginDeps(hooks),
		Refresh:           e.refreshDeps(hooks),
		Logout:            e.logoutDeps(hooks),
		PasswordReset:     e.passwordResetDeps(hooks),
		EmailVerification: e.emailVerificationDeps(hooks),
	})
}

func (e *Engine) loginDeps(hooks flows.Hooks) flows.LoginDeps {
	return flows.LoginDeps{
		RequireVerified: e.config.EmailVerification.RequireForLogin,
		UpgradeOnLogin:  e.config.Password.UpgradeOnLogin,

		IsLocked: func(ctx context.Context, email, origin string) (bool, error) {
			ctx, cancel := e.bounded(ctx)
			defer cancel()
			return e.guard.IsLocked(ctx, email, origin)
		},
		RecordAttempt: func(ctx context.Context, email, origin string, success bool) error {
			ctx, cancel := e.bounded(ctx)
			defer cancel()
			return e.guard.RecordAttempt(ctx, email, origin, success)
		},
		AccountByEmail: e.principalByEmail,
		UpdatePasswordHash: func(ctx context.Context, accountID, hash string) error {
			ctx, cancel := e.bounded(ctx)
			defer cancel()
			return e.accounts.UpdatePasswordHash(ctx, accountID, hash)
		},
		VerifyPassword: e.hasher.Verify,
		NeedsUpgrade:   e.hasher.NeedsUpgrade,
		HashPassword:   e.hasher.Hash,
		Permissions:    e.permissionNames,
		CreateSession: func(ctx context.Context, accountID, device, origin string) (string, error) {
			payload, err := json.Marshal(sessionPayload{Device: device, Origin: origin, CreatedAt: e.clock.Now().UTC()})
			if err != nil {
				return "", err
			}
			ctx, cancel := e.bounded(ctx)
			defer cancel()
			return e.sessions.Create(ctx, accountID, payload, e.config.Session.TTL.D())
		},
		DeleteSession: func(ctx context.Context, accountID, sessionID string) error {
			ctx, cancel := e.bounded(ctx)
			defer cancel()
			_, err := e.sessions.Delete(ctx, accountID, sessionID)
			return err
		},
		Issue: e.issue,
		SaveRefresh: func(ctx context.Context, accountID, raw, device, origin string) error {
			ctx, cancel := e.bounded(ctx)
			defer cancel()
			_, err := e.tokens.SaveRefresh(ctx, accountID, raw, device, origin)
			return err
		},

		Hooks: hooks,
		Metrics: flows.LoginMetrics{
			LoginSuccess:     int(MetricLoginSuccess),
			LoginFailure:     int(MetricLoginFailure),
			LoginLocked:      int(MetricLoginLocked),
			SessionCreated:   int(MetricSessionCreated),
			PasswordUpgraded: int(MetricPasswordUpgraded),
		},
		Events: flows.LoginEvents{
			LoginSuccess: auditEventLoginSuccess,
			LoginFailure: auditEventLoginFailure,
			LoginLocked:  auditEventLoginLocked,
		},
		Errors: flows.LoginErrors{
			InvalidCredentials: ErrInvalidCredentials,
			AccountLocked:      ErrAccountLocked,
			EmailNotVerified:   ErrEmailNotVerified,
			NotFound:           store.ErrNotFound,
		},
	}
}

func (e *Engine) refreshDeps(hooks flows.Hooks) flows.RefreshDeps {
	return flows.RefreshDeps{
		RevokeFamilyOnReuse: e.config.Security.RevokeFamilyOnReuse,
		ExtendSessions:      e.config.Session.ExtendOnRefresh,

		Now:           e.clock.Now,
		VerifyRefresh: e.verifyRefresh,
		Lookup: func(ctx context.Context, raw string) (flows.RefreshRecord, error) {
			ctx, cancel := e.bounded(ctx)
			defer cancel()
			rec, err := e.tokens.Lookup(ctx, raw)
			if err != nil {
				return flows.RefreshRecord{}, err
			}
			return flows.RefreshRecord{AccountID: rec.AccountID, Revoked: rec.Revoked, ExpiresAt: rec.ExpiresAt}, nil
		},
		AccountByID: e.principalByID,
		Permissions: e.permissionNames,
		Issue:       e.issue,
		Rotate: func(ctx context.Context, oldRaw, newRaw, accountID string) error {
			ctx, cancel := e.bounded(ctx)
			defer cancel()
			_, err := e.tokens.Rotate(ctx, oldRaw, newRaw, accountID)
			return err
		},
		Revoke:    e.revokeRefresh,
		RevokeAll: e.revokeAllRefresh,
		DeleteAll: e.deleteAllSessions,
		ExtendSession: func(ctx context.Context, accountID, sessionID string) (bool, error) {
			ctx, cancel := e.bounded(ctx)
			defer cancel()
			return e.sessions.Extend(ctx, accountID, sessionID, e.config.Session.TTL.D())
		},

		Hooks: hooks,
		Metrics: flows.RefreshMetrics{
			RefreshSuccess:       int(MetricRefreshSuccess),
			RefreshFailure:       int(MetricRefreshFailure),
			RefreshReuseDetected: int(MetricRefreshReuseDetected),
			RefreshRaceLost:      int(MetricRefreshRaceLost),
			SessionInvalidated:   int(MetricSessionInvalidated),
		},
		Events: flows.RefreshEvents{
			RefreshSuccess: auditEventRefreshSuccess,
			RefreshInvalid: auditEventRefreshInvalid,
			RefreshReuse:   auditEventRefreshReuseDetected,
		},
		Errors: flows.RefreshErrors{
			TokenInvalid:  ErrTokenInvalid,
			TokenExpired:  ErrTokenExpired,
			TokenRevoked:  ErrTokenRevoked,
			RefreshReuse:  ErrRefreshReuse,
			NotFound:      store.ErrNotFound,
			Expired:       jwt.ErrTokenExpired,
			RotationRaced: tokenstore.ErrRotationConflict,
		},
	}
}

func (e *Engine) logoutDeps(hooks flows.Hooks) flows.LogoutDeps {
	return flows.LogoutDeps{
		VerifyRefresh: e.verifyRefresh,
		Revoke:        e.revokeRefresh,
		RevokeAll:     e.revokeAllRefresh,
		DeleteSession: func(ctx context.Context, accountID, sessionID string) (bool, error) {
			ctx, cancel := e.bounded(ctx)
			defer cancel()
			return e.sessions.Delete(ctx, accountID, sessionID)
		},
		DeleteAll: e.deleteAllSessions,

		Hooks: hooks,
		Metrics: flows.LogoutMetrics{
			Logout:             int(MetricLogout),
			LogoutAll:          int(MetricLogoutAll),
			SessionInvalidated: int(MetricSessionInvalidated),
		},
		Events: flows.LogoutEvents{
			Logout:    auditEventLogoutSession,
			LogoutAll: auditEventLogoutAll,
		},
	}
}

func (e *Engine) passwordResetDeps(hooks flows.Hooks) flows.PasswordResetDeps {
	return flows.PasswordResetDeps{
		Enabled:   e.config.PasswordReset.Enabled && e.notifier != nil,
		MinLength: e.config.Password.MinLength,
		TokenTTL:  e.config.PasswordReset.TokenTTL.D(),

		Allow: func(ctx context.Context, email string) error {
			ctx, cancel := e.bounded(ctx)
			defer cancel()
			return e.resetLimiter.Allow(ctx, email)
		},
		AccountByEmail: e.principalByEmail,
		IssueToken: func(ctx context.Context, accountID string, ttl time.Duration) (string, time.Time, error) {
			return e.issueOneTime(ctx, tokenstore.PurposePasswordReset, accountID, ttl)
		},
		ConsumeToken: func(ctx context.Context, raw string) (string, error) {
			return e.consumeOneTime(ctx, tokenstore.PurposePasswordReset, raw)
		},
		Notify: func(ctx context.Context, p flows.Principal, token string, expiresAt time.Time) error {
			return e.notifier.SendPasswordReset(ctx, accountFromPrincipal(p), token, expiresAt)
		},
		HashPassword: e.hasher.Hash,
		UpdatePasswordHash: func(ctx context.Context, accountID, hash string) error {
			ctx, cancel := e.bounded(ctx)
			defer cancel()
			return e.accounts.UpdatePasswordHash(ctx, accountID, hash)
		},
		RevokeAll: e.revokeAllRefresh,
		DeleteAll: e.deleteAllSessions,

		Hooks: hooks,
		Metrics: flows.PasswordResetMetrics{
			Request:            int(MetricPasswordResetRequest),
			ConfirmSuccess:     int(MetricPasswordResetConfirmSuccess),
			ConfirmFailure:     int(MetricPasswordResetConfirmFailure),
			RateLimitHit:       int(MetricRateLimitHit),
			SessionInvalidated: int(MetricSessionInvalidated),
		},
		Events: flows.PasswordResetEvents{
			Request: auditEventPasswordResetRequest,
			Confirm: auditEventPasswordResetConfirm,
		},
		Errors: flows.PasswordResetErrors{
			FeatureDisabled: ErrFeatureDisabled,
			RateLimited:     ErrRateLimited,
			InvalidInput:    ErrInvalidInput,
			TokenInvalid:    ErrTokenInvalid,
			NotFound:        store.ErrNotFound,
			Limited:         limiters.ErrRequestRateLimited,
		},
	}
}

func (e *Engine) emailVerificationDeps(hooks flows.Hooks) flows.EmailVerificationDeps {
	return flows.EmailVerificationDeps{
		Enabled:  e.config.EmailVerification.Enabled && e.notifier != nil,
		TokenTTL: e.config.EmailVerification.TokenTTL.D(),

		Allow: func(ctx context.Context, accountID string) error {
			ctx, cancel := e.bounded(ctx)
			defer cancel()
			return e.verifyLimiter.Allow(ctx, accountID)
		},
		AccountByID: e.principalByID,
		IssueToken: func(ctx context.Context, accountID string, ttl time.Duration) (string, time.Time, error) {
			return e.issueOneTime(ctx, tokenstore.PurposeEmailVerification, accountID, ttl)
		},
		ConsumeToken: func(ctx context.Context, raw string) (string, error) {
			return e.consumeOneTime(ctx, tokenstore.PurposeEmailVerification, raw)
		},
		Notify: func(ctx context.Context, p flows.Principal, token string, expiresAt time.Time) error {
			return e.notifier.SendEmailVerification(ctx, accountFromPrincipal(p), token, expiresAt)
		},
		MarkEmailVerified: func(ctx context.Context, accountID string) error {
			ctx, cancel := e.bounded(ctx)
			defer cancel()
			return e.accounts.MarkEmailVerified(ctx, accountID)
		},

		Hooks: hooks,
		Metrics: flows.EmailVerificationMetrics{
			Request:      int(MetricEmailVerificationRequest),
			Success:      int(MetricEmailVerificationSuccess),
			Failure:      int(MetricEmailVerificationFailure),
			RateLimitHit: int(MetricRateLimitHit),
		},
		Events: flows.EmailVerificationEvents{
			Request: auditEventEmailVerificationRequest,
			Confirm: auditEventEmailVerificationConfirm,
		},
		Errors: flows.EmailVerificationErrors{
			FeatureDisabled: ErrFeatureDisabled,
			RateLimited:     ErrRateLimited,
			InvalidInput:    ErrInvalidInput,
			TokenInvalid:    ErrTokenInvalid,
			NotFound:        store.ErrNotFound,
			Limited:         limiters.ErrRequestRateLimited,
		},
	}
}

/*
====================================
SHARED DEPENDENCIES
====================================
*/

func (e *Engine) principalByEmail(ctx context.Context, email string) (flows.Principal, error) {
	ctx, cancel := e.bounded(ctx)
	defer cancel()
	a, err := e.accounts.AccountByEmail(ctx, email)
	if err != nil {
		return flows.Principal{}, err
	}
	return principalFromAccount(a), nil
}

func (e *Engine) principalByID(ctx context.Context, id string) (flows.Principal, error) {
	ctx, cancel := e.bounded(ctx)
	defer cancel()
	a, err := e.accounts.AccountByID(ctx, id)
	if err != nil {
		return flows.Principal{}, err
	}
	return principalFromAccount(a), nil
}

func (e *Engine) permissionNames(ctx context.Context, accountID string) ([]string, error) {
	ctx, cancel := e.bounded(ctx)
	defer cancel()
	return e.graph.PermissionNames(ctx, accountID)
}

func (e *Engine) issue(in flows.IssueInput) (flows.IssuedPair, error) {
	p, err := e.issuer.Issue(jwt.Claims{
		AccountID:   in.AccountID,
		Email:       in.Email,
		SessionID:   in.SessionID,
		Permissions: in.Permissions,
	})
	if err != nil {
		return flows.IssuedPair{}, err
	}
	return flows.IssuedPair{
		AccessToken:      p.AccessToken,
		RefreshToken:     p.RefreshToken,
		ExpiresIn:        p.ExpiresIn,
		AccessExpiresAt:  p.AccessExpiresAt,
		RefreshExpiresAt: p.RefreshExpiresAt,
	}, nil
}

func (e *Engine) verifyRefresh(raw string) (flows.RefreshSubject, error) {
	claims, err := e.issuer.VerifyRefresh(raw)
	if err != nil {
		return flows.RefreshSubject{}, err
	}
	return flows.RefreshSubject{
		AccountID: claims.AccountID(),
		Email:     claims.Email,
		SessionID: claims.SessionID,
	}, nil
}

func (e *Engine) revokeRefresh(ctx context.Context, raw string) (bool, error) {
	ctx, cancel := e.bounded(ctx)
	defer cancel()
	return e.tokens.Revoke(ctx, raw)
}

func (e *Engine) revokeAllRefresh(ctx context.Context, accountID string) (int64, error) {
	ctx, cancel := e.bounded(ctx)
	defer cancel()
	return e.tokens.RevokeAll(ctx, accountID)
}

func (e *Engine) deleteAllSessions(ctx context.Context, accountID string) (int64, error) {
	ctx, cancel := e.bounded(ctx)
	defer cancel()
	return e.sessions.DeleteAll(ctx, accountID)
}

func (e *Engine) issueOneTime(ctx context.Context, purpose tokenstore.Purpose, accountID string, ttl time.Duration) (string, time.Time, error) {
	ctx, cancel := e.bounded(ctx)
	defer cancel()
	raw, tok, err := e.tokens.IssueOneTime(ctx, purpose, accountID, ttl)
	if err != nil {
		return "", time.Time{}, err
	}
	return raw, tok.ExpiresAt, nil
}

func (e *Engine) consumeOneTime(ctx context.Context, purpose tokenstore.Purpose, raw string) (string, error) {
	ctx, cancel := e.bounded(ctx)
	defer cancel()
	return e.tokens.ConsumeOneTime(ctx, purpose, raw)
}

func principalFromAccount(a Account) flows.Principal {
	return flows.Principal{
		ID:            a.ID,
		Email:         a.Email,
		PasswordHash:  a.PasswordHash,
		Active:        a.Active,
		EmailVerified: a.EmailVerified,
	}
}

func accountFromPrincipal(p flows.Principal) Account {
	return Account{
		ID:            p.ID,
		Email:         p.Email,
		Active:        p.Active,
		EmailVerified: p.EmailVerified,
	}
}
