package volcanion

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/rickymta/volcanion-auth/clock"
	"github.com/rickymta/volcanion-auth/internal/audit"
	"github.com/rickymta/volcanion-auth/internal/flows"
	"github.com/rickymta/volcanion-auth/internal/limiters"
	"github.com/rickymta/volcanion-auth/jwt"
	"github.com/rickymta/volcanion-auth/password"
	"github.com/rickymta/volcanion-auth/permission"
	"github.com/rickymta/volcanion-auth/session"
	"github.com/rickymta/volcanion-auth/tokenstore"
)

// Engine authenticates accounts, rotates their credentials and answers
// authorization questions. Build it with New().....Build(); it is safe
// for concurrent use and holds no in-process locks.
type Engine struct {
	config Config
	logger *slog.Logger
	clock  clock.Clock

	hasher        *password.Hasher
	issuer        *jwt.Issuer
	tokens        *tokenstore.Store
	sessions      *session.Cache
	guard         *limiters.AttemptGuard
	resetLimiter  *limiters.RequestLimiter
	verifyLimiter *limiters.RequestLimiter
	graph         *permission.Graph
	accounts      AccountProvider
	notifier      Notifier

	audit   *audit.Dispatcher
	metrics *Metrics
	flow    flows.Service
}

func (e *Engine) ready() bool {
	return e != nil && e.flow.Initialized()
}

// bounded applies the configured per-call store timeout to ctx.
func (e *Engine) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.config.Store.Timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, e.config.Store.Timeout.D())
}

// Close flushes and stops the audit dispatcher.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports how many audit events were dropped because the
// dispatcher buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// Metrics exposes the live counters for exporters.
func (e *Engine) Metrics() *Metrics {
	if e == nil {
		return nil
	}
	return e.metrics
}

// MetricsSnapshot returns a point-in-time copy of the counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// Graph returns the permission graph for administrative operations. Its
// calls run under the caller's context only.
func (e *Engine) Graph() *permission.Graph {
	if e == nil {
		return nil
	}
	return e.graph
}

/*
====================================
AUTHENTICATION
====================================
*/

// Login verifies the password of req.Email and returns a token pair bound
// to a new cached session. Unknown accounts, inactive accounts and wrong
// passwords all return ErrInvalidCredentials. While the (email, origin)
// pair is locked out ErrAccountLocked is returned, even for a correct
// password, and the attempt still counts.
func (e *Engine) Login(ctx context.Context, req LoginRequest) (*TokenPair, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	if req.Origin == "" {
		req.Origin = clientIPFromContext(ctx)
	} else if clientIPFromContext(ctx) == "" {
		ctx = WithClientIP(ctx, req.Origin)
	}
	if req.Device == "" {
		req.Device = userAgentFromContext(ctx)
	}

	pair, err := e.flow.Login(ctx, flows.LoginInput{
		Email:    req.Email,
		Password: req.Password,
		Device:   req.Device,
		Origin:   req.Origin,
	})
	if err != nil {
		return nil, err
	}
	return toTokenPair(pair), nil
}

// Refresh rotates a refresh token. The presented token is revoked and a
// new pair carrying the account's current permissions is returned. A
// second presentation of the same token fails. It gets ErrTokenRevoked
// only when it read the token before the winning rotation committed and
// then lost the rotation. A presentation that reads the token after that
// commit sees it revoked and gets ErrRefreshReuse, even if the two calls
// overlapped in time; with Security.RevokeFamilyOnReuse that also revokes
// the pair the winner just received.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	pair, err := e.flow.Refresh(ctx, refreshToken)
	if err != nil {
		return nil, err
	}
	return toTokenPair(pair), nil
}

// Logout revokes one refresh token and drops its session. It reports
// whether a live token was revoked; unknown tokens are not an error.
func (e *Engine) Logout(ctx context.Context, refreshToken string) (bool, error) {
	if !e.ready() {
		return false, ErrEngineNotReady
	}
	return e.flow.Logout(ctx, refreshToken)
}

// LogoutAll revokes every refresh token of accountID, drops its sessions
// and returns the number of tokens revoked.
func (e *Engine) LogoutAll(ctx context.Context, accountID string) (int64, error) {
	if !e.ready() {
		return 0, ErrEngineNotReady
	}
	if accountID == "" {
		return 0, ErrInvalidInput
	}
	return e.flow.LogoutAll(ctx, accountID)
}

// VerifyAccess checks an access token and returns its identity. With
// Session.ValidateOnAccess the bound session must still be cached.
func (e *Engine) VerifyAccess(ctx context.Context, accessToken string) (*Identity, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	start := time.Now()
	defer func() { e.metrics.Observe(MetricVerifyLatency, time.Since(start)) }()

	claims, err := e.issuer.VerifyAccess(accessToken)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}

	if e.config.Session.ValidateOnAccess && claims.SessionID != "" {
		sctx, cancel := e.bounded(ctx)
		_, err := e.sessions.Get(sctx, claims.AccountID(), claims.SessionID)
		cancel()
		if errors.Is(err, session.ErrNotFound) {
			return nil, ErrTokenRevoked
		}
		if err != nil {
			return nil, err
		}
	}

	id := &Identity{
		AccountID:   claims.AccountID(),
		Email:       claims.Email,
		SessionID:   claims.SessionID,
		Permissions: claims.Permissions,
	}
	if claims.ExpiresAt != nil {
		id.ExpiresAt = claims.ExpiresAt.Time
	}
	return id, nil
}

// LoginAttempts returns the current failed-attempt count for the pair.
func (e *Engine) LoginAttempts(ctx context.Context, email, origin string) (int, error) {
	if !e.ready() {
		return 0, ErrEngineNotReady
	}
	ctx, cancel := e.bounded(ctx)
	defer cancel()
	return e.guard.Attempts(ctx, email, origin)
}

// Sessions lists the cached sessions of accountID.
func (e *Engine) Sessions(ctx context.Context, accountID string) ([]SessionInfo, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	ctx, cancel := e.bounded(ctx)
	defer cancel()

	entries, err := e.sessions.List(ctx, accountID)
	if err != nil {
		return nil, err
	}
	out := make([]SessionInfo, 0, len(entries))
	for _, entry := range entries {
		info := SessionInfo{ID: entry.ID, TTL: entry.TTL}
		var p sessionPayload
		if err := json.Unmarshal(entry.Payload, &p); err == nil {
			info.Device, info.Origin, info.CreatedAt = p.Device, p.Origin, p.CreatedAt
		}
		out = append(out, info)
	}
	return out, nil
}

// RevokeSession drops one cached session. Refresh tokens bound to it stay
// valid; use LogoutAll to terminate them too.
func (e *Engine) RevokeSession(ctx context.Context, accountID, sessionID string) (bool, error) {
	if !e.ready() {
		return false, ErrEngineNotReady
	}
	ctx, cancel := e.bounded(ctx)
	defer cancel()

	ok, err := e.sessions.Delete(ctx, accountID, sessionID)
	if err != nil {
		return false, err
	}
	if ok {
		e.metricInc(MetricSessionInvalidated)
		e.emitAudit(ctx, auditEventSessionRevoked, true, accountID, sessionID, nil, nil)
	}
	return ok, nil
}

/*
====================================
AUTHORIZATION
====================================
*/

// HasPermission reports whether accountID holds a live grant on a
// permission for (resource, action).
func (e *Engine) HasPermission(ctx context.Context, accountID, resource, action string) (bool, error) {
	if !e.ready() {
		return false, ErrEngineNotReady
	}
	start := time.Now()
	ctx, cancel := e.bounded(ctx)
	defer cancel()

	ok, err := e.graph.HasPermission(ctx, accountID, resource, action)
	e.observeDecision(start, ok, err)
	return ok, err
}

// HasPermissionByName is HasPermission keyed by the permission name.
func (e *Engine) HasPermissionByName(ctx context.Context, accountID, name string) (bool, error) {
	if !e.ready() {
		return false, ErrEngineNotReady
	}
	start := time.Now()
	ctx, cancel := e.bounded(ctx)
	defer cancel()

	ok, err := e.graph.HasPermissionByName(ctx, accountID, name)
	e.observeDecision(start, ok, err)
	return ok, err
}

// HasRole reports whether accountID holds a live grant through an active
// role named roleName.
func (e *Engine) HasRole(ctx context.Context, accountID, roleName string) (bool, error) {
	if !e.ready() {
		return false, ErrEngineNotReady
	}
	start := time.Now()
	ctx, cancel := e.bounded(ctx)
	defer cancel()

	ok, err := e.graph.HasRole(ctx, accountID, roleName)
	e.observeDecision(start, ok, err)
	return ok, err
}

func (e *Engine) observeDecision(start time.Time, ok bool, err error) {
	e.metrics.Observe(MetricPermissionCheckLatency, time.Since(start))
	if err != nil {
		return
	}
	if ok {
		e.metricInc(MetricPermissionAllowed)
	} else {
		e.metricInc(MetricPermissionDenied)
	}
}

func toTokenPair(p flows.IssuedPair) *TokenPair {
	return &TokenPair{
		AccessToken:      p.AccessToken,
		RefreshToken:     p.RefreshToken,
		TokenType:        "Bearer",
		ExpiresIn:        p.ExpiresIn,
		AccessExpiresAt:  p.AccessExpiresAt,
		RefreshExpiresAt: p.RefreshExpiresAt,
		SessionID:        p.SessionID,
	}
}
