package volcanion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/rickymta/volcanion-auth/clock"
	"github.com/rickymta/volcanion-auth/internal/audit"
	"github.com/rickymta/volcanion-auth/internal/limiters"
	"github.com/rickymta/volcanion-auth/jwt"
	"github.com/rickymta/volcanion-auth/password"
	"github.com/rickymta/volcanion-auth/permission"
	"github.com/rickymta/volcanion-auth/session"
	"github.com/rickymta/volcanion-auth/tokenstore"
)

// Builder collects the collaborators of an Engine. A Builder is
// configured during initialization and can be built once.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	accounts    AccountProvider
	permissions permission.Store
	tokens      tokenstore.Repository

	logger    *slog.Logger
	clock     clock.Clock
	notifier  Notifier
	auditSink AuditSink

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithRedis sets the client used by the session cache, the attempt guard
// and the request limiters. Required.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithAccountProvider sets the account lookup backend. Required.
func (b *Builder) WithAccountProvider(p AccountProvider) *Builder {
	b.accounts = p
	return b
}

// WithPermissionStore sets the relational backend of the permission graph. Required.
func (b *Builder) WithPermissionStore(s permission.Store) *Builder {
	b.permissions = s
	return b
}

// WithTokenRepository sets the relational backend of the token store. Required.
func (b *Builder) WithTokenRepository(r tokenstore.Repository) *Builder {
	b.tokens = r
	return b
}

// WithLogger sets the structured logger. The default discards output.
func (b *Builder) WithLogger(l *slog.Logger) *Builder {
	b.logger = l
	return b
}

// WithClock overrides the wall clock, mainly for tests.
func (b *Builder) WithClock(c clock.Clock) *Builder {
	b.clock = c
	return b
}

// WithNotifier sets the delivery channel for reset and verification
// tokens. Without one those flows are reported as disabled.
func (b *Builder) WithNotifier(n Notifier) *Builder {
	b.notifier = n
	return b
}

// WithAuditSink enables the async audit dispatcher with sink.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	if sink != nil {
		b.config.Audit.Enabled = true
	}
	return b
}

// WithMetricsEnabled toggles the in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles latency histograms for VerifyAccess and
// permission checks.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires the Engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := b.config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.accounts == nil {
		return nil, errors.New("account provider required")
	}
	if b.permissions == nil {
		return nil, errors.New("permission store required")
	}
	if b.tokens == nil {
		return nil, errors.New("token repository required")
	}

	logger := b.logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	clk := b.clock
	if clk == nil {
		clk = clock.Real()
	}

	// -------- CREDENTIALS --------
	hasher, err := password.New(cfg.Password.hasherConfig())
	if err != nil {
		return nil, fmt.Errorf("password hasher: %w", err)
	}

	issuer, err := jwt.NewIssuer(jwt.Config{
		Access:        cfg.Token.Access.issuerKey(),
		Refresh:       cfg.Token.Refresh.issuerKey(),
		Issuer:        cfg.Token.Issuer,
		Audience:      cfg.Token.Audience,
		AccessExpiry:  cfg.Token.AccessExpiry,
		RefreshExpiry: cfg.Token.RefreshExpiry,
		Leeway:        cfg.Token.Leeway.D(),
		Clock:         clk,
	})
	if err != nil {
		return nil, fmt.Errorf("token issuer: %w", err)
	}

	// -------- STORES --------
	tokens := tokenstore.New(b.tokens, clk, issuer.RefreshTTL())
	sessions := session.NewCache(b.redis, cfg.Session.KeyPrefix)

	guard := limiters.NewAttemptGuard(b.redis, limiters.AttemptConfig{
		MaxAttempts: cfg.Lockout.MaxAttempts,
		Window:      cfg.Lockout.Window.D(),
		KeyPrefix:   cfg.Lockout.KeyPrefix,
	})
	resetLimiter := limiters.NewRequestLimiter(b.redis, limiters.RequestConfig{
		Max:       cfg.PasswordReset.MaxRequests,
		Window:    cfg.PasswordReset.Window.D(),
		KeyPrefix: "pwreset_requests",
	})
	verifyLimiter := limiters.NewRequestLimiter(b.redis, limiters.RequestConfig{
		Max:       cfg.EmailVerification.MaxRequests,
		Window:    cfg.EmailVerification.Window.D(),
		KeyPrefix: "verify_requests",
	})

	// -------- OBSERVABILITY --------
	var dispatcher *audit.Dispatcher
	if cfg.Audit.Enabled {
		sink := b.auditSink
		if sink == nil {
			sink = audit.NewSlogSink(logger)
		}
		dispatcher = audit.NewDispatcher(audit.Config{
			Enabled:    true,
			BufferSize: cfg.Audit.BufferSize,
			DropIfFull: cfg.Audit.DropIfFull,
		}, sink)
	}

	e := &Engine{
		config:        cfg,
		logger:        logger,
		clock:         clk,
		hasher:        hasher,
		issuer:        issuer,
		tokens:        tokens,
		sessions:      sessions,
		guard:         guard,
		resetLimiter:  resetLimiter,
		verifyLimiter: verifyLimiter,
		accounts:      b.accounts,
		notifier:      b.notifier,
		audit:         dispatcher,
		metrics:       NewMetrics(cfg.Metrics),
	}

	// -------- PERMISSION GRAPH --------
	graph, err := permission.NewGraph(b.permissions,
		permission.WithClock(clk),
		permission.WithLogger(logger),
		permission.WithEventFunc(e.onGraphEvent),
	)
	if err != nil {
		return nil, err
	}
	e.graph = graph

	e.flow = e.buildFlows()

	b.built = true
	return e, nil
}

// onGraphEvent forwards permission graph mutations to the audit trail.
func (e *Engine) onGraphEvent(ctx context.Context, kind, accountID string, meta map[string]string) {
	e.emitAudit(ctx, "permission_"+kind, true, accountID, "", nil, func() map[string]string { return meta })
}
