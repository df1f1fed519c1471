package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/rickymta/volcanion-auth/account"
)

var (
	// ErrUnauthenticated is returned when no valid access token was presented.
	ErrUnauthenticated = errors.New("authentication required")
	// ErrForbidden is returned when the identity lacks every required
	// role or permission.
	ErrForbidden = errors.New("permission denied")
)

// Identity is the verified principal attached to a request.
type Identity = account.Identity

// TokenVerifier verifies access tokens.
type TokenVerifier interface {
	VerifyAccess(ctx context.Context, accessToken string) (*Identity, error)
}

// PermissionChecker answers permission graph queries.
type PermissionChecker interface {
	HasPermission(ctx context.Context, accountID, resource, action string) (bool, error)
	HasPermissionByName(ctx context.Context, accountID, name string) (bool, error)
	HasRole(ctx context.Context, accountID, roleName string) (bool, error)
}

// Gate combines token verification with permission checks.
type Gate struct {
	verifier TokenVerifier
	checker  PermissionChecker
	logger   *slog.Logger
}

// Option configures a Gate.
type Option func(*Gate)

// WithLogger sets the logger used for backend failures.
func WithLogger(l *slog.Logger) Option {
	return func(g *Gate) {
		if l != nil {
			g.logger = l
		}
	}
}

// NewGate returns a Gate. checker may be nil when only authentication is
// needed; every permission check then fails with ErrForbidden.
func NewGate(verifier TokenVerifier, checker PermissionChecker, opts ...Option) *Gate {
	g := &Gate{
		verifier: verifier,
		checker:  checker,
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

type identityContextKey struct{}

// WithIdentity attaches id to ctx.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, id)
}

// IdentityFromContext returns the identity attached by an authenticating
// gate.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(identityContextKey{}).(*Identity)
	return id, ok && id != nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	const bearer = "bearer "
	if len(header) <= len(bearer) || !strings.EqualFold(header[:len(bearer)], bearer) {
		return "", false
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", false
	}
	return token, true
}

// Verify checks the bearer token in an Authorization header value. Every
// rejection wraps ErrUnauthenticated.
func (g *Gate) Verify(ctx context.Context, authorization string) (*Identity, error) {
	if g == nil || g.verifier == nil {
		return nil, ErrUnauthenticated
	}
	token, ok := BearerToken(authorization)
	if !ok {
		return nil, ErrUnauthenticated
	}
	id, err := g.verifier.VerifyAccess(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}
	if id == nil || id.AccountID == "" {
		return nil, ErrUnauthenticated
	}
	return id, nil
}

// CheckRoles allows id when it holds any of roles.
func (g *Gate) CheckRoles(ctx context.Context, id *Identity, roles ...string) error {
	return g.any(ctx, id, roles, func(ctx context.Context, accountID, role string) (bool, error) {
		return g.checker.HasRole(ctx, accountID, role)
	})
}

// CheckPermission allows id when it holds a live grant for (resource, action).
func (g *Gate) CheckPermission(ctx context.Context, id *Identity, resource, action string) error {
	if id == nil {
		return ErrUnauthenticated
	}
	if g.checker == nil {
		return ErrForbidden
	}
	ok, err := g.checker.HasPermission(ctx, id.AccountID, resource, action)
	if err != nil {
		g.logger.Warn("permission check failed", "account_id", id.AccountID, "resource", resource, "action", action, "error", err)
		return err
	}
	if !ok {
		return ErrForbidden
	}
	return nil
}

// CheckPermissionNames allows id when it holds any of names.
func (g *Gate) CheckPermissionNames(ctx context.Context, id *Identity, names ...string) error {
	return g.any(ctx, id, names, func(ctx context.Context, accountID, name string) (bool, error) {
		return g.checker.HasPermissionByName(ctx, accountID, name)
	})
}

// CheckOwnership allows id unconditionally when it is the owner of the
// addressed resource, and otherwise falls back to CheckPermission.
func (g *Gate) CheckOwnership(ctx context.Context, id *Identity, ownerID, resource, action string) error {
	if id == nil {
		return ErrUnauthenticated
	}
	if ownerID != "" && ownerID == id.AccountID {
		return nil
	}
	return g.CheckPermission(ctx, id, resource, action)
}

func (g *Gate) any(ctx context.Context, id *Identity, candidates []string, has func(context.Context, string, string) (bool, error)) error {
	if id == nil {
		return ErrUnauthenticated
	}
	if g.checker == nil {
		return ErrForbidden
	}
	for _, c := range candidates {
		ok, err := has(ctx, id.AccountID, c)
		if err != nil {
			g.logger.Warn("authorization check failed", "account_id", id.AccountID, "check", c, "error", err)
			return err
		}
		if ok {
			return nil
		}
	}
	return ErrForbidden
}
