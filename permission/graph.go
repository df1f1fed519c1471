package permission

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/rickymta/volcanion-auth/clock"
	"github.com/rickymta/volcanion-auth/internal/ids"
	"github.com/rickymta/volcanion-auth/store"
)

// EventFunc observes graph mutations. kind is one of the Event* constants.
type EventFunc func(ctx context.Context, kind, accountID string, meta map[string]string)

const (
	EventGrantCreated  = "grant_created"
	EventGrantRevoked  = "grant_revoked"
	EventRoleGranted   = "role_granted"
	EventRoleRevoked   = "role_revoked"
	EventGrantsExpired = "grants_expired"
)

// Option configures a Graph.
type Option func(*Graph)

// WithClock sets the time source used for expiry decisions.
func WithClock(c clock.Clock) Option {
	return func(g *Graph) {
		if c != nil {
			g.clock = c
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Graph) {
		if l != nil {
			g.logger = l
		}
	}
}

// WithEventFunc registers an observer for grant lifecycle events.
func WithEventFunc(fn EventFunc) Option {
	return func(g *Graph) { g.onEvent = fn }
}

// Graph evaluates and mutates the role/permission graph with
// time-bounded account grants.
type Graph struct {
	store   Store
	clock   clock.Clock
	logger  *slog.Logger
	onEvent EventFunc
}

// NewGraph creates a Graph over s.
func NewGraph(s Store, opts ...Option) (*Graph, error) {
	if s == nil {
		return nil, errors.New("permission store is required")
	}
	g := &Graph{
		store:  s,
		clock:  clock.Real(),
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

func (g *Graph) emit(ctx context.Context, kind, accountID string, meta map[string]string) {
	if g.onEvent != nil {
		g.onEvent(ctx, kind, accountID, meta)
	}
}

// CreateRole adds a role. Names are trimmed and must be unique.
func (g *Graph) CreateRole(ctx context.Context, name, description string) (Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, fmt.Errorf("%w: role name is required", ErrInvalidInput)
	}
	if _, err := g.store.RoleByName(ctx, name); err == nil {
		return Role{}, fmt.Errorf("%w: role %q", ErrDuplicateName, name)
	} else if !errors.Is(err, store.ErrNotFound) {
		return Role{}, err
	}

	now := g.clock.Now()
	r := Role{
		ID:          ids.New(),
		Name:        name,
		Description: strings.TrimSpace(description),
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := g.store.InsertRole(ctx, r); err != nil {
		return Role{}, err
	}
	return r, nil
}

// CreatePermission adds a permission. resource and action are required;
// an empty name defaults to "<resource>.<action>".
func (g *Graph) CreatePermission(ctx context.Context, name, resource, action, description string) (Permission, error) {
	resource = strings.TrimSpace(resource)
	action = strings.TrimSpace(action)
	if resource == "" || action == "" {
		return Permission{}, fmt.Errorf("%w: resource and action are required", ErrInvalidInput)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = resource + "." + action
	}
	if _, err := g.store.PermissionByName(ctx, name); err == nil {
		return Permission{}, fmt.Errorf("%w: permission %q", ErrDuplicateName, name)
	} else if !errors.Is(err, store.ErrNotFound) {
		return Permission{}, err
	}

	now := g.clock.Now()
	p := Permission{
		ID:          ids.New(),
		Name:        name,
		Resource:    resource,
		Action:      action,
		Description: strings.TrimSpace(description),
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := g.store.InsertPermission(ctx, p); err != nil {
		return Permission{}, err
	}
	return p, nil
}

// GetRole returns a role by id.
func (g *Graph) GetRole(ctx context.Context, id string) (Role, error) {
	return g.store.RoleByID(ctx, strings.TrimSpace(id))
}

// RoleByName returns a role by name.
func (g *Graph) RoleByName(ctx context.Context, name string) (Role, error) {
	return g.store.RoleByName(ctx, strings.TrimSpace(name))
}

// ListRoles returns all roles, including deactivated ones.
func (g *Graph) ListRoles(ctx context.Context) ([]Role, error) {
	return g.store.ListRoles(ctx)
}

// ListPermissions returns all permissions, including deactivated ones.
func (g *Graph) ListPermissions(ctx context.Context) ([]Permission, error) {
	return g.store.ListPermissions(ctx)
}

// DeactivateRole soft-deletes a role. Grants through it stop counting
// immediately but are kept for audit.
func (g *Graph) DeactivateRole(ctx context.Context, id string) error {
	return g.store.SetRoleActive(ctx, strings.TrimSpace(id), false, g.clock.Now())
}

// ActivateRole reverses DeactivateRole.
func (g *Graph) ActivateRole(ctx context.Context, id string) error {
	return g.store.SetRoleActive(ctx, strings.TrimSpace(id), true, g.clock.Now())
}

// DeactivatePermission soft-deletes a permission.
func (g *Graph) DeactivatePermission(ctx context.Context, id string) error {
	return g.store.SetPermissionActive(ctx, strings.TrimSpace(id), false, g.clock.Now())
}

// ActivatePermission reverses DeactivatePermission.
func (g *Graph) ActivatePermission(ctx context.Context, id string) error {
	return g.store.SetPermissionActive(ctx, strings.TrimSpace(id), true, g.clock.Now())
}

// AssignEdge links a role to a permission. When the edge already exists it
// returns created=false and no error.
func (g *Graph) AssignEdge(ctx context.Context, roleID, permissionID string) (Edge, bool, error) {
	roleID = strings.TrimSpace(roleID)
	permissionID = strings.TrimSpace(permissionID)
	if roleID == "" || permissionID == "" {
		return Edge{}, false, fmt.Errorf("%w: role_id and permission_id are required", ErrInvalidInput)
	}
	if _, err := g.store.RoleByID(ctx, roleID); err != nil {
		return Edge{}, false, err
	}
	if _, err := g.store.PermissionByID(ctx, permissionID); err != nil {
		return Edge{}, false, err
	}

	e := Edge{
		ID:           ids.New(),
		RoleID:       roleID,
		PermissionID: permissionID,
		CreatedAt:    g.clock.Now(),
	}
	if err := g.store.InsertEdge(ctx, e); err != nil {
		if errors.Is(err, ErrDuplicateEdge) {
			return Edge{}, false, nil
		}
		return Edge{}, false, err
	}
	return e, true, nil
}

// Grant gives an account one edge. A duplicate active grant returns
// created=false and no error. A deadline that has already passed is
// rejected.
func (g *Graph) Grant(ctx context.Context, in GrantInput) (Grant, bool, error) {
	in.AccountID = strings.TrimSpace(in.AccountID)
	in.EdgeID = strings.TrimSpace(in.EdgeID)
	if in.AccountID == "" || in.EdgeID == "" {
		return Grant{}, false, fmt.Errorf("%w: account_id and edge_id are required", ErrInvalidInput)
	}
	now := g.clock.Now()
	if in.ExpiresAt != nil && !in.ExpiresAt.After(now) {
		return Grant{}, false, fmt.Errorf("%w: expires_at must be in the future", ErrInvalidInput)
	}
	if _, err := g.store.EdgeByID(ctx, in.EdgeID); err != nil {
		return Grant{}, false, err
	}

	gr := Grant{
		ID:        ids.New(),
		AccountID: in.AccountID,
		EdgeID:    in.EdgeID,
		GrantedBy: strings.TrimSpace(in.GrantedBy),
		GrantedAt: now,
		ExpiresAt: in.ExpiresAt,
		Active:    true,
	}
	if err := g.store.InsertGrant(ctx, gr); err != nil {
		if errors.Is(err, ErrDuplicateGrant) {
			return Grant{}, false, nil
		}
		return Grant{}, false, err
	}
	g.emit(ctx, EventGrantCreated, gr.AccountID, map[string]string{"edge_id": gr.EdgeID, "granted_by": gr.GrantedBy})
	return gr, true, nil
}

// Revoke deactivates the account's active grant on edgeID and reports
// whether one existed.
func (g *Graph) Revoke(ctx context.Context, accountID, edgeID string) (bool, error) {
	ok, err := g.store.DeactivateGrant(ctx, strings.TrimSpace(accountID), strings.TrimSpace(edgeID))
	if err != nil {
		return false, err
	}
	if ok {
		g.emit(ctx, EventGrantRevoked, accountID, map[string]string{"edge_id": edgeID})
	}
	return ok, nil
}

// GrantRole expands a role into one grant per current edge, all sharing
// grantedBy and expiresAt. Edges the account already holds are skipped;
// any other failure aborts the whole expansion. It returns the number of
// grants created.
func (g *Graph) GrantRole(ctx context.Context, accountID, roleID, grantedBy string, expiresAt *time.Time) (int, error) {
	accountID = strings.TrimSpace(accountID)
	roleID = strings.TrimSpace(roleID)
	if accountID == "" || roleID == "" {
		return 0, fmt.Errorf("%w: account_id and role_id are required", ErrInvalidInput)
	}
	now := g.clock.Now()
	if expiresAt != nil && !expiresAt.After(now) {
		return 0, fmt.Errorf("%w: expires_at must be in the future", ErrInvalidInput)
	}
	role, err := g.store.RoleByID(ctx, roleID)
	if err != nil {
		return 0, err
	}
	if !role.Active {
		return 0, fmt.Errorf("%w: role %q", ErrInactive, role.Name)
	}

	created, err := g.store.GrantRole(ctx, GrantRoleRequest{
		AccountID: accountID,
		RoleID:    roleID,
		GrantedBy: strings.TrimSpace(grantedBy),
		GrantedAt: now,
		ExpiresAt: expiresAt,
		NewID:     ids.New,
	})
	if err != nil {
		return 0, err
	}
	g.logger.Debug("role granted", "account_id", accountID, "role", role.Name, "grants", created)
	g.emit(ctx, EventRoleGranted, accountID, map[string]string{"role": role.Name, "granted_by": grantedBy})
	return created, nil
}

// RevokeRole deactivates, in one bulk update, every grant of the account
// whose edge belongs to roleID. It returns the number of grants revoked.
func (g *Graph) RevokeRole(ctx context.Context, accountID, roleID string) (int64, error) {
	accountID = strings.TrimSpace(accountID)
	roleID = strings.TrimSpace(roleID)
	if accountID == "" || roleID == "" {
		return 0, fmt.Errorf("%w: account_id and role_id are required", ErrInvalidInput)
	}
	n, err := g.store.DeactivateRoleGrants(ctx, accountID, roleID)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		g.emit(ctx, EventRoleRevoked, accountID, map[string]string{"role_id": roleID})
	}
	return n, nil
}

// CleanupExpiredGrants flips active=false on grants whose deadline passed.
// Evaluation already ignores them; this keeps the table tidy.
func (g *Graph) CleanupExpiredGrants(ctx context.Context) (int64, error) {
	n, err := g.store.DeactivateExpiredGrants(ctx, g.clock.Now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		g.logger.Info("expired grants deactivated", "count", n)
		g.emit(ctx, EventGrantsExpired, "", map[string]string{"count": fmt.Sprint(n)})
	}
	return n, nil
}

// HasPermission reports whether the account holds (resource, action)
// through any active, unexpired grant on an active role and permission.
func (g *Graph) HasPermission(ctx context.Context, accountID, resource, action string) (bool, error) {
	if accountID == "" || resource == "" || action == "" {
		return false, nil
	}
	return g.store.CheckPermission(ctx, accountID, resource, action, g.clock.Now())
}

// HasPermissionByName is HasPermission keyed by permission name.
func (g *Graph) HasPermissionByName(ctx context.Context, accountID, name string) (bool, error) {
	if accountID == "" || name == "" {
		return false, nil
	}
	return g.store.CheckPermissionByName(ctx, accountID, name, g.clock.Now())
}

// HasRole reports whether the account holds any live grant through a role
// with the given name.
func (g *Graph) HasRole(ctx context.Context, accountID, roleName string) (bool, error) {
	if accountID == "" || roleName == "" {
		return false, nil
	}
	return g.store.CheckRole(ctx, accountID, roleName, g.clock.Now())
}

// EffectivePermissions returns the distinct permissions the account holds now.
func (g *Graph) EffectivePermissions(ctx context.Context, accountID string) ([]Permission, error) {
	return g.store.EffectivePermissions(ctx, accountID, g.clock.Now())
}

// PermissionNames returns the sorted names of the account's effective
// permissions, as embedded in access tokens.
func (g *Graph) PermissionNames(ctx context.Context, accountID string) ([]string, error) {
	perms, err := g.EffectivePermissions(ctx, accountID)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(perms))
	seen := make(map[string]struct{}, len(perms))
	for _, p := range perms {
		if _, ok := seen[p.Name]; ok {
			continue
		}
		seen[p.Name] = struct{}{}
		names = append(names, p.Name)
	}
	sort.Strings(names)
	return names, nil
}

// AccountGrants lists every grant of the account with its derived state.
func (g *Graph) AccountGrants(ctx context.Context, accountID string) ([]AccountGrant, error) {
	grants, err := g.store.AccountGrants(ctx, strings.TrimSpace(accountID))
	if err != nil {
		return nil, err
	}
	now := g.clock.Now()
	for i := range grants {
		grants[i].State = grants[i].Grant.State(now)
	}
	return grants, nil
}
