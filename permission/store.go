package permission

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrDuplicateName is returned when a role or permission name is taken.
	ErrDuplicateName = errors.New("name already exists")
	// ErrDuplicateEdge is returned by Store.InsertEdge for an existing
	// (role, permission) pair.
	ErrDuplicateEdge = errors.New("role permission edge already exists")
	// ErrDuplicateGrant is returned by Store.InsertGrant when the account
	// already holds an active grant on the edge.
	ErrDuplicateGrant = errors.New("active grant already exists")
	// ErrInvalidInput reports missing or malformed arguments.
	ErrInvalidInput = errors.New("invalid input")
	// ErrInactive is returned when granting through a deactivated role or
	// permission.
	ErrInactive = errors.New("role or permission inactive")
)

// GrantRoleRequest carries a role expansion for Store.GrantRole.
type GrantRoleRequest struct {
	AccountID string
	RoleID    string
	GrantedBy string
	GrantedAt time.Time
	ExpiresAt *time.Time
	NewID     func() string
}

// Store is the persistence contract behind Graph. Lookups return
// store.ErrNotFound for missing rows; backend failures wrap
// store.ErrUnavailable.
//
// Every Check* and EffectivePermissions query counts a grant only when the
// grant is active, unexpired at now, and both its role and its permission
// are active.
type Store interface {
	InsertRole(ctx context.Context, r Role) error
	RoleByID(ctx context.Context, id string) (Role, error)
	RoleByName(ctx context.Context, name string) (Role, error)
	ListRoles(ctx context.Context) ([]Role, error)
	SetRoleActive(ctx context.Context, id string, active bool, at time.Time) error

	InsertPermission(ctx context.Context, p Permission) error
	PermissionByID(ctx context.Context, id string) (Permission, error)
	PermissionByName(ctx context.Context, name string) (Permission, error)
	ListPermissions(ctx context.Context) ([]Permission, error)
	SetPermissionActive(ctx context.Context, id string, active bool, at time.Time) error

	InsertEdge(ctx context.Context, e Edge) error
	EdgeByID(ctx context.Context, id string) (Edge, error)
	EdgesForRole(ctx context.Context, roleID string) ([]Edge, error)

	// InsertGrant returns ErrDuplicateGrant when the account already holds
	// the edge through a grant unexpired at g.GrantedAt. A held grant that
	// has expired is deactivated and no longer blocks the insert.
	InsertGrant(ctx context.Context, g Grant) error
	DeactivateGrant(ctx context.Context, accountID, edgeID string) (bool, error)
	// GrantRole inserts one grant per edge of the role in a single
	// transaction, skipping edges the account already holds through a grant
	// unexpired at req.GrantedAt, and returns the number of grants created.
	// Any other failure rolls the whole expansion back.
	GrantRole(ctx context.Context, req GrantRoleRequest) (int, error)
	DeactivateRoleGrants(ctx context.Context, accountID, roleID string) (int64, error)
	DeactivateExpiredGrants(ctx context.Context, now time.Time) (int64, error)
	AccountGrants(ctx context.Context, accountID string) ([]AccountGrant, error)

	CheckPermission(ctx context.Context, accountID, resource, action string, now time.Time) (bool, error)
	CheckPermissionByName(ctx context.Context, accountID, name string, now time.Time) (bool, error)
	CheckRole(ctx context.Context, accountID, roleName string, now time.Time) (bool, error)
	EffectivePermissions(ctx context.Context, accountID string, now time.Time) ([]Permission, error)
}
