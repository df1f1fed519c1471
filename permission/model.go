package permission

import "time"

// Role is a named bundle of permissions. Roles are soft-deleted through
// Active.
type Role struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Permission is a (resource, action) pair with a unique name such as
// "articles.update".
type Permission struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Resource    string    `json:"resource"`
	Action      string    `json:"action"`
	Description string    `json:"description,omitempty"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Edge links one role to one permission. (RoleID, PermissionID) is unique.
type Edge struct {
	ID           string    `json:"id"`
	RoleID       string    `json:"role_id"`
	PermissionID string    `json:"permission_id"`
	CreatedAt    time.Time `json:"created_at"`
}

// Grant gives an account one edge, so every grant answers "permission P
// via role R". At most one active grant exists per (account, edge).
type Grant struct {
	ID        string     `json:"id"`
	AccountID string     `json:"account_id"`
	EdgeID    string     `json:"edge_id"`
	GrantedBy string     `json:"granted_by,omitempty"`
	GrantedAt time.Time  `json:"granted_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Active    bool       `json:"active"`
}

// Expired reports whether the grant has a deadline at or before now.
func (g Grant) Expired(now time.Time) bool {
	return g.ExpiresAt != nil && !g.ExpiresAt.After(now)
}

// GrantState is the derived lifecycle state of a grant.
type GrantState string

const (
	GrantStateActive  GrantState = "active"
	GrantStateExpired GrantState = "expired"
	GrantStateRevoked GrantState = "revoked"
)

// State derives the lifecycle state at now. A revoked grant stays revoked
// even after its deadline passes.
func (g Grant) State(now time.Time) GrantState {
	switch {
	case !g.Active:
		return GrantStateRevoked
	case g.Expired(now):
		return GrantStateExpired
	default:
		return GrantStateActive
	}
}

// GrantInput describes a single grant request.
type GrantInput struct {
	AccountID string
	EdgeID    string
	GrantedBy string
	ExpiresAt *time.Time
}

// AccountGrant is a grant joined with its role and permission for listing.
type AccountGrant struct {
	Grant
	RoleName       string     `json:"role_name"`
	PermissionName string     `json:"permission_name"`
	State          GrantState `json:"state"`
}
