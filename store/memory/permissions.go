package memory

import (
	"context"
	"sort"
	"time"

	"github.com/rickymta/volcanion-auth/permission"
	"github.com/rickymta/volcanion-auth/store"
)

func (s *Store) InsertRole(ctx context.Context, r permission.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.roles {
		if existing.Name == r.Name {
			return permission.ErrDuplicateName
		}
	}
	s.roles[r.ID] = r
	return nil
}

func (s *Store) RoleByID(ctx context.Context, id string) (permission.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.roles[id]
	if !ok {
		return permission.Role{}, store.ErrNotFound
	}
	return r, nil
}

func (s *Store) RoleByName(ctx context.Context, name string) (permission.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.roles {
		if r.Name == name {
			return r, nil
		}
	}
	return permission.Role{}, store.ErrNotFound
}

func (s *Store) ListRoles(ctx context.Context) ([]permission.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]permission.Role, 0, len(s.roles))
	for _, r := range s.roles {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) SetRoleActive(ctx context.Context, id string, active bool, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.roles[id]
	if !ok {
		return store.ErrNotFound
	}
	r.Active = active
	r.UpdatedAt = at
	s.roles[id] = r
	return nil
}

func (s *Store) InsertPermission(ctx context.Context, p permission.Permission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.permissions {
		if existing.Name == p.Name {
			return permission.ErrDuplicateName
		}
	}
	s.permissions[p.ID] = p
	return nil
}

func (s *Store) PermissionByID(ctx context.Context, id string) (permission.Permission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.permissions[id]
	if !ok {
		return permission.Permission{}, store.ErrNotFound
	}
	return p, nil
}

func (s *Store) PermissionByName(ctx context.Context, name string) (permission.Permission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.permissions {
		if p.Name == name {
			return p, nil
		}
	}
	return permission.Permission{}, store.ErrNotFound
}

func (s *Store) ListPermissions(ctx context.Context) ([]permission.Permission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]permission.Permission, 0, len(s.permissions))
	for _, p := range s.permissions {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) SetPermissionActive(ctx context.Context, id string, active bool, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.permissions[id]
	if !ok {
		return store.ErrNotFound
	}
	p.Active = active
	p.UpdatedAt = at
	s.permissions[id] = p
	return nil
}

func (s *Store) InsertEdge(ctx context.Context, e permission.Edge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[e.RoleID]; !ok {
		return store.ErrNotFound
	}
	if _, ok := s.permissions[e.PermissionID]; !ok {
		return store.ErrNotFound
	}
	for _, existing := range s.edges {
		if existing.RoleID == e.RoleID && existing.PermissionID == e.PermissionID {
			return permission.ErrDuplicateEdge
		}
	}
	s.edges[e.ID] = e
	return nil
}

func (s *Store) EdgeByID(ctx context.Context, id string) (permission.Edge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.edges[id]
	if !ok {
		return permission.Edge{}, store.ErrNotFound
	}
	return e, nil
}

func (s *Store) EdgesForRole(ctx context.Context, roleID string) ([]permission.Edge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.edgesForRoleLocked(roleID), nil
}

func (s *Store) edgesForRoleLocked(roleID string) []permission.Edge {
	var out []permission.Edge
	for _, e := range s.edges {
		if e.RoleID == roleID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// hasActiveGrantLocked reports whether the account holds edgeID through a
// grant still live at now. Active grants already expired at now are
// deactivated on the way.
func (s *Store) hasActiveGrantLocked(accountID, edgeID string, now time.Time) bool {
	held := false
	for i := range s.grants {
		g := &s.grants[i]
		if !g.Active || g.AccountID != accountID || g.EdgeID != edgeID {
			continue
		}
		if g.Expired(now) {
			g.Active = false
			continue
		}
		held = true
	}
	return held
}

func (s *Store) InsertGrant(ctx context.Context, g permission.Grant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.edges[g.EdgeID]; !ok {
		return store.ErrNotFound
	}
	if g.Active && s.hasActiveGrantLocked(g.AccountID, g.EdgeID, g.GrantedAt) {
		return permission.ErrDuplicateGrant
	}
	s.grants = append(s.grants, g)
	return nil
}

func (s *Store) DeactivateGrant(ctx context.Context, accountID, edgeID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	found := false
	for i := range s.grants {
		g := &s.grants[i]
		if g.Active && g.AccountID == accountID && g.EdgeID == edgeID {
			g.Active = false
			found = true
		}
	}
	return found, nil
}

func (s *Store) GrantRole(ctx context.Context, req permission.GrantRoleRequest) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[req.RoleID]; !ok {
		return 0, store.ErrNotFound
	}
	created := 0
	for _, e := range s.edgesForRoleLocked(req.RoleID) {
		if s.hasActiveGrantLocked(req.AccountID, e.ID, req.GrantedAt) {
			continue
		}
		s.grants = append(s.grants, permission.Grant{
			ID:        req.NewID(),
			AccountID: req.AccountID,
			EdgeID:    e.ID,
			GrantedBy: req.GrantedBy,
			GrantedAt: req.GrantedAt,
			ExpiresAt: req.ExpiresAt,
			Active:    true,
		})
		created++
	}
	return created, nil
}

func (s *Store) DeactivateRoleGrants(ctx context.Context, accountID, roleID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for i := range s.grants {
		g := &s.grants[i]
		if !g.Active || g.AccountID != accountID {
			continue
		}
		if e, ok := s.edges[g.EdgeID]; ok && e.RoleID == roleID {
			g.Active = false
			n++
		}
	}
	return n, nil
}

func (s *Store) DeactivateExpiredGrants(ctx context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for i := range s.grants {
		g := &s.grants[i]
		if g.Active && g.Expired(now) {
			g.Active = false
			n++
		}
	}
	return n, nil
}

func (s *Store) AccountGrants(ctx context.Context, accountID string) ([]permission.AccountGrant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []permission.AccountGrant
	for _, g := range s.grants {
		if g.AccountID != accountID {
			continue
		}
		e := s.edges[g.EdgeID]
		out = append(out, permission.AccountGrant{
			Grant:          g,
			RoleName:       s.roles[e.RoleID].Name,
			PermissionName: s.permissions[e.PermissionID].Name,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].GrantedAt.Before(out[j].GrantedAt) })
	return out, nil
}

// liveLocked calls fn for every grant of the account that currently counts.
func (s *Store) liveLocked(accountID string, now time.Time, fn func(permission.Role, permission.Permission) bool) bool {
	for _, g := range s.grants {
		if !g.Active || g.AccountID != accountID || g.Expired(now) {
			continue
		}
		e, ok := s.edges[g.EdgeID]
		if !ok {
			continue
		}
		r, rok := s.roles[e.RoleID]
		p, pok := s.permissions[e.PermissionID]
		if !rok || !pok || !r.Active || !p.Active {
			continue
		}
		if fn(r, p) {
			return true
		}
	}
	return false
}

func (s *Store) CheckPermission(ctx context.Context, accountID, resource, action string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.liveLocked(accountID, now, func(_ permission.Role, p permission.Permission) bool {
		return p.Resource == resource && p.Action == action
	}), nil
}

func (s *Store) CheckPermissionByName(ctx context.Context, accountID, name string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.liveLocked(accountID, now, func(_ permission.Role, p permission.Permission) bool {
		return p.Name == name
	}), nil
}

func (s *Store) CheckRole(ctx context.Context, accountID, roleName string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.liveLocked(accountID, now, func(r permission.Role, _ permission.Permission) bool {
		return r.Name == roleName
	}), nil
}

func (s *Store) EffectivePermissions(ctx context.Context, accountID string, now time.Time) ([]permission.Permission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[string]permission.Permission)
	s.liveLocked(accountID, now, func(_ permission.Role, p permission.Permission) bool {
		seen[p.ID] = p
		return false
	})
	out := make([]permission.Permission, 0, len(seen))
	for _, p := range seen {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
