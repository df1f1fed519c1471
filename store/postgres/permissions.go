package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/rickymta/volcanion-auth/permission"
	"github.com/rickymta/volcanion-auth/store"
)

// liveGrantJoin restricts a query to grants that currently count: the
// grant is active and unexpired at $2 and both ends of its edge are active.
const liveGrantJoin = `
	from account_grants g
	join role_permissions rp on rp.id = g.edge_id
	join roles r on r.id = rp.role_id
	join permissions p on p.id = rp.permission_id
	where g.account_id = $1
	  and g.active
	  and (g.expires_at is null or g.expires_at > $2)
	  and r.active
	  and p.active`

const (
	roleColumns       = `id, name, description, active, created_at, updated_at`
	permissionColumns = `id, name, resource, action, description, active, created_at, updated_at`
)

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRole(row rowScanner) (permission.Role, error) {
	var r permission.Role
	err := row.Scan(&r.ID, &r.Name, &r.Description, &r.Active, &r.CreatedAt, &r.UpdatedAt)
	return r, err
}

func scanPermission(row rowScanner) (permission.Permission, error) {
	var p permission.Permission
	err := row.Scan(&p.ID, &p.Name, &p.Resource, &p.Action, &p.Description, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (s *Store) InsertRole(ctx context.Context, r permission.Role) error {
	_, err := s.db.ExecContext(ctx, `
		insert into roles(`+roleColumns+`)
		values ($1, $2, $3, $4, $5, $6)
	`, r.ID, r.Name, r.Description, r.Active, r.CreatedAt, r.UpdatedAt)
	return classify(err, permission.ErrDuplicateName)
}

func (s *Store) RoleByID(ctx context.Context, id string) (permission.Role, error) {
	r, err := scanRole(s.db.QueryRowContext(ctx, `select `+roleColumns+` from roles where id=$1`, id))
	return r, classify(err, nil)
}

func (s *Store) RoleByName(ctx context.Context, name string) (permission.Role, error) {
	r, err := scanRole(s.db.QueryRowContext(ctx, `select `+roleColumns+` from roles where name=$1`, name))
	return r, classify(err, nil)
}

func (s *Store) ListRoles(ctx context.Context) ([]permission.Role, error) {
	rows, err := s.db.QueryContext(ctx, `select `+roleColumns+` from roles order by name`)
	if err != nil {
		return nil, classify(err, nil)
	}
	defer rows.Close()
	var out []permission.Role
	for rows.Next() {
		r, err := scanRole(rows)
		if err != nil {
			return nil, unavailable(err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(err)
	}
	return out, nil
}

func (s *Store) SetRoleActive(ctx context.Context, id string, active bool, at time.Time) error {
	return s.execOne(ctx, `update roles set active=$2, updated_at=$3 where id=$1`, id, active, at)
}

func (s *Store) InsertPermission(ctx context.Context, p permission.Permission) error {
	_, err := s.db.ExecContext(ctx, `
		insert into permissions(`+permissionColumns+`)
		values ($1, $2, $3, $4, $5, $6, $7, $8)
	`, p.ID, p.Name, p.Resource, p.Action, p.Description, p.Active, p.CreatedAt, p.UpdatedAt)
	return classify(err, permission.ErrDuplicateName)
}

func (s *Store) PermissionByID(ctx context.Context, id string) (permission.Permission, error) {
	p, err := scanPermission(s.db.QueryRowContext(ctx, `select `+permissionColumns+` from permissions where id=$1`, id))
	return p, classify(err, nil)
}

func (s *Store) PermissionByName(ctx context.Context, name string) (permission.Permission, error) {
	p, err := scanPermission(s.db.QueryRowContext(ctx, `select `+permissionColumns+` from permissions where name=$1`, name))
	return p, classify(err, nil)
}

func (s *Store) ListPermissions(ctx context.Context) ([]permission.Permission, error) {
	return s.queryPermissions(ctx, `select `+permissionColumns+` from permissions order by name`)
}

func (s *Store) queryPermissions(ctx context.Context, query string, args ...any) ([]permission.Permission, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(err, nil)
	}
	defer rows.Close()
	var out []permission.Permission
	for rows.Next() {
		p, err := scanPermission(rows)
		if err != nil {
			return nil, unavailable(err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(err)
	}
	return out, nil
}

func (s *Store) SetPermissionActive(ctx context.Context, id string, active bool, at time.Time) error {
	return s.execOne(ctx, `update permissions set active=$2, updated_at=$3 where id=$1`, id, active, at)
}

func (s *Store) InsertEdge(ctx context.Context, e permission.Edge) error {
	_, err := s.db.ExecContext(ctx, `
		insert into role_permissions(id, role_id, permission_id, created_at)
		values ($1, $2, $3, $4)
	`, e.ID, e.RoleID, e.PermissionID, e.CreatedAt)
	return classify(err, permission.ErrDuplicateEdge)
}

func (s *Store) EdgeByID(ctx context.Context, id string) (permission.Edge, error) {
	var e permission.Edge
	err := s.db.QueryRowContext(ctx, `
		select id, role_id, permission_id, created_at from role_permissions where id=$1
	`, id).Scan(&e.ID, &e.RoleID, &e.PermissionID, &e.CreatedAt)
	return e, classify(err, nil)
}

func (s *Store) EdgesForRole(ctx context.Context, roleID string) ([]permission.Edge, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, role_id, permission_id, created_at from role_permissions
		where role_id=$1 order by id
	`, roleID)
	if err != nil {
		return nil, classify(err, nil)
	}
	defer rows.Close()
	var out []permission.Edge
	for rows.Next() {
		var e permission.Edge
		if err := rows.Scan(&e.ID, &e.RoleID, &e.PermissionID, &e.CreatedAt); err != nil {
			return nil, unavailable(err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(err)
	}
	return out, nil
}

func (s *Store) InsertGrant(ctx context.Context, g permission.Grant) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable(err)
	}
	defer func() { _ = tx.Rollback() }()

	// An expired grant still holds the active unique slot until the sweep
	// reaches it; release it before inserting the replacement.
	if _, err := tx.ExecContext(ctx, `
		update account_grants set active=false
		where account_id=$1 and edge_id=$2 and active
		  and expires_at is not null and expires_at <= $3
	`, g.AccountID, g.EdgeID, g.GrantedAt); err != nil {
		return classify(err, nil)
	}
	if _, err := tx.ExecContext(ctx, `
		insert into account_grants(id, account_id, edge_id, granted_by, granted_at, expires_at, active)
		values ($1, $2, $3, $4, $5, $6, $7)
	`, g.ID, g.AccountID, g.EdgeID, g.GrantedBy, g.GrantedAt, nullTime(g.ExpiresAt), g.Active); err != nil {
		return classify(err, permission.ErrDuplicateGrant)
	}
	if err := tx.Commit(); err != nil {
		return unavailable(err)
	}
	return nil
}

func (s *Store) DeactivateGrant(ctx context.Context, accountID, edgeID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		update account_grants set active=false
		where account_id=$1 and edge_id=$2 and active
	`, accountID, edgeID)
	if err != nil {
		return false, classify(err, nil)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, unavailable(err)
	}
	return n > 0, nil
}

func (s *Store) GrantRole(ctx context.Context, req permission.GrantRoleRequest) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, unavailable(err)
	}
	defer func() { _ = tx.Rollback() }()

	var exists bool
	if err := tx.QueryRowContext(ctx, `select exists(select 1 from roles where id=$1)`, req.RoleID).Scan(&exists); err != nil {
		return 0, classify(err, nil)
	}
	if !exists {
		return 0, store.ErrNotFound
	}

	if _, err := tx.ExecContext(ctx, `
		update account_grants set active=false
		where account_id=$1 and active
		  and expires_at is not null and expires_at <= $2
		  and edge_id in (select id from role_permissions where role_id=$3)
	`, req.AccountID, req.GrantedAt, req.RoleID); err != nil {
		return 0, classify(err, nil)
	}

	rows, err := tx.QueryContext(ctx, `select id from role_permissions where role_id=$1 order by id`, req.RoleID)
	if err != nil {
		return 0, classify(err, nil)
	}
	var edges []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, unavailable(err)
		}
		edges = append(edges, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, unavailable(err)
	}

	created := 0
	for _, edgeID := range edges {
		res, err := tx.ExecContext(ctx, `
			insert into account_grants(id, account_id, edge_id, granted_by, granted_at, expires_at, active)
			values ($1, $2, $3, $4, $5, $6, true)
			on conflict (account_id, edge_id) where active do nothing
		`, req.NewID(), req.AccountID, edgeID, req.GrantedBy, req.GrantedAt, nullTime(req.ExpiresAt))
		if err != nil {
			return 0, classify(err, nil)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, unavailable(err)
		}
		created += int(n)
	}
	if err := tx.Commit(); err != nil {
		return 0, unavailable(err)
	}
	return created, nil
}

func (s *Store) DeactivateRoleGrants(ctx context.Context, accountID, roleID string) (int64, error) {
	return s.execCount(ctx, `
		update account_grants set active=false
		where account_id=$1 and active
		  and edge_id in (select id from role_permissions where role_id=$2)
	`, accountID, roleID)
}

func (s *Store) DeactivateExpiredGrants(ctx context.Context, now time.Time) (int64, error) {
	return s.execCount(ctx, `
		update account_grants set active=false
		where active and expires_at is not null and expires_at <= $1
	`, now)
}

func (s *Store) AccountGrants(ctx context.Context, accountID string) ([]permission.AccountGrant, error) {
	rows, err := s.db.QueryContext(ctx, `
		select g.id, g.account_id, g.edge_id, g.granted_by, g.granted_at, g.expires_at, g.active,
		       r.name, p.name
		from account_grants g
		join role_permissions rp on rp.id = g.edge_id
		join roles r on r.id = rp.role_id
		join permissions p on p.id = rp.permission_id
		where g.account_id=$1
		order by g.granted_at, g.id
	`, accountID)
	if err != nil {
		return nil, classify(err, nil)
	}
	defer rows.Close()
	var out []permission.AccountGrant
	for rows.Next() {
		var (
			ag      permission.AccountGrant
			expires sql.NullTime
		)
		if err := rows.Scan(&ag.ID, &ag.AccountID, &ag.EdgeID, &ag.GrantedBy, &ag.GrantedAt, &expires, &ag.Active,
			&ag.RoleName, &ag.PermissionName); err != nil {
			return nil, unavailable(err)
		}
		ag.ExpiresAt = timePtr(expires)
		out = append(out, ag)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(err)
	}
	return out, nil
}

func (s *Store) CheckPermission(ctx context.Context, accountID, resource, action string, now time.Time) (bool, error) {
	return s.exists(ctx, `select exists(select 1 `+liveGrantJoin+` and p.resource=$3 and p.action=$4)`,
		accountID, now, resource, action)
}

func (s *Store) CheckPermissionByName(ctx context.Context, accountID, name string, now time.Time) (bool, error) {
	return s.exists(ctx, `select exists(select 1 `+liveGrantJoin+` and p.name=$3)`, accountID, now, name)
}

func (s *Store) CheckRole(ctx context.Context, accountID, roleName string, now time.Time) (bool, error) {
	return s.exists(ctx, `select exists(select 1 `+liveGrantJoin+` and r.name=$3)`, accountID, now, roleName)
}

func (s *Store) EffectivePermissions(ctx context.Context, accountID string, now time.Time) ([]permission.Permission, error) {
	return s.queryPermissions(ctx, `
		select distinct p.id, p.name, p.resource, p.action, p.description, p.active, p.created_at, p.updated_at
	`+liveGrantJoin+`
		order by p.name
	`, accountID, now)
}

func (s *Store) exists(ctx context.Context, query string, args ...any) (bool, error) {
	var ok bool
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&ok); err != nil {
		return false, classify(err, nil)
	}
	return ok, nil
}

func (s *Store) execCount(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, classify(err, nil)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, unavailable(err)
	}
	return n, nil
}

// execOne runs an update that must touch exactly one row.
func (s *Store) execOne(ctx context.Context, query string, args ...any) error {
	n, err := s.execCount(ctx, query, args...)
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}
