package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/rickymta/volcanion-auth/permission"
	"github.com/rickymta/volcanion-auth/store"
	"github.com/rickymta/volcanion-auth/tokenstore"
)

func newMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewWithDB(db), mock
}

func expectMet(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestInsertRoleDuplicateName(t *testing.T) {
	s, mock := newMock(t)
	now := time.Now().UTC()
	mock.ExpectExec("insert into roles").
		WithArgs("r1", "editor", "", true, now, now).
		WillReturnError(&pgconn.PgError{Code: pgErrUniqueViolation})

	err := s.InsertRole(context.Background(), permission.Role{ID: "r1", Name: "editor", Active: true, CreatedAt: now, UpdatedAt: now})
	if !errors.Is(err, permission.ErrDuplicateName) {
		t.Fatalf("expected ErrDuplicateName, got %v", err)
	}
	expectMet(t, mock)
}

func TestRoleByIDNotFound(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectQuery("select id, name, description, active, created_at, updated_at from roles where id").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "description", "active", "created_at", "updated_at"}))

	if _, err := s.RoleByID(context.Background(), "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	expectMet(t, mock)
}

func TestInsertEdgeForeignKeyIsNotFound(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectExec("insert into role_permissions").
		WillReturnError(&pgconn.PgError{Code: pgErrForeignKeyViolation})

	err := s.InsertEdge(context.Background(), permission.Edge{ID: "e1", RoleID: "r1", PermissionID: "p404", CreatedAt: time.Now()})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	expectMet(t, mock)
}

func TestDriverErrorIsUnavailable(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectQuery("select exists").WillReturnError(errors.New("connection reset"))

	_, err := s.CheckPermissionByName(context.Background(), "acct-1", "articles.read", time.Now())
	if !errors.Is(err, store.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	expectMet(t, mock)
}

func TestCheckPermissionUsesLiveGrantFilter(t *testing.T) {
	s, mock := newMock(t)
	now := time.Now().UTC()
	mock.ExpectQuery(`g.expires_at is null or g.expires_at > \$2`).
		WithArgs("acct-1", now, "articles", "update").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	ok, err := s.CheckPermission(context.Background(), "acct-1", "articles", "update", now)
	if err != nil {
		t.Fatalf("CheckPermission: %v", err)
	}
	if !ok {
		t.Fatalf("expected permission to be granted")
	}
	expectMet(t, mock)
}

func TestGrantRoleSkipsActiveEdges(t *testing.T) {
	s, mock := newMock(t)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery("select exists").WithArgs("r1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectExec(`update account_grants set active=false`).
		WithArgs("acct-1", now, "r1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("select id from role_permissions").WithArgs("r1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("e1").AddRow("e2"))
	mock.ExpectExec("insert into account_grants").
		WithArgs("g1", "acct-1", "e1", "admin", now, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("insert into account_grants").
		WithArgs("g2", "acct-1", "e2", "admin", now, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	ids := []string{"g1", "g2"}
	n, err := s.GrantRole(context.Background(), permission.GrantRoleRequest{
		AccountID: "acct-1",
		RoleID:    "r1",
		GrantedBy: "admin",
		GrantedAt: now,
		NewID: func() string {
			id := ids[0]
			ids = ids[1:]
			return id
		},
	})
	if err != nil {
		t.Fatalf("GrantRole: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 grant created, got %d", n)
	}
	expectMet(t, mock)
}

func TestInsertGrantReleasesExpiredSlot(t *testing.T) {
	s, mock := newMock(t)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectExec(`update account_grants set active=false\s+where account_id=\$1 and edge_id=\$2 and active\s+and expires_at is not null and expires_at <= \$3`).
		WithArgs("acct-1", "e1", now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("insert into account_grants").
		WithArgs("g2", "acct-1", "e1", "admin", now, sqlmock.AnyArg(), true).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := s.InsertGrant(context.Background(), permission.Grant{
		ID: "g2", AccountID: "acct-1", EdgeID: "e1", GrantedBy: "admin", GrantedAt: now, Active: true,
	})
	if err != nil {
		t.Fatalf("InsertGrant: %v", err)
	}
	expectMet(t, mock)
}

func TestInsertGrantLiveDuplicate(t *testing.T) {
	s, mock := newMock(t)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectExec(`update account_grants set active=false`).
		WithArgs("acct-1", "e1", now).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("insert into account_grants").
		WillReturnError(&pgconn.PgError{Code: pgErrUniqueViolation})
	mock.ExpectRollback()

	err := s.InsertGrant(context.Background(), permission.Grant{
		ID: "g2", AccountID: "acct-1", EdgeID: "e1", GrantedAt: now, Active: true,
	})
	if !errors.Is(err, permission.ErrDuplicateGrant) {
		t.Fatalf("expected ErrDuplicateGrant, got %v", err)
	}
	expectMet(t, mock)
}

func TestGrantRoleRollsBackOnFailure(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery("select exists").WithArgs("r1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectExec(`update account_grants set active=false`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("select id from role_permissions").WithArgs("r1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("e1").AddRow("e2"))
	mock.ExpectExec("insert into account_grants").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("insert into account_grants").WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	_, err := s.GrantRole(context.Background(), permission.GrantRoleRequest{
		AccountID: "acct-1",
		RoleID:    "r1",
		GrantedAt: time.Now(),
		NewID:     func() string { return "g" },
	})
	if !errors.Is(err, store.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	expectMet(t, mock)
}

func TestGrantRoleUnknownRole(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectQuery("select exists").WithArgs("nope").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectRollback()

	_, err := s.GrantRole(context.Background(), permission.GrantRoleRequest{AccountID: "a", RoleID: "nope", NewID: func() string { return "g" }})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	expectMet(t, mock)
}

func TestRotateRefreshTokenCopiesDeviceAndOrigin(t *testing.T) {
	s, mock := newMock(t)
	now := time.Now().UTC()
	next := tokenstore.Record{
		ID:        "rt2",
		AccountID: "acct-1",
		Digest:    "new-digest",
		ExpiresAt: now.Add(time.Hour),
		CreatedAt: now,
	}

	mock.ExpectBegin()
	mock.ExpectQuery("update refresh_tokens set revoked=true").
		WithArgs("old-digest", now).
		WillReturnRows(sqlmock.NewRows([]string{"device", "origin"}).AddRow("laptop", "10.0.0.1"))
	mock.ExpectExec("insert into refresh_tokens").
		WithArgs("rt2", "acct-1", "new-digest", next.ExpiresAt, "laptop", "10.0.0.1", now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	got, err := s.RotateRefreshToken(context.Background(), "old-digest", now, next)
	if err != nil {
		t.Fatalf("RotateRefreshToken: %v", err)
	}
	if got.Device != "laptop" || got.Origin != "10.0.0.1" {
		t.Fatalf("unexpected device/origin: %q %q", got.Device, got.Origin)
	}
	expectMet(t, mock)
}

func TestRotateRefreshTokenLosingRaceIsNotFound(t *testing.T) {
	s, mock := newMock(t)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery("update refresh_tokens set revoked=true").
		WithArgs("old-digest", now).
		WillReturnRows(sqlmock.NewRows([]string{"device", "origin"}))
	mock.ExpectRollback()

	_, err := s.RotateRefreshToken(context.Background(), "old-digest", now, tokenstore.Record{ID: "rt2"})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	expectMet(t, mock)
}

func TestConsumeOneTimeToken(t *testing.T) {
	s, mock := newMock(t)
	now := time.Now().UTC()
	mock.ExpectQuery("update one_time_tokens set used=true").
		WithArgs("password_reset", "digest", now).
		WillReturnRows(sqlmock.NewRows([]string{"id", "account_id", "purpose", "token_hash", "expires_at", "used", "created_at"}).
			AddRow("ot1", "acct-1", "password_reset", "digest", now.Add(time.Hour), true, now))

	tok, err := s.ConsumeOneTimeToken(context.Background(), tokenstore.PurposePasswordReset, "digest", now)
	if err != nil {
		t.Fatalf("ConsumeOneTimeToken: %v", err)
	}
	if tok.AccountID != "acct-1" || tok.Purpose != tokenstore.PurposePasswordReset || !tok.Used {
		t.Fatalf("unexpected token: %+v", tok)
	}

	mock.ExpectQuery("update one_time_tokens set used=true").
		WillReturnRows(sqlmock.NewRows([]string{"id", "account_id", "purpose", "token_hash", "expires_at", "used", "created_at"}))
	if _, err := s.ConsumeOneTimeToken(context.Background(), tokenstore.PurposePasswordReset, "digest", now); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second consume, got %v", err)
	}
	expectMet(t, mock)
}

func TestUpdatePasswordHashUnknownAccount(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectExec("update accounts set password_hash").
		WithArgs("ghost", "hash").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := s.UpdatePasswordHash(context.Background(), "ghost", "hash"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	expectMet(t, mock)
}

func TestAccountByEmailNormalizes(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectQuery("from accounts where email").
		WithArgs("y@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "password_hash", "active", "email_verified"}).
			AddRow("acct-1", "y@example.com", "$2a$12$hash", true, false))

	a, err := s.AccountByEmail(context.Background(), "  Y@Example.com ")
	if err != nil {
		t.Fatalf("AccountByEmail: %v", err)
	}
	if a.ID != "acct-1" || !a.Active {
		t.Fatalf("unexpected account: %+v", a)
	}
	expectMet(t, mock)
}
