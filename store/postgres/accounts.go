package postgres

import (
	"context"
	"time"

	"github.com/rickymta/volcanion-auth/account"
	"github.com/rickymta/volcanion-auth/store"
)

const accountColumns = `id, email, password_hash, active, email_verified`

// CreateAccount inserts an account row. Emails are stored normalized.
func (s *Store) CreateAccount(ctx context.Context, a account.Account) error {
	_, err := s.db.ExecContext(ctx, `
		insert into accounts(id, email, password_hash, active, email_verified, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $6)
	`, a.ID, account.NormalizeEmail(a.Email), a.PasswordHash, a.Active, a.EmailVerified, time.Now().UTC())
	return classify(err, store.ErrConflict)
}

func (s *Store) AccountByEmail(ctx context.Context, email string) (account.Account, error) {
	return s.scanAccount(ctx, `select `+accountColumns+` from accounts where email=$1`, account.NormalizeEmail(email))
}

func (s *Store) AccountByID(ctx context.Context, id string) (account.Account, error) {
	return s.scanAccount(ctx, `select `+accountColumns+` from accounts where id=$1`, id)
}

func (s *Store) scanAccount(ctx context.Context, query string, arg string) (account.Account, error) {
	var a account.Account
	err := s.db.QueryRowContext(ctx, query, arg).Scan(&a.ID, &a.Email, &a.PasswordHash, &a.Active, &a.EmailVerified)
	if err != nil {
		return account.Account{}, classify(err, nil)
	}
	return a, nil
}

func (s *Store) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	return s.execOne(ctx, `update accounts set password_hash=$2, updated_at=now() where id=$1`, id, hash)
}

func (s *Store) MarkEmailVerified(ctx context.Context, id string) error {
	return s.execOne(ctx, `update accounts set email_verified=true, updated_at=now() where id=$1`, id)
}
