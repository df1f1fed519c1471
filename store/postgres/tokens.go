package postgres

import (
	"context"
	"time"

	"github.com/rickymta/volcanion-auth/store"
	"github.com/rickymta/volcanion-auth/tokenstore"
)

const refreshColumns = `id, account_id, token_hash, expires_at, revoked, device, origin, created_at`

func (s *Store) InsertRefreshToken(ctx context.Context, rec tokenstore.Record) error {
	_, err := s.db.ExecContext(ctx, `
		insert into refresh_tokens(`+refreshColumns+`)
		values ($1, $2, $3, $4, $5, $6, $7, $8)
	`, rec.ID, rec.AccountID, rec.Digest, rec.ExpiresAt, rec.Revoked, rec.Device, rec.Origin, rec.CreatedAt)
	return classify(err, store.ErrConflict)
}

func (s *Store) RefreshTokenByDigest(ctx context.Context, digest string) (tokenstore.Record, error) {
	var rec tokenstore.Record
	err := s.db.QueryRowContext(ctx, `select `+refreshColumns+` from refresh_tokens where token_hash=$1`, digest).
		Scan(&rec.ID, &rec.AccountID, &rec.Digest, &rec.ExpiresAt, &rec.Revoked, &rec.Device, &rec.Origin, &rec.CreatedAt)
	if err != nil {
		return tokenstore.Record{}, classify(err, nil)
	}
	return rec, nil
}

func (s *Store) RevokeRefreshToken(ctx context.Context, digest string) (bool, error) {
	n, err := s.execCount(ctx, `update refresh_tokens set revoked=true where token_hash=$1`, digest)
	return n > 0, err
}

func (s *Store) RevokeAccountRefreshTokens(ctx context.Context, accountID string) (int64, error) {
	return s.execCount(ctx, `update refresh_tokens set revoked=true where account_id=$1 and not revoked`, accountID)
}

func (s *Store) DeleteExpiredRefreshTokens(ctx context.Context, now time.Time) (int64, error) {
	return s.execCount(ctx, `delete from refresh_tokens where expires_at <= $1`, now)
}

// RotateRefreshToken flips the old row with a conditional update so only
// one concurrent caller sees a returned row; the loser gets ErrNotFound.
func (s *Store) RotateRefreshToken(ctx context.Context, oldDigest string, now time.Time, next tokenstore.Record) (tokenstore.Record, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return tokenstore.Record{}, unavailable(err)
	}
	defer func() { _ = tx.Rollback() }()

	err = tx.QueryRowContext(ctx, `
		update refresh_tokens set revoked=true
		where token_hash=$1 and not revoked and expires_at > $2
		returning device, origin
	`, oldDigest, now).Scan(&next.Device, &next.Origin)
	if err != nil {
		return tokenstore.Record{}, classify(err, nil)
	}

	if _, err := tx.ExecContext(ctx, `
		insert into refresh_tokens(`+refreshColumns+`)
		values ($1, $2, $3, $4, false, $5, $6, $7)
	`, next.ID, next.AccountID, next.Digest, next.ExpiresAt, next.Device, next.Origin, next.CreatedAt); err != nil {
		return tokenstore.Record{}, classify(err, store.ErrConflict)
	}
	if err := tx.Commit(); err != nil {
		return tokenstore.Record{}, unavailable(err)
	}
	next.Revoked = false
	return next, nil
}

func (s *Store) InsertOneTimeToken(ctx context.Context, tok tokenstore.OneTimeToken) error {
	_, err := s.db.ExecContext(ctx, `
		insert into one_time_tokens(id, account_id, purpose, token_hash, expires_at, used, created_at)
		values ($1, $2, $3, $4, $5, $6, $7)
	`, tok.ID, tok.AccountID, string(tok.Purpose), tok.Digest, tok.ExpiresAt, tok.Used, tok.CreatedAt)
	return classify(err, store.ErrConflict)
}

func (s *Store) ConsumeOneTimeToken(ctx context.Context, purpose tokenstore.Purpose, digest string, now time.Time) (tokenstore.OneTimeToken, error) {
	var (
		tok tokenstore.OneTimeToken
		p   string
	)
	err := s.db.QueryRowContext(ctx, `
		update one_time_tokens set used=true
		where purpose=$1 and token_hash=$2 and not used and expires_at > $3
		returning id, account_id, purpose, token_hash, expires_at, used, created_at
	`, string(purpose), digest, now).Scan(&tok.ID, &tok.AccountID, &p, &tok.Digest, &tok.ExpiresAt, &tok.Used, &tok.CreatedAt)
	if err != nil {
		return tokenstore.OneTimeToken{}, classify(err, nil)
	}
	tok.Purpose = tokenstore.Purpose(p)
	return tok, nil
}

func (s *Store) DeleteSpentOneTimeTokens(ctx context.Context, now time.Time) (int64, error) {
	return s.execCount(ctx, `delete from one_time_tokens where used or expires_at <= $1`, now)
}
