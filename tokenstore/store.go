package tokenstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rickymta/volcanion-auth/clock"
	"github.com/rickymta/volcanion-auth/internal"
	"github.com/rickymta/volcanion-auth/internal/ids"
	"github.com/rickymta/volcanion-auth/store"
)

// DefaultRefreshTTL is the refresh record lifetime when none is configured.
const DefaultRefreshTTL = 7 * 24 * time.Hour

// ErrRotationConflict is returned by Rotate when the presented token was
// no longer live at the moment of the conditional update.
var ErrRotationConflict = errors.New("refresh token already rotated")

// Store persists refresh tokens and single-use tokens by digest.
type Store struct {
	repo       Repository
	clock      clock.Clock
	refreshTTL time.Duration
}

// New creates a Store. A non-positive refreshTTL falls back to
// DefaultRefreshTTL and a nil clock to the wall clock.
func New(repo Repository, clk clock.Clock, refreshTTL time.Duration) *Store {
	if clk == nil {
		clk = clock.Real()
	}
	if refreshTTL <= 0 {
		refreshTTL = DefaultRefreshTTL
	}
	return &Store{repo: repo, clock: clk, refreshTTL: refreshTTL}
}

// Digest returns the value under which raw is persisted.
func Digest(raw string) string {
	return internal.DigestToken(raw)
}

// SaveRefresh persists a new refresh record expiring after the configured TTL.
func (s *Store) SaveRefresh(ctx context.Context, accountID, raw, device, origin string) (Record, error) {
	if accountID == "" || raw == "" {
		return Record{}, errors.New("account id and token required")
	}
	rec := s.newRecord(accountID, raw)
	rec.Device = device
	rec.Origin = origin
	if err := s.repo.InsertRefreshToken(ctx, rec); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// Lookup returns the record for raw in any state.
func (s *Store) Lookup(ctx context.Context, raw string) (Record, error) {
	return s.repo.RefreshTokenByDigest(ctx, Digest(raw))
}

// FindLiveRefresh returns the record only if it is neither revoked nor
// expired; otherwise store.ErrNotFound.
func (s *Store) FindLiveRefresh(ctx context.Context, raw string) (Record, error) {
	rec, err := s.Lookup(ctx, raw)
	if err != nil {
		return Record{}, err
	}
	if !rec.Live(s.clock.Now()) {
		return Record{}, store.ErrNotFound
	}
	return rec, nil
}

// Revoke marks the record for raw revoked. Repeating it is harmless; the
// result reports whether a record for raw exists at all.
func (s *Store) Revoke(ctx context.Context, raw string) (bool, error) {
	return s.repo.RevokeRefreshToken(ctx, Digest(raw))
}

// RevokeAll revokes every refresh record of an account.
func (s *Store) RevokeAll(ctx context.Context, accountID string) (int64, error) {
	return s.repo.RevokeAccountRefreshTokens(ctx, accountID)
}

// PurgeExpired deletes records whose expiry has passed.
func (s *Store) PurgeExpired(ctx context.Context) (int64, error) {
	return s.repo.DeleteExpiredRefreshTokens(ctx, s.clock.Now())
}

// Rotate exchanges oldRaw for newRaw in one atomic step. Of any number of
// concurrent callers presenting the same oldRaw, exactly one succeeds and
// the rest receive ErrRotationConflict.
func (s *Store) Rotate(ctx context.Context, oldRaw, newRaw, accountID string) (Record, error) {
	next := s.newRecord(accountID, newRaw)
	rec, err := s.repo.RotateRefreshToken(ctx, Digest(oldRaw), s.clock.Now(), next)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Record{}, ErrRotationConflict
		}
		return Record{}, err
	}
	return rec, nil
}

func (s *Store) newRecord(accountID, raw string) Record {
	now := s.clock.Now()
	return Record{
		ID:        ids.New(),
		AccountID: accountID,
		Digest:    Digest(raw),
		ExpiresAt: now.Add(s.refreshTTL),
		CreatedAt: now,
	}
}

// IssueOneTime creates a single-use token for accountID and returns the raw
// value for delivery. Only its digest is stored.
func (s *Store) IssueOneTime(ctx context.Context, purpose Purpose, accountID string, ttl time.Duration) (string, OneTimeToken, error) {
	if !purpose.Valid() {
		return "", OneTimeToken{}, fmt.Errorf("unknown token purpose %q", purpose)
	}
	if ttl <= 0 {
		return "", OneTimeToken{}, errors.New("one-time token ttl must be positive")
	}
	raw, err := internal.NewOpaqueToken()
	if err != nil {
		return "", OneTimeToken{}, err
	}
	now := s.clock.Now()
	tok := OneTimeToken{
		ID:        ids.New(),
		AccountID: accountID,
		Purpose:   purpose,
		Digest:    Digest(raw),
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}
	if err := s.repo.InsertOneTimeToken(ctx, tok); err != nil {
		return "", OneTimeToken{}, err
	}
	return raw, tok, nil
}

// ConsumeOneTime redeems raw and returns the owning account id. A second
// redemption, an expired token or an unknown token all yield
// store.ErrNotFound.
func (s *Store) ConsumeOneTime(ctx context.Context, purpose Purpose, raw string) (string, error) {
	if raw == "" {
		return "", store.ErrNotFound
	}
	tok, err := s.repo.ConsumeOneTimeToken(ctx, purpose, Digest(raw), s.clock.Now())
	if err != nil {
		return "", err
	}
	return tok.AccountID, nil
}

// PurgeSpentOneTime deletes used or expired single-use tokens.
func (s *Store) PurgeSpentOneTime(ctx context.Context) (int64, error) {
	return s.repo.DeleteSpentOneTimeTokens(ctx, s.clock.Now())
}
