package memory

import (
	"context"
	"time"

	"github.com/rickymta/volcanion-auth/store"
	"github.com/rickymta/volcanion-auth/tokenstore"
)

func (s *Store) InsertRefreshToken(ctx context.Context, rec tokenstore.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.refresh[rec.Digest]; ok {
		return store.ErrConflict
	}
	s.refresh[rec.Digest] = rec
	return nil
}

func (s *Store) RefreshTokenByDigest(ctx context.Context, digest string) (tokenstore.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.refresh[digest]
	if !ok {
		return tokenstore.Record{}, store.ErrNotFound
	}
	return rec, nil
}

func (s *Store) RevokeRefreshToken(ctx context.Context, digest string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.refresh[digest]
	if !ok {
		return false, nil
	}
	rec.Revoked = true
	s.refresh[digest] = rec
	return true, nil
}

func (s *Store) RevokeAccountRefreshTokens(ctx context.Context, accountID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for digest, rec := range s.refresh {
		if rec.AccountID == accountID && !rec.Revoked {
			rec.Revoked = true
			s.refresh[digest] = rec
			n++
		}
	}
	return n, nil
}

func (s *Store) DeleteExpiredRefreshTokens(ctx context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for digest, rec := range s.refresh {
		if !now.Before(rec.ExpiresAt) {
			delete(s.refresh, digest)
			n++
		}
	}
	return n, nil
}

func (s *Store) RotateRefreshToken(ctx context.Context, oldDigest string, now time.Time, next tokenstore.Record) (tokenstore.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.refresh[oldDigest]
	if !ok || !old.Live(now) {
		return tokenstore.Record{}, store.ErrNotFound
	}
	if _, exists := s.refresh[next.Digest]; exists {
		return tokenstore.Record{}, store.ErrConflict
	}
	old.Revoked = true
	s.refresh[oldDigest] = old

	next.Device = old.Device
	next.Origin = old.Origin
	s.refresh[next.Digest] = next
	return next, nil
}

func (s *Store) InsertOneTimeToken(ctx context.Context, tok tokenstore.OneTimeToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := string(tok.Purpose) + ":" + tok.Digest
	if _, ok := s.oneTime[key]; ok {
		return store.ErrConflict
	}
	s.oneTime[key] = tok
	return nil
}

func (s *Store) ConsumeOneTimeToken(ctx context.Context, purpose tokenstore.Purpose, digest string, now time.Time) (tokenstore.OneTimeToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := string(purpose) + ":" + digest
	tok, ok := s.oneTime[key]
	if !ok || tok.Used || !now.Before(tok.ExpiresAt) {
		return tokenstore.OneTimeToken{}, store.ErrNotFound
	}
	tok.Used = true
	s.oneTime[key] = tok
	return tok, nil
}

func (s *Store) DeleteSpentOneTimeTokens(ctx context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for key, tok := range s.oneTime {
		if tok.Used || !now.Before(tok.ExpiresAt) {
			delete(s.oneTime, key)
			n++
		}
	}
	return n, nil
}
