package tokenstore

import (
	"context"
	"time"
)

// Repository is the persistence contract behind Store. Implementations
// return store.ErrNotFound for missing rows and wrap backend failures in
// store.ErrUnavailable.
type Repository interface {
	InsertRefreshToken(ctx context.Context, rec Record) error
	RefreshTokenByDigest(ctx context.Context, digest string) (Record, error)
	// RevokeRefreshToken marks the row revoked and reports whether it exists.
	RevokeRefreshToken(ctx context.Context, digest string) (bool, error)
	RevokeAccountRefreshTokens(ctx context.Context, accountID string) (int64, error)
	DeleteExpiredRefreshTokens(ctx context.Context, now time.Time) (int64, error)
	// RotateRefreshToken atomically revokes the live row for oldDigest and
	// inserts next, copying device and origin from the old row. It returns
	// store.ErrNotFound when no live row matched, which includes losing a
	// race against a concurrent rotation.
	RotateRefreshToken(ctx context.Context, oldDigest string, now time.Time, next Record) (Record, error)

	InsertOneTimeToken(ctx context.Context, tok OneTimeToken) error
	// ConsumeOneTimeToken flips used=true on an unused, unexpired token and
	// returns it. Any other state yields store.ErrNotFound.
	ConsumeOneTimeToken(ctx context.Context, purpose Purpose, digest string, now time.Time) (OneTimeToken, error)
	DeleteSpentOneTimeTokens(ctx context.Context, now time.Time) (int64, error)
}
