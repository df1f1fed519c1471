package volcanion

import (
	"context"
	"errors"
	"fmt"

	"github.com/rickymta/volcanion-auth/internal/limiters"
	"github.com/rickymta/volcanion-auth/jwt"
	"github.com/rickymta/volcanion-auth/password"
	"github.com/rickymta/volcanion-auth/permission"
	"github.com/rickymta/volcanion-auth/session"
	"github.com/rickymta/volcanion-auth/store"
	"github.com/rickymta/volcanion-auth/tokenstore"
)

var (
	// ErrInvalidCredentials covers unknown accounts, inactive accounts and
	// wrong passwords alike so callers cannot enumerate accounts.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrEmailNotVerified is returned by Login when
	// EmailVerification.RequireForLogin is set and the password was correct
	// but the email is unverified. It wraps ErrInvalidCredentials.
	ErrEmailNotVerified = fmt.Errorf("email not verified: %w", ErrInvalidCredentials)
	// ErrAccountLocked is returned while the (email, origin) pair is over
	// the failed-attempt threshold. It never carries the attempt count.
	ErrAccountLocked = errors.New("account locked")
	// ErrTokenInvalid reports a token that failed verification for any
	// reason other than expiry.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrTokenExpired reports a correctly signed token past its expiry.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenRevoked reports a refresh token that is no longer live in the
	// token store, including the loser of a concurrent rotation.
	ErrTokenRevoked = errors.New("token revoked")
	// ErrRefreshReuse is returned when an already revoked refresh token is
	// presented again. It wraps ErrTokenRevoked.
	ErrRefreshReuse = fmt.Errorf("refresh token reuse detected: %w", ErrTokenRevoked)
	// ErrPermissionDenied is returned by authorization checks that fail.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrNotFound reports a missing account, role, permission, edge or session.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateName reports a role or permission name already in use.
	ErrDuplicateName = errors.New("duplicate name")
	// ErrDuplicateGrant reports an account already actively holding an edge.
	ErrDuplicateGrant = errors.New("duplicate grant")
	// ErrStoreUnavailable wraps relational and cache backend failures,
	// including per-call timeouts.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrCredentialFormat reports a stored password digest that cannot be parsed.
	ErrCredentialFormat = errors.New("credential format invalid")
	// ErrRateLimited is returned when password reset or verification
	// requests exceed their window budget.
	ErrRateLimited = errors.New("rate limited")
	// ErrInvalidInput reports missing or malformed arguments.
	ErrInvalidInput = errors.New("invalid input")
	// ErrFeatureDisabled is returned by optional flows turned off in Config.
	ErrFeatureDisabled = errors.New("feature disabled")
	// ErrEngineNotReady is returned when an Engine method is called on a nil
	// or partially built engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)

// Kind is the closed set of outcome classes an Engine operation can report.
type Kind int

const (
	KindInternal Kind = iota
	KindInvalidCredentials
	KindAccountLocked
	KindTokenInvalid
	KindTokenExpired
	KindTokenRevoked
	KindPermissionDenied
	KindNotFound
	KindDuplicateName
	KindDuplicateGrant
	KindStoreUnavailable
	KindCredentialFormat
	KindRateLimited
	KindInvalidInput
)

var kindNames = [...]string{
	KindInternal:           "internal",
	KindInvalidCredentials: "invalid_credentials",
	KindAccountLocked:      "account_locked",
	KindTokenInvalid:       "token_invalid",
	KindTokenExpired:       "token_expired",
	KindTokenRevoked:       "token_revoked",
	KindPermissionDenied:   "permission_denied",
	KindNotFound:           "not_found",
	KindDuplicateName:      "duplicate_name",
	KindDuplicateGrant:     "duplicate_grant",
	KindStoreUnavailable:   "store_unavailable",
	KindCredentialFormat:   "credential_format",
	KindRateLimited:        "rate_limited",
	KindInvalidInput:       "invalid_input",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "unknown"
	}
	return kindNames[k]
}

// KindOf classifies err, including sentinels from the sub-packages.
// Unrecognized and nil errors report KindInternal.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindInternal
	case errors.Is(err, ErrInvalidCredentials):
		return KindInvalidCredentials
	case errors.Is(err, ErrAccountLocked):
		return KindAccountLocked
	case errors.Is(err, ErrTokenExpired), errors.Is(err, jwt.ErrTokenExpired):
		return KindTokenExpired
	case errors.Is(err, ErrTokenInvalid), errors.Is(err, jwt.ErrTokenInvalid):
		return KindTokenInvalid
	case errors.Is(err, ErrTokenRevoked), errors.Is(err, tokenstore.ErrRotationConflict):
		return KindTokenRevoked
	case errors.Is(err, ErrPermissionDenied):
		return KindPermissionDenied
	case errors.Is(err, ErrDuplicateGrant), errors.Is(err, permission.ErrDuplicateGrant):
		return KindDuplicateGrant
	case errors.Is(err, ErrDuplicateName),
		errors.Is(err, permission.ErrDuplicateName),
		errors.Is(err, permission.ErrDuplicateEdge),
		errors.Is(err, store.ErrConflict):
		return KindDuplicateName
	case errors.Is(err, ErrCredentialFormat), errors.Is(err, password.ErrCredentialFormat):
		return KindCredentialFormat
	case errors.Is(err, ErrRateLimited), errors.Is(err, limiters.ErrRequestRateLimited):
		return KindRateLimited
	case errors.Is(err, ErrInvalidInput),
		errors.Is(err, permission.ErrInvalidInput),
		errors.Is(err, permission.ErrInactive),
		errors.Is(err, password.ErrEmptyPassword):
		return KindInvalidInput
	case errors.Is(err, ErrNotFound),
		errors.Is(err, store.ErrNotFound),
		errors.Is(err, session.ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrStoreUnavailable),
		errors.Is(err, store.ErrUnavailable),
		errors.Is(err, session.ErrRedisUnavailable),
		errors.Is(err, limiters.ErrAttemptsUnavailable),
		errors.Is(err, limiters.ErrRequestUnavailable),
		errors.Is(err, context.DeadlineExceeded):
		return KindStoreUnavailable
	default:
		return KindInternal
	}
}
