package jwt

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/rickymta/volcanion-auth/clock"
)

var (
	// ErrTokenInvalid covers bad signatures, wrong issuer or audience,
	// malformed tokens, and tokens of the wrong kind.
	ErrTokenInvalid = errors.New("token invalid")
	// ErrTokenExpired is returned only for otherwise valid tokens whose
	// expiry has passed.
	ErrTokenExpired = errors.New("token expired")
)

const (
	useAccess  = "access"
	useRefresh = "refresh"
)

// Config configures an Issuer. Access and Refresh must use distinct key
// material. Expiry strings use the "15m" / "2h" / "7d" form.
type Config struct {
	Access        KeyConfig
	Refresh       KeyConfig
	Issuer        string
	Audience      string
	AccessExpiry  string
	RefreshExpiry string
	Leeway        time.Duration
	Clock         clock.Clock
}

// Claims is the principal data embedded at issuance. SessionID is
// optional and ties both tokens to a cached session.
type Claims struct {
	AccountID   string
	Email       string
	SessionID   string
	Permissions []string
}

// AccessClaims is the decoded payload of an access token. The account id
// travels in the registered subject claim.
type AccessClaims struct {
	Email       string   `json:"email"`
	SessionID   string   `json:"sid,omitempty"`
	Permissions []string `json:"permissions"`
	Use         string   `json:"use"`
	jwt.RegisteredClaims
}

// AccountID returns the subject claim.
func (c *AccessClaims) AccountID() string { return c.Subject }

// RefreshClaims is the decoded payload of a refresh token. It carries no
// permissions; those are re-read from the permission graph on rotation.
type RefreshClaims struct {
	Email     string `json:"email"`
	SessionID string `json:"sid,omitempty"`
	Use       string `json:"use"`
	jwt.RegisteredClaims
}

// AccountID returns the subject claim.
func (c *RefreshClaims) AccountID() string { return c.Subject }

// Pair is the result of Issue. ExpiresIn is the access token lifetime in seconds.
type Pair struct {
	AccessToken      string
	RefreshToken     string
	ExpiresIn        int64
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// Issuer mints and verifies access and refresh tokens.
//
// Issuer is immutable after construction and safe for concurrent use.
type Issuer struct {
	access     *keySet
	refresh    *keySet
	issuer     string
	audience   string
	accessTTL  time.Duration
	refreshTTL time.Duration
	leeway     time.Duration
	clock      clock.Clock
}

// NewIssuer validates cfg and returns an Issuer.
func NewIssuer(cfg Config) (*Issuer, error) {
	if strings.TrimSpace(cfg.Issuer) == "" {
		return nil, errors.New("issuer must be set")
	}
	if strings.TrimSpace(cfg.Audience) == "" {
		return nil, errors.New("audience must be set")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if sameKeyMaterial(cfg.Access, cfg.Refresh) {
		return nil, errors.New("access and refresh tokens must use distinct keys")
	}

	access, err := newKeySet(cfg.Access)
	if err != nil {
		return nil, fmt.Errorf("access key: %w", err)
	}
	refresh, err := newKeySet(cfg.Refresh)
	if err != nil {
		return nil, fmt.Errorf("refresh key: %w", err)
	}
	if access.signKey == nil || refresh.signKey == nil {
		return nil, errors.New("issuer requires signing keys for both token kinds")
	}

	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real()
	}

	return &Issuer{
		access:     access,
		refresh:    refresh,
		issuer:     cfg.Issuer,
		audience:   cfg.Audience,
		accessTTL:  time.Duration(ExpiryToSeconds(cfg.AccessExpiry)) * time.Second,
		refreshTTL: refreshTTL(cfg.RefreshExpiry),
		leeway:     cfg.Leeway,
		clock:      clk,
	}, nil
}

func refreshTTL(expiry string) time.Duration {
	if expiry == "" {
		return 7 * 24 * time.Hour
	}
	return time.Duration(ExpiryToSeconds(expiry)) * time.Second
}

// AccessTTL reports the configured access token lifetime.
func (i *Issuer) AccessTTL() time.Duration { return i.accessTTL }

// RefreshTTL reports the configured refresh token lifetime.
func (i *Issuer) RefreshTTL() time.Duration { return i.refreshTTL }

// Issue mints an access token carrying c and a refresh token carrying only
// the account id and email. Every refresh token gets a fresh jti so two
// pairs issued in the same second never share a digest.
func (i *Issuer) Issue(c Claims) (Pair, error) {
	if c.AccountID == "" {
		return Pair{}, errors.New("account id required")
	}
	now := i.clock.Now()
	accessExp := now.Add(i.accessTTL)
	refreshExp := now.Add(i.refreshTTL)

	perms := c.Permissions
	if perms == nil {
		perms = []string{}
	}

	access, err := jwt.NewWithClaims(i.access.method, AccessClaims{
		Email:            c.Email,
		SessionID:        c.SessionID,
		Permissions:      perms,
		Use:              useAccess,
		RegisteredClaims: i.registered(c.AccountID, now, accessExp),
	}).SignedString(i.access.signKey)
	if err != nil {
		return Pair{}, err
	}

	refresh, err := jwt.NewWithClaims(i.refresh.method, RefreshClaims{
		Email:            c.Email,
		SessionID:        c.SessionID,
		Use:              useRefresh,
		RegisteredClaims: i.registered(c.AccountID, now, refreshExp),
	}).SignedString(i.refresh.signKey)
	if err != nil {
		return Pair{}, err
	}

	return Pair{
		AccessToken:      access,
		RefreshToken:     refresh,
		ExpiresIn:        int64(i.accessTTL / time.Second),
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

func (i *Issuer) registered(subject string, now, exp time.Time) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    i.issuer,
		Audience:  jwt.ClaimStrings{i.audience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
		ID:        uuid.NewString(),
	}
}

// VerifyAccess validates signature, issuer, audience and expiry of an
// access token.
func (i *Issuer) VerifyAccess(token string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := i.parse(token, claims, i.access); err != nil {
		return nil, err
	}
	if claims.Use != useAccess || claims.Subject == "" {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

// VerifyRefresh validates a refresh token against the refresh key.
func (i *Issuer) VerifyRefresh(token string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := i.parse(token, claims, i.refresh); err != nil {
		return nil, err
	}
	if claims.Use != useRefresh || claims.Subject == "" {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

func (i *Issuer) parse(token string, claims jwt.Claims, keys *keySet) error {
	if token == "" {
		return ErrTokenInvalid
	}
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{keys.method.Alg()}),
		jwt.WithIssuer(i.issuer),
		jwt.WithAudience(i.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.clock.Now),
	}
	if i.leeway > 0 {
		options = append(options, jwt.WithLeeway(i.leeway))
	}

	parsed, err := jwt.NewParser(options...).ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != keys.method.Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		return keys.verifyKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ErrTokenExpired
		}
		return fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if !parsed.Valid {
		return ErrTokenInvalid
	}
	return nil
}
