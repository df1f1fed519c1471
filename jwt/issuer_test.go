package jwt

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"testing"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"

	"github.com/rickymta/volcanion-auth/clock"
)

var (
	accessSecret  = []byte("access-secret-access-secret-0123456789")
	refreshSecret = []byte("refresh-secret-refresh-secret-0123456789")
)

func newTestIssuer(t *testing.T, clk clock.Clock) *Issuer {
	t.Helper()
	iss, err := NewIssuer(Config{
		Access:        KeyConfig{SigningMethod: MethodHS256, PrivateKey: accessSecret},
		Refresh:       KeyConfig{SigningMethod: MethodHS256, PrivateKey: refreshSecret},
		Issuer:        "volcanion-auth",
		Audience:      "volcanion-api",
		AccessExpiry:  "15m",
		RefreshExpiry: "7d",
		Clock:         clk,
	})
	if err != nil {
		t.Fatalf("new issuer: %v", err)
	}
	return iss
}

func TestIssueAndVerifyPair(t *testing.T) {
	clk := clock.NewFake(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	iss := newTestIssuer(t, clk)

	pair, err := iss.Issue(Claims{AccountID: "acc-1", Email: "x@example.com", SessionID: "s-1", Permissions: []string{"articles.update"}})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if pair.ExpiresIn != 900 {
		t.Fatalf("expected 900s access lifetime, got %d", pair.ExpiresIn)
	}

	access, err := iss.VerifyAccess(pair.AccessToken)
	if err != nil {
		t.Fatalf("verify access: %v", err)
	}
	if access.AccountID() != "acc-1" || access.Email != "x@example.com" {
		t.Fatalf("unexpected access claims: %+v", access)
	}
	if len(access.Permissions) != 1 || access.Permissions[0] != "articles.update" {
		t.Fatalf("unexpected permissions: %v", access.Permissions)
	}

	refresh, err := iss.VerifyRefresh(pair.RefreshToken)
	if err != nil {
		t.Fatalf("verify refresh: %v", err)
	}
	if refresh.AccountID() != "acc-1" || refresh.ID == "" {
		t.Fatalf("unexpected refresh claims: %+v", refresh)
	}
	if access.SessionID != "s-1" || refresh.SessionID != "s-1" {
		t.Fatalf("session id not carried: access=%q refresh=%q", access.SessionID, refresh.SessionID)
	}
}

func TestRefreshTokensAreUnique(t *testing.T) {
	iss := newTestIssuer(t, clock.NewFake(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)))
	a, err := iss.Issue(Claims{AccountID: "acc-1"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	b, err := iss.Issue(Claims{AccountID: "acc-1"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if a.RefreshToken == b.RefreshToken {
		t.Fatal("expected distinct refresh tokens at the same instant")
	}
}

func TestTokenKindsDoNotCrossVerify(t *testing.T) {
	iss := newTestIssuer(t, nil)
	pair, err := iss.Issue(Claims{AccountID: "acc-1"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := iss.VerifyAccess(pair.RefreshToken); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected refresh token to fail access verification, got %v", err)
	}
	if _, err := iss.VerifyRefresh(pair.AccessToken); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected access token to fail refresh verification, got %v", err)
	}
}

func TestExpiredVersusInvalid(t *testing.T) {
	clk := clock.NewFake(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	iss := newTestIssuer(t, clk)
	pair, err := iss.Issue(Claims{AccountID: "acc-1"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	clk.Advance(16 * time.Minute)
	if _, err := iss.VerifyAccess(pair.AccessToken); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
	if _, err := iss.VerifyRefresh(pair.RefreshToken); err != nil {
		t.Fatalf("refresh should still be valid: %v", err)
	}

	tampered := pair.AccessToken + "x"
	if _, err := iss.VerifyAccess(tampered); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid for tampered token, got %v", err)
	}
	if _, err := iss.VerifyAccess("not-a-token"); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid for garbage, got %v", err)
	}
}

func TestVerifyRejectsWrongIssuerAndAudience(t *testing.T) {
	iss := newTestIssuer(t, nil)
	now := time.Now()
	for _, rc := range []gjwt.RegisteredClaims{
		{Subject: "acc-1", Issuer: "someone-else", Audience: gjwt.ClaimStrings{"volcanion-api"}, ExpiresAt: gjwt.NewNumericDate(now.Add(time.Minute))},
		{Subject: "acc-1", Issuer: "volcanion-auth", Audience: gjwt.ClaimStrings{"other-api"}, ExpiresAt: gjwt.NewNumericDate(now.Add(time.Minute))},
	} {
		token, err := gjwt.NewWithClaims(gjwt.SigningMethodHS256, AccessClaims{Use: useAccess, RegisteredClaims: rc}).SignedString(accessSecret)
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		if _, err := iss.VerifyAccess(token); !errors.Is(err, ErrTokenInvalid) {
			t.Fatalf("expected ErrTokenInvalid for %+v, got %v", rc, err)
		}
	}
}

func TestVerifyRejectsWrongAlgorithm(t *testing.T) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate ed25519 key: %v", err)
	}
	iss := newTestIssuer(t, nil)
	claims := AccessClaims{Use: useAccess, RegisteredClaims: gjwt.RegisteredClaims{
		Subject:   "acc-1",
		Issuer:    "volcanion-auth",
		Audience:  gjwt.ClaimStrings{"volcanion-api"},
		ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute)),
	}}
	token, err := gjwt.NewWithClaims(gjwt.SigningMethodEdDSA, claims).SignedString(priv)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := iss.VerifyAccess(token); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected wrong algorithm to be rejected, got %v", err)
	}
}

func TestEd25519AccessKeys(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate ed25519 key: %v", err)
	}
	iss, err := NewIssuer(Config{
		Access:   KeyConfig{SigningMethod: MethodEd25519, PrivateKey: priv, PublicKey: pub},
		Refresh:  KeyConfig{SigningMethod: MethodHS256, PrivateKey: refreshSecret},
		Issuer:   "volcanion-auth",
		Audience: "volcanion-api",
	})
	if err != nil {
		t.Fatalf("new issuer: %v", err)
	}
	pair, err := iss.Issue(Claims{AccountID: "acc-1"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := iss.VerifyAccess(pair.AccessToken); err != nil {
		t.Fatalf("verify access: %v", err)
	}
}

func TestNewIssuerValidation(t *testing.T) {
	base := Config{
		Access:   KeyConfig{PrivateKey: accessSecret},
		Refresh:  KeyConfig{PrivateKey: refreshSecret},
		Issuer:   "volcanion-auth",
		Audience: "volcanion-api",
	}

	same := base
	same.Refresh = same.Access
	if _, err := NewIssuer(same); err == nil {
		t.Fatal("expected shared key material to be rejected")
	}

	short := base
	short.Access = KeyConfig{PrivateKey: []byte("short")}
	if _, err := NewIssuer(short); err == nil {
		t.Fatal("expected short hs256 secret to be rejected")
	}

	noAud := base
	noAud.Audience = ""
	if _, err := NewIssuer(noAud); err == nil {
		t.Fatal("expected missing audience to be rejected")
	}
}
