package internal

import "testing"

func TestSessionIDRoundTrip(t *testing.T) {
	sid, err := NewSessionID()
	if err != nil {
		t.Fatalf("new session id: %v", err)
	}
	parsed, err := ParseSessionID(sid.String())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed != sid {
		t.Fatal("round trip mismatch")
	}
	if _, err := ParseSessionID("short"); err == nil {
		t.Fatal("expected short id to be rejected")
	}
}

func TestDigestTokenIsStableHex(t *testing.T) {
	a := DigestToken("token-value")
	if a != DigestToken("token-value") {
		t.Fatal("expected deterministic digest")
	}
	if len(a) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(a))
	}
	if a == DigestToken("token-valuf") {
		t.Fatal("expected distinct digests")
	}
}

func TestOpaqueTokensDiffer(t *testing.T) {
	a, err := NewOpaqueToken()
	if err != nil {
		t.Fatalf("new token: %v", err)
	}
	b, err := NewOpaqueToken()
	if err != nil {
		t.Fatalf("new token: %v", err)
	}
	if a == b || len(a) != 43 {
		t.Fatalf("unexpected tokens %q %q", a, b)
	}
}
