package password

import (
	"errors"
	"strings"
	"testing"
)

func argonConfig() Config {
	return Config{
		Algorithm:  AlgorithmArgon2id,
		BcryptCost: 4,
		Argon2: Argon2Config{
			Memory:      65536,
			Time:        3,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
		},
	}
}

func TestArgon2HashAndVerify(t *testing.T) {
	hasher, err := New(argonConfig())
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	hash, err := hasher.Hash("P@ssw0rd-Ascii")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	if !strings.HasPrefix(hash, "$argon2id$v=19$m=65536,t=3,p=2$") {
		t.Fatalf("unexpected PHC prefix: %s", hash)
	}

	ok, err := hasher.Verify("P@ssw0rd-Ascii", hash)
	if err != nil {
		t.Fatalf("Verify error: %v", err)
	}
	if !ok {
		t.Fatal("expected password verification to succeed")
	}

	ok, err = hasher.Verify("wrong-password", hash)
	if err != nil {
		t.Fatalf("Verify error: %v", err)
	}
	if ok {
		t.Fatal("expected wrong password verification to fail")
	}
}

func TestArgon2NeedsUpgrade(t *testing.T) {
	weak := argonConfig()
	weak.Argon2.Memory = 32768
	weak.Argon2.Time = 2
	oldHasher, err := New(weak)
	if err != nil {
		t.Fatalf("New(old) error: %v", err)
	}
	hash, err := oldHasher.Hash("test-password")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}

	newHasher, err := New(argonConfig())
	if err != nil {
		t.Fatalf("New(new) error: %v", err)
	}
	upgrade, err := newHasher.NeedsUpgrade(hash)
	if err != nil {
		t.Fatalf("NeedsUpgrade error: %v", err)
	}
	if !upgrade {
		t.Fatal("expected weaker parameters to need upgrade")
	}
}

func TestArgon2MalformedDigest(t *testing.T) {
	hasher, err := New(argonConfig())
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	cases := []string{
		"$argon2id$v=19$m=65536,t=3$c2FsdHNhbHRzYWx0c2FsdA$aGFzaA",
		"$argon2id$v=18$m=65536,t=3,p=2$c2FsdHNhbHRzYWx0c2FsdA$aGFzaA",
		"$argon2id$v=19$m=65536,t=3,p=2$!!!$aGFzaA",
		"$argon2id$v=19$m=1,t=3,p=2$c2FsdHNhbHRzYWx0c2FsdA$aGFzaA",
	}
	for _, digest := range cases {
		if _, err := hasher.Verify("whatever", digest); !errors.Is(err, ErrCredentialFormat) {
			t.Fatalf("digest %q: expected ErrCredentialFormat, got %v", digest, err)
		}
	}
}

func TestArgon2ConfigValidation(t *testing.T) {
	cfg := argonConfig()
	cfg.Argon2.SaltLength = 8
	if _, err := New(cfg); err == nil {
		t.Fatal("expected short salt to be rejected")
	}
}

func TestDecodeArgon2(t *testing.T) {
	hasher, err := New(argonConfig())
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	digest, err := hasher.Hash("round-trip")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	fields := strings.Split(digest, "$")
	if strings.HasSuffix(fields[4], "=") || strings.HasSuffix(fields[5], "=") {
		t.Fatalf("salt and key must be unpadded: %s", digest)
	}
	d, err := decodeArgon2(digest)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if d.memory != 65536 || d.time != 3 || d.threads != 2 || len(d.salt) != 16 || len(d.key) != 32 {
		t.Fatalf("unexpected decode %+v", d)
	}
	if d.String() != digest {
		t.Fatalf("re-encode mismatch:\n%s\n%s", d.String(), digest)
	}

	// Parameters in another order and padded base64 both decode.
	padded := "$argon2id$v=19$p=2,m=65536,t=3$c2FsdHNhbHRzYWx0c2FsdA==$aGFzaGhhc2g="
	if _, err := decodeArgon2(padded); err != nil {
		t.Fatalf("padded digest: %v", err)
	}

	for _, bad := range []string{
		"$argon2id$v=19$m=65536,t=3,p=2,x=1$c2FsdHNhbHRzYWx0c2FsdA$aGFzaA",
		"$argon2id$v=19$m=65536,m=65536,t=3$c2FsdHNhbHRzYWx0c2FsdA$aGFzaA",
		"$argon2id$v=19$m=65536,t=0,p=2$c2FsdHNhbHRzYWx0c2FsdA$aGFzaA",
		"$argon2id$v=19$m=65536,t=3,p=300$c2FsdHNhbHRzYWx0c2FsdA$aGFzaA",
		"$argon2id$v=19$m=65536,t=3,p=2$c2FsdA$aGFzaA",
		"$argon2id$v=19$m=65536,t=3,p=2$c2FsdHNhbHRzYWx0c2FsdA$",
		"$argon2i$v=19$m=65536,t=3,p=2$c2FsdHNhbHRzYWx0c2FsdA$aGFzaA",
	} {
		if _, err := decodeArgon2(bad); err == nil {
			t.Fatalf("expected %q to be rejected", bad)
		}
	}
}
