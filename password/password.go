package password

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrCredentialFormat reports a stored digest that cannot be parsed.
	// It is distinct from a mismatch, which Verify reports as false.
	ErrCredentialFormat = errors.New("credential digest malformed")
	// ErrEmptyPassword rejects hashing an empty plaintext.
	ErrEmptyPassword = errors.New("password must not be empty")
)

// Algorithm selects the scheme used for new digests.
type Algorithm string

const (
	// AlgorithmBcrypt produces $2a$ digests.
	AlgorithmBcrypt Algorithm = "bcrypt"
	// AlgorithmArgon2id produces PHC-encoded argon2id digests.
	AlgorithmArgon2id Algorithm = "argon2id"
)

// Config selects the hashing scheme and its cost parameters.
type Config struct {
	Algorithm  Algorithm
	BcryptCost int
	Argon2     Argon2Config
}

// DefaultConfig returns bcrypt at cost 12.
func DefaultConfig() Config {
	return Config{
		Algorithm:  AlgorithmBcrypt,
		BcryptCost: DefaultBcryptCost,
		Argon2:     DefaultArgon2Config(),
	}
}

// Hasher hashes new passwords with the configured algorithm and verifies
// digests produced by either supported algorithm, so stored credentials
// survive an algorithm switch.
//
// Hasher is immutable after construction and safe for concurrent use.
type Hasher struct {
	algorithm Algorithm
	bcrypt    *bcryptHasher
	argon2    *argon2Hasher
}

// New validates cfg and returns a Hasher.
func New(cfg Config) (*Hasher, error) {
	if cfg.Algorithm == "" {
		cfg.Algorithm = AlgorithmBcrypt
	}
	if cfg.Algorithm != AlgorithmBcrypt && cfg.Algorithm != AlgorithmArgon2id {
		return nil, fmt.Errorf("unsupported password algorithm %q", cfg.Algorithm)
	}

	b, err := newBcrypt(cfg.BcryptCost)
	if err != nil {
		return nil, err
	}

	argonCfg := cfg.Argon2
	if argonCfg == (Argon2Config{}) {
		argonCfg = DefaultArgon2Config()
	}
	a, err := newArgon2(argonCfg)
	if err != nil {
		return nil, err
	}

	return &Hasher{algorithm: cfg.Algorithm, bcrypt: b, argon2: a}, nil
}

// Algorithm reports the scheme used for new digests.
func (h *Hasher) Algorithm() Algorithm {
	return h.algorithm
}

// Hash derives a salted digest of password. Equal inputs produce
// different digests.
func (h *Hasher) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}
	if h.algorithm == AlgorithmArgon2id {
		return h.argon2.hash(password)
	}
	return h.bcrypt.hash(password)
}

// Verify reports whether password matches digest. A mismatch returns
// (false, nil); a digest in no recognizable format returns
// ErrCredentialFormat.
func (h *Hasher) Verify(password, digest string) (bool, error) {
	switch {
	case isBcryptDigest(digest):
		return h.bcrypt.verify(password, digest)
	case strings.HasPrefix(digest, argon2Prefix):
		return h.argon2.verify(password, digest)
	default:
		return false, fmt.Errorf("%w: unrecognized digest prefix", ErrCredentialFormat)
	}
}

// NeedsUpgrade reports whether digest was produced by another algorithm
// or with weaker parameters than the current configuration.
func (h *Hasher) NeedsUpgrade(digest string) (bool, error) {
	switch {
	case isBcryptDigest(digest):
		if h.algorithm != AlgorithmBcrypt {
			return true, nil
		}
		return h.bcrypt.needsUpgrade(digest)
	case strings.HasPrefix(digest, argon2Prefix):
		if h.algorithm != AlgorithmArgon2id {
			return true, nil
		}
		return h.argon2.needsUpgrade(digest)
	default:
		return false, fmt.Errorf("%w: unrecognized digest prefix", ErrCredentialFormat)
	}
}
