package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

const argon2Prefix = "$argon2id$"

// Lower bounds applied to both configuration and stored digests.
const (
	argon2MinMemoryKiB = 8 * 1024
	argon2MinSaltLen   = 16
	argon2MinKeyLen    = 16
)

// Argon2Config tunes the argon2id cost parameters. Memory is in KiB.
type Argon2Config struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultArgon2Config returns 64 MiB, three passes and two lanes.
func DefaultArgon2Config() Argon2Config {
	return Argon2Config{
		Memory:      64 * 1024,
		Time:        3,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
	}
}

func (c Argon2Config) validate() error {
	switch {
	case c.Memory < argon2MinMemoryKiB:
		return fmt.Errorf("argon2 memory must be at least %d KiB", argon2MinMemoryKiB)
	case c.Time == 0:
		return errors.New("argon2 time must be positive")
	case c.Parallelism == 0:
		return errors.New("argon2 parallelism must be positive")
	case c.SaltLength < argon2MinSaltLen:
		return fmt.Errorf("argon2 salt length must be at least %d", argon2MinSaltLen)
	case c.KeyLength < argon2MinKeyLen:
		return fmt.Errorf("argon2 key length must be at least %d", argon2MinKeyLen)
	}
	return nil
}

// argon2Digest is one decoded PHC string.
type argon2Digest struct {
	memory  uint32
	time    uint32
	threads uint8
	salt    []byte
	key     []byte
}

func (d argon2Digest) derive(password string) []byte {
	return argon2.IDKey([]byte(password), d.salt, d.time, d.memory, d.threads, uint32(len(d.key)))
}

func (d argon2Digest) String() string {
	return fmt.Sprintf("%sv=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2Prefix, argon2.Version, d.memory, d.time, d.threads,
		base64.RawStdEncoding.EncodeToString(d.salt),
		base64.RawStdEncoding.EncodeToString(d.key))
}

// decodeArgon2 parses $argon2id$v=19$m=..,t=..,p=..$salt$key. Salt and key
// are read with or without base64 padding.
func decodeArgon2(s string) (argon2Digest, error) {
	var d argon2Digest
	rest, ok := strings.CutPrefix(s, argon2Prefix)
	if !ok {
		return d, errors.New("not an argon2id digest")
	}
	fields := strings.Split(rest, "$")
	if len(fields) != 4 {
		return d, errors.New("want version, params, salt and key")
	}
	if fields[0] != "v="+strconv.Itoa(argon2.Version) {
		return d, fmt.Errorf("unsupported version %q", fields[0])
	}
	if err := d.setParams(fields[1]); err != nil {
		return d, err
	}

	var err error
	if d.salt, err = decodeB64(fields[2]); err != nil || len(d.salt) < argon2MinSaltLen {
		return d, errors.New("bad salt")
	}
	if d.key, err = decodeB64(fields[3]); err != nil || len(d.key) == 0 {
		return d, errors.New("bad key")
	}
	return d, nil
}

// setParams reads exactly m, t and p, in any order.
func (d *argon2Digest) setParams(s string) error {
	seen := map[string]bool{}
	for _, kv := range strings.Split(s, ",") {
		name, raw, ok := strings.Cut(kv, "=")
		if !ok || seen[name] {
			return fmt.Errorf("bad parameter %q", kv)
		}
		seen[name] = true

		bits := 32
		if name == "p" {
			bits = 8
		}
		v, err := strconv.ParseUint(raw, 10, bits)
		if err != nil || v == 0 {
			return fmt.Errorf("bad parameter %q", kv)
		}
		switch name {
		case "m":
			if v < argon2MinMemoryKiB {
				return fmt.Errorf("memory %d below minimum", v)
			}
			d.memory = uint32(v)
		case "t":
			d.time = uint32(v)
		case "p":
			d.threads = uint8(v)
		default:
			return fmt.Errorf("unknown parameter %q", name)
		}
	}
	if len(seen) != 3 {
		return errors.New("m, t and p are required")
	}
	return nil
}

func decodeB64(s string) ([]byte, error) {
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
}

type argon2Hasher struct {
	config Argon2Config
}

func newArgon2(cfg Argon2Config) (*argon2Hasher, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &argon2Hasher{config: cfg}, nil
}

// hash uses the password bytes as given; no Unicode normalization.
func (a *argon2Hasher) hash(password string) (string, error) {
	d := argon2Digest{
		memory:  a.config.Memory,
		time:    a.config.Time,
		threads: a.config.Parallelism,
		salt:    make([]byte, a.config.SaltLength),
	}
	if _, err := rand.Read(d.salt); err != nil {
		return "", err
	}
	d.key = argon2.IDKey([]byte(password), d.salt, d.time, d.memory, d.threads, a.config.KeyLength)
	return d.String(), nil
}

func (a *argon2Hasher) verify(password, digest string) (bool, error) {
	d, err := decodeArgon2(digest)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrCredentialFormat, err)
	}
	return subtle.ConstantTimeCompare(d.derive(password), d.key) == 1, nil
}

func (a *argon2Hasher) needsUpgrade(digest string) (bool, error) {
	d, err := decodeArgon2(digest)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrCredentialFormat, err)
	}
	c := a.config
	return d.memory < c.Memory || d.time < c.Time || d.threads < c.Parallelism ||
		uint32(len(d.key)) != c.KeyLength, nil
}
