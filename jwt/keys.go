package jwt

import (
	"bytes"
	"crypto/ed25519"
	"errors"

	"github.com/golang-jwt/jwt/v5"
)

// SigningMethod names the algorithm used for one token kind.
type SigningMethod string

const (
	// MethodHS256 signs with a shared HMAC secret.
	MethodHS256 SigningMethod = "hs256"
	// MethodEd25519 signs with an Ed25519 private key and verifies with its public key.
	MethodEd25519 SigningMethod = "ed25519"
)

const minHMACSecret = 32

// KeyConfig holds the key material for one token kind. For HS256 only
// PrivateKey is used and holds the shared secret.
type KeyConfig struct {
	SigningMethod SigningMethod
	PrivateKey    []byte
	PublicKey     []byte
}

type keySet struct {
	method    jwt.SigningMethod
	signKey   any
	verifyKey any
}

func newKeySet(cfg KeyConfig) (*keySet, error) {
	switch cfg.SigningMethod {
	case MethodHS256, "":
		if len(cfg.PrivateKey) < minHMACSecret {
			return nil, errors.New("hs256 secret must be at least 32 bytes")
		}
		return &keySet{
			method:    jwt.SigningMethodHS256,
			signKey:   cfg.PrivateKey,
			verifyKey: cfg.PrivateKey,
		}, nil
	case MethodEd25519:
		ks := &keySet{method: jwt.SigningMethodEdDSA}
		if len(cfg.PrivateKey) > 0 {
			priv, err := parseEdPrivateKey(cfg.PrivateKey)
			if err != nil {
				return nil, err
			}
			ks.signKey = priv
			ks.verifyKey = priv.Public()
		}
		if len(cfg.PublicKey) > 0 {
			pub, err := parseEdPublicKey(cfg.PublicKey)
			if err != nil {
				return nil, err
			}
			ks.verifyKey = pub
		}
		if ks.verifyKey == nil {
			return nil, errors.New("ed25519 requires a private or public key")
		}
		return ks, nil
	default:
		return nil, errors.New("unsupported signing method")
	}
}

func sameKeyMaterial(a, b KeyConfig) bool {
	if len(a.PrivateKey) > 0 && bytes.Equal(a.PrivateKey, b.PrivateKey) {
		return true
	}
	return len(a.PublicKey) > 0 && bytes.Equal(a.PublicKey, b.PublicKey)
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}
