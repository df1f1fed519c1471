package volcanion

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rickymta/volcanion-auth/jwt"
	"github.com/rickymta/volcanion-auth/password"
)

// Config is the full engine configuration. Start from DefaultConfig and
// override fields, or load a YAML file with LoadConfig. Build calls
// Validate before wiring anything.
type Config struct {
	Token             TokenConfig             `yaml:"token"`
	Password          PasswordConfig          `yaml:"password"`
	Lockout           LockoutConfig           `yaml:"lockout"`
	Session           SessionConfig           `yaml:"session"`
	PasswordReset     PasswordResetConfig     `yaml:"password_reset"`
	EmailVerification EmailVerificationConfig `yaml:"email_verification"`
	Security          SecurityConfig          `yaml:"security"`
	Store             StoreConfig             `yaml:"store"`
	Audit             AuditConfig             `yaml:"audit"`
	Metrics           MetricsConfig           `yaml:"metrics"`
	Database          DatabaseConfig          `yaml:"database"`
	Redis             RedisConfig             `yaml:"redis"`
	Server            ServerConfig            `yaml:"server"`
}

/*
====================================
TOKEN CONFIG
====================================
*/

// TokenConfig configures the access/refresh pair. Expiry strings take the
// "<n>m", "<n>h" or "<n>d" form.
type TokenConfig struct {
	Issuer        string    `yaml:"issuer"`
	Audience      string    `yaml:"audience"`
	AccessExpiry  string    `yaml:"access_expiry"`
	RefreshExpiry string    `yaml:"refresh_expiry"`
	Leeway        Duration  `yaml:"leeway"`
	Access        KeyConfig `yaml:"access"`
	Refresh       KeyConfig `yaml:"refresh"`
}

// KeyConfig holds the key material of one token kind. For "hs256" Key is
// the shared secret (at least 32 bytes); for "ed25519" Key is a PEM
// private key and PublicKey an optional PEM public key.
type KeyConfig struct {
	SigningMethod string `yaml:"signing_method"`
	Key           string `yaml:"key"`
	PublicKey     string `yaml:"public_key"`
}

func (k KeyConfig) issuerKey() jwt.KeyConfig {
	out := jwt.KeyConfig{SigningMethod: jwt.SigningMethod(k.SigningMethod)}
	if k.Key != "" {
		out.PrivateKey = []byte(k.Key)
	}
	if k.PublicKey != "" {
		out.PublicKey = []byte(k.PublicKey)
	}
	return out
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig selects the digest algorithm for new passwords. Stored
// digests of either algorithm keep verifying.
type PasswordConfig struct {
	Algorithm      string `yaml:"algorithm"`
	BcryptCost     int    `yaml:"bcrypt_cost"`
	Argon2Memory   uint32 `yaml:"argon2_memory_kb"`
	Argon2Time     uint32 `yaml:"argon2_time"`
	Argon2Threads  uint8  `yaml:"argon2_threads"`
	MinLength      int    `yaml:"min_length"`
	UpgradeOnLogin bool   `yaml:"upgrade_on_login"`
}

func (p PasswordConfig) hasherConfig() password.Config {
	cfg := password.DefaultConfig()
	if p.Algorithm != "" {
		cfg.Algorithm = password.Algorithm(p.Algorithm)
	}
	if p.BcryptCost > 0 {
		cfg.BcryptCost = p.BcryptCost
	}
	if p.Argon2Memory > 0 {
		cfg.Argon2.Memory = p.Argon2Memory
	}
	if p.Argon2Time > 0 {
		cfg.Argon2.Time = p.Argon2Time
	}
	if p.Argon2Threads > 0 {
		cfg.Argon2.Parallelism = p.Argon2Threads
	}
	return cfg
}

// LockoutConfig drives the login attempt guard.
type LockoutConfig struct {
	MaxAttempts int      `yaml:"max_attempts"`
	Window      Duration `yaml:"window"`
	KeyPrefix   string   `yaml:"key_prefix"`
}

// SessionConfig controls the Redis session cache entry created at login.
type SessionConfig struct {
	KeyPrefix string   `yaml:"key_prefix"`
	TTL       Duration `yaml:"ttl"`
	// ExtendOnRefresh resets the session TTL whenever its refresh token rotates.
	ExtendOnRefresh bool `yaml:"extend_on_refresh"`
	// ValidateOnAccess makes VerifyAccess confirm that the token's session
	// is still cached, so RevokeSession and LogoutAll take effect before
	// the access token expires. Costs one Redis round trip per request.
	ValidateOnAccess bool `yaml:"validate_on_access"`
}

// PasswordResetConfig controls RequestPasswordReset / ConfirmPasswordReset.
type PasswordResetConfig struct {
	Enabled     bool     `yaml:"enabled"`
	TokenTTL    Duration `yaml:"token_ttl"`
	MaxRequests int      `yaml:"max_requests"`
	Window      Duration `yaml:"window"`
}

// EmailVerificationConfig controls the verification token flow.
type EmailVerificationConfig struct {
	Enabled         bool     `yaml:"enabled"`
	TokenTTL        Duration `yaml:"token_ttl"`
	MaxRequests     int      `yaml:"max_requests"`
	Window          Duration `yaml:"window"`
	RequireForLogin bool     `yaml:"require_for_login"`
}

/*
====================================
SECURITY CONFIG
====================================
*/

// SecurityConfig groups refresh reuse handling.
type SecurityConfig struct {
	// RevokeFamilyOnReuse revokes every refresh token of the account and
	// drops its cached sessions when a revoked refresh token is presented.
	RevokeFamilyOnReuse bool `yaml:"revoke_family_on_reuse"`
}

// StoreConfig bounds every relational and cache call.
type StoreConfig struct {
	Timeout Duration `yaml:"timeout"`
}

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool `yaml:"enabled"`
	BufferSize int  `yaml:"buffer_size"`
	DropIfFull bool `yaml:"drop_if_full"`
}

// MetricsConfig toggles the in-process counters.
type MetricsConfig struct {
	Enabled                 bool `yaml:"enabled"`
	EnableLatencyHistograms bool `yaml:"enable_latency_histograms"`
}

// DatabaseConfig is read by cmd/volcanion-authd only; the engine itself
// receives ready stores.
type DatabaseConfig struct {
	DSN     string `yaml:"dsn"`
	Migrate bool   `yaml:"migrate"`
}

// RedisConfig is read by cmd/volcanion-authd only.
type RedisConfig struct {
	Addrs    []string `yaml:"addrs"`
	Password string   `yaml:"password"`
	DB       int      `yaml:"db"`
}

// ServerConfig is read by cmd/volcanion-authd only. RequestsPerSecond and
// Burst size the per-origin token bucket in front of the JSON API.
type ServerConfig struct {
	Addr                string   `yaml:"addr"`
	RequestsPerSecond   float64  `yaml:"requests_per_second"`
	Burst               int      `yaml:"burst"`
	TrustForwardedFor   bool     `yaml:"trust_forwarded_for"`
	MaintenanceInterval Duration `yaml:"maintenance_interval"`
	ShutdownTimeout     Duration `yaml:"shutdown_timeout"`
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the documented defaults: 15m access / 7d refresh
// tokens, bcrypt cost 12, lockout after 5 failures in 15 minutes, 24h
// sessions and a 3s store timeout. Token keys are left empty.
func DefaultConfig() Config {
	return Config{
		Token: TokenConfig{
			Issuer:        "volcanion-auth",
			Audience:      "volcanion-api",
			AccessExpiry:  "15m",
			RefreshExpiry: "7d",
			Access:        KeyConfig{SigningMethod: string(jwt.MethodHS256)},
			Refresh:       KeyConfig{SigningMethod: string(jwt.MethodHS256)},
		},
		Password: PasswordConfig{
			Algorithm:      string(password.AlgorithmBcrypt),
			BcryptCost:     password.DefaultBcryptCost,
			MinLength:      8,
			UpgradeOnLogin: true,
		},
		Lockout: LockoutConfig{
			MaxAttempts: 5,
			Window:      Duration(15 * time.Minute),
			KeyPrefix:   "login_attempts",
		},
		Session: SessionConfig{
			KeyPrefix:       "sess",
			TTL:             Duration(24 * time.Hour),
			ExtendOnRefresh: true,
		},
		PasswordReset: PasswordResetConfig{
			Enabled:     true,
			TokenTTL:    Duration(time.Hour),
			MaxRequests: 3,
			Window:      Duration(time.Hour),
		},
		EmailVerification: EmailVerificationConfig{
			Enabled:     true,
			TokenTTL:    Duration(24 * time.Hour),
			MaxRequests: 3,
			Window:      Duration(time.Hour),
		},
		Security: SecurityConfig{
			RevokeFamilyOnReuse: true,
		},
		Store: StoreConfig{
			Timeout: Duration(3 * time.Second),
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
		Server: ServerConfig{
			Addr:                ":8080",
			RequestsPerSecond:   10,
			Burst:               20,
			MaintenanceInterval: Duration(time.Hour),
			ShutdownTimeout:     Duration(10 * time.Second),
		},
	}
}

/*
====================================
VALIDATION
====================================
*/

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	if c.Token.Issuer == "" || c.Token.Audience == "" {
		return errors.New("token issuer and audience are required")
	}
	if _, ok := jwt.ParseExpiry(c.Token.AccessExpiry); !ok {
		return fmt.Errorf("token access_expiry %q must look like 15m, 2h or 7d", c.Token.AccessExpiry)
	}
	if c.Token.RefreshExpiry != "" {
		if _, ok := jwt.ParseExpiry(c.Token.RefreshExpiry); !ok {
			return fmt.Errorf("token refresh_expiry %q must look like 15m, 2h or 7d", c.Token.RefreshExpiry)
		}
	}
	if c.Token.Leeway < 0 {
		return errors.New("token leeway must be >= 0")
	}
	if c.Token.Access.Key == "" && c.Token.Access.PublicKey == "" {
		return errors.New("token access key is required")
	}
	if c.Token.Refresh.Key == "" && c.Token.Refresh.PublicKey == "" {
		return errors.New("token refresh key is required")
	}

	switch password.Algorithm(c.Password.Algorithm) {
	case "", password.AlgorithmBcrypt, password.AlgorithmArgon2id:
	default:
		return fmt.Errorf("unsupported password algorithm %q", c.Password.Algorithm)
	}
	if c.Password.MinLength < 0 {
		return errors.New("password min_length must be >= 0")
	}

	if c.Lockout.MaxAttempts <= 0 {
		return errors.New("lockout max_attempts must be > 0")
	}
	if c.Lockout.Window <= 0 {
		return errors.New("lockout window must be > 0")
	}

	if c.Session.TTL <= 0 {
		return errors.New("session ttl must be > 0")
	}

	if c.PasswordReset.Enabled && c.PasswordReset.TokenTTL <= 0 {
		return errors.New("password_reset token_ttl must be > 0")
	}
	if c.EmailVerification.Enabled && c.EmailVerification.TokenTTL <= 0 {
		return errors.New("email_verification token_ttl must be > 0")
	}

	if c.Store.Timeout < 0 {
		return errors.New("store timeout must be >= 0")
	}
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("audit buffer_size must be > 0 when audit is enabled")
	}
	return nil
}

// LoadConfig reads a YAML file on top of DefaultConfig. Environment
// references such as ${VOLCANION_ACCESS_KEY} are expanded before parsing.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config file: %w", err)
	}
	return cfg, nil
}

// Duration is a time.Duration that unmarshals from YAML strings such as
// "90s", "15m" or "7d".
type Duration time.Duration

// D returns the value as a time.Duration.
func (d Duration) D() time.Duration { return time.Duration(d) }

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be a scalar, got %v", value.Tag)
	}
	if parsed, ok := jwt.ParseExpiry(value.Value); ok {
		*d = Duration(parsed)
		return nil
	}
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}
