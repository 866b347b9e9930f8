package albumauth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/albumauth/jwt"
	"github.com/MrEthical07/albumauth/refresh"
)

// Config is the full authority configuration. Start from [DefaultConfig].
type Config struct {
	Access    AccessConfig
	Refresh   RefreshConfig
	RateLimit RateLimitConfig
	Audit     AuditConfig
	Metrics   MetricsConfig
	Logging   LoggingConfig
}

/*
====================================
ACCESS TOKEN CONFIG
====================================
*/

// AccessConfig controls the short-lived access tokens minted with each pair.
type AccessConfig struct {
	TTL           time.Duration
	SigningMethod string // "hs256" (default) or "ed25519"
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Role          string
	Leeway        time.Duration
	// MaxFutureIAT bounds how far in the future an iat claim may be.
	// Zero selects the manager default of 10m.
	MaxFutureIAT time.Duration
	// KeyID is stamped into minted tokens as "kid".
	KeyID string
	// VerifyKeys maps kid to verification key during a signing-key rollover.
	// When set, tokens are verified by their kid and KeyID must be present.
	VerifyKeys map[string][]byte
}

/*
====================================
REFRESH CONFIG
====================================
*/

// RefreshConfig controls refresh records and families.
//
// FamilyTTL must be at least TTL so the family flag outlives every record
// in it. Both are re-applied on each rotation.
type RefreshConfig struct {
	TTL       time.Duration
	FamilyTTL time.Duration
	KeyPrefix string
	// DigestKey keys the BLAKE2b digest that maps refresh ids to store keys.
	DigestKey []byte
	// RevokeConcurrency bounds parallel family revocations for one member.
	RevokeConcurrency int
}

// RateLimitConfig controls the optional per-credential refresh throttle.
type RateLimitConfig struct {
	EnableRefreshThrottle bool
	MaxRefreshAttempts    int
	RefreshWindow         time.Duration
}

type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// LoggingConfig selects the level of the default JSON logger built by
// [NewLogger]. It has no effect when a logger is supplied to the builder.
type LoggingConfig struct {
	Level string
}

// DefaultConfig returns production defaults with no signing key set.
func DefaultConfig() Config {
	return Config{
		Access: AccessConfig{
			TTL:           15 * time.Minute,
			SigningMethod: string(jwt.MethodHS256),
			Issuer:        "albumauth",
			Role:          jwt.DefaultRole,
		},
		Refresh: RefreshConfig{
			TTL:               30 * 24 * time.Hour,
			FamilyTTL:         31 * 24 * time.Hour,
			KeyPrefix:         "aa",
			RevokeConcurrency: 8,
		},
		RateLimit: RateLimitConfig{
			EnableRefreshThrottle: false,
			MaxRefreshAttempts:    10,
			RefreshWindow:         time.Minute,
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: true,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Access.PrivateKey = cloneBytes(cfg.Access.PrivateKey)
	out.Access.PublicKey = cloneBytes(cfg.Access.PublicKey)
	if cfg.Access.VerifyKeys != nil {
		out.Access.VerifyKeys = make(map[string][]byte, len(cfg.Access.VerifyKeys))
		for kid, key := range cfg.Access.VerifyKeys {
			out.Access.VerifyKeys[kid] = cloneBytes(key)
		}
	}
	out.Refresh.DigestKey = cloneBytes(cfg.Refresh.DigestKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first invalid setting. Signing keys are checked in
// depth by the access-token manager at build time.
func (c *Config) Validate() error {
	// Access
	if c.Access.TTL <= 0 {
		return errors.New("Access TTL must be > 0")
	}
	switch c.Access.SigningMethod {
	case string(jwt.MethodHS256):
		if len(c.Access.PrivateKey) == 0 {
			return errors.New("hs256 requires PrivateKey")
		}
	case string(jwt.MethodEd25519):
		if len(c.Access.PrivateKey) == 0 || (len(c.Access.PublicKey) == 0 && len(c.Access.VerifyKeys) == 0) {
			return errors.New("ed25519 requires PrivateKey and PublicKey or VerifyKeys")
		}
	default:
		return errors.New("unsupported Access signing method")
	}
	if c.Access.Leeway < 0 || c.Access.Leeway > 2*time.Minute {
		return errors.New("Access Leeway must be within [0, 2m]")
	}
	if c.Access.MaxFutureIAT < 0 || c.Access.MaxFutureIAT > 24*time.Hour {
		return errors.New("Access MaxFutureIAT must be within [0, 24h]")
	}
	if len(c.Access.VerifyKeys) > 0 {
		if _, ok := c.Access.VerifyKeys[c.Access.KeyID]; !ok {
			return errors.New("Access KeyID must name an entry of VerifyKeys")
		}
	}

	// Refresh
	if c.Refresh.TTL <= 0 {
		return errors.New("Refresh TTL must be > 0")
	}
	if c.Refresh.FamilyTTL < c.Refresh.TTL {
		return errors.New("Refresh FamilyTTL must be >= Refresh TTL")
	}
	if c.Access.TTL >= c.Refresh.TTL {
		return errors.New("Access TTL must be shorter than Refresh TTL")
	}
	if strings.TrimSpace(c.Refresh.KeyPrefix) == "" || strings.Contains(c.Refresh.KeyPrefix, ":") {
		return errors.New("Refresh KeyPrefix must be non-empty and must not contain ':'")
	}
	if len(c.Refresh.DigestKey) > refresh.MaxDigestKeySize {
		return fmt.Errorf("Refresh DigestKey must be at most %d bytes", refresh.MaxDigestKeySize)
	}
	if c.Refresh.RevokeConcurrency < 0 {
		return errors.New("Refresh RevokeConcurrency must be >= 0")
	}

	// Rate limit
	if c.RateLimit.EnableRefreshThrottle {
		if c.RateLimit.MaxRefreshAttempts <= 0 {
			return errors.New("RateLimit MaxRefreshAttempts must be > 0")
		}
		if c.RateLimit.RefreshWindow <= 0 {
			return errors.New("RateLimit RefreshWindow must be > 0")
		}
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when enabled")
	}

	// Logging
	if _, ok := parseLevel(c.Logging.Level); !ok {
		return fmt.Errorf("unknown Logging Level %q", c.Logging.Level)
	}

	return nil
}
