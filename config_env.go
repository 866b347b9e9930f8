package albumauth

import (
	"encoding/base64"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ConfigFromEnv overlays ALBUMAUTH_* environment variables on [DefaultConfig].
//
// Key material is read base64 (standard encoding) from
// ALBUMAUTH_ACCESS_PRIVATE_KEY, ALBUMAUTH_ACCESS_PUBLIC_KEY, and
// ALBUMAUTH_REFRESH_DIGEST_KEY. ALBUMAUTH_ACCESS_VERIFY_KEYS lists rollover
// keys as comma-separated kid=base64 pairs. Malformed numbers and durations
// fall back to the default; malformed key material is an error.
func ConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	cfg.Access.TTL = envDuration("ALBUMAUTH_ACCESS_TTL", cfg.Access.TTL)
	cfg.Access.SigningMethod = strings.ToLower(envString("ALBUMAUTH_ACCESS_SIGNING_METHOD", cfg.Access.SigningMethod))
	cfg.Access.Issuer = envString("ALBUMAUTH_ACCESS_ISSUER", cfg.Access.Issuer)
	cfg.Access.Audience = envString("ALBUMAUTH_ACCESS_AUDIENCE", cfg.Access.Audience)
	cfg.Access.Role = envString("ALBUMAUTH_ACCESS_ROLE", cfg.Access.Role)
	cfg.Access.Leeway = envDuration("ALBUMAUTH_ACCESS_LEEWAY", cfg.Access.Leeway)
	cfg.Access.KeyID = envString("ALBUMAUTH_ACCESS_KEY_ID", cfg.Access.KeyID)
	cfg.Access.MaxFutureIAT = envDuration("ALBUMAUTH_ACCESS_MAX_FUTURE_IAT", cfg.Access.MaxFutureIAT)

	cfg.Refresh.TTL = envDuration("ALBUMAUTH_REFRESH_TTL", cfg.Refresh.TTL)
	cfg.Refresh.FamilyTTL = envDuration("ALBUMAUTH_REFRESH_FAMILY_TTL", cfg.Refresh.FamilyTTL)
	cfg.Refresh.KeyPrefix = envString("ALBUMAUTH_REFRESH_KEY_PREFIX", cfg.Refresh.KeyPrefix)
	cfg.Refresh.RevokeConcurrency = envInt("ALBUMAUTH_REFRESH_REVOKE_CONCURRENCY", cfg.Refresh.RevokeConcurrency)

	cfg.RateLimit.EnableRefreshThrottle = envBool("ALBUMAUTH_RATELIMIT_REFRESH", cfg.RateLimit.EnableRefreshThrottle)
	cfg.RateLimit.MaxRefreshAttempts = envInt("ALBUMAUTH_RATELIMIT_REFRESH_MAX", cfg.RateLimit.MaxRefreshAttempts)
	cfg.RateLimit.RefreshWindow = envDuration("ALBUMAUTH_RATELIMIT_REFRESH_WINDOW", cfg.RateLimit.RefreshWindow)

	cfg.Audit.Enabled = envBool("ALBUMAUTH_AUDIT_ENABLED", cfg.Audit.Enabled)
	cfg.Audit.BufferSize = envInt("ALBUMAUTH_AUDIT_BUFFER", cfg.Audit.BufferSize)
	cfg.Audit.DropIfFull = envBool("ALBUMAUTH_AUDIT_DROP_IF_FULL", cfg.Audit.DropIfFull)

	cfg.Metrics.Enabled = envBool("ALBUMAUTH_METRICS_ENABLED", cfg.Metrics.Enabled)
	cfg.Metrics.EnableLatencyHistograms = envBool("ALBUMAUTH_METRICS_LATENCY", cfg.Metrics.EnableLatencyHistograms)

	cfg.Logging.Level = envString("ALBUMAUTH_LOG_LEVEL", cfg.Logging.Level)

	var err error
	if cfg.Access.PrivateKey, err = envBytes("ALBUMAUTH_ACCESS_PRIVATE_KEY"); err != nil {
		return cfg, err
	}
	if cfg.Access.PublicKey, err = envBytes("ALBUMAUTH_ACCESS_PUBLIC_KEY"); err != nil {
		return cfg, err
	}
	if cfg.Refresh.DigestKey, err = envBytes("ALBUMAUTH_REFRESH_DIGEST_KEY"); err != nil {
		return cfg, err
	}
	if cfg.Access.VerifyKeys, err = envKeyMap("ALBUMAUTH_ACCESS_VERIFY_KEYS"); err != nil {
		return cfg, err
	}

	return cfg, nil
}

func envString(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func envBytes(key string) ([]byte, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil, nil
	}
	b, err := base64.StdEncoding.DecodeString(v)
	if err != nil {
		return nil, fmt.Errorf("%s: invalid base64: %w", key, err)
	}
	return b, nil
}

func envKeyMap(key string) (map[string][]byte, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil, nil
	}
	out := make(map[string][]byte)
	for _, pair := range strings.Split(v, ",") {
		kid, encoded, ok := strings.Cut(strings.TrimSpace(pair), "=")
		kid = strings.TrimSpace(kid)
		if !ok || kid == "" {
			return nil, fmt.Errorf("%s: expected kid=base64, got %q", key, pair)
		}
		b, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
		if err != nil {
			return nil, fmt.Errorf("%s: kid %q: invalid base64: %w", key, kid, err)
		}
		out[kid] = b
	}
	return out, nil
}
