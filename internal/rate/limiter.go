package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/albumauth/kvstore"
)

// Config holds refresh throttle tuning parameters.
type Config struct {
	EnableRefreshThrottle   bool
	MaxRefreshAttempts      int
	RefreshCooldownDuration time.Duration
}

// Limiter counts rotation attempts per refresh credential in fixed windows.
type Limiter struct {
	kv     kvstore.Store
	prefix string
	config Config
}

// New creates a rate [Limiter] over kv. Keys are namespaced under prefix.
func New(kv kvstore.Store, prefix string, cfg Config) *Limiter {
	if prefix == "" {
		prefix = "aa"
	}
	return &Limiter{
		kv:     kv,
		prefix: prefix,
		config: cfg,
	}
}

// CheckRefresh counts one attempt for the credential and fails with
// [ErrRateLimited] once the window budget is exceeded.
func (l *Limiter) CheckRefresh(ctx context.Context, recordID string) error {
	if l == nil || !l.config.EnableRefreshThrottle {
		return nil
	}

	count, err := l.kv.Incr(ctx, l.refreshKey(recordID), l.config.RefreshCooldownDuration)
	if err != nil {
		if errors.Is(err, kvstore.ErrUnavailable) {
			return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		return err
	}
	if count > int64(l.config.MaxRefreshAttempts) {
		return ErrRateLimited
	}

	return nil
}

func (l *Limiter) refreshKey(recordID string) string {
	return l.prefix + ":rl:refresh:" + recordID
}
