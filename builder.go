package albumauth

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	internalaudit "github.com/MrEthical07/albumauth/internal/audit"
	"github.com/MrEthical07/albumauth/internal/flows"
	"github.com/MrEthical07/albumauth/internal/rate"
	"github.com/MrEthical07/albumauth/jwt"
	"github.com/MrEthical07/albumauth/kvstore"
	"github.com/MrEthical07/albumauth/refresh"
	"github.com/MrEthical07/albumauth/session"
	"github.com/redis/go-redis/v9"
)

// Builder assembles an [Authority]. A Builder is single-use.
type Builder struct {
	config Config
	redis  redis.UniversalClient
	store  kvstore.Store

	auditSink AuditSink
	logger    *slog.Logger
	now       func() time.Time

	built bool
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the Redis client backing the session store.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithStore sets an already-constructed key-value store. It takes precedence
// over [Builder.WithRedis].
func (b *Builder) WithStore(store kvstore.Store) *Builder {
	b.store = store
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets the structured logger. Without one the Authority logs
// nowhere.
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

func (b *Builder) withClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// Build validates the configuration and wires every component.
func (b *Builder) Build() (*Authority, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	kv := b.store
	if kv == nil {
		if b.redis == nil {
			return nil, errors.New("redis client or store required")
		}
		kv = kvstore.NewRedis(b.redis)
	}

	manager, err := jwt.NewManager(jwt.Config{
		AccessTTL:     cfg.Access.TTL,
		SigningMethod: jwt.SigningMethod(cfg.Access.SigningMethod),
		PrivateKey:    cfg.Access.PrivateKey,
		PublicKey:     cfg.Access.PublicKey,
		Issuer:        cfg.Access.Issuer,
		Audience:      cfg.Access.Audience,
		Role:          cfg.Access.Role,
		Leeway:        cfg.Access.Leeway,
		MaxFutureIAT:  cfg.Access.MaxFutureIAT,
		KeyID:         cfg.Access.KeyID,
		VerifyKeys:    cfg.Access.VerifyKeys,
	})
	if err != nil {
		return nil, fmt.Errorf("access token manager: %w", err)
	}

	digester, err := refresh.NewDigester(cfg.Refresh.DigestKey)
	if err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = discardLogger()
	}
	logger = withRequestIDs(logger)
	now := b.now
	if now == nil {
		now = time.Now
	}

	store := session.NewStore(kv, cfg.Refresh.KeyPrefix)

	var limiter flows.RotateRateLimiter
	if cfg.RateLimit.EnableRefreshThrottle {
		limiter = rate.New(kv, cfg.Refresh.KeyPrefix, rate.Config{
			EnableRefreshThrottle:   true,
			MaxRefreshAttempts:      cfg.RateLimit.MaxRefreshAttempts,
			RefreshCooldownDuration: cfg.RateLimit.RefreshWindow,
		})
	}

	a := &Authority{
		config:  cfg,
		logger:  logger,
		store:   store,
		jwt:     manager,
		metrics: NewMetrics(cfg.Metrics),
		audit: internalaudit.NewDispatcher(internalaudit.Config{
			Enabled:    cfg.Audit.Enabled,
			BufferSize: cfg.Audit.BufferSize,
			DropIfFull: cfg.Audit.DropIfFull,
		}, b.auditSink),
		now: now,
	}

	revoke := flows.RevokeDeps{
		FamilyTTL: cfg.Refresh.FamilyTTL,
		Store:     store,
	}
	a.flows = flows.Deps{
		Issue: flows.IssueDeps{
			Now:          now,
			NewRefreshID: refresh.NewID,
			NewFamilyID:  refresh.NewFamilyID,
			Digest:       digester.Digest,
			MintAccess:   manager.Mint,
			RefreshTTL:   cfg.Refresh.TTL,
			FamilyTTL:    cfg.Refresh.FamilyTTL,
			Store:        store,
		},
		Rotate: flows.RotateDeps{
			Now:            now,
			ParseRefreshID: refresh.Parse,
			Digest:         digester.Digest,
			NewRefreshID:   refresh.NewID,
			MintAccess:     manager.Mint,
			RefreshTTL:     cfg.Refresh.TTL,
			FamilyTTL:      cfg.Refresh.FamilyTTL,
			RateLimiter:    limiter,
			Store:          store,
		},
		Revoke: revoke,
		RevokeAll: flows.RevokeAllDeps{
			Revoke:      revoke,
			Index:       store,
			Concurrency: cfg.Refresh.RevokeConcurrency,
			OnFamily:    a.observeFamilyRevoke,
		},
		Logout: flows.LogoutDeps{
			ParseRefreshID: refresh.Parse,
			Digest:         digester.Digest,
			Records:        store,
			Revoke:         revoke,
		},
		Families: flows.FamiliesDeps{
			FamilyCreatedAt: refresh.ParseFamilyID,
			Store:           store,
		},
	}

	b.built = true
	return a, nil
}
