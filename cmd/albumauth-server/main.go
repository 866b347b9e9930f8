// Command albumauth-server runs the token family authority behind two HTTP
// listeners: a public one for refresh and logout, and an internal one for the
// login hook, member revocation, and Prometheus metrics.
//
// Configuration is read from ALBUMAUTH_* variables (see albumauth.ConfigFromEnv)
// plus:
//
//	ALBUMAUTH_HTTP_ADDR        public listener (default :8080)
//	ALBUMAUTH_INTERNAL_ADDR    internal listener (default 127.0.0.1:8081)
//	ALBUMAUTH_REDIS_ADDRS      comma-separated Redis addresses (default 127.0.0.1:6379)
//	ALBUMAUTH_REDIS_PASSWORD   Redis password
//	ALBUMAUTH_REDIS_MASTER     sentinel master name; enables failover mode
//	ALBUMAUTH_COOKIE_SECURE    set the Secure flag on the refresh cookie (default true)
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/MrEthical07/albumauth"
	"github.com/MrEthical07/albumauth/endpoint"
	promexport "github.com/MrEthical07/albumauth/metrics/export/prometheus"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "albumauth-server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := albumauth.ConfigFromEnv()
	if err != nil {
		return err
	}
	log := albumauth.NewLogger(os.Stdout, cfg.Logging.Level)

	addrs := splitList(envOr("ALBUMAUTH_REDIS_ADDRS", "127.0.0.1:6379"))
	master := os.Getenv("ALBUMAUTH_REDIS_MASTER")
	// Several addresses without a master name would select Redis Cluster,
	// where the MULTI/EXEC batches span hash slots.
	if len(addrs) > 1 && master == "" {
		return errors.New("multiple Redis addresses require ALBUMAUTH_REDIS_MASTER; cluster mode is not supported")
	}
	rdb := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:      addrs,
		Password:   os.Getenv("ALBUMAUTH_REDIS_PASSWORD"),
		MasterName: master,
	})
	defer func() { _ = rdb.Close() }()

	authority, err := albumauth.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithLogger(log).
		WithAuditSink(albumauth.NewSlogSink(log.With("component", "audit"))).
		Build()
	if err != nil {
		return fmt.Errorf("build authority: %w", err)
	}
	defer authority.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if d, err := authority.Ping(ctx); err != nil {
		log.Warn("redis.unreachable", "err", err)
	} else {
		log.Info("redis.ready", "latency", d)
	}

	gin.SetMode(gin.ReleaseMode)
	handler := endpoint.NewHandler(authority, endpoint.Options{
		CookieSecure: envBool("ALBUMAUTH_COOKIE_SECURE", true),
		Logger:       log,
	})

	public := gin.New()
	public.Use(gin.Recovery())
	handler.RegisterPublic(public)
	public.GET("/healthz", healthz(authority))

	internal := gin.New()
	internal.Use(gin.Recovery())
	handler.RegisterInternal(internal)
	internal.GET("/healthz", healthz(authority))
	internal.GET("/metrics", gin.WrapH(promexport.NewCollector(authority).Handler()))

	servers := []*http.Server{
		newServer(envOr("ALBUMAUTH_HTTP_ADDR", ":8080"), public),
		newServer(envOr("ALBUMAUTH_INTERNAL_ADDR", "127.0.0.1:8081"), internal),
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, srv := range servers {
		g.Go(func() error {
			log.Info("server.start", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("listen %s: %w", srv.Addr, err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		log.Info("server.stop", "reason", "context_done")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		var errs []error
		for _, srv := range servers {
			if err := srv.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	})

	err = g.Wait()
	log.Info("server.stopped",
		"audit_dropped", authority.AuditDropped(),
		"audit_delivered", authority.AuditDelivered())
	return err
}

func newServer(addr string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}
}

func healthz(authority *albumauth.Authority) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		d, err := authority.Ping(ctx)
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "redis_latency_ms": d.Milliseconds()})
	}
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envBool(key string, def bool) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return def
	}
	return b
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
