// Command albumauth-loadtest checks rotation race safety under load.
//
// It issues -sessions families, then for every family fires -racers
// concurrent rotations of the same refresh id. Exactly one rotation per
// family must win, the rest must be rejected as reuse, and afterwards the
// winner's credential must be rejected as compromised. Any deviation is
// reported as a violation and the command exits non-zero.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/albumauth"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

func main() {
	var (
		sessions    = flag.Int("sessions", 1000, "number of families to issue")
		racers      = flag.Int("racers", 8, "concurrent rotations of the same refresh id per family")
		concurrency = flag.Int("concurrency", 64, "families raced in parallel")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		prefix      = flag.String("prefix", "aaload", "key prefix")
	)
	flag.Parse()

	if *sessions <= 0 || *racers < 2 || *concurrency <= 0 {
		fmt.Fprintln(os.Stderr, "sessions and concurrency must be > 0, racers must be >= 2")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		client  redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		addr = mr.Addr()
		client = redis.NewClient(&redis.Options{Addr: addr, PoolSize: *concurrency * *racers})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		client = redis.NewClient(&redis.Options{Addr: addr, PoolSize: *concurrency * *racers})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	cfg := albumauth.DefaultConfig()
	cfg.Access.PrivateKey = []byte("loadtest-signing-key-0123456789abcdef")
	cfg.Refresh.KeyPrefix = *prefix
	cfg.Audit.Enabled = false

	authority, err := albumauth.New().WithConfig(cfg).WithRedis(client).Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "build authority: %v\n", err)
		os.Exit(1)
	}
	defer authority.Close()

	fmt.Printf("issuing %d families...\n", *sessions)
	startIssue := time.Now()
	pairs := make([]*albumauth.TokenPair, *sessions)
	for i := range pairs {
		pair, err := authority.Issue(ctx, fmt.Sprintf("member-%d", i%997), "loadtest")
		if err != nil {
			fmt.Fprintf(os.Stderr, "issue failed: %v\n", err)
			os.Exit(1)
		}
		pairs[i] = pair
	}
	fmt.Printf("issued in %s\n", time.Since(startIssue).Round(time.Millisecond))

	res := runRacePhase(ctx, authority, pairs, *racers, *concurrency)

	fmt.Println("---- results ----")
	printStats("rotate", res.stats)
	fmt.Printf("families=%d winners=%d reuse=%d compromised=%d\n",
		len(pairs), res.winners.Load(), res.reused.Load(), res.compromised.Load())
	fmt.Printf("violations: multiple_winners=%d no_winner=%d winner_survived=%d unexpected_errors=%d\n",
		res.multiWin.Load(), res.noWin.Load(), res.survived.Load(), res.unexpected.Load())

	if res.multiWin.Load()+res.noWin.Load()+res.survived.Load()+res.unexpected.Load() > 0 {
		os.Exit(1)
	}
}

type raceResult struct {
	stats phaseStats

	winners     atomic.Int64
	reused      atomic.Int64
	compromised atomic.Int64

	multiWin   atomic.Int64
	noWin      atomic.Int64
	survived   atomic.Int64
	unexpected atomic.Int64
}

func runRacePhase(ctx context.Context, authority *albumauth.Authority, pairs []*albumauth.TokenPair, racers, concurrency int) *raceResult {
	var (
		res       raceResult
		mu        sync.Mutex
		latencies = make([]time.Duration, 0, len(pairs)*racers)
	)

	g := new(errgroup.Group)
	g.SetLimit(concurrency)

	start := time.Now()
	for _, pair := range pairs {
		g.Go(func() error {
			var (
				wg      sync.WaitGroup
				gate    = make(chan struct{})
				winners atomic.Int64
				winner  atomic.Pointer[albumauth.TokenPair]
				local   = make([]time.Duration, racers)
			)
			wg.Add(racers)
			for r := 0; r < racers; r++ {
				go func(r int) {
					defer wg.Done()
					<-gate
					t0 := time.Now()
					next, err := authority.Rotate(ctx, pair.RefreshToken)
					local[r] = time.Since(t0)
					switch {
					case err == nil:
						winners.Add(1)
						winner.Store(next)
					case errors.Is(err, albumauth.ErrRefreshTokenReused):
						res.reused.Add(1)
					case errors.Is(err, albumauth.ErrFamilyCompromised):
						res.compromised.Add(1)
					default:
						res.unexpected.Add(1)
					}
				}(r)
			}
			close(gate)
			wg.Wait()

			mu.Lock()
			latencies = append(latencies, local...)
			mu.Unlock()

			switch n := winners.Load(); {
			case n == 0:
				res.noWin.Add(1)
				return nil
			case n > 1:
				res.multiWin.Add(1)
			}
			res.winners.Add(1)

			if _, err := authority.Rotate(ctx, winner.Load().RefreshToken); !errors.Is(err, albumauth.ErrFamilyCompromised) {
				res.survived.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	res.stats = computeStats(time.Since(start), latencies)
	return &res
}

type phaseStats struct {
	total   time.Duration
	ops     int
	p50     time.Duration
	p95     time.Duration
	p99     time.Duration
	opsPerS float64
}

func computeStats(total time.Duration, samples []time.Duration) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:   total,
		ops:     len(samples),
		p50:     percentile(samples, 50),
		p95:     percentile(samples, 95),
		p99:     percentile(samples, 99),
		opsPerS: float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
