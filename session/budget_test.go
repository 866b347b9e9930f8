package session

import (
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrEthical07/albumauth/kvstore"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// cmdCounter is a go-redis hook that counts round-trips: single commands and
// pipeline flushes.
type cmdCounter struct {
	commands  atomic.Int64
	pipelines atomic.Int64
}

func (h *cmdCounter) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		return next(ctx, network, addr)
	}
}

func (h *cmdCounter) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		h.commands.Add(1)
		return next(ctx, cmd)
	}
}

func (h *cmdCounter) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		h.pipelines.Add(1)
		return next(ctx, cmds)
	}
}

func (h *cmdCounter) Reset() {
	h.commands.Store(0)
	h.pipelines.Store(0)
}

// roundTrips counts a pipeline flush as one trip.
func (h *cmdCounter) roundTrips() int64 {
	return h.commands.Load() + h.pipelines.Load()
}

func newCountedStore(t *testing.T) (*Store, *cmdCounter) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})

	counter := &cmdCounter{}
	rdb.AddHook(counter)
	// Connection setup may issue extra commands; warm up before measuring.
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		t.Fatalf("warmup ping: %v", err)
	}
	counter.Reset()

	return NewStore(kvstore.NewRedis(rdb), "aa"), counter
}

func TestIssueIsOneRoundTrip(t *testing.T) {
	store, counter := newCountedStore(t)

	if err := store.CreateFamily(context.Background(), testRecord("r1", "f1"), time.Hour, time.Hour); err != nil {
		t.Fatalf("CreateFamily: %v", err)
	}
	if got := counter.roundTrips(); got != 1 {
		t.Fatalf("CreateFamily used %d round-trips; budget is 1 (MULTI/EXEC)", got)
	}
}

func TestRotationRoundTripBudget(t *testing.T) {
	store, counter := newCountedStore(t)
	ctx := context.Background()

	if err := store.CreateFamily(ctx, testRecord("r1", "f1"), time.Hour, time.Hour); err != nil {
		t.Fatalf("CreateFamily: %v", err)
	}
	counter.Reset()

	if _, err := store.GetRecord(ctx, "r1"); err != nil {
		t.Fatalf("GetRecord: %v", err)
	}
	if _, err := store.GetFamilyStatus(ctx, "f1"); err != nil {
		t.Fatalf("GetFamilyStatus: %v", err)
	}
	if _, _, err := store.CompareAndSetStatus(ctx, "r1", StatusActive, StatusRotated); err != nil {
		t.Fatalf("CompareAndSetStatus: %v", err)
	}
	if err := store.CreateRecord(ctx, testRecord("r2", "f1"), time.Hour, time.Hour); err != nil {
		t.Fatalf("CreateRecord: %v", err)
	}

	// Two reads, the CAS script (EVALSHA, plus EVAL on a cold script cache),
	// and one MULTI/EXEC.
	if got := counter.roundTrips(); got > 5 {
		t.Errorf("rotation used %d round-trips; budget is 5", got)
	}
	t.Logf("rotation: %d commands, %d pipelines", counter.commands.Load(), counter.pipelines.Load())
}
