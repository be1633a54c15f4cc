package sessiongate

import (
	"context"
	"net"
	"sync/atomic"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// roundTrips is a go-redis hook counting network round trips: one per plain
// command and one per pipeline regardless of its length.
type roundTrips struct {
	n atomic.Int64
}

func (h *roundTrips) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		return next(ctx, network, addr)
	}
}

func (h *roundTrips) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		h.n.Add(1)
		return next(ctx, cmd)
	}
}

func (h *roundTrips) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		h.n.Add(1)
		return next(ctx, cmds)
	}
}

func newBudgetEngine(t *testing.T) (*Engine, *roundTrips) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		t.Fatalf("warmup ping: %v", err)
	}
	counter := &roundTrips{}
	rdb.AddHook(counter)

	cfg := testConfig(t)
	cfg.Audit.Enabled = false
	engine, err := New().WithConfig(cfg).WithRedis(rdb).Build()
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	t.Cleanup(func() {
		engine.Close()
		_ = rdb.Close()
		mr.Close()
	})
	return engine, counter
}

func TestAuthorizeRedisBudget(t *testing.T) {
	engine, counter := newBudgetEngine(t)
	ctx := context.Background()

	login, err := engine.Login(ctx, "user-1", webDevice)
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	counter.n.Store(0)
	if _, err := engine.Authorize(ctx, login.AccessToken, ""); err != nil {
		t.Fatalf("authorize: %v", err)
	}
	if got := counter.n.Load(); got != 1 {
		t.Fatalf("authorize should cost one round trip, got %d", got)
	}
}

func TestRefreshRedisBudget(t *testing.T) {
	engine, counter := newBudgetEngine(t)
	ctx := context.Background()

	// The first exchange loads the Lua script; measure a warm one.
	warm, err := engine.Login(ctx, "user-0", webDevice)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if _, err := engine.Refresh(ctx, warm.RefreshToken, webDevice); err != nil {
		t.Fatalf("warm refresh: %v", err)
	}

	login, err := engine.Login(ctx, "user-1", webDevice)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	counter.n.Store(0)
	if _, err := engine.Refresh(ctx, login.RefreshToken, webDevice); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	// lookup, session check, exchange and the watched touch
	const budget = 10
	if got := counter.n.Load(); got > budget {
		t.Fatalf("refresh exceeded redis budget: %d > %d", got, budget)
	}
}
