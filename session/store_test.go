package session

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/disappointingsupernova/sessiongate/device"
	"github.com/redis/go-redis/v9"
)

func newSessionStoreTest(t *testing.T) (*RedisStore, *miniredis.Miniredis, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisStore(rdb, "sg", time.Hour)
	return store, mr, func() {
		rdb.Close()
		mr.Close()
	}
}

func testSession(id string) *Session {
	now := time.Now().UTC()
	return &Session{
		ID:     id,
		UserID: "u-1",
		Device: device.Context{
			DeviceID:   "dev-1",
			ClientType: device.ClientWeb,
			IP:         "198.51.100.1",
			ASN:        "64500",
			Country:    "US",
		},
		State:             StateActive,
		CreatedAt:         now,
		LastSeenAt:        now,
		AbsoluteExpiresAt: now.Add(24 * time.Hour),
	}
}

func TestRedisStoreCreateGet(t *testing.T) {
	store, mr, done := newSessionStoreTest(t)
	defer done()
	ctx := context.Background()

	sess := testSession("sid-1")
	if err := store.Create(ctx, sess); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Create(ctx, sess); !errors.Is(err, ErrExists) {
		t.Fatalf("expected ErrExists on duplicate create, got %v", err)
	}

	got, err := store.Get(ctx, "sid-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.UserID != "u-1" || got.Device.Country != "US" || got.State != StateActive {
		t.Fatalf("unexpected session: %+v", got)
	}
	if ttl := mr.TTL("sg:s:sid-1"); ttl <= 24*time.Hour {
		t.Fatalf("expected ttl beyond absolute expiry, got %v", ttl)
	}

	if _, err := store.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRedisStoreUpdateIsSerialized(t *testing.T) {
	store, _, done := newSessionStoreTest(t)
	defer done()
	ctx := context.Background()

	if err := store.Create(ctx, testSession("sid-1")); err != nil {
		t.Fatalf("create: %v", err)
	}

	const workers = 16
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Update(ctx, "sid-1", func(s *Session) error {
				s.Risk += 2
				return nil
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		if err == nil {
			succeeded++
		} else if !errors.Is(err, ErrUnavailable) {
			t.Fatalf("unexpected update error: %v", err)
		}
	}

	got, err := store.Get(ctx, "sid-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Risk != 2*succeeded || int(got.Version) != succeeded {
		t.Fatalf("lost update: risk=%d version=%d successes=%d", got.Risk, got.Version, succeeded)
	}
}

func TestRedisStoreUpdateAbortsWithoutWrite(t *testing.T) {
	store, _, done := newSessionStoreTest(t)
	defer done()
	ctx := context.Background()

	if err := store.Create(ctx, testSession("sid-1")); err != nil {
		t.Fatalf("create: %v", err)
	}
	boom := errors.New("boom")
	if _, err := store.Update(ctx, "sid-1", func(s *Session) error {
		s.Risk = 99
		return boom
	}); !errors.Is(err, boom) {
		t.Fatalf("expected fn error to surface, got %v", err)
	}
	if _, err := store.Update(ctx, "sid-1", func(*Session) error { return ErrUnchanged }); err != nil {
		t.Fatalf("unchanged update: %v", err)
	}

	got, _ := store.Get(ctx, "sid-1")
	if got.Risk != 0 || got.Version != 0 {
		t.Fatalf("aborted update must not persist: %+v", got)
	}
	if _, err := store.Update(ctx, "missing", func(*Session) error { return nil }); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRedisStoreRevokeAllEpoch(t *testing.T) {
	store, _, done := newSessionStoreTest(t)
	defer done()
	ctx := context.Background()

	old := testSession("sid-old")
	if err := store.Create(ctx, old); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.RevokeAll(ctx, ReasonAdminRevokeAll, time.Now().UTC()); err != nil {
		t.Fatalf("revoke all: %v", err)
	}

	fresh := testSession("sid-new")
	fresh.CreatedAt = time.Now().UTC().Add(time.Second)
	if err := store.Create(ctx, fresh); err != nil {
		t.Fatalf("create fresh: %v", err)
	}

	got, _ := store.Get(ctx, "sid-old")
	if got.State != StateRevoked || got.RevokedReason != ReasonAdminRevokeAll {
		t.Fatalf("expected old session revoked by epoch, got %+v", got)
	}
	got, _ = store.Get(ctx, "sid-new")
	if got.State != StateActive {
		t.Fatalf("session created after epoch must stay active, got %v", got.State)
	}

	list, err := store.ListByUser(ctx, "u-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(list))
	}
}

func TestRedisStoreRevokeAllEpochNeverMovesBack(t *testing.T) {
	store, mr, done := newSessionStoreTest(t)
	defer done()
	ctx := context.Background()

	sess := testSession("sid-1")
	if err := store.Create(ctx, sess); err != nil {
		t.Fatalf("create: %v", err)
	}
	later := sess.CreatedAt.Add(time.Second)
	if err := store.RevokeAll(ctx, ReasonAdminRevokeAll, later); err != nil {
		t.Fatalf("revoke all: %v", err)
	}
	// A node with a lagging clock repeats the emergency revoke.
	if err := store.RevokeAll(ctx, "lagging", sess.CreatedAt.Add(-time.Second)); err != nil {
		t.Fatalf("revoke all behind: %v", err)
	}

	got, err := store.Get(ctx, "sid-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.State != StateRevoked || got.RevokedReason != ReasonAdminRevokeAll {
		t.Fatalf("revoked session must stay revoked, got state=%v reason=%q", got.State, got.RevokedReason)
	}
	if at := mr.HGet("sg:revoke_all", "at"); at != strconv.FormatInt(later.UnixNano(), 10) {
		t.Fatalf("epoch moved to %s", at)
	}

	if err := store.RevokeAll(ctx, "second", later.Add(time.Second)); err != nil {
		t.Fatalf("revoke all ahead: %v", err)
	}
	if reason := mr.HGet("sg:revoke_all", "reason"); reason != "second" {
		t.Fatalf("epoch must advance, reason=%q", reason)
	}
}

func TestRedisStoreListPrunesExpiredIDs(t *testing.T) {
	store, mr, done := newSessionStoreTest(t)
	defer done()
	ctx := context.Background()

	if err := store.Create(ctx, testSession("sid-1")); err != nil {
		t.Fatalf("create: %v", err)
	}
	mr.Del("sg:s:sid-1")

	list, err := store.ListByUser(ctx, "u-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("expected no sessions, got %d", len(list))
	}
	if ok, _ := mr.SIsMember("sg:u:u-1", "sid-1"); ok {
		t.Fatal("expected stale id to be pruned from user index")
	}
}

func TestRedisStoreUnavailable(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer rdb.Close()
	store := NewRedisStore(rdb, "sg", time.Hour)
	mr.Close()

	if _, err := store.Get(context.Background(), "sid-1"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if err := store.Ping(context.Background()); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ping ErrUnavailable, got %v", err)
	}
}
