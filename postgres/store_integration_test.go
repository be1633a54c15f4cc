//go:build integration

package postgres

import (
	"bytes"
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/disappointingsupernova/sessiongate/device"
	"github.com/disappointingsupernova/sessiongate/internal/audit"
	"github.com/disappointingsupernova/sessiongate/refresh"
	"github.com/disappointingsupernova/sessiongate/session"
	"github.com/jackc/pgx/v5/pgxpool"
)

// These tests need SESSIONGATE_TEST_DATABASE_URL pointing at a disposable
// database. The schema is migrated up and the tables truncated per test.

func mustOpenTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	dsn := strings.TrimSpace(os.Getenv("SESSIONGATE_TEST_DATABASE_URL"))
	if dsn == "" {
		t.Skip("integration test skipped: SESSIONGATE_TEST_DATABASE_URL is not set")
	}
	if err := Migrate(dsn, "up"); err != nil {
		t.Fatalf("migrate up: %v", err)
	}

	pool, err := Open(context.Background(), dsn, 8, 3*time.Second)
	if err != nil {
		t.Fatalf("open pool: %v", err)
	}
	t.Cleanup(pool.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := pool.Exec(ctx, `
		TRUNCATE sessiongate.sessions, sessiongate.refresh_credentials, sessiongate.security_events
	`); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	return pool
}

func newTestSession(id, userID string, now time.Time) *session.Session {
	return &session.Session{
		ID:     id,
		UserID: userID,
		Device: device.Context{
			DeviceID:   "dev-1",
			ClientType: device.ClientWeb,
			IP:         "198.51.100.7",
			ASN:        "64500",
			Country:    "US",
		},
		State:             session.StateActive,
		CreatedAt:         now,
		LastSeenAt:        now,
		AbsoluteExpiresAt: now.Add(24 * time.Hour),
	}
}

func TestSessionStoreContract(t *testing.T) {
	pool := mustOpenTestPool(t)
	store := NewSessionStore(pool)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	sess := newTestSession("sid-1", "user-1", now)
	if err := store.Create(ctx, sess); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Create(ctx, sess); !errors.Is(err, session.ErrExists) {
		t.Fatalf("expected ErrExists on duplicate id, got %v", err)
	}

	got, err := store.Get(ctx, "sid-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Device != sess.Device || !got.CreatedAt.Equal(now) || got.State != session.StateActive {
		t.Fatalf("round trip mismatch: %+v", got)
	}

	updated, err := store.Update(ctx, "sid-1", func(s *session.Session) error {
		s.Risk = 40
		s.State = session.StateReauthRequired
		return nil
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Version != 1 || updated.Risk != 40 {
		t.Fatalf("unexpected update result: version=%d risk=%d", updated.Version, updated.Risk)
	}

	same, err := store.Update(ctx, "sid-1", func(*session.Session) error { return session.ErrUnchanged })
	if err != nil || same.Version != 1 {
		t.Fatalf("unchanged update must not write: version=%d err=%v", same.Version, err)
	}

	if _, err := store.Get(ctx, "missing"); !errors.Is(err, session.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSessionStoreUpdateIsSerialized(t *testing.T) {
	pool := mustOpenTestPool(t)
	store := NewSessionStore(pool)
	ctx := context.Background()

	if err := store.Create(ctx, newTestSession("sid-1", "user-1", time.Now().UTC())); err != nil {
		t.Fatalf("create: %v", err)
	}

	const workers = 12
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.Update(ctx, "sid-1", func(s *session.Session) error {
				s.Risk += 5
				return nil
			}); err != nil {
				t.Errorf("update: %v", err)
			}
		}()
	}
	wg.Wait()

	got, err := store.Get(ctx, "sid-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Risk != workers*5 || got.Version != workers {
		t.Fatalf("lost update: risk=%d version=%d", got.Risk, got.Version)
	}
}

func TestSessionStoreRevokeAllAndList(t *testing.T) {
	pool := mustOpenTestPool(t)
	store := NewSessionStore(pool)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	for i, id := range []string{"sid-a", "sid-b"} {
		if err := store.Create(ctx, newTestSession(id, "user-1", now.Add(time.Duration(i)*time.Second))); err != nil {
			t.Fatalf("create %s: %v", id, err)
		}
	}
	if err := store.RevokeAll(ctx, session.ReasonAdminRevokeAll, now.Add(2*time.Second)); err != nil {
		t.Fatalf("revoke all: %v", err)
	}
	if err := store.Create(ctx, newTestSession("sid-c", "user-1", now.Add(3*time.Second))); err != nil {
		t.Fatalf("create after revoke: %v", err)
	}

	list, err := store.ListByUser(ctx, "user-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("expected 3 sessions, got %d", len(list))
	}
	for _, s := range list[:2] {
		if s.State != session.StateRevoked || s.RevokedReason != session.ReasonAdminRevokeAll {
			t.Fatalf("session %s not revoked: %+v", s.ID, s)
		}
	}
	if list[2].State != session.StateActive {
		t.Fatalf("session created after revoke-all must stay active")
	}
}

func mustHasher(t *testing.T) *refresh.Hasher {
	t.Helper()
	h, err := refresh.NewHasher(bytes.Repeat([]byte("p"), refresh.MinPepperLength))
	if err != nil {
		t.Fatalf("hasher: %v", err)
	}
	return h
}

func TestCredentialStoreExchangeOutcomes(t *testing.T) {
	pool := mustOpenTestPool(t)
	store := NewCredentialStore(pool)
	h := mustHasher(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	token, head, err := h.Mint(now, time.Hour)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := store.Insert(ctx, refresh.Head("sid-1", head)); err != nil {
		t.Fatalf("insert: %v", err)
	}
	hash, _ := h.Hash(token)

	_, next, _ := h.Mint(now, time.Hour)
	res, err := store.Exchange(ctx, hash, next, now)
	if err != nil {
		t.Fatalf("exchange: %v", err)
	}
	if res.Issued.PredecessorID != res.Presented.ID || res.Issued.SessionID != "sid-1" {
		t.Fatalf("successor not linked: %+v", res.Issued)
	}

	if _, err := store.Exchange(ctx, hash, next, now); err != nil {
		t.Fatalf("retry with recorded successor must succeed, got %v", err)
	}

	_, other, _ := h.Mint(now, time.Hour)
	res, err = store.Exchange(ctx, hash, other, now)
	if !errors.Is(err, refresh.ErrReuse) || res.Presented == nil {
		t.Fatalf("expected reuse with presented node, got %v", err)
	}

	if _, err := store.Exchange(ctx, "missing", other, now); !errors.Is(err, refresh.ErrUnknown) {
		t.Fatalf("expected ErrUnknown, got %v", err)
	}

	if _, err := store.Exchange(ctx, next.Hash, other, next.ExpiresAt); !errors.Is(err, refresh.ErrExpired) {
		t.Fatalf("expected ErrExpired at expiry instant, got %v", err)
	}

	n, err := store.RevokeSession(ctx, "sid-1", now)
	if err != nil || n != 1 {
		t.Fatalf("expected one live node revoked, got n=%d err=%v", n, err)
	}
	if _, err := store.Exchange(ctx, next.Hash, other, now); !errors.Is(err, refresh.ErrRevoked) {
		t.Fatalf("expected ErrRevoked, got %v", err)
	}

	chain, err := store.Chain(ctx, "sid-1")
	if err != nil {
		t.Fatalf("chain: %v", err)
	}
	if len(chain) != 2 || !chain[0].Consumed() || !chain[1].Revoked() {
		t.Fatalf("unexpected chain: %+v", chain)
	}
}

func TestCredentialStoreConcurrentExchangeSingleWinner(t *testing.T) {
	pool := mustOpenTestPool(t)
	store := NewCredentialStore(pool)
	h := mustHasher(t)
	ctx := context.Background()
	now := time.Now().UTC()

	token, head, _ := h.Mint(now, time.Hour)
	if err := store.Insert(ctx, refresh.Head("sid-1", head)); err != nil {
		t.Fatalf("insert: %v", err)
	}
	hash, _ := h.Hash(token)

	const workers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
		reuse   int
	)
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, next, _ := h.Mint(now, time.Hour)
			<-start
			_, err := store.Exchange(ctx, hash, next, now)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				success++
			case errors.Is(err, refresh.ErrReuse):
				reuse++
			default:
				t.Errorf("unexpected exchange error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	if success != 1 || reuse != workers-1 {
		t.Fatalf("expected exactly one winner, got success=%d reuse=%d", success, reuse)
	}
}

func TestEventSinkStoresOnce(t *testing.T) {
	pool := mustOpenTestPool(t)
	sink := NewEventSink(pool)
	ctx := context.Background()

	ev := audit.New(audit.KindReuseDetected, "sid-1", "user-1", time.Now())
	ev.Detail = map[string]string{"reason": session.ReasonReuseDetected}
	for i := 0; i < 2; i++ {
		if err := sink.Emit(ctx, ev); err != nil {
			t.Fatalf("emit: %v", err)
		}
	}
	if err := sink.Emit(ctx, audit.New(audit.KindLogin, "", "", time.Now())); err != nil {
		t.Fatalf("emit without ids: %v", err)
	}

	var count int
	if err := pool.QueryRow(ctx, `SELECT count(*) FROM sessiongate.security_events`).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 stored events, got %d", count)
	}

	var reason string
	if err := pool.QueryRow(ctx,
		`SELECT detail->>'reason' FROM sessiongate.security_events WHERE id = $1`, ev.ID).Scan(&reason); err != nil {
		t.Fatalf("read detail: %v", err)
	}
	if reason != session.ReasonReuseDetected {
		t.Fatalf("unexpected detail reason %q", reason)
	}
}
