package main

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"flag"
	"fmt"
	mrand "math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/disappointingsupernova/sessiongate"
	"github.com/disappointingsupernova/sessiongate/device"
	"github.com/disappointingsupernova/sessiongate/postgres"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

type sessionState struct {
	mu      sync.Mutex
	id      string
	access  string
	refresh string
}

var loadDevice = device.Context{
	DeviceID:   "loadtest",
	ClientType: device.ClientCLI,
	IP:         "203.0.113.10",
	ASN:        "64496",
	Country:    "NL",
}

func main() {
	var (
		sessions    = flag.Int("sessions", 2000, "number of sessions to open")
		concurrency = flag.Int("concurrency", 64, "number of concurrent workers")
		ops         = flag.Int("ops", 20000, "operations per phase")
		racers      = flag.Int("racers", 8, "concurrent refreshes per token in the race phase")
		raceTokens  = flag.Int("race-tokens", 200, "tokens raced in the race phase")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		databaseURL = flag.String("database-url", "", "postgres url; when set, sessions and credentials live in postgres")
		configFile  = flag.String("config", "", "optional sessiongate config file")
	)
	flag.Parse()

	if *sessions <= 0 || *concurrency <= 0 || *ops <= 0 || *racers <= 1 {
		fmt.Fprintln(os.Stderr, "sessions, concurrency and ops must be > 0, racers > 1")
		os.Exit(2)
	}
	_ = godotenv.Load()

	cfg, err := loadConfig(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	cfg.Audit.Enabled = false

	ctx := context.Background()
	client, cleanup := redisClient(*redisAddr)
	defer cleanup()

	builder := sessiongate.New().WithConfig(cfg).WithRedis(client)
	if dsn := firstNonEmpty(*databaseURL, os.Getenv("DATABASE_URL")); dsn != "" {
		if err := postgres.Migrate(dsn, "up"); err != nil {
			fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
			os.Exit(1)
		}
		pool, err := postgres.Open(ctx, dsn, int32(*concurrency), 5*time.Second)
		if err != nil {
			fmt.Fprintf(os.Stderr, "postgres: %v\n", err)
			os.Exit(1)
		}
		defer pool.Close()
		cfg.Audit.Enabled = true
		builder.WithConfig(cfg).
			WithStores(postgres.NewSessionStore(pool), postgres.NewCredentialStore(pool)).
			WithAuditSink(postgres.NewEventSink(pool))
		fmt.Println("using postgres stores and event sink")
	}

	engine, err := builder.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "build engine: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	states := make([]*sessionState, *sessions)
	fmt.Printf("opening %d sessions...\n", *sessions)
	start := time.Now()
	for i := range states {
		res, err := engine.Login(ctx, fmt.Sprintf("user-%d", i%1000), loadDevice)
		if err != nil {
			fmt.Fprintf(os.Stderr, "login failed: %v\n", err)
			os.Exit(1)
		}
		states[i] = &sessionState{id: res.SessionID, access: res.AccessToken, refresh: res.RefreshToken}
	}
	fmt.Printf("opened in %s\n", time.Since(start).Round(time.Millisecond))

	authorize := runPhase(*ops, *concurrency, func(r *mrand.Rand) error {
		s := states[r.Intn(len(states))]
		s.mu.Lock()
		token := s.access
		s.mu.Unlock()
		_, err := engine.Authorize(ctx, token, "")
		return err
	})

	refresh := runPhase(*ops, *concurrency, func(r *mrand.Rand) error {
		s := states[r.Intn(len(states))]
		s.mu.Lock()
		defer s.mu.Unlock()
		res, err := engine.Refresh(ctx, s.refresh, loadDevice)
		if err != nil {
			return err
		}
		s.access, s.refresh = res.AccessToken, res.RefreshToken
		return nil
	})

	race := runRace(ctx, engine, states, *raceTokens, *racers)

	fmt.Println("---- results ----")
	printStats("authorize", authorize)
	printStats("refresh", refresh)
	fmt.Printf("race: tokens=%d winners=%d reuse=%d revoked=%d other=%d violations=%d\n",
		race.tokens, race.winners, race.reuse, race.revoked, race.other, race.violations)

	snap := engine.MetricsSnapshot()
	fmt.Printf("metrics: reuse_detected=%d storage_retry=%d storage_unavailable=%d\n",
		snap.Counters[sessiongate.MetricRefreshReuseDetected],
		snap.Counters[sessiongate.MetricStorageRetry],
		snap.Counters[sessiongate.MetricStorageUnavailable])

	if race.violations > 0 {
		os.Exit(1)
	}
}

func loadConfig(file string) (sessiongate.Config, error) {
	cfg, err := sessiongate.LoadConfig("SESSIONGATE", file)
	if err == nil {
		return cfg, nil
	}
	if os.Getenv("SESSIONGATE_JWT_PRIVATE_KEY") != "" || file != "" {
		return sessiongate.Config{}, err
	}

	// No key material configured: run with throwaway keys.
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return sessiongate.Config{}, err
	}
	pepper := make([]byte, 32)
	if _, err := rand.Read(pepper); err != nil {
		return sessiongate.Config{}, err
	}
	cfg = sessiongate.DefaultConfig()
	cfg.JWT.PrivateKey = priv
	cfg.Refresh.Pepper = pepper
	fmt.Println("no key material configured, using ephemeral keys")
	return cfg, cfg.Validate()
}

func redisClient(addr string) (redis.UniversalClient, func()) {
	addr = firstNonEmpty(addr, os.Getenv("REDIS_ADDR"))
	if addr != "" {
		client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		fmt.Printf("using redis at %s\n", addr)
		return client, func() { _ = client.Close() }
	}

	mr, err := miniredis.Run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
		os.Exit(1)
	}
	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
	fmt.Printf("using miniredis at %s\n", mr.Addr())
	return client, func() {
		_ = client.Close()
		mr.Close()
	}
}

type raceStats struct {
	tokens, winners, reuse, revoked, other, violations int
}

// runRace presents each of n fresh refresh secrets from racers goroutines at
// once. At most one may win, and the session must be unusable afterwards.
func runRace(ctx context.Context, engine *sessiongate.Engine, states []*sessionState, n, racers int) raceStats {
	var out raceStats
	for i := 0; i < n && i < len(states); i++ {
		s := states[i]
		s.mu.Lock()
		token := s.refresh
		s.mu.Unlock()

		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			winners int
		)
		gate := make(chan struct{})
		for j := 0; j < racers; j++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-gate
				_, err := engine.Refresh(ctx, token, loadDevice)
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					winners++
				case errors.Is(err, sessiongate.ErrReuseDetected):
					out.reuse++
				case errors.Is(err, sessiongate.ErrSessionRevoked):
					out.revoked++
				default:
					out.other++
				}
			}()
		}
		close(gate)
		wg.Wait()

		out.tokens++
		out.winners += winners
		if winners > 1 || engine.IsUsable(ctx, s.id) {
			out.violations++
		}
	}
	return out
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func runPhase(ops, concurrency int, op func(r *mrand.Rand) error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := mrand.New(mrand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for atomic.AddInt64(&cursor, 1) <= int64(ops) {
				t0 := time.Now()
				err := op(r)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

