package sessiongate

import (
	"errors"
	"log/slog"
	"time"

	"github.com/disappointingsupernova/sessiongate/internal/audit"
	"github.com/disappointingsupernova/sessiongate/internal/flows"
	"github.com/disappointingsupernova/sessiongate/internal/rate"
	"github.com/disappointingsupernova/sessiongate/jwt"
	"github.com/disappointingsupernova/sessiongate/refresh"
	"github.com/disappointingsupernova/sessiongate/session"
	"github.com/redis/go-redis/v9"
)

// Builder assembles an [Engine]. A Builder is single-use.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	sessionStore    session.Store
	credentialStore refresh.Store

	verifier  PrimaryVerifier
	auditSink EventSink
	logger    *slog.Logger
	now       func() time.Time

	built bool
}

// New returns a builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis backs sessions, refresh chains and (unless another sink is set)
// the event stream with client. Enable ContextTimeoutEnabled in the client
// options so per-call storage timeouts are honored by go-redis.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithStores overrides the session and credential stores, e.g. with the
// postgres package. Either may be nil to keep the Redis default.
func (b *Builder) WithStores(sessions session.Store, credentials refresh.Store) *Builder {
	b.sessionStore = sessions
	b.credentialStore = credentials
	return b
}

// WithPrimaryVerifier sets the collaborator consulted by Reauthenticate.
func (b *Builder) WithPrimaryVerifier(v PrimaryVerifier) *Builder {
	b.verifier = v
	return b
}

func (b *Builder) WithAuditSink(sink EventSink) *Builder {
	b.auditSink = sink
	return b
}

func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithClock replaces the wall clock used for every expiry comparison.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
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

// Build validates the configuration and wires the engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.redis == nil && (b.sessionStore == nil || b.credentialStore == nil) {
		return nil, errors.New("redis client required unless both stores are provided")
	}

	now := b.now
	if now == nil {
		now = time.Now
	}
	logger := b.logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	// -------- STORES --------
	sessions := b.sessionStore
	if sessions == nil {
		sessions = session.NewRedisStore(b.redis, cfg.Session.RedisPrefix, session.DefaultRetention)
	}
	credentials := b.credentialStore
	if credentials == nil {
		credentials = refresh.NewRedisStore(b.redis, cfg.Session.RedisPrefix, cfg.Refresh.ChainRetention)
	}

	hasher, err := refresh.NewHasher(cfg.Refresh.Pepper)
	if err != nil {
		return nil, err
	}

	tokens, err := jwt.NewManager(jwt.Config{
		AccessTTL:     cfg.JWT.AccessTTL,
		SigningMethod: jwt.SigningMethod(cfg.JWT.SigningMethod),
		PrivateKey:    cloneBytes(cfg.JWT.PrivateKey),
		PublicKey:     cloneBytes(cfg.JWT.PublicKey),
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		Leeway:        cfg.JWT.Leeway,
		Now:           now,
	})
	if err != nil {
		return nil, err
	}

	engine := &Engine{
		config:      cloneConfig(cfg),
		credentials: credentials,
		hasher:      hasher,
		tokens:      tokens,
		verifier:    b.verifier,
		reauthLimit: rate.New(b.redis, cfg.Session.RedisPrefix, cfg.Session.MaxReauthAttempts, cfg.Session.ReauthWindow),
		metrics:     NewMetrics(cfg.Metrics),
		logger:      logger.With(slog.String("component", "sessiongate")),
		now:         now,
	}

	engine.storage = flows.Runner{
		Timeout:    cfg.Storage.OperationTimeout,
		MaxRetries: cfg.Storage.MaxRetries,
		Backoff:    cfg.Storage.RetryBackoff,
		Transient:  isTransient,
		OnRetry: func(attempt int, err error) {
			engine.metrics.Inc(MetricStorageRetry)
			engine.logger.Debug("retrying storage call",
				slog.Int("attempt", attempt),
				slog.Any("error", err),
			)
		},
		OnExhausted: func(error) {
			engine.metrics.Inc(MetricStorageUnavailable)
		},
	}

	// -------- RECORDER --------
	sink := b.auditSink
	if sink == nil && b.redis != nil && cfg.Audit.StreamKey != "" {
		sink = audit.NewRedisStreamSink(b.redis, cfg.Audit.StreamKey, cfg.Audit.StreamMaxLen)
	}
	engine.audit = audit.NewDispatcher(audit.Config{
		Enabled:     cfg.Audit.Enabled,
		BufferSize:  cfg.Audit.BufferSize,
		DropIfFull:  cfg.Audit.DropIfFull,
		SinkTimeout: cfg.Storage.OperationTimeout,
		Logger:      logger,
	}, sink)

	// -------- SESSION MANAGER --------
	engine.sessions = session.NewManager(sessions, session.Config{
		IdleTimeout:      cfg.Session.IdleTimeout,
		AbsoluteLifetime: cfg.Session.AbsoluteLifetime,
		Policy:           cfg.Risk.policy(),
		Now:              now,
		Logger:           logger,
	}, engine)

	b.built = true

	return engine, nil
}
