package sessiongate

import (
	"errors"
	"fmt"
	"time"

	"github.com/disappointingsupernova/sessiongate/refresh"
	"github.com/disappointingsupernova/sessiongate/risk"
	"github.com/disappointingsupernova/sessiongate/session"
)

// Config is the complete engine configuration. The engine keeps a private
// copy taken at Build; mutating a Config afterwards has no effect.
type Config struct {
	JWT     JWTConfig
	Refresh RefreshConfig
	Session SessionConfig
	Risk    RiskConfig
	Storage StorageConfig
	Audit   AuditConfig
	Metrics MetricsConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig holds access-token signing material.
type JWTConfig struct {
	AccessTTL     time.Duration
	SigningMethod string // "ed25519" (default) or "hs256"
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
}

/*
====================================
REFRESH CONFIG
====================================
*/

// RefreshConfig controls refresh credential lifetimes and hashing.
type RefreshConfig struct {
	TTL time.Duration
	// ReducedTTL is the lifetime of a credential minted while the session's
	// risk is at or above the rotate threshold.
	ReducedTTL     time.Duration
	Pepper         []byte
	ChainRetention time.Duration
}

/*
====================================
SESSION CONFIG
====================================
*/

type SessionConfig struct {
	IdleTimeout      time.Duration
	AbsoluteLifetime time.Duration
	RedisPrefix      string
	// MaxReauthAttempts failed re-verifications lock a session's
	// Reauthenticate for ReauthWindow. 0 disables the limiter.
	MaxReauthAttempts int
	ReauthWindow      time.Duration
}

/*
====================================
RISK CONFIG
====================================
*/

// RiskConfig sets the two independent policy actions of the risk engine.
type RiskConfig struct {
	RotateEnabled   bool
	RotateThreshold int
	ReauthEnabled   bool
	ReauthThreshold int
}

func (r RiskConfig) policy() risk.Policy {
	return risk.Policy{
		RotateEnabled:   r.RotateEnabled,
		RotateThreshold: r.RotateThreshold,
		ReauthEnabled:   r.ReauthEnabled,
		ReauthThreshold: r.ReauthThreshold,
	}
}

/*
====================================
STORAGE CONFIG
====================================
*/

// StorageConfig bounds every persistence call. Only storage-unavailable
// failures are retried, at most MaxRetries times.
type StorageConfig struct {
	OperationTimeout time.Duration
	MaxRetries       int
	RetryBackoff     time.Duration
}

/*
====================================
AUDIT / METRICS CONFIG
====================================
*/

type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
	// StreamKey names the Redis stream used when no sink is configured and
	// the engine was given a Redis client. Empty disables the default sink.
	StreamKey    string
	StreamMaxLen int64
}

type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the documented defaults. Signing keys and the
// refresh pepper have no default and must be supplied.
func DefaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:     15 * time.Minute,
			SigningMethod: "ed25519",
			Leeway:        5 * time.Second,
		},
		Refresh: RefreshConfig{
			TTL:            refresh.DefaultTTL,
			ReducedTTL:     refresh.DefaultReducedTTL,
			ChainRetention: refresh.DefaultChainRetention,
		},
		Session: SessionConfig{
			IdleTimeout:       session.DefaultIdleTimeout,
			AbsoluteLifetime:  session.DefaultAbsoluteLifetime,
			RedisPrefix:       "sg",
			MaxReauthAttempts: 5,
			ReauthWindow:      15 * time.Minute,
		},
		Risk: RiskConfig{
			RotateEnabled:   true,
			RotateThreshold: risk.DefaultRotateThreshold,
			ReauthEnabled:   true,
			ReauthThreshold: risk.DefaultReauthThreshold,
		},
		Storage: StorageConfig{
			OperationTimeout: 2 * time.Second,
			MaxRetries:       2,
			RetryBackoff:     25 * time.Millisecond,
		},
		Audit: AuditConfig{
			Enabled:      true,
			BufferSize:   1024,
			DropIfFull:   true,
			StreamKey:    "sg:events",
			StreamMaxLen: 1_000_000,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	out.Refresh.Pepper = cloneBytes(cfg.Refresh.Pepper)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first configuration error found.
func (c *Config) Validate() error {
	// JWT
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if c.JWT.SigningMethod != "ed25519" && c.JWT.SigningMethod != "hs256" {
		return errors.New("unsupported JWT signing method")
	}
	if len(c.JWT.PrivateKey) == 0 {
		return fmt.Errorf("%s requires PrivateKey", c.JWT.SigningMethod)
	}
	if c.JWT.SigningMethod == "hs256" && len(c.JWT.PrivateKey) < 32 {
		return errors.New("hs256 PrivateKey must be at least 32 bytes")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway must be within [0, 2m]")
	}

	// Refresh
	if c.Refresh.TTL <= 0 {
		return errors.New("Refresh TTL must be > 0")
	}
	if c.Refresh.ReducedTTL <= 0 || c.Refresh.ReducedTTL > c.Refresh.TTL {
		return errors.New("Refresh ReducedTTL must be > 0 and <= TTL")
	}
	if len(c.Refresh.Pepper) < refresh.MinPepperLength {
		return fmt.Errorf("Refresh Pepper must be at least %d bytes", refresh.MinPepperLength)
	}
	if c.Refresh.ChainRetention < c.Refresh.TTL {
		return errors.New("Refresh ChainRetention must be >= TTL")
	}

	// Session
	if c.Session.IdleTimeout <= 0 {
		return errors.New("Session IdleTimeout must be > 0")
	}
	if c.Session.AbsoluteLifetime <= 0 {
		return errors.New("Session AbsoluteLifetime must be > 0")
	}
	if c.Session.IdleTimeout > c.Session.AbsoluteLifetime {
		return errors.New("Session IdleTimeout must be <= AbsoluteLifetime")
	}
	if c.Session.RedisPrefix == "" {
		return errors.New("Session RedisPrefix must not be empty")
	}
	if c.Session.MaxReauthAttempts < 0 {
		return errors.New("Session MaxReauthAttempts must be >= 0")
	}
	if c.Session.MaxReauthAttempts > 0 && c.Session.ReauthWindow <= 0 {
		return errors.New("Session ReauthWindow must be > 0 when attempts are limited")
	}

	// Risk
	if err := c.Risk.policy().Validate(); err != nil {
		return err
	}

	// Storage
	if c.Storage.OperationTimeout <= 0 {
		return errors.New("Storage OperationTimeout must be > 0")
	}
	if c.Storage.MaxRetries < 0 || c.Storage.MaxRetries > 10 {
		return errors.New("Storage MaxRetries must be within [0, 10]")
	}
	if c.Storage.RetryBackoff < 0 {
		return errors.New("Storage RetryBackoff must be >= 0")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when enabled")
	}
	if c.Audit.StreamMaxLen < 0 {
		return errors.New("Audit StreamMaxLen must be >= 0")
	}

	return nil
}
