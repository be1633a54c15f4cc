package sessiongate

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// LoadConfig builds a Config from [DefaultConfig] overlaid with an optional
// config file and environment variables. Keys follow the section layout,
// e.g. SESSIONGATE_JWT_ACCESS_TTL=10m or SESSIONGATE_RISK_REAUTH_THRESHOLD=60
// for prefix "SESSIONGATE". Key material (JWT keys, refresh pepper) is read
// base64-encoded. The result is validated.
func LoadConfig(prefix string, configFile string) (Config, error) {
	v := viper.New()
	if prefix != "" {
		v.SetEnvPrefix(prefix)
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	def := DefaultConfig()
	v.SetDefault("jwt.access_ttl", def.JWT.AccessTTL)
	v.SetDefault("jwt.signing_method", def.JWT.SigningMethod)
	v.SetDefault("jwt.private_key", "")
	v.SetDefault("jwt.public_key", "")
	v.SetDefault("jwt.issuer", def.JWT.Issuer)
	v.SetDefault("jwt.audience", def.JWT.Audience)
	v.SetDefault("jwt.leeway", def.JWT.Leeway)
	v.SetDefault("refresh.ttl", def.Refresh.TTL)
	v.SetDefault("refresh.reduced_ttl", def.Refresh.ReducedTTL)
	v.SetDefault("refresh.pepper", "")
	v.SetDefault("refresh.chain_retention", def.Refresh.ChainRetention)
	v.SetDefault("session.idle_timeout", def.Session.IdleTimeout)
	v.SetDefault("session.absolute_lifetime", def.Session.AbsoluteLifetime)
	v.SetDefault("session.redis_prefix", def.Session.RedisPrefix)
	v.SetDefault("session.max_reauth_attempts", def.Session.MaxReauthAttempts)
	v.SetDefault("session.reauth_window", def.Session.ReauthWindow)
	v.SetDefault("risk.rotate_enabled", def.Risk.RotateEnabled)
	v.SetDefault("risk.rotate_threshold", def.Risk.RotateThreshold)
	v.SetDefault("risk.reauth_enabled", def.Risk.ReauthEnabled)
	v.SetDefault("risk.reauth_threshold", def.Risk.ReauthThreshold)
	v.SetDefault("storage.operation_timeout", def.Storage.OperationTimeout)
	v.SetDefault("storage.max_retries", def.Storage.MaxRetries)
	v.SetDefault("storage.retry_backoff", def.Storage.RetryBackoff)
	v.SetDefault("audit.enabled", def.Audit.Enabled)
	v.SetDefault("audit.buffer_size", def.Audit.BufferSize)
	v.SetDefault("audit.drop_if_full", def.Audit.DropIfFull)
	v.SetDefault("audit.stream_key", def.Audit.StreamKey)
	v.SetDefault("audit.stream_max_len", def.Audit.StreamMaxLen)
	v.SetDefault("metrics.enabled", def.Metrics.Enabled)
	v.SetDefault("metrics.enable_latency_histograms", def.Metrics.EnableLatencyHistograms)

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", configFile, err)
		}
	}

	cfg := Config{
		JWT: JWTConfig{
			AccessTTL:     v.GetDuration("jwt.access_ttl"),
			SigningMethod: strings.ToLower(v.GetString("jwt.signing_method")),
			Issuer:        v.GetString("jwt.issuer"),
			Audience:      v.GetString("jwt.audience"),
			Leeway:        v.GetDuration("jwt.leeway"),
		},
		Refresh: RefreshConfig{
			TTL:            v.GetDuration("refresh.ttl"),
			ReducedTTL:     v.GetDuration("refresh.reduced_ttl"),
			ChainRetention: v.GetDuration("refresh.chain_retention"),
		},
		Session: SessionConfig{
			IdleTimeout:       v.GetDuration("session.idle_timeout"),
			AbsoluteLifetime:  v.GetDuration("session.absolute_lifetime"),
			RedisPrefix:       v.GetString("session.redis_prefix"),
			MaxReauthAttempts: v.GetInt("session.max_reauth_attempts"),
			ReauthWindow:      v.GetDuration("session.reauth_window"),
		},
		Risk: RiskConfig{
			RotateEnabled:   v.GetBool("risk.rotate_enabled"),
			RotateThreshold: v.GetInt("risk.rotate_threshold"),
			ReauthEnabled:   v.GetBool("risk.reauth_enabled"),
			ReauthThreshold: v.GetInt("risk.reauth_threshold"),
		},
		Storage: StorageConfig{
			OperationTimeout: v.GetDuration("storage.operation_timeout"),
			MaxRetries:       v.GetInt("storage.max_retries"),
			RetryBackoff:     v.GetDuration("storage.retry_backoff"),
		},
		Audit: AuditConfig{
			Enabled:      v.GetBool("audit.enabled"),
			BufferSize:   v.GetInt("audit.buffer_size"),
			DropIfFull:   v.GetBool("audit.drop_if_full"),
			StreamKey:    v.GetString("audit.stream_key"),
			StreamMaxLen: v.GetInt64("audit.stream_max_len"),
		},
		Metrics: MetricsConfig{
			Enabled:                 v.GetBool("metrics.enabled"),
			EnableLatencyHistograms: v.GetBool("metrics.enable_latency_histograms"),
		},
	}

	var err error
	if cfg.JWT.PrivateKey, err = decodeKey(v, "jwt.private_key"); err != nil {
		return Config{}, err
	}
	if cfg.JWT.PublicKey, err = decodeKey(v, "jwt.public_key"); err != nil {
		return Config{}, err
	}
	if cfg.Refresh.Pepper, err = decodeKey(v, "refresh.pepper"); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func decodeKey(v *viper.Viper, key string) ([]byte, error) {
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" {
		return nil, nil
	}
	out, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("config: %s is not valid base64: %w", key, err)
	}
	return out, nil
}
