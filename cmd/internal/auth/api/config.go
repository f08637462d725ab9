package authapi

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

const defaultMaxBodyBytes int64 = 1 << 20 // 1 MiB

// Config controls the HTTP auth endpoints.
type Config struct {
	// MaxBodyBytes caps JSON and form request bodies.
	MaxBodyBytes int64 `env:"MAX_BODY_BYTES" envDefault:"1048576"`
	// TrustProxy makes X-Forwarded-For / X-Real-IP count for logged client addresses.
	TrustProxy bool `env:"TRUST_PROXY"`
}

// DefaultConfig returns the baseline used when nothing is configured.
func DefaultConfig() Config {
	return Config{MaxBodyBytes: defaultMaxBodyBytes}
}

// LoadConfigFromEnv reads RELAY_AUTH_MAX_BODY_BYTES and RELAY_AUTH_TRUST_PROXY.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: "RELAY_AUTH_"}); err != nil {
		return Config{}, fmt.Errorf("auth config: %w", err)
	}
	return cfg.withDefaults(), nil
}

func (c Config) withDefaults() Config {
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = defaultMaxBodyBytes
	}
	return c
}
