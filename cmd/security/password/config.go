package password

import (
	"fmt"
	"runtime"

	"github.com/caarlos0/env/v11"
)

// EnvPrefix is prepended to every variable FromEnv reads.
const EnvPrefix = "RELAY_"

// Argon2idParams controls Argon2id hashing cost.
// MemoryKiB is in KiB as required by argon2.IDKey.
type Argon2idParams struct {
	MemoryKiB   uint32 `env:"MEMORY_KIB"`
	Iterations  uint32 `env:"ITERATIONS"`
	Parallelism uint8  `env:"PARALLELISM"`
	SaltLength  uint32 `env:"SALT_LEN"`
	KeyLength   uint32 `env:"KEY_LEN"`
}

// Policy controls password validation and anti-DoS boundaries.
type Policy struct {
	MinLength int `env:"MIN_LEN"`
	// MaxLength of 0 leaves length bounded only by the request body limit.
	MaxLength int `env:"MAX_LEN"`
	// If true, enable an extra, minimal weak-pattern rejection.
	RejectVeryWeak bool `env:"REJECT_VERY_WEAK"`
}

// Config is the single configuration surface for this package.
type Config struct {
	Params Argon2idParams `envPrefix:"ARGON2_"`
	Policy Policy         `envPrefix:"PASSWORD_"`
}

// DefaultConfig returns the production baseline: any non-empty password is
// accepted.
func DefaultConfig() Config {
	// Clamp to [1..4] to keep resource usage predictable in containers.
	threads := runtime.NumCPU()
	if threads <= 0 {
		threads = 1
	}
	if threads > 4 {
		threads = 4
	}

	return Config{
		Params: Argon2idParams{
			MemoryKiB:   64 * 1024, // 64 MiB
			Iterations:  3,
			Parallelism: uint8(threads), // #nosec G115 -- clamped to [1..4] above.
			SaltLength:  16,
			KeyLength:   32,
		},
		Policy: Policy{
			MinLength:      1,
			MaxLength:      0,
			RejectVeryWeak: false,
		},
	}
}

// FromEnv loads config from environment variables on top of DefaultConfig.
//
// Env surface:
// - RELAY_PASSWORD_MIN_LEN
// - RELAY_PASSWORD_MAX_LEN
// - RELAY_PASSWORD_REJECT_VERY_WEAK (true/false)
// - RELAY_ARGON2_MEMORY_KIB
// - RELAY_ARGON2_ITERATIONS
// - RELAY_ARGON2_PARALLELISM
// - RELAY_ARGON2_SALT_LEN
// - RELAY_ARGON2_KEY_LEN
func FromEnv() (Config, error) {
	cfg := DefaultConfig()
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, fmt.Errorf("password config: %w", err)
	}
	if err := cfg.Check(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Check validates the configured bounds.
func (c Config) Check() error {
	type bound struct {
		name     string
		got      uint64
		min, max uint64
	}
	bounds := []bound{
		{"PASSWORD_MIN_LEN", uint64(max(c.Policy.MinLength, 0)), 1, 1024},
		{"PASSWORD_MAX_LEN", uint64(max(c.Policy.MaxLength, 0)), 0, 4096},
		{"ARGON2_MEMORY_KIB", uint64(c.Params.MemoryKiB), 8, 1024 * 1024},
		{"ARGON2_ITERATIONS", uint64(c.Params.Iterations), 1, 20},
		{"ARGON2_PARALLELISM", uint64(c.Params.Parallelism), 1, 64},
		{"ARGON2_SALT_LEN", uint64(c.Params.SaltLength), 8, 64},
		{"ARGON2_KEY_LEN", uint64(c.Params.KeyLength), 16, 64},
	}
	for _, b := range bounds {
		if b.got < b.min || b.got > b.max {
			return fmt.Errorf("%s%s: out of range [%d..%d]", EnvPrefix, b.name, b.min, b.max)
		}
	}

	if c.Policy.MaxLength > 0 && c.Policy.MinLength > c.Policy.MaxLength {
		return fmt.Errorf(
			"password policy invalid: min_len(%d) > max_len(%d)",
			c.Policy.MinLength,
			c.Policy.MaxLength,
		)
	}
	return nil
}
