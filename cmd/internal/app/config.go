package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	authapi "relay/cmd/internal/auth/api"
	"relay/cmd/internal/realtime"

	"github.com/caarlos0/env/v11"
)

// EnvPrefix is prepended to every variable LoadConfig reads.
const EnvPrefix = "RELAY_"

// Database drivers accepted by DBDriver.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
	DriverMemory   = "memory"
)

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr  string `env:"HTTP_ADDR" envDefault:"0.0.0.0:8000"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	ReadHeaderTimeout time.Duration `env:"HTTP_READ_HEADER_TIMEOUT" envDefault:"5s"`
	IdleTimeout       time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"60s"`
	ShutdownTimeout   time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"10s"`
	MaxHeaderBytes    int           `env:"HTTP_MAX_HEADER_BYTES" envDefault:"1048576"`

	// DBDriver selects the account store: sqlite, postgres, mysql or memory.
	DBDriver   string `env:"DB_DRIVER" envDefault:"sqlite"`
	DBDSN      string `env:"DB_DSN" envDefault:"./users.db"`
	DBMaxConns int32  `env:"DB_MAX_CONNS" envDefault:"10"`

	// If true, /readyz returns 503 unless a persistent store is configured and reachable.
	ReadinessRequireDB bool `env:"READINESS_REQUIRE_DB"`

	CORSAllowedOrigins   []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`
	CORSAllowCredentials bool     `env:"CORS_ALLOW_CREDENTIALS"`
	CORSMaxAgeSeconds    int      `env:"CORS_MAX_AGE_SECONDS" envDefault:"600"`

	MetricsEnabled bool `env:"METRICS_ENABLED" envDefault:"true"`

	WS   realtime.GatewayConfig `envPrefix:"WS_"`
	Auth authapi.Config         `envPrefix:"AUTH_"`
}

// DefaultConfig returns the configuration used when no variable is set.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:           "0.0.0.0:8000",
		LogLevel:           "info",
		LogFormat:          "json",
		ReadHeaderTimeout:  5 * time.Second,
		IdleTimeout:        60 * time.Second,
		ShutdownTimeout:    10 * time.Second,
		MaxHeaderBytes:     1 << 20,
		DBDriver:           DriverSQLite,
		DBDSN:              "./users.db",
		DBMaxConns:         10,
		CORSAllowedOrigins: []string{"*"},
		CORSMaxAgeSeconds:  600,
		MetricsEnabled:     true,
		WS:                 realtime.DefaultGatewayConfig(),
		Auth:               authapi.DefaultConfig(),
	}
}

// LoadConfig loads Config from RELAY_* environment variables and validates it.
func LoadConfig() (Config, error) {
	cfg := DefaultConfig()
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	cfg.DBDriver = strings.ToLower(strings.TrimSpace(cfg.DBDriver))
	cfg.LogFormat = strings.ToLower(strings.TrimSpace(cfg.LogFormat))
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports the first unusable setting.
func (c Config) Validate() error {
	if strings.TrimSpace(c.HTTPAddr) == "" {
		return errors.New("config: RELAY_HTTP_ADDR is empty")
	}
	switch c.DBDriver {
	case DriverSQLite, DriverPostgres, DriverMySQL:
		if strings.TrimSpace(c.DBDSN) == "" {
			return fmt.Errorf("config: RELAY_DB_DSN is required for driver %q", c.DBDriver)
		}
	case DriverMemory:
	default:
		return fmt.Errorf("config: unknown RELAY_DB_DRIVER %q", c.DBDriver)
	}
	switch c.LogFormat {
	case "json", "pretty", "text":
	default:
		return fmt.Errorf("config: unknown RELAY_LOG_FORMAT %q", c.LogFormat)
	}
	if c.ReadinessRequireDB && c.DBDriver == DriverMemory {
		return errors.New("config: RELAY_READINESS_REQUIRE_DB=true needs a persistent RELAY_DB_DRIVER")
	}
	if c.CORSAllowCredentials && containsWildcard(c.CORSAllowedOrigins) {
		return errors.New("config: RELAY_CORS_ALLOW_CREDENTIALS=true cannot be combined with origin *")
	}
	return nil
}

func containsWildcard(origins []string) bool {
	for _, o := range origins {
		if strings.TrimSpace(o) == "*" {
			return true
		}
	}
	return false
}
