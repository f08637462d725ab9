package realtime

import (
	"slices"
	"strings"
	"time"
)

// GatewayConfig configures WSGateway. Field tags are read by
// github.com/caarlos0/env under the RELAY_WS_ prefix.
type GatewayConfig struct {
	// AllowedOrigins lists browser origins allowed to connect. "*" disables
	// origin checks; non-browser clients send no Origin and are unaffected
	// unless OriginRequired is set.
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`
	OriginRequired bool     `env:"ORIGIN_REQUIRED" envDefault:"false"`

	SendQueueSize   int           `env:"SEND_QUEUE" envDefault:"256"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"10s"`
	DeliveryTimeout time.Duration `env:"DELIVERY_TIMEOUT" envDefault:"5s"`

	HeartbeatInterval time.Duration `env:"HEARTBEAT_INTERVAL" envDefault:"25s"`
	HeartbeatTimeout  time.Duration `env:"HEARTBEAT_TIMEOUT" envDefault:"5s"`

	RateEvents int           `env:"RATE_EVENTS" envDefault:"120"`
	RateWindow time.Duration `env:"RATE_WINDOW" envDefault:"10s"`

	MaxFrameBytes int64 `env:"MAX_FRAME_BYTES" envDefault:"16777216"`
}

// DefaultGatewayConfig returns the built-in defaults.
func DefaultGatewayConfig() GatewayConfig {
	return GatewayConfig{}.withDefaults()
}

func (c GatewayConfig) withDefaults() GatewayConfig {
	if len(c.AllowedOrigins) == 0 {
		c.AllowedOrigins = []string{"*"}
	}
	if c.SendQueueSize <= 0 {
		c.SendQueueSize = defaultSendQueueSize
	}
	if c.SendQueueSize < minSendQueueSize {
		c.SendQueueSize = minSendQueueSize
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = defaultWriteTimeout
	}
	if c.DeliveryTimeout <= 0 {
		c.DeliveryTimeout = defaultDeliveryTimeout
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = heartbeatInterval
	}
	if c.HeartbeatTimeout <= 0 {
		c.HeartbeatTimeout = heartbeatTimeout
	}
	if c.RateEvents <= 0 {
		c.RateEvents = rateLimitEvents
	}
	if c.RateWindow <= 0 {
		c.RateWindow = rateLimitWindow
	}
	if c.MaxFrameBytes <= 0 {
		c.MaxFrameBytes = defaultMaxFrameBytes
	}
	return c
}

// anyOrigin reports whether the allowlist contains the "*" wildcard.
func (c GatewayConfig) anyOrigin() bool {
	return slices.ContainsFunc(c.AllowedOrigins, func(s string) bool {
		return strings.TrimSpace(s) == "*"
	})
}
