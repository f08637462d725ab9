package realtime

import "time"

// Gateway defaults. Every value can be overridden through GatewayConfig.
const (
	// Payloads are opaque file frames, so the read limit is generous.
	defaultMaxFrameBytes = 16 << 20 // 16 MiB

	defaultSendQueueSize = 256
	minSendQueueSize     = 8

	defaultWriteTimeout    = 10 * time.Second
	defaultDeliveryTimeout = 5 * time.Second

	heartbeatInterval = 25 * time.Second
	heartbeatTimeout  = 5 * time.Second
	maxPingFailures   = 3

	// Per-connection rate limits (frames per window).
	rateLimitEvents = 120
	rateLimitWindow = 10 * time.Second

	closeGrace = 1 * time.Second
)
