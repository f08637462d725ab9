package realtime

import (
	"net/http/httptest"
	"testing"

	"github.com/caarlos0/env/v11"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOriginHostOnly(t *testing.T) {
	cases := map[string]string{
		"https://App.Example.com": "app.example.com",
		"http://localhost:5173":   "localhost",
		"127.0.0.1:8000":          "127.0.0.1",
		"example.org":             "example.org",
		"":                        "",
		"https://":                "",
		"http://[::1]:8000":       "::1",
	}
	for in, want := range cases {
		assert.Equal(t, want, originHostOnly(in), in)
	}
}

func TestDeriveOriginPatterns(t *testing.T) {
	got := deriveOriginPatterns([]string{"https://b.example.com", "*", "http://a.example.com:8080", "https://b.example.com:443"})
	assert.Equal(t, []string{"a.example.com", "b.example.com"}, got)
}

func TestEnforceOrigin(t *testing.T) {
	gw := NewWSGateway(nil, nil, nil, GatewayConfig{AllowedOrigins: []string{"https://app.example.com"}})

	req := httptest.NewRequest("GET", "/ws/x", nil)
	assert.NoError(t, gw.enforceOrigin(req), "native clients send no Origin")

	req.Header.Set("Origin", "https://app.example.com")
	assert.NoError(t, gw.enforceOrigin(req))

	req.Header.Set("Origin", "http://app.example.com:3000")
	assert.NoError(t, gw.enforceOrigin(req), "host match ignores scheme and port")

	req.Header.Set("Origin", "https://evil.example.net")
	assert.Error(t, gw.enforceOrigin(req))

	strict := NewWSGateway(nil, nil, nil, GatewayConfig{OriginRequired: true})
	assert.Error(t, strict.enforceOrigin(httptest.NewRequest("GET", "/ws/x", nil)))

	open := NewWSGateway(nil, nil, nil, GatewayConfig{})
	req.Header.Set("Origin", "https://anything.example")
	assert.NoError(t, open.enforceOrigin(req))
}

func TestGatewayConfig_FromEnv(t *testing.T) {
	t.Setenv("RELAY_WS_ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com")
	t.Setenv("RELAY_WS_SEND_QUEUE", "16")
	t.Setenv("RELAY_WS_DELIVERY_TIMEOUT", "250ms")
	t.Setenv("RELAY_WS_MAX_FRAME_BYTES", "1048576")

	var cfg GatewayConfig
	require.NoError(t, env.ParseWithOptions(&cfg, env.Options{Prefix: "RELAY_WS_"}))

	assert.Len(t, cfg.AllowedOrigins, 2)
	assert.Equal(t, 16, cfg.SendQueueSize)
	assert.Equal(t, int64(1<<20), cfg.MaxFrameBytes)
	assert.Equal(t, "250ms", cfg.DeliveryTimeout.String())
	assert.Equal(t, rateLimitEvents, cfg.RateEvents)
	assert.Equal(t, heartbeatInterval, cfg.HeartbeatInterval)
}

func TestGatewayConfig_Defaults(t *testing.T) {
	cfg := DefaultGatewayConfig()

	assert.Equal(t, []string{"*"}, cfg.AllowedOrigins)
	assert.True(t, cfg.anyOrigin())
	assert.Equal(t, int64(defaultMaxFrameBytes), cfg.MaxFrameBytes)
	assert.Equal(t, defaultDeliveryTimeout, cfg.DeliveryTimeout)
	assert.Equal(t, defaultSendQueueSize, cfg.SendQueueSize)

	small := GatewayConfig{SendQueueSize: 1}.withDefaults()
	assert.Equal(t, minSendQueueSize, small.SendQueueSize)
}
