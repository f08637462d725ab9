package realtime

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type relayHarness struct {
	gw      *WSGateway
	srv     *httptest.Server
	metrics *Metrics
}

func newRelayHarness(t *testing.T, cfg GatewayConfig) *relayHarness {
	t.Helper()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := NewMetrics(prometheus.NewRegistry())
	gw := NewWSGateway(log, NewRegistry(log), m, cfg)

	mux := http.NewServeMux()
	mux.Handle("GET /ws/{user_id}", gw)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return &relayHarness{gw: gw, srv: srv, metrics: m}
}

// connect dials /ws/{id} and waits until the server has registered it.
func (h *relayHarness) connect(t *testing.T, id string) *websocket.Conn {
	t.Helper()

	prev, _ := h.gw.Registry().Get(id)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	u := "ws" + strings.TrimPrefix(h.srv.URL, "http") + "/ws/" + id
	c, resp, err := websocket.Dial(ctx, u, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	require.NoError(t, err)
	c.SetReadLimit(64 << 20)
	t.Cleanup(func() { _ = c.CloseNow() })

	h.waitFor(t, func() bool {
		cur, ok := h.gw.Registry().Get(id)
		return ok && cur != prev
	}, "registration of "+id)
	return c
}

func (h *relayHarness) waitFor(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func send(t *testing.T, c *websocket.Conn, frame string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.Write(ctx, websocket.MessageText, []byte(frame)))
}

func readFrame(t *testing.T, c *websocket.Conn) map[string]json.RawMessage {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, data, err := c.Read(ctx)
	require.NoError(t, err)

	var out map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

func action(t *testing.T, f map[string]json.RawMessage) string {
	t.Helper()
	var s string
	require.NoError(t, json.Unmarshal(f["action"], &s))
	return s
}

func message(t *testing.T, f map[string]json.RawMessage) string {
	t.Helper()
	var s string
	require.NoError(t, json.Unmarshal(f["message"], &s))
	return s
}

func TestWSGateway_RelaysSendFile(t *testing.T) {
	h := newRelayHarness(t, GatewayConfig{})
	a := h.connect(t, "AAAA1111")
	b := h.connect(t, "BBBB2222")

	frame := `{"action":"send_file","sender":"AAAA1111","recipient":"BBBB2222","file_name":"a.txt","file_data":"aGVsbG8="}`
	send(t, a, frame)

	got := readFrame(t, b)
	assert.Equal(t, "receive_file", action(t, got))
	assert.JSONEq(t, frame, string(got["data"]))

	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.frames.WithLabelValues("send_file", OutcomeDelivered)))
	assert.Equal(t, 2.0, testutil.ToFloat64(h.metrics.connections))
}

func TestWSGateway_LargePayloadIntact(t *testing.T) {
	h := newRelayHarness(t, GatewayConfig{})
	a := h.connect(t, "AAAA1111")
	b := h.connect(t, "BBBB2222")

	blob := strings.Repeat("Zm9vYmFy", 1<<17) // 1 MiB of base64
	frame := `{"action":"send_file","sender":"AAAA1111","recipient":"BBBB2222","file_data":"` + blob + `"}`
	send(t, a, frame)

	got := readFrame(t, b)
	var data struct {
		FileData string `json:"file_data"`
	}
	require.NoError(t, json.Unmarshal(got["data"], &data))
	assert.Equal(t, blob, data.FileData)
}

func TestWSGateway_RecipientMissingNotifiesSender(t *testing.T) {
	h := newRelayHarness(t, GatewayConfig{})
	a := h.connect(t, "AAAA1111")

	send(t, a, `{"action":"send_file","sender":"AAAA1111","recipient":"ZZZZ9999","file_data":"eA=="}`)

	got := readFrame(t, a)
	assert.Equal(t, "error", action(t, got))
	assert.Equal(t, "Recipient not found or not connected.", message(t, got))
}

func TestWSGateway_NoticeGoesToNamedSender(t *testing.T) {
	h := newRelayHarness(t, GatewayConfig{})
	a := h.connect(t, "AAAA1111")
	c := h.connect(t, "CCCC3333")

	// A claims to be C; the notice follows the claim.
	send(t, a, `{"action":"send_file","sender":"CCCC3333","recipient":"ZZZZ9999"}`)

	got := readFrame(t, c)
	assert.Equal(t, "error", action(t, got))

	// Nothing was queued for A: its next frame is its own loopback.
	send(t, a, `{"action":"send_file","sender":"AAAA1111","recipient":"AAAA1111","n":1}`)
	assert.Equal(t, "receive_file", action(t, readFrame(t, a)))
}

func TestWSGateway_UnknownSenderNoticeDropped(t *testing.T) {
	h := newRelayHarness(t, GatewayConfig{})
	a := h.connect(t, "AAAA1111")

	send(t, a, `{"action":"send_file","sender":"GHOST000","recipient":"ZZZZ9999"}`)
	send(t, a, `{"action":"send_file","recipient":"ZZZZ9999"}`)
	send(t, a, `{"action":"send_file","sender":"AAAA1111","recipient":"AAAA1111","n":2}`)

	got := readFrame(t, a)
	assert.Equal(t, "receive_file", action(t, got))
	assert.Equal(t, 2.0, testutil.ToFloat64(h.metrics.frames.WithLabelValues("error", OutcomeNotificationDropped)))
}

func TestWSGateway_InvalidJSONKeepsConnection(t *testing.T) {
	h := newRelayHarness(t, GatewayConfig{})
	a := h.connect(t, "AAAA1111")

	send(t, a, `{"action":"send_file",`)
	got := readFrame(t, a)
	assert.Equal(t, "error", action(t, got))
	assert.Equal(t, "Invalid frame.", message(t, got))

	send(t, a, `[1,2,3]`)
	assert.Equal(t, "Invalid frame.", message(t, readFrame(t, a)))

	send(t, a, `{"action":"send_file","sender":"AAAA1111","recipient":"AAAA1111"}`)
	assert.Equal(t, "receive_file", action(t, readFrame(t, a)))
}

func TestWSGateway_UnknownActionIgnored(t *testing.T) {
	h := newRelayHarness(t, GatewayConfig{})
	a := h.connect(t, "AAAA1111")

	send(t, a, `{"action":"ping"}`)
	send(t, a, `{"recipient":"AAAA1111"}`)
	send(t, a, `{"action":"send_file","sender":"AAAA1111","recipient":"AAAA1111","n":3}`)

	got := readFrame(t, a)
	assert.Equal(t, "receive_file", action(t, got))
	assert.Equal(t, 2.0, testutil.ToFloat64(h.metrics.frames.WithLabelValues("unknown", OutcomeIgnored)))
}

func TestWSGateway_DisconnectDeregisters(t *testing.T) {
	h := newRelayHarness(t, GatewayConfig{})
	a := h.connect(t, "AAAA1111")
	b := h.connect(t, "BBBB2222")

	require.NoError(t, b.Close(websocket.StatusNormalClosure, "done"))
	h.waitFor(t, func() bool {
		_, ok := h.gw.Registry().Get("BBBB2222")
		return !ok
	}, "deregistration")

	send(t, a, `{"action":"send_file","sender":"AAAA1111","recipient":"BBBB2222"}`)
	assert.Equal(t, "Recipient not found or not connected.", message(t, readFrame(t, a)))

	h.waitFor(t, func() bool {
		return testutil.ToFloat64(h.metrics.connections) == 1
	}, "connection gauge")
}

func TestWSGateway_ReconnectReplacesOldConnection(t *testing.T) {
	h := newRelayHarness(t, GatewayConfig{})
	a := h.connect(t, "AAAA1111")
	b1 := h.connect(t, "BBBB2222")
	b2 := h.connect(t, "BBBB2222")

	// The replaced connection is closed by the server.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, _, err := b1.Read(ctx)
	require.Error(t, err)

	// Its teardown must not evict the successor.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 2, h.gw.Registry().Len())

	send(t, a, `{"action":"send_file","sender":"AAAA1111","recipient":"BBBB2222","v":2}`)
	got := readFrame(t, b2)
	assert.Equal(t, "receive_file", action(t, got))
}

func TestWSGateway_EmptyUserIDRejected(t *testing.T) {
	gw := NewWSGateway(slog.New(slog.NewTextHandler(io.Discard, nil)), nil, nil, GatewayConfig{})

	rec := httptest.NewRecorder()
	gw.HandleWS(rec, httptest.NewRequest(http.MethodGet, "/ws/", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 0, gw.Registry().Len())
}

func TestWSGateway_OversizedFrameCloses(t *testing.T) {
	h := newRelayHarness(t, GatewayConfig{MaxFrameBytes: 1024})
	a := h.connect(t, "AAAA1111")

	send(t, a, `{"action":"send_file","file_data":"`+strings.Repeat("x", 4096)+`"}`)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, _, err := a.Read(ctx)
	require.Error(t, err)
	assert.Equal(t, websocket.StatusMessageTooBig, websocket.CloseStatus(err))

	h.waitFor(t, func() bool { return h.gw.Registry().Len() == 0 }, "deregistration")
}

func TestWSGateway_RateLimitCloses(t *testing.T) {
	h := newRelayHarness(t, GatewayConfig{RateEvents: 3, RateWindow: time.Minute})
	a := h.connect(t, "AAAA1111")

	for i := 0; i < 4; i++ {
		send(t, a, `{"action":"noop"}`)
	}

	f := readFrame(t, a)
	assert.Equal(t, "error", action(t, f))
	assert.Equal(t, "Too many frames.", message(t, f))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var err error
	for err == nil {
		_, _, err = a.Read(ctx)
	}
	assert.Equal(t, websocket.StatusPolicyViolation, websocket.CloseStatus(err))
}

func TestWSGateway_OriginAllowlist(t *testing.T) {
	h := newRelayHarness(t, GatewayConfig{AllowedOrigins: []string{"https://app.example.com"}})
	u := "ws" + strings.TrimPrefix(h.srv.URL, "http") + "/ws/AAAA1111"

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, resp, err := websocket.Dial(ctx, u, &websocket.DialOptions{
		HTTPHeader: http.Header{"Origin": []string{"https://evil.example.net"}},
	})
	require.Error(t, err)
	require.NotNil(t, resp)
	if resp.Body != nil {
		_ = resp.Body.Close()
	}
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	c, resp, err := websocket.Dial(ctx, u, &websocket.DialOptions{
		HTTPHeader: http.Header{"Origin": []string{"https://app.example.com"}},
	})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	require.NoError(t, err)
	_ = c.CloseNow()
}
