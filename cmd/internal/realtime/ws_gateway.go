package realtime

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	v1 "relay/shared/contracts/relay/v1"

	"github.com/coder/websocket"
)

// WSGateway is the WebSocket entrypoint of the file relay.
//
// Each connection registers under the user id taken from the URL path and
// forwards send_file frames to the connection registered under the frame's
// recipient. Frames are never stored.
type WSGateway struct {
	log      *slog.Logger
	registry *Registry
	metrics  *Metrics
	cfg      GatewayConfig

	// Derived for websocket.Accept origin checks.
	originPatterns []string
}

// NewWSGateway constructs a gateway. A nil registry gets a private one;
// metrics may be nil.
func NewWSGateway(log *slog.Logger, registry *Registry, metrics *Metrics, cfg GatewayConfig) *WSGateway {
	if log == nil {
		log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	if registry == nil {
		registry = NewRegistry(log)
	}
	cfg = cfg.withDefaults()

	return &WSGateway{
		log:            log,
		registry:       registry,
		metrics:        metrics,
		cfg:            cfg,
		originPatterns: deriveOriginPatterns(cfg.AllowedOrigins),
	}
}

// Registry returns the registry connections are published in.
func (g *WSGateway) Registry() *Registry { return g.registry }

// ServeHTTP adapter so it can be mounted as http.Handler.
func (g *WSGateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.HandleWS(w, r)
}

// HandleWS upgrades GET /ws/{user_id} and runs the relay loop until the peer
// goes away. The user id is trusted as given.
func (g *WSGateway) HandleWS(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("user_id")
	if strings.TrimSpace(userID) == "" {
		http.Error(w, "missing user_id", http.StatusBadRequest)
		return
	}

	if err := g.enforceOrigin(r); err != nil {
		g.log.Info("ws.reject.origin", "err", err, "origin", r.Header.Get("Origin"), "remote", r.RemoteAddr)
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:     g.originPatterns,
		InsecureSkipVerify: g.cfg.anyOrigin(),
	})
	if err != nil {
		g.log.Error("ws.accept.fail", "user_id", userID, "err", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") }()

	conn.SetReadLimit(g.cfg.MaxFrameBytes)

	sessionID, err := NewSessionID(time.Now().UTC())
	if err != nil {
		g.log.Warn("ws.session_id.fail", "err", err)
	}
	client := NewClient(userID, sessionID, g.cfg.SendQueueSize)
	log := g.log.With("user_id", userID, "session_id", sessionID)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	var closeOnce sync.Once

	// shutdown is idempotent. Deregistration happens before client.Close so no
	// new frame is routed to a connection that is going away.
	shutdown := func(code websocket.StatusCode, reason string) {
		closeOnce.Do(func() {
			g.registry.RemoveIf(userID, client)
			client.Close()
			_ = conn.Close(code, reason)
			cancel()
		})
	}

	g.registry.Put(userID, client)
	client.setState(StateOpen)
	g.metrics.connOpened()
	defer g.metrics.connClosed()
	log.Info("ws.open", "remote", r.RemoteAddr)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)

		for {
			select {
			case <-ctx.Done():
				return
			case <-client.Done():
				// Closed by shutdown or replaced by a newer connection.
				shutdown(websocket.StatusNormalClosure, "replaced")
				return
			case msg := <-client.Send:
				if err := writeFrame(ctx, conn, msg, g.cfg.WriteTimeout); err != nil {
					log.Info("ws.write.fail", "close_status", websocket.CloseStatus(err), "err", err)
					shutdown(websocket.StatusAbnormalClosure, "write failed")
					return
				}
			}
		}
	}()

	heartbeatDone := make(chan struct{})
	go func() {
		defer close(heartbeatDone)

		t := time.NewTicker(g.cfg.HeartbeatInterval)
		defer t.Stop()

		failures := 0
		for {
			select {
			case <-ctx.Done():
				return
			case <-client.Done():
				return
			case <-t.C:
				hbCtx, hbCancel := context.WithTimeout(ctx, g.cfg.HeartbeatTimeout)
				err := conn.Ping(hbCtx)
				hbCancel()

				if err != nil {
					failures++
					log.Info("ws.ping.fail", "failures", failures, "err", err)
					if failures >= maxPingFailures {
						shutdown(websocket.StatusGoingAway, "heartbeat failed")
						return
					}
					continue
				}
				failures = 0
			}
		}
	}()

	rl := NewRateLimiter(g.cfg.RateEvents, g.cfg.RateWindow)

readLoop:
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			switch classifyReadErr(err) {
			case readErrClose:
				shutdown(websocket.StatusNormalClosure, "peer closed")
			case readErrCtxDone:
				shutdown(websocket.StatusNormalClosure, "context done")
			case readErrConnClosed:
				shutdown(websocket.StatusAbnormalClosure, "conn closed")
			case readErrTooBig:
				log.Info("ws.read.too_big", "limit", g.cfg.MaxFrameBytes)
				shutdown(websocket.StatusMessageTooBig, "frame too large")
			default:
				log.Info("ws.read.fail", "err", err)
				shutdown(websocket.StatusAbnormalClosure, "read failed")
			}
			break readLoop
		}

		if !rl.Allow(time.Now().UTC()) {
			g.metrics.frame("", OutcomeRateLimited)
			if err := g.replyNow(ctx, conn, v1.NewError(v1.MsgRateLimited)); err != nil {
				log.Info("ws.rate_limited.reply_fail", "err", err)
			}
			log.Info("ws.rate_limited")
			shutdown(websocket.StatusPolicyViolation, "rate limited")
			break readLoop
		}

		g.handleFrame(ctx, log, client, data)
	}

	shutdown(websocket.StatusNormalClosure, "bye")
	<-writerDone

	select {
	case <-heartbeatDone:
	case <-time.After(closeGrace):
	}
	log.Info("ws.close", "state", client.State().String())
}

// handleFrame decodes one inbound frame and dispatches it.
func (g *WSGateway) handleFrame(ctx context.Context, log *slog.Logger, client *Client, data []byte) {
	in, err := v1.DecodeInbound(data)
	if err != nil {
		log.Info("ws.frame.invalid", "err", err, "bytes", len(data))
		g.metrics.frame("", OutcomeInvalid)
		g.reply(ctx, client, v1.NewError(v1.MsgInvalidFrame))
		return
	}

	switch f := in.(type) {
	case v1.SendFile:
		g.routeSendFile(ctx, log, f)
	case v1.Unknown:
		log.Info("ws.frame.ignored", "err", UnknownActionError{Action: f.Action})
		g.metrics.frame("unknown", OutcomeIgnored)
	}
}

// routeSendFile forwards f to its recipient. If the recipient is not connected
// or cannot take the frame, the connection registered under f.Sender (not
// necessarily this one) is told so; with no such connection the notice is
// dropped.
func (g *WSGateway) routeSendFile(ctx context.Context, log *slog.Logger, f v1.SendFile) {
	out, err := v1.Encode(v1.NewReceiveFile(f.Raw))
	if err != nil {
		log.Error("relay.encode.fail", "err", err)
		return
	}

	if recipient, ok := g.registry.Get(f.Recipient); ok {
		err := recipient.Deliver(ctx, out, g.cfg.DeliveryTimeout)
		if err == nil {
			g.metrics.frame(v1.ActionSendFile, OutcomeDelivered)
			log.Debug("relay.delivered", "recipient", f.Recipient, "bytes", len(f.Raw))
			return
		}
		log.Warn("relay.delivery.fail", "recipient", f.Recipient, "err", err)
		g.metrics.frame(v1.ActionSendFile, OutcomeDeliveryFailed)
	} else {
		g.metrics.frame(v1.ActionSendFile, OutcomeRecipientMissing)
	}

	sender, ok := g.registry.Get(f.Sender)
	if !ok {
		log.Info("relay.notify.dropped", "recipient", f.Recipient, "sender", f.Sender)
		g.metrics.frame(v1.ActionError, OutcomeNotificationDropped)
		return
	}
	notice, err := v1.Encode(v1.NewError(v1.MsgRecipientUnavailable))
	if err != nil {
		log.Error("relay.encode.fail", "err", err)
		return
	}
	if err := sender.Deliver(ctx, notice, g.cfg.DeliveryTimeout); err != nil {
		log.Info("relay.notify.fail", "sender", f.Sender, "err", err)
		g.metrics.frame(v1.ActionError, OutcomeNotificationDropped)
		return
	}
	g.metrics.frame(v1.ActionError, OutcomeSenderNotified)
}

// reply sends a server frame to this connection only.
func (g *WSGateway) reply(ctx context.Context, client *Client, out v1.Outbound) {
	b, err := v1.Encode(out)
	if err != nil {
		return
	}
	_ = client.Deliver(ctx, b, g.cfg.DeliveryTimeout)
}

// replyNow writes a server frame directly, bypassing the send queue. Used when
// the connection is about to be closed and a queued frame could be dropped.
func (g *WSGateway) replyNow(ctx context.Context, conn *websocket.Conn, out v1.Outbound) error {
	b, err := v1.Encode(out)
	if err != nil {
		return err
	}
	return writeFrame(ctx, conn, b, g.cfg.WriteTimeout)
}

func writeFrame(parent context.Context, conn *websocket.Conn, msg []byte, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	return conn.Write(ctx, websocket.MessageText, msg)
}

// ---- read error classification ----

type readErrKind uint8

const (
	readErrUnknown readErrKind = iota
	readErrClose
	readErrCtxDone
	readErrConnClosed
	readErrTooBig
)

func classifyReadErr(err error) readErrKind {
	if websocket.CloseStatus(err) != -1 {
		return readErrClose
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return readErrCtxDone
	}
	if errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) {
		return readErrConnClosed
	}
	if strings.Contains(err.Error(), "read limited at") {
		return readErrTooBig
	}
	return readErrUnknown
}
