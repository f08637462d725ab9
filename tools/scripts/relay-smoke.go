// Package main provides a CI-friendly smoke test for a running relay server.
//
// It validates:
//   - registration and login over HTTP
//   - websocket handshake for two users
//   - send_file relayed to the recipient as receive_file
//   - the recipient-unavailable error for a user that is not connected
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	v1 "relay/shared/contracts/relay/v1"

	"github.com/coder/websocket"
	"golang.org/x/sync/errgroup"
)

const maxReadBytes = 32 << 20

type authResponse struct {
	Success bool   `json:"success"`
	UserID  string `json:"user_id"`
	Detail  string `json:"detail"`
}

func main() {
	var (
		baseURL = flag.String("url", "http://127.0.0.1:8000", "Relay HTTP base URL")
		origin  = flag.String("origin", "", "Origin header to send on the websocket handshake")
		payload = flag.String("data", "aGVsbG8gcmVsYXk=", "file_data to relay (base64)")
		timeout = flag.Duration("timeout", 7*time.Second, "Per-step timeout")
		verbose = flag.Bool("v", false, "Verbose output")
	)
	flag.Parse()

	base, err := url.Parse(strings.TrimRight(*baseURL, "/"))
	if err != nil || (base.Scheme != "http" && base.Scheme != "https") || base.Host == "" {
		fatalf("invalid -url %q", *baseURL)
	}

	root := context.Background()
	suffix := fmt.Sprintf("%d", time.Now().UnixNano())

	// Register both users concurrently.
	var alice, bob string
	g, gctx := errgroup.WithContext(root)
	g.Go(func() (err error) {
		alice, err = registerAndLogin(gctx, base, "smoke_a_"+suffix, "pw-"+suffix, *timeout)
		return err
	})
	g.Go(func() (err error) {
		bob, err = registerAndLogin(gctx, base, "smoke_b_"+suffix, "pw-"+suffix, *timeout)
		return err
	})
	if err := g.Wait(); err != nil {
		fatalf("register: %v", err)
	}
	if *verbose {
		fmt.Printf("registered: A=%s B=%s\n", alice, bob)
	}

	a := mustConnect(root, base, alice, *origin, *timeout)
	defer closeWS(a)
	b := mustConnect(root, base, bob, *origin, *timeout)
	defer closeWS(b)

	// Give the server a moment to publish both connections.
	time.Sleep(200 * time.Millisecond)

	frame := map[string]string{
		"action":    v1.ActionSendFile,
		"sender":    alice,
		"recipient": bob,
		"file_name": "smoke.txt",
		"file_data": *payload,
	}
	mustWrite(root, a, frame, *timeout)

	got := mustRead(root, b, *timeout)
	if got["action"] != v1.ActionReceiveFile {
		fatalf("B: expected %s, got %v", v1.ActionReceiveFile, got["action"])
	}
	data, _ := got["data"].(map[string]any)
	if data["file_data"] != *payload || data["sender"] != alice {
		fatalf("B: relayed frame mismatch: %v", data)
	}

	missing := "zzzzzzzz"
	if missing == alice || missing == bob {
		missing = "yyyyyyyy"
	}
	frame["recipient"] = missing
	mustWrite(root, a, frame, *timeout)

	errFrame := mustRead(root, a, *timeout)
	if errFrame["action"] != v1.ActionError || errFrame["message"] != v1.MsgRecipientUnavailable {
		fatalf("A: expected recipient error, got %v", errFrame)
	}

	fmt.Printf("OK: A=%s B=%s relayed=%d bytes\n", alice, bob, len(*payload))
}

func registerAndLogin(ctx context.Context, base *url.URL, username, password string, timeout time.Duration) (string, error) {
	reg, err := postForm(ctx, base, "/register", url.Values{
		"username": {username},
		"email":    {username + "@smoke.invalid"},
		"password": {password},
	}, timeout)
	if err != nil {
		return "", err
	}
	if !reg.Success {
		return "", fmt.Errorf("register %s: %s", username, reg.Detail)
	}

	login, err := postForm(ctx, base, "/login", url.Values{
		"identifier": {username},
		"password":   {password},
	}, timeout)
	if err != nil {
		return "", err
	}
	if !login.Success || login.UserID != reg.UserID {
		return "", fmt.Errorf("login %s: success=%v user_id=%q detail=%q", username, login.Success, login.UserID, login.Detail)
	}
	return reg.UserID, nil
}

func postForm(parent context.Context, base *url.URL, path string, form url.Values, timeout time.Duration) (authResponse, error) {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base.String()+path, strings.NewReader(form.Encode()))
	if err != nil {
		return authResponse{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return authResponse{}, err
	}
	defer func() { _ = resp.Body.Close() }()

	var out authResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return authResponse{}, fmt.Errorf("%s: status %d: %w", path, resp.StatusCode, err)
	}
	return out, nil
}

func mustConnect(parent context.Context, base *url.URL, userID, origin string, timeout time.Duration) *websocket.Conn {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	u := *base
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = "/ws/" + url.PathEscape(userID)

	h := http.Header{}
	if strings.TrimSpace(origin) != "" {
		h.Set("Origin", origin)
	}

	conn, resp, err := websocket.Dial(ctx, u.String(), &websocket.DialOptions{HTTPHeader: h})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		fatalf("connect %s: %v", userID, err)
	}
	conn.SetReadLimit(maxReadBytes)
	return conn
}

func mustWrite(parent context.Context, c *websocket.Conn, v any, timeout time.Duration) {
	b, err := json.Marshal(v)
	if err != nil {
		fatalf("marshal: %v", err)
	}
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()
	if err := c.Write(ctx, websocket.MessageText, b); err != nil {
		fatalf("write: %v", err)
	}
}

func mustRead(parent context.Context, c *websocket.Conn, timeout time.Duration) map[string]any {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	_, b, err := c.Read(ctx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			fatalf("read: timed out after %s", timeout)
		}
		fatalf("read: %v", err)
	}
	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		fatalf("read: invalid json %q: %v", b, err)
	}
	return out
}

func closeWS(c *websocket.Conn) {
	_ = c.Close(websocket.StatusNormalClosure, "smoke done")
}

func fatalf(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, "FAIL: "+format+"\n", args...)
	os.Exit(1)
}
