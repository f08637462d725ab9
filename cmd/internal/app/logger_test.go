package app

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLogLevel(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want slog.Level
	}{
		{in: "debug", want: slog.LevelDebug},
		{in: "INFO", want: slog.LevelInfo},
		{in: "warn", want: slog.LevelWarn},
		{in: "warning", want: slog.LevelWarn},
		{in: "error", want: slog.LevelError},
		{in: "unknown", want: slog.LevelInfo},
		{in: "", want: slog.LevelInfo},
	}

	for _, tc := range cases {
		got := parseLogLevel(tc.in)
		if got != tc.want {
			t.Fatalf("parseLogLevel(%q)=%v want=%v", tc.in, got, tc.want)
		}
	}
}

func TestNewLogger_JSON(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := newLogger(&buf, "info", "json", false)
	log.Debug("hidden")
	log.Info("relay.delivered", "recipient", "AbCd1234")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d: %q", len(lines), buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("not json: %v", err)
	}
	if rec["msg"] != "relay.delivered" || rec["recipient"] != "AbCd1234" {
		t.Fatalf("unexpected record: %v", rec)
	}
}

func TestNewLogger_PrettyWithoutTTYHasNoColor(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := newLogger(&buf, "debug", "pretty", false)
	log.Warn("ws.rate_limited", "user_id", "AbCd1234")

	out := buf.String()
	if strings.Contains(out, "\x1b[") {
		t.Fatalf("unexpected ANSI escape in %q", out)
	}
	if !strings.Contains(out, "[WARN]") || !strings.Contains(out, "user_id=AbCd1234") {
		t.Fatalf("unexpected output %q", out)
	}
}
