package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"golang.org/x/term"
)

const (
	ansiReset   = "\x1b[0m"
	ansiBright  = "\x1b[1m"
	ansiDim     = "\x1b[2m"
	ansiRed     = "\x1b[31m"
	ansiGreen   = "\x1b[32m"
	ansiYellow  = "\x1b[33m"
	ansiBlue    = "\x1b[34m"
	ansiMagenta = "\x1b[35m"
	ansiCyan    = "\x1b[36m"
)

const (
	defaultLogWidth = 100
	minLogWidth     = 40
	wrapIndent      = "    "
	truncMarker     = "…"
)

var ansiPattern = regexp.MustCompile("\x1b\\[[0-9;]*m")

type groupedAttr struct {
	group string
	attr  slog.Attr
}

// prettyHandler renders one record per line for terminals. When attached to
// a TTY (fd set) long records wrap at the terminal width.
type prettyHandler struct {
	w      io.Writer
	opts   slog.HandlerOptions
	attrs  []groupedAttr
	groups []string
	color  bool
	tty    bool
	fd     int
	mu     *sync.Mutex
}

func newPrettyHandler(w io.Writer, opts *slog.HandlerOptions, color bool) *prettyHandler {
	h := &prettyHandler{
		w:     w,
		color: color,
		mu:    &sync.Mutex{},
	}
	if opts != nil {
		h.opts = *opts
	}
	return h
}

func (h *prettyHandler) Enabled(_ context.Context, level slog.Level) bool {
	minLevel := slog.LevelInfo
	if h.opts.Level != nil {
		minLevel = h.opts.Level.Level()
	}
	return level >= minLevel
}

func (h *prettyHandler) Handle(_ context.Context, r slog.Record) error {
	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	segs := []string{
		"ts=" + applyDim(ts.Format("15:04:05.000"), h.color) +
			" lvl=" + levelTag(r.Level, h.color) +
			" msg=" + applyBold(r.Message, h.color),
	}

	if h.opts.AddSource && r.PC != 0 {
		frames := runtime.CallersFrames([]uintptr{r.PC})
		frame, _ := frames.Next()
		if frame.File != "" {
			segs = append(segs, "src="+applyDim(fmt.Sprintf("%s:%d", filepath.Base(frame.File), frame.Line), h.color))
		}
	}

	for _, ga := range h.attrs {
		segs = h.appendAttr(segs, ga.attr, ga.group)
	}
	group := strings.Join(h.groups, ".")
	r.Attrs(func(a slog.Attr) bool {
		segs = h.appendAttr(segs, a, group)
		return true
	})

	var out string
	if h.tty {
		out = strings.Join(wrapSegments(segs, " ", h.terminalWidth(), wrapIndent), "\n") + "\n"
	} else {
		out = strings.Join(segs, " ") + "\n"
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, out)
	return err
}

func (h *prettyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	cp := *h
	group := strings.Join(h.groups, ".")
	cp.attrs = append([]groupedAttr{}, h.attrs...)
	for _, a := range attrs {
		cp.attrs = append(cp.attrs, groupedAttr{group: group, attr: a})
	}
	return &cp
}

func (h *prettyHandler) WithGroup(name string) slog.Handler {
	if strings.TrimSpace(name) == "" {
		return h
	}
	cp := *h
	cp.groups = append(append([]string{}, h.groups...), name)
	return &cp
}

func (h *prettyHandler) appendAttr(segs []string, a slog.Attr, parent string) []string {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return segs
	}

	key := strings.TrimSpace(a.Key)
	if key == "" {
		return segs
	}

	if a.Value.Kind() == slog.KindGroup {
		sub := key
		if parent != "" {
			sub = parent + "." + key
		}
		for _, ga := range a.Value.Group() {
			segs = h.appendAttr(segs, ga, sub)
		}
		return segs
	}

	fullKey := remapPrettyKey(key)
	if parent != "" {
		fullKey = parent + "." + fullKey
	}
	return append(segs, fullKey+"="+h.prettyValue(key, a.Value))
}

// prettyValue formats a leaf value. Request-log keys get colour and units.
func (h *prettyHandler) prettyValue(key string, v slog.Value) string {
	switch key {
	case "method":
		return colorizeHTTPMethod(strings.ToUpper(strings.TrimSpace(v.String())), h.color)
	case "path", "route":
		p := strings.TrimSpace(v.String())
		if h.color {
			return ansiCyan + p + ansiReset
		}
		return quoteIfNeeded(p)
	case "status":
		if n, ok := valueToInt64(v); ok {
			return colorizeStatusCode(int(n), h.color)
		}
	case "status_class", "class":
		return colorizeStatusClass(strings.TrimSpace(v.String()), h.color)
	case "duration_ms":
		if n, ok := valueToInt64(v); ok {
			return colorizeDurationMS(n, h.color)
		}
	case "result", "outcome":
		return colorizeResult(strings.ToLower(strings.TrimSpace(v.String())), h.color)
	}

	return quoteIfNeeded(valueToString(v))
}

func remapPrettyKey(k string) string {
	switch k {
	case "status_class":
		return "class"
	case "duration_ms":
		return "duration"
	default:
		return k
	}
}

func valueToString(v slog.Value) string {
	switch v.Kind() {
	case slog.KindString:
		return v.String()
	case slog.KindInt64:
		return strconv.FormatInt(v.Int64(), 10)
	case slog.KindUint64:
		return strconv.FormatUint(v.Uint64(), 10)
	case slog.KindFloat64:
		return strconv.FormatFloat(v.Float64(), 'f', -1, 64)
	case slog.KindBool:
		if v.Bool() {
			return "true"
		}
		return "false"
	case slog.KindDuration:
		return v.Duration().String()
	case slog.KindTime:
		return v.Time().Format(time.RFC3339)
	default:
		return fmt.Sprint(v.Any())
	}
}

func quoteIfNeeded(s string) string {
	if s == "" {
		return `""`
	}
	if strings.ContainsAny(s, " \t\r\n\"=") {
		return strconv.Quote(s)
	}
	return s
}

func levelTag(level slog.Level, color bool) string {
	switch {
	case level >= slog.LevelError:
		if color {
			return ansiRed + "[ERROR]" + ansiReset
		}
		return "[ERROR]"
	case level >= slog.LevelWarn:
		if color {
			return ansiYellow + "[WARN]" + ansiReset
		}
		return "[WARN]"
	case level < slog.LevelInfo:
		if color {
			return ansiMagenta + "[DEBUG]" + ansiReset
		}
		return "[DEBUG]"
	default:
		if color {
			return ansiBlue + "[INFO]" + ansiReset
		}
		return "[INFO]"
	}
}

func applyDim(s string, color bool) string {
	if !color {
		return s
	}
	return ansiDim + s + ansiReset
}

func applyBold(s string, color bool) string {
	if !color {
		return s
	}
	return ansiBright + s + ansiReset
}

func colorizeHTTPMethod(m string, color bool) string {
	if !color {
		return m
	}
	switch m {
	case "GET", "HEAD":
		return ansiBlue + m + ansiReset
	case "POST":
		return ansiGreen + m + ansiReset
	case "PUT", "PATCH":
		return ansiYellow + m + ansiReset
	case "DELETE":
		return ansiRed + m + ansiReset
	default:
		return ansiMagenta + m + ansiReset
	}
}

func colorizeStatusCode(code int, color bool) string {
	s := strconv.Itoa(code)
	if !color {
		return s
	}
	return statusColor(code) + s + ansiReset
}

func colorizeStatusClass(class string, color bool) string {
	if !color || class == "" {
		return quoteIfNeeded(class)
	}
	switch class[0] {
	case '2':
		return ansiGreen + class + ansiReset
	case '3':
		return ansiCyan + class + ansiReset
	case '4':
		return ansiYellow + class + ansiReset
	case '5':
		return ansiRed + class + ansiReset
	default:
		return class
	}
}

func statusColor(code int) string {
	switch {
	case code >= 500:
		return ansiRed
	case code >= 400:
		return ansiYellow
	case code >= 300:
		return ansiCyan
	default:
		return ansiGreen
	}
}

func colorizeDurationMS(ms int64, color bool) string {
	s := strconv.FormatInt(ms, 10) + "ms"
	if !color {
		return s
	}
	switch {
	case ms >= 1000:
		return ansiRed + s + ansiReset
	case ms >= 250:
		return ansiYellow + s + ansiReset
	default:
		return ansiDim + s + ansiReset
	}
}

func colorizeResult(r string, color bool) string {
	if !color {
		return quoteIfNeeded(r)
	}
	switch r {
	case "success", "ok", "delivered", "sender_notified":
		return ansiGreen + r + ansiReset
	case "client_error", "redirect", "invalid", "ignored", "recipient_missing":
		return ansiYellow + r + ansiReset
	case "server_error", "error", "delivery_failed", "rate_limited", "notification_dropped":
		return ansiRed + r + ansiReset
	default:
		return quoteIfNeeded(r)
	}
}

func valueToInt64(v slog.Value) (int64, bool) {
	switch v.Kind() {
	case slog.KindInt64:
		return v.Int64(), true
	case slog.KindUint64:
		u := v.Uint64()
		if u > uint64(^uint64(0)>>1) {
			return 0, false
		}
		return int64(u), true
	case slog.KindFloat64:
		return int64(v.Float64()), true
	case slog.KindString:
		n, err := strconv.ParseInt(strings.TrimSpace(v.String()), 10, 64)
		return n, err == nil
	default:
		return 0, false
	}
}

func stripANSI(s string) string {
	return ansiPattern.ReplaceAllString(s, "")
}

// visualLen is the printed width of s, ignoring colour escapes.
func visualLen(s string) int {
	return utf8.RuneCountInString(stripANSI(s))
}

// wrapSegments packs segs into lines of at most width columns joined by sep.
// Continuation lines start with prefix. A segment wider than a line is
// truncated with a trailing marker and loses its colour.
func wrapSegments(segs []string, sep string, width int, prefix string) []string {
	var (
		lines []string
		cur   string
	)
	for _, seg := range segs {
		if cur == "" {
			lead := ""
			if len(lines) > 0 {
				lead = prefix
			}
			cur = lead + truncateVisual(seg, width-visualLen(lead))
			continue
		}
		if visualLen(cur)+len(sep)+visualLen(seg) <= width {
			cur += sep + seg
			continue
		}
		lines = append(lines, cur)
		cur = prefix + truncateVisual(seg, width-visualLen(prefix))
	}
	if cur != "" {
		lines = append(lines, cur)
	}
	return lines
}

func truncateVisual(s string, width int) string {
	plain := stripANSI(s)
	if utf8.RuneCountInString(plain) <= width {
		return s
	}
	if width <= 1 {
		return truncMarker
	}
	runes := []rune(plain)
	return string(runes[:width-1]) + truncMarker
}

// terminalWidth resolves RELAY_LOG_WIDTH, then COLUMNS, then the size of the
// attached terminal. Values below minLogWidth are ignored.
func (h *prettyHandler) terminalWidth() int {
	for _, key := range []string{"RELAY_LOG_WIDTH", "COLUMNS"} {
		if n, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key))); err == nil && n >= minLogWidth {
			return n
		}
	}
	if h.tty {
		if w, _, err := term.GetSize(h.fd); err == nil && w >= minLogWidth {
			return w
		}
	}
	return defaultLogWidth
}
