package observability

import (
	"context"
	"io"
	"log/slog"
	"os"
	"regexp"
	"strings"
)

// LogConfig configures NewLogger.
type LogConfig struct {
	// Level is one of debug, info, warn, error. Anything else means info.
	Level string
	// Format is "json" (default) or "text".
	Format string
	// Output defaults to os.Stderr.
	Output io.Writer
	// RedactPatterns are appended to DefaultRedactPatterns.
	RedactPatterns []string
}

// DefaultRedactPatterns match common secrets.
var DefaultRedactPatterns = []string{
	`(?i)(api[_-]?key|apikey)[\s:=]+["']?([a-zA-Z0-9_\-]{16,})["']?`,
	`(?i)(bearer|token)[\s:]+([a-zA-Z0-9_\-\.]{16,})`,
	`(?i)(secret|password|passwd|pwd)[\s:=]+["']?([^\s"']{8,})["']?`,
	`sk-ant-[a-zA-Z0-9_-]{20,}`,
	`sk-[a-zA-Z0-9_-]{32,}`,
	`eyJ[a-zA-Z0-9_-]*\.eyJ[a-zA-Z0-9_-]*\.[a-zA-Z0-9_-]*`,
}

var sensitiveKeys = map[string]bool{
	"password":      true,
	"secret":        true,
	"token":         true,
	"api_key":       true,
	"apikey":        true,
	"access_token":  true,
	"authorization": true,
}

const redacted = "[REDACTED]"

// NewLogger builds a slog logger whose handler redacts secrets.
func NewLogger(cfg LogConfig) *slog.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.Level)}
	var base slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		base = slog.NewTextHandler(out, opts)
	} else {
		base = slog.NewJSONHandler(out, opts)
	}
	return slog.New(NewRedactingHandler(base, cfg.RedactPatterns...))
}

// ParseLevel maps a level name onto slog levels.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// RedactingHandler scrubs secrets from messages and attribute values.
type RedactingHandler struct {
	next     slog.Handler
	patterns []*regexp.Regexp
}

// NewRedactingHandler wraps next. Invalid extra patterns are skipped.
func NewRedactingHandler(next slog.Handler, extra ...string) *RedactingHandler {
	h := &RedactingHandler{next: next}
	for _, p := range append(append([]string{}, DefaultRedactPatterns...), extra...) {
		re, err := regexp.Compile(p)
		if err != nil {
			continue
		}
		h.patterns = append(h.patterns, re)
	}
	return h
}

func (h *RedactingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *RedactingHandler) Handle(ctx context.Context, r slog.Record) error {
	out := slog.NewRecord(r.Time, r.Level, h.redact(r.Message), r.PC)
	r.Attrs(func(a slog.Attr) bool {
		out.AddAttrs(h.redactAttr(a))
		return true
	})
	return h.next.Handle(ctx, out)
}

func (h *RedactingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	cleaned := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		cleaned[i] = h.redactAttr(a)
	}
	return &RedactingHandler{next: h.next.WithAttrs(cleaned), patterns: h.patterns}
}

func (h *RedactingHandler) WithGroup(name string) slog.Handler {
	return &RedactingHandler{next: h.next.WithGroup(name), patterns: h.patterns}
}

func (h *RedactingHandler) redactAttr(a slog.Attr) slog.Attr {
	key := strings.ToLower(strings.ReplaceAll(a.Key, "-", "_"))
	if sensitiveKeys[key] {
		return slog.String(a.Key, redacted)
	}
	v := a.Value.Resolve()
	switch v.Kind() {
	case slog.KindString:
		return slog.String(a.Key, h.redact(v.String()))
	case slog.KindGroup:
		group := v.Group()
		cleaned := make([]any, 0, len(group))
		for _, g := range group {
			cleaned = append(cleaned, h.redactAttr(g))
		}
		return slog.Group(a.Key, cleaned...)
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return slog.String(a.Key, h.redact(err.Error()))
		}
	}
	return slog.Attr{Key: a.Key, Value: v}
}

func (h *RedactingHandler) redact(s string) string {
	for _, re := range h.patterns {
		s = re.ReplaceAllString(s, redacted)
	}
	return s
}
