// Package logging provides per-subsystem structured logging for werkstatt.
//
// Two orthogonal controls:
//   - Subsystems (WHAT to debug): a comma separated list such as
//     "sandbox,gateway" or "all". Listed subsystems emit DEBUG records
//     even when the base level is higher.
//   - Level (HOW MUCH detail): ERROR, WARN, INFO, DEBUG or TRACE.
//
// There is no package state. A *Logging is built once at startup and
// handed to each component, which takes its own logger:
//
//	logs := logging.New(cfg.Logging, os.Stderr)
//	log := logs.For(logging.Sandbox)
//	log.Debug("claim created", "name", name)
//
// Subsystems: sandbox, gateway, provider, engine, console, config.
package logging

import (
	"context"
	"io"
	"log/slog"
	"strings"
)

// LevelTrace is below slog.LevelDebug for maximum verbosity.
// At TRACE, full untruncated request and response bodies are logged.
const LevelTrace = slog.LevelDebug - 4

// Subsystem names.
const (
	Sandbox  = "sandbox"
	Gateway  = "gateway"
	Provider = "provider"
	Engine   = "engine"
	Console  = "console"
	Config   = "config"
)

// Settings selects the base level and the subsystems with debug output.
type Settings struct {
	Level      string `yaml:"level"`
	Subsystems string `yaml:"subsystems"`
	Format     string `yaml:"format"`
}

// Logging hands out subsystem loggers sharing one output handler.
type Logging struct {
	handler    slog.Handler
	level      slog.Level
	subsystems map[string]bool
}

// New creates a Logging writing to w. Format "json" selects the JSON
// handler; anything else selects the text handler.
func New(s Settings, w io.Writer) *Logging {
	opts := &slog.HandlerOptions{
		Level:       LevelTrace,
		ReplaceAttr: replaceLevelName,
	}
	var h slog.Handler
	if strings.EqualFold(s.Format, "json") {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	return &Logging{
		handler:    h,
		level:      ParseLevel(s.Level),
		subsystems: parseSubsystems(s.Subsystems),
	}
}

// Discard returns a Logging that drops every record.
func Discard() *Logging {
	return New(Settings{Level: "ERROR"}, io.Discard)
}

// For returns the logger for a subsystem. Records carry a
// "subsystem" attribute.
func (l *Logging) For(subsystem string) *slog.Logger {
	min := l.level
	if l.Enabled(subsystem) && min > slog.LevelDebug {
		min = slog.LevelDebug
	}
	h := &levelHandler{min: min, inner: l.handler}
	return slog.New(h).With("subsystem", subsystem)
}

// Default returns a logger without a subsystem, at the base level.
func (l *Logging) Default() *slog.Logger {
	return slog.New(&levelHandler{min: l.level, inner: l.handler})
}

// Enabled reports whether debug output is switched on for subsystem.
func (l *Logging) Enabled(subsystem string) bool {
	return l.subsystems["all"] || l.subsystems[subsystem]
}

// Level returns the base level.
func (l *Logging) Level() slog.Level {
	return l.level
}

// Trace logs msg at LevelTrace.
func Trace(log *slog.Logger, msg string, args ...any) {
	log.Log(context.Background(), LevelTrace, msg, args...)
}

// TraceEnabled reports whether log emits LevelTrace records.
func TraceEnabled(log *slog.Logger) bool {
	return log.Enabled(context.Background(), LevelTrace)
}

// ParseLevel converts a level string to a slog.Level.
func ParseLevel(s string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TRACE":
		return LevelTrace
	case "DEBUG":
		return slog.LevelDebug
	case "INFO", "":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Truncate returns s truncated to maxLen bytes, with "..." appended if truncated.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

func parseSubsystems(s string) map[string]bool {
	m := make(map[string]bool)
	for _, name := range strings.Split(s, ",") {
		name = strings.TrimSpace(strings.ToLower(name))
		if name != "" {
			m[name] = true
		}
	}
	return m
}

func replaceLevelName(_ []string, a slog.Attr) slog.Attr {
	if a.Key == slog.LevelKey {
		if lvl, ok := a.Value.Any().(slog.Level); ok && lvl <= LevelTrace {
			a.Value = slog.StringValue("TRACE")
		}
	}
	return a
}

// levelHandler filters records below min before passing them on.
type levelHandler struct {
	min   slog.Level
	inner slog.Handler
}

func (h *levelHandler) Enabled(ctx context.Context, lvl slog.Level) bool {
	return lvl >= h.min && h.inner.Enabled(ctx, lvl)
}

func (h *levelHandler) Handle(ctx context.Context, r slog.Record) error {
	return h.inner.Handle(ctx, r)
}

func (h *levelHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &levelHandler{min: h.min, inner: h.inner.WithAttrs(attrs)}
}

func (h *levelHandler) WithGroup(name string) slog.Handler {
	return &levelHandler{min: h.min, inner: h.inner.WithGroup(name)}
}
