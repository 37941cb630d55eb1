// Package logger provides the structured slog setup shared by every layer:
// component loggers, update metadata carried in context, and the kv, json
// and pretty output formats.
package logger

import (
	"context"
	"errors"
	"io"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/m3rciful/shopbot/core/buildinfo"
	coreconfig "github.com/m3rciful/shopbot/core/config"
)

var (
	// L is the base logger. It discards everything until InitLogger runs.
	L *slog.Logger

	// DB logs database connection events.
	DB *slog.Logger
	// TG logs Telegram transport events.
	TG *slog.Logger
	// MIG logs database migration events.
	MIG *slog.Logger
	// TWire logs Telegram wiring steps.
	TWire *slog.Logger
)

// sinks is the output state created by InitLogger and released by Shutdown.
var sinks struct {
	once   sync.Once
	mu     sync.Mutex
	done   bool
	writer *asyncWriter
	files  []io.Closer
}

var (
	levelVar     slog.LevelVar
	debugSampler = newRatioSampler(1, 50)
	// unsampled is set by TRACE or LOG_TRACE and disables debug sampling.
	unsampled bool
)

func init() {
	setBase(slog.New(slog.DiscardHandler))
}

func setBase(base *slog.Logger) {
	L = base
	DB = Component("db")
	TG = Component("tg")
	MIG = Component("db.migrate")
	TWire = Component("tg.wire")
}

// settings is the logging part of the configuration after defaults.
type settings struct {
	format   logFormat
	order    []string
	level    slog.Level
	num, den int
	profile  string
	file     string
}

func settingsFrom(cfg *coreconfig.Config) settings {
	s := settings{
		format:  formatJSON,
		order:   append([]string(nil), defaultKeyOrder...),
		level:   slog.LevelInfo,
		num:     1,
		den:     50,
		profile: "prod",
	}
	if cfg == nil {
		return s
	}
	lc := cfg.Logging
	if p := strings.ToLower(strings.TrimSpace(lc.Profile)); p != "" {
		s.profile = p
	}

	switch strings.ToLower(strings.TrimSpace(lc.Format)) {
	case "kv", "text":
		s.format = formatKV
	case "pretty", "tint":
		s.format = formatPretty
	case "json":
	default:
		if s.profile == "debug" || s.profile == "dev" {
			s.format = formatKV
		}
	}

	if order := splitKeys(lc.KeysOrder); len(order) > 0 {
		s.order = order
	}

	switch strings.ToLower(strings.TrimSpace(lc.Level)) {
	case "debug":
		s.level = slog.LevelDebug
	case "warn", "warning":
		s.level = slog.LevelWarn
	case "error":
		s.level = slog.LevelError
	}

	if raw := strings.TrimSpace(lc.DebugSample); raw != "" {
		switch num, den := parseRatio(raw); {
		case num == 0 && den == 0:
			s.num, s.den = 0, 0
		case num > 0 && den > 0:
			s.num, s.den = num, den
		}
	}

	dir, file := strings.TrimSpace(lc.Dir), strings.TrimSpace(lc.BotFile)
	if dir != "" && file != "" {
		s.file = filepath.Join(dir, file)
	}
	return s
}

func splitKeys(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "default" {
		return nil
	}
	var keys []string
	for _, k := range strings.Split(raw, ",") {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}

// InitLogger installs the global logger described by cfg. Only the first
// call has an effect.
func InitLogger(cfg *coreconfig.Config) error {
	sinks.once.Do(func() {
		s := settingsFrom(cfg)
		levelVar.Set(s.level)
		debugSampler.Set(s.num, s.den)
		unsampled = envFlag("TRACE") || envFlag("LOG_TRACE")

		outputs := []io.Writer{os.Stdout}
		if f := openLogFile(s.file); f != nil {
			outputs = append(outputs, f)
			sinks.files = append(sinks.files, f)
		}

		var h slog.Handler
		if s.format == formatPretty {
			h = newPrettyHandler(io.MultiWriter(outputs...), &levelVar, len(outputs) > 1)
		} else {
			sinks.writer = newAsyncWriter(outputs, 64*1024)
			h = newStructuredHandler(handlerConfig{
				level:    &levelVar,
				writer:   sinks.writer,
				format:   s.format,
				keyOrder: s.order,
			})
		}
		base := slog.New(h)
		slog.SetDefault(base)
		setBase(base)

		L.LogAttrs(context.Background(), slog.LevelInfo, "startup",
			slog.String("component", "app"),
			slog.String("event", "startup"),
			slog.String("go_version", runtime.Version()),
			slog.String("build_version", buildinfo.Version),
			slog.String("build_commit", buildinfo.Commit),
			slog.String("build_time", buildinfo.Date),
			slog.String("cfg_profile", s.profile),
		)
	})
	return nil
}

// openLogFile opens path for appending. Failures are reported on the
// standard logger and leave stdout as the only sink.
func openLogFile(path string) *os.File {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		log.Printf("logger: create log dir: %v", err)
		return nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		log.Printf("logger: open log file: %v", err)
		return nil
	}
	return f
}

func envFlag(name string) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(name))) {
	case "1", "true", "on", "yes":
		return true
	}
	return false
}

// Shutdown flushes buffered output and closes log files.
func Shutdown() error {
	sinks.mu.Lock()
	defer sinks.mu.Unlock()
	if sinks.done {
		return nil
	}
	sinks.done = true

	var errs []error
	if sinks.writer != nil {
		errs = append(errs, sinks.writer.Flush(), sinks.writer.Close())
	}
	for _, c := range sinks.files {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

// Background returns context.Background() for call sites outside an update.
func Background() context.Context {
	return context.Background()
}

// LogEvent writes an event line, resolving the logger from ctx when logg is nil.
func LogEvent(ctx context.Context, logg *slog.Logger, level slog.Level, event string, attrs ...slog.Attr) {
	if logg == nil {
		logg = FromContext(ctx)
	}
	if event != "" {
		attrs = append([]slog.Attr{slog.String("event", event)}, attrs...)
	}
	logg.LogAttrs(ctx, level, "", attrs...)
}

// Component returns the base logger tagged with component name.
func Component(name string) *slog.Logger {
	if name = strings.TrimSpace(name); name == "" {
		return L
	}
	return L.With("component", name)
}

// Event logs under the given component.
func Event(ctx context.Context, component string, level slog.Level, event string, attrs ...slog.Attr) {
	LogEvent(ctx, Component(component), level, event, attrs...)
}

// Debug logs a debug event for component.
func Debug(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelDebug, event, attrs...)
}

// Info logs an info event for component.
func Info(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelInfo, event, attrs...)
}

// Warn logs a warning for component.
func Warn(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelWarn, event, attrs...)
}

// Error logs an error for component.
func Error(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelError, event, attrs...)
}

// ShouldSampleDebug reports whether a high volume debug line should be written.
func ShouldSampleDebug() bool {
	return unsampled || debugSampler.Allow()
}
