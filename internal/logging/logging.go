package logging

import (
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
)

// Options selects the level and encoding of the process logger.
type Options struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`

	// Output defaults to stderr.
	Output io.Writer `yaml:"-"`
}

var def atomic.Value

func init() {
	cfg := &slog.HandlerOptions{Level: slog.LevelInfo}
	h := slog.NewTextHandler(os.Stderr, cfg)
	def.Store(slog.New(h))
}

// Configure replaces the process logger.
func Configure(opts Options) {
	def.Store(New(opts))
}

// New builds a logger without installing it.
func New(opts Options) *slog.Logger {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	cfg := &slog.HandlerOptions{Level: parseLevel(opts.Level)}
	var h slog.Handler
	if opts.JSON {
		h = slog.NewJSONHandler(out, cfg)
	} else {
		h = slog.NewTextHandler(out, cfg)
	}
	return slog.New(h)
}

func parseLevel(s string) slog.Level {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
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

func L() *slog.Logger {
	l, _ := def.Load().(*slog.Logger)
	return l
}

// Or returns l, or the process logger when l is nil.
func Or(l *slog.Logger) *slog.Logger {
	if l != nil {
		return l
	}
	return L()
}

// Discard is a logger that drops everything; handy in tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// InitFromEnv lets LABMON_LOG_LEVEL / LABMON_LOG_JSON override opts.
func InitFromEnv(opts Options) {
	if lvl := strings.TrimSpace(os.Getenv("LABMON_LOG_LEVEL")); lvl != "" {
		opts.Level = lvl
	}
	if b, err := strconv.ParseBool(strings.TrimSpace(os.Getenv("LABMON_LOG_JSON"))); err == nil {
		opts.JSON = b
	}
	Configure(opts)
}
