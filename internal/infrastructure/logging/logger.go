package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/nerrad567/azoula-gateway/internal/infrastructure/config"
)

// ServiceName is attached to every log entry as the "service" attribute.
const ServiceName = "azoula"

// redacted replaces the value of credential attributes.
const redacted = "[redacted]"

// Logger wraps slog.Logger with the service defaults. Safe for concurrent use.
type Logger struct {
	*slog.Logger
}

// New builds a logger from cfg. Entries go to w; a nil w selects stdout or
// stderr according to cfg.Output. The CLI passes stderr explicitly so log
// lines stay off stdout, which carries command output.
//
// Attributes whose key names a credential (password, token, secret) are
// written as "[redacted]" whatever the caller passes.
func New(cfg config.LoggingConfig, version string, w io.Writer) *Logger {
	if w == nil {
		w = output(cfg.Output)
	}

	opts := &slog.HandlerOptions{
		Level:       parseLevel(cfg.Level),
		ReplaceAttr: redact,
	}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	return &Logger{Logger: slog.New(handler).With(
		slog.String("service", ServiceName),
		slog.String("version", version),
	)}
}

// With returns a child logger carrying args on every entry.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// Discard returns a logger that drops everything. Useful in tests.
func Discard() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

func output(name string) io.Writer {
	if strings.EqualFold(name, "stderr") {
		return os.Stderr
	}
	return os.Stdout
}

// parseLevel maps debug, info, warn(ing) and error; anything else is info.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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

func redact(_ []string, a slog.Attr) slog.Attr {
	key := strings.ToLower(a.Key)
	for _, s := range []string{"password", "token", "secret"} {
		if strings.Contains(key, s) {
			return slog.String(a.Key, redacted)
		}
	}
	return a
}
