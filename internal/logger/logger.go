// Package logger provides the logging interface shared by dynimp components.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Logger is what dynimp components log through. Pipelines receive it as a
// parameter; the command line stores it in the context.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	With(args ...any) Logger
	WithGroup(name string) Logger
}

type slogLogger struct {
	*slog.Logger
}

func (l slogLogger) With(args ...any) Logger {
	return slogLogger{l.Logger.With(args...)}
}

func (l slogLogger) WithGroup(name string) Logger {
	return slogLogger{l.Logger.WithGroup(name)}
}

// New returns a Logger writing through handler.
func New(handler slog.Handler) Logger {
	return slogLogger{slog.New(handler)}
}

// Output formats selectable with --log-format.
const (
	FormatPretty = "pretty"
	FormatText   = "text"
	FormatJSON   = "json"
)

// NewFormat returns a Logger for the named format. Anything unknown gets
// the console format.
func NewFormat(w io.Writer, format string, level slog.Level) Logger {
	opts := &slog.HandlerOptions{Level: level}
	switch format {
	case FormatText:
		return New(slog.NewTextHandler(w, opts))
	case FormatJSON:
		return New(slog.NewJSONHandler(w, opts))
	default:
		return New(NewConsoleHandler(w, opts))
	}
}

// Text returns a logfmt Logger, as used for the desktop output pane.
func Text(w io.Writer, level slog.Level) Logger {
	return NewFormat(w, FormatText, level)
}

// JSON returns a Logger emitting one JSON object per record.
func JSON(w io.Writer, level slog.Level) Logger {
	return NewFormat(w, FormatJSON, level)
}

// Pretty returns the console Logger.
func Pretty(w io.Writer, level slog.Level) Logger {
	return NewFormat(w, FormatPretty, level)
}

// Default is the console Logger on stderr at info level.
func Default() Logger {
	return Pretty(os.Stderr, slog.LevelInfo)
}

// Discard returns a Logger that drops every record.
func Discard() Logger {
	return New(slog.DiscardHandler)
}

type loggerKey struct{}

// WithContext stores log in ctx.
func WithContext(ctx context.Context, log Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, log)
}

// FromContext returns the Logger stored in ctx, or Default.
func FromContext(ctx context.Context) Logger {
	if log, ok := ctx.Value(loggerKey{}).(Logger); ok {
		return log
	}
	return Default()
}

// ParseLevel maps a level name to slog.Level. "warning" is accepted for
// warn; anything unrecognized is info.
func ParseLevel(name string) slog.Level {
	if strings.EqualFold(name, "warning") {
		return slog.LevelWarn
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return slog.LevelInfo
	}
	return level
}
