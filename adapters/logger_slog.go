package adapters

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"popfork/errors"
	"popfork/ports"
)

// SlogLogger adapts a *slog.Logger to ports.Logger.
type SlogLogger struct {
	l *slog.Logger
}

var _ ports.Logger = (*SlogLogger)(nil)

// NewSlogLogger builds a logger writing to w. Format "text" (or empty)
// renders through zerolog's console writer, "json" writes slog's JSON lines.
func NewSlogLogger(w io.Writer, format, level string) (*SlogLogger, error) {
	lvl, err := ParseLogLevel(level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: lvl}

	var h slog.Handler
	switch strings.ToLower(format) {
	case "", "text", "plain":
		// The console writer expects zerolog's field names
		opts.ReplaceAttr = func(groups []string, a slog.Attr) slog.Attr {
			if a.Key != slog.MessageKey {
				return a
			}
			return slog.String(zerolog.MessageFieldName, a.Value.String())
		}
		h = slog.NewJSONHandler(&zerolog.ConsoleWriter{
			Out:        w,
			NoColor:    true,
			TimeFormat: time.RFC3339,
			FormatLevel: func(i interface{}) string {
				if s, ok := i.(string); ok {
					return strings.ToUpper(s)
				}
				return "????"
			},
			FormatMessage: func(i interface{}) string {
				if s, ok := i.(string); ok {
					return s
				}
				return fmt.Sprint(i)
			},
		}, opts)
	case "json":
		h = slog.NewJSONHandler(w, opts)
	default:
		return nil, errors.BadRequest.WithFormat("log format %q is not supported", format)
	}
	return &SlogLogger{l: slog.New(h)}, nil
}

// ParseLogLevel accepts debug, info, warn and error.
func ParseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, errors.BadRequest.WithFormat("log level %q is not supported", s)
}

func (s *SlogLogger) Debug(msg string, keyvals ...any) { s.l.Debug(msg, keyvals...) }
func (s *SlogLogger) Info(msg string, keyvals ...any)  { s.l.Info(msg, keyvals...) }
func (s *SlogLogger) Warn(msg string, keyvals ...any)  { s.l.Warn(msg, keyvals...) }
func (s *SlogLogger) Error(msg string, keyvals ...any) { s.l.Error(msg, keyvals...) }

func (s *SlogLogger) With(keyvals ...any) ports.Logger {
	return &SlogLogger{l: s.l.With(keyvals...)}
}
