// Package logger owns the process-wide zerolog logger. Loggers taken from a
// context carry its request id and active span.
package logger

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/trace"
)

// Logger is usable before Init; it then writes JSON to stderr.
var Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()

type Options struct {
	Service string
	// Development switches to human-readable console output.
	Development bool
	Level       string
	// Out defaults to stdout.
	Out io.Writer
}

func Init(opts Options) {
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	if opts.Development {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.TimeOnly}
	}

	zerolog.TimeFieldFormat = time.RFC3339Nano
	Logger = zerolog.New(out).With().Timestamp().Str("service", opts.Service).Logger()
	log.Logger = Logger
	SetLevel(opts.Level)
}

// SetLevel sets the global log level; unknown names fall back to info.
func SetLevel(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}

type requestIDKey struct{}

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// For returns Logger with the request id and span ids found in ctx.
func For(ctx context.Context) *zerolog.Logger {
	c := Logger.With()
	if id := RequestID(ctx); id != "" {
		c = c.Str("request_id", id)
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		c = c.Str("trace_id", sc.TraceID().String()).Str("span_id", sc.SpanID().String())
	}
	l := c.Logger()
	return &l
}

func Debug(ctx context.Context) *zerolog.Event { return For(ctx).Debug() }
func Info(ctx context.Context) *zerolog.Event  { return For(ctx).Info() }
func Warn(ctx context.Context) *zerolog.Event  { return For(ctx).Warn() }
func Error(ctx context.Context) *zerolog.Event { return For(ctx).Error() }
