package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"showoff/internal/infra/config"
)

const redacted = "[REDACTED]"

// secretKeys are attribute keys whose values never reach the log output.
var secretKeys = map[string]bool{
	"token":         true,
	"authorization": true,
	"passphrase":    true,
	"secret":        true,
}

type options struct {
	writer  io.Writer
	service string
	version string
}

// Option customizes New.
type Option func(*options)

// WithWriter sends output to w instead of cfg.Output.
func WithWriter(w io.Writer) Option {
	return func(o *options) { o.writer = w }
}

// WithService tags every record with service and version attributes.
func WithService(name, version string) Option {
	return func(o *options) {
		o.service = name
		o.version = version
	}
}

// New creates a configured *slog.Logger.
// The returned closer function should be deferred to flush/close file handles.
func New(cfg config.LoggerConfig, opts ...Option) (*slog.Logger, func() error, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	writer, closer := o.writer, func() error { return nil }
	if writer == nil {
		w, c, err := openOutput(cfg.Output)
		if err != nil {
			return nil, nil, fmt.Errorf("open log output: %w", err)
		}
		writer, closer = w, c
	}

	hopts := &slog.HandlerOptions{
		Level:       parseLevel(cfg.Level),
		ReplaceAttr: redactSecrets,
	}

	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "json":
		handler = slog.NewJSONHandler(writer, hopts)
	default:
		handler = slog.NewTextHandler(writer, hopts)
	}

	log := slog.New(&traceHandler{Handler: handler})
	if o.service != "" {
		log = log.With("service", o.service)
	}
	if o.version != "" {
		log = log.With("version", o.version)
	}
	return log, closer, nil
}

// redactSecrets masks values of credential-bearing attributes.
func redactSecrets(_ []string, a slog.Attr) slog.Attr {
	if secretKeys[strings.ToLower(a.Key)] && a.Value.Kind() == slog.KindString && a.Value.String() != "" {
		return slog.String(a.Key, redacted)
	}
	return a
}

// traceHandler adds trace_id and span_id when the record's context carries
// a sampled span.
type traceHandler struct {
	slog.Handler
}

func (h *traceHandler) Handle(ctx context.Context, r slog.Record) error {
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		r.AddAttrs(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	return h.Handler.Handle(ctx, r)
}

func (h *traceHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &traceHandler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h *traceHandler) WithGroup(name string) slog.Handler {
	return &traceHandler{Handler: h.Handler.WithGroup(name)}
}

// parseLevel converts a string level to slog.Level.
func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
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

// openOutput returns an io.Writer for the specified output target.
func openOutput(output string) (io.Writer, func() error, error) {
	noop := func() error { return nil }

	switch strings.ToLower(output) {
	case "stdout":
		return os.Stdout, noop, nil
	case "stderr", "":
		return os.Stderr, noop, nil
	default:
		f, err := os.OpenFile(output, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
		if err != nil {
			return nil, nil, err
		}
		return f, f.Close, nil
	}
}
