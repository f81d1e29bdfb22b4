package tracer

import (
	"context"
	"fmt"
	"io"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"showoff/internal/infra/config"
)

const tracerName = "showoff"

type setupOptions struct {
	service  string
	version  string
	exporter sdktrace.SpanExporter
	syncer   bool
	stdout   io.Writer
}

// Option customizes Setup.
type Option func(*setupOptions)

// WithService sets the service.name and service.version resource attributes.
func WithService(name, version string) Option {
	return func(o *setupOptions) {
		o.service = name
		o.version = version
	}
}

// WithExporter overrides the exporter chosen from config. Spans are
// exported synchronously so callers can inspect them immediately.
func WithExporter(exp sdktrace.SpanExporter) Option {
	return func(o *setupOptions) {
		o.exporter = exp
		o.syncer = true
	}
}

// WithStdoutWriter redirects the "stdout" exporter, e.g. to stderr when
// stdout carries a protocol stream.
func WithStdoutWriter(w io.Writer) Option {
	return func(o *setupOptions) { o.stdout = w }
}

// Setup initializes OpenTelemetry tracing and returns a shutdown function.
// When cfg.Enabled is false, a noop TracerProvider is used.
func Setup(ctx context.Context, cfg config.TracerConfig, opts ...Option) (func(context.Context) error, error) {
	o := setupOptions{service: tracerName}
	for _, opt := range opts {
		opt(&o)
	}
	noopShutdown := func(context.Context) error { return nil }

	if !cfg.Enabled {
		otel.SetTracerProvider(noop.NewTracerProvider())
		return noopShutdown, nil
	}

	exporter := o.exporter
	if exporter == nil {
		switch cfg.Exporter {
		case "stdout":
			stdoutOpts := []stdouttrace.Option{stdouttrace.WithPrettyPrint()}
			if o.stdout != nil {
				stdoutOpts = append(stdoutOpts, stdouttrace.WithWriter(o.stdout))
			}
			exp, err := stdouttrace.New(stdoutOpts...)
			if err != nil {
				return nil, fmt.Errorf("create stdout exporter: %w", err)
			}
			exporter = exp
		case "noop", "":
			otel.SetTracerProvider(noop.NewTracerProvider())
			return noopShutdown, nil
		default:
			return nil, fmt.Errorf("unsupported exporter: %s", cfg.Exporter)
		}
	}

	attrs := []attribute.KeyValue{attribute.String("service.name", o.service)}
	if o.version != "" {
		attrs = append(attrs, attribute.String("service.version", o.version))
	}

	export := sdktrace.WithBatcher(exporter)
	if o.syncer {
		export = sdktrace.WithSyncer(exporter)
	}
	tp := sdktrace.NewTracerProvider(
		export,
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(resource.NewSchemaless(attrs...)),
	)
	otel.SetTracerProvider(tp)

	return tp.Shutdown, nil
}

// StartSpan starts a named span on the showoff tracer.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, name, opts...)
}

// RecordError records an error on the span and sets error status. A nil
// error is ignored.
func RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// SetOK sets the span status to OK.
func SetOK(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}

// StringAttr is a convenience for attribute.String.
func StringAttr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// IntAttr is a convenience for attribute.Int.
func IntAttr(key string, value int) attribute.KeyValue {
	return attribute.Int(key, value)
}
