package executor

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

// stderrSpanExporter logs each completed span as one structured log line on
// the standard error stream. Standard output is reserved for JSON-RPC
// frames, so trace data can never be forwarded there. It is registered
// behind a synchronous SimpleSpanProcessor, so each span is exported
// inline as it ends, with no timeout around the export.
type stderrSpanExporter struct {
	logger *slog.Logger
}

func newStderrSpanExporter(logger *slog.Logger) *stderrSpanExporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &stderrSpanExporter{logger: logger}
}

func (e *stderrSpanExporter) ExportSpans(_ context.Context, spans []sdktrace.ReadOnlySpan) error {
	for _, span := range spans {
		e.logger.Debug("plugin invocation span",
			"name", span.Name(),
			"duration_ms", span.EndTime().Sub(span.StartTime()).Milliseconds(),
			"status", span.Status().Code.String(),
		)
	}
	return nil
}

func (e *stderrSpanExporter) Shutdown(ctx context.Context) error { return nil }

// newTracerProvider builds a TracerProvider whose only exporter writes to
// the standard error stream via the host's own structured logger.
func newTracerProvider(logger *slog.Logger) *sdktrace.TracerProvider {
	exporter := newStderrSpanExporter(logger)
	processor := sdktrace.NewSimpleSpanProcessor(exporter)

	res, err := resource.New(context.Background(), resource.WithAttributes(
		semconv.ServiceNameKey.String("pluginhost"),
	))
	if err != nil {
		if logger != nil {
			logger.Warn("failed to build trace resource, using default", "error", err)
		}
		res = resource.Default()
	}

	return sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(processor),
		sdktrace.WithResource(res),
	)
}
