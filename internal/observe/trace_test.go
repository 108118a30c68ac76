package observe

import (
	"context"
	"log/slog"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// installTestTracing registers an in-memory tracer provider as the global
// one so StartSpan records into it, restoring the original on cleanup.
func installTestTracing(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))

	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})
	return exp
}

// captureLogs redirects the default slog logger into a strings.Builder for
// the duration of the test.
func captureLogs(t *testing.T) *strings.Builder {
	t.Helper()
	var sb strings.Builder
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&sb, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return &sb
}

func TestCorrelationID_NoSpanIsEmpty(t *testing.T) {
	if got := CorrelationID(context.Background()); got != "" {
		t.Errorf("CorrelationID without a span = %q, want empty", got)
	}
}

func TestStartSpan_RecordsNamedSpan(t *testing.T) {
	exp := installTestTracing(t)

	ctx, span := StartSpan(context.Background(), "pipeline.process")
	if CorrelationID(ctx) == "" {
		t.Error("span context carries no trace ID")
	}
	span.End()

	spans := exp.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("recorded %d spans, want 1", len(spans))
	}
	if spans[0].Name != "pipeline.process" {
		t.Errorf("span name = %q, want %q", spans[0].Name, "pipeline.process")
	}
}

func TestCorrelationID_IsHexTraceID(t *testing.T) {
	installTestTracing(t)

	ctx, span := StartSpan(context.Background(), "pipeline.process")
	defer span.End()

	cid := CorrelationID(ctx)
	if len(cid) != 32 {
		t.Fatalf("correlation ID length = %d, want 32", len(cid))
	}
	if strings.Trim(cid, "0123456789abcdef") != "" {
		t.Errorf("correlation ID %q contains non-hex characters", cid)
	}
}

func TestCorrelationID_DistinctPerRun(t *testing.T) {
	installTestTracing(t)

	seen := make(map[string]struct{}, 64)
	for n := 0; n < 64; n++ {
		ctx, span := StartSpan(context.Background(), "pipeline.process")
		cid := CorrelationID(ctx)
		span.End()
		if _, dup := seen[cid]; dup {
			t.Fatalf("trace ID %s issued twice", cid)
		}
		seen[cid] = struct{}{}
	}
}

func TestLogger_AnnotatesWithSpanContext(t *testing.T) {
	installTestTracing(t)
	sb := captureLogs(t)

	ctx, span := StartSpan(context.Background(), "pipeline.process")
	defer span.End()

	Logger(ctx).Info("source attributed", "source_id", "ep-042")

	line := sb.String()
	for _, want := range []string{"trace_id=", "span_id=", "source_id=ep-042"} {
		if !strings.Contains(line, want) {
			t.Errorf("log line missing %q: %s", want, line)
		}
	}
}

func TestLogger_PlainWithoutSpan(t *testing.T) {
	sb := captureLogs(t)

	Logger(context.Background()).Info("batch done")

	if line := sb.String(); strings.Contains(line, "trace_id") {
		t.Errorf("log line should have no trace_id without a span: %s", line)
	}
}

func TestTracer_NotNil(t *testing.T) {
	if Tracer() == nil {
		t.Fatal("Tracer() returned nil")
	}
}
