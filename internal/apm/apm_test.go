package apm

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/fd1az/go-exc/internal/logger"
)

func newRecordingTracer(t *testing.T) (*tracetest.InMemoryExporter, Tracer) {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exporter),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	prevTP := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prevTP) })

	return exporter, NewTracer("test-tracer")
}

func TestStartSpanFromContextRecordsSpan(t *testing.T) {
	exporter, tracer := newRecordingTracer(t)

	_, span := tracer.StartSpanFromContext(context.Background(), "fetch-candles")
	span.SetAttribute(attribute.String("symbol", "BTC-USDT"))
	span.End()

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("len(spans) = %d, want 1", len(spans))
	}
	if spans[0].Name != "fetch-candles" {
		t.Fatalf("Name = %q, want fetch-candles", spans[0].Name)
	}
}

func TestSpanFromContextReturnsUsableSpan(t *testing.T) {
	_, tracer := newRecordingTracer(t)

	ctx, span := tracer.StartSpanFromContext(context.Background(), "op")
	defer span.End()

	fromCtx := tracer.SpanFromContext(ctx)
	if !fromCtx.IsRecording() {
		t.Fatal("expected the span pulled from context to be recording")
	}
}

func TestNoticeErrorSetsErrorStatus(t *testing.T) {
	exporter, tracer := newRecordingTracer(t)

	_, span := tracer.StartSpanFromContext(context.Background(), "place-order")
	span.NoticeError(errors.New("insufficient balance"))
	span.End()

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("len(spans) = %d, want 1", len(spans))
	}
	if spans[0].Status.Code != codes.Error {
		t.Fatalf("Status.Code = %v, want codes.Error", spans[0].Status.Code)
	}
	if spans[0].Status.Description != "insufficient balance" {
		t.Fatalf("Status.Description = %q", spans[0].Status.Description)
	}
}

func TestGetTracerReturnsUnderlyingTracer(t *testing.T) {
	_, tracer := newRecordingTracer(t)
	if tracer.GetTracer() == nil {
		t.Fatal("expected a non-nil underlying trace.Tracer")
	}
}

func TestNewTraceProviderDefaultsToEmpty(t *testing.T) {
	tp := NewTraceProvider("excctl-test")
	if err := tp.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestNewTraceProviderWithConsoleProvider(t *testing.T) {
	tp := NewTraceProvider("excctl-test", WithProvider(ConsoleProvider, logger.Noop()))
	if err := tp.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestWithProviderFallsBackToEmptyForUnknownProvider(t *testing.T) {
	opt := WithProvider(Provider("unknown"), logger.Noop())
	opts := &TracerOptions{}
	opt(opts)

	if !opts.useEmpty {
		t.Fatal("expected an unrecognized provider to fall back to the empty provider")
	}
}

func TestNewEmptyTraceProviderStopIsNoop(t *testing.T) {
	tp := NewEmptyTraceProvider()
	if err := tp.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}
