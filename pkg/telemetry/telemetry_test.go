package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"default", func(c *Config) {}, ""},
		{"development", func(c *Config) { *c = *DevelopmentConfig() }, ""},
		{"missing service name", func(c *Config) { c.ServiceName = "" }, "service name"},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }, "invalid log level"},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }, "invalid log format"},
		{"bad exporter", func(c *Config) {
			c.Tracing.Enabled = true
			c.Tracing.Exporter = "jaeger"
		}, "invalid trace exporter"},
		{"bad sampling", func(c *Config) { c.Tracing.SamplingRate = 2 }, "sampling rate"},
		{"metrics without address", func(c *Config) { c.Metrics.ListenAddress = "" }, "listen address"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestLogger_Fields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerFrom(zerolog.New(&buf)).
		NewComponentLogger("bridge").
		WithEntryPoint("authorize").
		WithInstance(7).
		WithRequestID("r-1")

	logger.Info("call finished")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to decode log line: %v", err)
	}
	want := map[string]any{
		"component":   "bridge",
		"entry_point": "authorize",
		"instance_id": float64(7),
		"request_id":  "r-1",
		"message":     "call finished",
	}
	for k, v := range want {
		if entry[k] != v {
			t.Errorf("field %s: expected %v, got %v", k, v, entry[k])
		}
	}
}

func TestLogger_Context(t *testing.T) {
	logger := NewNopLogger()
	ctx := logger.WithContext(context.Background())
	if FromContext(ctx) != logger {
		t.Error("expected the stored logger")
	}
	if FromContext(context.Background()) == nil {
		t.Error("expected a fallback logger")
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]zerolog.Level{
		"trace":   zerolog.TraceLevel,
		"debug":   zerolog.DebugLevel,
		"warn":    zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"unknown": zerolog.InfoLevel,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestMetrics_Record(t *testing.T) {
	m, err := NewMetrics(TestConfig().Metrics)
	if err != nil {
		t.Fatalf("failed to create metrics: %v", err)
	}

	m.RecordCall("authorize", "success", 2*time.Millisecond)
	m.RecordCall("authorize", "failure", time.Millisecond)
	m.RecordFailure("authorize", "domain")
	m.SetCachedHandles("request", "methods", 12)
	m.InstanceCreated()
	m.InstanceCreated()
	m.InstanceReleased()
	m.RecordDecision("signed", true)

	if got := testutil.ToFloat64(m.calls.WithLabelValues("authorize", "success")); got != 1 {
		t.Errorf("expected 1 successful call, got %v", got)
	}
	if got := testutil.ToFloat64(m.failures.WithLabelValues("authorize", "domain")); got != 1 {
		t.Errorf("expected 1 domain failure, got %v", got)
	}
	if got := testutil.ToFloat64(m.cachedHandles.WithLabelValues("request", "methods")); got != 12 {
		t.Errorf("expected 12 cached methods, got %v", got)
	}
	if got := testutil.ToFloat64(m.liveInstances); got != 1 {
		t.Errorf("expected 1 live instance, got %v", got)
	}
	if got := testutil.ToFloat64(m.decisions.WithLabelValues("signed", "allow")); got != 1 {
		t.Errorf("expected 1 allow decision, got %v", got)
	}
	if m.Registry() == nil {
		t.Error("expected a registry")
	}
}

func TestMetrics_Disabled(t *testing.T) {
	m := NewNopMetrics()

	// None of these may panic.
	m.RecordCall("authorize", "success", time.Millisecond)
	m.RecordFailure("authorize", "engine")
	m.SetCachedHandles("core", "classes", 1)
	m.InstanceCreated()
	m.InstanceReleased()
	m.RecordDecision("signed", false)
	m.RecordLogEntry("memory", "stored")
	m.RecordStoreReload("success")

	if m.Registry() != nil {
		t.Error("expected no registry when disabled")
	}
}

func TestTracer_EntryPointSpan(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	tracer := NewTracerWithProvider(provider, "test")

	ctx, span := tracer.StartSpan(context.Background(), "bridge.authorize", AttrEntryPoint.String("authorize"))
	_, child := tracer.StartAuthorizeSpan(ctx, "signed", "View")
	RecordSuccess(child)
	child.End()
	RecordError(span, context.Canceled)
	span.End()

	spans := recorder.Ended()
	if len(spans) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(spans))
	}
	if spans[0].Name() != "engine.authorize" || spans[1].Name() != "bridge.authorize" {
		t.Errorf("unexpected span names %s, %s", spans[0].Name(), spans[1].Name())
	}
	if spans[0].Parent().SpanID() != spans[1].SpanContext().SpanID() {
		t.Error("expected the engine span to be a child of the entry point span")
	}
	if len(spans[1].Events()) == 0 {
		t.Error("expected the error to be recorded as an event")
	}
}

func TestStartOperation(t *testing.T) {
	var buf bytes.Buffer
	tel := NewNopTelemetry()
	ctx := NewLoggerFrom(zerolog.New(&buf)).WithContext(tel.WithContext(context.Background()))

	op := StartOperation(ctx, "validate")
	if op.Span == nil {
		t.Fatal("expected a span when telemetry is in the context")
	}
	AddEvent(op.Ctx, "checked")
	op.Logger.Info("done")
	op.End(nil)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to decode log line: %v", err)
	}
	if entry["trace_id"] != TraceID(op.Ctx) || entry["trace_id"] == "" {
		t.Errorf("expected trace id %s, got %v", TraceID(op.Ctx), entry["trace_id"])
	}

	bare := StartOperation(context.Background(), "validate")
	if bare.Span != nil {
		t.Error("expected no span without telemetry")
	}
	if TraceID(bare.Ctx) != "" {
		t.Error("expected no trace id without a span")
	}
	bare.End(nil)
}

func TestTracer_StdoutExporter(t *testing.T) {
	var buf bytes.Buffer
	cfg := TestConfig()
	cfg.Metrics.Enabled = false
	cfg.Tracing.Enabled = true
	cfg.Tracing.Exporter = "stdout"
	cfg.Tracing.Writer = &buf

	tel, err := NewTelemetry(cfg)
	if err != nil {
		t.Fatalf("failed to create telemetry: %v", err)
	}

	op := StartOperation(tel.WithContext(context.Background()), "bridge.authorize", AttrEntryPoint.String("authorize"))
	AddEvent(op.Ctx, "instance.attached", AttrInstanceID.Int64(1))
	op.End(nil)

	if err := tel.Shutdown(context.Background()); err != nil {
		t.Fatalf("failed to shut down telemetry: %v", err)
	}

	out := buf.String()
	for _, want := range []string{`"Name": "bridge.authorize"`, "bridge.entry_point", "instance.attached"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %s in exported spans:\n%s", want, out)
		}
	}
}

func TestTracer_UnsupportedExporter(t *testing.T) {
	_, err := NewTracer(TracingConfig{Enabled: true, Exporter: "zipkin"}, "svc", "v1", "test")
	if err == nil || !strings.Contains(err.Error(), "unsupported trace exporter") {
		t.Fatalf("expected unsupported exporter error, got %v", err)
	}
}
