package tracing

import (
	"context"
	"slices"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
)

func TestSetup_WithoutEndpointInstallsPropagatorOnly(t *testing.T) {
	before := otel.GetTracerProvider()

	shutdown, err := Setup(context.Background(), Options{Service: "ledger-test"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("unexpected shutdown error: %v", err)
	}

	if !slices.Contains(otel.GetTextMapPropagator().Fields(), "traceparent") {
		t.Errorf("expected traceparent propagation, got fields %v", otel.GetTextMapPropagator().Fields())
	}
	if otel.GetTracerProvider() != before {
		t.Error("expected tracer provider to be left alone without an endpoint")
	}
}

func TestSetup_WithEndpoint(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	// The collector is never contacted unless spans are exported.
	shutdown, err := Setup(context.Background(), Options{
		Service:        "ledger-test",
		Version:        "test",
		Environment:    "test",
		JaegerEndpoint: "http://127.0.0.1:1/api/traces",
		SampleRatio:    0.25,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("unexpected shutdown error: %v", err)
	}
}

func TestSampler(t *testing.T) {
	tests := []struct {
		ratio float64
		want  string
	}{
		{0, "AlwaysOnSampler"},
		{1, "AlwaysOnSampler"},
		{0.5, "TraceIDRatioBased"},
	}
	for _, tt := range tests {
		if got := sampler(tt.ratio).Description(); !strings.HasPrefix(got, tt.want) {
			t.Errorf("sampler(%v): expected %s, got %s", tt.ratio, tt.want, got)
		}
	}
}
