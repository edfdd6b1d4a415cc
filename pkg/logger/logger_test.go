package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

func captureJSON(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	Init(Options{Service: "ledger-test", Level: "debug", Out: &buf})
	t.Cleanup(func() { SetLevel("info") })
	return &buf
}

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected JSON log line, got %q: %v", buf.String(), err)
	}
	return entry
}

func TestInit_JSON(t *testing.T) {
	buf := captureJSON(t)

	Info(context.Background()).Str("product_id", "p-1").Msg("stock applied")

	entry := decodeLine(t, buf)
	if entry["service"] != "ledger-test" || entry["product_id"] != "p-1" {
		t.Errorf("unexpected entry: %v", entry)
	}
	for _, key := range []string{"trace_id", "request_id"} {
		if _, ok := entry[key]; ok {
			t.Errorf("expected no %s on a bare context", key)
		}
	}
}

func TestFor_AddsRequestAndTraceIDs(t *testing.T) {
	buf := captureJSON(t)

	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{0x01},
		SpanID:     trace.SpanID{0x02},
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(WithRequestID(context.Background(), "req-7"), sc)

	Warn(ctx).Msg("contention")

	entry := decodeLine(t, buf)
	if entry["request_id"] != "req-7" {
		t.Errorf("expected request_id req-7, got %v", entry["request_id"])
	}
	if entry["trace_id"] != sc.TraceID().String() || entry["span_id"] != sc.SpanID().String() {
		t.Errorf("unexpected trace fields: %v", entry)
	}
	if RequestID(ctx) != "req-7" {
		t.Errorf("expected RequestID req-7, got %q", RequestID(ctx))
	}
}

func TestSetLevel(t *testing.T) {
	defer SetLevel("info")

	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"warn", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"bogus", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		SetLevel(tt.in)
		if got := zerolog.GlobalLevel(); got != tt.want {
			t.Errorf("SetLevel(%q): expected %v, got %v", tt.in, tt.want, got)
		}
	}
}
