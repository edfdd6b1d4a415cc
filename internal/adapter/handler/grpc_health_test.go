package handler

import (
	"context"
	"errors"
	"testing"
	"time"

	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type togglingHealth struct{ err error }

func (h *togglingHealth) Ping(ctx context.Context) error { return h.err }

func TestGRPCHealth_FollowsStorage(t *testing.T) {
	checker := &togglingHealth{}
	h := NewGRPCHealth(checker, time.Hour)
	ctx := context.Background()

	status := func() healthpb.HealthCheckResponse_ServingStatus {
		resp, err := h.server.Check(ctx, &healthpb.HealthCheckRequest{Service: LedgerServiceName})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		return resp.GetStatus()
	}

	if got := status(); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("expected NOT_SERVING before the first check, got %s", got)
	}

	h.Check(ctx)
	if got := status(); got != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("expected SERVING, got %s", got)
	}

	checker.err = errors.New("db down")
	h.Check(ctx)
	if got := status(); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("expected NOT_SERVING, got %s", got)
	}
}
