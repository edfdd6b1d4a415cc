package handler

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/rl1809/stock-ledger/pkg/logger"
)

// LedgerServiceName is the service name reported by the gRPC health service.
const LedgerServiceName = "stockledger.Ledger"

// GRPCHealth serves grpc.health.v1.Health with a status that follows storage health.
type GRPCHealth struct {
	server   *health.Server
	checker  HealthChecker
	interval time.Duration
}

func NewGRPCHealth(checker HealthChecker, interval time.Duration) *GRPCHealth {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	h := &GRPCHealth{server: health.NewServer(), checker: checker, interval: interval}
	h.setStatus(healthpb.HealthCheckResponse_NOT_SERVING)
	return h
}

func (h *GRPCHealth) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, h.server)
}

// Run checks storage until ctx is done.
func (h *GRPCHealth) Run(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		h.Check(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Check pings storage once and publishes the result.
func (h *GRPCHealth) Check(ctx context.Context) {
	checkCtx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	if err := h.checker.Ping(checkCtx); err != nil {
		logger.Warn(ctx).Err(err).Msg("Storage unhealthy")
		h.setStatus(healthpb.HealthCheckResponse_NOT_SERVING)
		return
	}
	h.setStatus(healthpb.HealthCheckResponse_SERVING)
}

// Shutdown reports NOT_SERVING to every watcher.
func (h *GRPCHealth) Shutdown() {
	h.server.Shutdown()
}

func (h *GRPCHealth) setStatus(status healthpb.HealthCheckResponse_ServingStatus) {
	h.server.SetServingStatus("", status)
	h.server.SetServingStatus(LedgerServiceName, status)
}
