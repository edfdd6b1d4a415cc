package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rl1809/stock-ledger/internal/app"
	"github.com/rl1809/stock-ledger/internal/config"
	"github.com/rl1809/stock-ledger/pkg/logger"
	"github.com/rl1809/stock-ledger/pkg/tracing"
)

const version = "1.0.0"

func main() {
	os.Exit(run())
}

// run returns the process exit code once every deferred cleanup has run.
func run() int {
	cfg, err := config.Load()
	if err != nil {
		logger.Logger.Error().Err(err).Msg("Failed to load config")
		return 1
	}

	logger.Init(logger.Options{
		Service:     cfg.ServiceName,
		Development: cfg.IsDevelopment(),
		Level:       cfg.LogLevel,
	})

	shutdownTracing, err := tracing.Setup(context.Background(), tracing.Options{
		Service:        cfg.ServiceName,
		Version:        version,
		Environment:    cfg.Environment,
		JaegerEndpoint: cfg.Tracing.JaegerEndpoint,
		SampleRatio:    cfg.Tracing.SampleRatio,
	})
	if err != nil {
		logger.Logger.Warn().Err(err).Msg("Tracing disabled")
	} else {
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdownTracing(ctx); err != nil {
				logger.Logger.Warn().Err(err).Msg("Failed to flush traces")
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		logger.Logger.Error().Err(err).Msg("Failed to start")
		return 1
	}

	logger.Logger.Info().
		Str("http_addr", cfg.HTTP.Addr).
		Str("grpc_addr", cfg.GRPC.Addr).
		Str("storage", cfg.Storage.Driver).
		Msg("Stock ledger starting")

	if err := a.Run(ctx); err != nil {
		logger.Logger.Error().Err(err).Msg("Server stopped with error")
		return 1
	}
	logger.Logger.Info().Msg("Server exited")
	return 0
}
