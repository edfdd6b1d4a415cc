package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"

	"github.com/rl1809/stock-ledger/internal/adapter/event"
	"github.com/rl1809/stock-ledger/internal/adapter/handler"
	"github.com/rl1809/stock-ledger/internal/adapter/storage"
	"github.com/rl1809/stock-ledger/internal/config"
	"github.com/rl1809/stock-ledger/internal/core/service"
	"github.com/rl1809/stock-ledger/internal/port"
	"github.com/rl1809/stock-ledger/pkg/logger"
)

// App owns every long-lived component of the ledger server.
type App struct {
	cfg *config.Config

	Products *service.ProductService
	Ledger   *service.LedgerService

	store      port.DatabaseRepository
	cache      port.CacheRepository
	publisher  port.EventPublisher
	dispatcher *event.Dispatcher
	health     handler.HealthChecks
	grpcHealth *handler.GRPCHealth
	router     *mux.Router

	closers []func() error
}

func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{cfg: cfg}

	if err := a.initStore(ctx); err != nil {
		a.closeAll()
		return nil, err
	}
	if err := a.initCache(ctx); err != nil {
		a.closeAll()
		return nil, err
	}
	if err := a.initPublisher(); err != nil {
		a.closeAll()
		return nil, err
	}

	a.Products = service.NewProductService(a.store, a.cache, cfg.Lock.WaitTimeout)
	a.Ledger = service.NewLedgerService(a.store, a.cache, service.LedgerConfig{
		LockWait:  cfg.Lock.WaitTimeout,
		QueueSize: cfg.Events.QueueSize,
	})

	a.dispatcher = event.NewDispatcher(a.publisher, cfg.Events.Workers)
	a.dispatcher.Start(a.Ledger.GetEventQueue())

	a.grpcHealth = handler.NewGRPCHealth(a.health, 0)

	a.router = mux.NewRouter()
	handler.RegisterMiddlewares(a.router, cfg.ServiceName)
	handler.NewHTTPHandler(a.Products, a.Ledger, a.health).RegisterRoutes(a.router)
	a.router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	return a, nil
}

func (a *App) initStore(ctx context.Context) error {
	switch a.cfg.Storage.Driver {
	case config.DriverMySQL, config.DriverPostgres:
		dialect := storage.Dialect(a.cfg.Storage.Driver)
		db, err := storage.OpenDB(ctx, dialect, a.cfg.Storage.DSN, storage.PoolConfig{
			MaxOpenConns:    a.cfg.Storage.MaxOpenConns,
			MaxIdleConns:    a.cfg.Storage.MaxIdleConns,
			ConnMaxLifetime: a.cfg.Storage.ConnMaxLifetime,
		})
		if err != nil {
			return err
		}
		a.closers = append(a.closers, db.Close)

		store := storage.NewSQLAdapter(db, dialect)
		if a.cfg.Storage.Migrate {
			if err := store.Migrate(ctx); err != nil {
				return err
			}
		}
		a.store = store
		logger.Logger.Info().Str("driver", a.cfg.Storage.Driver).Msg("Connected to database")
	default:
		a.store = storage.NewMemoryAdapter()
		logger.Logger.Warn().Msg("Using in-memory storage; data is lost on restart")
	}

	a.health = append(a.health, a.store)
	return nil
}

func (a *App) initCache(ctx context.Context) error {
	if a.cfg.Redis.Addr == "" {
		a.cache = storage.NewMemoryCache(0)
		return nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     a.cfg.Redis.Addr,
		Password: a.cfg.Redis.Password,
		DB:       a.cfg.Redis.DB,
		PoolSize: a.cfg.Redis.PoolSize,
	})
	a.closers = append(a.closers, rdb.Close)
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect redis: %w", err)
	}

	adapter := storage.NewRedisAdapter(rdb, a.cfg.Lock.TTL)
	a.cache = adapter
	a.health = append(a.health, adapter)
	logger.Logger.Info().Str("addr", a.cfg.Redis.Addr).Msg("Connected to redis")
	return nil
}

func (a *App) initPublisher() error {
	if len(a.cfg.Kafka.Brokers) == 0 {
		a.publisher = event.NewLogPublisher()
		return nil
	}

	pub, err := event.NewKafkaPublisher(a.cfg.Kafka.Brokers, a.cfg.Kafka.Topic)
	if err != nil {
		return err
	}
	a.publisher = pub
	return nil
}

// Handler returns the HTTP API with CORS applied.
func (a *App) Handler() http.Handler {
	return handler.CORS(a.cfg.HTTP.AllowedOrigins)(a.router)
}

// Run serves HTTP and gRPC until ctx is cancelled or a server fails, then
// shuts everything down.
func (a *App) Run(ctx context.Context) error {
	lis, err := net.Listen("tcp", a.cfg.GRPC.Addr)
	if err != nil {
		a.Close()
		return fmt.Errorf("failed to listen on %s: %w", a.cfg.GRPC.Addr, err)
	}

	grpcServer := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	a.grpcHealth.Register(grpcServer)

	httpServer := &http.Server{
		Addr:         a.cfg.HTTP.Addr,
		Handler:      a.Handler(),
		ReadTimeout:  a.cfg.HTTP.ReadTimeout,
		WriteTimeout: a.cfg.HTTP.WriteTimeout,
	}

	healthCtx, stopHealth := context.WithCancel(ctx)
	defer stopHealth()
	go a.grpcHealth.Run(healthCtx)

	errCh := make(chan error, 2)
	go func() {
		logger.Logger.Info().Str("addr", a.cfg.GRPC.Addr).Msg("gRPC server listening")
		if err := grpcServer.Serve(lis); err != nil {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	}()
	go func() {
		logger.Logger.Info().Str("addr", a.cfg.HTTP.Addr).Msg("HTTP server listening")
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Logger.Info().Msg("Shutting down...")
	case runErr = <-errCh:
		logger.Logger.Error().Err(runErr).Msg("Server failed, shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Logger.Warn().Err(err).Msg("HTTP server shutdown incomplete")
	}
	logger.Logger.Info().Msg("HTTP server stopped")

	a.grpcHealth.Shutdown()
	grpcServer.GracefulStop()
	logger.Logger.Info().Msg("gRPC server stopped")

	a.Close()
	return runErr
}

// Close stops accepting events, drains the workers and closes connections.
func (a *App) Close() {
	a.Ledger.Close()
	a.dispatcher.Wait()
	logger.Logger.Info().Msg("Event workers stopped")

	if err := a.publisher.Close(); err != nil {
		logger.Logger.Warn().Err(err).Msg("Failed to close event publisher")
	}
	a.closeAll()
	logger.Logger.Info().Msg("Connections closed")
}

func (a *App) closeAll() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			logger.Logger.Warn().Err(err).Msg("Failed to close connection")
		}
	}
	a.closers = nil
}
