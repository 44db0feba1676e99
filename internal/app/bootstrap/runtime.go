package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	eventadapter "github.com/viralforge/dataplane/internal/adapters/events"
	httpadapter "github.com/viralforge/dataplane/internal/adapters/http"
	"github.com/viralforge/dataplane/internal/adapters/postgres"
	"github.com/viralforge/dataplane/internal/application"
	"github.com/viralforge/dataplane/internal/cache"
	"github.com/viralforge/dataplane/internal/ports"
	"github.com/viralforge/dataplane/internal/routing"
)

// Runtime is the composed dataplane: one long-lived instance built at process
// start and injected everywhere, no ambient globals.
type Runtime struct {
	cfg        Config
	logger     *slog.Logger
	registry   *routing.Registry
	monitor    *routing.Monitor
	router     *routing.Router
	factory    *postgres.Factory
	memory     *cache.MemoryStore
	cacheSvc   *cache.Service
	redis      *redis.Client
	publisher  ports.EventPublisher
	recipes    *application.CachedRecipeRepository
	httpServer *http.Server
	closeFns   []func()
}

// NewRuntime loads configuration and wires the whole dataplane.
func NewRuntime(ctx context.Context, configPath string) (*Runtime, error) {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return nil, err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)
	logger.Info("bootstrapping dataplane",
		"service_id", cfg.ServiceID,
		"http_port", cfg.HTTPPort,
		"backends", len(cfg.Backends),
	)

	descriptors, err := cfg.Descriptors()
	if err != nil {
		return nil, err
	}
	registry, err := routing.NewRegistry(descriptors)
	if err != nil {
		return nil, err
	}

	rt := &Runtime{cfg: cfg, logger: logger, registry: registry}

	publisher, closePublisher, err := buildPublisher(cfg, logger)
	if err != nil {
		return nil, err
	}
	rt.publisher = publisher
	if closePublisher != nil {
		rt.closeFns = append(rt.closeFns, closePublisher)
	}

	rt.factory = postgres.NewFactory(logger, cfg.MaxDBConns)
	rt.closeFns = append(rt.closeFns, func() { _ = rt.factory.Close() })

	primaryDB, err := rt.factory.Open(ctx, registry.Primary())
	if err != nil {
		rt.close()
		return nil, fmt.Errorf("connect primary: %w", err)
	}
	if err := postgres.RunMigrations(ctx, primaryDB, logger); err != nil {
		rt.close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	// The shared cache tier is best-effort from the first moment: an
	// unreachable Redis degrades to memory-only instead of failing boot.
	var distributed cache.DistributedStore
	if cfg.RedisURL != "" {
		client, connErr := cache.Connect(ctx, cfg.RedisURL)
		if connErr != nil {
			rt.close()
			return nil, fmt.Errorf("connect redis: %w", connErr)
		}
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		if pingErr := client.Ping(pingCtx).Err(); pingErr != nil {
			logger.Warn("redis unreachable at startup, cache degrades to memory-only until it recovers",
				"module", "cache",
				"operation", "connect",
				"outcome", "degraded",
				"error", pingErr.Error(),
			)
		}
		cancel()
		rt.redis = client
		rt.closeFns = append(rt.closeFns, func() { _ = client.Close() })
		distributed = cache.NewRedisStore(client)
	}

	rt.memory = cache.NewMemoryStore(cfg.MemoryJanitorInterval)
	rt.closeFns = append(rt.closeFns, rt.memory.Close)
	rt.cacheSvc = cache.NewService(rt.memory, distributed, cfg.MemoryTTLCeiling, logger)

	rt.monitor = routing.NewMonitor(rt.factory, publisher, logger, routing.MonitorConfig{
		ProbeTimeout:    cfg.ProbeTimeout,
		RefreshInterval: cfg.RefreshInterval,
		FailThreshold:   cfg.FailThreshold,
	})
	rt.router = routing.NewRouter(registry, rt.monitor, rt.factory, logger)

	rt.recipes = application.NewCachedRecipeRepository(
		rt.router,
		rt.cacheSvc,
		postgres.NewRecipeRepository(),
		publisher,
		logger,
		application.TTLConfig{Entry: cfg.EntryTTL, List: cfg.ListTTL},
	)

	opsHandler := httpadapter.NewHandler(cfg.ServiceID, registry, rt.router.Stats(), rt.cacheSvc.Stats())
	rt.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           httpadapter.NewRouter(opsHandler),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return rt, nil
}

// Recipes exposes the cache-fronted repository to embedding services.
func (r *Runtime) Recipes() *application.CachedRecipeRepository {
	return r.recipes
}

// Router exposes the query router for repositories beyond recipes.
func (r *Runtime) Router() ports.Router {
	return r.router
}

// Cache exposes the two-tier cache service.
func (r *Runtime) Cache() ports.CacheService {
	return r.cacheSvc
}

// Run serves the ops surface and the background health refresher until a
// termination signal or ctx cancellation.
func (r *Runtime) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	defer r.close()

	refresherCtx, cancelRefresher := context.WithCancel(ctx)
	defer cancelRefresher()
	go r.monitor.Run(refresherCtx, r.registry)

	errCh := make(chan error, 1)
	go func() {
		r.logger.Info("ops http server listening", "addr", r.httpServer.Addr)
		if err := r.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("ops http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown ops http server: %w", err)
	}
	r.logger.Info("dataplane stopped")
	return nil
}

func (r *Runtime) close() {
	for i := len(r.closeFns) - 1; i >= 0; i-- {
		r.closeFns[i]()
	}
	r.closeFns = nil
}

func buildPublisher(cfg Config, logger *slog.Logger) (ports.EventPublisher, func(), error) {
	if len(cfg.KafkaBrokers) == 0 {
		return eventadapter.NewLoggingPublisher(logger), nil, nil
	}
	kafkaPublisher, err := eventadapter.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("init kafka publisher: %w", err)
	}
	return kafkaPublisher, func() { _ = kafkaPublisher.Close() }, nil
}
