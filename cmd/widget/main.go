// Tree checkout widget API - cart sync and step sequencing for the
// Christmas tree storefront. Designed for Cloud Run deployment.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tree-checkout/internal/cartsync"
	"tree-checkout/internal/checkout"
	"tree-checkout/internal/clientcompat"
	"tree-checkout/internal/config"
	"tree-checkout/internal/gateway"
	"tree-checkout/internal/handler"
	"tree-checkout/internal/middleware"
	"tree-checkout/internal/shopify"
	"tree-checkout/internal/steps"
	"tree-checkout/internal/store"
)

// Sessions idle this long leave memory; persisted carts can be restored.
const sessionIdle = time.Hour

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load configuration
	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Initialize structured logger
	logger := initLogger(cfg)

	logger.Info("configuration loaded",
		slog.String("environment", cfg.Environment),
		slog.String("store_domain", cfg.Store.StoreDomain),
		slog.Bool("fake_store", cfg.UseFakeStore()),
		slog.Bool("redis", cfg.Redis.Addr != ""),
		slog.String("min_client_version", cfg.MinClientVersion),
	)

	stepOpts := checkout.StepOptions{
		InsuranceProductIDs:   cfg.Checkout.InsuranceProductIDs,
		AccessoriesCollection: cfg.Checkout.AccessoriesCollection,
	}
	gw, err := createGateway(cfg, &stepOpts, logger)
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}

	var kv store.KV = store.NewMemory()
	var ready func(context.Context) error
	if cfg.Redis.Addr != "" {
		rdb, err := store.NewRedis(ctx, store.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			TTL:      cfg.Redis.TTL.Std(),
		})
		if err != nil {
			return fmt.Errorf("creating session store: %w", err)
		}
		defer rdb.Close()
		kv, ready = rdb, rdb.Ping
	}

	sessions := handler.NewSessions(newBuilder(cfg, stepOpts, gw, kv, logger), kv, logger)
	h := handler.New(sessions, logger).WithReadiness(ready)

	// Setup routes
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	// Apply middleware chain: recovery → request id → logging → client gate → handler
	// Recovery must be outermost to catch panics from logging middleware
	httpHandler := middleware.Chain(
		middleware.Recovery(logger),
		middleware.RequestID(),
		middleware.Logging(logger),
		clientcompat.Middleware(cfg.MinClientVersion, logger),
	)(mux)

	// Create HTTP server with timeouts
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      httpHandler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go evictIdle(ctx, sessions, logger)

	// Channel for server errors
	serverErr := make(chan error, 1)

	// Start server in goroutine
	go func() {
		logger.Info("server starting",
			slog.String("port", cfg.Port),
			slog.String("addr", server.Addr),
		)
		serverErr <- server.ListenAndServe()
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-serverErr:
		if err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}

	case <-ctx.Done():
		logger.Info("shutdown signal received")

		// Give outstanding requests time to complete
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			// Force close if graceful shutdown fails
			server.Close()
			return fmt.Errorf("shutdown error: %w", err)
		}
	}

	logger.Info("server stopped")
	return nil
}

// createGateway returns the Storefront client, or the seeded in-memory
// store when no token is configured outside production.
func createGateway(cfg *config.Config, stepOpts *checkout.StepOptions, logger *slog.Logger) (gateway.Gateway, error) {
	if cfg.UseFakeStore() {
		logger.Warn("no storefront token configured, using in-memory store")
		fake := gateway.NewFake()
		seedDemo(fake, stepOpts)
		return fake, nil
	}

	client, err := shopify.NewClient(shopify.Config{
		StoreDomain:       cfg.Store.StoreDomain,
		AccessToken:       cfg.Store.StorefrontToken,
		APIVersion:        cfg.Store.APIVersion,
		Timeout:           cfg.Store.Timeout.Std(),
		RequestsPerSecond: cfg.Store.RequestsPerSecond,
		Burst:             cfg.Store.Burst,
		ChromeTLS:         cfg.Store.ChromeTLS,
		Logger:            logger.With("component", "shopify"),
	})
	if err != nil {
		return nil, err
	}
	return gateway.WithTimeout(client, cfg.Store.Timeout.Std()), nil
}

// newBuilder returns the per-session constructor: one sync engine persisted
// under the session's namespace, one orchestrator over it.
func newBuilder(cfg *config.Config, stepOpts checkout.StepOptions, gw gateway.Gateway, kv store.KV, logger *slog.Logger) handler.Builder {
	syncCfg := cartsync.DefaultConfig()
	if d := cfg.Sync.SettleDelay.Std(); d > 0 {
		syncCfg.SettleDelay = d
	}
	if cfg.Sync.MaxAttempts > 0 {
		syncCfg.MaxAttempts = cfg.Sync.MaxAttempts
	}
	if d := cfg.Sync.BaseBackoff.Std(); d > 0 {
		syncCfg.BaseBackoff = d
	}
	if d := cfg.Sync.MaxBackoff.Std(); d > 0 {
		syncCfg.MaxBackoff = d
	}

	seqCfg := steps.DefaultConfig()
	seqCfg.MinDeliveryDate = cfg.MinDeliveryDate()
	if cfg.Sync.SelectionRefreshes > 0 {
		seqCfg.SelectionRefreshes = cfg.Sync.SelectionRefreshes
	}
	if cfg.Sync.ProductFetchAttempts > 0 {
		seqCfg.ProductFetchAttempts = cfg.Sync.ProductFetchAttempts
	}

	stepList := checkout.DefaultSteps(stepOpts)

	return func(id string) (*checkout.Orchestrator, error) {
		log := logger.With("session_id", id)
		engine := cartsync.New(gw, cartsync.Options{
			Config: syncCfg,
			Store:  store.NewCartStore(kv, handler.Namespace(id)),
			Logger: log,
		})
		return checkout.New(engine, gw, checkout.Options{
			BaseProductIDs: cfg.Checkout.BaseProductIDs,
			Steps:          stepList,
			Sequencer:      seqCfg,
			Logger:         log,
		})
	}
}

// evictIdle periodically drops idle sessions until ctx ends.
func evictIdle(ctx context.Context, sessions *handler.Sessions, logger *slog.Logger) {
	ticker := time.NewTicker(sessionIdle / 4)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := sessions.Evict(sessionIdle); n > 0 {
				logger.Info("evicted idle sessions", slog.Int("count", n), slog.Int("live", sessions.Len()))
			}
		}
	}
}

// initLogger creates a structured logger configured for the environment.
// Production uses JSON format for GCP Cloud Logging compatibility.
// Development uses text format for readability.
func initLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
		// Add source location in debug mode
		AddSource: level == slog.LevelDebug,
	}

	// JSON for production (Cloud Logging compatible), text for development
	var logger *slog.Logger
	if cfg.Environment == "production" {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, opts))
	} else {
		logger = slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	slog.SetDefault(logger)
	return logger
}
