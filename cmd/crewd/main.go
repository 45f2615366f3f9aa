package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	crewconfigadapter "github.com/familiarcat/openrouter-crew-platform-sub004/internal/adapter/crewconfig"
	crewhttp "github.com/familiarcat/openrouter-crew-platform-sub004/internal/adapter/http"
	crewmcp "github.com/familiarcat/openrouter-crew-platform-sub004/internal/adapter/mcp"
	crewnats "github.com/familiarcat/openrouter-crew-platform-sub004/internal/adapter/nats"
	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/adapter/natskv"
	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/adapter/openrouter"
	crewotel "github.com/familiarcat/openrouter-crew-platform-sub004/internal/adapter/otel"
	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/adapter/ristretto"
	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/adapter/tiered"
	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/adapter/ws"
	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/callpool"
	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/config"
	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/domain/crew"
	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/logger"
	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/middleware"
	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/port/cache"
	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/port/messagequeue"
	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/resilience"
	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/service"
)

var version = "dev"

func main() {
	var err error
	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		err = runMigrate(os.Args[2:])
	} else {
		err = run()
	}
	if err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, closeLog := logger.New(cfg.Logging)
	defer closeLog.Close()
	slog.SetDefault(log)

	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"storage", cfg.Storage.Driver,
		"log_level", cfg.Logging.Level,
		"nats", cfg.NATS.URL != "",
		"mcp", cfg.MCP.Enabled,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Observability ---

	shutdownOTEL, err := crewotel.Setup(ctx, cfg.OTEL)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTEL(sctx); err != nil {
			slog.Warn("otel shutdown", "error", err)
		}
	}()
	metrics, err := crewotel.NewMetrics()
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	// --- Infrastructure ---

	store := openStore(ctx, cfg)
	defer func() { _ = store.Close() }()

	var (
		queue    *crewnats.Queue
		mq       messagequeue.Queue
		idemKV   middleware.IdempotencyKV
		l2       cache.Cache
		natsDown = func(context.Context) error { return errors.New("disabled") }
	)
	if cfg.NATS.URL != "" {
		queue, err = crewnats.Connect(ctx, cfg.NATS.URL)
		if err != nil {
			return fmt.Errorf("nats: %w", err)
		}
		defer func() { _ = queue.Close() }()
		mq = queue
		natsDown = func(context.Context) error {
			if !queue.IsConnected() {
				return errors.New("disconnected")
			}
			return nil
		}

		if kv, err := queue.KeyValue(ctx, cfg.Cache.L2Bucket, cfg.Cache.L2TTL); err != nil {
			slog.Warn("crew config L2 cache disabled", "bucket", cfg.Cache.L2Bucket, "error", err)
		} else {
			l2 = natskv.New(kv)
		}
		if kv, err := queue.KeyValue(ctx, cfg.Idempotency.Bucket, cfg.Idempotency.TTL); err != nil {
			slog.Warn("idempotency replay disabled", "bucket", cfg.Idempotency.Bucket, "error", err)
		} else {
			idemKV = kv
		}
	}

	l1, err := ristretto.New(cfg.Cache.L1MaxSizeMB<<20, cfg.Cache.L1TTL)
	if err != nil {
		return fmt.Errorf("l1 cache: %w", err)
	}
	defer l1.Close()
	configCache := tiered.New(l1, l2, cfg.Cache.L1TTL)
	configs := crewconfigadapter.NewStore(cfg.Crew.ConfigDir, configCache, cfg.Cache.L2TTL)
	if err := configs.Watch(ctx); err != nil {
		slog.Warn("crew config edits need a restart", "dir", cfg.Crew.ConfigDir, "error", err)
	}

	// Falls back to the built-in table on error; already logged.
	costs, _ := crewconfigadapter.LoadCostDatabase(cfg.Crew.CostDatabasePath)

	provider := openrouter.NewClient(cfg.OpenRouter.URL, cfg.OpenRouter.APIKey, cfg.OpenRouter.Timeout,
		openrouter.WithAttribution(cfg.OpenRouter.Referer, cfg.OpenRouter.AppName),
	)
	provider.SetBreaker(resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout))

	// --- Services ---

	origins := allowedOrigins(cfg.Server.CORSOrigin)
	hub := ws.NewHub(origins...)
	defer hub.Close()

	registry := crew.DefaultRegistry()
	analyzer := service.NewAnalyzerService(registry)
	optimizer := service.NewOptimizerService(costs, registry.Rules())
	orchestrator := service.NewOrchestratorService(registry, analyzer, optimizer, metrics)
	coordinator := service.NewCoordinatorService(registry)
	usageSvc := service.NewUsageService(store, mq, hub)
	costSvc := service.NewCostService(store)

	budgets := service.NewBudgetService(store, mq, hub, cfg.Budget.WarningThreshold)
	if err := budgets.LoadBudgets(ctx); err != nil {
		slog.Warn("budgets not restored", "error", err)
	}
	cancelReset, err := budgets.StartResetSubscriber(ctx)
	if err != nil {
		return fmt.Errorf("budget reset subscriber: %w", err)
	}
	defer cancelReset()

	executor := service.NewExecutorService(provider, configs, costs, usageSvc,
		callpool.New(cfg.Executor.MaxConcurrentCalls), metrics,
		service.ExecutorConfig{
			MaxBatchSize:         cfg.Executor.MaxBatchSize,
			MaxParallel:          cfg.Executor.MaxParallel,
			FallbackToIndividual: cfg.Executor.FallbackToIndividual,
			CallTimeout:          cfg.Executor.CallTimeout,
			Retry: resilience.RetryPolicy{
				MaxRetries: cfg.Retry.MaxRetries,
				BaseDelay:  cfg.Retry.BaseDelay,
				Multiplier: cfg.Retry.Multiplier,
				MaxDelay:   cfg.Retry.MaxDelay,
			},
		},
	)
	runs := service.NewCrewRunService(orchestrator, budgets, coordinator, executor, usageSvc, metrics)

	// --- HTTP ---

	providerUp := func(ctx context.Context) error {
		_, err := provider.Health(ctx)
		return err
	}
	handlers := &crewhttp.Handlers{
		Registry:     registry,
		Analyzer:     analyzer,
		Optimizer:    optimizer,
		Orchestrator: orchestrator,
		Coordinator:  coordinator,
		Budgets:      budgets,
		Runs:         runs,
		Usage:        usageSvc,
		Cost:         costSvc,
		Checks: map[string]crewhttp.HealthCheck{
			"database":   store.Ping,
			"nats":       natsDown,
			"openrouter": providerUp,
		},
	}
	crewhttp.Version = version

	limiter := middleware.NewRateLimiter(cfg.Rate.RequestsPerSecond, cfg.Rate.Burst)
	stopLimiter := limiter.StartCleanup(cfg.Rate.CleanupInterval, cfg.Rate.MaxIdleTime)
	defer stopLimiter()
	runLimiter := middleware.NewKeyedRateLimiter(cfg.Rate.RequestsPerSecond, cfg.Rate.Burst, middleware.URLParam("id"))
	stopRunLimiter := runLimiter.StartCleanup(cfg.Rate.CleanupInterval, cfg.Rate.MaxIdleTime)
	defer stopRunLimiter()

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(crewhttp.Logger)
	r.Use(crewhttp.CORS(cfg.Server.CORSOrigin))
	r.Use(crewhttp.SecurityHeaders)
	r.Use(chimw.RealIP)
	r.Use(limiter.Handler)
	r.Use(crewotel.HTTPMiddleware(cfg.OTEL.ServiceName))
	r.Use(chimw.Recoverer)

	// The socket outlives any request timeout.
	r.Get("/ws", hub.HandleWS)

	r.Group(func(r chi.Router) {
		r.Use(chimw.Timeout(cfg.Server.RequestTimeout))
		if idemKV != nil {
			r.Use(middleware.Idempotency(idemKV))
		}
		crewhttp.MountRoutes(r, handlers, runLimiter.Handler)
	})

	// --- MCP ---

	if cfg.MCP.Enabled {
		mcpServer := crewmcp.NewServer(crewmcp.ServerConfig{
			Addr:    cfg.MCP.Addr,
			Name:    cfg.Logging.Service,
			Version: version,
			APIKey:  cfg.MCP.APIKey,
		}, crewmcp.ServerDeps{
			Analyzer:     analyzer,
			Orchestrator: orchestrator,
			Budgets:      budgets,
			Cost:         costSvc,
		})
		if err := mcpServer.Start(); err != nil {
			return fmt.Errorf("mcp: %w", err)
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = mcpServer.Stop(sctx)
		}()
	}

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.Server.RequestTimeout + 30*time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting server", "addr", addr, "version", version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}
	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// allowedOrigins turns the CORS setting into WebSocket origin patterns.
// "*" means any origin, expressed as no patterns.
func allowedOrigins(raw string) []string {
	var out []string
	for o := range strings.SplitSeq(raw, ",") {
		o = strings.TrimSpace(o)
		if o == "" || o == "*" {
			continue
		}
		// Origin patterns match host[:port] only.
		if _, host, ok := strings.Cut(o, "://"); ok {
			o = host
		}
		out = append(out, o)
	}
	return out
}
