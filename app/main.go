package main

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

	"github.com/lysyi3m/mention-comb/app/api"
	"github.com/lysyi3m/mention-comb/app/cache"
	"github.com/lysyi3m/mention-comb/app/cfg"
	"github.com/lysyi3m/mention-comb/app/database"
	"github.com/lysyi3m/mention-comb/app/discovery"
	"github.com/lysyi3m/mention-comb/app/feed"
	"github.com/lysyi3m/mention-comb/app/match"
	"github.com/lysyi3m/mention-comb/app/monitor"
	"github.com/lysyi3m/mention-comb/app/tasks"
)

func main() {
	appCfg, err := cfg.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	if appCfg == nil {
		return
	}

	level := slog.LevelInfo
	if appCfg.Debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})))

	if err := run(appCfg); err != nil {
		slog.Error("Mention Comb stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(appCfg *cfg.Cfg) error {
	slog.Info("Starting Mention Comb server", "version", appCfg.Version)

	db, err := database.NewConnection(appCfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	version, dirty, err := database.RunMigrations(db)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Info("Database ready", "path", appCfg.DBPath, "schema_version", version, "dirty", dirty)

	monitorRepo := database.NewMonitorRepository(db)
	resultRepo := database.NewResultRepository(db)
	seenRepo := database.NewSeenRepository(db)
	usageRepo := database.NewUsageRepository(db)

	ctx := context.Background()

	var redisCache *cache.Cache
	if appCfg.RedisAddr != "" {
		redisCache, err = cache.NewCache(ctx, appCfg.RedisAddr)
		if err != nil {
			slog.Warn("Redis unavailable, continuing without cache", "addr", appCfg.RedisAddr, "error", err)
			redisCache = nil
		} else {
			defer redisCache.Close()
			slog.Info("Connected to Redis", "addr", appCfg.RedisAddr)
		}
	}

	matcher := match.NewMatcher()

	deps := tasks.Deps{
		MonitorRepo:      monitorRepo,
		ResultRepo:       resultRepo,
		SeenRepo:         seenRepo,
		UsageRepo:        usageRepo,
		HTTPClient:       &http.Client{Timeout: 60 * time.Second},
		Parser:           feed.NewParser(),
		Filterer:         feed.NewFilterer(matcher),
		ContentExtractor: feed.NewContentExtractor(),
		UserAgent:        appCfg.UserAgent,
	}

	handlerDeps := api.HandlerDeps{
		MonitorRepo:  monitorRepo,
		ResultRepo:   resultRepo,
		UsageRepo:    usageRepo,
		Generator:    feed.NewGenerator(appCfg.BaseUrl, appCfg.Version),
		Matcher:      matcher,
		FeedCacheTTL: appCfg.CacheTTL,
		Version:      appCfg.Version,
	}

	if redisCache != nil {
		deps.FeedCache = redisCache
		handlerDeps.FeedCache = redisCache
	}

	discoveryMatcher, err := newDiscoveryMatcher(ctx, appCfg, redisCache)
	if err != nil {
		return err
	}
	if discoveryMatcher != nil {
		deps.Discovery = discoveryMatcher
		handlerDeps.Discovery = discoveryMatcher
	} else {
		slog.Info("Discovery matching disabled (GEMINI_API_KEY not set)")
	}

	configCache := monitor.NewConfigCache(appCfg.MonitorsDir)
	if err := configCache.Run(); err != nil {
		return fmt.Errorf("failed to load monitor configurations: %w", err)
	}
	slog.Info("Loaded monitor configurations", "count", configCache.GetConfigCount(), "dir", appCfg.MonitorsDir)

	scheduler := tasks.NewScheduler(configCache, deps, appCfg.SchedulerInterval, appCfg.WorkerCount)
	scheduler.Start()
	defer scheduler.Stop()
	slog.Info("Background scheduler started", "workers", appCfg.WorkerCount, "interval", appCfg.SchedulerInterval.String())

	handlerDeps.ConfigCache = configCache
	handlerDeps.Scheduler = scheduler

	server := api.NewServer(api.NewHandler(handlerDeps), appCfg.APIAccessKey)

	httpServer := &http.Server{
		Addr:         ":" + appCfg.Port,
		Handler:      server,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		slog.Info("Starting HTTP server", "port", appCfg.Port, "base_url", appCfg.BaseUrl)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-sigChan:
		slog.Info("Received signal", "signal", sig.String())
	case runErr = <-serverErrChan:
	}

	slog.Info("Shutting down server gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	return runErr
}

// newDiscoveryMatcher returns nil when no LLM provider key is configured.
func newDiscoveryMatcher(ctx context.Context, appCfg *cfg.Cfg, redisCache *cache.Cache) (*discovery.Matcher, error) {
	if !appCfg.DiscoveryEnabled() {
		return nil, nil
	}

	dcfg := discovery.DefaultConfig()
	dcfg.FullModel = appCfg.FullModel
	dcfg.QuickModel = appCfg.QuickModel
	dcfg.BatchSize = appCfg.BatchSize
	dcfg.CacheTTL = appCfg.CacheTTL

	if appCfg.PromptsFile != "" {
		if err := discovery.LoadOverrides(appCfg.PromptsFile, &dcfg); err != nil {
			return nil, fmt.Errorf("failed to load prompt overrides: %w", err)
		}
	}

	if redisCache != nil {
		dcfg.Cache = redisCache
	}

	completer, err := discovery.NewGeminiCompleter(ctx, appCfg.GeminiAPIKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	matcher, err := discovery.NewMatcher(completer, dcfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create discovery matcher: %w", err)
	}

	slog.Info("Discovery matching enabled", "full_model", dcfg.FullModel, "quick_model", dcfg.QuickModel, "batch_size", dcfg.BatchSize)
	return matcher, nil
}
