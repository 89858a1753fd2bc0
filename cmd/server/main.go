package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/cms-article-engine/internal/api"
	"github.com/cms-article-engine/internal/cache"
	"github.com/cms-article-engine/internal/cdn"
	"github.com/cms-article-engine/internal/clock"
	"github.com/cms-article-engine/internal/config"
	"github.com/cms-article-engine/internal/metrics"
	"github.com/cms-article-engine/internal/scheduler"
	"github.com/cms-article-engine/internal/tenant"
	"github.com/cms-article-engine/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		// Logger settings come from the configuration
		bootLog := logger.New(config.LogConfig{})
		bootLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Initialize logger
	log := logger.New(cfg.Log)
	log.Info().Int("tenants", len(cfg.Tenants)).Msg("Starting CMS article engine...")

	// Metrics registry
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// CDN notifier shared by all tenants
	var notifier cdn.Notifier = cdn.NopNotifier{}
	if len(cfg.CDN.PurgeEndpoints) > 0 {
		endpoints, err := cdn.ParseEndpoints(cfg.CDN.PurgeEndpoints, cfg.CDN.Token)
		if err != nil {
			log.Fatal().Err(err).Msg("Invalid CDN configuration")
		}
		notifier = cdn.NewHTTPNotifier(endpoints, cfg.CDN.Timeout, log)
	}

	// Optional Redis page cache
	var redisClient *redis.Client
	if cfg.Cache.RedisAddr != "" {
		redisClient, err = cache.NewRedisClient(cfg.Cache.RedisAddr, cfg.Cache.RedisPassword, cfg.Cache.RedisDB)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		defer redisClient.Close()
	}

	// Open every tenant database and build its services
	registry := tenant.NewRegistry()
	shared := tenant.Shared{Redis: redisClient, Notifier: notifier, Metrics: m, Clock: clock.System{}}
	for _, tc := range cfg.Tenants {
		t, err := tenant.Open(cfg, tc, shared, log)
		if err != nil {
			registry.Close()
			log.Fatal().Err(err).Str("tenant", tc.Name).Msg("Failed to open tenant")
		}
		if err := registry.Register(t); err != nil {
			registry.Close()
			log.Fatal().Err(err).Msg("Failed to register tenant")
		}
	}
	defer registry.Close()

	// Start version scheduler
	var sched *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		sched, err = scheduler.New(registry.Targets(), cfg.Scheduler, clock.System{}, m, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create scheduler")
		}
		sched.Start()
		log.Info().Str("spec", cfg.Scheduler.Spec).Msg("Version scheduler started")
	}

	// Initialize router
	router := api.NewRouter(registry, cfg, reg, log)

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.ReadTimeout,
	}

	// Start server in goroutine
	go func() {
		log.Info().Str("port", cfg.Server.Port).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// Stop scheduler, waiting for a running sweep
	if sched != nil {
		sched.Stop(ctx)
	}

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited gracefully")
}
