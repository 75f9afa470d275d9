package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	authService "outpost/internal/auth/service"
	tokenStore "outpost/internal/auth/store/token"
	"outpost/internal/cache"
	memoryCache "outpost/internal/cache/memory"
	redisCache "outpost/internal/cache/redis"
	gatewayService "outpost/internal/gateway/service"
	"outpost/internal/platform/config"
	"outpost/internal/platform/logger"
	"outpost/internal/platform/metrics"
	"outpost/internal/platform/tracer"
	rlConfig "outpost/internal/ratelimit/config"
	rlService "outpost/internal/ratelimit/service"
	failureStore "outpost/internal/ratelimit/store/failures"
	quotaStore "outpost/internal/ratelimit/store/quota"
	windowStore "outpost/internal/ratelimit/store/window"
	httptransport "outpost/internal/transport/http"
	"outpost/internal/upstream"
)

// main wires high-level dependencies and keeps the server lifecycle small.
// Business logic lives in the internal services packages.
func main() {
	// Missing .env is fine; the environment may be set by the runtime.
	_ = godotenv.Load()

	cfg := config.FromEnv()
	rlCfg := rlConfig.FromEnv()
	log := logger.New()
	m := metrics.New()

	log.Info("initializing outpost gateway",
		"addr", cfg.Addr,
		"upstream", cfg.Upstream.BaseURL,
	)

	upstreamClient, err := upstream.New(cfg.Upstream,
		upstream.WithLogger(log),
		upstream.WithMetrics(m),
	)
	if err != nil {
		log.Error("upstream client init failed", "error", err)
		os.Exit(1)
	}

	limiter, err := rlService.New(
		windowStore.New(
			windowStore.WithLimit(rlCfg.Global.LimitPerWindow),
			windowStore.WithWindow(rlCfg.Global.Window),
		),
		quotaStore.New(rlCfg),
		failureStore.New(failureStore.WithRetention(rlCfg.Failure.Retention)),
		rlService.WithLogger(log),
		rlService.WithConfig(rlCfg),
	)
	if err != nil {
		log.Error("rate limit engine init failed", "error", err)
		os.Exit(1)
	}

	auth, err := authService.New(tokenStore.New(), upstreamClient,
		authService.WithLogger(log),
		authService.WithMetrics(m),
	)
	if err != nil {
		log.Error("auth service init failed", "error", err)
		os.Exit(1)
	}

	responseCache, sweep := newCache(cfg, log)

	gatewayOpts := []gatewayService.Option{
		gatewayService.WithCache(responseCache, cfg.Cache.TTL),
		gatewayService.WithMaxBodyBytes(cfg.MaxBodyBytes),
		gatewayService.WithLogger(log),
		gatewayService.WithMetrics(m),
	}
	if os.Getenv("OUTPOST_TRACING_ENABLED") == "true" {
		gatewayOpts = append(gatewayOpts, gatewayService.WithTracer(tracer.NewOTel()))
	}

	gateway, err := gatewayService.New(limiter, auth, upstreamClient, gatewayOpts...)
	if err != nil {
		log.Error("gateway init failed", "error", err)
		os.Exit(1)
	}

	handler := httptransport.NewHandler(gateway, auth, log)
	router := httptransport.NewRouter(handler, log, cfg.MaxBodyBytes)

	apiServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           metricsMux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("starting http server", "addr", cfg.Addr)
		if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		log.Info("starting metrics server", "addr", cfg.MetricsAddr)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if sweep != nil {
		g.Go(func() error {
			ticker := time.NewTicker(cfg.Cache.TTL)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					if removed := sweep(ctx); removed > 0 {
						log.Debug("cache sweep", "removed", removed)
					}
				}
			}
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down gracefully")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			log.Error("api shutdown failed", "error", err)
		}
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			log.Error("metrics shutdown failed", "error", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error("server error", "error", err)
		os.Exit(1)
	}

	log.Info("server stopped")
}

// newCache selects the response-cache backend. The in-memory store needs a
// periodic sweep for expired entries; redis expires keys itself.
func newCache(cfg config.Server, log *slog.Logger) (cache.Cache, func(context.Context) int) {
	if cfg.Cache.RedisURL != "" {
		store, err := redisCache.New(cfg.Cache.RedisURL)
		if err == nil {
			return store, nil
		}
		log.Warn("redis cache unavailable, falling back to in-memory", "error", err)
	}
	store := memoryCache.New()
	return store, store.Sweep
}
