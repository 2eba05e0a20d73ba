// Package main runs the ZKVanguard portfolio gateway: the HTTP boundary,
// agent orchestrator and market-data aggregator in one process.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	app "github.com/mrarejimmyz/zkvanguard/internal/app"
	"github.com/mrarejimmyz/zkvanguard/internal/app/httpapi"
	"github.com/mrarejimmyz/zkvanguard/internal/app/metrics"
	"github.com/mrarejimmyz/zkvanguard/internal/app/storage/memory"
	"github.com/mrarejimmyz/zkvanguard/internal/app/storage/postgres"
	"github.com/mrarejimmyz/zkvanguard/internal/app/storage/redisstore"
	"github.com/mrarejimmyz/zkvanguard/internal/config"
	"github.com/mrarejimmyz/zkvanguard/internal/middleware"
	"github.com/mrarejimmyz/zkvanguard/pkg/logger"
)

func main() {
	envFile := flag.String("env", "", "Optional .env file to load before reading the environment")
	flag.Parse()

	if *envFile != "" {
		if err := godotenv.Load(*envFile); err != nil {
			log.Fatalf("load env (%s): %v", *envFile, err)
		}
	} else {
		_ = godotenv.Load()
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	appLog := logger.New("gateway", level)

	stores, cleanup, err := buildStores(cfg, appLog)
	if err != nil {
		log.Fatalf("configure storage: %v", err)
	}
	defer cleanup()

	application, err := app.New(cfg, stores, appLog)
	if err != nil {
		log.Fatalf("build application: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := application.Start(ctx); err != nil {
		log.Fatalf("start application: %v", err)
	}

	handler := httpapi.NewHandler(application, appLog.WithField("component", "httpapi"))

	cors := middleware.NewCORSMiddleware(cfg.AllowedOrigins)
	limiter := middleware.NewRateLimiter(cfg.RateLimitPerSecond, cfg.RateLimitBurst, appLog.WithField("component", "ratelimit"))
	stop := make(chan struct{})
	limiter.StartCleanup(10*time.Minute, stop)
	defer close(stop)

	server := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      cors.Handler(limiter.Handler(metrics.InstrumentHandler(handler))),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		appLog.WithField("addr", cfg.HTTPAddr).Info("gateway listening")
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	appLog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		appLog.WithError(err).Warn("server shutdown error")
	}
	if err := application.Stop(shutdownCtx); err != nil {
		appLog.WithError(err).Warn("application stop error")
	}
}

// buildStores selects the storage tiers from configuration: Postgres when a
// DSN is set, fronted by Redis when an address is set, otherwise in-memory.
func buildStores(cfg config.Config, appLog *logger.Logger) (app.Stores, func(), error) {
	var stores app.Stores
	cleanup := func() {}

	if cfg.PostgresDSN != "" {
		db, err := postgres.Open(cfg.PostgresDSN)
		if err != nil {
			return stores, cleanup, err
		}
		store := postgres.New(db)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := store.EnsureSchema(ctx); err != nil {
			db.Close()
			return stores, cleanup, err
		}
		stores.Market = store
		cleanup = func() { db.Close() }
		appLog.Info("postgres market store enabled")
	}

	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		next := stores.Market
		if next == nil {
			next = memory.New()
		}
		stores.Market = redisstore.New(client, next, cfg.RedisTTL, appLog.WithField("component", "redisstore"))
		prev := cleanup
		cleanup = func() {
			_ = client.Close()
			prev()
		}
		appLog.Info("redis price tier enabled")
	}

	return stores, cleanup, nil
}
