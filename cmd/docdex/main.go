package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/docdex/internal/catalog"
	"github.com/kailas-cloud/docdex/internal/config"
	"github.com/kailas-cloud/docdex/internal/db/driver"
	logpkg "github.com/kailas-cloud/docdex/internal/logger"
	"github.com/kailas-cloud/docdex/internal/metrics"
	docrepo "github.com/kailas-cloud/docdex/internal/repository/document"
	"github.com/kailas-cloud/docdex/internal/repository/sink"
	chiTransport "github.com/kailas-cloud/docdex/internal/transport/chi"
	collectionuc "github.com/kailas-cloud/docdex/internal/usecase/collection"
	documentuc "github.com/kailas-cloud/docdex/internal/usecase/document"
	healthuc "github.com/kailas-cloud/docdex/internal/usecase/health"
	indexuc "github.com/kailas-cloud/docdex/internal/usecase/index"
	"github.com/kailas-cloud/docdex/internal/version"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting docdex admin server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("persistence_driver", cfg.Persistence.Driver),
	)

	store, err := driver.New(cfg.Persistence)
	if err != nil {
		logger.Fatal("Failed to create page store", zap.Error(err))
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.WaitForReady(ctx, time.Duration(cfg.Persistence.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Page store not ready", zap.Error(err))
	}
	logger.Info("Connected to page store")

	compression, err := docrepo.ParseCompression(cfg.Persistence.Compression)
	if err != nil {
		logger.Fatal("Invalid page compression", zap.Error(err))
	}

	metrics.RegisterEngineMetrics()
	metrics.RegisterHTTPMetrics()

	db, err := catalog.Open(ctx, catalog.Options{
		PlanCacheSize: cfg.Engine.PlanCacheSize,
		BatchSize:     cfg.Engine.ScanBatchSize,
		Seed:          cfg.Engine.SampleSeed,
		Persistence: sink.New(store, sink.Options{
			Prefix:      cfg.Persistence.KeyPrefix,
			Compression: compression,
			Logger:      logger,
		}),
		Logger:   logger,
		Observer: metrics.CatalogObserver{},
	})
	if err != nil {
		logger.Fatal("Failed to load catalog", zap.Error(err))
	}
	logger.Info("Catalog loaded", zap.Strings("collections", db.ListCollections()))

	server := chiTransport.NewServer(
		collectionuc.New(db),
		indexuc.New(db),
		documentuc.New(db),
		healthuc.New(store, db),
		logger,
	)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      server.Handler(cfg.Auth.APIKeys),
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}
