package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/andresuchdata/autopo-servicelevel/internal/api"
	"github.com/andresuchdata/autopo-servicelevel/internal/cache"
	"github.com/andresuchdata/autopo-servicelevel/internal/config"
	"github.com/andresuchdata/autopo-servicelevel/internal/repository/postgres"
	"github.com/andresuchdata/autopo-servicelevel/internal/service"
	"github.com/andresuchdata/autopo-servicelevel/internal/storage"
	"github.com/andresuchdata/autopo-servicelevel/pkg/logger"
	"github.com/gin-gonic/gin"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	if cfg.Server.Mode == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	// Initialize database
	db, err := postgres.NewDB(&cfg.Database)
	if err != nil {
		logger.Log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	if err := postgres.Migrate(context.Background(), db); err != nil {
		logger.Log.Fatal().Err(err).Msg("Failed to apply schema")
	}

	reportCache, err := cache.NewReportCache(cfg.Cache)
	if err != nil {
		logger.Log.Warn().Err(err).Msg("Report cache unavailable, continuing without it")
		reportCache = cache.NewNoopReportCache()
	}

	opts := service.Options{
		Cache:       reportCache,
		Classifier:  service.ClassifierParams(cfg.Tuner),
		Concurrency: cfg.Tuner.Concurrency,
		AuditUser:   cfg.Tuner.AuditUser,
	}
	if cfg.Storage.Enabled {
		archive, err := storage.NewMinioClient(storage.MinioConfigFrom(cfg.Storage))
		if err != nil {
			logger.Log.Fatal().Err(err).Msg("Failed to initialize report archive")
		}
		opts.Archive = archive
		opts.ArchivePrefix = cfg.Storage.Prefix
	}

	// Initialize services
	serviceLevelService := service.NewServiceLevelService(postgres.NewStore(db), opts)

	// Initialize HTTP server
	router := api.NewRouter(&api.Services{ServiceLevelService: serviceLevelService}, cfg.Server.AllowedOrigins)
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Log.Info().Str("port", cfg.Server.Port).Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Log.Info().Msg("Shutting down server...")

	// In-flight closed-loop runs get 30 seconds to finish
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	logger.Log.Info().Msg("Server exiting")
}
