package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/sykell/product-scraper/internal/api"
	"github.com/sykell/product-scraper/internal/db"
	"github.com/sykell/product-scraper/internal/enrich"
	"github.com/sykell/product-scraper/internal/extractor"
	"github.com/sykell/product-scraper/internal/logging"
	"github.com/sykell/product-scraper/internal/scraper"
	"github.com/sykell/product-scraper/internal/service"
	"github.com/sykell/product-scraper/internal/siteconfig"
	"github.com/sykell/product-scraper/internal/staging"
)

// Config holds application configuration
type Config struct {
	Port            string
	ConfigDir       string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// NewConfig creates a new configuration from environment variables
func NewConfig() *Config {
	return &Config{
		Port:            getEnvOrDefault("PORT", "8080"),
		ConfigDir:       getEnvOrDefault("SCRAPER_CONFIG_DIR", "configs/sites"),
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: 30 * time.Second,
	}
}

func main() {
	// Initialize configuration
	config := NewConfig()
	logger := logging.New(logging.NewConfig())
	defer func() { _ = logger.Sync() }()

	// Initialize database
	logger.Info("initializing database")
	dbConn, err := db.InitDB()
	if err != nil {
		logger.Fatal("failed to initialize database", zap.Error(err))
	}
	logger.Info("database initialized")

	// Load site configurations and keep scrape sources in sync with them
	registry := siteconfig.NewRegistry(config.ConfigDir, logger)
	registry.OnLoad(func(cfgs []*siteconfig.SiteConfig) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := service.SyncSources(ctx, dbConn, cfgs); err != nil {
			logger.Error("failed to sync scrape sources", zap.Error(err))
		}
	})
	count, err := registry.Load()
	if err != nil {
		logger.Fatal("failed to load scraper configurations", zap.String("dir", config.ConfigDir), zap.Error(err))
	}
	logger.Info("scraper configurations loaded", zap.Int("count", count))

	// Fail jobs left RUNNING by a previous process that no worker can still own
	scraperConfig := scraper.NewConfig()
	now := time.Now().UTC()
	stale, err := service.FailStaleScrapeLogs(context.Background(), dbConn, now.Add(-scraperConfig.JobTimeout), now)
	if err != nil {
		logger.Error("failed to close interrupted scrape jobs", zap.Error(err))
	} else if stale > 0 {
		logger.Warn("marked interrupted scrape jobs as failed", zap.Int64("count", stale))
	}

	// Initialize scraper service
	engine := extractor.NewEngine(logger)
	enricher := enrich.New(enrich.NewHTTPClient(enrich.NewConfig(), logger), logger)
	scraperService := scraper.NewService(dbConn, registry, engine, enricher, logger, scraperConfig)
	if err := scraperService.Start(); err != nil {
		logger.Fatal("failed to start scraper service", zap.Error(err))
	}

	// Initialize Gin router
	gin.SetMode(gin.ReleaseMode)
	r := api.NewRouter(api.Deps{
		DB:      dbConn,
		Scraper: scraperService,
		Configs: registry,
		Staging: staging.NewWorkflow(dbConn, logger),
		Auth:    api.NewAuthConfig(logger),
		Logger:  logger,
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + config.Port,
		Handler:      r,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("starting server", zap.String("port", config.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	// Create shutdown context
	ctx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer cancel()

	// Shutdown server gracefully
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}

	// Stop scraper service gracefully
	if err := scraperService.Stop(); err != nil {
		logger.Error("failed to stop scraper service", zap.Error(err))
	}

	logger.Info("server exited")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
