package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"transit-aggregator/internal/alerts"
	"transit-aggregator/internal/cache"
	"transit-aggregator/internal/config"
	"transit-aggregator/internal/handlers"
	"transit-aggregator/internal/middleware"
	"transit-aggregator/internal/proximity"
	"transit-aggregator/internal/style"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Configure logger
	logger, err := setupLogger(&cfg.Logger)
	if err != nil {
		fmt.Printf("Failed to setup logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting Transit Aggregator",
		zap.String("version", "1.0.0"),
		zap.String("address", cfg.Server.GetAddress()),
		zap.String("cache_backend", cfg.Cache.Backend),
	)

	// Initialize cache
	store, err := cache.NewStore(&cfg.Cache, logger)
	if err != nil {
		logger.Fatal("Failed to initialize cache", zap.Error(err))
	}
	defer store.Close()

	// Check cache connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := store.Ping(ctx); err != nil {
		logger.Fatal("Failed to connect to cache", zap.Error(err))
	}
	logger.Info("Cache connection established successfully")

	co := cache.NewCoordinator(store, logger)

	// Background alert registry
	appCtx, stop := context.WithCancel(context.Background())
	defer stop()

	registry := alerts.NewRegistry(clock.New(), logger)
	go registry.Run(appCtx, cfg.Alerts.PurgeInterval)

	// Aggregators, one per enabled mode
	services := buildServices(cfg, co, registry, logger)
	if len(services) == 0 {
		logger.Fatal("No transport mode enabled")
	}

	sources := make([]proximity.StationSource, 0, len(services))
	modeServices := make([]handlers.ModeService, 0, len(services))
	for _, svc := range services {
		sources = append(sources, svc)
		modeServices = append(modeServices, svc)
	}

	if cfg.Warmup.Enabled {
		go warmup(appCtx, services, cfg.Warmup.Timeout, logger)
	}

	// Configure Gin
	if cfg.Logger.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	// Create router
	router := gin.New()

	// Middlewares
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(logger))
	router.Use(middleware.CORS())
	router.Use(middleware.RateLimiter(cfg.Server.RateLimit, cfg.Server.RateBurst))

	// Initialize handlers
	transitHandler := handlers.NewTransitHandler(
		modeServices,
		proximity.NewComposer(sources...),
		registry,
		style.DefaultPolicy(),
		handlers.NearbyLimits{
			DefaultRadius: cfg.Proximity.DefaultRadius,
			DefaultLimit:  cfg.Proximity.DefaultLimit,
			MaxLimit:      cfg.Proximity.MaxLimit,
		},
		clock.New(),
		logger,
	)
	cacheHandler := handlers.NewCacheHandler(co, logger)

	handlers.RegisterRoutes(router, transitHandler, cacheHandler)

	// Configure HTTP server
	server := &http.Server{
		Addr:         cfg.Server.GetAddress(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		logger.Info("Server starting", zap.String("address", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")
	stop()

	// Graceful shutdown
	ctx, cancel = context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}

// setupLogger configures the logger according to the configuration
func setupLogger(cfg *config.LoggerConfig) (*zap.Logger, error) {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "info":
		level = zapcore.InfoLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	config := zap.Config{
		Level:       zap.NewAtomicLevelAt(level),
		Development: false,
		Sampling: &zap.SamplingConfig{
			Initial:    100,
			Thereafter: 100,
		},
		Encoding: cfg.Format,
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "timestamp",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			FunctionKey:    zapcore.OmitKey,
			MessageKey:     "message",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.LowercaseLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.SecondsDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		OutputPaths:      []string{cfg.OutputPath},
		ErrorOutputPaths: []string{cfg.OutputPath},
	}

	return config.Build()
}
