package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/drawgate/api/internal/config"
	"github.com/drawgate/api/internal/database"
	"github.com/drawgate/api/internal/dispatch"
	"github.com/drawgate/api/internal/expander"
	"github.com/drawgate/api/internal/handlers"
	"github.com/drawgate/api/internal/keypool"
	"github.com/drawgate/api/internal/middleware"
	"github.com/drawgate/api/internal/moderation"
	"github.com/drawgate/api/internal/rehost"
	"github.com/drawgate/api/internal/telemetry"
	"github.com/drawgate/api/internal/upstream"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

func main() {
	ctx := context.Background()

	zapConfig := zap.NewProductionConfig()
	zapConfig.OutputPaths = []string{"stdout"}
	zapConfig.ErrorOutputPaths = []string{"stderr"}
	logger, err := zapConfig.Build()
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("drawgate API starting...",
		zap.String("version", "0.1.0"),
		zap.String("environment", os.Getenv("GO_ENV")),
	)

	shutdownTelemetry, err := telemetry.InitTracer(ctx, "drawgate-api")
	if err != nil {
		// Non-fatal: the collector may simply be down.
		logger.Error("failed to initialize telemetry", zap.Error(err))
	} else {
		defer func() {
			if err := shutdownTelemetry(ctx); err != nil {
				logger.Error("failed to shutdown telemetry", zap.Error(err))
			}
		}()
	}

	cfg := config.Load()

	if cfg.ServiceAPIKey == "" {
		logger.Warn("service API key auth is disabled; the gateway is open to anyone")
	}

	pool, err := keypool.New(cfg.UpstreamAPIKeys)
	if err != nil {
		logger.Fatal("failed to build upstream key pool; set API_KEYS", zap.Error(err))
	}
	logger.Info("upstream key pool loaded", zap.Int("keys", pool.Size()))

	// The rehost cache is optional; the gateway degrades to uncached
	// rehosting when redis is absent.
	var rdb *database.Redis
	if cfg.RedisURL != "" {
		rdb, err = database.NewRedis(cfg.RedisURL)
		if err != nil {
			logger.Error("failed to connect to redis, rehost cache disabled", zap.Error(err))
			rdb = nil
		} else {
			defer rdb.Close()
			logger.Info("connected to redis")
		}
	}

	var cache rehost.Cache
	if rdb != nil {
		cache = rdb
	}
	rehoster := rehost.New(rehost.Options{
		UseImageHost:     cfg.UseImageHost,
		ImageHostURL:     cfg.ImageHostURL,
		ImageHostToken:   cfg.ImageHostToken,
		UseShortlink:     cfg.UseShortlink,
		ShortlinkBaseURL: cfg.ShortlinkBaseURL,
		ShortlinkAPIKey:  cfg.ShortlinkAPIKey,
	}, cache, logger)

	upstreamClient := upstream.NewClient(cfg.UpstreamBaseURL, logger)

	// Burst 2 lets a fan-out start two calls immediately, the rest pace out.
	limiter := rate.NewLimiter(rate.Every(500*time.Millisecond), 2)
	dispatcher := dispatch.New(upstreamClient, pool, limiter, cfg.JobTimeout, logger)

	promptExpander := expander.New(cfg.LLMAPIURL, cfg.PromptModel, logger)
	filter := moderation.NewFilter(cfg.BannedKeywords)

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(logger))
	router.Use(middleware.CORS())
	router.Use(middleware.RequestID())

	healthHandler := handlers.NewHealthHandler(rdb, cfg.UpstreamBaseURL)
	router.GET("/health", healthHandler.Health)
	router.GET("/health/deep", healthHandler.DeepHealth)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	chatHandler := handlers.NewChatHandler(cfg, filter, pool, promptExpander, dispatcher, rehoster, middleware.UpstreamCircuitBreaker, logger)
	imagesHandler := handlers.NewImagesHandler(cfg, dispatcher, rehoster, logger)
	modelsHandler := handlers.NewModelsHandler()

	v1 := router.Group("/v1")
	v1.Use(middleware.Auth(cfg.ServiceAPIKey))
	v1.Use(middleware.RateLimitMiddleware(middleware.DefaultRateLimiter))
	{
		v1.GET("/models", modelsHandler.ListModels)

		// Generation routes: stricter rate limit + circuit breaker.
		generation := v1.Group("")
		generation.Use(middleware.RateLimitMiddleware(middleware.StrictRateLimiter))
		generation.Use(middleware.CircuitBreakerMiddleware(middleware.UpstreamCircuitBreaker))
		{
			generation.POST("/chat/completions", chatHandler.ChatCompletions)
			generation.POST("/images/generations", imagesHandler.GenerateImages)
		}
	}

	srv := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		// No write timeout: completions streams stay open for the whole
		// generation fan-out.
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		logger.Info("starting server", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server exited gracefully")
}
