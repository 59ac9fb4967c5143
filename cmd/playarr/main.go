package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/Drew-Chase/playarr/internal/v1/auth"
	"github.com/Drew-Chase/playarr/internal/v1/bus"
	"github.com/Drew-Chase/playarr/internal/v1/config"
	"github.com/Drew-Chase/playarr/internal/v1/health"
	"github.com/Drew-Chase/playarr/internal/v1/httpapi"
	"github.com/Drew-Chase/playarr/internal/v1/logging"
	"github.com/Drew-Chase/playarr/internal/v1/middleware"
	"github.com/Drew-Chase/playarr/internal/v1/party"
	"github.com/Drew-Chase/playarr/internal/v1/ratelimit"
	"github.com/Drew-Chase/playarr/internal/v1/tracing"
	"github.com/Drew-Chase/playarr/internal/v1/upstream"
)

const serviceName = "playarr-watch-party"

func main() {
	cfg, err := config.Load(os.Getenv("PLAYARR_CONFIG"))
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	if err := logging.Initialize(cfg.Environment != "production"); err != nil {
		slog.Error("failed to initialize logger", "error", err)
		os.Exit(1)
	}
	logger := logging.GetLogger()
	defer logger.Sync()

	if collectorAddr := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); collectorAddr != "" {
		tp, err := tracing.InitTracer(context.Background(), serviceName, collectorAddr)
		if err != nil {
			logging.Warn(context.Background(), "tracing disabled: failed to initialize exporter", zap.Error(err))
		} else {
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = tp.Shutdown(shutdownCtx)
			}()
		}
	}

	var redisService *bus.Service
	if cfg.Redis.Enabled {
		redisService, err = bus.NewService(cfg.Redis.Addr, cfg.Redis.Password)
		if err != nil {
			logging.Fatal(context.Background(), "failed to connect to redis", zap.Error(err))
		}
		defer redisService.Close()
	}

	rateLimiter, err := ratelimit.NewRateLimiter(&cfg.RateLimit, redisService.Client())
	if err != nil {
		logging.Fatal(context.Background(), "failed to build rate limiter", zap.Error(err))
	}

	upstreamClient := upstream.NewClient(upstream.Config{
		MediaServerURL:     cfg.Upstream.MediaServerURL,
		IdentityServiceURL: cfg.Upstream.IdentityServiceURL,
		AdminToken:         cfg.Upstream.AdminToken,
		ClientIdentifier:   cfg.Upstream.ClientIdentifier,
		Timeout:            cfg.Upstream.Timeout,
	}, "upstream")

	resolver := upstream.NewResolver(upstreamClient)
	orchestrator := upstream.NewOrchestrator(upstreamClient)

	hub := party.NewHub(party.SystemClock)

	heartbeatCtx, stopHeartbeat := context.WithCancel(context.Background())
	defer stopHeartbeat()
	go hub.RunHeartbeat(heartbeatCtx)

	router := gin.New()
	router.Use(otelgin.Middleware(serviceName))
	router.Use(middleware.CorrelationID())
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	allowedOrigins := cfg.CORS.AllowedOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = auth.GetAllowedOriginsFromEnv("ALLOWED_ORIGINS", []string{"http://localhost:3000"})
	}
	corsConfig.AllowOrigins = allowedOrigins
	corsConfig.AllowCredentials = true
	router.Use(cors.New(corsConfig))

	router.Use(httpapi.ErrorMiddleware())

	httpapi.RegisterRoutes(router, httpapi.Deps{
		Hub:        hub,
		Resolver:   resolver,
		Transcoder: orchestrator,
		RateLimit:  rateLimiter,
	})

	healthHandler := health.NewHandler(redisService, cfg.Upstream.MediaServerURL)
	router.GET("/health/live", healthHandler.Liveness)
	router.GET("/health/ready", healthHandler.Readiness)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: router,
	}

	go func() {
		logging.Info(context.Background(), "watch-party coordinator starting", zap.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Fatal(context.Background(), "server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logging.Info(context.Background(), "shutting down server")
	stopHeartbeat()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logging.Error(context.Background(), "server forced to shutdown", zap.Error(err))
	}

	logging.Info(context.Background(), "server exiting")
}
