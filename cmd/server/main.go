package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/convergence-games/allocator/internal/api/handlers"
	"github.com/convergence-games/allocator/internal/cache"
	"github.com/convergence-games/allocator/internal/ws"
	"github.com/convergence-games/allocator/pkg/config"
	"github.com/convergence-games/allocator/pkg/logger"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.Fatalf("failed to load config: %v", err)
	}

	structuredLogger := logger.InitLogger("info", cfg.IsDevelopment())
	logger.WithService("allocator").WithFields(logrus.Fields{
		"version":     "1.0.0",
		"environment": cfg.Env,
		"port":        cfg.Port,
	}).Info("starting allocator service")

	if cfg.IsDevelopment() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.WithService("allocator").Fatalf("failed to parse redis URL: %v", err)
	}
	redisClient := redis.NewClient(opt)
	ctx := context.Background()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.WithService("allocator").Fatalf("failed to connect to redis: %v", err)
	}
	defer redisClient.Close()

	cacheService := cache.NewRunCacheService(redisClient, structuredLogger)

	wsHub := ws.NewHub(structuredLogger)
	go wsHub.Run()

	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	allocationHandler := handlers.NewAllocationHandler(cacheService, wsHub, cfg, structuredLogger)
	healthHandler := handlers.NewHealthHandler(redisClient, structuredLogger)

	apiV1 := router.Group("/api/v1")
	{
		apiV1.POST("/time-slots/:time_slot_id/allocate", allocationHandler.Allocate)
	}

	router.GET("/ws/time-slots/:time_slot_id/progress", wsHub.HandleWebSocket)

	router.GET("/healthz", healthHandler.GetHealth)
	router.GET("/readyz", healthHandler.GetReady)
	router.GET("/metrics", healthHandler.GetMetrics)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Port),
		Handler: router,
	}

	go func() {
		logger.WithService("allocator").WithField("port", cfg.Port).Info("allocator service started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithService("allocator").Fatalf("failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.WithService("allocator").Info("shutting down allocator service...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithService("allocator").Fatalf("allocator service forced to shutdown: %v", err)
	}

	logger.WithService("allocator").Info("allocator service exited")
}
