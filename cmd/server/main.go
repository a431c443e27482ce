package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/kizs/smalltv-cameras/internal/config"
	"github.com/kizs/smalltv-cameras/internal/coordinator"
	"github.com/kizs/smalltv-cameras/internal/handlers"
	"github.com/kizs/smalltv-cameras/internal/redis"
	"github.com/kizs/smalltv-cameras/pkg/models"
)

func main() {
	// Initialize logger
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	manager := coordinator.NewManager(cfg, logger)

	// The Redis control bus is optional; without an address the HTTP API is
	// the only control surface.
	var redisClient *redis.Client
	var consumer *redis.Consumer
	if cfg.Redis.Addr != "" {
		redisClient, err = redis.NewClient(cfg.Redis, logger)
		if err != nil {
			logger.Fatal("Failed to connect to Redis", zap.Error(err))
		}

		manager.SetResultSink(func(result *models.CycleResult) {
			if err := redisClient.PublishCycleResult(result); err != nil {
				logger.Error("Failed to publish cycle result", zap.Error(err))
			}
		})

		consumer = redis.NewConsumer(redisClient, manager, logger)
		go func() {
			if err := consumer.Start(); err != nil {
				logger.Error("Redis consumer failed", zap.Error(err))
			}
		}()
	}

	// Start the per-device coordinators
	if err := manager.Start(ctx); err != nil {
		logger.Fatal("Failed to start device manager", zap.Error(err))
	}

	// Create HTTP server for the control API
	mux := http.NewServeMux()
	controlHandler := handlers.NewControlHandler(manager, logger)
	controlHandler.RegisterRoutes(mux)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      mux,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// Start HTTP server
	go func() {
		logger.Info("Starting HTTP server", zap.Int("port", cfg.Server.Port))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server failed", zap.Error(err))
			cancel()
		}
	}()

	logger.Info("Server started",
		zap.Int("port", cfg.Server.Port),
		zap.String("devices_path", cfg.Devices.Path),
		zap.Bool("redis_enabled", redisClient != nil))

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case <-ctx.Done():
	}

	logger.Info("Shutting down server...")

	// Give outstanding requests a deadline for completion
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	// Shutdown HTTP server
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed", zap.Error(err))
	}

	// Stop the command consumer before the coordinators it drives
	if consumer != nil {
		consumer.Stop()
	}

	// Stop the per-device coordinators and wait for in-flight cycles
	manager.Stop()

	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			logger.Error("Failed to close Redis connection", zap.Error(err))
		}
	}

	logger.Info("Server shutdown complete")
}
