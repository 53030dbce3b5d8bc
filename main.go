package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"imagyn/internal/api"
	"imagyn/internal/config"
	"imagyn/internal/container"
)

const shutdownGrace = 15 * time.Second

func main() {
	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	// Load application configuration
	appConfig, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	gin.SetMode(appConfig.Server.GinMode)

	// Create dependency injection container
	appContainer, err := container.New(appConfig)
	if err != nil {
		log.Fatalf("Failed to create application container: %v", err)
	}
	defer appContainer.Shutdown(context.Background())
	logger := appContainer.Logger

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if appContainer.Backend.CheckConnection(ctx) {
		logger.Info("✅ Render backend reachable", zap.String("url", appContainer.Backend.BaseURL()))
	} else {
		logger.Warn("⚠️ Render backend not reachable; generations will fail until it is up",
			zap.String("url", appContainer.Backend.BaseURL()))
	}

	server := api.NewServer(appContainer.Service, logger.Named("api"))
	errCh := make(chan error, 1)
	go func() {
		logger.Info("🚀 Starting Imagyn server", zap.String("port", appConfig.Server.Port))
		errCh <- server.Start(":" + appConfig.Server.Port)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Fatal("❌ Server failed", zap.Error(err))
		}
	case <-ctx.Done():
		logger.Info("🛑 Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("Graceful shutdown failed", zap.Error(err))
		}
	}
}
