package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"crediario-service/internal/app"
	"crediario-service/internal/config"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("[MAIN] No .env file found, relying on system env vars")
	}

	cfg := config.Load()

	var logger *zap.Logger
	var err error
	if cfg.Debug {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()

	engine := app.New(cfg, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := engine.Init(ctx); err != nil {
		cancel()
		logger.Fatal("engine failed to start", zap.Error(err))
	}
	cancel()

	if err := engine.HealthCheck(context.Background()); err != nil {
		logger.Fatal("database health check failed", zap.Error(err))
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	if err := engine.Shutdown(); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}
}
