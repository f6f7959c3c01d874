package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/timmy/imgprompt/internal/api"
	"github.com/timmy/imgprompt/internal/app"
	"github.com/timmy/imgprompt/internal/config"
	"github.com/timmy/imgprompt/internal/logger"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	envCfg := logger.LoadFromEnv()
	if err == nil {
		envCfg = envCfg.ForService(cfg.Server.Name)
	}
	log := logger.NewFromEnv(envCfg)
	logger.SetDefaultLogger(log)
	defer logger.Sync()

	if err != nil {
		logger.Fatal("Failed to load config: %v", err)
	}

	ctx := context.Background()
	application, err := app.New(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to initialize services: %v", err)
	}
	defer application.Close()

	router := api.SetupRouter(cfg, api.Dependencies{
		Analyze:  application.Analyze,
		Archive:  application.Archive,
		RateRule: application.RateRule,
		Version:  version,
		Logger:   log,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.WithFields(logger.Fields{
			"port":    cfg.Server.Port,
			"mode":    cfg.Server.Mode,
			"version": version,
		}).Info("Starting API server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	// In-flight analyses may be waiting on the rate window
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Analyze.RequestTimeout+5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Server forced to shutdown")
	}

	log.Info("Server exited")
}
