package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/timmy/producer-tools/internal/api"
	"github.com/timmy/producer-tools/internal/api/handler"
	"github.com/timmy/producer-tools/internal/api/middleware"
	"github.com/timmy/producer-tools/internal/app"
	"github.com/timmy/producer-tools/internal/config"
	"github.com/timmy/producer-tools/internal/deps"
	"github.com/timmy/producer-tools/internal/logger"
)

func main() {
	appLogger := logger.NewDefault()
	logger.SetDefaultLogger(appLogger)
	defer logger.Sync()

	// Support CONFIG_PATH environment variable for production deployments
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		appLogger.WithError(err).Fatal("Invalid configuration")
	}

	requirements := deps.Requirements(cfg)
	statuses := deps.CheckBinaries(requirements)
	for _, s := range statuses {
		appLogger.WithFields(logger.Fields{
			"dependency": s.Name,
			"available":  s.Available,
			"path":       s.Path,
		}).Info("Dependency check")
	}
	for _, s := range deps.Missing(statuses) {
		if s.Name == "ffmpeg" {
			appLogger.WithField("command", s.Command).Fatal("FFmpeg is required for audio conversion")
		}
		appLogger.WithField("command", s.Command).Warn("Required dependency is missing; conversions will fail")
	}

	ctx := context.Background()
	converter, err := app.Build(ctx, cfg, appLogger)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize converter")
	}

	var history handler.HistoryLister
	if converter.History != nil {
		history = converter.History
	}

	router := api.SetupRouter(api.RouterConfig{
		Converter:    converter.Converter,
		History:      history,
		Requirements: requirements,
		Mode:         cfg.Server.Mode,
		CORS: middleware.CORSConfig{
			AllowedOrigins:  cfg.Server.CORS.AllowedOrigins,
			AllowAllOrigins: cfg.Server.CORS.AllowAllOrigins,
		},
		Logger: appLogger,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		appLogger.WithFields(logger.Fields{
			"port": cfg.Server.Port,
			"mode": cfg.Server.Mode,
		}).Info("Starting API server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.WithError(err).Fatal("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.WithError(err).Error("Server forced to shutdown")
	}
	// in-flight jobs fail at their next stage boundary
	if err := converter.Shutdown(shutdownCtx); err != nil {
		appLogger.WithError(err).Warn("Conversions still running at exit")
	}

	appLogger.Info("Server exited")
}
