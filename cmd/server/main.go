// Command server is the entry point for the DevConnector API.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"devconnector/internal/config"
	"devconnector/internal/middleware"
	"devconnector/internal/observability"
	"devconnector/internal/server"

	"go.uber.org/zap"
)

// @title DevConnector API
// @version 1.0
// @description Developer profiles, posts and likes.

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:5000
// @BasePath /api
// @schemes http https

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		middleware.Logger.Fatal("failed to load configuration", zap.Error(err))
	}

	shutdownTracing, err := observability.InitTracing(observability.TracingConfig{
		ServiceName:    "devconnector-api",
		ServiceVersion: "1.0.0",
		Environment:    cfg.Env,
		Enabled:        cfg.TracingEnabled,
		Exporter:       cfg.TracingExporter,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		SamplerRatio:   cfg.TracingSamplerRatio,
	})
	if err != nil {
		middleware.Logger.Fatal("failed to initialize tracing", zap.Error(err))
	}

	srv, err := server.NewServer(cfg)
	if err != nil {
		middleware.Logger.Fatal("failed to create server", zap.Error(err))
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		middleware.Logger.Info("shutting down server")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			middleware.Logger.Error("server shutdown error", zap.Error(err))
		}
		if err := shutdownTracing(ctx); err != nil {
			middleware.Logger.Error("tracing shutdown error", zap.Error(err))
		}
	}()

	if err := srv.Start(); err != nil {
		middleware.Logger.Fatal("server stopped", zap.Error(err))
	}
	_ = middleware.Logger.Sync()
}
