package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/noah-isme/employee-records-api/internal/bootstrap"
	"github.com/noah-isme/employee-records-api/pkg/config"
	"github.com/noah-isme/employee-records-api/pkg/logger"
)

// @title Employee Records API
// @version 1.0.0
// @description Search, create, edit and delete employee records with identity documents
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, logr)
	if err != nil {
		logr.Fatal("failed to bootstrap application", zap.Error(err))
	}
	defer app.Close()

	if err := app.Run(ctx); err != nil {
		logr.Error("server failed", zap.Error(err))
	}
	logr.Info("server stopped")
}
