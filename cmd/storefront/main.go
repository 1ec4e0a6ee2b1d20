// Command storefront runs the grocery storefront client runtime.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/greenmarket/storefront/internal/app"
	"github.com/greenmarket/storefront/internal/config"
	"github.com/greenmarket/storefront/pkg/logger"
)

func main() {
	log := logger.NewDefault("main")

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("failed to load configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.WithError(err).Fatal("failed to build application")
	}

	if err := a.Run(ctx); err != nil {
		log.WithError(err).Error("application exited with error")
		os.Exit(1)
	}
	log.Info("shutdown complete")
}
