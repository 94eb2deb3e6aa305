package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	log "github.com/charmbracelet/log"

	"github.com/nilepay/payfac/infra/initializer"
	"github.com/nilepay/payfac/pkg/app"
	"github.com/nilepay/payfac/pkg/config"
	"github.com/nilepay/payfac/pkg/scheduler"
	"github.com/nilepay/payfac/webapi"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	logCfg, err := config.LoadLog()
	if err != nil {
		return fmt.Errorf("failed to load logging configuration: %w", err)
	}
	logger := initializer.SetupLogger(logCfg)

	cfg, err := config.Load(logger)
	if err != nil {
		return fmt.Errorf("failed to load application configuration: %w", err)
	}

	deps, _, err := initializer.InitializeDependencies(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize dependencies: %w", err)
	}

	a := app.New(deps, cfg)

	daily := scheduler.NewDaily(logger)
	if err := a.RegisterJobs(daily); err != nil {
		return fmt.Errorf("failed to register scheduled jobs: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	daily.Start(ctx)

	fiberApp := webapi.NewApp(a)

	go func() {
		<-ctx.Done()
		logger.Info("shutting down")
		if err := fiberApp.Shutdown(); err != nil {
			logger.Error("server shutdown failed", "error", err)
		}
	}()

	logger.Info("starting server", "env", cfg.Env, "addr", cfg.HTTP.Addr)
	return fiberApp.Listen(cfg.HTTP.Addr)
}
