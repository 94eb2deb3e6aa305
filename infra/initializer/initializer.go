// Package initializer builds the application dependency graph from
// configuration.
package initializer

import (
	"fmt"
	"log/slog"

	"gorm.io/gorm"

	"github.com/nilepay/payfac/infra"
	infraeventbus "github.com/nilepay/payfac/infra/eventbus"
	"github.com/nilepay/payfac/infra/provider/mocktransfer"
	"github.com/nilepay/payfac/infra/provider/resttransfer"
	infrarepo "github.com/nilepay/payfac/infra/repository"
	"github.com/nilepay/payfac/pkg/app"
	"github.com/nilepay/payfac/pkg/config"
	"github.com/nilepay/payfac/pkg/domain/payout"
	"github.com/nilepay/payfac/pkg/notification"
	"github.com/nilepay/payfac/pkg/provider/transfer"
)

// InitializeDependencies opens the database, runs migrations, and builds the
// dependency graph for app.New.
func InitializeDependencies(cfg *config.App, logger *slog.Logger) (*app.Deps, *gorm.DB, error) {
	db, err := infra.NewDBConnection(cfg.DB, cfg.Env)
	if err != nil {
		return nil, nil, fmt.Errorf("connect database: %w", err)
	}
	if err := infra.AutoMigrate(db); err != nil {
		return nil, nil, fmt.Errorf("migrate schema: %w", err)
	}

	bus := infraeventbus.NewMemoryBus(logger)

	instant, _, err := buildRail(payout.MethodInstantTransfer, cfg.Instant, logger)
	if err != nil {
		return nil, nil, err
	}
	wallet, _, err := buildRail(payout.MethodWallet, cfg.Wallet, logger)
	if err != nil {
		return nil, nil, err
	}
	bank, batch, err := buildRail(payout.MethodBankTransfer, cfg.Bank, logger)
	if err != nil {
		return nil, nil, err
	}

	deps := &app.Deps{
		Uow:           infrarepo.NewUoW(db),
		Bus:           bus,
		Providers:     []transfer.Provider{instant, wallet, bank},
		BatchProvider: batch,
		Sink:          notification.NewLogSink(logger),
		Logger:        logger,
	}
	return deps, db, nil
}

// buildRail selects the rail implementation per configuration. Only the bank
// rail returns a batch capability.
func buildRail(
	method payout.Method,
	cfg config.Provider,
	logger *slog.Logger,
) (transfer.Provider, transfer.BatchProvider, error) {
	switch cfg.Mode {
	case "rest":
		if cfg.BaseURL == "" {
			return nil, nil, fmt.Errorf("%s rail: BASE_URL is required in rest mode", method)
		}
		c := resttransfer.New(method, cfg, logger)
		logger.Info("rail configured", "method", string(method), "mode", "rest", "base_url", cfg.BaseURL)
		if method == payout.MethodBankTransfer {
			return c, c, nil
		}
		return c, nil, nil
	case "mock", "":
		logger.Info("rail configured", "method", string(method), "mode", "mock")
		if method == payout.MethodBankTransfer {
			b := mocktransfer.NewBatch()
			return b, b, nil
		}
		return mocktransfer.New(method), nil, nil
	default:
		return nil, nil, fmt.Errorf("%s rail: unknown mode %q", method, cfg.Mode)
	}
}
