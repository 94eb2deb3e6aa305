// Package app wires dependencies into the application services.
package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/nilepay/payfac/pkg/config"
	"github.com/nilepay/payfac/pkg/eventbus"
	"github.com/nilepay/payfac/pkg/notification"
	"github.com/nilepay/payfac/pkg/provider/transfer"
	"github.com/nilepay/payfac/pkg/repository"
	"github.com/nilepay/payfac/pkg/scheduler"
	merchantsvc "github.com/nilepay/payfac/pkg/service/merchant"
	payoutsvc "github.com/nilepay/payfac/pkg/service/payout"
	settlementsvc "github.com/nilepay/payfac/pkg/service/settlement"
)

// Deps contains the external collaborators the services need.
type Deps struct {
	Uow           repository.UnitOfWork
	Bus           eventbus.Bus
	Providers     []transfer.Provider
	BatchProvider transfer.BatchProvider
	Sink          notification.Sink
	Logger        *slog.Logger
}

// App holds the wired application services.
type App struct {
	Deps   *Deps
	Config *config.App

	MerchantService     *merchantsvc.Service
	SettlementService   *settlementsvc.Service
	SettlementScheduler *settlementsvc.Scheduler
	PayoutService       *payoutsvc.Service
}

// New wires services from deps and configuration, and subscribes the
// notification sink to the event bus.
func New(deps *Deps, cfg *config.App) *App {
	app := &App{Deps: deps, Config: cfg}

	app.MerchantService = merchantsvc.New(deps.Uow, deps.Logger)
	app.SettlementService = settlementsvc.New(deps.Uow, deps.Bus, cfg.Settlement, deps.Logger)
	app.SettlementScheduler = settlementsvc.NewScheduler(
		deps.Uow, app.SettlementService, cfg.Settlement.Concurrency, deps.Logger)
	app.PayoutService = payoutsvc.New(
		deps.Uow, deps.Providers, deps.BatchProvider, deps.Bus,
		cfg.Payout, cfg.Fees, deps.Logger)

	notification.Wire(deps.Bus, deps.Sink)
	return app
}

// RegisterJobs attaches the daily triggers: the settlement run over the
// closed business day, the payout dispatch, and the retry sweep.
func (a *App) RegisterJobs(d *scheduler.Daily) error {
	jobs := []scheduler.Job{
		{
			Name: "settlement-run",
			At:   a.Config.Settlement.RunAt,
			Run: func(ctx context.Context, fired time.Time) error {
				// The run settles yesterday, the last fully closed day.
				_, err := a.SettlementScheduler.RunForDate(ctx, fired.AddDate(0, 0, -1))
				return err
			},
		},
		{
			Name: "payout-dispatch",
			At:   a.Config.Payout.DispatchAt,
			Run: func(ctx context.Context, fired time.Time) error {
				_, err := a.PayoutService.DispatchDue(ctx, fired)
				return err
			},
		},
		{
			Name: "payout-retry-sweep",
			At:   a.Config.Payout.RetryAt,
			Run: func(ctx context.Context, _ time.Time) error {
				_, err := a.PayoutService.RunRetrySweep(ctx)
				return err
			},
		},
	}
	for _, job := range jobs {
		if err := d.Add(job); err != nil {
			return err
		}
	}
	return nil
}
