// Package payout implements the payout processing pipeline: creating
// payouts from approved settlements or ad hoc requests, dispatching them to
// the per-method rails, batching bank transfers, and folding asynchronous
// confirmations back into payout and settlement state.
package payout

import (
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nilepay/payfac/pkg/config"
	"github.com/nilepay/payfac/pkg/domain/payout"
	"github.com/nilepay/payfac/pkg/eventbus"
	"github.com/nilepay/payfac/pkg/money"
	"github.com/nilepay/payfac/pkg/provider/transfer"
	"github.com/nilepay/payfac/pkg/repository"
)

// Service drives payouts from creation to a terminal state.
type Service struct {
	uow       repository.UnitOfWork
	providers map[payout.Method]transfer.Provider
	batch     transfer.BatchProvider
	bus       eventbus.Bus

	fees              FeeSchedule
	approvalThreshold decimal.Decimal
	maxRetries        int
	interCallDelay    time.Duration
	currency          string

	// sleep is swapped out in tests to avoid real delays.
	sleep func(time.Duration)

	logger *slog.Logger
}

// New creates the payout service. providers must contain one transfer
// provider per supported method; batchProvider is the bank rail's batch
// capability.
func New(
	uow repository.UnitOfWork,
	providers []transfer.Provider,
	batchProvider transfer.BatchProvider,
	bus eventbus.Bus,
	payoutCfg config.Payout,
	feeCfg config.Fees,
	logger *slog.Logger,
) *Service {
	byMethod := make(map[payout.Method]transfer.Provider, len(providers))
	for _, p := range providers {
		byMethod[p.Method()] = p
	}
	return &Service{
		uow:               uow,
		providers:         byMethod,
		batch:             batchProvider,
		bus:               bus,
		fees:              NewFeeSchedule(feeCfg),
		approvalThreshold: money.FromFloat(payoutCfg.ApprovalThreshold),
		maxRetries:        payoutCfg.MaxRetries,
		interCallDelay:    payoutCfg.InterCallDelay,
		currency:          payoutCfg.Currency,
		sleep:             time.Sleep,
		logger:            logger,
	}
}
