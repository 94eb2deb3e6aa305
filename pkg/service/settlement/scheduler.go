package settlement

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nilepay/payfac/pkg/repository"
)

// Scheduler drives the calculator once per day across all active
// sub-merchants with a bounded fan-out. One merchant's failure never aborts
// processing of the others.
type Scheduler struct {
	uow         repository.UnitOfWork
	svc         *Service
	concurrency int
	logger      *slog.Logger
}

// NewScheduler creates a scheduler over the given settlement service.
func NewScheduler(uow repository.UnitOfWork, svc *Service, concurrency int, logger *slog.Logger) *Scheduler {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Scheduler{uow: uow, svc: svc, concurrency: concurrency, logger: logger}
}

// RunReport summarizes one settlement run.
type RunReport struct {
	Date      time.Time
	Merchants int
	Due       int
	Created   int
	Skipped   int
	Failed    int
}

// RunForDate evaluates every active sub-merchant's cycle against date and
// calculates settlements for the due ones. The date is injected by the
// trigger (normally yesterday, the closed business day), keeping this entry
// point free of wall-clock reads.
func (s *Scheduler) RunForDate(ctx context.Context, date time.Time) (*RunReport, error) {
	merchants, err := s.uow.SubMerchants().ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active sub-merchants: %w", err)
	}

	report := &RunReport{Date: date, Merchants: len(merchants)}
	var mu sync.Mutex

	g := &errgroup.Group{}
	g.SetLimit(s.concurrency)
	for _, m := range merchants {
		m := m
		g.Go(func() error {
			if !s.svc.ShouldSettleToday(m, date) {
				return nil
			}
			mu.Lock()
			report.Due++
			mu.Unlock()

			st, err := s.svc.CalculateForMerchant(ctx, m, date)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				// Isolate the failure; siblings keep processing.
				s.logger.Error("settlement calculation failed",
					"sub_merchant", m.ID, "error", err)
				report.Failed++
			case st == nil:
				report.Skipped++
			default:
				report.Created++
			}
			return nil
		})
	}
	_ = g.Wait()

	s.logger.Info("settlement run finished",
		"date", date.Format("2006-01-02"),
		"merchants", report.Merchants,
		"due", report.Due,
		"created", report.Created,
		"skipped", report.Skipped,
		"failed", report.Failed)
	return report, nil
}
