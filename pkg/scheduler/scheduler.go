// Package scheduler provides the daily trigger that invokes the engines'
// date-injected entry points. The entry points themselves never read the
// wall clock; this package owns it.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Job is a daily task fired at a fixed local time. Run receives the trigger
// day; jobs that operate on the closed business day subtract a day
// themselves.
type Job struct {
	Name string
	At   string // "15:04"
	Run  func(ctx context.Context, date time.Time) error
}

// Daily fires each registered job once per calendar day at its configured
// time.
type Daily struct {
	jobs   []Job
	logger *slog.Logger
	now    func() time.Time
}

// NewDaily creates an empty daily scheduler.
func NewDaily(logger *slog.Logger) *Daily {
	return &Daily{logger: logger, now: time.Now}
}

// Add registers a job. Returns an error when the At time is malformed.
func (d *Daily) Add(job Job) error {
	if _, err := time.Parse("15:04", job.At); err != nil {
		return fmt.Errorf("job %s: bad trigger time %q: %w", job.Name, job.At, err)
	}
	d.jobs = append(d.jobs, job)
	return nil
}

// Start launches one goroutine per job and returns. Jobs stop when ctx is
// cancelled.
func (d *Daily) Start(ctx context.Context) {
	for _, job := range d.jobs {
		go d.loop(ctx, job)
	}
}

func (d *Daily) loop(ctx context.Context, job Job) {
	for {
		next := nextFire(d.now(), job.At)
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		fired := d.now()
		d.logger.Info("trigger fired", "job", job.Name, "at", fired.Format(time.RFC3339))
		if err := job.Run(ctx, fired); err != nil {
			d.logger.Error("scheduled job failed", "job", job.Name, "error", err)
		}
	}
}

// nextFire returns the next occurrence of the "15:04" trigger time strictly
// after now.
func nextFire(now time.Time, at string) time.Time {
	t, _ := time.Parse("15:04", at)
	fire := time.Date(now.Year(), now.Month(), now.Day(), t.Hour(), t.Minute(), 0, 0, now.Location())
	if !fire.After(now) {
		fire = fire.AddDate(0, 0, 1)
	}
	return fire
}
