package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Driver runs a Scheduler's Tick on a fixed interval using robfig/cron/v3's
// "@every" spec — an interval schedule, not a user cron expression; the
// library is reused purely as a reliable recurring-job runner (§4.6).
type Driver struct {
	cron      *cron.Cron
	scheduler *Scheduler
	logger    *slog.Logger
}

// NewDriver builds a Driver that calls sched.Tick every interval.
func NewDriver(sched *Scheduler, interval time.Duration, logger *slog.Logger) (*Driver, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c := cron.New(cron.WithSeconds())

	d := &Driver{cron: c, scheduler: sched, logger: logger}

	spec := fmt.Sprintf("@every %s", interval)
	if _, err := c.AddFunc(spec, d.runTick); err != nil {
		return nil, fmt.Errorf("schedule tick %q: %w", spec, err)
	}
	return d, nil
}

func (d *Driver) runTick() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := d.scheduler.Tick(ctx); err != nil {
		d.logger.Error("scheduler tick failed", "error", err)
	}
}

// Start begins the recurring tick; non-blocking.
func (d *Driver) Start() { d.cron.Start() }

// Stop halts the driver, waiting for any in-flight tick to finish.
func (d *Driver) Stop() context.Context { return d.cron.Stop() }
