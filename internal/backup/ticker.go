package backup

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"steward/pkg/logging"
)

// TickFunc saves every entity due at now.
type TickFunc func(ctx context.Context, now time.Time)

// Ticker runs the periodic save tick on a cron schedule.
type Ticker struct {
	spec string
	tick TickFunc
	now  func() time.Time
}

// NewTicker creates a ticker firing tick on spec, e.g. "*/5 * * * *" or
// "@every 10m".
func NewTicker(spec string, tick TickFunc) *Ticker {
	return &Ticker{spec: spec, tick: tick, now: time.Now}
}

// Run blocks until ctx is done. A tick still running when ctx ends is
// waited for.
func (t *Ticker) Run(ctx context.Context) error {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(t.spec, func() {
		logging.Debug(backupSubsystem, "Periodic save tick")
		t.tick(ctx, t.now())
	}); err != nil {
		return fmt.Errorf("invalid backup schedule %q: %w", t.spec, err)
	}

	logging.Info(backupSubsystem, "Periodic saves scheduled on %q", t.spec)
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

// ValidateSchedule checks a cron spec the way Run parses it.
func ValidateSchedule(spec string) error {
	if _, err := cron.ParseStandard(spec); err != nil {
		return fmt.Errorf("invalid backup schedule %q: %w", spec, err)
	}
	return nil
}
