package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// ErrInvalidCronSpec is returned when the cron specification cannot be parsed.
var ErrInvalidCronSpec = errors.New("invalid cron spec")

// Runnable is implemented by anything the trigger can execute on schedule.
type Runnable interface {
	Run() error
}

// Trigger executes a Runnable according to a cron schedule. It is started
// once and runs until the context is cancelled.
type Trigger struct {
	spec     string
	schedule cron.Schedule
	runnable Runnable
	logger   *slog.Logger
}

// NewTrigger creates a Trigger from a standard 5-field cron spec
// (minute, hour, day, month, weekday).
// Returns ErrInvalidCronSpec if the specification cannot be parsed.
func NewTrigger(spec string, runnable Runnable, logger *slog.Logger) (*Trigger, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	schedule, err := parser.Parse(spec)
	if err != nil {
		return nil, errors.Join(ErrInvalidCronSpec, err)
	}

	return &Trigger{
		spec:     spec,
		schedule: schedule,
		runnable: runnable,
		logger:   logger,
	}, nil
}

// Start launches the scheduling goroutine and returns immediately.
// The goroutine exits when ctx is cancelled.
func (t *Trigger) Start(ctx context.Context) {
	go t.loop(ctx)
}

// NextRun returns the next scheduled run time from now.
func (t *Trigger) NextRun() time.Time {
	return t.schedule.Next(time.Now())
}

func (t *Trigger) loop(ctx context.Context) {
	for {
		next := t.schedule.Next(time.Now())

		t.logger.Debug("waiting for next sweep",
			"next_run", next,
			"wait_duration", time.Until(next),
		)

		select {
		case <-ctx.Done():
			t.logger.Info("reconcile trigger shutting down")
			return
		case <-time.After(time.Until(next)):
			if err := t.runnable.Run(); err != nil {
				t.logger.Warn("scheduled sweep completed with error", "error", err)
			}
		}
	}
}
