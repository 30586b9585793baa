package worker

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// DayCloser archives the receipts settled before a cutoff
type DayCloser interface {
	CloseDay(ctx context.Context, cutoff time.Time) (int, error)
}

// DayCloseWorkerConfig holds configuration for the day-close worker
type DayCloseWorkerConfig struct {
	// At is the local wall-clock time of the daily close, "HH:MM"
	At       string
	Location *time.Location
}

// DayCloseWorker archives paid receipts once a day. Each run archives what was
// paid, with inventory applied, before the run started.
type DayCloseWorker struct {
	*runner
	closer DayCloser
	hour   int
	minute int
	loc    *time.Location
}

// NewDayCloseWorker creates a new day-close worker
func NewDayCloseWorker(config DayCloseWorkerConfig, closer DayCloser, logger *zap.Logger) (*DayCloseWorker, error) {
	at := config.At
	if at == "" {
		at = "23:30"
	}
	t, err := time.Parse("15:04", at)
	if err != nil {
		return nil, fmt.Errorf("invalid day close time %q: %w", config.At, err)
	}
	loc := config.Location
	if loc == nil {
		loc = time.Local
	}

	w := &DayCloseWorker{closer: closer, hour: t.Hour(), minute: t.Minute(), loc: loc}
	w.runner = &runner{
		name:   "DayCloseWorker",
		logger: logger,
		now:    time.Now,
		next:   func(now time.Time) time.Duration { return w.nextRun(now).Sub(now) },
		tick:   w.closeDay,
	}
	return w, nil
}

// nextRun returns the first scheduled close strictly after now
func (w *DayCloseWorker) nextRun(now time.Time) time.Time {
	local := now.In(w.loc)
	run := time.Date(local.Year(), local.Month(), local.Day(), w.hour, w.minute, 0, 0, w.loc)
	if !run.After(local) {
		run = run.AddDate(0, 0, 1)
	}
	return run
}

func (w *DayCloseWorker) closeDay(ctx context.Context) (int, int, error) {
	cutoff := w.now()
	archived, err := w.closer.CloseDay(ctx, cutoff)
	if err != nil {
		return archived, 1, err
	}
	w.logger.Info("Day closed", zap.Time("cutoff", cutoff), zap.Int("archived", archived))
	return archived, 0, nil
}
