package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// runner owns the goroutine and counters shared by the polling workers.
// next returns how long to wait before the following tick.
type runner struct {
	name   string
	logger *zap.Logger
	next   func(now time.Time) time.Duration
	tick   func(ctx context.Context) (processed, failed int, err error)
	now    func() time.Time

	mu        sync.RWMutex
	cancel    context.CancelFunc
	done      chan struct{}
	isRunning bool
	processed int
	failed    int
	lastRun   time.Time
	lastError error
}

func (r *runner) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.isRunning {
		r.mu.Unlock()
		return fmt.Errorf("%s already running", r.name)
	}

	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})
	r.isRunning = true
	r.mu.Unlock()

	go r.loop(runCtx, r.done)
	return nil
}

// Stop cancels the loop and waits for an in-flight tick to finish
func (r *runner) Stop() error {
	r.mu.Lock()
	if !r.isRunning {
		r.mu.Unlock()
		return nil
	}
	r.isRunning = false
	cancel, done := r.cancel, r.done
	r.mu.Unlock()

	cancel()
	<-done

	s := r.Status()
	r.logger.Info(r.name+" stopped",
		zap.Int("processed_count", s.Processed),
		zap.Int("failed_count", s.Failed))
	return nil
}

func (r *runner) Name() string {
	return r.name
}

func (r *runner) Status() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s := Status{
		Name:      r.name,
		Running:   r.isRunning,
		Processed: r.processed,
		Failed:    r.failed,
		LastRun:   r.lastRun,
	}
	if r.lastError != nil {
		s.LastError = r.lastError.Error()
	}
	return s
}

func (r *runner) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	timer := time.NewTimer(r.next(r.now()))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			r.runOnce(ctx)
			timer.Reset(r.next(r.now()))
		}
	}
}

// runOnce executes one tick and records its outcome
func (r *runner) runOnce(ctx context.Context) {
	processed, failed, err := r.tick(ctx)

	r.mu.Lock()
	r.processed += processed
	r.failed += failed
	r.lastRun = r.now()
	r.lastError = err
	r.mu.Unlock()

	if err != nil && ctx.Err() == nil {
		r.logger.Error(r.name+" tick failed", zap.Error(err))
	}
}
