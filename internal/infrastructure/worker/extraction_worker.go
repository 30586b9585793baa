package worker

import (
	"context"
	"time"

	"github.com/garyjia/restaurant-receipts/internal/domain/receipt"
	"github.com/garyjia/restaurant-receipts/internal/domain/workflow"
	"go.uber.org/zap"
)

// ExtractionService is the part of the receipt service the extraction worker drives
type ExtractionService interface {
	List(ctx context.Context, filter receipt.ListFilter) ([]*receipt.Record, error)
	Extract(ctx context.Context, id int64) (*receipt.Record, error)
}

// ExtractionWorkerConfig holds configuration for the extraction worker
type ExtractionWorkerConfig struct {
	PollInterval   time.Duration
	BatchSize      int
	ProcessTimeout time.Duration
}

// DefaultExtractionWorkerConfig returns default configuration
func DefaultExtractionWorkerConfig() ExtractionWorkerConfig {
	return ExtractionWorkerConfig{
		PollInterval:   10 * time.Second,
		BatchSize:      5,
		ProcessTimeout: 120 * time.Second,
	}
}

// ExtractionWorker reads uploaded receipts with the vision model in the background
type ExtractionWorker struct {
	*runner
	config  ExtractionWorkerConfig
	service ExtractionService
}

// NewExtractionWorker creates a new extraction worker
func NewExtractionWorker(config ExtractionWorkerConfig, service ExtractionService, logger *zap.Logger) *ExtractionWorker {
	defaults := DefaultExtractionWorkerConfig()
	if config.PollInterval <= 0 {
		config.PollInterval = defaults.PollInterval
	}
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}
	if config.ProcessTimeout <= 0 {
		config.ProcessTimeout = defaults.ProcessTimeout
	}

	w := &ExtractionWorker{config: config, service: service}
	w.runner = &runner{
		name:   "ExtractionWorker",
		logger: logger,
		now:    time.Now,
		next:   func(time.Time) time.Duration { return config.PollInterval },
		tick:   w.processPending,
	}
	return w
}

// processPending extracts the oldest batch of uploaded receipts
func (w *ExtractionWorker) processPending(ctx context.Context) (int, int, error) {
	pending, err := w.service.List(ctx, receipt.ListFilter{State: workflow.StateUploaded, Limit: w.config.BatchSize})
	if err != nil {
		return 0, 0, err
	}

	processed, failed := 0, 0
	for _, r := range pending {
		if ctx.Err() != nil {
			break
		}

		processCtx, cancel := context.WithTimeout(ctx, w.config.ProcessTimeout)
		updated, err := w.service.Extract(processCtx, r.ID)
		cancel()

		if err != nil {
			failed++
			w.logger.Error("Failed to extract receipt", zap.Int64("receipt_id", r.ID), zap.Error(err))
			continue
		}
		processed++
		w.logger.Info("Receipt extracted in background",
			zap.Int64("receipt_id", r.ID),
			zap.String("state", string(updated.State)),
			zap.Int("confidence", updated.ConfidenceScore))
	}
	return processed, failed, nil
}
