package sqlite

import (
	"context"
	"fmt"

	"github.com/garyjia/restaurant-receipts/internal/application/port"
	"github.com/garyjia/restaurant-receipts/internal/domain/receipt"
	"github.com/garyjia/restaurant-receipts/internal/domain/workflow"
	"go.uber.org/zap"
)

// HistoryRepository implements port.HistoryRepository
type HistoryRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewHistoryRepository creates a new history repository
func NewHistoryRepository(db *DB, logger *zap.Logger) port.HistoryRepository {
	return &HistoryRepository{
		db:     db,
		logger: logger,
	}
}

// Create appends a transition row
func (r *HistoryRepository) Create(ctx context.Context, history *receipt.StateHistory) error {
	query := `
		INSERT INTO receipt_state_history (
			receipt_id, previous_state, new_state, condition, actor, note, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.executor(ctx).ExecContext(ctx, query,
		history.ReceiptID,
		string(history.PreviousState),
		string(history.NewState),
		string(history.Condition),
		history.Actor,
		history.Note,
		history.CreatedAt.UTC(),
	)
	if err != nil {
		r.logger.Error("Failed to create history record", zap.Int64("receipt_id", history.ReceiptID), zap.Error(err))
		return fmt.Errorf("failed to create history: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	history.ID = id
	return nil
}

// GetByReceiptID retrieves the transitions of a receipt in the order they happened
func (r *HistoryRepository) GetByReceiptID(ctx context.Context, receiptID int64) ([]*receipt.StateHistory, error) {
	query := `
		SELECT id, receipt_id, previous_state, new_state, condition, actor, note, created_at
		FROM receipt_state_history
		WHERE receipt_id = ?
		ORDER BY id ASC
	`

	rows, err := r.db.executor(ctx).QueryContext(ctx, query, receiptID)
	if err != nil {
		r.logger.Error("Failed to get history by receipt ID", zap.Int64("receipt_id", receiptID), zap.Error(err))
		return nil, fmt.Errorf("failed to get history: %w", err)
	}
	defer rows.Close()

	records := []*receipt.StateHistory{}
	for rows.Next() {
		var record receipt.StateHistory
		var previous, next, condition string
		err := rows.Scan(
			&record.ID,
			&record.ReceiptID,
			&previous,
			&next,
			&condition,
			&record.Actor,
			&record.Note,
			&record.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan history record: %w", err)
		}
		record.PreviousState = workflow.State(previous)
		record.NewState = workflow.State(next)
		record.Condition = workflow.Condition(condition)
		records = append(records, &record)
	}

	return records, rows.Err()
}

// Verify interface compliance
var _ port.HistoryRepository = (*HistoryRepository)(nil)
