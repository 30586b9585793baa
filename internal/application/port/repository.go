package port

import (
	"context"
	"errors"
	"time"

	"github.com/garyjia/restaurant-receipts/internal/domain/gate"
	"github.com/garyjia/restaurant-receipts/internal/domain/receipt"
	"github.com/garyjia/restaurant-receipts/internal/domain/workflow"
)

var (
	// ErrStateConflict is returned when a record changed state under a concurrent writer
	ErrStateConflict = errors.New("receipt state changed concurrently")

	// ErrAlreadyApplied is returned when inventory was already written for a receipt
	ErrAlreadyApplied = errors.New("inventory already applied")
)

// ReceiptRepository defines persistence operations for receipt records.
// Getters return nil, nil when nothing matches.
type ReceiptRepository interface {
	Create(ctx context.Context, r *receipt.Record) error
	GetByID(ctx context.Context, id int64) (*receipt.Record, error)
	GetByReference(ctx context.Context, reference string) (*receipt.Record, error)

	// FindActiveByCaptureHash returns a non-archived record holding any of the hashes
	FindActiveByCaptureHash(ctx context.Context, hashes []string) (*receipt.Record, error)

	// Update writes the record only if its stored state still equals expected.
	// Returns ErrStateConflict otherwise.
	Update(ctx context.Context, r *receipt.Record, expected workflow.State) error

	// MarkInventoryApplied sets inventory_applied_at when the record is paid and
	// the column is still null. Returns ErrAlreadyApplied otherwise.
	MarkInventoryApplied(ctx context.Context, id int64, at time.Time) error

	List(ctx context.Context, filter receipt.ListFilter) ([]*receipt.Record, error)

	// ListArchivable returns paid records with inventory applied and paid before cutoff
	ListArchivable(ctx context.Context, cutoff time.Time, limit int) ([]*receipt.Record, error)
}

// HistoryRepository defines persistence operations for the transition audit trail
type HistoryRepository interface {
	Create(ctx context.Context, h *receipt.StateHistory) error
	GetByReceiptID(ctx context.Context, receiptID int64) ([]*receipt.StateHistory, error)
}

// InventoryLedger writes stock and cash movements for an applied receipt
type InventoryLedger interface {
	RecordMovements(ctx context.Context, payload *gate.InventoryPayload) error
	GetMovements(ctx context.Context, receiptID int64) ([]gate.InventoryLine, error)
}

// TransactionManager handles database transactions
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
