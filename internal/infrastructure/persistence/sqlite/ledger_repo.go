package sqlite

import (
	"context"
	"fmt"

	"github.com/garyjia/restaurant-receipts/internal/application/port"
	"github.com/garyjia/restaurant-receipts/internal/domain/gate"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// LedgerRepository implements port.InventoryLedger. Amounts are stored as decimal text.
type LedgerRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewLedgerRepository creates a new ledger repository
func NewLedgerRepository(db *DB, logger *zap.Logger) port.InventoryLedger {
	return &LedgerRepository{
		db:     db,
		logger: logger,
	}
}

// RecordMovements writes one stock movement per line and one cash movement.
// The unique keys make a second write for the same receipt fail with port.ErrAlreadyApplied.
func (r *LedgerRepository) RecordMovements(ctx context.Context, payload *gate.InventoryPayload) error {
	if payload == nil {
		return fmt.Errorf("nil inventory payload")
	}

	return r.db.WithTransaction(ctx, func(txCtx context.Context) error {
		exec := r.db.executor(txCtx)

		for _, line := range payload.Items {
			_, err := exec.ExecContext(txCtx, `
				INSERT INTO inventory_movements (
					receipt_id, line_no, description, quantity, unit, unit_price, subtotal
				) VALUES (?, ?, ?, ?, ?, ?, ?)`,
				payload.ReceiptID,
				line.LineNo,
				line.Description,
				line.Quantity.String(),
				line.Unit,
				line.UnitPrice.String(),
				line.Subtotal.String(),
			)
			if err != nil {
				return r.translate(err, payload.ReceiptID, "inventory movement")
			}
		}

		_, err := exec.ExecContext(txCtx, `
			INSERT INTO cash_movements (
				receipt_id, restaurant_id, supplier_name, invoice_number, amount, payment_reference
			) VALUES (?, ?, ?, ?, ?, ?)`,
			payload.ReceiptID,
			payload.RestaurantID,
			payload.SupplierName,
			payload.InvoiceNumber,
			payload.Total.String(),
			payload.PaymentReference,
		)
		if err != nil {
			return r.translate(err, payload.ReceiptID, "cash movement")
		}

		r.logger.Info("Ledger movements recorded",
			zap.Int64("receipt_id", payload.ReceiptID),
			zap.Int("lines", len(payload.Items)),
			zap.String("amount", payload.Total.String()))
		return nil
	})
}

// GetMovements returns the stock movements of a receipt ordered by line
func (r *LedgerRepository) GetMovements(ctx context.Context, receiptID int64) ([]gate.InventoryLine, error) {
	rows, err := r.db.executor(ctx).QueryContext(ctx, `
		SELECT line_no, description, quantity, unit, unit_price, subtotal
		FROM inventory_movements
		WHERE receipt_id = ?
		ORDER BY line_no ASC`, receiptID)
	if err != nil {
		r.logger.Error("Failed to get movements", zap.Int64("receipt_id", receiptID), zap.Error(err))
		return nil, fmt.Errorf("failed to get movements: %w", err)
	}
	defer rows.Close()

	lines := []gate.InventoryLine{}
	for rows.Next() {
		var line gate.InventoryLine
		var quantity, unitPrice, subtotal string
		if err := rows.Scan(&line.LineNo, &line.Description, &quantity, &line.Unit, &unitPrice, &subtotal); err != nil {
			return nil, fmt.Errorf("failed to scan movement: %w", err)
		}
		if line.Quantity, err = decimal.NewFromString(quantity); err != nil {
			return nil, fmt.Errorf("failed to parse quantity: %w", err)
		}
		if line.UnitPrice, err = decimal.NewFromString(unitPrice); err != nil {
			return nil, fmt.Errorf("failed to parse unit price: %w", err)
		}
		if line.Subtotal, err = decimal.NewFromString(subtotal); err != nil {
			return nil, fmt.Errorf("failed to parse subtotal: %w", err)
		}
		lines = append(lines, line)
	}

	return lines, rows.Err()
}

// CashBalance sums the cash movements of a restaurant
func (r *LedgerRepository) CashBalance(ctx context.Context, restaurantID string) (decimal.Decimal, error) {
	rows, err := r.db.executor(ctx).QueryContext(ctx,
		`SELECT amount FROM cash_movements WHERE restaurant_id = ?`, restaurantID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to get cash movements: %w", err)
	}
	defer rows.Close()

	total := decimal.Zero
	for rows.Next() {
		var amount string
		if err := rows.Scan(&amount); err != nil {
			return decimal.Zero, fmt.Errorf("failed to scan cash movement: %w", err)
		}
		d, err := decimal.NewFromString(amount)
		if err != nil {
			return decimal.Zero, fmt.Errorf("failed to parse amount: %w", err)
		}
		total = total.Add(d)
	}
	return total, rows.Err()
}

func (r *LedgerRepository) translate(err error, receiptID int64, what string) error {
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: receipt %d", port.ErrAlreadyApplied, receiptID)
	}
	r.logger.Error("Failed to record "+what, zap.Int64("receipt_id", receiptID), zap.Error(err))
	return fmt.Errorf("failed to record %s: %w", what, err)
}

// Verify interface compliance
var _ port.InventoryLedger = (*LedgerRepository)(nil)
