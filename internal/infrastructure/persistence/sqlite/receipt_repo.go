package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/garyjia/restaurant-receipts/internal/application/port"
	"github.com/garyjia/restaurant-receipts/internal/domain/receipt"
	"github.com/garyjia/restaurant-receipts/internal/domain/workflow"
	"go.uber.org/zap"
)

const receiptColumns = `
	id, reference, restaurant_id, state, original_extraction, user_corrected,
	has_manual_edits, edited_fields, confidence_score, validation_status, validation_issues,
	capture_source, image_paths, payment_reference, created_at, updated_at,
	extracted_at, confirmed_at, approved_at, paid_at, inventory_applied_at, archived_at`

// ReceiptRepository implements port.ReceiptRepository
type ReceiptRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewReceiptRepository creates a new receipt repository
func NewReceiptRepository(db *DB, logger *zap.Logger) port.ReceiptRepository {
	return &ReceiptRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts the record and its capture hashes
func (r *ReceiptRepository) Create(ctx context.Context, rec *receipt.Record) error {
	cols, err := encodeRecord(rec)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO receipts (
			reference, restaurant_id, state, original_extraction, user_corrected,
			has_manual_edits, edited_fields, confidence_score, validation_status, validation_issues,
			capture_source, image_paths, payment_reference, created_at, updated_at,
			extracted_at, confirmed_at, approved_at, paid_at, inventory_applied_at, archived_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	exec := r.db.executor(ctx)
	result, err := exec.ExecContext(ctx, query,
		rec.Reference,
		rec.RestaurantID,
		string(rec.State),
		cols.original,
		cols.corrected,
		rec.HasManualEdits,
		cols.editedFields,
		rec.ConfidenceScore,
		rec.ValidationStatus,
		cols.issues,
		string(rec.CaptureSource),
		cols.imagePaths,
		rec.PaymentReference,
		rec.CreatedAt.UTC(),
		rec.UpdatedAt.UTC(),
		nullTime(rec.ExtractedAt),
		nullTime(rec.ConfirmedAt),
		nullTime(rec.ApprovedAt),
		nullTime(rec.PaidAt),
		nullTime(rec.InventoryAppliedAt),
		nullTime(rec.ArchivedAt),
	)
	if err != nil {
		r.logger.Error("Failed to create receipt", zap.String("reference", rec.Reference), zap.Error(err))
		return fmt.Errorf("failed to create receipt: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	for _, h := range rec.CaptureHashes {
		if _, err := exec.ExecContext(ctx,
			`INSERT OR IGNORE INTO receipt_capture_hashes (hash, receipt_id) VALUES (?, ?)`, h, id); err != nil {
			return fmt.Errorf("failed to store capture hash: %w", err)
		}
	}

	rec.ID = id
	return nil
}

// GetByID retrieves a receipt by id
func (r *ReceiptRepository) GetByID(ctx context.Context, id int64) (*receipt.Record, error) {
	return r.getOne(ctx, `SELECT `+receiptColumns+` FROM receipts WHERE id = ?`, id)
}

// GetByReference retrieves a receipt by its public reference
func (r *ReceiptRepository) GetByReference(ctx context.Context, reference string) (*receipt.Record, error) {
	return r.getOne(ctx, `SELECT `+receiptColumns+` FROM receipts WHERE reference = ?`, reference)
}

// FindActiveByCaptureHash returns the first non-archived receipt holding any of the hashes
func (r *ReceiptRepository) FindActiveByCaptureHash(ctx context.Context, hashes []string) (*receipt.Record, error) {
	if len(hashes) == 0 {
		return nil, nil
	}

	args := make([]interface{}, 0, len(hashes)+1)
	for _, h := range hashes {
		args = append(args, h)
	}
	args = append(args, string(workflow.StateArchived))

	query := `SELECT ` + receiptColumns + ` FROM receipts
		WHERE id IN (SELECT receipt_id FROM receipt_capture_hashes WHERE hash IN (` + placeholders(len(hashes)) + `))
		AND state != ?
		ORDER BY id ASC LIMIT 1`

	return r.getOne(ctx, query, args...)
}

// Update writes every mutable column when the stored state still equals expected
func (r *ReceiptRepository) Update(ctx context.Context, rec *receipt.Record, expected workflow.State) error {
	cols, err := encodeRecord(rec)
	if err != nil {
		return err
	}

	query := `
		UPDATE receipts SET
			state = ?, original_extraction = ?, user_corrected = ?,
			has_manual_edits = ?, edited_fields = ?, confidence_score = ?,
			validation_status = ?, validation_issues = ?, payment_reference = ?,
			updated_at = ?, extracted_at = ?, confirmed_at = ?, approved_at = ?,
			paid_at = ?, archived_at = ?
		WHERE id = ? AND state = ?
	`

	result, err := r.db.executor(ctx).ExecContext(ctx, query,
		string(rec.State),
		cols.original,
		cols.corrected,
		rec.HasManualEdits,
		cols.editedFields,
		rec.ConfidenceScore,
		rec.ValidationStatus,
		cols.issues,
		rec.PaymentReference,
		rec.UpdatedAt.UTC(),
		nullTime(rec.ExtractedAt),
		nullTime(rec.ConfirmedAt),
		nullTime(rec.ApprovedAt),
		nullTime(rec.PaidAt),
		nullTime(rec.ArchivedAt),
		rec.ID,
		string(expected),
	)
	if err != nil {
		r.logger.Error("Failed to update receipt", zap.Int64("id", rec.ID), zap.Error(err))
		return fmt.Errorf("failed to update receipt: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: receipt %d is no longer %s", port.ErrStateConflict, rec.ID, expected)
	}
	return nil
}

// MarkInventoryApplied stamps inventory_applied_at once, and only on a paid receipt
func (r *ReceiptRepository) MarkInventoryApplied(ctx context.Context, id int64, at time.Time) error {
	query := `
		UPDATE receipts SET inventory_applied_at = ?, updated_at = ?
		WHERE id = ? AND state = ? AND inventory_applied_at IS NULL
	`

	result, err := r.db.executor(ctx).ExecContext(ctx, query, at.UTC(), at.UTC(), id, string(workflow.StatePaid))
	if err != nil {
		r.logger.Error("Failed to mark inventory applied", zap.Int64("id", id), zap.Error(err))
		return fmt.Errorf("failed to mark inventory applied: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: receipt %d", port.ErrAlreadyApplied, id)
	}
	return nil
}

// List retrieves receipts newest first
func (r *ReceiptRepository) List(ctx context.Context, filter receipt.ListFilter) ([]*receipt.Record, error) {
	var where []string
	var args []interface{}

	if filter.State != "" {
		where = append(where, "state = ?")
		args = append(args, string(filter.State))
	}
	if filter.RestaurantID != "" {
		where = append(where, "restaurant_id = ?")
		args = append(args, filter.RestaurantID)
	}

	query := `SELECT ` + receiptColumns + ` FROM receipts`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`
	args = append(args, filter.Limit, filter.Offset)

	return r.getMany(ctx, query, args...)
}

// ListArchivable returns paid receipts with inventory applied and paid before cutoff
func (r *ReceiptRepository) ListArchivable(ctx context.Context, cutoff time.Time, limit int) ([]*receipt.Record, error) {
	query := `SELECT ` + receiptColumns + ` FROM receipts
		WHERE state = ? AND inventory_applied_at IS NOT NULL AND paid_at < ?
		ORDER BY paid_at ASC, id ASC LIMIT ?`

	return r.getMany(ctx, query, string(workflow.StatePaid), cutoff.UTC(), limit)
}

func (r *ReceiptRepository) getOne(ctx context.Context, query string, args ...interface{}) (*receipt.Record, error) {
	records, err := r.getMany(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return records[0], nil
}

func (r *ReceiptRepository) getMany(ctx context.Context, query string, args ...interface{}) ([]*receipt.Record, error) {
	rows, err := r.db.executor(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to query receipts", zap.Error(err))
		return nil, fmt.Errorf("failed to query receipts: %w", err)
	}
	defer rows.Close()

	records := []*receipt.Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate receipts: %w", err)
	}
	rows.Close()

	for _, rec := range records {
		hashes, err := r.captureHashes(ctx, rec.ID)
		if err != nil {
			return nil, err
		}
		rec.CaptureHashes = hashes
	}
	return records, nil
}

func (r *ReceiptRepository) captureHashes(ctx context.Context, id int64) ([]string, error) {
	rows, err := r.db.executor(ctx).QueryContext(ctx,
		`SELECT hash FROM receipt_capture_hashes WHERE receipt_id = ? ORDER BY rowid`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get capture hashes: %w", err)
	}
	defer rows.Close()

	hashes := []string{}
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, fmt.Errorf("failed to scan capture hash: %w", err)
		}
		hashes = append(hashes, h)
	}
	return hashes, rows.Err()
}

type encodedColumns struct {
	original     sql.NullString
	corrected    sql.NullString
	editedFields string
	issues       string
	imagePaths   string
}

func encodeRecord(rec *receipt.Record) (encodedColumns, error) {
	var cols encodedColumns
	var err error

	if cols.original, err = extractionText(rec.OriginalExtraction); err != nil {
		return cols, fmt.Errorf("encode original extraction: %w", err)
	}
	if cols.corrected, err = extractionText(rec.UserCorrected); err != nil {
		return cols, fmt.Errorf("encode user correction: %w", err)
	}
	if cols.editedFields, err = jsonText(nonNil(rec.EditedFields)); err != nil {
		return cols, fmt.Errorf("encode edited fields: %w", err)
	}
	if cols.issues, err = jsonText(nonNil(rec.ValidationIssues)); err != nil {
		return cols, fmt.Errorf("encode validation issues: %w", err)
	}
	if cols.imagePaths, err = jsonText(nonNil(rec.ImagePaths)); err != nil {
		return cols, fmt.Errorf("encode image paths: %w", err)
	}
	return cols, nil
}

func extractionText(e *receipt.Extraction) (sql.NullString, error) {
	if e == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(e)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func scanRecord(rows *sql.Rows) (*receipt.Record, error) {
	var rec receipt.Record
	var state, source string
	var original, corrected sql.NullString
	var editedFields, issues, imagePaths string
	var extractedAt, confirmedAt, approvedAt, paidAt, appliedAt, archivedAt sql.NullTime

	err := rows.Scan(
		&rec.ID,
		&rec.Reference,
		&rec.RestaurantID,
		&state,
		&original,
		&corrected,
		&rec.HasManualEdits,
		&editedFields,
		&rec.ConfidenceScore,
		&rec.ValidationStatus,
		&issues,
		&source,
		&imagePaths,
		&rec.PaymentReference,
		&rec.CreatedAt,
		&rec.UpdatedAt,
		&extractedAt,
		&confirmedAt,
		&approvedAt,
		&paidAt,
		&appliedAt,
		&archivedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan receipt: %w", err)
	}

	rec.State = workflow.State(state)
	rec.CaptureSource = receipt.CaptureSource(source)
	rec.ExtractedAt = timePtr(extractedAt)
	rec.ConfirmedAt = timePtr(confirmedAt)
	rec.ApprovedAt = timePtr(approvedAt)
	rec.PaidAt = timePtr(paidAt)
	rec.InventoryAppliedAt = timePtr(appliedAt)
	rec.ArchivedAt = timePtr(archivedAt)

	if original.Valid {
		e, err := receipt.ParseExtraction([]byte(original.String))
		if err != nil {
			return nil, fmt.Errorf("failed to decode original extraction of receipt %d: %w", rec.ID, err)
		}
		rec.OriginalExtraction = &e
	}
	if corrected.Valid {
		e, err := receipt.ParseExtraction([]byte(corrected.String))
		if err != nil {
			return nil, fmt.Errorf("failed to decode correction of receipt %d: %w", rec.ID, err)
		}
		rec.UserCorrected = &e
	}

	if err := json.Unmarshal([]byte(editedFields), &rec.EditedFields); err != nil {
		return nil, fmt.Errorf("failed to decode edited fields: %w", err)
	}
	if err := json.Unmarshal([]byte(issues), &rec.ValidationIssues); err != nil {
		return nil, fmt.Errorf("failed to decode validation issues: %w", err)
	}
	if err := json.Unmarshal([]byte(imagePaths), &rec.ImagePaths); err != nil {
		return nil, fmt.Errorf("failed to decode image paths: %w", err)
	}

	return &rec, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// Verify interface compliance
var _ port.ReceiptRepository = (*ReceiptRepository)(nil)
