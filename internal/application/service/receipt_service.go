package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/garyjia/restaurant-receipts/internal/application/port"
	"github.com/garyjia/restaurant-receipts/internal/domain/event"
	"github.com/garyjia/restaurant-receipts/internal/domain/gate"
	"github.com/garyjia/restaurant-receipts/internal/domain/receipt"
	"github.com/garyjia/restaurant-receipts/internal/domain/validation"
	"github.com/garyjia/restaurant-receipts/internal/domain/workflow"
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// EventPublisher delivers domain events after a change is committed
type EventPublisher interface {
	DispatchAllAsync(ctx context.Context, evts []*event.Event)
}

// ActorSystem is recorded in history for transitions made by workers
const ActorSystem = "system"

// CaptureRequest carries the images of one receipt
type CaptureRequest struct {
	RestaurantID string
	Source       receipt.CaptureSource
	Images       []port.ReceiptImage
	Actor        string
}

// ReceiptService drives receipts through their lifecycle
type ReceiptService interface {
	Capture(ctx context.Context, req CaptureRequest) (*receipt.Record, error)
	Extract(ctx context.Context, id int64) (*receipt.Record, error)
	Correct(ctx context.Context, id int64, corrected receipt.Extraction, actor string) (*receipt.Record, error)
	Review(ctx context.Context, id int64, accept bool, actor, note string) (*receipt.Record, error)
	Confirm(ctx context.Context, id int64, actor string) (*receipt.Record, error)
	StageInventory(ctx context.Context, id int64, actor string) (*receipt.Record, error)
	RegisterPayment(ctx context.Context, id int64, reference, actor string) (*receipt.Record, error)
	ApplyInventory(ctx context.Context, id int64, actor string) (*gate.InventoryPayload, error)
	Archive(ctx context.Context, id int64, actor string) (*receipt.Record, error)
	CloseDay(ctx context.Context, cutoff time.Time) (int, error)
	Get(ctx context.Context, id int64) (*receipt.Record, error)
	List(ctx context.Context, filter receipt.ListFilter) ([]*receipt.Record, error)
	History(ctx context.Context, id int64) ([]*receipt.StateHistory, error)
	Validate(e receipt.Extraction) validation.ValidationResult
}

type receiptServiceImpl struct {
	receiptRepo  port.ReceiptRepository
	historyRepo  port.HistoryRepository
	ledger       port.InventoryLedger
	txManager    port.TransactionManager
	extractor    port.ReceiptExtractor
	storage      port.FileStorage
	publisher    EventPublisher
	validator    *validation.Validator
	logger       Logger
	now          func() time.Time
	archiveBatch int
}

// Option configures the receipt service
type Option func(*receiptServiceImpl)

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(s *receiptServiceImpl) {
		s.now = now
	}
}

// WithArchiveBatch sets how many receipts CloseDay archives per run
func WithArchiveBatch(n int) Option {
	return func(s *receiptServiceImpl) {
		if n > 0 {
			s.archiveBatch = n
		}
	}
}

// NewReceiptService creates a new ReceiptService
func NewReceiptService(
	receiptRepo port.ReceiptRepository,
	historyRepo port.HistoryRepository,
	ledger port.InventoryLedger,
	txManager port.TransactionManager,
	extractor port.ReceiptExtractor,
	storage port.FileStorage,
	publisher EventPublisher,
	validator *validation.Validator,
	logger Logger,
	opts ...Option,
) ReceiptService {
	s := &receiptServiceImpl{
		receiptRepo:  receiptRepo,
		historyRepo:  historyRepo,
		ledger:       ledger,
		txManager:    txManager,
		extractor:    extractor,
		storage:      storage,
		publisher:    publisher,
		validator:    validator,
		logger:       logger,
		now:          time.Now,
		archiveBatch: 200,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// change collects what one operation did so it can be published after commit
type change struct {
	actor  string
	events []*event.Event
}

func (s *receiptServiceImpl) publish(ctx context.Context, c *change) {
	if s.publisher == nil || len(c.events) == 0 {
		return
	}
	s.publisher.DispatchAllAsync(context.WithoutCancel(ctx), c.events)
}

// move applies the transition selected by condition and persists it with its history row.
// Must run inside a transaction. On failure r is left as it was before the call.
func (s *receiptServiceImpl) move(ctx context.Context, r *receipt.Record, cond workflow.Condition, validationPassed bool, note string, c *change) (err error) {
	from := r.State
	to, ok := workflow.Resolve(from, cond)
	if !ok {
		return fmt.Errorf("%w: %s does not accept %s", workflow.ErrInvalidTransition, from, cond)
	}

	result := workflow.TransitionState(from, to, validationPassed)
	if !result.Success {
		return result.Err()
	}

	now := s.now()
	before := *r
	r.EnterState(to, now)
	defer func() {
		if err != nil {
			*r = before
		}
	}()

	if err := s.receiptRepo.Update(ctx, r, from); err != nil {
		return fmt.Errorf("update receipt: %w", err)
	}

	history := &receipt.StateHistory{
		ReceiptID:     r.ID,
		PreviousState: from,
		NewState:      to,
		Condition:     cond,
		Actor:         c.actor,
		Note:          note,
		CreatedAt:     now,
	}
	if err := s.historyRepo.Create(ctx, history); err != nil {
		return fmt.Errorf("create history: %w", err)
	}

	c.events = append(c.events, event.NewEvent(event.TypeStateChanged, r.ID, r.Reference, map[string]interface{}{
		"previous_state": from,
		"new_state":      to,
		"condition":      cond,
		"actor":          c.actor,
	}))

	return nil
}

// applyVerdict copies the verdict snapshot onto the record
func applyVerdict(r *receipt.Record, v validation.ValidationResult) {
	r.ConfidenceScore = v.RealConfidence
	r.ValidationStatus = v.Status.String()
	r.ValidationIssues = v.Issues
}

// routeAfterExtraction picks the condition leaving the extracted state
func routeAfterExtraction(e receipt.Extraction, v validation.ValidationResult) workflow.Condition {
	switch {
	case v.Status == validation.StatusBlocked:
		return workflow.ConditionValidationFailed
	case v.Status == validation.StatusNeedsReview:
		return workflow.ConditionLowConfidence
	case validation.ValidItemCount(e) < len(e.Items):
		return workflow.ConditionUnmappedItems
	default:
		return workflow.ConditionValidationPassed
	}
}

func (s *receiptServiceImpl) load(ctx context.Context, id int64) (*receipt.Record, error) {
	r, err := s.receiptRepo.GetByID(ctx, id)
	if err != nil {
		s.logger.Error("Failed to get receipt", "error", err, "id", id)
		return nil, err
	}
	if r == nil {
		return nil, ErrReceiptNotFound
	}
	return r, nil
}

func requireState(r *receipt.Record, allowed ...workflow.State) error {
	for _, s := range allowed {
		if r.State == s {
			return nil
		}
	}
	return fmt.Errorf("%w: action not allowed in state %s", workflow.ErrInvalidTransition, r.State)
}

func actorOrDefault(actor string) string {
	if strings.TrimSpace(actor) == "" {
		return "user"
	}
	return strings.TrimSpace(actor)
}

// Capture stores the images and creates the receipt in the uploaded state
func (s *receiptServiceImpl) Capture(ctx context.Context, req CaptureRequest) (*receipt.Record, error) {
	if strings.TrimSpace(req.RestaurantID) == "" {
		return nil, fmt.Errorf("%w: restaurant_id is required", ErrInvalidInput)
	}
	if len(req.Images) == 0 {
		return nil, fmt.Errorf("%w: at least one image is required", ErrInvalidInput)
	}
	if req.Source == "" {
		req.Source = receipt.SourceUpload
	}
	if !req.Source.IsValid() {
		return nil, fmt.Errorf("%w: unknown capture source %q", ErrInvalidInput, req.Source)
	}

	hashes := make([]string, 0, len(req.Images))
	seen := make(map[string]bool, len(req.Images))
	for _, img := range req.Images {
		if len(img.Data) == 0 {
			return nil, fmt.Errorf("%w: image %q is empty", ErrInvalidInput, img.Name)
		}
		sum := sha256.Sum256(img.Data)
		h := hex.EncodeToString(sum[:])
		if seen[h] {
			return nil, fmt.Errorf("%w: image %q sent twice", ErrInvalidInput, img.Name)
		}
		seen[h] = true
		hashes = append(hashes, h)
	}

	existing, err := s.receiptRepo.FindActiveByCaptureHash(ctx, hashes)
	if err != nil {
		s.logger.Error("Failed to check capture hashes", "error", err)
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: receipt %s", ErrDuplicateCapture, existing.Reference)
	}

	now := s.now()
	paths := make([]string, 0, len(req.Images))
	for i, img := range req.Images {
		p := imagePath(req.RestaurantID, now, hashes[i], img.MimeType)
		if err := s.storage.Save(ctx, p, img.Data); err != nil {
			s.logger.Error("Failed to store receipt image", "error", err, "path", p)
			return nil, fmt.Errorf("store image: %w", err)
		}
		paths = append(paths, p)
	}

	r := receipt.NewRecord(strings.TrimSpace(req.RestaurantID), req.Source, hashes, paths, now)
	c := &change{actor: actorOrDefault(req.Actor)}

	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.receiptRepo.Create(txCtx, r); err != nil {
			return fmt.Errorf("create receipt: %w", err)
		}
		return s.historyRepo.Create(txCtx, &receipt.StateHistory{
			ReceiptID: r.ID,
			NewState:  workflow.StateUploaded,
			Actor:     c.actor,
			Note:      fmt.Sprintf("captured %d image(s) via %s", len(paths), req.Source),
			CreatedAt: now,
		})
	})
	if err != nil {
		s.logger.Error("Failed to create receipt", "error", err, "restaurant_id", req.RestaurantID)
		return nil, err
	}

	c.events = append(c.events, event.NewEvent(event.TypeReceiptCaptured, r.ID, r.Reference, map[string]interface{}{
		"restaurant_id": r.RestaurantID,
		"source":        string(r.CaptureSource),
		"images":        len(paths),
	}))
	s.publish(ctx, c)

	s.logger.Info("Receipt captured", "id", r.ID, "reference", r.Reference, "images", len(paths))
	return r, nil
}

// Extract runs the extractor on an uploaded receipt and routes it by the verdict
func (s *receiptServiceImpl) Extract(ctx context.Context, id int64) (*receipt.Record, error) {
	r, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := requireState(r, workflow.StateUploaded); err != nil {
		return nil, err
	}

	images := make([]port.ReceiptImage, 0, len(r.ImagePaths))
	for _, p := range r.ImagePaths {
		data, err := s.storage.Read(ctx, p)
		if err != nil {
			s.logger.Error("Failed to read receipt image", "error", err, "id", id, "path", p)
			return nil, fmt.Errorf("read image: %w", err)
		}
		images = append(images, port.ReceiptImage{Name: path.Base(p), MimeType: mimeFromPath(p), Data: data})
	}

	raw, extractErr := s.extractor.Extract(ctx, images)
	if extractErr != nil && (errors.Is(extractErr, context.Canceled) || errors.Is(extractErr, context.DeadlineExceeded)) {
		return nil, extractErr
	}

	var extraction receipt.Extraction
	if extractErr == nil {
		extraction, extractErr = receipt.ParseExtraction(raw)
	}

	c := &change{actor: ActorSystem}

	if extractErr != nil {
		s.logger.Error("Extraction failed", "error", extractErr, "id", id)
		verdict := validation.ErrorResult(fmt.Sprintf("No se pudo leer el recibo: %v", extractErr))
		applyVerdict(r, verdict)

		err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
			return s.move(txCtx, r, workflow.ConditionCriticalDataMissing, false, verdict.BlockingReason, c)
		})
		if err != nil {
			s.logger.Error("Failed to block receipt", "error", err, "id", id)
			return nil, err
		}

		c.events = append(c.events, event.NewEvent(event.TypeExtractionRejected, r.ID, r.Reference, map[string]interface{}{
			"reason": verdict.BlockingReason,
		}))
		s.publish(ctx, c)
		return r, nil
	}

	r.SetOriginalExtraction(extraction)
	verdict := s.validator.Validate(extraction)
	applyVerdict(r, verdict)
	next := routeAfterExtraction(extraction, verdict)

	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.move(txCtx, r, workflow.ConditionAIProcessed, false, "", c); err != nil {
			return err
		}
		return s.move(txCtx, r, next, false, strings.Join(verdict.Issues, ". "), c)
	})
	if err != nil {
		s.logger.Error("Failed to store extraction", "error", err, "id", id)
		return nil, err
	}

	c.events = append(c.events, event.NewEvent(event.TypeReceiptExtracted, r.ID, r.Reference, map[string]interface{}{
		"confidence": verdict.RealConfidence,
		"status":     verdict.Status.String(),
		"state":      r.State,
	}))
	s.publish(ctx, c)

	s.logger.Info("Receipt extracted", "id", id, "state", r.State, "confidence", verdict.RealConfidence)
	return r, nil
}

// Correct stores user edits and re-validates on the corrected data
func (s *receiptServiceImpl) Correct(ctx context.Context, id int64, corrected receipt.Extraction, actor string) (*receipt.Record, error) {
	r, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := requireState(r, workflow.StateExtracted, workflow.StateNeedsReview, workflow.StatePendingConfirmation); err != nil {
		return nil, err
	}

	original := receipt.Extraction{}
	if r.OriginalExtraction != nil {
		original = *r.OriginalExtraction
	}
	report := gate.TrackManualEdits(original, corrected)

	snapshot := corrected.Clone()
	r.UserCorrected = &snapshot
	r.HasManualEdits = r.HasManualEdits || report.HasEdits
	r.EditedFields = report.EditedFields

	verdict := s.validator.Validate(snapshot)
	applyVerdict(r, verdict)

	c := &change{actor: actorOrDefault(actor)}
	previous := r.State

	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		switch r.State {
		case workflow.StatePendingConfirmation:
			return s.move(txCtx, r, workflow.ConditionUserEditRequested, false, strings.Join(report.EditedFields, ", "), c)
		case workflow.StateExtracted:
			return s.move(txCtx, r, routeAfterExtraction(snapshot, verdict), false, strings.Join(verdict.Issues, ". "), c)
		default:
			if err := s.receiptRepo.Update(txCtx, r, r.State); err != nil {
				return fmt.Errorf("update receipt: %w", err)
			}
			return nil
		}
	})
	if err != nil {
		s.logger.Error("Failed to store correction", "error", err, "id", id)
		return nil, err
	}

	c.events = append(c.events, event.NewEvent(event.TypeReceiptCorrected, r.ID, r.Reference, map[string]interface{}{
		"edited_fields":  strings.Join(report.EditedFields, ","),
		"status":         verdict.Status.String(),
		"previous_state": previous,
	}))
	s.publish(ctx, c)

	s.logger.Info("Receipt corrected", "id", id, "edited_fields", len(report.EditedFields), "status", verdict.Status)
	return r, nil
}

// Review resolves a needs_review receipt
func (s *receiptServiceImpl) Review(ctx context.Context, id int64, accept bool, actor, note string) (*receipt.Record, error) {
	r, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := requireState(r, workflow.StateNeedsReview); err != nil {
		return nil, err
	}

	cond := workflow.ConditionUserRejected
	if accept {
		effective := r.EffectiveExtraction()
		if effective == nil {
			return nil, fmt.Errorf("%w: no extracted data", ErrReceiptBlocked)
		}
		verdict := s.validator.Validate(*effective)
		if verdict.IsBlocked() {
			return nil, fmt.Errorf("%w: %s", ErrReceiptBlocked, verdict.BlockingReason)
		}
		applyVerdict(r, verdict)
		cond = workflow.ConditionUserReviewed
	}

	c := &change{actor: actorOrDefault(actor)}
	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		return s.move(txCtx, r, cond, false, note, c)
	})
	if err != nil {
		s.logger.Error("Failed to review receipt", "error", err, "id", id, "accept", accept)
		return nil, err
	}
	s.publish(ctx, c)

	s.logger.Info("Receipt reviewed", "id", id, "accept", accept, "state", r.State)
	return r, nil
}

// Confirm approves a receipt. Approval requires data that validates and passes the confirm gate.
func (s *receiptServiceImpl) Confirm(ctx context.Context, id int64, actor string) (*receipt.Record, error) {
	r, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	effective := receipt.Extraction{}
	if e := r.EffectiveExtraction(); e != nil {
		effective = *e
	}
	verdict := s.validator.Validate(effective)
	decision := gate.CanConfirm(effective)
	passed := verdict.CanProceed && decision.Allowed

	if result := workflow.TransitionState(r.State, workflow.StateApproved, passed); !result.Success {
		err := result.Err()
		if errors.Is(err, workflow.ErrValidationRequired) {
			reason := decision.Reason
			if reason == "" {
				reason = verdict.BlockingReason
			}
			err = fmt.Errorf("%w: %s", err, reason)
		}
		return nil, err
	}

	applyVerdict(r, verdict)
	c := &change{actor: actorOrDefault(actor)}
	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		return s.move(txCtx, r, workflow.ConditionUserConfirmed, passed, "", c)
	})
	if err != nil {
		s.logger.Error("Failed to approve receipt", "error", err, "id", id)
		return nil, err
	}
	s.publish(ctx, c)

	s.logger.Info("Receipt approved", "id", id, "confidence", verdict.RealConfidence)
	return r, nil
}

// StageInventory maps the approved items and leaves the receipt waiting for payment.
// Stock and cash are untouched until the receipt is paid.
func (s *receiptServiceImpl) StageInventory(ctx context.Context, id int64, actor string) (*receipt.Record, error) {
	r, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := requireState(r, workflow.StateApproved); err != nil {
		return nil, err
	}

	effective := r.EffectiveExtraction()
	if effective == nil {
		return nil, fmt.Errorf("%w: no extracted data", ErrReceiptBlocked)
	}
	if decision := gate.CanConfirm(*effective); !decision.Allowed {
		return nil, fmt.Errorf("%w: %s", ErrReceiptBlocked, decision.Reason)
	}
	staged := validation.ValidItemCount(*effective)

	c := &change{actor: actorOrDefault(actor)}
	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		note := fmt.Sprintf("%d item(s) staged", staged)
		if err := s.move(txCtx, r, workflow.ConditionInventoryUpdated, false, note, c); err != nil {
			return err
		}
		return s.move(txCtx, r, workflow.ConditionInventorySuccess, false, "", c)
	})
	if err != nil {
		s.logger.Error("Failed to stage inventory", "error", err, "id", id)
		return nil, err
	}
	s.publish(ctx, c)

	s.logger.Info("Inventory staged", "id", id, "items", staged)
	return r, nil
}

// RegisterPayment marks the receipt paid
func (s *receiptServiceImpl) RegisterPayment(ctx context.Context, id int64, reference, actor string) (*receipt.Record, error) {
	r, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := requireState(r, workflow.StatePaymentPending); err != nil {
		return nil, err
	}

	r.PaymentReference = strings.TrimSpace(reference)
	c := &change{actor: actorOrDefault(actor)}
	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		return s.move(txCtx, r, workflow.ConditionPaymentRegistered, false, r.PaymentReference, c)
	})
	if err != nil {
		s.logger.Error("Failed to register payment", "error", err, "id", id)
		return nil, err
	}
	s.publish(ctx, c)

	s.logger.Info("Payment registered", "id", id, "reference", r.PaymentReference)
	return r, nil
}

// ApplyInventory writes stock and cash movements exactly once for a paid receipt
func (s *receiptServiceImpl) ApplyInventory(ctx context.Context, id int64, actor string) (*gate.InventoryPayload, error) {
	r, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	app := gate.PrepareForInventoryApplication(r)
	if !app.CanApply {
		if r.InventoryApplied() {
			return nil, fmt.Errorf("%w: %s", ErrInventoryAlreadyApplied, app.Reason)
		}
		return nil, fmt.Errorf("%w: %s", ErrInventoryNotAllowed, app.Reason)
	}

	now := s.now()
	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.receiptRepo.MarkInventoryApplied(txCtx, r.ID, now); err != nil {
			return err
		}
		if err := s.ledger.RecordMovements(txCtx, app.Data); err != nil {
			return fmt.Errorf("record movements: %w", err)
		}
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to apply inventory", "error", err, "id", id)
		return nil, err
	}
	r.InventoryAppliedAt = &now

	s.publish(ctx, &change{
		actor: actorOrDefault(actor),
		events: []*event.Event{event.NewEvent(event.TypeInventoryApplied, r.ID, r.Reference, map[string]interface{}{
			"lines": len(app.Data.Items),
			"total": app.Data.Total.String(),
			"actor": actorOrDefault(actor),
		})},
	})

	s.logger.Info("Inventory applied", "id", id, "lines", len(app.Data.Items), "total", app.Data.Total.String())
	return app.Data, nil
}

// Archive closes a paid receipt whose inventory was applied
func (s *receiptServiceImpl) Archive(ctx context.Context, id int64, actor string) (*receipt.Record, error) {
	r, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return r, s.archive(ctx, r, actorOrDefault(actor))
}

func (s *receiptServiceImpl) archive(ctx context.Context, r *receipt.Record, actor string) error {
	if err := requireState(r, workflow.StatePaid); err != nil {
		return err
	}
	if !r.InventoryApplied() {
		return fmt.Errorf("%w: receipt %s", ErrInventoryPending, r.Reference)
	}

	c := &change{actor: actor}
	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		return s.move(txCtx, r, workflow.ConditionDayClosed, false, "", c)
	})
	if err != nil {
		s.logger.Error("Failed to archive receipt", "error", err, "id", r.ID)
		return err
	}

	c.events = append(c.events, event.NewEvent(event.TypeReceiptArchived, r.ID, r.Reference, nil))
	s.publish(ctx, c)
	return nil
}

// CloseDay archives paid receipts with inventory applied that were paid before cutoff
func (s *receiptServiceImpl) CloseDay(ctx context.Context, cutoff time.Time) (int, error) {
	records, err := s.receiptRepo.ListArchivable(ctx, cutoff, s.archiveBatch)
	if err != nil {
		s.logger.Error("Failed to list archivable receipts", "error", err)
		return 0, err
	}

	archived := 0
	for _, r := range records {
		if err := ctx.Err(); err != nil {
			return archived, err
		}
		if err := s.archive(ctx, r, ActorSystem); err != nil {
			if errors.Is(err, ErrStateConflict) {
				continue
			}
			return archived, err
		}
		archived++
	}

	s.logger.Info("Day closed", "cutoff", cutoff, "archived", archived)
	return archived, nil
}

// Get retrieves a receipt by id
func (s *receiptServiceImpl) Get(ctx context.Context, id int64) (*receipt.Record, error) {
	return s.load(ctx, id)
}

// List retrieves receipts matching the filter
func (s *receiptServiceImpl) List(ctx context.Context, filter receipt.ListFilter) ([]*receipt.Record, error) {
	if filter.State != "" && !filter.State.IsValid() {
		return nil, fmt.Errorf("%w: unknown state %q", ErrInvalidInput, filter.State)
	}
	if filter.Limit <= 0 || filter.Limit > 500 {
		filter.Limit = 50
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	records, err := s.receiptRepo.List(ctx, filter)
	if err != nil {
		s.logger.Error("Failed to list receipts", "error", err)
		return nil, err
	}
	return records, nil
}

// History returns the transition audit trail of a receipt
func (s *receiptServiceImpl) History(ctx context.Context, id int64) ([]*receipt.StateHistory, error) {
	if _, err := s.load(ctx, id); err != nil {
		return nil, err
	}
	return s.historyRepo.GetByReceiptID(ctx, id)
}

// Validate scores and validates an extraction without touching any record
func (s *receiptServiceImpl) Validate(e receipt.Extraction) validation.ValidationResult {
	return s.validator.Validate(e)
}

func imagePath(restaurantID string, at time.Time, hash, mimeType string) string {
	return path.Join(SanitizeName(restaurantID), at.Format("2006-01-02"), hash+extensionFor(mimeType))
}
