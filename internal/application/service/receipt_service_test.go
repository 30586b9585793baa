package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/garyjia/restaurant-receipts/internal/application/port"
	"github.com/garyjia/restaurant-receipts/internal/domain/event"
	"github.com/garyjia/restaurant-receipts/internal/domain/gate"
	"github.com/garyjia/restaurant-receipts/internal/domain/receipt"
	"github.com/garyjia/restaurant-receipts/internal/domain/validation"
	"github.com/garyjia/restaurant-receipts/internal/domain/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

// Mock repositories
type mockReceiptRepo struct {
	mu      sync.Mutex
	nextID  int64
	records map[int64]receipt.Record

	getByIDFunc func(ctx context.Context, id int64) (*receipt.Record, error)
	updateFunc  func(ctx context.Context, r *receipt.Record, expected workflow.State) error
}

func newMockReceiptRepo() *mockReceiptRepo {
	return &mockReceiptRepo{records: make(map[int64]receipt.Record)}
}

func (m *mockReceiptRepo) Create(ctx context.Context, r *receipt.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	r.ID = m.nextID
	m.records[r.ID] = *r
	return nil
}

func (m *mockReceiptRepo) GetByID(ctx context.Context, id int64) (*receipt.Record, error) {
	if m.getByIDFunc != nil {
		return m.getByIDFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[id]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (m *mockReceiptRepo) GetByReference(ctx context.Context, reference string) (*receipt.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.records {
		if r.Reference == reference {
			return &r, nil
		}
	}
	return nil, nil
}

func (m *mockReceiptRepo) FindActiveByCaptureHash(ctx context.Context, hashes []string) (*receipt.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.records {
		if r.State != workflow.StateArchived && r.HasCaptureHash(hashes...) {
			return &r, nil
		}
	}
	return nil, nil
}

func (m *mockReceiptRepo) Update(ctx context.Context, r *receipt.Record, expected workflow.State) error {
	if m.updateFunc != nil {
		return m.updateFunc(ctx, r, expected)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.records[r.ID]
	if !ok || stored.State != expected {
		return port.ErrStateConflict
	}
	m.records[r.ID] = *r
	return nil
}

func (m *mockReceiptRepo) MarkInventoryApplied(ctx context.Context, id int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.records[id]
	if !ok || stored.State != workflow.StatePaid || stored.InventoryAppliedAt != nil {
		return port.ErrAlreadyApplied
	}
	stored.InventoryAppliedAt = &at
	m.records[id] = stored
	return nil
}

func (m *mockReceiptRepo) List(ctx context.Context, filter receipt.ListFilter) ([]*receipt.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*receipt.Record{}
	for _, r := range m.records {
		if filter.State != "" && r.State != filter.State {
			continue
		}
		r := r
		out = append(out, &r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *mockReceiptRepo) ListArchivable(ctx context.Context, cutoff time.Time, limit int) ([]*receipt.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*receipt.Record{}
	for _, r := range m.records {
		if r.State == workflow.StatePaid && r.InventoryApplied() && r.PaidAt != nil && r.PaidAt.Before(cutoff) {
			r := r
			out = append(out, &r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *mockReceiptRepo) stored(id int64) receipt.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.records[id]
}

type mockHistoryRepo struct {
	mu      sync.Mutex
	entries []*receipt.StateHistory

	createFunc func(ctx context.Context, h *receipt.StateHistory) error
}

func (m *mockHistoryRepo) Create(ctx context.Context, h *receipt.StateHistory) error {
	if m.createFunc != nil {
		return m.createFunc(ctx, h)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	h.ID = int64(len(m.entries) + 1)
	m.entries = append(m.entries, h)
	return nil
}

func (m *mockHistoryRepo) GetByReceiptID(ctx context.Context, receiptID int64) ([]*receipt.StateHistory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*receipt.StateHistory{}
	for _, h := range m.entries {
		if h.ReceiptID == receiptID {
			out = append(out, h)
		}
	}
	return out, nil
}

type mockLedger struct {
	payloads []*gate.InventoryPayload
}

func (m *mockLedger) RecordMovements(ctx context.Context, payload *gate.InventoryPayload) error {
	m.payloads = append(m.payloads, payload)
	return nil
}

func (m *mockLedger) GetMovements(ctx context.Context, receiptID int64) ([]gate.InventoryLine, error) {
	for _, p := range m.payloads {
		if p.ReceiptID == receiptID {
			return p.Items, nil
		}
	}
	return nil, nil
}

type mockTxManager struct{}

func (m *mockTxManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type mockExtractor struct {
	extractFunc func(ctx context.Context, images []port.ReceiptImage) ([]byte, error)
	calls       int
}

func (m *mockExtractor) Extract(ctx context.Context, images []port.ReceiptImage) ([]byte, error) {
	m.calls++
	if m.extractFunc != nil {
		return m.extractFunc(ctx, images)
	}
	return []byte(`{}`), nil
}

type mockStorage struct {
	files map[string][]byte
}

func (m *mockStorage) Save(ctx context.Context, path string, content []byte) error {
	m.files[path] = content
	return nil
}

func (m *mockStorage) Read(ctx context.Context, path string) ([]byte, error) {
	data, ok := m.files[path]
	if !ok {
		return nil, fmt.Errorf("no such file: %s", path)
	}
	return data, nil
}

func (m *mockStorage) Exists(ctx context.Context, path string) bool {
	_, ok := m.files[path]
	return ok
}

func (m *mockStorage) Delete(ctx context.Context, path string) error {
	delete(m.files, path)
	return nil
}

func (m *mockStorage) GetFullPath(relativePath string) string {
	return "/data/" + relativePath
}

type mockPublisher struct {
	mu     sync.Mutex
	events []*event.Event
}

func (m *mockPublisher) DispatchAllAsync(ctx context.Context, evts []*event.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, evts...)
}

func (m *mockPublisher) types() []event.Type {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]event.Type, 0, len(m.events))
	for _, e := range m.events {
		out = append(out, e.Type)
	}
	return out
}

type mockLogger struct{}

func (m *mockLogger) Info(msg string, keysAndValues ...interface{})  {}
func (m *mockLogger) Error(msg string, keysAndValues ...interface{}) {}

type testEnv struct {
	service   ReceiptService
	receipts  *mockReceiptRepo
	history   *mockHistoryRepo
	ledger    *mockLedger
	extractor *mockExtractor
	storage   *mockStorage
	publisher *mockPublisher
}

func newTestEnv() *testEnv {
	env := &testEnv{
		receipts:  newMockReceiptRepo(),
		history:   &mockHistoryRepo{},
		ledger:    &mockLedger{},
		extractor: &mockExtractor{},
		storage:   &mockStorage{files: map[string][]byte{}},
		publisher: &mockPublisher{},
	}
	clock := func() time.Time { return testNow }
	env.service = NewReceiptService(
		env.receipts,
		env.history,
		env.ledger,
		&mockTxManager{},
		env.extractor,
		env.storage,
		env.publisher,
		validation.NewValidator(validation.WithClock(clock)),
		&mockLogger{},
		WithClock(clock),
	)
	return env
}

const goodExtraction = `{
	"supplier_name": "Distribuidora ABC",
	"total": 100000,
	"date": "2026-10-17",
	"invoice_number": "F-77",
	"items": [
		{"description": "Tomate", "quantity": 10, "unit": "kg", "unit_price": 9500, "subtotal": 95000},
		{"description": "Cebolla", "quantity": 1, "unit": "kg", "unit_price": 5000}
	]
}`

func (env *testEnv) returns(raw string) {
	env.extractor.extractFunc = func(ctx context.Context, images []port.ReceiptImage) ([]byte, error) {
		return []byte(raw), nil
	}
}

func (env *testEnv) capture(t *testing.T, payload string) *receipt.Record {
	t.Helper()
	r, err := env.service.Capture(context.Background(), CaptureRequest{
		RestaurantID: "rest-1",
		Source:       receipt.SourceCamera,
		Images:       []port.ReceiptImage{{Name: "ticket.jpg", MimeType: "image/jpeg", Data: []byte(payload)}},
		Actor:        "ana",
	})
	require.NoError(t, err)
	return r
}

// extracted captures a receipt and runs extraction over raw
func (env *testEnv) extracted(t *testing.T, raw string) *receipt.Record {
	t.Helper()
	env.returns(raw)
	r := env.capture(t, raw)
	r, err := env.service.Extract(context.Background(), r.ID)
	require.NoError(t, err)
	return r
}

// paid walks a clean receipt up to the paid state
func (env *testEnv) paid(t *testing.T) *receipt.Record {
	t.Helper()
	ctx := context.Background()
	r := env.extracted(t, goodExtraction)
	require.Equal(t, workflow.StatePendingConfirmation, r.State)

	_, err := env.service.Confirm(ctx, r.ID, "ana")
	require.NoError(t, err)
	_, err = env.service.StageInventory(ctx, r.ID, "ana")
	require.NoError(t, err)
	r, err = env.service.RegisterPayment(ctx, r.ID, " TRX-9 ", "ana")
	require.NoError(t, err)
	require.Equal(t, workflow.StatePaid, r.State)
	return r
}

func TestCapture(t *testing.T) {
	env := newTestEnv()

	r := env.capture(t, "image-bytes")

	assert.Equal(t, int64(1), r.ID)
	assert.NotEmpty(t, r.Reference)
	assert.Equal(t, workflow.StateUploaded, r.State)
	require.Len(t, r.CaptureHashes, 1)
	require.Len(t, r.ImagePaths, 1)
	assert.Equal(t, "rest-1/2026-10-18/"+r.CaptureHashes[0]+".jpg", r.ImagePaths[0])
	assert.Equal(t, []byte("image-bytes"), env.storage.files[r.ImagePaths[0]])

	history, err := env.service.History(context.Background(), r.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, workflow.State(""), history[0].PreviousState)
	assert.Equal(t, workflow.StateUploaded, history[0].NewState)
	assert.Equal(t, "ana", history[0].Actor)

	assert.Equal(t, []event.Type{event.TypeReceiptCaptured}, env.publisher.types())
}

func TestCapture_RejectsDuplicatesAndBadInput(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	env.capture(t, "same")

	_, err := env.service.Capture(ctx, CaptureRequest{
		RestaurantID: "rest-1",
		Images:       []port.ReceiptImage{{Name: "again.jpg", MimeType: "image/jpeg", Data: []byte("same")}},
	})
	assert.ErrorIs(t, err, ErrDuplicateCapture)

	tests := []struct {
		name string
		req  CaptureRequest
	}{
		{"no restaurant", CaptureRequest{Images: []port.ReceiptImage{{Data: []byte("x")}}}},
		{"no images", CaptureRequest{RestaurantID: "rest-1"}},
		{"empty image", CaptureRequest{RestaurantID: "rest-1", Images: []port.ReceiptImage{{Name: "a"}}}},
		{"bad source", CaptureRequest{RestaurantID: "rest-1", Source: "fax", Images: []port.ReceiptImage{{Data: []byte("y")}}}},
		{"same page twice", CaptureRequest{RestaurantID: "rest-1", Images: []port.ReceiptImage{{Data: []byte("z")}, {Data: []byte("z")}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.service.Capture(ctx, tt.req)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
}

func TestExtract_Routing(t *testing.T) {
	tests := []struct {
		name       string
		raw        string
		wantState  workflow.State
		wantCond   workflow.Condition
		wantStatus validation.Status
	}{
		{
			name:       "clean receipt goes to confirmation",
			raw:        goodExtraction,
			wantState:  workflow.StatePendingConfirmation,
			wantCond:   workflow.ConditionValidationPassed,
			wantStatus: validation.StatusValid,
		},
		{
			name:       "missing supplier blocks",
			raw:        `{"total": 1000, "items": [{"description": "Pan", "quantity": 1, "subtotal": 1000}]}`,
			wantState:  workflow.StateBlocked,
			wantCond:   workflow.ConditionValidationFailed,
			wantStatus: validation.StatusBlocked,
		},
		{
			name:       "missing date needs review",
			raw:        `{"supplier_name": "Panaderia", "total": 1000, "items": [{"description": "Pan", "quantity": 1, "subtotal": 1000}]}`,
			wantState:  workflow.StateNeedsReview,
			wantCond:   workflow.ConditionLowConfidence,
			wantStatus: validation.StatusNeedsReview,
		},
		{
			name: "unreadable line needs review",
			raw: `{"supplier_name": "Distribuidora ABC", "total": 100000, "date": "2026-10-17", "items": [
				{"description": "Tomate", "quantity": 10, "subtotal": 95000},
				{"description": "Cebolla", "quantity": 1, "subtotal": 5000},
				{"description": "", "quantity": 1, "subtotal": 0}
			]}`,
			wantState:  workflow.StateNeedsReview,
			wantCond:   workflow.ConditionUnmappedItems,
			wantStatus: validation.StatusValid,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv()
			r := env.extracted(t, tt.raw)

			assert.Equal(t, tt.wantState, r.State)
			assert.Equal(t, tt.wantStatus.String(), r.ValidationStatus)
			require.NotNil(t, r.OriginalExtraction)
			require.NotNil(t, r.ExtractedAt)

			history, err := env.service.History(context.Background(), r.ID)
			require.NoError(t, err)
			require.Len(t, history, 3)
			assert.Equal(t, workflow.ConditionAIProcessed, history[1].Condition)
			assert.Equal(t, workflow.StateExtracted, history[1].NewState)
			assert.Equal(t, tt.wantCond, history[2].Condition)
			assert.Equal(t, ActorSystem, history[2].Actor)

			stored := env.receipts.stored(r.ID)
			assert.Equal(t, tt.wantState, stored.State)
		})
	}
}

func TestExtract_FailuresBlockTheReceipt(t *testing.T) {
	failures := map[string]func(ctx context.Context, images []port.ReceiptImage) ([]byte, error){
		"extractor error": func(ctx context.Context, images []port.ReceiptImage) ([]byte, error) {
			return nil, errors.New("model unavailable")
		},
		"not json": func(ctx context.Context, images []port.ReceiptImage) ([]byte, error) {
			return []byte("lo siento, no puedo leer la imagen"), nil
		},
	}

	for name, fn := range failures {
		t.Run(name, func(t *testing.T) {
			env := newTestEnv()
			r := env.capture(t, "img")
			env.extractor.extractFunc = fn

			r, err := env.service.Extract(context.Background(), r.ID)
			require.NoError(t, err)
			assert.Equal(t, workflow.StateBlocked, r.State)
			assert.Equal(t, validation.StatusError.String(), r.ValidationStatus)
			assert.Nil(t, r.OriginalExtraction)
			assert.Contains(t, env.publisher.types(), event.TypeExtractionRejected)

			history, _ := env.service.History(context.Background(), r.ID)
			assert.Equal(t, workflow.ConditionCriticalDataMissing, history[len(history)-1].Condition)
		})
	}
}

func TestExtract_CancelledLeavesStateUntouched(t *testing.T) {
	env := newTestEnv()
	r := env.capture(t, "img")
	env.extractor.extractFunc = func(ctx context.Context, images []port.ReceiptImage) ([]byte, error) {
		return nil, context.Canceled
	}

	_, err := env.service.Extract(context.Background(), r.ID)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, workflow.StateUploaded, env.receipts.stored(r.ID).State)
}

func TestExtract_OnlyFromUploaded(t *testing.T) {
	env := newTestEnv()
	r := env.extracted(t, goodExtraction)

	_, err := env.service.Extract(context.Background(), r.ID)
	assert.ErrorIs(t, err, workflow.ErrInvalidTransition)
	assert.Equal(t, 1, env.extractor.calls)

	_, err = env.service.Extract(context.Background(), 999)
	assert.ErrorIs(t, err, ErrReceiptNotFound)
}

func TestFullLifecycle(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	r := env.paid(t)
	assert.Equal(t, "TRX-9", r.PaymentReference)
	assert.NotNil(t, r.ApprovedAt)
	assert.NotNil(t, r.PaidAt)
	assert.Empty(t, env.ledger.payloads, "nothing touches stock before applying")

	payload, err := env.service.ApplyInventory(ctx, r.ID, "ana")
	require.NoError(t, err)
	assert.Len(t, payload.Items, 2)
	assert.Equal(t, "TRX-9", payload.PaymentReference)
	require.Len(t, env.ledger.payloads, 1)

	_, err = env.service.ApplyInventory(ctx, r.ID, "ana")
	assert.ErrorIs(t, err, ErrInventoryAlreadyApplied)
	assert.Len(t, env.ledger.payloads, 1)

	r, err = env.service.Archive(ctx, r.ID, "ana")
	require.NoError(t, err)
	assert.Equal(t, workflow.StateArchived, r.State)
	assert.True(t, r.State.IsTerminal())

	history, err := env.service.History(ctx, r.ID)
	require.NoError(t, err)
	states := make([]workflow.State, 0, len(history))
	for _, h := range history {
		states = append(states, h.NewState)
	}
	assert.Equal(t, []workflow.State{
		workflow.StateUploaded,
		workflow.StateExtracted,
		workflow.StatePendingConfirmation,
		workflow.StateApproved,
		workflow.StateAppliedInventory,
		workflow.StatePaymentPending,
		workflow.StatePaid,
		workflow.StateArchived,
	}, states)

	assert.Contains(t, env.publisher.types(), event.TypeInventoryApplied)
	assert.Contains(t, env.publisher.types(), event.TypeReceiptArchived)
}

func TestApplyInventory_RefusedBeforePayment(t *testing.T) {
	env := newTestEnv()
	r := env.extracted(t, goodExtraction)

	_, err := env.service.ApplyInventory(context.Background(), r.ID, "ana")
	assert.ErrorIs(t, err, ErrInventoryNotAllowed)
	assert.Empty(t, env.ledger.payloads)
}

func TestArchive_RequiresAppliedInventory(t *testing.T) {
	env := newTestEnv()
	r := env.paid(t)

	_, err := env.service.Archive(context.Background(), r.ID, "ana")
	assert.ErrorIs(t, err, ErrInventoryPending)
	assert.Equal(t, workflow.StatePaid, env.receipts.stored(r.ID).State)
}

func TestConfirm_Guards(t *testing.T) {
	ctx := context.Background()

	t.Run("not from needs_review", func(t *testing.T) {
		env := newTestEnv()
		r := env.extracted(t, `{"supplier_name": "Panaderia", "total": 1000, "items": [{"description": "Pan", "quantity": 1, "subtotal": 1000}]}`)
		require.Equal(t, workflow.StateNeedsReview, r.State)

		_, err := env.service.Confirm(ctx, r.ID, "ana")
		assert.ErrorIs(t, err, workflow.ErrInvalidTransition)
	})

	t.Run("not on blocked data", func(t *testing.T) {
		env := newTestEnv()
		r := env.extracted(t, goodExtraction)
		stored := env.receipts.stored(r.ID)
		stored.UserCorrected = &receipt.Extraction{SupplierName: receipt.Ptr("X")}
		env.receipts.records[r.ID] = stored

		_, err := env.service.Confirm(ctx, r.ID, "ana")
		assert.ErrorIs(t, err, workflow.ErrValidationRequired)
		assert.Equal(t, workflow.StatePendingConfirmation, env.receipts.stored(r.ID).State)
	})

	t.Run("not on zero item amounts", func(t *testing.T) {
		env := newTestEnv()
		r := env.extracted(t, goodExtraction)
		stored := env.receipts.stored(r.ID)
		corrected := stored.OriginalExtraction.Clone()
		corrected.Items[1].UnitPrice = 0
		stored.UserCorrected = &corrected
		env.receipts.records[r.ID] = stored

		_, err := env.service.Confirm(ctx, r.ID, "ana")
		assert.ErrorIs(t, err, workflow.ErrValidationRequired)
	})
}

func TestMove_FailureLeavesRecordUntouched(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name  string
		setup func(env *testEnv)
	}{
		{
			name: "update conflict",
			setup: func(env *testEnv) {
				env.receipts.updateFunc = func(ctx context.Context, r *receipt.Record, expected workflow.State) error {
					return port.ErrStateConflict
				}
			},
		},
		{
			name: "history write fails",
			setup: func(env *testEnv) {
				env.history.createFunc = func(ctx context.Context, h *receipt.StateHistory) error {
					return errors.New("disk full")
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv()
			r := env.extracted(t, goodExtraction)
			require.Equal(t, workflow.StatePendingConfirmation, r.State)
			before := *r
			tt.setup(env)

			svc := env.service.(*receiptServiceImpl)
			svc.now = func() time.Time { return testNow.Add(time.Hour) }

			err := svc.move(ctx, r, workflow.ConditionUserConfirmed, true, "", &change{actor: "ana"})
			require.Error(t, err)

			assert.Equal(t, workflow.StatePendingConfirmation, r.State)
			assert.Nil(t, r.ApprovedAt)
			assert.Equal(t, before.UpdatedAt, r.UpdatedAt)
		})
	}
}

func TestCorrect(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	r := env.extracted(t, goodExtraction)
	require.Equal(t, workflow.StatePendingConfirmation, r.State)

	corrected := r.OriginalExtraction.Clone()
	corrected.SupplierName = receipt.Ptr("Distribuidora ABC Ltda")
	corrected.Items[1].Quantity = 2
	corrected.Items[1].Subtotal = receipt.Ptr(10000.0)
	corrected.Total = receipt.Ptr(105000.0)

	r, err := env.service.Correct(ctx, r.ID, corrected, "ana")
	require.NoError(t, err)

	assert.Equal(t, workflow.StateNeedsReview, r.State)
	assert.True(t, r.HasManualEdits)
	assert.Equal(t, []string{"supplier_name", "total", "items[1].quantity"}, r.EditedFields)
	assert.Equal(t, "Distribuidora ABC", *r.OriginalExtraction.SupplierName, "original is never overwritten")
	assert.Equal(t, "Distribuidora ABC Ltda", *r.EffectiveExtraction().SupplierName)
	assert.Equal(t, validation.StatusValid.String(), r.ValidationStatus)

	r, err = env.service.Review(ctx, r.ID, true, "jefe", "revisado")
	require.NoError(t, err)
	assert.Equal(t, workflow.StatePendingConfirmation, r.State)

	r, err = env.service.Confirm(ctx, r.ID, "jefe")
	require.NoError(t, err)
	assert.Equal(t, workflow.StateApproved, r.State)

	_, err = env.service.Correct(ctx, r.ID, corrected, "ana")
	assert.ErrorIs(t, err, workflow.ErrInvalidTransition)
}

func TestReview(t *testing.T) {
	ctx := context.Background()
	needsReview := `{"supplier_name": "Panaderia", "total": 1000, "items": [{"description": "Pan", "quantity": 1, "subtotal": 1000}]}`

	t.Run("reject blocks", func(t *testing.T) {
		env := newTestEnv()
		r := env.extracted(t, needsReview)

		r, err := env.service.Review(ctx, r.ID, false, "jefe", "no corresponde")
		require.NoError(t, err)
		assert.Equal(t, workflow.StateBlocked, r.State)

		history, _ := env.service.History(ctx, r.ID)
		last := history[len(history)-1]
		assert.Equal(t, workflow.ConditionUserRejected, last.Condition)
		assert.Equal(t, "no corresponde", last.Note)
	})

	t.Run("accept refuses blocked data", func(t *testing.T) {
		env := newTestEnv()
		r := env.extracted(t, needsReview)
		_, err := env.service.Correct(ctx, r.ID, receipt.Extraction{Total: receipt.Ptr(1000.0)}, "ana")
		require.NoError(t, err)

		_, err = env.service.Review(ctx, r.ID, true, "jefe", "")
		assert.ErrorIs(t, err, ErrReceiptBlocked)
		assert.Equal(t, workflow.StateNeedsReview, env.receipts.stored(r.ID).State)
	})

	t.Run("only from needs_review", func(t *testing.T) {
		env := newTestEnv()
		r := env.extracted(t, goodExtraction)
		_, err := env.service.Review(ctx, r.ID, true, "jefe", "")
		assert.ErrorIs(t, err, workflow.ErrInvalidTransition)
	})
}

func TestMove_StateConflict(t *testing.T) {
	env := newTestEnv()
	r := env.extracted(t, goodExtraction)
	env.receipts.updateFunc = func(ctx context.Context, r *receipt.Record, expected workflow.State) error {
		return port.ErrStateConflict
	}

	_, err := env.service.Confirm(context.Background(), r.ID, "ana")
	assert.ErrorIs(t, err, ErrStateConflict)
}

func TestCloseDay(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	applied := env.paid(t)
	_, err := env.service.ApplyInventory(ctx, applied.ID, "ana")
	require.NoError(t, err)

	env.returns(goodExtraction)
	other := env.capture(t, "other-image")
	_, err = env.service.Extract(ctx, other.ID)
	require.NoError(t, err)

	archived, err := env.service.CloseDay(ctx, testNow.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, archived)
	assert.Equal(t, workflow.StateArchived, env.receipts.stored(applied.ID).State)
	assert.Equal(t, workflow.StatePendingConfirmation, env.receipts.stored(other.ID).State)

	archived, err = env.service.CloseDay(ctx, testNow.Add(time.Hour))
	require.NoError(t, err)
	assert.Zero(t, archived)
}

func TestList(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	env.capture(t, "a")
	env.extracted(t, goodExtraction)

	all, err := env.service.List(ctx, receipt.ListFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	uploaded, err := env.service.List(ctx, receipt.ListFilter{State: workflow.StateUploaded})
	require.NoError(t, err)
	assert.Len(t, uploaded, 1)

	_, err = env.service.List(ctx, receipt.ListFilter{State: "lost"})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestSanitizeName(t *testing.T) {
	assert.Equal(t, "rest-1", SanitizeName("rest-1"))
	assert.Equal(t, "etcpasswd", SanitizeName("../../etc/passwd"))
	assert.Equal(t, "unknown", SanitizeName("///"))
	assert.Equal(t, ".pdf", extensionFor("application/pdf"))
	assert.Equal(t, ".jpg", extensionFor("image/jpeg; charset=binary"))
	assert.Equal(t, "image/png", mimeFromPath("a/b/c.PNG"))
}
