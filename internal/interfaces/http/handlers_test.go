package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/garyjia/restaurant-receipts/internal/application/port"
	"github.com/garyjia/restaurant-receipts/internal/application/service"
	"github.com/garyjia/restaurant-receipts/internal/domain/event"
	"github.com/garyjia/restaurant-receipts/internal/domain/validation"
	"github.com/garyjia/restaurant-receipts/internal/domain/workflow"
	"github.com/garyjia/restaurant-receipts/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/restaurant-receipts/internal/infrastructure/storage"
	"github.com/garyjia/restaurant-receipts/pkg/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

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

var testNow = time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

type nopLogger struct{}

func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}

type stubExtractor struct {
	raw string
}

func (s *stubExtractor) Extract(ctx context.Context, images []port.ReceiptImage) ([]byte, error) {
	return []byte(s.raw), nil
}

type nopPublisher struct{}

func (nopPublisher) DispatchAllAsync(context.Context, []*event.Event) {}

type testAPI struct {
	router    http.Handler
	extractor *stubExtractor
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	logger := zap.NewNop()

	conn, err := database.New(database.Config{Path: ":memory:"}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.NoError(t, database.NewMigrator(conn, logger).RunEmbedded())

	db := sqlite.NewDB(conn.DB, logger)
	extractor := &stubExtractor{raw: goodExtraction}
	clock := func() time.Time { return testNow }

	receipts := service.NewReceiptService(
		sqlite.NewReceiptRepository(db, logger),
		sqlite.NewHistoryRepository(db, logger),
		sqlite.NewLedgerRepository(db, logger),
		db,
		extractor,
		storage.NewLocalFileStorage(t.TempDir(), logger),
		nopPublisher{},
		validation.NewValidator(validation.WithClock(clock)),
		nopLogger{},
		service.WithClock(clock),
	)
	exports := service.NewExportService(receipts, nopLogger{})

	server := NewServer(DefaultServerConfig(), receipts, exports, nil, nopLogger{})
	return &testAPI{router: server.Router(), extractor: extractor}
}

func (api *testAPI) do(t *testing.T, method, path string, body []byte, contentType string) (*httptest.ResponseRecorder, Response) {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set(actorHeader, "ana")

	w := httptest.NewRecorder()
	api.router.ServeHTTP(w, req)

	var resp Response
	if w.Header().Get("Content-Type") != xlsxContentType {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	}
	return w, resp
}

func (api *testAPI) capture(t *testing.T, content string) (int64, *httptest.ResponseRecorder) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("restaurant_id", "rest-1"))
	require.NoError(t, mw.WriteField("source", "camera"))
	fw, err := mw.CreateFormFile("files", "ticket.jpg")
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	w, resp := api.do(t, http.MethodPost, "/api/receipts", buf.Bytes(), mw.FormDataContentType())
	if w.Code != http.StatusCreated {
		return 0, w
	}
	data := resp.Data.(map[string]interface{})
	return int64(data["id"].(float64)), w
}

func state(t *testing.T, resp Response) string {
	t.Helper()
	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok, "response has no record")
	return data["state"].(string)
}

func TestHealthCheck(t *testing.T) {
	api := newTestAPI(t)
	w, resp := api.do(t, http.MethodGet, "/health", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, resp.Success)
}

func TestHealthCheck_Unhealthy(t *testing.T) {
	server := NewServer(DefaultServerConfig(), nil, nil, func() (bool, interface{}) {
		return false, map[string]string{"database": "down"}
	}, nopLogger{})

	w := httptest.NewRecorder()
	server.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "unhealthy")
}

func TestValidateEndpoint(t *testing.T) {
	api := newTestAPI(t)

	w, resp := api.do(t, http.MethodPost, "/api/receipts/validate", []byte(goodExtraction), "application/json")
	require.Equal(t, http.StatusOK, w.Code)
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, "valid", data["validation"].(map[string]interface{})["status"])
	assert.Equal(t, true, data["confirm"].(map[string]interface{})["allowed"])
	assert.GreaterOrEqual(t, data["breakdown"].(map[string]interface{})["weighted"].(float64), float64(validation.DefaultReviewThreshold))

	w, resp = api.do(t, http.MethodPost, "/api/receipts/validate", []byte(`{"total": "abc"}`), "application/json")
	require.Equal(t, http.StatusOK, w.Code)
	data = resp.Data.(map[string]interface{})
	assert.Equal(t, "blocked", data["validation"].(map[string]interface{})["status"])
	assert.Equal(t, false, data["confirm"].(map[string]interface{})["allowed"])

	w, resp = api.do(t, http.MethodPost, "/api/receipts/validate", []byte(`not json`), "application/json")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.False(t, resp.Success)
}

func TestReceiptLifecycleOverHTTP(t *testing.T) {
	api := newTestAPI(t)

	id, w := api.capture(t, "jpeg-bytes")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	base := fmt.Sprintf("/api/receipts/%d", id)

	w, resp := api.do(t, http.MethodPost, base+"/extract", nil, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, string(workflow.StatePendingConfirmation), state(t, resp))

	w, resp = api.do(t, http.MethodPost, base+"/confirm", nil, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, string(workflow.StateApproved), state(t, resp))

	w, _ = api.do(t, http.MethodPost, base+"/apply-inventory", nil, "")
	assert.Equal(t, http.StatusConflict, w.Code, "inventory refused before payment")

	w, resp = api.do(t, http.MethodPost, base+"/stage-inventory", nil, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, string(workflow.StatePaymentPending), state(t, resp))

	w, _ = api.do(t, http.MethodPost, base+"/payment", []byte(`{}`), "application/json")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, resp = api.do(t, http.MethodPost, base+"/payment", []byte(`{"reference":"TRX-1"}`), "application/json")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, string(workflow.StatePaid), state(t, resp))

	w, resp = api.do(t, http.MethodPost, base+"/apply-inventory", nil, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	payload := resp.Data.(map[string]interface{})
	assert.Equal(t, "Distribuidora ABC", payload["supplier_name"])
	assert.Len(t, payload["items"], 2)

	w, _ = api.do(t, http.MethodPost, base+"/apply-inventory", nil, "")
	assert.Equal(t, http.StatusConflict, w.Code, "second application refused")

	w, resp = api.do(t, http.MethodPost, base+"/archive", nil, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, string(workflow.StateArchived), state(t, resp))

	w, resp = api.do(t, http.MethodGet, base+"/history", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, resp.Data, 8)

	w, resp = api.do(t, http.MethodGet, base, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, "Archivado", data["display"].(map[string]interface{})["label"])
	assert.Nil(t, data["next_states"])
}

func TestReviewAndCorrections(t *testing.T) {
	api := newTestAPI(t)
	api.extractor.raw = `{"supplier_name": "Distribuidora ABC", "total": 100000, "items": []}`

	id, w := api.capture(t, "jpeg-bytes")
	require.Equal(t, http.StatusCreated, w.Code)
	base := fmt.Sprintf("/api/receipts/%d", id)

	w, resp := api.do(t, http.MethodPost, base+"/extract", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, string(workflow.StateBlocked), state(t, resp))

	w, _ = api.do(t, http.MethodPost, base+"/confirm", nil, "")
	assert.Equal(t, http.StatusConflict, w.Code)

	w, _ = api.do(t, http.MethodPut, base+"/corrections", []byte(goodExtraction), "application/json")
	assert.Equal(t, http.StatusConflict, w.Code, "blocked receipts cannot be corrected")

	api.extractor.raw = `{"supplier_name": "Panaderia", "total": 1000, "items": [{"description": "Pan", "quantity": 1, "subtotal": 1000}]}`
	id, w = api.capture(t, "other-bytes")
	require.Equal(t, http.StatusCreated, w.Code)
	base = fmt.Sprintf("/api/receipts/%d", id)

	w, resp = api.do(t, http.MethodPost, base+"/extract", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, string(workflow.StateNeedsReview), state(t, resp))

	w, _ = api.do(t, http.MethodPost, base+"/review", []byte(`{}`), "application/json")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, resp = api.do(t, http.MethodPut, base+"/corrections", []byte(goodExtraction), "application/json")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, true, data["has_manual_edits"])

	w, resp = api.do(t, http.MethodPost, base+"/review", []byte(`{"accept": true}`), "application/json")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, string(workflow.StatePendingConfirmation), state(t, resp))
}

func TestCaptureErrors(t *testing.T) {
	api := newTestAPI(t)

	_, w := api.capture(t, "same-bytes")
	require.Equal(t, http.StatusCreated, w.Code)

	_, w = api.capture(t, "same-bytes")
	assert.Equal(t, http.StatusConflict, w.Code, "duplicate capture")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("restaurant_id", "rest-1"))
	require.NoError(t, mw.Close())
	w, resp := api.do(t, http.MethodPost, "/api/receipts", buf.Bytes(), mw.FormDataContentType())
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.False(t, resp.Success)
}

func TestNotFoundAndBadID(t *testing.T) {
	api := newTestAPI(t)

	w, resp := api.do(t, http.MethodGet, "/api/receipts/999", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, service.ErrReceiptNotFound.Error(), resp.Error)

	w, _ = api.do(t, http.MethodGet, "/api/receipts/abc", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = api.do(t, http.MethodGet, "/api/receipts?state=lost", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListLifecycleAndExport(t *testing.T) {
	api := newTestAPI(t)
	_, w := api.capture(t, "a")
	require.Equal(t, http.StatusCreated, w.Code)
	_, w = api.capture(t, "b")
	require.Equal(t, http.StatusCreated, w.Code)

	w, resp := api.do(t, http.MethodGet, "/api/receipts?state=uploaded&limit=1", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, resp.Data, 1)

	w, resp = api.do(t, http.MethodGet, "/api/lifecycle", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, resp.Data, len(workflow.Lifecycle().All()))

	w, _ = api.do(t, http.MethodGet, "/api/exports/receipts.xlsx", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "recibos_")

	f, err := excelize.OpenReader(bytes.NewReader(w.Body.Bytes()))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows("Recibos")
	require.NoError(t, err)
	assert.Len(t, rows, 3)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{service.ErrReceiptNotFound, http.StatusNotFound},
		{fmt.Errorf("wrap: %w", service.ErrInvalidInput), http.StatusBadRequest},
		{fmt.Errorf("wrap: %w", workflow.ErrInvalidTransition), http.StatusConflict},
		{workflow.ErrValidationRequired, http.StatusConflict},
		{service.ErrInventoryAlreadyApplied, http.StatusConflict},
		{service.ErrStateConflict, http.StatusConflict},
		{service.ErrDuplicateCapture, http.StatusConflict},
		{fmt.Errorf("disk full"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}
