package http

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/restaurant-receipts/internal/application/port"
	"github.com/garyjia/restaurant-receipts/internal/application/service"
	"github.com/garyjia/restaurant-receipts/internal/domain/gate"
	"github.com/garyjia/restaurant-receipts/internal/domain/receipt"
	"github.com/garyjia/restaurant-receipts/internal/domain/validation"
	"github.com/garyjia/restaurant-receipts/internal/domain/workflow"
)

const (
	// actorHeader names the user performing the action, recorded in history
	actorHeader = "X-Actor"

	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// Handlers contains all HTTP request handlers
type Handlers struct {
	receipts       service.ReceiptService
	exports        service.ExportService
	health         HealthReporter
	maxUploadBytes int64
	logger         Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(
	receipts service.ReceiptService,
	exports service.ExportService,
	health HealthReporter,
	maxUploadBytes int64,
	logger Logger,
) *Handlers {
	return &Handlers{
		receipts:       receipts,
		exports:        exports,
		health:         health,
		maxUploadBytes: maxUploadBytes,
		logger:         logger,
	}
}

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status     string      `json:"status"`
	Timestamp  string      `json:"timestamp"`
	Version    string      `json:"version"`
	Components interface{} `json:"components,omitempty"`
}

// ReceiptResponse is a receipt with its presentation status and the states it may move to
type ReceiptResponse struct {
	*receipt.Record
	Display    workflow.DisplayStatus `json:"display"`
	Effective  *receipt.Extraction    `json:"effective_extraction,omitempty"`
	NextStates []workflow.State       `json:"next_states"`
}

// ValidateResponse is the stateless verdict for an extraction
type ValidateResponse struct {
	Breakdown  validation.ConfidenceBreakdown `json:"breakdown"`
	Validation validation.ValidationResult    `json:"validation"`
	Confirm    gate.ConfirmDecision           `json:"confirm"`
}

// ListReceiptsRequest represents query parameters for listing receipts
type ListReceiptsRequest struct {
	State        string `form:"state"`
	RestaurantID string `form:"restaurant_id"`
	Limit        int    `form:"limit"`
	Offset       int    `form:"offset"`
}

// ReviewRequest is the body of POST /api/receipts/:id/review
type ReviewRequest struct {
	Accept *bool  `json:"accept" binding:"required"`
	Note   string `json:"note"`
}

// PaymentRequest is the body of POST /api/receipts/:id/payment
type PaymentRequest struct {
	Reference string `json:"reference" binding:"required"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	healthy, details := true, interface{}(nil)
	if h.health != nil {
		healthy, details = h.health()
	}

	response := HealthResponse{
		Status:     "healthy",
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		Version:    "1.0.0",
		Components: details,
	}

	status := http.StatusOK
	if !healthy {
		response.Status = "unhealthy"
		status = http.StatusServiceUnavailable
	}

	c.JSON(status, Response{
		Success: healthy,
		Data:    response,
	})
}

// Lifecycle handles GET /api/lifecycle
func (h *Handlers) Lifecycle(c *gin.Context) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    workflow.Lifecycle().All(),
	})
}

// CaptureReceipt handles POST /api/receipts (multipart: files[], restaurant_id, source)
func (h *Handlers) CaptureReceipt(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes)

	form, err := c.MultipartForm()
	if err != nil {
		h.logger.Error("Invalid multipart form", "error", err)
		h.fail(c, http.StatusBadRequest, "invalid multipart form")
		return
	}

	headers := form.File["files"]
	if len(headers) == 0 {
		headers = form.File["files[]"]
	}

	images := make([]port.ReceiptImage, 0, len(headers))
	for _, fh := range headers {
		img, err := readUpload(fh)
		if err != nil {
			h.logger.Error("Failed to read upload", "file", fh.Filename, "error", err)
			h.fail(c, http.StatusBadRequest, "failed to read uploaded file")
			return
		}
		images = append(images, img)
	}

	rec, err := h.receipts.Capture(c.Request.Context(), service.CaptureRequest{
		RestaurantID: c.PostForm("restaurant_id"),
		Source:       receipt.CaptureSource(c.PostForm("source")),
		Images:       images,
		Actor:        c.GetHeader(actorHeader),
	})
	if err != nil {
		h.respondError(c, "capture receipt", err)
		return
	}

	c.JSON(http.StatusCreated, Response{
		Success: true,
		Data:    toReceiptResponse(rec),
	})
}

// ValidateExtraction handles POST /api/receipts/validate. Nothing is stored.
func (h *Handlers) ValidateExtraction(c *gin.Context) {
	e, ok := h.bindExtraction(c)
	if !ok {
		return
	}

	result := h.receipts.Validate(e)
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data: ValidateResponse{
			Breakdown:  result.Breakdown,
			Validation: result,
			Confirm:    gate.CanConfirm(e),
		},
	})
}

// ListReceipts handles GET /api/receipts
func (h *Handlers) ListReceipts(c *gin.Context) {
	filter, ok := h.bindFilter(c)
	if !ok {
		return
	}

	records, err := h.receipts.List(c.Request.Context(), filter)
	if err != nil {
		h.respondError(c, "list receipts", err)
		return
	}

	out := make([]ReceiptResponse, 0, len(records))
	for _, r := range records {
		out = append(out, toReceiptResponse(r))
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    out,
	})
}

// GetReceipt handles GET /api/receipts/:id
func (h *Handlers) GetReceipt(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}

	rec, err := h.receipts.Get(c.Request.Context(), id)
	h.respondRecord(c, "get receipt", rec, err)
}

// GetHistory handles GET /api/receipts/:id/history
func (h *Handlers) GetHistory(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}

	history, err := h.receipts.History(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, "get history", err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    history,
	})
}

// ExtractReceipt handles POST /api/receipts/:id/extract
func (h *Handlers) ExtractReceipt(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}

	rec, err := h.receipts.Extract(c.Request.Context(), id)
	h.respondRecord(c, "extract receipt", rec, err)
}

// CorrectReceipt handles PUT /api/receipts/:id/corrections
func (h *Handlers) CorrectReceipt(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}
	e, ok := h.bindExtraction(c)
	if !ok {
		return
	}

	rec, err := h.receipts.Correct(c.Request.Context(), id, e, c.GetHeader(actorHeader))
	h.respondRecord(c, "correct receipt", rec, err)
}

// ReviewReceipt handles POST /api/receipts/:id/review
func (h *Handlers) ReviewReceipt(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}

	var req ReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid review request", "id", id, "error", err)
		h.fail(c, http.StatusBadRequest, "accept is required")
		return
	}

	rec, err := h.receipts.Review(c.Request.Context(), id, *req.Accept, c.GetHeader(actorHeader), req.Note)
	h.respondRecord(c, "review receipt", rec, err)
}

// ConfirmReceipt handles POST /api/receipts/:id/confirm
func (h *Handlers) ConfirmReceipt(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}

	rec, err := h.receipts.Confirm(c.Request.Context(), id, c.GetHeader(actorHeader))
	h.respondRecord(c, "confirm receipt", rec, err)
}

// StageInventory handles POST /api/receipts/:id/stage-inventory
func (h *Handlers) StageInventory(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}

	rec, err := h.receipts.StageInventory(c.Request.Context(), id, c.GetHeader(actorHeader))
	h.respondRecord(c, "stage inventory", rec, err)
}

// RegisterPayment handles POST /api/receipts/:id/payment
func (h *Handlers) RegisterPayment(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}

	var req PaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid payment request", "id", id, "error", err)
		h.fail(c, http.StatusBadRequest, "reference is required")
		return
	}

	rec, err := h.receipts.RegisterPayment(c.Request.Context(), id, req.Reference, c.GetHeader(actorHeader))
	h.respondRecord(c, "register payment", rec, err)
}

// ApplyInventory handles POST /api/receipts/:id/apply-inventory
func (h *Handlers) ApplyInventory(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}

	payload, err := h.receipts.ApplyInventory(c.Request.Context(), id, c.GetHeader(actorHeader))
	if err != nil {
		h.respondError(c, "apply inventory", err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    payload,
	})
}

// ArchiveReceipt handles POST /api/receipts/:id/archive
func (h *Handlers) ArchiveReceipt(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}

	rec, err := h.receipts.Archive(c.Request.Context(), id, c.GetHeader(actorHeader))
	h.respondRecord(c, "archive receipt", rec, err)
}

// ExportReceipts handles GET /api/exports/receipts.xlsx
func (h *Handlers) ExportReceipts(c *gin.Context) {
	filter, ok := h.bindFilter(c)
	if !ok {
		return
	}

	data, err := h.exports.ExportReceipts(c.Request.Context(), filter)
	if err != nil {
		h.respondError(c, "export receipts", err)
		return
	}

	filename := fmt.Sprintf("recibos_%s.xlsx", time.Now().Format("20060102_150405"))
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Data(http.StatusOK, xlsxContentType, data)
}

func (h *Handlers) parseID(c *gin.Context) (int64, bool) {
	idStr := c.Param("id")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || id <= 0 {
		h.logger.Error("Invalid receipt ID", "id", idStr, "error", err)
		h.fail(c, http.StatusBadRequest, "invalid receipt ID")
		return 0, false
	}
	return id, true
}

// bindExtraction decodes the body leniently; only non-JSON input is refused
func (h *Handlers) bindExtraction(c *gin.Context) (receipt.Extraction, bool) {
	body, err := c.GetRawData()
	if err != nil {
		h.fail(c, http.StatusBadRequest, "failed to read body")
		return receipt.Extraction{}, false
	}

	e, err := receipt.ParseExtraction(body)
	if err != nil {
		h.logger.Error("Invalid extraction body", "error", err)
		h.fail(c, http.StatusBadRequest, "body must be a JSON extraction")
		return receipt.Extraction{}, false
	}
	return e, true
}

func (h *Handlers) bindFilter(c *gin.Context) (receipt.ListFilter, bool) {
	var req ListReceiptsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.logger.Error("Invalid query parameters", "error", err)
		h.fail(c, http.StatusBadRequest, "invalid query parameters")
		return receipt.ListFilter{}, false
	}

	return receipt.ListFilter{
		State:        workflow.State(strings.TrimSpace(req.State)),
		RestaurantID: strings.TrimSpace(req.RestaurantID),
		Limit:        req.Limit,
		Offset:       req.Offset,
	}, true
}

func (h *Handlers) respondRecord(c *gin.Context, action string, rec *receipt.Record, err error) {
	if err != nil {
		h.respondError(c, action, err)
		return
	}
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    toReceiptResponse(rec),
	})
}

// respondError maps service errors to status codes. Messages of client errors
// are passed through; server errors are logged and hidden.
func (h *Handlers) respondError(c *gin.Context, action string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed", "action", action, "error", err)
		h.fail(c, status, fmt.Sprintf("failed to %s", action))
		return
	}
	h.fail(c, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrReceiptNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrInvalidInput),
		errors.Is(err, workflow.ErrInvalidState),
		errors.Is(err, receipt.ErrMalformedExtraction):
		return http.StatusBadRequest
	case errors.Is(err, workflow.ErrInvalidTransition),
		errors.Is(err, workflow.ErrValidationRequired),
		errors.Is(err, service.ErrInventoryAlreadyApplied),
		errors.Is(err, service.ErrStateConflict),
		errors.Is(err, service.ErrDuplicateCapture),
		errors.Is(err, service.ErrReceiptBlocked),
		errors.Is(err, service.ErrInventoryNotAllowed),
		errors.Is(err, service.ErrInventoryPending):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handlers) fail(c *gin.Context, status int, msg string) {
	c.JSON(status, Response{
		Success: false,
		Error:   msg,
	})
}

func toReceiptResponse(r *receipt.Record) ReceiptResponse {
	return ReceiptResponse{
		Record:     r,
		Display:    workflow.GetDisplayStatus(r.State),
		Effective:  r.EffectiveExtraction(),
		NextStates: workflow.NextStates(r.State),
	}
}

func readUpload(fh *multipart.FileHeader) (port.ReceiptImage, error) {
	f, err := fh.Open()
	if err != nil {
		return port.ReceiptImage{}, err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return port.ReceiptImage{}, err
	}

	mimeType := fh.Header.Get("Content-Type")
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = http.DetectContentType(data)
	}

	return port.ReceiptImage{
		Name:     fh.Filename,
		MimeType: mimeType,
		Data:     data,
	}, nil
}
