package receipt

import (
	"time"

	"github.com/garyjia/restaurant-receipts/internal/domain/workflow"
	"github.com/google/uuid"
)

// CaptureSource identifies how a receipt image entered the system
type CaptureSource string

const (
	SourceCamera CaptureSource = "camera"
	SourceUpload CaptureSource = "upload"
	SourceEmail  CaptureSource = "email"
	SourceAPI    CaptureSource = "api"
)

// IsValid checks if the source is one of the defined constants
func (s CaptureSource) IsValid() bool {
	switch s {
	case SourceCamera, SourceUpload, SourceEmail, SourceAPI:
		return true
	default:
		return false
	}
}

// Record is the long-lived receipt entity
type Record struct {
	ID                 int64          `json:"id"`
	Reference          string         `json:"reference"`
	RestaurantID       string         `json:"restaurant_id"`
	State              workflow.State `json:"state"`
	OriginalExtraction *Extraction    `json:"original_extraction,omitempty"`
	UserCorrected      *Extraction    `json:"user_corrected,omitempty"`
	HasManualEdits     bool           `json:"has_manual_edits"`
	EditedFields       []string       `json:"edited_fields"`
	ConfidenceScore    int            `json:"confidence_score"`
	ValidationStatus   string         `json:"validation_status"`
	ValidationIssues   []string       `json:"validation_issues"`
	CaptureHashes      []string       `json:"capture_hashes"`
	CaptureSource      CaptureSource  `json:"capture_source"`
	ImagePaths         []string       `json:"image_paths"`
	PaymentReference   string         `json:"payment_reference,omitempty"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
	ExtractedAt        *time.Time     `json:"extracted_at,omitempty"`
	ConfirmedAt        *time.Time     `json:"confirmed_at,omitempty"`
	ApprovedAt         *time.Time     `json:"approved_at,omitempty"`
	PaidAt             *time.Time     `json:"paid_at,omitempty"`
	InventoryAppliedAt *time.Time     `json:"inventory_applied_at,omitempty"`
	ArchivedAt         *time.Time     `json:"archived_at,omitempty"`
}

// NewRecord creates a freshly captured receipt in the uploaded state
func NewRecord(restaurantID string, source CaptureSource, hashes, imagePaths []string, now time.Time) *Record {
	return &Record{
		Reference:     uuid.NewString(),
		RestaurantID:  restaurantID,
		State:         workflow.StateUploaded,
		CaptureHashes: hashes,
		CaptureSource: source,
		ImagePaths:    imagePaths,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// EffectiveExtraction returns the user corrected data when present, else the original
func (r *Record) EffectiveExtraction() *Extraction {
	if r.UserCorrected != nil {
		return r.UserCorrected
	}
	return r.OriginalExtraction
}

// SetOriginalExtraction stores the first machine output. Later calls are ignored.
func (r *Record) SetOriginalExtraction(e Extraction) bool {
	if r.OriginalExtraction != nil {
		return false
	}
	snapshot := e.Clone()
	r.OriginalExtraction = &snapshot
	return true
}

// EnterState moves the record to s and stamps the timestamp owned by that state
func (r *Record) EnterState(s workflow.State, at time.Time) {
	r.State = s
	r.UpdatedAt = at
	if ts := r.stateTimestamp(s); ts != nil {
		t := at
		*ts = &t
	}
}

// StateTimestamp returns when the record entered s, if that state carries a timestamp
func (r *Record) StateTimestamp(s workflow.State) *time.Time {
	if ts := r.stateTimestamp(s); ts != nil {
		return *ts
	}
	return nil
}

func (r *Record) stateTimestamp(s workflow.State) **time.Time {
	switch s {
	case workflow.StateExtracted:
		return &r.ExtractedAt
	case workflow.StatePendingConfirmation:
		return &r.ConfirmedAt
	case workflow.StateApproved:
		return &r.ApprovedAt
	case workflow.StatePaid:
		return &r.PaidAt
	case workflow.StateArchived:
		return &r.ArchivedAt
	default:
		return nil
	}
}

// InventoryApplied reports whether stock and cash were already written for this receipt
func (r *Record) InventoryApplied() bool {
	return r.InventoryAppliedAt != nil
}

// HasCaptureHash reports whether any of the given hashes belongs to this record
func (r *Record) HasCaptureHash(hashes ...string) bool {
	for _, h := range hashes {
		for _, own := range r.CaptureHashes {
			if h == own {
				return true
			}
		}
	}
	return false
}
