package receipt

import (
	"time"

	"github.com/garyjia/restaurant-receipts/internal/domain/workflow"
)

// StateHistory is the audit trail row written for every lifecycle transition
type StateHistory struct {
	ID            int64              `json:"id"`
	ReceiptID     int64              `json:"receipt_id"`
	PreviousState workflow.State     `json:"previous_state"`
	NewState      workflow.State     `json:"new_state"`
	Condition     workflow.Condition `json:"condition"`
	Actor         string             `json:"actor"`
	Note          string             `json:"note,omitempty"`
	CreatedAt     time.Time          `json:"created_at"`
}

// ListFilter narrows receipt listings
type ListFilter struct {
	State        workflow.State
	RestaurantID string
	Limit        int
	Offset       int
}
