package event

// Type identifies the type of domain event
type Type string

const (
	TypeReceiptCaptured    Type = "receipt.captured"
	TypeReceiptExtracted   Type = "receipt.extracted"
	TypeStateChanged       Type = "receipt.state_changed"
	TypeReceiptCorrected   Type = "receipt.corrected"
	TypeInventoryApplied   Type = "receipt.inventory_applied"
	TypeReceiptArchived    Type = "receipt.archived"
	TypeExtractionRejected Type = "receipt.extraction_rejected"
)

// String returns the string representation of the event type
func (t Type) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants
func (t Type) IsValid() bool {
	switch t {
	case TypeReceiptCaptured,
		TypeReceiptExtracted,
		TypeStateChanged,
		TypeReceiptCorrected,
		TypeInventoryApplied,
		TypeReceiptArchived,
		TypeExtractionRejected:
		return true
	default:
		return false
	}
}
