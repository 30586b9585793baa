package gate

import (
	"fmt"

	"github.com/garyjia/restaurant-receipts/internal/domain/receipt"
)

// EditReport lists the fields a user changed relative to the machine reading
type EditReport struct {
	HasEdits     bool     `json:"has_edits"`
	EditedFields []string `json:"edited_fields"`
}

// TrackManualEdits diffs supplier, total, item count and, for items present in
// both, description, quantity and unit price. It is audit-only.
func TrackManualEdits(original, corrected receipt.Extraction) EditReport {
	fields := []string{}

	if !sameOptional(original.SupplierName, corrected.SupplierName) {
		fields = append(fields, "supplier_name")
	}
	if !sameOptional(original.Total, corrected.Total) {
		fields = append(fields, "total")
	}
	if len(original.Items) != len(corrected.Items) {
		fields = append(fields, "items_count")
	}

	shared := min(len(original.Items), len(corrected.Items))
	for i := 0; i < shared; i++ {
		before, after := original.Items[i], corrected.Items[i]
		if before.Description != after.Description {
			fields = append(fields, fmt.Sprintf("items[%d].description", i))
		}
		if before.Quantity != after.Quantity {
			fields = append(fields, fmt.Sprintf("items[%d].quantity", i))
		}
		if before.UnitPrice != after.UnitPrice {
			fields = append(fields, fmt.Sprintf("items[%d].unit_price", i))
		}
	}

	return EditReport{HasEdits: len(fields) > 0, EditedFields: fields}
}

func sameOptional[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
