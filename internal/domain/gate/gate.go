package gate

import (
	"fmt"
	"strings"

	"github.com/garyjia/restaurant-receipts/internal/domain/receipt"
	"github.com/garyjia/restaurant-receipts/internal/domain/validation"
	"github.com/garyjia/restaurant-receipts/internal/domain/workflow"
	"github.com/shopspring/decimal"
)

const (
	reasonItemAmounts     = "Todos los productos deben tener cantidad y subtotal mayores a cero"
	reasonNoExtraction    = "El recibo no tiene datos extraídos"
	reasonAlreadyApplied  = "El inventario ya fue aplicado para este recibo"
	reasonNotPaidTemplate = "Solo se puede afectar inventario con el recibo pagado (estado actual: %s)"
)

// CanAffectInventory is the single authorization check before any stock or cash write
func CanAffectInventory(state workflow.State) bool {
	return state == workflow.StatePaid
}

// ConfirmDecision tells whether the user may confirm the receipt data
type ConfirmDecision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// CanConfirm repeats the critical checks of the validator and additionally
// requires positive quantity and subtotal on every item.
func CanConfirm(e receipt.Extraction) ConfirmDecision {
	var reasons []string

	if !validation.HasValidSupplier(e) {
		reasons = append(reasons, validation.IssueSupplierMissing)
	}
	if !validation.HasValidTotal(e) {
		reasons = append(reasons, validation.IssueTotalInvalid)
	}
	if !validation.HasValidItems(e) {
		reasons = append(reasons, validation.IssueNoItems)
	} else {
		for _, item := range e.Items {
			if item.Quantity <= 0 || !validation.LineTotal(item).IsPositive() {
				reasons = append(reasons, reasonItemAmounts)
				break
			}
		}
	}

	if len(reasons) > 0 {
		return ConfirmDecision{Allowed: false, Reason: strings.Join(reasons, ". ")}
	}
	return ConfirmDecision{Allowed: true}
}

// InventoryLine is one sanitized stock movement
type InventoryLine struct {
	LineNo      int             `json:"line_no"`
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	Unit        string          `json:"unit"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Subtotal    decimal.Decimal `json:"subtotal"`
}

// InventoryPayload is what the inventory and cash ledgers receive
type InventoryPayload struct {
	ReceiptID        int64           `json:"receipt_id"`
	Reference        string          `json:"reference"`
	RestaurantID     string          `json:"restaurant_id"`
	SupplierName     string          `json:"supplier_name"`
	InvoiceNumber    string          `json:"invoice_number,omitempty"`
	Date             string          `json:"date,omitempty"`
	Total            decimal.Decimal `json:"total"`
	PaymentReference string          `json:"payment_reference,omitempty"`
	Items            []InventoryLine `json:"items"`
}

// InventoryApplication is the outcome of PrepareForInventoryApplication
type InventoryApplication struct {
	CanApply bool              `json:"can_apply"`
	Reason   string            `json:"reason,omitempty"`
	Data     *InventoryPayload `json:"data,omitempty"`
}

// PrepareForInventoryApplication refuses unless the receipt is paid and its
// inventory was never applied. Persisting inventory_applied_at atomically is
// the caller's job.
func PrepareForInventoryApplication(r *receipt.Record) InventoryApplication {
	if r == nil {
		return InventoryApplication{Reason: reasonNoExtraction}
	}
	if !CanAffectInventory(r.State) {
		return InventoryApplication{Reason: fmt.Sprintf(reasonNotPaidTemplate, r.State)}
	}
	if r.InventoryApplied() {
		return InventoryApplication{Reason: reasonAlreadyApplied}
	}

	e := r.EffectiveExtraction()
	if e == nil {
		return InventoryApplication{Reason: reasonNoExtraction}
	}

	return InventoryApplication{
		CanApply: true,
		Data:     sanitize(r, *e),
	}
}

// sanitize keeps the items that count as valid for scoring: a description and a
// positive quantity. A line without a description cannot be matched to stock.
func sanitize(r *receipt.Record, e receipt.Extraction) *InventoryPayload {
	payload := &InventoryPayload{
		ReceiptID:        r.ID,
		Reference:        r.Reference,
		RestaurantID:     r.RestaurantID,
		SupplierName:     strings.TrimSpace(e.SupplierNameValue()),
		InvoiceNumber:    strings.TrimSpace(e.InvoiceNumberValue()),
		Date:             strings.TrimSpace(e.DateValue()),
		PaymentReference: strings.TrimSpace(r.PaymentReference),
		Items:            []InventoryLine{},
	}

	for _, item := range e.Items {
		if !validation.IsValidItem(item) {
			continue
		}
		payload.Items = append(payload.Items, InventoryLine{
			LineNo:      len(payload.Items) + 1,
			Description: strings.TrimSpace(item.Description),
			Quantity:    decimal.NewFromFloat(item.Quantity),
			Unit:        strings.TrimSpace(item.Unit),
			UnitPrice:   decimal.NewFromFloat(item.UnitPrice),
			Subtotal:    validation.LineTotal(item),
		})
	}

	if validation.HasValidTotal(e) {
		payload.Total = decimal.NewFromFloat(*e.Total)
	} else {
		payload.Total = validation.ItemsSum(e)
	}

	return payload
}
