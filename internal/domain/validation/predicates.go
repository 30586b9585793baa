package validation

import (
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/garyjia/restaurant-receipts/internal/domain/receipt"
	"github.com/shopspring/decimal"
)

// placeholderSupplier is what the extractor writes when it cannot read the supplier
const placeholderSupplier = "no identificado"

var hundred = decimal.NewFromInt(100)

// supplierPresent reports a non-blank supplier name
func supplierPresent(e receipt.Extraction) bool {
	return strings.TrimSpace(e.SupplierNameValue()) != ""
}

// HasValidSupplier requires a name longer than two characters that is not the placeholder
func HasValidSupplier(e receipt.Extraction) bool {
	name := strings.TrimSpace(e.SupplierNameValue())
	if utf8.RuneCountInString(name) <= 2 {
		return false
	}
	return !strings.EqualFold(name, placeholderSupplier)
}

// HasValidTotal requires a positive finite total
func HasValidTotal(e receipt.Extraction) bool {
	if e.Total == nil {
		return false
	}
	t := *e.Total
	return t > 0 && !math.IsInf(t, 0) && !math.IsNaN(t)
}

// IsValidItem requires a description and a positive quantity
func IsValidItem(item receipt.LineItem) bool {
	return strings.TrimSpace(item.Description) != "" && item.Quantity > 0
}

// ValidItemCount counts items passing IsValidItem
func ValidItemCount(e receipt.Extraction) int {
	n := 0
	for _, item := range e.Items {
		if IsValidItem(item) {
			n++
		}
	}
	return n
}

// HasValidItems requires at least one valid item
func HasValidItems(e receipt.Extraction) bool {
	return ValidItemCount(e) > 0
}

// HasCriticalFields reports whether supplier, total and items all pass.
// Any failure here blocks the receipt.
func HasCriticalFields(e receipt.Extraction) bool {
	return HasValidSupplier(e) && HasValidTotal(e) && HasValidItems(e)
}

// ItemsSum adds each item's subtotal, or quantity * unit price when the subtotal is absent
func ItemsSum(e receipt.Extraction) decimal.Decimal {
	sum := decimal.Zero
	for _, item := range e.Items {
		sum = sum.Add(LineTotal(item))
	}
	return sum
}

// LineTotal is the item subtotal, or quantity * unit price when the subtotal is absent
func LineTotal(item receipt.LineItem) decimal.Decimal {
	if item.Subtotal != nil {
		return toDecimal(*item.Subtotal)
	}
	return toDecimal(item.Quantity).Mul(toDecimal(item.UnitPrice))
}

// DeviationPercent returns |itemsSum - total| / total * 100. total must be positive.
func DeviationPercent(itemsSum, total decimal.Decimal) decimal.Decimal {
	if !total.IsPositive() {
		return decimal.Zero
	}
	return itemsSum.Sub(total).Abs().Mul(hundred).Div(total)
}

// Reconcile returns the deviation between items and total, and false when
// items or total are not valid enough to compare.
func Reconcile(e receipt.Extraction) (decimal.Decimal, bool) {
	if !HasValidItems(e) || !HasValidTotal(e) {
		return decimal.Zero, false
	}
	return DeviationPercent(ItemsSum(e), toDecimal(*e.Total)), true
}

func toDecimal(f float64) decimal.Decimal {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return decimal.Zero
	}
	return decimal.NewFromFloat(f)
}

var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"2006/01/02",
}

// ParseDate parses the date formats extractors are known to produce
func ParseDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// IsDateInWindow checks t against [now - 1 year, now + 1 month)
func IsDateInWindow(t, now time.Time) bool {
	earliest := now.AddDate(-1, 0, 0)
	latest := now.AddDate(0, 1, 0)
	return !t.Before(earliest) && t.Before(latest)
}

// HasValidDate requires a parseable date inside the accepted window
func HasValidDate(e receipt.Extraction, now time.Time) bool {
	t, ok := ParseDate(e.DateValue())
	return ok && IsDateInWindow(t, now)
}

func datePresent(e receipt.Extraction) bool {
	return strings.TrimSpace(e.DateValue()) != ""
}
