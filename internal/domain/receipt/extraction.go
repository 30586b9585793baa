package receipt

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"
)

// ErrMalformedExtraction is returned when extractor output is not JSON at all
var ErrMalformedExtraction = errors.New("extraction is not valid JSON")

// LineItem is one product line read from a receipt
type LineItem struct {
	Description string   `json:"description"`
	Quantity    float64  `json:"quantity"`
	Unit        string   `json:"unit"`
	UnitPrice   float64  `json:"unit_price"`
	Subtotal    *float64 `json:"subtotal"`
}

// Extraction is the machine (or user corrected) reading of a receipt.
// Every optional field is a pointer so absence is explicit.
type Extraction struct {
	SupplierName  *string    `json:"supplier_name"`
	Total         *float64   `json:"total"`
	Items         []LineItem `json:"items"`
	Date          *string    `json:"date"`
	InvoiceNumber *string    `json:"invoice_number"`
}

// Ptr returns a pointer to v
func Ptr[T any](v T) *T {
	return &v
}

// SupplierNameValue returns the supplier name or "" when absent
func (e Extraction) SupplierNameValue() string {
	if e.SupplierName == nil {
		return ""
	}
	return *e.SupplierName
}

// DateValue returns the raw date or "" when absent
func (e Extraction) DateValue() string {
	if e.Date == nil {
		return ""
	}
	return *e.Date
}

// InvoiceNumberValue returns the invoice number or "" when absent
func (e Extraction) InvoiceNumberValue() string {
	if e.InvoiceNumber == nil {
		return ""
	}
	return *e.InvoiceNumber
}

// Clone returns a deep copy
func (e Extraction) Clone() Extraction {
	out := Extraction{
		SupplierName:  clonePtr(e.SupplierName),
		Total:         clonePtr(e.Total),
		Date:          clonePtr(e.Date),
		InvoiceNumber: clonePtr(e.InvoiceNumber),
	}
	if e.Items != nil {
		out.Items = make([]LineItem, len(e.Items))
		for i, item := range e.Items {
			item.Subtotal = clonePtr(item.Subtotal)
			out.Items[i] = item
		}
	}
	return out
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// MarshalJSON always writes items as an array
func (e Extraction) MarshalJSON() ([]byte, error) {
	type plain Extraction
	p := plain(e)
	if p.Items == nil {
		p.Items = []LineItem{}
	}
	return json.Marshal(p)
}

// ParseExtraction decodes raw extractor output. Only input that is not JSON
// returns an error; wrong-typed or missing fields simply end up absent.
func ParseExtraction(data []byte) (Extraction, error) {
	var e Extraction
	if !json.Valid(data) {
		return e, ErrMalformedExtraction
	}
	if err := json.Unmarshal(data, &e); err != nil {
		return Extraction{}, ErrMalformedExtraction
	}
	return e, nil
}

// UnmarshalJSON decodes leniently. A document that is not an object yields an
// empty Extraction.
func (e *Extraction) UnmarshalJSON(data []byte) error {
	*e = Extraction{}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		if json.Valid(data) {
			return nil
		}
		return err
	}

	e.SupplierName = decodeString(fields["supplier_name"])
	e.Total = decodeNumber(fields["total"])
	e.Date = decodeString(fields["date"])
	e.InvoiceNumber = decodeString(fields["invoice_number"])

	var rawItems []json.RawMessage
	if err := json.Unmarshal(fields["items"], &rawItems); err == nil && rawItems != nil {
		e.Items = make([]LineItem, 0, len(rawItems))
		for _, raw := range rawItems {
			var item LineItem
			_ = item.UnmarshalJSON(raw)
			e.Items = append(e.Items, item)
		}
	}

	return nil
}

// UnmarshalJSON decodes a line item leniently. A non-object yields a zero item.
func (li *LineItem) UnmarshalJSON(data []byte) error {
	*li = LineItem{}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		if json.Valid(data) {
			return nil
		}
		return err
	}

	if s := decodeString(fields["description"]); s != nil {
		li.Description = *s
	}
	if s := decodeString(fields["unit"]); s != nil {
		li.Unit = *s
	}
	if n := decodeNumber(fields["quantity"]); n != nil {
		li.Quantity = *n
	}
	if n := decodeNumber(fields["unit_price"]); n != nil {
		li.UnitPrice = *n
	}
	li.Subtotal = decodeNumber(fields["subtotal"])

	return nil
}

func decodeString(raw json.RawMessage) *string {
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil
	}
	return &s
}

func decodeNumber(raw json.RawMessage) *float64 {
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}

	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return &f
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSpace(strings.TrimPrefix(s, "$"))
	if s == "" {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}
