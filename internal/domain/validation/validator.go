package validation

import (
	"fmt"
	"strings"

	"github.com/garyjia/restaurant-receipts/internal/domain/receipt"
	"github.com/shopspring/decimal"
)

// Status is the validator verdict
type Status string

const (
	StatusValid       Status = "valid"
	StatusNeedsReview Status = "needs_review"
	StatusBlocked     Status = "blocked"
	StatusError       Status = "error"
)

// String returns the string representation of the status
func (s Status) String() string {
	return string(s)
}

// DefaultReviewThreshold is the weighted confidence below which a receipt needs review
const DefaultReviewThreshold = 60

// matchTolerance is the accepted items vs total deviation, in percent
var matchTolerance = decimal.NewFromInt(15)

// Issue messages, in the order they are reported
const (
	IssueSupplierMissing = "Proveedor no identificado"
	IssueTotalInvalid    = "Total no detectado o inválido"
	IssueNoItems         = "No se detectaron productos"
	IssueTotalMismatch   = "El total no coincide con la suma de productos (diferencia %s%%)"
	IssueDateInvalid     = "Fecha no detectada o inválida"
)

// ValidationResult is the verdict for one extraction. It is recomputed on every call.
type ValidationResult struct {
	Status           Status              `json:"status"`
	RealConfidence   int                 `json:"real_confidence"`
	HasValidSupplier bool                `json:"has_valid_supplier"`
	HasValidTotal    bool                `json:"has_valid_total"`
	HasValidItems    bool                `json:"has_valid_items"`
	HasMatchingTotal bool                `json:"has_matching_total"`
	HasValidDate     bool                `json:"has_valid_date"`
	Issues           []string            `json:"issues"`
	CanProceed       bool                `json:"can_proceed"`
	BlockingReason   string              `json:"blocking_reason,omitempty"`
	Breakdown        ConfidenceBreakdown `json:"breakdown"`
}

// IsBlocked reports whether a critical field failed
func (r ValidationResult) IsBlocked() bool {
	return r.Status == StatusBlocked
}

// ErrorResult is the verdict used when no extraction could be produced at all
func ErrorResult(reason string) ValidationResult {
	return ValidationResult{
		Status:         StatusError,
		Issues:         []string{reason},
		CanProceed:     false,
		BlockingReason: reason,
	}
}

// Validator turns an extraction into a verdict
type Validator struct {
	scorer          *Scorer
	reviewThreshold int
}

// NewValidator creates a validator. Options are shared with its scorer.
func NewValidator(opts ...Option) *Validator {
	s := newSettings(opts)
	return &Validator{
		scorer:          &Scorer{weights: s.weights, now: s.now},
		reviewThreshold: s.reviewThreshold,
	}
}

// Scorer returns the scorer used by the validator
func (v *Validator) Scorer() *Scorer {
	return v.scorer
}

// Validate checks each field on its own, scores the extraction and decides the status.
// A failing supplier, total or items always blocks, whatever the confidence.
func (v *Validator) Validate(e receipt.Extraction) ValidationResult {
	now := v.scorer.now()

	result := ValidationResult{
		HasValidSupplier: HasValidSupplier(e),
		HasValidTotal:    HasValidTotal(e),
		HasValidItems:    HasValidItems(e),
		HasValidDate:     HasValidDate(e, now),
		Issues:           []string{},
	}

	deviation, comparable := Reconcile(e)
	result.HasMatchingTotal = comparable && deviation.LessThanOrEqual(matchTolerance)

	result.Breakdown = v.scorer.calculateAt(e, now)
	result.RealConfidence = result.Breakdown.Weighted

	if !result.HasValidSupplier {
		result.Issues = append(result.Issues, IssueSupplierMissing)
	}
	if !result.HasValidTotal {
		result.Issues = append(result.Issues, IssueTotalInvalid)
	}
	if !result.HasValidItems {
		result.Issues = append(result.Issues, IssueNoItems)
	}
	if comparable && !result.HasMatchingTotal {
		result.Issues = append(result.Issues, fmt.Sprintf(IssueTotalMismatch, deviation.StringFixed(1)))
	}
	if !result.HasValidDate {
		result.Issues = append(result.Issues, IssueDateInvalid)
	}

	switch {
	case !result.HasValidSupplier || !result.HasValidTotal || !result.HasValidItems:
		result.Status = StatusBlocked
		result.CanProceed = false
		result.BlockingReason = strings.Join(result.Issues, ". ")
	case result.RealConfidence < v.reviewThreshold || len(result.Issues) > 0:
		result.Status = StatusNeedsReview
		result.CanProceed = true
	default:
		result.Status = StatusValid
		result.CanProceed = true
	}

	return result
}

// ValidateReceipt validates with default settings against the current time
func ValidateReceipt(e receipt.Extraction) ValidationResult {
	return NewValidator().Validate(e)
}
