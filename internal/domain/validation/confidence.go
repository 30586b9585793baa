package validation

import (
	"time"

	"github.com/garyjia/restaurant-receipts/internal/domain/receipt"
	"github.com/shopspring/decimal"
)

// Reconciliation bands for the total-match sub-score, in percent
var (
	fullMatchBand    = decimal.NewFromInt(1)
	closeMatchBand   = decimal.NewFromInt(5)
	partialMatchBand = decimal.NewFromInt(15)
)

// ConfidenceBreakdown holds the five sub-scores (0-100) and their weighted aggregate
type ConfidenceBreakdown struct {
	Supplier   float64 `json:"supplier"`
	Total      float64 `json:"total"`
	Items      float64 `json:"items"`
	TotalMatch float64 `json:"total_match"`
	Date       float64 `json:"date"`
	Weighted   int     `json:"weighted"`
}

// Scorer computes confidence breakdowns. It holds no mutable state.
type Scorer struct {
	weights Weights
	now     func() time.Time
}

type settings struct {
	weights         Weights
	now             func() time.Time
	reviewThreshold int
}

// Option configures a Scorer or a Validator
type Option func(*settings)

// WithWeights overrides the default weights. Callers validate them first.
func WithWeights(w Weights) Option {
	return func(s *settings) {
		s.weights = w
	}
}

// WithClock overrides the time source used for the date window
func WithClock(now func() time.Time) Option {
	return func(s *settings) {
		s.now = now
	}
}

// WithReviewThreshold sets the confidence below which a receipt needs review
func WithReviewThreshold(threshold int) Option {
	return func(s *settings) {
		s.reviewThreshold = threshold
	}
}

func newSettings(opts []Option) settings {
	s := settings{
		weights:         DefaultWeights(),
		now:             time.Now,
		reviewThreshold: DefaultReviewThreshold,
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// NewScorer creates a scorer with default weights and the wall clock
func NewScorer(opts ...Option) *Scorer {
	s := newSettings(opts)
	return &Scorer{weights: s.weights, now: s.now}
}

// Weights returns the weights in use
func (s *Scorer) Weights() Weights {
	return s.weights
}

// Calculate scores every field of the extraction independently
func (s *Scorer) Calculate(e receipt.Extraction) ConfidenceBreakdown {
	return s.calculateAt(e, s.now())
}

func (s *Scorer) calculateAt(e receipt.Extraction, now time.Time) ConfidenceBreakdown {
	b := ConfidenceBreakdown{
		Supplier:   supplierScore(e),
		Total:      totalScore(e),
		Items:      itemsScore(e),
		TotalMatch: totalMatchScore(e),
		Date:       dateScore(e, now),
	}
	b.Weighted = s.weigh(b)
	return b
}

func (s *Scorer) weigh(b ConfidenceBreakdown) int {
	w := s.weights
	sum := decimal.NewFromFloat(b.Supplier).Mul(decimal.NewFromFloat(w.Supplier)).
		Add(decimal.NewFromFloat(b.Total).Mul(decimal.NewFromFloat(w.Total))).
		Add(decimal.NewFromFloat(b.Items).Mul(decimal.NewFromFloat(w.Items))).
		Add(decimal.NewFromFloat(b.TotalMatch).Mul(decimal.NewFromFloat(w.TotalMatch))).
		Add(decimal.NewFromFloat(b.Date).Mul(decimal.NewFromFloat(w.Date)))
	return int(sum.Round(0).IntPart())
}

// CalculateRealConfidence scores with default weights against the current time
func CalculateRealConfidence(e receipt.Extraction) ConfidenceBreakdown {
	return NewScorer().Calculate(e)
}

func supplierScore(e receipt.Extraction) float64 {
	switch {
	case HasValidSupplier(e):
		return 100
	case supplierPresent(e):
		return 30
	default:
		return 0
	}
}

func totalScore(e receipt.Extraction) float64 {
	if HasValidTotal(e) {
		return 100
	}
	return 0
}

func itemsScore(e receipt.Extraction) float64 {
	if len(e.Items) == 0 {
		return 0
	}
	valid := ValidItemCount(e)
	switch {
	case valid == len(e.Items):
		return 100
	case valid > 0:
		return float64(valid) / float64(len(e.Items)) * 70
	default:
		return 0
	}
}

func totalMatchScore(e receipt.Extraction) float64 {
	deviation, ok := Reconcile(e)
	if !ok {
		return 0
	}
	return matchBandScore(deviation)
}

func matchBandScore(deviation decimal.Decimal) float64 {
	switch {
	case deviation.LessThanOrEqual(fullMatchBand):
		return 100
	case deviation.LessThanOrEqual(closeMatchBand):
		return 70
	case deviation.LessThanOrEqual(partialMatchBand):
		return 30
	default:
		return 0
	}
}

func dateScore(e receipt.Extraction, now time.Time) float64 {
	switch {
	case HasValidDate(e, now):
		return 100
	case datePresent(e):
		return 50
	default:
		return 0
	}
}
