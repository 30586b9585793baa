package validation

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Weights are the share of each sub-score in the weighted confidence
type Weights struct {
	Supplier   float64 `mapstructure:"supplier" json:"supplier"`
	Total      float64 `mapstructure:"total" json:"total"`
	Items      float64 `mapstructure:"items" json:"items"`
	TotalMatch float64 `mapstructure:"total_match" json:"total_match"`
	Date       float64 `mapstructure:"date" json:"date"`
}

// DefaultWeights returns 25/25/30/10/10
func DefaultWeights() Weights {
	return Weights{
		Supplier:   0.25,
		Total:      0.25,
		Items:      0.30,
		TotalMatch: 0.10,
		Date:       0.10,
	}
}

// Validate requires every weight in [0, 1] and a sum of exactly 1
func (w Weights) Validate() error {
	named := []struct {
		name  string
		value float64
	}{
		{"supplier", w.Supplier},
		{"total", w.Total},
		{"items", w.Items},
		{"total_match", w.TotalMatch},
		{"date", w.Date},
	}

	sum := decimal.Zero
	for _, n := range named {
		if n.value < 0 || n.value > 1 {
			return fmt.Errorf("weight %s must be between 0.0 and 1.0, got %.2f", n.name, n.value)
		}
		sum = sum.Add(decimal.NewFromFloat(n.value))
	}

	if !sum.Equal(decimal.NewFromInt(1)) {
		return fmt.Errorf("weights must sum to 1.0, got %s", sum.String())
	}
	return nil
}
