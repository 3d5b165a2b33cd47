// Package pricing scores receipt prices against market averages.
package pricing

import (
	"math"

	"github.com/zombor/billsplit/internal/money"
)

// DefaultThreshold is the percentage above average at which an item counts
// as overpriced.
const DefaultThreshold = 20.0

// Comparison pairs a receipt price with a typical market price.
type Comparison struct {
	ItemName     string  `json:"item_name"`
	ReceiptPrice float64 `json:"receipt_price"`
	AveragePrice float64 `json:"average_price"`
}

// ItemResult is the verdict for one Comparison.
type ItemResult struct {
	Comparison
	PercentageDiff float64 `json:"percentage_diff"`
	IsOverpriced   bool    `json:"is_overpriced"`
}

// Report summarises a set of comparisons.
type Report struct {
	RipOffScore      int          `json:"rip_off_score"`
	TotalOverpayment float64      `json:"total_overpayment"`
	Items            []ItemResult `json:"items"`
}

// IsOverpriced reports whether actual exceeds average by more than
// thresholdPercent.
func IsOverpriced(actual, average, thresholdPercent float64) bool {
	return money.PercentageDifference(actual, average) > thresholdPercent
}

// RipOffScore grades comparisons from 1 (fair) to 10. Only overpricing
// counts; every 10% of average overpricing adds a point.
func RipOffScore(comparisons []Comparison) int {
	if len(comparisons) == 0 {
		return 1
	}

	var total float64
	for _, c := range comparisons {
		total += math.Max(0, money.PercentageDifference(c.ReceiptPrice, c.AveragePrice))
	}
	average := total / float64(len(comparisons))

	score := int(math.Ceil(average/10)) + 1
	return min(10, max(1, score))
}

// TotalOverpayment sums how much was paid above average across comparisons.
func TotalOverpayment(comparisons []Comparison) float64 {
	over := make([]float64, 0, len(comparisons))
	for _, c := range comparisons {
		if diff := c.ReceiptPrice - c.AveragePrice; diff > 0 {
			over = append(over, diff)
		}
	}
	return money.Sum(over...)
}

// Check builds a Report. A non-positive threshold uses DefaultThreshold.
func Check(comparisons []Comparison, thresholdPercent float64) Report {
	if thresholdPercent <= 0 {
		thresholdPercent = DefaultThreshold
	}

	items := make([]ItemResult, len(comparisons))
	for i, c := range comparisons {
		items[i] = ItemResult{
			Comparison:     c,
			PercentageDiff: money.PercentageDifference(c.ReceiptPrice, c.AveragePrice),
			IsOverpriced:   IsOverpriced(c.ReceiptPrice, c.AveragePrice, thresholdPercent),
		}
	}

	return Report{
		RipOffScore:      RipOffScore(comparisons),
		TotalOverpayment: TotalOverpayment(comparisons),
		Items:            items,
	}
}
