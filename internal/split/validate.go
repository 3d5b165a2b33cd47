package split

import (
	"github.com/shopspring/decimal"

	"github.com/zombor/billsplit/internal/money"
)

// DefaultTolerance is the largest conservation difference accepted.
const DefaultTolerance = 0.02

// Validation reports whether a split conserves its total.
// A failed Validation is a warning for the caller, not an error.
type Validation struct {
	IsValid    bool    `json:"isValid"`
	Difference float64 `json:"difference"`
}

// Validate compares the sum of owed amounts with expectedTotal. A negative
// tolerance is treated as zero.
func Validate(individuals []Individual, expectedTotal, tolerance float64) Validation {
	owed := make([]float64, len(individuals))
	for i, ind := range individuals {
		owed[i] = ind.Owed
	}
	actual := money.Decimal(money.Sum(owed...))
	expected := money.Decimal(expectedTotal)
	difference := actual.Sub(expected).Abs().Round(2)

	limit := decimal.Zero
	if tolerance > 0 {
		limit = money.Decimal(tolerance)
	}

	return Validation{
		IsValid:    difference.LessThanOrEqual(limit),
		Difference: difference.InexactFloat64(),
	}
}
