// Package money holds the currency arithmetic shared by every split
// computation. All results are rounded to cents.
package money

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// DefaultCurrency is used when Format receives an empty code.
const DefaultCurrency = "USD"

var (
	hundred = decimal.NewFromInt(100)
	half    = decimal.NewFromFloat(0.5)
)

// symbols maps ISO codes to their display symbol. Codes without an entry
// are rendered with the code itself.
var symbols = map[string]string{
	"USD": "$",
	"CAD": "CA$",
	"AUD": "A$",
	"EUR": "€",
	"GBP": "£",
	"JPY": "¥",
	"INR": "₹",
	"MXN": "MX$",
}

func fromFloat(value float64) decimal.Decimal {
	return decimal.NewFromFloat(value)
}

// Decimal converts value to a decimal rounded to cents. Non-finite values
// become zero.
func Decimal(value float64) decimal.Decimal {
	if !finite(value) {
		return decimal.Zero
	}
	return cents(fromFloat(value))
}

// roundHalfUp rounds d to places decimals with halves going towards
// positive infinity, so -0.125 becomes -0.12.
func roundHalfUp(d decimal.Decimal, places int32) decimal.Decimal {
	shift := decimal.New(1, places)
	return d.Mul(shift).Add(half).Floor().Div(shift)
}

func cents(d decimal.Decimal) decimal.Decimal {
	return roundHalfUp(d, 2)
}

func finite(value float64) bool {
	return !math.IsNaN(value) && !math.IsInf(value, 0)
}

// Round rounds value to the nearest cent, halves up.
// Non-finite values are returned unchanged.
func Round(value float64) float64 {
	if !finite(value) {
		return value
	}
	return cents(fromFloat(value)).InexactFloat64()
}

// Sum adds values exactly and rounds the result to cents.
func Sum(values ...float64) float64 {
	total := decimal.Zero
	for _, v := range values {
		if !finite(v) {
			continue
		}
		total = total.Add(fromFloat(v))
	}
	return cents(total).InexactFloat64()
}

// Share returns pool * part / whole rounded to cents, or 0 when whole is 0.
func Share(part, whole, pool float64) float64 {
	if whole == 0 || !finite(part) || !finite(whole) || !finite(pool) {
		return 0
	}
	return cents(fromFloat(pool).Mul(fromFloat(part)).Div(fromFloat(whole))).InexactFloat64()
}

// PercentageDifference returns how far actual is above (positive) or
// below (negative) expected, in percent rounded to two decimals.
// It returns 0 when expected is 0.
func PercentageDifference(actual, expected float64) float64 {
	if expected == 0 || !finite(actual) || !finite(expected) {
		return 0
	}
	diff := fromFloat(actual).Sub(fromFloat(expected))
	return cents(diff.Div(fromFloat(expected)).Mul(hundred)).InexactFloat64()
}

// TipFromPercentage returns the tip for subtotal at percent.
func TipFromPercentage(subtotal, percent float64) float64 {
	if !finite(subtotal) || !finite(percent) {
		return 0
	}
	return cents(fromFloat(subtotal).Mul(fromFloat(percent)).Div(hundred)).InexactFloat64()
}

// Format renders value for display in the given ISO currency. It must never
// be fed back into arithmetic.
func Format(value float64, currencyCode string) string {
	code := strings.ToUpper(strings.TrimSpace(currencyCode))
	if code == "" {
		code = DefaultCurrency
	}

	scale := 2
	unit, err := currency.ParseISO(code)
	if err == nil {
		scale, _ = currency.Standard.Rounding(unit)
	}

	amount := fromFloat(0)
	if finite(value) {
		amount = roundHalfUp(fromFloat(value), int32(scale))
	}

	p := message.NewPrinter(language.AmericanEnglish)
	digits := p.Sprintf(fmt.Sprintf("%%.%df", scale), amount.Abs().InexactFloat64())

	sign := ""
	if amount.IsNegative() {
		sign = "-"
	}

	if err != nil {
		return fmt.Sprintf("%s%s %s", sign, code, digits)
	}
	if symbol, ok := symbols[code]; ok {
		return sign + symbol + digits
	}
	return fmt.Sprintf("%s%s %s", sign, code, digits)
}
