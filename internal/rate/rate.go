// Package rate computes population-normalized incident rates. All arithmetic
// runs on fixed-point decimals so stored values are exact at their declared
// precision regardless of how the display layer rounds them later.
package rate

import "github.com/shopspring/decimal"

// Per100kScale is the standard denominator for cross-area comparability.
const Per100kScale = 100_000

// storedPrecision is the decimal precision rates are persisted at. Display
// rounding (e.g. to one decimal) happens outside this package and must not
// alter the stored value.
const storedPrecision = 4

// Normalize computes the per-100k rate for a raw count and a population
// denominator.
//
//   - population nil or zero: nil (never divide by zero, never substitute a
//     default denominator)
//   - count zero with a valid population: zero (not nil)
//   - otherwise: count / population × 100000, at four decimal places
func Normalize(count int64, population *int64) *float64 {
	if population == nil || *population <= 0 {
		return nil
	}

	r, _ := decimal.NewFromInt(count).
		Div(decimal.NewFromInt(*population)).
		Mul(decimal.NewFromInt(Per100kScale)).
		Round(storedPrecision).
		Float64()
	return &r
}

// Round rounds v to the given number of decimal places, half away from zero.
func Round(v float64, places int32) float64 {
	r, _ := decimal.NewFromFloat(v).Round(places).Float64()
	return r
}

// PctChange computes the percentage change from baseline to comparator at
// two decimal places. Returns nil when the baseline is zero: a zero baseline
// with a nonzero comparator is undefined change, not infinity.
func PctChange(baseline, comparator float64) *float64 {
	if baseline == 0 {
		return nil
	}
	p, _ := decimal.NewFromFloat(comparator).
		Sub(decimal.NewFromFloat(baseline)).
		Div(decimal.NewFromFloat(baseline)).
		Mul(decimal.NewFromInt(100)).
		Round(2).
		Float64()
	return &p
}
