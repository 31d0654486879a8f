// Package aggregate collapses observation sets into one numeric value per
// area for map-summary (choropleth) consumption.
package aggregate

import (
	"github.com/rotisserie/eris"

	"github.com/sells-group/crimestat-cli/internal/model"
	"github.com/sells-group/crimestat-cli/internal/rate"
)

// Mode selects the aggregation arithmetic.
type Mode string

const (
	// ModeCount sums raw counts across all matched years and sources.
	ModeCount Mode = "count"
	// ModeRate averages per-100k rates across matched years; observations
	// with a nil rate are excluded from both numerator and denominator.
	ModeRate Mode = "rate"
)

// ParseMode converts a string into a Mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeCount, ModeRate:
		return Mode(s), nil
	default:
		return "", eris.Errorf("aggregate: unknown mode %q (valid: count, rate)", s)
	}
}

// Aggregate reduces observations to one value per area code.
//
// Overlapping data sources are deduplicated first: exactly one observation
// survives per (area, category, year), chosen by source precedence, then
// recency, then ID (see Dedupe). In rate mode, areas with no non-nil rates
// are omitted from the result rather than reported as zero.
func Aggregate(observations []model.Observation, mode Mode, precedence map[string]int) (map[string]float64, error) {
	if _, err := ParseMode(string(mode)); err != nil {
		return nil, err
	}

	deduped := Dedupe(observations, precedence)
	result := make(map[string]float64)

	switch mode {
	case ModeCount:
		for _, o := range deduped {
			result[o.AreaCode] += float64(o.Count)
		}

	case ModeRate:
		sums := make(map[string]float64)
		counts := make(map[string]int)
		for _, o := range deduped {
			if o.RatePer100k == nil {
				continue
			}
			sums[o.AreaCode] += *o.RatePer100k
			counts[o.AreaCode]++
		}
		for areaCode, sum := range sums {
			result[areaCode] = rate.Round(sum/float64(counts[areaCode]), 4)
		}
	}

	return result, nil
}
