package model

import (
	"fmt"
	"time"

	"github.com/rotisserie/eris"
)

// ErrNotFound is returned when a referenced area, category, data source, or
// other reference record does not exist.
var ErrNotFound = eris.New("model: not found")

// ObservationKey is the composite uniqueness key for an observation.
// Month is 0 for quarterly and yearly granularities.
type ObservationKey struct {
	AreaCode     string
	CategoryCode string
	SourceCode   string
	Year         int
	Month        int
	Granularity  Granularity
}

// String renders the key for logs and deterministic ordering.
func (k ObservationKey) String() string {
	return fmt.Sprintf("%s/%s/%s/%d/%02d/%s",
		k.AreaCode, k.CategoryCode, k.SourceCode, k.Year, k.Month, k.Granularity)
}

// Observation is the fact record: an incident count for one canonical
// category in one area, year (and optionally month), from one data source.
// The only mutable fact in the system; everything else is reference data.
type Observation struct {
	ID           string      `json:"id"`
	AreaCode     string      `json:"area_code"`
	CategoryCode string      `json:"category_code"`
	SourceCode   string      `json:"source_code"`
	Year         int         `json:"year"`
	Month        *int        `json:"month,omitempty"` // set iff granularity is monthly
	Granularity  Granularity `json:"granularity"`
	Count        int64       `json:"count"`

	// RatePer100k is derived: count / population × 100000, stored at four
	// decimal places. Nil when no valid population denominator existed.
	RatePer100k *float64 `json:"rate_per_100k,omitempty"`

	// PopulationUsed records the denominator behind RatePer100k so the rate
	// can be audited or recomputed after a population revision.
	PopulationUsed *int64 `json:"population_used,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

// Key returns the composite uniqueness key of the observation.
func (o Observation) Key() ObservationKey {
	month := 0
	if o.Month != nil {
		month = *o.Month
	}
	return ObservationKey{
		AreaCode:     o.AreaCode,
		CategoryCode: o.CategoryCode,
		SourceCode:   o.SourceCode,
		Year:         o.Year,
		Month:        month,
		Granularity:  o.Granularity,
	}
}

// Validate checks the observation's internal invariants.
func (o Observation) Validate() error {
	if o.Count < 0 {
		return eris.Errorf("model: observation %s: negative count %d", o.Key(), o.Count)
	}
	if _, err := ParseGranularity(string(o.Granularity)); err != nil {
		return err
	}
	if o.Granularity == GranularityMonthly {
		if o.Month == nil || *o.Month < 1 || *o.Month > 12 {
			return eris.Errorf("model: observation %s: monthly granularity requires month 1-12", o.Key())
		}
	} else if o.Month != nil {
		return eris.Errorf("model: observation %s: month set on %s granularity", o.Key(), o.Granularity)
	}
	return nil
}
