package mapping

import (
	"sort"

	"github.com/rotisserie/eris"

	"github.com/sells-group/crimestat-cli/internal/model"
)

// RawRecord is one incident-count line from a source feed, still carrying
// the source's own category code.
type RawRecord struct {
	SourceCode         string            `json:"source_code"`
	SourceCategoryCode string            `json:"source_category_code"`
	AreaCode           string            `json:"area_code"`
	Year               int               `json:"year"`
	Month              *int              `json:"month,omitempty"`
	Granularity        model.Granularity `json:"granularity"`
	Count              int64             `json:"count"`
}

// validate checks record-level invariants shared with model.Observation.
func (r RawRecord) validate() error {
	if r.Count < 0 {
		return eris.Errorf("mapping: record %s/%s: negative count", r.SourceCode, r.SourceCategoryCode)
	}
	if r.Year <= 0 {
		return eris.Errorf("mapping: record %s/%s: missing year", r.SourceCode, r.SourceCategoryCode)
	}
	if _, err := model.ParseGranularity(string(r.Granularity)); err != nil {
		return err
	}
	if r.Granularity == model.GranularityMonthly {
		if r.Month == nil || *r.Month < 1 || *r.Month > 12 {
			return eris.Errorf("mapping: record %s/%s: monthly record without valid month", r.SourceCode, r.SourceCategoryCode)
		}
	} else if r.Month != nil {
		return eris.Errorf("mapping: record %s/%s: month set on %s record", r.SourceCode, r.SourceCategoryCode, r.Granularity)
	}
	return nil
}

// AggregatedCount is the summed raw count for one observation key after
// source categories have been collapsed into their canonical category.
type AggregatedCount struct {
	Key   model.ObservationKey
	Count int64
}

// BatchResult is the outcome of aggregating one feed batch.
type BatchResult struct {
	Aggregated []AggregatedCount
	Mapped     int // records that resolved to a canonical category
	Unmapped   int // records skipped for missing/inactive mappings
	Invalid    int // records failing structural validation
}

// AggregateBatch resolves and aggregates a batch of raw records. Multiple
// source codes mapping to the same canonical category are summed per
// (area, canonical category, source, year, month) before the store's
// uniqueness constraint ever sees them. Unmapped and invalid records are
// counted, not failed.
//
// The result is sorted by key so batch output is deterministic regardless
// of feed ordering.
func (r *Resolver) AggregateBatch(records []RawRecord) BatchResult {
	var res BatchResult
	sums := make(map[model.ObservationKey]int64)

	for _, rec := range records {
		if err := rec.validate(); err != nil {
			res.Invalid++
			continue
		}

		resolution, err := r.Resolve(rec.SourceCode, rec.SourceCategoryCode)
		if err != nil {
			res.Unmapped++
			continue
		}

		month := 0
		if rec.Month != nil {
			month = *rec.Month
		}
		key := model.ObservationKey{
			AreaCode:     rec.AreaCode,
			CategoryCode: resolution.CanonicalCategoryCode,
			SourceCode:   rec.SourceCode,
			Year:         rec.Year,
			Month:        month,
			Granularity:  rec.Granularity,
		}
		sums[key] += rec.Count
		res.Mapped++
	}

	res.Aggregated = make([]AggregatedCount, 0, len(sums))
	for key, count := range sums {
		res.Aggregated = append(res.Aggregated, AggregatedCount{Key: key, Count: count})
	}
	sort.Slice(res.Aggregated, func(i, j int) bool {
		return res.Aggregated[i].Key.String() < res.Aggregated[j].Key.String()
	})

	return res
}
