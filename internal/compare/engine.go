// Package compare implements the slice comparison engine: area-vs-area,
// year-vs-year, and source-vs-source comparisons of canonical, population-
// normalized observations. All three axes share a single algorithm core;
// only the varying dimension differs.
package compare

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/crimestat-cli/internal/model"
	"github.com/sells-group/crimestat-cli/internal/rate"
	"github.com/sells-group/crimestat-cli/internal/store"
	"github.com/sells-group/crimestat-cli/internal/taxonomy"
)

// ObservationStore is the observation read surface the engine consumes.
type ObservationStore interface {
	ListObservations(ctx context.Context, f store.ObservationFilter) ([]model.Observation, error)
}

// ReferenceStore resolves area and data-source codes against reference data.
type ReferenceStore interface {
	GetArea(ctx context.Context, code string) (model.Area, error)
	GetSource(ctx context.Context, code string) (model.DataSource, error)
}

// Slice fixes one (area, year, source) combination as one side of a
// comparison.
type Slice struct {
	AreaCode   string
	Year       int
	SourceCode string
}

// Item is one category row of a comparison. Fields for a side with no
// observation are nil; derived fields are nil whenever an input is nil, and
// percentage changes are additionally nil on a zero baseline.
type Item struct {
	CategoryCode  string         `json:"category_code"`
	Name          string         `json:"name"`
	LocalizedName string         `json:"localized_name"`
	Severity      model.Severity `json:"severity"`
	Group         model.Group    `json:"group"`

	CountA *int64   `json:"count_a"`
	CountB *int64   `json:"count_b"`
	RateA  *float64 `json:"rate_a"`
	RateB  *float64 `json:"rate_b"`

	CountDiff      *int64   `json:"count_diff"`
	RateDiff       *float64 `json:"rate_diff"`
	CountPctChange *float64 `json:"count_pct_change"`
	RatePctChange  *float64 `json:"rate_pct_change"`
}

// Engine computes category-aligned comparisons. It is stateless: every call
// is independent and safe to serve in parallel.
type Engine struct {
	obs ObservationStore
	ref ReferenceStore
	reg *taxonomy.Registry
}

// NewEngine wires the engine to its observation and reference stores.
func NewEngine(obs ObservationStore, ref ReferenceStore, reg *taxonomy.Registry) *Engine {
	return &Engine{obs: obs, ref: ref, reg: reg}
}

// CompareAreas compares two areas for the same year and data source.
func (e *Engine) CompareAreas(ctx context.Context, areaA, areaB string, year int, sourceCode, categoryFilter string) ([]Item, error) {
	a := Slice{AreaCode: areaA, Year: year, SourceCode: sourceCode}
	b := Slice{AreaCode: areaB, Year: year, SourceCode: sourceCode}
	return e.Compare(ctx, a, b, categoryFilter)
}

// CompareYears compares two years for the same area and data source.
func (e *Engine) CompareYears(ctx context.Context, areaCode string, yearA, yearB int, sourceCode, categoryFilter string) ([]Item, error) {
	a := Slice{AreaCode: areaCode, Year: yearA, SourceCode: sourceCode}
	b := Slice{AreaCode: areaCode, Year: yearB, SourceCode: sourceCode}
	return e.Compare(ctx, a, b, categoryFilter)
}

// CompareSources compares two data sources for the same area and year.
func (e *Engine) CompareSources(ctx context.Context, areaCode string, year int, sourceA, sourceB, categoryFilter string) ([]Item, error) {
	a := Slice{AreaCode: areaCode, Year: year, SourceCode: sourceA}
	b := Slice{AreaCode: areaCode, Year: year, SourceCode: sourceB}
	return e.Compare(ctx, a, b, categoryFilter)
}

// Compare produces the category-aligned comparison table for two slices.
// The output covers the union of categories present on either side, ordered
// by the taxonomy's sort order (code-lexical on ties). Sparse data yields
// nil fields, never errors; unknown reference codes yield model.ErrNotFound.
//
// Swapping A and B negates CountDiff and RateDiff. Percentage changes do
// NOT negate: they are relative to the baseline (side A), so Compare(a, b)
// and Compare(b, a) generally report different magnitudes. Callers must not
// "fix" this by negating.
func (e *Engine) Compare(ctx context.Context, a, b Slice, categoryFilter string) ([]Item, error) {
	if err := e.validate(ctx, a, b, categoryFilter); err != nil {
		return nil, err
	}

	sideA, err := e.fetch(ctx, a, categoryFilter)
	if err != nil {
		return nil, eris.Wrap(err, "compare: fetch slice A")
	}
	sideB, err := e.fetch(ctx, b, categoryFilter)
	if err != nil {
		return nil, eris.Wrap(err, "compare: fetch slice B")
	}

	items := make([]Item, 0, len(sideA)+len(sideB))
	for _, code := range e.unionCodes(sideA, sideB) {
		items = append(items, e.buildItem(code, sideA[code], sideB[code]))
	}
	return items, nil
}

// validate resolves every referenced code before any observation fetch so
// a bad request fails as NotFound per request, not per item.
func (e *Engine) validate(ctx context.Context, a, b Slice, categoryFilter string) error {
	for _, areaCode := range uniqueNonEmpty(a.AreaCode, b.AreaCode) {
		if _, err := e.ref.GetArea(ctx, areaCode); err != nil {
			return eris.Wrapf(err, "compare: area %s", areaCode)
		}
	}
	for _, sourceCode := range uniqueNonEmpty(a.SourceCode, b.SourceCode) {
		if _, err := e.ref.GetSource(ctx, sourceCode); err != nil {
			return eris.Wrapf(err, "compare: source %s", sourceCode)
		}
	}
	if categoryFilter != "" {
		if _, err := e.reg.Get(categoryFilter); err != nil {
			return eris.Wrap(err, "compare: category filter")
		}
	}
	return nil
}

// fetch loads a slice's yearly observations keyed by canonical category.
// One observation per category is guaranteed by the store's composite
// uniqueness constraint.
func (e *Engine) fetch(ctx context.Context, s Slice, categoryFilter string) (map[string]model.Observation, error) {
	obs, err := e.obs.ListObservations(ctx, store.ObservationFilter{
		AreaCode:     s.AreaCode,
		SourceCode:   s.SourceCode,
		Year:         s.Year,
		CategoryCode: categoryFilter,
		Granularity:  model.GranularityYearly,
	})
	if err != nil {
		return nil, err
	}

	byCategory := make(map[string]model.Observation, len(obs))
	for _, o := range obs {
		byCategory[o.CategoryCode] = o
	}
	return byCategory, nil
}

// unionCodes computes the union of category codes present on either side,
// ordered by taxonomy sort order with a lexical tie-break on code.
func (e *Engine) unionCodes(a, b map[string]model.Observation) []string {
	seen := make(map[string]bool, len(a)+len(b))
	codes := make([]string, 0, len(a)+len(b))
	for code := range a {
		if !seen[code] {
			seen[code] = true
			codes = append(codes, code)
		}
	}
	for code := range b {
		if !seen[code] {
			seen[code] = true
			codes = append(codes, code)
		}
	}

	sortByTaxonomy(codes, e.reg)
	return codes
}

func (e *Engine) buildItem(code string, obsA, obsB model.Observation) Item {
	item := Item{CategoryCode: code}
	if cat, err := e.reg.Get(code); err == nil {
		item.Name = cat.Name
		item.LocalizedName = cat.LocalizedName
		item.Severity = cat.Severity
		item.Group = cat.Group
	}

	// The zero-value sentinel: a side is present iff its observation carries
	// the category code (map misses yield zero values).
	if obsA.CategoryCode == code {
		count := obsA.Count
		item.CountA = &count
		item.RateA = obsA.RatePer100k
	}
	if obsB.CategoryCode == code {
		count := obsB.Count
		item.CountB = &count
		item.RateB = obsB.RatePer100k
	}

	if item.CountA != nil && item.CountB != nil {
		diff := *item.CountB - *item.CountA
		item.CountDiff = &diff
		item.CountPctChange = rate.PctChange(float64(*item.CountA), float64(*item.CountB))
	}
	if item.RateA != nil && item.RateB != nil {
		diff := rate.Round(*item.RateB-*item.RateA, 2)
		item.RateDiff = &diff
		item.RatePctChange = rate.PctChange(*item.RateA, *item.RateB)
	}
	return item
}

func uniqueNonEmpty(codes ...string) []string {
	seen := make(map[string]bool, len(codes))
	out := make([]string, 0, len(codes))
	for _, c := range codes {
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}
