package compare

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/crimestat-cli/internal/model"
	"github.com/sells-group/crimestat-cli/internal/store"
	"github.com/sells-group/crimestat-cli/internal/taxonomy"
)

// fakeStore serves canned observations and reference data in memory.
type fakeStore struct {
	observations []model.Observation
	areas        map[string]model.Area
	sources      map[string]model.DataSource
}

func (f *fakeStore) ListObservations(_ context.Context, filter store.ObservationFilter) ([]model.Observation, error) {
	var out []model.Observation
	for _, o := range f.observations {
		if filter.AreaCode != "" && o.AreaCode != filter.AreaCode {
			continue
		}
		if filter.SourceCode != "" && o.SourceCode != filter.SourceCode {
			continue
		}
		if filter.Year != 0 && o.Year != filter.Year {
			continue
		}
		if filter.CategoryCode != "" && o.CategoryCode != filter.CategoryCode {
			continue
		}
		if filter.Granularity != "" && o.Granularity != filter.Granularity {
			continue
		}
		out = append(out, o)
	}
	return out, nil
}

func (f *fakeStore) GetArea(_ context.Context, code string) (model.Area, error) {
	a, ok := f.areas[code]
	if !ok {
		return model.Area{}, eris.Wrapf(model.ErrNotFound, "area %s", code)
	}
	return a, nil
}

func (f *fakeStore) GetSource(_ context.Context, code string) (model.DataSource, error) {
	s, ok := f.sources[code]
	if !ok {
		return model.DataSource{}, eris.Wrapf(model.ErrNotFound, "source %s", code)
	}
	return s, nil
}

func yearlyObs(area, category, source string, year int, count int64, ratePer100k *float64) model.Observation {
	return model.Observation{
		AreaCode:     area,
		CategoryCode: category,
		SourceCode:   source,
		Year:         year,
		Granularity:  model.GranularityYearly,
		Count:        count,
		RatePer100k:  ratePer100k,
	}
}

func fptr(v float64) *float64 { return &v }

func newTestEngine(t *testing.T, observations []model.Observation) *Engine {
	t.Helper()
	reg, err := taxonomy.Load()
	require.NoError(t, err)

	fs := &fakeStore{
		observations: observations,
		areas: map[string]model.Area{
			"13": {Code: "13", Name: "Bouches-du-Rhône", Level: model.LevelDepartment},
			"69": {Code: "69", Name: "Rhône", Level: model.LevelDepartment},
		},
		sources: map[string]model.DataSource{
			"police_nationale": {Code: "police_nationale", Precedence: 20},
			"gendarmerie":      {Code: "gendarmerie", Precedence: 10},
		},
	}
	return NewEngine(fs, fs, reg)
}

func TestCompareAreas_HomicideScenario(t *testing.T) {
	engine := newTestEngine(t, []model.Observation{
		yearlyObs("13", "HOMICIDE", "police_nationale", 2022, 72, fptr(3.38)),
		yearlyObs("69", "HOMICIDE", "police_nationale", 2022, 67, fptr(3.14)),
	})

	items, err := engine.CompareAreas(context.Background(), "13", "69", 2022, "police_nationale", "")
	require.NoError(t, err)
	require.Len(t, items, 1)

	item := items[0]
	assert.Equal(t, "HOMICIDE", item.CategoryCode)
	assert.Equal(t, "Homicide", item.Name)
	require.NotNil(t, item.CountDiff)
	assert.Equal(t, int64(-5), *item.CountDiff)
	require.NotNil(t, item.RateDiff)
	assert.Equal(t, -0.24, *item.RateDiff)
	require.NotNil(t, item.CountPctChange)
	assert.Equal(t, -6.94, *item.CountPctChange)
	require.NotNil(t, item.RatePctChange)
	assert.Equal(t, -7.1, *item.RatePctChange)
}

func TestCompare_OneSidedCategory(t *testing.T) {
	engine := newTestEngine(t, []model.Observation{
		yearlyObs("13", "BURGLARY_RESIDENTIAL", "police_nationale", 2022, 412, fptr(19.31)),
	})

	items, err := engine.CompareAreas(context.Background(), "13", "69", 2022, "police_nationale", "")
	require.NoError(t, err)
	require.Len(t, items, 1)

	item := items[0]
	require.NotNil(t, item.CountA)
	assert.Equal(t, int64(412), *item.CountA)
	assert.Nil(t, item.CountB)
	assert.Nil(t, item.RateB)
	assert.Nil(t, item.CountDiff)
	assert.Nil(t, item.RateDiff)
	assert.Nil(t, item.CountPctChange)
	assert.Nil(t, item.RatePctChange)
}

func TestCompare_UnionOrderedBySortOrder(t *testing.T) {
	engine := newTestEngine(t, []model.Observation{
		// Deliberately sparse and interleaved across the two sides.
		yearlyObs("13", "PUBLIC_ORDER", "police_nationale", 2022, 50, nil),
		yearlyObs("13", "HOMICIDE", "police_nationale", 2022, 10, nil),
		yearlyObs("69", "VEHICLE_THEFT", "police_nationale", 2022, 900, nil),
		yearlyObs("69", "HOMICIDE", "police_nationale", 2022, 8, nil),
	})

	items, err := engine.CompareAreas(context.Background(), "13", "69", 2022, "police_nationale", "")
	require.NoError(t, err)

	codes := make([]string, len(items))
	for i, item := range items {
		codes[i] = item.CategoryCode
	}
	// Union of both sides, each exactly once, in taxonomy order.
	assert.Equal(t, []string{"HOMICIDE", "VEHICLE_THEFT", "PUBLIC_ORDER"}, codes)
}

func TestCompare_SwapNegatesDiffsNotPct(t *testing.T) {
	engine := newTestEngine(t, []model.Observation{
		yearlyObs("13", "ASSAULT", "police_nationale", 2022, 100, fptr(4.0)),
		yearlyObs("69", "ASSAULT", "police_nationale", 2022, 150, fptr(6.0)),
	})

	ab, err := engine.CompareAreas(context.Background(), "13", "69", 2022, "police_nationale", "")
	require.NoError(t, err)
	ba, err := engine.CompareAreas(context.Background(), "69", "13", 2022, "police_nationale", "")
	require.NoError(t, err)
	require.Len(t, ab, 1)
	require.Len(t, ba, 1)

	// Diffs negate cleanly.
	assert.Equal(t, *ab[0].CountDiff, -*ba[0].CountDiff)
	assert.Equal(t, *ab[0].RateDiff, -*ba[0].RateDiff)

	// Percentage change is baseline-relative and does not negate.
	assert.Equal(t, 50.0, *ab[0].CountPctChange)
	assert.Equal(t, -33.33, *ba[0].CountPctChange)
}

func TestCompare_ZeroBaselineGuard(t *testing.T) {
	engine := newTestEngine(t, []model.Observation{
		yearlyObs("13", "ARSON", "police_nationale", 2022, 0, fptr(0)),
		yearlyObs("69", "ARSON", "police_nationale", 2022, 12, fptr(0.56)),
	})

	items, err := engine.CompareAreas(context.Background(), "13", "69", 2022, "police_nationale", "")
	require.NoError(t, err)
	require.Len(t, items, 1)

	item := items[0]
	// Diff is defined; pct change against a zero baseline is not.
	require.NotNil(t, item.CountDiff)
	assert.Equal(t, int64(12), *item.CountDiff)
	assert.Nil(t, item.CountPctChange)
	assert.Nil(t, item.RatePctChange)
}

func TestCompareYears_SharedCore(t *testing.T) {
	engine := newTestEngine(t, []model.Observation{
		yearlyObs("13", "VEHICLE_THEFT", "police_nationale", 2021, 1000, fptr(46.88)),
		yearlyObs("13", "VEHICLE_THEFT", "police_nationale", 2022, 1100, fptr(51.57)),
	})

	items, err := engine.CompareYears(context.Background(), "13", 2021, 2022, "police_nationale", "")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, int64(100), *items[0].CountDiff)
	assert.Equal(t, 10.0, *items[0].CountPctChange)
}

func TestCompareSources_SharedCore(t *testing.T) {
	engine := newTestEngine(t, []model.Observation{
		yearlyObs("13", "THEFT_PERSONAL", "police_nationale", 2022, 5000, nil),
		yearlyObs("13", "THEFT_PERSONAL", "gendarmerie", 2022, 4600, nil),
	})

	items, err := engine.CompareSources(context.Background(), "13", 2022, "police_nationale", "gendarmerie", "")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, int64(-400), *items[0].CountDiff)
	assert.Equal(t, -8.0, *items[0].CountPctChange)
}

func TestCompare_CategoryFilterAppliedToBothSides(t *testing.T) {
	engine := newTestEngine(t, []model.Observation{
		yearlyObs("13", "HOMICIDE", "police_nationale", 2022, 72, nil),
		yearlyObs("13", "ASSAULT", "police_nationale", 2022, 300, nil),
		yearlyObs("69", "HOMICIDE", "police_nationale", 2022, 67, nil),
		yearlyObs("69", "ASSAULT", "police_nationale", 2022, 280, nil),
	})

	items, err := engine.CompareAreas(context.Background(), "13", "69", 2022, "police_nationale", "HOMICIDE")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "HOMICIDE", items[0].CategoryCode)
}

func TestCompare_NotFound(t *testing.T) {
	engine := newTestEngine(t, nil)

	t.Run("unknown area", func(t *testing.T) {
		_, err := engine.CompareAreas(context.Background(), "13", "2A", 2022, "police_nationale", "")
		require.Error(t, err)
		assert.True(t, eris.Is(err, model.ErrNotFound))
	})

	t.Run("unknown source", func(t *testing.T) {
		_, err := engine.CompareAreas(context.Background(), "13", "69", 2022, "interpol", "")
		require.Error(t, err)
		assert.True(t, eris.Is(err, model.ErrNotFound))
	})

	t.Run("unknown category filter", func(t *testing.T) {
		_, err := engine.CompareAreas(context.Background(), "13", "69", 2022, "police_nationale", "JAYWALKING")
		require.Error(t, err)
		assert.True(t, eris.Is(err, model.ErrNotFound))
	})
}

func TestCompare_EmptySidesAreValid(t *testing.T) {
	engine := newTestEngine(t, nil)

	items, err := engine.CompareAreas(context.Background(), "13", "69", 2022, "police_nationale", "")
	require.NoError(t, err)
	assert.Empty(t, items)
}
