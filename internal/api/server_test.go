package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/crimestat-cli/internal/compare"
	"github.com/sells-group/crimestat-cli/internal/model"
	"github.com/sells-group/crimestat-cli/internal/store"
	"github.com/sells-group/crimestat-cli/internal/taxonomy"
)

func TestMain(m *testing.M) {
	zap.ReplaceGlobals(zap.NewNop())
	m.Run()
}

// fakeStore is an in-memory store.Store for handler tests.
type fakeStore struct {
	categories   []model.CanonicalCategory
	areas        map[string]model.Area
	sources      map[string]model.DataSource
	observations []model.Observation
	runs         []store.IngestRun
}

func (f *fakeStore) ListCategories(context.Context) ([]model.CanonicalCategory, error) {
	return f.categories, nil
}
func (f *fakeStore) ReplaceCategories(context.Context, []model.CanonicalCategory) error { return nil }
func (f *fakeStore) ListAreas(_ context.Context, level model.AreaLevel) ([]model.Area, error) {
	var out []model.Area
	for _, a := range f.areas {
		if level == "" || a.Level == level {
			out = append(out, a)
		}
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
func (f *fakeStore) UpsertAreas(context.Context, []model.Area) (int64, error) { return 0, nil }
func (f *fakeStore) ListSources(context.Context) ([]model.DataSource, error) {
	var out []model.DataSource
	for _, s := range f.sources {
		out = append(out, s)
	}
	return out, nil
}
func (f *fakeStore) GetSource(_ context.Context, code string) (model.DataSource, error) {
	s, ok := f.sources[code]
	if !ok {
		return model.DataSource{}, eris.Wrapf(model.ErrNotFound, "source %s", code)
	}
	return s, nil
}
func (f *fakeStore) UpsertSources(context.Context, []model.DataSource) (int64, error) {
	return 0, nil
}
func (f *fakeStore) ListMappings(context.Context, string) ([]model.SourceCategoryMapping, error) {
	return nil, nil
}
func (f *fakeStore) UpsertMappings(context.Context, []model.SourceCategoryMapping) (int64, error) {
	return 0, nil
}
func (f *fakeStore) GetPopulation(context.Context, string, int) (*int64, error) { return nil, nil }
func (f *fakeStore) UpsertPopulations(context.Context, []model.Population) (int64, error) {
	return 0, nil
}
func (f *fakeStore) ListObservations(_ context.Context, filter store.ObservationFilter) ([]model.Observation, error) {
	var out []model.Observation
	for _, o := range f.observations {
		if filter.AreaCode != "" && o.AreaCode != filter.AreaCode {
			continue
		}
		if filter.CategoryCode != "" && o.CategoryCode != filter.CategoryCode {
			continue
		}
		if filter.SourceCode != "" && o.SourceCode != filter.SourceCode {
			continue
		}
		if filter.Year != 0 && o.Year != filter.Year {
			continue
		}
		if filter.YearFrom != 0 && o.Year < filter.YearFrom {
			continue
		}
		if filter.YearTo != 0 && o.Year > filter.YearTo {
			continue
		}
		if filter.Granularity != "" && o.Granularity != filter.Granularity {
			continue
		}
		out = append(out, o)
	}
	return out, nil
}
func (f *fakeStore) UpsertObservations(context.Context, []model.Observation) (int64, error) {
	return 0, nil
}
func (f *fakeStore) StartIngest(context.Context, string) (int64, error)        { return 0, nil }
func (f *fakeStore) CompleteIngest(context.Context, int64, store.IngestResult) error { return nil }
func (f *fakeStore) FailIngest(context.Context, int64, string) error           { return nil }
func (f *fakeStore) ListIngestRuns(context.Context) ([]store.IngestRun, error) { return f.runs, nil }
func (f *fakeStore) Migrate(context.Context) error                             { return nil }
func (f *fakeStore) Close() error                                              { return nil }

func obs(area, category, source string, year int, count int64, ratePer100k *float64) model.Observation {
	return model.Observation{
		ID: area + "/" + category + "/" + source, AreaCode: area, CategoryCode: category,
		SourceCode: source, Year: year, Granularity: model.GranularityYearly, Count: count,
		RatePer100k: ratePer100k,
	}
}

func fptr(v float64) *float64 { return &v }

func newTestServer(t *testing.T) (*Server, *fakeStore) {
	t.Helper()
	reg, err := taxonomy.Load()
	require.NoError(t, err)

	f := &fakeStore{
		categories: []model.CanonicalCategory{
			{Code: "HOMICIDE", Name: "Homicide", SortOrder: 10, IsActive: true},
		},
		areas: map[string]model.Area{
			"75": {Code: "75", Name: "Paris", Level: model.LevelDepartment},
			"13": {Code: "13", Name: "Bouches-du-Rhône", Level: model.LevelDepartment},
		},
		sources: map[string]model.DataSource{
			"police_nationale": {Code: "police_nationale", Precedence: 20, IsActive: true},
			"gendarmerie":      {Code: "gendarmerie", Precedence: 10, IsActive: true},
		},
		observations: []model.Observation{
			obs("75", "HOMICIDE", "police_nationale", 2021, 120, fptr(5.6257)),
			obs("13", "HOMICIDE", "police_nationale", 2021, 72, fptr(3.55)),
			obs("13", "HOMICIDE", "gendarmerie", 2021, 80, fptr(3.9)),
		},
	}
	return NewServer(f, reg, Config{}), f
}

func doRequest(t *testing.T, h http.Handler, url string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, url, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doRequest(t, srv.Router(), "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestListEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Router()

	rec := doRequest(t, h, "/api/v1/categories")
	require.Equal(t, http.StatusOK, rec.Code)
	var categories []model.CanonicalCategory
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &categories))
	require.Len(t, categories, 1)
	assert.Equal(t, "HOMICIDE", categories[0].Code)

	rec = doRequest(t, h, "/api/v1/areas?level=department")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, h, "/api/v1/areas?level=commune")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, h, "/api/v1/sources")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCompareAreasEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Router()

	t.Run("ok", func(t *testing.T) {
		rec := doRequest(t, h,
			"/api/v1/compare/areas?areaCodeA=75&areaCodeB=13&year=2021&sourceCode=police_nationale")
		require.Equal(t, http.StatusOK, rec.Code)

		var items []compare.Item
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &items))
		require.Len(t, items, 1)
		assert.Equal(t, "HOMICIDE", items[0].CategoryCode)
		require.NotNil(t, items[0].CountDiff)
		assert.Equal(t, int64(-48), *items[0].CountDiff)
	})

	t.Run("unknown area is 404", func(t *testing.T) {
		rec := doRequest(t, h,
			"/api/v1/compare/areas?areaCodeA=75&areaCodeB=99&year=2021&sourceCode=police_nationale")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("missing params are 400", func(t *testing.T) {
		rec := doRequest(t, h, "/api/v1/compare/areas?areaCodeA=75")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("bad year is 400", func(t *testing.T) {
		rec := doRequest(t, h,
			"/api/v1/compare/areas?areaCodeA=75&areaCodeB=13&year=abc&sourceCode=police_nationale")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestCompareYearsAndSourcesEndpoints(t *testing.T) {
	srv, f := newTestServer(t)
	f.observations = append(f.observations,
		obs("75", "HOMICIDE", "police_nationale", 2020, 110, fptr(5.1)))
	h := srv.Router()

	rec := doRequest(t, h,
		"/api/v1/compare/years?areaCode=75&yearA=2020&yearB=2021&sourceCode=police_nationale")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, h,
		"/api/v1/compare/sources?areaCode=13&year=2021&sourceCodeA=police_nationale&sourceCodeB=gendarmerie")
	require.Equal(t, http.StatusOK, rec.Code)

	var items []compare.Item
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &items))
	require.Len(t, items, 1)
	require.NotNil(t, items[0].CountDiff)
	assert.Equal(t, int64(8), *items[0].CountDiff)
}

func TestMapEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Router()

	t.Run("count mode dedupes by precedence", func(t *testing.T) {
		rec := doRequest(t, h, "/api/v1/map?year=2021&mode=count")
		require.Equal(t, http.StatusOK, rec.Code)

		var values []mapValue
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &values))
		require.Len(t, values, 2)
		// Sorted by area code; 13 keeps only the police_nationale row.
		assert.Equal(t, "13", values[0].AreaCode)
		assert.Equal(t, float64(72), values[0].Value)
		assert.Equal(t, "75", values[1].AreaCode)
		assert.Equal(t, float64(120), values[1].Value)
	})

	t.Run("rate mode", func(t *testing.T) {
		rec := doRequest(t, h, "/api/v1/map?year=2021&mode=rate")
		require.Equal(t, http.StatusOK, rec.Code)

		var values []mapValue
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &values))
		require.Len(t, values, 2)
		assert.InDelta(t, 3.55, values[0].Value, 1e-9)
	})

	t.Run("missing mode is 400", func(t *testing.T) {
		rec := doRequest(t, h, "/api/v1/map?year=2021")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("missing years are 400", func(t *testing.T) {
		rec := doRequest(t, h, "/api/v1/map?mode=count")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("inverted range is 400", func(t *testing.T) {
		rec := doRequest(t, h, "/api/v1/map?mode=count&yearFrom=2022&yearTo=2020")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestRateLimit(t *testing.T) {
	reg, err := taxonomy.Load()
	require.NoError(t, err)
	srv := NewServer(&fakeStore{}, reg, Config{RequestsPerSecond: 1, Burst: 1})
	h := srv.Router()

	first := doRequest(t, h, "/health")
	assert.Equal(t, http.StatusOK, first.Code)

	second := doRequest(t, h, "/health")
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
}
