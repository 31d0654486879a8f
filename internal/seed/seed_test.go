package seed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/crimestat-cli/internal/model"
	"github.com/sells-group/crimestat-cli/internal/store"
)

func TestLoadEmbeddedReference(t *testing.T) {
	ref, mappings, err := Load()
	require.NoError(t, err)

	require.Len(t, ref.Sources, 2)
	assert.Greater(t, ref.Sources[0].Precedence, ref.Sources[1].Precedence,
		"police_nationale outranks gendarmerie for dedupe")

	levels := map[model.AreaLevel]int{}
	byCode := map[string]model.Area{}
	for _, a := range ref.Areas {
		levels[a.Level]++
		byCode[a.Code] = a
	}
	assert.Equal(t, 1, levels[model.LevelCountry])
	assert.NotZero(t, levels[model.LevelRegion])
	assert.NotZero(t, levels[model.LevelDepartment])

	// Every non-country area resolves its parent within the seed.
	for _, a := range ref.Areas {
		if a.Level == model.LevelCountry {
			continue
		}
		require.NotNil(t, a.ParentCode, "area %s", a.Code)
		parent, ok := byCode[*a.ParentCode]
		require.True(t, ok, "area %s parent %s", a.Code, *a.ParentCode)
		assert.Equal(t, a.Level.Parent(), parent.Level)
	}

	for _, p := range ref.Populations {
		assert.Positive(t, p.Count)
		_, ok := byCode[p.AreaCode]
		assert.True(t, ok, "population for unknown area %s", p.AreaCode)
	}

	require.NotEmpty(t, mappings)
	for _, m := range mappings {
		assert.True(t, m.IsActive)
		assert.GreaterOrEqual(t, m.Confidence, 0.0)
		assert.LessOrEqual(t, m.Confidence, 1.0)
	}
}

type countingStore struct {
	store.Store // nil; only the methods below are called
	categories  int
	sources     int
	areas       int
	populations int
	mappings    int
}

func (c *countingStore) ReplaceCategories(_ context.Context, cs []model.CanonicalCategory) error {
	c.categories = len(cs)
	return nil
}
func (c *countingStore) UpsertSources(_ context.Context, s []model.DataSource) (int64, error) {
	c.sources = len(s)
	return int64(len(s)), nil
}
func (c *countingStore) UpsertAreas(_ context.Context, a []model.Area) (int64, error) {
	c.areas = len(a)
	return int64(len(a)), nil
}
func (c *countingStore) UpsertPopulations(_ context.Context, p []model.Population) (int64, error) {
	c.populations = len(p)
	return int64(len(p)), nil
}
func (c *countingStore) UpsertMappings(_ context.Context, m []model.SourceCategoryMapping) (int64, error) {
	c.mappings = len(m)
	return int64(len(m)), nil
}

func TestApply(t *testing.T) {
	st := &countingStore{}
	sum, err := Apply(context.Background(), st)
	require.NoError(t, err)

	assert.Equal(t, 20, sum.Categories)
	assert.Equal(t, int64(2), sum.Sources)
	assert.Equal(t, int64(st.areas), sum.Areas)
	assert.Equal(t, int64(st.populations), sum.Populations)
	assert.Equal(t, int64(st.mappings), sum.Mappings)
	assert.NotZero(t, st.mappings)
}
