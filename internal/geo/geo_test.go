package geo

import (
	"path/filepath"
	"testing"

	"github.com/jonas-p/go-shp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/crimestat-cli/internal/model"
)

func TestNormalizeAreaName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Paris", "PARIS"},
		{"Île-de-France", "ILE DE FRANCE"},
		{"Rhône", "RHONE"},
		{"Côtes-d'Armor", "COTES D ARMOR"},
		{"  Val   d'Oise ", "VAL D OISE"},
		{"Provence-Alpes-Côte d'Azur", "PROVENCE ALPES COTE D AZUR"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeAreaName(tt.in), "input %q", tt.in)
	}
}

func TestNameIndex(t *testing.T) {
	ix := NewNameIndex()
	ix.Add("Île-de-France", "11")
	ix.Add("Bretagne", "53")

	code, ok := ix.Match("ile de france")
	require.True(t, ok)
	assert.Equal(t, "11", code)

	code, ok = ix.Match("Ile-De-France")
	require.True(t, ok)
	assert.Equal(t, "11", code)

	_, ok = ix.Match("Corse")
	assert.False(t, ok)
}

func TestCentroid(t *testing.T) {
	t.Run("point", func(t *testing.T) {
		lon, lat := centroid(&shp.Point{X: 2.35, Y: 48.85})
		require.NotNil(t, lon)
		assert.InDelta(t, 2.35, *lon, 1e-9)
		assert.InDelta(t, 48.85, *lat, 1e-9)
	})

	t.Run("polygon uses bounding box center", func(t *testing.T) {
		poly := &shp.Polygon{Points: []shp.Point{
			{X: 0, Y: 0}, {X: 4, Y: 0}, {X: 4, Y: 2}, {X: 0, Y: 2},
		}}
		lon, lat := centroid(poly)
		require.NotNil(t, lon)
		assert.InDelta(t, 2.0, *lon, 1e-9)
		assert.InDelta(t, 1.0, *lat, 1e-9)
	})

	t.Run("nil shape", func(t *testing.T) {
		lon, lat := centroid(nil)
		assert.Nil(t, lon)
		assert.Nil(t, lat)
	})
}

func TestLoadBoundariesErrors(t *testing.T) {
	t.Run("missing field mapping", func(t *testing.T) {
		_, err := LoadBoundaries("x.shp", model.LevelDepartment, "FR", FieldMapping{})
		require.Error(t, err)
	})

	t.Run("bad level", func(t *testing.T) {
		_, err := LoadBoundaries("x.shp", "commune", "FR",
			FieldMapping{CodeField: "INSEE_DEP", NameField: "NOM"})
		require.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadBoundaries(filepath.Join(t.TempDir(), "nope.shp"), model.LevelDepartment, "FR",
			FieldMapping{CodeField: "INSEE_DEP", NameField: "NOM"})
		require.Error(t, err)
	})
}

func TestValidateTree(t *testing.T) {
	fr := "FR"
	idf := "11"

	t.Run("complete tree", func(t *testing.T) {
		err := ValidateTree([]model.Area{
			{Code: "FR", Level: model.LevelCountry},
			{Code: "11", Level: model.LevelRegion, ParentCode: &fr},
			{Code: "75", Level: model.LevelDepartment, ParentCode: &idf},
		}, nil)
		require.NoError(t, err)
	})

	t.Run("parent already in store", func(t *testing.T) {
		err := ValidateTree([]model.Area{
			{Code: "75", Level: model.LevelDepartment, ParentCode: &idf},
		}, map[string]bool{"11": true})
		require.NoError(t, err)
	})

	t.Run("missing parent code", func(t *testing.T) {
		err := ValidateTree([]model.Area{
			{Code: "75", Level: model.LevelDepartment},
		}, nil)
		require.Error(t, err)
	})

	t.Run("unknown parent", func(t *testing.T) {
		err := ValidateTree([]model.Area{
			{Code: "75", Level: model.LevelDepartment, ParentCode: &idf},
		}, nil)
		require.Error(t, err)
	})
}
