package ingest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFeedFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "feed.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadFeedFile(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		path := writeFeedFile(t, `{
			"source_code": "police_nationale",
			"records": [
				{"source_category_code": "101", "area_code": "75", "year": 2021, "granularity": "yearly", "count": 120},
				{"source_category_code": "107", "area_code": "75", "year": 2021, "month": 3, "granularity": "monthly", "count": 9}
			]
		}`)

		feed, err := LoadFeedFile(path)
		require.NoError(t, err)
		assert.Equal(t, "police_nationale", feed.SourceCode)
		require.Len(t, feed.Records, 2)
		assert.Equal(t, "police_nationale", feed.Records[0].SourceCode,
			"records inherit the feed's source code")
		require.NotNil(t, feed.Records[1].Month)
		assert.Equal(t, 3, *feed.Records[1].Month)
	})

	t.Run("missing source code", func(t *testing.T) {
		path := writeFeedFile(t, `{"records": []}`)
		_, err := LoadFeedFile(path)
		require.Error(t, err)
	})

	t.Run("record from a different source", func(t *testing.T) {
		path := writeFeedFile(t, `{
			"source_code": "police_nationale",
			"records": [{"source_code": "gendarmerie", "source_category_code": "VBV", "area_code": "2A", "year": 2021, "granularity": "yearly", "count": 4}]
		}`)
		_, err := LoadFeedFile(path)
		require.Error(t, err)
	})

	t.Run("malformed json", func(t *testing.T) {
		path := writeFeedFile(t, `{`)
		_, err := LoadFeedFile(path)
		require.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadFeedFile(filepath.Join(t.TempDir(), "nope.json"))
		require.Error(t, err)
	})
}
