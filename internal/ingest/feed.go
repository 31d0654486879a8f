// Package ingest pulls raw source feeds through category resolution, rate
// normalization, and persistence, recording every run in the ingest log.
package ingest

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"

	"github.com/sells-group/crimestat-cli/internal/mapping"
)

// Feed is one batch of raw records from a single data source.
type Feed struct {
	SourceCode string              `json:"source_code"`
	Records    []mapping.RawRecord `json:"records"`
}

// LoadFeedFile reads and parses a feed file from disk.
func LoadFeedFile(path string) (Feed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Feed{}, eris.Wrapf(err, "ingest: read feed %s", path)
	}
	var feed Feed
	if err := json.Unmarshal(data, &feed); err != nil {
		return Feed{}, eris.Wrapf(err, "ingest: parse feed %s", path)
	}
	if feed.SourceCode == "" {
		return Feed{}, eris.Errorf("ingest: feed %s: missing source_code", path)
	}
	for i := range feed.Records {
		if feed.Records[i].SourceCode == "" {
			feed.Records[i].SourceCode = feed.SourceCode
		} else if feed.Records[i].SourceCode != feed.SourceCode {
			return Feed{}, eris.Errorf("ingest: feed %s: record %d belongs to source %s",
				path, i, feed.Records[i].SourceCode)
		}
	}
	return feed, nil
}
