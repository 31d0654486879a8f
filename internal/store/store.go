// Package store persists and queries the engine's data: reference tables
// (categories, areas, data sources, mappings), populations, and the
// observation facts. Two backends implement the same interface: Postgres
// for deployments and SQLite for local work.
package store

import (
	"context"
	"time"

	"github.com/sells-group/crimestat-cli/internal/model"
)

// ObservationFilter narrows observation queries. Zero values mean "no
// constraint". Level joins against the area table to restrict results to
// one administrative level (used by the map layer).
type ObservationFilter struct {
	AreaCode     string
	CategoryCode string
	SourceCode   string
	Year         int
	YearFrom     int
	YearTo       int
	Granularity  model.Granularity
	Level        model.AreaLevel
}

// IngestResult summarizes a completed ingest run for the log.
type IngestResult struct {
	RowsUpserted int64 `json:"rows_upserted"`
	Mapped       int   `json:"mapped"`
	Unmapped     int   `json:"unmapped"`
	Invalid      int   `json:"invalid"`
}

// IngestRun is one row of the ingest log.
type IngestRun struct {
	ID          int64      `json:"id"`
	SourceCode  string     `json:"source_code"`
	Status      string     `json:"status"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Rows        int64      `json:"rows"`
	Unmapped    int        `json:"unmapped"`
	Invalid     int        `json:"invalid"`
	Error       string     `json:"error,omitempty"`
}

// Store defines the persistence interface for the statistics engine.
type Store interface {
	// Reference data
	ListCategories(ctx context.Context) ([]model.CanonicalCategory, error)
	ReplaceCategories(ctx context.Context, categories []model.CanonicalCategory) error
	ListAreas(ctx context.Context, level model.AreaLevel) ([]model.Area, error)
	GetArea(ctx context.Context, code string) (model.Area, error)
	UpsertAreas(ctx context.Context, areas []model.Area) (int64, error)
	ListSources(ctx context.Context) ([]model.DataSource, error)
	GetSource(ctx context.Context, code string) (model.DataSource, error)
	UpsertSources(ctx context.Context, sources []model.DataSource) (int64, error)
	ListMappings(ctx context.Context, sourceCode string) ([]model.SourceCategoryMapping, error)
	UpsertMappings(ctx context.Context, mappings []model.SourceCategoryMapping) (int64, error)

	// Populations
	GetPopulation(ctx context.Context, areaCode string, year int) (*int64, error)
	UpsertPopulations(ctx context.Context, populations []model.Population) (int64, error)

	// Observations
	ListObservations(ctx context.Context, f ObservationFilter) ([]model.Observation, error)
	UpsertObservations(ctx context.Context, observations []model.Observation) (int64, error)

	// Ingest log
	StartIngest(ctx context.Context, sourceCode string) (int64, error)
	CompleteIngest(ctx context.Context, id int64, result IngestResult) error
	FailIngest(ctx context.Context, id int64, errMsg string) error
	ListIngestRuns(ctx context.Context) ([]IngestRun, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
