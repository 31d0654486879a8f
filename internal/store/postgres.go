package store

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/crimestat-cli/internal/db"
	"github.com/sells-group/crimestat-cli/internal/model"
)

var _ Store = (*PostgresStore)(nil)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// the hottest read paths (reference lookups run once per request).
var preparedStatements = map[string]string{
	"get_area":       `SELECT code, name, level, parent_code, country_code, centroid_lon, centroid_lat FROM areas WHERE code = $1`,
	"get_source":     `SELECT code, name, country_code, precedence, is_active FROM data_sources WHERE code = $1`,
	"get_population": `SELECT population_count FROM populations WHERE area_code = $1 AND year = $2`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool. Used by tests with pgxmock.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Pool returns the underlying database pool for subsystems needing direct
// query access.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS canonical_categories (
	code           TEXT PRIMARY KEY,
	name           TEXT NOT NULL,
	localized_name TEXT NOT NULL DEFAULT '',
	severity       TEXT NOT NULL,
	"group"        TEXT NOT NULL,
	sort_order     INTEGER NOT NULL,
	is_active      BOOLEAN NOT NULL DEFAULT TRUE
);

CREATE TABLE IF NOT EXISTS data_sources (
	code         TEXT PRIMARY KEY,
	name         TEXT NOT NULL,
	country_code TEXT NOT NULL DEFAULT '',
	precedence   INTEGER NOT NULL DEFAULT 0,
	is_active    BOOLEAN NOT NULL DEFAULT TRUE
);

CREATE TABLE IF NOT EXISTS source_category_mappings (
	data_source_code        TEXT NOT NULL REFERENCES data_sources(code),
	source_category_code    TEXT NOT NULL,
	canonical_category_code TEXT NOT NULL REFERENCES canonical_categories(code),
	confidence              DOUBLE PRECISION NOT NULL DEFAULT 1.0,
	is_active               BOOLEAN NOT NULL DEFAULT TRUE,
	notes                   TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (data_source_code, source_category_code)
);

CREATE TABLE IF NOT EXISTS areas (
	code         TEXT NOT NULL,
	name         TEXT NOT NULL,
	level        TEXT NOT NULL,
	parent_code  TEXT,
	country_code TEXT NOT NULL DEFAULT '',
	centroid_lon DOUBLE PRECISION,
	centroid_lat DOUBLE PRECISION,
	PRIMARY KEY (code, level)
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_areas_code ON areas(code);

CREATE TABLE IF NOT EXISTS populations (
	area_code        TEXT NOT NULL,
	year             INTEGER NOT NULL,
	population_count BIGINT NOT NULL,
	source           TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (area_code, year)
);

CREATE TABLE IF NOT EXISTS observations (
	id              TEXT PRIMARY KEY,
	area_code       TEXT NOT NULL,
	category_code   TEXT NOT NULL REFERENCES canonical_categories(code),
	source_code     TEXT NOT NULL REFERENCES data_sources(code),
	year            INTEGER NOT NULL,
	month           INTEGER NOT NULL DEFAULT 0,
	granularity     TEXT NOT NULL,
	count           BIGINT NOT NULL CHECK (count >= 0),
	rate_per_100k   DOUBLE PRECISION,
	population_used BIGINT,
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (area_code, category_code, source_code, year, month, granularity)
);

CREATE INDEX IF NOT EXISTS idx_observations_area_year ON observations(area_code, year);
CREATE INDEX IF NOT EXISTS idx_observations_source_year ON observations(source_code, year);
CREATE INDEX IF NOT EXISTS idx_observations_category ON observations(category_code);

CREATE TABLE IF NOT EXISTS ingest_log (
	id           BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	source_code  TEXT NOT NULL,
	status       TEXT NOT NULL,
	started_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	completed_at TIMESTAMPTZ,
	rows_synced  BIGINT NOT NULL DEFAULT 0,
	unmapped     INTEGER NOT NULL DEFAULT 0,
	invalid      INTEGER NOT NULL DEFAULT 0,
	error        TEXT
);

CREATE INDEX IF NOT EXISTS idx_ingest_log_source ON ingest_log(source_code, started_at DESC);
`

// Migrate applies the schema.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresMigration); err != nil {
		return eris.Wrap(err, "postgres: migrate")
	}
	return nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) ListCategories(ctx context.Context) ([]model.CanonicalCategory, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT code, name, localized_name, severity, "group", sort_order, is_active
		 FROM canonical_categories ORDER BY sort_order, code`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list categories")
	}
	defer rows.Close()

	var categories []model.CanonicalCategory
	for rows.Next() {
		var c model.CanonicalCategory
		if err := rows.Scan(&c.Code, &c.Name, &c.LocalizedName, &c.Severity, &c.Group, &c.SortOrder, &c.IsActive); err != nil {
			return nil, eris.Wrap(err, "postgres: scan category")
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

// ReplaceCategories reseeds the canonical taxonomy. Only the seed command
// calls this; request paths treat the table as read-only.
func (s *PostgresStore) ReplaceCategories(ctx context.Context, categories []model.CanonicalCategory) error {
	rows := make([][]any, 0, len(categories))
	for _, c := range categories {
		rows = append(rows, []any{c.Code, c.Name, c.LocalizedName, string(c.Severity), string(c.Group), c.SortOrder, c.IsActive})
	}
	_, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "canonical_categories",
		Columns:      []string{"code", "name", "localized_name", "severity", "group", "sort_order", "is_active"},
		ConflictKeys: []string{"code"},
	}, rows)
	if err != nil {
		return eris.Wrap(err, "postgres: replace categories")
	}
	return nil
}

func (s *PostgresStore) ListAreas(ctx context.Context, level model.AreaLevel) ([]model.Area, error) {
	q := sq.StatementBuilder.PlaceholderFormat(sq.Dollar).
		Select("code", "name", "level", "parent_code", "country_code", "centroid_lon", "centroid_lat").
		From("areas").
		OrderBy("level", "code")
	if level != "" {
		q = q.Where(sq.Eq{"level": string(level)})
	}
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, eris.Wrap(err, "postgres: build list areas")
	}

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list areas")
	}
	defer rows.Close()

	var areas []model.Area
	for rows.Next() {
		var a model.Area
		if err := rows.Scan(&a.Code, &a.Name, &a.Level, &a.ParentCode, &a.CountryCode, &a.CentroidLon, &a.CentroidLat); err != nil {
			return nil, eris.Wrap(err, "postgres: scan area")
		}
		areas = append(areas, a)
	}
	return areas, rows.Err()
}

func (s *PostgresStore) GetArea(ctx context.Context, code string) (model.Area, error) {
	var a model.Area
	err := s.pool.QueryRow(ctx, preparedStatements["get_area"], code).
		Scan(&a.Code, &a.Name, &a.Level, &a.ParentCode, &a.CountryCode, &a.CentroidLon, &a.CentroidLat)
	if err != nil {
		if eris.Is(err, pgx.ErrNoRows) {
			return model.Area{}, eris.Wrapf(model.ErrNotFound, "postgres: area %s", code)
		}
		return model.Area{}, eris.Wrapf(err, "postgres: get area %s", code)
	}
	return a, nil
}

func (s *PostgresStore) UpsertAreas(ctx context.Context, areas []model.Area) (int64, error) {
	rows := make([][]any, 0, len(areas))
	for _, a := range areas {
		rows = append(rows, []any{a.Code, a.Name, string(a.Level), a.ParentCode, a.CountryCode, a.CentroidLon, a.CentroidLat})
	}
	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "areas",
		Columns:      []string{"code", "name", "level", "parent_code", "country_code", "centroid_lon", "centroid_lat"},
		ConflictKeys: []string{"code", "level"},
	}, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: upsert areas")
	}
	return n, nil
}

func (s *PostgresStore) ListSources(ctx context.Context) ([]model.DataSource, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT code, name, country_code, precedence, is_active
		 FROM data_sources ORDER BY precedence DESC, code`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list sources")
	}
	defer rows.Close()

	var sources []model.DataSource
	for rows.Next() {
		var src model.DataSource
		if err := rows.Scan(&src.Code, &src.Name, &src.CountryCode, &src.Precedence, &src.IsActive); err != nil {
			return nil, eris.Wrap(err, "postgres: scan source")
		}
		sources = append(sources, src)
	}
	return sources, rows.Err()
}

func (s *PostgresStore) GetSource(ctx context.Context, code string) (model.DataSource, error) {
	var src model.DataSource
	err := s.pool.QueryRow(ctx, preparedStatements["get_source"], code).
		Scan(&src.Code, &src.Name, &src.CountryCode, &src.Precedence, &src.IsActive)
	if err != nil {
		if eris.Is(err, pgx.ErrNoRows) {
			return model.DataSource{}, eris.Wrapf(model.ErrNotFound, "postgres: source %s", code)
		}
		return model.DataSource{}, eris.Wrapf(err, "postgres: get source %s", code)
	}
	return src, nil
}

func (s *PostgresStore) UpsertSources(ctx context.Context, sources []model.DataSource) (int64, error) {
	rows := make([][]any, 0, len(sources))
	for _, src := range sources {
		rows = append(rows, []any{src.Code, src.Name, src.CountryCode, src.Precedence, src.IsActive})
	}
	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "data_sources",
		Columns:      []string{"code", "name", "country_code", "precedence", "is_active"},
		ConflictKeys: []string{"code"},
	}, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: upsert sources")
	}
	return n, nil
}

func (s *PostgresStore) ListMappings(ctx context.Context, sourceCode string) ([]model.SourceCategoryMapping, error) {
	q := sq.StatementBuilder.PlaceholderFormat(sq.Dollar).
		Select("data_source_code", "source_category_code", "canonical_category_code", "confidence", "is_active", "notes").
		From("source_category_mappings").
		OrderBy("data_source_code", "source_category_code")
	if sourceCode != "" {
		q = q.Where(sq.Eq{"data_source_code": sourceCode})
	}
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, eris.Wrap(err, "postgres: build list mappings")
	}

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list mappings")
	}
	defer rows.Close()

	var mappings []model.SourceCategoryMapping
	for rows.Next() {
		var m model.SourceCategoryMapping
		if err := rows.Scan(&m.DataSourceCode, &m.SourceCategoryCode, &m.CanonicalCategoryCode, &m.Confidence, &m.IsActive, &m.Notes); err != nil {
			return nil, eris.Wrap(err, "postgres: scan mapping")
		}
		mappings = append(mappings, m)
	}
	return mappings, rows.Err()
}

func (s *PostgresStore) UpsertMappings(ctx context.Context, mappings []model.SourceCategoryMapping) (int64, error) {
	rows := make([][]any, 0, len(mappings))
	for _, m := range mappings {
		rows = append(rows, []any{m.DataSourceCode, m.SourceCategoryCode, m.CanonicalCategoryCode, m.Confidence, m.IsActive, m.Notes})
	}
	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "source_category_mappings",
		Columns:      []string{"data_source_code", "source_category_code", "canonical_category_code", "confidence", "is_active", "notes"},
		ConflictKeys: []string{"data_source_code", "source_category_code"},
	}, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: upsert mappings")
	}
	return n, nil
}

// GetPopulation returns the population denominator for an area and year,
// or nil when no figure is recorded. Absence is not an error: the rate
// normalizer turns a nil denominator into a nil rate.
func (s *PostgresStore) GetPopulation(ctx context.Context, areaCode string, year int) (*int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, preparedStatements["get_population"], areaCode, year).Scan(&count)
	if err != nil {
		if eris.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get population %s/%d", areaCode, year)
	}
	return &count, nil
}

func (s *PostgresStore) UpsertPopulations(ctx context.Context, populations []model.Population) (int64, error) {
	rows := make([][]any, 0, len(populations))
	for _, p := range populations {
		rows = append(rows, []any{p.AreaCode, p.Year, p.Count, p.Source})
	}
	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "populations",
		Columns:      []string{"area_code", "year", "population_count", "source"},
		ConflictKeys: []string{"area_code", "year"},
	}, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: upsert populations")
	}
	return n, nil
}

func (s *PostgresStore) ListObservations(ctx context.Context, f ObservationFilter) ([]model.Observation, error) {
	sql, args, err := buildObservationQuery(f, sq.Dollar)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: build observation query")
	}

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list observations")
	}
	defer rows.Close()

	var observations []model.Observation
	for rows.Next() {
		var o model.Observation
		var month int
		if err := rows.Scan(&o.ID, &o.AreaCode, &o.CategoryCode, &o.SourceCode,
			&o.Year, &month, &o.Granularity, &o.Count,
			&o.RatePer100k, &o.PopulationUsed, &o.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan observation")
		}
		o.Month = monthFromColumn(month, o.Granularity)
		observations = append(observations, o)
	}
	return observations, rows.Err()
}

// UpsertObservations writes a batch of observations, updating count, rate,
// and audit fields when the composite key already exists. The batch is
// applied in one transaction, which serializes concurrent writers per key
// at the database.
func (s *PostgresStore) UpsertObservations(ctx context.Context, observations []model.Observation) (int64, error) {
	rows := make([][]any, 0, len(observations))
	for _, o := range observations {
		if err := o.Validate(); err != nil {
			return 0, eris.Wrap(err, "postgres: upsert observations")
		}
		rows = append(rows, []any{
			o.ID, o.AreaCode, o.CategoryCode, o.SourceCode,
			o.Year, monthColumn(o.Month), string(o.Granularity), o.Count,
			o.RatePer100k, o.PopulationUsed, o.UpdatedAt,
		})
	}
	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table: "observations",
		Columns: []string{
			"id", "area_code", "category_code", "source_code",
			"year", "month", "granularity", "count",
			"rate_per_100k", "population_used", "updated_at",
		},
		ConflictKeys: []string{"area_code", "category_code", "source_code", "year", "month", "granularity"},
		UpdateCols:   []string{"count", "rate_per_100k", "population_used", "updated_at"},
	}, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: upsert observations")
	}
	return n, nil
}

func (s *PostgresStore) StartIngest(ctx context.Context, sourceCode string) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO ingest_log (source_code, status, started_at)
		 VALUES ($1, 'running', now()) RETURNING id`,
		sourceCode,
	).Scan(&id)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: start ingest for %s", sourceCode)
	}
	return id, nil
}

func (s *PostgresStore) CompleteIngest(ctx context.Context, id int64, result IngestResult) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE ingest_log
		 SET status = 'complete', completed_at = now(), rows_synced = $1, unmapped = $2, invalid = $3
		 WHERE id = $4`,
		result.RowsUpserted, result.Unmapped, result.Invalid, id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete ingest %d", id)
	}
	return nil
}

func (s *PostgresStore) FailIngest(ctx context.Context, id int64, errMsg string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE ingest_log
		 SET status = 'failed', completed_at = now(), error = $1
		 WHERE id = $2`,
		errMsg, id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: fail ingest %d", id)
	}
	return nil
}

func (s *PostgresStore) ListIngestRuns(ctx context.Context) ([]IngestRun, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, source_code, status, started_at, completed_at, rows_synced, unmapped, invalid, error
		 FROM ingest_log ORDER BY started_at DESC`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list ingest runs")
	}
	defer rows.Close()

	var runs []IngestRun
	for rows.Next() {
		var r IngestRun
		var errStr *string
		if err := rows.Scan(&r.ID, &r.SourceCode, &r.Status, &r.StartedAt, &r.CompletedAt, &r.Rows, &r.Unmapped, &r.Invalid, &errStr); err != nil {
			return nil, eris.Wrap(err, "postgres: scan ingest run")
		}
		if errStr != nil {
			r.Error = *errStr
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
