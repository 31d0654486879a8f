package store

import (
	"context"
	"database/sql"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/crimestat-cli/internal/model"
)

var _ Store = (*SQLiteStore)(nil)

// SQLiteStore implements Store on a local SQLite file. It exists so the
// CLI works without a Postgres instance; the HTTP server and ingest use
// it the same way through the Store interface.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens (and creates if needed) a SQLite database at path.
func NewSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	d, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: open %s", path)
	}
	// Single writer; avoids SQLITE_BUSY under the CLI's access pattern.
	d.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := d.ExecContext(ctx, pragma); err != nil {
			d.Close()
			return nil, eris.Wrapf(err, "sqlite: %s", pragma)
		}
	}
	return &SQLiteStore{db: d}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS canonical_categories (
	code           TEXT PRIMARY KEY,
	name           TEXT NOT NULL,
	localized_name TEXT NOT NULL DEFAULT '',
	severity       TEXT NOT NULL,
	"group"        TEXT NOT NULL,
	sort_order     INTEGER NOT NULL,
	is_active      BOOLEAN NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS data_sources (
	code         TEXT PRIMARY KEY,
	name         TEXT NOT NULL,
	country_code TEXT NOT NULL DEFAULT '',
	precedence   INTEGER NOT NULL DEFAULT 0,
	is_active    BOOLEAN NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS source_category_mappings (
	data_source_code        TEXT NOT NULL REFERENCES data_sources(code),
	source_category_code    TEXT NOT NULL,
	canonical_category_code TEXT NOT NULL REFERENCES canonical_categories(code),
	confidence              REAL NOT NULL DEFAULT 1.0,
	is_active               BOOLEAN NOT NULL DEFAULT 1,
	notes                   TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (data_source_code, source_category_code)
);

CREATE TABLE IF NOT EXISTS areas (
	code         TEXT NOT NULL,
	name         TEXT NOT NULL,
	level        TEXT NOT NULL,
	parent_code  TEXT,
	country_code TEXT NOT NULL DEFAULT '',
	centroid_lon REAL,
	centroid_lat REAL,
	PRIMARY KEY (code, level)
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_areas_code ON areas(code);

CREATE TABLE IF NOT EXISTS populations (
	area_code        TEXT NOT NULL,
	year             INTEGER NOT NULL,
	population_count INTEGER NOT NULL,
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
	count           INTEGER NOT NULL CHECK (count >= 0),
	rate_per_100k   REAL,
	population_used INTEGER,
	updated_at      TIMESTAMP NOT NULL,
	UNIQUE (area_code, category_code, source_code, year, month, granularity)
);

CREATE INDEX IF NOT EXISTS idx_observations_area_year ON observations(area_code, year);
CREATE INDEX IF NOT EXISTS idx_observations_source_year ON observations(source_code, year);
CREATE INDEX IF NOT EXISTS idx_observations_category ON observations(category_code);

CREATE TABLE IF NOT EXISTS ingest_log (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	source_code  TEXT NOT NULL,
	status       TEXT NOT NULL,
	started_at   TIMESTAMP NOT NULL,
	completed_at TIMESTAMP,
	rows_synced  INTEGER NOT NULL DEFAULT 0,
	unmapped     INTEGER NOT NULL DEFAULT 0,
	invalid      INTEGER NOT NULL DEFAULT 0,
	error        TEXT
);

CREATE INDEX IF NOT EXISTS idx_ingest_log_source ON ingest_log(source_code, started_at DESC);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteMigration); err != nil {
		return eris.Wrap(err, "sqlite: migrate")
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// upsertRows runs per-row INSERT ... ON CONFLICT statements inside one
// transaction. No COPY path here; batches are small enough locally.
func (s *SQLiteStore) upsertRows(ctx context.Context, query string, rows [][]any) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare upsert")
	}
	defer stmt.Close()

	var total int64
	for _, row := range rows {
		res, err := stmt.ExecContext(ctx, row...)
		if err != nil {
			return 0, eris.Wrap(err, "sqlite: upsert row")
		}
		n, _ := res.RowsAffected()
		total += n
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit tx")
	}
	return total, nil
}

func (s *SQLiteStore) ListCategories(ctx context.Context) ([]model.CanonicalCategory, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT code, name, localized_name, severity, "group", sort_order, is_active
		 FROM canonical_categories ORDER BY sort_order, code`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list categories")
	}
	defer rows.Close()

	var categories []model.CanonicalCategory
	for rows.Next() {
		var c model.CanonicalCategory
		if err := rows.Scan(&c.Code, &c.Name, &c.LocalizedName, &c.Severity, &c.Group, &c.SortOrder, &c.IsActive); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan category")
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

func (s *SQLiteStore) ReplaceCategories(ctx context.Context, categories []model.CanonicalCategory) error {
	rows := make([][]any, 0, len(categories))
	for _, c := range categories {
		rows = append(rows, []any{c.Code, c.Name, c.LocalizedName, string(c.Severity), string(c.Group), c.SortOrder, c.IsActive})
	}
	_, err := s.upsertRows(ctx,
		`INSERT INTO canonical_categories (code, name, localized_name, severity, "group", sort_order, is_active)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (code) DO UPDATE SET
		   name = excluded.name, localized_name = excluded.localized_name,
		   severity = excluded.severity, "group" = excluded."group",
		   sort_order = excluded.sort_order, is_active = excluded.is_active`,
		rows)
	if err != nil {
		return eris.Wrap(err, "sqlite: replace categories")
	}
	return nil
}

func (s *SQLiteStore) ListAreas(ctx context.Context, level model.AreaLevel) ([]model.Area, error) {
	q := sq.StatementBuilder.PlaceholderFormat(sq.Question).
		Select("code", "name", "level", "parent_code", "country_code", "centroid_lon", "centroid_lat").
		From("areas").
		OrderBy("level", "code")
	if level != "" {
		q = q.Where(sq.Eq{"level": string(level)})
	}
	query, args, err := q.ToSql()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: build list areas")
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list areas")
	}
	defer rows.Close()

	var areas []model.Area
	for rows.Next() {
		var a model.Area
		if err := rows.Scan(&a.Code, &a.Name, &a.Level, &a.ParentCode, &a.CountryCode, &a.CentroidLon, &a.CentroidLat); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan area")
		}
		areas = append(areas, a)
	}
	return areas, rows.Err()
}

func (s *SQLiteStore) GetArea(ctx context.Context, code string) (model.Area, error) {
	var a model.Area
	err := s.db.QueryRowContext(ctx,
		`SELECT code, name, level, parent_code, country_code, centroid_lon, centroid_lat
		 FROM areas WHERE code = ?`, code).
		Scan(&a.Code, &a.Name, &a.Level, &a.ParentCode, &a.CountryCode, &a.CentroidLon, &a.CentroidLat)
	if err != nil {
		if eris.Is(err, sql.ErrNoRows) {
			return model.Area{}, eris.Wrapf(model.ErrNotFound, "sqlite: area %s", code)
		}
		return model.Area{}, eris.Wrapf(err, "sqlite: get area %s", code)
	}
	return a, nil
}

func (s *SQLiteStore) UpsertAreas(ctx context.Context, areas []model.Area) (int64, error) {
	rows := make([][]any, 0, len(areas))
	for _, a := range areas {
		rows = append(rows, []any{a.Code, a.Name, string(a.Level), a.ParentCode, a.CountryCode, a.CentroidLon, a.CentroidLat})
	}
	n, err := s.upsertRows(ctx,
		`INSERT INTO areas (code, name, level, parent_code, country_code, centroid_lon, centroid_lat)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (code, level) DO UPDATE SET
		   name = excluded.name, parent_code = excluded.parent_code,
		   country_code = excluded.country_code,
		   centroid_lon = excluded.centroid_lon, centroid_lat = excluded.centroid_lat`,
		rows)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: upsert areas")
	}
	return n, nil
}

func (s *SQLiteStore) ListSources(ctx context.Context) ([]model.DataSource, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT code, name, country_code, precedence, is_active
		 FROM data_sources ORDER BY precedence DESC, code`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list sources")
	}
	defer rows.Close()

	var sources []model.DataSource
	for rows.Next() {
		var src model.DataSource
		if err := rows.Scan(&src.Code, &src.Name, &src.CountryCode, &src.Precedence, &src.IsActive); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan source")
		}
		sources = append(sources, src)
	}
	return sources, rows.Err()
}

func (s *SQLiteStore) GetSource(ctx context.Context, code string) (model.DataSource, error) {
	var src model.DataSource
	err := s.db.QueryRowContext(ctx,
		`SELECT code, name, country_code, precedence, is_active
		 FROM data_sources WHERE code = ?`, code).
		Scan(&src.Code, &src.Name, &src.CountryCode, &src.Precedence, &src.IsActive)
	if err != nil {
		if eris.Is(err, sql.ErrNoRows) {
			return model.DataSource{}, eris.Wrapf(model.ErrNotFound, "sqlite: source %s", code)
		}
		return model.DataSource{}, eris.Wrapf(err, "sqlite: get source %s", code)
	}
	return src, nil
}

func (s *SQLiteStore) UpsertSources(ctx context.Context, sources []model.DataSource) (int64, error) {
	rows := make([][]any, 0, len(sources))
	for _, src := range sources {
		rows = append(rows, []any{src.Code, src.Name, src.CountryCode, src.Precedence, src.IsActive})
	}
	n, err := s.upsertRows(ctx,
		`INSERT INTO data_sources (code, name, country_code, precedence, is_active)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (code) DO UPDATE SET
		   name = excluded.name, country_code = excluded.country_code,
		   precedence = excluded.precedence, is_active = excluded.is_active`,
		rows)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: upsert sources")
	}
	return n, nil
}

func (s *SQLiteStore) ListMappings(ctx context.Context, sourceCode string) ([]model.SourceCategoryMapping, error) {
	q := sq.StatementBuilder.PlaceholderFormat(sq.Question).
		Select("data_source_code", "source_category_code", "canonical_category_code", "confidence", "is_active", "notes").
		From("source_category_mappings").
		OrderBy("data_source_code", "source_category_code")
	if sourceCode != "" {
		q = q.Where(sq.Eq{"data_source_code": sourceCode})
	}
	query, args, err := q.ToSql()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: build list mappings")
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list mappings")
	}
	defer rows.Close()

	var mappings []model.SourceCategoryMapping
	for rows.Next() {
		var m model.SourceCategoryMapping
		if err := rows.Scan(&m.DataSourceCode, &m.SourceCategoryCode, &m.CanonicalCategoryCode, &m.Confidence, &m.IsActive, &m.Notes); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan mapping")
		}
		mappings = append(mappings, m)
	}
	return mappings, rows.Err()
}

func (s *SQLiteStore) UpsertMappings(ctx context.Context, mappings []model.SourceCategoryMapping) (int64, error) {
	rows := make([][]any, 0, len(mappings))
	for _, m := range mappings {
		rows = append(rows, []any{m.DataSourceCode, m.SourceCategoryCode, m.CanonicalCategoryCode, m.Confidence, m.IsActive, m.Notes})
	}
	n, err := s.upsertRows(ctx,
		`INSERT INTO source_category_mappings
		   (data_source_code, source_category_code, canonical_category_code, confidence, is_active, notes)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (data_source_code, source_category_code) DO UPDATE SET
		   canonical_category_code = excluded.canonical_category_code,
		   confidence = excluded.confidence, is_active = excluded.is_active,
		   notes = excluded.notes`,
		rows)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: upsert mappings")
	}
	return n, nil
}

func (s *SQLiteStore) GetPopulation(ctx context.Context, areaCode string, year int) (*int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx,
		`SELECT population_count FROM populations WHERE area_code = ? AND year = ?`,
		areaCode, year).Scan(&count)
	if err != nil {
		if eris.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "sqlite: get population %s/%d", areaCode, year)
	}
	return &count, nil
}

func (s *SQLiteStore) UpsertPopulations(ctx context.Context, populations []model.Population) (int64, error) {
	rows := make([][]any, 0, len(populations))
	for _, p := range populations {
		rows = append(rows, []any{p.AreaCode, p.Year, p.Count, p.Source})
	}
	n, err := s.upsertRows(ctx,
		`INSERT INTO populations (area_code, year, population_count, source)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (area_code, year) DO UPDATE SET
		   population_count = excluded.population_count, source = excluded.source`,
		rows)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: upsert populations")
	}
	return n, nil
}

func (s *SQLiteStore) ListObservations(ctx context.Context, f ObservationFilter) ([]model.Observation, error) {
	query, args, err := buildObservationQuery(f, sq.Question)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: build observation query")
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list observations")
	}
	defer rows.Close()

	var observations []model.Observation
	for rows.Next() {
		var o model.Observation
		var month int
		if err := rows.Scan(&o.ID, &o.AreaCode, &o.CategoryCode, &o.SourceCode,
			&o.Year, &month, &o.Granularity, &o.Count,
			&o.RatePer100k, &o.PopulationUsed, &o.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan observation")
		}
		o.Month = monthFromColumn(month, o.Granularity)
		observations = append(observations, o)
	}
	return observations, rows.Err()
}

func (s *SQLiteStore) UpsertObservations(ctx context.Context, observations []model.Observation) (int64, error) {
	rows := make([][]any, 0, len(observations))
	for _, o := range observations {
		if err := o.Validate(); err != nil {
			return 0, eris.Wrap(err, "sqlite: upsert observations")
		}
		rows = append(rows, []any{
			o.ID, o.AreaCode, o.CategoryCode, o.SourceCode,
			o.Year, monthColumn(o.Month), string(o.Granularity), o.Count,
			o.RatePer100k, o.PopulationUsed, o.UpdatedAt,
		})
	}
	n, err := s.upsertRows(ctx,
		`INSERT INTO observations
		   (id, area_code, category_code, source_code, year, month, granularity, count,
		    rate_per_100k, population_used, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (area_code, category_code, source_code, year, month, granularity) DO UPDATE SET
		   count = excluded.count, rate_per_100k = excluded.rate_per_100k,
		   population_used = excluded.population_used, updated_at = excluded.updated_at`,
		rows)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: upsert observations")
	}
	return n, nil
}

func (s *SQLiteStore) StartIngest(ctx context.Context, sourceCode string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO ingest_log (source_code, status, started_at) VALUES (?, 'running', ?)`,
		sourceCode, time.Now().UTC())
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: start ingest for %s", sourceCode)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: start ingest id")
	}
	return id, nil
}

func (s *SQLiteStore) CompleteIngest(ctx context.Context, id int64, result IngestResult) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE ingest_log
		 SET status = 'complete', completed_at = ?, rows_synced = ?, unmapped = ?, invalid = ?
		 WHERE id = ?`,
		time.Now().UTC(), result.RowsUpserted, result.Unmapped, result.Invalid, id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete ingest %d", id)
	}
	return nil
}

func (s *SQLiteStore) FailIngest(ctx context.Context, id int64, errMsg string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE ingest_log
		 SET status = 'failed', completed_at = ?, error = ?
		 WHERE id = ?`,
		time.Now().UTC(), errMsg, id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: fail ingest %d", id)
	}
	return nil
}

func (s *SQLiteStore) ListIngestRuns(ctx context.Context) ([]IngestRun, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, source_code, status, started_at, completed_at, rows_synced, unmapped, invalid, error
		 FROM ingest_log ORDER BY started_at DESC`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list ingest runs")
	}
	defer rows.Close()

	var runs []IngestRun
	for rows.Next() {
		var r IngestRun
		var errStr *string
		if err := rows.Scan(&r.ID, &r.SourceCode, &r.Status, &r.StartedAt, &r.CompletedAt, &r.Rows, &r.Unmapped, &r.Invalid, &errStr); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan ingest run")
		}
		if errStr != nil {
			r.Error = *errStr
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
