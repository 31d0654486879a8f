package store

import (
	sq "github.com/Masterminds/squirrel"

	"github.com/sells-group/crimestat-cli/internal/model"
)

// observationColumns is the canonical column list for observation scans,
// shared by both backends.
var observationColumns = []string{
	"o.id", "o.area_code", "o.category_code", "o.source_code",
	"o.year", "o.month", "o.granularity", "o.count",
	"o.rate_per_100k", "o.population_used", "o.updated_at",
}

// buildObservationQuery assembles the filtered observation select for the
// given placeholder format (Dollar for Postgres, Question for SQLite).
func buildObservationQuery(f ObservationFilter, placeholder sq.PlaceholderFormat) (string, []any, error) {
	q := sq.StatementBuilder.PlaceholderFormat(placeholder).
		Select(observationColumns...).
		From("observations o")

	if f.Level != "" {
		q = q.Join("areas a ON a.code = o.area_code").
			Where(sq.Eq{"a.level": string(f.Level)})
	}
	if f.AreaCode != "" {
		q = q.Where(sq.Eq{"o.area_code": f.AreaCode})
	}
	if f.CategoryCode != "" {
		q = q.Where(sq.Eq{"o.category_code": f.CategoryCode})
	}
	if f.SourceCode != "" {
		q = q.Where(sq.Eq{"o.source_code": f.SourceCode})
	}
	if f.Year != 0 {
		q = q.Where(sq.Eq{"o.year": f.Year})
	}
	if f.YearFrom != 0 {
		q = q.Where(sq.GtOrEq{"o.year": f.YearFrom})
	}
	if f.YearTo != 0 {
		q = q.Where(sq.LtOrEq{"o.year": f.YearTo})
	}
	if f.Granularity != "" {
		q = q.Where(sq.Eq{"o.granularity": string(f.Granularity)})
	}

	return q.OrderBy("o.area_code", "o.category_code", "o.source_code", "o.year", "o.month").ToSql()
}

// monthColumn converts the model's optional month to its storage form.
// The month column is NOT NULL with 0 meaning "not monthly", which keeps
// the composite uniqueness constraint on plain columns.
func monthColumn(month *int) int {
	if month == nil {
		return 0
	}
	return *month
}

// monthFromColumn converts the storage form back to the model's optional
// month.
func monthFromColumn(month int, granularity model.Granularity) *int {
	if granularity != model.GranularityMonthly || month == 0 {
		return nil
	}
	m := month
	return &m
}
