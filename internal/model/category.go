package model

// CanonicalCategory is one of the fixed crime types every source dataset is
// mapped into. Seeded once at startup and read-only afterwards.
type CanonicalCategory struct {
	Code          string   `json:"code" yaml:"code"`
	Name          string   `json:"name" yaml:"name"`
	LocalizedName string   `json:"localized_name" yaml:"localized_name"`
	Severity      Severity `json:"severity" yaml:"severity"`
	Group         Group    `json:"group" yaml:"group"`
	SortOrder     int      `json:"sort_order" yaml:"sort_order"`
	IsActive      bool     `json:"is_active" yaml:"is_active"`
}

// DataSource identifies an external dataset publishing incident counts under
// its own classification scheme. Precedence orders sources for deduplication
// when two sources report the same (area, year): higher wins.
type DataSource struct {
	Code        string `json:"code" yaml:"code"`
	Name        string `json:"name" yaml:"name"`
	CountryCode string `json:"country_code" yaml:"country_code"`
	Precedence  int    `json:"precedence" yaml:"precedence"`
	IsActive    bool   `json:"is_active" yaml:"is_active"`
}

// SourceCategoryMapping links one source-specific category code to exactly
// one canonical category. Confidence is advisory data-quality metadata; it
// never participates in comparison or rate arithmetic.
type SourceCategoryMapping struct {
	DataSourceCode        string  `json:"data_source_code" yaml:"data_source_code"`
	SourceCategoryCode    string  `json:"source_category_code" yaml:"source_category_code"`
	CanonicalCategoryCode string  `json:"canonical_category_code" yaml:"canonical_category_code"`
	Confidence            float64 `json:"confidence" yaml:"confidence"`
	IsActive              bool    `json:"is_active" yaml:"is_active"`
	Notes                 string  `json:"notes,omitempty" yaml:"notes,omitempty"`
}
