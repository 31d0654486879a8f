// Package seed loads the embedded reference data (sources, areas,
// populations, category mappings) and the canonical taxonomy into a store.
package seed

import (
	"context"
	_ "embed"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/crimestat-cli/internal/mapping"
	"github.com/sells-group/crimestat-cli/internal/model"
	"github.com/sells-group/crimestat-cli/internal/store"
	"github.com/sells-group/crimestat-cli/internal/taxonomy"
)

//go:embed reference.yaml
var referenceYAML []byte

type seedMapping struct {
	Source         string  `yaml:"source"`
	SourceCategory string  `yaml:"source_category"`
	Canonical      string  `yaml:"canonical"`
	Confidence     float64 `yaml:"confidence"`
	Notes          string  `yaml:"notes"`
}

// Reference is the parsed embedded reference data.
type Reference struct {
	Sources     []model.DataSource `yaml:"sources"`
	Areas       []model.Area       `yaml:"areas"`
	Populations []model.Population `yaml:"populations"`
	Mappings    []seedMapping      `yaml:"mappings"`
}

// Summary reports what a seed run wrote.
type Summary struct {
	Categories  int
	Sources     int64
	Areas       int64
	Populations int64
	Mappings    int64
}

// Load parses the embedded reference file and validates it against the
// embedded taxonomy: every mapping must target a known canonical category
// and pass the resolver's integrity checks.
func Load() (*Reference, []model.SourceCategoryMapping, error) {
	var ref Reference
	if err := yaml.Unmarshal(referenceYAML, &ref); err != nil {
		return nil, nil, eris.Wrap(err, "seed: parse reference.yaml")
	}

	reg, err := taxonomy.Load()
	if err != nil {
		return nil, nil, err
	}

	mappings := make([]model.SourceCategoryMapping, 0, len(ref.Mappings))
	for _, m := range ref.Mappings {
		if _, err := reg.Get(m.Canonical); err != nil {
			return nil, nil, eris.Wrapf(err, "seed: mapping %s/%s", m.Source, m.SourceCategory)
		}
		mappings = append(mappings, model.SourceCategoryMapping{
			DataSourceCode:        m.Source,
			SourceCategoryCode:    m.SourceCategory,
			CanonicalCategoryCode: m.Canonical,
			Confidence:            m.Confidence,
			IsActive:              true,
			Notes:                 m.Notes,
		})
	}
	if _, err := mapping.NewResolver(mappings); err != nil {
		return nil, nil, eris.Wrap(err, "seed: validate mappings")
	}

	return &ref, mappings, nil
}

// Apply writes the taxonomy and reference data into the store.
func Apply(ctx context.Context, st store.Store) (Summary, error) {
	ref, mappings, err := Load()
	if err != nil {
		return Summary{}, err
	}

	reg, err := taxonomy.Load()
	if err != nil {
		return Summary{}, err
	}
	categories := reg.ListActive()

	var sum Summary
	if err := st.ReplaceCategories(ctx, categories); err != nil {
		return sum, err
	}
	sum.Categories = len(categories)

	if sum.Sources, err = st.UpsertSources(ctx, ref.Sources); err != nil {
		return sum, err
	}
	if sum.Areas, err = st.UpsertAreas(ctx, ref.Areas); err != nil {
		return sum, err
	}
	if sum.Populations, err = st.UpsertPopulations(ctx, ref.Populations); err != nil {
		return sum, err
	}
	if sum.Mappings, err = st.UpsertMappings(ctx, mappings); err != nil {
		return sum, err
	}
	return sum, nil
}
