// Package mapping resolves source-specific category codes into the canonical
// taxonomy and aggregates raw source records into observation counts at
// ingestion time.
package mapping

import (
	"github.com/rotisserie/eris"

	"github.com/sells-group/crimestat-cli/internal/model"
)

// ErrUnmapped marks a source record with no active mapping. It is an
// outcome, not a failure: batch ingestion counts skips separately from
// errors and never defaults a record into a catch-all category.
var ErrUnmapped = eris.New("mapping: unmapped source category")

type mappingKey struct {
	sourceCode         string
	sourceCategoryCode string
}

// Resolution is the result of resolving one source category code.
type Resolution struct {
	CanonicalCategoryCode string
	// Confidence is advisory metadata for data-quality display. It never
	// participates in comparison or rate arithmetic.
	Confidence float64
}

// Resolver holds the validated mapping table for one or more data sources.
type Resolver struct {
	byKey map[mappingKey]model.SourceCategoryMapping
}

// NewResolver validates mappings and builds a resolver. Each
// (source, source category) pair must map to exactly one canonical category;
// fan-out is an integrity violation and fails here, at load time.
func NewResolver(mappings []model.SourceCategoryMapping) (*Resolver, error) {
	byKey := make(map[mappingKey]model.SourceCategoryMapping, len(mappings))
	for _, m := range mappings {
		if m.DataSourceCode == "" || m.SourceCategoryCode == "" || m.CanonicalCategoryCode == "" {
			return nil, eris.Errorf("mapping: incomplete mapping %s/%s -> %s",
				m.DataSourceCode, m.SourceCategoryCode, m.CanonicalCategoryCode)
		}
		if m.Confidence < 0 || m.Confidence > 1 {
			return nil, eris.Errorf("mapping: %s/%s: confidence %.3f outside [0,1]",
				m.DataSourceCode, m.SourceCategoryCode, m.Confidence)
		}
		key := mappingKey{m.DataSourceCode, m.SourceCategoryCode}
		if existing, dup := byKey[key]; dup {
			return nil, eris.Errorf("mapping: %s/%s maps to both %s and %s",
				m.DataSourceCode, m.SourceCategoryCode, existing.CanonicalCategoryCode, m.CanonicalCategoryCode)
		}
		byKey[key] = m
	}
	return &Resolver{byKey: byKey}, nil
}

// Resolve returns the canonical category for a (source, source category)
// pair. Absent or inactive mappings return ErrUnmapped.
func (r *Resolver) Resolve(sourceCode, sourceCategoryCode string) (Resolution, error) {
	m, ok := r.byKey[mappingKey{sourceCode, sourceCategoryCode}]
	if !ok || !m.IsActive {
		return Resolution{}, eris.Wrapf(ErrUnmapped, "%s/%s", sourceCode, sourceCategoryCode)
	}
	return Resolution{
		CanonicalCategoryCode: m.CanonicalCategoryCode,
		Confidence:            m.Confidence,
	}, nil
}

// Len returns the number of loaded mappings, active or not.
func (r *Resolver) Len() int {
	return len(r.byKey)
}
