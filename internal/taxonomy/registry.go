// Package taxonomy holds the canonical crime category registry: the fixed
// set of categories every source dataset is mapped into. The registry is
// reference data, validated once at load and never mutated afterwards.
package taxonomy

import (
	_ "embed"
	"sort"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/crimestat-cli/internal/model"
)

//go:embed seed.yaml
var seedYAML []byte

// Registry is the validated, immutable set of canonical categories.
type Registry struct {
	byCode  map[string]model.CanonicalCategory
	ordered []model.CanonicalCategory // active categories by sort order
}

type seedFile struct {
	Categories []model.CanonicalCategory `yaml:"categories"`
}

// Load parses the embedded taxonomy seed and validates it.
func Load() (*Registry, error) {
	var seed seedFile
	if err := yaml.Unmarshal(seedYAML, &seed); err != nil {
		return nil, eris.Wrap(err, "taxonomy: parse seed")
	}
	return NewRegistry(seed.Categories)
}

// NewRegistry validates the given categories and builds a registry.
// Integrity violations (unknown enum values, duplicate codes, duplicate
// sort orders among active categories) fail here, at load time, rather
// than surfacing during request handling.
func NewRegistry(categories []model.CanonicalCategory) (*Registry, error) {
	if len(categories) == 0 {
		return nil, eris.New("taxonomy: no categories")
	}

	byCode := make(map[string]model.CanonicalCategory, len(categories))
	sortOrders := make(map[int]string)
	var active []model.CanonicalCategory

	for _, c := range categories {
		if c.Code == "" {
			return nil, eris.New("taxonomy: category with empty code")
		}
		if _, dup := byCode[c.Code]; dup {
			return nil, eris.Errorf("taxonomy: duplicate category code %s", c.Code)
		}
		if _, err := model.ParseSeverity(string(c.Severity)); err != nil {
			return nil, eris.Wrapf(err, "taxonomy: category %s", c.Code)
		}
		if _, err := model.ParseGroup(string(c.Group)); err != nil {
			return nil, eris.Wrapf(err, "taxonomy: category %s", c.Code)
		}
		byCode[c.Code] = c

		if !c.IsActive {
			continue
		}
		if holder, dup := sortOrders[c.SortOrder]; dup {
			return nil, eris.Errorf("taxonomy: sort order %d shared by %s and %s", c.SortOrder, holder, c.Code)
		}
		sortOrders[c.SortOrder] = c.Code
		active = append(active, c)
	}

	// Secondary lexical sort by code keeps the order total even though
	// validation already rejects sort-order collisions.
	sort.Slice(active, func(i, j int) bool {
		if active[i].SortOrder != active[j].SortOrder {
			return active[i].SortOrder < active[j].SortOrder
		}
		return active[i].Code < active[j].Code
	})

	return &Registry{byCode: byCode, ordered: active}, nil
}

// ListActive returns the active categories ordered by sort order.
func (r *Registry) ListActive() []model.CanonicalCategory {
	out := make([]model.CanonicalCategory, len(r.ordered))
	copy(out, r.ordered)
	return out
}

// Get returns the category with the given code, active or not.
// Returns model.ErrNotFound for unknown codes.
func (r *Registry) Get(code string) (model.CanonicalCategory, error) {
	c, ok := r.byCode[code]
	if !ok {
		return model.CanonicalCategory{}, eris.Wrapf(model.ErrNotFound, "taxonomy: category %s", code)
	}
	return c, nil
}

// SortOrder returns the display order of a known category code.
// Unknown codes sort last.
func (r *Registry) SortOrder(code string) int {
	if c, ok := r.byCode[code]; ok {
		return c.SortOrder
	}
	return int(^uint(0) >> 1)
}

// Len returns the total number of categories, active or not.
func (r *Registry) Len() int {
	return len(r.byCode)
}
