package compare

import (
	"sort"

	"github.com/sells-group/crimestat-cli/internal/taxonomy"
)

// sortByTaxonomy orders category codes by their registry sort order, with a
// secondary lexical sort so the order stays total even if a registry with
// colliding sort orders is injected.
func sortByTaxonomy(codes []string, reg *taxonomy.Registry) {
	sort.Slice(codes, func(i, j int) bool {
		oi, oj := reg.SortOrder(codes[i]), reg.SortOrder(codes[j])
		if oi != oj {
			return oi < oj
		}
		return codes[i] < codes[j]
	})
}
