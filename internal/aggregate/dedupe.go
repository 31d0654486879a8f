package aggregate

import "github.com/sells-group/crimestat-cli/internal/model"

type dedupeKey struct {
	areaCode     string
	categoryCode string
	year         int
}

// Dedupe keeps exactly one observation per (area, category, year) when
// overlapping data sources report the same fact. The winner is chosen by a
// documented, reproducible tie-break:
//
//  1. higher data-source precedence (explicit per-source integer, seeded at
//     onboarding)
//  2. later UpdatedAt (the more recently validated record)
//  3. lower observation ID, purely to anchor a total order
//
// The surviving set never depends on input order.
func Dedupe(observations []model.Observation, precedence map[string]int) []model.Observation {
	best := make(map[dedupeKey]model.Observation, len(observations))
	var order []dedupeKey

	for _, o := range observations {
		key := dedupeKey{o.AreaCode, o.CategoryCode, o.Year}
		current, exists := best[key]
		if !exists {
			best[key] = o
			order = append(order, key)
			continue
		}
		if wins(o, current, precedence) {
			best[key] = o
		}
	}

	out := make([]model.Observation, 0, len(order))
	for _, key := range order {
		out = append(out, best[key])
	}
	return out
}

func wins(candidate, current model.Observation, precedence map[string]int) bool {
	cp, ip := precedence[candidate.SourceCode], precedence[current.SourceCode]
	if cp != ip {
		return cp > ip
	}
	if !candidate.UpdatedAt.Equal(current.UpdatedAt) {
		return candidate.UpdatedAt.After(current.UpdatedAt)
	}
	return candidate.ID < current.ID
}
