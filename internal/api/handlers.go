package api

import (
	"encoding/json"
	"net/http"
	"sort"
	"strconv"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/crimestat-cli/internal/aggregate"
	"github.com/sells-group/crimestat-cli/internal/model"
	"github.com/sells-group/crimestat-cli/internal/store"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := s.store.ListCategories(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, categories)
}

func (s *Server) handleAreas(w http.ResponseWriter, r *http.Request) {
	var level model.AreaLevel
	if raw := r.URL.Query().Get("level"); raw != "" {
		parsed, err := model.ParseAreaLevel(raw)
		if err != nil {
			s.writeBadRequest(w, err.Error())
			return
		}
		level = parsed
	}
	areas, err := s.store.ListAreas(r.Context(), level)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, areas)
}

func (s *Server) handleSources(w http.ResponseWriter, r *http.Request) {
	sources, err := s.store.ListSources(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, sources)
}

func (s *Server) handleIngestRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.store.ListIngestRuns(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleCompareAreas(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	areaA, areaB := q.Get("areaCodeA"), q.Get("areaCodeB")
	sourceCode := q.Get("sourceCode")
	if areaA == "" || areaB == "" || sourceCode == "" {
		s.writeBadRequest(w, "areaCodeA, areaCodeB, and sourceCode are required")
		return
	}
	year, ok := s.intParam(w, q.Get("year"), "year")
	if !ok {
		return
	}

	items, err := s.engine.CompareAreas(r.Context(), areaA, areaB, year, sourceCode, q.Get("category"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleCompareYears(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	areaCode, sourceCode := q.Get("areaCode"), q.Get("sourceCode")
	if areaCode == "" || sourceCode == "" {
		s.writeBadRequest(w, "areaCode and sourceCode are required")
		return
	}
	yearA, ok := s.intParam(w, q.Get("yearA"), "yearA")
	if !ok {
		return
	}
	yearB, ok := s.intParam(w, q.Get("yearB"), "yearB")
	if !ok {
		return
	}

	items, err := s.engine.CompareYears(r.Context(), areaCode, yearA, yearB, sourceCode, q.Get("category"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleCompareSources(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	areaCode := q.Get("areaCode")
	sourceA, sourceB := q.Get("sourceCodeA"), q.Get("sourceCodeB")
	if areaCode == "" || sourceA == "" || sourceB == "" {
		s.writeBadRequest(w, "areaCode, sourceCodeA, and sourceCodeB are required")
		return
	}
	year, ok := s.intParam(w, q.Get("year"), "year")
	if !ok {
		return
	}

	items, err := s.engine.CompareSources(r.Context(), areaCode, year, sourceA, sourceB, q.Get("category"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, items)
}

// mapValue is one area's aggregated value in a map response.
type mapValue struct {
	AreaCode string  `json:"area_code"`
	Value    float64 `json:"value"`
}

func (s *Server) handleMap(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	mode, err := aggregate.ParseMode(q.Get("mode"))
	if err != nil {
		s.writeBadRequest(w, err.Error())
		return
	}

	filter := store.ObservationFilter{
		CategoryCode: q.Get("category"),
		Granularity:  model.GranularityYearly,
	}
	if raw := q.Get("level"); raw != "" {
		level, err := model.ParseAreaLevel(raw)
		if err != nil {
			s.writeBadRequest(w, err.Error())
			return
		}
		filter.Level = level
	}

	switch {
	case q.Get("year") != "":
		year, ok := s.intParam(w, q.Get("year"), "year")
		if !ok {
			return
		}
		filter.Year = year
	case q.Get("yearFrom") != "" && q.Get("yearTo") != "":
		from, ok := s.intParam(w, q.Get("yearFrom"), "yearFrom")
		if !ok {
			return
		}
		to, ok := s.intParam(w, q.Get("yearTo"), "yearTo")
		if !ok {
			return
		}
		if to < from {
			s.writeBadRequest(w, "yearTo must not precede yearFrom")
			return
		}
		filter.YearFrom, filter.YearTo = from, to
	default:
		s.writeBadRequest(w, "year or yearFrom/yearTo is required")
		return
	}

	observations, err := s.store.ListObservations(r.Context(), filter)
	if err != nil {
		s.writeError(w, err)
		return
	}

	sources, err := s.store.ListSources(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	precedence := make(map[string]int, len(sources))
	for _, src := range sources {
		precedence[src.Code] = src.Precedence
	}

	values, err := aggregate.Aggregate(observations, mode, precedence)
	if err != nil {
		s.writeError(w, err)
		return
	}

	out := make([]mapValue, 0, len(values))
	for areaCode, v := range values {
		out = append(out, mapValue{AreaCode: areaCode, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AreaCode < out[j].AreaCode })
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) intParam(w http.ResponseWriter, raw, name string) (int, bool) {
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		s.writeBadRequest(w, name+" must be a positive integer")
		return 0, false
	}
	return v, true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn("response encode failed", zap.Error(err))
	}
}

func (s *Server) writeBadRequest(w http.ResponseWriter, msg string) {
	s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
}

// writeError maps engine and store errors to status codes: unknown
// reference codes are the caller's mistake (404), everything else is ours
// (500, logged).
func (s *Server) writeError(w http.ResponseWriter, err error) {
	if eris.Is(err, model.ErrNotFound) {
		s.writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}
	s.log.Error("request failed", zap.Error(err))
	s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
}
