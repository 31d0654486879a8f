// Package api exposes the comparison and map engines over HTTP. Handlers
// stay thin: parameter parsing and status mapping here, all arithmetic in
// the engine packages.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/crimestat-cli/internal/compare"
	"github.com/sells-group/crimestat-cli/internal/store"
	"github.com/sells-group/crimestat-cli/internal/taxonomy"
)

// Config tunes the HTTP surface.
type Config struct {
	Addr           string   `yaml:"addr" mapstructure:"addr"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	// RequestsPerSecond caps the sustained request rate across all
	// clients; 0 disables limiting.
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	Burst             int     `yaml:"burst" mapstructure:"burst"`
}

// Server holds the handler dependencies.
type Server struct {
	store  store.Store
	engine *compare.Engine
	cfg    Config
	log    *zap.Logger
}

// NewServer wires a server over a store and taxonomy registry.
func NewServer(st store.Store, reg *taxonomy.Registry, cfg Config) *Server {
	return &Server{
		store:  st,
		engine: compare.NewEngine(st, st, reg),
		cfg:    cfg,
		log:    zap.L().Named("api"),
	}
}

// Router builds the chi route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	origins := s.cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	if s.cfg.RequestsPerSecond > 0 {
		burst := s.cfg.Burst
		if burst < 1 {
			burst = int(s.cfg.RequestsPerSecond) + 1
		}
		r.Use(rateLimit(rate.NewLimiter(rate.Limit(s.cfg.RequestsPerSecond), burst)))
	}

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/categories", s.handleCategories)
		r.Get("/areas", s.handleAreas)
		r.Get("/sources", s.handleSources)
		r.Get("/ingest/runs", s.handleIngestRuns)
		r.Get("/compare/areas", s.handleCompareAreas)
		r.Get("/compare/years", s.handleCompareYears)
		r.Get("/compare/sources", s.handleCompareSources)
		r.Get("/map", s.handleMap)
	})

	return r
}

// rateLimit rejects requests beyond the shared limiter with 429.
func rateLimit(limiter *rate.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				http.Error(w, `{"error":"rate limit exceeded"}`, http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
