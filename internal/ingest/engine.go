package ingest

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/crimestat-cli/internal/mapping"
	"github.com/sells-group/crimestat-cli/internal/model"
	"github.com/sells-group/crimestat-cli/internal/rate"
	"github.com/sells-group/crimestat-cli/internal/store"
)

// Engine runs feed ingestion against a store.
type Engine struct {
	store store.Store
	log   *zap.Logger
}

// NewEngine creates an ingest engine.
func NewEngine(st store.Store) *Engine {
	return &Engine{store: st, log: zap.L().Named("ingest")}
}

// IngestFeed processes one feed: resolves source categories, aggregates
// counts per observation key, computes per-100k rates where a population
// denominator exists, and upserts the resulting observations. Unmapped and
// invalid records are skipped and counted; they never fail the run.
// Every run is recorded in the ingest log, including failures.
func (e *Engine) IngestFeed(ctx context.Context, feed Feed) (store.IngestResult, error) {
	start := time.Now()
	runID, err := e.store.StartIngest(ctx, feed.SourceCode)
	if err != nil {
		return store.IngestResult{}, eris.Wrap(err, "ingest: start run")
	}

	result, err := e.process(ctx, feed)
	if err != nil {
		runsTotal.WithLabelValues(feed.SourceCode, "failed").Inc()
		if failErr := e.store.FailIngest(ctx, runID, err.Error()); failErr != nil {
			e.log.Warn("could not mark ingest run failed",
				zap.Int64("run_id", runID), zap.Error(failErr))
		}
		return store.IngestResult{}, err
	}

	if err := e.store.CompleteIngest(ctx, runID, result); err != nil {
		return store.IngestResult{}, eris.Wrap(err, "ingest: complete run")
	}

	runsTotal.WithLabelValues(feed.SourceCode, "complete").Inc()
	runDuration.WithLabelValues(feed.SourceCode).Observe(time.Since(start).Seconds())
	e.log.Info("ingest run complete",
		zap.String("source", feed.SourceCode),
		zap.Int64("rows", result.RowsUpserted),
		zap.Int("mapped", result.Mapped),
		zap.Int("unmapped", result.Unmapped),
		zap.Int("invalid", result.Invalid),
		zap.Duration("took", time.Since(start)))
	return result, nil
}

func (e *Engine) process(ctx context.Context, feed Feed) (store.IngestResult, error) {
	resolver, err := e.buildResolver(ctx, feed.SourceCode)
	if err != nil {
		return store.IngestResult{}, err
	}

	batch := resolver.AggregateBatch(feed.Records)
	recordsTotal.WithLabelValues(feed.SourceCode, "mapped").Add(float64(batch.Mapped))
	recordsTotal.WithLabelValues(feed.SourceCode, "unmapped").Add(float64(batch.Unmapped))
	recordsTotal.WithLabelValues(feed.SourceCode, "invalid").Add(float64(batch.Invalid))

	observations, err := e.buildObservations(ctx, batch.Aggregated)
	if err != nil {
		return store.IngestResult{}, err
	}

	var upserted int64
	if len(observations) > 0 {
		upserted, err = e.store.UpsertObservations(ctx, observations)
		if err != nil {
			return store.IngestResult{}, eris.Wrap(err, "ingest: upsert observations")
		}
	}

	return store.IngestResult{
		RowsUpserted: upserted,
		Mapped:       batch.Mapped,
		Unmapped:     batch.Unmapped,
		Invalid:      batch.Invalid,
	}, nil
}

// buildResolver loads the source's mapping table. Mappings that target a
// category no longer active in the taxonomy are treated as inactive, so
// their records count as unmapped rather than landing in a retired bucket.
func (e *Engine) buildResolver(ctx context.Context, sourceCode string) (*mapping.Resolver, error) {
	if _, err := e.store.GetSource(ctx, sourceCode); err != nil {
		return nil, eris.Wrapf(err, "ingest: source %s", sourceCode)
	}

	categories, err := e.store.ListCategories(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: load categories")
	}
	active := make(map[string]bool, len(categories))
	for _, c := range categories {
		if c.IsActive {
			active[c.Code] = true
		}
	}

	mappings, err := e.store.ListMappings(ctx, sourceCode)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: load mappings")
	}
	for i := range mappings {
		if !active[mappings[i].CanonicalCategoryCode] {
			mappings[i].IsActive = false
		}
	}

	resolver, err := mapping.NewResolver(mappings)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: build resolver")
	}
	return resolver, nil
}

type popKey struct {
	areaCode string
	year     int
}

// buildObservations turns aggregated counts into observations, attaching a
// per-100k rate when the area has a population figure for the year. A
// missing denominator leaves the rate nil; a zero count with a denominator
// produces a rate of zero.
func (e *Engine) buildObservations(ctx context.Context, counts []mapping.AggregatedCount) ([]model.Observation, error) {
	now := time.Now().UTC()
	populations := make(map[popKey]*int64)

	observations := make([]model.Observation, 0, len(counts))
	for _, ac := range counts {
		pk := popKey{ac.Key.AreaCode, ac.Key.Year}
		pop, cached := populations[pk]
		if !cached {
			var err error
			pop, err = e.store.GetPopulation(ctx, pk.areaCode, pk.year)
			if err != nil {
				return nil, eris.Wrap(err, "ingest: population lookup")
			}
			populations[pk] = pop
		}

		var month *int
		if ac.Key.Month != 0 {
			m := ac.Key.Month
			month = &m
		}
		observations = append(observations, model.Observation{
			ID:             uuid.NewString(),
			AreaCode:       ac.Key.AreaCode,
			CategoryCode:   ac.Key.CategoryCode,
			SourceCode:     ac.Key.SourceCode,
			Year:           ac.Key.Year,
			Month:          month,
			Granularity:    ac.Key.Granularity,
			Count:          ac.Count,
			RatePer100k:    rate.Normalize(ac.Count, pop),
			PopulationUsed: pop,
			UpdatedAt:      now,
		})
	}
	return observations, nil
}

// FileResult pairs a feed file with its ingest outcome.
type FileResult struct {
	Path   string
	Source string
	Result store.IngestResult
}

// IngestFiles loads and ingests feed files with bounded concurrency.
// Feeds are independent per source, so failures in one file cancel the
// group but completed runs stay committed.
func (e *Engine) IngestFiles(ctx context.Context, paths []string, concurrency int) ([]FileResult, error) {
	if concurrency < 1 {
		concurrency = 1
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	var mu sync.Mutex
	results := make([]FileResult, 0, len(paths))

	for _, path := range paths {
		g.Go(func() error {
			feed, err := LoadFeedFile(path)
			if err != nil {
				return err
			}
			res, err := e.IngestFeed(ctx, feed)
			if err != nil {
				return eris.Wrapf(err, "ingest: feed %s", path)
			}
			mu.Lock()
			results = append(results, FileResult{Path: path, Source: feed.SourceCode, Result: res})
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}
