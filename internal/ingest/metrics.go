package ingest

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	recordsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crimestat_ingest_records_total",
		Help: "Feed records processed, by source and outcome (mapped, unmapped, invalid).",
	}, []string{"source", "outcome"})

	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crimestat_ingest_runs_total",
		Help: "Ingest runs, by source and status (complete, failed).",
	}, []string{"source", "status"})

	runDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "crimestat_ingest_run_duration_seconds",
		Help:    "Wall time of one ingest run.",
		Buckets: prometheus.DefBuckets,
	}, []string{"source"})
)
