// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package graph

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Prometheus Metrics for Graph Construction
// =============================================================================

var (
	// oracleCallsTotal counts edge-oracle calls by outcome.
	// Labels: outcome (success, failure)
	oracleCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "toucan",
		Subsystem: "graph",
		Name:      "oracle_calls_total",
		Help:      "Total edge oracle calls by outcome",
	}, []string{"outcome"})

	// edgesTotal counts materialized edges by dependency type.
	// Labels: dependency_type (full, partial, prerequisite)
	edgesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "toucan",
		Subsystem: "graph",
		Name:      "edges_total",
		Help:      "Total materialized edges by dependency type",
	}, []string{"dependency_type"})

	// batchesTotal counts construction batches by outcome.
	// Labels: outcome (ok, failed)
	batchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "toucan",
		Subsystem: "graph",
		Name:      "batches_total",
		Help:      "Total construction batches by outcome",
	}, []string{"outcome"})

	// checkpointSavesTotal counts checkpoint writes.
	checkpointSavesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "toucan",
		Subsystem: "graph",
		Name:      "checkpoint_saves_total",
		Help:      "Total checkpoint writes during construction",
	})

	// buildDurationSeconds measures full construction run duration.
	buildDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "toucan",
		Subsystem: "graph",
		Name:      "build_duration_seconds",
		Help:      "End-to-end graph construction duration",
		Buckets:   []float64{1, 10, 30, 60, 300, 900, 1800, 3600, 7200},
	})
)

// RecordOracleCall records one oracle call outcome.
func RecordOracleCall(outcome string) {
	oracleCallsTotal.WithLabelValues(outcome).Inc()
}

// RecordEdge records one materialized edge.
func RecordEdge(dependencyType string) {
	edgesTotal.WithLabelValues(dependencyType).Inc()
}

// RecordBatch records one batch outcome.
func RecordBatch(outcome string) {
	batchesTotal.WithLabelValues(outcome).Inc()
}

// RecordCheckpointSave records one checkpoint write.
func RecordCheckpointSave() {
	checkpointSavesTotal.Inc()
}

// ObserveBuildDuration records a full construction run's wall time.
func ObserveBuildDuration(d time.Duration) {
	buildDurationSeconds.Observe(d.Seconds())
}
