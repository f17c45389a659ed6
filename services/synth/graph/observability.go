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
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "toucan/synth/graph"

// startBuildSpan opens the construction span. With no tracer provider
// configured this is a no-op span.
func startBuildSpan(ctx context.Context, nodeCount int) (context.Context, trace.Span) {
	tracer := otel.Tracer(tracerName)
	return tracer.Start(ctx, "graph.build",
		trace.WithAttributes(
			attribute.Int("graph.nodes", nodeCount),
		))
}

// recordBuildMetrics attaches final construction counters to the span.
func recordBuildMetrics(span trace.Span, nodes, edges, processedPairs, failedPairs int) {
	span.SetAttributes(
		attribute.Int("graph.nodes", nodes),
		attribute.Int("graph.edges", edges),
		attribute.Int("graph.pairs_processed", processedPairs),
		attribute.Int("graph.pairs_failed", failedPairs),
	)
}
