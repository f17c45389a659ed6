// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package graph holds the tool dependency graph: nodes are catalog tools,
// edges are oracle-judged dependencies. It owns batched resumable
// construction, cycle detection and removal, and the persisted graph file
// format.
//
// Node indices are positional and valid only within one process; every
// cross-run artifact (checkpoints, edge details) also carries tool names,
// which are the stable identity.
package graph

import (
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/AleutianAI/toucan/services/synth/catalog"
	"github.com/AleutianAI/toucan/services/synth/oracle"
)

// SchemaVersion is the persisted graph file version.
const SchemaVersion = "1.0.0"

// Edge is one materialized directed dependency.
type Edge struct {
	Source         int
	Target         int
	DependencyType oracle.DependencyType
	Confidence     float64
	ParamMapping   map[string]string
}

// Graph is the directed dependency graph over a fixed catalog.
//
// Description:
//
//	The node set is the catalog and never changes after construction. The
//	edge set grows during construction and shrinks during acyclification.
//	Adjacency lists preserve edge insertion order so traversals are
//	deterministic given the same construction history.
//
// Thread Safety:
//
//	Not safe for concurrent mutation. The construction driver is the only
//	writer; the walk and transform phases treat a finished graph as
//	read-only, which is safe from any number of goroutines.
type Graph struct {
	Version string

	cat    *catalog.Catalog
	edges  []Edge
	adj    map[int][]int
	byPair map[[2]int]int // pair -> position in edges
	logger *slog.Logger
}

// New creates an empty graph over the catalog.
func New(cat *catalog.Catalog, logger *slog.Logger) (*Graph, error) {
	if cat == nil {
		return nil, fmt.Errorf("catalog is nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Graph{
		Version: SchemaVersion,
		cat:     cat,
		adj:     make(map[int][]int),
		byPair:  make(map[[2]int]int),
		logger:  logger,
	}, nil
}

// Catalog returns the node catalog.
func (g *Graph) Catalog() *catalog.Catalog { return g.cat }

// NodeCount returns the number of nodes.
func (g *Graph) NodeCount() int { return g.cat.Len() }

// EdgeCount returns the number of edges.
func (g *Graph) EdgeCount() int { return len(g.edges) }

// Edges returns the edge list in insertion order. Callers must not mutate.
func (g *Graph) Edges() []Edge { return g.edges }

// AddEdge inserts a directed edge. Duplicate (source, target) pairs and
// out-of-range indices are rejected.
func (g *Graph) AddEdge(e Edge) error {
	if e.Source < 0 || e.Source >= g.cat.Len() || e.Target < 0 || e.Target >= g.cat.Len() {
		return fmt.Errorf("edge %d -> %d out of range (nodes=%d)", e.Source, e.Target, g.cat.Len())
	}
	if e.Source == e.Target {
		return fmt.Errorf("self edge %d rejected", e.Source)
	}
	key := [2]int{e.Source, e.Target}
	if _, ok := g.byPair[key]; ok {
		return fmt.Errorf("duplicate edge %s -> %s",
			g.cat.NameOf(e.Source), g.cat.NameOf(e.Target))
	}
	g.byPair[key] = len(g.edges)
	g.edges = append(g.edges, e)
	g.adj[e.Source] = append(g.adj[e.Source], e.Target)
	return nil
}

// HasEdge reports whether a directed edge source -> target exists.
func (g *Graph) HasEdge(source, target int) bool {
	_, ok := g.byPair[[2]int{source, target}]
	return ok
}

// EdgeBetween returns the edge source -> target, if present.
func (g *Graph) EdgeBetween(source, target int) (Edge, bool) {
	pos, ok := g.byPair[[2]int{source, target}]
	if !ok {
		return Edge{}, false
	}
	return g.edges[pos], true
}

// OutNeighbors returns the out-neighbors of node i in edge insertion order.
// Callers must not mutate the returned slice.
func (g *Graph) OutNeighbors(i int) []int { return g.adj[i] }

// RemoveEdges drops every edge whose (source, target) pair appears in the
// given set and rebuilds adjacency. Returns the number removed.
func (g *Graph) RemoveEdges(pairs map[[2]int]struct{}) int {
	if len(pairs) == 0 {
		return 0
	}
	kept := make([]Edge, 0, len(g.edges))
	for _, e := range g.edges {
		if _, drop := pairs[[2]int{e.Source, e.Target}]; drop {
			continue
		}
		kept = append(kept, e)
	}
	removed := len(g.edges) - len(kept)
	g.edges = kept
	g.rebuildIndexes()
	return removed
}

func (g *Graph) rebuildIndexes() {
	g.adj = make(map[int][]int)
	g.byPair = make(map[[2]int]int, len(g.edges))
	for pos, e := range g.edges {
		g.byPair[[2]int{e.Source, e.Target}] = pos
		g.adj[e.Source] = append(g.adj[e.Source], e.Target)
	}
}

// Adjacency returns a copy of the adjacency map, optionally excluding edges
// of the given dependency types. The walk phase excludes prerequisite
// edges: a gating check is not a data flow worth walking across.
func (g *Graph) Adjacency(exclude ...oracle.DependencyType) map[int][]int {
	skip := make(map[oracle.DependencyType]struct{}, len(exclude))
	for _, t := range exclude {
		skip[t] = struct{}{}
	}
	adj := make(map[int][]int)
	for _, e := range g.edges {
		if _, ok := skip[e.DependencyType]; ok {
			continue
		}
		adj[e.Source] = append(adj[e.Source], e.Target)
	}
	return adj
}

// Stats summarizes graph shape for reporting and the viewer.
type Stats struct {
	NumNodes      int            `json:"num_nodes"`
	NumEdges      int            `json:"num_edges"`
	EdgeDensity   float64        `json:"edge_density"`
	TypeCounts    map[string]int `json:"dependency_type_counts"`
	MinConfidence float64        `json:"min_confidence"`
	AvgConfidence float64        `json:"avg_confidence"`
	MaxConfidence float64        `json:"max_confidence"`
}

// ComputeStats derives summary statistics from the current edge set.
func (g *Graph) ComputeStats() Stats {
	s := Stats{
		NumNodes:   g.NodeCount(),
		NumEdges:   len(g.edges),
		TypeCounts: make(map[string]int),
	}
	if len(g.edges) == 0 {
		return s
	}
	s.MinConfidence = math.Inf(1)
	s.MaxConfidence = math.Inf(-1)
	sum := 0.0
	for _, e := range g.edges {
		s.TypeCounts[string(e.DependencyType)]++
		sum += e.Confidence
		s.MinConfidence = math.Min(s.MinConfidence, e.Confidence)
		s.MaxConfidence = math.Max(s.MaxConfidence, e.Confidence)
	}
	s.AvgConfidence = sum / float64(len(g.edges))
	if n := g.NodeCount(); n > 1 {
		s.EdgeDensity = float64(len(g.edges)) / float64(n*(n-1))
	}
	return s
}

// nodeIndices returns all node indices in ascending order.
func (g *Graph) nodeIndices() []int {
	out := make([]int, g.cat.Len())
	for i := range out {
		out[i] = i
	}
	return out
}

// sortedPairs returns the pair set in a stable order, for deterministic
// iteration and reporting.
func sortedPairs(pairs map[[2]int]struct{}) [][2]int {
	out := make([][2]int, 0, len(pairs))
	for p := range pairs {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i][0] != out[j][0] {
			return out[i][0] < out[j][0]
		}
		return out[i][1] < out[j][1]
	})
	return out
}
