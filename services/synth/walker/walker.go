// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package walker generates randomized simple paths over the finished
// dependency graph, one batch per start node, with exact-sequence
// deduplication and optional candidate augmentation.
//
// Every function takes an explicit *rand.Rand; nothing here touches global
// RNG state, so runs with the same seed and graph are bit-identical.
package walker

import (
	"fmt"
	"log/slog"
	"math/rand"
	"sort"

	"github.com/AleutianAI/toucan/services/synth/graph"
	"github.com/AleutianAI/toucan/services/synth/oracle"
)

// Options configures a walk run.
type Options struct {
	// MaxSteps bounds transitions per walk; a path has at most MaxSteps+1
	// nodes.
	MaxSteps int

	// NumWalksPerNode is the number of independent walk attempts per start
	// node, before deduplication.
	NumWalksPerNode int

	// Seed drives the master RNG. Per-node RNGs are derived from it in
	// node-id order, so adding walks for one node never perturbs another's.
	Seed int64

	// MergeProbability is the per-step chance of pulling in an unused
	// candidate during augmentation.
	MergeProbability float64

	// IncludePrerequisites keeps prerequisite edges in the walk adjacency.
	// Off by default: a gating check is not a data flow worth traversing.
	IncludePrerequisites bool
}

// Option mutates Options.
type Option func(*Options)

// WithMaxSteps sets the per-walk transition bound.
func WithMaxSteps(n int) Option { return func(o *Options) { o.MaxSteps = n } }

// WithNumWalksPerNode sets walk attempts per start node.
func WithNumWalksPerNode(n int) Option { return func(o *Options) { o.NumWalksPerNode = n } }

// WithSeed sets the master seed.
func WithSeed(seed int64) Option { return func(o *Options) { o.Seed = seed } }

// WithMergeProbability sets the candidate-augmentation probability.
func WithMergeProbability(p float64) Option { return func(o *Options) { o.MergeProbability = p } }

// WithPrerequisites includes prerequisite edges in the walk adjacency.
func WithPrerequisites(include bool) Option {
	return func(o *Options) { o.IncludePrerequisites = include }
}

// WalkFrom performs one randomized simple walk starting at start.
//
// Description:
//
//	At each step a uniformly random unvisited out-neighbor of the current
//	node is chosen. The walk stops after maxSteps transitions or at the
//	first node with no unvisited out-neighbor. The no-revisit rule is a
//	structural guarantee layered on top of acyclification: even a residual
//	cycle cannot loop the walk.
func WalkFrom(start int, adj map[int][]int, maxSteps int, rng *rand.Rand) []int {
	path := []int{start}
	visited := map[int]struct{}{start: {}}
	current := start

	for step := 0; step < maxSteps; step++ {
		var unvisited []int
		for _, n := range adj[current] {
			if _, seen := visited[n]; !seen {
				unvisited = append(unvisited, n)
			}
		}
		if len(unvisited) == 0 {
			break
		}
		current = unvisited[rng.Intn(len(unvisited))]
		path = append(path, current)
		visited[current] = struct{}{}
	}
	return path
}

// DedupPaths removes exact duplicate sequences, preserving first-occurrence
// order.
func DedupPaths(paths [][]int) [][]int {
	seen := make(map[string]struct{}, len(paths))
	out := make([][]int, 0, len(paths))
	for _, p := range paths {
		key := pathKey(p)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, p)
	}
	return out
}

func pathKey(path []int) string {
	var b []byte
	for _, n := range path {
		b = fmt.Appendf(b, "%d,", n)
	}
	return string(b)
}

// WalkNodeMulti runs numWalks independent walks from start and
// deduplicates.
func WalkNodeMulti(start int, adj map[int][]int, numWalks, maxSteps int, rng *rand.Rand) (before, after [][]int) {
	before = make([][]int, 0, numWalks)
	for i := 0; i < numWalks; i++ {
		before = append(before, WalkFrom(start, adj, maxSteps, rng))
	}
	return before, DedupPaths(before)
}

// NodeResult is one start node's walk outcome.
type NodeResult struct {
	Name             string       `json:"name"`
	PathsBeforeDedup [][]int      `json:"paths_before_dedup"`
	PathsAfterDedup  [][]int      `json:"paths_after_dedup"`
	DedupRatio       float64      `json:"dedup_ratio"`
	MergedPaths      []MergedPath `json:"merged_paths"`
	TotalMerges      int          `json:"total_merges"`
}

// Result is the full all-nodes walk outcome.
type Result struct {
	NumNodes              int                `json:"num_nodes"`
	TotalWalksBeforeDedup int                `json:"total_walks_before_dedup"`
	TotalWalksAfterDedup  int                `json:"total_walks_after_dedup"`
	OverallDedupRatio     float64            `json:"overall_dedup_ratio"`
	TotalMerges           int                `json:"total_merges"`
	NodeResults           map[int]NodeResult `json:"node_results"`
}

// Engine drives walks over one finished graph.
//
// Thread Safety:
//
//	Not safe for concurrent use; walk generation consumes RNG state
//	sequentially by design.
type Engine struct {
	g      *graph.Graph
	opts   Options
	logger *slog.Logger
}

// NewEngine builds an Engine over the graph.
func NewEngine(g *graph.Graph, logger *slog.Logger, opts ...Option) (*Engine, error) {
	if g == nil {
		return nil, fmt.Errorf("graph is nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	o := Options{
		MaxSteps:         10,
		NumWalksPerNode:  3,
		Seed:             42,
		MergeProbability: 0.15,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.MaxSteps < 0 || o.NumWalksPerNode <= 0 {
		return nil, fmt.Errorf("invalid walk bounds (max_steps=%d num_walks=%d)",
			o.MaxSteps, o.NumWalksPerNode)
	}
	if o.MergeProbability < 0 || o.MergeProbability > 1 {
		return nil, fmt.Errorf("merge probability %v out of [0,1]", o.MergeProbability)
	}
	return &Engine{g: g, opts: o, logger: logger}, nil
}

// adjacency returns the walk adjacency, excluding prerequisite edges unless
// configured otherwise.
func (e *Engine) adjacency() map[int][]int {
	if e.opts.IncludePrerequisites {
		return e.g.Adjacency()
	}
	return e.g.Adjacency(oracle.DependencyPrerequisite)
}

// WalkAllNodes walks from every node and aggregates the results.
//
// Description:
//
//	Nodes are visited in ascending id order. Each node's RNG is seeded
//	from the master RNG in that same order, which makes per-node results
//	independently reproducible. candidateSets (index-keyed, may be nil)
//	feeds the post-dedup augmentation step.
func (e *Engine) WalkAllNodes(candidateSets map[int][]int) *Result {
	adj := e.adjacency()
	master := rand.New(rand.NewSource(e.opts.Seed))

	result := &Result{
		NumNodes:    e.g.NodeCount(),
		NodeResults: make(map[int]NodeResult, e.g.NodeCount()),
	}

	for idx := 0; idx < e.g.NodeCount(); idx++ {
		nodeRNG := rand.New(rand.NewSource(master.Int63()))

		before, after := WalkNodeMulti(idx, adj, e.opts.NumWalksPerNode, e.opts.MaxSteps, nodeRNG)
		ratio := 0.0
		if len(before) > 0 {
			ratio = float64(len(before)-len(after)) / float64(len(before))
		}

		merged := MergePathsWithCandidates(after, e.g.Catalog(), candidateSets,
			e.opts.MergeProbability, nodeRNG)
		totalMerges := 0
		for _, mp := range merged {
			totalMerges += mp.NumMerges
		}

		result.NodeResults[idx] = NodeResult{
			Name:             e.g.Catalog().NameOf(idx),
			PathsBeforeDedup: before,
			PathsAfterDedup:  after,
			DedupRatio:       ratio,
			MergedPaths:      merged,
			TotalMerges:      totalMerges,
		}
		result.TotalWalksBeforeDedup += len(before)
		result.TotalWalksAfterDedup += len(after)
		result.TotalMerges += totalMerges
	}

	if result.TotalWalksBeforeDedup > 0 {
		result.OverallDedupRatio = float64(result.TotalWalksBeforeDedup-result.TotalWalksAfterDedup) /
			float64(result.TotalWalksBeforeDedup)
	}

	e.logger.Info("walks complete",
		"nodes", result.NumNodes,
		"walks_before_dedup", result.TotalWalksBeforeDedup,
		"walks_after_dedup", result.TotalWalksAfterDedup,
		"dedup_ratio", result.OverallDedupRatio,
		"merges", result.TotalMerges)
	return result
}

// SortedNodeIndices returns the result's node ids in ascending order.
func (r *Result) SortedNodeIndices() []int {
	out := make([]int, 0, len(r.NodeResults))
	for idx := range r.NodeResults {
		out = append(out, idx)
	}
	sort.Ints(out)
	return out
}
