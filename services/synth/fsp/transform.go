// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package fsp

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/AleutianAI/toucan/services/synth/graph"
	"github.com/AleutianAI/toucan/services/synth/oracle"
	"github.com/AleutianAI/toucan/services/synth/walker"
)

// Options configures the transformation pipeline. Defaults follow the
// probabilities that produced the best downstream query quality.
type Options struct {
	MergeProbability          float64
	InsertProbability         float64
	LongDependencyProbability float64
	SplitProbability          float64
	Seed                      int64
}

// Option mutates Options.
type Option func(*Options)

// WithMergeProbability sets the adjacent-turn fold probability.
func WithMergeProbability(p float64) Option { return func(o *Options) { o.MergeProbability = p } }

// WithInsertProbability sets the per-turn nested-insert probability.
func WithInsertProbability(p float64) Option { return func(o *Options) { o.InsertProbability = p } }

// WithLongDependencyProbability sets the long-vs-short dependency split.
func WithLongDependencyProbability(p float64) Option {
	return func(o *Options) { o.LongDependencyProbability = p }
}

// WithSplitProbability sets the whole-path empty-turn probability.
func WithSplitProbability(p float64) Option { return func(o *Options) { o.SplitProbability = p } }

// WithSeed sets the RNG seed shared across the whole transformation run.
func WithSeed(seed int64) Option { return func(o *Options) { o.Seed = seed } }

// PathStats summarizes one path's rewrite.
type PathStats struct {
	TurnsInitial           int `json:"turns_initial"`
	TurnsMerged            int `json:"turns_merged"`
	TurnsAfterInsert       int `json:"turns_after_insert"`
	TurnsFinal             int `json:"turns_final"`
	FunctionsInitial       int `json:"functions_initial"`
	FunctionsFinal         int `json:"functions_final"`
	NumMerges              int `json:"num_merges"`
	NumInserts             int `json:"num_inserts"`
	ShortDependencyInserts int `json:"short_dependency_inserts"`
	LongDependencyInserts  int `json:"long_dependency_inserts"`
	NumSplits              int `json:"num_splits"`
}

// PathResult carries every stage of one path's rewrite plus the provenance
// logs, so downstream consumers can reconstruct any intermediate view.
type PathResult struct {
	PathIdx           int         `json:"path_idx"`
	OriginalPath      []int       `json:"original_path"`
	OriginalPathNames []string    `json:"original_path_names"`
	FSPInitial        FSP         `json:"fsp_initial"`
	FSPMerged         FSP         `json:"fsp_merged"`
	FSPAfterInsert    FSP         `json:"fsp_after_insert"`
	FSPFinal          FSP         `json:"fsp_final"`
	FSPFinalNames     [][]string  `json:"fsp_final_names"`
	Statistics        PathStats   `json:"statistics"`
	MergeLogs         []MergeLog  `json:"merge_logs"`
	InsertLogs        []InsertLog `json:"insert_logs"`
	SplitLogs         []SplitLog  `json:"split_logs"`
}

// NodeResult groups the rewritten paths of one start node.
type NodeResult struct {
	NodeIdx  int          `json:"node_idx"`
	NodeName string       `json:"node_name"`
	NumPaths int          `json:"num_paths"`
	Paths    []PathResult `json:"paths"`
}

// Statistics aggregates the whole run.
type Statistics struct {
	TotalPaths             int `json:"total_paths"`
	TotalTurnsBefore       int `json:"total_turns_before"`
	TotalTurnsAfterMerge   int `json:"total_turns_after_merge"`
	TotalTurnsAfterInsert  int `json:"total_turns_after_insert"`
	TotalTurnsFinal        int `json:"total_turns_final"`
	TotalFunctionsBefore   int `json:"total_functions_before"`
	TotalFunctionsFinal    int `json:"total_functions_final"`
	TotalMerges            int `json:"total_merges"`
	TotalInserts           int `json:"total_inserts"`
	ShortDependencyInserts int `json:"short_dependency_inserts"`
	LongDependencyInserts  int `json:"long_dependency_inserts"`
	TotalSplits            int `json:"total_splits"`
}

// FileMeta records the parameters a transformation ran under.
type FileMeta struct {
	InputPath                 string  `json:"input_path"`
	GraphPath                 string  `json:"graph_path"`
	MergeProbability          float64 `json:"merge_probability"`
	InsertProbability         float64 `json:"insert_probability"`
	LongDependencyProbability float64 `json:"long_dependency_probability"`
	SplitProbability          float64 `json:"split_probability"`
	Seed                      int64   `json:"seed"`
}

// File is the persisted transformation document, node results keyed by
// decimal node index.
type File struct {
	Meta        FileMeta              `json:"meta"`
	Statistics  Statistics            `json:"statistics"`
	NodeResults map[string]NodeResult `json:"node_results"`
}

// Transformer runs the Merge, Insert, Split pipeline over a walk document.
//
// Thread Safety:
//
//	Not safe for concurrent use; one RNG stream spans the whole run, so
//	path order is part of the output contract.
type Transformer struct {
	g      *graph.Graph
	opts   Options
	logger *slog.Logger
}

// NewTransformer builds a Transformer over the graph the walks came from.
func NewTransformer(g *graph.Graph, logger *slog.Logger, opts ...Option) (*Transformer, error) {
	if g == nil {
		return nil, fmt.Errorf("graph is nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	o := Options{
		MergeProbability:          0.3,
		InsertProbability:         0.5,
		LongDependencyProbability: 0.3,
		SplitProbability:          0.15,
		Seed:                      42,
	}
	for _, opt := range opts {
		opt(&o)
	}
	for _, p := range []float64{o.MergeProbability, o.InsertProbability,
		o.LongDependencyProbability, o.SplitProbability} {
		if p < 0 || p > 1 {
			return nil, fmt.Errorf("probability %v out of [0,1]", p)
		}
	}
	return &Transformer{g: g, opts: o, logger: logger}, nil
}

// Transform rewrites every deduplicated path in the walk document.
//
// Description:
//
//	Nodes are processed in ascending index order and paths in walk order,
//	with one RNG stream shared across the run; identical inputs and seed
//	reproduce the document exactly. Each path goes through Merge, then
//	Insert, then Split, and finally the log indices are re-aligned for the
//	turn shifts splits caused. Prerequisite edges are invisible to Insert,
//	matching the adjacency the walks themselves used.
func (t *Transformer) Transform(walks *walker.File) *File {
	adj := t.g.Adjacency(oracle.DependencyPrerequisite)
	cat := t.g.Catalog()
	rng := rand.New(rand.NewSource(t.opts.Seed))

	out := &File{
		Meta: FileMeta{
			// InputPath is the walk file's location, known only to the
			// caller; it is filled in before saving.
			GraphPath:                 walks.Meta.GraphPath,
			MergeProbability:          t.opts.MergeProbability,
			InsertProbability:         t.opts.InsertProbability,
			LongDependencyProbability: t.opts.LongDependencyProbability,
			SplitProbability:          t.opts.SplitProbability,
			Seed:                      t.opts.Seed,
		},
		NodeResults: make(map[string]NodeResult),
	}
	stats := &out.Statistics

	for _, nodeIdx := range sortedNodeKeys(walks.NodeResults) {
		nodeData := walks.NodeResults[strconv.Itoa(nodeIdx)]
		if len(nodeData.PathsAfterDedup) == 0 {
			continue
		}

		var paths []PathResult
		for pathIdx, rec := range nodeData.PathsAfterDedup {
			path := rec.NodeIndices
			if len(path) == 0 {
				continue
			}

			initial := FromPath(path)
			merged, mergeLogs := ApplyMerge(initial, t.opts.MergeProbability, rng, cat)
			inserted, insertLogs := ApplyInsert(merged, adj,
				t.opts.InsertProbability, t.opts.LongDependencyProbability, rng, cat)
			final, splitLogs := ApplySplit(inserted, t.opts.SplitProbability, rng, cat)
			FixupLogs(splitLogs, insertLogs, mergeLogs)

			short, long := 0, 0
			for _, log := range insertLogs {
				if log.InsertType == InsertShortDependency {
					short++
				} else {
					long++
				}
			}

			pr := PathResult{
				PathIdx:           pathIdx,
				OriginalPath:      path,
				OriginalPathNames: turnNames(path, cat),
				FSPInitial:        initial,
				FSPMerged:         merged,
				FSPAfterInsert:    inserted,
				FSPFinal:          final,
				FSPFinalNames:     final.Names(cat),
				Statistics: PathStats{
					TurnsInitial:           len(initial),
					TurnsMerged:            len(merged),
					TurnsAfterInsert:       len(inserted),
					TurnsFinal:             len(final),
					FunctionsInitial:       len(path),
					FunctionsFinal:         final.NumFunctions(),
					NumMerges:              len(mergeLogs),
					NumInserts:             len(insertLogs),
					ShortDependencyInserts: short,
					LongDependencyInserts:  long,
					NumSplits:              len(splitLogs),
				},
				MergeLogs:  mergeLogs,
				InsertLogs: insertLogs,
				SplitLogs:  splitLogs,
			}
			paths = append(paths, pr)

			stats.TotalPaths++
			stats.TotalTurnsBefore += len(initial)
			stats.TotalTurnsAfterMerge += len(merged)
			stats.TotalTurnsAfterInsert += len(inserted)
			stats.TotalTurnsFinal += len(final)
			stats.TotalFunctionsBefore += len(path)
			stats.TotalFunctionsFinal += final.NumFunctions()
			stats.TotalMerges += len(mergeLogs)
			stats.TotalInserts += len(insertLogs)
			stats.ShortDependencyInserts += short
			stats.LongDependencyInserts += long
			stats.TotalSplits += len(splitLogs)
		}

		out.NodeResults[strconv.Itoa(nodeIdx)] = NodeResult{
			NodeIdx:  nodeIdx,
			NodeName: nodeData.Name,
			NumPaths: len(paths),
			Paths:    paths,
		}
	}

	t.logger.Info("trajectory transformation complete",
		"paths", stats.TotalPaths,
		"merges", stats.TotalMerges,
		"inserts", stats.TotalInserts,
		"splits", stats.TotalSplits,
		"turns_before", stats.TotalTurnsBefore,
		"turns_final", stats.TotalTurnsFinal)
	return out
}

func sortedNodeKeys(results map[string]walker.FileNodeResult) []int {
	out := make([]int, 0, len(results))
	for key := range results {
		idx, err := strconv.Atoi(key)
		if err != nil {
			continue
		}
		out = append(out, idx)
	}
	sort.Ints(out)
	return out
}

// Save writes the transformation file atomically.
func (f *File) Save(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating output directory: %w", err)
		}
	}
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling trajectory file: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing trajectory temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("renaming trajectory file into place: %w", err)
	}
	return nil
}

// LoadFile reads a persisted transformation document.
func LoadFile(path string, logger *slog.Logger) (*File, error) {
	if logger == nil {
		logger = slog.Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading trajectory file %s: %w", path, err)
	}
	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing trajectory file %s: %w", path, err)
	}
	logger.Info("trajectory file loaded", "path", path,
		"nodes", len(f.NodeResults), "paths", f.Statistics.TotalPaths)
	return &f, nil
}
