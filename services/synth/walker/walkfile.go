// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package walker

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/AleutianAI/toucan/services/synth/catalog"
)

// PathRecord is one walk path as persisted, carrying both index and name
// views of the sequence.
type PathRecord struct {
	WalkID      int      `json:"walk_id"`
	NodeIndices []int    `json:"node_indices"`
	NodeNames   []string `json:"node_names"`
	PathLength  int      `json:"path_length"`
}

// FileMeta records the run parameters the walks were generated under.
type FileMeta struct {
	GraphPath       string `json:"graph_path"`
	MaxSteps        int    `json:"max_steps"`
	NumWalksPerNode int    `json:"num_walks_per_node"`
	NumNodes        int    `json:"num_nodes"`
	Seed            int64  `json:"seed"`
}

// FileStatistics aggregates walk counts across all start nodes.
type FileStatistics struct {
	TotalWalksBeforeDedup int     `json:"total_walks_before_dedup"`
	TotalWalksAfterDedup  int     `json:"total_walks_after_dedup"`
	OverallDedupRatio     float64 `json:"overall_dedup_ratio"`
	TotalMerges           int     `json:"total_merges"`
}

// FileNodeResult is one start node's persisted walk record.
type FileNodeResult struct {
	Name                string       `json:"name"`
	NumPathsBeforeDedup int          `json:"num_paths_before_dedup"`
	NumPathsAfterDedup  int          `json:"num_paths_after_dedup"`
	DedupRatio          float64      `json:"dedup_ratio"`
	PathsBeforeDedup    []PathRecord `json:"paths_before_dedup"`
	PathsAfterDedup     []PathRecord `json:"paths_after_dedup"`
	MergedPaths         []MergedPath `json:"merged_paths"`
	TotalMerges         int          `json:"total_merges"`
}

// File is the persisted walk document. Node results are keyed by the
// decimal node index so the document survives JSON round trips unchanged.
type File struct {
	Meta        FileMeta                  `json:"meta"`
	Statistics  FileStatistics            `json:"statistics"`
	NodeResults map[string]FileNodeResult `json:"node_results"`
}

func pathRecords(paths [][]int, cat *catalog.Catalog) []PathRecord {
	records := make([]PathRecord, 0, len(paths))
	for i, p := range paths {
		names := make([]string, len(p))
		for j, idx := range p {
			names[j] = cat.NameOf(idx)
		}
		records = append(records, PathRecord{
			WalkID:      i,
			NodeIndices: p,
			NodeNames:   names,
			PathLength:  len(p),
		})
	}
	return records
}

// ToFile renders an all-nodes walk result into its persisted form.
func (e *Engine) ToFile(result *Result, graphPath string) *File {
	f := &File{
		Meta: FileMeta{
			GraphPath:       graphPath,
			MaxSteps:        e.opts.MaxSteps,
			NumWalksPerNode: e.opts.NumWalksPerNode,
			NumNodes:        result.NumNodes,
			Seed:            e.opts.Seed,
		},
		Statistics: FileStatistics{
			TotalWalksBeforeDedup: result.TotalWalksBeforeDedup,
			TotalWalksAfterDedup:  result.TotalWalksAfterDedup,
			OverallDedupRatio:     result.OverallDedupRatio,
			TotalMerges:           result.TotalMerges,
		},
		NodeResults: make(map[string]FileNodeResult, len(result.NodeResults)),
	}
	cat := e.g.Catalog()
	for idx, nr := range result.NodeResults {
		f.NodeResults[strconv.Itoa(idx)] = FileNodeResult{
			Name:                nr.Name,
			NumPathsBeforeDedup: len(nr.PathsBeforeDedup),
			NumPathsAfterDedup:  len(nr.PathsAfterDedup),
			DedupRatio:          nr.DedupRatio,
			PathsBeforeDedup:    pathRecords(nr.PathsBeforeDedup, cat),
			PathsAfterDedup:     pathRecords(nr.PathsAfterDedup, cat),
			MergedPaths:         nr.MergedPaths,
			TotalMerges:         nr.TotalMerges,
		}
	}
	return f
}

// Save writes the walk file atomically.
func (f *File) Save(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating walk directory: %w", err)
		}
	}
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling walk file: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing walk temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("renaming walk file into place: %w", err)
	}
	return nil
}

// LoadFile reads a persisted walk document.
func LoadFile(path string, logger *slog.Logger) (*File, error) {
	if logger == nil {
		logger = slog.Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading walk file %s: %w", path, err)
	}
	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing walk file %s: %w", path, err)
	}
	logger.Info("walk file loaded", "path", path,
		"nodes", len(f.NodeResults),
		"walks_after_dedup", f.Statistics.TotalWalksAfterDedup)
	return &f, nil
}

// Paths flattens the document into the deduplicated index paths, ordered by
// ascending node index then walk id. This is the hand-off point to the
// trajectory transformation stage.
func (f *File) Paths() [][]int {
	indices := make([]int, 0, len(f.NodeResults))
	byIdx := make(map[int]FileNodeResult, len(f.NodeResults))
	for key, nr := range f.NodeResults {
		idx, err := strconv.Atoi(key)
		if err != nil {
			continue
		}
		indices = append(indices, idx)
		byIdx[idx] = nr
	}
	sort.Ints(indices)

	var out [][]int
	for _, idx := range indices {
		for _, rec := range byIdx[idx].PathsAfterDedup {
			out = append(out, rec.NodeIndices)
		}
	}
	return out
}
