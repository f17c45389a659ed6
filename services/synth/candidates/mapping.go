// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package candidates

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/AleutianAI/toucan/services/synth/catalog"
)

// mappingFile is the persisted candidate map. Candidates are keyed by tool
// name so the file survives catalog reordering between runs.
type mappingFile struct {
	Meta       mappingMeta         `json:"meta"`
	Candidates map[string][]string `json:"candidates"`
}

type mappingMeta struct {
	TotalNodes      int     `json:"total_nodes"`
	TotalCandidates int     `json:"total_candidates"`
	AvgCandidates   float64 `json:"avg_candidates_per_node"`
}

// SaveMapping writes a candidate map (index-keyed, as produced by the
// Selector) to a JSON file keyed by tool name.
func SaveMapping(path string, cat *catalog.Catalog, sets map[int][]int) error {
	if cat == nil {
		return fmt.Errorf("catalog is nil")
	}
	out := mappingFile{Candidates: make(map[string][]string, len(sets))}
	total := 0
	for i, cs := range sets {
		names := make([]string, 0, len(cs))
		for _, j := range cs {
			names = append(names, cat.NameOf(j))
		}
		out.Candidates[cat.NameOf(i)] = names
		total += len(names)
	}
	out.Meta.TotalNodes = len(sets)
	out.Meta.TotalCandidates = total
	if len(sets) > 0 {
		out.Meta.AvgCandidates = float64(total) / float64(len(sets))
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal candidate mapping: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write candidate mapping %s: %w", path, err)
	}
	return nil
}

// LoadMapping reads a name-keyed candidate map and re-derives indices
// against the given catalog. Names absent from the catalog are skipped
// with a warning rather than failing the load; a stale mapping should
// degrade, not abort a run.
func LoadMapping(path string, cat *catalog.Catalog, logger *slog.Logger) (map[int][]int, error) {
	if cat == nil {
		return nil, fmt.Errorf("catalog is nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read candidate mapping %s: %w", path, err)
	}
	var in mappingFile
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, fmt.Errorf("parse candidate mapping %s: %w", path, err)
	}

	sets := make(map[int][]int, len(in.Candidates))
	missingNodes, missingCands := 0, 0
	for name, candNames := range in.Candidates {
		i, ok := cat.IndexOf(name)
		if !ok {
			missingNodes++
			continue
		}
		cs := make([]int, 0, len(candNames))
		for _, cn := range candNames {
			j, ok := cat.IndexOf(cn)
			if !ok {
				missingCands++
				continue
			}
			cs = append(cs, j)
		}
		sets[i] = cs
	}
	if missingNodes > 0 || missingCands > 0 {
		logger.Warn("candidate mapping names missing from catalog",
			"path", path, "missing_nodes", missingNodes, "missing_candidates", missingCands)
	}
	logger.Info("candidate mapping loaded", "path", path, "nodes", len(sets))
	return sets, nil
}
