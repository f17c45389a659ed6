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
	"math/rand"

	"github.com/AleutianAI/toucan/services/synth/catalog"
)

// MergeInfo records the augmentation decision made at one step of a path.
// CandidateIndex is -1 when no merge happened at the step.
type MergeInfo struct {
	StepIdx        int    `json:"step_idx"`
	NodeIdx        int    `json:"node_idx"`
	NodeName       string `json:"node_name"`
	Merged         bool   `json:"merged"`
	CandidateName  string `json:"merged_candidate,omitempty"`
	CandidateIndex int    `json:"merged_candidate_idx"`
}

// MergedPath pairs an original walk path with its candidate-augmented form
// and the per-step decision log.
type MergedPath struct {
	Path            []int       `json:"path"`
	PathNames       []string    `json:"path_names"`
	MergedPath      []int       `json:"merged_path"`
	MergedPathNames []string    `json:"merged_path_names"`
	MergeInfo       []MergeInfo `json:"merge_info"`
	NumMerges       int         `json:"num_merges"`
}

// MergePathsWithCandidates augments each path by probabilistically splicing
// in label-similar candidates.
//
// Description:
//
//	For every step of every path, a probability draw happens first; only a
//	winning draw looks at the node's candidate set. Eligible candidates are
//	those with a valid catalog index that do not already appear in the
//	original path. One is chosen uniformly and inserted immediately after
//	the step. Insertions are applied back-to-front so earlier insertion
//	points stay valid. The original path is never mutated.
//
//	The draw-first order is a determinism contract: the RNG consumes exactly
//	one draw per step plus one per successful merge, independent of
//	candidate availability at losing steps.
func MergePathsWithCandidates(paths [][]int, cat *catalog.Catalog, candidateSets map[int][]int, p float64, rng *rand.Rand) []MergedPath {
	out := make([]MergedPath, 0, len(paths))
	for _, path := range paths {
		inPath := make(map[int]struct{}, len(path))
		names := make([]string, len(path))
		for i, idx := range path {
			inPath[idx] = struct{}{}
			names[i] = cat.NameOf(idx)
		}

		mp := MergedPath{
			Path:      path,
			PathNames: names,
		}

		type insertion struct {
			pos  int
			node int
		}
		var inserts []insertion

		for stepIdx, nodeIdx := range path {
			info := MergeInfo{
				StepIdx:        stepIdx,
				NodeIdx:        nodeIdx,
				NodeName:       cat.NameOf(nodeIdx),
				CandidateIndex: -1,
			}
			if rng.Float64() < p {
				var available []int
				for _, cand := range candidateSets[nodeIdx] {
					if cand < 0 || cand >= cat.Len() {
						continue
					}
					if _, dup := inPath[cand]; dup {
						continue
					}
					available = append(available, cand)
				}
				if len(available) > 0 {
					choice := available[rng.Intn(len(available))]
					info.Merged = true
					info.CandidateName = cat.NameOf(choice)
					info.CandidateIndex = choice
					inserts = append(inserts, insertion{pos: stepIdx + 1, node: choice})
					mp.NumMerges++
				}
			}
			mp.MergeInfo = append(mp.MergeInfo, info)
		}

		merged := make([]int, len(path))
		copy(merged, path)
		for i := len(inserts) - 1; i >= 0; i-- {
			ins := inserts[i]
			merged = append(merged[:ins.pos], append([]int{ins.node}, merged[ins.pos:]...)...)
		}
		mp.MergedPath = merged
		mp.MergedPathNames = make([]string, len(merged))
		for i, idx := range merged {
			mp.MergedPathNames[i] = cat.NameOf(idx)
		}
		out = append(out, mp)
	}
	return out
}
