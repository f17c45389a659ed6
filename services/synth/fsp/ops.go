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
	"math/rand"

	"github.com/AleutianAI/toucan/services/synth/catalog"
)

// Insert dependency kinds.
const (
	InsertShortDependency = "short_dependency"
	InsertLongDependency  = "long_dependency"
)

// Information-miss kinds for split turns.
const (
	MissFunc   = "miss_func"
	MissParams = "miss_params"
)

// MergeLog records one fold of two adjacent turns. Turn indices refer to
// the pre-merge FSP; TurnIdx may be shifted later by FixupLogs when a split
// inserts a turn before it.
type MergeLog struct {
	TurnIdx           int      `json:"turn_idx"`
	MergedTurnIndices [2]int   `json:"merged_turn_indices"`
	Turn0Functions    []int    `json:"turn_0_functions"`
	Turn1Functions    []int    `json:"turn_1_functions"`
	MergedFunctions   []int    `json:"merged_functions"`
	Turn0Names        []string `json:"turn_0_names"`
	Turn1Names        []string `json:"turn_1_names"`
	MergedNames       []string `json:"merged_names"`
}

// InsertLog records one nested-call splice.
type InsertLog struct {
	SourceTurnIdx  int    `json:"source_turn_idx"`
	SourceFunc     int    `json:"source_func"`
	SourceFuncName string `json:"source_func_name"`
	NestedFunc     int    `json:"nested_func"`
	NestedFuncName string `json:"nested_func_name"`
	InsertType     string `json:"insert_type"`
	TargetTurnIdx  int    `json:"target_turn_idx"`
}

// SplitLog records one empty-turn insertion. InsertPosition is the turn the
// empty turn was placed after, in pre-split coordinates.
type SplitLog struct {
	InsertPosition  int      `json:"insert_position"`
	MissType        string   `json:"miss_type"`
	TurnBefore      []int    `json:"turn_before"`
	TurnBeforeNames []string `json:"turn_before_names"`
	TurnAfter       []int    `json:"turn_after"`
	TurnAfterNames  []string `json:"turn_after_names"`
}

// ApplyMerge folds adjacent turn pairs together.
//
// Description:
//
//	Scanning left to right, each turn still followed by another wins a
//	probability draw to absorb its successor; a fold advances the scan past
//	both turns, so a turn is merged at most once per pass. The last turn,
//	when unpaired, is never a merge candidate and costs no draw.
func ApplyMerge(f FSP, p float64, rng *rand.Rand, cat *catalog.Catalog) (FSP, []MergeLog) {
	var out FSP
	var logs []MergeLog

	i := 0
	for i < len(f) {
		current := f[i]
		if i < len(f)-1 && rng.Float64() < p {
			next := f[i+1]
			merged := append(append(Turn{}, current...), next...)
			out = append(out, merged)
			logs = append(logs, MergeLog{
				TurnIdx:           i,
				MergedTurnIndices: [2]int{i, i + 1},
				Turn0Functions:    current,
				Turn1Functions:    next,
				MergedFunctions:   merged,
				Turn0Names:        turnNames(current, cat),
				Turn1Names:        turnNames(next, cat),
				MergedNames:       turnNames(merged, cat),
			})
			i += 2
			continue
		}
		out = append(out, current)
		i++
	}
	return out, logs
}

// ApplyInsert splices nested successor calls into the FSP.
//
// Description:
//
//	Every turn gets one probability draw up front; only a winning draw
//	inspects the turn's last function. Its graph successors are filtered
//	against every function already present anywhere in the FSP (including
//	functions added by earlier inserts in the same pass), and one survivor
//	is chosen uniformly. A second draw then picks the dependency shape:
//	long appends the nested call to a uniformly chosen later turn, short
//	appends it to the current one. The last turn can only ever host a
//	short dependency, since no later turn exists.
//
//	The input FSP is not mutated. Later turns are re-read as the pass
//	proceeds, so a long-dependency insert can itself become the source of
//	a subsequent one.
func ApplyInsert(f FSP, adj map[int][]int, pInsert, pLong float64, rng *rand.Rand, cat *catalog.Catalog) (FSP, []InsertLog) {
	out := f.Clone()
	var logs []InsertLog

	inFSP := make(map[int]struct{})
	for _, turn := range out {
		for _, idx := range turn {
			inFSP[idx] = struct{}{}
		}
	}

	for turnIdx := 0; turnIdx < len(out); turnIdx++ {
		if rng.Float64() >= pInsert {
			continue
		}
		turn := out[turnIdx]
		if len(turn) == 0 {
			continue
		}
		lastFunc := turn[len(turn)-1]

		var available []int
		for _, n := range adj[lastFunc] {
			if _, dup := inFSP[n]; !dup {
				available = append(available, n)
			}
		}
		if len(available) == 0 {
			continue
		}

		nested := available[rng.Intn(len(available))]
		inFSP[nested] = struct{}{}

		log := InsertLog{
			SourceTurnIdx:  turnIdx,
			SourceFunc:     lastFunc,
			SourceFuncName: cat.NameOf(lastFunc),
			NestedFunc:     nested,
			NestedFuncName: cat.NameOf(nested),
		}
		if rng.Float64() < pLong && turnIdx < len(out)-1 {
			target := turnIdx + 1 + rng.Intn(len(out)-1-turnIdx)
			out[target] = append(out[target], nested)
			log.InsertType = InsertLongDependency
			log.TargetTurnIdx = target
		} else {
			out[turnIdx] = append(out[turnIdx], nested)
			log.InsertType = InsertShortDependency
			log.TargetTurnIdx = turnIdx
		}
		logs = append(logs, log)
	}
	return out, logs
}

// ApplySplit inserts one empty information-miss turn.
//
// Description:
//
//	A single whole-FSP probability draw gates the operation; it is
//	consumed even when a short FSP then makes the split a no-op, keeping
//	the RNG stream independent of path shape. A uniformly chosen turn gets
//	an empty turn inserted after it, tagged with a uniformly chosen miss
//	kind.
func ApplySplit(f FSP, p float64, rng *rand.Rand, cat *catalog.Catalog) (FSP, []SplitLog) {
	if rng.Float64() >= p {
		return f, nil
	}
	if len(f) <= 1 {
		return f, nil
	}

	pos := rng.Intn(len(f))
	missType := MissFunc
	if rng.Intn(2) == 1 {
		missType = MissParams
	}

	out := make(FSP, 0, len(f)+1)
	out = append(out, f[:pos+1]...)
	out = append(out, Turn{})
	out = append(out, f[pos+1:]...)

	log := SplitLog{
		InsertPosition:  pos,
		MissType:        missType,
		TurnBefore:      f[pos],
		TurnBeforeNames: turnNames(f[pos], cat),
	}
	if pos+1 < len(f) {
		log.TurnAfter = f[pos+1]
		log.TurnAfterNames = turnNames(f[pos+1], cat)
	}
	return out, []SplitLog{log}
}

// FixupLogs re-aligns merge and insert logs after splits shifted later
// turns down by one. Only indices strictly past a split's insert position
// move; the position itself and everything before it are untouched.
func FixupLogs(splitLogs []SplitLog, insertLogs []InsertLog, mergeLogs []MergeLog) {
	for _, split := range splitLogs {
		pos := split.InsertPosition
		for i := range insertLogs {
			if insertLogs[i].TargetTurnIdx > pos {
				insertLogs[i].TargetTurnIdx++
			}
			if insertLogs[i].SourceTurnIdx > pos {
				insertLogs[i].SourceTurnIdx++
			}
		}
		for i := range mergeLogs {
			if mergeLogs[i].TurnIdx > pos {
				mergeLogs[i].TurnIdx++
			}
		}
	}
}
