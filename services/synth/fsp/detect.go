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

// TurnStyle labels the dominant rewrite a turn went through, used to pick
// the right query-synthesis template downstream.
type TurnStyle string

// Turn styles, from most to least specific.
const (
	StyleEmpty            TurnStyle = "empty"
	StyleMergedWithInsert TurnStyle = "merged_with_insert"
	StyleMerged           TurnStyle = "merged"
	StyleInsertMixed      TurnStyle = "insert_mixed"
	StyleInsertLong       TurnStyle = "insert_long"
	StyleInsertShort      TurnStyle = "insert_short"
	StyleNormal           TurnStyle = "normal"
)

// TurnOperations is the classification of one final-FSP turn.
type TurnOperations struct {
	IsEmpty      bool        `json:"is_empty"`
	Operations   []string    `json:"operations"`
	PrimaryStyle TurnStyle   `json:"primary_style"`
	MergeInfo    *MergeLog   `json:"merge_info,omitempty"`
	InsertInfo   []InsertLog `json:"insert_info,omitempty"`
}

// DetectTurnOperations classifies a final-FSP turn against the rewrite
// logs.
//
// Description:
//
//	Matching is by function name, never by turn index: split insertions
//	shift turn positions after the logs were written, and FixupLogs only
//	repairs indices for splits known at transform time. An empty turn is a
//	split marker and short-circuits everything else. A merge matches when
//	every merged name appears in the turn; a short-dependency insert needs
//	both source and nested names present, a long-dependency insert only
//	the nested name. Style precedence: empty, merged_with_insert, merged,
//	insert_mixed, insert_long, insert_short, normal.
func DetectTurnOperations(turnFunctions []string, mergeLogs []MergeLog, insertLogs []InsertLog) TurnOperations {
	result := TurnOperations{PrimaryStyle: StyleNormal}

	if len(turnFunctions) == 0 {
		result.IsEmpty = true
		result.PrimaryStyle = StyleEmpty
		result.Operations = append(result.Operations, "split")
		return result
	}

	present := make(map[string]struct{}, len(turnFunctions))
	for _, name := range turnFunctions {
		present[name] = struct{}{}
	}
	contains := func(name string) bool {
		_, ok := present[name]
		return ok
	}

	for i := range mergeLogs {
		log := &mergeLogs[i]
		if len(log.MergedNames) == 0 {
			continue
		}
		all := true
		for _, name := range log.MergedNames {
			if !contains(name) {
				all = false
				break
			}
		}
		if all {
			result.Operations = append(result.Operations, "merge")
			result.MergeInfo = log
			break
		}
	}

	var hasShort, hasLong bool
	for _, log := range insertLogs {
		switch log.InsertType {
		case InsertShortDependency:
			if contains(log.SourceFuncName) && contains(log.NestedFuncName) {
				result.InsertInfo = append(result.InsertInfo, log)
				result.Operations = append(result.Operations, "insert_short")
				hasShort = true
			}
		case InsertLongDependency:
			if contains(log.NestedFuncName) {
				result.InsertInfo = append(result.InsertInfo, log)
				result.Operations = append(result.Operations, "insert_long")
				hasLong = true
			}
		}
	}

	hasMerge := result.MergeInfo != nil
	switch {
	case hasMerge && (hasShort || hasLong):
		result.PrimaryStyle = StyleMergedWithInsert
	case hasMerge:
		result.PrimaryStyle = StyleMerged
	case hasShort && hasLong:
		result.PrimaryStyle = StyleInsertMixed
	case hasLong:
		result.PrimaryStyle = StyleInsertLong
	case hasShort:
		result.PrimaryStyle = StyleInsertShort
	}
	return result
}
