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

import "testing"

func TestDetectTurnOperationsEmpty(t *testing.T) {
	ops := DetectTurnOperations(nil, []MergeLog{{MergedNames: []string{"a"}}}, nil)
	if !ops.IsEmpty || ops.PrimaryStyle != StyleEmpty {
		t.Fatalf("ops = %+v", ops)
	}
}

func TestDetectTurnOperationsMerged(t *testing.T) {
	merges := []MergeLog{{MergedNames: []string{"a", "b"}}}
	ops := DetectTurnOperations([]string{"a", "b"}, merges, nil)
	if ops.PrimaryStyle != StyleMerged || ops.MergeInfo == nil {
		t.Fatalf("ops = %+v", ops)
	}

	// A partial overlap is not a merge match.
	ops = DetectTurnOperations([]string{"a"}, merges, nil)
	if ops.PrimaryStyle != StyleNormal || ops.MergeInfo != nil {
		t.Fatalf("ops = %+v", ops)
	}
}

func TestDetectTurnOperationsInsertShort(t *testing.T) {
	inserts := []InsertLog{{
		SourceFuncName: "a", NestedFuncName: "b", InsertType: InsertShortDependency,
	}}
	ops := DetectTurnOperations([]string{"a", "b"}, nil, inserts)
	if ops.PrimaryStyle != StyleInsertShort || len(ops.InsertInfo) != 1 {
		t.Fatalf("ops = %+v", ops)
	}

	// Short dependency needs both functions in the turn.
	ops = DetectTurnOperations([]string{"b"}, nil, inserts)
	if ops.PrimaryStyle != StyleNormal {
		t.Fatalf("ops = %+v", ops)
	}
}

func TestDetectTurnOperationsInsertLong(t *testing.T) {
	inserts := []InsertLog{{
		SourceFuncName: "a", NestedFuncName: "b", InsertType: InsertLongDependency,
	}}
	// Long dependency matches on the nested function alone.
	ops := DetectTurnOperations([]string{"c", "b"}, nil, inserts)
	if ops.PrimaryStyle != StyleInsertLong {
		t.Fatalf("ops = %+v", ops)
	}
}

func TestDetectTurnOperationsPrecedence(t *testing.T) {
	merges := []MergeLog{{MergedNames: []string{"a", "b"}}}
	inserts := []InsertLog{
		{SourceFuncName: "a", NestedFuncName: "c", InsertType: InsertShortDependency},
		{SourceFuncName: "x", NestedFuncName: "d", InsertType: InsertLongDependency},
	}

	ops := DetectTurnOperations([]string{"a", "b", "c"}, merges, inserts)
	if ops.PrimaryStyle != StyleMergedWithInsert {
		t.Fatalf("ops = %+v", ops)
	}

	ops = DetectTurnOperations([]string{"a", "c", "d"}, nil, inserts)
	if ops.PrimaryStyle != StyleInsertMixed {
		t.Fatalf("ops = %+v", ops)
	}
}
