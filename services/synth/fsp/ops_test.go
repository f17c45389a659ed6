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
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"reflect"
	"testing"

	"github.com/AleutianAI/toucan/services/synth/catalog"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func testCatalog(t *testing.T, n int) *catalog.Catalog {
	t.Helper()
	tools := make([]*catalog.Tool, n)
	for i := range tools {
		tools[i] = &catalog.Tool{
			Name:         fmt.Sprintf("tool_%c", 'a'+i),
			InputParams:  []catalog.InputParam{{Name: "in", Type: "string"}},
			OutputFields: []catalog.OutputField{{Name: "out", Type: "string"}},
		}
	}
	c, err := catalog.New(tools)
	if err != nil {
		t.Fatalf("catalog.New: %v", err)
	}
	return c
}

func TestFromPathOneNodePerTurn(t *testing.T) {
	f := FromPath([]int{3, 1, 2})
	want := FSP{{3}, {1}, {2}}
	if !reflect.DeepEqual(f, want) {
		t.Fatalf("FromPath = %v, want %v", f, want)
	}
	if !reflect.DeepEqual(f.Flatten(), []int{3, 1, 2}) {
		t.Fatalf("Flatten = %v", f.Flatten())
	}
	if f.NumFunctions() != 3 {
		t.Fatalf("NumFunctions = %d", f.NumFunctions())
	}
}

func TestApplyMergeAlways(t *testing.T) {
	cat := testCatalog(t, 4)
	rng := rand.New(rand.NewSource(1))

	got, logs := ApplyMerge(FromPath([]int{0, 1, 2}), 1.0, rng, cat)
	want := FSP{{0, 1}, {2}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("merged = %v, want %v", got, want)
	}
	if len(logs) != 1 || logs[0].TurnIdx != 0 || logs[0].MergedTurnIndices != [2]int{0, 1} {
		t.Fatalf("logs = %+v", logs)
	}
	if !reflect.DeepEqual(logs[0].MergedNames, []string{"tool_a", "tool_b"}) {
		t.Fatalf("MergedNames = %v", logs[0].MergedNames)
	}

	// A merged pair is consumed; even-length paths fold pairwise.
	got, logs = ApplyMerge(FromPath([]int{0, 1, 2, 3}), 1.0, rng, cat)
	if !reflect.DeepEqual(got, FSP{{0, 1}, {2, 3}}) || len(logs) != 2 {
		t.Fatalf("merged = %v logs=%d", got, len(logs))
	}
}

func TestApplyMergeNever(t *testing.T) {
	cat := testCatalog(t, 3)
	rng := rand.New(rand.NewSource(1))
	f := FromPath([]int{0, 1, 2})
	got, logs := ApplyMerge(f, 0.0, rng, cat)
	if !reflect.DeepEqual(got, f) || len(logs) != 0 {
		t.Fatalf("merged = %v logs=%v", got, logs)
	}
}

func TestApplyInsertShortDependency(t *testing.T) {
	cat := testCatalog(t, 3)
	rng := rand.New(rand.NewSource(1))
	adj := map[int][]int{0: {1}}

	got, logs := ApplyInsert(FSP{{0}}, adj, 1.0, 0.0, rng, cat)
	if !reflect.DeepEqual(got, FSP{{0, 1}}) {
		t.Fatalf("inserted = %v, want [[0 1]]", got)
	}
	if len(logs) != 1 {
		t.Fatalf("logs = %+v", logs)
	}
	log := logs[0]
	if log.InsertType != InsertShortDependency || log.SourceTurnIdx != 0 || log.TargetTurnIdx != 0 {
		t.Fatalf("log = %+v", log)
	}
	if log.SourceFuncName != "tool_a" || log.NestedFuncName != "tool_b" {
		t.Fatalf("log names = %+v", log)
	}
}

func TestApplyInsertSkipsFunctionsAlreadyPresent(t *testing.T) {
	cat := testCatalog(t, 3)
	rng := rand.New(rand.NewSource(1))
	// tool_a's only successor is already in the path; tool_b has none.
	adj := map[int][]int{0: {1}}
	f := FSP{{0}, {1}}
	got, logs := ApplyInsert(f, adj, 1.0, 0.0, rng, cat)
	if !reflect.DeepEqual(got, f) || len(logs) != 0 {
		t.Fatalf("inserted = %v logs=%v", got, logs)
	}
}

func TestApplyInsertLongDependency(t *testing.T) {
	cat := testCatalog(t, 4)
	rng := rand.New(rand.NewSource(1))
	adj := map[int][]int{0: {1}}

	got, logs := ApplyInsert(FSP{{0}, {3}}, adj, 1.0, 1.0, rng, cat)
	if !reflect.DeepEqual(got, FSP{{0}, {3, 1}}) {
		t.Fatalf("inserted = %v, want [[0] [3 1]]", got)
	}
	if len(logs) != 1 || logs[0].InsertType != InsertLongDependency || logs[0].TargetTurnIdx != 1 {
		t.Fatalf("logs = %+v", logs)
	}
}

func TestApplyInsertLastTurnFallsBackToShort(t *testing.T) {
	cat := testCatalog(t, 3)
	rng := rand.New(rand.NewSource(1))
	adj := map[int][]int{0: {1}}

	// Long dependency is impossible with nowhere later to land.
	got, logs := ApplyInsert(FSP{{0}}, adj, 1.0, 1.0, rng, cat)
	if !reflect.DeepEqual(got, FSP{{0, 1}}) {
		t.Fatalf("inserted = %v", got)
	}
	if logs[0].InsertType != InsertShortDependency {
		t.Fatalf("insert type = %q", logs[0].InsertType)
	}
}

func TestApplyInsertDoesNotMutateInput(t *testing.T) {
	cat := testCatalog(t, 3)
	rng := rand.New(rand.NewSource(1))
	f := FSP{{0}}
	ApplyInsert(f, map[int][]int{0: {1}}, 1.0, 0.0, rng, cat)
	if !reflect.DeepEqual(f, FSP{{0}}) {
		t.Fatalf("input mutated: %v", f)
	}
}

func TestApplySplitAlways(t *testing.T) {
	cat := testCatalog(t, 3)
	rng := rand.New(rand.NewSource(1))

	got, logs := ApplySplit(FSP{{0}, {1}}, 1.0, rng, cat)
	if len(got) != 3 || len(logs) != 1 {
		t.Fatalf("split = %v logs=%v", got, logs)
	}
	empty := 0
	for _, turn := range got {
		if len(turn) == 0 {
			empty++
		}
	}
	if empty != 1 {
		t.Fatalf("split produced %d empty turns: %v", empty, got)
	}
	log := logs[0]
	if log.MissType != MissFunc && log.MissType != MissParams {
		t.Fatalf("miss type = %q", log.MissType)
	}
	if len(got[log.InsertPosition+1]) != 0 {
		t.Fatalf("empty turn not after insert position: %v", got)
	}
}

func TestApplySplitSkipsSingleTurn(t *testing.T) {
	cat := testCatalog(t, 2)
	rng := rand.New(rand.NewSource(1))
	f := FSP{{0}}
	got, logs := ApplySplit(f, 1.0, rng, cat)
	if !reflect.DeepEqual(got, f) || len(logs) != 0 {
		t.Fatalf("split = %v logs=%v", got, logs)
	}
}

func TestFixupLogsShiftsPastSplitOnly(t *testing.T) {
	splits := []SplitLog{{InsertPosition: 0}}
	inserts := []InsertLog{
		{SourceTurnIdx: 0, TargetTurnIdx: 1, InsertType: InsertLongDependency},
		{SourceTurnIdx: 2, TargetTurnIdx: 2, InsertType: InsertShortDependency},
	}
	merges := []MergeLog{{TurnIdx: 0}, {TurnIdx: 1}}

	FixupLogs(splits, inserts, merges)

	if inserts[0].SourceTurnIdx != 0 || inserts[0].TargetTurnIdx != 2 {
		t.Fatalf("inserts[0] = %+v", inserts[0])
	}
	if inserts[1].SourceTurnIdx != 3 || inserts[1].TargetTurnIdx != 3 {
		t.Fatalf("inserts[1] = %+v", inserts[1])
	}
	if merges[0].TurnIdx != 0 || merges[1].TurnIdx != 2 {
		t.Fatalf("merges = %+v", merges)
	}
}
