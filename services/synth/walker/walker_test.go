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
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/AleutianAI/toucan/services/synth/catalog"
	"github.com/AleutianAI/toucan/services/synth/graph"
	"github.com/AleutianAI/toucan/services/synth/oracle"
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

func testGraph(t *testing.T, n int, edges ...graph.Edge) *graph.Graph {
	t.Helper()
	g, err := graph.New(testCatalog(t, n), testLogger())
	if err != nil {
		t.Fatalf("graph.New: %v", err)
	}
	for _, e := range edges {
		if e.DependencyType == "" {
			e.DependencyType = oracle.DependencyFull
		}
		if e.Confidence == 0 {
			e.Confidence = 0.9
		}
		if err := g.AddEdge(e); err != nil {
			t.Fatalf("AddEdge(%d->%d): %v", e.Source, e.Target, err)
		}
	}
	return g
}

func TestWalkFromFollowsChain(t *testing.T) {
	adj := map[int][]int{0: {1}, 1: {2}}
	rng := rand.New(rand.NewSource(1))

	path := WalkFrom(0, adj, 10, rng)
	if !reflect.DeepEqual(path, []int{0, 1, 2}) {
		t.Fatalf("path = %v, want [0 1 2]", path)
	}

	path = WalkFrom(0, adj, 1, rng)
	if !reflect.DeepEqual(path, []int{0, 1}) {
		t.Fatalf("path = %v, want [0 1] with one step", path)
	}
}

func TestWalkFromNeverRevisits(t *testing.T) {
	// A 2-cycle in the adjacency must not loop the walk.
	adj := map[int][]int{0: {1}, 1: {0}}
	rng := rand.New(rand.NewSource(1))
	path := WalkFrom(0, adj, 10, rng)
	if !reflect.DeepEqual(path, []int{0, 1}) {
		t.Fatalf("path = %v, want [0 1]", path)
	}
}

func TestDedupPathsKeepsFirstOccurrence(t *testing.T) {
	paths := [][]int{{0, 1}, {0, 2}, {0, 1}, {0}}
	got := DedupPaths(paths)
	want := [][]int{{0, 1}, {0, 2}, {0}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("DedupPaths = %v, want %v", got, want)
	}
}

func TestWalkNodeMultiDedupRatio(t *testing.T) {
	// A single deterministic chain: every walk is identical.
	adj := map[int][]int{0: {1}, 1: {2}}
	rng := rand.New(rand.NewSource(7))
	before, after := WalkNodeMulti(0, adj, 4, 10, rng)
	if len(before) != 4 || len(after) != 1 {
		t.Fatalf("before=%d after=%d, want 4/1", len(before), len(after))
	}
}

func TestWalkAllNodesDeterministic(t *testing.T) {
	g := testGraph(t, 4,
		graph.Edge{Source: 0, Target: 1},
		graph.Edge{Source: 0, Target: 2},
		graph.Edge{Source: 1, Target: 3},
		graph.Edge{Source: 2, Target: 3},
	)
	e, err := NewEngine(g, testLogger(), WithSeed(42), WithNumWalksPerNode(5), WithMaxSteps(4))
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	r1 := e.WalkAllNodes(nil)
	r2 := e.WalkAllNodes(nil)
	if !reflect.DeepEqual(r1, r2) {
		t.Fatal("same seed produced different walk results")
	}
	if r1.NumNodes != 4 || r1.TotalWalksBeforeDedup != 20 {
		t.Fatalf("result = %+v", r1)
	}
	// Every path starts at its own node.
	for idx, nr := range r1.NodeResults {
		for _, p := range nr.PathsAfterDedup {
			if p[0] != idx {
				t.Fatalf("node %d path starts at %d", idx, p[0])
			}
		}
	}
}

func TestWalkAllNodesExcludesPrerequisiteEdges(t *testing.T) {
	g := testGraph(t, 2,
		graph.Edge{Source: 0, Target: 1, DependencyType: oracle.DependencyPrerequisite},
	)
	e, err := NewEngine(g, testLogger(), WithNumWalksPerNode(3))
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	r := e.WalkAllNodes(nil)
	for _, p := range r.NodeResults[0].PathsAfterDedup {
		if len(p) != 1 {
			t.Fatalf("walk crossed a prerequisite edge: %v", p)
		}
	}

	eInc, err := NewEngine(g, testLogger(), WithNumWalksPerNode(3), WithPrerequisites(true))
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	rInc := eInc.WalkAllNodes(nil)
	if !reflect.DeepEqual(rInc.NodeResults[0].PathsAfterDedup[0], []int{0, 1}) {
		t.Fatalf("prerequisite inclusion broken: %v", rInc.NodeResults[0].PathsAfterDedup)
	}
}

func TestMergeAlwaysWhenProbabilityOne(t *testing.T) {
	cat := testCatalog(t, 3)
	rng := rand.New(rand.NewSource(1))
	merged := MergePathsWithCandidates([][]int{{0, 1}}, cat, map[int][]int{0: {2}}, 1.0, rng)
	if len(merged) != 1 {
		t.Fatalf("merged = %v", merged)
	}
	mp := merged[0]
	if mp.NumMerges != 1 {
		t.Fatalf("NumMerges = %d, want 1", mp.NumMerges)
	}
	if !reflect.DeepEqual(mp.MergedPath, []int{0, 2, 1}) {
		t.Fatalf("MergedPath = %v, want [0 2 1]", mp.MergedPath)
	}
	if !reflect.DeepEqual(mp.Path, []int{0, 1}) {
		t.Fatalf("original path mutated: %v", mp.Path)
	}
	if !mp.MergeInfo[0].Merged || mp.MergeInfo[0].CandidateIndex != 2 {
		t.Fatalf("MergeInfo[0] = %+v", mp.MergeInfo[0])
	}
	if mp.MergeInfo[1].Merged || mp.MergeInfo[1].CandidateIndex != -1 {
		t.Fatalf("MergeInfo[1] = %+v", mp.MergeInfo[1])
	}
	if mp.MergedPathNames[1] != "tool_c" {
		t.Fatalf("MergedPathNames = %v", mp.MergedPathNames)
	}
}

func TestMergeSkipsCandidatesAlreadyInPath(t *testing.T) {
	cat := testCatalog(t, 3)
	rng := rand.New(rand.NewSource(1))
	// tool_b is already in the path and index 99 is unknown, so nothing is
	// eligible even though the draw always wins.
	merged := MergePathsWithCandidates([][]int{{0, 1}}, cat, map[int][]int{0: {1, 99}}, 1.0, rng)
	if merged[0].NumMerges != 0 {
		t.Fatalf("NumMerges = %d, want 0", merged[0].NumMerges)
	}
	if !reflect.DeepEqual(merged[0].MergedPath, []int{0, 1}) {
		t.Fatalf("MergedPath = %v", merged[0].MergedPath)
	}
}

func TestMergeNeverWhenProbabilityZero(t *testing.T) {
	cat := testCatalog(t, 3)
	rng := rand.New(rand.NewSource(1))
	merged := MergePathsWithCandidates([][]int{{0, 1}}, cat, map[int][]int{0: {2}, 1: {2}}, 0.0, rng)
	if merged[0].NumMerges != 0 || !reflect.DeepEqual(merged[0].MergedPath, []int{0, 1}) {
		t.Fatalf("merged = %+v", merged[0])
	}
}

func TestWalkFileRoundTrip(t *testing.T) {
	g := testGraph(t, 3,
		graph.Edge{Source: 0, Target: 1},
		graph.Edge{Source: 1, Target: 2},
	)
	e, err := NewEngine(g, testLogger(), WithSeed(42), WithNumWalksPerNode(2), WithMaxSteps(5))
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	result := e.WalkAllNodes(nil)

	path := filepath.Join(t.TempDir(), "walks.json")
	if err := e.ToFile(result, "graph.json").Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := LoadFile(path, testLogger())
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if loaded.Meta.Seed != 42 || loaded.Meta.NumNodes != 3 {
		t.Fatalf("meta = %+v", loaded.Meta)
	}
	if loaded.Statistics.TotalWalksAfterDedup != result.TotalWalksAfterDedup {
		t.Fatalf("statistics = %+v", loaded.Statistics)
	}
	nr, ok := loaded.NodeResults["0"]
	if !ok || nr.Name != "tool_a" {
		t.Fatalf("node result 0 = %+v ok=%v", nr, ok)
	}
	for _, rec := range nr.PathsAfterDedup {
		if rec.PathLength != len(rec.NodeIndices) || len(rec.NodeNames) != len(rec.NodeIndices) {
			t.Fatalf("inconsistent path record: %+v", rec)
		}
	}

	// Flattened paths come back ordered by node index then walk id, each
	// starting at its own node.
	paths := loaded.Paths()
	if len(paths) != result.TotalWalksAfterDedup {
		t.Fatalf("Paths() = %d entries, want %d", len(paths), result.TotalWalksAfterDedup)
	}
	last := -1
	for _, p := range paths {
		if p[0] < last {
			t.Fatalf("paths out of node order: %v", paths)
		}
		last = p[0]
	}
}

func TestLoadWalkFileMissing(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "absent.json"), testLogger()); err == nil {
		t.Fatal("expected error for missing walk file")
	}
}
