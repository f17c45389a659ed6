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
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/AleutianAI/toucan/services/synth/catalog"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func testTool(name, primary string, secondary ...string) *catalog.Tool {
	return &catalog.Tool{
		Name: name,
		OutputFields: []catalog.OutputField{
			{Name: "result", Type: "string"},
		},
		Classification: catalog.Classification{
			PrimaryLabel:    primary,
			SecondaryLabels: secondary,
		},
	}
}

func testCatalog(t *testing.T, tools ...*catalog.Tool) *catalog.Catalog {
	t.Helper()
	c, err := catalog.New(tools)
	if err != nil {
		t.Fatalf("catalog.New: %v", err)
	}
	return c
}

func TestSelectRawNeverIncludesSelf(t *testing.T) {
	cat := testCatalog(t,
		testTool("a", "maps"),
		testTool("b", "maps"),
		testTool("c", "maps"),
	)
	sel, err := NewSelector(cat, testLogger())
	if err != nil {
		t.Fatalf("NewSelector: %v", err)
	}
	for i := 0; i < cat.Len(); i++ {
		for _, j := range sel.SelectRaw(i) {
			if j == i {
				t.Fatalf("node %d is its own candidate", i)
			}
		}
	}
}

func TestSelectRawCapsAtMax(t *testing.T) {
	tools := []*catalog.Tool{testTool("n0", "x")}
	for i := 1; i <= 10; i++ {
		tools = append(tools, testTool(string(rune('a'+i)), "x"))
	}
	cat := testCatalog(t, tools...)
	sel, err := NewSelector(cat, testLogger(), WithMaxCandidates(3))
	if err != nil {
		t.Fatalf("NewSelector: %v", err)
	}
	got := sel.SelectRaw(0)
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	// Deterministic prefix in catalog order.
	if !reflect.DeepEqual(got, []int{1, 2, 3}) {
		t.Fatalf("got %v, want [1 2 3]", got)
	}
}

func TestSelectRawLabelOverlap(t *testing.T) {
	cat := testCatalog(t,
		testTool("a", "maps", "travel"),
		testTool("b", "weather", "travel"), // secondary overlap with a
		testTool("c", "finance"),           // no overlap
	)
	sel, err := NewSelector(cat, testLogger())
	if err != nil {
		t.Fatalf("NewSelector: %v", err)
	}
	got := sel.SelectRaw(0)
	if !reflect.DeepEqual(got, []int{1}) {
		t.Fatalf("got %v, want [1]", got)
	}
}

func TestSelectTieredPriorityOrder(t *testing.T) {
	cat := testCatalog(t,
		testTool("n", "maps", "travel"),
		testTool("t3", "finance", "travel"),
		testTool("t1", "maps"),
		testTool("t2", "travel"),
	)
	// Tiers for node 0 (primary=maps, secondary={travel}):
	//   tier 1: t1 (shared primary maps)        -> index 2
	//   tier 2: t2 (primary travel hits n's sec) -> index 3
	//   tier 3: t3 (secondary travel overlap)    -> index 1
	sel, err := NewSelector(cat, testLogger(), WithMinCandidates(3), WithMaxCandidates(10))
	if err != nil {
		t.Fatalf("NewSelector: %v", err)
	}
	got := sel.SelectTiered(0)
	want := []int{2, 3, 1}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestSelectTieredShortCircuitsAtMin(t *testing.T) {
	cat := testCatalog(t,
		testTool("n", "maps"),
		testTool("a", "maps"),
		testTool("b", "maps"),
		testTool("c", "maps"),
	)
	sel, err := NewSelector(cat, testLogger(), WithMinCandidates(2))
	if err != nil {
		t.Fatalf("NewSelector: %v", err)
	}
	got := sel.SelectTiered(0)
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2 (min short-circuit)", len(got))
	}
}

func TestSelectTieredUnlabeledNodePadsRandomly(t *testing.T) {
	cat := testCatalog(t,
		testTool("n", ""),
		testTool("a", "maps"),
		testTool("b", "travel"),
		testTool("c", "finance"),
	)
	sel, err := NewSelector(cat, testLogger(), WithMinCandidates(2), WithSeed(7))
	if err != nil {
		t.Fatalf("NewSelector: %v", err)
	}
	got := sel.SelectTiered(0)
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	for _, j := range got {
		if j == 0 {
			t.Fatal("self selected during padding")
		}
	}

	// Same seed, same result.
	sel2, err := NewSelector(cat, testLogger(), WithMinCandidates(2), WithSeed(7))
	if err != nil {
		t.Fatalf("NewSelector: %v", err)
	}
	if got2 := sel2.SelectTiered(0); !reflect.DeepEqual(got, got2) {
		t.Fatalf("padding not reproducible: %v vs %v", got, got2)
	}
}

func TestMappingRoundTripAndMissingNames(t *testing.T) {
	cat := testCatalog(t,
		testTool("a", "x"),
		testTool("b", "x"),
		testTool("c", "x"),
	)
	sets := map[int][]int{0: {1, 2}, 1: {0}, 2: {}}
	path := filepath.Join(t.TempDir(), "cands.json")
	if err := SaveMapping(path, cat, sets); err != nil {
		t.Fatalf("SaveMapping: %v", err)
	}

	got, err := LoadMapping(path, cat, testLogger())
	if err != nil {
		t.Fatalf("LoadMapping: %v", err)
	}
	if !reflect.DeepEqual(got[0], []int{1, 2}) || !reflect.DeepEqual(got[1], []int{0}) {
		t.Fatalf("round trip mismatch: %v", got)
	}

	// Reload against a catalog missing tool "c": its entries are dropped,
	// the rest survive.
	smaller := testCatalog(t, testTool("a", "x"), testTool("b", "x"))
	got2, err := LoadMapping(path, smaller, testLogger())
	if err != nil {
		t.Fatalf("LoadMapping(smaller): %v", err)
	}
	if _, ok := got2[2]; ok {
		t.Fatal("index 2 should not exist in smaller catalog mapping")
	}
	if !reflect.DeepEqual(got2[0], []int{1}) {
		t.Fatalf("got2[0] = %v, want [1]", got2[0])
	}
}
