// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package graph

import (
	"path/filepath"
	"testing"

	"github.com/AleutianAI/toucan/services/synth/graph/checkpoint"
	"github.com/AleutianAI/toucan/services/synth/oracle"
)

func TestGraphFileRoundTrip(t *testing.T) {
	g := testGraph(t, 3,
		Edge{Source: 0, Target: 1, DependencyType: oracle.DependencyFull, Confidence: 0.9,
			ParamMapping: map[string]string{"out": "in"}},
		Edge{Source: 1, Target: 2, DependencyType: oracle.DependencyPrerequisite, Confidence: 0.6},
	)
	details := []checkpoint.EdgeDetail{
		{Source: 0, Target: 1, SourceName: "tool_a", TargetName: "tool_b",
			Confidence: 0.9, DependencyType: "full", Reasoning: "feeds input"},
	}
	usage := checkpoint.UsageSummary{SuccessfulCalls: 5, TotalTokens: 500}

	path := filepath.Join(t.TempDir(), "graph.json")
	if err := g.ToFile(details, usage).Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, file, err := LoadFile(path, testLogger())
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if loaded.NodeCount() != 3 || loaded.EdgeCount() != 2 {
		t.Fatalf("loaded %d nodes / %d edges", loaded.NodeCount(), loaded.EdgeCount())
	}
	e, ok := loaded.EdgeBetween(0, 1)
	if !ok || e.DependencyType != oracle.DependencyFull || e.Confidence != 0.9 {
		t.Fatalf("edge 0->1 = %+v ok=%v", e, ok)
	}
	if e.ParamMapping["out"] != "in" {
		t.Fatalf("param mapping = %v", e.ParamMapping)
	}
	if _, ok := loaded.Catalog().IndexOf("tool_c"); !ok {
		t.Fatal("catalog name index lost in round trip")
	}
	if file.NumEdges != 2 || len(file.EdgeDetails) != 1 || file.TokenUsage.TotalTokens != 500 {
		t.Fatalf("file = %+v", file)
	}
}

func TestLoadFileMissing(t *testing.T) {
	if _, _, err := LoadFile(filepath.Join(t.TempDir(), "absent.json"), testLogger()); err == nil {
		t.Fatal("expected error for missing graph file")
	}
}

func TestBumpPatchVersion(t *testing.T) {
	cases := map[string]string{
		"1.0.0":   "1.0.1",
		"1.0.9":   "1.0.10",
		"2.3":     "2.3",
		"1.0.x":   "1.0.x",
		"v1.2.3":  "v1.2.4",
		"garbage": "garbage",
	}
	for in, want := range cases {
		if got := BumpPatchVersion(in); got != want {
			t.Fatalf("BumpPatchVersion(%q) = %q, want %q", in, got, want)
		}
	}
}
