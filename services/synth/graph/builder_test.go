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
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/toucan/services/synth/catalog"
	"github.com/AleutianAI/toucan/services/synth/graph/checkpoint"
	"github.com/AleutianAI/toucan/services/synth/oracle"
)

// scriptedOracle judges pairs from a fixed table, optionally failing
// selected pairs a limited number of times.
type scriptedOracle struct {
	mu        sync.Mutex
	judgments map[[2]string]*oracle.Judgment
	failures  map[[2]string]int
	failAll   bool
	calls     int
}

func (s *scriptedOracle) JudgeEdge(_ context.Context, source, candidate *catalog.Tool) (*oracle.Judgment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.failAll {
		return nil, errors.New("oracle unreachable")
	}
	key := [2]string{source.Name, candidate.Name}
	if n := s.failures[key]; n > 0 {
		s.failures[key] = n - 1
		return nil, errors.New("transient oracle error")
	}
	if j, ok := s.judgments[key]; ok {
		cp := *j
		cp.Usage = oracle.TokenUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15}
		return &cp, nil
	}
	return &oracle.Judgment{DependencyType: oracle.DependencyNone}, nil
}

func yes(dep oracle.DependencyType, confidence float64) *oracle.Judgment {
	return &oracle.Judgment{
		HasEdge:        true,
		DependencyType: dep,
		Confidence:     confidence,
		ParamMapping:   map[string]string{"out": "in"},
	}
}

func testStore(t *testing.T) *checkpoint.BadgerStore {
	t.Helper()
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		t.Fatalf("opening in-memory badger: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	store, err := checkpoint.NewBadgerStore(db, testLogger())
	if err != nil {
		t.Fatalf("NewBadgerStore: %v", err)
	}
	return store
}

func TestBuildMaterializesOnlyPositiveJudgments(t *testing.T) {
	cat := testCatalog(t, 3)
	o := &scriptedOracle{judgments: map[[2]string]*oracle.Judgment{
		{"tool_a", "tool_b"}: yes(oracle.DependencyFull, 0.9),
		// tool_a -> tool_c judged with no edge (default).
	}}
	b, err := NewBuilder(cat, o, nil, testLogger(), WithBatchSize(2))
	if err != nil {
		t.Fatalf("NewBuilder: %v", err)
	}

	result, err := b.Build(context.Background(), map[int][]int{0: {1, 2}})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if result.Graph.EdgeCount() != 1 || !result.Graph.HasEdge(0, 1) {
		t.Fatalf("edges = %v", result.Graph.Edges())
	}
	if result.ProcessedPairs != 2 {
		t.Fatalf("ProcessedPairs = %d, want 2", result.ProcessedPairs)
	}
	if result.Usage.SuccessfulCalls != 2 || result.Usage.TotalTokens != 30 {
		t.Fatalf("usage = %+v", result.Usage)
	}
}

func TestBuildTotalBatchFailureIsFatal(t *testing.T) {
	cat := testCatalog(t, 3)
	o := &scriptedOracle{failAll: true}
	b, err := NewBuilder(cat, o, nil, testLogger(), WithBatchSize(2))
	if err != nil {
		t.Fatalf("NewBuilder: %v", err)
	}
	_, err = b.Build(context.Background(), map[int][]int{0: {1, 2}})
	if !errors.Is(err, ErrBatchFailed) {
		t.Fatalf("Build = %v, want ErrBatchFailed", err)
	}
}

func TestBuildPartialFailureRetriedOnResume(t *testing.T) {
	cat := testCatalog(t, 3)
	judgments := map[[2]string]*oracle.Judgment{
		{"tool_a", "tool_b"}: yes(oracle.DependencyFull, 0.9),
		{"tool_a", "tool_c"}: yes(oracle.DependencyPartial, 0.7),
	}
	store := testStore(t)
	ctx := context.Background()

	// Run 1: the a->c judgment fails once. Its batch partner succeeds, so
	// the run completes with one failed pair excluded from the checkpoint.
	o1 := &scriptedOracle{
		judgments: judgments,
		failures:  map[[2]string]int{{"tool_a", "tool_c"}: 1},
	}
	b1, err := NewBuilder(cat, o1, store, testLogger(),
		WithBatchSize(2), WithJobID("job"))
	if err != nil {
		t.Fatalf("NewBuilder: %v", err)
	}
	r1, err := b1.Build(ctx, map[int][]int{0: {1, 2}})
	if err != nil {
		t.Fatalf("Build(run1): %v", err)
	}
	if r1.FailedPairs != 1 || r1.Graph.EdgeCount() != 1 {
		t.Fatalf("run1 = %+v", r1)
	}

	// Run 2: resume. Only the failed pair is retried; the final edge set
	// matches what an uninterrupted run would have produced.
	o2 := &scriptedOracle{judgments: judgments}
	b2, err := NewBuilder(cat, o2, store, testLogger(),
		WithBatchSize(2), WithJobID("job"), WithResume(true))
	if err != nil {
		t.Fatalf("NewBuilder: %v", err)
	}
	r2, err := b2.Build(ctx, map[int][]int{0: {1, 2}})
	if err != nil {
		t.Fatalf("Build(run2): %v", err)
	}
	if o2.calls != 1 {
		t.Fatalf("run2 oracle calls = %d, want 1 (retry of failed pair only)", o2.calls)
	}
	if r2.SkippedPairs != 1 {
		t.Fatalf("SkippedPairs = %d, want 1", r2.SkippedPairs)
	}
	if r2.Graph.EdgeCount() != 2 || !r2.Graph.HasEdge(0, 1) || !r2.Graph.HasEdge(0, 2) {
		t.Fatalf("resumed edge set = %v", r2.Graph.Edges())
	}
}

func TestBuildResumeFullyProcessedSkipsEverything(t *testing.T) {
	cat := testCatalog(t, 3)
	judgments := map[[2]string]*oracle.Judgment{
		{"tool_a", "tool_b"}: yes(oracle.DependencyFull, 0.9),
	}
	store := testStore(t)
	ctx := context.Background()
	sets := map[int][]int{0: {1, 2}}

	o1 := &scriptedOracle{judgments: judgments}
	b1, err := NewBuilder(cat, o1, store, testLogger(), WithBatchSize(10), WithJobID("job"))
	if err != nil {
		t.Fatalf("NewBuilder: %v", err)
	}
	if _, err := b1.Build(ctx, sets); err != nil {
		t.Fatalf("Build(run1): %v", err)
	}

	o2 := &scriptedOracle{judgments: judgments}
	b2, err := NewBuilder(cat, o2, store, testLogger(),
		WithBatchSize(10), WithJobID("job"), WithResume(true))
	if err != nil {
		t.Fatalf("NewBuilder: %v", err)
	}
	r2, err := b2.Build(ctx, sets)
	if err != nil {
		t.Fatalf("Build(run2): %v", err)
	}
	if o2.calls != 0 {
		t.Fatalf("run2 oracle calls = %d, want 0", o2.calls)
	}
	if r2.Graph.EdgeCount() != 1 {
		t.Fatalf("edges = %d, want 1", r2.Graph.EdgeCount())
	}
}

func TestBuildDeterministicPairOrder(t *testing.T) {
	cat := testCatalog(t, 4)
	o := &scriptedOracle{judgments: map[[2]string]*oracle.Judgment{}}
	b, err := NewBuilder(cat, o, nil, testLogger(), WithBatchSize(1))
	if err != nil {
		t.Fatalf("NewBuilder: %v", err)
	}
	tasks := b.enumeratePairs(map[int][]int{2: {0}, 0: {3, 1}, 1: {2}})
	want := []pairTask{{0, 3}, {0, 1}, {1, 2}, {2, 0}}
	for i, task := range tasks {
		if task != want[i] {
			t.Fatalf("tasks = %v, want %v", tasks, want)
		}
	}
}

func TestBuildMaxPairsTruncates(t *testing.T) {
	cat := testCatalog(t, 4)
	o := &scriptedOracle{judgments: map[[2]string]*oracle.Judgment{}}
	b, err := NewBuilder(cat, o, nil, testLogger(), WithBatchSize(10), WithMaxPairs(2))
	if err != nil {
		t.Fatalf("NewBuilder: %v", err)
	}
	if _, err := b.Build(context.Background(), map[int][]int{0: {1, 2, 3}}); err != nil {
		t.Fatalf("Build: %v", err)
	}
	if o.calls != 2 {
		t.Fatalf("oracle calls = %d, want 2", o.calls)
	}
}
