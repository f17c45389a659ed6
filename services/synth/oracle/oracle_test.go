// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package oracle

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"reflect"
	"testing"

	"github.com/AleutianAI/toucan/services/synth/catalog"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

// scriptedClient returns canned responses in order.
type scriptedClient struct {
	responses []string
	calls     int
	err       error
}

func (s *scriptedClient) Complete(_ context.Context, _ ChatRequest) (*ChatResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.calls >= len(s.responses) {
		return nil, fmt.Errorf("scripted client exhausted after %d calls", s.calls)
	}
	resp := s.responses[s.calls]
	s.calls++
	return &ChatResponse{Content: resp, Usage: TokenUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15}}, nil
}

func TestParseJudgmentText(t *testing.T) {
	text := `HAS_EDGE: true
DEPENDENCY_TYPE: partial
CONFIDENCE: 0.85
PARAM_MAPPING: {"result.path": "file_path"}
REASONING: the path output feeds the downloader`

	j := parseJudgmentText(text)
	if !j.HasEdge {
		t.Fatal("HasEdge = false, want true")
	}
	if j.DependencyType != DependencyPartial {
		t.Fatalf("DependencyType = %q, want partial", j.DependencyType)
	}
	if j.Confidence != 0.85 {
		t.Fatalf("Confidence = %v, want 0.85", j.Confidence)
	}
	if !reflect.DeepEqual(j.ParamMapping, map[string]string{"result.path": "file_path"}) {
		t.Fatalf("ParamMapping = %v", j.ParamMapping)
	}
	if j.Reasoning != "the path output feeds the downloader" {
		t.Fatalf("Reasoning = %q", j.Reasoning)
	}
}

func TestParseJudgmentTextDefaults(t *testing.T) {
	j := parseJudgmentText("I am not sure what you mean.")
	if j.HasEdge || j.Confidence != 0 || j.DependencyType != DependencyNone {
		t.Fatalf("unexpected defaults: %+v", j)
	}
	if len(j.ParamMapping) != 0 {
		t.Fatalf("ParamMapping should be empty: %v", j.ParamMapping)
	}
}

func TestParseJudgmentTextNoneMapping(t *testing.T) {
	j := parseJudgmentText("HAS_EDGE: true\nDEPENDENCY_TYPE: prerequisite\nPARAM_MAPPING: NONE\nCONFIDENCE: 0.6")
	if !j.HasEdge || j.DependencyType != DependencyPrerequisite {
		t.Fatalf("unexpected judgment: %+v", j)
	}
	if len(j.ParamMapping) != 0 {
		t.Fatalf("NONE mapping should be empty: %v", j.ParamMapping)
	}
}

func TestParseDependencyTypeUnknownCollapsesToNone(t *testing.T) {
	if got := ParseDependencyType("banana"); got != DependencyNone {
		t.Fatalf("got %q, want none", got)
	}
}

func TestStripCodeFence(t *testing.T) {
	cases := map[string]string{
		"```json\n{\"a\":1}\n```": `{"a":1}`,
		"```\n{\"a\":1}\n```":     `{"a":1}`,
		`{"a":1}`:                 `{"a":1}`,
	}
	for in, want := range cases {
		if got := stripCodeFence(in); got != want {
			t.Fatalf("stripCodeFence(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNameFilterRemovesExactMatches(t *testing.T) {
	tool := &catalog.Tool{
		Name: "lookup",
		InputParams: []catalog.InputParam{
			{Name: "Query", Type: "string"},
		},
		OutputFields: []catalog.OutputField{
			{Name: "query", Type: "string"},
			{Name: "result", Type: "string"},
		},
	}
	kept, removed := nameFilterFields(tool)
	if len(kept) != 1 || kept[0].Name != "result" {
		t.Fatalf("kept = %v", kept)
	}
	if len(removed) != 1 || removed[0] != "query" {
		t.Fatalf("removed = %v", removed)
	}
}

func TestChatFieldFilterSemanticStage(t *testing.T) {
	client := &scriptedClient{responses: []string{
		"```json\n{\"filtered_params\": [\"echo\"], \"reasoning\": \"echo duplicates the input\"}\n```",
	}}
	f, err := NewChatFieldFilter(client, testLogger())
	if err != nil {
		t.Fatalf("NewChatFieldFilter: %v", err)
	}
	tool := &catalog.Tool{
		Name:        "t",
		InputParams: []catalog.InputParam{{Name: "q"}},
		OutputFields: []catalog.OutputField{
			{Name: "q"},    // removed by name stage
			{Name: "echo"}, // removed by semantic stage
			{Name: "data"},
		},
	}
	res, err := f.FilterFields(context.Background(), tool)
	if err != nil {
		t.Fatalf("FilterFields: %v", err)
	}
	if len(res.Fields) != 1 || res.Fields[0].Name != "data" {
		t.Fatalf("Fields = %v", res.Fields)
	}
	if !reflect.DeepEqual(res.FilteredOut, []string{"q", "echo"}) {
		t.Fatalf("FilteredOut = %v", res.FilteredOut)
	}
}

func TestChatFieldFilterFallsBackOnClientError(t *testing.T) {
	client := &scriptedClient{err: fmt.Errorf("connection refused")}
	f, err := NewChatFieldFilter(client, testLogger())
	if err != nil {
		t.Fatalf("NewChatFieldFilter: %v", err)
	}
	tool := &catalog.Tool{
		Name:         "t",
		InputParams:  []catalog.InputParam{{Name: "q"}},
		OutputFields: []catalog.OutputField{{Name: "q"}, {Name: "data"}},
	}
	res, err := f.FilterFields(context.Background(), tool)
	if err != nil {
		t.Fatalf("FilterFields should absorb client errors, got %v", err)
	}
	if len(res.Fields) != 1 || res.Fields[0].Name != "data" {
		t.Fatalf("fallback should keep name-filtered fields, got %v", res.Fields)
	}
}

func TestChatFieldFilterShortCircuitsWhenNothingSurvivesNames(t *testing.T) {
	client := &scriptedClient{} // must not be called
	f, err := NewChatFieldFilter(client, testLogger())
	if err != nil {
		t.Fatalf("NewChatFieldFilter: %v", err)
	}
	tool := &catalog.Tool{
		Name:         "t",
		InputParams:  []catalog.InputParam{{Name: "a"}, {Name: "b"}},
		OutputFields: []catalog.OutputField{{Name: "a"}, {Name: "B"}},
	}
	res, err := f.FilterFields(context.Background(), tool)
	if err != nil {
		t.Fatalf("FilterFields: %v", err)
	}
	if len(res.Fields) != 0 {
		t.Fatalf("Fields = %v, want empty", res.Fields)
	}
	if client.calls != 0 {
		t.Fatalf("semantic judge called %d times, want 0", client.calls)
	}
}

func TestChatOracleJudgeEdge(t *testing.T) {
	client := &scriptedClient{responses: []string{
		// Filter stage.
		`{"filtered_params": [], "reasoning": "nothing to filter"}`,
		// Judge stage.
		"HAS_EDGE: true\nDEPENDENCY_TYPE: full\nCONFIDENCE: 0.9\nPARAM_MAPPING: {\"out\": \"in\"}\nREASONING: direct feed",
	}}
	filter, err := NewChatFieldFilter(client, testLogger())
	if err != nil {
		t.Fatalf("NewChatFieldFilter: %v", err)
	}
	o, err := NewChatOracle(client, filter, testLogger())
	if err != nil {
		t.Fatalf("NewChatOracle: %v", err)
	}

	source := &catalog.Tool{
		Name:         "producer",
		InputParams:  []catalog.InputParam{{Name: "key"}},
		OutputFields: []catalog.OutputField{{Name: "out"}},
	}
	candidate := &catalog.Tool{
		Name:        "consumer",
		InputParams: []catalog.InputParam{{Name: "in"}},
	}

	j, err := o.JudgeEdge(context.Background(), source, candidate)
	if err != nil {
		t.Fatalf("JudgeEdge: %v", err)
	}
	if !j.HasEdge || j.DependencyType != DependencyFull || j.Confidence != 0.9 {
		t.Fatalf("judgment = %+v", j)
	}
	if j.Usage.TotalTokens != 30 {
		t.Fatalf("Usage.TotalTokens = %d, want 30 (judge + filter)", j.Usage.TotalTokens)
	}
	if client.calls != 2 {
		t.Fatalf("client calls = %d, want 2", client.calls)
	}
}
