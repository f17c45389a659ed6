// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package oracle defines the capability boundary between the deterministic
// graph-construction pipeline and the LLM that judges dependency edges.
//
// The pipeline only ever sees two small interfaces: EdgeOracle (does a
// directed dependency edge exist between two tools, and of what kind) and
// OutputFieldFilter (which of a tool's output fields are real outputs
// rather than pass-through echoes of its inputs). The chat-backed
// implementations in this package are one way to satisfy them; tests use
// scripted fakes.
package oracle

import (
	"context"

	"github.com/AleutianAI/toucan/services/synth/catalog"
)

// DependencyType classifies a judged dependency edge.
type DependencyType string

const (
	// DependencyFull means the source's output is a complete input for the
	// target.
	DependencyFull DependencyType = "full"

	// DependencyPartial means the source's output supplies part of the
	// target's input.
	DependencyPartial DependencyType = "partial"

	// DependencyPrerequisite means the source's output gates whether the
	// target should be called at all.
	DependencyPrerequisite DependencyType = "prerequisite"

	// DependencyNone means no dependency exists.
	DependencyNone DependencyType = "none"
)

// ParseDependencyType normalizes a raw judge string to a DependencyType.
// Unrecognized values collapse to DependencyNone.
func ParseDependencyType(s string) DependencyType {
	switch DependencyType(s) {
	case DependencyFull, DependencyPartial, DependencyPrerequisite:
		return DependencyType(s)
	default:
		return DependencyNone
	}
}

// TokenUsage accumulates the token cost of oracle calls.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Add accumulates another usage record into u.
func (u *TokenUsage) Add(other TokenUsage) {
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
	u.TotalTokens += other.TotalTokens
}

// Judgment is the oracle's verdict on one directed (source, candidate) pair.
type Judgment struct {
	HasEdge        bool           `json:"has_edge"`
	DependencyType DependencyType `json:"dependency_type"`
	Confidence     float64        `json:"confidence"`

	// ParamMapping maps source output field paths (dot notation for nested
	// fields) to candidate input parameter names. Empty for prerequisite
	// and none dependencies.
	ParamMapping map[string]string `json:"param_mapping"`

	Reasoning string     `json:"reasoning"`
	Usage     TokenUsage `json:"token_usage"`

	// FilteredFields is the source's output schema after pass-through
	// filtering, recorded for edge_details provenance.
	FilteredFields []catalog.OutputField `json:"filtered_output_fields,omitempty"`
}

// FilterResult is the outcome of output-field filtering for one tool.
type FilterResult struct {
	// Fields is the surviving output schema.
	Fields []catalog.OutputField `json:"fields"`

	// FilteredOut lists the names removed (by either filter stage).
	FilteredOut []string `json:"filtered_out_names"`

	Reasoning string     `json:"reasoning"`
	Usage     TokenUsage `json:"token_usage"`
}

// EdgeOracle judges whether a directed dependency edge should exist from
// source to candidate.
//
// Failure mode: implementations return an error on transport or parse
// failure; the construction driver treats it as a retryable single-pair
// failure and excludes the pair from the processed set.
type EdgeOracle interface {
	JudgeEdge(ctx context.Context, source, candidate *catalog.Tool) (*Judgment, error)
}

// OutputFieldFilter removes pass-through output fields (fields that merely
// echo an input parameter) from a tool's output schema before edge judging.
type OutputFieldFilter interface {
	FilterFields(ctx context.Context, tool *catalog.Tool) (*FilterResult, error)
}

// ChatMessage is one message in a chat completion request.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is a provider-neutral chat completion request.
type ChatRequest struct {
	Messages    []ChatMessage
	Temperature float64
	MaxTokens   int
}

// ChatResponse carries the completion text and its token cost.
type ChatResponse struct {
	Content string
	Usage   TokenUsage
}

// ChatClient is the minimal transport boundary the chat-backed oracle and
// filter need. Implementations own model selection, auth, and retries.
type ChatClient interface {
	Complete(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}
