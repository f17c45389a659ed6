// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package checkpoint persists the partial state of a resumable graph
// construction run: which (source, candidate) pairs have been judged, which
// edges came out of them, and the accumulated token cost.
//
// The name-pair list is the authoritative record for cross-run resume;
// index pairs are a same-run convenience only, because the catalog's node
// order may change between runs. Two stores exist: a Badger store for
// crash-safe incremental writes during a run (gzip-compressed JSON values)
// and a plain JSON file store matching the pipeline's interchange format.
package checkpoint

import (
	"errors"

	"github.com/AleutianAI/toucan/services/synth/oracle"
)

// SchemaVersion is the checkpoint payload version.
const SchemaVersion = "1.0.0"

// ErrNotFound is returned by Load when no checkpoint exists.
var ErrNotFound = errors.New("checkpoint not found")

// Progress summarizes how far a construction run has advanced.
type Progress struct {
	ProcessedBatches int `json:"processed_batches"`
	TotalBatches     int `json:"total_batches"`
	ProcessedPairs   int `json:"processed_pairs"`
	TotalPairs       int `json:"total_pairs"`
}

// EdgeRecord is one materialized edge as persisted in checkpoints and graph
// files. Source and Target are positional indices valid only for the run
// that wrote them.
type EdgeRecord struct {
	Source         int               `json:"source"`
	Target         int               `json:"target"`
	Confidence     float64           `json:"confidence"`
	DependencyType string            `json:"dependency_type"`
	ParamMapping   map[string]string `json:"param_mapping"`
}

// EdgeDetail carries the full provenance of one materialized edge,
// including the names that make it resolvable across runs.
type EdgeDetail struct {
	Source         int               `json:"source"`
	Target         int               `json:"target"`
	SourceName     string            `json:"source_name"`
	TargetName     string            `json:"target_name"`
	Confidence     float64           `json:"confidence"`
	DependencyType string            `json:"dependency_type"`
	ParamMapping   map[string]string `json:"param_mapping"`
	Reasoning      string            `json:"reasoning"`
	TokenUsage     oracle.TokenUsage `json:"token_usage"`
}

// UsageSummary aggregates oracle token spend across a run.
type UsageSummary struct {
	SuccessfulCalls       int `json:"successful_calls"`
	TotalPromptTokens     int `json:"total_prompt_tokens"`
	TotalCompletionTokens int `json:"total_completion_tokens"`
	TotalTokens           int `json:"total_tokens"`
}

// Add accumulates one call's usage into the summary.
func (s *UsageSummary) Add(u oracle.TokenUsage) {
	s.SuccessfulCalls++
	s.TotalPromptTokens += u.PromptTokens
	s.TotalCompletionTokens += u.CompletionTokens
	s.TotalTokens += u.TotalTokens
}

// State is the full persisted checkpoint.
type State struct {
	Version string `json:"version"`

	// RunID identifies the run that last wrote this checkpoint.
	RunID string `json:"run_id"`

	Progress Progress `json:"progress"`

	// ProcessedPairs holds [source_index, target_index] pairs. Same-run
	// optimization only; never trusted across runs.
	ProcessedPairs [][2]int `json:"processed_pairs"`

	// ProcessedPairsByName holds [source_name, target_name] pairs and is
	// the authoritative record for resume.
	ProcessedPairsByName [][2]string `json:"processed_pairs_by_name"`

	Edges       []EdgeRecord `json:"edges"`
	EdgeDetails []EdgeDetail `json:"edge_details"`
	TokenUsage  UsageSummary `json:"token_usage_summary"`
}
