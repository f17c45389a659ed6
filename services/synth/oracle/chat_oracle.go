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
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/AleutianAI/toucan/services/synth/catalog"
)

// ChatOracle is the chat-backed EdgeOracle. For each (source, candidate)
// pair it first filters the source's output fields, then asks the judge for
// a HAS_EDGE verdict over the filtered schema.
//
// Thread Safety:
//
//	Safe for concurrent use when the underlying ChatClient and
//	OutputFieldFilter are; the oracle itself holds no mutable state.
type ChatOracle struct {
	client ChatClient
	filter OutputFieldFilter
	logger *slog.Logger
}

// NewChatOracle constructs a ChatOracle.
//
// Inputs:
//
//	client - The chat transport; must be non-nil.
//	filter - The output-field filter; must be non-nil.
//	logger - Structured logger; defaults to slog.Default when nil.
func NewChatOracle(client ChatClient, filter OutputFieldFilter, logger *slog.Logger) (*ChatOracle, error) {
	if client == nil {
		return nil, fmt.Errorf("chat client is nil")
	}
	if filter == nil {
		return nil, fmt.Errorf("output field filter is nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ChatOracle{client: client, filter: filter, logger: logger}, nil
}

// JudgeEdge implements EdgeOracle.
func (o *ChatOracle) JudgeEdge(ctx context.Context, source, candidate *catalog.Tool) (*Judgment, error) {
	if source == nil || candidate == nil {
		return nil, fmt.Errorf("source and candidate must be non-nil")
	}

	filtered, err := o.filter.FilterFields(ctx, source)
	if err != nil {
		return nil, fmt.Errorf("filter output fields of %s: %w", source.Name, err)
	}

	prompt, err := renderJudgePrompt(source, candidate, filtered.Fields)
	if err != nil {
		return nil, fmt.Errorf("render judge prompt: %w", err)
	}

	resp, err := o.client.Complete(ctx, ChatRequest{
		Messages: []ChatMessage{
			{Role: "system", Content: "You are an expert analyst specializing in determining function dependencies and data flow."},
			{Role: "user", Content: prompt},
		},
		Temperature: 0.3,
		MaxTokens:   1024,
	})
	if err != nil {
		return nil, fmt.Errorf("judge edge %s -> %s: %w", source.Name, candidate.Name, err)
	}

	j := parseJudgmentText(resp.Content)
	j.Usage = resp.Usage
	j.Usage.Add(filtered.Usage)
	j.FilteredFields = filtered.Fields

	o.logger.Debug("edge judged",
		"source", source.Name, "candidate", candidate.Name,
		"has_edge", j.HasEdge, "type", j.DependencyType, "confidence", j.Confidence)
	return j, nil
}

func renderJudgePrompt(source, candidate *catalog.Tool, filteredFields []catalog.OutputField) (string, error) {
	outputSchema, err := json.MarshalIndent(map[string]any{"fields": filteredFields}, "", "  ")
	if err != nil {
		return "", err
	}
	candidateParams, err := json.MarshalIndent(candidate.InputParams, "", "  ")
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("You are an expert in analyzing function dependencies. Determine if there should be a directed edge from the node function to the candidate function.\n\n")
	fmt.Fprintf(&b, "Node Function (Source):\n- Name: %s\n- Description: %s\n- Output Schema (already filtered, excluding pass-through params): %s\n\n",
		source.Name, source.Description, outputSchema)
	fmt.Fprintf(&b, "Candidate Function (Target):\n- Name: %s\n- Description: %s\n- Input Parameters: %s\n\n",
		candidate.Name, candidate.Description, candidateParams)
	b.WriteString(`Analyze whether there should be a directed edge from node function to candidate function. Consider the following scenarios:

1. **Data Dependency**: Can the node function's filtered output be used as part or all of the candidate function's input?
   - Example: node function returns a file path, candidate function needs that path as input
   - **You must explicitly point out which output parameter from node function maps to which input parameter of candidate function**

2. **Prerequisite Dependency**: Can the node function's output determine whether we can/should call the candidate function?
   - Example: node function checks if a file exists, candidate function downloads the file (we should only download if file doesn't exist)
   - Example: node function validates permissions, candidate function performs an action (we should only perform action if permissions are valid)

A directed edge should exist if:
- The node function's filtered output can be used as input for the candidate function (data dependency), OR
- The node function's output determines whether it's appropriate/safe to call the candidate function (prerequisite dependency)

Your output MUST be in the following format:
HAS_EDGE: [true/false]
DEPENDENCY_TYPE: [full/partial/prerequisite/none]
CONFIDENCE: [0.0-1.0]
PARAM_MAPPING: [JSON object mapping node output params to candidate input params, or "NONE" if no data dependency]
REASONING: [detailed explanation]

- HAS_EDGE: true if there should be a directed edge from node to candidate, false otherwise
- DEPENDENCY_TYPE:
  - "full" if node's output can be used as complete input for candidate
  - "partial" if node's output can be used as part of candidate's input
  - "prerequisite" if node's output determines whether we can/should call candidate function
  - "none" if no dependency exists
- PARAM_MAPPING: For data dependency (full/partial), provide a JSON object like {"node_output_param1": "candidate_input_param1"}. If the output has nested fields, use dot notation like "result.items". For prerequisite dependency or no dependency, output "NONE".
- REASONING: explain your thinking process, including which output parameters you used and how they map to candidate input parameters.
`)
	return b.String(), nil
}
