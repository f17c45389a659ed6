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

// nameFilterFields drops every output field whose name (case-insensitive)
// exactly matches an input parameter name. Pure, no judge involved.
func nameFilterFields(tool *catalog.Tool) (kept []catalog.OutputField, removed []string) {
	inputNames := make(map[string]struct{}, len(tool.InputParams))
	for _, p := range tool.InputParams {
		inputNames[strings.ToLower(p.Name)] = struct{}{}
	}
	for _, f := range tool.OutputFields {
		if _, ok := inputNames[strings.ToLower(f.Name)]; ok {
			removed = append(removed, f.Name)
			continue
		}
		kept = append(kept, f)
	}
	return kept, removed
}

// ChatFieldFilter is the two-stage OutputFieldFilter: exact name matches are
// removed in code, then a chat judge removes fields that duplicate an input
// parameter semantically.
//
// Description:
//
//	Stage two is best-effort. If the judge call fails or its JSON cannot be
//	parsed, the name-filtered field set is returned with a warning; the edge
//	judge can still work with a slightly noisier output schema.
type ChatFieldFilter struct {
	client ChatClient
	logger *slog.Logger
}

// NewChatFieldFilter constructs a ChatFieldFilter.
func NewChatFieldFilter(client ChatClient, logger *slog.Logger) (*ChatFieldFilter, error) {
	if client == nil {
		return nil, fmt.Errorf("chat client is nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ChatFieldFilter{client: client, logger: logger}, nil
}

// FilterFields implements OutputFieldFilter.
func (f *ChatFieldFilter) FilterFields(ctx context.Context, tool *catalog.Tool) (*FilterResult, error) {
	if tool == nil {
		return nil, fmt.Errorf("tool is nil")
	}

	afterName, removedByName := nameFilterFields(tool)
	if len(afterName) == 0 {
		return &FilterResult{
			Fields:      nil,
			FilteredOut: removedByName,
			Reasoning:   "all output fields matched input parameter names",
		}, nil
	}

	prompt, err := renderFilterPrompt(tool, afterName)
	if err != nil {
		return nil, fmt.Errorf("render filter prompt: %w", err)
	}

	resp, err := f.client.Complete(ctx, ChatRequest{
		Messages: []ChatMessage{
			{Role: "system", Content: "You are an expert at analyzing parameter semantics. Always respond with a JSON object containing 'filtered_params' array and 'reasoning' string."},
			{Role: "user", Content: prompt},
		},
		Temperature: 0.7,
		MaxTokens:   512,
	})
	if err != nil {
		f.logger.Warn("semantic field filter failed, keeping name-filtered fields",
			"tool", tool.Name, "error", err)
		return &FilterResult{
			Fields:      afterName,
			FilteredOut: removedByName,
			Reasoning:   fmt.Sprintf("semantic filter unavailable: %v", err),
		}, nil
	}

	parsed := parseFilterText(resp.Content)
	toRemove := make(map[string]struct{}, len(parsed.FilteredParams))
	for _, name := range parsed.FilteredParams {
		toRemove[strings.ToLower(name)] = struct{}{}
	}

	result := &FilterResult{
		FilteredOut: append([]string{}, removedByName...),
		Reasoning:   parsed.Reasoning,
		Usage:       resp.Usage,
	}
	for _, field := range afterName {
		if _, ok := toRemove[strings.ToLower(field.Name)]; ok {
			result.FilteredOut = append(result.FilteredOut, field.Name)
			continue
		}
		result.Fields = append(result.Fields, field)
	}
	return result, nil
}

func renderFilterPrompt(tool *catalog.Tool, fields []catalog.OutputField) (string, error) {
	inputs, err := json.MarshalIndent(tool.InputParams, "", "  ")
	if err != nil {
		return "", err
	}
	outputs, err := json.MarshalIndent(fields, "", "  ")
	if err != nil {
		return "", err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "You are an expert at analyzing function parameter semantics.\n\n")
	fmt.Fprintf(&b, "Function Name: %s\n\n", tool.Name)
	fmt.Fprintf(&b, "Input Parameters:\n%s\n\n", inputs)
	fmt.Fprintf(&b, "Output Parameters (after name filtering):\n%s\n\n", outputs)
	b.WriteString("Your task is to identify which output parameters have a similar or related description to any input parameter, or express a similar attribute or meaning, even if their names are different.\n\n")
	b.WriteString("Output format: A JSON object with two fields:\n")
	b.WriteString("1. \"filtered_params\": A JSON array of parameter names that should be filtered out\n")
	b.WriteString("2. \"reasoning\": Your reasoning process explaining which parameters should be filtered and why, or why none should be filtered\n\n")
	b.WriteString("Your output (JSON object only):")
	return b.String(), nil
}
