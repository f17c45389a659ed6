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
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/AleutianAI/toucan/services/synth/catalog"
	"github.com/AleutianAI/toucan/services/synth/graph/checkpoint"
	"github.com/AleutianAI/toucan/services/synth/oracle"
)

// SerializedFunction is the function schema as persisted in graph files.
type SerializedFunction struct {
	Name         string                `json:"name"`
	Description  string                `json:"description"`
	InputParams  []catalog.InputParam  `json:"input_params"`
	OutputFields []catalog.OutputField `json:"output_fields"`
}

// SerializedSchema wraps the function schema; node identity across runs is
// FunctionSchema.Function.Name, never the positional index.
type SerializedSchema struct {
	Function SerializedFunction `json:"function"`
}

// SerializedNode is one node in the persisted graph file. Index is
// positional within the file and not stable across regenerations.
type SerializedNode struct {
	Index          int                    `json:"index"`
	FunctionSchema SerializedSchema       `json:"function_schema"`
	Classification catalog.Classification `json:"classification"`
}

// GraphFile is the persisted graph document.
type GraphFile struct {
	Version     string                  `json:"version"`
	NumNodes    int                     `json:"num_nodes"`
	NumEdges    int                     `json:"num_edges"`
	Nodes       []SerializedNode        `json:"nodes"`
	Edges       []checkpoint.EdgeRecord `json:"edges"`
	EdgeDetails []checkpoint.EdgeDetail `json:"edge_details"`
	TokenUsage  checkpoint.UsageSummary `json:"token_usage_summary"`
}

// ToFile renders the graph plus provenance into its persisted form.
func (g *Graph) ToFile(details []checkpoint.EdgeDetail, usage checkpoint.UsageSummary) *GraphFile {
	f := &GraphFile{
		Version:     g.Version,
		NumNodes:    g.NodeCount(),
		NumEdges:    g.EdgeCount(),
		EdgeDetails: details,
		TokenUsage:  usage,
	}
	for i := 0; i < g.cat.Len(); i++ {
		tool := g.cat.Tool(i)
		f.Nodes = append(f.Nodes, SerializedNode{
			Index: i,
			FunctionSchema: SerializedSchema{
				Function: SerializedFunction{
					Name:         tool.Name,
					Description:  tool.Description,
					InputParams:  tool.InputParams,
					OutputFields: tool.OutputFields,
				},
			},
			Classification: tool.Classification,
		})
	}
	for _, e := range g.edges {
		f.Edges = append(f.Edges, checkpoint.EdgeRecord{
			Source:         e.Source,
			Target:         e.Target,
			Confidence:     e.Confidence,
			DependencyType: string(e.DependencyType),
			ParamMapping:   e.ParamMapping,
		})
	}
	return f
}

// Save writes the graph file atomically.
func (f *GraphFile) Save(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating graph directory: %w", err)
		}
	}
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling graph file: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing graph temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("renaming graph file into place: %w", err)
	}
	return nil
}

// LoadFile reads a persisted graph file and reconstructs the graph along
// with its catalog, derived from the file's node schemas.
func LoadFile(path string, logger *slog.Logger) (*Graph, *GraphFile, error) {
	if logger == nil {
		logger = slog.Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("reading graph file %s: %w", path, err)
	}
	var f GraphFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, nil, fmt.Errorf("parsing graph file %s: %w", path, err)
	}

	tools := make([]*catalog.Tool, len(f.Nodes))
	for i, n := range f.Nodes {
		tools[i] = &catalog.Tool{
			Name:           n.FunctionSchema.Function.Name,
			Description:    n.FunctionSchema.Function.Description,
			InputParams:    n.FunctionSchema.Function.InputParams,
			OutputFields:   n.FunctionSchema.Function.OutputFields,
			Classification: n.Classification,
		}
	}
	cat, err := catalog.New(tools)
	if err != nil {
		return nil, nil, fmt.Errorf("rebuilding catalog from graph file: %w", err)
	}

	g, err := New(cat, logger)
	if err != nil {
		return nil, nil, err
	}
	if f.Version != "" {
		g.Version = f.Version
	}
	dropped := 0
	for _, e := range f.Edges {
		err := g.AddEdge(Edge{
			Source:         e.Source,
			Target:         e.Target,
			DependencyType: oracle.ParseDependencyType(e.DependencyType),
			Confidence:     e.Confidence,
			ParamMapping:   e.ParamMapping,
		})
		if err != nil {
			dropped++
		}
	}
	if dropped > 0 {
		logger.Warn("dropped invalid edges while loading graph", "path", path, "dropped", dropped)
	}
	logger.Info("graph loaded", "path", path,
		"nodes", g.NodeCount(), "edges", g.EdgeCount(), "version", g.Version)
	return g, &f, nil
}

// BumpPatchVersion increments the patch component of a semantic version
// string. Used when a derived graph (acyclic, bidirectional-resolved) is
// written so consumers can tell the stages apart. Unparseable versions are
// returned unchanged.
func BumpPatchVersion(version string) string {
	parts := strings.Split(version, ".")
	if len(parts) < 3 {
		return version
	}
	patch, err := strconv.Atoi(parts[len(parts)-1])
	if err != nil {
		return version
	}
	parts[len(parts)-1] = strconv.Itoa(patch + 1)
	return strings.Join(parts, ".")
}
