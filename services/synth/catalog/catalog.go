// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package catalog loads and validates the set of tool schemas that the
// synthesis pipeline builds its dependency graph over.
//
// A Tool is the unit the rest of the pipeline calls a "node": a callable
// function with a name, an input parameter schema, an output schema, and
// classification labels used for candidate mining. The catalog owns Tool
// records exclusively; every other component references tools by index or
// by name.
//
// Thread Safety:
//
//	A Catalog is immutable after construction and safe for concurrent reads.
package catalog

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// InputParam describes one named input parameter of a tool.
type InputParam struct {
	// Name is the parameter name as it appears in the tool schema.
	Name string `json:"name"`

	// Type is the declared parameter type (e.g., "string", "integer").
	Type string `json:"type"`

	// Required reports whether the parameter must be supplied.
	Required bool `json:"required"`

	// Description is the free-text parameter description.
	Description string `json:"description"`
}

// OutputField describes one named field of a tool's output schema.
// Nested fields use dot notation in Name (e.g., "result.items").
type OutputField struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description"`
}

// Classification holds the labels assigned to a tool by the upstream
// classification pass. PrimaryLabel may be empty for unlabeled tools.
type Classification struct {
	PrimaryLabel    string   `json:"primary_label"`
	SecondaryLabels []string `json:"secondary_labels"`

	// CustomLabel is an optional free-text label outside the fixed taxonomy.
	CustomLabel string `json:"custom_label,omitempty"`
}

// Tool is one catalog entry: a callable function schema plus its
// classification. Tools are immutable once loaded.
type Tool struct {
	Name           string         `json:"name"`
	Description    string         `json:"description"`
	InputParams    []InputParam   `json:"input_params"`
	OutputFields   []OutputField  `json:"output_fields"`
	Classification Classification `json:"classification"`
}

// Labels returns the set of non-empty, whitespace-trimmed labels
// (primary plus secondary) attached to the tool.
func (t *Tool) Labels() map[string]struct{} {
	labels := make(map[string]struct{})
	if p := strings.TrimSpace(t.Classification.PrimaryLabel); p != "" {
		labels[p] = struct{}{}
	}
	for _, s := range t.Classification.SecondaryLabels {
		if s = strings.TrimSpace(s); s != "" {
			labels[s] = struct{}{}
		}
	}
	return labels
}

// PrimaryLabel returns the trimmed primary label, or "" if none.
func (t *Tool) PrimaryLabel() string {
	return strings.TrimSpace(t.Classification.PrimaryLabel)
}

// SecondaryLabelSet returns the trimmed, de-duplicated secondary labels.
func (t *Tool) SecondaryLabelSet() map[string]struct{} {
	set := make(map[string]struct{})
	for _, s := range t.Classification.SecondaryLabels {
		if s = strings.TrimSpace(s); s != "" {
			set[s] = struct{}{}
		}
	}
	return set
}

// Catalog is the fixed, validated set of tools for one pipeline run.
//
// Description:
//
//	Tools are held in load order; the positional index is valid only within
//	a single process. Cross-run identity is always the tool name; the
//	catalog rejects duplicate or empty names at construction so that
//	name-keyed checkpoints can be reconciled unambiguously.
type Catalog struct {
	tools  []*Tool
	byName map[string]int
}

// New builds a Catalog from the given tools.
//
// Outputs:
//
//	*Catalog - The validated catalog.
//	error - Non-nil if any tool is nil, unnamed, or a duplicate name.
func New(tools []*Tool) (*Catalog, error) {
	c := &Catalog{
		tools:  make([]*Tool, 0, len(tools)),
		byName: make(map[string]int, len(tools)),
	}
	for i, t := range tools {
		if t == nil {
			return nil, fmt.Errorf("tool at index %d is nil", i)
		}
		name := strings.TrimSpace(t.Name)
		if name == "" {
			return nil, fmt.Errorf("tool at index %d has empty name", i)
		}
		if prev, ok := c.byName[name]; ok {
			return nil, fmt.Errorf("duplicate tool name %q (indices %d and %d)", name, prev, i)
		}
		c.byName[name] = len(c.tools)
		c.tools = append(c.tools, t)
	}
	return c, nil
}

// Load reads a catalog from a JSON file containing an array of tool records.
//
// Tools without any output fields are skipped with a warning: the edge
// oracle cannot judge data dependencies for a tool whose output schema was
// never designed, so such tools cannot participate in the graph.
func Load(path string, logger *slog.Logger) (*Catalog, error) {
	if logger == nil {
		logger = slog.Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}

	var raw []*Tool
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", path, err)
	}

	kept := make([]*Tool, 0, len(raw))
	skipped := 0
	for _, t := range raw {
		if t == nil {
			continue
		}
		if len(t.OutputFields) == 0 {
			skipped++
			continue
		}
		kept = append(kept, t)
	}
	if skipped > 0 {
		logger.Warn("skipped tools without output schema",
			"path", path, "skipped", skipped, "kept", len(kept))
	}

	c, err := New(kept)
	if err != nil {
		return nil, fmt.Errorf("validate catalog %s: %w", path, err)
	}
	logger.Info("catalog loaded", "path", path, "tools", c.Len())
	return c, nil
}

// Len returns the number of tools in the catalog.
func (c *Catalog) Len() int { return len(c.tools) }

// Tool returns the tool at index i. Panics on out-of-range access, which
// indicates a programming error (indices come from the catalog itself).
func (c *Catalog) Tool(i int) *Tool { return c.tools[i] }

// Tools returns the underlying tool slice. Callers must not mutate it.
func (c *Catalog) Tools() []*Tool { return c.tools }

// IndexOf returns the index of the named tool, or false if absent.
func (c *Catalog) IndexOf(name string) (int, bool) {
	i, ok := c.byName[name]
	return i, ok
}

// NameOf returns the name of the tool at index i, or "node_<i>" when the
// index is out of range (mirrors how persisted files label unknown nodes).
func (c *Catalog) NameOf(i int) string {
	if i < 0 || i >= len(c.tools) {
		return fmt.Sprintf("node_%d", i)
	}
	return c.tools[i].Name
}

// Names returns all tool names in catalog order.
func (c *Catalog) Names() []string {
	names := make([]string, len(c.tools))
	for i, t := range c.tools {
		names[i] = t.Name
	}
	return names
}
