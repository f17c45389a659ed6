// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package fsp rewrites walk paths into function signature paths: sequences
// of conversational turns, each holding the tool invocations of that turn.
// Three operators reshape them: Merge folds adjacent turns together,
// Insert splices nested successor calls in, and Split opens an empty
// information-miss turn. Each leaves a provenance log so downstream
// query synthesis can tell what happened to every turn.
package fsp

import (
	"github.com/AleutianAI/toucan/services/synth/catalog"
)

// Turn is one conversational turn: the ordered tool indices invoked in it.
// An empty turn is an information-miss marker, not an absence of data.
type Turn []int

// FSP is a function signature path, a sequence of turns.
type FSP []Turn

// FromPath converts a flat walk path into its initial FSP form, one node
// per turn.
func FromPath(path []int) FSP {
	out := make(FSP, len(path))
	for i, idx := range path {
		out[i] = Turn{idx}
	}
	return out
}

// Clone deep-copies the FSP.
func (f FSP) Clone() FSP {
	out := make(FSP, len(f))
	for i, turn := range f {
		out[i] = append(Turn(nil), turn...)
	}
	return out
}

// Flatten returns the function indices in turn order. Turn boundaries are
// lost; use only where a flat sequence is genuinely wanted.
func (f FSP) Flatten() []int {
	var out []int
	for _, turn := range f {
		out = append(out, turn...)
	}
	return out
}

// NumFunctions counts invocations across all turns.
func (f FSP) NumFunctions() int {
	n := 0
	for _, turn := range f {
		n += len(turn)
	}
	return n
}

// Names renders every turn into tool names.
func (f FSP) Names(cat *catalog.Catalog) [][]string {
	out := make([][]string, len(f))
	for i, turn := range f {
		out[i] = turnNames(turn, cat)
	}
	return out
}

func turnNames(turn Turn, cat *catalog.Catalog) []string {
	names := make([]string, len(turn))
	for i, idx := range turn {
		names[i] = cat.NameOf(idx)
	}
	return names
}
