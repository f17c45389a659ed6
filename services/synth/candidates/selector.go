// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package candidates computes, for each tool in the catalog, the bounded set
// of other tools worth submitting to the edge oracle.
//
// Two strategies exist. The raw strategy takes any label overlap and
// truncates at a maximum. The tiered strategy builds candidates in priority
// tiers (shared primary label first) and pads with seeded random picks until
// a minimum is reached, which matters for sparsely labeled catalogs.
package candidates

import (
	"fmt"
	"log/slog"
	"math/rand"

	"github.com/AleutianAI/toucan/services/synth/catalog"
)

// SelectorOptions configures candidate selection.
type SelectorOptions struct {
	// MaxCandidates caps every candidate set. Zero means no cap.
	MaxCandidates int

	// MinCandidates is the tiered strategy's target size; tiers stop
	// accumulating once reached, and random padding fills any shortfall.
	MinCandidates int

	// Seed drives the padding RNG. Runs with equal seeds and catalogs
	// produce identical candidate sets.
	Seed int64
}

// Option mutates SelectorOptions.
type Option func(*SelectorOptions)

// WithMaxCandidates caps candidate set size.
func WithMaxCandidates(n int) Option { return func(o *SelectorOptions) { o.MaxCandidates = n } }

// WithMinCandidates sets the tiered strategy's minimum target.
func WithMinCandidates(n int) Option { return func(o *SelectorOptions) { o.MinCandidates = n } }

// WithSeed sets the sampling seed.
func WithSeed(seed int64) Option { return func(o *SelectorOptions) { o.Seed = seed } }

// Selector computes candidate sets over a fixed catalog.
//
// Thread Safety:
//
//	Not safe for concurrent use; the internal RNG is unsynchronized. Build
//	all candidate sets up front (SelectAll*) before fanning out oracle calls.
type Selector struct {
	cat    *catalog.Catalog
	opts   SelectorOptions
	rng    *rand.Rand
	logger *slog.Logger
}

// NewSelector builds a Selector for the given catalog.
func NewSelector(cat *catalog.Catalog, logger *slog.Logger, opts ...Option) (*Selector, error) {
	if cat == nil {
		return nil, fmt.Errorf("catalog is nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	o := SelectorOptions{
		MaxCandidates: 20,
		MinCandidates: 5,
		Seed:          42,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.MaxCandidates < 0 || o.MinCandidates < 0 {
		return nil, fmt.Errorf("candidate bounds must be non-negative (max=%d min=%d)",
			o.MaxCandidates, o.MinCandidates)
	}
	return &Selector{
		cat:    cat,
		opts:   o,
		rng:    rand.New(rand.NewSource(o.Seed)),
		logger: logger,
	}, nil
}

// SelectRaw returns the raw candidate set for node i: every other node
// sharing at least one label, truncated at MaxCandidates in catalog order.
// Truncation is deterministic; it takes the first MaxCandidates matches.
func (s *Selector) SelectRaw(i int) []int {
	node := s.cat.Tool(i)
	labels := node.Labels()

	var out []int
	for j := 0; j < s.cat.Len(); j++ {
		if j == i {
			continue
		}
		if overlaps(labels, s.cat.Tool(j).Labels()) {
			out = append(out, j)
			if s.opts.MaxCandidates > 0 && len(out) >= s.opts.MaxCandidates {
				break
			}
		}
	}
	return out
}

// SelectTiered returns the tiered candidate set for node i.
//
// Description:
//
//	Candidates accumulate tier by tier, short-circuiting once MinCandidates
//	is reached:
//	  1. same primary label
//	  2. node's secondary labels intersect the other's primary label
//	  3. node's secondary labels intersect the other's secondary labels
//	  4. seeded uniform random padding with distinct unlabeled-eligible nodes
//	A node with no labels yields tier-4 candidates only. The result is
//	capped at MaxCandidates and never contains node i itself.
func (s *Selector) SelectTiered(i int) []int {
	node := s.cat.Tool(i)
	primary := node.PrimaryLabel()
	secondary := node.SecondaryLabelSet()

	seen := map[int]struct{}{i: {}}
	var out []int
	add := func(j int) {
		if _, ok := seen[j]; ok {
			return
		}
		seen[j] = struct{}{}
		out = append(out, j)
	}
	enough := func() bool {
		return s.opts.MinCandidates > 0 && len(out) >= s.opts.MinCandidates
	}

	// Tier 1: same primary label.
	if primary != "" {
		for j := 0; j < s.cat.Len() && !enough(); j++ {
			if j != i && s.cat.Tool(j).PrimaryLabel() == primary {
				add(j)
			}
		}
	}

	// Tier 2: our secondary labels against their primary.
	if !enough() && len(secondary) > 0 {
		for j := 0; j < s.cat.Len() && !enough(); j++ {
			if j == i {
				continue
			}
			if p := s.cat.Tool(j).PrimaryLabel(); p != "" {
				if _, ok := secondary[p]; ok {
					add(j)
				}
			}
		}
	}

	// Tier 3: secondary-to-secondary overlap.
	if !enough() && len(secondary) > 0 {
		for j := 0; j < s.cat.Len() && !enough(); j++ {
			if j == i {
				continue
			}
			if overlaps(secondary, s.cat.Tool(j).SecondaryLabelSet()) {
				add(j)
			}
		}
	}

	// Tier 4: random padding up to the minimum.
	if !enough() {
		var pool []int
		for j := 0; j < s.cat.Len(); j++ {
			if _, ok := seen[j]; !ok {
				pool = append(pool, j)
			}
		}
		for len(pool) > 0 && !enough() {
			k := s.rng.Intn(len(pool))
			add(pool[k])
			pool[k] = pool[len(pool)-1]
			pool = pool[:len(pool)-1]
		}
	}

	if s.opts.MaxCandidates > 0 && len(out) > s.opts.MaxCandidates {
		out = out[:s.opts.MaxCandidates]
	}
	return out
}

// SelectAllRaw computes raw candidate sets for every node, keyed by index.
func (s *Selector) SelectAllRaw() map[int][]int {
	return s.selectAll(s.SelectRaw)
}

// SelectAllTiered computes tiered candidate sets for every node, keyed by
// index. Iteration is in node order so the padding RNG is consumed
// identically across runs with the same seed.
func (s *Selector) SelectAllTiered() map[int][]int {
	return s.selectAll(s.SelectTiered)
}

func (s *Selector) selectAll(f func(int) []int) map[int][]int {
	sets := make(map[int][]int, s.cat.Len())
	total := 0
	for i := 0; i < s.cat.Len(); i++ {
		c := f(i)
		sets[i] = c
		total += len(c)
	}
	avg := 0.0
	if s.cat.Len() > 0 {
		avg = float64(total) / float64(s.cat.Len())
	}
	s.logger.Info("candidate sets built",
		"nodes", s.cat.Len(), "total_candidates", total, "avg_per_node", avg)
	return sets
}

func overlaps(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for k := range a {
		if _, ok := b[k]; ok {
			return true
		}
	}
	return false
}
