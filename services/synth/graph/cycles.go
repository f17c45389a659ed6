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
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
)

// maxRemovalIterations caps the SCC-removal loop so a pathological graph
// cannot spin forever.
const maxRemovalIterations = 100

// Cycle is one detected directed cycle, closed (first node repeated last)
// and rotated so the minimum index leads.
type Cycle struct {
	NodeIndices []int    `json:"node_indices"`
	NodeNames   []string `json:"node_names"`
}

// CycleReport is the result of DetectCycles.
type CycleReport struct {
	HasCycle       bool    `json:"has_cycle"`
	NumCyclesFound int     `json:"num_cycles_found"`
	Cycles         []Cycle `json:"cycles"`
}

// DetectCycles finds up to maxCycles directed cycles via iterative DFS with
// an in-stack set. Cycles are normalized (rotated so the minimum node index
// is first) so the same cycle discovered from different traversal starts is
// reported once.
func (g *Graph) DetectCycles(maxCycles int) CycleReport {
	if maxCycles <= 0 {
		maxCycles = 20
	}

	visited := make(map[int]bool)
	inStack := make(map[int]bool)
	stackPos := make(map[int]int)
	var path []int
	var cycles []Cycle
	seen := make(map[string]struct{})

	type frame struct {
		node int
		next int
	}

	record := func(v int) {
		start := stackPos[v]
		raw := append(append([]int{}, path[start:]...), v)
		if len(raw) <= 1 {
			return
		}
		core := raw[:len(raw)-1]
		minPos := 0
		for p, idx := range core {
			if idx < core[minPos] {
				minPos = p
			}
		}
		norm := append(append([]int{}, core[minPos:]...), core[:minPos]...)
		norm = append(norm, norm[0])

		key := cycleKey(norm)
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}

		names := make([]string, len(norm))
		for p, idx := range norm {
			names[p] = g.cat.NameOf(idx)
		}
		cycles = append(cycles, Cycle{NodeIndices: norm, NodeNames: names})
	}

	for start := 0; start < g.cat.Len() && len(cycles) < maxCycles; start++ {
		if visited[start] {
			continue
		}
		stack := []frame{{node: start}}
		visited[start] = true
		inStack[start] = true
		stackPos[start] = len(path)
		path = append(path, start)

		for len(stack) > 0 && len(cycles) < maxCycles {
			f := &stack[len(stack)-1]
			neighbors := g.adj[f.node]
			if f.next < len(neighbors) {
				v := neighbors[f.next]
				f.next++
				if !visited[v] {
					visited[v] = true
					inStack[v] = true
					stackPos[v] = len(path)
					path = append(path, v)
					stack = append(stack, frame{node: v})
				} else if inStack[v] {
					record(v)
				}
				continue
			}
			inStack[f.node] = false
			path = path[:len(path)-1]
			stack = stack[:len(stack)-1]
		}
		// Unwind any frames left by an early cycle-cap exit.
		for len(stack) > 0 {
			inStack[stack[len(stack)-1].node] = false
			path = path[:len(path)-1]
			stack = stack[:len(stack)-1]
		}
	}

	return CycleReport{
		HasCycle:       len(cycles) > 0,
		NumCyclesFound: len(cycles),
		Cycles:         cycles,
	}
}

func cycleKey(indices []int) string {
	var b strings.Builder
	for _, i := range indices {
		fmt.Fprintf(&b, "%d,", i)
	}
	return b.String()
}

// stronglyConnectedComponents runs Kosaraju's two-pass algorithm with
// explicit stacks. Forward pass records finish order; the reverse-graph
// pass in reverse finish order collects components.
func stronglyConnectedComponents(adj map[int][]int, nodes []int) [][]int {
	rev := make(map[int][]int)
	for u, vs := range adj {
		for _, v := range vs {
			rev[v] = append(rev[v], u)
		}
	}

	type frame struct {
		node int
		next int
	}

	visited := make(map[int]bool)
	finish := make([]int, 0, len(nodes))
	for _, start := range nodes {
		if visited[start] {
			continue
		}
		visited[start] = true
		stack := []frame{{node: start}}
		for len(stack) > 0 {
			f := &stack[len(stack)-1]
			neighbors := adj[f.node]
			if f.next < len(neighbors) {
				v := neighbors[f.next]
				f.next++
				if !visited[v] {
					visited[v] = true
					stack = append(stack, frame{node: v})
				}
				continue
			}
			finish = append(finish, f.node)
			stack = stack[:len(stack)-1]
		}
	}

	visited = make(map[int]bool)
	var sccs [][]int
	for i := len(finish) - 1; i >= 0; i-- {
		start := finish[i]
		if visited[start] {
			continue
		}
		visited[start] = true
		component := []int{}
		work := []int{start}
		for len(work) > 0 {
			u := work[len(work)-1]
			work = work[:len(work)-1]
			component = append(component, u)
			for _, v := range rev[u] {
				if !visited[v] {
					visited[v] = true
					work = append(work, v)
				}
			}
		}
		sccs = append(sccs, component)
	}
	return sccs
}

// RemovedEdge records one edge dropped during acyclification.
type RemovedEdge struct {
	SourceIndex    int     `json:"source_index"`
	TargetIndex    int     `json:"target_index"`
	SourceName     string  `json:"source_name"`
	TargetName     string  `json:"target_name"`
	Confidence     float64 `json:"confidence"`
	DependencyType string  `json:"dependency_type"`
	SCCSize        int     `json:"scc_size"`
	Iteration      int     `json:"iteration"`
}

// RemovalReport summarizes one RemoveCyclesMinimally run.
type RemovalReport struct {
	OriginalEdges  int           `json:"original_edges"`
	RemovedEdges   int           `json:"removed_edges"`
	RemainingEdges int           `json:"remaining_edges"`
	Iterations     int           `json:"iterations"`
	ResidualSCCs   int           `json:"residual_cyclic_sccs"`
	Removed        []RemovedEdge `json:"removed_edges_info"`
}

// RemoveCyclesMinimally breaks every cycle by greedily removing edges.
//
// Description:
//
//	Each iteration computes SCCs; for every multi-node SCC the induced edge
//	with the lowest confidence (ties broken by discovery order) is removed.
//	Iterates to convergence or the iteration cap. The final verification
//	pass logs a warning if multi-node SCCs remain; downstream walks tolerate
//	residual cycles through their no-revisit guarantee, so this is not
//	fatal. The greedy choice is a heuristic, not a proof of global
//	minimality: only edges inside some multi-node SCC are ever removed.
func (g *Graph) RemoveCyclesMinimally() RemovalReport {
	report := RemovalReport{OriginalEdges: len(g.edges)}
	nodes := g.nodeIndices()
	toRemove := make(map[[2]int]struct{})

	for report.Iterations < maxRemovalIterations {
		report.Iterations++

		current := make(map[int][]int)
		for _, e := range g.edges {
			if _, drop := toRemove[[2]int{e.Source, e.Target}]; drop {
				continue
			}
			current[e.Source] = append(current[e.Source], e.Target)
		}

		sccs := stronglyConnectedComponents(current, nodes)
		var cyclic [][]int
		for _, scc := range sccs {
			if len(scc) > 1 {
				cyclic = append(cyclic, scc)
			}
		}
		if len(cyclic) == 0 {
			break
		}
		g.logger.Info("cycle removal iteration",
			"iteration", report.Iterations, "cyclic_sccs", len(cyclic))

		removedThisIteration := 0
		for _, scc := range cyclic {
			inSCC := make(map[int]struct{}, len(scc))
			for _, u := range scc {
				inSCC[u] = struct{}{}
			}

			var best [2]int
			bestConfidence := 0.0
			found := false
			for _, u := range scc {
				for _, v := range current[u] {
					if _, ok := inSCC[v]; !ok {
						continue
					}
					pair := [2]int{u, v}
					if _, gone := toRemove[pair]; gone {
						continue
					}
					e, ok := g.EdgeBetween(u, v)
					if !ok {
						continue
					}
					if !found || e.Confidence < bestConfidence {
						found = true
						best = pair
						bestConfidence = e.Confidence
					}
				}
			}
			if !found {
				continue
			}

			toRemove[best] = struct{}{}
			e, _ := g.EdgeBetween(best[0], best[1])
			report.Removed = append(report.Removed, RemovedEdge{
				SourceIndex:    best[0],
				TargetIndex:    best[1],
				SourceName:     g.cat.NameOf(best[0]),
				TargetName:     g.cat.NameOf(best[1]),
				Confidence:     e.Confidence,
				DependencyType: string(e.DependencyType),
				SCCSize:        len(scc),
				Iteration:      report.Iterations,
			})
			removedThisIteration++
		}

		if removedThisIteration == 0 {
			g.logger.Warn("cycle removal stalled, no removable edges remain")
			break
		}
	}

	g.RemoveEdges(toRemove)
	report.RemovedEdges = len(toRemove)
	report.RemainingEdges = len(g.edges)

	// Verification pass: acyclicity means every SCC is a single node.
	finalSCCs := stronglyConnectedComponents(g.Adjacency(), nodes)
	for _, scc := range finalSCCs {
		if len(scc) > 1 {
			report.ResidualSCCs++
		}
	}
	if report.ResidualSCCs > 0 {
		g.logger.Warn("cycles remain after minimal removal",
			"residual_cyclic_sccs", report.ResidualSCCs, "iterations", report.Iterations)
	} else {
		g.logger.Info("graph verified acyclic",
			"removed_edges", report.RemovedEdges, "iterations", report.Iterations)
	}
	return report
}

// BidirectionalRemoval summarizes one RemoveBidirectionalEdges run.
type BidirectionalRemoval struct {
	OriginalEdges  int         `json:"original_edges"`
	RemovedEdges   int         `json:"removed_edges"`
	RemainingEdges int         `json:"remaining_edges"`
	PairsProcessed int         `json:"bidirectional_pairs_processed"`
	RemovedPairs   [][2]string `json:"removed_edge_pairs"`
}

// RemoveBidirectionalEdges resolves every A<->B pair by keeping exactly one
// direction, chosen by a seeded coin flip. Pairs are visited in sorted
// order so the outcome is deterministic given the seed.
func (g *Graph) RemoveBidirectionalEdges(seed int64) BidirectionalRemoval {
	result := BidirectionalRemoval{OriginalEdges: len(g.edges)}

	pairSet := make(map[[2]int]struct{})
	for _, e := range g.edges {
		if _, ok := g.byPair[[2]int{e.Target, e.Source}]; !ok {
			continue
		}
		lo, hi := e.Source, e.Target
		if lo > hi {
			lo, hi = hi, lo
		}
		pairSet[[2]int{lo, hi}] = struct{}{}
	}

	rng := rand.New(rand.NewSource(seed))
	toRemove := make(map[[2]int]struct{})
	for _, p := range sortedPairs(pairSet) {
		result.PairsProcessed++
		a, b := p[0], p[1]
		var drop [2]int
		if rng.Float64() < 0.5 {
			drop = [2]int{b, a} // keep a->b
		} else {
			drop = [2]int{a, b} // keep b->a
		}
		toRemove[drop] = struct{}{}
		result.RemovedPairs = append(result.RemovedPairs,
			[2]string{g.cat.NameOf(drop[0]), g.cat.NameOf(drop[1])})
	}

	g.RemoveEdges(toRemove)
	result.RemovedEdges = len(toRemove)
	result.RemainingEdges = len(g.edges)

	g.logger.Info("bidirectional edges resolved",
		slog.Int("pairs", result.PairsProcessed),
		slog.Int("removed", result.RemovedEdges))
	return result
}
