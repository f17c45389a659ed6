// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/toucan/services/synth/graph"
)

// acyclifyOutput and acyclifySeed hold flag values for the acyclify
// command.
var (
	acyclifyOutput string
	acyclifySeed   int64
)

var acyclifyCmd = &cobra.Command{
	Use:   "acyclify",
	Short: "Break cycles and resolve bidirectional pairs in the graph",
	Long: `acyclify detects cycles, removes the lowest-confidence edge of each
strongly connected component until none remain, then resolves every
bidirectional pair to a single seeded-random direction. The result is
written with a bumped patch version so downstream stages can tell the
walkable graph from the raw one.`,
	Run: runAcyclifyCommand,
}

func init() {
	acyclifyCmd.Flags().StringVar(&acyclifyOutput, "output", "", "output path (defaults to overwriting the input graph)")
	acyclifyCmd.Flags().Int64Var(&acyclifySeed, "seed", 42, "seed for bidirectional direction choice")
	rootCmd.AddCommand(acyclifyCmd)
}

func runAcyclifyCommand(_ *cobra.Command, _ []string) {
	cfg, err := loadConfig()
	if err != nil {
		fatalf("loading config: %v", err)
	}
	if cfg.Paths.Graph == "" {
		fatalf("config must set paths.graph")
	}
	logger := slog.Default()

	g, file, err := graph.LoadFile(cfg.Paths.Graph, logger)
	if err != nil {
		fatalf("loading graph: %v", err)
	}

	cycles := g.DetectCycles(100)
	fmt.Printf("Cycles found: %d (scanned up to 100)\n", cycles.NumCyclesFound)

	removal := g.RemoveCyclesMinimally()
	fmt.Printf("Cycle removal: %d edges removed in %d iterations, %d residual SCCs\n",
		removal.RemovedEdges, removal.Iterations, removal.ResidualSCCs)

	bidi := g.RemoveBidirectionalEdges(acyclifySeed)
	fmt.Printf("Bidirectional resolution: %d pairs, %d edges removed\n",
		bidi.PairsProcessed, bidi.RemovedEdges)

	g.Version = graph.BumpPatchVersion(g.Version)

	output := acyclifyOutput
	if output == "" {
		output = cfg.Paths.Graph
	}
	if err := g.ToFile(file.EdgeDetails, file.TokenUsage).Save(output); err != nil {
		fatalf("saving graph: %v", err)
	}
	fmt.Printf("Walkable graph saved to %s: %d nodes, %d edges (version %s)\n",
		output, g.NodeCount(), g.EdgeCount(), g.Version)
}
