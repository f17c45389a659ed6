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

	"github.com/AleutianAI/toucan/services/synth/candidates"
	"github.com/AleutianAI/toucan/services/synth/graph"
	"github.com/AleutianAI/toucan/services/synth/walker"
)

// walkSeed, walkMaxSteps, and walkNumWalks hold flag values for the walk
// command.
var (
	walkSeed     int64
	walkMaxSteps int
	walkNumWalks int
)

var walkCmd = &cobra.Command{
	Use:   "walk",
	Short: "Generate deduplicated random walk paths from every graph node",
	Run:   runWalkCommand,
}

func init() {
	walkCmd.Flags().Int64Var(&walkSeed, "seed", 0, "master walk seed (overrides config)")
	walkCmd.Flags().IntVar(&walkMaxSteps, "max-steps", 0, "transitions per walk (overrides config)")
	walkCmd.Flags().IntVar(&walkNumWalks, "num-walks", 0, "walks per start node (overrides config)")
	rootCmd.AddCommand(walkCmd)
}

func runWalkCommand(_ *cobra.Command, _ []string) {
	cfg, err := loadConfig()
	if err != nil {
		fatalf("loading config: %v", err)
	}
	if cfg.Paths.Graph == "" || cfg.Paths.Walks == "" {
		fatalf("config must set paths.graph and paths.walks")
	}
	if walkSeed != 0 {
		cfg.Walk.Seed = walkSeed
	}
	if walkMaxSteps > 0 {
		cfg.Walk.MaxSteps = walkMaxSteps
	}
	if walkNumWalks > 0 {
		cfg.Walk.NumWalksPerNode = walkNumWalks
	}
	logger := slog.Default()

	g, _, err := graph.LoadFile(cfg.Paths.Graph, logger)
	if err != nil {
		fatalf("loading graph: %v", err)
	}

	var candidateSets map[int][]int
	if cfg.Paths.Candidates != "" {
		candidateSets, err = candidates.LoadMapping(cfg.Paths.Candidates, g.Catalog(), logger)
		if err != nil {
			fatalf("loading candidate mapping: %v", err)
		}
	}

	engine, err := walker.NewEngine(g, logger,
		walker.WithMaxSteps(cfg.Walk.MaxSteps),
		walker.WithNumWalksPerNode(cfg.Walk.NumWalksPerNode),
		walker.WithSeed(cfg.Walk.Seed),
		walker.WithMergeProbability(cfg.Walk.MergeProbability))
	if err != nil {
		fatalf("building walk engine: %v", err)
	}

	result := engine.WalkAllNodes(candidateSets)
	if err := engine.ToFile(result, cfg.Paths.Graph).Save(cfg.Paths.Walks); err != nil {
		fatalf("saving walks: %v", err)
	}
	fmt.Printf("Walks saved to %s: %d nodes, %d paths after dedup (ratio %.3f), %d candidate merges\n",
		cfg.Paths.Walks, result.NumNodes, result.TotalWalksAfterDedup,
		result.OverallDedupRatio, result.TotalMerges)
}
