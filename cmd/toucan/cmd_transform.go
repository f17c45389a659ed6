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

	"github.com/AleutianAI/toucan/services/synth/fsp"
	"github.com/AleutianAI/toucan/services/synth/graph"
	"github.com/AleutianAI/toucan/services/synth/walker"
)

// transformSeed holds the flag value for the transform command.
var transformSeed int64

var transformCmd = &cobra.Command{
	Use:   "transform",
	Short: "Rewrite walk paths into multi-turn function signature paths",
	Long: `transform applies the Merge, Insert, and Split operators to every
deduplicated walk path, producing multi-turn function signature paths with
full provenance logs for downstream query synthesis.`,
	Run: runTransformCommand,
}

func init() {
	transformCmd.Flags().Int64Var(&transformSeed, "seed", 0, "transformation seed (overrides config)")
	rootCmd.AddCommand(transformCmd)
}

func runTransformCommand(_ *cobra.Command, _ []string) {
	cfg, err := loadConfig()
	if err != nil {
		fatalf("loading config: %v", err)
	}
	if cfg.Paths.Graph == "" || cfg.Paths.Walks == "" || cfg.Paths.Trajectories == "" {
		fatalf("config must set paths.graph, paths.walks, and paths.trajectories")
	}
	if transformSeed != 0 {
		cfg.Transform.Seed = transformSeed
	}
	logger := slog.Default()

	g, _, err := graph.LoadFile(cfg.Paths.Graph, logger)
	if err != nil {
		fatalf("loading graph: %v", err)
	}
	walks, err := walker.LoadFile(cfg.Paths.Walks, logger)
	if err != nil {
		fatalf("loading walks: %v", err)
	}

	tr, err := fsp.NewTransformer(g, logger,
		fsp.WithMergeProbability(cfg.Transform.MergeProbability),
		fsp.WithInsertProbability(cfg.Transform.InsertProbability),
		fsp.WithLongDependencyProbability(cfg.Transform.LongDependencyProbability),
		fsp.WithSplitProbability(cfg.Transform.SplitProbability),
		fsp.WithSeed(cfg.Transform.Seed))
	if err != nil {
		fatalf("building transformer: %v", err)
	}

	out := tr.Transform(walks)
	out.Meta.InputPath = cfg.Paths.Walks
	if err := out.Save(cfg.Paths.Trajectories); err != nil {
		fatalf("saving trajectories: %v", err)
	}
	s := out.Statistics
	fmt.Printf("Trajectories saved to %s: %d paths, %d merges, %d inserts (%d short / %d long), %d splits\n",
		cfg.Paths.Trajectories, s.TotalPaths, s.TotalMerges,
		s.TotalInserts, s.ShortDependencyInserts, s.LongDependencyInserts, s.TotalSplits)
}
