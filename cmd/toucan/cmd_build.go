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
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/dgraph-io/badger/v4"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/toucan/services/synth/candidates"
	"github.com/AleutianAI/toucan/services/synth/catalog"
	"github.com/AleutianAI/toucan/services/synth/config"
	"github.com/AleutianAI/toucan/services/synth/graph"
	"github.com/AleutianAI/toucan/services/synth/graph/checkpoint"
	"github.com/AleutianAI/toucan/services/synth/oracle"
)

// buildResume, buildBatchSize, and buildMaxPairs hold flag values for the
// build-graph command.
var (
	buildResume    bool
	buildBatchSize int
	buildMaxPairs  int
	buildJobID     string
)

var buildCmd = &cobra.Command{
	Use:   "build-graph",
	Short: "Judge tool pairs with the LLM oracle and build the dependency graph",
	Run:   runBuildCommand,
}

func init() {
	buildCmd.Flags().BoolVar(&buildResume, "resume", false, "resume from the last checkpoint")
	buildCmd.Flags().IntVar(&buildBatchSize, "batch-size", 0, "pairs per checkpointed batch (overrides config)")
	buildCmd.Flags().IntVar(&buildMaxPairs, "max-pairs", 0, "stop after judging this many pairs (0 = all)")
	buildCmd.Flags().StringVar(&buildJobID, "job-id", "", "checkpoint namespace (overrides config)")
	rootCmd.AddCommand(buildCmd)
}

func runBuildCommand(_ *cobra.Command, _ []string) {
	cfg, err := loadConfig()
	if err != nil {
		fatalf("loading config: %v", err)
	}
	if cfg.Paths.Catalog == "" || cfg.Paths.Graph == "" {
		fatalf("config must set paths.catalog and paths.graph")
	}
	if buildBatchSize > 0 {
		cfg.Build.BatchSize = buildBatchSize
	}
	if buildMaxPairs > 0 {
		cfg.Build.MaxPairs = buildMaxPairs
	}
	if buildJobID != "" {
		cfg.Build.JobID = buildJobID
	}
	logger := slog.Default()

	cat, err := catalog.Load(cfg.Paths.Catalog, logger)
	if err != nil {
		fatalf("loading catalog: %v", err)
	}
	fmt.Printf("Catalog: %d tools\n", cat.Len())

	selector, err := candidates.NewSelector(cat, logger,
		candidates.WithMaxCandidates(cfg.Selection.MaxCandidates),
		candidates.WithMinCandidates(cfg.Selection.MinCandidates),
		candidates.WithSeed(cfg.Selection.Seed))
	if err != nil {
		fatalf("building selector: %v", err)
	}
	sets := selector.SelectAllTiered()
	if cfg.Paths.Candidates != "" {
		if err := candidates.SaveMapping(cfg.Paths.Candidates, cat, sets); err != nil {
			fatalf("saving candidate mapping: %v", err)
		}
	}

	client, err := buildChatClient(cfg)
	if err != nil {
		fatalf("building oracle client: %v", err)
	}
	filter, err := oracle.NewChatFieldFilter(client, logger)
	if err != nil {
		fatalf("building field filter: %v", err)
	}
	judge, err := oracle.NewChatOracle(client, filter, logger)
	if err != nil {
		fatalf("building oracle: %v", err)
	}

	store, cleanup, err := openCheckpointStore(cfg, logger)
	if err != nil {
		fatalf("opening checkpoint store: %v", err)
	}
	defer cleanup()

	opts := []graph.BuilderOption{
		graph.WithBatchSize(cfg.Build.BatchSize),
		graph.WithJobID(cfg.Build.JobID),
		graph.WithResume(buildResume),
	}
	if cfg.Build.MaxPairs > 0 {
		opts = append(opts, graph.WithMaxPairs(cfg.Build.MaxPairs))
	}
	builder, err := graph.NewBuilder(cat, judge, store, logger, opts...)
	if err != nil {
		fatalf("building graph builder: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := builder.Build(ctx, sets)
	if err != nil {
		fatalf("building graph: %v", err)
	}

	if err := result.Graph.ToFile(result.EdgeDetails, result.Usage).Save(cfg.Paths.Graph); err != nil {
		fatalf("saving graph: %v", err)
	}
	fmt.Printf("Graph saved to %s: %d nodes, %d edges (%d pairs judged, %d skipped, %d failed)\n",
		cfg.Paths.Graph, result.Graph.NodeCount(), result.Graph.EdgeCount(),
		result.ProcessedPairs, result.SkippedPairs, result.FailedPairs)
}

// buildChatClient builds the OpenAI-compatible chat client from config,
// falling back to the environment for anything unset.
func buildChatClient(cfg *config.PipelineConfig) (oracle.ChatClient, error) {
	if cfg.Oracle.Model != "" || cfg.Oracle.BaseURL != "" {
		apiKey := os.Getenv("OPENAI_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is not set")
		}
		return oracle.NewOpenAIClientWithConfig(apiKey, cfg.Oracle.Model, cfg.Oracle.BaseURL), nil
	}
	return oracle.NewOpenAIClient()
}

// openCheckpointStore opens the configured checkpoint backend: a JSON file
// when the path ends in .json, an embedded Badger directory otherwise.
// A nil store (no checkpointing) is returned when no path is configured.
func openCheckpointStore(cfg *config.PipelineConfig, logger *slog.Logger) (graph.Store, func(), error) {
	noop := func() {}
	path := cfg.Paths.Checkpoint
	if path == "" {
		return nil, noop, nil
	}
	if strings.HasSuffix(path, ".json") {
		store, err := checkpoint.NewFileStore(path, logger)
		return store, noop, err
	}
	db, err := badger.Open(badger.DefaultOptions(path).WithLogger(nil))
	if err != nil {
		return nil, noop, fmt.Errorf("opening badger at %s: %w", path, err)
	}
	store, err := checkpoint.NewBadgerStore(db, logger)
	if err != nil {
		db.Close()
		return nil, noop, err
	}
	return store, func() { db.Close() }, nil
}
