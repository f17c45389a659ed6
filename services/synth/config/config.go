// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config holds the synthesis pipeline configuration: file
// locations, oracle settings, and the stage parameters for selection,
// graph construction, walking, and trajectory transformation.
package config

import (
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// MaxYAMLFileSize bounds config files to keep a corrupted or hostile file
// from ballooning memory.
const MaxYAMLFileSize = 1 << 20

// =============================================================================
// Configuration Types
// =============================================================================

// PipelineConfig is the full synthesis pipeline configuration.
//
// Thread Safety: Immutable after loading; safe for concurrent use.
type PipelineConfig struct {
	// Paths locates the pipeline's input and output files.
	Paths PathsConfig `yaml:"paths"`

	// Oracle configures the LLM edge oracle.
	Oracle OracleConfig `yaml:"oracle"`

	// Selection configures candidate selection.
	Selection SelectionConfig `yaml:"selection"`

	// Build configures batched graph construction.
	Build BuildConfig `yaml:"build"`

	// Walk configures random walk generation.
	Walk WalkConfig `yaml:"walk"`

	// Transform configures the Merge/Insert/Split rewrite stage.
	Transform TransformConfig `yaml:"transform"`

	// Server configures the HTTP viewer service.
	Server ServerConfig `yaml:"server"`
}

// PathsConfig locates pipeline artifacts on disk.
type PathsConfig struct {
	// Catalog is the tool catalog JSON file.
	Catalog string `yaml:"catalog"`

	// Graph is where the dependency graph is written and read.
	Graph string `yaml:"graph"`

	// Candidates is the persisted candidate mapping file.
	Candidates string `yaml:"candidates"`

	// Checkpoint is the Badger directory for build checkpoints. A file
	// checkpoint is used instead when it ends in .json.
	Checkpoint string `yaml:"checkpoint"`

	// Walks is the walk output file.
	Walks string `yaml:"walks"`

	// Trajectories is the transformed FSP output file.
	Trajectories string `yaml:"trajectories"`
}

// OracleConfig configures the LLM edge oracle.
type OracleConfig struct {
	// Model is the chat model name. Empty falls back to the environment.
	Model string `yaml:"model"`

	// BaseURL overrides the OpenAI-compatible endpoint.
	BaseURL string `yaml:"base_url"`
}

// SelectionConfig bounds the per-tool candidate sets.
type SelectionConfig struct {
	MaxCandidates int   `yaml:"max_candidates"`
	MinCandidates int   `yaml:"min_candidates"`
	Seed          int64 `yaml:"seed"`
}

// BuildConfig drives batched graph construction.
type BuildConfig struct {
	// BatchSize is the number of pairs judged per checkpointed batch.
	BatchSize int `yaml:"batch_size"`

	// JobID namespaces checkpoints so concurrent builds don't collide.
	JobID string `yaml:"job_id"`

	// MaxPairs caps the pairs judged in one run. Zero means no cap.
	MaxPairs int `yaml:"max_pairs"`
}

// WalkConfig drives random walk generation.
type WalkConfig struct {
	MaxSteps         int     `yaml:"max_steps"`
	NumWalksPerNode  int     `yaml:"num_walks_per_node"`
	Seed             int64   `yaml:"seed"`
	MergeProbability float64 `yaml:"merge_probability"`
}

// TransformConfig drives the Merge/Insert/Split rewrite stage.
type TransformConfig struct {
	MergeProbability          float64 `yaml:"merge_probability"`
	InsertProbability         float64 `yaml:"insert_probability"`
	LongDependencyProbability float64 `yaml:"long_dependency_probability"`
	SplitProbability          float64 `yaml:"split_probability"`
	Seed                      int64   `yaml:"seed"`
}

// ServerConfig configures the HTTP viewer.
type ServerConfig struct {
	// Listen is the address the viewer binds to.
	Listen string `yaml:"listen"`
}

// =============================================================================
// Defaults
// =============================================================================

const (
	// DefaultBatchSize is the pairs-per-batch default for graph builds.
	DefaultBatchSize = 10

	// DefaultMaxCandidates caps each tool's candidate set.
	DefaultMaxCandidates = 20

	// DefaultMinCandidates is the tiered-selection padding floor.
	DefaultMinCandidates = 5

	// DefaultMaxSteps bounds each walk's transitions.
	DefaultMaxSteps = 10

	// DefaultNumWalksPerNode is the walk attempts per start node.
	DefaultNumWalksPerNode = 3

	// DefaultSeed is the shared default RNG seed.
	DefaultSeed = 42

	// DefaultListen is the viewer's bind address.
	DefaultListen = ":8085"
)

// Stage probability defaults.
const (
	DefaultWalkMergeProbability      = 0.15
	DefaultMergeProbability          = 0.3
	DefaultInsertProbability         = 0.5
	DefaultLongDependencyProbability = 0.3
	DefaultSplitProbability          = 0.15
)

// Default returns a PipelineConfig with every default applied.
func Default() *PipelineConfig {
	return &PipelineConfig{
		Selection: SelectionConfig{
			MaxCandidates: DefaultMaxCandidates,
			MinCandidates: DefaultMinCandidates,
			Seed:          DefaultSeed,
		},
		Build: BuildConfig{
			BatchSize: DefaultBatchSize,
			JobID:     "default",
		},
		Walk: WalkConfig{
			MaxSteps:         DefaultMaxSteps,
			NumWalksPerNode:  DefaultNumWalksPerNode,
			Seed:             DefaultSeed,
			MergeProbability: DefaultWalkMergeProbability,
		},
		Transform: TransformConfig{
			MergeProbability:          DefaultMergeProbability,
			InsertProbability:         DefaultInsertProbability,
			LongDependencyProbability: DefaultLongDependencyProbability,
			SplitProbability:          DefaultSplitProbability,
			Seed:                      DefaultSeed,
		},
		Server: ServerConfig{Listen: DefaultListen},
	}
}

// =============================================================================
// Loading
// =============================================================================

// Load reads, parses, and validates a pipeline config file. Missing fields
// take their defaults; only explicitly wrong values fail.
func Load(path string, logger *slog.Logger) (*PipelineConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	return FromBytes(data, logger)
}

// FromBytes parses and validates a pipeline config from raw YAML.
func FromBytes(data []byte, logger *slog.Logger) (*PipelineConfig, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("empty config data")
	}
	if len(data) > MaxYAMLFileSize {
		return nil, fmt.Errorf("config exceeds maximum size (%d > %d)", len(data), MaxYAMLFileSize)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	logger.Info("pipeline config loaded",
		slog.Int("batch_size", cfg.Build.BatchSize),
		slog.Int("max_candidates", cfg.Selection.MaxCandidates),
		slog.Int("max_steps", cfg.Walk.MaxSteps),
		slog.Float64("merge_probability", cfg.Transform.MergeProbability),
	)
	return cfg, nil
}

// applyDefaults restores defaults for fields YAML set to their zero value.
// Probabilities are left alone: zero is a legitimate "never" setting.
func applyDefaults(cfg *PipelineConfig) {
	if cfg.Selection.MaxCandidates <= 0 {
		cfg.Selection.MaxCandidates = DefaultMaxCandidates
	}
	if cfg.Selection.MinCandidates <= 0 {
		cfg.Selection.MinCandidates = DefaultMinCandidates
	}
	if cfg.Build.BatchSize <= 0 {
		cfg.Build.BatchSize = DefaultBatchSize
	}
	if cfg.Build.JobID == "" {
		cfg.Build.JobID = "default"
	}
	if cfg.Walk.MaxSteps <= 0 {
		cfg.Walk.MaxSteps = DefaultMaxSteps
	}
	if cfg.Walk.NumWalksPerNode <= 0 {
		cfg.Walk.NumWalksPerNode = DefaultNumWalksPerNode
	}
	if cfg.Server.Listen == "" {
		cfg.Server.Listen = DefaultListen
	}
}

// Validate checks the configuration for consistency.
func (c *PipelineConfig) Validate() error {
	if c.Selection.MinCandidates > c.Selection.MaxCandidates {
		return fmt.Errorf("selection: min_candidates %d > max_candidates %d",
			c.Selection.MinCandidates, c.Selection.MaxCandidates)
	}
	if c.Build.MaxPairs < 0 {
		return fmt.Errorf("build: max_pairs must not be negative")
	}
	probs := map[string]float64{
		"walk.merge_probability":                c.Walk.MergeProbability,
		"transform.merge_probability":           c.Transform.MergeProbability,
		"transform.insert_probability":          c.Transform.InsertProbability,
		"transform.long_dependency_probability": c.Transform.LongDependencyProbability,
		"transform.split_probability":           c.Transform.SplitProbability,
	}
	for name, p := range probs {
		if p < 0 || p > 1 {
			return fmt.Errorf("%s: %v out of [0,1]", name, p)
		}
	}
	return nil
}
