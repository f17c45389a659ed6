// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command toucan drives the tool-dependency synthesis pipeline: candidate
// selection, LLM-judged graph construction, acyclification, random walks,
// trajectory transformation, and an HTTP viewer over the artifacts.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/toucan/services/synth/config"
)

// configPath and logLevel hold the global flag values.
var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "toucan",
	Short: "Tool-dependency dataset synthesis pipeline",
	Long: `toucan builds an LLM-judged tool dependency graph from a catalog,
makes it walkable, generates deduplicated random walk paths, and rewrites
them into multi-turn function signature paths.`,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		initLogger()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "pipeline config YAML (optional)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
}

func initLogger() {
	level := slog.LevelInfo
	switch logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

// loadConfig resolves the pipeline config: the --config file when given,
// defaults otherwise.
func loadConfig() (*config.PipelineConfig, error) {
	if configPath == "" {
		return config.Default(), nil
	}
	return config.Load(configPath, slog.Default())
}

// fatalf prints the error and exits nonzero. CLI commands use it for
// failures after flag parsing succeeded.
func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
