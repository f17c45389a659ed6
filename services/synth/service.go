// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package synth exposes the synthesis pipeline's artifacts (dependency
// graph, walk paths, and transformed trajectories) over HTTP for
// inspection and QA.
package synth

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/AleutianAI/toucan/services/synth/fsp"
	"github.com/AleutianAI/toucan/services/synth/graph"
	"github.com/AleutianAI/toucan/services/synth/walker"
)

// ServiceConfig configures the viewer service.
type ServiceConfig struct {
	// GraphPath, WalksPath, and TrajectoriesPath preload artifacts at
	// startup. Empty paths are skipped; artifacts can also be loaded later
	// through the load endpoints.
	GraphPath        string
	WalksPath        string
	TrajectoriesPath string

	Logger *slog.Logger
}

// Service holds the loaded pipeline artifacts behind a read lock so load
// operations can swap them while queries run.
//
// Thread Safety: Safe for concurrent use.
type Service struct {
	mu           sync.RWMutex
	graph        *graph.Graph
	graphFile    *graph.GraphFile
	walks        *walker.File
	trajectories *fsp.File

	logger *slog.Logger
}

// NewService builds a Service and preloads any configured artifacts.
// Preload failures are hard errors: a viewer pointed at a broken artifact
// should not come up half-blind.
func NewService(cfg ServiceConfig) (*Service, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{logger: logger}

	if cfg.GraphPath != "" {
		if err := s.LoadGraph(cfg.GraphPath); err != nil {
			return nil, fmt.Errorf("preloading graph: %w", err)
		}
	}
	if cfg.WalksPath != "" {
		if err := s.LoadWalks(cfg.WalksPath); err != nil {
			return nil, fmt.Errorf("preloading walks: %w", err)
		}
	}
	if cfg.TrajectoriesPath != "" {
		if err := s.LoadTrajectories(cfg.TrajectoriesPath); err != nil {
			return nil, fmt.Errorf("preloading trajectories: %w", err)
		}
	}
	return s, nil
}

// LoadGraph replaces the served graph with the one at path.
func (s *Service) LoadGraph(path string) error {
	g, file, err := graph.LoadFile(path, s.logger)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.graph = g
	s.graphFile = file
	s.mu.Unlock()
	return nil
}

// LoadWalks replaces the served walk document with the one at path.
func (s *Service) LoadWalks(path string) error {
	f, err := walker.LoadFile(path, s.logger)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.walks = f
	s.mu.Unlock()
	return nil
}

// LoadTrajectories replaces the served trajectory document.
func (s *Service) LoadTrajectories(path string) error {
	f, err := fsp.LoadFile(path, s.logger)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.trajectories = f
	s.mu.Unlock()
	return nil
}

// Graph returns the served graph, or nil when none is loaded.
func (s *Service) Graph() (*graph.Graph, *graph.GraphFile) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.graph, s.graphFile
}

// Walks returns the served walk document, or nil when none is loaded.
func (s *Service) Walks() *walker.File {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.walks
}

// Trajectories returns the served trajectory document, or nil.
func (s *Service) Trajectories() *fsp.File {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.trajectories
}

// Ready reports whether the service has a graph to serve.
func (s *Service) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.graph != nil
}
