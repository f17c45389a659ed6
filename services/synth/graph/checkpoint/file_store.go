// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
)

// FileStore persists checkpoints as a plain JSON file, the pipeline's
// interchange format. Every save rewrites the file wholesale via a
// temp-file rename so a crash mid-write never leaves a torn checkpoint.
//
// Thread Safety:
//
//	Single-writer by contract; the construction driver is the only process
//	that writes the checkpoint file.
type FileStore struct {
	path   string
	logger *slog.Logger
}

// NewFileStore creates a FileStore writing to the given path.
func NewFileStore(path string, logger *slog.Logger) (*FileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("checkpoint path must not be empty")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}
	return &FileStore{path: path, logger: logger}, nil
}

// Save writes the checkpoint state atomically.
func (s *FileStore) Save(ctx context.Context, _ string, state *State) error {
	if ctx == nil {
		return fmt.Errorf("ctx must not be nil")
	}
	if state == nil {
		return fmt.Errorf("state must not be nil")
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating checkpoint directory: %w", err)
		}
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling checkpoint: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing checkpoint temp file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("renaming checkpoint into place: %w", err)
	}

	s.logger.Info("checkpoint saved",
		slog.String("path", s.path),
		slog.Int("processed_pairs", len(state.ProcessedPairsByName)),
		slog.Int("edges", len(state.Edges)),
	)
	return nil
}

// Load reads the checkpoint. Returns ErrNotFound when the file does not
// exist; a file that exists but cannot be parsed is a hard error (the
// caller decides whether to start over).
func (s *FileStore) Load(ctx context.Context, _ string) (*State, error) {
	if ctx == nil {
		return nil, fmt.Errorf("ctx must not be nil")
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("reading checkpoint %s: %w", s.path, err)
	}
	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("parsing checkpoint %s: %w", s.path, err)
	}
	s.logger.Info("checkpoint loaded",
		slog.String("path", s.path),
		slog.Int("processed_pairs", len(state.ProcessedPairsByName)),
		slog.Int("edges", len(state.Edges)),
	)
	return &state, nil
}
