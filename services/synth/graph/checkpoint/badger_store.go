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
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// BadgerDB key schema for construction checkpoints.
const (
	keyPrefixCkpt  = "synth:ckpt:"
	keySuffixData  = ":data"
	keySuffixMeta  = ":meta"
	keyLatestByJob = "synth:ckpt:latest:"
)

// Metadata describes a stored checkpoint for listing without decompressing
// the payload.
type Metadata struct {
	JobID          string `json:"job_id"`
	RunID          string `json:"run_id"`
	SchemaVersion  string `json:"schema_version"`
	CreatedAtMilli int64  `json:"created_at_milli"`
	ProcessedPairs int    `json:"processed_pairs"`
	EdgeCount      int    `json:"edge_count"`
	CompressedSize int64  `json:"compressed_size"`
}

// BadgerStore persists checkpoints as gzip-compressed JSON in BadgerDB.
//
// Description:
//
//	One checkpoint per job ID; every save replaces the previous payload
//	in a single transaction, so the stored state is always batch-atomic.
//
// Thread Safety:
//
//	Safe for concurrent use. BadgerDB handles its own concurrency control,
//	and the construction driver is the only writer by contract.
type BadgerStore struct {
	db     *badger.DB
	logger *slog.Logger
}

// NewBadgerStore creates a BadgerStore over an opened BadgerDB instance.
// The DB is owned by the caller and closed by the caller.
func NewBadgerStore(db *badger.DB, logger *slog.Logger) (*BadgerStore, error) {
	if db == nil {
		return nil, fmt.Errorf("badger db must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}
	return &BadgerStore{db: db, logger: logger}, nil
}

// Save persists the checkpoint state for jobID.
//
// Key Schema:
//
//	synth:ckpt:{jobID}:data   → gzip(JSON(State))
//	synth:ckpt:{jobID}:meta   → JSON(Metadata)
//	synth:ckpt:latest:{jobID} → runID
func (s *BadgerStore) Save(ctx context.Context, jobID string, state *State) error {
	if ctx == nil {
		return fmt.Errorf("ctx must not be nil")
	}
	if jobID == "" {
		return fmt.Errorf("job ID must not be empty")
	}
	if state == nil {
		return fmt.Errorf("state must not be nil")
	}

	jsonData, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshaling checkpoint: %w", err)
	}

	var compressed bytes.Buffer
	gw, err := gzip.NewWriterLevel(&compressed, gzip.BestCompression)
	if err != nil {
		return fmt.Errorf("creating gzip writer: %w", err)
	}
	if _, err := gw.Write(jsonData); err != nil {
		return fmt.Errorf("compressing checkpoint: %w", err)
	}
	if err := gw.Close(); err != nil {
		return fmt.Errorf("closing gzip writer: %w", err)
	}
	compressedData := compressed.Bytes()

	meta := &Metadata{
		JobID:          jobID,
		RunID:          state.RunID,
		SchemaVersion:  SchemaVersion,
		CreatedAtMilli: time.Now().UnixMilli(),
		ProcessedPairs: len(state.ProcessedPairsByName),
		EdgeCount:      len(state.Edges),
		CompressedSize: int64(len(compressedData)),
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshaling checkpoint metadata: %w", err)
	}

	dataKey := keyPrefixCkpt + jobID + keySuffixData
	metaKey := keyPrefixCkpt + jobID + keySuffixMeta
	latestKey := keyLatestByJob + jobID

	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(dataKey), compressedData); err != nil {
			return fmt.Errorf("storing data: %w", err)
		}
		if err := txn.Set([]byte(metaKey), metaJSON); err != nil {
			return fmt.Errorf("storing metadata: %w", err)
		}
		if err := txn.Set([]byte(latestKey), []byte(state.RunID)); err != nil {
			return fmt.Errorf("updating latest pointer: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("writing checkpoint to badger: %w", err)
	}

	s.logger.Info("checkpoint saved",
		slog.String("job_id", jobID),
		slog.String("run_id", state.RunID),
		slog.Int("processed_pairs", meta.ProcessedPairs),
		slog.Int("edges", meta.EdgeCount),
		slog.Int64("compressed_size", meta.CompressedSize),
	)
	return nil
}

// Load retrieves the checkpoint for jobID. Returns ErrNotFound when no
// checkpoint was ever saved for the job.
func (s *BadgerStore) Load(ctx context.Context, jobID string) (*State, error) {
	if ctx == nil {
		return nil, fmt.Errorf("ctx must not be nil")
	}
	if jobID == "" {
		return nil, fmt.Errorf("job ID must not be empty")
	}

	dataKey := keyPrefixCkpt + jobID + keySuffixData
	var compressedData []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(dataKey))
		if err != nil {
			return err
		}
		compressedData, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("reading checkpoint from badger: %w", err)
	}

	gr, err := gzip.NewReader(bytes.NewReader(compressedData))
	if err != nil {
		return nil, fmt.Errorf("opening gzip reader: %w", err)
	}
	defer gr.Close()
	jsonData, err := io.ReadAll(gr)
	if err != nil {
		return nil, fmt.Errorf("decompressing checkpoint: %w", err)
	}

	var state State
	if err := json.Unmarshal(jsonData, &state); err != nil {
		return nil, fmt.Errorf("unmarshaling checkpoint: %w", err)
	}

	s.logger.Info("checkpoint loaded",
		slog.String("job_id", jobID),
		slog.String("run_id", state.RunID),
		slog.Int("processed_pairs", len(state.ProcessedPairsByName)),
		slog.Int("edges", len(state.Edges)),
	)
	return &state, nil
}

// Delete removes the checkpoint for jobID. Deleting a nonexistent
// checkpoint is not an error.
func (s *BadgerStore) Delete(ctx context.Context, jobID string) error {
	if ctx == nil {
		return fmt.Errorf("ctx must not be nil")
	}
	if jobID == "" {
		return fmt.Errorf("job ID must not be empty")
	}
	return s.db.Update(func(txn *badger.Txn) error {
		for _, key := range []string{
			keyPrefixCkpt + jobID + keySuffixData,
			keyPrefixCkpt + jobID + keySuffixMeta,
			keyLatestByJob + jobID,
		} {
			if err := txn.Delete([]byte(key)); err != nil && err != badger.ErrKeyNotFound {
				return fmt.Errorf("deleting %s: %w", key, err)
			}
		}
		return nil
	})
}

// LoadMetadata returns the stored checkpoint metadata for jobID without
// decompressing the payload.
func (s *BadgerStore) LoadMetadata(ctx context.Context, jobID string) (*Metadata, error) {
	if ctx == nil {
		return nil, fmt.Errorf("ctx must not be nil")
	}
	metaKey := keyPrefixCkpt + jobID + keySuffixMeta
	var metaJSON []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(metaKey))
		if err != nil {
			return err
		}
		metaJSON, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("reading checkpoint metadata: %w", err)
	}
	var meta Metadata
	if err := json.Unmarshal(metaJSON, &meta); err != nil {
		return nil, fmt.Errorf("unmarshaling checkpoint metadata: %w", err)
	}
	return &meta, nil
}
