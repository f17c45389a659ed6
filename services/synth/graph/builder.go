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
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/toucan/services/synth/catalog"
	"github.com/AleutianAI/toucan/services/synth/graph/checkpoint"
	"github.com/AleutianAI/toucan/services/synth/oracle"
)

// ErrBatchFailed signals that every oracle call in one batch failed,
// which the construction driver treats as a systemic outage and a fatal
// stop condition.
var ErrBatchFailed = errors.New("all oracle calls in batch failed")

// Store is the checkpoint persistence boundary the builder writes through.
// Both checkpoint.BadgerStore and checkpoint.FileStore satisfy it.
type Store interface {
	Save(ctx context.Context, jobID string, state *checkpoint.State) error
	Load(ctx context.Context, jobID string) (*checkpoint.State, error)
}

// BuilderOptions configures graph construction.
type BuilderOptions struct {
	// BatchSize is the number of concurrent oracle calls per batch. A
	// batch is a synchronization barrier; the checkpoint is written only
	// between batches.
	BatchSize int

	// JobID keys the checkpoint in the store.
	JobID string

	// Resume loads the checkpoint and skips already-judged pairs, keyed by
	// tool name so a reordered catalog resumes correctly.
	Resume bool

	// MaxPairs truncates the task list for smoke runs. Zero means all.
	MaxPairs int
}

// BuilderOption mutates BuilderOptions.
type BuilderOption func(*BuilderOptions)

// WithBatchSize sets the per-batch oracle call count.
func WithBatchSize(n int) BuilderOption { return func(o *BuilderOptions) { o.BatchSize = n } }

// WithJobID sets the checkpoint job key.
func WithJobID(id string) BuilderOption { return func(o *BuilderOptions) { o.JobID = id } }

// WithResume enables checkpoint resume.
func WithResume(resume bool) BuilderOption { return func(o *BuilderOptions) { o.Resume = resume } }

// WithMaxPairs caps the number of pairs judged this run.
func WithMaxPairs(n int) BuilderOption { return func(o *BuilderOptions) { o.MaxPairs = n } }

// BuildResult is the outcome of one construction run.
type BuildResult struct {
	Graph       *Graph
	EdgeDetails []checkpoint.EdgeDetail
	Usage       checkpoint.UsageSummary

	// ProcessedPairs counts every successfully judged pair, including those
	// restored from the checkpoint. SkippedPairs counts pairs this run did
	// not re-judge because the checkpoint already covered them.
	ProcessedPairs int
	SkippedPairs   int
	FailedPairs    int
}

// Builder drives batched, resumable graph construction against an
// EdgeOracle.
//
// Thread Safety:
//
//	A Builder instance runs one Build at a time. Within a batch, oracle
//	calls fan out concurrently; all merging into builder state happens on
//	the calling goroutine after the batch barrier.
type Builder struct {
	cat    *catalog.Catalog
	oracle oracle.EdgeOracle
	store  Store
	opts   BuilderOptions
	logger *slog.Logger
}

// NewBuilder constructs a Builder.
//
// Inputs:
//
//	cat - The node catalog. Must be non-nil.
//	edgeOracle - The edge judge. Must be non-nil.
//	store - Checkpoint store; nil disables checkpointing (and resume).
//	logger - Structured logger; defaults to slog.Default when nil.
func NewBuilder(cat *catalog.Catalog, edgeOracle oracle.EdgeOracle, store Store, logger *slog.Logger, opts ...BuilderOption) (*Builder, error) {
	if cat == nil {
		return nil, fmt.Errorf("catalog is nil")
	}
	if edgeOracle == nil {
		return nil, fmt.Errorf("edge oracle is nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	o := BuilderOptions{
		BatchSize: 10,
		JobID:     "default",
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.BatchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", o.BatchSize)
	}
	if o.Resume && store == nil {
		return nil, fmt.Errorf("resume requested without a checkpoint store")
	}
	return &Builder{cat: cat, oracle: edgeOracle, store: store, opts: o, logger: logger}, nil
}

type pairTask struct {
	source, target int
}

// Build judges every (node, candidate) pair and returns the materialized
// graph.
//
// Description:
//
//	Pairs are enumerated in node order, then candidate order, so the batch
//	layout is deterministic given the same candidate sets. Each batch fans
//	out concurrently; results merge at the batch barrier and the checkpoint
//	is rewritten wholesale, so persisted state never reflects a partial
//	batch. A pair whose oracle call fails is logged and left out of the
//	processed set; the next resumed run retries it. A batch in which every
//	call fails aborts the run with ErrBatchFailed.
func (b *Builder) Build(ctx context.Context, candidateSets map[int][]int) (*BuildResult, error) {
	if ctx == nil {
		return nil, fmt.Errorf("ctx must not be nil")
	}

	ctx, span := startBuildSpan(ctx, b.cat.Len())
	defer span.End()
	start := time.Now()

	tasks := b.enumeratePairs(candidateSets)
	totalPairs := len(tasks)

	runID := uuid.NewString()
	result := &BuildResult{}
	var edges []checkpoint.EdgeRecord
	processedNames := make(map[[2]string]struct{})
	prevBatches := 0

	if b.opts.Resume {
		restored, err := b.restore(ctx, tasks)
		if err != nil {
			return nil, err
		}
		if restored != nil {
			edges = restored.edges
			result.EdgeDetails = restored.details
			result.Usage = restored.usage
			processedNames = restored.processed
			prevBatches = restored.prevBatches
		}
	}

	remaining := make([]pairTask, 0, len(tasks))
	for _, t := range tasks {
		key := [2]string{b.cat.NameOf(t.source), b.cat.NameOf(t.target)}
		if _, done := processedNames[key]; done {
			result.SkippedPairs++
			continue
		}
		remaining = append(remaining, t)
	}
	if b.opts.MaxPairs > 0 && len(remaining) > b.opts.MaxPairs {
		remaining = remaining[:b.opts.MaxPairs]
	}

	b.logger.Info("graph construction starting",
		"run_id", runID,
		"nodes", b.cat.Len(),
		"total_pairs", totalPairs,
		"skipped_pairs", result.SkippedPairs,
		"remaining_pairs", len(remaining),
		"batch_size", b.opts.BatchSize)

	totalBatches := (totalPairs + b.opts.BatchSize - 1) / b.opts.BatchSize
	batchNum := 0
	for offset := 0; offset < len(remaining); offset += b.opts.BatchSize {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("construction canceled: %w", err)
		}
		batchNum++
		batch := remaining[offset:min(offset+b.opts.BatchSize, len(remaining))]

		judgments := make([]*oracle.Judgment, len(batch))
		callErrs := make([]error, len(batch))
		eg, egCtx := errgroup.WithContext(ctx)
		for slot, task := range batch {
			eg.Go(func() error {
				j, err := b.oracle.JudgeEdge(egCtx, b.cat.Tool(task.source), b.cat.Tool(task.target))
				judgments[slot] = j
				callErrs[slot] = err
				return nil
			})
		}
		// Worker closures never return errors; per-pair failures are
		// retryable and handled below.
		_ = eg.Wait()

		successes := 0
		for slot, task := range batch {
			if callErrs[slot] != nil {
				result.FailedPairs++
				RecordOracleCall("failure")
				b.logger.Warn("edge judgment failed, pair will be retried on resume",
					"source", b.cat.NameOf(task.source),
					"target", b.cat.NameOf(task.target),
					"error", callErrs[slot])
				continue
			}
			j := judgments[slot]
			successes++
			RecordOracleCall("success")
			processedNames[[2]string{b.cat.NameOf(task.source), b.cat.NameOf(task.target)}] = struct{}{}
			result.Usage.Add(j.Usage)

			if !j.HasEdge {
				continue
			}
			RecordEdge(string(j.DependencyType))
			edges = append(edges, checkpoint.EdgeRecord{
				Source:         task.source,
				Target:         task.target,
				Confidence:     j.Confidence,
				DependencyType: string(j.DependencyType),
				ParamMapping:   j.ParamMapping,
			})
			result.EdgeDetails = append(result.EdgeDetails, checkpoint.EdgeDetail{
				Source:         task.source,
				Target:         task.target,
				SourceName:     b.cat.NameOf(task.source),
				TargetName:     b.cat.NameOf(task.target),
				Confidence:     j.Confidence,
				DependencyType: string(j.DependencyType),
				ParamMapping:   j.ParamMapping,
				Reasoning:      j.Reasoning,
				TokenUsage:     j.Usage,
			})
		}

		if successes == 0 {
			RecordBatch("failed")
			return nil, b.batchFailure(batchNum, batch, callErrs)
		}
		RecordBatch("ok")

		if b.store != nil {
			state := b.snapshotState(runID, prevBatches+batchNum, totalBatches, totalPairs,
				processedNames, edges, result)
			if err := b.store.Save(ctx, b.opts.JobID, state); err != nil {
				return nil, fmt.Errorf("saving checkpoint after batch %d: %w", batchNum, err)
			}
			RecordCheckpointSave()
		}

		b.logger.Info("batch complete",
			"batch", batchNum,
			"successes", successes,
			"failures", len(batch)-successes,
			"edges_so_far", len(edges))
	}

	g, err := New(b.cat, b.logger)
	if err != nil {
		return nil, err
	}
	for _, e := range edges {
		err := g.AddEdge(Edge{
			Source:         e.Source,
			Target:         e.Target,
			DependencyType: oracle.ParseDependencyType(e.DependencyType),
			Confidence:     e.Confidence,
			ParamMapping:   e.ParamMapping,
		})
		if err != nil {
			b.logger.Warn("dropping unusable edge record", "error", err)
		}
	}
	result.Graph = g
	result.ProcessedPairs = len(processedNames)

	elapsed := time.Since(start)
	ObserveBuildDuration(elapsed)
	recordBuildMetrics(span, g.NodeCount(), g.EdgeCount(), result.ProcessedPairs, result.FailedPairs)
	b.logger.Info("graph construction finished",
		"run_id", runID,
		"edges", g.EdgeCount(),
		"processed_pairs", result.ProcessedPairs,
		"failed_pairs", result.FailedPairs,
		"elapsed", elapsed)
	return result, nil
}

// enumeratePairs flattens candidate sets into the fixed task order: node
// indices ascending, each node's candidates in their stored order.
func (b *Builder) enumeratePairs(candidateSets map[int][]int) []pairTask {
	nodeIDs := make([]int, 0, len(candidateSets))
	for i := range candidateSets {
		nodeIDs = append(nodeIDs, i)
	}
	sort.Ints(nodeIDs)

	var tasks []pairTask
	for _, i := range nodeIDs {
		for _, j := range candidateSets[i] {
			tasks = append(tasks, pairTask{source: i, target: j})
		}
	}
	return tasks
}

type restoredState struct {
	edges       []checkpoint.EdgeRecord
	details     []checkpoint.EdgeDetail
	usage       checkpoint.UsageSummary
	processed   map[[2]string]struct{}
	prevBatches int
}

// restore loads the checkpoint and reconciles it against the current
// catalog. Names are authoritative: index pairs in the checkpoint are
// ignored, and every edge is re-derived from its detail record's names.
// Pairs naming tools absent from the catalog, or absent from the current
// task list, are dropped so stale state does not accumulate.
func (b *Builder) restore(ctx context.Context, tasks []pairTask) (*restoredState, error) {
	state, err := b.store.Load(ctx, b.opts.JobID)
	if errors.Is(err, checkpoint.ErrNotFound) {
		b.logger.Info("no checkpoint found, starting fresh", "job_id", b.opts.JobID)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading checkpoint: %w", err)
	}

	currentPairs := make(map[[2]string]struct{}, len(tasks))
	for _, t := range tasks {
		currentPairs[[2]string{b.cat.NameOf(t.source), b.cat.NameOf(t.target)}] = struct{}{}
	}

	r := &restoredState{
		usage:       state.TokenUsage,
		processed:   make(map[[2]string]struct{}),
		prevBatches: state.Progress.ProcessedBatches,
	}
	stalePairs := 0
	for _, pair := range state.ProcessedPairsByName {
		if _, ok := currentPairs[pair]; !ok {
			stalePairs++
			continue
		}
		r.processed[pair] = struct{}{}
	}

	droppedEdges := 0
	for _, d := range state.EdgeDetails {
		src, okS := b.cat.IndexOf(d.SourceName)
		tgt, okT := b.cat.IndexOf(d.TargetName)
		if !okS || !okT {
			droppedEdges++
			continue
		}
		d.Source, d.Target = src, tgt
		r.details = append(r.details, d)
		r.edges = append(r.edges, checkpoint.EdgeRecord{
			Source:         src,
			Target:         tgt,
			Confidence:     d.Confidence,
			DependencyType: d.DependencyType,
			ParamMapping:   d.ParamMapping,
		})
	}

	b.logger.Info("checkpoint restored",
		"job_id", b.opts.JobID,
		"processed_pairs", len(r.processed),
		"stale_pairs", stalePairs,
		"edges", len(r.edges),
		"dropped_edges", droppedEdges)
	return r, nil
}

func (b *Builder) snapshotState(runID string, processedBatches, totalBatches, totalPairs int,
	processed map[[2]string]struct{}, edges []checkpoint.EdgeRecord, result *BuildResult) *checkpoint.State {

	byName := make([][2]string, 0, len(processed))
	for pair := range processed {
		byName = append(byName, pair)
	}
	sort.Slice(byName, func(i, j int) bool {
		if byName[i][0] != byName[j][0] {
			return byName[i][0] < byName[j][0]
		}
		return byName[i][1] < byName[j][1]
	})

	byIndex := make([][2]int, 0, len(byName))
	for _, pair := range byName {
		src, okS := b.cat.IndexOf(pair[0])
		tgt, okT := b.cat.IndexOf(pair[1])
		if okS && okT {
			byIndex = append(byIndex, [2]int{src, tgt})
		}
	}

	return &checkpoint.State{
		Version: checkpoint.SchemaVersion,
		RunID:   runID,
		Progress: checkpoint.Progress{
			ProcessedBatches: processedBatches,
			TotalBatches:     totalBatches,
			ProcessedPairs:   len(processed),
			TotalPairs:       totalPairs,
		},
		ProcessedPairs:       byIndex,
		ProcessedPairsByName: byName,
		Edges:                edges,
		EdgeDetails:          result.EdgeDetails,
		TokenUsage:           result.Usage,
	}
}

// batchFailure builds the fatal total-batch-failure error, enumerating the
// batch's pairs so the operator can see exactly what was in flight.
func (b *Builder) batchFailure(batchNum int, batch []pairTask, callErrs []error) error {
	var sb strings.Builder
	fmt.Fprintf(&sb, "batch %d: every call failed (%d pairs):", batchNum, len(batch))
	for slot, task := range batch {
		fmt.Fprintf(&sb, "\n  [%d] %s -> %s: %v",
			slot, b.cat.NameOf(task.source), b.cat.NameOf(task.target), callErrs[slot])
	}
	b.logger.Error("construction halted on total batch failure",
		"batch", batchNum, "pairs", len(batch))
	return fmt.Errorf("%w: %s", ErrBatchFailed, sb.String())
}
