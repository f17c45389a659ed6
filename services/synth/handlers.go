// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package synth

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/AleutianAI/toucan/services/synth/fsp"
	"github.com/AleutianAI/toucan/services/synth/graph"
)

// ErrorResponse is the uniform error body for all endpoints.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// LoadRequest asks the service to (re)load an artifact from disk.
type LoadRequest struct {
	Path string `json:"path" binding:"required"`
}

// NodeNeighbor is one outgoing edge in a node inspection response.
type NodeNeighbor struct {
	Index          int     `json:"index"`
	Name           string  `json:"name"`
	DependencyType string  `json:"dependency_type"`
	Confidence     float64 `json:"confidence"`
}

// NodeResponse is the graph node inspection body.
type NodeResponse struct {
	Index        int            `json:"index"`
	Name         string         `json:"name"`
	Description  string         `json:"description"`
	PrimaryLabel string         `json:"primary_label"`
	OutNeighbors []NodeNeighbor `json:"out_neighbors"`
}

// TurnClassification pairs a final-FSP turn with its detected operations.
type TurnClassification struct {
	TurnIdx    int                `json:"turn_idx"`
	Functions  []string           `json:"functions"`
	Operations fsp.TurnOperations `json:"operations"`
}

// Handlers holds the HTTP handlers for the viewer service.
type Handlers struct {
	service *Service
}

// NewHandlers builds Handlers over the service.
func NewHandlers(service *Service) *Handlers {
	return &Handlers{service: service}
}

func getOrCreateRequestID(c *gin.Context) string {
	if id := c.GetHeader("X-Request-ID"); id != "" {
		return id
	}
	return uuid.NewString()
}

// HandleHealth handles GET /v1/synth/health.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// HandleReady handles GET /v1/synth/ready. Ready means a graph is loaded.
func (h *Handlers) HandleReady(c *gin.Context) {
	if !h.service.Ready() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// HandleLoadGraph handles POST /v1/synth/graph/load.
func (h *Handlers) HandleLoadGraph(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleLoadGraph")

	var req LoadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "path is required",
			Code:  "MISSING_PARAMETER",
		})
		return
	}
	if err := h.service.LoadGraph(req.Path); err != nil {
		logger.Error("graph load failed", "path", req.Path, "error", err)
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Error: err.Error(),
			Code:  "LOAD_FAILED",
		})
		return
	}
	g, _ := h.service.Graph()
	logger.Info("graph loaded", slog.String("path", req.Path), slog.Int("nodes", g.NodeCount()))
	c.JSON(http.StatusOK, gin.H{"nodes": g.NodeCount(), "edges": g.EdgeCount()})
}

// HandleGraphStats handles GET /v1/synth/graph/stats.
func (h *Handlers) HandleGraphStats(c *gin.Context) {
	g, file, ok := h.requireGraph(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"version":             g.Version,
		"stats":               g.ComputeStats(),
		"token_usage_summary": file.TokenUsage,
	})
}

// HandleGraphCycles handles GET /v1/synth/graph/cycles.
//
// Query Parameters:
//
//	max_cycles: cap on reported cycles, default 100 (optional)
func (h *Handlers) HandleGraphCycles(c *gin.Context) {
	g, _, ok := h.requireGraph(c)
	if !ok {
		return
	}
	maxCycles := 100
	if raw := c.Query("max_cycles"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			maxCycles = parsed
		}
	}
	c.JSON(http.StatusOK, g.DetectCycles(maxCycles))
}

// HandleGraphNode handles GET /v1/synth/graph/nodes/:idx.
func (h *Handlers) HandleGraphNode(c *gin.Context) {
	g, _, ok := h.requireGraph(c)
	if !ok {
		return
	}
	idx, err := strconv.Atoi(c.Param("idx"))
	if err != nil || idx < 0 || idx >= g.NodeCount() {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: "node index out of range",
			Code:  "NODE_NOT_FOUND",
		})
		return
	}

	tool := g.Catalog().Tool(idx)
	resp := NodeResponse{
		Index:        idx,
		Name:         tool.Name,
		Description:  tool.Description,
		PrimaryLabel: tool.Classification.PrimaryLabel,
		OutNeighbors: make([]NodeNeighbor, 0),
	}
	for _, target := range g.OutNeighbors(idx) {
		edge, found := g.EdgeBetween(idx, target)
		if !found {
			continue
		}
		resp.OutNeighbors = append(resp.OutNeighbors, NodeNeighbor{
			Index:          target,
			Name:           g.Catalog().NameOf(target),
			DependencyType: string(edge.DependencyType),
			Confidence:     edge.Confidence,
		})
	}
	c.JSON(http.StatusOK, resp)
}

// HandleGraphEdge handles GET /v1/synth/graph/edge.
//
// Query Parameters:
//
//	source: source node index (required)
//	target: target node index (required)
func (h *Handlers) HandleGraphEdge(c *gin.Context) {
	g, _, ok := h.requireGraph(c)
	if !ok {
		return
	}
	source, err1 := strconv.Atoi(c.Query("source"))
	target, err2 := strconv.Atoi(c.Query("target"))
	if err1 != nil || err2 != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "source and target parameters are required",
			Code:  "MISSING_PARAMETER",
		})
		return
	}
	edge, found := g.EdgeBetween(source, target)
	if !found {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: "no such edge",
			Code:  "EDGE_NOT_FOUND",
		})
		return
	}
	c.JSON(http.StatusOK, edge)
}

// HandleLoadWalks handles POST /v1/synth/walks/load.
func (h *Handlers) HandleLoadWalks(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleLoadWalks")

	var req LoadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "path is required",
			Code:  "MISSING_PARAMETER",
		})
		return
	}
	if err := h.service.LoadWalks(req.Path); err != nil {
		logger.Error("walk load failed", "path", req.Path, "error", err)
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Error: err.Error(),
			Code:  "LOAD_FAILED",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"nodes": len(h.service.Walks().NodeResults)})
}

// HandleWalkStats handles GET /v1/synth/walks/stats.
func (h *Handlers) HandleWalkStats(c *gin.Context) {
	walks := h.service.Walks()
	if walks == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: "no walk document loaded",
			Code:  "WALKS_NOT_LOADED",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"meta":       walks.Meta,
		"statistics": walks.Statistics,
	})
}

// HandleWalkNode handles GET /v1/synth/walks/nodes/:idx.
func (h *Handlers) HandleWalkNode(c *gin.Context) {
	walks := h.service.Walks()
	if walks == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: "no walk document loaded",
			Code:  "WALKS_NOT_LOADED",
		})
		return
	}
	nr, ok := walks.NodeResults[c.Param("idx")]
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: "no walks for node",
			Code:  "NODE_NOT_FOUND",
		})
		return
	}
	c.JSON(http.StatusOK, nr)
}

// HandleLoadTrajectories handles POST /v1/synth/trajectories/load.
func (h *Handlers) HandleLoadTrajectories(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleLoadTrajectories")

	var req LoadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "path is required",
			Code:  "MISSING_PARAMETER",
		})
		return
	}
	if err := h.service.LoadTrajectories(req.Path); err != nil {
		logger.Error("trajectory load failed", "path", req.Path, "error", err)
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Error: err.Error(),
			Code:  "LOAD_FAILED",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"paths": h.service.Trajectories().Statistics.TotalPaths})
}

// HandleTrajectoryStats handles GET /v1/synth/trajectories/stats.
func (h *Handlers) HandleTrajectoryStats(c *gin.Context) {
	trajectories := h.service.Trajectories()
	if trajectories == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: "no trajectory document loaded",
			Code:  "TRAJECTORIES_NOT_LOADED",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"meta":       trajectories.Meta,
		"statistics": trajectories.Statistics,
	})
}

// HandleTrajectoryNode handles GET /v1/synth/trajectories/nodes/:idx.
func (h *Handlers) HandleTrajectoryNode(c *gin.Context) {
	trajectories := h.service.Trajectories()
	if trajectories == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: "no trajectory document loaded",
			Code:  "TRAJECTORIES_NOT_LOADED",
		})
		return
	}
	nr, ok := trajectories.NodeResults[c.Param("idx")]
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: "no trajectories for node",
			Code:  "NODE_NOT_FOUND",
		})
		return
	}
	c.JSON(http.StatusOK, nr)
}

// HandleClassifyTurns handles GET /v1/synth/trajectories/nodes/:idx/paths/:path/turns.
//
// Description:
//
//	Runs the name-based operation classifier over every turn of one final
//	FSP and returns the per-turn styles. This is the same classification
//	downstream query synthesis uses to pick prompt templates, exposed for
//	QA spot checks.
func (h *Handlers) HandleClassifyTurns(c *gin.Context) {
	trajectories := h.service.Trajectories()
	if trajectories == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: "no trajectory document loaded",
			Code:  "TRAJECTORIES_NOT_LOADED",
		})
		return
	}
	nr, ok := trajectories.NodeResults[c.Param("idx")]
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: "no trajectories for node",
			Code:  "NODE_NOT_FOUND",
		})
		return
	}
	pathIdx, err := strconv.Atoi(c.Param("path"))
	if err != nil || pathIdx < 0 || pathIdx >= len(nr.Paths) {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: "path index out of range",
			Code:  "PATH_NOT_FOUND",
		})
		return
	}

	pr := nr.Paths[pathIdx]
	out := make([]TurnClassification, 0, len(pr.FSPFinalNames))
	for turnIdx, names := range pr.FSPFinalNames {
		out = append(out, TurnClassification{
			TurnIdx:    turnIdx,
			Functions:  names,
			Operations: fsp.DetectTurnOperations(names, pr.MergeLogs, pr.InsertLogs),
		})
	}
	c.JSON(http.StatusOK, gin.H{"turns": out})
}

// requireGraph resolves the loaded graph or writes a 404.
func (h *Handlers) requireGraph(c *gin.Context) (*graph.Graph, *graph.GraphFile, bool) {
	g, file := h.service.Graph()
	if g == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: "no graph loaded",
			Code:  "GRAPH_NOT_LOADED",
		})
		return nil, nil, false
	}
	return g, file, true
}
