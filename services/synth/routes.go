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
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers all synthesis viewer routes with the router.
//
// Description:
//
//	Registers all /v1/synth/* endpoints with the given Gin router group.
//	The router group should already have any required middleware applied.
//
// Inputs:
//
//	rg - Gin router group (typically /v1)
//	handlers - The handlers instance
//
// Graph Endpoints:
//
//	POST /v1/synth/graph/load - Load a graph file
//	GET  /v1/synth/graph/stats - Graph statistics and token usage
//	GET  /v1/synth/graph/cycles - Detect cycles
//	GET  /v1/synth/graph/nodes/:idx - Inspect a node and its edges
//	GET  /v1/synth/graph/edge - Look up one edge by endpoints
//
// Walk Endpoints:
//
//	POST /v1/synth/walks/load - Load a walk document
//	GET  /v1/synth/walks/stats - Walk statistics
//	GET  /v1/synth/walks/nodes/:idx - One node's walk results
//
// Trajectory Endpoints:
//
//	POST /v1/synth/trajectories/load - Load a trajectory document
//	GET  /v1/synth/trajectories/stats - Transformation statistics
//	GET  /v1/synth/trajectories/nodes/:idx - One node's rewritten paths
//	GET  /v1/synth/trajectories/nodes/:idx/paths/:path/turns - Classify turns
//
// Health Endpoints:
//
//	GET  /v1/synth/health - Health check
//	GET  /v1/synth/ready - Readiness check (graph loaded)
//
// Example:
//
//	service, _ := synth.NewService(synth.ServiceConfig{GraphPath: "graph.json"})
//	handlers := synth.NewHandlers(service)
//
//	v1 := router.Group("/v1")
//	synth.RegisterRoutes(v1, handlers)
func RegisterRoutes(rg *gin.RouterGroup, handlers *Handlers) {
	synth := rg.Group("/synth")
	{
		// Health checks
		synth.GET("/health", handlers.HandleHealth)
		synth.GET("/ready", handlers.HandleReady)

		// Graph inspection
		graph := synth.Group("/graph")
		{
			graph.POST("/load", handlers.HandleLoadGraph)
			graph.GET("/stats", handlers.HandleGraphStats)
			graph.GET("/cycles", handlers.HandleGraphCycles)
			graph.GET("/nodes/:idx", handlers.HandleGraphNode)
			graph.GET("/edge", handlers.HandleGraphEdge)
		}

		// Walk inspection
		walks := synth.Group("/walks")
		{
			walks.POST("/load", handlers.HandleLoadWalks)
			walks.GET("/stats", handlers.HandleWalkStats)
			walks.GET("/nodes/:idx", handlers.HandleWalkNode)
		}

		// Trajectory inspection
		trajectories := synth.Group("/trajectories")
		{
			trajectories.POST("/load", handlers.HandleLoadTrajectories)
			trajectories.GET("/stats", handlers.HandleTrajectoryStats)
			trajectories.GET("/nodes/:idx", handlers.HandleTrajectoryNode)
			trajectories.GET("/nodes/:idx/paths/:path/turns", handlers.HandleClassifyTurns)
		}
	}
}
