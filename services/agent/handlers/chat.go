// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package handlers contains the agent service's HTTP handlers.
package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	otelcodes "go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/AleutianFolio/services/agent/datatypes"
	"github.com/AleutianAI/AleutianFolio/services/agent/orchestrator"
)

var chatTracer = otel.Tracer("aleutianfolio.agent.handlers")

// ChatDeps wires the chat handler to its engines.
//
// One engine exists per configured data source; DefaultSource names
// the one used when a request does not pick.
type ChatDeps struct {
	Engines       map[string]*orchestrator.Engine
	DefaultSource string
	Limiter       *SessionLimiter
}

// HealthCheck responds to GET /health.
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// HandleChat responds to POST /chat.
//
// Description:
//
//	Validates the request, applies the per-session rate limit, runs
//	one agent turn, and returns the verified response.
func HandleChat(deps ChatDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := chatTracer.Start(c.Request.Context(), "HandleChat")
		defer span.End()

		var req datatypes.ChatRequest
		if err := c.BindJSON(&req); err != nil {
			span.RecordError(err)
			span.SetStatus(otelcodes.Error, err.Error())
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		if err := req.Validate(); err != nil {
			slog.Debug("Chat request rejected", "error", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		req.Normalize()

		if deps.Limiter != nil && !deps.Limiter.Allow(req.SessionID) {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded for session"})
			return
		}

		source := req.DataSource
		if source == "" {
			source = deps.DefaultSource
		}
		engine, ok := deps.Engines[source]
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "data source not configured: " + source})
			return
		}

		out, err := engine.Chat(ctx, req.SessionID, req.Message)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(otelcodes.Error, err.Error())
			switch {
			case errors.Is(err, orchestrator.ErrSessionBusy):
				c.JSON(http.StatusConflict, gin.H{"error": "session has a turn in flight"})
			case ctx.Err() != nil:
				c.JSON(http.StatusRequestTimeout, gin.H{"error": "request cancelled"})
			default:
				slog.Error("Chat turn failed", "session_id", req.SessionID, "error", err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			}
			return
		}

		c.JSON(http.StatusOK, datatypes.FromOutput(out))
	}
}
