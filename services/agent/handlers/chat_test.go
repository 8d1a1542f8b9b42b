// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianFolio/services/agent/datatypes"
	"github.com/AleutianAI/AleutianFolio/services/agent/orchestrator"
	"github.com/AleutianAI/AleutianFolio/services/agent/router"
	"github.com/AleutianAI/AleutianFolio/services/agent/tools"
	"github.com/AleutianAI/AleutianFolio/services/provider"
)

func newTestRouter(t *testing.T, deps ChatDeps) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.GET("/health", HealthCheck)
	r.POST("/chat", HandleChat(deps))
	return r
}

func mockEngine(t *testing.T) *orchestrator.Engine {
	t.Helper()

	registry := tools.NewRegistry()
	registry.MustRegister(tools.PortfolioSpecs(tools.Deps{Provider: provider.NewMockProvider()})...)
	rtr, err := router.New()
	require.NoError(t, err)
	return orchestrator.NewEngine(registry, rtr)
}

func postChat(t *testing.T, r *gin.Engine, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHealthCheck(t *testing.T) {
	r := newTestRouter(t, ChatDeps{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestHandleChat_OK(t *testing.T) {
	r := newTestRouter(t, ChatDeps{
		Engines:       map[string]*orchestrator.Engine{datatypes.SourceMock: mockEngine(t)},
		DefaultSource: datatypes.SourceMock,
	})

	w := postChat(t, r, `{"message": "show me my portfolio"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var resp datatypes.ChatResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "default", resp.SessionID)
	assert.Equal(t, "rule_based", resp.Mode)
	assert.Equal(t, []string{"get_portfolio_summary"}, resp.ToolCalls)
	assert.Contains(t, resp.Response, "USD 50,000.00")
	assert.InDelta(t, 0.90, resp.Confidence, 0.001)
}

func TestHandleChat_BadRequests(t *testing.T) {
	r := newTestRouter(t, ChatDeps{
		Engines:       map[string]*orchestrator.Engine{datatypes.SourceMock: mockEngine(t)},
		DefaultSource: datatypes.SourceMock,
	})

	tests := []struct {
		name string
		body string
	}{
		{"not json", "not json"},
		{"empty message", `{"message": ""}`},
		{"unknown source", `{"message": "hi", "data_source": "yahoo"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := postChat(t, r, tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestHandleChat_UnconfiguredSource(t *testing.T) {
	r := newTestRouter(t, ChatDeps{
		Engines:       map[string]*orchestrator.Engine{datatypes.SourceMock: mockEngine(t)},
		DefaultSource: datatypes.SourceMock,
	})

	w := postChat(t, r, `{"message": "hi", "data_source": "ghostfolio_api"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "not configured")
}

func TestHandleChat_RateLimited(t *testing.T) {
	r := newTestRouter(t, ChatDeps{
		Engines:       map[string]*orchestrator.Engine{datatypes.SourceMock: mockEngine(t)},
		DefaultSource: datatypes.SourceMock,
		Limiter:       NewSessionLimiter(1, 1),
	})

	first := postChat(t, r, `{"message": "show me my portfolio", "session_id": "limited"}`)
	require.Equal(t, http.StatusOK, first.Code)

	second := postChat(t, r, `{"message": "show me my portfolio", "session_id": "limited"}`)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)

	// Other sessions keep their own bucket.
	other := postChat(t, r, `{"message": "show me my portfolio", "session_id": "fresh"}`)
	assert.Equal(t, http.StatusOK, other.Code)
}
