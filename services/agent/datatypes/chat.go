// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes provides request and response types for the agent
// service.
package datatypes

import (
	"github.com/go-playground/validator/v10"

	"github.com/AleutianAI/AleutianFolio/services/agent/orchestrator"
	"github.com/AleutianAI/AleutianFolio/services/agent/verify"
)

// MaxMessageBytes is the maximum size of a chat message. Byte length,
// not rune count, to bound memory on hostile payloads.
const MaxMessageBytes = 32 * 1024

// DefaultSessionID is used when a request omits session_id.
const DefaultSessionID = "default"

// Data source names accepted in chat requests.
const (
	SourceMock       = "mock"
	SourceGhostfolio = "ghostfolio_api"
)

// chatValidate is the shared validator instance for chat datatypes.
var chatValidate *validator.Validate

func init() {
	chatValidate = validator.New()
	_ = chatValidate.RegisterValidation("maxbytes", validateMaxBytes)
}

func validateMaxBytes(fl validator.FieldLevel) bool {
	return len(fl.Field().String()) <= MaxMessageBytes
}

// ChatRequest is the body of POST /chat.
type ChatRequest struct {
	// Message is the user's natural-language query.
	Message string `json:"message" validate:"required,min=1,maxbytes"`

	// SessionID keys the conversation; defaults to "default".
	SessionID string `json:"session_id" validate:"omitempty,max=128"`

	// DataSource selects the portfolio backend for this request.
	// Empty means the service default.
	DataSource string `json:"data_source" validate:"omitempty,oneof=mock ghostfolio_api"`
}

// Validate checks the request against its constraints.
func (r *ChatRequest) Validate() error {
	return chatValidate.Struct(r)
}

// Normalize fills defaulted fields in place.
func (r *ChatRequest) Normalize() {
	if r.SessionID == "" {
		r.SessionID = DefaultSessionID
	}
}

// ChatResponse is the body of a successful POST /chat.
type ChatResponse struct {
	SessionID    string        `json:"session_id"`
	Response     string        `json:"response"`
	ToolCalls    []string      `json:"tool_calls"`
	Confidence   float64       `json:"confidence"`
	Mode         string        `json:"mode"`
	Verification verify.Report `json:"verification"`
}

// FromOutput maps an orchestrator output onto the wire type.
func FromOutput(out orchestrator.Output) ChatResponse {
	return ChatResponse{
		SessionID:    out.SessionID,
		Response:     out.Response,
		ToolCalls:    out.ToolCalls,
		Confidence:   out.Confidence,
		Mode:         string(out.Mode),
		Verification: out.Verification,
	}
}
