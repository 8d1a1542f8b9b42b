// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package llm provides LLM-backed tool selection for the agent.
//
// A Reasoner reads the conversation and the registered tool specs and
// decides which tools to call, or answers directly when no tool fits.
// It never renders portfolio numbers itself; synthesis of tool payloads
// stays deterministic in the orchestrator.
package llm

import (
	"context"
	"errors"

	"github.com/AleutianAI/AleutianFolio/services/agent/tools"
)

// Message roles in a reasoning transcript.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ErrNotConfigured is returned by the factory when no provider API key
// is available. The agent then runs rule-based only.
var ErrNotConfigured = errors.New("no llm provider configured")

// ErrEmptyCompletion is returned when a provider answers with neither
// tool calls nor text.
var ErrEmptyCompletion = errors.New("llm returned neither tool calls nor text")

// Message is one turn of reasoning context.
//
// Plain user/assistant messages carry Content only. During a multi-step
// turn the orchestrator appends an assistant message echoing the
// ToolCalls the model requested, followed by one RoleTool message per
// executed call carrying the result payload, so the next reasoning step
// sees what each tool returned.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content,omitempty"`

	// ToolCalls echoes the calls an assistant message requested.
	ToolCalls []tools.Call `json:"tool_calls,omitempty"`

	// CallID and Tool identify which requested call a RoleTool message
	// answers.
	CallID string `json:"call_id,omitempty"`
	Tool   string `json:"tool,omitempty"`
}

// Decision is the outcome of one reasoning step: either tool calls to
// execute, or final text when the model answered directly. Exactly one
// of the two fields is populated.
type Decision struct {
	ToolCalls []tools.Call
	FinalText string
}

// Reasoner selects tool calls for a user query.
type Reasoner interface {
	// Name identifies the backing provider, for logs and the turn
	// record.
	Name() string

	// Reason runs one reasoning step. Callers iterate: execute the
	// returned tool calls, append their results to the transcript, and
	// call Reason again until it answers with FinalText.
	//
	// Inputs:
	//
	//	ctx        - Cancels the provider request.
	//	system     - System prompt framing the agent's role.
	//	transcript - Prior turns, the current user query, and any tool
	//	             rounds already executed this turn, oldest first.
	//	specs      - Registered tool specs offered to the model.
	//
	// Outputs:
	//
	//	Decision - Tool calls or direct text.
	//	error    - Provider or decoding failure. Callers fall back to
	//	           rule-based routing.
	Reason(ctx context.Context, system string, transcript []Message, specs []tools.ToolSpec) (Decision, error)
}
