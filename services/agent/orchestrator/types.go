// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package orchestrator drives the agent loop: a finite state machine
// per turn with states INIT, REASON, EXECUTE, FINALIZE, END and the
// two safety terminals REFUSE_TRADE_ADVICE and BLOCK_INJECTION.
//
// Thread Safety:
//
//	All exported types in this package are designed for concurrent
//	use. Sessions are protected by internal synchronization and take
//	one writer at a time.
package orchestrator

import (
	"time"

	"github.com/AleutianAI/AleutianFolio/services/agent/tools"
	"github.com/AleutianAI/AleutianFolio/services/agent/verify"
)

// TurnState represents a state in the per-turn state machine.
//
// Valid state transitions are enforced by the state machine. Invalid
// transitions return ErrInvalidTransition.
type TurnState string

const (
	// StateInit sanitizes the query and runs the safety gate.
	StateInit TurnState = "INIT"

	// StateReason selects tool calls via the reasoner or the router.
	StateReason TurnState = "REASON"

	// StateExecute dispatches the selected tool calls.
	StateExecute TurnState = "EXECUTE"

	// StateFinalize synthesizes text and runs verification.
	StateFinalize TurnState = "FINALIZE"

	// StateEnd indicates the turn completed and was recorded.
	StateEnd TurnState = "END"

	// StateRefuseTradeAdvice is the terminal for trade-advice queries.
	StateRefuseTradeAdvice TurnState = "REFUSE_TRADE_ADVICE"

	// StateBlockInjection is the terminal for prompt-injection attempts.
	StateBlockInjection TurnState = "BLOCK_INJECTION"
)

// String returns the string representation of the state.
func (s TurnState) String() string {
	return string(s)
}

// IsTerminal returns true if no further transition is allowed.
func (s TurnState) IsTerminal() bool {
	switch s {
	case StateEnd, StateRefuseTradeAdvice, StateBlockInjection:
		return true
	default:
		return false
	}
}

// AllStates returns every turn state.
func AllStates() []TurnState {
	return []TurnState{
		StateInit,
		StateReason,
		StateExecute,
		StateFinalize,
		StateEnd,
		StateRefuseTradeAdvice,
		StateBlockInjection,
	}
}

// Mode records which control path produced a turn.
type Mode string

const (
	// ModeLLM means a configured reasoner selected the tools.
	ModeLLM Mode = "llm"

	// ModeRuleBased means the deterministic router selected the tool.
	ModeRuleBased Mode = "rule_based"

	// ModeFallback means the reasoner failed and the router answered
	// in its place.
	ModeFallback Mode = "fallback"
)

// ToolInvocation pairs one validated call with its result.
type ToolInvocation struct {
	// Seq is the 1-indexed execution position within the turn.
	// Sequence numbers are strictly increasing and gapless.
	Seq int `json:"seq"`

	// Call is the validated request, including provider call id and
	// arguments.
	Call tools.Call `json:"call"`

	// Result is the outcome, success payload or structured error.
	Result tools.Result `json:"result"`
}

// Turn is one completed query/response exchange. Turns are immutable
// once appended to a session.
type Turn struct {
	// ID is a unique turn identifier.
	ID string `json:"id"`

	// Sequence is the 1-indexed position within the session.
	Sequence int `json:"sequence"`

	// Query is the sanitized user query.
	Query string `json:"query"`

	// Response is the final verified response text.
	Response string `json:"response"`

	// ToolCalls lists the executed tools in request order. Compound
	// tools are expanded to the calls they stand for.
	ToolCalls []string `json:"tool_calls"`

	// Invocations records every call/result pair in execution order.
	Invocations []ToolInvocation `json:"invocations,omitempty"`

	// Confidence is the verification pipeline's score.
	Confidence float64 `json:"confidence"`

	// Mode is the control path that produced the turn.
	Mode Mode `json:"mode"`

	// Verification is the pipeline report.
	Verification verify.Report `json:"verification"`

	// CreatedAt is when the turn was finalized.
	CreatedAt time.Time `json:"created_at"`
}

// Output is what a completed turn surfaces to the transport layer.
type Output struct {
	SessionID    string        `json:"session_id"`
	Response     string        `json:"response"`
	ToolCalls    []string      `json:"tool_calls"`
	Confidence   float64       `json:"confidence"`
	Mode         Mode          `json:"mode"`
	Verification verify.Report `json:"verification"`
}
