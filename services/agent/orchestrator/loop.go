// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/AleutianFolio/services/agent/router"
	"github.com/AleutianAI/AleutianFolio/services/agent/safety"
	"github.com/AleutianAI/AleutianFolio/services/agent/synthesis"
	"github.com/AleutianAI/AleutianFolio/services/agent/tools"
	"github.com/AleutianAI/AleutianFolio/services/agent/verify"
	"github.com/AleutianAI/AleutianFolio/services/llm"
)

var tracer = otel.Tracer("aleutianfolio.agent.orchestrator")

// MaxToolCallsPerTurn caps tool executions in a single turn. Hitting
// the cap forces finalization with the response marked partial.
const MaxToolCallsPerTurn = 5

// RefusalConfidence is the score attached to safety-gate terminals.
// The gate is deterministic, so its outcome scores above any
// tool-backed answer.
const RefusalConfidence = 0.95

// clarifyResponse is returned when sanitization leaves nothing to
// route.
const clarifyResponse = "I didn't catch a question there. Could you rephrase " +
	"what you'd like to know about your portfolio?"

// degradedResponse is the last resort when both control paths fail.
const degradedResponse = "I'm having trouble answering that right now. " +
	"Please try again or rephrase your question."

// systemPrompt frames the reasoner. It selects tools only; payload
// rendering stays deterministic in this package.
const systemPrompt = "You are a portfolio assistant. Answer questions about the " +
	"user's existing portfolio by calling the provided tools. Never give buy, " +
	"sell, or investment advice. If no tool fits, say briefly what you can " +
	"help with instead. Do not invent portfolio numbers."

var (
	turnsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agent_turns_total",
		Help: "Completed turns by control mode.",
	}, []string{"mode"})

	fallbacksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "agent_reasoner_fallbacks_total",
		Help: "Turns where the reasoner failed and the router answered.",
	})

	turnSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "agent_turn_seconds",
		Help:    "End-to-end turn latency in seconds.",
		Buckets: prometheus.DefBuckets,
	})
)

// Engine runs the agent loop.
//
// Thread Safety: safe for concurrent use across sessions. Within a
// session, turns are serialized by the session's in-flight marker.
type Engine struct {
	registry *tools.Registry
	router   *router.Router
	reasoner llm.Reasoner
	pipeline *verify.Pipeline
	sessions *SessionStore
	machine  *StateMachine
	logger   *slog.Logger
}

// EngineOption customizes an Engine.
type EngineOption func(*Engine)

// WithReasoner attaches an LLM reasoner. Without one the engine runs
// rule-based only.
func WithReasoner(r llm.Reasoner) EngineOption {
	return func(e *Engine) {
		e.reasoner = r
	}
}

// WithPipeline overrides the verification pipeline.
func WithPipeline(p *verify.Pipeline) EngineOption {
	return func(e *Engine) {
		e.pipeline = p
	}
}

// WithLogger overrides the engine logger.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = logger
	}
}

// NewEngine builds an engine over a tool registry and a router.
func NewEngine(registry *tools.Registry, rtr *router.Router, opts ...EngineOption) *Engine {
	e := &Engine{
		registry: registry,
		router:   rtr,
		pipeline: verify.New(),
		sessions: NewSessionStore(),
		machine:  DefaultStateMachine,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Sessions exposes the session store.
func (e *Engine) Sessions() *SessionStore {
	return e.sessions
}

// Chat runs one turn for a session.
//
// Description:
//
//	Walks the turn state machine: INIT runs the safety gate on the
//	raw query, REASON selects tool calls, EXECUTE dispatches them
//	concurrently (results re-ordered to request order) and feeds the
//	results back to the reasoner for the next step, until the
//	reasoner answers or the tool-call cap forces finalization.
//	Router modes run a single round. FINALIZE synthesizes and
//	verifies. Cancellation at any point abandons the turn without
//	recording it.
//
// Inputs:
//
//	ctx       - Cancels the turn.
//	sessionID - Conversation key; created on first use.
//	message   - Raw user query.
//
// Outputs:
//
//	Output - Verified response with turn metadata.
//	error  - ErrSessionBusy, or ctx.Err() on cancellation.
func (e *Engine) Chat(ctx context.Context, sessionID, message string) (Output, error) {
	ctx, span := tracer.Start(ctx, "orchestrator.Chat")
	defer span.End()
	span.SetAttributes(attribute.String("session.id", sessionID))

	started := time.Now()
	session := e.sessions.GetOrCreate(sessionID)
	if err := session.acquire(); err != nil {
		return Output{}, err
	}

	tracker := newTurnTracker()

	// INIT: safety gate on the raw query, then sanitize.
	if safety.IsTradeAdvice(message) {
		_ = e.machine.Transition(tracker, StateRefuseTradeAdvice)
		e.logger.Info("Trade-advice query refused", "session_id", sessionID)
		return e.recordShortCircuit(session, message, safety.TradeRefusal, verify.Report{
			DisclaimerPresent:  true,
			TradeAdviceRefused: true,
			ConfidenceLevel:    "high",
		}, started), nil
	}
	if safety.IsPromptInjection(message) {
		_ = e.machine.Transition(tracker, StateBlockInjection)
		e.logger.Warn("Prompt-injection attempt blocked", "session_id", sessionID)
		return e.recordShortCircuit(session, message, safety.InjectionBlock, verify.Report{
			DisclaimerPresent:      true,
			NoTradeAdvice:          true,
			PromptInjectionBlocked: true,
			ConfidenceLevel:        "high",
		}, started), nil
	}

	query := safety.Sanitize(message)
	if err := e.machine.Transition(tracker, StateReason); err != nil {
		session.release()
		return Output{}, err
	}

	// REASON: reasoner when configured, router otherwise. A reasoner
	// failure before any tool ran falls back to the router exactly
	// once, transparently.
	transcript := e.transcript(session, query)
	mode, calls, finalText := e.reason(ctx, transcript, session, query)
	if ctx.Err() != nil {
		session.release()
		return Output{}, ctx.Err()
	}

	partial := false
	var results []tools.Result
	var executed []tools.Call
	var invocations []ToolInvocation

	// EXECUTE rounds: run the selected calls, feed the results back,
	// and reason again until the reasoner answers with final text or
	// the cap is reached. Router modes run a single round.
	for finalText == "" && len(calls) > 0 {
		if err := e.machine.Transition(tracker, StateExecute); err != nil {
			session.release()
			return Output{}, err
		}
		if remaining := MaxToolCallsPerTurn - len(executed); len(calls) > remaining {
			e.logger.Warn("Tool-call cap reached, truncating batch",
				"session_id", sessionID, "requested", len(calls), "remaining", remaining)
			calls = calls[:remaining]
		}

		batch, err := e.execute(ctx, calls)
		if err != nil {
			// Cancellation abandons the turn unrecorded.
			session.release()
			return Output{}, err
		}
		for i := range calls {
			inv := ToolInvocation{Seq: len(invocations) + 1, Call: calls[i], Result: batch[i]}
			invocations = append(invocations, inv)
			span.AddEvent("tool.invocation", trace.WithAttributes(
				attribute.Int("tool.seq", inv.Seq),
				attribute.String("tool.name", inv.Call.Tool),
				attribute.Bool("tool.success", inv.Result.Success),
			))
		}
		executed = append(executed, calls...)
		results = append(results, batch...)

		if mode != ModeLLM {
			break
		}
		if len(executed) >= MaxToolCallsPerTurn {
			// The reasoner never got to answer.
			e.logger.Warn("Tool-call cap reached, finalizing partial turn",
				"session_id", sessionID, "executed", len(executed))
			partial = true
			break
		}

		transcript = withToolRound(transcript, calls, batch)
		if err := e.machine.Transition(tracker, StateReason); err != nil {
			session.release()
			return Output{}, err
		}
		decision, err := e.reasoner.Reason(ctx, systemPrompt, transcript, e.registry.Specs())
		if ctx.Err() != nil {
			session.release()
			return Output{}, ctx.Err()
		}
		if err != nil {
			e.logger.Warn("Reasoner failed mid-turn, finalizing with executed results",
				"session_id", sessionID, "reasoner", e.reasoner.Name(), "error", err)
			break
		}
		calls, finalText = decision.ToolCalls, decision.FinalText
	}

	if err := e.machine.Transition(tracker, StateFinalize); err != nil {
		session.release()
		return Output{}, err
	}

	// FINALIZE: synthesize, verify, record.
	text, grounded := e.synthesize(finalText, results)
	verified, report, confidence := e.pipeline.Run(verify.Input{
		Query:            query,
		Text:             text,
		Grounded:         grounded,
		Results:          results,
		FreshnessChecked: e.freshnessChecked(executed),
		Partial:          partial,
	})

	_ = e.machine.Transition(tracker, StateEnd)

	turn := session.append(Turn{
		ID:           uuid.NewString(),
		Query:        query,
		Response:     verified,
		ToolCalls:    e.expandCalls(executed),
		Invocations:  invocations,
		Confidence:   confidence,
		Mode:         mode,
		Verification: report,
		CreatedAt:    time.Now(),
	})

	turnsTotal.WithLabelValues(string(mode)).Inc()
	turnSeconds.Observe(time.Since(started).Seconds())
	e.logger.Info("Turn complete",
		"session_id", sessionID,
		"sequence", turn.Sequence,
		"mode", mode,
		"tool_calls", turn.ToolCalls,
		"confidence", confidence)

	return Output{
		SessionID:    sessionID,
		Response:     verified,
		ToolCalls:    turn.ToolCalls,
		Confidence:   confidence,
		Mode:         mode,
		Verification: report,
	}, nil
}

// reason selects the control path for the first step and produces
// either tool calls or final text. The returned mode reflects which
// path actually answered.
func (e *Engine) reason(ctx context.Context, transcript []llm.Message, session *Session, query string) (Mode, []tools.Call, string) {
	if e.reasoner != nil {
		decision, err := e.reasoner.Reason(ctx, systemPrompt, transcript, e.registry.Specs())
		if err == nil {
			return ModeLLM, decision.ToolCalls, decision.FinalText
		}
		if ctx.Err() != nil {
			return ModeLLM, nil, ""
		}
		fallbacksTotal.Inc()
		e.logger.Warn("Reasoner failed, falling back to rule-based routing",
			"session_id", session.ID(), "reasoner", e.reasoner.Name(), "error", err)
		mode, calls, text := e.route(session, query)
		if mode == ModeRuleBased {
			mode = ModeFallback
		}
		return mode, calls, text
	}
	return e.route(session, query)
}

// route runs the deterministic router path.
func (e *Engine) route(session *Session, query string) (Mode, []tools.Call, string) {
	decision, err := e.router.Route(query, session.RecentTools())
	if err != nil {
		if errors.Is(err, router.ErrEmptyQuery) {
			return ModeRuleBased, nil, clarifyResponse
		}
		e.logger.Error("Router failed", "session_id", session.ID(), "error", err)
		return ModeRuleBased, nil, degradedResponse
	}
	return ModeRuleBased, []tools.Call{{Tool: decision.Tool, Args: decision.Args}}, ""
}

// execute dispatches the batch concurrently and re-orders results to
// request order. Synthesis waits for the whole batch.
func (e *Engine) execute(ctx context.Context, calls []tools.Call) ([]tools.Result, error) {
	results := make([]tools.Result, len(calls))

	group, groupCtx := errgroup.WithContext(ctx)
	for i, call := range calls {
		group.Go(func() error {
			result, err := e.registry.Invoke(groupCtx, call)
			if err != nil && groupCtx.Err() != nil {
				return groupCtx.Err()
			}
			// Validation and unknown-tool errors arrive as failure
			// Results; they degrade confidence rather than abort.
			results[i] = result
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// synthesize renders the results into one response. Per-result
// disclaimers are stripped; the verification pipeline appends the
// single final one.
func (e *Engine) synthesize(finalText string, results []tools.Result) (string, bool) {
	if finalText != "" {
		// Direct reasoner text carries no payload backing.
		return finalText, false
	}
	if len(results) == 0 {
		return clarifyResponse, false
	}

	grounded := true
	parts := make([]string, 0, len(results))
	for _, result := range results {
		text, ok := synthesis.Synthesize(result)
		if !ok {
			grounded = false
		}
		text = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(text), safety.Disclaimer))
		parts = append(parts, text)
	}
	return strings.Join(parts, "\n\n"), grounded
}

// freshnessChecked reports whether any executed tool's payload is
// subject to the staleness horizon.
func (e *Engine) freshnessChecked(calls []tools.Call) bool {
	for _, call := range calls {
		if spec, ok := e.registry.Spec(call.Tool); ok && spec.FreshnessChecked {
			return true
		}
	}
	return false
}

// expandCalls lists executed tool names, expanding compound tools to
// the calls they stand for.
func (e *Engine) expandCalls(calls []tools.Call) []string {
	names := make([]string, 0, len(calls))
	for _, call := range calls {
		if spec, ok := e.registry.Spec(call.Tool); ok && len(spec.Expands) > 0 {
			names = append(names, spec.Expands...)
			continue
		}
		names = append(names, call.Tool)
	}
	return names
}

// withToolRound appends an executed round to the reasoning transcript:
// the assistant's tool-call echo, then one tool message per result.
func withToolRound(messages []llm.Message, calls []tools.Call, results []tools.Result) []llm.Message {
	messages = append(messages, llm.Message{Role: llm.RoleAssistant, ToolCalls: calls})
	for i, call := range calls {
		content, err := json.Marshal(results[i])
		if err != nil {
			content = []byte(`{"success":false}`)
		}
		messages = append(messages, llm.Message{
			Role:    llm.RoleTool,
			CallID:  call.ID,
			Tool:    call.Tool,
			Content: string(content),
		})
	}
	return messages
}

// transcript builds the reasoning context from session history plus
// the current query, oldest first.
func (e *Engine) transcript(session *Session, query string) []llm.Message {
	var messages []llm.Message
	for _, turn := range session.Turns() {
		messages = append(messages,
			llm.Message{Role: llm.RoleUser, Content: turn.Query},
			llm.Message{Role: llm.RoleAssistant, Content: turn.Response},
		)
	}
	return append(messages, llm.Message{Role: llm.RoleUser, Content: query})
}

// recordShortCircuit appends a safety-gate terminal turn.
func (e *Engine) recordShortCircuit(session *Session, query, response string, report verify.Report, started time.Time) Output {
	turn := session.append(Turn{
		ID:           uuid.NewString(),
		Query:        query,
		Response:     response,
		ToolCalls:    []string{},
		Confidence:   RefusalConfidence,
		Mode:         ModeRuleBased,
		Verification: report,
		CreatedAt:    time.Now(),
	})

	turnsTotal.WithLabelValues(string(ModeRuleBased)).Inc()
	turnSeconds.Observe(time.Since(started).Seconds())

	return Output{
		SessionID:    session.ID(),
		Response:     response,
		ToolCalls:    turn.ToolCalls,
		Confidence:   RefusalConfidence,
		Mode:         ModeRuleBased,
		Verification: report,
	}
}
