// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package tools implements the agent's tool registry.
//
// Every tool is described by a ToolSpec: a name, a JSON Schema for its
// arguments, and a handler. Invoke validates arguments against the
// schema before dispatch, bounds each handler call with a timeout, and
// retries exactly once when the failure looks transient. Validation
// failures are never retried.
package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/xeipuuv/gojsonschema"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/AleutianFolio/services/provider"
)

var tracer = otel.Tracer("aleutianfolio.agent.tools")

// DefaultTimeout bounds a single handler execution.
const DefaultTimeout = 10 * time.Second

var (
	invocationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agent_tool_invocations_total",
		Help: "Tool invocations by tool name and outcome.",
	}, []string{"tool", "outcome"})

	invocationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "agent_tool_invocation_seconds",
		Help:    "Tool handler latency in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"tool"})

	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agent_tool_retries_total",
		Help: "Transient-failure retries by tool name.",
	}, []string{"tool"})
)

// HandlerFunc executes one tool call. Args have already passed schema
// validation. Handlers wrap retryable failures with Transient().
type HandlerFunc func(ctx context.Context, args map[string]any) (any, error)

// ToolSpec describes one registered tool.
type ToolSpec struct {
	// Name is the unique tool identifier, e.g. "get_performance".
	Name string

	// Description is surfaced to LLM reasoners for tool selection.
	Description string

	// InputSchema is a JSON Schema document validating Args.
	InputSchema string

	// Handler executes the call.
	Handler HandlerFunc

	// Provenance classifies the payload for confidence scoring.
	Provenance provider.Provenance

	// FreshnessChecked marks payloads whose last_updated timestamp is
	// subject to the staleness horizon.
	FreshnessChecked bool

	// Expands lists the underlying calls a compound tool stands for.
	// Empty for plain tools.
	Expands []string
}

// Call is one requested tool invocation.
type Call struct {
	// ID is the provider-assigned call identifier, echoed back with
	// the result on multi-step reasoning. Empty for router calls.
	ID   string         `json:"id,omitempty"`
	Tool string         `json:"tool"`
	Args map[string]any `json:"args"`
}

// ToolError is the structured error attached to a failed Result.
type ToolError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Result is the outcome of one invocation.
type Result struct {
	Tool       string              `json:"tool"`
	Success    bool                `json:"success"`
	Data       any                 `json:"data,omitempty"`
	Provenance provider.Provenance `json:"provenance,omitempty"`
	Error      *ToolError          `json:"error,omitempty"`
}

type registeredTool struct {
	spec   ToolSpec
	schema *gojsonschema.Schema
}

// Registry holds tool specs and dispatches calls.
//
// Thread Safety: safe for concurrent use. Registration normally
// happens once at startup; invocation may be concurrent.
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]*registeredTool
	timeout time.Duration
}

// RegistryOption customizes a Registry.
type RegistryOption func(*Registry)

// WithInvokeTimeout overrides the per-call timeout (default 10s).
func WithInvokeTimeout(d time.Duration) RegistryOption {
	return func(r *Registry) {
		r.timeout = d
	}
}

// NewRegistry builds an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		tools:   make(map[string]*registeredTool),
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a tool.
//
// Outputs:
//
//	error - ErrDuplicateTool if the name exists, ErrNilHandler for a
//	        missing handler, or a schema compilation error.
func (r *Registry) Register(spec ToolSpec) error {
	if spec.Name == "" {
		return fmt.Errorf("tool name is empty")
	}
	if spec.Handler == nil {
		return fmt.Errorf("%w: %s", ErrNilHandler, spec.Name)
	}

	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(spec.InputSchema))
	if err != nil {
		return fmt.Errorf("compile schema for %s: %w", spec.Name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[spec.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateTool, spec.Name)
	}
	r.tools[spec.Name] = &registeredTool{spec: spec, schema: schema}
	return nil
}

// MustRegister registers all specs and panics on error. Intended for
// startup wiring where a bad spec is a programming error.
func (r *Registry) MustRegister(specs ...ToolSpec) {
	for _, spec := range specs {
		if err := r.Register(spec); err != nil {
			panic(err)
		}
	}
}

// Spec returns the spec for name.
func (r *Registry) Spec(name string) (ToolSpec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rt, ok := r.tools[name]
	if !ok {
		return ToolSpec{}, false
	}
	return rt.spec, true
}

// Specs returns all registered specs sorted by name.
func (r *Registry) Specs() []ToolSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	specs := make([]ToolSpec, 0, len(r.tools))
	for _, rt := range r.tools {
		specs = append(specs, rt.spec)
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].Name < specs[j].Name })
	return specs
}

// Invoke validates and executes one call.
//
// Description:
//
//	Arguments are validated against the tool's JSON Schema first; a
//	mismatch yields a ValidationError and the handler never runs.
//	The handler is bounded by the registry timeout. A timeout or a
//	Transient()-wrapped failure is retried exactly once; the second
//	failure is final. Parent context cancellation aborts immediately
//	with no retry.
//
// Outputs:
//
//	Result - Always populated; any failure carries a ToolError with a
//	         code and message.
//	error  - Non-nil only for cancellation or non-recoverable
//	         dispatch errors (unknown tool, validation failure).
func (r *Registry) Invoke(ctx context.Context, call Call) (Result, error) {
	ctx, span := tracer.Start(ctx, "Registry.Invoke")
	defer span.End()
	span.SetAttributes(attribute.String("tool.name", call.Tool))

	r.mu.RLock()
	rt, ok := r.tools[call.Tool]
	r.mu.RUnlock()
	if !ok {
		invocationsTotal.WithLabelValues(call.Tool, "unknown").Inc()
		err := fmt.Errorf("%w: %s", ErrUnknownTool, call.Tool)
		span.SetStatus(otelcodes.Error, err.Error())
		return Result{
			Tool:  call.Tool,
			Error: &ToolError{Code: "unknown_tool", Message: err.Error()},
		}, err
	}

	args := call.Args
	if args == nil {
		args = map[string]any{}
	}
	validation, err := rt.schema.Validate(gojsonschema.NewGoLoader(args))
	if err != nil {
		invocationsTotal.WithLabelValues(call.Tool, "validation_error").Inc()
		verr := &ValidationError{Tool: call.Tool, Detail: err.Error()}
		return Result{
			Tool:  call.Tool,
			Error: &ToolError{Code: "validation_error", Message: verr.Error()},
		}, verr
	}
	if !validation.Valid() {
		invocationsTotal.WithLabelValues(call.Tool, "validation_error").Inc()
		detail := ""
		for i, desc := range validation.Errors() {
			if i > 0 {
				detail += "; "
			}
			detail += desc.String()
		}
		verr := &ValidationError{Tool: call.Tool, Detail: detail}
		return Result{
			Tool:  call.Tool,
			Error: &ToolError{Code: "validation_error", Message: verr.Error()},
		}, verr
	}

	start := time.Now()
	data, err := r.runOnce(ctx, rt, args)
	if err != nil && r.shouldRetry(ctx, err) {
		retriesTotal.WithLabelValues(call.Tool).Inc()
		slog.Warn("Retrying tool after transient failure",
			slog.String("tool", call.Tool),
			slog.String("error", err.Error()))
		data, err = r.runOnce(ctx, rt, args)
	}
	invocationSeconds.WithLabelValues(call.Tool).Observe(time.Since(start).Seconds())

	if err != nil {
		if ctx.Err() != nil {
			// The turn itself was cancelled; surface that, not a tool
			// failure.
			invocationsTotal.WithLabelValues(call.Tool, "cancelled").Inc()
			span.SetStatus(otelcodes.Error, ctx.Err().Error())
			return Result{Tool: call.Tool}, ctx.Err()
		}
		invocationsTotal.WithLabelValues(call.Tool, "error").Inc()
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return Result{
			Tool:    call.Tool,
			Success: false,
			Error:   &ToolError{Code: errorCode(err), Message: err.Error()},
		}, nil
	}

	invocationsTotal.WithLabelValues(call.Tool, "success").Inc()
	return Result{
		Tool:       call.Tool,
		Success:    true,
		Data:       data,
		Provenance: rt.spec.Provenance,
	}, nil
}

func (r *Registry) runOnce(ctx context.Context, rt *registeredTool, args map[string]any) (any, error) {
	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	data, err := rt.spec.Handler(callCtx, args)
	if err != nil && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		// Per-call timeout, not a caller cancellation.
		return nil, Transient(fmt.Errorf("tool %s timed out after %s", rt.spec.Name, r.timeout))
	}
	return data, err
}

func (r *Registry) shouldRetry(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	return IsTransient(err)
}

func errorCode(err error) string {
	if IsTransient(err) {
		return "tool_timeout"
	}
	return "tool_execution_failed"
}
