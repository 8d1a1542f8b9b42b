// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tools

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

const echoSchema = `{
	"type": "object",
	"properties": {"value": {"type": "string"}},
	"required": ["value"],
	"additionalProperties": false
}`

func echoSpec(name string, handler HandlerFunc) ToolSpec {
	return ToolSpec{
		Name:        name,
		Description: "echoes its argument",
		InputSchema: echoSchema,
		Handler:     handler,
	}
}

func TestRegistry_RegisterDuplicate(t *testing.T) {
	r := NewRegistry()
	spec := echoSpec("echo", func(ctx context.Context, args map[string]any) (any, error) {
		return args["value"], nil
	})

	if err := r.Register(spec); err != nil {
		t.Fatalf("first Register failed: %v", err)
	}
	err := r.Register(spec)
	if !errors.Is(err, ErrDuplicateTool) {
		t.Fatalf("second Register: got %v, want ErrDuplicateTool", err)
	}
}

func TestRegistry_RegisterNilHandler(t *testing.T) {
	r := NewRegistry()
	err := r.Register(ToolSpec{Name: "broken", InputSchema: echoSchema})
	if !errors.Is(err, ErrNilHandler) {
		t.Fatalf("got %v, want ErrNilHandler", err)
	}
}

func TestRegistry_InvokeUnknownTool(t *testing.T) {
	r := NewRegistry()
	result, err := r.Invoke(context.Background(), Call{Tool: "nope"})
	if !errors.Is(err, ErrUnknownTool) {
		t.Fatalf("got %v, want ErrUnknownTool", err)
	}

	// The result still identifies the tool and the cause, so callers
	// recording it keep a usable failure.
	if result.Tool != "nope" {
		t.Errorf("result.Tool = %q, want %q", result.Tool, "nope")
	}
	if result.Error == nil {
		t.Fatal("expected structured tool error on the result")
	}
	if result.Error.Code != "unknown_tool" {
		t.Errorf("error code = %q, want unknown_tool", result.Error.Code)
	}
	if !strings.Contains(result.Error.Message, "nope") {
		t.Errorf("error message %q does not name the tool", result.Error.Message)
	}
}

func TestRegistry_InvokeValidation(t *testing.T) {
	var handlerRuns atomic.Int32
	r := NewRegistry()
	r.MustRegister(echoSpec("echo", func(ctx context.Context, args map[string]any) (any, error) {
		handlerRuns.Add(1)
		return args["value"], nil
	}))

	tests := []struct {
		name    string
		args    map[string]any
		wantErr bool
	}{
		{"valid", map[string]any{"value": "hi"}, false},
		{"missing required", map[string]any{}, true},
		{"wrong type", map[string]any{"value": 7}, true},
		{"unexpected property", map[string]any{"value": "hi", "extra": true}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := handlerRuns.Load()
			result, err := r.Invoke(context.Background(), Call{Tool: "echo", Args: tt.args})

			var vErr *ValidationError
			if tt.wantErr {
				if !errors.As(err, &vErr) {
					t.Fatalf("got %v, want ValidationError", err)
				}
				if handlerRuns.Load() != before {
					t.Fatal("handler ran despite validation failure")
				}
				if result.Error == nil || result.Error.Code != "validation_error" {
					t.Fatalf("result.Error = %+v, want validation_error", result.Error)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestRegistry_RetriesTransientOnce(t *testing.T) {
	var attempts atomic.Int32
	r := NewRegistry()
	r.MustRegister(echoSpec("flaky", func(ctx context.Context, args map[string]any) (any, error) {
		if attempts.Add(1) == 1 {
			return nil, Transient(errors.New("connection reset"))
		}
		return "ok", nil
	}))

	result, err := r.Invoke(context.Background(), Call{Tool: "flaky", Args: map[string]any{"value": "x"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success after retry, got %+v", result)
	}
	if got := attempts.Load(); got != 2 {
		t.Fatalf("attempts = %d, want 2", got)
	}
}

func TestRegistry_TransientFailsAfterSecondAttempt(t *testing.T) {
	var attempts atomic.Int32
	r := NewRegistry()
	r.MustRegister(echoSpec("flaky", func(ctx context.Context, args map[string]any) (any, error) {
		attempts.Add(1)
		return nil, Transient(errors.New("connection reset"))
	}))

	result, err := r.Invoke(context.Background(), Call{Tool: "flaky", Args: map[string]any{"value": "x"}})
	if err != nil {
		t.Fatalf("unexpected dispatch error: %v", err)
	}
	if result.Success {
		t.Fatal("expected failure result")
	}
	if result.Error == nil {
		t.Fatal("expected structured tool error")
	}
	if got := attempts.Load(); got != 2 {
		t.Fatalf("attempts = %d, want exactly 2 (one retry)", got)
	}
}

func TestRegistry_NonTransientNotRetried(t *testing.T) {
	var attempts atomic.Int32
	r := NewRegistry()
	r.MustRegister(echoSpec("broken", func(ctx context.Context, args map[string]any) (any, error) {
		attempts.Add(1)
		return nil, errors.New("bad data from upstream")
	}))

	result, err := r.Invoke(context.Background(), Call{Tool: "broken", Args: map[string]any{"value": "x"}})
	if err != nil {
		t.Fatalf("unexpected dispatch error: %v", err)
	}
	if result.Success {
		t.Fatal("expected failure result")
	}
	if got := attempts.Load(); got != 1 {
		t.Fatalf("attempts = %d, want 1 (no retry)", got)
	}
}

func TestRegistry_TimeoutRetriedOnce(t *testing.T) {
	var attempts atomic.Int32
	r := NewRegistry(WithInvokeTimeout(20 * time.Millisecond))
	r.MustRegister(echoSpec("slow", func(ctx context.Context, args map[string]any) (any, error) {
		attempts.Add(1)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Second):
			return "late", nil
		}
	}))

	result, err := r.Invoke(context.Background(), Call{Tool: "slow", Args: map[string]any{"value": "x"}})
	if err != nil {
		t.Fatalf("unexpected dispatch error: %v", err)
	}
	if result.Success {
		t.Fatal("expected failure result after two timeouts")
	}
	if got := attempts.Load(); got != 2 {
		t.Fatalf("attempts = %d, want 2", got)
	}
}

func TestRegistry_CancellationAbortsWithoutRetry(t *testing.T) {
	var attempts atomic.Int32
	r := NewRegistry()
	r.MustRegister(echoSpec("waits", func(ctx context.Context, args map[string]any) (any, error) {
		attempts.Add(1)
		<-ctx.Done()
		return nil, ctx.Err()
	}))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := r.Invoke(ctx, Call{Tool: "waits", Args: map[string]any{"value": "x"}})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context.Canceled", err)
	}
	if got := attempts.Load(); got != 1 {
		t.Fatalf("attempts = %d, want 1 (cancellation never retries)", got)
	}
}

func TestRegistry_SpecsSorted(t *testing.T) {
	r := NewRegistry()
	noop := func(ctx context.Context, args map[string]any) (any, error) { return nil, nil }
	r.MustRegister(echoSpec("zeta", noop), echoSpec("alpha", noop))

	specs := r.Specs()
	if len(specs) != 2 || specs[0].Name != "alpha" || specs[1].Name != "zeta" {
		t.Fatalf("Specs() not sorted: %+v", specs)
	}
}
