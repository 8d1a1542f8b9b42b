// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/awnumar/memguard"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"

	"github.com/AleutianAI/AleutianFolio/services/agent/tools"
)

const defaultAnthropicModel = "claude-3-5-sonnet-20240620"

// AnthropicReasoner selects tools via the Anthropic messages API with
// tool use.
type AnthropicReasoner struct {
	model llms.Model
	name  string
	key   *memguard.LockedBuffer
}

// NewAnthropicReasoner builds a reasoner from ANTHROPIC_API_KEY (or
// the secrets file) and CLAUDE_MODEL.
func NewAnthropicReasoner() (*AnthropicReasoner, error) {
	key, err := loadSecret("ANTHROPIC_API_KEY", "/run/secrets/anthropic_api_key")
	if err != nil {
		return nil, err
	}

	model := os.Getenv("CLAUDE_MODEL")
	if model == "" {
		model = defaultAnthropicModel
		slog.Info("CLAUDE_MODEL not set, defaulting", "model", model)
	}

	client, err := anthropic.New(
		anthropic.WithToken(key.String()),
		anthropic.WithModel(model),
	)
	if err != nil {
		key.Destroy()
		return nil, fmt.Errorf("initializing anthropic client: %w", err)
	}

	slog.Info("Initializing Anthropic reasoner", "model", model)
	return &AnthropicReasoner{model: client, name: model, key: key}, nil
}

// Name implements Reasoner.
func (a *AnthropicReasoner) Name() string { return "anthropic" }

// Close wipes the API key from memory.
func (a *AnthropicReasoner) Close() {
	if a.key != nil {
		a.key.Destroy()
	}
}

// Reason implements Reasoner.
func (a *AnthropicReasoner) Reason(ctx context.Context, system string, transcript []Message, specs []tools.ToolSpec) (Decision, error) {
	content := make([]llms.MessageContent, 0, len(transcript)+1)
	content = append(content, llms.TextParts(llms.ChatMessageTypeSystem, system))
	for _, msg := range transcript {
		switch {
		case msg.Role == RoleTool:
			content = append(content, llms.MessageContent{
				Role: llms.ChatMessageTypeTool,
				Parts: []llms.ContentPart{llms.ToolCallResponse{
					ToolCallID: msg.CallID,
					Name:       msg.Tool,
					Content:    msg.Content,
				}},
			})
		case msg.Role == RoleAssistant && len(msg.ToolCalls) > 0:
			// Echo of a prior tool-call round, required before the
			// matching tool results.
			parts := make([]llms.ContentPart, 0, len(msg.ToolCalls))
			for _, call := range msg.ToolCalls {
				args, err := json.Marshal(call.Args)
				if err != nil {
					return Decision{}, fmt.Errorf("encoding arguments for %s: %w", call.Tool, err)
				}
				parts = append(parts, llms.ToolCall{
					ID:   call.ID,
					Type: "tool_call",
					FunctionCall: &llms.FunctionCall{
						Name:      call.Tool,
						Arguments: string(args),
					},
				})
			}
			content = append(content, llms.MessageContent{Role: llms.ChatMessageTypeAI, Parts: parts})
		case msg.Role == RoleAssistant:
			content = append(content, llms.TextParts(llms.ChatMessageTypeAI, msg.Content))
		default:
			content = append(content, llms.TextParts(llms.ChatMessageTypeHuman, msg.Content))
		}
	}

	defs := make([]llms.Tool, 0, len(specs))
	for _, spec := range specs {
		var params map[string]any
		if err := json.Unmarshal([]byte(spec.InputSchema), &params); err != nil {
			return Decision{}, fmt.Errorf("decoding schema for %s: %w", spec.Name, err)
		}
		defs = append(defs, llms.Tool{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        spec.Name,
				Description: spec.Description,
				Parameters:  params,
			},
		})
	}

	resp, err := a.model.GenerateContent(ctx, content, llms.WithTools(defs), llms.WithMaxTokens(1024))
	if err != nil {
		return Decision{}, fmt.Errorf("anthropic generation failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Decision{}, ErrEmptyCompletion
	}

	choice := resp.Choices[0]
	if len(choice.ToolCalls) == 0 {
		if choice.Content == "" {
			return Decision{}, ErrEmptyCompletion
		}
		return Decision{FinalText: choice.Content}, nil
	}

	calls := make([]tools.Call, 0, len(choice.ToolCalls))
	for _, tc := range choice.ToolCalls {
		if tc.FunctionCall == nil {
			continue
		}
		args := map[string]any{}
		if tc.FunctionCall.Arguments != "" {
			if err := json.Unmarshal([]byte(tc.FunctionCall.Arguments), &args); err != nil {
				return Decision{}, fmt.Errorf("decoding arguments for %s: %w", tc.FunctionCall.Name, err)
			}
		}
		calls = append(calls, tools.Call{ID: tc.ID, Tool: tc.FunctionCall.Name, Args: args})
	}
	if len(calls) == 0 {
		return Decision{}, ErrEmptyCompletion
	}
	slog.Debug("Anthropic reasoning step complete", "tool_calls", len(calls))
	return Decision{ToolCalls: calls}, nil
}
