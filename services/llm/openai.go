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
	openai "github.com/sashabaranov/go-openai"

	"github.com/AleutianAI/AleutianFolio/services/agent/tools"
)

const defaultOpenAIModel = "gpt-4o-mini"

// OpenAIReasoner selects tools via the OpenAI chat completions API
// with function calling.
type OpenAIReasoner struct {
	client *openai.Client
	model  string
	key    *memguard.LockedBuffer
}

// OpenAIOption customizes the reasoner.
type OpenAIOption func(*openAIConfig)

type openAIConfig struct {
	baseURL string
}

// WithOpenAIBaseURL points the client at a different endpoint, for
// tests and proxies.
func WithOpenAIBaseURL(url string) OpenAIOption {
	return func(c *openAIConfig) {
		c.baseURL = url
	}
}

// NewOpenAIReasoner builds a reasoner from OPENAI_API_KEY (or the
// secrets file) and OPENAI_MODEL.
func NewOpenAIReasoner(opts ...OpenAIOption) (*OpenAIReasoner, error) {
	key, err := loadSecret("OPENAI_API_KEY", "/run/secrets/openai_api_key")
	if err != nil {
		return nil, err
	}

	model := os.Getenv("OPENAI_MODEL")
	if model == "" {
		model = defaultOpenAIModel
		slog.Warn("OPENAI_MODEL not set, defaulting", "model", model)
	}

	cfg := openAIConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	// The client config references the locked buffer's memory; the
	// buffer stays alive until Close.
	clientCfg := openai.DefaultConfig(key.String())
	if cfg.baseURL != "" {
		clientCfg.BaseURL = cfg.baseURL
	}

	slog.Info("Initializing OpenAI reasoner", "model", model)
	return &OpenAIReasoner{
		client: openai.NewClientWithConfig(clientCfg),
		model:  model,
		key:    key,
	}, nil
}

// Name implements Reasoner.
func (o *OpenAIReasoner) Name() string { return "openai" }

// Close wipes the API key from memory.
func (o *OpenAIReasoner) Close() {
	if o.key != nil {
		o.key.Destroy()
	}
}

// Reason implements Reasoner.
func (o *OpenAIReasoner) Reason(ctx context.Context, system string, transcript []Message, specs []tools.ToolSpec) (Decision, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(transcript)+1)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: system,
	})
	for _, msg := range transcript {
		switch {
		case msg.Role == RoleTool:
			messages = append(messages, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    msg.Content,
				Name:       msg.Tool,
				ToolCallID: msg.CallID,
			})
		case msg.Role == RoleAssistant && len(msg.ToolCalls) > 0:
			// Echo of a prior tool-call round; the API requires it
			// before the matching tool results.
			echo := make([]openai.ToolCall, 0, len(msg.ToolCalls))
			for _, call := range msg.ToolCalls {
				args, err := json.Marshal(call.Args)
				if err != nil {
					return Decision{}, fmt.Errorf("encoding arguments for %s: %w", call.Tool, err)
				}
				echo = append(echo, openai.ToolCall{
					ID:       call.ID,
					Type:     openai.ToolTypeFunction,
					Function: openai.FunctionCall{Name: call.Tool, Arguments: string(args)},
				})
			}
			messages = append(messages, openai.ChatCompletionMessage{
				Role:      openai.ChatMessageRoleAssistant,
				ToolCalls: echo,
			})
		case msg.Role == RoleAssistant:
			messages = append(messages, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleAssistant,
				Content: msg.Content,
			})
		default:
			messages = append(messages, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleUser,
				Content: msg.Content,
			})
		}
	}

	defs := make([]openai.Tool, 0, len(specs))
	for _, spec := range specs {
		defs = append(defs, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        spec.Name,
				Description: spec.Description,
				Parameters:  json.RawMessage(spec.InputSchema),
			},
		})
	}

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    o.model,
		Messages: messages,
		Tools:    defs,
	})
	if err != nil {
		return Decision{}, fmt.Errorf("openai chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Decision{}, ErrEmptyCompletion
	}

	choice := resp.Choices[0].Message
	if len(choice.ToolCalls) == 0 {
		if choice.Content == "" {
			return Decision{}, ErrEmptyCompletion
		}
		return Decision{FinalText: choice.Content}, nil
	}

	calls := make([]tools.Call, 0, len(choice.ToolCalls))
	for _, tc := range choice.ToolCalls {
		args := map[string]any{}
		if tc.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
				return Decision{}, fmt.Errorf("decoding arguments for %s: %w", tc.Function.Name, err)
			}
		}
		calls = append(calls, tools.Call{ID: tc.ID, Tool: tc.Function.Name, Args: args})
	}
	slog.Debug("OpenAI reasoning step complete", "tool_calls", len(calls))
	return Decision{ToolCalls: calls}, nil
}
