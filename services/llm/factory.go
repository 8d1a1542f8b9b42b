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
	"log/slog"
	"os"
)

// NewFromEnv picks a reasoner from the environment: OpenAI when
// OPENAI_API_KEY is set, then Anthropic. Returns ErrNotConfigured when
// neither key is available, which callers treat as rule-based-only
// operation rather than a startup failure.
func NewFromEnv() (Reasoner, error) {
	if hasKey("OPENAI_API_KEY", "/run/secrets/openai_api_key") {
		return NewOpenAIReasoner()
	}
	if hasKey("ANTHROPIC_API_KEY", "/run/secrets/anthropic_api_key") {
		return NewAnthropicReasoner()
	}
	slog.Info("No LLM API key configured, agent will run rule-based only")
	return nil, ErrNotConfigured
}

func hasKey(envVar, secretPath string) bool {
	if os.Getenv(envVar) != "" {
		return true
	}
	info, err := os.Stat(secretPath)
	return err == nil && !info.IsDir() && info.Size() > 0
}
