// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package safety holds the input gate the agent runs before any
// reasoning or tool dispatch.
//
// Two classifiers run against the RAW query, before sanitization:
// trade-advice detection and prompt-injection detection. Either match
// short-circuits the turn with a canned response and zero tool calls.
// Sanitization then strips injection wrappers from queries that pass.
package safety

import (
	"regexp"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Disclaimer is appended to every agent response exactly once.
const Disclaimer = "Disclaimer: This is not financial advice and is provided for informational purposes only."

// TradeRefusal is the full response for trade-advice queries.
const TradeRefusal = "I'm not able to provide buy, sell, or investment recommendations. " +
	"I can only help you understand your existing portfolio data, performance, " +
	"and allocation. Please consult a licensed financial advisor for trade advice.\n\n" +
	Disclaimer

// InjectionBlock is the full response for prompt-injection attempts.
const InjectionBlock = "I'm sorry, but I can't comply with that request. " +
	"I'm a portfolio assistant and can only help with portfolio-related queries.\n\n" +
	Disclaimer

var blockedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "agent_blocked_queries_total",
	Help: "Queries short-circuited by the safety gate, by reason.",
}, []string{"reason"})

var tradeAdvicePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\bshould\s+i\s+(buy|sell|invest|trade|short|long)\b`),
	regexp.MustCompile(`\b(buy|sell|invest\s+in|short|long)\s+(this|that|it|them|some|more)\b`),
	regexp.MustCompile(`\brecommend\b.*(stock|etf|fund|bond|crypto|invest|buy|sell)`),
	regexp.MustCompile(`\b(what|which)\s+(stock|etf|fund|bond|crypto|investment)s?\s+(should|to\s+buy|to\s+sell|to\s+invest)\b`),
	regexp.MustCompile(`\bgive\s+me\s+(trade|investment|buy|sell)\s+(advice|recommendation|tip)\b`),
	regexp.MustCompile(`\b(is\s+it\s+a\s+good\s+time\s+to|when\s+should\s+i)\s+(buy|sell|invest)\b`),
}

var injectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`ignore\s+(previous|prior|above|all)\s+(instructions|rules|prompts)`),
	regexp.MustCompile(`disregard\s+(previous|prior|above|all)\s+(instructions|rules|prompts)`),
	regexp.MustCompile(`forget\s+(previous|prior|above|all|your)\s+(instructions|rules|prompts|programming)`),
	regexp.MustCompile(`you\s+are\s+now\s+(a|an|in)\b`),
	regexp.MustCompile(`new\s+(instruction|rule|prompt|persona|role)`),
	regexp.MustCompile(`system\s*:\s*`),
	regexp.MustCompile(`<\s*system\s*>`),
	regexp.MustCompile(`act\s+as\s+(a|an|if|in)\b`),
	regexp.MustCompile(`pretend\s+(you|to\s+be)\b`),
	regexp.MustCompile(`(reveal|show|output|print|display)\s+(your|the)\s+(system|initial|original)\s*(prompt|instructions|rules)`),
}

var (
	systemTagPattern = regexp.MustCompile(`<\s*/?\s*system\s*>`)
	nulBytePattern   = regexp.MustCompile("\x00")
)

// IsTradeAdvice reports whether the raw query asks for buy/sell or
// investment recommendations.
func IsTradeAdvice(query string) bool {
	lower := strings.ToLower(query)
	for _, pattern := range tradeAdvicePatterns {
		if pattern.MatchString(lower) {
			blockedTotal.WithLabelValues("trade_advice").Inc()
			return true
		}
	}
	return false
}

// IsPromptInjection reports whether the raw query tries to override
// the agent's instructions. Runs on the raw input; sanitization would
// hide exactly the markers this looks for.
func IsPromptInjection(query string) bool {
	lower := strings.ToLower(query)
	for _, pattern := range injectionPatterns {
		if pattern.MatchString(lower) {
			blockedTotal.WithLabelValues("prompt_injection").Inc()
			return true
		}
	}
	return false
}

// Sanitize strips injection wrappers but keeps the query readable.
func Sanitize(query string) string {
	sanitized := systemTagPattern.ReplaceAllString(query, "")
	sanitized = nulBytePattern.ReplaceAllString(sanitized, "")
	return strings.TrimSpace(sanitized)
}
