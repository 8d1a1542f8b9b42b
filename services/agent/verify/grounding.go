// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package verify

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/AleutianAI/AleutianFolio/pkg/validation"
	"github.com/AleutianAI/AleutianFolio/services/agent/safety"
	"github.com/AleutianAI/AleutianFolio/services/agent/tools"
)

// groundingTolerance is the relative error allowed when matching a
// textual number against a payload value, covering display rounding.
const groundingTolerance = 0.005

var (
	// datePattern removes date and timestamp shapes before number
	// extraction so "2026-02-20" never reads as three claims.
	datePattern = regexp.MustCompile(`\d{4}-\d{2}-\d{2}(T[\d:.]+Z?([+-]\d{2}:\d{2})?)?`)

	numberPattern = regexp.MustCompile(`-?\d{1,3}(?:,\d{3})+(?:\.\d+)?|-?\d+(?:\.\d+)?`)
)

// groundText verifies every numeric claim in text against the payload
// values in results. Lines carrying a number with no payload backing
// are stripped and reported.
//
// The disclaimer line never carries claims and is left alone.
func groundText(text string, results []tools.Result) (string, []string) {
	facts := collectFacts(results)

	lines := strings.Split(text, "\n")
	kept := lines[:0:0]
	var warnings []string

	for _, line := range lines {
		if line == safety.Disclaimer {
			kept = append(kept, line)
			continue
		}
		ungrounded := ungroundedNumbers(line, facts)
		if len(ungrounded) == 0 {
			kept = append(kept, line)
			continue
		}
		for _, claim := range ungrounded {
			warnings = append(warnings, fmt.Sprintf("ungrounded_claim:%s", claim))
		}
	}
	return strings.Join(kept, "\n"), warnings
}

func ungroundedNumbers(line string, facts []float64) []string {
	var ungrounded []string
	for _, token := range extractNumbers(line) {
		value, err := strconv.ParseFloat(strings.ReplaceAll(token, ",", ""), 64)
		if err != nil {
			continue
		}
		if !grounded(value, facts) {
			ungrounded = append(ungrounded, token)
		}
	}
	return ungrounded
}

// extractNumbers pulls numeric tokens out of prose, skipping tokens
// glued to letters ("1Y", "401k") and date shapes.
func extractNumbers(text string) []string {
	cleaned := datePattern.ReplaceAllString(text, " ")

	var numbers []string
	for _, loc := range numberPattern.FindAllStringIndex(cleaned, -1) {
		start, end := loc[0], loc[1]
		if start > 0 && isLetter(cleaned[start-1]) {
			continue
		}
		if end < len(cleaned) && isLetter(cleaned[end]) {
			continue
		}
		numbers = append(numbers, cleaned[start:end])
	}
	return numbers
}

func isLetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

func grounded(value float64, facts []float64) bool {
	for _, fact := range facts {
		if value == fact || -value == fact {
			return true
		}
		diff := math.Abs(value - fact)
		if diff <= groundingTolerance || diff <= groundingTolerance*math.Abs(fact) {
			return true
		}
	}
	return false
}

// collectFacts gathers every number reachable in the result payloads:
// JSON numbers plus numeric tokens inside string values (risk rule
// messages carry their thresholds as prose).
func collectFacts(results []tools.Result) []float64 {
	var facts []float64
	for _, result := range results {
		if result.Data == nil {
			continue
		}
		raw, err := json.Marshal(result.Data)
		if err != nil {
			continue
		}
		var decoded any
		if err := json.Unmarshal(raw, &decoded); err != nil {
			continue
		}
		facts = walkFacts(decoded, facts)
	}
	return facts
}

func walkFacts(node any, facts []float64) []float64 {
	switch v := node.(type) {
	case float64:
		facts = append(facts, v)
	case string:
		for _, token := range extractNumbers(v) {
			if parsed, err := strconv.ParseFloat(strings.ReplaceAll(token, ",", ""), 64); err == nil {
				facts = append(facts, parsed)
			}
		}
	case map[string]any:
		for _, child := range v {
			facts = walkFacts(child, facts)
		}
	case []any:
		for _, child := range v {
			facts = walkFacts(child, facts)
		}
	}
	return facts
}

// unreferencedSymbols finds ticker-shaped tokens in the response that
// no payload mentions. Currency codes, range labels, and transaction
// verbs pass the ticker shape test, so they sit on an allowlist.
func unreferencedSymbols(text string, results []tools.Result) []string {
	allowed := map[string]bool{
		"USD": true, "EUR": true, "GBP": true, "CHF": true, "CAD": true,
		"JPY": true, "YTD": true, "MAX": true, "BUY": true, "SELL": true,
		"HIGH": true, "LOW": true, "INFO": true,
	}
	for _, result := range results {
		for _, sym := range payloadSymbols(result) {
			allowed[strings.ToUpper(sym)] = true
		}
	}

	// The disclaimer and warning lines carry no symbols; scanning the
	// full text is safe because the allowlist covers formatting words.
	var unreferenced []string
	for _, candidate := range validation.ExtractTickers(text) {
		if !allowed[candidate] {
			unreferenced = append(unreferenced, candidate)
		}
	}
	return unreferenced
}

func payloadSymbols(result tools.Result) []string {
	var symbols []string
	for _, h := range holdingsOf(result) {
		symbols = append(symbols, h.Symbol)
	}
	switch data := result.Data.(type) {
	case *tools.MarketDataPayload:
		for sym := range data.Quotes {
			symbols = append(symbols, sym)
		}
		symbols = append(symbols, data.SymbolsMissing...)
	case *tools.TransactionsPayload:
		for _, tx := range data.Transactions {
			symbols = append(symbols, tx.Symbol)
		}
	case *tools.RiskPayload:
		// Rule messages name holdings; extract so they stay allowed.
		for _, rule := range data.RulesTriggered {
			symbols = append(symbols, validation.ExtractTickers(rule.Message)...)
		}
	case *tools.AllocationPayload:
		for _, flag := range data.RiskFlags {
			if i := strings.IndexByte(flag, ':'); i >= 0 {
				symbols = append(symbols, flag[i+1:])
			}
		}
	}
	return symbols
}
