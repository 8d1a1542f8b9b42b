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
	"reflect"
	"testing"

	"github.com/AleutianAI/AleutianFolio/services/agent/tools"
	"github.com/AleutianAI/AleutianFolio/services/provider"
)

func TestExtractNumbers(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{"plain", "return is 9.80% over 3 holdings", []string{"9.80", "3"}},
		{"grouped", "value is USD 50,000.00", []string{"50,000.00"}},
		{"negative change", "MSFT moved -0.3% today", []string{"-0.3"}},
		{"range label not a number", "your 1Y return beats the 5Y one", nil},
		{"letters glued", "a 401k rollover", nil},
		{"date stripped", "on 2026-02-20: BUY 10 AAPL", []string{"10"}},
		{"timestamp stripped", "as of 2026-03-01T11:00:00Z prices moved", nil},
		{"none", "no numbers here", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := extractNumbers(tt.text)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("extractNumbers(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestGrounded_Tolerance(t *testing.T) {
	facts := []float64{9.8, 50000, 0.3}
	tests := []struct {
		value float64
		want  bool
	}{
		{9.8, true},
		{9.80, true},
		{9.81, true},    // within 0.5% relative
		{10.5, false},   // outside tolerance
		{50000, true},
		{49999.9, true}, // rounding slack
		{-0.3, true},    // sign flip for rendered losses
		{42.0, false},
	}

	for _, tt := range tests {
		if got := grounded(tt.value, facts); got != tt.want {
			t.Errorf("grounded(%v) = %v, want %v", tt.value, got, tt.want)
		}
	}
}

func TestCollectFacts_IncludesStringNumbers(t *testing.T) {
	results := []tools.Result{{
		Success: true,
		Data: &tools.RiskPayload{
			RiskLevel: "high",
			RulesTriggered: []tools.RiskRule{
				{Rule: "concentration", Severity: "high", Message: "AAPL makes up 42.5% of the portfolio, above the 30% single-holding limit"},
			},
		},
	}}

	facts := collectFacts(results)
	if !grounded(42.5, facts) {
		t.Error("expected 42.5 from rule message to be a fact")
	}
	if !grounded(30, facts) {
		t.Error("expected 30 from rule message to be a fact")
	}
}

func TestGroundText_StripsOnlyUngroundedLines(t *testing.T) {
	results := []tools.Result{{
		Success: true,
		Data:    &provider.Performance{Range: "ytd", ReturnPct: 9.8, AbsoluteGain: 4900, Currency: "USD"},
	}}

	text := "Your YTD portfolio return is 9.80% (USD 4,900.00 absolute).\nAnalysts expect 25% next year."
	out, warnings := groundText(text, results)

	if out != "Your YTD portfolio return is 9.80% (USD 4,900.00 absolute)." {
		t.Errorf("unexpected text: %q", out)
	}
	if len(warnings) != 1 || warnings[0] != "ungrounded_claim:25" {
		t.Errorf("unexpected warnings: %v", warnings)
	}
}

func TestUnreferencedSymbols(t *testing.T) {
	results := []tools.Result{{
		Success: true,
		Data: &provider.PortfolioSummary{
			Currency: "USD",
			Holdings: []provider.Holding{{Symbol: "AAPL"}, {Symbol: "VTI"}},
		},
	}}

	got := unreferencedSymbols("AAPL and VTI are fine but TSLA is not held. Total in USD.", results)
	if !reflect.DeepEqual(got, []string{"TSLA"}) {
		t.Errorf("unreferencedSymbols = %v, want [TSLA]", got)
	}

	if got := unreferencedSymbols("You hold AAPL and VTI.", results); got != nil {
		t.Errorf("expected nil, got %v", got)
	}
}

func TestUnreferencedSymbols_MissingQuotesAllowed(t *testing.T) {
	results := []tools.Result{{
		Success: true,
		Data: &tools.MarketDataPayload{
			Quotes:         map[string]provider.Quote{"MSFT": {Symbol: "MSFT"}},
			SymbolsMissing: []string{"ZZZZ"},
		},
	}}

	if got := unreferencedSymbols("MSFT quoted. Symbols not found: ZZZZ", results); got != nil {
		t.Errorf("expected nil, got %v", got)
	}
}
