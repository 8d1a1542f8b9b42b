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
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianFolio/services/agent/safety"
	"github.com/AleutianAI/AleutianFolio/services/agent/synthesis"
	"github.com/AleutianAI/AleutianFolio/services/agent/tools"
	"github.com/AleutianAI/AleutianFolio/services/provider"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func summaryResult() tools.Result {
	return tools.Result{
		Tool:       "get_portfolio_summary",
		Success:    true,
		Provenance: provider.ProvenanceDirect,
		Data: &provider.PortfolioSummary{
			TotalValue:    50000,
			Currency:      "USD",
			HoldingsCount: 3,
			Holdings: []provider.Holding{
				{Symbol: "AAPL", Name: "Apple Inc.", Value: 21250, AllocationPct: 42.5},
				{Symbol: "MSFT", Name: "Microsoft Corp.", Value: 16250, AllocationPct: 32.5},
				{Symbol: "VTI", Name: "Vanguard Total Stock Market ETF", Value: 12500, AllocationPct: 25.0},
			},
		},
	}
}

func TestRun_GroundedSummary_HighConfidence(t *testing.T) {
	result := summaryResult()
	text, grounded := synthesis.Synthesize(result)
	require.True(t, grounded)

	out, report, score := New().Run(Input{
		Query:    "show my portfolio",
		Text:     text,
		Grounded: grounded,
		Results:  []tools.Result{result},
	})

	assert.Equal(t, 0.90, score)
	assert.Equal(t, "high", report.ConfidenceLevel)
	assert.True(t, report.FactGrounded)
	assert.True(t, report.DisclaimerPresent)
	assert.True(t, report.NoTradeAdvice)
	assert.False(t, report.StaleDataWarning)
	assert.Empty(t, report.GroundingWarnings)
	assert.Empty(t, report.OutputWarnings)
	assert.Equal(t, 1, strings.Count(out, safety.Disclaimer))
}

func TestRun_AppendsDisclaimerOnce(t *testing.T) {
	out, report, _ := New().Run(Input{
		Query:    "hello",
		Text:     "No numbers here.",
		Grounded: true,
		Results:  []tools.Result{{Success: true, Data: &tools.AccountsPayload{}}},
	})

	assert.True(t, report.DisclaimerPresent)
	assert.Equal(t, 1, strings.Count(out, safety.Disclaimer))

	// Already-present disclaimer is not duplicated.
	out2, _, _ := New().Run(Input{
		Query:    "hello",
		Text:     out,
		Grounded: true,
		Results:  []tools.Result{{Success: true, Data: &tools.AccountsPayload{}}},
	})
	assert.Equal(t, 1, strings.Count(out2, safety.Disclaimer))
}

func TestRun_UngroundedLineStripped(t *testing.T) {
	result := summaryResult()
	text, _ := synthesis.Synthesize(result)
	text = strings.Replace(text, "\n\n"+safety.Disclaimer,
		"\nYour portfolio doubled by 99.9% last week.\n\n"+safety.Disclaimer, 1)

	out, report, score := New().Run(Input{
		Query:    "show my portfolio",
		Text:     text,
		Grounded: true,
		Results:  []tools.Result{result},
	})

	assert.NotContains(t, out, "99.9%")
	assert.Contains(t, out, "USD 50,000.00")
	assert.False(t, report.FactGrounded)
	assert.Contains(t, report.GroundingWarnings, "ungrounded_claim:99.9")
	assert.Equal(t, 0.65, score)
	assert.Equal(t, "medium", report.ConfidenceLevel)
}

func TestRun_StaleData(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name        string
		lastUpdated string
		wantStale   bool
	}{
		{"fresh", now.Add(-time.Hour).Format(time.RFC3339), false},
		{"exactly stale", now.Add(-7 * time.Hour).Format(time.RFC3339), true},
		{"missing", "", true},
		{"garbage", "not-a-timestamp", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			perf := &provider.Performance{
				Range: "ytd", ReturnPct: 9.8, AbsoluteGain: 4900,
				Currency: "USD", LastUpdated: tt.lastUpdated,
			}
			result := tools.Result{
				Tool: "get_performance", Success: true,
				Provenance: provider.ProvenanceDirect, Data: perf,
			}
			text, _ := synthesis.Synthesize(result)

			out, report, score := New(WithNow(fixedClock(now))).Run(Input{
				Query:            "how is my performance",
				Text:             text,
				Grounded:         true,
				Results:          []tools.Result{result},
				FreshnessChecked: true,
			})

			if tt.wantStale {
				assert.True(t, report.StaleDataWarning)
				assert.Contains(t, out, StaleDataWarning)
				assert.Equal(t, 0.65, score)
			} else {
				assert.False(t, report.StaleDataWarning)
				assert.NotContains(t, out, StaleDataWarning)
				assert.Equal(t, 0.90, score)
			}
		})
	}
}

func TestRun_FreshnessNotCheckedSkipsWarning(t *testing.T) {
	result := summaryResult()
	text, _ := synthesis.Synthesize(result)

	out, report, _ := New().Run(Input{
		Query:    "show my portfolio",
		Text:     text,
		Grounded: true,
		Results:  []tools.Result{result},
	})

	assert.False(t, report.StaleDataWarning)
	assert.NotContains(t, out, StaleDataWarning)
}

func TestRun_AllocationSumMismatch(t *testing.T) {
	result := summaryResult()
	summary := result.Data.(*provider.PortfolioSummary)
	summary.Holdings[0].AllocationPct = 45.0 // sum now 102.5

	text, _ := synthesis.Synthesize(result)
	_, report, score := New().Run(Input{
		Query:    "show my portfolio",
		Text:     text,
		Grounded: true,
		Results:  []tools.Result{result},
	})

	assert.Contains(t, report.OutputWarnings, "allocation_sum_mismatch:102.5%")
	assert.Equal(t, 0.65, score)
}

func TestRun_UnreferencedSymbol(t *testing.T) {
	result := summaryResult()
	text, _ := synthesis.Synthesize(result)
	text = strings.Replace(text, "\n\n"+safety.Disclaimer,
		"\nConsider also TSLA.\n\n"+safety.Disclaimer, 1)

	_, report, score := New().Run(Input{
		Query:    "show my portfolio",
		Text:     text,
		Grounded: true,
		Results:  []tools.Result{result},
	})

	assert.Contains(t, report.OutputWarnings, "unreferenced_symbol:TSLA")
	assert.Equal(t, 0.65, score)
}

func TestRun_ToolFailureIsLowConfidence(t *testing.T) {
	result := tools.Result{
		Tool: "get_performance", Success: false,
		Error: &tools.ToolError{Code: "tool_timeout", Message: "tool get_performance timed out after 10s"},
	}
	text, grounded := synthesis.Synthesize(result)

	_, report, score := New().Run(Input{
		Query:    "how is my performance",
		Text:     text,
		Grounded: grounded,
		Results:  []tools.Result{result},
	})

	assert.Equal(t, 0.40, score)
	assert.Equal(t, "low", report.ConfidenceLevel)
}

func TestRun_DerivedStartsMedium(t *testing.T) {
	risk := tools.Result{
		Tool: "check_risk_rules", Success: true,
		Provenance: provider.ProvenanceDerived,
		Data: &tools.RiskPayload{
			RiskLevel: "high",
			RulesTriggered: []tools.RiskRule{
				{Rule: "concentration", Severity: "high", Message: "AAPL makes up 42.5% of the portfolio, above the 30% single-holding limit"},
			},
		},
	}
	text, grounded := synthesis.Synthesize(risk)

	_, report, score := New().Run(Input{
		Query:    "is my portfolio risky",
		Text:     text,
		Grounded: grounded,
		Results:  []tools.Result{risk},
	})

	assert.Equal(t, 0.65, score)
	assert.Equal(t, "medium", report.ConfidenceLevel)
	assert.True(t, report.FactGrounded)
}

func TestRun_DegradationsStack(t *testing.T) {
	// Derived provenance plus a partial turn lands two tiers down.
	risk := tools.Result{
		Tool: "check_risk_rules", Success: true,
		Provenance: provider.ProvenanceDerived,
		Data:       &tools.RiskPayload{RiskLevel: "low"},
	}
	text, grounded := synthesis.Synthesize(risk)

	_, report, score := New().Run(Input{
		Query:    "is my portfolio risky",
		Text:     text,
		Grounded: grounded,
		Results:  []tools.Result{risk},
		Partial:  true,
	})

	assert.Equal(t, 0.40, score)
	assert.Equal(t, "low", report.ConfidenceLevel)
	assert.True(t, report.Partial)
}

func TestRun_NoResultsIsLow(t *testing.T) {
	_, report, score := New().Run(Input{
		Query:    "hello",
		Text:     "Hello there.",
		Grounded: false,
	})
	assert.Equal(t, 0.40, score)
	assert.Equal(t, "low", report.ConfidenceLevel)
}

func TestRun_TradeAdviceQueryReported(t *testing.T) {
	_, report, _ := New().Run(Input{
		Query:    "should I buy AAPL",
		Text:     "refused",
		Grounded: false,
	})
	assert.False(t, report.NoTradeAdvice)
}
