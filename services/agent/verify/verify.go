// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package verify implements the response verification pipeline.
//
// Checks run in a fixed order over the synthesized text and the tool
// payloads backing it:
//
//  1. fact grounding - numeric claims in the text must trace to
//     payload values; ungrounded lines are stripped
//  2. disclaimer enforcement - the standard disclaimer is appended
//     when absent, exactly once
//  3. freshness - timestamped payloads older than the horizon get a
//     staleness warning
//  4. output validation - mentioned symbols must come from the
//     payloads; allocation shares must sum to ~100
//  5. confidence scoring - provenance sets the baseline tier, every
//     degradation moves one tier down
//
// Violations degrade confidence; they never discard the response.
package verify

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/AleutianAI/AleutianFolio/services/agent/safety"
	"github.com/AleutianAI/AleutianFolio/services/agent/tools"
	"github.com/AleutianAI/AleutianFolio/services/provider"
)

// DefaultFreshnessHorizon is how old a payload timestamp may be
// before the response carries a staleness warning.
const DefaultFreshnessHorizon = 6 * time.Hour

// StaleDataWarning is appended to responses built on stale payloads.
const StaleDataWarning = "Warning: Market data timestamp is missing, invalid, or older than 6 hours and may be stale."

// Confidence tiers. Provenance picks the starting tier; each
// degradation moves one tier down. Scores never leave [0.40, 0.95].
const (
	ConfidenceHigh   = 0.90
	ConfidenceMedium = 0.65
	ConfidenceLow    = 0.40
	ConfidenceCap    = 0.95
)

// Report is the verification outcome attached to a turn.
type Report struct {
	FactGrounded           bool     `json:"fact_grounded"`
	DisclaimerPresent      bool     `json:"disclaimer_present"`
	NoTradeAdvice          bool     `json:"no_trade_advice"`
	TradeAdviceRefused     bool     `json:"trade_advice_refused,omitempty"`
	PromptInjectionBlocked bool     `json:"prompt_injection_blocked,omitempty"`
	StaleDataWarning       bool     `json:"stale_data_warning"`
	ConfidenceLevel        string   `json:"confidence_level"`
	GroundingWarnings      []string `json:"grounding_warnings,omitempty"`
	OutputWarnings         []string `json:"output_warnings,omitempty"`
	Partial                bool     `json:"partial,omitempty"`
}

// Input is everything the pipeline needs for one response.
type Input struct {
	// Query is the sanitized user query, used for the no-trade-advice
	// report field.
	Query string

	// Text is the synthesized response.
	Text string

	// Grounded is the synthesizer's own claim that its numbers came
	// from the payload.
	Grounded bool

	// Results are the tool results backing the text, in request order.
	Results []tools.Result

	// FreshnessChecked applies the staleness horizon to the payloads.
	FreshnessChecked bool

	// Partial marks a turn cut off at the tool-call cap.
	Partial bool
}

// Pipeline runs the checks. Construct once and share; it is
// stateless apart from configuration.
type Pipeline struct {
	horizon time.Duration
	now     func() time.Time
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithHorizon overrides the freshness horizon.
func WithHorizon(d time.Duration) Option {
	return func(p *Pipeline) {
		p.horizon = d
	}
}

// WithNow overrides the clock, for tests.
func WithNow(now func() time.Time) Option {
	return func(p *Pipeline) {
		p.now = now
	}
}

// New builds a pipeline with the default 6h horizon.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{horizon: DefaultFreshnessHorizon, now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run executes all checks in order.
//
// Outputs:
//
//	string  - Possibly-modified response text.
//	Report  - Verification report.
//	float64 - Confidence score in [0.40, 0.95].
func (p *Pipeline) Run(in Input) (string, Report, float64) {
	text := in.Text
	report := Report{
		NoTradeAdvice: !safety.IsTradeAdvice(in.Query),
		Partial:       in.Partial,
	}

	// 1. Fact grounding.
	text, groundingWarnings := groundText(text, in.Results)
	report.GroundingWarnings = groundingWarnings
	report.FactGrounded = in.Grounded && len(groundingWarnings) == 0

	// 2. Disclaimer enforcement.
	if !strings.Contains(text, safety.Disclaimer) {
		text = strings.TrimRight(text, "\n") + "\n\n" + safety.Disclaimer
	}
	report.DisclaimerPresent = true

	// 3. Freshness.
	if in.FreshnessChecked && p.isStale(in.Results) {
		report.StaleDataWarning = true
		text = text + "\n\n" + StaleDataWarning
	}

	// 4. Output validation.
	report.OutputWarnings = validateOutput(text, in.Results)

	// 5. Confidence scoring.
	score, level := p.score(in, report)
	report.ConfidenceLevel = level

	return text, report, score
}

func (p *Pipeline) isStale(results []tools.Result) bool {
	timestamp, found := lastUpdated(results)
	if !found || timestamp == "" {
		// Unknown freshness warns the same as stale data.
		return true
	}
	parsed, err := time.Parse(time.RFC3339, timestamp)
	if err != nil {
		return true
	}
	return p.now().UTC().Sub(parsed) > p.horizon
}

func lastUpdated(results []tools.Result) (string, bool) {
	for _, result := range results {
		switch data := result.Data.(type) {
		case *provider.Performance:
			return data.LastUpdated, true
		case *tools.ComparePayload:
			if data.Performance != nil {
				return data.Performance.LastUpdated, true
			}
		}
	}
	return "", false
}

// validateOutput checks symbols and allocation sums. Violations are
// reported, never fixed up.
func validateOutput(text string, results []tools.Result) []string {
	var warnings []string

	if unreferenced := unreferencedSymbols(text, results); len(unreferenced) > 0 {
		for _, sym := range unreferenced {
			warnings = append(warnings, "unreferenced_symbol:"+sym)
		}
	}

	for _, result := range results {
		holdings := holdingsOf(result)
		if len(holdings) == 0 {
			continue
		}
		var sum float64
		for _, h := range holdings {
			sum += h.AllocationPct
		}
		if sum > 0 && math.Abs(sum-100) > 1 {
			warnings = append(warnings, fmt.Sprintf("allocation_sum_mismatch:%.1f%%", sum))
		}
	}
	return warnings
}

func holdingsOf(result tools.Result) []provider.Holding {
	switch data := result.Data.(type) {
	case *provider.PortfolioSummary:
		return data.Holdings
	case *tools.AllocationPayload:
		return data.Holdings
	case *tools.ComparePayload:
		if data.Summary != nil {
			return data.Summary.Holdings
		}
	}
	return nil
}

func (p *Pipeline) score(in Input, report Report) (float64, string) {
	allSucceeded := len(in.Results) > 0
	derived := false
	for _, result := range in.Results {
		if !result.Success {
			allSucceeded = false
		}
		if result.Provenance == provider.ProvenanceDerived {
			derived = true
		}
	}

	if !allSucceeded || !in.Grounded {
		return ConfidenceLow, "low"
	}

	tier := 0
	if derived {
		tier = 1
	}
	if report.StaleDataWarning {
		tier++
	}
	if len(report.GroundingWarnings) > 0 {
		tier++
	}
	if len(report.OutputWarnings) > 0 {
		tier++
	}
	if report.Partial {
		tier++
	}

	switch {
	case tier <= 0:
		return ConfidenceHigh, "high"
	case tier == 1:
		return ConfidenceMedium, "medium"
	default:
		return ConfidenceLow, "low"
	}
}
