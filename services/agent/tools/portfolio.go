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
	"fmt"
	"log/slog"
	"net"
	"sort"
	"strings"

	"github.com/AleutianAI/AleutianFolio/pkg/validation"
	"github.com/AleutianAI/AleutianFolio/services/provider"
)

// =============================================================================
// Payload types
// =============================================================================

// TransactionsPayload is the get_transactions result.
type TransactionsPayload struct {
	Transactions []provider.Transaction `json:"transactions"`
	TotalCount   int                    `json:"total_count"`
}

// AccountsPayload is the get_account_details result.
type AccountsPayload struct {
	Accounts     []provider.Account `json:"accounts"`
	AccountCount int                `json:"account_count"`
	TotalBalance float64            `json:"total_balance"`
	Currency     string             `json:"currency"`
}

// MarketDataPayload is the get_market_data result. SymbolsMissing
// lists requested symbols the data source had no quote for.
type MarketDataPayload struct {
	Quotes         map[string]provider.Quote `json:"quotes"`
	SymbolsMissing []string                  `json:"symbols_missing,omitempty"`
}

// AllocationPayload is the analyze_allocation result. Percentages are
// allocation shares summing to roughly 100.
type AllocationPayload struct {
	HoldingsCount int                `json:"holdings_count"`
	Holdings      []provider.Holding `json:"holdings"`
	BySector      map[string]float64 `json:"by_sector"`
	ByRegion      map[string]float64 `json:"by_region"`
	ByAssetClass  map[string]float64 `json:"by_asset_class"`
	RiskFlags     []string           `json:"risk_flags,omitempty"`
}

// RiskRule is one triggered risk assessment rule.
type RiskRule struct {
	Rule     string `json:"rule"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
}

// RiskPayload is the check_risk_rules result.
type RiskPayload struct {
	RulesTriggered []RiskRule `json:"rules_triggered"`
	RiskLevel      string     `json:"risk_level"`
}

// ComparePayload is the compare_holdings_performance result: the
// summary and performance payloads of the underlying chain.
type ComparePayload struct {
	Summary     *provider.PortfolioSummary `json:"summary"`
	Performance *provider.Performance      `json:"performance"`
}

// =============================================================================
// Specs
// =============================================================================

// Deps carries what the portfolio tool handlers need.
type Deps struct {
	Provider provider.PortfolioDataProvider

	// Recorder, when non-nil, persists fetched quotes as a best-effort
	// side effect of get_market_data.
	Recorder *provider.QuoteRecorder
}

// PortfolioSpecs returns the full tool set backed by deps.
//
// The registry they are registered into owns timeout and retry
// behavior; handlers only mark retryable failures via Transient().
func PortfolioSpecs(deps Deps) []ToolSpec {
	return []ToolSpec{
		{
			Name: "get_portfolio_summary",
			Description: "Get the user's current portfolio summary including total value, currency, " +
				"number of holdings, and details of each holding (symbol, name, allocation %, " +
				"value, performance %). Use this when the user asks about their portfolio value, " +
				"holdings, or wants a general overview.",
			InputSchema: `{
				"type": "object",
				"properties": {
					"account_id": {"type": ["string", "null"], "description": "Optional account ID to filter by"}
				},
				"additionalProperties": false
			}`,
			Provenance: provider.ProvenanceDirect,
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				summary, err := deps.Provider.GetPortfolioSummary(ctx, stringArg(args, "account_id"))
				if err != nil {
					return nil, classify(err)
				}
				return summary, nil
			},
		},
		{
			Name: "get_performance",
			Description: "Get portfolio performance metrics for a specific time range. Returns return " +
				"percentage, absolute gain/loss, and currency. Valid ranges: '1d' (today), " +
				"'ytd' (year-to-date), '1y' (one year), '5y' (five years), 'max' (all time). " +
				"Use this when the user asks about returns, gains, losses, or performance.",
			InputSchema: `{
				"type": "object",
				"properties": {
					"query_range": {"type": "string", "enum": ["1d", "ytd", "1y", "5y", "max"], "description": "Time range for performance data"}
				},
				"additionalProperties": false
			}`,
			Provenance:       provider.ProvenanceDirect,
			FreshnessChecked: true,
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				queryRange := stringArg(args, "query_range")
				if queryRange == "" {
					queryRange = "ytd"
				}
				perf, err := deps.Provider.GetPerformance(ctx, queryRange)
				if err != nil {
					return nil, classify(err)
				}
				return perf, nil
			},
		},
		{
			Name: "get_transactions",
			Description: "Get recent transaction history (buys, sells). Can filter by symbol or " +
				"transaction type. Use this when the user asks about their trades, " +
				"recent buys/sells, or transaction activity.",
			InputSchema: `{
				"type": "object",
				"properties": {
					"symbol": {"type": ["string", "null"], "description": "Optional stock symbol to filter by (e.g., 'AAPL')"},
					"tx_type": {"type": ["string", "null"], "enum": ["BUY", "SELL", null], "description": "Optional transaction type filter"},
					"limit": {"type": "integer", "minimum": 1, "maximum": 50, "description": "Maximum number of transactions to return"}
				},
				"additionalProperties": false
			}`,
			Provenance: provider.ProvenanceDirect,
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				txs, err := deps.Provider.GetTransactions(ctx)
				if err != nil {
					return nil, classify(err)
				}

				symbol := strings.ToUpper(stringArg(args, "symbol"))
				txType := strings.ToUpper(stringArg(args, "tx_type"))
				limit := intArg(args, "limit", 5)

				filtered := make([]provider.Transaction, 0, len(txs))
				for _, tx := range txs {
					if symbol != "" && strings.ToUpper(tx.Symbol) != symbol {
						continue
					}
					if txType != "" && strings.ToUpper(tx.Type) != txType {
						continue
					}
					filtered = append(filtered, tx)
				}
				if len(filtered) > limit {
					filtered = filtered[:limit]
				}
				return &TransactionsPayload{Transactions: filtered, TotalCount: len(filtered)}, nil
			},
		},
		{
			Name: "get_account_details",
			Description: "Get details of the user's linked brokerage accounts including account name, " +
				"balance, currency, and platform. Use this when the user asks about their " +
				"accounts, cash balances, or which brokerages they use.",
			InputSchema: `{
				"type": "object",
				"properties": {
					"account_id": {"type": ["string", "null"], "description": "Optional account ID for a specific account"}
				},
				"additionalProperties": false
			}`,
			Provenance: provider.ProvenanceDirect,
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				accounts, err := deps.Provider.GetAccounts(ctx)
				if err != nil {
					return nil, classify(err)
				}

				if accountID := stringArg(args, "account_id"); accountID != "" {
					filtered := accounts[:0:0]
					for _, acc := range accounts {
						if acc.ID == accountID {
							filtered = append(filtered, acc)
						}
					}
					accounts = filtered
				}

				payload := &AccountsPayload{Accounts: accounts, AccountCount: len(accounts), Currency: "USD"}
				for _, acc := range accounts {
					payload.TotalBalance += acc.Balance
					payload.Currency = acc.Currency
				}
				return payload, nil
			},
		},
		{
			Name: "get_market_data",
			Description: "Look up current market data (price, daily change) for specific stock or ETF " +
				"symbols. Use this when the user asks about current prices, market quotes, " +
				"or how specific symbols are doing in the market.",
			InputSchema: `{
				"type": "object",
				"properties": {
					"symbols": {"type": "array", "items": {"type": "string"}, "minItems": 1, "description": "List of stock/ETF symbols to look up (e.g., ['AAPL', 'MSFT'])"}
				},
				"required": ["symbols"],
				"additionalProperties": false
			}`,
			Provenance: provider.ProvenanceDirect,
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				symbols := make([]string, 0, len(stringSliceArg(args, "symbols")))
				for _, raw := range stringSliceArg(args, "symbols") {
					sym, err := validation.SanitizeTicker(raw)
					if err != nil {
						return nil, err
					}
					symbols = append(symbols, sym)
				}

				quotes, err := deps.Provider.GetMarketData(ctx, symbols)
				if err != nil {
					return nil, classify(err)
				}

				var missing []string
				for _, sym := range symbols {
					if _, ok := quotes[sym]; !ok {
						missing = append(missing, sym)
					}
				}
				sort.Strings(missing)

				if deps.Recorder != nil && len(quotes) > 0 {
					if err := deps.Recorder.Record(ctx, quotes); err != nil {
						slog.Warn("Quote recording failed", slog.String("error", err.Error()))
					}
				}
				return &MarketDataPayload{Quotes: quotes, SymbolsMissing: missing}, nil
			},
		},
		{
			Name: "analyze_allocation",
			Description: "Analyze the portfolio's asset allocation broken down by sector, region, " +
				"and asset class. Also identifies risk flags like high concentration or " +
				"low diversification. Use this when the user asks about their allocation, " +
				"diversification, sector exposure, or wants a portfolio breakdown.",
			InputSchema: `{"type": "object", "properties": {}, "additionalProperties": false}`,
			Provenance:  provider.ProvenanceDerived,
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				summary, err := deps.Provider.GetPortfolioSummary(ctx, "")
				if err != nil {
					return nil, classify(err)
				}
				return analyzeAllocation(summary), nil
			},
		},
		{
			Name: "check_risk_rules",
			Description: "Run risk assessment rules against the portfolio. Checks for concentration " +
				"risk (>30% in single holding), low diversification (<5 holdings), and " +
				"asset class concentration (>80% in one class). Returns triggered rules " +
				"with severity levels. Use this when the user asks about portfolio risk, " +
				"whether their portfolio is balanced, or wants a health check.",
			InputSchema: `{"type": "object", "properties": {}, "additionalProperties": false}`,
			Provenance:  provider.ProvenanceDerived,
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				summary, err := deps.Provider.GetPortfolioSummary(ctx, "")
				if err != nil {
					return nil, classify(err)
				}
				return checkRiskRules(summary), nil
			},
		},
		{
			Name: "compare_holdings_performance",
			Description: "Compare the portfolio's holdings against its performance for a time range. " +
				"Combines the portfolio summary with performance metrics in one answer. Use " +
				"this when the user asks how their holdings compare to overall returns.",
			InputSchema: `{
				"type": "object",
				"properties": {
					"account_id": {"type": ["string", "null"], "description": "Optional account ID to filter by"},
					"query_range": {"type": "string", "enum": ["1d", "ytd", "1y", "5y", "max"], "description": "Time range for performance data"}
				},
				"additionalProperties": false
			}`,
			Provenance:       provider.ProvenanceDirect,
			FreshnessChecked: true,
			Expands:          []string{"get_portfolio_summary", "get_performance"},
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				summary, err := deps.Provider.GetPortfolioSummary(ctx, stringArg(args, "account_id"))
				if err != nil {
					return nil, classify(err)
				}
				queryRange := stringArg(args, "query_range")
				if queryRange == "" {
					queryRange = "ytd"
				}
				perf, err := deps.Provider.GetPerformance(ctx, queryRange)
				if err != nil {
					return nil, classify(err)
				}
				return &ComparePayload{Summary: summary, Performance: perf}, nil
			},
		},
	}
}

// =============================================================================
// Derived analytics
// =============================================================================

const (
	concentrationLimitPct = 30.0
	minDiversification    = 5
	assetClassLimitPct    = 80.0
)

func analyzeAllocation(summary *provider.PortfolioSummary) *AllocationPayload {
	payload := &AllocationPayload{
		HoldingsCount: summary.HoldingsCount,
		Holdings:      summary.Holdings,
		BySector:      map[string]float64{},
		ByRegion:      map[string]float64{},
		ByAssetClass:  map[string]float64{},
	}

	for _, h := range summary.Holdings {
		payload.BySector[orUnknown(h.Sector)] += h.AllocationPct
		payload.ByRegion[orUnknown(h.Region)] += h.AllocationPct
		payload.ByAssetClass[orUnknown(h.AssetClass)] += h.AllocationPct

		if h.AllocationPct > concentrationLimitPct {
			payload.RiskFlags = append(payload.RiskFlags, "high_concentration:"+h.Symbol)
		}
	}
	if summary.HoldingsCount < minDiversification {
		payload.RiskFlags = append(payload.RiskFlags, "low_diversification")
	}
	for class, pct := range payload.ByAssetClass {
		if pct > assetClassLimitPct {
			payload.RiskFlags = append(payload.RiskFlags, "asset_class_concentration:"+class)
		}
	}
	sort.Strings(payload.RiskFlags)
	return payload
}

func checkRiskRules(summary *provider.PortfolioSummary) *RiskPayload {
	payload := &RiskPayload{RiskLevel: "low"}

	for _, h := range summary.Holdings {
		if h.AllocationPct > concentrationLimitPct {
			payload.RulesTriggered = append(payload.RulesTriggered, RiskRule{
				Rule:     "concentration",
				Severity: "high",
				Message: fmt.Sprintf("%s makes up %.1f%% of the portfolio, above the %.0f%% single-holding limit",
					h.Symbol, h.AllocationPct, concentrationLimitPct),
			})
		}
	}
	if summary.HoldingsCount < minDiversification {
		payload.RulesTriggered = append(payload.RulesTriggered, RiskRule{
			Rule:     "diversification",
			Severity: "medium",
			Message: fmt.Sprintf("Portfolio has only %d holdings, below the recommended minimum of %d",
				summary.HoldingsCount, minDiversification),
		})
	}

	byClass := map[string]float64{}
	for _, h := range summary.Holdings {
		byClass[orUnknown(h.AssetClass)] += h.AllocationPct
	}
	classes := make([]string, 0, len(byClass))
	for class := range byClass {
		classes = append(classes, class)
	}
	sort.Strings(classes)
	for _, class := range classes {
		if byClass[class] > assetClassLimitPct {
			payload.RulesTriggered = append(payload.RulesTriggered, RiskRule{
				Rule:     "asset_class_concentration",
				Severity: "medium",
				Message: fmt.Sprintf("%.1f%% of the portfolio sits in a single asset class (%s), above the %.0f%% limit",
					byClass[class], class, assetClassLimitPct),
			})
		}
	}

	for _, rule := range payload.RulesTriggered {
		if rule.Severity == "high" {
			payload.RiskLevel = "high"
			break
		}
		payload.RiskLevel = "medium"
	}
	return payload
}

func orUnknown(s string) string {
	if s == "" {
		return "Unknown"
	}
	return s
}

// classify wraps network-shaped provider failures as transient so the
// registry retries them once.
func classify(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Transient(err)
	}
	msg := err.Error()
	if strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "unexpected status 5") {
		return Transient(err)
	}
	return err
}

// =============================================================================
// Argument helpers
// =============================================================================

func stringArg(args map[string]any, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}

func intArg(args map[string]any, key string, fallback int) int {
	switch v := args[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return fallback
	}
}

func stringSliceArg(args map[string]any, key string) []string {
	raw, ok := args[key].([]any)
	if !ok {
		if typed, ok := args[key].([]string); ok {
			return typed
		}
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
