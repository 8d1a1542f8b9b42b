// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package synthesis renders tool payloads into user-facing text.
//
// Every rendering ends with the standard disclaimer. The grounded
// return value reports whether the key numeric claims in the text were
// lifted straight from the payload; the verification pipeline degrades
// confidence when it is false.
package synthesis

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/AleutianAI/AleutianFolio/services/agent/safety"
	"github.com/AleutianAI/AleutianFolio/services/agent/tools"
	"github.com/AleutianAI/AleutianFolio/services/provider"
)

// Synthesize renders one tool result.
//
// Outputs:
//
//	string - Response text, disclaimer included.
//	bool   - Whether the text's numeric claims are grounded in the
//	         payload.
func Synthesize(result tools.Result) (string, bool) {
	if !result.Success {
		message := "Unknown tool error"
		if result.Error != nil {
			message = result.Error.Message
		}
		return withDisclaimer("I could not complete that request due to a tool error: " + message), false
	}

	switch data := result.Data.(type) {
	case *provider.PortfolioSummary:
		return renderSummary(data)
	case *provider.Performance:
		return renderPerformance(data)
	case *tools.ComparePayload:
		return renderCompare(data)
	case *tools.AccountsPayload:
		return renderAccounts(data)
	case *tools.MarketDataPayload:
		return renderMarketData(data)
	case *tools.AllocationPayload:
		return renderAllocation(data)
	case *tools.RiskPayload:
		return renderRisk(data)
	case *tools.TransactionsPayload:
		return renderTransactions(data)
	default:
		dump, err := json.MarshalIndent(result.Data, "", "  ")
		if err != nil {
			dump = []byte("{}")
		}
		return withDisclaimer("Here is the data I retrieved:\n" + string(dump)), true
	}
}

func renderSummary(data *provider.PortfolioSummary) (string, bool) {
	var b strings.Builder
	fmt.Fprintf(&b, "Your portfolio value is %s across %d holdings.",
		FormatCurrency(data.TotalValue, data.Currency), data.HoldingsCount)

	if len(data.Holdings) > 0 {
		b.WriteString("\n\nTop holdings:")
		holdings := make([]provider.Holding, len(data.Holdings))
		copy(holdings, data.Holdings)
		sort.SliceStable(holdings, func(i, j int) bool { return holdings[i].Value > holdings[j].Value })
		if len(holdings) > 10 {
			holdings = holdings[:10]
		}
		for _, h := range holdings {
			fmt.Fprintf(&b, "\n  - %s (%s): %s (%.1f%%)",
				h.Symbol, h.Name, FormatCurrency(h.Value, data.Currency), h.AllocationPct)
		}
	}

	text := withDisclaimer(b.String())
	grounded := strings.Contains(text, fmt.Sprintf("%d holdings", data.HoldingsCount)) &&
		strings.Contains(text, FormatCurrency(data.TotalValue, data.Currency))
	return text, grounded
}

func renderPerformance(data *provider.Performance) (string, bool) {
	text := withDisclaimer(fmt.Sprintf("Your %s portfolio return is %.2f%% (%s absolute).",
		strings.ToUpper(data.Range), data.ReturnPct, FormatCurrency(data.AbsoluteGain, data.Currency)))
	grounded := strings.Contains(text, fmt.Sprintf("%.2f%%", data.ReturnPct)) &&
		strings.Contains(text, FormatCurrency(data.AbsoluteGain, data.Currency))
	return text, grounded
}

func renderCompare(data *tools.ComparePayload) (string, bool) {
	summary := data.Summary
	perf := data.Performance
	text := withDisclaimer(fmt.Sprintf(
		"Compared to your total portfolio value of %s across %d holdings, your %s return is %.2f%% (%s absolute).",
		FormatCurrency(summary.TotalValue, summary.Currency), summary.HoldingsCount,
		strings.ToUpper(perf.Range), perf.ReturnPct, FormatCurrency(perf.AbsoluteGain, perf.Currency)))
	grounded := strings.Contains(text, FormatCurrency(summary.TotalValue, summary.Currency)) &&
		strings.Contains(text, fmt.Sprintf("%.2f%%", perf.ReturnPct)) &&
		strings.Contains(text, FormatCurrency(perf.AbsoluteGain, perf.Currency))
	return text, grounded
}

func renderAccounts(data *tools.AccountsPayload) (string, bool) {
	if len(data.Accounts) == 0 {
		return withDisclaimer("No accounts found."), true
	}
	var b strings.Builder
	fmt.Fprintf(&b, "You have %d account(s) with a total cash balance of %s:",
		data.AccountCount, FormatCurrency(data.TotalBalance, data.Currency))
	for _, acc := range data.Accounts {
		platform := acc.Platform
		if platform == "" {
			platform = "Unknown"
		}
		fmt.Fprintf(&b, "\n  - %s (%s): %s", acc.Name, platform, FormatCurrency(acc.Balance, acc.Currency))
	}
	return withDisclaimer(b.String()), true
}

func renderMarketData(data *tools.MarketDataPayload) (string, bool) {
	if len(data.Quotes) == 0 {
		return withDisclaimer("No market data found for the requested symbols."), true
	}

	symbols := make([]string, 0, len(data.Quotes))
	for sym := range data.Quotes {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	var b strings.Builder
	b.WriteString("Current market data:")
	for _, sym := range symbols {
		q := data.Quotes[sym]
		direction := ""
		if q.ChangePct >= 0 {
			direction = "+"
		}
		fmt.Fprintf(&b, "\n  - %s (%s): %s %.2f (%s%.1f%%)",
			sym, q.Name, q.Currency, q.Price, direction, q.ChangePct)
	}
	if len(data.SymbolsMissing) > 0 {
		fmt.Fprintf(&b, "\n  Symbols not found: %s", strings.Join(data.SymbolsMissing, ", "))
	}
	return withDisclaimer(b.String()), true
}

func renderAllocation(data *tools.AllocationPayload) (string, bool) {
	var b strings.Builder
	fmt.Fprintf(&b, "Portfolio allocation analysis (%d holdings):", data.HoldingsCount)
	if len(data.BySector) > 0 {
		fmt.Fprintf(&b, "\n  Sectors: %s", formatShares(data.BySector))
	}
	if len(data.ByAssetClass) > 0 {
		fmt.Fprintf(&b, "\n  Asset classes: %s", formatShares(data.ByAssetClass))
	}
	if len(data.RiskFlags) > 0 {
		fmt.Fprintf(&b, "\n  Risk flags: %s", strings.Join(data.RiskFlags, ", "))
	} else {
		b.WriteString("\n  No risk flags detected.")
	}
	return withDisclaimer(b.String()), true
}

func renderRisk(data *tools.RiskPayload) (string, bool) {
	var b strings.Builder
	fmt.Fprintf(&b, "Risk assessment (overall: %s):", data.RiskLevel)
	if len(data.RulesTriggered) == 0 {
		b.WriteString("\n  No risk rules triggered. Your portfolio looks well-balanced.")
	} else {
		for _, rule := range data.RulesTriggered {
			fmt.Fprintf(&b, "\n  [%s] %s", strings.ToUpper(rule.Severity), rule.Message)
		}
	}
	return withDisclaimer(b.String()), true
}

func renderTransactions(data *tools.TransactionsPayload) (string, bool) {
	if len(data.Transactions) == 0 {
		return withDisclaimer("I did not find matching recent transactions."), true
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Here are your %d most recent transactions:", data.TotalCount)
	for _, tx := range data.Transactions {
		fmt.Fprintf(&b, "\n  - %s: %s %g %s at %s %.2f (fee: %g)",
			tx.Date, tx.Type, tx.Quantity, tx.Symbol, tx.Currency, tx.UnitPrice, tx.Fee)
	}
	text := withDisclaimer(b.String())
	grounded := strings.Contains(text, fmt.Sprintf("%d most recent transactions", data.TotalCount))
	return text, grounded
}

func formatShares(shares map[string]float64) string {
	keys := make([]string, 0, len(shares))
	for key := range shares {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, fmt.Sprintf("%s: %.1f%%", key, shares[key]))
	}
	return strings.Join(parts, ", ")
}

func withDisclaimer(text string) string {
	return text + "\n\n" + safety.Disclaimer
}

// FormatCurrency renders "USD 50,000.00" with thousands grouping.
func FormatCurrency(value float64, currency string) string {
	formatted := fmt.Sprintf("%.2f", value)
	negative := strings.HasPrefix(formatted, "-")
	if negative {
		formatted = formatted[1:]
	}

	parts := strings.SplitN(formatted, ".", 2)
	whole := parts[0]

	var grouped strings.Builder
	for i, digit := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			grouped.WriteByte(',')
		}
		grouped.WriteRune(digit)
	}

	sign := ""
	if negative {
		sign = "-"
	}
	return fmt.Sprintf("%s %s%s.%s", currency, sign, grouped.String(), parts[1])
}
