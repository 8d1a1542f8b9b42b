// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package provider

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// =============================================================================
// Mock datasets
// =============================================================================

var mockHoldings = []Holding{
	{
		Symbol:         "AAPL",
		Name:           "Apple Inc.",
		AllocationPct:  42.5,
		Value:          21250.0,
		PerformancePct: 12.4,
		Sector:         "Technology",
		Region:         "North America",
		AssetClass:     "Equity",
	},
	{
		Symbol:         "MSFT",
		Name:           "Microsoft Corp.",
		AllocationPct:  32.5,
		Value:          16250.0,
		PerformancePct: 8.2,
		Sector:         "Technology",
		Region:         "North America",
		AssetClass:     "Equity",
	},
	{
		Symbol:         "VTI",
		Name:           "Vanguard Total Stock Market ETF",
		AllocationPct:  25.0,
		Value:          12500.0,
		PerformancePct: 6.1,
		Sector:         "Diversified",
		Region:         "North America",
		AssetClass:     "ETF",
	},
}

var mockPerformance = map[string]Performance{
	"1d":  {Range: "1d", ReturnPct: 0.3, AbsoluteGain: 150.0, Currency: "USD"},
	"ytd": {Range: "ytd", ReturnPct: 9.8, AbsoluteGain: 4900.0, Currency: "USD"},
	"1y":  {Range: "1y", ReturnPct: 15.2, AbsoluteGain: 7600.0, Currency: "USD"},
	"5y":  {Range: "5y", ReturnPct: 58.1, AbsoluteGain: 29050.0, Currency: "USD"},
	"max": {Range: "max", ReturnPct: 75.0, AbsoluteGain: 37500.0, Currency: "USD"},
}

var mockTransactions = []Transaction{
	{Date: "2026-02-20", Type: "BUY", Symbol: "AAPL", Quantity: 10, UnitPrice: 184.0, Fee: 0.0, Currency: "USD"},
	{Date: "2026-01-15", Type: "BUY", Symbol: "MSFT", Quantity: 5, UnitPrice: 405.0, Fee: 0.0, Currency: "USD"},
	{Date: "2025-12-11", Type: "SELL", Symbol: "VTI", Quantity: 3, UnitPrice: 280.0, Fee: 1.0, Currency: "USD"},
}

var mockAccounts = []Account{
	{ID: "acc-1", Name: "Main Brokerage", Balance: 5420.50, Currency: "USD", Platform: "Interactive Brokers"},
	{ID: "acc-2", Name: "Retirement 401k", Balance: 32150.00, Currency: "USD", Platform: "Fidelity"},
	{ID: "acc-3", Name: "Savings", Balance: 12429.50, Currency: "USD", Platform: "Vanguard"},
}

var mockQuotes = map[string]Quote{
	"AAPL": {Symbol: "AAPL", Name: "Apple Inc.", Price: 184.0, Currency: "USD", ChangePct: 1.2},
	"MSFT": {Symbol: "MSFT", Name: "Microsoft Corp.", Price: 405.0, Currency: "USD", ChangePct: -0.3},
	"VTI":  {Symbol: "VTI", Name: "Vanguard Total Stock Market ETF", Price: 280.0, Currency: "USD", ChangePct: 0.5},
}

// =============================================================================
// MockProvider
// =============================================================================

// MockProvider serves a fixed three-holding portfolio. Every payload
// is deterministic except Performance.LastUpdated, which is stamped at
// call time so freshness checks behave as they would against live
// data.
//
// Thread Safety: safe for concurrent use; all state is read-only.
type MockProvider struct {
	now func() time.Time
}

// MockOption customizes a MockProvider.
type MockOption func(*MockProvider)

// WithClock overrides the timestamp source. Tests use this to produce
// stale or invalid performance timestamps.
func WithClock(now func() time.Time) MockOption {
	return func(m *MockProvider) {
		m.now = now
	}
}

// NewMockProvider builds a provider over the built-in datasets.
func NewMockProvider(opts ...MockOption) *MockProvider {
	m := &MockProvider{now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *MockProvider) GetPortfolioSummary(_ context.Context, _ string) (*PortfolioSummary, error) {
	holdings := make([]Holding, len(mockHoldings))
	copy(holdings, mockHoldings)

	var total float64
	for _, h := range holdings {
		total += h.Value
	}
	return &PortfolioSummary{
		TotalValue:    total,
		Currency:      "USD",
		HoldingsCount: len(holdings),
		Holdings:      holdings,
	}, nil
}

func (m *MockProvider) GetPerformance(_ context.Context, queryRange string) (*Performance, error) {
	perf, ok := mockPerformance[queryRange]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRange, queryRange)
	}
	perf.LastUpdated = m.now().UTC().Format(time.RFC3339)
	return &perf, nil
}

func (m *MockProvider) GetTransactions(_ context.Context) ([]Transaction, error) {
	txs := make([]Transaction, len(mockTransactions))
	copy(txs, mockTransactions)
	return txs, nil
}

func (m *MockProvider) GetAccounts(_ context.Context) ([]Account, error) {
	accounts := make([]Account, len(mockAccounts))
	copy(accounts, mockAccounts)
	return accounts, nil
}

func (m *MockProvider) GetMarketData(_ context.Context, symbols []string) (map[string]Quote, error) {
	quotes := make(map[string]Quote)
	for _, sym := range symbols {
		upper := strings.ToUpper(strings.TrimSpace(sym))
		if q, ok := mockQuotes[upper]; ok {
			quotes[upper] = q
		}
	}
	return quotes, nil
}
