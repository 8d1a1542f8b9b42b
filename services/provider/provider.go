// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package provider supplies portfolio data to the agent's tools.
//
// Two implementations exist: a deterministic in-memory mock used for
// development and tests, and an HTTP client for a live Ghostfolio
// instance. Both satisfy PortfolioDataProvider; tools never know which
// one they are talking to.
package provider

import (
	"context"
	"errors"
)

// ErrUnknownRange is returned when a performance range is not one of
// the supported values (1d, ytd, 1y, 5y, max).
var ErrUnknownRange = errors.New("unknown performance range")

// Provenance classifies how a tool payload was produced. Values
// fetched straight from a data source are "direct"; values computed
// from fetched data (allocation analysis, risk rules) are "derived".
type Provenance string

const (
	ProvenanceDirect  Provenance = "direct"
	ProvenanceDerived Provenance = "derived"
)

// Holding is a single position in the portfolio.
type Holding struct {
	Symbol         string  `json:"symbol"`
	Name           string  `json:"name"`
	AllocationPct  float64 `json:"allocation_pct"`
	Value          float64 `json:"value"`
	PerformancePct float64 `json:"performance_pct"`
	Sector         string  `json:"sector,omitempty"`
	Region         string  `json:"region,omitempty"`
	AssetClass     string  `json:"asset_class,omitempty"`
}

// PortfolioSummary is the aggregate view of the portfolio.
type PortfolioSummary struct {
	TotalValue    float64   `json:"total_value"`
	Currency      string    `json:"currency"`
	HoldingsCount int       `json:"holdings_count"`
	Holdings      []Holding `json:"holdings"`
}

// Performance holds return metrics for one time range.
//
// LastUpdated is kept as the raw timestamp string from the data
// source. Freshness checking downstream treats a missing or
// unparseable value as unknown freshness, so it must not be coerced
// here.
type Performance struct {
	Range        string  `json:"range"`
	ReturnPct    float64 `json:"return_pct"`
	AbsoluteGain float64 `json:"absolute_gain"`
	Currency     string  `json:"currency"`
	LastUpdated  string  `json:"last_updated,omitempty"`
}

// Transaction is a single buy or sell activity.
type Transaction struct {
	Date      string  `json:"date"`
	Type      string  `json:"type"`
	Symbol    string  `json:"symbol"`
	Quantity  float64 `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
	Fee       float64 `json:"fee"`
	Currency  string  `json:"currency"`
}

// Account is a linked brokerage account.
type Account struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Balance    float64 `json:"balance"`
	Currency   string  `json:"currency"`
	Platform   string  `json:"platform"`
	IsExcluded bool    `json:"is_excluded"`
}

// Quote is a current market quote for one symbol.
type Quote struct {
	Symbol    string  `json:"symbol"`
	Name      string  `json:"name"`
	Price     float64 `json:"price"`
	Currency  string  `json:"currency"`
	ChangePct float64 `json:"change_pct"`
}

// PortfolioDataProvider is the read interface agent tools consume.
//
// Implementations must be safe for concurrent use; the agent may
// dispatch several tool calls from one turn in parallel.
type PortfolioDataProvider interface {
	// GetPortfolioSummary returns the aggregate portfolio view.
	// accountID may be empty to include all accounts.
	GetPortfolioSummary(ctx context.Context, accountID string) (*PortfolioSummary, error)

	// GetPerformance returns return metrics for one of the supported
	// ranges: 1d, ytd, 1y, 5y, max.
	GetPerformance(ctx context.Context, queryRange string) (*Performance, error)

	// GetTransactions returns recent activities, newest first.
	GetTransactions(ctx context.Context) ([]Transaction, error)

	// GetAccounts returns all linked accounts.
	GetAccounts(ctx context.Context) ([]Account, error)

	// GetMarketData returns quotes keyed by upper-cased symbol.
	// Symbols with no quote are simply absent from the map.
	GetMarketData(ctx context.Context, symbols []string) (map[string]Quote, error)
}

// ValidRanges enumerates the performance ranges every provider must
// accept.
var ValidRanges = map[string]bool{
	"1d":  true,
	"ytd": true,
	"1y":  true,
	"5y":  true,
	"max": true,
}
