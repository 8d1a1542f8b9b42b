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
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultGhostfolioTimeout = 10 * time.Second

// GhostfolioProvider reads portfolio data from a Ghostfolio server's
// REST API and maps its payloads onto the agent's types.
//
// Ghostfolio has shipped both bare-array and wrapped-object shapes
// for holdings and orders across versions, so the decoders accept
// either.
//
// Thread Safety: safe for concurrent use.
type GhostfolioProvider struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// GhostfolioOption customizes a GhostfolioProvider.
type GhostfolioOption func(*GhostfolioProvider)

// WithHTTPClient substitutes the HTTP client, mainly for tests.
func WithHTTPClient(client *http.Client) GhostfolioOption {
	return func(g *GhostfolioProvider) {
		g.httpClient = client
	}
}

// WithTimeout sets the per-request timeout (default 10s).
func WithTimeout(d time.Duration) GhostfolioOption {
	return func(g *GhostfolioProvider) {
		g.httpClient.Timeout = d
	}
}

// NewGhostfolioProvider builds a provider for the given server.
//
// Inputs:
//
//	baseURL - Server root, e.g. "https://ghostfol.io". Trailing
//	          slashes are stripped.
//	token   - Bearer token; empty sends unauthenticated requests.
//	opts    - Optional overrides.
func NewGhostfolioProvider(baseURL, token string, opts ...GhostfolioOption) *GhostfolioProvider {
	g := &GhostfolioProvider{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: defaultGhostfolioTimeout},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *GhostfolioProvider) getJSON(ctx context.Context, path string, params url.Values) (json.RawMessage, error) {
	endpoint := g.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request for %s: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")
	if g.token != "" {
		req.Header.Set("Authorization", "Bearer "+g.token)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ghostfolio request %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ghostfolio request %s: unexpected status %d", path, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read ghostfolio response %s: %w", path, err)
	}
	return json.RawMessage(body), nil
}

// ghostfolioHolding mirrors the fields we consume from the holdings
// endpoint. Alternate field names across API versions are all mapped.
type ghostfolioHolding struct {
	Symbol                   string   `json:"symbol"`
	Name                     string   `json:"name"`
	Currency                 string   `json:"currency"`
	AllocationInPercentage   *float64 `json:"allocationInPercentage"`
	MarketValue              *float64 `json:"marketValue"`
	ValueInBaseCurrency      *float64 `json:"valueInBaseCurrency"`
	PerformanceInPercentage  *float64 `json:"performanceInPercentage"`
	NetPerformancePercentage *float64 `json:"netPerformancePercentage"`
	Sector                   string   `json:"sector"`
	AssetClass               string   `json:"assetClass"`
}

func firstFloat(values ...*float64) (float64, bool) {
	for _, v := range values {
		if v != nil {
			return *v, true
		}
	}
	return 0, false
}

func (g *GhostfolioProvider) GetPortfolioSummary(ctx context.Context, accountID string) (*PortfolioSummary, error) {
	params := url.Values{}
	if accountID != "" {
		params.Set("accountId", accountID)
	}
	raw, err := g.getJSON(ctx, "/api/v2/portfolio/holdings", params)
	if err != nil {
		return nil, err
	}

	var rawHoldings []ghostfolioHolding
	if err := json.Unmarshal(raw, &rawHoldings); err != nil {
		var wrapped struct {
			Holdings []ghostfolioHolding `json:"holdings"`
		}
		if err := json.Unmarshal(raw, &wrapped); err != nil || wrapped.Holdings == nil {
			return nil, fmt.Errorf("expected holdings list or {holdings: [...]} from ghostfolio")
		}
		rawHoldings = wrapped.Holdings
	}

	summary := &PortfolioSummary{Currency: "USD"}
	for i, item := range rawHoldings {
		if item.Symbol == "" || item.Name == "" {
			return nil, fmt.Errorf("holding at index %d is missing required symbol or name", i)
		}
		value, ok := firstFloat(item.MarketValue, item.ValueInBaseCurrency)
		if !ok {
			return nil, fmt.Errorf("holding at index %d has no market value", i)
		}
		allocation, _ := firstFloat(item.AllocationInPercentage)
		performance, _ := firstFloat(item.PerformanceInPercentage, item.NetPerformancePercentage)

		summary.Holdings = append(summary.Holdings, Holding{
			Symbol:         item.Symbol,
			Name:           item.Name,
			AllocationPct:  allocation,
			Value:          value,
			PerformancePct: performance,
			Sector:         item.Sector,
			AssetClass:     item.AssetClass,
		})
		summary.TotalValue += value
	}
	summary.HoldingsCount = len(summary.Holdings)
	if len(rawHoldings) > 0 && rawHoldings[0].Currency != "" {
		summary.Currency = rawHoldings[0].Currency
	}
	return summary, nil
}

func (g *GhostfolioProvider) GetPerformance(ctx context.Context, queryRange string) (*Performance, error) {
	if !ValidRanges[queryRange] {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRange, queryRange)
	}
	params := url.Values{}
	params.Set("range", queryRange)
	raw, err := g.getJSON(ctx, "/api/v2/portfolio/performance", params)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Performance json.RawMessage `json:"performance"`
		Value       *float64        `json:"value"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("expected performance object from ghostfolio: %w", err)
	}

	var nested struct {
		NetPerformancePercentage                   *float64 `json:"netPerformancePercentage"`
		NetPerformancePercentageWithCurrencyEffect *float64 `json:"netPerformancePercentageWithCurrencyEffect"`
		NetPerformance                             *float64 `json:"netPerformance"`
		NetPerformanceWithCurrencyEffect           *float64 `json:"netPerformanceWithCurrencyEffect"`
		CurrentValueInBaseCurrency                 *float64 `json:"currentValueInBaseCurrency"`
		CurrentNetWorth                            *float64 `json:"currentNetWorth"`
		TotalInvestment                            *float64 `json:"totalInvestment"`
		LastUpdated                                string   `json:"lastUpdated"`
	}
	if err := json.Unmarshal(payload.Performance, &nested); err == nil && payload.Performance != nil {
		returnPct, ok := firstFloat(nested.NetPerformancePercentage, nested.NetPerformancePercentageWithCurrencyEffect)
		if ok {
			gain, haveGain := firstFloat(nested.NetPerformance, nested.NetPerformanceWithCurrencyEffect)
			if !haveGain {
				current, haveCurrent := firstFloat(nested.CurrentValueInBaseCurrency, nested.CurrentNetWorth)
				invested, haveInvested := firstFloat(nested.TotalInvestment)
				if !haveCurrent || !haveInvested {
					return nil, fmt.Errorf("performance payload has no usable net performance fields")
				}
				gain = current - invested
			}
			return &Performance{
				Range:        queryRange,
				ReturnPct:    returnPct,
				AbsoluteGain: gain,
				Currency:     "USD",
				LastUpdated:  nested.LastUpdated,
			}, nil
		}
	}

	// Legacy flat shape: {"performance": <pct>, "value": <gain>}.
	var flatPct float64
	if err := json.Unmarshal(payload.Performance, &flatPct); err != nil || payload.Value == nil {
		return nil, fmt.Errorf("performance payload has no usable net performance fields")
	}
	return &Performance{
		Range:        queryRange,
		ReturnPct:    flatPct,
		AbsoluteGain: *payload.Value,
		Currency:     "USD",
	}, nil
}

// ghostfolioActivity mirrors the order endpoint's activity shape.
type ghostfolioActivity struct {
	Date      string   `json:"date"`
	Type      string   `json:"type"`
	Symbol    string   `json:"symbol"`
	Quantity  *float64 `json:"quantity"`
	UnitPrice *float64 `json:"unitPrice"`
	Fee       *float64 `json:"fee"`
	Currency  string   `json:"currency"`
}

func (g *GhostfolioProvider) GetTransactions(ctx context.Context) ([]Transaction, error) {
	raw, err := g.getJSON(ctx, "/api/v1/order", nil)
	if err != nil {
		return nil, err
	}

	var rawActivities []ghostfolioActivity
	if err := json.Unmarshal(raw, &rawActivities); err != nil {
		var wrapped struct {
			Activities []ghostfolioActivity `json:"activities"`
		}
		if err := json.Unmarshal(raw, &wrapped); err != nil || wrapped.Activities == nil {
			return nil, fmt.Errorf("expected transaction list or {activities: [...]} from ghostfolio")
		}
		rawActivities = wrapped.Activities
	}

	txs := make([]Transaction, 0, len(rawActivities))
	for _, item := range rawActivities {
		currency := item.Currency
		if currency == "" {
			currency = "USD"
		}
		quantity, _ := firstFloat(item.Quantity)
		unitPrice, _ := firstFloat(item.UnitPrice)
		fee, _ := firstFloat(item.Fee)
		txs = append(txs, Transaction{
			Date:      item.Date,
			Type:      item.Type,
			Symbol:    item.Symbol,
			Quantity:  quantity,
			UnitPrice: unitPrice,
			Fee:       fee,
			Currency:  currency,
		})
	}
	return txs, nil
}

func (g *GhostfolioProvider) GetAccounts(ctx context.Context) ([]Account, error) {
	raw, err := g.getJSON(ctx, "/api/v1/account", nil)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Accounts []struct {
			ID         string   `json:"id"`
			Name       string   `json:"name"`
			Balance    *float64 `json:"balance"`
			Currency   string   `json:"currency"`
			Platform   *struct{ Name string } `json:"platform"`
			IsExcluded bool     `json:"isExcluded"`
		} `json:"accounts"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("expected {accounts: [...]} from ghostfolio: %w", err)
	}

	accounts := make([]Account, 0, len(payload.Accounts))
	for _, item := range payload.Accounts {
		balance, _ := firstFloat(item.Balance)
		currency := item.Currency
		if currency == "" {
			currency = "USD"
		}
		platform := "Unknown"
		if item.Platform != nil && item.Platform.Name != "" {
			platform = item.Platform.Name
		}
		accounts = append(accounts, Account{
			ID:         item.ID,
			Name:       item.Name,
			Balance:    balance,
			Currency:   currency,
			Platform:   platform,
			IsExcluded: item.IsExcluded,
		})
	}
	return accounts, nil
}

func (g *GhostfolioProvider) GetMarketData(ctx context.Context, symbols []string) (map[string]Quote, error) {
	quotes := make(map[string]Quote)
	for _, sym := range symbols {
		upper := strings.ToUpper(strings.TrimSpace(sym))
		if upper == "" {
			continue
		}
		raw, err := g.getJSON(ctx, "/api/v1/symbol/YAHOO/"+url.PathEscape(upper), nil)
		if err != nil {
			// A symbol the server does not know is reported through the
			// symbols_missing list, not as a hard failure.
			continue
		}
		var payload struct {
			MarketPrice  *float64 `json:"marketPrice"`
			Currency     string   `json:"currency"`
			Name         string   `json:"name"`
			ChangePct    *float64 `json:"changePercent"`
		}
		if err := json.Unmarshal(raw, &payload); err != nil || payload.MarketPrice == nil {
			continue
		}
		currency := payload.Currency
		if currency == "" {
			currency = "USD"
		}
		name := payload.Name
		if name == "" {
			name = upper
		}
		changePct, _ := firstFloat(payload.ChangePct)
		quotes[upper] = Quote{
			Symbol:    upper,
			Name:      name,
			Price:     *payload.MarketPrice,
			Currency:  currency,
			ChangePct: changePct,
		}
	}
	return quotes, nil
}
