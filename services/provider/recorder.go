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
	"log/slog"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
)

// QuoteRecorder persists fetched market quotes to InfluxDB so price
// history accumulates as a side effect of agent queries. Recording is
// best effort; the agent never fails a turn over a write error.
//
// Thread Safety: safe for concurrent use.
type QuoteRecorder struct {
	writeAPI api.WriteAPIBlocking
	now      func() time.Time
}

// NewQuoteRecorder builds a recorder writing to the given org and
// bucket. The caller owns the client and must Close it on shutdown.
func NewQuoteRecorder(client influxdb2.Client, org, bucket string) *QuoteRecorder {
	return &QuoteRecorder{
		writeAPI: client.WriteAPIBlocking(org, bucket),
		now:      time.Now,
	}
}

// Record writes one point per quote to the "market_quote" measurement.
//
// Inputs:
//
//	ctx    - Bounds the InfluxDB writes.
//	quotes - Quotes keyed by symbol, as returned by GetMarketData.
//
// Outputs:
//
//	error - First write failure, wrapped with the failing symbol.
func (r *QuoteRecorder) Record(ctx context.Context, quotes map[string]Quote) error {
	ts := r.now().UTC()
	for sym, q := range quotes {
		point := influxdb2.NewPoint(
			"market_quote",
			map[string]string{"symbol": sym, "currency": q.Currency},
			map[string]interface{}{
				"price":      q.Price,
				"change_pct": q.ChangePct,
			},
			ts,
		)
		if err := r.writeAPI.WritePoint(ctx, point); err != nil {
			return fmt.Errorf("write quote for %s: %w", sym, err)
		}
	}
	slog.Debug("Recorded market quotes", slog.Int("count", len(quotes)))
	return nil
}
