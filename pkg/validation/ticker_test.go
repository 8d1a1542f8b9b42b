// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package validation

import "testing"

func TestValidateTicker(t *testing.T) {
	tests := []struct {
		name    string
		ticker  string
		wantErr bool
	}{
		{"simple", "AAPL", false},
		{"etf", "VTI", false},
		{"single char", "A", false},
		{"with digit", "SPY500", false},
		{"class share dot", "BRK.A", false},
		{"class share hyphen", "BF-B", false},
		{"max length", "ABCDEFGHIJ", false},

		{"empty", "", true},
		{"lowercase", "aapl", true},
		{"too long", "ABCDEFGHIJK", true},
		{"query injection", `AAPL") |> drop()`, true},
		{"newline", "AAPL\nMSFT", true},
		{"spaces", "AA PL", true},
		{"special chars", "AAPL$", true},
		{"starts with dot", ".AAPL", true},
		{"starts with hyphen", "-AAPL", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTicker(tt.ticker)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateTicker(%q) error = %v, wantErr %v", tt.ticker, err, tt.wantErr)
			}
		})
	}
}

func TestValidateTickers(t *testing.T) {
	tests := []struct {
		name    string
		tickers []string
		wantErr bool
	}{
		{"all valid", []string{"AAPL", "MSFT", "VTI"}, false},
		{"one invalid", []string{"AAPL", "bad!", "VTI"}, true},
		{"all invalid", []string{"aapl", "msft"}, true},
		{"empty slice", []string{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTickers(tt.tickers)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateTickers(%v) error = %v, wantErr %v", tt.tickers, err, tt.wantErr)
			}
		})
	}
}

func TestSanitizeTicker(t *testing.T) {
	tests := []struct {
		name    string
		ticker  string
		want    string
		wantErr bool
	}{
		{"uppercase passthrough", "MSFT", "MSFT", false},
		{"lowercase normalized", "msft", "MSFT", false},
		{"mixed case", "MsFt", "MSFT", false},
		{"whitespace trimmed", "  MSFT  ", "MSFT", false},
		{"invalid rejected", "bad!", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SanitizeTicker(tt.ticker)
			if (err != nil) != tt.wantErr {
				t.Errorf("SanitizeTicker(%q) error = %v, wantErr %v", tt.ticker, err, tt.wantErr)
				return
			}
			if got != tt.want {
				t.Errorf("SanitizeTicker(%q) = %q, want %q", tt.ticker, got, tt.want)
			}
		})
	}
}
