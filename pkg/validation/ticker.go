// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation provides input validation for user-supplied
// values that reach data-source queries: ticker symbols and the free
// text they are extracted from.
package validation

import (
	"fmt"
	"regexp"
	"strings"
)

// tickerPattern matches exchange-listed symbols: uppercase letters and
// digits, with dots (BRK.A) and hyphens (BF-B) for share classes, up
// to 10 characters.
var tickerPattern = regexp.MustCompile(`^[A-Z0-9][A-Z0-9.\-]{0,9}$`)

// ValidateTicker checks that a symbol is safe to pass to a data-source
// query.
//
// Outputs:
//
//	error - Non-nil when the symbol is empty or malformed.
func ValidateTicker(ticker string) error {
	if ticker == "" {
		return fmt.Errorf("ticker cannot be empty")
	}
	if !tickerPattern.MatchString(ticker) {
		return fmt.Errorf("invalid ticker %q: want 1-10 uppercase alphanumerics, dots, or hyphens", ticker)
	}
	return nil
}

// ValidateTickers checks a batch, reporting every invalid symbol in
// one error.
func ValidateTickers(tickers []string) error {
	var invalid []string
	for _, t := range tickers {
		if err := ValidateTicker(t); err != nil {
			invalid = append(invalid, t)
		}
	}
	if len(invalid) > 0 {
		return fmt.Errorf("invalid tickers: %v", invalid)
	}
	return nil
}

// SanitizeTicker trims, upper-cases, and validates a user-supplied
// symbol. The returned value is the canonical form used for lookups.
func SanitizeTicker(ticker string) (string, error) {
	normalized := strings.ToUpper(strings.TrimSpace(ticker))
	if err := ValidateTicker(normalized); err != nil {
		return "", err
	}
	return normalized, nil
}
