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

import "regexp"

// candidatePattern matches upper-case words that look like tickers.
// Free text rarely capitalizes 2-5 letter words unless they are
// symbols, so a stopword list covers the rest.
var candidatePattern = regexp.MustCompile(`\b([A-Z]{2,5})\b`)

// tickerStopwords are common English words that survive the
// upper-case filter when users shout or start sentences in caps.
var tickerStopwords = map[string]bool{
	"THE": true, "AND": true, "FOR": true, "ARE": true, "BUT": true,
	"NOT": true, "YOU": true, "ALL": true, "CAN": true, "HER": true,
	"WAS": true, "ONE": true, "OUR": true, "OUT": true, "HOW": true,
	"HAS": true, "ITS": true, "GET": true, "WHO": true, "DID": true,
	"LET": true, "SAY": true, "SHE": true, "HIM": true, "HIS": true,
	"MAY": true, "NEW": true, "NOW": true, "OLD": true, "SEE": true,
	"WAY": true, "DAY": true, "TOO": true, "USE": true, "ETF": true,
}

// ExtractTickers pulls likely stock/ETF symbols out of free text.
//
// Description:
//
//	Finds upper-case words of 2-5 letters, drops common English
//	stopwords, and validates the remainder with ValidateTicker.
//	Order of appearance is preserved; duplicates are removed.
//
// Inputs:
//
//	text - Raw user text, any casing.
//
// Outputs:
//
//	[]string - Extracted symbols; nil when none are found.
func ExtractTickers(text string) []string {
	matches := candidatePattern.FindAllString(text, -1)
	if len(matches) == 0 {
		return nil
	}

	seen := make(map[string]bool, len(matches))
	var tickers []string
	for _, candidate := range matches {
		if tickerStopwords[candidate] || seen[candidate] {
			continue
		}
		if err := ValidateTicker(candidate); err != nil {
			continue
		}
		seen[candidate] = true
		tickers = append(tickers, candidate)
	}
	return tickers
}
