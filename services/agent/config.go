// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package agent assembles and runs the portfolio Q&A service.
package agent

import (
	"os"
	"strconv"

	"github.com/AleutianAI/AleutianFolio/services/agent/datatypes"
)

// Config is the environment-driven service configuration.
type Config struct {
	// Port serves the API.
	Port int

	// MetricsPort serves GET /metrics.
	MetricsPort int

	// DefaultSource is the data source used when a request does not
	// pick one: "mock" or "ghostfolio_api".
	DefaultSource string

	// GhostfolioURL enables the Ghostfolio provider when set.
	GhostfolioURL string

	// GhostfolioToken is the bearer token for the Ghostfolio API.
	GhostfolioToken string

	// InfluxURL enables quote recording when set, together with the
	// token, org, and bucket.
	InfluxURL    string
	InfluxToken  string
	InfluxOrg    string
	InfluxBucket string

	// RateLimitRPS and RateLimitBurst bound per-session chat traffic.
	RateLimitRPS   float64
	RateLimitBurst int
}

// ConfigFromEnv reads the configuration from the environment.
func ConfigFromEnv() Config {
	return Config{
		Port:            getEnvInt("AGENT_PORT", 12310),
		MetricsPort:     getEnvInt("AGENT_METRICS_PORT", 9090),
		DefaultSource:   getEnvString("AGENT_DATA_SOURCE", datatypes.SourceMock),
		GhostfolioURL:   getEnvString("GHOSTFOLIO_URL", ""),
		GhostfolioToken: getEnvString("GHOSTFOLIO_TOKEN", ""),
		InfluxURL:       getEnvString("INFLUXDB_URL", ""),
		InfluxToken:     getEnvString("INFLUXDB_TOKEN", ""),
		InfluxOrg:       getEnvString("INFLUXDB_ORG", "aleutian"),
		InfluxBucket:    getEnvString("INFLUXDB_BUCKET", "market_data"),
		RateLimitRPS:    getEnvFloat("AGENT_RATE_LIMIT_RPS", 5),
		RateLimitBurst:  getEnvInt("AGENT_RATE_LIMIT_BURST", 10),
	}
}

func getEnvString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			return parsed
		}
	}
	return fallback
}
