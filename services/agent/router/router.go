// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package router maps user queries onto tool calls without an LLM.
//
// The priority table lives in rules.yaml, embedded at build time and
// overridable via a config path for deployments that tune keywords
// without rebuilding. Evaluation is deterministic: rules are checked
// in file order and the first match wins.
package router

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/AleutianFolio/pkg/validation"
)

//go:embed rules.yaml
var embeddedRules []byte

// maxRulesFileSize caps external rule files to keep a bad config path
// from slurping something huge into memory.
const maxRulesFileSize = 1 << 20

// ErrEmptyQuery is returned when nothing routable remains after
// sanitization. Callers answer with a clarification request.
var ErrEmptyQuery = errors.New("query is empty")

// defaultSymbol is used when a price query names no recognizable
// ticker.
const defaultSymbol = "AAPL"

var routingDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "agent_routing_decisions_total",
	Help: "Rule-based routing decisions by selected tool.",
}, []string{"tool"})

// Decision is the router's output: one tool call.
type Decision struct {
	Tool string
	Args map[string]any
}

type followupConfig struct {
	Markers []string          `yaml:"markers"`
	Tools   []string          `yaml:"tools"`
	RouteTo string            `yaml:"route_to"`
	Args    map[string]string `yaml:"args"`
}

type rule struct {
	Tool  string         `yaml:"tool"`
	AnyOf []string       `yaml:"any_of"`
	AllOf [][]string     `yaml:"all_of"`
	Args  map[string]any `yaml:"args"`
}

type ruleSet struct {
	Followup    followupConfig `yaml:"followup"`
	Rules       []rule         `yaml:"rules"`
	DefaultTool string         `yaml:"default_tool"`
}

// Router evaluates the rule table.
//
// Thread Safety: safe for concurrent use after construction; the rule
// set is immutable.
type Router struct {
	rules ruleSet
}

// New builds a router from the embedded rule table.
func New() (*Router, error) {
	return parse(embeddedRules)
}

// NewFromFile builds a router from an external rules file. The path
// must not contain traversal segments and the file must stay under
// 1 MiB, mirroring how other embedded-config overrides are guarded.
func NewFromFile(path string) (*Router, error) {
	if strings.Contains(path, "..") {
		return nil, fmt.Errorf("rules path must not contain traversal segments: %s", path)
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat rules file: %w", err)
	}
	if info.Size() > maxRulesFileSize {
		return nil, fmt.Errorf("rules file exceeds %d bytes: %s", maxRulesFileSize, path)
	}
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}
	return parse(data)
}

func parse(data []byte) (*Router, error) {
	var rs ruleSet
	if err := yaml.Unmarshal(data, &rs); err != nil {
		return nil, fmt.Errorf("parse routing rules: %w", err)
	}
	if rs.DefaultTool == "" {
		return nil, fmt.Errorf("routing rules missing default_tool")
	}
	for i, r := range rs.Rules {
		if r.Tool == "" {
			return nil, fmt.Errorf("routing rule %d missing tool", i)
		}
		if len(r.AnyOf) == 0 && len(r.AllOf) == 0 {
			return nil, fmt.Errorf("routing rule %d (%s) has no keywords", i, r.Tool)
		}
	}
	return &Router{rules: rs}, nil
}

// Route selects a tool for the sanitized query.
//
// Description:
//
//	Follow-up markers ("what about", ...) reuse the most recent
//	analytical tool from recentTools (newest last) with a range
//	re-extracted from the new query. Otherwise rules run in table
//	order; no match falls through to the default summary tool.
//
// Inputs:
//
//	query       - Sanitized user query.
//	recentTools - Tool names from prior turns of the session, oldest
//	              first. May be nil.
//
// Outputs:
//
//	Decision - Selected tool and arguments.
//	error    - ErrEmptyQuery when query is blank.
func (r *Router) Route(query string, recentTools []string) (Decision, error) {
	if strings.TrimSpace(query) == "" {
		return Decision{}, ErrEmptyQuery
	}
	lower := strings.ToLower(query)

	if decision, ok := r.routeFollowup(lower, query, recentTools); ok {
		routingDecisions.WithLabelValues(decision.Tool).Inc()
		return decision, nil
	}

	for _, candidate := range r.rules.Rules {
		if !matches(lower, candidate) {
			continue
		}
		decision := Decision{Tool: candidate.Tool, Args: r.resolveArgs(candidate.Args, query)}
		routingDecisions.WithLabelValues(decision.Tool).Inc()
		return decision, nil
	}

	routingDecisions.WithLabelValues(r.rules.DefaultTool).Inc()
	return Decision{Tool: r.rules.DefaultTool, Args: map[string]any{}}, nil
}

func (r *Router) routeFollowup(lower, query string, recentTools []string) (Decision, bool) {
	marked := false
	for _, marker := range r.rules.Followup.Markers {
		if strings.Contains(lower, marker) {
			marked = true
			break
		}
	}
	if !marked {
		return Decision{}, false
	}

	analytical := make(map[string]bool, len(r.rules.Followup.Tools))
	for _, tool := range r.rules.Followup.Tools {
		analytical[tool] = true
	}
	for i := len(recentTools) - 1; i >= 0; i-- {
		if analytical[recentTools[i]] {
			args := make(map[string]any, len(r.rules.Followup.Args))
			for key, value := range r.rules.Followup.Args {
				args[key] = r.resolvePlaceholder(value, query)
			}
			return Decision{Tool: r.rules.Followup.RouteTo, Args: args}, true
		}
	}
	return Decision{}, false
}

func matches(lower string, candidate rule) bool {
	for _, keyword := range candidate.AnyOf {
		if strings.Contains(lower, keyword) {
			return true
		}
	}
	for _, group := range candidate.AllOf {
		found := false
		for _, keyword := range group {
			if strings.Contains(lower, keyword) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return len(candidate.AllOf) > 0
}

func (r *Router) resolveArgs(args map[string]any, query string) map[string]any {
	resolved := make(map[string]any, len(args))
	for key, value := range args {
		if s, ok := value.(string); ok && strings.HasPrefix(s, "$") {
			resolved[key] = r.resolvePlaceholder(s, query)
			continue
		}
		resolved[key] = value
	}
	return resolved
}

func (r *Router) resolvePlaceholder(placeholder, query string) any {
	switch placeholder {
	case "$range":
		return ExtractRange(query)
	case "$symbols":
		symbols := validation.ExtractTickers(query)
		if len(symbols) == 0 {
			symbols = []string{defaultSymbol}
		}
		return symbols
	default:
		return placeholder
	}
}

// ExtractRange maps natural range phrasing onto a performance range.
// Order matters: "1 day" before year phrasing, "max"/"all time" last
// before the ytd default.
func ExtractRange(query string) string {
	lower := strings.ToLower(query)
	switch {
	case strings.Contains(lower, "1d"), strings.Contains(lower, "today"),
		strings.Contains(lower, "1-day"), strings.Contains(lower, "one day"):
		return "1d"
	case strings.Contains(lower, "5y"), strings.Contains(lower, "five year"),
		strings.Contains(lower, "5 year"):
		return "5y"
	case strings.Contains(lower, "1y"), strings.Contains(lower, "last year"),
		strings.Contains(lower, "one year"), strings.Contains(lower, "1 year"):
		return "1y"
	case strings.Contains(lower, "max"), strings.Contains(lower, "all time"),
		strings.Contains(lower, "all-time"):
		return "max"
	default:
		return "ytd"
	}
}
