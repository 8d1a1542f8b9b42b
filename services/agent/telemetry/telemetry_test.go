// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"context"
	"errors"
	"testing"
)

func TestInit_NilContext(t *testing.T) {
	//nolint:staticcheck // passing nil is the behavior under test
	_, err := Init(nil, DefaultConfig())
	if !errors.Is(err, ErrNilContext) {
		t.Fatalf("expected ErrNilContext, got %v", err)
	}
}

func TestInit_UnknownExporters(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"trace", Config{TraceExporter: "jaeger-thrift", MetricExporter: "none"}},
		{"metric", Config{TraceExporter: "none", MetricExporter: "statsd"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Init(context.Background(), tt.cfg)
			if !errors.Is(err, ErrUnknownExporter) {
				t.Fatalf("expected ErrUnknownExporter, got %v", err)
			}
		})
	}
}

func TestInit_StdoutExporters(t *testing.T) {
	cfg := Config{
		ServiceName:    "test",
		TraceExporter:  "stdout",
		MetricExporter: "stdout",
	}

	shutdown, err := Init(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown failed: %v", err)
	}
}

func TestInit_DisabledExportersNeedNoShutdown(t *testing.T) {
	cfg := Config{TraceExporter: "none", MetricExporter: "none"}

	shutdown, err := Init(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown failed: %v", err)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.ServiceName != "aleutianfolio-agent" {
		t.Errorf("ServiceName = %q", cfg.ServiceName)
	}
	if cfg.MetricExporter != "prometheus" {
		t.Errorf("MetricExporter = %q", cfg.MetricExporter)
	}
	if cfg.MetricsPort != 9090 {
		t.Errorf("MetricsPort = %d", cfg.MetricsPort)
	}
}
