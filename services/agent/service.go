// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/AleutianAI/AleutianFolio/services/agent/datatypes"
	"github.com/AleutianAI/AleutianFolio/services/agent/handlers"
	"github.com/AleutianAI/AleutianFolio/services/agent/orchestrator"
	"github.com/AleutianAI/AleutianFolio/services/agent/router"
	"github.com/AleutianAI/AleutianFolio/services/agent/telemetry"
	"github.com/AleutianAI/AleutianFolio/services/agent/tools"
	"github.com/AleutianAI/AleutianFolio/services/llm"
	"github.com/AleutianAI/AleutianFolio/services/provider"
)

// Service is the assembled agent: one engine per data source, the
// HTTP surface, and the metrics listener.
type Service struct {
	cfg    Config
	deps   handlers.ChatDeps
	influx influxdb2.Client
	logger *slog.Logger
}

// Build assembles the service from configuration.
//
// Description:
//
//	Always wires the mock data source. Wires the Ghostfolio source
//	when GHOSTFOLIO_URL is set, and quote recording to InfluxDB when
//	INFLUXDB_URL is set. The reasoner may be nil for rule-based-only
//	operation.
//
// Outputs:
//
//	*Service - Ready to Run.
//	error    - Configuration failure, e.g. an unknown default source.
func Build(cfg Config, reasoner llm.Reasoner, logger *slog.Logger) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var recorder *provider.QuoteRecorder
	var influx influxdb2.Client
	if cfg.InfluxURL != "" {
		influx = influxdb2.NewClient(cfg.InfluxURL, cfg.InfluxToken)
		recorder = provider.NewQuoteRecorder(influx, cfg.InfluxOrg, cfg.InfluxBucket)
		logger.Info("Quote recording enabled", "url", cfg.InfluxURL, "bucket", cfg.InfluxBucket)
	}

	engines := make(map[string]*orchestrator.Engine)

	mockEngine, err := buildEngine(provider.NewMockProvider(), recorder, reasoner, logger)
	if err != nil {
		return nil, err
	}
	engines[datatypes.SourceMock] = mockEngine

	if cfg.GhostfolioURL != "" {
		ghostfolio := provider.NewGhostfolioProvider(cfg.GhostfolioURL, cfg.GhostfolioToken)
		engine, err := buildEngine(ghostfolio, recorder, reasoner, logger)
		if err != nil {
			return nil, err
		}
		engines[datatypes.SourceGhostfolio] = engine
		logger.Info("Ghostfolio data source enabled", "url", cfg.GhostfolioURL)
	}

	if _, ok := engines[cfg.DefaultSource]; !ok {
		return nil, fmt.Errorf("default data source %q is not configured", cfg.DefaultSource)
	}

	return &Service{
		cfg: cfg,
		deps: handlers.ChatDeps{
			Engines:       engines,
			DefaultSource: cfg.DefaultSource,
			Limiter:       handlers.NewSessionLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst),
		},
		influx: influx,
		logger: logger,
	}, nil
}

func buildEngine(p provider.PortfolioDataProvider, recorder *provider.QuoteRecorder, reasoner llm.Reasoner, logger *slog.Logger) (*orchestrator.Engine, error) {
	registry := tools.NewRegistry()
	if err := registerAll(registry, tools.Deps{Provider: p, Recorder: recorder}); err != nil {
		return nil, err
	}

	rtr, err := router.New()
	if err != nil {
		return nil, fmt.Errorf("loading routing rules: %w", err)
	}

	opts := []orchestrator.EngineOption{orchestrator.WithLogger(logger)}
	if reasoner != nil {
		opts = append(opts, orchestrator.WithReasoner(reasoner))
	}
	return orchestrator.NewEngine(registry, rtr, opts...), nil
}

func registerAll(registry *tools.Registry, deps tools.Deps) error {
	for _, spec := range tools.PortfolioSpecs(deps) {
		if err := registry.Register(spec); err != nil {
			return fmt.Errorf("registering %s: %w", spec.Name, err)
		}
	}
	return nil
}

// Router builds the gin engine with all routes attached.
func (s *Service) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware("aleutianfolio-agent"))

	r.GET("/health", handlers.HealthCheck)
	r.POST("/chat", handlers.HandleChat(s.deps))
	return r
}

// Run serves the API and metrics ports until ctx is cancelled, then
// shuts down gracefully.
func (s *Service) Run(ctx context.Context) error {
	api := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Port),
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	metricsMux := http.NewServeMux()
	if handler := telemetry.MetricsHandler(); handler != nil {
		metricsMux.Handle("/metrics", handler)
	}
	metrics := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.MetricsPort),
		Handler:           metricsMux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		s.logger.Info("Agent API listening", "port", s.cfg.Port)
		errCh <- api.ListenAndServe()
	}()
	go func() {
		s.logger.Info("Metrics listening", "port", s.cfg.MetricsPort)
		errCh <- metrics.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.shutdown(api, metrics)
			return err
		}
	}

	s.shutdown(api, metrics)
	return nil
}

func (s *Service) shutdown(servers ...*http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for _, server := range servers {
		if err := server.Shutdown(ctx); err != nil {
			s.logger.Error("Server shutdown failed", "addr", server.Addr, "error", err)
		}
	}
	if s.influx != nil {
		s.influx.Close()
	}
	s.logger.Info("Agent service stopped")
}
