// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command agent runs the portfolio Q&A service.
package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/AleutianAI/AleutianFolio/pkg/logging"
	"github.com/AleutianAI/AleutianFolio/services/agent"
	"github.com/AleutianAI/AleutianFolio/services/agent/telemetry"
	"github.com/AleutianAI/AleutianFolio/services/llm"
)

func main() {
	logger := logging.New(logging.Config{
		Level:   logging.ParseLevel(os.Getenv("LOG_LEVEL")),
		Service: "aleutianfolio-agent",
	})
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.DefaultConfig())
	if err != nil {
		log.Fatalf("FATAL: telemetry init failed: %v", err)
	}
	defer func() {
		if err := shutdownTelemetry(context.Background()); err != nil {
			slog.Error("Telemetry shutdown failed", "error", err)
		}
	}()

	reasoner, err := llm.NewFromEnv()
	if err != nil && !errors.Is(err, llm.ErrNotConfigured) {
		log.Fatalf("FATAL: reasoner init failed: %v", err)
	}

	service, err := agent.Build(agent.ConfigFromEnv(), reasoner, logger)
	if err != nil {
		log.Fatalf("FATAL: service build failed: %v", err)
	}

	if err := service.Run(ctx); err != nil {
		log.Fatalf("FATAL: %v", err)
	}
}
