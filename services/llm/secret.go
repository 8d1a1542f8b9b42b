// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/awnumar/memguard"
)

// loadSecret reads an API key from the environment or, failing that,
// from a Podman/Docker secrets file, and seals it in locked memory.
// The returned buffer must be destroyed by the owning client.
func loadSecret(envVar, secretPath string) (*memguard.LockedBuffer, error) {
	if value := os.Getenv(envVar); value != "" {
		return memguard.NewBufferFromBytes([]byte(value)), nil
	}

	if content, err := os.ReadFile(secretPath); err == nil {
		trimmed := strings.TrimSpace(string(content))
		if trimmed != "" {
			slog.Info("Read API key from secrets file", "env", envVar, "path", secretPath)
			return memguard.NewBufferFromBytes([]byte(trimmed)), nil
		}
	}

	return nil, fmt.Errorf("%s is not set and no secret found at %s", envVar, secretPath)
}
