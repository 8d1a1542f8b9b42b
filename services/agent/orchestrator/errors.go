// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package orchestrator

import "errors"

var (
	// ErrInvalidTransition is returned when a turn attempts a state
	// transition the machine does not allow.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrSessionBusy is returned when a session already has a turn in
	// flight. Sessions take one writer at a time.
	ErrSessionBusy = errors.New("session has a turn in flight")
)
