// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"sync"

	"golang.org/x/time/rate"
)

// SessionLimiter hands out one token-bucket limiter per session ID.
//
// Thread Safety: safe for concurrent use.
type SessionLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      rate.Limit
	burst    int
}

// NewSessionLimiter builds a limiter store allowing rps requests per
// second with the given burst per session.
func NewSessionLimiter(rps float64, burst int) *SessionLimiter {
	return &SessionLimiter{
		limiters: make(map[string]*rate.Limiter),
		rps:      rate.Limit(rps),
		burst:    burst,
	}
}

// Allow reports whether the session may proceed now.
func (sl *SessionLimiter) Allow(sessionID string) bool {
	sl.mu.Lock()
	limiter, ok := sl.limiters[sessionID]
	if !ok {
		limiter = rate.NewLimiter(sl.rps, sl.burst)
		sl.limiters[sessionID] = limiter
	}
	sl.mu.Unlock()
	return limiter.Allow()
}
