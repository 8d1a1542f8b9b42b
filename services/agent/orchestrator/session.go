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

import (
	"sync"
	"time"
)

// Session holds the append-only turn history for one conversation.
//
// Turns are immutable once appended. A session admits one in-flight
// turn at a time; concurrent requests for the same session are
// rejected with ErrSessionBusy rather than queued.
//
// Thread Safety: safe for concurrent use.
type Session struct {
	mu sync.RWMutex

	id        string
	turns     []Turn
	createdAt time.Time
	inFlight  bool
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Turns returns a copy of the turn history, oldest first.
func (s *Session) Turns() []Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

// RecentTools returns the executed tool names of past turns in
// chronological order, oldest first, matching the router's follow-up
// contract. The router scans from the end for the most recent match.
func (s *Session) RecentTools() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var names []string
	for _, turn := range s.turns {
		names = append(names, turn.ToolCalls...)
	}
	return names
}

// acquire marks the session as having a turn in flight.
func (s *Session) acquire() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.inFlight {
		return ErrSessionBusy
	}
	s.inFlight = true
	return nil
}

// release clears the in-flight marker without recording a turn.
func (s *Session) release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inFlight = false
}

// append records a finalized turn, assigning its sequence number, and
// releases the in-flight marker.
func (s *Session) append(turn Turn) Turn {
	s.mu.Lock()
	defer s.mu.Unlock()

	turn.Sequence = len(s.turns) + 1
	s.turns = append(s.turns, turn)
	s.inFlight = false
	return turn
}

// SessionStore is an in-memory session registry keyed by session ID.
//
// Thread Safety: safe for concurrent use.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewSessionStore creates an empty store.
func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[string]*Session)}
}

// GetOrCreate returns the session for id, creating it on first use.
func (st *SessionStore) GetOrCreate(id string) *Session {
	st.mu.RLock()
	session, ok := st.sessions[id]
	st.mu.RUnlock()
	if ok {
		return session
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	if session, ok := st.sessions[id]; ok {
		return session
	}
	session = &Session{id: id, createdAt: time.Now()}
	st.sessions[id] = session
	return session
}

// Get returns the session for id, or nil when unknown.
func (st *SessionStore) Get(id string) *Session {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.sessions[id]
}

// Len returns the number of sessions.
func (st *SessionStore) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}
