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
	"fmt"
	"sync"
)

// StateMachine manages valid state transitions for a turn.
//
// The state machine enforces the following transition graph:
//
//	INIT → REASON               : Query passed the safety gate
//	INIT → REFUSE_TRADE_ADVICE  : Trade-advice query refused
//	INIT → BLOCK_INJECTION      : Prompt-injection attempt blocked
//	REASON → EXECUTE            : Reasoner or router selected tool calls
//	REASON → FINALIZE           : Direct answer or clarify, no tools
//	EXECUTE → EXECUTE           : Tool call completed, batch continues
//	EXECUTE → REASON            : Results fed back for the next step
//	EXECUTE → FINALIZE          : Batch done or tool-call cap reached
//	FINALIZE → END              : Turn verified and recorded
//
// Thread Safety:
//
//	StateMachine is safe for concurrent use.
type StateMachine struct {
	mu sync.RWMutex

	// transitions maps (from, to) pairs that are valid.
	transitions map[TurnState]map[TurnState]bool
}

// NewStateMachine creates a state machine with all valid transitions.
func NewStateMachine() *StateMachine {
	sm := &StateMachine{
		transitions: make(map[TurnState]map[TurnState]bool),
	}

	for _, state := range AllStates() {
		sm.transitions[state] = make(map[TurnState]bool)
	}

	sm.addTransition(StateInit, StateReason)
	sm.addTransition(StateInit, StateRefuseTradeAdvice)
	sm.addTransition(StateInit, StateBlockInjection)

	sm.addTransition(StateReason, StateExecute)
	sm.addTransition(StateReason, StateFinalize)

	sm.addTransition(StateExecute, StateExecute)
	sm.addTransition(StateExecute, StateReason)
	sm.addTransition(StateExecute, StateFinalize)

	sm.addTransition(StateFinalize, StateEnd)

	return sm
}

// addTransition registers a valid transition.
func (sm *StateMachine) addTransition(from, to TurnState) {
	sm.transitions[from][to] = true
}

// CanTransition checks if a transition from one state to another is
// valid.
//
// Thread Safety: This method is safe for concurrent use.
func (sm *StateMachine) CanTransition(from, to TurnState) bool {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if toMap, ok := sm.transitions[from]; ok {
		return toMap[to]
	}
	return false
}

// Transition validates and applies a transition on a turn tracker.
//
// Outputs:
//
//	error - ErrInvalidTransition if the transition is not allowed.
//
// Thread Safety: This method is safe for concurrent use.
func (sm *StateMachine) Transition(tracker *turnTracker, to TurnState) error {
	from := tracker.state
	if !sm.CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	tracker.state = to
	return nil
}

// ValidTransitionsFrom returns all valid target states from a state.
//
// Thread Safety: This method is safe for concurrent use.
func (sm *StateMachine) ValidTransitionsFrom(from TurnState) []TurnState {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	var result []TurnState
	if toMap, ok := sm.transitions[from]; ok {
		for state, valid := range toMap {
			if valid {
				result = append(result, state)
			}
		}
	}
	return result
}

// turnTracker carries the state of one in-flight turn. It is owned by
// a single goroutine for the duration of the turn.
type turnTracker struct {
	state TurnState
}

func newTurnTracker() *turnTracker {
	return &turnTracker{state: StateInit}
}

// DefaultStateMachine is the shared state machine instance.
var DefaultStateMachine = NewStateMachine()
