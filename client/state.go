// Copyright (c) Stinger IPC
// SPDX-License-Identifier: Apache-2.0

package client

import "sync/atomic"

// State is the connection state of a Client.
type State uint32

// Client states. Closed is terminal.
const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateClosed
)

var stateNames = [...]string{
	StateDisconnected: "disconnected",
	StateConnecting:   "connecting",
	StateConnected:    "connected",
	StateClosed:       "closed",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// stateManager is written under Client.mu, which orders transitions with
// registry and queue updates. Reads do not take the lock.
type stateManager struct {
	v atomic.Uint32
}

func newStateManager() *stateManager {
	return &stateManager{}
}

func (sm *stateManager) get() State { return State(sm.v.Load()) }

func (sm *stateManager) set(s State) { sm.v.Store(uint32(s)) }

// transition moves from one state to another and reports whether the state
// was from.
func (sm *stateManager) transition(from, to State) bool {
	return sm.v.CompareAndSwap(uint32(from), uint32(to))
}

func (sm *stateManager) isConnected() bool { return sm.get() == StateConnected }

func (sm *stateManager) isClosed() bool { return sm.get() == StateClosed }
