// Copyright (c) Stinger IPC
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateDisconnected, "disconnected"},
		{StateConnecting, "connecting"},
		{StateConnected, "connected"},
		{StateClosed, "closed"},
		{State(99), "unknown"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.state.String())
	}
}

func TestStateTransition(t *testing.T) {
	sm := newStateManager()
	assert.Equal(t, StateDisconnected, sm.get())

	assert.True(t, sm.transition(StateDisconnected, StateConnecting))
	assert.Equal(t, StateConnecting, sm.get())
	assert.False(t, sm.transition(StateDisconnected, StateConnected))

	assert.True(t, sm.transition(StateConnecting, StateConnected))
	assert.True(t, sm.isConnected())

	sm.set(StateClosed)
	assert.True(t, sm.isClosed())
	assert.False(t, sm.isConnected())
	assert.False(t, sm.transition(StateConnected, StateDisconnected), "closed is terminal")
}

func TestStateConcurrentTransition(t *testing.T) {
	sm := newStateManager()

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if sm.transition(StateDisconnected, StateConnecting) {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
}
