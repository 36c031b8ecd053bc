// Copyright (c) Stinger IPC
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"slices"

	"github.com/stinger-ipc/stinger-mqtt/message"
)

// CallbackHandle identifies a registered message callback. Handles start at 1
// and strictly increase.
type CallbackHandle int

// MessageCallback receives inbound messages.
type MessageCallback func(message.Message)

type callbackEntry struct {
	handle CallbackHandle
	fn     MessageCallback
}

// callbackBus keeps callbacks in registration order. It is guarded by Client.mu.
type callbackBus struct {
	entries []callbackEntry
	last    CallbackHandle
}

func newCallbackBus() *callbackBus {
	return &callbackBus{}
}

func (b *callbackBus) add(fn MessageCallback) CallbackHandle {
	b.last++
	b.entries = append(b.entries, callbackEntry{handle: b.last, fn: fn})
	return b.last
}

func (b *callbackBus) remove(h CallbackHandle) bool {
	i := slices.IndexFunc(b.entries, func(e callbackEntry) bool { return e.handle == h })
	if i < 0 {
		return false
	}
	b.entries = slices.Delete(b.entries, i, i+1)
	return true
}

// snapshot returns a copy that stays valid after the lock is released.
func (b *callbackBus) snapshot() []callbackEntry {
	return slices.Clone(b.entries)
}
