// Copyright (c) Stinger IPC
// SPDX-License-Identifier: Apache-2.0

package wire

import "sync"

// DefaultDispatchBuffer is the event backlog a Dispatcher holds before
// Submit blocks.
const DefaultDispatchBuffer = 256

// Dispatcher runs submitted functions one at a time on its own goroutine, in
// submission order. Engines use it to deliver Handlers events from a single
// goroutine that never runs inside an Engine method.
type Dispatcher struct {
	events chan func()
	quit   chan struct{}
	done   chan struct{}
	once   sync.Once
}

// NewDispatcher starts a dispatcher. A buffer of zero or less selects
// DefaultDispatchBuffer.
func NewDispatcher(buffer int) *Dispatcher {
	if buffer <= 0 {
		buffer = DefaultDispatchBuffer
	}
	d := &Dispatcher{
		events: make(chan func(), buffer),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go d.run()
	return d
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for {
		select {
		case fn := <-d.events:
			fn()
		case <-d.quit:
			return
		}
	}
}

// Submit queues fn. It reports false once the dispatcher is closed.
func (d *Dispatcher) Submit(fn func()) bool {
	select {
	case <-d.quit:
		return false
	default:
	}
	select {
	case d.events <- fn:
		return true
	case <-d.quit:
		return false
	}
}

// Close stops the dispatcher and waits for the running function to return.
// Queued functions that have not started are dropped. Close must not be
// called from a submitted function.
func (d *Dispatcher) Close() {
	d.once.Do(func() { close(d.quit) })
	<-d.done
}
