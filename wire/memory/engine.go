// Copyright (c) Stinger IPC
// SPDX-License-Identifier: Apache-2.0

// Package memory provides an in-memory wire.Engine. It records every call and
// lets tests drive broker events (messages, acknowledgments, connection loss)
// explicitly.
package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/stinger-ipc/stinger-mqtt/wire"
)

var _ wire.Engine = (*Engine)(nil)

// Publish is a recorded PUBLISH.
type Publish struct {
	ID         wire.AttemptID
	Topic      string
	Payload    []byte
	QoS        byte
	Retain     bool
	Properties wire.Properties
	Acked      bool
}

// Subscription is a recorded SUBSCRIBE.
type Subscription struct {
	Topic          string
	QoS            byte
	SubscriptionID uint32
	NoLocal        bool
}

// Engine is an in-memory wire engine. Simulate* and Ack* methods invoke the
// installed handlers on the calling goroutine, which plays the role of the
// network goroutine. Engine methods never invoke handlers.
type Engine struct {
	mu sync.Mutex

	handlers       wire.Handlers
	handlersSet    bool
	connected      bool
	closed         bool
	connectErr     error
	sessionPresent bool
	publishErr     error
	subscribeErr   error
	nextID         wire.AttemptID

	connects      []wire.ConnectConfig
	disconnects   []byte
	published     []Publish
	subscribed    []Subscription
	unsubscribed  []string
	attemptsIndex map[wire.AttemptID]int
}

// New creates a disconnected engine that accepts connections.
func New() *Engine {
	return &Engine{attemptsIndex: make(map[wire.AttemptID]int)}
}

// SetHandlers implements wire.Engine.
func (e *Engine) SetHandlers(h wire.Handlers) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers = h
	e.handlersSet = true
}

// Connect implements wire.Engine. It fails with the error installed through
// SetConnectError, if any.
func (e *Engine) Connect(ctx context.Context, cfg wire.ConnectConfig) (wire.ConnectInfo, error) {
	if err := ctx.Err(); err != nil {
		return wire.ConnectInfo{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return wire.ConnectInfo{}, wire.ErrEngineClosed
	}
	if !e.handlersSet {
		return wire.ConnectInfo{}, wire.ErrHandlersUnset
	}
	e.connects = append(e.connects, cfg)
	if e.connectErr != nil {
		return wire.ConnectInfo{}, e.connectErr
	}

	e.connected = true
	info := wire.ConnectInfo{SessionPresent: e.sessionPresent && !cfg.CleanStart}
	return info, nil
}

// Disconnect implements wire.Engine.
func (e *Engine) Disconnect(reasonCode byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.connected {
		return wire.ErrNotConnected
	}
	e.connected = false
	e.disconnects = append(e.disconnects, reasonCode)
	return nil
}

// Publish implements wire.Engine.
func (e *Engine) Publish(topic string, payload []byte, qos byte, retain bool, props wire.Properties) (wire.AttemptID, error) {
	if qos > 2 {
		return 0, wire.ErrInvalidQoS
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.usable(); err != nil {
		return 0, err
	}
	if e.publishErr != nil {
		return 0, e.publishErr
	}

	e.nextID++
	e.attemptsIndex[e.nextID] = len(e.published)
	e.published = append(e.published, Publish{
		ID:         e.nextID,
		Topic:      topic,
		Payload:    slices.Clone(payload),
		QoS:        qos,
		Retain:     retain,
		Properties: slices.Clone(props),
	})
	return e.nextID, nil
}

// Subscribe implements wire.Engine.
func (e *Engine) Subscribe(topic string, opts wire.SubscribeOptions) error {
	if opts.QoS > 2 {
		return wire.ErrInvalidQoS
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.usable(); err != nil {
		return err
	}
	if e.subscribeErr != nil {
		return e.subscribeErr
	}
	e.subscribed = append(e.subscribed, Subscription{
		Topic:          topic,
		QoS:            opts.QoS,
		SubscriptionID: opts.SubscriptionID,
		NoLocal:        opts.NoLocal,
	})
	return nil
}

// Unsubscribe implements wire.Engine.
func (e *Engine) Unsubscribe(topic string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.usable(); err != nil {
		return err
	}
	e.unsubscribed = append(e.unsubscribed, topic)
	return nil
}

// Close implements wire.Engine.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.closed = true
	e.connected = false
	return nil
}

func (e *Engine) usable() error {
	if e.closed {
		return wire.ErrEngineClosed
	}
	if !e.connected {
		return wire.ErrNotConnected
	}
	return nil
}

// SetConnectError makes subsequent Connect calls fail with err. A nil error
// lets them succeed again.
func (e *Engine) SetConnectError(err error) {
	e.mu.Lock()
	e.connectErr = err
	e.mu.Unlock()
}

// SetSessionPresent sets the session-present flag reported by Connect for
// connections that do not request a clean start.
func (e *Engine) SetSessionPresent(present bool) {
	e.mu.Lock()
	e.sessionPresent = present
	e.mu.Unlock()
}

// SetPublishError makes subsequent Publish calls on a connected engine fail with err.
func (e *Engine) SetPublishError(err error) {
	e.mu.Lock()
	e.publishErr = err
	e.mu.Unlock()
}

// SetSubscribeError makes subsequent Subscribe calls on a connected engine fail with err.
func (e *Engine) SetSubscribeError(err error) {
	e.mu.Lock()
	e.subscribeErr = err
	e.mu.Unlock()
}

// Connected reports whether a connection is open.
func (e *Engine) Connected() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.connected
}

// Closed reports whether Close was called.
func (e *Engine) Closed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// Connects returns the configuration of every connection attempt.
func (e *Engine) Connects() []wire.ConnectConfig {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.connects)
}

// Disconnects returns the reason codes passed to Disconnect.
func (e *Engine) Disconnects() []byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.disconnects)
}

// Published returns every accepted publish in order.
func (e *Engine) Published() []Publish {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.published)
}

// Subscribed returns every accepted subscribe in order.
func (e *Engine) Subscribed() []Subscription {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.subscribed)
}

// Unsubscribed returns every accepted unsubscribe in order.
func (e *Engine) Unsubscribed() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.unsubscribed)
}

// Ack delivers a publish acknowledgment for id. Acknowledging an unknown or
// already acknowledged id is allowed, so tests can exercise duplicates.
func (e *Engine) Ack(id wire.AttemptID, reasonCode byte) {
	e.mu.Lock()
	if i, ok := e.attemptsIndex[id]; ok {
		e.published[i].Acked = true
	}
	h := e.handlers.OnPublishAck
	e.mu.Unlock()

	if h != nil {
		h(id, reasonCode)
	}
}

// AckAll acknowledges every publish not yet acknowledged, in order.
func (e *Engine) AckAll() {
	e.mu.Lock()
	var ids []wire.AttemptID
	for _, p := range e.published {
		if !p.Acked {
			ids = append(ids, p.ID)
		}
	}
	e.mu.Unlock()

	for _, id := range ids {
		e.Ack(id, wire.ReasonSuccess)
	}
}

// SimulateMessage delivers an inbound PUBLISH.
func (e *Engine) SimulateMessage(in wire.Inbound) {
	e.mu.Lock()
	h := e.handlers.OnMessage
	e.mu.Unlock()

	if h != nil {
		h(in)
	}
}

// SimulateDisconnect drops the connection as if the network failed.
func (e *Engine) SimulateDisconnect(info wire.DisconnectInfo) {
	e.mu.Lock()
	was := e.connected
	e.connected = false
	h := e.handlers.OnDisconnect
	e.mu.Unlock()

	if was && h != nil {
		h(info)
	}
}

// SimulateError reports an asynchronous engine error.
func (e *Engine) SimulateError(err error) {
	e.mu.Lock()
	h := e.handlers.OnError
	e.mu.Unlock()

	if h != nil {
		h(err)
	}
}
