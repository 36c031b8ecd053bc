// Copyright (c) Stinger IPC
// SPDX-License-Identifier: Apache-2.0

// Package mock provides an in-memory client.Connection for testing code that
// publishes and subscribes without a broker.
package mock

import (
	"maps"
	"slices"
	"sync"

	"github.com/stinger-ipc/stinger-mqtt/client"
	"github.com/stinger-ipc/stinger-mqtt/message"
	"github.com/stinger-ipc/stinger-mqtt/topics"
)

var _ client.Connection = (*Connection)(nil)

type subscription struct {
	qos      byte
	id       uint32
	refCount int
}

// Connection records publishes and subscriptions in memory. Publishes
// complete immediately.
type Connection struct {
	clientID string

	mu           sync.Mutex
	published    []message.Message
	subs         map[string]*subscription
	nextSubID    uint32
	callbacks    map[client.CallbackHandle]client.MessageCallback
	nextCallback client.CallbackHandle
}

// New returns a mock connection for clientID.
func New(clientID string) *Connection {
	return &Connection{
		clientID:  clientID,
		subs:      make(map[string]*subscription),
		callbacks: make(map[client.CallbackHandle]client.MessageCallback),
	}
}

// Publish records a copy of msg.
func (c *Connection) Publish(msg message.Message) (*client.Completion, error) {
	if msg.QoS > 2 {
		return nil, client.ErrInvalidQoS
	}
	c.mu.Lock()
	c.published = append(c.published, msg.Clone())
	c.mu.Unlock()
	return client.ResolvedCompletion(nil), nil
}

// Subscribe records a reference to topic.
func (c *Connection) Subscribe(topic string, qos byte) (uint32, error) {
	if qos > 2 {
		return 0, client.ErrInvalidQoS
	}
	if err := topics.ValidateTopicFilter(topic); err != nil {
		return 0, client.ErrInvalidTopic
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if sub, ok := c.subs[topic]; ok {
		sub.refCount++
		return sub.id, nil
	}
	c.nextSubID++
	c.subs[topic] = &subscription{qos: qos, id: c.nextSubID, refCount: 1}
	return c.nextSubID, nil
}

// Unsubscribe drops a reference to topic.
func (c *Connection) Unsubscribe(topic string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	sub, ok := c.subs[topic]
	if !ok {
		return
	}
	sub.refCount--
	if sub.refCount <= 0 {
		delete(c.subs, topic)
	}
}

// AddMessageCallback registers fn. A nil fn is ignored and returns 0.
func (c *Connection) AddMessageCallback(fn client.MessageCallback) client.CallbackHandle {
	if fn == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextCallback++
	c.callbacks[c.nextCallback] = fn
	return c.nextCallback
}

// RemoveMessageCallback unregisters the callback behind h.
func (c *Connection) RemoveMessageCallback(h client.CallbackHandle) {
	c.mu.Lock()
	delete(c.callbacks, h)
	c.mu.Unlock()
}

// TopicMatchesSubscription reports whether topic matches filter.
func (c *Connection) TopicMatchesSubscription(topic, filter string) bool {
	return topics.Match(filter, topic)
}

// ClientID returns the client identifier.
func (c *Connection) ClientID() string {
	return c.clientID
}

// OnlineTopic returns the status topic the live client would use.
func (c *Connection) OnlineTopic() string {
	return client.OnlineTopicFor(c.clientID)
}

// SimulateIncomingMessage delivers msg to every callback, in registration
// order, if any subscription matches its topic. It reports whether the
// message was delivered.
func (c *Connection) SimulateIncomingMessage(msg message.Message) bool {
	c.mu.Lock()
	matched := false
	for filter := range c.subs {
		if topics.Match(filter, msg.Topic) {
			matched = true
			break
		}
	}
	var callbacks []client.MessageCallback
	if matched {
		for _, h := range slices.Sorted(maps.Keys(c.callbacks)) {
			callbacks = append(callbacks, c.callbacks[h])
		}
	}
	c.mu.Unlock()

	for _, fn := range callbacks {
		fn(msg.Clone())
	}
	return matched
}

// PublishedMessages returns the recorded publishes in order. With a topic,
// only publishes to that exact topic are returned.
func (c *Connection) PublishedMessages(topic ...string) []message.Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]message.Message, 0, len(c.published))
	for _, msg := range c.published {
		if len(topic) > 0 && !slices.Contains(topic, msg.Topic) {
			continue
		}
		out = append(out, msg.Clone())
	}
	return out
}

// ClearPublishedMessages forgets every recorded publish.
func (c *Connection) ClearPublishedMessages() {
	c.mu.Lock()
	c.published = nil
	c.mu.Unlock()
}

// Subscriptions returns the subscribed topic filters, sorted.
func (c *Connection) Subscriptions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Sorted(maps.Keys(c.subs))
}

// IsSubscribed reports whether topic holds at least one reference.
func (c *Connection) IsSubscribed(topic string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.subs[topic]
	return ok
}

// SubscriptionQoS returns the QoS of topic, or -1 when not subscribed.
func (c *Connection) SubscriptionQoS(topic string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if sub, ok := c.subs[topic]; ok {
		return int(sub.qos)
	}
	return -1
}
