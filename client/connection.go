// Copyright (c) Stinger IPC
// SPDX-License-Identifier: Apache-2.0

package client

import "github.com/stinger-ipc/stinger-mqtt/message"

// Connection is the publish/subscribe capability shared by the live Client
// and in-memory doubles such as client/mock.
type Connection interface {
	// Publish sends msg, or queues it while disconnected. The completion
	// resolves when the broker acknowledges the message.
	Publish(msg message.Message) (*Completion, error)

	// Subscribe adds a reference to topic and returns its subscription
	// identifier. Subscribing to a topic already subscribed returns the
	// existing identifier.
	Subscribe(topic string, qos byte) (uint32, error)

	// Unsubscribe drops a reference to topic. The wire subscription is removed
	// with the last reference. Unknown topics are ignored.
	Unsubscribe(topic string)

	AddMessageCallback(fn MessageCallback) CallbackHandle
	RemoveMessageCallback(h CallbackHandle)

	TopicMatchesSubscription(topic, filter string) bool
	ClientID() string
	OnlineTopic() string
}

var _ Connection = (*Client)(nil)

// ResolvedCompletion returns a completion already resolved with err. It lets
// Connection implementations that deliver synchronously report the outcome.
func ResolvedCompletion(err error) *Completion {
	c := newCompletion()
	c.resolve(err)
	return c
}
