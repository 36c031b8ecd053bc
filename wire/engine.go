// Copyright (c) Stinger IPC
// SPDX-License-Identifier: Apache-2.0

// Package wire defines the contract between the client session engine and the
// MQTT library that owns the network connection, packet encoding and keep-alive.
package wire

import (
	"context"
	"time"
)

// AttemptID identifies one publish handed to an Engine. Acknowledgments
// reference it through Handlers.OnPublishAck.
type AttemptID uint64

// Will is the message the broker publishes when the connection drops abnormally.
type Will struct {
	Topic      string
	Payload    []byte
	QoS        byte
	Retain     bool
	Properties Properties
}

// ConnectConfig holds the parameters of a connection attempt.
type ConnectConfig struct {
	Host           string
	Port           int
	ClientID       string
	Username       string
	Password       string
	KeepAlive      time.Duration
	ConnectTimeout time.Duration
	CleanStart     bool
	SessionExpiry  uint32
	Will           *Will
}

// ConnectInfo describes an accepted connection.
type ConnectInfo struct {
	SessionPresent bool
	ReasonString   string
	Properties     Properties
}

// DisconnectInfo describes a lost or closed connection.
type DisconnectInfo struct {
	ReasonCode   byte
	ReasonString string
	Err          error
}

// Inbound is a PUBLISH received from the broker.
type Inbound struct {
	Topic      string
	Payload    []byte
	QoS        byte
	Retain     bool
	Properties Properties
}

// SubscribeOptions are the options of one SUBSCRIBE filter.
type SubscribeOptions struct {
	QoS byte

	// SubscriptionID is sent as the subscription identifier when non-zero.
	SubscriptionID uint32

	// NoLocal asks the broker not to forward publishes made on this
	// connection back to it.
	NoLocal bool
}

// Handlers receives engine events. Handlers are called from the engine's own
// goroutine, never from inside an Engine method.
type Handlers struct {
	// OnDisconnect is called once when an established connection is lost.
	// It is not called for connections closed through Disconnect or Close.
	OnDisconnect func(DisconnectInfo)
	OnMessage    func(Inbound)
	OnPublishAck func(id AttemptID, reasonCode byte)
	OnError      func(error)
}

// Engine is an MQTT wire session. Publish, Subscribe and Unsubscribe must not
// block on the network: implementations queue the work and report the outcome
// through Handlers. They return ErrNotConnected while no connection is open.
type Engine interface {
	// SetHandlers installs event handlers. It must be called before Connect.
	SetHandlers(h Handlers)

	// Connect dials the broker and performs the MQTT handshake. It blocks
	// until the broker accepts or refuses the connection.
	Connect(ctx context.Context, cfg ConnectConfig) (ConnectInfo, error)

	// Disconnect closes the current connection with the given reason code.
	Disconnect(reasonCode byte) error

	Publish(topic string, payload []byte, qos byte, retain bool, props Properties) (AttemptID, error)
	Subscribe(topic string, opts SubscribeOptions) error
	Unsubscribe(topic string) error

	// Close releases every resource held by the engine.
	Close() error
}
