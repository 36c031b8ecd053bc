// Copyright (c) Stinger IPC
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"errors"
	"fmt"
)

// Client errors.
var (
	// Configuration errors.
	ErrNoEngine        = errors.New("wire engine is required")
	ErrNoServer        = errors.New("broker host cannot be empty")
	ErrInvalidPort     = errors.New("invalid broker port")
	ErrInvalidDuration = errors.New("durations cannot be negative")

	// Connection errors.
	ErrAlreadyConnected = errors.New("client already connected or connecting")

	// Operation errors.
	ErrTimeout         = errors.New("operation timed out")
	ErrClientClosed    = errors.New("client has been closed")
	ErrInvalidQoS      = errors.New("invalid QoS level (must be 0, 1, or 2)")
	ErrInvalidTopic    = errors.New("invalid topic")
	ErrPublishRejected = errors.New("publish rejected by broker")
)

// PublishError carries the broker reason code of a rejected publish.
type PublishError struct {
	Topic      string
	ReasonCode byte
}

// Error implements the error interface.
func (e *PublishError) Error() string {
	return fmt.Sprintf("%v: topic %q, reason 0x%02X", ErrPublishRejected, e.Topic, e.ReasonCode)
}

// Unwrap makes errors.Is(err, ErrPublishRejected) hold.
func (e *PublishError) Unwrap() error {
	return ErrPublishRejected
}
