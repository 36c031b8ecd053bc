// Copyright (c) Stinger IPC
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"errors"
	"fmt"
)

// Engine errors.
var (
	ErrNotConnected  = errors.New("wire: not connected")
	ErrEngineClosed  = errors.New("wire: engine closed")
	ErrInvalidQoS    = errors.New("wire: invalid QoS level (must be 0, 1, or 2)")
	ErrHandlersUnset = errors.New("wire: handlers must be set before connect")
)

// MQTT v5 reason codes used by engines.
const (
	ReasonSuccess             byte = 0x00
	ReasonDisconnectWithWill  byte = 0x04
	ReasonUnspecifiedError    byte = 0x80
	ReasonNotAuthorized       byte = 0x87
	ReasonServerUnavailable   byte = 0x88
	ReasonKeepAliveTimeout    byte = 0x8D
	ReasonImplementationError byte = 0x83
)

// ConnAckError reports a connection refused by the broker.
type ConnAckError struct {
	ReasonCode   byte
	ReasonString string
}

// Error implements the error interface.
func (e *ConnAckError) Error() string {
	if e.ReasonString != "" {
		return fmt.Sprintf("wire: connection refused (reason 0x%02X): %s", e.ReasonCode, e.ReasonString)
	}
	return fmt.Sprintf("wire: connection refused (reason 0x%02X)", e.ReasonCode)
}
