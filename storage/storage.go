// Copyright (c) Stinger IPC
// SPDX-License-Identifier: Apache-2.0

// Package storage defines the durable offline publish queue used by the client
// to keep messages issued while disconnected across process restarts.
package storage

import (
	"errors"
	"time"

	"github.com/stinger-ipc/stinger-mqtt/message"
)

// Common errors.
var (
	ErrNotFound = errors.New("not found")
	ErrClosed   = errors.New("store closed")
)

// Record is a queued publish.
type Record struct {
	Seq      uint64          `cbor:"1,keyasint"`
	Message  message.Message `cbor:"2,keyasint"`
	Enqueued time.Time       `cbor:"3,keyasint,omitempty"`
}

// Copy returns a deep copy of the record.
func (r Record) Copy() Record {
	r.Message = r.Message.Clone()
	return r
}

// QueueStore persists queued publishes per client.
//
// Key layout used by implementations: {clientID}/queue/{seq}.
type QueueStore interface {
	// Put stores or replaces the record with rec.Seq.
	Put(clientID string, rec Record) error

	// Delete removes the record with seq. Deleting a missing record is not an error.
	Delete(clientID string, seq uint64) error

	// List returns every record of clientID ordered by ascending Seq.
	List(clientID string) ([]Record, error)

	// Clear removes every record of clientID.
	Clear(clientID string) error

	// Close releases any resources.
	Close() error
}
