// Copyright (c) Stinger IPC
// SPDX-License-Identifier: Apache-2.0

// Package memory provides a process-local storage.QueueStore.
package memory

import (
	"maps"
	"slices"
	"sync"

	"github.com/stinger-ipc/stinger-mqtt/storage"
)

var _ storage.QueueStore = (*Store)(nil)

// Store is an in-memory implementation of storage.QueueStore.
type Store struct {
	mu     sync.RWMutex
	data   map[string]map[uint64]storage.Record
	closed bool
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{data: make(map[string]map[uint64]storage.Record)}
}

// Put stores a record.
func (s *Store) Put(clientID string, rec storage.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return storage.ErrClosed
	}
	recs, ok := s.data[clientID]
	if !ok {
		recs = make(map[uint64]storage.Record)
		s.data[clientID] = recs
	}
	recs[rec.Seq] = rec.Copy()
	return nil
}

// Delete removes a record.
func (s *Store) Delete(clientID string, seq uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return storage.ErrClosed
	}
	delete(s.data[clientID], seq)
	return nil
}

// List returns the records of clientID in sequence order.
func (s *Store) List(clientID string) ([]storage.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, storage.ErrClosed
	}
	recs := s.data[clientID]
	result := make([]storage.Record, 0, len(recs))
	for _, seq := range slices.Sorted(maps.Keys(recs)) {
		result = append(result, recs[seq].Copy())
	}
	return result, nil
}

// Clear removes every record of clientID.
func (s *Store) Clear(clientID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return storage.ErrClosed
	}
	delete(s.data, clientID)
	return nil
}

// Close marks the store closed. Data is kept so a store shared between
// tests can be inspected after the client shut down.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
