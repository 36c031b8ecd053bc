// Copyright (c) Stinger IPC
// SPDX-License-Identifier: Apache-2.0

// Package badger provides a storage.QueueStore on BadgerDB.
package badger

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/stinger-ipc/stinger-mqtt/storage"
)

var _ storage.QueueStore = (*Store)(nil)

// DefaultGCInterval is how often the value log is garbage collected.
const DefaultGCInterval = 5 * time.Minute

// Store implements storage.QueueStore using BadgerDB.
//
// Key format: {clientID}/queue/{seq} with seq as 8 big-endian bytes, so that
// key order is sequence order.
type Store struct {
	db *badger.DB

	gcStopCh chan struct{}
	gcDone   chan struct{}
	closed   bool
	mu       sync.Mutex
}

// Config holds BadgerDB configuration.
type Config struct {
	Dir        string        // Directory for BadgerDB data
	InMemory   bool          // Keep data in memory only (Dir is ignored)
	SyncWrites bool          // fsync every write
	GCInterval time.Duration // Value log GC interval (0 uses DefaultGCInterval)
}

// New opens a BadgerDB-backed queue store.
func New(cfg Config) (*Store, error) {
	opts := badger.DefaultOptions(cfg.Dir)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts.Logger = nil
	opts.SyncWrites = cfg.SyncWrites
	opts.NumVersionsToKeep = 1

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger store: %w", err)
	}

	interval := cfg.GCInterval
	if interval <= 0 {
		interval = DefaultGCInterval
	}

	s := &Store{
		db:       db,
		gcStopCh: make(chan struct{}),
		gcDone:   make(chan struct{}),
	}
	go s.runGC(interval, cfg.InMemory)

	return s, nil
}

func queuePrefix(clientID string) []byte {
	return []byte(clientID + "/queue/")
}

func queueKey(clientID string, seq uint64) []byte {
	return binary.BigEndian.AppendUint64(queuePrefix(clientID), seq)
}

// Put stores a record.
func (s *Store) Put(clientID string, rec storage.Record) error {
	data, err := encodeRecord(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	return s.update(func(txn *badger.Txn) error {
		return txn.Set(queueKey(clientID, rec.Seq), data)
	})
}

// Delete removes a record.
func (s *Store) Delete(clientID string, seq uint64) error {
	return s.update(func(txn *badger.Txn) error {
		return txn.Delete(queueKey(clientID, seq))
	})
}

// List returns the records of clientID in sequence order.
func (s *Store) List(clientID string) ([]storage.Record, error) {
	var records []storage.Record

	err := s.view(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = queuePrefix(clientID)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				rec, err := decodeRecord(val)
				if err != nil {
					return err
				}
				records = append(records, rec)
				return nil
			})
			if err != nil {
				return fmt.Errorf("failed to unmarshal record: %w", err)
			}
		}
		return nil
	})

	return records, err
}

// Clear removes every record of clientID.
func (s *Store) Clear(clientID string) error {
	return s.update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = queuePrefix(clientID)
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)

		var keys [][]byte
		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		it.Close()

		for _, key := range keys {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) update(fn func(txn *badger.Txn) error) error {
	if s.isClosed() {
		return storage.ErrClosed
	}
	return s.db.Update(fn)
}

func (s *Store) view(fn func(txn *badger.Txn) error) error {
	if s.isClosed() {
		return storage.ErrClosed
	}
	err := s.db.View(fn)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return storage.ErrNotFound
	}
	return err
}

func (s *Store) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close stops value log GC and closes the database. It is idempotent.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.gcStopCh)
	<-s.gcDone

	return s.db.Close()
}

func (s *Store) runGC(interval time.Duration, inMemory bool) {
	defer close(s.gcDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if inMemory {
				continue
			}
			// Returns an error when there was nothing to collect.
			_ = s.db.RunValueLogGC(0.5)
		case <-s.gcStopCh:
			return
		}
	}
}
