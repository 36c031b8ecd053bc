// Copyright (c) Stinger IPC
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/stinger-ipc/stinger-mqtt/message"
	"github.com/stinger-ipc/stinger-mqtt/storage"
	"github.com/stinger-ipc/stinger-mqtt/wire"
)

// pendingPublish is a publish waiting either for a connection (queued) or
// for its broker acknowledgment (in flight).
type pendingPublish struct {
	seq        uint64
	msg        message.Message
	completion *Completion
	stored     bool
}

// publishQueue holds publishes issued while offline, in FIFO order, and maps
// wire attempt identifiers to completions. It is guarded by Client.mu.
type publishQueue struct {
	clientID string
	entries  []*pendingPublish
	inflight map[wire.AttemptID]*pendingPublish
	nextSeq  uint64
	store    storage.QueueStore
	logger   *slog.Logger
}

func newPublishQueue(clientID string, store storage.QueueStore, logger *slog.Logger) *publishQueue {
	return &publishQueue{
		clientID: clientID,
		inflight: make(map[wire.AttemptID]*pendingPublish),
		store:    store,
		logger:   logger,
	}
}

// load restores records left in the store by a previous client, ahead of
// anything enqueued afterwards.
func (q *publishQueue) load() (int, error) {
	if q.store == nil {
		return 0, nil
	}

	recs, err := q.store.List(q.clientID)
	if err != nil {
		return 0, fmt.Errorf("failed to load queued publishes: %w", err)
	}
	for _, rec := range recs {
		q.entries = append(q.entries, &pendingPublish{
			seq:        rec.Seq,
			msg:        rec.Message,
			completion: newCompletion(),
			stored:     true,
		})
		q.nextSeq = max(q.nextSeq, rec.Seq)
	}
	return len(recs), nil
}

// enqueue appends msg and returns its unresolved completion.
func (q *publishQueue) enqueue(msg message.Message) *Completion {
	q.nextSeq++
	p := &pendingPublish{seq: q.nextSeq, msg: msg.Clone(), completion: newCompletion()}

	if q.store != nil {
		rec := storage.Record{Seq: p.seq, Message: p.msg, Enqueued: time.Now()}
		if err := q.store.Put(q.clientID, rec); err != nil {
			q.logger.Error("Failed to persist queued publish", "topic", msg.Topic, "seq", p.seq, "error", err)
		} else {
			p.stored = true
		}
	}

	q.entries = append(q.entries, p)
	return p.completion
}

// track associates an accepted wire publish with a new completion.
func (q *publishQueue) track(id wire.AttemptID, msg message.Message) *Completion {
	p := &pendingPublish{msg: msg, completion: newCompletion()}
	q.inflight[id] = p
	return p.completion
}

// flush hands queued entries to send in FIFO order. An entry that send
// rejects is failed and skipped. ErrNotConnected stops the flush and keeps
// the remaining entries queued in order.
func (q *publishQueue) flush(send func(message.Message) (wire.AttemptID, error)) (sent, failed int, err error) {
	for len(q.entries) > 0 {
		p := q.entries[0]

		id, err := send(p.msg)
		if errors.Is(err, wire.ErrNotConnected) {
			return sent, failed, err
		}

		q.entries[0] = nil
		q.entries = q.entries[1:]
		q.unstore(p)

		if err != nil {
			q.logger.Error("Failed to flush queued publish", "topic", p.msg.Topic, "seq", p.seq, "error", err)
			p.completion.resolve(fmt.Errorf("publish to %q: %w", p.msg.Topic, err))
			failed++
			continue
		}
		q.inflight[id] = p
		sent++
	}
	return sent, failed, nil
}

func (q *publishQueue) unstore(p *pendingPublish) {
	if !p.stored {
		return
	}
	if err := q.store.Delete(q.clientID, p.seq); err != nil {
		q.logger.Warn("Failed to delete queued publish from store", "seq", p.seq, "error", err)
	}
	p.stored = false
}

// resolve completes the publish with the given attempt identifier. Unknown
// and duplicate identifiers are ignored. Reason codes of 0x80 and above fail
// the completion.
func (q *publishQueue) resolve(id wire.AttemptID, reasonCode byte) (*pendingPublish, bool) {
	p, ok := q.inflight[id]
	if !ok {
		return nil, false
	}
	delete(q.inflight, id)

	var err error
	if reasonCode >= wire.ReasonUnspecifiedError {
		err = &PublishError{Topic: p.msg.Topic, ReasonCode: reasonCode}
	}
	p.completion.resolve(err)
	return p, true
}

// failAll resolves every queued and in-flight completion with err. Stored
// records are kept so that a later client can replay them.
func (q *publishQueue) failAll(err error) int {
	n := 0
	for _, p := range q.entries {
		if p.completion.resolve(err) {
			n++
		}
	}
	for _, p := range q.inflight {
		if p.completion.resolve(err) {
			n++
		}
	}
	q.entries = nil
	q.inflight = make(map[wire.AttemptID]*pendingPublish)
	return n
}

func (q *publishQueue) len() int {
	return len(q.entries)
}

func (q *publishQueue) inflightLen() int {
	return len(q.inflight)
}
