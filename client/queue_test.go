// Copyright (c) Stinger IPC
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"errors"
	"log/slog"
	"testing"

	"github.com/stinger-ipc/stinger-mqtt/message"
	"github.com/stinger-ipc/stinger-mqtt/storage"
	"github.com/stinger-ipc/stinger-mqtt/storage/memory"
	"github.com/stinger-ipc/stinger-mqtt/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder is a send func that assigns attempt ids in call order.
type recorder struct {
	topics []string
	nextID wire.AttemptID
	fail   map[string]error
}

func (r *recorder) send(msg message.Message) (wire.AttemptID, error) {
	if err := r.fail[msg.Topic]; err != nil {
		return 0, err
	}
	r.topics = append(r.topics, msg.Topic)
	r.nextID++
	return r.nextID, nil
}

func newTestQueue(store storage.QueueStore) *publishQueue {
	return newPublishQueue("c1", store, slog.New(slog.DiscardHandler))
}

func TestQueueFIFO(t *testing.T) {
	q := newTestQueue(nil)

	var completions []*Completion
	for _, topic := range []string{"a", "b", "c"} {
		completions = append(completions, q.enqueue(message.Signal(topic, nil)))
	}
	assert.Equal(t, 3, q.len())

	r := &recorder{}
	sent, failed, err := q.flush(r.send)
	require.NoError(t, err)
	assert.Equal(t, 3, sent)
	assert.Equal(t, 0, failed)
	assert.Equal(t, []string{"a", "b", "c"}, r.topics)
	assert.Equal(t, 0, q.len())
	assert.Equal(t, 3, q.inflightLen())

	for _, c := range completions {
		done, _ := c.Poll()
		assert.False(t, done, "flush must not resolve completions")
	}

	_, ok := q.resolve(2, wire.ReasonSuccess)
	require.True(t, ok)
	assert.True(t, completions[1].Succeeded())
	assert.False(t, completions[0].Succeeded())

	_, ok = q.resolve(2, wire.ReasonSuccess)
	assert.False(t, ok, "duplicate ack is a no-op")
	_, ok = q.resolve(42, wire.ReasonSuccess)
	assert.False(t, ok, "unknown ack is a no-op")
}

func TestQueueFlushContinuesAfterFailure(t *testing.T) {
	q := newTestQueue(nil)
	boom := errors.New("payload too large")

	ca := q.enqueue(message.Signal("a", nil))
	cb := q.enqueue(message.Signal("b", nil))
	cc := q.enqueue(message.Signal("c", nil))

	r := &recorder{fail: map[string]error{"b": boom}}
	sent, failed, err := q.flush(r.send)
	require.NoError(t, err)
	assert.Equal(t, 2, sent)
	assert.Equal(t, 1, failed)
	assert.Equal(t, []string{"a", "c"}, r.topics)

	assert.ErrorIs(t, cb.Err(), boom)
	done, _ := ca.Poll()
	assert.False(t, done)
	done, _ = cc.Poll()
	assert.False(t, done)
}

func TestQueueFlushStopsWhenDisconnected(t *testing.T) {
	q := newTestQueue(nil)
	q.enqueue(message.Signal("a", nil))
	cb := q.enqueue(message.Signal("b", nil))
	q.enqueue(message.Signal("c", nil))

	r := &recorder{fail: map[string]error{"b": wire.ErrNotConnected}}
	sent, _, err := q.flush(r.send)
	assert.ErrorIs(t, err, wire.ErrNotConnected)
	assert.Equal(t, 1, sent)
	assert.Equal(t, 2, q.len())
	done, _ := cb.Poll()
	assert.False(t, done, "entry stays queued")

	r.fail = nil
	_, _, err = q.flush(r.send)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, r.topics)
}

func TestQueueRejectedAck(t *testing.T) {
	q := newTestQueue(nil)
	c := q.track(7, message.Signal("a/b", nil))

	_, ok := q.resolve(7, wire.ReasonNotAuthorized)
	require.True(t, ok)

	err := c.Err()
	assert.ErrorIs(t, err, ErrPublishRejected)
	var pubErr *PublishError
	require.ErrorAs(t, err, &pubErr)
	assert.Equal(t, wire.ReasonNotAuthorized, pubErr.ReasonCode)
	assert.Equal(t, "a/b", pubErr.Topic)
}

func TestQueueFailAll(t *testing.T) {
	q := newTestQueue(nil)
	queued := q.enqueue(message.Signal("a", nil))
	inflight := q.track(1, message.Signal("b", nil))

	assert.Equal(t, 2, q.failAll(ErrClientClosed))
	assert.ErrorIs(t, queued.Err(), ErrClientClosed)
	assert.ErrorIs(t, inflight.Err(), ErrClientClosed)
	assert.Equal(t, 0, q.len())
	assert.Equal(t, 0, q.inflightLen())
}

func TestQueueStore(t *testing.T) {
	store := memory.New()
	q := newTestQueue(store)

	q.enqueue(message.Signal("a", []byte("1")))
	q.enqueue(message.Signal("b", []byte("2")))

	recs, err := store.List("c1")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "a", recs[0].Message.Topic)
	assert.False(t, recs[0].Enqueued.IsZero())

	// Records survive failAll so that the next client replays them.
	q.failAll(ErrClientClosed)

	restored := newTestQueue(store)
	n, err := restored.load()
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	c := restored.enqueue(message.Signal("c", nil))
	assert.NotNil(t, c)

	r := &recorder{}
	_, _, err = restored.flush(r.send)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, r.topics)

	recs, err = store.List("c1")
	require.NoError(t, err)
	assert.Empty(t, recs, "accepted publishes are removed from the store")
}
