// Copyright (c) Stinger IPC
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryAcquireRelease(t *testing.T) {
	r := newSubscriptionRegistry()

	rec, isNew := r.acquire("a/b", 1)
	require.True(t, isNew)
	assert.Equal(t, uint32(1), rec.id)

	rec, isNew = r.acquire("a/b", 2)
	assert.False(t, isNew)
	assert.Equal(t, uint32(1), rec.id)
	assert.Equal(t, byte(1), rec.qos, "qos of an existing record is kept")
	assert.Equal(t, 2, r.count("a/b"))

	_, removed, known := r.release("a/b")
	assert.True(t, known)
	assert.False(t, removed)

	_, removed, known = r.release("a/b")
	assert.True(t, known)
	assert.True(t, removed)
	assert.Equal(t, 0, r.count("a/b"))

	_, _, known = r.release("a/b")
	assert.False(t, known)
}

func TestRegistryIDsNeverReused(t *testing.T) {
	r := newSubscriptionRegistry()

	first, _ := r.acquire("a", 0)
	r.release("a")
	second, _ := r.acquire("a", 0)
	third, _ := r.acquire("b", 0)

	assert.Equal(t, uint32(1), first.id)
	assert.Equal(t, uint32(2), second.id)
	assert.Equal(t, uint32(3), third.id)

	r.discard("b")
	fourth, _ := r.acquire("c", 0)
	assert.Equal(t, uint32(4), fourth.id)
}

func TestRegistryStagedOrder(t *testing.T) {
	r := newSubscriptionRegistry()

	for _, topic := range []string{"z", "a", "m", "b"} {
		rec, _ := r.acquire(topic, 1)
		rec.staged = topic != "m"
	}

	var topics []string
	for _, rec := range r.staged() {
		topics = append(topics, rec.topic)
	}
	assert.Equal(t, []string{"z", "a", "b"}, topics)

	r.stageAll()
	assert.Len(t, r.staged(), 4)
}

func TestRegistryDeferredUnsubscribe(t *testing.T) {
	r := newSubscriptionRegistry()
	assert.Empty(t, r.deferred())

	r.deferUnsubscribe("z")
	r.deferUnsubscribe("a")
	r.deferUnsubscribe("m")
	assert.Equal(t, []string{"a", "m", "z"}, r.deferred())

	r.acquire("m", 1)
	assert.Equal(t, []string{"a", "z"}, r.deferred(), "a new subscribe replaces the kept one")

	r.unsubscribed("a")
	assert.Equal(t, []string{"z"}, r.deferred())

	r.dropDeferred()
	assert.Empty(t, r.deferred())
}
