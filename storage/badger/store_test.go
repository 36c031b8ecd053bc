// Copyright (c) Stinger IPC
// SPDX-License-Identifier: Apache-2.0

package badger

import (
	"os"
	"testing"
	"time"

	"github.com/stinger-ipc/stinger-mqtt/message"
	"github.com/stinger-ipc/stinger-mqtt/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupStore(t *testing.T) (*Store, string) {
	t.Helper()
	tmpDir, err := os.MkdirTemp("", "badger-queue-test-*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(tmpDir) })

	store, err := New(Config{Dir: tmpDir})
	require.NoError(t, err)
	return store, tmpDir
}

func TestStore_PutListOrder(t *testing.T) {
	store, _ := setupStore(t)
	defer store.Close()

	// 256 and 1 would sort wrongly with decimal keys.
	for _, seq := range []uint64{256, 1, 2} {
		require.NoError(t, store.Put("c1", storage.Record{Seq: seq, Message: message.Signal("a/b", nil)}))
	}
	require.NoError(t, store.Put("c10", storage.Record{Seq: 5}))

	recs, err := store.List("c1")
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, uint64(1), recs[0].Seq)
	assert.Equal(t, uint64(2), recs[1].Seq)
	assert.Equal(t, uint64(256), recs[2].Seq)
}

func TestStore_RecordRoundTrip(t *testing.T) {
	store, _ := setupStore(t)
	defer store.Close()

	msg := message.MethodResponseWithDebug("svc/resp", []byte(`{"a":1}`), []byte{0, 1}, message.PayloadError, "bad field")
	msg.Properties.Version = message.Ptr("1.0.0")
	enqueued := time.Date(2024, 5, 1, 12, 0, 0, 123, time.UTC)

	require.NoError(t, store.Put("c1", storage.Record{Seq: 7, Message: msg, Enqueued: enqueued}))

	recs, err := store.List("c1")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, msg, recs[0].Message)
	assert.True(t, enqueued.Equal(recs[0].Enqueued))
}

func TestStore_DeleteClear(t *testing.T) {
	store, _ := setupStore(t)
	defer store.Close()

	for seq := uint64(1); seq <= 3; seq++ {
		require.NoError(t, store.Put("c1", storage.Record{Seq: seq}))
	}
	require.NoError(t, store.Put("c2", storage.Record{Seq: 1}))

	require.NoError(t, store.Delete("c1", 2))
	require.NoError(t, store.Delete("c1", 99))

	recs, err := store.List("c1")
	require.NoError(t, err)
	require.Len(t, recs, 2)

	require.NoError(t, store.Clear("c1"))
	recs, err = store.List("c1")
	require.NoError(t, err)
	assert.Empty(t, recs)

	recs, err = store.List("c2")
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestStore_Persistence(t *testing.T) {
	store, dir := setupStore(t)
	require.NoError(t, store.Put("c1", storage.Record{Seq: 1, Message: message.Signal("a/b", []byte("x"))}))
	require.NoError(t, store.Close())

	reopened, err := New(Config{Dir: dir})
	require.NoError(t, err)
	defer reopened.Close()

	recs, err := reopened.List("c1")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "a/b", recs[0].Message.Topic)
	assert.Equal(t, []byte("x"), recs[0].Message.Payload)
}

func TestStore_InMemory(t *testing.T) {
	store, err := New(Config{InMemory: true})
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Put("c1", storage.Record{Seq: 1}))
	recs, err := store.List("c1")
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestStore_Close(t *testing.T) {
	store, _ := setupStore(t)

	assert.NoError(t, store.Close())
	assert.NoError(t, store.Close())

	assert.ErrorIs(t, store.Put("c1", storage.Record{Seq: 1}), storage.ErrClosed)
	_, err := store.List("c1")
	assert.ErrorIs(t, err, storage.ErrClosed)
}
