// Copyright (c) Stinger IPC
// SPDX-License-Identifier: Apache-2.0

package memory

import (
	"testing"

	"github.com/stinger-ipc/stinger-mqtt/message"
	"github.com/stinger-ipc/stinger-mqtt/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_PutList(t *testing.T) {
	s := New()

	for _, seq := range []uint64{3, 1, 2} {
		rec := storage.Record{Seq: seq, Message: message.Signal("a/b", []byte{byte(seq)})}
		require.NoError(t, s.Put("c1", rec))
	}
	require.NoError(t, s.Put("c2", storage.Record{Seq: 9}))

	recs, err := s.List("c1")
	require.NoError(t, err)
	require.Len(t, recs, 3)
	for i, rec := range recs {
		assert.Equal(t, uint64(i+1), rec.Seq)
		assert.Equal(t, []byte{byte(i + 1)}, rec.Message.Payload)
	}
}

func TestStore_CopiesRecords(t *testing.T) {
	s := New()
	payload := []byte("x")
	require.NoError(t, s.Put("c1", storage.Record{Seq: 1, Message: message.Signal("a", payload)}))
	payload[0] = 'y'

	recs, err := s.List("c1")
	require.NoError(t, err)
	recs[0].Message.Payload[0] = 'z'

	recs, err = s.List("c1")
	require.NoError(t, err)
	assert.Equal(t, []byte("x"), recs[0].Message.Payload)
}

func TestStore_DeleteClear(t *testing.T) {
	s := New()
	require.NoError(t, s.Put("c1", storage.Record{Seq: 1}))
	require.NoError(t, s.Put("c1", storage.Record{Seq: 2}))

	require.NoError(t, s.Delete("c1", 1))
	require.NoError(t, s.Delete("c1", 42))
	require.NoError(t, s.Delete("unknown", 1))

	recs, err := s.List("c1")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, uint64(2), recs[0].Seq)

	require.NoError(t, s.Clear("c1"))
	recs, err = s.List("c1")
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestStore_Closed(t *testing.T) {
	s := New()
	require.NoError(t, s.Close())

	assert.ErrorIs(t, s.Put("c1", storage.Record{Seq: 1}), storage.ErrClosed)
	_, err := s.List("c1")
	assert.ErrorIs(t, err, storage.ErrClosed)
}
