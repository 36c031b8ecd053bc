// Copyright (c) Stinger IPC
// SPDX-License-Identifier: Apache-2.0

package mock

import (
	"testing"
	"time"

	"github.com/stinger-ipc/stinger-mqtt/client"
	"github.com/stinger-ipc/stinger-mqtt/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublish(t *testing.T) {
	conn := New("test_client")

	comp, err := conn.Publish(message.Signal("test/topic", []byte("test payload")))
	require.NoError(t, err)
	require.NoError(t, comp.WaitTimeout(time.Second))
	assert.True(t, comp.Succeeded())

	published := conn.PublishedMessages()
	require.Len(t, published, 1)
	assert.Equal(t, "test/topic", published[0].Topic)
	assert.Equal(t, []byte("test payload"), published[0].Payload)

	_, err = conn.Publish(message.New("a", nil, 3, false, message.Properties{}))
	assert.ErrorIs(t, err, client.ErrInvalidQoS)
}

func TestPublishedMessagesByTopic(t *testing.T) {
	conn := New("test_client")
	for _, m := range []struct{ topic, payload string }{
		{"topic1", "msg1"},
		{"topic2", "msg2"},
		{"topic1", "msg3"},
	} {
		_, err := conn.Publish(message.Signal(m.topic, []byte(m.payload)))
		require.NoError(t, err)
	}

	got := conn.PublishedMessages("topic1")
	require.Len(t, got, 2)
	assert.Equal(t, []byte("msg1"), got[0].Payload)
	assert.Equal(t, []byte("msg3"), got[1].Payload)

	conn.ClearPublishedMessages()
	assert.Empty(t, conn.PublishedMessages())
}

func TestSubscribe(t *testing.T) {
	conn := New("test_client")

	id, err := conn.Subscribe("sensor/temperature", 1)
	require.NoError(t, err)
	assert.Positive(t, id)
	assert.True(t, conn.IsSubscribed("sensor/temperature"))
	assert.Equal(t, 1, conn.SubscriptionQoS("sensor/temperature"))
	assert.Equal(t, -1, conn.SubscriptionQoS("sensor/humidity"))

	again, err := conn.Subscribe("sensor/temperature", 1)
	require.NoError(t, err)
	assert.Equal(t, id, again)

	conn.Unsubscribe("sensor/temperature")
	assert.True(t, conn.IsSubscribed("sensor/temperature"), "one reference left")
	conn.Unsubscribe("sensor/temperature")
	assert.False(t, conn.IsSubscribed("sensor/temperature"))
	conn.Unsubscribe("sensor/temperature")

	_, err = conn.Subscribe("a/#/b", 0)
	assert.ErrorIs(t, err, client.ErrInvalidTopic)
}

func TestSubscriptions(t *testing.T) {
	conn := New("test_client")
	_, err := conn.Subscribe("b", 0)
	require.NoError(t, err)
	_, err = conn.Subscribe("a", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, conn.Subscriptions())
}

func TestMessageCallback(t *testing.T) {
	conn := New("test_client")
	_, err := conn.Subscribe("test/topic", 1)
	require.NoError(t, err)

	var received []message.Message
	h := conn.AddMessageCallback(func(m message.Message) { received = append(received, m) })

	assert.True(t, conn.SimulateIncomingMessage(message.Signal("test/topic", []byte("hello"))))
	require.Len(t, received, 1)
	assert.Equal(t, "test/topic", received[0].Topic)
	assert.Equal(t, []byte("hello"), received[0].Payload)

	assert.False(t, conn.SimulateIncomingMessage(message.Signal("other/topic", nil)))
	assert.Len(t, received, 1)

	conn.RemoveMessageCallback(h)
	conn.RemoveMessageCallback(h)
	conn.SimulateIncomingMessage(message.Signal("test/topic", nil))
	assert.Len(t, received, 1)
	assert.Equal(t, client.CallbackHandle(0), conn.AddMessageCallback(nil))
}

func TestWildcardSubscription(t *testing.T) {
	conn := New("test_client")
	_, err := conn.Subscribe("sensor/+/temperature", 1)
	require.NoError(t, err)

	var order []int
	conn.AddMessageCallback(func(message.Message) { order = append(order, 1) })
	conn.AddMessageCallback(func(message.Message) { order = append(order, 2) })

	assert.True(t, conn.SimulateIncomingMessage(message.Signal("sensor/room1/temperature", nil)))
	assert.Equal(t, []int{1, 2}, order)
}

func TestIdentity(t *testing.T) {
	conn := New("test_client")
	assert.Equal(t, "test_client", conn.ClientID())
	assert.Equal(t, "client/test_client/online", conn.OnlineTopic())
}

func TestTopicMatching(t *testing.T) {
	conn := New("test_client")
	assert.True(t, conn.TopicMatchesSubscription("sensor/temp", "sensor/temp"))
	assert.True(t, conn.TopicMatchesSubscription("sensor/temp", "sensor/+"))
	assert.True(t, conn.TopicMatchesSubscription("sensor/temp", "#"))
	assert.True(t, conn.TopicMatchesSubscription("sensor/temp/room1", "sensor/#"))
	assert.False(t, conn.TopicMatchesSubscription("sensor/temp", "device/temp"))
}
