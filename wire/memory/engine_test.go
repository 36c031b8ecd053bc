// Copyright (c) Stinger IPC
// SPDX-License-Identifier: Apache-2.0

package memory_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stinger-ipc/stinger-mqtt/wire"
	"github.com/stinger-ipc/stinger-mqtt/wire/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func connected(t *testing.T, h wire.Handlers) *memory.Engine {
	t.Helper()
	e := memory.New()
	e.SetHandlers(h)
	_, err := e.Connect(context.Background(), wire.ConnectConfig{ClientID: "c1"})
	require.NoError(t, err)
	return e
}

func TestConnectRequiresHandlers(t *testing.T) {
	e := memory.New()
	_, err := e.Connect(context.Background(), wire.ConnectConfig{})
	assert.ErrorIs(t, err, wire.ErrHandlersUnset)
}

func TestConnectError(t *testing.T) {
	e := memory.New()
	e.SetHandlers(wire.Handlers{})
	refused := &wire.ConnAckError{ReasonCode: wire.ReasonNotAuthorized}
	e.SetConnectError(refused)

	_, err := e.Connect(context.Background(), wire.ConnectConfig{ClientID: "c1"})
	assert.ErrorIs(t, err, refused)
	assert.False(t, e.Connected())
	assert.Len(t, e.Connects(), 1)

	e.SetConnectError(nil)
	_, err = e.Connect(context.Background(), wire.ConnectConfig{ClientID: "c1"})
	require.NoError(t, err)
	assert.True(t, e.Connected())
}

func TestSessionPresent(t *testing.T) {
	e := memory.New()
	e.SetHandlers(wire.Handlers{})
	e.SetSessionPresent(true)

	info, err := e.Connect(context.Background(), wire.ConnectConfig{})
	require.NoError(t, err)
	assert.True(t, info.SessionPresent)

	info, err = e.Connect(context.Background(), wire.ConnectConfig{CleanStart: true})
	require.NoError(t, err)
	assert.False(t, info.SessionPresent)
}

func TestNotConnected(t *testing.T) {
	e := memory.New()

	_, err := e.Publish("a/b", nil, 1, false, nil)
	assert.ErrorIs(t, err, wire.ErrNotConnected)
	assert.ErrorIs(t, e.Subscribe("a/b", wire.SubscribeOptions{QoS: 1, SubscriptionID: 1}), wire.ErrNotConnected)
	assert.ErrorIs(t, e.Unsubscribe("a/b"), wire.ErrNotConnected)
	assert.ErrorIs(t, e.Disconnect(wire.ReasonSuccess), wire.ErrNotConnected)
}

func TestPublishAndAck(t *testing.T) {
	type ack struct {
		id     wire.AttemptID
		reason byte
	}
	var acks []ack
	e := connected(t, wire.Handlers{OnPublishAck: func(id wire.AttemptID, reason byte) {
		acks = append(acks, ack{id, reason})
	}})

	id1, err := e.Publish("a", []byte("1"), 1, false, nil)
	require.NoError(t, err)
	id2, err := e.Publish("b", []byte("2"), 0, true, wire.Properties{wire.UserProperty("k", "v")})
	require.NoError(t, err)
	assert.NotEqual(t, id1, id2)

	_, err = e.Publish("c", nil, 3, false, nil)
	assert.ErrorIs(t, err, wire.ErrInvalidQoS)

	assert.Empty(t, acks, "publish must not call handlers")

	e.Ack(id1, wire.ReasonSuccess)
	e.AckAll()
	assert.Equal(t, []ack{{id1, 0}, {id2, 0}}, acks)

	pubs := e.Published()
	require.Len(t, pubs, 2)
	assert.True(t, pubs[0].Acked)
	assert.Equal(t, "b", pubs[1].Topic)
	assert.True(t, pubs[1].Retain)
}

func TestInjectedErrors(t *testing.T) {
	e := connected(t, wire.Handlers{})
	boom := errors.New("boom")

	e.SetPublishError(boom)
	_, err := e.Publish("a", nil, 1, false, nil)
	assert.ErrorIs(t, err, boom)

	e.SetSubscribeError(boom)
	assert.ErrorIs(t, e.Subscribe("a", wire.SubscribeOptions{QoS: 1, SubscriptionID: 1}), boom)
	assert.Empty(t, e.Subscribed())
}

func TestSimulateDisconnect(t *testing.T) {
	var got []wire.DisconnectInfo
	e := connected(t, wire.Handlers{OnDisconnect: func(info wire.DisconnectInfo) {
		got = append(got, info)
	}})

	e.SimulateDisconnect(wire.DisconnectInfo{ReasonCode: wire.ReasonKeepAliveTimeout})
	e.SimulateDisconnect(wire.DisconnectInfo{ReasonCode: wire.ReasonKeepAliveTimeout})

	require.Len(t, got, 1)
	assert.Equal(t, wire.ReasonKeepAliveTimeout, got[0].ReasonCode)
	assert.False(t, e.Connected())
}

func TestSimulateMessage(t *testing.T) {
	var got []wire.Inbound
	e := connected(t, wire.Handlers{OnMessage: func(in wire.Inbound) { got = append(got, in) }})

	e.SimulateMessage(wire.Inbound{Topic: "a/b", Payload: []byte("x"), QoS: 1})
	require.Len(t, got, 1)
	assert.Equal(t, "a/b", got[0].Topic)
}

func TestClose(t *testing.T) {
	e := connected(t, wire.Handlers{})
	require.NoError(t, e.Close())
	assert.True(t, e.Closed())

	_, err := e.Publish("a", nil, 0, false, nil)
	assert.ErrorIs(t, err, wire.ErrEngineClosed)
	_, err = e.Connect(context.Background(), wire.ConnectConfig{})
	assert.ErrorIs(t, err, wire.ErrEngineClosed)
}
