// Copyright (c) Stinger IPC
// SPDX-License-Identifier: Apache-2.0

package paho

import (
	"math"
	"testing"
	"time"

	"github.com/eclipse/paho.golang/paho"
	"github.com/stinger-ipc/stinger-mqtt/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishProperties(t *testing.T) {
	props := wire.Properties{
		wire.IntProperty(wire.PropPayloadFormat, 1),
		wire.IntProperty(wire.PropMessageExpiry, 30),
		wire.StringProperty(wire.PropContentType, "application/json"),
		wire.StringProperty(wire.PropResponseTopic, "resp"),
		wire.BinaryProperty(wire.PropCorrelationData, []byte{1, 2}),
		wire.UserProperty("ReturnCode", "0"),
		wire.UserProperty("DebugInfo", "ok"),
	}

	pp := toPublishProperties(props)
	require.NotNil(t, pp)
	assert.Equal(t, byte(1), *pp.PayloadFormat)
	assert.Equal(t, uint32(30), *pp.MessageExpiry)
	assert.Equal(t, "application/json", pp.ContentType)
	assert.Equal(t, "resp", pp.ResponseTopic)
	assert.Equal(t, []byte{1, 2}, pp.CorrelationData)
	assert.Equal(t, paho.UserProperties{{Key: "ReturnCode", Value: "0"}, {Key: "DebugInfo", Value: "ok"}}, pp.User)

	assert.Equal(t, props, fromPublishProperties(pp))
}

func TestPublishPropertiesEmpty(t *testing.T) {
	assert.Nil(t, toPublishProperties(nil))
	assert.Nil(t, fromPublishProperties(nil))
	assert.Nil(t, willProperties(nil))
}

func TestSubscriptionIdentifier(t *testing.T) {
	id := 7
	props := fromPublishProperties(&paho.PublishProperties{SubscriptionIdentifier: &id})
	p, ok := props.Find(wire.PropSubscriptionIdentifier)
	require.True(t, ok)
	assert.Equal(t, uint32(7), p.Int)

	assert.Nil(t, toPublishProperties(props).SubscriptionIdentifier)
}

func TestConnectPacket(t *testing.T) {
	cp := connectPacket(wire.ConnectConfig{
		ClientID:      "c1",
		Username:      "user",
		Password:      "secret",
		KeepAlive:     60 * time.Second,
		CleanStart:    true,
		SessionExpiry: 3600,
		Will: &wire.Will{
			Topic:      "client/c1/online",
			Payload:    []byte(`{"status":"offline"}`),
			QoS:        1,
			Retain:     true,
			Properties: wire.Properties{wire.StringProperty(wire.PropContentType, "application/json")},
		},
	})

	assert.Equal(t, "c1", cp.ClientID)
	assert.Equal(t, uint16(60), cp.KeepAlive)
	assert.True(t, cp.CleanStart)
	assert.True(t, cp.UsernameFlag)
	assert.True(t, cp.PasswordFlag)
	assert.Equal(t, []byte("secret"), cp.Password)
	require.NotNil(t, cp.Properties)
	assert.Equal(t, uint32(3600), *cp.Properties.SessionExpiryInterval)
	require.NotNil(t, cp.WillMessage)
	assert.Equal(t, "client/c1/online", cp.WillMessage.Topic)
	assert.True(t, cp.WillMessage.Retain)
	require.NotNil(t, cp.WillProperties)
	assert.Equal(t, "application/json", cp.WillProperties.ContentType)
}

func TestConnectPacketAnonymous(t *testing.T) {
	cp := connectPacket(wire.ConnectConfig{ClientID: "c1"})
	assert.False(t, cp.UsernameFlag)
	assert.False(t, cp.PasswordFlag)
	assert.Nil(t, cp.Properties)
	assert.Nil(t, cp.WillMessage)
}

func TestKeepAliveSeconds(t *testing.T) {
	assert.Equal(t, uint16(0), keepAliveSeconds(-1))
	assert.Equal(t, uint16(90), keepAliveSeconds(90.5))
	assert.Equal(t, uint16(math.MaxUint16), keepAliveSeconds(1e9))
}
