// Copyright (c) Stinger IPC
// SPDX-License-Identifier: Apache-2.0

package message_test

import (
	"testing"

	"github.com/stinger-ipc/stinger-mqtt/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	msg := message.New("test/topic", []byte("test payload"), 0, false, message.Properties{})

	assert.Equal(t, "test/topic", msg.Topic)
	assert.Equal(t, []byte("test payload"), msg.Payload)
	assert.Equal(t, byte(0), msg.QoS)
	assert.False(t, msg.Retain)
	assert.True(t, msg.Properties.IsEmpty())
}

func TestClone(t *testing.T) {
	original := message.New("test/topic", []byte("payload"), 1, true, message.Properties{
		ContentType:     message.Ptr("text/plain"),
		CorrelationData: []byte{0x01, 0x02},
	})

	clone := original.Clone()
	require.Equal(t, original, clone)

	clone.Payload[0] = 'X'
	clone.Properties.CorrelationData[0] = 0xFF
	*clone.Properties.ContentType = "application/octet-stream"

	assert.Equal(t, []byte("payload"), original.Payload)
	assert.Equal(t, []byte{0x01, 0x02}, original.Properties.CorrelationData)
	assert.Equal(t, "text/plain", *original.Properties.ContentType)
}

func TestFactories(t *testing.T) {
	corr := []byte{0x11, 0x22, 0x33}

	tests := []struct {
		name   string
		msg    message.Message
		qos    byte
		retain bool
		check  func(t *testing.T, p message.Properties)
	}{
		{
			name:   "signal",
			msg:    message.Signal("sensors/temp", []byte("22.5")),
			qos:    2,
			retain: false,
			check: func(t *testing.T, p message.Properties) {
				assert.True(t, p.IsEmpty())
			},
		},
		{
			name:   "property value",
			msg:    message.PropertyValue("device/status", []byte("online"), 5),
			qos:    1,
			retain: true,
			check: func(t *testing.T, p message.Properties) {
				require.NotNil(t, p.PropertyVersion)
				assert.Equal(t, 5, *p.PropertyVersion)
				require.NotNil(t, p.ContentType)
				assert.Equal(t, message.ContentTypeJSON, *p.ContentType)
			},
		},
		{
			name:   "property update request",
			msg:    message.PropertyUpdateRequest("prop/update", []byte("new"), 10, corr, "response/topic"),
			qos:    1,
			retain: false,
			check: func(t *testing.T, p message.Properties) {
				assert.Equal(t, 10, *p.PropertyVersion)
				assert.Equal(t, corr, p.CorrelationData)
				assert.Equal(t, "response/topic", *p.ResponseTopic)
			},
		},
		{
			name:   "property update response",
			msg:    message.PropertyUpdateResponseWithDebug("prop/response", []byte("ok"), 7, corr, message.Success, "Update completed"),
			qos:    1,
			retain: false,
			check: func(t *testing.T, p message.Properties) {
				assert.Equal(t, 7, *p.PropertyVersion)
				assert.Equal(t, message.Success, *p.ReturnCode)
				assert.Equal(t, "Update completed", *p.DebugInfo)
			},
		},
		{
			name:   "property update response without correlation",
			msg:    message.PropertyUpdateResponse("prop/response", []byte("ok"), 7, nil, message.ServerError),
			qos:    1,
			retain: false,
			check: func(t *testing.T, p message.Properties) {
				assert.Nil(t, p.CorrelationData)
				assert.Nil(t, p.DebugInfo)
				assert.Equal(t, message.ServerError, *p.ReturnCode)
			},
		},
		{
			name:   "method request",
			msg:    message.MethodRequest("method/call", []byte(`{"param":"value"}`), corr, "method/response"),
			qos:    2,
			retain: false,
			check: func(t *testing.T, p message.Properties) {
				assert.Len(t, p.CorrelationData, 3)
				assert.Equal(t, "method/response", *p.ResponseTopic)
				assert.Nil(t, p.ReturnCode)
			},
		},
		{
			name:   "method response",
			msg:    message.MethodResponseWithDebug("method/response", []byte(`{"result":42}`), []byte{0xFF}, message.PayloadError, "bad payload"),
			qos:    1,
			retain: false,
			check: func(t *testing.T, p message.Properties) {
				assert.Equal(t, []byte{0xFF}, p.CorrelationData)
				assert.Equal(t, message.PayloadError, *p.ReturnCode)
				assert.Equal(t, "bad payload", *p.DebugInfo)
			},
		},
		{
			name:   "service online",
			msg:    message.ServiceOnline("service/online", []byte(`{}`), 120),
			qos:    1,
			retain: true,
			check: func(t *testing.T, p message.Properties) {
				assert.Equal(t, uint32(120), *p.MessageExpiryInterval)
			},
		},
		{
			name:   "service offline",
			msg:    message.ServiceOffline("service/online"),
			qos:    1,
			retain: true,
			check: func(t *testing.T, p message.Properties) {
				assert.True(t, p.IsEmpty())
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.qos, tt.msg.QoS)
			assert.Equal(t, tt.retain, tt.msg.Retain)
			tt.check(t, tt.msg.Properties)
		})
	}
}

func TestEmptyCorrelationDataIsPresent(t *testing.T) {
	msg := message.MethodRequest("test/topic", []byte("payload"), []byte{}, "response")

	require.NotNil(t, msg.Properties.CorrelationData)
	assert.Empty(t, msg.Properties.CorrelationData)
	assert.False(t, msg.Properties.IsEmpty())
}

func TestNewCorrelationData(t *testing.T) {
	a := message.NewCorrelationData()
	b := message.NewCorrelationData()

	assert.Len(t, a, 16)
	assert.NotEqual(t, a, b)
}

func TestReturnCodeString(t *testing.T) {
	assert.Equal(t, "success", message.Success.String())
	assert.Equal(t, "not implemented", message.NotImplemented.String())
	assert.Equal(t, "return code 200", message.ReturnCode(200).String())
}
