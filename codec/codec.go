// Copyright (c) Stinger IPC
// SPDX-License-Identifier: Apache-2.0

// Package codec maps message.Properties to and from the generic MQTT v5
// property list understood by wire engines.
package codec

import (
	"log/slog"
	"strconv"

	"github.com/stinger-ipc/stinger-mqtt/message"
	"github.com/stinger-ipc/stinger-mqtt/wire"
)

// User property keys.
const (
	KeyDebugInfo       = "DebugInfo"
	KeyReturnCode      = "ReturnCode"
	KeyPropertyVersion = "PropertyVersion"
	KeyVersion         = "Version"
)

// Codec converts properties. The zero value is not usable; use New.
type Codec struct {
	logger *slog.Logger
}

// New creates a codec that reports malformed inbound values to logger.
// A nil logger uses slog.Default.
func New(logger *slog.Logger) *Codec {
	if logger == nil {
		logger = slog.Default()
	}
	return &Codec{logger: logger}
}

// Encode emits one wire property per present field. The subscription
// identifier is inbound only and is never encoded.
func (c *Codec) Encode(p message.Properties) wire.Properties {
	var out wire.Properties

	if p.ContentType != nil {
		out = append(out, wire.StringProperty(wire.PropContentType, *p.ContentType))
	}
	if p.CorrelationData != nil {
		data := make([]byte, len(p.CorrelationData))
		copy(data, p.CorrelationData)
		out = append(out, wire.BinaryProperty(wire.PropCorrelationData, data))
	}
	if p.ResponseTopic != nil {
		out = append(out, wire.StringProperty(wire.PropResponseTopic, *p.ResponseTopic))
	}
	if p.MessageExpiryInterval != nil {
		out = append(out, wire.IntProperty(wire.PropMessageExpiry, *p.MessageExpiryInterval))
	}
	if p.DebugInfo != nil {
		out = append(out, wire.UserProperty(KeyDebugInfo, *p.DebugInfo))
	}
	if p.ReturnCode != nil {
		out = append(out, wire.UserProperty(KeyReturnCode, strconv.Itoa(int(*p.ReturnCode))))
	}
	if p.PropertyVersion != nil {
		out = append(out, wire.UserProperty(KeyPropertyVersion, strconv.Itoa(*p.PropertyVersion)))
	}
	if p.Version != nil {
		out = append(out, wire.UserProperty(KeyVersion, *p.Version))
	}

	return out
}

// Decode is the inverse of Encode. Unknown properties are ignored and
// malformed numeric user properties are dropped.
func (c *Codec) Decode(props wire.Properties) message.Properties {
	var p message.Properties

	for _, prop := range props {
		switch prop.ID {
		case wire.PropContentType:
			p.ContentType = message.Ptr(prop.String)
		case wire.PropCorrelationData:
			data := make([]byte, len(prop.Binary))
			copy(data, prop.Binary)
			p.CorrelationData = data
		case wire.PropResponseTopic:
			p.ResponseTopic = message.Ptr(prop.String)
		case wire.PropMessageExpiry:
			p.MessageExpiryInterval = message.Ptr(prop.Int)
		case wire.PropSubscriptionIdentifier:
			p.SubscriptionID = message.Ptr(prop.Int)
		case wire.PropUserProperty:
			c.decodeUser(&p, prop.Key, prop.String)
		}
	}

	return p
}

func (c *Codec) decodeUser(p *message.Properties, key, value string) {
	switch key {
	case KeyDebugInfo:
		p.DebugInfo = message.Ptr(value)
	case KeyVersion:
		p.Version = message.Ptr(value)
	case KeyReturnCode:
		n, err := strconv.Atoi(value)
		if err != nil {
			c.logger.Warn("Dropping malformed user property", "key", key, "value", value, "error", err)
			return
		}
		p.ReturnCode = message.Ptr(message.ReturnCode(n))
	case KeyPropertyVersion:
		n, err := strconv.Atoi(value)
		if err != nil {
			c.logger.Warn("Dropping malformed user property", "key", key, "value", value, "error", err)
			return
		}
		p.PropertyVersion = message.Ptr(n)
	}
}

// Encode encodes p with a codec logging to slog.Default.
func Encode(p message.Properties) wire.Properties {
	return New(nil).Encode(p)
}

// Decode decodes props with a codec logging to slog.Default.
func Decode(props wire.Properties) message.Properties {
	return New(nil).Decode(props)
}
