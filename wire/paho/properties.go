// Copyright (c) Stinger IPC
// SPDX-License-Identifier: Apache-2.0

package paho

import (
	"math"

	"github.com/eclipse/paho.golang/paho"
	"github.com/stinger-ipc/stinger-mqtt/wire"
)

func connectPacket(cfg wire.ConnectConfig) *paho.Connect {
	cp := &paho.Connect{
		ClientID:     cfg.ClientID,
		KeepAlive:    keepAliveSeconds(cfg.KeepAlive.Seconds()),
		CleanStart:   cfg.CleanStart,
		Username:     cfg.Username,
		UsernameFlag: cfg.Username != "",
		Password:     []byte(cfg.Password),
		PasswordFlag: cfg.Password != "",
	}
	if cfg.SessionExpiry > 0 {
		expiry := cfg.SessionExpiry
		cp.Properties = &paho.ConnectProperties{SessionExpiryInterval: &expiry}
	}
	if w := cfg.Will; w != nil {
		cp.WillMessage = &paho.WillMessage{
			Topic:   w.Topic,
			Payload: w.Payload,
			QoS:     w.QoS,
			Retain:  w.Retain,
		}
		cp.WillProperties = willProperties(w.Properties)
	}
	return cp
}

func keepAliveSeconds(s float64) uint16 {
	switch {
	case s <= 0:
		return 0
	case s >= math.MaxUint16:
		return math.MaxUint16
	}
	return uint16(s)
}

func publishPacket(o op) *paho.Publish {
	return &paho.Publish{
		Topic:      o.topic,
		Payload:    o.payload,
		QoS:        o.qos,
		Retain:     o.retain,
		Properties: toPublishProperties(o.props),
	}
}

// toPublishProperties maps props onto a PUBLISH. Subscription identifiers
// are only valid from the broker and are dropped.
func toPublishProperties(props wire.Properties) *paho.PublishProperties {
	if len(props) == 0 {
		return nil
	}
	pp := &paho.PublishProperties{}
	for _, p := range props {
		switch p.ID {
		case wire.PropPayloadFormat:
			v := byte(p.Int)
			pp.PayloadFormat = &v
		case wire.PropMessageExpiry:
			v := p.Int
			pp.MessageExpiry = &v
		case wire.PropContentType:
			pp.ContentType = p.String
		case wire.PropResponseTopic:
			pp.ResponseTopic = p.String
		case wire.PropCorrelationData:
			pp.CorrelationData = p.Binary
		case wire.PropUserProperty:
			pp.User = append(pp.User, paho.UserProperty{Key: p.Key, Value: p.String})
		}
	}
	return pp
}

func willProperties(props wire.Properties) *paho.WillProperties {
	pp := toPublishProperties(props)
	if pp == nil {
		return nil
	}
	return &paho.WillProperties{
		PayloadFormat:   pp.PayloadFormat,
		MessageExpiry:   pp.MessageExpiry,
		ContentType:     pp.ContentType,
		ResponseTopic:   pp.ResponseTopic,
		CorrelationData: pp.CorrelationData,
		User:            pp.User,
	}
}

func fromPublishProperties(pp *paho.PublishProperties) wire.Properties {
	if pp == nil {
		return nil
	}
	var props wire.Properties
	if pp.PayloadFormat != nil {
		props = append(props, wire.IntProperty(wire.PropPayloadFormat, uint32(*pp.PayloadFormat)))
	}
	if pp.MessageExpiry != nil {
		props = append(props, wire.IntProperty(wire.PropMessageExpiry, *pp.MessageExpiry))
	}
	if pp.ContentType != "" {
		props = append(props, wire.StringProperty(wire.PropContentType, pp.ContentType))
	}
	if pp.ResponseTopic != "" {
		props = append(props, wire.StringProperty(wire.PropResponseTopic, pp.ResponseTopic))
	}
	if pp.CorrelationData != nil {
		props = append(props, wire.BinaryProperty(wire.PropCorrelationData, pp.CorrelationData))
	}
	if pp.SubscriptionIdentifier != nil && *pp.SubscriptionIdentifier > 0 {
		props = append(props, wire.IntProperty(wire.PropSubscriptionIdentifier, uint32(*pp.SubscriptionIdentifier)))
	}
	for _, u := range pp.User {
		props = append(props, wire.UserProperty(u.Key, u.Value))
	}
	return props
}
