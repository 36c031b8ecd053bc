// Copyright (c) Stinger IPC
// SPDX-License-Identifier: Apache-2.0

// Package message defines the application message model exchanged over MQTT
// and the constructors that map each messaging intent (signal, property,
// method, service status) onto a fixed QoS, retain flag and property set.
package message

import "github.com/google/uuid"

// ContentTypeJSON is the content type carried by JSON payloads.
const ContentTypeJSON = "application/json"

// Message is an MQTT application message. It is a value type: use Clone
// before handing a message to another goroutine that may modify it.
type Message struct {
	Topic      string
	Payload    []byte
	QoS        byte
	Retain     bool
	Properties Properties
}

// New creates a message with the given parameters.
func New(topic string, payload []byte, qos byte, retain bool, props Properties) Message {
	return Message{
		Topic:      topic,
		Payload:    payload,
		QoS:        qos,
		Retain:     retain,
		Properties: props,
	}
}

// Clone creates a deep copy of the message.
func (m Message) Clone() Message {
	out := m
	if m.Payload != nil {
		out.Payload = make([]byte, len(m.Payload))
		copy(out.Payload, m.Payload)
	}
	out.Properties = m.Properties.Clone()
	return out
}

// Signal creates a fire-and-forget event message.
func Signal(topic string, payload []byte) Message {
	return New(topic, payload, 2, false, Properties{})
}

// PropertyValue creates the retained message that publishes the current value
// of a property.
func PropertyValue(topic string, payload []byte, propertyVersion int) Message {
	return New(topic, payload, 1, true, Properties{
		ContentType:     Ptr(ContentTypeJSON),
		PropertyVersion: Ptr(propertyVersion),
	})
}

// PropertyUpdateRequest creates a request to change a property value.
func PropertyUpdateRequest(topic string, payload []byte, propertyVersion int, correlationData []byte, responseTopic string) Message {
	return New(topic, payload, 1, false, Properties{
		ContentType:     Ptr(ContentTypeJSON),
		PropertyVersion: Ptr(propertyVersion),
		CorrelationData: correlationData,
		ResponseTopic:   Ptr(responseTopic),
	})
}

// PropertyUpdateResponse creates the response to a property update request.
// A nil correlationData leaves the correlation data absent.
func PropertyUpdateResponse(topic string, payload []byte, propertyVersion int, correlationData []byte, rc ReturnCode) Message {
	return New(topic, payload, 1, false, Properties{
		ContentType:     Ptr(ContentTypeJSON),
		PropertyVersion: Ptr(propertyVersion),
		CorrelationData: correlationData,
		ReturnCode:      Ptr(rc),
	})
}

// PropertyUpdateResponseWithDebug is PropertyUpdateResponse with a debug message.
func PropertyUpdateResponseWithDebug(topic string, payload []byte, propertyVersion int, correlationData []byte, rc ReturnCode, debugInfo string) Message {
	msg := PropertyUpdateResponse(topic, payload, propertyVersion, correlationData, rc)
	msg.Properties.DebugInfo = Ptr(debugInfo)
	return msg
}

// MethodRequest creates a remote method call.
func MethodRequest(topic string, payload []byte, correlationData []byte, responseTopic string) Message {
	return New(topic, payload, 2, false, Properties{
		ContentType:     Ptr(ContentTypeJSON),
		CorrelationData: correlationData,
		ResponseTopic:   Ptr(responseTopic),
	})
}

// MethodResponse creates the result of a remote method call.
// A nil correlationData leaves the correlation data absent.
func MethodResponse(topic string, payload []byte, correlationData []byte, rc ReturnCode) Message {
	return New(topic, payload, 1, false, Properties{
		ContentType:     Ptr(ContentTypeJSON),
		CorrelationData: correlationData,
		ReturnCode:      Ptr(rc),
	})
}

// MethodResponseWithDebug is MethodResponse with a debug message.
func MethodResponseWithDebug(topic string, payload []byte, correlationData []byte, rc ReturnCode, debugInfo string) Message {
	msg := MethodResponse(topic, payload, correlationData, rc)
	msg.Properties.DebugInfo = Ptr(debugInfo)
	return msg
}

// ServiceOnline creates the retained announcement that a service is available.
// The broker discards it after messageExpiryInterval seconds.
func ServiceOnline(topic string, payload []byte, messageExpiryInterval uint32) Message {
	return New(topic, payload, 1, true, Properties{
		ContentType:           Ptr(ContentTypeJSON),
		MessageExpiryInterval: Ptr(messageExpiryInterval),
	})
}

// ServiceOffline creates the empty retained message that clears a service
// online announcement.
func ServiceOffline(topic string) Message {
	return New(topic, []byte{}, 1, true, Properties{})
}

// NewCorrelationData returns 16 random bytes suitable for correlating a
// request with its response.
func NewCorrelationData() []byte {
	id := uuid.New()
	return id[:]
}
