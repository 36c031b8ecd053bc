// Copyright (c) Stinger IPC
// SPDX-License-Identifier: Apache-2.0

package wire

// PropertyID is an MQTT v5 property identifier.
type PropertyID byte

// MQTT v5 property identifiers carried on PUBLISH packets.
const (
	PropPayloadFormat          PropertyID = 0x01
	PropMessageExpiry          PropertyID = 0x02
	PropContentType            PropertyID = 0x03
	PropResponseTopic          PropertyID = 0x08
	PropCorrelationData        PropertyID = 0x09
	PropSubscriptionIdentifier PropertyID = 0x0B
	PropReasonString           PropertyID = 0x1F
	PropUserProperty           PropertyID = 0x26
)

// Property is one entry of a generic MQTT v5 property list. Which value field
// is meaningful depends on ID: Int for integer properties, String for UTF-8
// string properties, Binary for binary data and Key/String for user properties.
type Property struct {
	ID     PropertyID
	Key    string
	String string
	Binary []byte
	Int    uint32
}

// Properties is an ordered property list. User properties may repeat.
type Properties []Property

// Find returns the first property with the given identifier.
func (p Properties) Find(id PropertyID) (Property, bool) {
	for _, prop := range p {
		if prop.ID == id {
			return prop, true
		}
	}
	return Property{}, false
}

// User returns the first user property value with the given key.
func (p Properties) User(key string) (string, bool) {
	for _, prop := range p {
		if prop.ID == PropUserProperty && prop.Key == key {
			return prop.String, true
		}
	}
	return "", false
}

// StringProperty builds a UTF-8 string property.
func StringProperty(id PropertyID, v string) Property {
	return Property{ID: id, String: v}
}

// BinaryProperty builds a binary data property.
func BinaryProperty(id PropertyID, v []byte) Property {
	return Property{ID: id, Binary: v}
}

// IntProperty builds an integer property.
func IntProperty(id PropertyID, v uint32) Property {
	return Property{ID: id, Int: v}
}

// UserProperty builds a user property key/value pair.
func UserProperty(key, value string) Property {
	return Property{ID: PropUserProperty, Key: key, String: value}
}
