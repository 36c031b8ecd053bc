// Copyright (c) Stinger IPC
// SPDX-License-Identifier: Apache-2.0

package message

// Properties holds the MQTT v5 publish properties used by the application.
// Every field is optional: nil means the property is absent.
type Properties struct {
	// CorrelationData links a request to its response. A non-nil empty
	// slice is a present, zero-length value.
	CorrelationData []byte
	ResponseTopic   *string

	// SubscriptionID is set on inbound messages only and ignored on publish.
	SubscriptionID        *uint32
	MessageExpiryInterval *uint32
	ContentType           *string

	// User properties.
	DebugInfo       *string     // Human readable debug message returned to the caller.
	ReturnCode      *ReturnCode // Method return code returned to the caller.
	PropertyVersion *int        // Modification count of a property.
	Version         *string     // Version of the method, property or signal.
}

// IsEmpty reports whether no property is present.
func (p Properties) IsEmpty() bool {
	return p.CorrelationData == nil &&
		p.ResponseTopic == nil &&
		p.SubscriptionID == nil &&
		p.MessageExpiryInterval == nil &&
		p.ContentType == nil &&
		p.DebugInfo == nil &&
		p.ReturnCode == nil &&
		p.PropertyVersion == nil &&
		p.Version == nil
}

// Clone returns a deep copy of the properties.
func (p Properties) Clone() Properties {
	out := Properties{
		ResponseTopic:         clonePtr(p.ResponseTopic),
		SubscriptionID:        clonePtr(p.SubscriptionID),
		MessageExpiryInterval: clonePtr(p.MessageExpiryInterval),
		ContentType:           clonePtr(p.ContentType),
		DebugInfo:             clonePtr(p.DebugInfo),
		ReturnCode:            clonePtr(p.ReturnCode),
		PropertyVersion:       clonePtr(p.PropertyVersion),
		Version:               clonePtr(p.Version),
	}
	if p.CorrelationData != nil {
		out.CorrelationData = make([]byte, len(p.CorrelationData))
		copy(out.CorrelationData, p.CorrelationData)
	}
	return out
}

func clonePtr[T any](v *T) *T {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

// Ptr returns a pointer to v. It is a convenience for filling optional properties.
func Ptr[T any](v T) *T {
	return &v
}
