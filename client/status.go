// Copyright (c) Stinger IPC
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"fmt"

	"github.com/stinger-ipc/stinger-mqtt/message"
)

const onlineTopicFormat = "client/%s/online"

var (
	onlinePayload  = []byte(`{"status":"online"}`)
	offlinePayload = []byte(`{"status":"offline"}`)
)

// OnlineTopicFor returns the retained status topic of a client.
func OnlineTopicFor(clientID string) string {
	return fmt.Sprintf(onlineTopicFormat, clientID)
}

func statusMessage(topic string, payload []byte) message.Message {
	return message.New(topic, payload, 1, true, message.Properties{
		ContentType: message.Ptr(message.ContentTypeJSON),
	})
}
