// Copyright (c) Stinger IPC
// SPDX-License-Identifier: Apache-2.0

package topics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseShared(t *testing.T) {
	tests := []struct {
		name      string
		filter    string
		wantShare string
		wantTopic string
		wantOK    bool
	}{
		{"shared", "$share/group1/sensors/#", "group1", "sensors/#", true},
		{"shared nested", "$share/consumers/home/+/temperature", "consumers", "home/+/temperature", true},
		{"plain", "sensors/#", "", "sensors/#", false},
		{"no topic", "$share/group1", "", "$share/group1", false},
		{"empty group", "$share//a", "", "$share//a", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			share, topic, ok := ParseShared(tt.filter)
			assert.Equal(t, tt.wantShare, share)
			assert.Equal(t, tt.wantTopic, topic)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantOK, IsShared(tt.filter))
		})
	}
}
