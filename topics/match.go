// Copyright (c) Stinger IPC
// SPDX-License-Identifier: Apache-2.0

// Package topics implements MQTT topic name and topic filter rules.
package topics

import "strings"

// Match reports whether topic matches filter according to MQTT wildcard rules.
// '+' matches exactly one level and '#' matches the parent level and every
// level below it. Topics starting with '$' are not matched by a filter whose
// first level is a wildcard. Shared subscription filters are matched on their
// topic filter part.
func Match(filter, topic string) bool {
	if filter == "" || topic == "" {
		return false
	}
	if _, f, ok := ParseShared(filter); ok {
		filter = f
	}
	if filter == topic {
		return true
	}

	filterLevels := strings.Split(filter, "/")
	topicLevels := strings.Split(topic, "/")

	if topic[0] == '$' && (filterLevels[0] == "+" || filterLevels[0] == "#") {
		return false
	}

	for i, f := range filterLevels {
		if f == "#" {
			return true
		}
		if i >= len(topicLevels) {
			return false
		}
		if f != "+" && f != topicLevels[i] {
			return false
		}
	}

	return len(filterLevels) == len(topicLevels)
}
