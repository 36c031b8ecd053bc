// Copyright (c) Stinger IPC
// SPDX-License-Identifier: Apache-2.0

package topics

import (
	"errors"
	"strings"
	"unicode/utf8"
)

// Validation errors.
var (
	ErrInvalidTopicName   = errors.New("invalid topic name: contains wildcards or illegal characters")
	ErrInvalidTopicFilter = errors.New("invalid topic filter: misplaced wildcard or illegal characters")
)

// maxTopicLength is the largest UTF-8 encoded string MQTT can carry.
const maxTopicLength = 65535

// ValidateTopicName checks if the topic name is valid for PUBLISH (no wildcards).
func ValidateTopicName(topic string) error {
	if !validString(topic) {
		return ErrInvalidTopicName
	}
	if strings.ContainsAny(topic, "+#") {
		return ErrInvalidTopicName
	}
	return nil
}

// ValidateTopicFilter checks if the filter is valid for SUBSCRIBE. '+' must
// occupy a whole level and '#' must occupy the whole last level.
func ValidateTopicFilter(filter string) error {
	if !validString(filter) {
		return ErrInvalidTopicFilter
	}
	if strings.HasPrefix(filter, sharePrefix) {
		_, f, ok := ParseShared(filter)
		if !ok {
			return ErrInvalidTopicFilter
		}
		filter = f
	}

	levels := strings.Split(filter, "/")
	for i, level := range levels {
		switch {
		case level == "#":
			if i != len(levels)-1 {
				return ErrInvalidTopicFilter
			}
		case level == "+":
		case strings.ContainsAny(level, "+#"):
			return ErrInvalidTopicFilter
		}
	}
	return nil
}

func validString(s string) bool {
	if s == "" || len(s) > maxTopicLength {
		return false
	}
	return utf8.ValidString(s) && !strings.ContainsRune(s, 0)
}
