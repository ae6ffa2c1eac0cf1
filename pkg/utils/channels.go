package utils

import (
	"fmt"
	"strings"
)

const (
	// ChannelPrefix namespaces every Redis key this project writes.
	ChannelPrefix = "research"
	// EventsStream is the append-only stream the indexer consumes.
	EventsStream = ChannelPrefix + ":events"
)

// GetEventChannel returns the Redis Pub/Sub channel for an event type.
// Channel format: research:{eventType}
// Example: research:report.verified
func GetEventChannel(eventType string) string {
	return fmt.Sprintf("%s:%s", ChannelPrefix, eventType)
}

// AllEventsPattern matches every event channel with PSUBSCRIBE.
func AllEventsPattern() string {
	return GetEventChannel("*")
}

// ExtractEventFromChannel returns the event type of a channel name, or "" when the
// channel is not one of ours.
func ExtractEventFromChannel(channel string) string {
	parts := strings.Split(channel, ":")
	if len(parts) != 2 || parts[0] != ChannelPrefix {
		return ""
	}
	return parts[1]
}
