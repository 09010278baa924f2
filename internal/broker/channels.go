// Package broker carries envelopes between nodes over Redis pub/sub and
// fans them out to the connections registered on this node.
package broker

import (
	"strings"

	"github.com/google/uuid"
)

// Channel family prefixes. Each family is parameterized by a room or user id.
const (
	FamilyRoom     = "chat:room:"
	FamilySignal   = "signal:user:"
	FamilyTyping   = "typing:room:"
	FamilyPresence = "presence:room:" // reserved, nothing publishes to it yet
)

var families = []string{FamilyRoom, FamilySignal, FamilyTyping, FamilyPresence}

// RoomChannel carries NEW_MESSAGE envelopes for a room.
func RoomChannel(roomID uuid.UUID) string { return FamilyRoom + roomID.String() }

// UserChannel carries signaling envelopes addressed to a user.
func UserChannel(userID uuid.UUID) string { return FamilySignal + userID.String() }

// TypingChannel carries typing indicators for a room.
func TypingChannel(roomID uuid.UUID) string { return FamilyTyping + roomID.String() }

// PresenceChannel carries presence changes for a room.
func PresenceChannel(roomID uuid.UUID) string { return FamilyPresence + roomID.String() }

// Patterns returns the wildcard subscriptions covering every family.
func Patterns() []string {
	patterns := make([]string, len(families))
	for i, f := range families {
		patterns[i] = f + "*"
	}
	return patterns
}

// Family returns the family prefix of a channel, or "" if it belongs to none.
func Family(channel string) string {
	for _, f := range families {
		if strings.HasPrefix(channel, f) {
			return f
		}
	}
	return ""
}

// familyLabel trims the trailing separator for metric labels.
func familyLabel(family string) string {
	if family == "" {
		return "unknown"
	}
	return strings.TrimSuffix(family, ":")
}
