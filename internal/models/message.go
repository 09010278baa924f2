package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Message types accepted on SEND_MSG. Unknown types are stored as sent.
const (
	MessageTypeText      = "TEXT"
	MessageTypeImage     = "IMAGE"
	MessageTypeFile      = "FILE"
	MessageTypeAudio     = "AUDIO"
	MessageTypeVideo     = "VIDEO"
	MessageTypeSystem    = "SYSTEM"
	MessageTypeVoiceCall = "VOICE_CALL"
)

// Message represents a chat message persisted by the message store.
type Message struct {
	ID          uuid.UUID       `json:"id"`
	RoomID      uuid.UUID       `json:"roomId"`
	SenderID    uuid.UUID       `json:"senderId"`
	Type        string          `json:"type"`
	ContentText string          `json:"contentText"`
	ContentMeta json.RawMessage `json:"contentMeta,omitempty"` // opaque JSON
	ClientRef   *uuid.UUID      `json:"clientRef,omitempty"`   // idempotency key, REST path only
	CreatedAt   time.Time       `json:"createdAt"`
}
