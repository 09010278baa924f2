package models

import (
	"time"

	"github.com/google/uuid"
)

// Participant is a row of the room-participant directory.
type Participant struct {
	RoomID   uuid.UUID `json:"roomId"`
	UserID   uuid.UUID `json:"userId"`
	Role     string    `json:"role"`
	JoinedAt time.Time `json:"joinedAt"`
}
