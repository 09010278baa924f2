package store

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/limaxs-dev/chat-server/internal/models"
)

// ErrDuplicateMessage is returned when a message reuses a client idempotency key.
var ErrDuplicateMessage = errors.New("duplicate message")

// DataStore defines durable storage for messages and the room-participant
// directory. Both PostgresStore and SQLiteStore implement this interface.
type DataStore interface {
	// Connection management
	Close()
	Ping(ctx context.Context) error

	// Message operations
	InsertMessage(ctx context.Context, msg *models.Message) error

	// Directory operations
	RoomIDsForUser(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)
	AddParticipant(ctx context.Context, p models.Participant) error
}
