package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/limaxs-dev/chat-server/internal/crypto"
	"github.com/limaxs-dev/chat-server/internal/metrics"
	"github.com/limaxs-dev/chat-server/internal/models"
)

// uniqueViolation is the PostgreSQL SQLSTATE for unique constraint failures.
const uniqueViolation = "23505"

// PostgresStore handles PostgreSQL database operations.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL store with a connection pool.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// InsertMessage persists a message, assigning its id and creation time.
func (s *PostgresStore) InsertMessage(ctx context.Context, msg *models.Message) error {
	defer func(start time.Time) {
		metrics.DatabaseLatency.Observe(time.Since(start).Seconds())
	}(time.Now())

	if msg.ID == uuid.Nil {
		msg.ID = crypto.NewUUIDv7()
	}
	if msg.Type == "" {
		msg.Type = models.MessageTypeText
	}

	var meta any
	if len(msg.ContentMeta) > 0 {
		meta = string(msg.ContentMeta)
	}

	err := s.pool.QueryRow(ctx, `
		INSERT INTO messages (id, room_id, sender_id, type, content_text, content_meta, client_ref, created_at)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7, now())
		RETURNING id, created_at
	`, msg.ID, msg.RoomID, msg.SenderID, msg.Type, msg.ContentText, meta, msg.ClientRef).Scan(
		&msg.ID,
		&msg.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == "messages_client_ref_key" {
			return ErrDuplicateMessage
		}
		return err
	}
	msg.CreatedAt = msg.CreatedAt.UTC()
	return nil
}

// RoomIDsForUser lists the rooms the user participates in.
func (s *PostgresStore) RoomIDsForUser(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	defer func(start time.Time) {
		metrics.DatabaseLatency.Observe(time.Since(start).Seconds())
	}(time.Now())

	rows, err := s.pool.Query(ctx, `
		SELECT room_id FROM room_participants WHERE user_id = $1
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rooms []uuid.UUID
	for rows.Next() {
		var roomID uuid.UUID
		if err := rows.Scan(&roomID); err != nil {
			return nil, err
		}
		rooms = append(rooms, roomID)
	}
	return rooms, rows.Err()
}

// AddParticipant records a room membership. Existing memberships are kept.
func (s *PostgresStore) AddParticipant(ctx context.Context, p models.Participant) error {
	if p.Role == "" {
		p.Role = "MEMBER"
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO room_participants (room_id, user_id, role)
		VALUES ($1, $2, $3)
		ON CONFLICT (room_id, user_id) DO NOTHING
	`, p.RoomID, p.UserID, p.Role)
	return err
}
