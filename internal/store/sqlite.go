package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/limaxs-dev/chat-server/internal/crypto"
	"github.com/limaxs-dev/chat-server/internal/metrics"
	"github.com/limaxs-dev/chat-server/internal/models"
)

// SQLiteStore handles SQLite database operations.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
// If dbPath is empty, defaults to "./data/chat.db"
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = "./data/chat.db"
	}

	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	dsn := "file:" + dbPath + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	store := &SQLiteStore{db: db}

	// Initialize schema
	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

// initSchema creates tables if they don't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS room_participants (
		room_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT 'MEMBER',
		joined_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (room_id, user_id)
	);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		room_id TEXT NOT NULL,
		sender_id TEXT NOT NULL,
		type TEXT NOT NULL,
		content_text TEXT NOT NULL DEFAULT '',
		content_meta TEXT,
		client_ref TEXT UNIQUE,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_room_participants_user ON room_participants(user_id);
	CREATE INDEX IF NOT EXISTS idx_messages_room_created ON messages(room_id, created_at);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() {
	s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// InsertMessage persists a message, assigning its id and creation time.
func (s *SQLiteStore) InsertMessage(ctx context.Context, msg *models.Message) error {
	defer func(start time.Time) {
		metrics.DatabaseLatency.Observe(time.Since(start).Seconds())
	}(time.Now())

	if msg.ID == uuid.Nil {
		msg.ID = crypto.NewUUIDv7()
	}
	if msg.Type == "" {
		msg.Type = models.MessageTypeText
	}
	createdAt := time.Now().UTC()

	var meta, clientRef any
	if len(msg.ContentMeta) > 0 {
		meta = string(msg.ContentMeta)
	}
	if msg.ClientRef != nil {
		clientRef = msg.ClientRef.String()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (id, room_id, sender_id, type, content_text, content_meta, client_ref, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, msg.ID.String(), msg.RoomID.String(), msg.SenderID.String(), msg.Type, msg.ContentText,
		meta, clientRef, createdAt.Format(time.RFC3339Nano))
	if err != nil {
		var sqlErr *sqlite.Error
		if errors.As(err, &sqlErr) && isClientRefConflict(sqlErr) {
			return ErrDuplicateMessage
		}
		return err
	}

	msg.CreatedAt = createdAt
	return nil
}

// isClientRefConflict matches both primary and extended result codes.
func isClientRefConflict(err *sqlite.Error) bool {
	if err.Code()&0xff != sqlite3.SQLITE_CONSTRAINT {
		return false
	}
	return strings.Contains(err.Error(), "messages.client_ref")
}

// RoomIDsForUser lists the rooms the user participates in.
func (s *SQLiteStore) RoomIDsForUser(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT room_id FROM room_participants WHERE user_id = ?
	`, userID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rooms []uuid.UUID
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		roomID, err := uuid.Parse(raw)
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, roomID)
	}
	return rooms, rows.Err()
}

// AddParticipant records a room membership. Existing memberships are kept.
func (s *SQLiteStore) AddParticipant(ctx context.Context, p models.Participant) error {
	if p.Role == "" {
		p.Role = "MEMBER"
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO room_participants (room_id, user_id, role)
		VALUES (?, ?, ?)
	`, p.RoomID.String(), p.UserID.String(), p.Role)
	return err
}

// MessageCount returns the number of stored messages in a room.
func (s *SQLiteStore) MessageCount(ctx context.Context, roomID uuid.UUID) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages WHERE room_id = ?`, roomID.String()).Scan(&n)
	return n, err
}
