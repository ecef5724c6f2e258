// Package history stores birthdaybot conversations in a SQLite database.
package history

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// DefaultDatabasePath is the default path where the history database is stored.
const DefaultDatabasePath = ".birthdaybot/history.db"

// Message is a single entry of a conversation. Payload is stored as JSON.
type Message struct {
	Payload   any
	CreatedAt time.Time
}

// Conversation is an ordered list of messages exchanged with one sender.
// Sender is empty for local chat sessions.
type Conversation struct {
	ID        string
	Sender    string
	Messages  []*Message
	CreatedAt time.Time
}

// New creates a new Conversation for sender with a random ID.
func New(sender string) (*Conversation, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return nil, err
	}
	return &Conversation{
		ID:        id.String(),
		Sender:    sender,
		Messages:  make([]*Message, 0),
		CreatedAt: time.Now().UTC(),
	}, nil
}

// Append adds payload to the end of the in-memory message list.
func (c *Conversation) Append(payload any) {
	c.Messages = append(c.Messages, &Message{
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	})
}

// Store is a handle on a history database. It is safe for concurrent use.
type Store struct {
	db *sql.DB
}

// Open opens the database at path, creating its directory and schema if
// they do not exist yet.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("history: creating %s: %w", dir, err)
		}
	}

	// Concurrent webhook requests write to the same file.
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("history: opening %s: %w", path, err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: initializing schema in %s: %w", path, err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save persists the conversation and all its messages.
// Messages already stored for this conversation are replaced.
func (s *Store) Save(ctx context.Context, conversation *Conversation) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO conversations (id, sender, created_at) VALUES (?, ?, ?);`,
		conversation.ID, conversation.Sender, conversation.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("history: saving conversation %s: %w", conversation.ID, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE conversation_id = ?;`, conversation.ID); err != nil {
		return fmt.Errorf("history: clearing messages of %s: %w", conversation.ID, err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO messages (conversation_id, sequence_number, payload, created_at) VALUES (?, ?, ?, ?);`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, msg := range conversation.Messages {
		payload, err := json.Marshal(msg.Payload)
		if err != nil {
			return fmt.Errorf("history: encoding message %d of %s: %w", i, conversation.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, conversation.ID, i, payload, msg.CreatedAt.UTC()); err != nil {
			return fmt.Errorf("history: saving message %d of %s: %w", i, conversation.ID, err)
		}
	}

	return tx.Commit()
}
