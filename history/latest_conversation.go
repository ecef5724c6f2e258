package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Latest returns the ID of the most recently created conversation.
// It returns ErrConversationNotFound if the store is empty.
func (s *Store) Latest(ctx context.Context) (string, error) {
	return s.latest(ctx, "SELECT id FROM conversations ORDER BY created_at DESC LIMIT 1")
}

// LatestFor returns the ID of the most recently created conversation with
// sender. It returns ErrConversationNotFound if sender has none.
func (s *Store) LatestFor(ctx context.Context, sender string) (string, error) {
	return s.latest(ctx, "SELECT id FROM conversations WHERE sender = ? ORDER BY created_at DESC LIMIT 1", sender)
}

func (s *Store) latest(ctx context.Context, query string, args ...any) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrConversationNotFound
		}
		return "", fmt.Errorf("history: querying latest conversation: %w", err)
	}
	return id, nil
}
