package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Load retrieves a conversation and its messages. Payloads are decoded
// into generic JSON values (maps, slices, strings, numbers).
func (s *Store) Load(ctx context.Context, conversationID string) (*Conversation, error) {
	conv := &Conversation{ID: conversationID, Messages: make([]*Message, 0)}

	err := s.db.QueryRowContext(ctx,
		"SELECT sender, created_at FROM conversations WHERE id = ?", conversationID,
	).Scan(&conv.Sender, &conv.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrConversationNotFound, conversationID)
		}
		return nil, fmt.Errorf("history: loading conversation %s: %w", conversationID, err)
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT payload, created_at FROM messages WHERE conversation_id = ? ORDER BY sequence_number ASC",
		conversationID)
	if err != nil {
		return nil, fmt.Errorf("history: loading messages of %s: %w", conversationID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var payloadJSON []byte
		var createdAt time.Time
		msg := &Message{}

		if err := rows.Scan(&payloadJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("history: scanning message of %s: %w", conversationID, err)
		}
		if err := json.Unmarshal(payloadJSON, &msg.Payload); err != nil {
			return nil, fmt.Errorf("history: decoding message of %s: %w", conversationID, err)
		}
		msg.CreatedAt = createdAt
		conv.Messages = append(conv.Messages, msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: iterating messages of %s: %w", conversationID, err)
	}

	return conv, nil
}
