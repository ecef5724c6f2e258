package history

import (
	"context"
	"fmt"
	"time"
)

// timestampLayouts are the layouts aggregated timestamps may come back in.
// MAX() loses the column type, so the driver hands us plain strings.
var timestampLayouts = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
}

// List returns metadata for all stored conversations, most recently active first.
func (s *Store) List(ctx context.Context) ([]ConversationMetadata, error) {
	query := `
		SELECT
			c.id,
			c.sender,
			c.created_at,
			COUNT(m.id) AS message_count,
			COALESCE(MAX(m.created_at), c.created_at) AS latest_message_at
		FROM
			conversations c
		LEFT JOIN
			messages m ON c.id = m.conversation_id
		GROUP BY
			c.id
		ORDER BY
			latest_message_at DESC;
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("history: listing conversations: %w", err)
	}
	defer rows.Close()

	metadataList := []ConversationMetadata{}
	for rows.Next() {
		var meta ConversationMetadata
		var latest string

		if err := rows.Scan(&meta.ID, &meta.Sender, &meta.CreatedAt, &meta.MessageCount, &latest); err != nil {
			return nil, fmt.Errorf("history: scanning conversation metadata: %w", err)
		}

		meta.LatestMessageTime, err = parseTimestamp(latest)
		if err != nil {
			return nil, err
		}
		metadataList = append(metadataList, meta)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: iterating conversations: %w", err)
	}

	return metadataList, nil
}

func parseTimestamp(value string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("history: unrecognized timestamp %q", value)
}
