package repository

import (
	"context"
	"fmt"

	"vnjp-connect/internal/models"

	"github.com/jackc/pgx/v5"
)

// MessageRepository handles database operations for chat messages
type MessageRepository struct {
	db DB
}

// NewMessageRepository creates a new message repository
func NewMessageRepository(db DB) *MessageRepository {
	return &MessageRepository{db: db}
}

const messageSelect = `
	SELECT id, channel_id, sender_id, content, sent_at, is_read
	FROM messages
	WHERE channel_id = $1
	ORDER BY sent_at ASC, id ASC
`

func collectMessages(rows pgx.Rows) ([]*models.Message, error) {
	defer rows.Close()

	messages := make([]*models.Message, 0)
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.ID, &m.ChannelID, &m.SenderID, &m.Content, &m.SentAt, &m.IsRead); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating messages: %w", err)
	}
	return messages, nil
}

// Create appends a message
func (r *MessageRepository) Create(ctx context.Context, m *models.Message) error {
	query := `
		INSERT INTO messages (id, channel_id, sender_id, content, sent_at, is_read)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.Exec(ctx, query, m.ID, m.ChannelID, m.SenderID, m.Content, m.SentAt, m.IsRead)
	if err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}
	return nil
}

// ListByChannel returns all messages of a channel in conversation order
func (r *MessageRepository) ListByChannel(ctx context.Context, channelID string) ([]*models.Message, error) {
	rows, err := r.db.Query(ctx, messageSelect, channelID)
	if err != nil {
		return nil, fmt.Errorf("failed to get messages: %w", err)
	}
	return collectMessages(rows)
}

// ListAndMarkRead flags every message not authored by readerID as read in a
// single statement, then returns the channel in conversation order.
func (r *MessageRepository) ListAndMarkRead(ctx context.Context, channelID, readerID string) ([]*models.Message, error) {
	var messages []*models.Message

	err := inTx(ctx, r.db, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			UPDATE messages SET is_read = TRUE
			WHERE channel_id = $1 AND NOT is_read AND sender_id IS DISTINCT FROM $2
		`, channelID, readerID)
		if err != nil {
			return fmt.Errorf("failed to mark messages read: %w", err)
		}

		rows, err := tx.Query(ctx, messageSelect, channelID)
		if err != nil {
			return fmt.Errorf("failed to get messages: %w", err)
		}
		messages, err = collectMessages(rows)
		return err
	})
	if err != nil {
		return nil, err
	}
	return messages, nil
}

// UnreadCount counts messages in the channel readerID has not read and did not
// send. System messages are never counted.
func (r *MessageRepository) UnreadCount(ctx context.Context, channelID, readerID string) (int, error) {
	query := `
		SELECT COUNT(*) FROM messages
		WHERE channel_id = $1 AND NOT is_read AND sender_id IS NOT NULL AND sender_id <> $2
	`
	var count int
	if err := r.db.QueryRow(ctx, query, channelID, readerID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count unread messages: %w", err)
	}
	return count, nil
}

// TotalUnread counts unread messages across the user's matched channels
func (r *MessageRepository) TotalUnread(ctx context.Context, readerID string) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM messages m
		JOIN channels c ON c.id = m.channel_id
		JOIN exchange_intents i ON i.id = c.intent_id
		WHERE (i.owner_id = $1 OR i.partner_id = $1)
		  AND i.status = 'matched'
		  AND NOT m.is_read
		  AND m.sender_id IS NOT NULL AND m.sender_id <> $1
	`
	var count int
	if err := r.db.QueryRow(ctx, query, readerID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count unread messages: %w", err)
	}
	return count, nil
}
