package repository

import (
	"context"
	"fmt"
	"time"

	"vnjp-connect/internal/models"
)

// ChannelRepository handles database operations for conversation channels
type ChannelRepository struct {
	db DB
}

// NewChannelRepository creates a new channel repository
func NewChannelRepository(db DB) *ChannelRepository {
	return &ChannelRepository{db: db}
}

func (r *ChannelRepository) getOne(ctx context.Context, where string, arg string) (*models.Channel, error) {
	query := `SELECT id, intent_id, is_active, created_at FROM channels WHERE ` + where
	var channel models.Channel
	err := r.db.QueryRow(ctx, query, arg).Scan(
		&channel.ID, &channel.IntentID, &channel.IsActive, &channel.CreatedAt,
	)
	if err != nil {
		if isMissing(err) {
			return nil, fmt.Errorf("channel %s: %w", arg, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get channel: %w", err)
	}
	return &channel, nil
}

// GetByID retrieves a channel by ID
func (r *ChannelRepository) GetByID(ctx context.Context, id string) (*models.Channel, error) {
	return r.getOne(ctx, "id = $1", id)
}

// GetByIntentID retrieves the channel bound to an intent
func (r *ChannelRepository) GetByIntentID(ctx context.Context, intentID string) (*models.Channel, error) {
	return r.getOne(ctx, "intent_id = $1", intentID)
}

// ListSummaries returns the user's channels on matched or completed intents
// with their last message and the user's unread count, most recent activity
// first, ties broken by channel id.
func (r *ChannelRepository) ListSummaries(ctx context.Context, userID string) ([]*models.ChannelSummary, error) {
	query := `
		SELECT c.id, c.intent_id, c.is_active, c.created_at,
		       i.title, i.kind,
		       CASE WHEN i.owner_id = $1 THEN i.partner_id ELSE i.owner_id END,
		       lm.id, lm.sender_id, lm.content, lm.sent_at, lm.is_read,
		       (SELECT COUNT(*) FROM messages u
		        WHERE u.channel_id = c.id AND NOT u.is_read
		          AND u.sender_id IS NOT NULL AND u.sender_id <> $1)
		FROM channels c
		JOIN exchange_intents i ON i.id = c.intent_id
		LEFT JOIN LATERAL (
			SELECT m.id, m.sender_id, m.content, m.sent_at, m.is_read
			FROM messages m
			WHERE m.channel_id = c.id
			ORDER BY m.sent_at DESC, m.id DESC
			LIMIT 1
		) lm ON TRUE
		WHERE (i.owner_id = $1 OR i.partner_id = $1)
		  AND i.status IN ('matched', 'completed')
		ORDER BY COALESCE(lm.sent_at, c.created_at) DESC, c.id ASC
	`
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list channels: %w", err)
	}
	defer rows.Close()

	var summaries []*models.ChannelSummary
	for rows.Next() {
		var (
			s         models.ChannelSummary
			lastID    *string
			lastMsg   models.Message
			partnerID *string
			content   *string
			sentAt    *time.Time
			isRead    *bool
		)
		err := rows.Scan(
			&s.Channel.ID, &s.Channel.IntentID, &s.Channel.IsActive, &s.Channel.CreatedAt,
			&s.IntentTitle, &s.IntentKind, &partnerID,
			&lastID, &lastMsg.SenderID, &content, &sentAt, &isRead,
			&s.UnreadCount,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan channel summary: %w", err)
		}
		if partnerID != nil {
			s.PartnerID = *partnerID
		}
		if lastID != nil {
			lastMsg.ID = *lastID
			lastMsg.ChannelID = s.Channel.ID
			lastMsg.Content = *content
			lastMsg.SentAt = *sentAt
			lastMsg.IsRead = *isRead
			s.LastMessage = &lastMsg
		}
		summaries = append(summaries, &s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating channels: %w", err)
	}
	return summaries, nil
}
