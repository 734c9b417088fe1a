package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"vnjp-connect/internal/metrics"
	"vnjp-connect/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// ChatService handles messages inside conversation channels
type ChatService struct {
	channels ChannelStore
	intents  IntentStore
	messages MessageStore
	notifier Notifier
	now      func() time.Time
}

// NewChatService creates a new chat service
func NewChatService(channels ChannelStore, intents IntentStore, messages MessageStore, notifier Notifier) *ChatService {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &ChatService{
		channels: channels,
		intents:  intents,
		messages: messages,
		notifier: notifier,
		now:      time.Now,
	}
}

// authorize loads the channel and its intent, requiring userID to be a participant.
func (s *ChatService) authorize(ctx context.Context, operation, channelID, userID string) (*models.Channel, *models.Intent, error) {
	channel, err := s.channels.GetByID(ctx, channelID)
	if err != nil {
		return nil, nil, notFound(err)
	}
	intent, err := s.intents.GetByID(ctx, channel.IntentID)
	if err != nil {
		return nil, nil, notFound(err)
	}
	if !intent.IsParticipant(userID) {
		return nil, nil, reject(operation, "not_participant", ErrAccessDenied,
			map[string]string{"channel_id": channelID, "user_id": userID})
	}
	return channel, intent, nil
}

// Send appends a message to the channel
func (s *ChatService) Send(ctx context.Context, channelID, senderID, content string) (*models.Message, error) {
	channel, intent, err := s.authorize(ctx, "send", channelID, senderID)
	if err != nil {
		return nil, err
	}

	content = strings.TrimSpace(content)
	fields := map[string]string{"channel_id": channelID, "user_id": senderID}
	if content == "" {
		return nil, reject("send", "empty_content", ErrEmptyContent, fields)
	}
	if !channel.IsActive {
		return nil, reject("send", "channel_inactive", ErrInvalidState, fields)
	}

	msg := &models.Message{
		ID:        uuid.Must(uuid.NewV7()).String(),
		ChannelID: channelID,
		SenderID:  &senderID,
		Content:   content,
		SentAt:    s.now(),
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, fmt.Errorf("failed to create message: %w", err)
	}

	metrics.MessagesSent.Inc()
	log.Debug().
		Str("channel_id", channelID).
		Str("message_id", msg.ID).
		Str("sender_id", senderID).
		Msg("Message sent")

	s.notifier.MessageCreated(ctx, intent, msg)
	return msg, nil
}

// FetchAndMarkRead marks every message the reader did not author as read and
// returns the channel in conversation order
func (s *ChatService) FetchAndMarkRead(ctx context.Context, channelID, readerID string) ([]*models.Message, error) {
	if _, _, err := s.authorize(ctx, "fetch", channelID, readerID); err != nil {
		return nil, err
	}

	msgs, err := s.messages.ListAndMarkRead(ctx, channelID, readerID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch messages: %w", err)
	}
	return msgs, nil
}

// UnreadCount counts messages in the channel the reader has not read and did not send
func (s *ChatService) UnreadCount(ctx context.Context, channelID, readerID string) (int, error) {
	if _, _, err := s.authorize(ctx, "unread_count", channelID, readerID); err != nil {
		return 0, err
	}

	count, err := s.messages.UnreadCount(ctx, channelID, readerID)
	if err != nil {
		return 0, fmt.Errorf("failed to count unread messages: %w", err)
	}
	return count, nil
}

// ListChannels returns the user's conversations, most recent activity first
func (s *ChatService) ListChannels(ctx context.Context, userID string) ([]*models.ChannelSummary, error) {
	summaries, err := s.channels.ListSummaries(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list channels: %w", err)
	}
	if summaries == nil {
		summaries = []*models.ChannelSummary{}
	}
	return summaries, nil
}

// TotalUnread counts unread messages across the user's matched conversations
func (s *ChatService) TotalUnread(ctx context.Context, userID string) (int, error) {
	total, err := s.messages.TotalUnread(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to count unread messages: %w", err)
	}
	return total, nil
}
