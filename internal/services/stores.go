package services

import (
	"context"

	"vnjp-connect/internal/models"
)

// Store interfaces are satisfied by both the Postgres repositories and the
// in-memory store.

type UserStore interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id string) (*models.User, error)
	UpdateProfile(ctx context.Context, id, displayName, city string) error
	UpdatePushToken(ctx context.Context, userID string, pushToken *string) error
}

type IntentStore interface {
	Create(ctx context.Context, intent *models.Intent) error
	GetByID(ctx context.Context, id string) (*models.Intent, error)
	UpdateDetails(ctx context.Context, intent *models.Intent) error
	ListByUser(ctx context.Context, userID string) ([]*models.Intent, error)
	Search(ctx context.Context, f models.IntentFilter) ([]*models.Intent, error)
	StatsByUser(ctx context.Context, userID string) (*models.IntentStats, error)
	Withdraw(ctx context.Context, id, ownerID string) error
	Match(ctx context.Context, intentID, partnerID string, channel *models.Channel, welcome *models.Message) (*models.Channel, error)
	Unmatch(ctx context.Context, intentID, requesterID string) error
}

type ChannelStore interface {
	GetByID(ctx context.Context, id string) (*models.Channel, error)
	GetByIntentID(ctx context.Context, intentID string) (*models.Channel, error)
	ListSummaries(ctx context.Context, userID string) ([]*models.ChannelSummary, error)
}

type MessageStore interface {
	Create(ctx context.Context, m *models.Message) error
	ListByChannel(ctx context.Context, channelID string) ([]*models.Message, error)
	ListAndMarkRead(ctx context.Context, channelID, readerID string) ([]*models.Message, error)
	UnreadCount(ctx context.Context, channelID, readerID string) (int, error)
	TotalUnread(ctx context.Context, readerID string) (int, error)
}

type EvaluationStore interface {
	Submit(ctx context.Context, e *models.Evaluation) (bool, error)
	ListByIntent(ctx context.Context, intentID string) ([]*models.Evaluation, error)
}
