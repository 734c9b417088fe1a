package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"vnjp-connect/internal/metrics"
	"vnjp-connect/internal/models"
	"vnjp-connect/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// WelcomeMessage opens every new conversation
const WelcomeMessage = "You have been matched! Say hello and plan your first exchange. / マッチしました！ / Bạn đã được ghép đôi!"

// MatchService binds a partner to an active intent and releases the binding
type MatchService struct {
	intents  IntentStore
	users    UserStore
	notifier Notifier
	now      func() time.Time
}

// NewMatchService creates a new match service
func NewMatchService(intents IntentStore, users UserStore, notifier Notifier) *MatchService {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &MatchService{
		intents:  intents,
		users:    users,
		notifier: notifier,
		now:      time.Now,
	}
}

// Accept makes acceptorID the partner of an active intent and returns the
// intent's channel. The status flip, channel and welcome message commit
// together; a concurrent winner leaves the loser with ErrInvalidState.
func (s *MatchService) Accept(ctx context.Context, intentID, acceptorID string) (*models.Channel, error) {
	intent, err := s.intents.GetByID(ctx, intentID)
	if err != nil {
		return nil, notFound(err)
	}
	acceptor, err := s.users.GetByID(ctx, acceptorID)
	if err != nil {
		return nil, notFound(err)
	}

	fields := map[string]string{"intent_id": intentID, "user_id": acceptorID}
	if intent.Status != models.IntentActive {
		return nil, reject("accept", "not_active", ErrInvalidState, fields)
	}
	if intent.OwnerID == acceptorID {
		return nil, reject("accept", "self_match", ErrSelfMatch, fields)
	}

	owner, err := s.users.GetByID(ctx, intent.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load intent owner: %w", err)
	}
	if owner.Nationality == acceptor.Nationality {
		return nil, reject("accept", "same_nationality", ErrNationalityConflict, fields)
	}

	now := s.now()
	channel := &models.Channel{
		ID:        uuid.New().String(),
		IntentID:  intentID,
		IsActive:  true,
		CreatedAt: now,
	}
	welcome := &models.Message{
		ID:      uuid.Must(uuid.NewV7()).String(),
		Content: WelcomeMessage,
		SentAt:  now,
	}

	channel, err = s.intents.Match(ctx, intentID, acceptorID, channel, welcome)
	if err != nil {
		if errors.Is(err, repository.ErrStateConflict) {
			return nil, reject("accept", "lost_race", ErrInvalidState, fields)
		}
		return nil, fmt.Errorf("failed to match intent: %w", err)
	}

	metrics.RecordTransition(string(models.IntentActive), string(models.IntentMatched))
	log.Info().
		Str("intent_id", intentID).
		Str("owner_id", intent.OwnerID).
		Str("partner_id", acceptorID).
		Str("channel_id", channel.ID).
		Msg("Intent matched")

	intent.PartnerID = &acceptorID
	intent.Status = models.IntentMatched
	s.notifier.IntentMatched(ctx, intent, channel)

	return channel, nil
}

// Cancel releases a matched intent back to active. The channel and its
// messages are discarded.
func (s *MatchService) Cancel(ctx context.Context, intentID, requesterID string) error {
	intent, err := s.intents.GetByID(ctx, intentID)
	if err != nil {
		return notFound(err)
	}

	fields := map[string]string{"intent_id": intentID, "user_id": requesterID}
	if intent.Status != models.IntentMatched {
		return reject("cancel", "not_matched", ErrInvalidState, fields)
	}
	if !intent.IsParticipant(requesterID) {
		return reject("cancel", "not_participant", ErrNotAuthorized, fields)
	}

	if err := s.intents.Unmatch(ctx, intentID, requesterID); err != nil {
		if errors.Is(err, repository.ErrStateConflict) {
			return reject("cancel", "not_matched", ErrInvalidState, fields)
		}
		return fmt.Errorf("failed to cancel match: %w", err)
	}

	metrics.RecordTransition(string(models.IntentMatched), string(models.IntentActive))
	log.Info().
		Str("intent_id", intentID).
		Str("requester_id", requesterID).
		Msg("Match cancelled")

	s.notifier.IntentReleased(ctx, intent, requesterID)
	return nil
}
