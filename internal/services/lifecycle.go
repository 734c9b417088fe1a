package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"vnjp-connect/internal/metrics"
	"vnjp-connect/internal/models"
	"vnjp-connect/internal/repository"
	"vnjp-connect/internal/validation"

	"github.com/rs/zerolog/log"
)

const (
	MinScore = 1
	MaxScore = 10
)

// EvaluationInput is one participant rating the other
type EvaluationInput struct {
	IntentID    string  `json:"-"`
	EvaluatorID string  `json:"-"`
	EvaluateeID string  `json:"evaluatee_id" validate:"required"`
	Score       int     `json:"score"`
	Comment     *string `json:"comment" validate:"omitempty,max=1000"`
}

// LifecycleService closes matched intents once both participants evaluated each other
type LifecycleService struct {
	intents     IntentStore
	channels    ChannelStore
	messages    MessageStore
	evaluations EvaluationStore
	archiver    Archiver
	notifier    Notifier
	now         func() time.Time
}

// NewLifecycleService creates a new lifecycle service. archiver may be nil.
func NewLifecycleService(
	intents IntentStore,
	channels ChannelStore,
	messages MessageStore,
	evaluations EvaluationStore,
	archiver Archiver,
	notifier Notifier,
) *LifecycleService {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &LifecycleService{
		intents:     intents,
		channels:    channels,
		messages:    messages,
		evaluations: evaluations,
		archiver:    archiver,
		notifier:    notifier,
		now:         time.Now,
	}
}

// SubmitEvaluation records an evaluation and reports whether it completed
// the intent. Completion, channel deactivation and point credit commit with
// the second evaluation.
func (s *LifecycleService) SubmitEvaluation(ctx context.Context, in EvaluationInput) (bool, error) {
	fields := map[string]string{"intent_id": in.IntentID, "user_id": in.EvaluatorID}
	if in.Score < MinScore || in.Score > MaxScore {
		return false, reject("evaluate", "invalid_score", ErrInvalidScore, fields)
	}
	if in.Comment != nil {
		c := strings.TrimSpace(*in.Comment)
		in.Comment = &c
		if c == "" {
			in.Comment = nil
		}
	}
	if verr := validation.ValidateStruct(&in); verr != nil {
		return false, invalid("evaluate", verr)
	}

	intent, err := s.intents.GetByID(ctx, in.IntentID)
	if err != nil {
		return false, notFound(err)
	}

	counterpart, ok := intent.Counterpart(in.EvaluatorID)
	if !ok || counterpart != in.EvaluateeID {
		return false, reject("evaluate", "not_participant", ErrNotAuthorized, fields)
	}
	if intent.Status != models.IntentMatched {
		return false, reject("evaluate", "not_matched", ErrInvalidState, fields)
	}

	completed, err := s.evaluations.Submit(ctx, &models.Evaluation{
		IntentID:    in.IntentID,
		EvaluatorID: in.EvaluatorID,
		EvaluateeID: in.EvaluateeID,
		Score:       in.Score,
		Comment:     in.Comment,
		CreatedAt:   s.now(),
	})
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicate):
			return false, reject("evaluate", "duplicate", ErrDuplicateEvaluation, fields)
		case errors.Is(err, repository.ErrStateConflict):
			return false, reject("evaluate", "not_matched", ErrInvalidState, fields)
		case errors.Is(err, repository.ErrNotFound):
			return false, notFound(err)
		}
		return false, fmt.Errorf("failed to submit evaluation: %w", err)
	}

	metrics.EvaluationsSubmitted.Inc()
	log.Info().
		Str("intent_id", in.IntentID).
		Str("evaluator_id", in.EvaluatorID).
		Str("evaluatee_id", in.EvaluateeID).
		Int("score", in.Score).
		Bool("completed", completed).
		Msg("Evaluation submitted")

	if !completed {
		return false, nil
	}

	metrics.RecordTransition(string(models.IntentMatched), string(models.IntentCompleted))
	intent.Status = models.IntentCompleted
	s.archive(ctx, intent)
	s.notifier.IntentCompleted(ctx, intent)
	return true, nil
}

// archive exports the finished conversation. Failures are logged only, the
// completion has already committed.
func (s *LifecycleService) archive(ctx context.Context, intent *models.Intent) {
	if s.archiver == nil {
		return
	}
	logger := log.With().Str("intent_id", intent.ID).Logger()

	var msgs []*models.Message
	channel, err := s.channels.GetByIntentID(ctx, intent.ID)
	if err == nil {
		msgs, err = s.messages.ListByChannel(ctx, channel.ID)
	}
	if err != nil {
		logger.Error().Err(err).Msg("Failed to load transcript messages")
		return
	}

	evaluations, err := s.evaluations.ListByIntent(ctx, intent.ID)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to load transcript evaluations")
		return
	}

	if err := s.archiver.Archive(ctx, &Transcript{
		Intent:      intent,
		Messages:    msgs,
		Evaluations: evaluations,
		ArchivedAt:  s.now(),
	}); err != nil {
		logger.Error().Err(err).Msg("Failed to archive transcript")
	}
}
