package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"vnjp-connect/internal/metrics"
	"vnjp-connect/internal/models"
	"vnjp-connect/internal/repository"
	"vnjp-connect/internal/validation"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const defaultSearchLimit = 50

// IntentService handles creation, editing and discovery of exchange intents
type IntentService struct {
	intents IntentStore
	users   UserStore
}

// NewIntentService creates a new intent service
func NewIntentService(intents IntentStore, users UserStore) *IntentService {
	return &IntentService{
		intents: intents,
		users:   users,
	}
}

// IntentInput describes a post or partner request
type IntentInput struct {
	Kind          string `json:"kind" validate:"required,oneof=post partner_request"`
	RequestType   string `json:"request_type" validate:"required,oneof=japanese_to_vietnamese vietnamese_to_japanese both"`
	Title         string `json:"title" validate:"required,notblank,max=200"`
	Description   string `json:"description" validate:"max=2000"`
	PreferredCity string `json:"preferred_city" validate:"required,oneof=hanoi hochiminh haiphong danang cantho any"`
}

// SearchInput narrows a partner search
type SearchInput struct {
	City        string `json:"city" validate:"omitempty,oneof=hanoi hochiminh haiphong danang cantho any"`
	RequestType string `json:"request_type" validate:"omitempty,oneof=japanese_to_vietnamese vietnamese_to_japanese both"`
	Limit       int    `json:"limit" validate:"min=0,max=100"`
}

// compatibleWith returns whose intents a viewer can serve: owners of the other
// nationality asking to learn the viewer's language.
func compatibleWith(viewer models.Nationality) (models.Nationality, []string, error) {
	switch viewer {
	case models.NationalityJapanese:
		return models.NationalityVietnamese,
			[]string{models.RequestVietnameseToJapanese, models.RequestBoth}, nil
	case models.NationalityVietnamese:
		return models.NationalityJapanese,
			[]string{models.RequestJapaneseToVietnamese, models.RequestBoth}, nil
	default:
		return 0, nil, fmt.Errorf("unsupported nationality %v", viewer)
	}
}

// Create publishes a new active intent
func (s *IntentService) Create(ctx context.Context, ownerID string, in IntentInput) (*models.Intent, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	if verr := validation.ValidateStruct(&in); verr != nil {
		return nil, invalid("create_intent", verr)
	}

	if _, err := s.users.GetByID(ctx, ownerID); err != nil {
		return nil, notFound(err)
	}

	now := time.Now()
	intent := &models.Intent{
		ID:            uuid.New().String(),
		Kind:          models.IntentKind(in.Kind),
		OwnerID:       ownerID,
		Status:        models.IntentActive,
		RequestType:   in.RequestType,
		Title:         in.Title,
		Description:   in.Description,
		PreferredCity: in.PreferredCity,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.intents.Create(ctx, intent); err != nil {
		return nil, fmt.Errorf("failed to create intent: %w", err)
	}

	log.Info().
		Str("intent_id", intent.ID).
		Str("owner_id", ownerID).
		Str("kind", in.Kind).
		Msg("Intent created")

	return intent, nil
}

// Get returns an intent visible to the user. Active intents are public;
// others only to their participants.
func (s *IntentService) Get(ctx context.Context, intentID, userID string) (*models.Intent, error) {
	intent, err := s.intents.GetByID(ctx, intentID)
	if err != nil {
		return nil, notFound(err)
	}
	if intent.Status != models.IntentActive && !intent.IsParticipant(userID) {
		return nil, reject("get_intent", "not_participant", ErrNotAuthorized,
			map[string]string{"intent_id": intentID, "user_id": userID})
	}
	return intent, nil
}

// Update edits an intent while it is still active
func (s *IntentService) Update(ctx context.Context, intentID, ownerID string, in IntentInput) (*models.Intent, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	if verr := validation.ValidateStruct(&in); verr != nil {
		return nil, invalid("update_intent", verr)
	}

	intent, err := s.intents.GetByID(ctx, intentID)
	if err != nil {
		return nil, notFound(err)
	}
	fields := map[string]string{"intent_id": intentID, "user_id": ownerID}
	if intent.OwnerID != ownerID {
		return nil, reject("update_intent", "not_owner", ErrNotAuthorized, fields)
	}
	if intent.Status != models.IntentActive {
		return nil, reject("update_intent", "not_active", ErrInvalidState, fields)
	}

	intent.Title = in.Title
	intent.Description = in.Description
	intent.PreferredCity = in.PreferredCity
	intent.RequestType = in.RequestType
	intent.UpdatedAt = time.Now()

	if err := s.intents.UpdateDetails(ctx, intent); err != nil {
		if errors.Is(err, repository.ErrStateConflict) {
			return nil, reject("update_intent", "not_active", ErrInvalidState, fields)
		}
		return nil, fmt.Errorf("failed to update intent: %w", err)
	}
	return intent, nil
}

// Withdraw cancels an active intent. Only the owner may withdraw.
func (s *IntentService) Withdraw(ctx context.Context, intentID, ownerID string) error {
	intent, err := s.intents.GetByID(ctx, intentID)
	if err != nil {
		return notFound(err)
	}
	fields := map[string]string{"intent_id": intentID, "user_id": ownerID}
	if intent.OwnerID != ownerID {
		return reject("withdraw", "not_owner", ErrNotAuthorized, fields)
	}
	if intent.Status != models.IntentActive {
		return reject("withdraw", "not_active", ErrInvalidState, fields)
	}

	if err := s.intents.Withdraw(ctx, intentID, ownerID); err != nil {
		if errors.Is(err, repository.ErrStateConflict) {
			return reject("withdraw", "not_active", ErrInvalidState, fields)
		}
		return fmt.Errorf("failed to withdraw intent: %w", err)
	}

	metrics.RecordTransition(string(models.IntentActive), string(models.IntentCancelled))
	log.Info().Str("intent_id", intentID).Str("owner_id", ownerID).Msg("Intent withdrawn")
	return nil
}

// ListMine returns intents the user owns or is partnered on
func (s *IntentService) ListMine(ctx context.Context, userID string) ([]*models.Intent, error) {
	intents, err := s.intents.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list intents: %w", err)
	}
	return intents, nil
}

// Search finds active intents the viewer can accept
func (s *IntentService) Search(ctx context.Context, viewerID string, in SearchInput) ([]*models.Intent, error) {
	if verr := validation.ValidateStruct(&in); verr != nil {
		return nil, invalid("search", verr)
	}

	viewer, err := s.users.GetByID(ctx, viewerID)
	if err != nil {
		return nil, notFound(err)
	}

	ownerNationality, requestTypes, err := compatibleWith(viewer.Nationality)
	if err != nil {
		return nil, err
	}
	if in.RequestType != "" {
		if !slices.Contains(requestTypes, in.RequestType) {
			return []*models.Intent{}, nil
		}
		requestTypes = []string{in.RequestType}
	}

	city := in.City
	if city == models.CityAny {
		city = ""
	}
	limit := in.Limit
	if limit == 0 {
		limit = defaultSearchLimit
	}

	intents, err := s.intents.Search(ctx, models.IntentFilter{
		ViewerID:         viewerID,
		OwnerNationality: ownerNationality,
		RequestTypes:     requestTypes,
		City:             city,
		Limit:            limit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search intents: %w", err)
	}
	if intents == nil {
		intents = []*models.Intent{}
	}
	return intents, nil
}
