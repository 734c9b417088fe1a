package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"vnjp-connect/internal/models"
	"vnjp-connect/internal/validation"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const jwtExpDays = 30

// UserService handles identity business logic
type UserService struct {
	users     UserStore
	intents   IntentStore
	messages  MessageStore
	jwtSecret string
}

// NewUserService creates a new user service
func NewUserService(users UserStore, intents IntentStore, messages MessageStore, jwtSecret string) *UserService {
	return &UserService{
		users:     users,
		intents:   intents,
		messages:  messages,
		jwtSecret: jwtSecret,
	}
}

// RegisterInput is the data needed to create an identity
type RegisterInput struct {
	DisplayName string `json:"display_name" validate:"required,notblank,max=100"`
	Nationality string `json:"nationality" validate:"required,oneof=vietnamese japanese"`
	City        string `json:"city" validate:"required,oneof=hanoi hochiminh haiphong danang cantho"`
}

// ProfileInput holds the editable profile fields
type ProfileInput struct {
	DisplayName string `json:"display_name" validate:"required,notblank,max=100"`
	City        string `json:"city" validate:"required,oneof=hanoi hochiminh haiphong danang cantho"`
}

// Registration is a new identity together with its bearer token
type Registration struct {
	User  *models.User `json:"user"`
	Token string       `json:"token"`
}

// Dashboard is the per-request overview of an identity
type Dashboard struct {
	User              *models.User       `json:"user"`
	PreferredLanguage string             `json:"preferred_language"`
	Intents           models.IntentStats `json:"intents"`
	UnreadMessages    int                `json:"unread_messages"`
}

// PreferredLanguage derives the interface language from nationality.
// It is computed per request and never stored.
func PreferredLanguage(n models.Nationality) string {
	switch n {
	case models.NationalityJapanese:
		return "ja"
	case models.NationalityVietnamese:
		return "vi"
	default:
		return "en"
	}
}

// GenerateJWT generates a JWT token for a user
func (s *UserService) GenerateJWT(userID string) (string, error) {
	claims := jwt.MapClaims{
		"user_id": userID,
		"exp":     time.Now().AddDate(0, 0, jwtExpDays).Unix(),
		"iat":     time.Now().Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(s.jwtSecret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return tokenString, nil
}

// ValidateJWT validates a JWT token and returns the user ID
func (s *UserService) ValidateJWT(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.jwtSecret), nil
	})

	if err != nil {
		return "", fmt.Errorf("failed to parse token: %w", err)
	}

	if !token.Valid {
		return "", fmt.Errorf("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("invalid token claims")
	}

	userID, ok := claims["user_id"].(string)
	if !ok {
		return "", fmt.Errorf("user_id not found in token")
	}

	return userID, nil
}

// Register creates a new identity and issues its token
func (s *UserService) Register(ctx context.Context, in RegisterInput) (*Registration, error) {
	in.DisplayName = strings.TrimSpace(in.DisplayName)
	if verr := validation.ValidateStruct(&in); verr != nil {
		return nil, invalid("register", verr)
	}

	nationality, err := models.ParseNationality(in.Nationality)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	user := &models.User{
		ID:          uuid.New().String(),
		DisplayName: in.DisplayName,
		Nationality: nationality,
		City:        in.City,
		CreatedAt:   time.Now(),
	}

	if err := s.users.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	token, err := s.GenerateJWT(user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	log.Info().
		Str("user_id", user.ID).
		Str("nationality", user.Nationality.String()).
		Msg("User registered")

	return &Registration{User: user, Token: token}, nil
}

// Get returns an identity
func (s *UserService) Get(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, notFound(err)
	}
	return user, nil
}

// UpdateProfile changes the display name and city
func (s *UserService) UpdateProfile(ctx context.Context, userID string, in ProfileInput) (*models.User, error) {
	in.DisplayName = strings.TrimSpace(in.DisplayName)
	if verr := validation.ValidateStruct(&in); verr != nil {
		return nil, invalid("update_profile", verr)
	}
	if err := s.users.UpdateProfile(ctx, userID, in.DisplayName, in.City); err != nil {
		return nil, notFound(err)
	}
	return s.Get(ctx, userID)
}

// UpdatePushToken stores (or clears, when empty) the APNs device token
func (s *UserService) UpdatePushToken(ctx context.Context, userID, pushToken string) error {
	var token *string
	if t := strings.TrimSpace(pushToken); t != "" {
		token = &t
	}
	if err := s.users.UpdatePushToken(ctx, userID, token); err != nil {
		return notFound(err)
	}
	return nil
}

// Dashboard assembles the identity overview
func (s *UserService) Dashboard(ctx context.Context, userID string) (*Dashboard, error) {
	user, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	stats, err := s.intents.StatsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load intent stats: %w", err)
	}

	unread, err := s.messages.TotalUnread(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to count unread messages: %w", err)
	}

	return &Dashboard{
		User:              user,
		PreferredLanguage: PreferredLanguage(user.Nationality),
		Intents:           *stats,
		UnreadMessages:    unread,
	}, nil
}
