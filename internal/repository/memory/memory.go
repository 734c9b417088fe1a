// Package memory is an in-process implementation of the repositories, used
// when database.driver is "memory" and by tests. All repositories of one
// Store share a single lock, so every operation is atomic with respect to
// the others, mirroring the transactional behaviour of the Postgres layer.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"vnjp-connect/internal/models"
	"vnjp-connect/internal/repository"
)

type state struct {
	mu          sync.Mutex
	users       map[string]*models.User
	intents     map[string]*models.Intent
	channels    map[string]*models.Channel
	byIntent    map[string]string
	messages    map[string][]*models.Message
	evaluations []*models.Evaluation
}

// Store groups the in-memory repositories
type Store struct {
	Users       *UserRepository
	Intents     *IntentRepository
	Channels    *ChannelRepository
	Messages    *MessageRepository
	Evaluations *EvaluationRepository
}

// New creates an empty store
func New() *Store {
	s := &state{
		users:    make(map[string]*models.User),
		intents:  make(map[string]*models.Intent),
		channels: make(map[string]*models.Channel),
		byIntent: make(map[string]string),
		messages: make(map[string][]*models.Message),
	}
	return &Store{
		Users:       &UserRepository{s: s},
		Intents:     &IntentRepository{s: s},
		Channels:    &ChannelRepository{s: s},
		Messages:    &MessageRepository{s: s},
		Evaluations: &EvaluationRepository{s: s},
	}
}

func notFound(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, repository.ErrNotFound)
}

func copyIntent(i *models.Intent) *models.Intent {
	c := *i
	if i.PartnerID != nil {
		p := *i.PartnerID
		c.PartnerID = &p
	}
	return &c
}

func copyMessage(m *models.Message) *models.Message {
	c := *m
	return &c
}

// UserRepository stores identities
type UserRepository struct{ s *state }

// Create creates a new user
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, exists := r.s.users[user.ID]; exists {
		return repository.ErrDuplicate
	}
	c := *user
	r.s.users[user.ID] = &c
	return nil
}

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	user, ok := r.s.users[id]
	if !ok {
		return nil, notFound("user", id)
	}
	c := *user
	return &c, nil
}

// UpdateProfile updates the editable profile fields
func (r *UserRepository) UpdateProfile(ctx context.Context, id, displayName, city string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	user, ok := r.s.users[id]
	if !ok {
		return notFound("user", id)
	}
	user.DisplayName = displayName
	user.City = city
	return nil
}

// UpdatePushToken updates the push token for a user
func (r *UserRepository) UpdatePushToken(ctx context.Context, userID string, pushToken *string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	user, ok := r.s.users[userID]
	if !ok {
		return notFound("user", userID)
	}
	user.PushToken = pushToken
	return nil
}

// IntentRepository stores exchange intents
type IntentRepository struct{ s *state }

// Create creates a new intent
func (r *IntentRepository) Create(ctx context.Context, intent *models.Intent) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, exists := r.s.intents[intent.ID]; exists {
		return repository.ErrDuplicate
	}
	r.s.intents[intent.ID] = copyIntent(intent)
	return nil
}

// GetByID retrieves an intent by ID
func (r *IntentRepository) GetByID(ctx context.Context, id string) (*models.Intent, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	intent, ok := r.s.intents[id]
	if !ok {
		return nil, notFound("intent", id)
	}
	return copyIntent(intent), nil
}

// UpdateDetails rewrites the descriptive fields of an active intent
func (r *IntentRepository) UpdateDetails(ctx context.Context, intent *models.Intent) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	stored, ok := r.s.intents[intent.ID]
	if !ok || stored.OwnerID != intent.OwnerID || stored.Status != models.IntentActive {
		return repository.ErrStateConflict
	}
	stored.Title = intent.Title
	stored.Description = intent.Description
	stored.PreferredCity = intent.PreferredCity
	stored.RequestType = intent.RequestType
	stored.UpdatedAt = intent.UpdatedAt
	return nil
}

func newestFirst(intents []*models.Intent) {
	sort.SliceStable(intents, func(a, b int) bool {
		return intents[a].CreatedAt.After(intents[b].CreatedAt)
	})
}

// ListByUser returns intents the user owns or is partnered on, newest first
func (r *IntentRepository) ListByUser(ctx context.Context, userID string) ([]*models.Intent, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var intents []*models.Intent
	for _, intent := range r.s.intents {
		if intent.IsParticipant(userID) {
			intents = append(intents, copyIntent(intent))
		}
	}
	newestFirst(intents)
	return intents, nil
}

// Search returns active intents matching the filter, previous partners first
func (r *IntentRepository) Search(ctx context.Context, f models.IntentFilter) ([]*models.Intent, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	previous := make(map[string]bool)
	for _, p := range r.s.intents {
		if !p.Status.HasPartner() || p.PartnerID == nil {
			continue
		}
		switch f.ViewerID {
		case p.OwnerID:
			previous[*p.PartnerID] = true
		case *p.PartnerID:
			previous[p.OwnerID] = true
		}
	}

	var intents []*models.Intent
	for _, intent := range r.s.intents {
		if intent.Status != models.IntentActive || intent.OwnerID == f.ViewerID {
			continue
		}
		owner, ok := r.s.users[intent.OwnerID]
		if !ok || owner.Nationality != f.OwnerNationality {
			continue
		}
		if !slices.Contains(f.RequestTypes, intent.RequestType) {
			continue
		}
		if f.City != "" && intent.PreferredCity != f.City && intent.PreferredCity != models.CityAny {
			continue
		}
		intents = append(intents, copyIntent(intent))
	}

	newestFirst(intents)
	sort.SliceStable(intents, func(a, b int) bool {
		return previous[intents[a].OwnerID] && !previous[intents[b].OwnerID]
	})

	if f.Limit > 0 && len(intents) > f.Limit {
		intents = intents[:f.Limit]
	}
	return intents, nil
}

// StatsByUser counts the user's intents by status
func (r *IntentRepository) StatsByUser(ctx context.Context, userID string) (*models.IntentStats, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var stats models.IntentStats
	for _, intent := range r.s.intents {
		if !intent.IsParticipant(userID) {
			continue
		}
		switch intent.Status {
		case models.IntentActive:
			stats.Active++
		case models.IntentMatched:
			stats.Matched++
		case models.IntentCompleted:
			stats.Completed++
		case models.IntentCancelled:
			stats.Cancelled++
		}
	}
	return &stats, nil
}

// Withdraw moves an active intent owned by ownerID to cancelled
func (r *IntentRepository) Withdraw(ctx context.Context, id, ownerID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	intent, ok := r.s.intents[id]
	if !ok || intent.OwnerID != ownerID || intent.Status != models.IntentActive {
		return repository.ErrStateConflict
	}
	intent.Status = models.IntentCancelled
	intent.UpdatedAt = time.Now()
	return nil
}

// Match binds partnerID to an active intent, provisions its channel and posts
// the welcome message
func (r *IntentRepository) Match(ctx context.Context, intentID, partnerID string, channel *models.Channel, welcome *models.Message) (*models.Channel, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	intent, ok := r.s.intents[intentID]
	if !ok || intent.Status != models.IntentActive {
		return nil, repository.ErrStateConflict
	}

	partner := partnerID
	intent.PartnerID = &partner
	intent.Status = models.IntentMatched
	intent.UpdatedAt = time.Now()

	var stored *models.Channel
	if id, exists := r.s.byIntent[intentID]; exists {
		stored = r.s.channels[id]
		stored.IsActive = true
	} else {
		c := *channel
		c.IntentID = intentID
		c.IsActive = true
		stored = &c
		r.s.channels[c.ID] = stored
		r.s.byIntent[intentID] = c.ID
	}

	welcome.ChannelID = stored.ID
	r.s.messages[stored.ID] = append(r.s.messages[stored.ID], copyMessage(welcome))

	result := *stored
	return &result, nil
}

// Unmatch releases a matched intent back to active and discards its channel
// and the evaluations given for the released pairing
func (r *IntentRepository) Unmatch(ctx context.Context, intentID, requesterID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	intent, ok := r.s.intents[intentID]
	if !ok || intent.Status != models.IntentMatched || !intent.IsParticipant(requesterID) {
		return repository.ErrStateConflict
	}
	intent.PartnerID = nil
	intent.Status = models.IntentActive
	intent.UpdatedAt = time.Now()

	if id, exists := r.s.byIntent[intentID]; exists {
		delete(r.s.channels, id)
		delete(r.s.messages, id)
		delete(r.s.byIntent, intentID)
	}
	r.s.evaluations = slices.DeleteFunc(r.s.evaluations, func(e *models.Evaluation) bool {
		return e.IntentID == intentID
	})
	return nil
}

// ChannelRepository stores conversation channels
type ChannelRepository struct{ s *state }

// GetByID retrieves a channel by ID
func (r *ChannelRepository) GetByID(ctx context.Context, id string) (*models.Channel, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	channel, ok := r.s.channels[id]
	if !ok {
		return nil, notFound("channel", id)
	}
	c := *channel
	return &c, nil
}

// GetByIntentID retrieves the channel bound to an intent
func (r *ChannelRepository) GetByIntentID(ctx context.Context, intentID string) (*models.Channel, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	id, ok := r.s.byIntent[intentID]
	if !ok {
		return nil, notFound("channel for intent", intentID)
	}
	c := *r.s.channels[id]
	return &c, nil
}

// ListSummaries returns the user's channels, most recent activity first and
// then by channel id
func (r *ChannelRepository) ListSummaries(ctx context.Context, userID string) ([]*models.ChannelSummary, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var summaries []*models.ChannelSummary
	for intentID, channelID := range r.s.byIntent {
		intent := r.s.intents[intentID]
		if intent == nil || !intent.Status.HasPartner() || !intent.IsParticipant(userID) {
			continue
		}
		partnerID, _ := intent.Counterpart(userID)
		s := &models.ChannelSummary{
			Channel:     *r.s.channels[channelID],
			IntentTitle: intent.Title,
			IntentKind:  intent.Kind,
			PartnerID:   partnerID,
		}
		msgs := r.s.messages[channelID]
		if len(msgs) > 0 {
			s.LastMessage = copyMessage(msgs[len(msgs)-1])
		}
		s.UnreadCount = unread(msgs, userID)
		summaries = append(summaries, s)
	}

	sort.Slice(summaries, func(a, b int) bool {
		ta, tb := summaries[a].LastActivity(), summaries[b].LastActivity()
		if !ta.Equal(tb) {
			return ta.After(tb)
		}
		return summaries[a].Channel.ID < summaries[b].Channel.ID
	})
	return summaries, nil
}

// MessageRepository stores chat messages
type MessageRepository struct{ s *state }

// unread skips system messages, they are notices rather than conversation.
func unread(msgs []*models.Message, readerID string) int {
	count := 0
	for _, m := range msgs {
		if !m.IsRead && !m.IsSystem() && !m.AuthoredBy(readerID) {
			count++
		}
	}
	return count
}

// Create appends a message, keeping the channel ordered by (sent_at, id)
func (r *MessageRepository) Create(ctx context.Context, m *models.Message) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.channels[m.ChannelID]; !ok {
		return notFound("channel", m.ChannelID)
	}
	msgs := append(r.s.messages[m.ChannelID], copyMessage(m))
	sort.SliceStable(msgs, func(a, b int) bool {
		if !msgs[a].SentAt.Equal(msgs[b].SentAt) {
			return msgs[a].SentAt.Before(msgs[b].SentAt)
		}
		return strings.Compare(msgs[a].ID, msgs[b].ID) < 0
	})
	r.s.messages[m.ChannelID] = msgs
	return nil
}

func (r *MessageRepository) snapshot(channelID string) []*models.Message {
	msgs := r.s.messages[channelID]
	out := make([]*models.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, copyMessage(m))
	}
	return out
}

// ListByChannel returns all messages of a channel in conversation order
func (r *MessageRepository) ListByChannel(ctx context.Context, channelID string) ([]*models.Message, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	return r.snapshot(channelID), nil
}

// ListAndMarkRead flags every message not authored by readerID as read and
// returns the channel in conversation order
func (r *MessageRepository) ListAndMarkRead(ctx context.Context, channelID, readerID string) ([]*models.Message, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, m := range r.s.messages[channelID] {
		if !m.AuthoredBy(readerID) {
			m.IsRead = true
		}
	}
	return r.snapshot(channelID), nil
}

// UnreadCount counts messages readerID has not read and did not send
func (r *MessageRepository) UnreadCount(ctx context.Context, channelID, readerID string) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	return unread(r.s.messages[channelID], readerID), nil
}

// TotalUnread counts unread messages across the user's matched channels
func (r *MessageRepository) TotalUnread(ctx context.Context, readerID string) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	total := 0
	for intentID, channelID := range r.s.byIntent {
		intent := r.s.intents[intentID]
		if intent == nil || intent.Status != models.IntentMatched || !intent.IsParticipant(readerID) {
			continue
		}
		total += unread(r.s.messages[channelID], readerID)
	}
	return total, nil
}

// EvaluationRepository stores evaluations
type EvaluationRepository struct{ s *state }

// Submit records an evaluation and completes the intent when both
// participants have evaluated each other
func (r *EvaluationRepository) Submit(ctx context.Context, e *models.Evaluation) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	intent, ok := r.s.intents[e.IntentID]
	if !ok {
		return false, notFound("intent", e.IntentID)
	}
	if intent.Status != models.IntentMatched || intent.PartnerID == nil {
		return false, repository.ErrStateConflict
	}
	for _, existing := range r.s.evaluations {
		if existing.EvaluatorID == e.EvaluatorID && existing.EvaluateeID == e.EvaluateeID {
			return false, repository.ErrDuplicate
		}
	}

	c := *e
	r.s.evaluations = append(r.s.evaluations, &c)

	// only the two directions between the current owner and partner count
	var forIntent []*models.Evaluation
	for _, existing := range r.s.evaluations {
		if existing.IntentID != e.IntentID {
			continue
		}
		other, ok := intent.Counterpart(existing.EvaluatorID)
		if ok && other == existing.EvaluateeID {
			forIntent = append(forIntent, existing)
		}
	}
	if len(forIntent) < 2 {
		return false, nil
	}

	intent.Status = models.IntentCompleted
	intent.UpdatedAt = time.Now()
	if id, exists := r.s.byIntent[e.IntentID]; exists {
		r.s.channels[id].IsActive = false
	}
	for _, ev := range forIntent {
		if user, ok := r.s.users[ev.EvaluateeID]; ok {
			user.Points += ev.Score
		}
	}
	return true, nil
}

// ListByIntent returns the evaluations recorded for an intent
func (r *EvaluationRepository) ListByIntent(ctx context.Context, intentID string) ([]*models.Evaluation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []*models.Evaluation
	for _, e := range r.s.evaluations {
		if e.IntentID == intentID {
			c := *e
			out = append(out, &c)
		}
	}
	return out, nil
}
