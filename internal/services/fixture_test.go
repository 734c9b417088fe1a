package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"vnjp-connect/internal/models"
	"vnjp-connect/internal/repository/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

// testClock ticks one second per call so message order is deterministic
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *recordingNotifier) record(event string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}

func (n *recordingNotifier) Events() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.events...)
}

func (n *recordingNotifier) IntentMatched(_ context.Context, intent *models.Intent, _ *models.Channel) {
	n.record(EventIntentMatched + ":" + intent.ID)
}

func (n *recordingNotifier) IntentReleased(_ context.Context, intent *models.Intent, _ string) {
	n.record(EventIntentReleased + ":" + intent.ID)
}

func (n *recordingNotifier) MessageCreated(_ context.Context, _ *models.Intent, msg *models.Message) {
	n.record(EventMessageCreated + ":" + msg.Content)
}

func (n *recordingNotifier) IntentCompleted(_ context.Context, intent *models.Intent) {
	n.record(EventIntentCompleted + ":" + intent.ID)
}

type fakeArchiver struct {
	mu          sync.Mutex
	transcripts []*Transcript
}

func (a *fakeArchiver) Archive(_ context.Context, t *Transcript) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.transcripts = append(a.transcripts, t)
	return nil
}

type fixture struct {
	store     *memory.Store
	notifier  *recordingNotifier
	archiver  *fakeArchiver
	users     *UserService
	intents   *IntentService
	match     *MatchService
	chat      *ChatService
	lifecycle *LifecycleService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := memory.New()
	clock := &testClock{now: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
	notifier := &recordingNotifier{}
	archiver := &fakeArchiver{}

	f := &fixture{
		store:     store,
		notifier:  notifier,
		archiver:  archiver,
		users:     NewUserService(store.Users, store.Intents, store.Messages, testSecret),
		intents:   NewIntentService(store.Intents, store.Users),
		match:     NewMatchService(store.Intents, store.Users, notifier),
		chat:      NewChatService(store.Channels, store.Intents, store.Messages, notifier),
		lifecycle: NewLifecycleService(
			store.Intents, store.Channels, store.Messages, store.Evaluations, archiver, notifier,
		),
	}
	f.match.now = clock.Now
	f.chat.now = clock.Now
	f.lifecycle.now = clock.Now
	return f
}

func (f *fixture) user(t *testing.T, name, nationality string) *models.User {
	t.Helper()
	reg, err := f.users.Register(context.Background(), RegisterInput{
		DisplayName: name,
		Nationality: nationality,
		City:        models.CityHanoi,
	})
	require.NoError(t, err)
	return reg.User
}

func (f *fixture) intent(t *testing.T, owner *models.User) *models.Intent {
	t.Helper()
	intent, err := f.intents.Create(context.Background(), owner.ID, IntentInput{
		Kind:          string(models.IntentKindPost),
		RequestType:   models.RequestBoth,
		Title:         "Weekend coffee exchange",
		Description:   "Practice conversation near Hoan Kiem lake",
		PreferredCity: models.CityHanoi,
	})
	require.NoError(t, err)
	return intent
}

// matched returns a VN-owned intent accepted by a JP partner
func (f *fixture) matched(t *testing.T) (owner, partner *models.User, intent *models.Intent, channel *models.Channel) {
	t.Helper()
	owner = f.user(t, "Lan", "vietnamese")
	partner = f.user(t, "Haruto", "japanese")
	intent = f.intent(t, owner)

	channel, err := f.match.Accept(context.Background(), intent.ID, partner.ID)
	require.NoError(t, err)
	return owner, partner, intent, channel
}

func (f *fixture) reload(t *testing.T, intentID string) *models.Intent {
	t.Helper()
	intent, err := f.store.Intents.GetByID(context.Background(), intentID)
	require.NoError(t, err)
	assertPartnerInvariant(t, intent)
	return intent
}

func assertPartnerInvariant(t *testing.T, intent *models.Intent) {
	t.Helper()
	assert.Equal(t, intent.Status.HasPartner(), intent.PartnerID != nil,
		"status %s with partner %v", intent.Status, intent.PartnerID)
}
