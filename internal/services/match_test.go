package services

import (
	"context"
	"sync"
	"testing"

	"vnjp-connect/internal/models"
	"vnjp-connect/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccept_MatchesAndPostsWelcome(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner, partner, intent, channel := f.matched(t)

	assert.Equal(t, intent.ID, channel.IntentID)
	assert.True(t, channel.IsActive)

	stored := f.reload(t, intent.ID)
	assert.Equal(t, models.IntentMatched, stored.Status)
	require.NotNil(t, stored.PartnerID)
	assert.Equal(t, partner.ID, *stored.PartnerID)
	assert.Equal(t, owner.ID, stored.OwnerID)

	msgs, err := f.store.Messages.ListByChannel(ctx, channel.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.True(t, msgs[0].IsSystem())
	assert.Equal(t, WelcomeMessage, msgs[0].Content)

	assert.Contains(t, f.notifier.Events(), EventIntentMatched+":"+intent.ID)
}

func TestAccept_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	owner := f.user(t, "Lan", "vietnamese")
	compatriot := f.user(t, "Minh", "vietnamese")
	partner := f.user(t, "Haruto", "japanese")
	intent := f.intent(t, owner)

	tests := []struct {
		name       string
		intentID   string
		acceptorID string
		wantErr    error
	}{
		{"unknown intent", "missing", partner.ID, ErrNotFound},
		{"unknown acceptor", intent.ID, "missing", ErrNotFound},
		{"owner accepts own intent", intent.ID, owner.ID, ErrSelfMatch},
		{"same nationality", intent.ID, compatriot.ID, ErrNationalityConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.match.Accept(ctx, tt.intentID, tt.acceptorID)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	stored := f.reload(t, intent.ID)
	assert.Equal(t, models.IntentActive, stored.Status)
	_, err := f.store.Channels.GetByIntentID(ctx, intent.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestAccept_NotActive(t *testing.T) {
	f := newFixture(t)
	_, _, intent, _ := f.matched(t)
	other := f.user(t, "Yuki", "japanese")

	_, err := f.match.Accept(context.Background(), intent.ID, other.ID)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestAccept_ConcurrentAcceptorsOnlyOneWins(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	owner := f.user(t, "Lan", "vietnamese")
	intent := f.intent(t, owner)

	const n = 8
	acceptors := make([]*models.User, n)
	for i := range acceptors {
		acceptors[i] = f.user(t, "Acceptor", "japanese")
	}

	var (
		wg    sync.WaitGroup
		start = make(chan struct{})
		errs  = make([]error, n)
	)
	for i := range acceptors {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = f.match.Accept(ctx, intent.ID, acceptors[i].ID)
		}(i)
	}
	close(start)
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		assert.ErrorIs(t, err, ErrInvalidState)
	}
	assert.Equal(t, 1, wins)

	stored := f.reload(t, intent.ID)
	assert.Equal(t, models.IntentMatched, stored.Status)

	channel, err := f.store.Channels.GetByIntentID(ctx, intent.ID)
	require.NoError(t, err)
	msgs, err := f.store.Messages.ListByChannel(ctx, channel.ID)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}

func TestCancelThenAccept_CrossNationalityScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	u1 := f.user(t, "Lan", "vietnamese")
	u2 := f.user(t, "Haruto", "japanese")
	u3 := f.user(t, "Yuki", "japanese")
	u4 := f.user(t, "Minh", "vietnamese")
	intent := f.intent(t, u1)

	first, err := f.match.Accept(ctx, intent.ID, u2.ID)
	require.NoError(t, err)

	require.NoError(t, f.match.Cancel(ctx, intent.ID, u2.ID))

	stored := f.reload(t, intent.ID)
	assert.Equal(t, models.IntentActive, stored.Status)
	assert.Nil(t, stored.PartnerID)

	_, err = f.store.Channels.GetByID(ctx, first.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	msgs, err := f.store.Messages.ListByChannel(ctx, first.ID)
	require.NoError(t, err)
	assert.Empty(t, msgs)

	_, err = f.match.Accept(ctx, intent.ID, u4.ID)
	assert.ErrorIs(t, err, ErrNationalityConflict)

	second, err := f.match.Accept(ctx, intent.ID, u3.ID)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	msgs, err = f.store.Messages.ListByChannel(ctx, second.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.True(t, msgs[0].IsSystem())

	stored = f.reload(t, intent.ID)
	require.NotNil(t, stored.PartnerID)
	assert.Equal(t, u3.ID, *stored.PartnerID)

	assert.Contains(t, f.notifier.Events(), EventIntentReleased+":"+intent.ID)
}

func TestCancel_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner, _, intent, _ := f.matched(t)
	outsider := f.user(t, "Sora", "japanese")

	err := f.match.Cancel(ctx, "missing", owner.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	err = f.match.Cancel(ctx, intent.ID, outsider.ID)
	assert.ErrorIs(t, err, ErrNotAuthorized)

	// owner may cancel too
	require.NoError(t, f.match.Cancel(ctx, intent.ID, owner.ID))

	err = f.match.Cancel(ctx, intent.ID, owner.ID)
	assert.ErrorIs(t, err, ErrInvalidState)
}
