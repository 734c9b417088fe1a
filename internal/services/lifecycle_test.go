package services

import (
	"context"
	"testing"

	"vnjp-connect/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func evaluation(intentID, evaluator, evaluatee string, score int) EvaluationInput {
	return EvaluationInput{
		IntentID:    intentID,
		EvaluatorID: evaluator,
		EvaluateeID: evaluatee,
		Score:       score,
	}
}

func TestSubmitEvaluation_OutOfRangeScore(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner, partner, intent, _ := f.matched(t)

	for _, score := range []int{-1, 0, 11, 100} {
		completed, err := f.lifecycle.SubmitEvaluation(ctx, evaluation(intent.ID, owner.ID, partner.ID, score))
		assert.ErrorIs(t, err, ErrInvalidScore, "score %d", score)
		assert.False(t, completed)
	}

	recorded, err := f.store.Evaluations.ListByIntent(ctx, intent.ID)
	require.NoError(t, err)
	assert.Empty(t, recorded)
}

func TestSubmitEvaluation_BothSidesComplete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner, partner, intent, channel := f.matched(t)

	_, err := f.chat.Send(ctx, channel.ID, owner.ID, "Cảm ơn!")
	require.NoError(t, err)

	comment := "  Very patient partner  "
	in := evaluation(intent.ID, owner.ID, partner.ID, 8)
	in.Comment = &comment
	completed, err := f.lifecycle.SubmitEvaluation(ctx, in)
	require.NoError(t, err)
	assert.False(t, completed)
	assert.Equal(t, models.IntentMatched, f.reload(t, intent.ID).Status)

	completed, err = f.lifecycle.SubmitEvaluation(ctx, evaluation(intent.ID, partner.ID, owner.ID, 9))
	require.NoError(t, err)
	assert.True(t, completed)

	stored := f.reload(t, intent.ID)
	assert.Equal(t, models.IntentCompleted, stored.Status)
	require.NotNil(t, stored.PartnerID)
	assert.Equal(t, partner.ID, *stored.PartnerID)

	ch, err := f.store.Channels.GetByID(ctx, channel.ID)
	require.NoError(t, err)
	assert.False(t, ch.IsActive)

	ownerAfter, err := f.users.Get(ctx, owner.ID)
	require.NoError(t, err)
	partnerAfter, err := f.users.Get(ctx, partner.ID)
	require.NoError(t, err)
	assert.Equal(t, 9, ownerAfter.Points)
	assert.Equal(t, 8, partnerAfter.Points)

	recorded, err := f.store.Evaluations.ListByIntent(ctx, intent.ID)
	require.NoError(t, err)
	require.Len(t, recorded, 2)
	for _, e := range recorded {
		if e.EvaluatorID == owner.ID {
			require.NotNil(t, e.Comment)
			assert.Equal(t, "Very patient partner", *e.Comment)
		}
	}

	require.Len(t, f.archiver.transcripts, 1)
	transcript := f.archiver.transcripts[0]
	assert.Equal(t, intent.ID, transcript.Intent.ID)
	assert.Equal(t, []string{WelcomeMessage, "Cảm ơn!"}, contents(transcript.Messages))
	assert.Len(t, transcript.Evaluations, 2)

	assert.Contains(t, f.notifier.Events(), EventIntentCompleted+":"+intent.ID)

	// a completed channel no longer accepts messages
	_, err = f.chat.Send(ctx, channel.ID, owner.ID, "one more")
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestSubmitEvaluation_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner, partner, intent, _ := f.matched(t)
	outsider := f.user(t, "Sora", "japanese")
	pending := f.intent(t, owner)

	_, err := f.lifecycle.SubmitEvaluation(ctx, evaluation("missing", owner.ID, partner.ID, 5))
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.lifecycle.SubmitEvaluation(ctx, evaluation(intent.ID, outsider.ID, owner.ID, 5))
	assert.ErrorIs(t, err, ErrNotAuthorized)

	_, err = f.lifecycle.SubmitEvaluation(ctx, evaluation(intent.ID, owner.ID, owner.ID, 5))
	assert.ErrorIs(t, err, ErrNotAuthorized)

	_, err = f.lifecycle.SubmitEvaluation(ctx, evaluation(pending.ID, owner.ID, partner.ID, 5))
	assert.ErrorIs(t, err, ErrNotAuthorized)

	_, err = f.lifecycle.SubmitEvaluation(ctx, evaluation(intent.ID, owner.ID, partner.ID, 7))
	require.NoError(t, err)
	_, err = f.lifecycle.SubmitEvaluation(ctx, evaluation(intent.ID, owner.ID, partner.ID, 7))
	assert.ErrorIs(t, err, ErrDuplicateEvaluation)

	_, err = f.lifecycle.SubmitEvaluation(ctx, evaluation(intent.ID, partner.ID, owner.ID, 6))
	require.NoError(t, err)

	// completed is terminal
	_, err = f.lifecycle.SubmitEvaluation(ctx, evaluation(intent.ID, partner.ID, owner.ID, 6))
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestSubmitEvaluation_UniquePerPairAcrossIntents(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner, partner, first, _ := f.matched(t)

	_, err := f.lifecycle.SubmitEvaluation(ctx, evaluation(first.ID, owner.ID, partner.ID, 7))
	require.NoError(t, err)

	second := f.intent(t, owner)
	_, err = f.match.Accept(ctx, second.ID, partner.ID)
	require.NoError(t, err)

	_, err = f.lifecycle.SubmitEvaluation(ctx, evaluation(second.ID, owner.ID, partner.ID, 9))
	assert.ErrorIs(t, err, ErrDuplicateEvaluation)
}

func TestSubmitEvaluation_CancelDiscardsReleasedPairing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner, released, intent, _ := f.matched(t)

	completed, err := f.lifecycle.SubmitEvaluation(ctx, evaluation(intent.ID, owner.ID, released.ID, 7))
	require.NoError(t, err)
	assert.False(t, completed)

	require.NoError(t, f.match.Cancel(ctx, intent.ID, released.ID))
	recorded, err := f.store.Evaluations.ListByIntent(ctx, intent.ID)
	require.NoError(t, err)
	assert.Empty(t, recorded)

	yuki := f.user(t, "Yuki", "japanese")
	_, err = f.match.Accept(ctx, intent.ID, yuki.ID)
	require.NoError(t, err)

	// the owner has not evaluated yuki yet
	completed, err = f.lifecycle.SubmitEvaluation(ctx, evaluation(intent.ID, yuki.ID, owner.ID, 9))
	require.NoError(t, err)
	assert.False(t, completed)
	assert.Equal(t, models.IntentMatched, f.reload(t, intent.ID).Status)

	completed, err = f.lifecycle.SubmitEvaluation(ctx, evaluation(intent.ID, owner.ID, yuki.ID, 6))
	require.NoError(t, err)
	assert.True(t, completed)

	points := func(id string) int {
		u, err := f.users.Get(ctx, id)
		require.NoError(t, err)
		return u.Points
	}
	assert.Equal(t, 9, points(owner.ID))
	assert.Equal(t, 6, points(yuki.ID))
	assert.Zero(t, points(released.ID))

	// the discarded rating no longer blocks rating the same person later
	again := f.intent(t, owner)
	_, err = f.match.Accept(ctx, again.ID, released.ID)
	require.NoError(t, err)
	_, err = f.lifecycle.SubmitEvaluation(ctx, evaluation(again.ID, owner.ID, released.ID, 8))
	assert.NoError(t, err)
}
