package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"vnjp-connect/internal/models"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		mock.Close()
	})
	return mock
}

func sql(s string) string {
	return regexp.QuoteMeta(s)
}

func TestIntentRepository_MatchLosesRace(t *testing.T) {
	mock := newMock(t)
	repo := NewIntentRepository(mock)

	mock.ExpectBegin()
	mock.ExpectExec(sql("UPDATE exchange_intents")).
		WithArgs("intent-1", "user-2").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectRollback()

	_, err := repo.Match(context.Background(), "intent-1", "user-2",
		&models.Channel{ID: "ch-new", CreatedAt: time.Now()},
		&models.Message{ID: "m-1", Content: "welcome", SentAt: time.Now()},
	)
	assert.ErrorIs(t, err, ErrStateConflict)
}

func TestIntentRepository_MatchReusesChannel(t *testing.T) {
	mock := newMock(t)
	repo := NewIntentRepository(mock)
	created := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec(sql("UPDATE exchange_intents")).
		WithArgs("intent-1", "user-2").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectQuery(sql("INSERT INTO channels")).
		WithArgs("ch-new", "intent-1", pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id", "intent_id", "is_active", "created_at"}).
			AddRow("ch-existing", "intent-1", true, created))
	mock.ExpectExec(sql("INSERT INTO messages")).
		WithArgs("m-1", "ch-existing", pgxmock.AnyArg(), "welcome", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	welcome := &models.Message{ID: "m-1", Content: "welcome", SentAt: created}
	channel, err := repo.Match(context.Background(), "intent-1", "user-2",
		&models.Channel{ID: "ch-new", CreatedAt: created}, welcome)
	require.NoError(t, err)
	assert.Equal(t, "ch-existing", channel.ID)
	assert.True(t, channel.IsActive)
	assert.Equal(t, "ch-existing", welcome.ChannelID)
}

func TestIntentRepository_UnmatchDeletesChannel(t *testing.T) {
	mock := newMock(t)
	repo := NewIntentRepository(mock)

	mock.ExpectBegin()
	mock.ExpectExec(sql("SET partner_id = NULL, status = 'active'")).
		WithArgs("intent-1", "user-2").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(sql("DELETE FROM channels WHERE intent_id = $1")).
		WithArgs("intent-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec(sql("DELETE FROM evaluations WHERE intent_id = $1")).
		WithArgs("intent-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Unmatch(context.Background(), "intent-1", "user-2"))
}

func TestIntentRepository_UnmatchNotMatched(t *testing.T) {
	mock := newMock(t)
	repo := NewIntentRepository(mock)

	mock.ExpectBegin()
	mock.ExpectExec(sql("SET partner_id = NULL, status = 'active'")).
		WithArgs("intent-1", "user-3").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectRollback()

	assert.ErrorIs(t, repo.Unmatch(context.Background(), "intent-1", "user-3"), ErrStateConflict)
}

func TestIntentRepository_GetByIDNotFound(t *testing.T) {
	mock := newMock(t)
	repo := NewIntentRepository(mock)

	mock.ExpectQuery(sql("FROM exchange_intents i WHERE i.id = $1")).
		WithArgs("missing").
		WillReturnRows(pgxmock.NewRows([]string{"id"}))

	_, err := repo.GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMessageRepository_ListAndMarkRead(t *testing.T) {
	mock := newMock(t)
	repo := NewMessageRepository(mock)
	sentAt := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	u1, u2 := "user-1", "user-2"

	mock.ExpectBegin()
	mock.ExpectExec(sql("UPDATE messages SET is_read = TRUE")).
		WithArgs("ch-1", "user-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectQuery(sql("ORDER BY sent_at ASC, id ASC")).
		WithArgs("ch-1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "channel_id", "sender_id", "content", "sent_at", "is_read"}).
			AddRow("m-1", "ch-1", &u1, "Hello", sentAt, false).
			AddRow("m-2", "ch-1", &u2, "Hi", sentAt.Add(time.Second), true))
	mock.ExpectCommit()

	msgs, err := repo.ListAndMarkRead(context.Background(), "ch-1", "user-1")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "Hello", msgs[0].Content)
	assert.False(t, msgs[0].IsRead)
	assert.True(t, msgs[1].IsRead)
	assert.True(t, msgs[1].AuthoredBy("user-2"))
}

func TestEvaluationRepository_Submit(t *testing.T) {
	evaluation := func() *models.Evaluation {
		return &models.Evaluation{
			IntentID:    "intent-1",
			EvaluatorID: "user-1",
			EvaluateeID: "user-2",
			Score:       8,
			CreatedAt:   time.Now(),
		}
	}
	lockIntent := sql("SELECT status, owner_id, partner_id FROM exchange_intents WHERE id = $1 FOR UPDATE")
	partner := "user-2"
	matchedRow := func() *pgxmock.Rows {
		return pgxmock.NewRows([]string{"status", "owner_id", "partner_id"}).
			AddRow(models.IntentMatched, "user-1", &partner)
	}
	insert := sql("INSERT INTO evaluations")

	t.Run("duplicate", func(t *testing.T) {
		mock := newMock(t)
		repo := NewEvaluationRepository(mock)

		mock.ExpectBegin()
		mock.ExpectQuery(lockIntent).WithArgs("intent-1").
			WillReturnRows(matchedRow())
		mock.ExpectExec(insert).
			WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 0))
		mock.ExpectRollback()

		_, err := repo.Submit(context.Background(), evaluation())
		assert.ErrorIs(t, err, ErrDuplicate)
	})

	t.Run("intent missing", func(t *testing.T) {
		mock := newMock(t)
		repo := NewEvaluationRepository(mock)

		mock.ExpectBegin()
		mock.ExpectQuery(lockIntent).WithArgs("intent-1").
			WillReturnRows(pgxmock.NewRows([]string{"status", "owner_id", "partner_id"}))
		mock.ExpectRollback()

		_, err := repo.Submit(context.Background(), evaluation())
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("not matched", func(t *testing.T) {
		mock := newMock(t)
		repo := NewEvaluationRepository(mock)

		mock.ExpectBegin()
		mock.ExpectQuery(lockIntent).WithArgs("intent-1").
			WillReturnRows(pgxmock.NewRows([]string{"status", "owner_id", "partner_id"}).
				AddRow(models.IntentCompleted, "user-1", &partner))
		mock.ExpectRollback()

		_, err := repo.Submit(context.Background(), evaluation())
		assert.ErrorIs(t, err, ErrStateConflict)
	})

	t.Run("first of two", func(t *testing.T) {
		mock := newMock(t)
		repo := NewEvaluationRepository(mock)

		mock.ExpectBegin()
		mock.ExpectQuery(lockIntent).WithArgs("intent-1").
			WillReturnRows(matchedRow())
		mock.ExpectExec(insert).
			WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectQuery(sql("(evaluator_id = $2 AND evaluatee_id = $3) OR")).WithArgs("intent-1", "user-1", "user-2").
			WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(1))
		mock.ExpectCommit()

		completed, err := repo.Submit(context.Background(), evaluation())
		require.NoError(t, err)
		assert.False(t, completed)
	})

	t.Run("second completes", func(t *testing.T) {
		mock := newMock(t)
		repo := NewEvaluationRepository(mock)

		mock.ExpectBegin()
		mock.ExpectQuery(lockIntent).WithArgs("intent-1").
			WillReturnRows(matchedRow())
		mock.ExpectExec(insert).
			WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectQuery(sql("(evaluator_id = $2 AND evaluatee_id = $3) OR")).WithArgs("intent-1", "user-1", "user-2").
			WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(2))
		mock.ExpectExec(sql("SET status = 'completed'")).WithArgs("intent-1").
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mock.ExpectExec(sql("UPDATE channels SET is_active = FALSE")).WithArgs("intent-1").
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mock.ExpectExec(sql("AND ev.evaluatee_id IN ($2, $3) AND ev.evaluator_id IN ($2, $3)")).
			WithArgs("intent-1", "user-1", "user-2").
			WillReturnResult(pgxmock.NewResult("UPDATE", 2))
		mock.ExpectCommit()

		completed, err := repo.Submit(context.Background(), evaluation())
		require.NoError(t, err)
		assert.True(t, completed)
	})
}

func TestIntentRepository_WithdrawConflict(t *testing.T) {
	mock := newMock(t)
	repo := NewIntentRepository(mock)

	mock.ExpectExec(sql("SET status = 'cancelled'")).
		WithArgs("intent-1", "user-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	assert.ErrorIs(t, repo.Withdraw(context.Background(), "intent-1", "user-1"), ErrStateConflict)
}

func TestLookups_MalformedIDIsNotFound(t *testing.T) {
	badUUID := &pgconn.PgError{Code: "22P02", Message: `invalid input syntax for type uuid: "abc"`}

	t.Run("intent", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectQuery(sql("FROM exchange_intents i WHERE i.id = $1")).
			WithArgs("abc").
			WillReturnError(badUUID)

		_, err := NewIntentRepository(mock).GetByID(context.Background(), "abc")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("channel", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectQuery(sql("FROM channels WHERE id = $1")).
			WithArgs("xyz").
			WillReturnError(badUUID)

		_, err := NewChannelRepository(mock).GetByID(context.Background(), "xyz")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("user", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectQuery(sql("FROM users WHERE id = $1")).
			WithArgs("nope").
			WillReturnError(badUUID)

		_, err := NewUserRepository(mock).GetByID(context.Background(), "nope")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("other errors are not masked", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectQuery(sql("FROM channels WHERE id = $1")).
			WithArgs("ch-1").
			WillReturnError(errors.New("connection reset"))

		_, err := NewChannelRepository(mock).GetByID(context.Background(), "ch-1")
		assert.Error(t, err)
		assert.NotErrorIs(t, err, ErrNotFound)
	})
}

func TestChannelRepository_ListSummariesTieBreak(t *testing.T) {
	mock := newMock(t)
	mock.ExpectQuery(sql("ORDER BY COALESCE(lm.sent_at, c.created_at) DESC, c.id ASC")).
		WithArgs("user-1").
		WillReturnRows(pgxmock.NewRows([]string{"id"}))

	summaries, err := NewChannelRepository(mock).ListSummaries(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Empty(t, summaries)
}
