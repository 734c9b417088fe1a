package repository

import (
	"context"
	"fmt"

	"vnjp-connect/internal/models"

	"github.com/jackc/pgx/v5"
)

// EvaluationRepository handles database operations for evaluations and the
// completion of an intent once both participants have evaluated each other
type EvaluationRepository struct {
	db DB
}

// NewEvaluationRepository creates a new evaluation repository
func NewEvaluationRepository(db DB) *EvaluationRepository {
	return &EvaluationRepository{db: db}
}

// Submit records an evaluation. When it is the second of the two directions
// between the intent's current owner and partner, the intent is completed,
// its channel deactivated and each evaluatee credited with the score they
// received, all in the same transaction. The intent row is locked so two
// concurrent submissions cannot both miss each other.
func (r *EvaluationRepository) Submit(ctx context.Context, e *models.Evaluation) (bool, error) {
	completed := false

	err := inTx(ctx, r.db, func(tx pgx.Tx) error {
		var (
			status    models.IntentStatus
			ownerID   string
			partnerID *string
		)
		err := tx.QueryRow(ctx,
			`SELECT status, owner_id, partner_id FROM exchange_intents WHERE id = $1 FOR UPDATE`, e.IntentID,
		).Scan(&status, &ownerID, &partnerID)
		if err != nil {
			if isMissing(err) {
				return fmt.Errorf("intent %s: %w", e.IntentID, ErrNotFound)
			}
			return fmt.Errorf("failed to lock intent: %w", err)
		}
		if status != models.IntentMatched || partnerID == nil {
			return ErrStateConflict
		}

		tag, err := tx.Exec(ctx, `
			INSERT INTO evaluations (intent_id, evaluator_id, evaluatee_id, score, comment, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (evaluator_id, evaluatee_id) DO NOTHING
		`, e.IntentID, e.EvaluatorID, e.EvaluateeID, e.Score, e.Comment, e.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to create evaluation: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrDuplicate
		}

		var count int
		err = tx.QueryRow(ctx, `
			SELECT COUNT(*) FROM evaluations
			WHERE intent_id = $1 AND (
				(evaluator_id = $2 AND evaluatee_id = $3) OR
				(evaluator_id = $3 AND evaluatee_id = $2))
		`, e.IntentID, ownerID, *partnerID).Scan(&count)
		if err != nil {
			return fmt.Errorf("failed to count evaluations: %w", err)
		}
		if count < 2 {
			return nil
		}

		if _, err := tx.Exec(ctx, `
			UPDATE exchange_intents SET status = 'completed', updated_at = now()
			WHERE id = $1
		`, e.IntentID); err != nil {
			return fmt.Errorf("failed to complete intent: %w", err)
		}
		if _, err := tx.Exec(ctx,
			`UPDATE channels SET is_active = FALSE WHERE intent_id = $1`, e.IntentID,
		); err != nil {
			return fmt.Errorf("failed to deactivate channel: %w", err)
		}
		if _, err := tx.Exec(ctx, `
			UPDATE users u SET points = u.points + ev.score
			FROM evaluations ev
			WHERE ev.intent_id = $1 AND u.id = ev.evaluatee_id
			  AND ev.evaluatee_id IN ($2, $3) AND ev.evaluator_id IN ($2, $3)
		`, e.IntentID, ownerID, *partnerID); err != nil {
			return fmt.Errorf("failed to credit points: %w", err)
		}

		completed = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return completed, nil
}

// ListByIntent returns the evaluations recorded for an intent
func (r *EvaluationRepository) ListByIntent(ctx context.Context, intentID string) ([]*models.Evaluation, error) {
	query := `
		SELECT intent_id, evaluator_id, evaluatee_id, score, comment, created_at
		FROM evaluations
		WHERE intent_id = $1
		ORDER BY created_at ASC
	`
	rows, err := r.db.Query(ctx, query, intentID)
	if err != nil {
		return nil, fmt.Errorf("failed to get evaluations: %w", err)
	}
	defer rows.Close()

	var evaluations []*models.Evaluation
	for rows.Next() {
		var e models.Evaluation
		if err := rows.Scan(&e.IntentID, &e.EvaluatorID, &e.EvaluateeID, &e.Score, &e.Comment, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan evaluation: %w", err)
		}
		evaluations = append(evaluations, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating evaluations: %w", err)
	}
	return evaluations, nil
}
