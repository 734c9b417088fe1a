package repository

import (
	"context"
	"fmt"

	"vnjp-connect/internal/models"

	"github.com/jackc/pgx/v5"
)

// IntentRepository handles database operations for exchange intents.
// Status transitions are conditional updates so concurrent callers cannot
// both win the same transition.
type IntentRepository struct {
	db DB
}

// NewIntentRepository creates a new intent repository
func NewIntentRepository(db DB) *IntentRepository {
	return &IntentRepository{db: db}
}

const intentColumns = `i.id, i.kind, i.owner_id, i.partner_id, i.status, i.request_type,
	i.title, i.description, i.preferred_city, i.created_at, i.updated_at`

func scanIntent(row pgx.Row) (*models.Intent, error) {
	var intent models.Intent
	err := row.Scan(
		&intent.ID, &intent.Kind, &intent.OwnerID, &intent.PartnerID, &intent.Status,
		&intent.RequestType, &intent.Title, &intent.Description, &intent.PreferredCity,
		&intent.CreatedAt, &intent.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &intent, nil
}

func collectIntents(rows pgx.Rows) ([]*models.Intent, error) {
	defer rows.Close()

	var intents []*models.Intent
	for rows.Next() {
		intent, err := scanIntent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan intent: %w", err)
		}
		intents = append(intents, intent)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating intents: %w", err)
	}
	return intents, nil
}

// Create creates a new intent
func (r *IntentRepository) Create(ctx context.Context, intent *models.Intent) error {
	query := `
		INSERT INTO exchange_intents (id, kind, owner_id, partner_id, status, request_type,
			title, description, preferred_city, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := r.db.Exec(ctx, query,
		intent.ID, intent.Kind, intent.OwnerID, intent.PartnerID, intent.Status,
		intent.RequestType, intent.Title, intent.Description, intent.PreferredCity,
		intent.CreatedAt, intent.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create intent: %w", err)
	}
	return nil
}

// GetByID retrieves an intent by ID
func (r *IntentRepository) GetByID(ctx context.Context, id string) (*models.Intent, error) {
	query := `SELECT ` + intentColumns + ` FROM exchange_intents i WHERE i.id = $1`
	intent, err := scanIntent(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if isMissing(err) {
			return nil, fmt.Errorf("intent %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get intent: %w", err)
	}
	return intent, nil
}

// UpdateDetails rewrites the descriptive fields of an active intent
func (r *IntentRepository) UpdateDetails(ctx context.Context, intent *models.Intent) error {
	query := `
		UPDATE exchange_intents
		SET title = $1, description = $2, preferred_city = $3, request_type = $4, updated_at = $5
		WHERE id = $6 AND owner_id = $7 AND status = 'active'
	`
	result, err := r.db.Exec(ctx, query,
		intent.Title, intent.Description, intent.PreferredCity, intent.RequestType,
		intent.UpdatedAt, intent.ID, intent.OwnerID,
	)
	if err != nil {
		return fmt.Errorf("failed to update intent: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrStateConflict
	}
	return nil
}

// ListByUser returns intents the user owns or is partnered on, newest first
func (r *IntentRepository) ListByUser(ctx context.Context, userID string) ([]*models.Intent, error) {
	query := `
		SELECT ` + intentColumns + `
		FROM exchange_intents i
		WHERE i.owner_id = $1 OR i.partner_id = $1
		ORDER BY i.created_at DESC
	`
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list intents: %w", err)
	}
	return collectIntents(rows)
}

// Search returns active intents matching the filter. Owners the viewer has
// already been matched with come first, then newest.
func (r *IntentRepository) Search(ctx context.Context, f models.IntentFilter) ([]*models.Intent, error) {
	query := `
		SELECT ` + intentColumns + `
		FROM exchange_intents i
		JOIN users o ON o.id = i.owner_id
		WHERE i.status = 'active'
		  AND i.owner_id <> $1
		  AND o.nationality = $2
		  AND i.request_type = ANY($3)
		  AND ($4::text = '' OR i.preferred_city = $4 OR i.preferred_city = 'any')
		ORDER BY EXISTS (
			SELECT 1 FROM exchange_intents p
			WHERE p.status IN ('matched', 'completed')
			  AND ((p.owner_id = i.owner_id AND p.partner_id = $1)
			    OR (p.owner_id = $1 AND p.partner_id = i.owner_id))
		) DESC, i.created_at DESC
		LIMIT $5
	`
	rows, err := r.db.Query(ctx, query,
		f.ViewerID, f.OwnerNationality.String(), f.RequestTypes, f.City, f.Limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search intents: %w", err)
	}
	return collectIntents(rows)
}

// StatsByUser counts the user's intents by status
func (r *IntentRepository) StatsByUser(ctx context.Context, userID string) (*models.IntentStats, error) {
	query := `
		SELECT status, COUNT(*)
		FROM exchange_intents
		WHERE owner_id = $1 OR partner_id = $1
		GROUP BY status
	`
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to count intents: %w", err)
	}
	defer rows.Close()

	var stats models.IntentStats
	for rows.Next() {
		var (
			status models.IntentStatus
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan intent stats: %w", err)
		}
		switch status {
		case models.IntentActive:
			stats.Active = count
		case models.IntentMatched:
			stats.Matched = count
		case models.IntentCompleted:
			stats.Completed = count
		case models.IntentCancelled:
			stats.Cancelled = count
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating intent stats: %w", err)
	}
	return &stats, nil
}

// Withdraw moves an active intent owned by ownerID to cancelled
func (r *IntentRepository) Withdraw(ctx context.Context, id, ownerID string) error {
	query := `
		UPDATE exchange_intents
		SET status = 'cancelled', updated_at = now()
		WHERE id = $1 AND owner_id = $2 AND status = 'active'
	`
	result, err := r.db.Exec(ctx, query, id, ownerID)
	if err != nil {
		return fmt.Errorf("failed to withdraw intent: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrStateConflict
	}
	return nil
}

// Match binds partnerID to an active intent, provisions its channel and
// posts the welcome message in one transaction. ErrStateConflict means the
// intent was no longer active.
func (r *IntentRepository) Match(ctx context.Context, intentID, partnerID string, channel *models.Channel, welcome *models.Message) (*models.Channel, error) {
	var result models.Channel

	err := inTx(ctx, r.db, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE exchange_intents
			SET partner_id = $2, status = 'matched', updated_at = now()
			WHERE id = $1 AND status = 'active'
		`, intentID, partnerID)
		if err != nil {
			return fmt.Errorf("failed to match intent: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrStateConflict
		}

		err = tx.QueryRow(ctx, `
			INSERT INTO channels (id, intent_id, is_active, created_at)
			VALUES ($1, $2, TRUE, $3)
			ON CONFLICT (intent_id) DO UPDATE SET is_active = TRUE
			RETURNING id, intent_id, is_active, created_at
		`, channel.ID, intentID, channel.CreatedAt).Scan(
			&result.ID, &result.IntentID, &result.IsActive, &result.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to create channel: %w", err)
		}

		welcome.ChannelID = result.ID
		_, err = tx.Exec(ctx, `
			INSERT INTO messages (id, channel_id, sender_id, content, sent_at, is_read)
			VALUES ($1, $2, $3, $4, $5, FALSE)
		`, welcome.ID, welcome.ChannelID, welcome.SenderID, welcome.Content, welcome.SentAt)
		if err != nil {
			return fmt.Errorf("failed to create welcome message: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// Unmatch releases a matched intent back to active and discards its channel,
// messages and any evaluation already given for the released pairing.
// requesterID must be the owner or the partner.
func (r *IntentRepository) Unmatch(ctx context.Context, intentID, requesterID string) error {
	return inTx(ctx, r.db, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE exchange_intents
			SET partner_id = NULL, status = 'active', updated_at = now()
			WHERE id = $1 AND status = 'matched' AND (owner_id = $2 OR partner_id = $2)
		`, intentID, requesterID)
		if err != nil {
			return fmt.Errorf("failed to release intent: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrStateConflict
		}

		if _, err := tx.Exec(ctx, `DELETE FROM channels WHERE intent_id = $1`, intentID); err != nil {
			return fmt.Errorf("failed to delete channel: %w", err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM evaluations WHERE intent_id = $1`, intentID); err != nil {
			return fmt.Errorf("failed to delete evaluations: %w", err)
		}
		return nil
	})
}
