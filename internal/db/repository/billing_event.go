package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/squigly/coach-api/internal/db"
	"github.com/squigly/coach-api/internal/db/models"
)

// ClaimLease is how long a claimed delivery may stay unfinished before a
// redelivery may claim it again.
const ClaimLease = 5 * time.Minute

// BillingEventRepository deduplicates Stripe webhook deliveries.
type BillingEventRepository interface {
	// Record stores the event and reports false when its provider id was already
	// seen. A delivery whose earlier attempt failed, or that was claimed more than
	// ClaimLease ago and never finished, is claimed again.
	Record(ctx context.Context, event *models.BillingEvent) (bool, error)

	// MarkProcessed stamps processed_at and stores processErr's message, if any.
	MarkProcessed(ctx context.Context, providerEventID string, processErr error) error
}

type billingEventRepository struct {
	pool *pgxpool.Pool
}

// NewBillingEventRepository creates a new BillingEventRepository.
func NewBillingEventRepository(pool *pgxpool.Pool) BillingEventRepository {
	return &billingEventRepository{pool: pool}
}

func (r *billingEventRepository) Record(ctx context.Context, event *models.BillingEvent) (bool, error) {
	query := `
		INSERT INTO billing_webhook_events (provider_event_id, event_type, payload)
		VALUES ($1, $2, $3)
		ON CONFLICT (provider_event_id) DO UPDATE
		SET processed_at = NULL, processing_error = NULL, claimed_at = NOW()
		WHERE billing_webhook_events.processing_error IS NOT NULL
		   OR (billing_webhook_events.processed_at IS NULL
		       AND billing_webhook_events.claimed_at < NOW() - make_interval(secs => $4))
		RETURNING id, created_at, claimed_at
	`

	err := r.pool.QueryRow(ctx, query, event.ProviderEventID, event.EventType, event.Payload, ClaimLease.Seconds()).
		Scan(&event.ID, &event.CreatedAt, &event.ClaimedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, db.WrapError(err, "record billing event")
	}

	return true, nil
}

func (r *billingEventRepository) MarkProcessed(ctx context.Context, providerEventID string, processErr error) error {
	query := `
		UPDATE billing_webhook_events
		SET processed_at = NOW(), processing_error = $2
		WHERE provider_event_id = $1
	`

	var msg *string
	if processErr != nil {
		s := processErr.Error()
		msg = &s
	}

	tag, err := r.pool.Exec(ctx, query, providerEventID, msg)
	if err != nil {
		return db.WrapError(err, "mark billing event processed")
	}
	if tag.RowsAffected() == 0 {
		return db.WrapError(pgx.ErrNoRows, "mark billing event processed")
	}

	return nil
}
