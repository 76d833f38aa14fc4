package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/squigly/coach-api/internal/db"
	"github.com/squigly/coach-api/internal/db/models"
)

// SubscriptionRepository stores one billing row per user.
type SubscriptionRepository interface {
	// GetByUserID returns db.ErrNotFound for users who never checked out.
	GetByUserID(ctx context.Context, userID uuid.UUID) (*models.Subscription, error)

	// Upsert creates or replaces the user's row. Nil Stripe ids keep the stored values.
	Upsert(ctx context.Context, sub *models.Subscription) error

	// UpdateStatusBySubscriptionID sets the status for the row owning the
	// Stripe subscription and returns it.
	UpdateStatusBySubscriptionID(ctx context.Context, stripeSubscriptionID string, status models.Tier) (*models.Subscription, error)

	// TouchByCustomerID bumps updated_at for the customer's row.
	TouchByCustomerID(ctx context.Context, stripeCustomerID string) error
}

type subscriptionRepository struct {
	pool *pgxpool.Pool
}

// NewSubscriptionRepository creates a new SubscriptionRepository.
func NewSubscriptionRepository(pool *pgxpool.Pool) SubscriptionRepository {
	return &subscriptionRepository{pool: pool}
}

func (r *subscriptionRepository) GetByUserID(ctx context.Context, userID uuid.UUID) (*models.Subscription, error) {
	query := `
		SELECT id, user_id, status, stripe_customer_id, stripe_subscription_id, created_at, updated_at
		FROM subscriptions
		WHERE user_id = $1
	`

	sub, err := scanSubscription(r.pool.QueryRow(ctx, query, userID))
	if err != nil {
		return nil, db.WrapError(err, "get subscription by user id")
	}

	return sub, nil
}

func (r *subscriptionRepository) Upsert(ctx context.Context, sub *models.Subscription) error {
	query := `
		INSERT INTO subscriptions (user_id, status, stripe_customer_id, stripe_subscription_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE
		SET status = EXCLUDED.status,
		    stripe_customer_id = COALESCE(EXCLUDED.stripe_customer_id, subscriptions.stripe_customer_id),
		    stripe_subscription_id = COALESCE(EXCLUDED.stripe_subscription_id, subscriptions.stripe_subscription_id),
		    updated_at = NOW()
		RETURNING id, stripe_customer_id, stripe_subscription_id, created_at, updated_at
	`

	err := r.pool.QueryRow(ctx, query,
		sub.UserID,
		sub.Status,
		sub.StripeCustomerID,
		sub.StripeSubscriptionID,
	).Scan(
		&sub.ID,
		&sub.StripeCustomerID,
		&sub.StripeSubscriptionID,
		&sub.CreatedAt,
		&sub.UpdatedAt,
	)
	if err != nil {
		return db.WrapError(err, "upsert subscription")
	}

	return nil
}

func (r *subscriptionRepository) UpdateStatusBySubscriptionID(ctx context.Context, stripeSubscriptionID string, status models.Tier) (*models.Subscription, error) {
	query := `
		UPDATE subscriptions
		SET status = $2, updated_at = NOW()
		WHERE stripe_subscription_id = $1
		RETURNING id, user_id, status, stripe_customer_id, stripe_subscription_id, created_at, updated_at
	`

	sub, err := scanSubscription(r.pool.QueryRow(ctx, query, stripeSubscriptionID, status))
	if err != nil {
		return nil, db.WrapError(err, "update subscription status")
	}

	return sub, nil
}

func (r *subscriptionRepository) TouchByCustomerID(ctx context.Context, stripeCustomerID string) error {
	query := `
		UPDATE subscriptions
		SET updated_at = NOW()
		WHERE stripe_customer_id = $1
	`

	tag, err := r.pool.Exec(ctx, query, stripeCustomerID)
	if err != nil {
		return db.WrapError(err, "touch subscription")
	}
	if tag.RowsAffected() == 0 {
		return db.WrapError(pgx.ErrNoRows, "touch subscription")
	}

	return nil
}

func scanSubscription(row pgx.Row) (*models.Subscription, error) {
	sub := &models.Subscription{}
	err := row.Scan(
		&sub.ID,
		&sub.UserID,
		&sub.Status,
		&sub.StripeCustomerID,
		&sub.StripeSubscriptionID,
		&sub.CreatedAt,
		&sub.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return sub, nil
}
