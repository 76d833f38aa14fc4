package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/squigly/coach-api/internal/db"
)

// UsageRepository is the append-only analysis ledger. There is deliberately no
// update or delete; the analysis_uses trigger rejects both.
type UsageRepository interface {
	// Append records one billable analysis at the given time.
	Append(ctx context.Context, userID uuid.UUID, channelID string, at time.Time) error

	// CountSince counts the user's records with used_at >= since, across all channels.
	CountSince(ctx context.Context, userID uuid.UUID, since time.Time) (int, error)

	// ListSince returns used_at values >= since, most recent first.
	ListSince(ctx context.Context, userID uuid.UUID, since time.Time) ([]time.Time, error)
}

type usageRepository struct {
	pool *pgxpool.Pool
}

// NewUsageRepository creates a new UsageRepository.
func NewUsageRepository(pool *pgxpool.Pool) UsageRepository {
	return &usageRepository{pool: pool}
}

func (r *usageRepository) Append(ctx context.Context, userID uuid.UUID, channelID string, at time.Time) error {
	query := `
		INSERT INTO analysis_uses (user_id, channel_id, used_at)
		VALUES ($1, $2, $3)
	`

	if _, err := r.pool.Exec(ctx, query, userID, channelID, at); err != nil {
		return db.WrapError(err, "append usage")
	}

	return nil
}

func (r *usageRepository) CountSince(ctx context.Context, userID uuid.UUID, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM analysis_uses
		WHERE user_id = $1 AND used_at >= $2
	`

	var count int
	if err := r.pool.QueryRow(ctx, query, userID, since).Scan(&count); err != nil {
		return 0, db.WrapError(err, "count usage")
	}

	return count, nil
}

func (r *usageRepository) ListSince(ctx context.Context, userID uuid.UUID, since time.Time) ([]time.Time, error) {
	query := `
		SELECT used_at
		FROM analysis_uses
		WHERE user_id = $1 AND used_at >= $2
		ORDER BY used_at DESC
	`

	rows, err := r.pool.Query(ctx, query, userID, since)
	if err != nil {
		return nil, db.WrapError(err, "list usage")
	}
	defer rows.Close()

	var uses []time.Time
	for rows.Next() {
		var usedAt time.Time
		if err := rows.Scan(&usedAt); err != nil {
			return nil, db.WrapError(err, "scan usage")
		}
		uses = append(uses, usedAt)
	}

	if err := rows.Err(); err != nil {
		return nil, db.WrapError(err, "iterate usage")
	}

	return uses, nil
}
