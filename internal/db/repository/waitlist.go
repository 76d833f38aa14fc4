package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/squigly/coach-api/internal/db"
	"github.com/squigly/coach-api/internal/db/models"
)

// WaitlistRepository stores pre-launch signups.
type WaitlistRepository interface {
	// Add returns db.ErrDuplicateKey when the email is already present.
	Add(ctx context.Context, email string) (*models.WaitlistEntry, error)
}

type waitlistRepository struct {
	pool *pgxpool.Pool
}

// NewWaitlistRepository creates a new WaitlistRepository.
func NewWaitlistRepository(pool *pgxpool.Pool) WaitlistRepository {
	return &waitlistRepository{pool: pool}
}

func (r *waitlistRepository) Add(ctx context.Context, email string) (*models.WaitlistEntry, error) {
	query := `
		INSERT INTO waitlist (email)
		VALUES ($1)
		RETURNING id, email, created_at
	`

	entry := &models.WaitlistEntry{}
	if err := r.pool.QueryRow(ctx, query, email).Scan(&entry.ID, &entry.Email, &entry.CreatedAt); err != nil {
		return nil, db.WrapError(err, "add waitlist entry")
	}

	return entry, nil
}
