package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/squigly/coach-api/internal/db"
	"github.com/squigly/coach-api/internal/db/models"
)

// ProfileRepository stores the per-channel coaching profile.
type ProfileRepository interface {
	Get(ctx context.Context, userID uuid.UUID, channelID string) (*models.Profile, error)
	Upsert(ctx context.Context, profile *models.Profile) error
}

type profileRepository struct {
	pool *pgxpool.Pool
}

// NewProfileRepository creates a new ProfileRepository.
func NewProfileRepository(pool *pgxpool.Pool) ProfileRepository {
	return &profileRepository{pool: pool}
}

func (r *profileRepository) Get(ctx context.Context, userID uuid.UUID, channelID string) (*models.Profile, error) {
	query := `
		SELECT id, user_id, channel_id, channel_name, channel_about, goal, updated_at
		FROM user_profiles
		WHERE user_id = $1 AND channel_id = $2
	`

	p := &models.Profile{}
	err := r.pool.QueryRow(ctx, query, userID, channelID).Scan(
		&p.ID,
		&p.UserID,
		&p.ChannelID,
		&p.ChannelName,
		&p.ChannelAbout,
		&p.Goal,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, db.WrapError(err, "get profile")
	}

	return p, nil
}

func (r *profileRepository) Upsert(ctx context.Context, profile *models.Profile) error {
	query := `
		INSERT INTO user_profiles (user_id, channel_id, channel_name, channel_about, goal)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, channel_id) DO UPDATE
		SET channel_name = EXCLUDED.channel_name,
		    channel_about = EXCLUDED.channel_about,
		    goal = EXCLUDED.goal,
		    updated_at = NOW()
		RETURNING id, updated_at
	`

	err := r.pool.QueryRow(ctx, query,
		profile.UserID,
		profile.ChannelID,
		profile.ChannelName,
		profile.ChannelAbout,
		profile.Goal,
	).Scan(&profile.ID, &profile.UpdatedAt)
	if err != nil {
		return db.WrapError(err, "upsert profile")
	}

	return nil
}
