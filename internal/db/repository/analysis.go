package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/squigly/coach-api/internal/db"
	"github.com/squigly/coach-api/internal/db/models"
)

// AnalysisRepository keeps the latest analysis per (user, channel).
type AnalysisRepository interface {
	// Get returns db.ErrNotFound when nothing has been computed yet.
	Get(ctx context.Context, userID uuid.UUID, channelID string) (*models.CachedAnalysis, error)

	// Upsert overwrites the pair's row and resets created_at to now.
	Upsert(ctx context.Context, analysis *models.CachedAnalysis) error
}

type analysisRepository struct {
	pool *pgxpool.Pool
}

// NewAnalysisRepository creates a new AnalysisRepository.
func NewAnalysisRepository(pool *pgxpool.Pool) AnalysisRepository {
	return &analysisRepository{pool: pool}
}

func (r *analysisRepository) Get(ctx context.Context, userID uuid.UUID, channelID string) (*models.CachedAnalysis, error) {
	query := `
		SELECT id, user_id, channel_id, analysis_text, fixes, video_fingerprint, created_at
		FROM channel_analyses
		WHERE user_id = $1 AND channel_id = $2
	`

	a := &models.CachedAnalysis{}
	err := r.pool.QueryRow(ctx, query, userID, channelID).Scan(
		&a.ID,
		&a.UserID,
		&a.ChannelID,
		&a.AnalysisText,
		&a.Fixes,
		&a.VideoFingerprint,
		&a.CreatedAt,
	)
	if err != nil {
		return nil, db.WrapError(err, "get analysis")
	}

	return a, nil
}

func (r *analysisRepository) Upsert(ctx context.Context, analysis *models.CachedAnalysis) error {
	query := `
		INSERT INTO channel_analyses (user_id, channel_id, analysis_text, fixes, video_fingerprint, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (user_id, channel_id) DO UPDATE
		SET analysis_text = EXCLUDED.analysis_text,
		    fixes = EXCLUDED.fixes,
		    video_fingerprint = EXCLUDED.video_fingerprint,
		    created_at = NOW()
		RETURNING id, created_at
	`

	if analysis.Fixes == nil {
		analysis.Fixes = models.Fixes{}
	}

	err := r.pool.QueryRow(ctx, query,
		analysis.UserID,
		analysis.ChannelID,
		analysis.AnalysisText,
		analysis.Fixes,
		analysis.VideoFingerprint,
	).Scan(&analysis.ID, &analysis.CreatedAt)
	if err != nil {
		return db.WrapError(err, "upsert analysis")
	}

	return nil
}
