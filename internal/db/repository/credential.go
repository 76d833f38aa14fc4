package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/squigly/coach-api/internal/db"
	"github.com/squigly/coach-api/internal/db/models"
)

// CredentialRepository stores YouTube OAuth grants keyed by (user, channel).
type CredentialRepository interface {
	// Get returns db.ErrNotFound when the pair was never connected.
	Get(ctx context.Context, userID uuid.UUID, channelID string) (*models.Credential, error)

	// ListByUser returns every channel the user has connected, newest first.
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.Credential, error)

	// Upsert inserts or replaces the grant. A nil RefreshToken keeps the stored one.
	Upsert(ctx context.Context, cred *models.Credential) error

	// UpdateAccessToken records a refreshed access token and its expiry.
	UpdateAccessToken(ctx context.Context, userID uuid.UUID, channelID, accessToken string, expiry time.Time) error
}

type credentialRepository struct {
	pool *pgxpool.Pool
}

// NewCredentialRepository creates a new CredentialRepository.
func NewCredentialRepository(pool *pgxpool.Pool) CredentialRepository {
	return &credentialRepository{pool: pool}
}

const credentialColumns = `
	id, user_id, channel_id, channel_title, access_token, refresh_token,
	scope, token_type, expiry_date, created_at, updated_at`

func (r *credentialRepository) Get(ctx context.Context, userID uuid.UUID, channelID string) (*models.Credential, error) {
	query := `SELECT` + credentialColumns + `
		FROM youtube_tokens
		WHERE user_id = $1 AND channel_id = $2
	`

	cred, err := scanCredential(r.pool.QueryRow(ctx, query, userID, channelID))
	if err != nil {
		return nil, db.WrapError(err, "get credential")
	}

	return cred, nil
}

func (r *credentialRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.Credential, error) {
	query := `SELECT` + credentialColumns + `
		FROM youtube_tokens
		WHERE user_id = $1
		ORDER BY updated_at DESC
	`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, db.WrapError(err, "list credentials")
	}
	defer rows.Close()

	var creds []*models.Credential
	for rows.Next() {
		cred, err := scanCredential(rows)
		if err != nil {
			return nil, db.WrapError(err, "scan credential")
		}
		creds = append(creds, cred)
	}

	if err := rows.Err(); err != nil {
		return nil, db.WrapError(err, "iterate credentials")
	}

	return creds, nil
}

func (r *credentialRepository) Upsert(ctx context.Context, cred *models.Credential) error {
	query := `
		INSERT INTO youtube_tokens (
			user_id, channel_id, channel_title, access_token, refresh_token,
			scope, token_type, expiry_date
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (user_id, channel_id) DO UPDATE
		SET channel_title = EXCLUDED.channel_title,
		    access_token = EXCLUDED.access_token,
		    refresh_token = COALESCE(EXCLUDED.refresh_token, youtube_tokens.refresh_token),
		    scope = EXCLUDED.scope,
		    token_type = EXCLUDED.token_type,
		    expiry_date = EXCLUDED.expiry_date,
		    updated_at = NOW()
		RETURNING id, refresh_token, created_at, updated_at
	`

	tokenType := cred.TokenType
	if tokenType == "" {
		tokenType = "Bearer"
	}

	err := r.pool.QueryRow(ctx, query,
		cred.UserID,
		cred.ChannelID,
		cred.ChannelTitle,
		cred.AccessToken,
		cred.RefreshToken,
		cred.Scope,
		tokenType,
		cred.Expiry,
	).Scan(
		&cred.ID,
		&cred.RefreshToken,
		&cred.CreatedAt,
		&cred.UpdatedAt,
	)
	if err != nil {
		return db.WrapError(err, "upsert credential")
	}
	cred.TokenType = tokenType

	return nil
}

func (r *credentialRepository) UpdateAccessToken(ctx context.Context, userID uuid.UUID, channelID, accessToken string, expiry time.Time) error {
	query := `
		UPDATE youtube_tokens
		SET access_token = $3,
		    expiry_date = $4,
		    updated_at = NOW()
		WHERE user_id = $1 AND channel_id = $2
	`

	tag, err := r.pool.Exec(ctx, query, userID, channelID, accessToken, expiry)
	if err != nil {
		return db.WrapError(err, "update access token")
	}
	if tag.RowsAffected() == 0 {
		return db.WrapError(pgx.ErrNoRows, "update access token")
	}

	return nil
}

func scanCredential(row pgx.Row) (*models.Credential, error) {
	cred := &models.Credential{}
	err := row.Scan(
		&cred.ID,
		&cred.UserID,
		&cred.ChannelID,
		&cred.ChannelTitle,
		&cred.AccessToken,
		&cred.RefreshToken,
		&cred.Scope,
		&cred.TokenType,
		&cred.Expiry,
		&cred.CreatedAt,
		&cred.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return cred, nil
}
