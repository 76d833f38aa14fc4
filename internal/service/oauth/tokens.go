package oauth

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/squigly/coach-api/internal/db"
	"github.com/squigly/coach-api/internal/db/repository"
	"github.com/squigly/coach-api/internal/metrics"
	"github.com/squigly/coach-api/pkg/logger"
)

// DefaultTokenLifetime applies when the provider omits expires_in.
const DefaultTokenLifetime = time.Hour

// Refresher exchanges a refresh token for a new access token.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error)
}

// TokenManager hands out usable access tokens, refreshing expired ones once.
type TokenManager struct {
	store     repository.CredentialRepository
	refresher Refresher
	now       func() time.Time
}

// NewTokenManager creates a new TokenManager.
func NewTokenManager(store repository.CredentialRepository, refresher Refresher) *TokenManager {
	return &TokenManager{
		store:     store,
		refresher: refresher,
		now:       time.Now,
	}
}

// EnsureValid returns an access token for the (user, channel) pair that has not
// expired at call time. A still-valid token is returned without any network
// call. An expired one is refreshed exactly once; there is no retry.
func (m *TokenManager) EnsureValid(ctx context.Context, userID uuid.UUID, channelID string) (string, error) {
	cred, err := m.store.Get(ctx, userID, channelID)
	if err != nil {
		if db.IsNotFound(err) {
			return "", ErrNotConnected
		}
		return "", fmt.Errorf("load credential: %w", err)
	}

	now := m.now()
	if !cred.IsExpired(now) {
		return cred.AccessToken, nil
	}

	if !cred.HasRefreshToken() {
		return "", ErrRefreshUnavailable
	}

	tok, err := m.refresher.Refresh(ctx, *cred.RefreshToken)
	if err != nil {
		metrics.TokenRefreshes.WithLabelValues("failed").Inc()
		failed := newRefreshFailed(err)
		logger.L().Error("Token refresh failed",
			zap.String("user_id", userID.String()),
			zap.String("channel_id", channelID),
			zap.Int("status", failed.StatusCode),
			zap.String("payload", failed.Payload),
		)
		return "", failed
	}

	lifetime := DefaultTokenLifetime
	if tok.ExpiresIn > 0 {
		lifetime = time.Duration(tok.ExpiresIn) * time.Second
	}
	expiry := now.Add(lifetime)

	// A persist failure is logged only; the caller still gets the token.
	if err := m.store.UpdateAccessToken(ctx, userID, channelID, tok.AccessToken, expiry); err != nil {
		logger.L().Error("Failed to persist refreshed access token",
			zap.String("user_id", userID.String()),
			zap.String("channel_id", channelID),
			zap.Error(err),
		)
	}

	metrics.TokenRefreshes.WithLabelValues("success").Inc()
	logger.L().Info("Access token refreshed",
		zap.String("user_id", userID.String()),
		zap.String("channel_id", channelID),
		zap.Time("expiry", expiry),
	)

	return tok.AccessToken, nil
}
