// Package cache adds a Redis read-through layer in front of the analysis
// repository.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/squigly/coach-api/internal/db/models"
	"github.com/squigly/coach-api/internal/db/repository"
	"github.com/squigly/coach-api/internal/metrics"
	"github.com/squigly/coach-api/pkg/logger"
)

// DefaultTTL matches the freshness window of a cached analysis.
const DefaultTTL = 24 * time.Hour

// Connect parses a redis:// URL and pings the server. An empty URL returns a
// nil client, which disables caching.
func Connect(ctx context.Context, redisURL string) (*redis.Client, error) {
	if redisURL == "" {
		return nil, nil
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

// AnalysisCache decorates an AnalysisRepository. Postgres stays the source of
// truth; Redis errors are logged and fall through to the repository.
type AnalysisCache struct {
	next repository.AnalysisRepository
	rdb  *redis.Client
	ttl  time.Duration
}

var _ repository.AnalysisRepository = (*AnalysisCache)(nil)

// NewAnalysisCache wraps next. A nil rdb makes every call a passthrough.
func NewAnalysisCache(next repository.AnalysisRepository, rdb *redis.Client, ttl time.Duration) *AnalysisCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &AnalysisCache{next: next, rdb: rdb, ttl: ttl}
}

func analysisKey(userID uuid.UUID, channelID string) string {
	return "analysis:" + userID.String() + ":" + channelID
}

func (c *AnalysisCache) Get(ctx context.Context, userID uuid.UUID, channelID string) (*models.CachedAnalysis, error) {
	if c.rdb == nil {
		return c.next.Get(ctx, userID, channelID)
	}

	key := analysisKey(userID, channelID)
	data, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var a models.CachedAnalysis
		if jsonErr := json.Unmarshal(data, &a); jsonErr == nil {
			metrics.CacheLookups.WithLabelValues("hit").Inc()
			return &a, nil
		}
		logger.L().Warn("Discarding undecodable cached analysis", zap.String("key", key))
	case errors.Is(err, redis.Nil):
	default:
		logger.L().Warn("Redis get failed", zap.String("key", key), zap.Error(err))
	}
	metrics.CacheLookups.WithLabelValues("miss").Inc()

	a, err := c.next.Get(ctx, userID, channelID)
	if err != nil {
		return nil, err
	}
	c.store(ctx, a)
	return a, nil
}

func (c *AnalysisCache) Upsert(ctx context.Context, analysis *models.CachedAnalysis) error {
	if err := c.next.Upsert(ctx, analysis); err != nil {
		return err
	}
	if c.rdb != nil {
		c.store(ctx, analysis)
	}
	return nil
}

func (c *AnalysisCache) store(ctx context.Context, a *models.CachedAnalysis) {
	b, err := json.Marshal(a)
	if err != nil {
		return
	}
	key := analysisKey(a.UserID, a.ChannelID)
	if err := c.rdb.Set(ctx, key, b, c.ttl).Err(); err != nil {
		logger.L().Warn("Redis set failed", zap.String("key", key), zap.Error(err))
	}
}
