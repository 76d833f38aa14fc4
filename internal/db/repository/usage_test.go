//go:build integration

package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/squigly/coach-api/internal/db"
	"github.com/squigly/coach-api/internal/db/testutil"
)

func TestUsageRepository(t *testing.T) {
	td := testutil.SetupTestDatabase(t)
	defer td.Cleanup(t)

	repo := NewUsageRepository(td.Pool)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	t.Run("counts across channels since a bound", func(t *testing.T) {
		td.TruncateTables(t)

		userID := uuid.New()
		require.NoError(t, repo.Append(ctx, userID, "UCone", now.Add(-40*24*time.Hour)))
		require.NoError(t, repo.Append(ctx, userID, "UCone", now.Add(-2*time.Hour)))
		require.NoError(t, repo.Append(ctx, userID, "UCtwo", now.Add(-10*time.Minute)))
		require.NoError(t, repo.Append(ctx, uuid.New(), "UCone", now))

		count, err := repo.CountSince(ctx, userID, now.Add(-24*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, 2, count)
	})

	t.Run("lists most recent first", func(t *testing.T) {
		td.TruncateTables(t)

		userID := uuid.New()
		for _, ago := range []time.Duration{50, 5, 30} {
			require.NoError(t, repo.Append(ctx, userID, "UCone", now.Add(-ago*time.Minute)))
		}

		uses, err := repo.ListSince(ctx, userID, now.Add(-time.Hour))
		require.NoError(t, err)
		require.Len(t, uses, 3)
		assert.True(t, uses[0].Equal(now.Add(-5*time.Minute)))
		assert.True(t, uses[2].Equal(now.Add(-50*time.Minute)))
	})

	t.Run("rows cannot be updated or deleted", func(t *testing.T) {
		td.TruncateTables(t)

		userID := uuid.New()
		require.NoError(t, repo.Append(ctx, userID, "UCone", now))

		_, err := td.Pool.Exec(ctx, `DELETE FROM analysis_uses WHERE user_id = $1`, userID)
		assert.True(t, db.IsImmutableRecord(db.WrapError(err, "delete usage")))

		_, err = td.Pool.Exec(ctx, `UPDATE analysis_uses SET used_at = NOW() - INTERVAL '1 year' WHERE user_id = $1`, userID)
		assert.True(t, db.IsImmutableRecord(db.WrapError(err, "update usage")))

		count, err := repo.CountSince(ctx, userID, now.Add(-time.Minute))
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})
}
