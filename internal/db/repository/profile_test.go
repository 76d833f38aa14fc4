//go:build integration

package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/squigly/coach-api/internal/db"
	"github.com/squigly/coach-api/internal/db/models"
	"github.com/squigly/coach-api/internal/db/testutil"
)

func TestProfileRepository(t *testing.T) {
	td := testutil.SetupTestDatabase(t)
	defer td.Cleanup(t)

	repo := NewProfileRepository(td.Pool)
	ctx := context.Background()

	t.Run("upsert then get", func(t *testing.T) {
		td.TruncateTables(t)

		userID := uuid.New()
		p := &models.Profile{UserID: userID, ChannelID: "UCabc", ChannelName: "Cooking", Goal: "10k subs"}
		require.NoError(t, repo.Upsert(ctx, p))

		p.Goal = "100k subs"
		require.NoError(t, repo.Upsert(ctx, p))

		stored, err := repo.Get(ctx, userID, "UCabc")
		require.NoError(t, err)
		assert.Equal(t, "Cooking", stored.ChannelName)
		assert.Equal(t, "100k subs", stored.Goal)
	})

	t.Run("absent profile is not found", func(t *testing.T) {
		td.TruncateTables(t)

		_, err := repo.Get(ctx, uuid.New(), "UCabc")
		assert.True(t, db.IsNotFound(err))
	})
}

func TestWaitlistRepository(t *testing.T) {
	td := testutil.SetupTestDatabase(t)
	defer td.Cleanup(t)

	repo := NewWaitlistRepository(td.Pool)
	ctx := context.Background()

	td.TruncateTables(t)

	entry, err := repo.Add(ctx, "creator@example.com")
	require.NoError(t, err)
	assert.NotZero(t, entry.ID)

	_, err = repo.Add(ctx, "creator@example.com")
	assert.True(t, db.IsDuplicateKey(err))
}

func TestBillingEventRepository(t *testing.T) {
	td := testutil.SetupTestDatabase(t)
	defer td.Cleanup(t)

	repo := NewBillingEventRepository(td.Pool)
	ctx := context.Background()

	t.Run("records once per provider id", func(t *testing.T) {
		td.TruncateTables(t)

		event := &models.BillingEvent{
			ProviderEventID: "evt_1",
			EventType:       "checkout.session.completed",
			Payload:         []byte(`{"id":"evt_1"}`),
		}
		inserted, err := repo.Record(ctx, event)
		require.NoError(t, err)
		assert.True(t, inserted)

		dup := &models.BillingEvent{ProviderEventID: "evt_1", EventType: "checkout.session.completed", Payload: []byte(`{}`)}
		inserted, err = repo.Record(ctx, dup)
		require.NoError(t, err)
		assert.False(t, inserted)
	})

	t.Run("mark processed stores error text", func(t *testing.T) {
		td.TruncateTables(t)

		_, err := repo.Record(ctx, &models.BillingEvent{ProviderEventID: "evt_2", EventType: "x", Payload: []byte(`{}`)})
		require.NoError(t, err)

		require.NoError(t, repo.MarkProcessed(ctx, "evt_2", errors.New("no subscription row")))

		var msg *string
		require.NoError(t, td.Pool.QueryRow(ctx,
			`SELECT processing_error FROM billing_webhook_events WHERE provider_event_id = 'evt_2'`).Scan(&msg))
		require.NotNil(t, msg)
		assert.Equal(t, "no subscription row", *msg)

		assert.True(t, db.IsNotFound(repo.MarkProcessed(ctx, "evt_missing", nil)))

		inserted, err := repo.Record(ctx, &models.BillingEvent{ProviderEventID: "evt_2", EventType: "x", Payload: []byte(`{}`)})
		require.NoError(t, err)
		assert.True(t, inserted, "failed delivery is claimed again")

		require.NoError(t, repo.MarkProcessed(ctx, "evt_2", nil))
		inserted, err = repo.Record(ctx, &models.BillingEvent{ProviderEventID: "evt_2", EventType: "x", Payload: []byte(`{}`)})
		require.NoError(t, err)
		assert.False(t, inserted)
	})

	t.Run("unfinished claim is reclaimed after the lease", func(t *testing.T) {
		td.TruncateTables(t)

		event := func() *models.BillingEvent {
			return &models.BillingEvent{ProviderEventID: "evt_3", EventType: "customer.subscription.updated", Payload: []byte(`{}`)}
		}
		inserted, err := repo.Record(ctx, event())
		require.NoError(t, err)
		require.True(t, inserted)

		inserted, err = repo.Record(ctx, event())
		require.NoError(t, err)
		assert.False(t, inserted, "in-flight delivery is not claimed twice")

		_, err = td.Pool.Exec(ctx,
			`UPDATE billing_webhook_events SET claimed_at = NOW() - make_interval(secs => $1) WHERE provider_event_id = 'evt_3'`,
			(ClaimLease + time.Minute).Seconds())
		require.NoError(t, err)

		reclaimed := event()
		inserted, err = repo.Record(ctx, reclaimed)
		require.NoError(t, err)
		assert.True(t, inserted, "abandoned delivery is claimed again")
		assert.WithinDuration(t, time.Now(), reclaimed.ClaimedAt, time.Minute)

		require.NoError(t, repo.MarkProcessed(ctx, "evt_3", nil))
		_, err = td.Pool.Exec(ctx,
			`UPDATE billing_webhook_events SET claimed_at = NOW() - INTERVAL '1 hour' WHERE provider_event_id = 'evt_3'`)
		require.NoError(t, err)
		inserted, err = repo.Record(ctx, event())
		require.NoError(t, err)
		assert.False(t, inserted, "finished delivery stays deduplicated")
	})
}
