package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/ozanardine/phanteon-rewards/internal/domain/reward"
	"github.com/ozanardine/phanteon-rewards/internal/domain/system"
	"github.com/ozanardine/phanteon-rewards/pkg/testhelper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRewardRepository(t *testing.T) {
	gdb := testhelper.MigratedDB(t)
	repo := NewRewardRepository(gdb)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)
	repo.now = func() time.Time { return now }

	r, err := reward.NewPendingReward(1, 10, "76561198000000001", 3, "main", now.Add(-4*time.Hour))
	require.NoError(t, err)
	claim := &reward.ClaimRecord{ID: 2, UserID: 10, Day: 3, ClaimedAt: now.Add(-4 * time.Hour)}

	t.Run("create and find", func(t *testing.T) {
		require.NoError(t, repo.CreateClaim(ctx, r, claim))

		found, err := repo.FindByID(ctx, 1)
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.Equal(t, reward.StatusPending, found.Status)
		assert.Equal(t, 3, found.Day)

		missing, err := repo.FindByID(ctx, 999)
		require.NoError(t, err)
		assert.Nil(t, missing)

		last, err := repo.LatestClaim(ctx, 10)
		require.NoError(t, err)
		require.NotNil(t, last)
		assert.Equal(t, int64(2), last.ID)
	})

	t.Run("stale listing", func(t *testing.T) {
		stale, err := repo.ListStale(ctx, []reward.Status{reward.StatusPending, reward.StatusProcessing}, now.Add(-3*time.Hour), 0, 10)
		require.NoError(t, err)
		require.Len(t, stale, 1)
		assert.Equal(t, int64(1), stale[0].ID)
	})

	t.Run("compare and swap", func(t *testing.T) {
		ok, err := repo.UpdateStatus(ctx, 1, []reward.Status{reward.StatusPending}, reward.StatusProcessing, "")
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = repo.UpdateStatus(ctx, 1, []reward.Status{reward.StatusPending}, reward.StatusProcessing, "")
		require.NoError(t, err)
		assert.False(t, ok)

		ok, err = repo.MarkProcessed(ctx, 1, now)
		require.NoError(t, err)
		assert.True(t, ok)

		found, err := repo.FindByID(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, reward.StatusProcessed, found.Status)
		require.NotNil(t, found.ProcessedAt)

		pending, err := repo.ListPendingBySteamID(ctx, "76561198000000001")
		require.NoError(t, err)
		assert.Empty(t, pending)
	})

	t.Run("count recent", func(t *testing.T) {
		for i := int64(0); i < 3; i++ {
			item, _ := reward.NewPendingReward(100+i, 11, "s", 1, "main", now)
			require.NoError(t, repo.CreateClaim(ctx, item, &reward.ClaimRecord{ID: 200 + i, UserID: 11, Day: 1, ClaimedAt: now}))
			_, err := repo.UpdateStatus(ctx, item.ID, []reward.Status{reward.StatusPending}, reward.StatusFailed, "boom")
			require.NoError(t, err)
		}

		count, err := repo.CountRecent(ctx, []reward.Status{reward.StatusFailed}, now.Add(-time.Hour), 2)
		require.NoError(t, err)
		assert.Equal(t, int64(2), count)
	})
}

func TestSystemRepository(t *testing.T) {
	gdb := testhelper.MigratedDB(t)
	repo := NewSystemRepository(gdb)
	ctx := context.Background()

	require.NoError(t, repo.Ping(ctx))

	for _, typ := range []string{system.EventRewardDelivered, system.EventSystemError, system.EventRewardDelivered} {
		require.NoError(t, repo.AppendEvent(ctx, &system.Event{
			ID:          uuid.New(),
			Type:        typ,
			Data:        map[string]any{"reward_id": 1},
			Environment: "test",
			CreatedAt:   time.Now().UTC(),
		}))
	}

	delivered, err := repo.ListEvents(ctx, system.EventRewardDelivered, 10)
	require.NoError(t, err)
	assert.Len(t, delivered, 2)
	assert.Equal(t, float64(1), delivered[0].Data["reward_id"])

	snap, err := repo.GetSnapshot(ctx, system.SnapshotLatest)
	require.NoError(t, err)
	assert.Nil(t, snap)

	for _, status := range []system.Health{system.HealthHealthy, system.HealthDegraded} {
		require.NoError(t, repo.UpsertSnapshot(ctx, &system.StatusSnapshot{
			Key:       system.SnapshotLatest,
			Status:    status,
			Details:   map[string]any{"stuck_rewards": 12},
			LastCheck: time.Now().UTC(),
		}))
	}

	snap, err = repo.GetSnapshot(ctx, system.SnapshotLatest)
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, system.HealthDegraded, snap.Status)
}
