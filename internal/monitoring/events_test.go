package monitoring

import (
	"context"
	"errors"
	"testing"

	"github.com/ozanardine/phanteon-rewards/internal/config"
	"github.com/ozanardine/phanteon-rewards/internal/domain/system"
	"github.com/ozanardine/phanteon-rewards/pkg/testhelper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestEventLog_PersistsCopy(t *testing.T) {
	store := testhelper.NewSystemStore()
	log := NewEventLog(store, nil, &config.Config{Environment: "staging"}, zap.NewNop())

	data := map[string]any{"reward_id": int64(42)}
	log.Log(context.Background(), system.EventRewardDelivered, data)
	data["reward_id"] = int64(7)

	events := store.EventsOfType(system.EventRewardDelivered)
	require.Len(t, events, 1)
	assert.Equal(t, int64(42), events[0].Data["reward_id"])
	assert.Equal(t, "staging", events[0].Environment)
	assert.NotEmpty(t, events[0].ID.String())
	assert.False(t, events[0].CreatedAt.IsZero())
}

func TestEventLog_StoreFailureStillAlerts(t *testing.T) {
	store := testhelper.NewSystemStore()
	store.AppendErr = errors.New("connection refused")

	alerts := NewAlertDispatcher(zap.NewNop())
	var got []Alert
	alerts.RegisterHandler(func(ctx context.Context, alert Alert) error {
		got = append(got, alert)
		return nil
	})
	log := NewEventLog(store, alerts, &config.Config{}, zap.NewNop())

	assert.NotPanics(t, func() {
		log.Log(context.Background(), system.EventSystemError, map[string]any{"error": "x"})
	})
	assert.Equal(t, 0, store.EventCount())
	require.Len(t, got, 1)
	assert.Equal(t, SeverityCritical, got[0].Severity)
}

func TestEventLog_CancelledContextStillPersists(t *testing.T) {
	store := testhelper.NewSystemStore()
	log := NewEventLog(store, nil, &config.Config{}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	log.Log(ctx, system.EventRewardAttemptFailed, nil)

	assert.Equal(t, 1, store.EventCount())
}
