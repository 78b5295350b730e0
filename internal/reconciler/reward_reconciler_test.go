package reconciler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ozanardine/phanteon-rewards/internal/config"
	"github.com/ozanardine/phanteon-rewards/internal/domain/reward"
	"github.com/ozanardine/phanteon-rewards/internal/domain/system"
	"github.com/ozanardine/phanteon-rewards/internal/monitoring"
	"github.com/ozanardine/phanteon-rewards/internal/rewards"
	"github.com/ozanardine/phanteon-rewards/pkg/testhelper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeDeliverer struct {
	mu       sync.Mutex
	calls    map[int64]int
	attempts []int
	outcomes map[int64]rewards.Outcome
	onCall   func(id int64)
}

func (f *fakeDeliverer) DeliverWithRetry(ctx context.Context, r *reward.PendingReward, maxAttempts int) (rewards.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = make(map[int64]int)
	}
	f.calls[r.ID]++
	f.attempts = append(f.attempts, maxAttempts)
	if f.onCall != nil {
		f.onCall(r.ID)
	}
	if outcome, ok := f.outcomes[r.ID]; ok {
		return outcome, nil
	}
	return rewards.OutcomeDelivered, nil
}

type fakeHealth struct {
	status system.Health
	checks int
}

func (f *fakeHealth) Check(ctx context.Context) *system.StatusSnapshot {
	f.checks++
	return &system.StatusSnapshot{Key: system.SnapshotLatest, Status: f.status}
}

type reconcilerFixture struct {
	clock     *testhelper.Clock
	store     *testhelper.RewardStore
	events    *testhelper.SystemStore
	deliverer *fakeDeliverer
	health    *fakeHealth
	rec       *RewardReconciler
}

func newReconcilerFixture(t *testing.T) *reconcilerFixture {
	t.Helper()
	clock := testhelper.NewClock(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	f := &reconcilerFixture{
		clock:     clock,
		store:     testhelper.NewRewardStore(clock.Now),
		events:    testhelper.NewSystemStore(),
		deliverer: &fakeDeliverer{outcomes: map[int64]rewards.Outcome{}},
		health:    &fakeHealth{status: system.HealthHealthy},
	}
	cfg := &config.Config{ReconcileInterval: time.Minute, ReconcileStaleAge: 3 * time.Hour}
	log := monitoring.NewEventLog(f.events, nil, cfg, zap.NewNop())
	f.rec = newRewardReconciler(f.store, f.deliverer, f.health, log, cfg, zap.NewNop())
	f.rec.now = clock.Now
	return f
}

func (f *reconcilerFixture) put(id int64, status reward.Status, age time.Duration) {
	f.store.Put(&reward.PendingReward{ID: id, Status: status, UpdatedAt: f.clock.Now().Add(-age)})
}

func TestReconcileStuckRewards_Scope(t *testing.T) {
	f := newReconcilerFixture(t)
	f.put(1, reward.StatusPending, 4*time.Hour)
	f.put(2, reward.StatusPending, time.Hour)
	f.put(3, reward.StatusFailed, 10*time.Hour)
	f.put(4, reward.StatusProcessed, 10*time.Hour)

	result, err := f.rec.ReconcileStuckRewards(context.Background())

	require.NoError(t, err)
	assert.Equal(t, Result{Fixed: 1}, result)
	assert.Equal(t, map[int64]int{1: 1}, f.deliverer.calls)
	assert.Equal(t, []int{2}, f.deliverer.attempts)
}

func TestReconcileStuckRewards_NothingStuck(t *testing.T) {
	f := newReconcilerFixture(t)
	f.put(1, reward.StatusPending, time.Minute)

	result, err := f.rec.ReconcileStuckRewards(context.Background())

	require.NoError(t, err)
	assert.Equal(t, Result{}, result)
	assert.Empty(t, f.deliverer.calls)
	assert.Equal(t, 0, f.events.EventCount())
}

func TestReconcileStuckRewards_ReleasesStaleProcessing(t *testing.T) {
	f := newReconcilerFixture(t)
	f.put(1, reward.StatusProcessing, 5*time.Hour)

	_, err := f.rec.ReconcileStuckRewards(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, f.deliverer.calls[1])
	assert.Equal(t, reward.StatusPending, f.store.Get(1).Status)
}

func TestReconcileStuckRewards_Tally(t *testing.T) {
	f := newReconcilerFixture(t)
	f.put(1, reward.StatusPending, 4*time.Hour)
	f.put(2, reward.StatusPending, 5*time.Hour)
	f.put(3, reward.StatusPending, 6*time.Hour)
	f.put(4, reward.StatusPending, 7*time.Hour)
	f.deliverer.outcomes[2] = rewards.OutcomeFailed
	f.deliverer.outcomes[3] = rewards.OutcomeSkipped
	f.deliverer.outcomes[4] = rewards.OutcomeAlreadyProcessed

	result, err := f.rec.ReconcileStuckRewards(context.Background())

	require.NoError(t, err)
	assert.Equal(t, Result{Fixed: 2, Failed: 1, Skipped: 1}, result)
}

func TestReconcileStuckRewards_ListFailure(t *testing.T) {
	f := newReconcilerFixture(t)
	f.store.ListErr = errors.New("timeout")

	_, err := f.rec.ReconcileStuckRewards(context.Background())
	assert.ErrorContains(t, err, "list stuck rewards")
}

func TestSweep_SkipsWhenCritical(t *testing.T) {
	f := newReconcilerFixture(t)
	f.health.status = system.HealthCritical
	f.put(1, reward.StatusPending, 4*time.Hour)

	_, err := f.rec.Sweep(context.Background())

	assert.ErrorIs(t, err, ErrSystemCritical)
	assert.Empty(t, f.deliverer.calls)
}

func TestSweep_LogsCompletion(t *testing.T) {
	f := newReconcilerFixture(t)
	f.health.status = system.HealthDegraded
	f.put(1, reward.StatusPending, 4*time.Hour)

	result, err := f.rec.Sweep(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, result.Fixed)
	assert.Equal(t, 1, f.health.checks)

	completed := f.events.EventsOfType(system.EventReconciliationCompleted)
	require.Len(t, completed, 1)
	assert.Equal(t, 1, completed[0].Data["fixed"])
	assert.Contains(t, completed[0].Data, "duration_ms")
}

func TestSweep_ListFailureLogsSystemError(t *testing.T) {
	f := newReconcilerFixture(t)
	f.store.ListErr = errors.New("timeout")

	_, err := f.rec.Sweep(context.Background())

	require.Error(t, err)
	assert.Len(t, f.events.EventsOfType(system.EventSystemError), 1)
}

func TestReconcileStuckRewards_PagesThroughBacklog(t *testing.T) {
	f := newReconcilerFixture(t)
	for i := 1; i <= 250; i++ {
		f.put(int64(i), reward.StatusPending, 4*time.Hour)
	}

	result, err := f.rec.ReconcileStuckRewards(context.Background())

	require.NoError(t, err)
	assert.Equal(t, Result{Fixed: 250}, result)
	assert.Len(t, f.deliverer.calls, 250)
	assert.Equal(t, 3, f.store.ListStaleCalls())
}

func TestReconcileStuckRewards_SkippedRowsDoNotBlockLaterPages(t *testing.T) {
	f := newReconcilerFixture(t)
	f.rec.batchSize = 2
	for i := 1; i <= 5; i++ {
		f.put(int64(i), reward.StatusPending, 4*time.Hour)
		f.deliverer.outcomes[int64(i)] = rewards.OutcomeSkipped
	}

	result, err := f.rec.ReconcileStuckRewards(context.Background())

	require.NoError(t, err)
	assert.Equal(t, Result{Skipped: 5}, result)
	assert.Equal(t, map[int64]int{1: 1, 2: 1, 3: 1, 4: 1, 5: 1}, f.deliverer.calls)
}

func TestReconcileStuckRewards_StopsWhenContextEnds(t *testing.T) {
	f := newReconcilerFixture(t)
	for i := 1; i <= 4; i++ {
		f.put(int64(i), reward.StatusPending, 4*time.Hour)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.deliverer.onCall = func(id int64) {
		if id == 2 {
			cancel()
		}
	}

	result, err := f.rec.ReconcileStuckRewards(ctx)

	require.NoError(t, err)
	assert.Equal(t, Result{Fixed: 2, Partial: true}, result)
	assert.Equal(t, map[int64]int{1: 1, 2: 1}, f.deliverer.calls)
}

func TestSweep_BusyUntilContextEnds(t *testing.T) {
	f := newReconcilerFixture(t)
	f.put(1, reward.StatusPending, 4*time.Hour)
	f.rec.running <- struct{}{}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := f.rec.Sweep(ctx)

	assert.ErrorIs(t, err, ErrSweepInProgress)
	assert.Empty(t, f.deliverer.calls)

	<-f.rec.running
	result, err := f.rec.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Fixed)
}

func TestSweep_PartialPassStillLogsCompletion(t *testing.T) {
	f := newReconcilerFixture(t)
	f.put(1, reward.StatusPending, 4*time.Hour)
	f.put(2, reward.StatusPending, 4*time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.deliverer.onCall = func(int64) { cancel() }

	result, err := f.rec.Sweep(ctx)

	require.NoError(t, err)
	assert.True(t, result.Partial)
	completed := f.events.EventsOfType(system.EventReconciliationCompleted)
	require.Len(t, completed, 1)
	assert.Equal(t, true, completed[0].Data["partial"])
}
