package monitoring

import (
	"context"
	"fmt"
	"time"

	"github.com/ozanardine/phanteon-rewards/internal/config"
	"github.com/ozanardine/phanteon-rewards/internal/domain/reward"
	"github.com/ozanardine/phanteon-rewards/internal/domain/system"
	"github.com/ozanardine/phanteon-rewards/internal/metrics"
	"go.uber.org/zap"
)

const (
	stuckWindow    = 24 * time.Hour
	stuckCountCap  = 100
	degradedAbove  = 10
	criticalAbove  = 50
	snapshotWriteT = 5 * time.Second
)

// Failed rows count toward the stuck total but never make the verdict critical:
// critical gates reconciliation, and a backlog of failures is what it exists to rescue.
var (
	inFlightStatuses = []reward.Status{reward.StatusProcessing}
	failedStatuses   = []reward.Status{reward.StatusFailed}
)

// Pinger is an optional dependency whose reachability is reported in the snapshot.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthProbe computes the system health verdict and persists it as the latest snapshot.
type HealthProbe struct {
	store    system.Repository
	rewards  reward.Repository
	channel  Pinger
	events   EventLogger
	logger   *zap.Logger
	interval time.Duration
	now      func() time.Time
}

// NewHealthProbe builds a probe. channel may be nil when the delivery channel cannot be pinged.
func NewHealthProbe(store system.Repository, rewards reward.Repository, channel Pinger, events EventLogger, cfg *config.Config, logger *zap.Logger) *HealthProbe {
	return &HealthProbe{
		store:    store,
		rewards:  rewards,
		channel:  channel,
		events:   events,
		logger:   logger.Named("health"),
		interval: cfg.HealthInterval,
		now:      time.Now,
	}
}

// Check runs the probe. It never returns an error: failures become part of the verdict.
func (p *HealthProbe) Check(ctx context.Context) *system.StatusSnapshot {
	now := p.now().UTC()

	start := time.Now()
	pingErr := p.store.Ping(ctx)
	latency := time.Since(start)
	metrics.StoreLatencySeconds.Set(latency.Seconds())

	database := map[string]any{
		"status":     "healthy",
		"latency_ms": latency.Milliseconds(),
	}
	if pingErr != nil {
		database["status"] = "error"
		database["error"] = pingErr.Error()
		p.events.Log(ctx, system.EventDatabaseConnectionError, map[string]any{
			"error":      pingErr.Error(),
			"latency_ms": latency.Milliseconds(),
		})
	}

	since := now.Add(-stuckWindow)
	processing, err := p.rewards.CountRecent(ctx, inFlightStatuses, since, stuckCountCap)
	if err != nil {
		return p.failed(ctx, now, fmt.Errorf("count stuck rewards: %w", err))
	}
	failed, err := p.rewards.CountRecent(ctx, failedStatuses, since, stuckCountCap)
	if err != nil {
		return p.failed(ctx, now, fmt.Errorf("count failed rewards: %w", err))
	}
	stuck := processing + failed
	metrics.StuckRewards.Set(float64(stuck))

	status := system.HealthHealthy
	switch {
	case processing > criticalAbove:
		status = system.HealthCritical
	case pingErr != nil || stuck > degradedAbove:
		status = system.HealthDegraded
	}

	if stuck > degradedAbove {
		p.events.Log(ctx, system.EventStuckRewardsDetected, map[string]any{
			"count":      stuck,
			"processing": processing,
			"failed":     failed,
			"threshold":  degradedAbove,
		})
	}

	details := map[string]any{
		"database":           database,
		"stuck_rewards":      stuck,
		"processing_rewards": processing,
		"failed_rewards":     failed,
	}
	if p.channel != nil {
		if err := p.channel.Ping(ctx); err != nil {
			details["game_server"] = map[string]any{"status": "error", "error": err.Error()}
			if status == system.HealthHealthy {
				status = system.HealthDegraded
			}
		} else {
			details["game_server"] = map[string]any{"status": "healthy"}
		}
	}

	snapshot := &system.StatusSnapshot{
		Key:       system.SnapshotLatest,
		Status:    status,
		Details:   details,
		LastCheck: now,
	}
	p.save(ctx, snapshot)

	p.logger.Info("health_checked",
		zap.String("status", string(status)),
		zap.Int64("stuck_rewards", stuck),
		zap.Duration("db_latency", latency),
	)
	return snapshot
}

// failed is the exception path: the verdict is critical and the snapshot write is best effort.
func (p *HealthProbe) failed(ctx context.Context, now time.Time, cause error) *system.StatusSnapshot {
	p.logger.Error("health_check_failed", zap.Error(cause))
	p.events.Log(ctx, system.EventSystemError, map[string]any{
		"component": "health_probe",
		"error":     cause.Error(),
	})

	snapshot := &system.StatusSnapshot{
		Key:       system.SnapshotLatest,
		Status:    system.HealthCritical,
		Details:   map[string]any{"error": cause.Error()},
		LastCheck: now,
	}
	p.save(ctx, snapshot)
	return snapshot
}

func (p *HealthProbe) save(ctx context.Context, snapshot *system.StatusSnapshot) {
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), snapshotWriteT)
	defer cancel()
	if err := p.store.UpsertSnapshot(writeCtx, snapshot); err != nil {
		p.logger.Warn("health_snapshot_save_failed", zap.Error(err))
	}
}

// Latest returns the stored snapshot, running the probe when none exists yet.
func (p *HealthProbe) Latest(ctx context.Context) (*system.StatusSnapshot, error) {
	snapshot, err := p.store.GetSnapshot(ctx, system.SnapshotLatest)
	if err != nil {
		return nil, err
	}
	if snapshot == nil {
		return p.Check(ctx), nil
	}
	return snapshot, nil
}

// Run probes periodically until ctx is cancelled.
func (p *HealthProbe) Run(ctx context.Context) {
	p.Check(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Check(ctx)
		}
	}
}
