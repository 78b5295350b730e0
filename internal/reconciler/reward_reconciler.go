package reconciler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ozanardine/phanteon-rewards/internal/config"
	"github.com/ozanardine/phanteon-rewards/internal/domain/reward"
	"github.com/ozanardine/phanteon-rewards/internal/domain/system"
	"github.com/ozanardine/phanteon-rewards/internal/metrics"
	"github.com/ozanardine/phanteon-rewards/internal/monitoring"
	"github.com/ozanardine/phanteon-rewards/internal/rewards"
	"go.uber.org/zap"
)

var (
	// ErrSystemCritical is returned by Sweep when the health probe reports critical.
	ErrSystemCritical = errors.New("system health is critical, reconciliation skipped")
	// ErrSweepInProgress is returned by Sweep when ctx ends while another pass holds the slot.
	ErrSweepInProgress = errors.New("reconciliation already running")
)

const (
	reconcileAttempts = 2
	defaultBatchSize  = 100
)

var stuckStatuses = []reward.Status{reward.StatusProcessing, reward.StatusPending}

// Result tallies one reconciliation pass. Partial is set when the context ended
// before every stuck reward was visited.
type Result struct {
	Fixed   int  `json:"fixed"`
	Failed  int  `json:"failed"`
	Skipped int  `json:"skipped"`
	Partial bool `json:"partial"`
}

type Deliverer interface {
	DeliverWithRetry(ctx context.Context, r *reward.PendingReward, maxAttempts int) (rewards.Outcome, error)
}

type HealthChecker interface {
	Check(ctx context.Context) *system.StatusSnapshot
}

type RewardReconciler struct {
	repo      reward.Repository
	deliverer Deliverer
	health    HealthChecker
	events    monitoring.EventLogger
	logger    *zap.Logger
	interval  time.Duration
	staleAge  time.Duration
	batchSize int
	now       func() time.Time

	// Single slot serializing the periodic loop with manual triggers.
	running chan struct{}
}

func NewRewardReconciler(repo reward.Repository, svc *rewards.Service, probe *monitoring.HealthProbe, events monitoring.EventLogger, cfg *config.Config, logger *zap.Logger) *RewardReconciler {
	return newRewardReconciler(repo, svc, probe, events, cfg, logger)
}

func newRewardReconciler(repo reward.Repository, deliverer Deliverer, health HealthChecker, events monitoring.EventLogger, cfg *config.Config, logger *zap.Logger) *RewardReconciler {
	return &RewardReconciler{
		repo:      repo,
		deliverer: deliverer,
		health:    health,
		events:    events,
		logger:    logger.Named("reward.reconciler"),
		interval:  cfg.ReconcileInterval,
		staleAge:  cfg.ReconcileStaleAge,
		batchSize: defaultBatchSize,
		now:       time.Now,
		running:   make(chan struct{}, 1),
	}
}

func (r *RewardReconciler) Run(ctx context.Context) {
	r.sweepLogged(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweepLogged(ctx)
		}
	}
}

func (r *RewardReconciler) sweepLogged(ctx context.Context) {
	if _, err := r.Sweep(ctx); err != nil {
		if errors.Is(err, ErrSystemCritical) {
			r.logger.Warn("reconcile_skipped_critical")
			return
		}
		if errors.Is(err, ErrSweepInProgress) {
			return
		}
		if ctx.Err() != nil {
			return
		}
		r.logger.Error("reconcile_failed", zap.Error(err))
	}
}

// Sweep runs the health probe and, unless the system is critical, reconciles stuck rewards.
func (r *RewardReconciler) Sweep(ctx context.Context) (Result, error) {
	if !r.acquire(ctx) {
		return Result{}, ErrSweepInProgress
	}
	defer func() { <-r.running }()

	if snap := r.health.Check(ctx); snap != nil && snap.Status == system.HealthCritical {
		return Result{}, ErrSystemCritical
	}

	start := time.Now()
	result, err := r.ReconcileStuckRewards(ctx)
	if err != nil {
		r.events.Log(ctx, system.EventSystemError, map[string]any{
			"component": "reconciliation",
			"error":     err.Error(),
		})
		return result, err
	}

	r.events.Log(ctx, system.EventReconciliationCompleted, map[string]any{
		"fixed":       result.Fixed,
		"failed":      result.Failed,
		"skipped":     result.Skipped,
		"partial":     result.Partial,
		"duration_ms": time.Since(start).Milliseconds(),
	})
	return result, nil
}

func (r *RewardReconciler) acquire(ctx context.Context) bool {
	select {
	case r.running <- struct{}{}:
		return true
	default:
	}
	select {
	case r.running <- struct{}{}:
		return true
	case <-ctx.Done():
		return false
	}
}

// ReconcileStuckRewards retries rewards that have sat in pending or processing past the
// stale age. Stale processing rows are released back to pending first. The stale set is
// read in id-ordered pages until it is drained or ctx ends.
func (r *RewardReconciler) ReconcileStuckRewards(ctx context.Context) (Result, error) {
	var result Result

	cutoff := r.now().UTC().Add(-r.staleAge)
	var afterID int64
	pages := 0

	for {
		if ctx.Err() != nil {
			result.Partial = true
			break
		}

		items, err := r.repo.ListStale(ctx, stuckStatuses, cutoff, afterID, r.batchSize)
		if err != nil {
			if pages > 0 && ctx.Err() != nil {
				result.Partial = true
				break
			}
			return result, fmt.Errorf("list stuck rewards: %w", err)
		}
		if len(items) == 0 {
			break
		}
		if pages == 0 {
			r.logger.Info("reconcile_started", zap.Int("first_page", len(items)))
		}
		pages++
		afterID = items[len(items)-1].ID

		if r.reconcilePage(ctx, items, &result) {
			result.Partial = true
			break
		}
		if len(items) < r.batchSize {
			break
		}
	}

	if pages == 0 {
		return result, nil
	}
	r.logger.Info("reconcile_finished",
		zap.Int("pages", pages),
		zap.Int("fixed", result.Fixed),
		zap.Int("failed", result.Failed),
		zap.Int("skipped", result.Skipped),
		zap.Bool("partial", result.Partial),
	)
	return result, nil
}

// reconcilePage re-drives one page and reports whether ctx ended before it finished.
func (r *RewardReconciler) reconcilePage(ctx context.Context, items []*reward.PendingReward, result *Result) bool {
	for _, item := range items {
		if ctx.Err() != nil {
			return true
		}
		switch r.reconcileReward(ctx, item) {
		case rewards.OutcomeDelivered, rewards.OutcomeAlreadyProcessed:
			result.Fixed++
			metrics.ReconciledRewardsTotal.WithLabelValues("fixed").Inc()
		case rewards.OutcomeFailed:
			result.Failed++
			metrics.ReconciledRewardsTotal.WithLabelValues("failed").Inc()
		default:
			result.Skipped++
			metrics.ReconciledRewardsTotal.WithLabelValues("skipped").Inc()
		}
	}
	return false
}

func (r *RewardReconciler) reconcileReward(ctx context.Context, item *reward.PendingReward) rewards.Outcome {
	if item.Status == reward.StatusProcessing {
		released, err := r.repo.ReleaseStale(ctx, item.ID, r.now().UTC().Add(-r.staleAge))
		if err != nil {
			r.logger.Warn("reconcile_release_failed", zap.Error(err), zap.Int64("reward_id", item.ID))
			return rewards.OutcomeSkipped
		}
		if !released {
			return rewards.OutcomeSkipped
		}
		item.Status = reward.StatusPending
	}

	outcome, err := r.deliverer.DeliverWithRetry(ctx, item, reconcileAttempts)
	if err != nil {
		r.logger.Warn("reconcile_delivery_error",
			zap.Error(err),
			zap.Int64("reward_id", item.ID),
			zap.String("outcome", string(outcome)),
		)
	}
	return outcome
}
