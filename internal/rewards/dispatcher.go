package rewards

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ozanardine/phanteon-rewards/internal/config"
	"github.com/ozanardine/phanteon-rewards/internal/domain/reward"
	"github.com/ozanardine/phanteon-rewards/internal/metrics"
	"github.com/ozanardine/phanteon-rewards/pkg/telemetry/correlation"
	"go.uber.org/zap"
)

const orphanBatchSize = 50

// Deliverer runs a full delivery for one reward.
type Deliverer interface {
	Deliver(ctx context.Context, r *reward.PendingReward) (Outcome, error)
}

type task struct {
	reward        *reward.PendingReward
	correlationID string
}

// Dispatcher hands accepted rewards to a fixed pool of delivery workers.
// The store stays authoritative: anything dropped from the in-memory queue is
// still pending and is picked up again by the orphan poll.
type Dispatcher struct {
	deliverer Deliverer
	repo      reward.Repository
	logger    *zap.Logger

	queue        chan task
	workers      int
	orphanAfter  time.Duration
	pollInterval time.Duration
	now          func() time.Time

	mu       sync.Mutex
	inflight map[int64]struct{}
	wg       sync.WaitGroup
}

func NewDispatcher(svc *Service, repo reward.Repository, cfg *config.Config, logger *zap.Logger) *Dispatcher {
	return newDispatcher(svc, repo, cfg, logger)
}

func newDispatcher(deliverer Deliverer, repo reward.Repository, cfg *config.Config, logger *zap.Logger) *Dispatcher {
	size := cfg.RewardQueueSize
	if size < 1 {
		size = 1
	}
	workers := cfg.RewardWorkers
	if workers < 1 {
		workers = 1
	}
	return &Dispatcher{
		deliverer:    deliverer,
		repo:         repo,
		logger:       logger.Named("dispatcher"),
		queue:        make(chan task, size),
		workers:      workers,
		orphanAfter:  cfg.RewardOrphanAfter,
		pollInterval: cfg.RewardPollInterval,
		now:          time.Now,
		inflight:     make(map[int64]struct{}),
	}
}

// Enqueue schedules delivery without blocking. A reward already queued or running is ignored.
// The correlation id of ctx follows the reward to the delivery channel.
func (d *Dispatcher) Enqueue(ctx context.Context, r *reward.PendingReward) error {
	d.mu.Lock()
	if _, ok := d.inflight[r.ID]; ok {
		d.mu.Unlock()
		return nil
	}
	d.inflight[r.ID] = struct{}{}
	d.mu.Unlock()

	select {
	case d.queue <- task{reward: r, correlationID: correlation.ExtractCorrelationID(ctx)}:
		metrics.RewardQueueDepth.Set(float64(len(d.queue)))
		return nil
	default:
		d.release(r.ID)
		metrics.RewardQueueRejectedTotal.Inc()
		return ErrQueueFull
	}
}

// Run starts the workers and the orphan poll. It returns once ctx is cancelled and
// every worker has finished its current reward.
func (d *Dispatcher) Run(ctx context.Context) {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.work(ctx, i)
	}
	defer d.wg.Wait()

	if d.pollInterval <= 0 {
		<-ctx.Done()
		return
	}

	if err := d.enqueueOrphans(ctx); err != nil {
		d.logger.Error("orphan_initial_poll_failed", zap.Error(err))
	}

	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := d.enqueueOrphans(ctx); err != nil {
				d.logger.Error("orphan_poll_failed", zap.Error(err))
			}
		}
	}
}

func (d *Dispatcher) work(ctx context.Context, id int) {
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-d.queue:
			metrics.RewardQueueDepth.Set(float64(len(d.queue)))
			if ctx.Err() != nil {
				// Not started; it remains pending in the store.
				d.release(t.reward.ID)
				return
			}
			d.process(ctx, id, t)
		}
	}
}

func (d *Dispatcher) process(ctx context.Context, worker int, t task) {
	r := t.reward
	defer d.release(r.ID)

	ctx, cid := correlation.EnsureCorrelationID(correlation.ContextWithCorrelationID(ctx, t.correlationID))
	outcome, err := d.deliverer.Deliver(ctx, r)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			d.logger.Info("reward_delivery_interrupted", zap.Int64("reward_id", r.ID))
			return
		}
		d.logger.Error("reward_delivery_aborted",
			zap.Error(err),
			zap.Int64("reward_id", r.ID),
			zap.Int("worker", worker),
			zap.String("request_id", cid),
		)
		return
	}
	d.logger.Debug("reward_delivery_finished",
		zap.Int64("reward_id", r.ID),
		zap.String("outcome", string(outcome)),
		zap.Int("worker", worker),
	)
}

// enqueueOrphans picks up pending rewards nobody is working on, e.g. after a restart.
func (d *Dispatcher) enqueueOrphans(ctx context.Context) error {
	cutoff := d.now().UTC().Add(-d.orphanAfter)
	items, err := d.repo.ListStale(ctx, []reward.Status{reward.StatusPending}, cutoff, 0, orphanBatchSize)
	if err != nil {
		return err
	}

	queued := 0
	for _, r := range items {
		if err := d.Enqueue(ctx, r); err != nil {
			d.logger.Warn("orphan_enqueue_stopped", zap.Error(err), zap.Int("queued", queued))
			break
		}
		queued++
	}
	if queued > 0 {
		d.logger.Info("orphan_rewards_enqueued", zap.Int("count", queued))
	}
	return nil
}

func (d *Dispatcher) release(id int64) {
	d.mu.Lock()
	delete(d.inflight, id)
	d.mu.Unlock()
}

// inFlight reports whether a reward is queued or being delivered.
func (d *Dispatcher) inFlight(id int64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.inflight[id]
	return ok
}
