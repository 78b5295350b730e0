package rewards

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ozanardine/phanteon-rewards/internal/config"
	"github.com/ozanardine/phanteon-rewards/internal/domain/delivery"
	"github.com/ozanardine/phanteon-rewards/internal/domain/reward"
	"github.com/ozanardine/phanteon-rewards/internal/domain/system"
	"github.com/ozanardine/phanteon-rewards/internal/metrics"
	"github.com/ozanardine/phanteon-rewards/internal/monitoring"
	"go.uber.org/zap"
)

// Outcome is how a delivery run ended.
type Outcome string

const (
	OutcomeDelivered        Outcome = "delivered"
	OutcomeAlreadyProcessed Outcome = "already_processed"
	OutcomeSkipped          Outcome = "skipped"
	OutcomeFailed           Outcome = "failed"
)

const (
	defaultBackoffBase = time.Second
	maxLastErrorLen    = 1000
)

// Service drives pending rewards through the delivery channel.
type Service struct {
	repo    reward.Repository
	channel delivery.Channel
	events  monitoring.EventLogger
	logger  *zap.Logger

	maxAttempts int
	timeout     time.Duration
	backoffBase time.Duration

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func NewService(repo reward.Repository, channel delivery.Channel, events monitoring.EventLogger, cfg *config.Config, logger *zap.Logger) *Service {
	maxAttempts := cfg.DeliveryMaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	timeout := cfg.DeliveryTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Service{
		repo:        repo,
		channel:     channel,
		events:      events,
		logger:      logger.Named("rewards"),
		maxAttempts: maxAttempts,
		timeout:     timeout,
		backoffBase: defaultBackoffBase,
		now:         time.Now,
		sleep:       sleepContext,
	}
}

// Deliver runs DeliverWithRetry with the configured attempt budget.
func (s *Service) Deliver(ctx context.Context, r *reward.PendingReward) (Outcome, error) {
	return s.DeliverWithRetry(ctx, r, s.maxAttempts)
}

// DeliverWithRetry attempts delivery up to maxAttempts times with exponential backoff.
// Exhausting the attempts marks the reward failed and returns OutcomeFailed with a nil error.
// A non-nil error means the run was interrupted (store failure or cancellation) and the
// reward was left for reconciliation.
func (s *Service) DeliverWithRetry(ctx context.Context, r *reward.PendingReward, maxAttempts int) (Outcome, error) {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		outcome, err := s.ProcessReward(ctx, r)
		if err == nil {
			if outcome == OutcomeDelivered {
				s.events.Log(ctx, system.EventRewardDelivered, map[string]any{
					"reward_id": r.ID,
					"user_id":   r.UserID,
					"steam_id":  r.SteamID,
					"day":       r.Day,
					"attempts":  attempt,
				})
			}
			metrics.RewardDeliveriesTotal.WithLabelValues(string(outcome)).Inc()
			return outcome, nil
		}

		if errors.Is(err, ErrRewardBusy) {
			s.logger.Info("reward_busy_skipped", zap.Int64("reward_id", r.ID))
			metrics.RewardDeliveriesTotal.WithLabelValues(string(OutcomeSkipped)).Inc()
			return OutcomeSkipped, nil
		}

		var stateErr *StateError
		if errors.As(err, &stateErr) {
			s.stateFailure(ctx, stateErr)
			metrics.RewardDeliveriesTotal.WithLabelValues(string(OutcomeFailed)).Inc()
			return OutcomeFailed, err
		}

		lastErr = err
		metrics.RewardDeliveryAttemptsFailedTotal.Inc()
		s.events.Log(ctx, system.EventRewardAttemptFailed, map[string]any{
			"reward_id":    r.ID,
			"attempt":      attempt,
			"max_attempts": maxAttempts,
			"error":        storableError(err.Error()),
		})
		s.logger.Warn("reward_delivery_attempt_failed",
			zap.Error(err),
			zap.Int64("reward_id", r.ID),
			zap.Int("attempt", attempt),
		)

		if attempt < maxAttempts {
			if err := s.sleep(ctx, s.backoff(attempt)); err != nil {
				// The failed attempt already returned the reward to pending.
				metrics.RewardDeliveriesTotal.WithLabelValues(string(OutcomeSkipped)).Inc()
				return OutcomeSkipped, err
			}
		}
	}

	if err := s.MarkForReconciliation(ctx, r.ID, lastErr); err != nil {
		var stateErr *StateError
		if errors.As(err, &stateErr) {
			s.stateFailure(ctx, stateErr)
		}
		metrics.RewardDeliveriesTotal.WithLabelValues(string(OutcomeFailed)).Inc()
		return OutcomeFailed, err
	}
	metrics.RewardDeliveriesTotal.WithLabelValues(string(OutcomeFailed)).Inc()
	return OutcomeFailed, nil
}

// ProcessReward makes a single delivery attempt.
func (s *Service) ProcessReward(ctx context.Context, r *reward.PendingReward) (Outcome, error) {
	current, err := s.repo.FindByID(ctx, r.ID)
	if err != nil {
		return "", &StateError{Op: "load", RewardID: r.ID, Err: err}
	}
	if current == nil {
		return "", &StateError{Op: "load", RewardID: r.ID, Err: reward.ErrRewardNotFound}
	}
	if current.Status == reward.StatusProcessed {
		*r = *current
		return OutcomeAlreadyProcessed, nil
	}

	claimed, err := s.repo.UpdateStatus(ctx, r.ID, []reward.Status{reward.StatusPending}, reward.StatusProcessing, "")
	if err != nil {
		return "", &StateError{Op: "claim", RewardID: r.ID, Err: err}
	}
	if !claimed {
		return "", ErrRewardBusy
	}

	// Once claimed, the attempt runs to completion so the reward never stays processing.
	workCtx := context.WithoutCancel(ctx)
	deliverCtx, cancel := context.WithTimeout(workCtx, s.timeout)
	deliverErr := s.channel.Deliver(deliverCtx, delivery.Request{
		RewardID: current.ID,
		SteamID:  current.SteamID,
		Day:      current.Day,
		ServerID: current.ServerID,
		Origin:   current.Origin,
	})
	cancel()

	if deliverErr != nil {
		if _, err := s.repo.UpdateStatus(workCtx, r.ID, []reward.Status{reward.StatusProcessing}, reward.StatusPending, storableError(deliverErr.Error())); err != nil {
			return "", &StateError{Op: "release", RewardID: r.ID, Err: err}
		}
		return "", &DeliveryError{RewardID: r.ID, Err: deliverErr}
	}

	processedAt := s.now().UTC()
	done, err := s.repo.MarkProcessed(workCtx, r.ID, processedAt)
	if err != nil {
		return "", &StateError{Op: "complete", RewardID: r.ID, Err: err}
	}
	if !done {
		return "", &StateError{Op: "complete", RewardID: r.ID, Err: errors.New("reward left processing during delivery")}
	}

	*r = *current
	r.Status = reward.StatusProcessed
	r.ProcessedAt = &processedAt
	r.LastError = ""
	return OutcomeDelivered, nil
}

// MarkForReconciliation parks a reward in failed state after its attempts ran out.
func (s *Service) MarkForReconciliation(ctx context.Context, id int64, cause error) error {
	msg := "delivery attempts exhausted"
	if cause != nil {
		msg = storableError(cause.Error())
	}

	changed, err := s.repo.UpdateStatus(context.WithoutCancel(ctx), id,
		[]reward.Status{reward.StatusPending, reward.StatusProcessing}, reward.StatusFailed, msg)
	if err != nil {
		return &StateError{Op: "mark_failed", RewardID: id, Err: err}
	}
	if !changed {
		s.logger.Warn("reward_mark_failed_skipped", zap.Int64("reward_id", id))
		return nil
	}

	s.events.Log(ctx, system.EventRewardDeliveryFailed, map[string]any{
		"reward_id": id,
		"error":     msg,
	})
	s.logger.Error("reward_delivery_failed", zap.Int64("reward_id", id), zap.String("error", msg))
	return nil
}

// Requeue moves a failed reward back to pending so it can be delivered again.
func (s *Service) Requeue(ctx context.Context, id int64) (*reward.PendingReward, error) {
	current, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load reward: %w", err)
	}
	if current == nil {
		return nil, reward.ErrRewardNotFound
	}

	changed, err := s.repo.UpdateStatus(ctx, id, []reward.Status{reward.StatusFailed}, reward.StatusPending, "")
	if err != nil {
		return nil, fmt.Errorf("requeue reward: %w", err)
	}
	if !changed {
		return nil, ErrNotRetryable
	}

	s.events.Log(ctx, system.EventRewardRetryRequested, map[string]any{
		"reward_id":      id,
		"previous_error": current.LastError,
	})

	current.Status = reward.StatusPending
	current.LastError = ""
	return current, nil
}

func (s *Service) stateFailure(ctx context.Context, err *StateError) {
	s.logger.Error("reward_state_error", zap.Error(err), zap.Int64("reward_id", err.RewardID))
	s.events.Log(ctx, system.EventSystemError, map[string]any{
		"component": "reward_delivery",
		"operation": err.Op,
		"reward_id": err.RewardID,
		"error":     storableError(err.Err.Error()),
	})
}

// backoff returns base * 2^attempt: 2s, 4s, 8s with the default base.
func (s *Service) backoff(attempt int) time.Duration {
	return s.backoffBase * time.Duration(1<<attempt)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// storableError makes an error message safe for TEXT and jsonb columns: valid UTF-8,
// no NUL bytes, at most maxLastErrorLen bytes cut on a rune boundary.
func storableError(s string) string {
	s = strings.ToValidUTF8(s, "\uFFFD")
	s = strings.ReplaceAll(s, "\x00", "")
	if len(s) <= maxLastErrorLen {
		return s
	}
	cut := maxLastErrorLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
