package claim

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/ozanardine/phanteon-rewards/internal/config"
	"github.com/ozanardine/phanteon-rewards/internal/domain/reward"
	"github.com/ozanardine/phanteon-rewards/internal/user"
	"go.uber.org/zap"
)

var (
	ErrUserNotFound   = errors.New("user not found")
	ErrSteamIDMissing = errors.New("steam id not linked")
)

// CooldownError rejects a claim made before the cooldown elapsed.
type CooldownError struct {
	HoursToWait   int
	NextClaimTime time.Time
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("claim cooldown active, %d hour(s) remaining", e.HoursToWait)
}

// UserDirectory resolves community members and their VIP status.
type UserDirectory interface {
	FindByDiscordID(ctx context.Context, discordID string) (*user.User, error)
	VIPTier(ctx context.Context, userID int64, now time.Time) (string, error)
}

// Enqueuer hands an accepted reward to the delivery workers.
type Enqueuer interface {
	Enqueue(ctx context.Context, r *reward.PendingReward) error
}

type IDGenerator interface {
	GenerateID() int64
}

type Eligibility struct {
	CanClaim      bool       `json:"canClaim"`
	HoursToWait   int        `json:"hoursToWait"`
	NextClaimTime *time.Time `json:"nextClaimTime,omitempty"`
	LastClaim     *time.Time `json:"lastClaim,omitempty"`
}

type Result struct {
	Reward        *reward.PendingReward
	ClaimTime     time.Time
	NextClaimTime time.Time
}

type UseCase struct {
	users    UserDirectory
	repo     reward.Repository
	queue    Enqueuer
	ids      IDGenerator
	logger   *zap.Logger
	cooldown time.Duration
	serverID string
	now      func() time.Time
}

func NewUseCase(users UserDirectory, repo reward.Repository, queue Enqueuer, ids IDGenerator, cfg *config.Config, logger *zap.Logger) *UseCase {
	return &UseCase{
		users:    users,
		repo:     repo,
		queue:    queue,
		ids:      ids,
		logger:   logger.Named("claim"),
		cooldown: cfg.ClaimCooldown,
		serverID: cfg.GameServerID,
		now:      time.Now,
	}
}

// Claim records a daily reward claim and schedules its delivery.
// The reward is durable once Claim returns; a full delivery queue only delays it.
func (uc *UseCase) Claim(ctx context.Context, discordID string, day int) (*Result, error) {
	u, err := uc.resolveUser(ctx, discordID)
	if err != nil {
		return nil, err
	}
	if !u.HasSteamID() {
		return nil, ErrSteamIDMissing
	}
	if !reward.ValidDay(day) {
		return nil, reward.ErrInvalidDay
	}

	eligibility, err := uc.CheckEligibility(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	if !eligibility.CanClaim {
		return nil, &CooldownError{
			HoursToWait:   eligibility.HoursToWait,
			NextClaimTime: *eligibility.NextClaimTime,
		}
	}

	now := uc.now().UTC()
	pending, err := reward.NewPendingReward(uc.ids.GenerateID(), u.ID, *u.SteamID, day, uc.serverID, now)
	if err != nil {
		return nil, err
	}
	record := &reward.ClaimRecord{
		ID:        uc.ids.GenerateID(),
		UserID:    u.ID,
		Day:       day,
		ClaimedAt: now,
	}

	if err := uc.repo.CreateClaim(ctx, pending, record); err != nil {
		return nil, fmt.Errorf("store claim: %w", err)
	}

	queued := *pending
	if err := uc.queue.Enqueue(ctx, &queued); err != nil {
		uc.logger.Warn("reward_enqueue_failed",
			zap.Error(err),
			zap.Int64("reward_id", pending.ID),
		)
	}

	uc.logger.Info("reward_claimed",
		zap.Int64("reward_id", pending.ID),
		zap.Int64("user_id", u.ID),
		zap.Int("day", day),
	)

	return &Result{
		Reward:        pending,
		ClaimTime:     now,
		NextClaimTime: now.Add(uc.cooldown),
	}, nil
}

// CheckEligibility applies the claim cooldown to the user's latest claim.
// A claim exactly one cooldown after the previous one is allowed.
func (uc *UseCase) CheckEligibility(ctx context.Context, userID int64) (*Eligibility, error) {
	last, err := uc.repo.LatestClaim(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load latest claim: %w", err)
	}
	if last == nil {
		return &Eligibility{CanClaim: true}, nil
	}

	lastAt := last.ClaimedAt.UTC()
	next := lastAt.Add(uc.cooldown)
	now := uc.now().UTC()

	if !now.Before(next) {
		return &Eligibility{CanClaim: true, LastClaim: &lastAt}, nil
	}
	return &Eligibility{
		CanClaim:      false,
		HoursToWait:   int(math.Ceil(next.Sub(now).Hours())),
		NextClaimTime: &next,
		LastClaim:     &lastAt,
	}, nil
}

// PendingRewards lists undelivered rewards for the caller's game identity, newest first.
func (uc *UseCase) PendingRewards(ctx context.Context, discordID string) ([]*reward.PendingReward, error) {
	u, err := uc.resolveUser(ctx, discordID)
	if err != nil {
		return nil, err
	}
	if !u.HasSteamID() {
		return []*reward.PendingReward{}, nil
	}

	items, err := uc.repo.ListPendingBySteamID(ctx, *u.SteamID)
	if err != nil {
		return nil, fmt.Errorf("list pending rewards: %w", err)
	}
	if items == nil {
		items = []*reward.PendingReward{}
	}
	return items, nil
}

func (uc *UseCase) resolveUser(ctx context.Context, discordID string) (*user.User, error) {
	u, err := uc.users.FindByDiscordID(ctx, discordID)
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if u == nil {
		return nil, ErrUserNotFound
	}
	return u, nil
}
