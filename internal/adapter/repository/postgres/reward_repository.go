package postgres

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/ozanardine/phanteon-rewards/internal/domain/reward"
	"gorm.io/gorm"
)

type RewardRepository struct {
	db  *gorm.DB
	now func() time.Time
}

func NewRewardRepository(db *gorm.DB) *RewardRepository {
	return &RewardRepository{db: db, now: time.Now}
}

func (r *RewardRepository) CreateClaim(ctx context.Context, entity *reward.PendingReward, claim *reward.ClaimRecord) error {
	model := rewardToModel(entity)
	record := ClaimModel{
		ID:        claim.ID,
		UserID:    claim.UserID,
		Day:       claim.Day,
		ClaimedAt: claim.ClaimedAt,
	}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&model).Error; err != nil {
			return err
		}
		return tx.Create(&record).Error
	})
	return classify(err)
}

func (r *RewardRepository) FindByID(ctx context.Context, id int64) (*reward.PendingReward, error) {
	var model RewardModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, classify(err)
	}
	return rewardToDomain(model), nil
}

// UpdateStatus is a compare-and-swap on the status column.
func (r *RewardRepository) UpdateStatus(ctx context.Context, id int64, allowed []reward.Status, next reward.Status, lastError string) (bool, error) {
	if len(allowed) == 0 {
		return false, nil
	}
	res := r.db.WithContext(ctx).Model(&RewardModel{}).
		Where("id = ? AND status IN ?", id, statusValues(allowed)).
		Updates(map[string]any{
			"status":     string(next),
			"last_error": lastError,
			"updated_at": r.now().UTC(),
		})
	if res.Error != nil {
		return false, classify(res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *RewardRepository) MarkProcessed(ctx context.Context, id int64, processedAt time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&RewardModel{}).
		Where("id = ? AND status = ?", id, string(reward.StatusProcessing)).
		Updates(map[string]any{
			"status":       string(reward.StatusProcessed),
			"processed_at": processedAt.UTC(),
			"last_error":   "",
			"updated_at":   r.now().UTC(),
		})
	if res.Error != nil {
		return false, classify(res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *RewardRepository) ReleaseStale(ctx context.Context, id int64, staleBefore time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&RewardModel{}).
		Where("id = ? AND status = ? AND updated_at < ?", id, string(reward.StatusProcessing), staleBefore).
		Updates(map[string]any{
			"status":     string(reward.StatusPending),
			"updated_at": r.now().UTC(),
		})
	if res.Error != nil {
		return false, classify(res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *RewardRepository) ListStale(ctx context.Context, statuses []reward.Status, updatedBefore time.Time, afterID int64, limit int) ([]*reward.PendingReward, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	query := r.db.WithContext(ctx).
		Where("status IN ? AND updated_at < ? AND id > ?", statusValues(statuses), updatedBefore, afterID).
		Order("id asc")
	if limit > 0 {
		query = query.Limit(limit)
	}
	return r.findRewards(query)
}

func (r *RewardRepository) CountRecent(ctx context.Context, statuses []reward.Status, since time.Time, limit int) (int64, error) {
	if len(statuses) == 0 {
		return 0, nil
	}
	if limit <= 0 {
		limit = math.MaxInt32
	}
	var count int64
	err := r.db.WithContext(ctx).Raw(
		`SELECT COUNT(*) FROM (
			SELECT 1 FROM pending_rewards
			WHERE status IN ? AND updated_at > ?
			LIMIT ?
		) AS recent`,
		statusValues(statuses), since, limit,
	).Scan(&count).Error
	if err != nil {
		return 0, classify(err)
	}
	return count, nil
}

func (r *RewardRepository) ListPendingBySteamID(ctx context.Context, steamID string) ([]*reward.PendingReward, error) {
	query := r.db.WithContext(ctx).
		Where("steam_id = ? AND status = ?", steamID, string(reward.StatusPending)).
		Order("requested_at desc")
	return r.findRewards(query)
}

func (r *RewardRepository) LatestClaim(ctx context.Context, userID int64) (*reward.ClaimRecord, error) {
	var model ClaimModel
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("claimed_at desc").First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, classify(err)
	}
	return claimToDomain(model), nil
}

func (r *RewardRepository) ListClaims(ctx context.Context, userID int64, limit int) ([]*reward.ClaimRecord, error) {
	query := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("claimed_at desc")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var models []ClaimModel
	if err := query.Find(&models).Error; err != nil {
		return nil, classify(err)
	}

	items := make([]*reward.ClaimRecord, 0, len(models))
	for _, model := range models {
		items = append(items, claimToDomain(model))
	}
	return items, nil
}

func (r *RewardRepository) findRewards(query *gorm.DB) ([]*reward.PendingReward, error) {
	var models []RewardModel
	if err := query.Find(&models).Error; err != nil {
		return nil, classify(err)
	}

	items := make([]*reward.PendingReward, 0, len(models))
	for _, model := range models {
		items = append(items, rewardToDomain(model))
	}
	return items, nil
}
