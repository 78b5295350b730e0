package postgres

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ozanardine/phanteon-rewards/internal/domain/reward"
	"github.com/ozanardine/phanteon-rewards/internal/domain/system"
	"github.com/ozanardine/phanteon-rewards/pkg/db"
	"gorm.io/datatypes"
)

// RewardModel is the database DTO with Gorm tags.
type RewardModel struct {
	ID          int64  `gorm:"primaryKey"`
	UserID      int64  `gorm:"not null"`
	SteamID     string `gorm:"type:varchar(32);not null"`
	Day         int    `gorm:"type:smallint;not null"`
	Status      string `gorm:"type:varchar(20);not null"`
	Origin      string `gorm:"type:varchar(50)"`
	ServerID    string `gorm:"type:varchar(100)"`
	LastError   string `gorm:"type:text"`
	RequestedAt time.Time
	ProcessedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (RewardModel) TableName() string {
	return "pending_rewards"
}

type ClaimModel struct {
	ID        int64 `gorm:"primaryKey"`
	UserID    int64 `gorm:"not null"`
	Day       int   `gorm:"type:smallint;not null"`
	ClaimedAt time.Time
}

func (ClaimModel) TableName() string {
	return "daily_claims"
}

type EventModel struct {
	ID          uuid.UUID         `gorm:"type:uuid;primaryKey"`
	EventType   string            `gorm:"type:varchar(100);not null"`
	Data        datatypes.JSONMap `gorm:"type:jsonb"`
	Environment string            `gorm:"type:varchar(50)"`
	CreatedAt   time.Time
}

func (EventModel) TableName() string {
	return "system_events"
}

type StatusModel struct {
	Key       string            `gorm:"primaryKey;type:varchar(50)"`
	Status    string            `gorm:"type:varchar(20);not null"`
	Details   datatypes.JSONMap `gorm:"type:jsonb"`
	LastCheck time.Time
}

func (StatusModel) TableName() string {
	return "system_status"
}

// Mappers

func rewardToDomain(m RewardModel) *reward.PendingReward {
	return &reward.PendingReward{
		ID:          m.ID,
		UserID:      m.UserID,
		SteamID:     m.SteamID,
		Day:         m.Day,
		Status:      reward.Status(m.Status),
		Origin:      m.Origin,
		ServerID:    m.ServerID,
		LastError:   m.LastError,
		RequestedAt: m.RequestedAt,
		ProcessedAt: m.ProcessedAt,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

func rewardToModel(d *reward.PendingReward) RewardModel {
	return RewardModel{
		ID:          d.ID,
		UserID:      d.UserID,
		SteamID:     d.SteamID,
		Day:         d.Day,
		Status:      string(d.Status),
		Origin:      d.Origin,
		ServerID:    d.ServerID,
		LastError:   d.LastError,
		RequestedAt: d.RequestedAt,
		ProcessedAt: d.ProcessedAt,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}

func claimToDomain(m ClaimModel) *reward.ClaimRecord {
	return &reward.ClaimRecord{
		ID:        m.ID,
		UserID:    m.UserID,
		Day:       m.Day,
		ClaimedAt: m.ClaimedAt,
	}
}

func eventToDomain(m EventModel) *system.Event {
	return &system.Event{
		ID:          m.ID,
		Type:        m.EventType,
		Data:        map[string]any(m.Data),
		Environment: m.Environment,
		CreatedAt:   m.CreatedAt,
	}
}

func statusToDomain(m StatusModel) *system.StatusSnapshot {
	return &system.StatusSnapshot{
		Key:       m.Key,
		Status:    system.Health(m.Status),
		Details:   map[string]any(m.Details),
		LastCheck: m.LastCheck,
	}
}

func statusValues(statuses []reward.Status) []string {
	values := make([]string, 0, len(statuses))
	for _, s := range statuses {
		values = append(values, string(s))
	}
	return values
}

// classify marks connectivity failures so callers can tell them from rejected statements.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if db.IsUnavailable(err) {
		return fmt.Errorf("%w: %v", system.ErrStoreUnavailable, err)
	}
	return err
}
