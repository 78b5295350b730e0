package reward

import (
	"errors"
	"time"
)

// Status represents the delivery lifecycle state of a pending reward.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusProcessed  Status = "processed"
	StatusFailed     Status = "failed"
)

// OriginWebsite tags rewards claimed through the profile dashboard.
const OriginWebsite = "website"

const (
	MinDay = 1
	MaxDay = 7
)

var (
	ErrInvalidDay     = errors.New("day must be between 1 and 7")
	ErrRewardNotFound = errors.New("reward not found")
)

// PendingReward is one claimed in-game item grant waiting for delivery.
// Rows are never deleted; terminal states are processed and failed.
type PendingReward struct {
	ID          int64      `json:"id,string"`
	UserID      int64      `json:"user_id,string"`
	SteamID     string     `json:"steam_id"`
	Day         int        `json:"day"`
	Status      Status     `json:"status"`
	Origin      string     `json:"origin"`
	ServerID    string     `json:"server_id"`
	LastError   string     `json:"last_error,omitempty"`
	RequestedAt time.Time  `json:"requested_at"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// NewPendingReward creates a reward in pending state.
func NewPendingReward(id, userID int64, steamID string, day int, serverID string, now time.Time) (*PendingReward, error) {
	if !ValidDay(day) {
		return nil, ErrInvalidDay
	}
	now = now.UTC()
	return &PendingReward{
		ID:          id,
		UserID:      userID,
		SteamID:     steamID,
		Day:         day,
		Status:      StatusPending,
		Origin:      OriginWebsite,
		ServerID:    serverID,
		RequestedAt: now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// IsTerminal reports whether no further delivery attempt will be made without an operator retry.
func (s Status) IsTerminal() bool {
	return s == StatusProcessed || s == StatusFailed
}

// ValidDay reports whether day is a valid position in the weekly reward cycle.
func ValidDay(day int) bool {
	return day >= MinDay && day <= MaxDay
}

// ClaimRecord is the append-only claim history used for cooldown enforcement.
type ClaimRecord struct {
	ID        int64     `json:"id,string"`
	UserID    int64     `json:"user_id,string"`
	Day       int       `json:"day"`
	ClaimedAt time.Time `json:"claimed_at"`
}
