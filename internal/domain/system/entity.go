package system

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Event types written to the system event log.
const (
	EventRewardDelivered         = "reward_delivered"
	EventRewardAttemptFailed     = "reward_delivery_attempt_failed"
	EventRewardDeliveryFailed    = "reward_delivery_failed"
	EventRewardRetryRequested    = "reward_retry_requested"
	EventReconciliationCompleted = "reconciliation_completed"
	EventStuckRewardsDetected    = "stuck_rewards_detected"
	EventSystemError             = "system_error"
	EventDatabaseConnectionError = "database_connection_error"
	EventAPIError                = "api_error"
)

// ErrStoreUnavailable wraps store errors caused by connectivity rather than by the statement.
var ErrStoreUnavailable = errors.New("store unavailable")

// Health is the overall verdict of a health probe.
type Health string

const (
	HealthHealthy  Health = "healthy"
	HealthDegraded Health = "degraded"
	HealthCritical Health = "critical"
)

// Snapshot keys.
const (
	SnapshotLatest = "latest"
)

// Event is an append-only record of something the system did.
type Event struct {
	ID          uuid.UUID      `json:"id"`
	Type        string         `json:"event_type"`
	Data        map[string]any `json:"data"`
	Environment string         `json:"environment"`
	CreatedAt   time.Time      `json:"created_at"`
}

// StatusSnapshot is the latest computed status for a key; it is overwritten on every check.
type StatusSnapshot struct {
	Key       string         `json:"key"`
	Status    Health         `json:"status"`
	Details   map[string]any `json:"details"`
	LastCheck time.Time      `json:"last_check"`
}

// Repository persists events and status snapshots.
type Repository interface {
	AppendEvent(ctx context.Context, event *Event) error

	// ListEvents returns recent events, newest first. An empty eventType matches all.
	ListEvents(ctx context.Context, eventType string, limit int) ([]*Event, error)

	UpsertSnapshot(ctx context.Context, snapshot *StatusSnapshot) error

	// GetSnapshot returns (nil, nil) when no snapshot exists for key.
	GetSnapshot(ctx context.Context, key string) (*StatusSnapshot, error)

	// Ping performs a trivial round trip to the store.
	Ping(ctx context.Context) error
}
