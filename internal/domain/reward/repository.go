package reward

import (
	"context"
	"time"
)

// Repository defines persistence for pending rewards and claim history.
// Lookups return (nil, nil) when the row does not exist.
type Repository interface {
	// CreateClaim stores the reward and its claim history row atomically.
	CreateClaim(ctx context.Context, reward *PendingReward, claim *ClaimRecord) error

	FindByID(ctx context.Context, id int64) (*PendingReward, error)

	// UpdateStatus moves the reward to next only when its current status is in allowed.
	// It reports whether a row was changed.
	UpdateStatus(ctx context.Context, id int64, allowed []Status, next Status, lastError string) (bool, error)

	// MarkProcessed moves a processing reward to processed and stamps processedAt.
	MarkProcessed(ctx context.Context, id int64, processedAt time.Time) (bool, error)

	// ReleaseStale moves a processing reward back to pending when it was last
	// updated before staleBefore.
	ReleaseStale(ctx context.Context, id int64, staleBefore time.Time) (bool, error)

	// ListStale returns rewards in statuses last updated before the cutoff with an id
	// above afterID, in id order. Callers page by passing the last id they saw.
	ListStale(ctx context.Context, statuses []Status, updatedBefore time.Time, afterID int64, limit int) ([]*PendingReward, error)

	// CountRecent counts rewards in statuses updated after since, capped at limit.
	CountRecent(ctx context.Context, statuses []Status, since time.Time, limit int) (int64, error)

	// ListPendingBySteamID returns pending rewards for a game identity, newest first.
	ListPendingBySteamID(ctx context.Context, steamID string) ([]*PendingReward, error)

	LatestClaim(ctx context.Context, userID int64) (*ClaimRecord, error)

	// ListClaims returns the user's most recent claims, newest first.
	ListClaims(ctx context.Context, userID int64, limit int) ([]*ClaimRecord, error)
}
