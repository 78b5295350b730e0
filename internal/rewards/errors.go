package rewards

import (
	"errors"
	"fmt"
)

var (
	// ErrRewardBusy means another worker won the pending to processing transition.
	ErrRewardBusy = errors.New("reward is already being processed")

	ErrNotRetryable = errors.New("only failed rewards can be retried")
	ErrQueueFull    = errors.New("reward queue is full")
)

// StateError is a store failure while reading or transitioning a reward.
// It ends a delivery run without further writes.
type StateError struct {
	Op       string
	RewardID int64
	Err      error
}

func (e *StateError) Error() string {
	return fmt.Sprintf("reward %d: %s: %v", e.RewardID, e.Op, e.Err)
}

func (e *StateError) Unwrap() error { return e.Err }

// DeliveryError is a failed hand-off to the delivery channel. It is retried.
type DeliveryError struct {
	RewardID int64
	Err      error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("reward %d: delivery: %v", e.RewardID, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }
