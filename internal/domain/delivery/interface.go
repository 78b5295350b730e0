package delivery

import (
	"context"
	"errors"
)

// ErrRejected marks a delivery the game server refused outright.
var ErrRejected = errors.New("delivery rejected by game server")

// Request carries what the game server needs to grant a reward in-game.
type Request struct {
	RewardID int64
	SteamID  string
	Day      int
	ServerID string
	Origin   string
}

// Channel is the boundary to the game server that actually grants items.
// Implementations must be safe for concurrent use.
type Channel interface {
	Deliver(ctx context.Context, req Request) error
}
