package stub

import (
	"context"

	"github.com/ozanardine/phanteon-rewards/internal/domain/delivery"
	"go.uber.org/zap"
)

// Adapter accepts every delivery and only logs it. It is selected when no
// game server URL is configured.
type Adapter struct {
	logger *zap.Logger
}

func NewAdapter(logger *zap.Logger) *Adapter {
	return &Adapter{logger: logger.Named("delivery.stub")}
}

func (a *Adapter) Deliver(ctx context.Context, req delivery.Request) error {
	a.logger.Info("reward_delivery_stubbed",
		zap.Int64("reward_id", req.RewardID),
		zap.String("steam_id", req.SteamID),
		zap.Int("day", req.Day),
		zap.String("server_id", req.ServerID),
	)
	return nil
}

func (a *Adapter) Ping(ctx context.Context) error {
	return nil
}
