package gameserver

import (
	"context"
	"fmt"
	"strconv"

	"github.com/ozanardine/phanteon-rewards/internal/domain/delivery"
	"github.com/ozanardine/phanteon-rewards/pkg/gameserver"
)

type Adapter struct {
	client *gameserver.Client
}

func NewAdapter(client *gameserver.Client) *Adapter {
	return &Adapter{client: client}
}

func (a *Adapter) Deliver(ctx context.Context, req delivery.Request) error {
	_, err := a.client.GrantReward(ctx, gameserver.GrantRequest{
		RewardID: strconv.FormatInt(req.RewardID, 10),
		SteamID:  req.SteamID,
		Day:      req.Day,
		ServerID: req.ServerID,
		Origin:   req.Origin,
	})
	if err == nil {
		return nil
	}
	if gameserver.IsRejection(err) {
		return fmt.Errorf("%w: %v", delivery.ErrRejected, err)
	}
	return err
}

func (a *Adapter) Ping(ctx context.Context) error {
	return a.client.Ping(ctx)
}
