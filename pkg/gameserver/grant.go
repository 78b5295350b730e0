package gameserver

import (
	"context"
	"fmt"
	"net/http"
)

type GrantRequest struct {
	RewardID string `json:"reward_id"`
	SteamID  string `json:"steam_id"`
	Day      int    `json:"day"`
	ServerID string `json:"server_id"`
	Origin   string `json:"origin"`
}

type GrantResponse struct {
	Granted bool   `json:"granted"`
	Message string `json:"message,omitempty"`
}

// GrantReward asks the game server to hand the daily reward to the player.
// The plugin treats reward_id as an idempotency key.
func (c *Client) GrantReward(ctx context.Context, req GrantRequest) (*GrantResponse, error) {
	if req.RewardID == "" || req.SteamID == "" {
		return nil, fmt.Errorf("reward id and steam id are required")
	}

	var resp GrantResponse
	if err := c.doRequest(ctx, http.MethodPost, "/rewards/grant", req, &resp); err != nil {
		return nil, err
	}
	if !resp.Granted {
		msg := cleanText(resp.Message)
		if msg == "" {
			msg = "grant refused"
		}
		return &resp, &APIError{Status: http.StatusUnprocessableEntity, Code: "not_granted", Message: msg}
	}
	return &resp, nil
}

// Ping checks that the plugin endpoint answers.
func (c *Client) Ping(ctx context.Context) error {
	return c.doRequest(ctx, http.MethodGet, "/health", nil, nil)
}
