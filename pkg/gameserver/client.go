package gameserver

import (
	"net/http"
	"time"
)

// Client talks to the reward plugin running next to the game server.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *RateLimiter
	breaker CircuitBreaker
	now     func() time.Time
}

func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: timeout},
		limiter: NewRateLimiter(cfg.RateLimit, cfg.RateBurst),
		breaker: NewCircuitBreaker(cfg),
		now:     time.Now,
	}
}

// Configured reports whether a base URL was supplied.
func (c *Client) Configured() bool {
	return c != nil && c.cfg.BaseURL != ""
}
