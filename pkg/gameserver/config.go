package gameserver

import (
	"time"

	"github.com/ozanardine/phanteon-rewards/internal/config"
)

type Config struct {
	BaseURL       string
	APIKey        string
	SigningSecret string

	Timeout time.Duration

	RateLimit int
	RateBurst int

	CircuitBreakerEnabled bool
	CBFailureThreshold    int
	CBRecoveryTime        time.Duration
	CBMinRequests         int
	CBSamplingDuration    time.Duration
	CBHalfOpenMaxSuccess  int
}

// FromAppConfig maps application configuration onto the client settings.
func FromAppConfig(cfg *config.Config) Config {
	return Config{
		BaseURL:       cfg.GameServerURL,
		APIKey:        cfg.GameServerAPIKey,
		SigningSecret: cfg.GameServerSecret,

		Timeout: cfg.GameServerTimeout,

		RateLimit: cfg.GameServerRateLimit,
		RateBurst: cfg.GameServerRateBurst,

		CircuitBreakerEnabled: true,
		CBFailureThreshold:    5,
		CBRecoveryTime:        30 * time.Second,
		CBMinRequests:         5,
		CBSamplingDuration:    60 * time.Second,
		CBHalfOpenMaxSuccess:  1,
	}
}
