package gameserver

import (
	"github.com/ozanardine/phanteon-rewards/internal/metrics"
	"github.com/sony/gobreaker"
)

// CircuitBreaker guards calls to the plugin so an unreachable game server fails fast
// instead of holding delivery workers for the full timeout.
type CircuitBreaker interface {
	Execute(fn func() error) error
}

type passthrough struct{}

func (passthrough) Execute(fn func() error) error { return fn() }

type grantBreaker struct {
	cb *gobreaker.CircuitBreaker
}

func (g *grantBreaker) Execute(fn func() error) error {
	_, err := g.cb.Execute(func() (any, error) {
		return nil, fn()
	})
	return err
}

// NewCircuitBreaker returns a pass-through breaker when disabled in cfg.
func NewCircuitBreaker(cfg Config) CircuitBreaker {
	if !cfg.CircuitBreakerEnabled {
		return passthrough{}
	}

	settings := gobreaker.Settings{
		Name:        "gameserver-grants",
		MaxRequests: uint32(cfg.CBHalfOpenMaxSuccess),
		Interval:    cfg.CBSamplingDuration,
		Timeout:     cfg.CBRecoveryTime,

		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < uint32(cfg.CBMinRequests) {
				return false
			}
			return counts.TotalFailures >= uint32(cfg.CBFailureThreshold)
		},

		// A grant the server explicitly refused is an answer, not an outage.
		IsSuccessful: func(err error) bool {
			return err == nil || IsRejection(err)
		},

		OnStateChange: func(_ string, _, to gobreaker.State) {
			metrics.GameServerBreakerState.Set(float64(to))
		},
	}

	return &grantBreaker{cb: gobreaker.NewCircuitBreaker(settings)}
}
