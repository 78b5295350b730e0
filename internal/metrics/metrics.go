package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)

	RewardDeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reward_deliveries_total",
			Help: "Reward delivery runs by outcome",
		},
		[]string{"outcome"},
	)

	RewardDeliveryAttemptsFailedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "reward_delivery_attempts_failed_total",
			Help: "Individual delivery attempts that failed",
		},
	)

	RewardQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "reward_queue_depth",
			Help: "Rewards waiting in the in-memory delivery queue",
		},
	)

	RewardQueueRejectedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "reward_queue_rejected_total",
			Help: "Rewards not enqueued because the queue was full",
		},
	)

	ReconciledRewardsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reconciled_rewards_total",
			Help: "Stuck rewards handled by reconciliation, by result",
		},
		[]string{"result"},
	)

	AlertsDispatchedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alerts_dispatched_total",
			Help: "Alerts passed through the throttle",
		},
		[]string{"type", "severity"},
	)

	AlertsThrottledTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alerts_throttled_total",
			Help: "Alerts suppressed by the throttle window",
		},
		[]string{"type", "severity"},
	)

	StuckRewards = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "stuck_rewards",
			Help: "Rewards processing or failed within the last 24h, as of the last health check",
		},
	)

	StoreLatencySeconds = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "store_latency_seconds",
			Help: "Round trip latency of the last store ping",
		},
	)

	GameServerBreakerState = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "game_server_breaker_state",
			Help: "Game server circuit breaker state (0 closed, 1 half-open, 2 open)",
		},
	)
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		RewardDeliveriesTotal,
		RewardDeliveryAttemptsFailedTotal,
		RewardQueueDepth,
		RewardQueueRejectedTotal,
		ReconciledRewardsTotal,
		AlertsDispatchedTotal,
		AlertsThrottledTotal,
		StuckRewards,
		StoreLatencySeconds,
		GameServerBreakerState,
	)
}
