package monitoring

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ozanardine/phanteon-rewards/internal/domain/system"
	"github.com/ozanardine/phanteon-rewards/internal/metrics"
	"go.uber.org/zap"
)

// Severity ranks how urgently an alert needs a human.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// alertRules maps event types to the severity they alert at. Unlisted types never alert.
var alertRules = map[string]Severity{
	system.EventRewardDeliveryFailed:    SeverityHigh,
	system.EventSystemError:             SeverityCritical,
	system.EventDatabaseConnectionError: SeverityCritical,
	system.EventAPIError:                SeverityMedium,
	system.EventStuckRewardsDetected:    SeverityHigh,
}

var throttleWindows = map[Severity]time.Duration{
	SeverityLow:      time.Hour,
	SeverityMedium:   30 * time.Minute,
	SeverityHigh:     5 * time.Minute,
	SeverityCritical: 0,
}

// severityFor returns the alert severity configured for an event type.
func severityFor(eventType string) (Severity, bool) {
	sev, ok := alertRules[eventType]
	return sev, ok
}

// throttleWindow returns the minimum spacing between two alerts of the same key.
// Unknown severities are throttled like low ones.
func throttleWindow(sev Severity) time.Duration {
	if w, ok := throttleWindows[sev]; ok {
		return w
	}
	return throttleWindows[SeverityLow]
}

// Alert is what handlers receive once an alert passes the throttle.
type Alert struct {
	Type        string
	Severity    Severity
	Data        map[string]any
	TriggeredAt time.Time
}

// AlertHandler delivers an alert somewhere a human will see it.
type AlertHandler func(ctx context.Context, alert Alert) error

// AlertDispatcher throttles alerts per type and severity and fans them out to handlers.
// The throttle state lives in process memory and resets on restart.
type AlertDispatcher struct {
	mu       sync.Mutex
	lastSent map[string]time.Time
	handlers []AlertHandler

	logger *zap.Logger
	now    func() time.Time
}

func NewAlertDispatcher(logger *zap.Logger) *AlertDispatcher {
	return &AlertDispatcher{
		lastSent: make(map[string]time.Time),
		logger:   logger.Named("alerts"),
		now:      time.Now,
	}
}

// RegisterHandler appends h. Handlers run in registration order.
func (d *AlertDispatcher) RegisterHandler(h AlertHandler) {
	if h == nil {
		return
	}
	d.mu.Lock()
	d.handlers = append(d.handlers, h)
	d.mu.Unlock()
}

// Check raises an alert when eventType has an alert rule. It reports whether handlers ran.
func (d *AlertDispatcher) Check(ctx context.Context, eventType string, data map[string]any) bool {
	sev, ok := severityFor(eventType)
	if !ok {
		return false
	}
	return d.Trigger(ctx, eventType, data, sev)
}

// Trigger dispatches the alert unless one with the same type and severity went out
// within the severity's throttle window. It reports whether handlers ran.
func (d *AlertDispatcher) Trigger(ctx context.Context, alertType string, data map[string]any, severity Severity) bool {
	key := alertType + ":" + string(severity)
	now := d.now()
	window := throttleWindow(severity)

	d.mu.Lock()
	last, seen := d.lastSent[key]
	if seen && window > 0 && now.Sub(last) <= window {
		d.mu.Unlock()
		metrics.AlertsThrottledTotal.WithLabelValues(alertType, string(severity)).Inc()
		d.logger.Debug("alert_throttled",
			zap.String("alert_type", alertType),
			zap.String("severity", string(severity)),
			zap.Time("last_sent", last),
		)
		return false
	}
	d.lastSent[key] = now
	handlers := make([]AlertHandler, len(d.handlers))
	copy(handlers, d.handlers)
	d.mu.Unlock()

	alert := Alert{
		Type:        alertType,
		Severity:    severity,
		Data:        data,
		TriggeredAt: now.UTC(),
	}
	for i, h := range handlers {
		if err := d.invoke(ctx, h, alert); err != nil {
			d.logger.Error("alert_handler_failed",
				zap.Error(err),
				zap.Int("handler", i),
				zap.String("alert_type", alertType),
			)
		}
	}
	metrics.AlertsDispatchedTotal.WithLabelValues(alertType, string(severity)).Inc()
	return true
}

func (d *AlertDispatcher) invoke(ctx context.Context, h AlertHandler, alert Alert) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("alert handler panic: %v", r)
		}
	}()
	return h(ctx, alert)
}
