package monitoring

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/ozanardine/phanteon-rewards/internal/config"
	"github.com/ozanardine/phanteon-rewards/internal/domain/system"
	"go.uber.org/zap"
)

const persistTimeout = 5 * time.Second

// EventLogger records a system event. Implementations never fail the caller.
type EventLogger interface {
	Log(ctx context.Context, eventType string, data map[string]any)
}

// EventLog persists system events and forwards every one of them to the alert dispatcher.
type EventLog struct {
	repo        system.Repository
	alerts      *AlertDispatcher
	environment string
	logger      *zap.Logger
	now         func() time.Time
}

func NewEventLog(repo system.Repository, alerts *AlertDispatcher, cfg *config.Config, logger *zap.Logger) *EventLog {
	return &EventLog{
		repo:        repo,
		alerts:      alerts,
		environment: cfg.Environment,
		logger:      logger.Named("events"),
		now:         time.Now,
	}
}

// Log records the event. A store failure is logged and swallowed; alerting still happens.
func (l *EventLog) Log(ctx context.Context, eventType string, data map[string]any) {
	payload := make(map[string]any, len(data))
	for k, v := range data {
		payload[k] = v
	}

	event := &system.Event{
		ID:          uuid.New(),
		Type:        eventType,
		Data:        payload,
		Environment: l.environment,
		CreatedAt:   l.now().UTC(),
	}

	// Events written during shutdown must still land.
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	err := l.repo.AppendEvent(writeCtx, event)
	cancel()
	if err != nil {
		l.logger.Error("system_event_persist_failed",
			zap.Error(err),
			zap.String("event_type", eventType),
		)
	}

	if l.alerts != nil {
		l.alerts.Check(ctx, eventType, payload)
	}
}

// Recent lists stored events, newest first.
func (l *EventLog) Recent(ctx context.Context, eventType string, limit int) ([]*system.Event, error) {
	return l.repo.ListEvents(ctx, eventType, limit)
}
