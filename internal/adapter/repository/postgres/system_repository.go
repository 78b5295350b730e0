package postgres

import (
	"context"
	"errors"

	"github.com/ozanardine/phanteon-rewards/internal/domain/system"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type SystemRepository struct {
	db *gorm.DB
}

func NewSystemRepository(db *gorm.DB) *SystemRepository {
	return &SystemRepository{db: db}
}

func (r *SystemRepository) AppendEvent(ctx context.Context, event *system.Event) error {
	data := datatypes.JSONMap(event.Data)
	if data == nil {
		data = datatypes.JSONMap{}
	}
	model := EventModel{
		ID:          event.ID,
		EventType:   event.Type,
		Data:        data,
		Environment: event.Environment,
		CreatedAt:   event.CreatedAt,
	}
	return classify(r.db.WithContext(ctx).Create(&model).Error)
}

func (r *SystemRepository) ListEvents(ctx context.Context, eventType string, limit int) ([]*system.Event, error) {
	query := r.db.WithContext(ctx).Order("created_at desc")
	if eventType != "" {
		query = query.Where("event_type = ?", eventType)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}

	var models []EventModel
	if err := query.Find(&models).Error; err != nil {
		return nil, classify(err)
	}

	items := make([]*system.Event, 0, len(models))
	for _, model := range models {
		items = append(items, eventToDomain(model))
	}
	return items, nil
}

func (r *SystemRepository) UpsertSnapshot(ctx context.Context, snapshot *system.StatusSnapshot) error {
	details := datatypes.JSONMap(snapshot.Details)
	if details == nil {
		details = datatypes.JSONMap{}
	}
	model := StatusModel{
		Key:       snapshot.Key,
		Status:    string(snapshot.Status),
		Details:   details,
		LastCheck: snapshot.LastCheck,
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"status", "details", "last_check"}),
	}).Create(&model).Error
	return classify(err)
}

func (r *SystemRepository) GetSnapshot(ctx context.Context, key string) (*system.StatusSnapshot, error) {
	var model StatusModel
	if err := r.db.WithContext(ctx).Where("key = ?", key).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, classify(err)
	}
	return statusToDomain(model), nil
}

func (r *SystemRepository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return classify(sqlDB.PingContext(ctx))
}
