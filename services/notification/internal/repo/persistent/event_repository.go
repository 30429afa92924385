package persistent

import (
	"context"
	"fmt"
	"time"

	"harulog/services/notification/internal/entity"
	"harulog/services/notification/internal/model"

	"gorm.io/gorm"
)

// EventRepository is the durable notification log. Per-recipient seq
// assignment relies on the dispatcher serializing appends for a recipient;
// the unique (recipient_id, seq) constraint backstops that assumption.
type EventRepository struct {
	db *gorm.DB
}

func NewEventRepository(db *gorm.DB) *EventRepository {
	return &EventRepository{db: db}
}

func (r *EventRepository) Append(ctx context.Context, recipientID string, kind entity.Kind, payload map[string]interface{}) (*entity.Event, error) {
	var m model.EventModel

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var last int64
		if err := tx.Model(&model.EventModel{}).
			Where("recipient_id = ?", recipientID).
			Select("COALESCE(MAX(seq), 0)").
			Scan(&last).Error; err != nil {
			return fmt.Errorf("failed to read last seq: %w", err)
		}

		m = model.EventModel{
			RecipientID: recipientID,
			Seq:         last + 1,
			Kind:        string(kind),
			Payload:     model.JSONMap(payload),
			CreatedAt:   time.Now().UTC(),
		}
		return tx.Create(&m).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to append notification event: %w", err)
	}

	return ToEventEntity(&m), nil
}

func (r *EventRepository) ListSince(ctx context.Context, recipientID string, afterID int64) ([]entity.Event, error) {
	var models []model.EventModel
	if err := r.db.WithContext(ctx).
		Where("recipient_id = ? AND seq > ?", recipientID, afterID).
		Order("seq ASC").
		Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to list notification events: %w", err)
	}

	return ToEventEntities(models), nil
}
