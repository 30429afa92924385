package persistent

import (
	"harulog/services/notification/internal/entity"
	"harulog/services/notification/internal/model"
)

func ToEventEntity(m *model.EventModel) *entity.Event {
	if m == nil {
		return nil
	}
	return &entity.Event{
		ID:          m.Seq,
		RecipientID: m.RecipientID,
		Kind:        entity.Kind(m.Kind),
		Payload:     map[string]interface{}(m.Payload),
		CreatedAt:   m.CreatedAt,
	}
}

func ToEventEntities(models []model.EventModel) []entity.Event {
	events := make([]entity.Event, len(models))
	for i := range models {
		events[i] = *ToEventEntity(&models[i])
	}
	return events
}
