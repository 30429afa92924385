package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// JSONMap stores a kind-specific payload as JSONB.
type JSONMap map[string]interface{}

func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

func (m *JSONMap) Scan(value interface{}) error {
	if value == nil {
		*m = nil
		return nil
	}

	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type for JSONMap: %T", value)
	}

	return json.Unmarshal(data, m)
}

// EventModel is one row of the per-recipient notification log. The
// (recipient_id, seq) pair is unique; seq starts at 1 for each recipient.
type EventModel struct {
	ID          uint64    `gorm:"column:id;primaryKey;autoIncrement"`
	RecipientID string    `gorm:"column:recipient_id;type:uuid;not null;uniqueIndex:uq_notification_events_recipient_seq,priority:1"`
	Seq         int64     `gorm:"column:seq;not null;uniqueIndex:uq_notification_events_recipient_seq,priority:2"`
	Kind        string    `gorm:"column:kind;type:varchar(32);not null"`
	Payload     JSONMap   `gorm:"column:payload;type:jsonb"`
	CreatedAt   time.Time `gorm:"column:created_at;not null"`
}

func (EventModel) TableName() string {
	return "notification_events"
}
