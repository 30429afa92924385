package memory

import (
	"context"
	"sync"
	"time"

	"harulog/services/notification/internal/entity"
)

// EventStore keeps the notification log in process memory. It backs unit
// tests and local development; it honors the same contract as the postgres
// repository: per-recipient ids start at 1 and increase without gaps.
type EventStore struct {
	mu     sync.Mutex
	events map[string][]entity.Event
}

func NewEventStore() *EventStore {
	return &EventStore{events: make(map[string][]entity.Event)}
}

func (s *EventStore) Append(_ context.Context, recipientID string, kind entity.Kind, payload map[string]interface{}) (*entity.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	log := s.events[recipientID]
	ev := entity.Event{
		ID:          int64(len(log)) + 1,
		RecipientID: recipientID,
		Kind:        kind,
		Payload:     payload,
		CreatedAt:   time.Now().UTC(),
	}
	s.events[recipientID] = append(log, ev)

	return &ev, nil
}

func (s *EventStore) ListSince(_ context.Context, recipientID string, afterID int64) ([]entity.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	log := s.events[recipientID]
	if afterID >= int64(len(log)) {
		return nil, nil
	}
	if afterID < 0 {
		afterID = 0
	}

	// Events are stored in id order with id == index+1.
	tail := log[afterID:]
	out := make([]entity.Event, len(tail))
	copy(out, tail)
	return out, nil
}
