package usecase

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"harulog/pkg/logger"
	"harulog/services/notification/internal/entity"

	"github.com/google/uuid"
)

var (
	ErrUnauthenticated = errors.New("user identity is required")
	ErrBadCursor       = errors.New("malformed last event id")
)

const channelBuffer = 64

// SubscriptionManager runs a client session through its lifecycle:
// subscribe (optionally replaying backlog), live delivery, teardown.
type SubscriptionManager struct {
	store    EventStore
	registry *Registry
	locks    *RecipientLocks
	logger   *logger.Logger
}

func NewSubscriptionManager(store EventStore, registry *Registry, locks *RecipientLocks, log *logger.Logger) *SubscriptionManager {
	return &SubscriptionManager{
		store:    store,
		registry: registry,
		locks:    locks,
		logger:   log,
	}
}

// Subscribe opens a new session for the user. lastEventID is the replay
// cursor: empty means no backlog, only future events. The returned backlog
// holds every stored event with id > cursor in ascending order; events
// dispatched after registration arrive on the channel. Backlog fetch and
// registration share the recipient lock with Dispatch, so across
// backlog+channel the caller sees each event exactly once, in id order.
func (m *SubscriptionManager) Subscribe(ctx context.Context, userID, lastEventID string) (*entity.Channel, []entity.Event, error) {
	if userID == "" {
		return nil, nil, ErrUnauthenticated
	}

	replay := false
	var after int64
	if lastEventID != "" {
		parsed, err := strconv.ParseInt(lastEventID, 10, 64)
		if err != nil || parsed < 0 {
			return nil, nil, ErrBadCursor
		}
		after = parsed
		replay = true
	}

	ch := entity.NewChannel(userID, uuid.New().String(), channelBuffer)

	m.locks.Lock(userID)

	var backlog []entity.Event
	if replay {
		events, err := m.store.ListSince(ctx, userID, after)
		if err != nil {
			m.locks.Unlock(userID)
			return nil, nil, fmt.Errorf("failed to replay notification backlog: %w", err)
		}
		backlog = events
	}
	m.registry.Register(userID, ch)

	m.locks.Unlock(userID)

	m.logger.Info("Subscribed user %s, session %s (backlog: %d)", userID, ch.SessionID, len(backlog))

	return ch, backlog, nil
}

// Unsubscribe tears a session down. Safe to call more than once and safe to
// call for a channel the dispatcher already evicted.
func (m *SubscriptionManager) Unsubscribe(ch *entity.Channel) {
	if ch == nil {
		return
	}

	m.locks.Lock(ch.UserID)
	m.registry.Unregister(ch.UserID, ch.SessionID)
	ch.Close()
	m.locks.Unlock(ch.UserID)

	m.logger.Info("Unsubscribed user %s, session %s", ch.UserID, ch.SessionID)
}
