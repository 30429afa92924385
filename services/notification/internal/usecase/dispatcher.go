package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"harulog/pkg/logger"
	"harulog/services/notification/internal/entity"

	"github.com/redis/go-redis/v9"
)

// EventStore is the durable per-recipient notification log. Append assigns
// the next id for the recipient (gap-free, starting at 1); ListSince returns
// events with id > afterID in ascending id order.
type EventStore interface {
	Append(ctx context.Context, recipientID string, kind entity.Kind, payload map[string]interface{}) (*entity.Event, error)
	ListSince(ctx context.Context, recipientID string, afterID int64) ([]entity.Event, error)
}

var ErrEmptyRecipient = errors.New("recipient id is required")

const (
	recentHistoryMax = 100
	recentHistoryTTL = 30 * 24 * time.Hour
)

// Dispatcher persists a notification event and pushes it to every live
// channel of the recipient. Kind and payload are opaque here; the call
// sites validate them. Dispatch succeeds once the event is durably stored,
// regardless of delivery outcome.
type Dispatcher struct {
	store       EventStore
	registry    *Registry
	locks       *RecipientLocks
	redisClient *redis.Client
	logger      *logger.Logger
}

func NewDispatcher(store EventStore, registry *Registry, locks *RecipientLocks, redisClient *redis.Client, log *logger.Logger) *Dispatcher {
	return &Dispatcher{
		store:       store,
		registry:    registry,
		locks:       locks,
		redisClient: redisClient,
		logger:      log,
	}
}

func (d *Dispatcher) Dispatch(ctx context.Context, recipientID string, kind entity.Kind, payload map[string]interface{}) (*entity.Event, error) {
	if recipientID == "" {
		return nil, ErrEmptyRecipient
	}

	// Append and push run under the recipient lock shared with Subscribe,
	// so a concurrent replay either includes this event in its backlog or
	// has its channel registered before the push, never neither.
	d.locks.Lock(recipientID)

	ev, err := d.store.Append(ctx, recipientID, kind, payload)
	if err != nil {
		d.locks.Unlock(recipientID)
		return nil, fmt.Errorf("failed to store notification event: %w", err)
	}

	var dead []*entity.Channel
	for _, ch := range d.registry.LiveChannelsFor(recipientID) {
		if !ch.TrySend(*ev) {
			dead = append(dead, ch)
		}
	}
	for _, ch := range dead {
		d.registry.Unregister(recipientID, ch.SessionID)
		ch.Close()
		d.logger.Warn("Evicted dead channel for user %s, session %s", recipientID, ch.SessionID)
	}

	d.locks.Unlock(recipientID)

	d.cacheRecent(ctx, ev)

	return ev, nil
}

// cacheRecent mirrors the event into the recipient's bounded recent-history
// list. Best effort: the durable store already has the event, so cache
// failures are logged and swallowed.
func (d *Dispatcher) cacheRecent(ctx context.Context, ev *entity.Event) {
	if d.redisClient == nil {
		return
	}

	eventJSON, err := json.Marshal(ev)
	if err != nil {
		d.logger.Warn("Failed to marshal event %d for user %s: %v", ev.ID, ev.RecipientID, err)
		return
	}

	key := recentHistoryKey(ev.RecipientID)
	if err := d.redisClient.LPush(ctx, key, eventJSON).Err(); err != nil {
		d.logger.Warn("Failed to cache notification for user %s: %v", ev.RecipientID, err)
		return
	}
	d.redisClient.LTrim(ctx, key, 0, recentHistoryMax-1)
	d.redisClient.Expire(ctx, key, recentHistoryTTL)
}

// RecentEvents returns the newest-first slice of the recipient's recent
// history from the cache.
func (d *Dispatcher) RecentEvents(ctx context.Context, recipientID string, limit, offset int) ([]entity.Event, int64, error) {
	if d.redisClient == nil {
		return nil, 0, nil
	}

	key := recentHistoryKey(recipientID)
	raw, err := d.redisClient.LRange(ctx, key, int64(offset), int64(offset+limit-1)).Result()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read recent notifications: %w", err)
	}

	events := make([]entity.Event, 0, len(raw))
	for _, item := range raw {
		var ev entity.Event
		if err := json.Unmarshal([]byte(item), &ev); err == nil {
			events = append(events, ev)
		}
	}

	total, _ := d.redisClient.LLen(ctx, key).Result()

	return events, total, nil
}

func recentHistoryKey(recipientID string) string {
	return "notifications:recent:" + recipientID
}
