package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"harulog/pkg/logger"
	"harulog/services/notification/internal/entity"
	"harulog/services/notification/internal/repo/memory"

	"github.com/stretchr/testify/assert"
)

func newTestDispatcher() (*Dispatcher, *memory.EventStore, *Registry) {
	store := memory.NewEventStore()
	registry := NewRegistry()
	locks := NewRecipientLocks()
	return NewDispatcher(store, registry, locks, nil, logger.New()), store, registry
}

func TestDispatch_AssignsSequentialIDs(t *testing.T) {
	dispatcher, _, _ := newTestDispatcher()
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		ev, err := dispatcher.Dispatch(ctx, "user-1", entity.KindMessage, nil)
		assert.NoError(t, err)
		assert.Equal(t, int64(i), ev.ID)
	}
}

func TestDispatch_EmptyRecipient(t *testing.T) {
	dispatcher, _, _ := newTestDispatcher()

	_, err := dispatcher.Dispatch(context.Background(), "", entity.KindMessage, nil)
	assert.ErrorIs(t, err, ErrEmptyRecipient)
}

func TestDispatch_OfflineRecipientStored(t *testing.T) {
	dispatcher, store, _ := newTestDispatcher()
	ctx := context.Background()

	ev, err := dispatcher.Dispatch(ctx, "user-1", entity.KindFriendRequest, map[string]interface{}{"sender_id": "user-2"})
	assert.NoError(t, err)

	// No live channel: the event waits in the store for replay
	events, err := store.ListSince(ctx, "user-1", 0)
	assert.NoError(t, err)
	assert.Len(t, events, 1)
	assert.Equal(t, ev.ID, events[0].ID)
	assert.Equal(t, entity.KindFriendRequest, events[0].Kind)
}

func TestDispatch_DeliversToAllSessions(t *testing.T) {
	dispatcher, _, registry := newTestDispatcher()
	ctx := context.Background()

	ch1 := entity.NewChannel("user-9", "session-1", 8)
	ch2 := entity.NewChannel("user-9", "session-2", 8)
	registry.Register("user-9", ch1)
	registry.Register("user-9", ch2)

	ev, err := dispatcher.Dispatch(ctx, "user-9", entity.KindComment, nil)
	assert.NoError(t, err)

	got1 := <-ch1.Events()
	got2 := <-ch2.Events()
	assert.Equal(t, ev.ID, got1.ID)
	assert.Equal(t, ev.ID, got2.ID)
}

func TestDispatch_EvictsFailedChannel(t *testing.T) {
	dispatcher, _, registry := newTestDispatcher()
	ctx := context.Background()

	// A zero-buffer channel rejects every send, simulating a dropped session
	dead := entity.NewChannel("user-9", "dead", 0)
	healthy := entity.NewChannel("user-9", "healthy", 8)
	registry.Register("user-9", dead)
	registry.Register("user-9", healthy)

	ev, err := dispatcher.Dispatch(ctx, "user-9", entity.KindMessage, nil)
	assert.NoError(t, err, "dispatch succeeds even when a push fails")

	// The sibling still received the event
	got := <-healthy.Events()
	assert.Equal(t, ev.ID, got.ID)

	// The failed channel was removed and closed
	channels := registry.LiveChannelsFor("user-9")
	assert.Len(t, channels, 1)
	assert.Equal(t, "healthy", channels[0].SessionID)
	assert.True(t, dead.Closed())
}

type failingStore struct{}

func (failingStore) Append(context.Context, string, entity.Kind, map[string]interface{}) (*entity.Event, error) {
	return nil, errors.New("storage unavailable")
}

func (failingStore) ListSince(context.Context, string, int64) ([]entity.Event, error) {
	return nil, errors.New("storage unavailable")
}

func TestDispatch_StoreFailureSurfaced(t *testing.T) {
	dispatcher := NewDispatcher(failingStore{}, NewRegistry(), NewRecipientLocks(), nil, logger.New())

	_, err := dispatcher.Dispatch(context.Background(), "user-1", entity.KindMessage, nil)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "storage unavailable")
}

func TestDispatch_IndependentRecipients(t *testing.T) {
	dispatcher, store, _ := newTestDispatcher()
	ctx := context.Background()

	const recipients = 8
	const perRecipient = 20

	var wg sync.WaitGroup
	for r := 0; r < recipients; r++ {
		wg.Add(1)
		go func(r int) {
			defer wg.Done()
			userID := fmt.Sprintf("user-%d", r)
			for i := 0; i < perRecipient; i++ {
				_, err := dispatcher.Dispatch(ctx, userID, entity.KindMessage, nil)
				assert.NoError(t, err)
			}
		}(r)
	}
	wg.Wait()

	// Each recipient's sequence is gap-free regardless of interleaving
	for r := 0; r < recipients; r++ {
		events, err := store.ListSince(ctx, fmt.Sprintf("user-%d", r), 0)
		assert.NoError(t, err)
		assert.Len(t, events, perRecipient)
		for i, ev := range events {
			assert.Equal(t, int64(i+1), ev.ID)
		}
	}
}
