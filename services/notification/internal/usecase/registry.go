package usecase

import (
	"hash/fnv"
	"sync"

	"harulog/services/notification/internal/entity"
)

const registryShards = 32

// Registry maps a user id to that user's live channels, one per connected
// session. It is sharded by user so sessions of unrelated users never
// contend on the same lock.
type Registry struct {
	shards [registryShards]registryShard
}

type registryShard struct {
	mu    sync.RWMutex
	users map[string]map[string]*entity.Channel
}

func NewRegistry() *Registry {
	r := &Registry{}
	for i := range r.shards {
		r.shards[i].users = make(map[string]map[string]*entity.Channel)
	}
	return r
}

func (r *Registry) shard(userID string) *registryShard {
	h := fnv.New32a()
	h.Write([]byte(userID))
	return &r.shards[h.Sum32()%registryShards]
}

// Register adds a channel to the user's live set. The channel becomes a
// delivery target for every subsequent dispatch to that user.
func (r *Registry) Register(userID string, ch *entity.Channel) {
	s := r.shard(userID)
	s.mu.Lock()
	defer s.mu.Unlock()

	sessions := s.users[userID]
	if sessions == nil {
		sessions = make(map[string]*entity.Channel)
		s.users[userID] = sessions
	}
	sessions[ch.SessionID] = ch
}

// Unregister removes one session. Removing an absent session is a no-op;
// the user's entry is dropped once its last session is gone.
func (r *Registry) Unregister(userID, sessionID string) {
	s := r.shard(userID)
	s.mu.Lock()
	defer s.mu.Unlock()

	sessions, ok := s.users[userID]
	if !ok {
		return
	}
	delete(sessions, sessionID)
	if len(sessions) == 0 {
		delete(s.users, userID)
	}
}

// LiveChannelsFor returns a snapshot of the user's live channels. The
// snapshot is a copy; callers iterate it without holding any registry lock.
func (r *Registry) LiveChannelsFor(userID string) []*entity.Channel {
	s := r.shard(userID)
	s.mu.RLock()
	defer s.mu.RUnlock()

	sessions := s.users[userID]
	if len(sessions) == 0 {
		return nil
	}
	channels := make([]*entity.Channel, 0, len(sessions))
	for _, ch := range sessions {
		channels = append(channels, ch)
	}
	return channels
}

const lockStripes = 64

// RecipientLocks serializes the operations that must not interleave for one
// recipient: the dispatcher's append+push and the lifecycle manager's
// replay+register. Striped so unrelated recipients proceed in parallel.
type RecipientLocks struct {
	stripes [lockStripes]sync.Mutex
}

func NewRecipientLocks() *RecipientLocks {
	return &RecipientLocks{}
}

func (l *RecipientLocks) stripe(recipientID string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(recipientID))
	return &l.stripes[h.Sum32()%lockStripes]
}

func (l *RecipientLocks) Lock(recipientID string) {
	l.stripe(recipientID).Lock()
}

func (l *RecipientLocks) Unlock(recipientID string) {
	l.stripe(recipientID).Unlock()
}
