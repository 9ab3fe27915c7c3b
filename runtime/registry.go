package runtime

import (
	"chat-notify/contract"
	"chat-notify/domain"
	"encoding/binary"
	"sort"
	"sync"

	"github.com/cespare/xxhash/v2"
)

const defaultShardCount = 32

type sessionSet map[domain.SessionID]contract.EventSink

type shard struct {
	mu    sync.RWMutex
	users map[domain.UserID]sessionSet
}

// Registry tracks live sessions by user.
// Users are spread over independently locked shards, so churn for one user
// only contends with users hashing to the same shard.
type Registry struct {
	shards []*shard
}

func NewRegistry() *Registry {
	return NewRegistryWithShards(defaultShardCount)
}

func NewRegistryWithShards(count int) *Registry {
	if count < 1 {
		count = 1
	}
	shards := make([]*shard, count)
	for i := range shards {
		shards[i] = &shard{users: make(map[domain.UserID]sessionSet)}
	}
	return &Registry{shards: shards}
}

func (r *Registry) shardFor(userID domain.UserID) *shard {
	var key [8]byte
	binary.LittleEndian.PutUint64(key[:], uint64(userID))
	return r.shards[xxhash.Sum64(key[:])%uint64(len(r.shards))]
}

// Register adds a live session for a user. Registering the same session twice is a no-op.
func (r *Registry) Register(userID domain.UserID, sink contract.EventSink) {
	s := r.shardFor(userID)
	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.users[userID]
	if !ok {
		set = make(sessionSet)
		s.users[userID] = set
	}
	set[sink.ID()] = sink
}

// Deregister removes a session. Unknown sessions are ignored.
// The user entry is dropped with its last session.
func (r *Registry) Deregister(userID domain.UserID, sink contract.EventSink) {
	s := r.shardFor(userID)
	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.users[userID]
	if !ok {
		return
	}
	delete(set, sink.ID())
	if len(set) == 0 {
		delete(s.users, userID)
	}
}

// SessionsFor returns a snapshot of the user's sessions.
// The slice is owned by the caller and is not affected by later registrations.
func (r *Registry) SessionsFor(userID domain.UserID) []contract.EventSink {
	s := r.shardFor(userID)
	s.mu.RLock()
	defer s.mu.RUnlock()

	set, ok := s.users[userID]
	if !ok {
		return nil
	}
	sinks := make([]contract.EventSink, 0, len(set))
	for _, sink := range set {
		sinks = append(sinks, sink)
	}
	return sinks
}

// Count is the number of live sessions.
func (r *Registry) Count() int {
	total := 0
	for _, s := range r.shards {
		s.mu.RLock()
		for _, set := range s.users {
			total += len(set)
		}
		s.mu.RUnlock()
	}
	return total
}

// Users is the number of users with at least one live session.
func (r *Registry) Users() int {
	total := 0
	for _, s := range r.shards {
		s.mu.RLock()
		total += len(s.users)
		s.mu.RUnlock()
	}
	return total
}

// Snapshot lists every live session; each user's sessions are sorted by id.
func (r *Registry) Snapshot() map[domain.UserID][]contract.EventSink {
	out := make(map[domain.UserID][]contract.EventSink)
	for _, s := range r.shards {
		s.mu.RLock()
		for userID, set := range s.users {
			sinks := make([]contract.EventSink, 0, len(set))
			for _, sink := range set {
				sinks = append(sinks, sink)
			}
			sort.Slice(sinks, func(i, j int) bool {
				return sinks[i].ID().String() < sinks[j].ID().String()
			})
			out[userID] = sinks
		}
		s.mu.RUnlock()
	}
	return out
}
