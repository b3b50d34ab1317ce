package api

import (
	"sync"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/google/uuid"
)

// requestsCache maps request ids to their conductor actors so status can be
// queried after the request was accepted.
type requestsCache struct {
	mu  sync.RWMutex
	ids map[uuid.UUID]*actor.PID
}

func newRequestsCache() *requestsCache {
	return &requestsCache{
		ids: map[uuid.UUID]*actor.PID{},
	}
}

func (s *requestsCache) remove(id uuid.UUID) {
	s.mu.Lock()
	delete(s.ids, id)
	s.mu.Unlock()
}

func (s *requestsCache) add(id uuid.UUID, pid *actor.PID) {
	s.mu.Lock()
	s.ids[id] = pid
	s.mu.Unlock()
}

func (s *requestsCache) get(id uuid.UUID) (*actor.PID, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pid, ok := s.ids[id]
	return pid, ok
}
