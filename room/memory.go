package room

import (
	"context"
	"sync"

	"github.com/wfunc/blackout/models"
)

// MemoryStore keeps properties in process memory.
type MemoryStore struct {
	mutex sync.RWMutex
	rooms map[string]map[models.MemberID]map[string]bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rooms: make(map[string]map[models.MemberID]map[string]bool)}
}

func (s *MemoryStore) SetProperty(_ context.Context, roomID string, member models.MemberID, key string, value bool) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	members, ok := s.rooms[roomID]
	if !ok {
		members = make(map[models.MemberID]map[string]bool)
		s.rooms[roomID] = members
	}
	props, ok := members[member]
	if !ok {
		props = make(map[string]bool)
		members[member] = props
	}
	props[key] = value
	return nil
}

func (s *MemoryStore) GetProperty(_ context.Context, roomID string, member models.MemberID, key string) (bool, bool, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	value, ok := s.rooms[roomID][member][key]
	return value, ok, nil
}

func (s *MemoryStore) DeleteMember(_ context.Context, roomID string, member models.MemberID) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	delete(s.rooms[roomID], member)
	return nil
}

func (s *MemoryStore) DeleteRoom(_ context.Context, roomID string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	delete(s.rooms, roomID)
	return nil
}
