package room

import (
	"sort"
	"sync"

	"github.com/wfunc/blackout/models"
)

// Info is a point-in-time view of a room for inspection.
type Info struct {
	ID         string
	Members    []models.Member
	Authority  models.MemberID
	MaxPlayers int
}

// Manager 管理所有房间
type Manager struct {
	rooms      map[string]*Hub
	maxPlayers int
	store      PropertyStore
	opts       []Option
	mutex      sync.RWMutex
}

// NewRoomManager 创建一个新的房间管理器，新房间共享同一个属性存储
func NewRoomManager(maxPlayers int, store PropertyStore, opts ...Option) *Manager {
	return &Manager{
		rooms:      make(map[string]*Hub),
		maxPlayers: maxPlayers,
		store:      store,
		opts:       opts,
	}
}

// GetOrCreate returns the room with id, creating it on first use.
func (m *Manager) GetOrCreate(id string) *Hub {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if hub, exists := m.rooms[id]; exists {
		return hub
	}
	hub := NewHub(id, m.maxPlayers, m.store, m.opts...)
	m.rooms[id] = hub
	return hub
}

// GetRoom 从管理器中获取一个房间
func (m *Manager) GetRoom(id string) (*Hub, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	hub, exists := m.rooms[id]
	return hub, exists
}

// RemoveRoom 从管理器中移除并关闭一个房间
func (m *Manager) RemoveRoom(id string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if hub, exists := m.rooms[id]; exists {
		hub.Close()
		delete(m.rooms, id)
	}
}

// RemoveIfEmpty closes the room once its last member has left.
func (m *Manager) RemoveIfEmpty(id string) bool {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	hub, exists := m.rooms[id]
	if !exists || hub.Len() > 0 {
		return false
	}
	hub.Close()
	delete(m.rooms, id)
	return true
}

func (m *Manager) Count() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.rooms)
}

// List returns every room sorted by id.
func (m *Manager) List() []Info {
	m.mutex.RLock()
	hubs := make([]*Hub, 0, len(m.rooms))
	for _, hub := range m.rooms {
		hubs = append(hubs, hub)
	}
	m.mutex.RUnlock()

	infos := make([]Info, 0, len(hubs))
	for _, hub := range hubs {
		infos = append(infos, hub.Info())
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos
}

func (h *Hub) Info() Info {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return Info{
		ID:         h.ID,
		Members:    h.membersLocked(),
		Authority:  h.authorityLocked(),
		MaxPlayers: h.MaxPlayers,
	}
}
