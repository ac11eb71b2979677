// session/session.go
package session

import (
	"errors"
	"sync"
	"time"

	"github.com/wfunc/blackout/logger"
	"github.com/wfunc/blackout/models"
	"github.com/wfunc/blackout/network"
)

var ErrSessionClosed = errors.New("session closed")

// Session 一个 websocket 连接在中继服务上的会话。房间投递进入发送队列，
// 由 WritePump 顺序写出，慢连接不会阻塞整个房间。
type Session struct {
	ID        string
	Conn      network.Connection
	Member    models.Member
	RoomID    string
	CreatedAt time.Time

	send      chan network.Envelope
	done      chan struct{}
	closeOnce sync.Once

	mutex      sync.RWMutex
	lastActive time.Time
}

func NewSession(id string, conn network.Connection, queueSize int) *Session {
	if queueSize <= 0 {
		queueSize = 256
	}
	now := time.Now()
	return &Session{
		ID:         id,
		Conn:       conn,
		CreatedAt:  now,
		lastActive: now,
		send:       make(chan network.Envelope, queueSize),
		done:       make(chan struct{}),
	}
}

// Deliver queues an envelope for the write pump. A session whose queue is
// full is closed rather than allowed to stall the room.
func (s *Session) Deliver(env network.Envelope) {
	select {
	case <-s.done:
		return
	default:
	}

	select {
	case s.send <- env:
	default:
		logger.Log.Warnf("Session %s send queue full, closing", s.ID)
		s.Close()
	}
}

// WritePump writes queued envelopes in order until the session closes.
func (s *Session) WritePump() {
	for {
		select {
		case env := <-s.send:
			if err := network.SendEnvelope(s.Conn, env); err != nil {
				logger.Log.Infof("Session %s write failed: %v", s.ID, err)
				s.Close()
				return
			}
		case <-s.done:
			return
		}
	}
}

// Send writes an envelope immediately, bypassing the queue. Used for the
// welcome before the session joins a room.
func (s *Session) Send(env network.Envelope) error {
	select {
	case <-s.done:
		return ErrSessionClosed
	default:
	}
	return network.SendEnvelope(s.Conn, env)
}

func (s *Session) Touch() {
	s.mutex.Lock()
	s.lastActive = time.Now()
	s.mutex.Unlock()
}

func (s *Session) LastActive() time.Time {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.lastActive
}

func (s *Session) GetID() string {
	return s.ID
}

func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.Conn.Close()
	})
	return err
}

// Session管理器
type Manager struct {
	sessions map[string]*Session
	mutex    sync.RWMutex
}

func NewManager() *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
	}
}

func (m *Manager) Add(session *Session) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.sessions[session.ID] = session
}

func (m *Manager) Remove(sessionID string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	delete(m.sessions, sessionID)
}

func (m *Manager) Get(sessionID string) (*Session, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	session, exists := m.sessions[sessionID]
	return session, exists
}

func (m *Manager) GetByRoom(roomID string) []*Session {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	var result []*Session
	for _, session := range m.sessions {
		if session.RoomID == roomID {
			result = append(result, session)
		}
	}
	return result
}

func (m *Manager) Count() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.sessions)
}

// CloseIdle closes sessions that have been silent since before cutoff and
// returns how many it closed.
func (m *Manager) CloseIdle(cutoff time.Time) int {
	m.mutex.RLock()
	var idle []*Session
	for _, session := range m.sessions {
		if session.LastActive().Before(cutoff) {
			idle = append(idle, session)
		}
	}
	m.mutex.RUnlock()

	for _, session := range idle {
		session.Close()
	}
	return len(idle)
}
