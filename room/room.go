// room/room.go
package room

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/wfunc/blackout/logger"
	"github.com/wfunc/blackout/models"
	"github.com/wfunc/blackout/network"
)

var (
	ErrRoomFull          = errors.New("room is full")
	ErrRoomClosed        = errors.New("room is closed")
	ErrRoomNotFound      = errors.New("room not found")
	ErrMemberNotFound    = errors.New("member not in room")
	ErrDuplicateMember   = errors.New("member already in room")
	ErrNotAuthority      = errors.New("sender is not the room authority")
	ErrNotRoutable       = errors.New("message type is not routable between members")
	ErrPropertyForbidden = errors.New("writer may not set this property")
)

// knownProperties are replayed to members when they join.
var knownProperties = []string{models.PropIsDead, models.PropIsReady}

const defaultStoreTimeout = 2 * time.Second

// Hub 房间：成员列表、权威选举、按发送者有序的消息转发和成员属性存储。
// Delivery happens under the hub lock, so messages from one sender reach every
// recipient in the order they were sent.
type Hub struct {
	ID           string
	MaxPlayers   int
	CreatedAt    time.Time
	store        PropertyStore
	recorder     Recorder
	now          func() time.Time
	storeTimeout time.Duration

	mutex   sync.Mutex
	members []*Endpoint // join order; the first is the authority
	closed  bool
}

type Option func(*Hub)

// WithClock replaces the room service clock used for shared deadlines.
func WithClock(now func() time.Time) Option {
	return func(h *Hub) { h.now = now }
}

func WithRecorder(r Recorder) Option {
	return func(h *Hub) {
		if r != nil {
			h.recorder = r
		}
	}
}

func WithStoreTimeout(d time.Duration) Option {
	return func(h *Hub) { h.storeTimeout = d }
}

// NewHub 创建一个新房间
func NewHub(id string, maxPlayers int, store PropertyStore, opts ...Option) *Hub {
	h := &Hub{
		ID:           id,
		MaxPlayers:   maxPlayers,
		CreatedAt:    time.Now(),
		store:        store,
		recorder:     nopRecorder{},
		now:          time.Now,
		storeTimeout: defaultStoreTimeout,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Join adds a member. The receiver gets the current roster and the member's
// view of existing properties before any game traffic.
func (h *Hub) Join(member models.Member, receiver network.Receiver) (*Endpoint, error) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if h.closed {
		return nil, ErrRoomClosed
	}
	if h.find(member.ID) != nil {
		return nil, ErrDuplicateMember
	}
	if len(h.members) >= h.MaxPlayers {
		return nil, ErrRoomFull
	}

	ep := &Endpoint{hub: h, member: member, receiver: receiver}
	h.members = append(h.members, ep)
	h.recorder.MemberJoined()
	logger.Log.Infof("Member %s (%s) joined room %s", member.ID, member.Name, h.ID)

	h.broadcastRosterLocked()
	h.replayPropertiesLocked(ep)
	return ep, nil
}

// Leave removes a member and re-elects the authority if it was the one leaving.
func (h *Hub) Leave(id models.MemberID) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	idx := -1
	for i, ep := range h.members {
		if ep.member.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return
	}

	wasAuthority := idx == 0
	h.members = append(h.members[:idx], h.members[idx+1:]...)
	h.recorder.MemberLeft()

	ctx, cancel := context.WithTimeout(context.Background(), h.storeTimeout)
	defer cancel()
	if err := h.store.DeleteMember(ctx, h.ID, id); err != nil {
		logger.Log.Warnf("Failed to drop properties of %s in room %s: %v", id, h.ID, err)
	}

	if wasAuthority && len(h.members) > 0 {
		logger.Log.Infof("Authority of room %s moved from %s to %s", h.ID, id, h.members[0].member.ID)
	}
	logger.Log.Infof("Member %s left room %s", id, h.ID)
	h.broadcastRosterLocked()
}

// Authority returns the elected member, or "" for an empty room.
func (h *Hub) Authority() models.MemberID {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return h.authorityLocked()
}

func (h *Hub) authorityLocked() models.MemberID {
	if len(h.members) == 0 {
		return ""
	}
	return h.members[0].member.ID
}

// Members returns members in join order.
func (h *Hub) Members() []models.Member {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return h.membersLocked()
}

func (h *Hub) membersLocked() []models.Member {
	out := make([]models.Member, 0, len(h.members))
	for _, ep := range h.members {
		out = append(out, ep.member)
	}
	return out
}

func (h *Hub) Len() int {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return len(h.members)
}

func (h *Hub) Now() time.Time {
	return h.now()
}

// Send routes a game message from a member by its scope. The sender identity
// is stamped here and never taken from the payload.
func (h *Hub) Send(from models.MemberID, msg network.Message) error {
	msgID := msg.MsgID()
	scope := network.ScopeOf(msgID)
	if scope == network.ScopeRelay {
		return ErrNotRoutable
	}

	h.mutex.Lock()
	defer h.mutex.Unlock()

	if h.find(from) == nil {
		return ErrMemberNotFound
	}
	authority := h.authorityLocked()
	if network.AuthorityOnly(msgID) && from != authority {
		return ErrNotAuthority
	}

	env := network.Envelope{Sender: from, Message: msg}
	switch scope {
	case network.ScopeAll:
		for _, ep := range h.members {
			if ep.member.ID != from {
				ep.deliver(env)
			}
		}
	case network.ScopeAuthority:
		if from != authority {
			h.find(authority).deliver(env)
		}
	}
	h.recorder.MessageRelayed(msgID)
	return nil
}

// SetProperty writes a replicated property and broadcasts the change to every
// member. IsReady is writable only by its owner, IsDead only by the authority.
func (h *Hub) SetProperty(writer, member models.MemberID, key string, value bool) error {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if h.find(writer) == nil || h.find(member) == nil {
		return ErrMemberNotFound
	}
	switch key {
	case models.PropIsDead:
		if writer != h.authorityLocked() {
			return ErrPropertyForbidden
		}
	default:
		if writer != member {
			return ErrPropertyForbidden
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.storeTimeout)
	defer cancel()
	if err := h.store.SetProperty(ctx, h.ID, member, key, value); err != nil {
		return err
	}

	env := network.Envelope{Message: network.PropertyChanged{Member: member, Key: key, Value: value}}
	for _, ep := range h.members {
		ep.deliver(env)
	}
	return nil
}

// Property reads a replicated property. Store failures read as unset.
func (h *Hub) Property(member models.MemberID, key string) (bool, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), h.storeTimeout)
	defer cancel()

	value, ok, err := h.store.GetProperty(ctx, h.ID, member, key)
	if err != nil {
		logger.Log.Warnf("Failed to read %s of %s in room %s: %v", key, member, h.ID, err)
		return false, false
	}
	return value, ok
}

// Close drops every member and the room's properties.
func (h *Hub) Close() {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for range h.members {
		h.recorder.MemberLeft()
	}
	h.members = nil

	ctx, cancel := context.WithTimeout(context.Background(), h.storeTimeout)
	defer cancel()
	if err := h.store.DeleteRoom(ctx, h.ID); err != nil {
		logger.Log.Warnf("Failed to drop properties of room %s: %v", h.ID, err)
	}
}

func (h *Hub) find(id models.MemberID) *Endpoint {
	for _, ep := range h.members {
		if ep.member.ID == id {
			return ep
		}
	}
	return nil
}

func (h *Hub) broadcastRosterLocked() {
	env := network.Envelope{Message: network.Roster{
		Members:   h.membersLocked(),
		Authority: h.authorityLocked(),
	}}
	for _, ep := range h.members {
		ep.deliver(env)
	}
}

func (h *Hub) replayPropertiesLocked(to *Endpoint) {
	ctx, cancel := context.WithTimeout(context.Background(), h.storeTimeout)
	defer cancel()

	for _, ep := range h.members {
		for _, key := range knownProperties {
			value, ok, err := h.store.GetProperty(ctx, h.ID, ep.member.ID, key)
			if err != nil || !ok {
				continue
			}
			to.deliver(network.Envelope{Message: network.PropertyChanged{Member: ep.member.ID, Key: key, Value: value}})
		}
	}
}

// Endpoint is one member's handle on the hub. It satisfies the engine's
// transport, roster, property and clock contracts for in-process members.
type Endpoint struct {
	hub      *Hub
	member   models.Member
	receiver network.Receiver
}

func (ep *Endpoint) deliver(env network.Envelope) {
	if ep.receiver != nil {
		ep.receiver.Deliver(env)
	}
}

func (ep *Endpoint) Member() models.Member {
	return ep.member
}

func (ep *Endpoint) Send(msg network.Message) error {
	return ep.hub.Send(ep.member.ID, msg)
}

func (ep *Endpoint) LocalID() models.MemberID {
	return ep.member.ID
}

func (ep *Endpoint) AuthorityID() models.MemberID {
	return ep.hub.Authority()
}

func (ep *Endpoint) Members() []models.Member {
	return ep.hub.Members()
}

func (ep *Endpoint) Bool(member models.MemberID, key string) (bool, bool) {
	return ep.hub.Property(member, key)
}

func (ep *Endpoint) SetBool(member models.MemberID, key string, value bool) error {
	return ep.hub.SetProperty(ep.member.ID, member, key, value)
}

func (ep *Endpoint) Now() time.Time {
	return ep.hub.Now()
}

func (ep *Endpoint) Leave() {
	ep.hub.Leave(ep.member.ID)
}
