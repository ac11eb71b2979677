package network

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wfunc/blackout/logger"
	"github.com/wfunc/blackout/models"
)

var ErrHandshake = errors.New("room service handshake failed")

// Client is a member's link to a relay room service over websocket. It keeps
// local replicas of the roster and of replicated properties, and estimates
// the service clock from the welcome message.
type Client struct {
	conn   Connection
	local  models.Member
	room   string
	offset time.Duration

	mu        sync.RWMutex
	members   []models.Member
	authority models.MemberID
	props     map[models.MemberID]map[string]bool
}

// Dial connects to ws://addr/ws and joins room under name.
func Dial(ctx context.Context, addr, room, name string) (*Client, error) {
	u := url.URL{Scheme: "ws", Host: addr, Path: "/ws"}
	q := u.Query()
	q.Set("room", room)
	q.Set("name", name)
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", u.String(), err)
	}

	c, err := NewClient(NewWSConnection(conn))
	if err != nil {
		conn.Close()
		return nil, err
	}
	return c, nil
}

// NewClient performs the handshake on an established connection: the first
// packet must be a Welcome.
func NewClient(conn Connection) (*Client, error) {
	packet, err := conn.ReadPacket()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHandshake, err)
	}
	env, err := DecodeEnvelope(packet)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHandshake, err)
	}
	welcome, ok := env.Message.(Welcome)
	if !ok {
		return nil, fmt.Errorf("%w: expected welcome, got message %d", ErrHandshake, packet.MsgID)
	}

	return &Client{
		conn:   conn,
		local:  welcome.Member,
		room:   welcome.Room,
		offset: time.Until(welcome.ServerTime),
		props:  make(map[models.MemberID]map[string]bool),
	}, nil
}

// Run reads packets until the connection fails or ctx is done, updating the
// replicas and forwarding every envelope to receiver.
func (c *Client) Run(ctx context.Context, receiver Receiver, heartbeat time.Duration) error {
	if heartbeat > 0 {
		go c.heartbeatLoop(ctx, heartbeat)
	}
	go func() {
		<-ctx.Done()
		c.conn.Close()
	}()

	for {
		packet, err := c.conn.ReadPacket()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		env, err := DecodeEnvelope(packet)
		if err != nil {
			logger.Log.Warnf("Dropping undecodable packet %d: %v", packet.MsgID, err)
			continue
		}
		c.observe(env)
		receiver.Deliver(env)
	}
}

func (c *Client) heartbeatLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := SendMessage(c.conn, Heartbeat{}); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (c *Client) observe(env Envelope) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch m := env.Message.(type) {
	case Roster:
		c.members = append([]models.Member(nil), m.Members...)
		c.authority = m.Authority
		present := make(map[models.MemberID]bool, len(m.Members))
		for _, member := range m.Members {
			present[member.ID] = true
		}
		for id := range c.props {
			if !present[id] {
				delete(c.props, id)
			}
		}
	case PropertyChanged:
		if c.props[m.Member] == nil {
			c.props[m.Member] = make(map[string]bool)
		}
		c.props[m.Member][m.Key] = m.Value
	case Error:
		logger.Log.Warnf("Room service error: %s", m.Message)
	}
}

// Send writes a game message; the relay routes it by its scope.
func (c *Client) Send(m Message) error {
	return SendMessage(c.conn, m)
}

func (c *Client) LocalID() models.MemberID {
	return c.local.ID
}

func (c *Client) Room() string {
	return c.room
}

func (c *Client) AuthorityID() models.MemberID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.authority
}

func (c *Client) Members() []models.Member {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]models.Member(nil), c.members...)
}

// Bool reads the local replica of a property.
func (c *Client) Bool(member models.MemberID, key string) (bool, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	value, ok := c.props[member][key]
	return value, ok
}

// SetBool asks the relay to write a property. The replica updates when the
// relay broadcasts the change back.
func (c *Client) SetBool(member models.MemberID, key string, value bool) error {
	return c.Send(SetProperty{Member: member, Key: key, Value: value})
}

// Now estimates the room service clock.
func (c *Client) Now() time.Time {
	return time.Now().Add(c.offset)
}

func (c *Client) Close() error {
	return c.conn.Close()
}
