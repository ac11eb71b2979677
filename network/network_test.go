package network

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wfunc/blackout/models"
)

// MockConnection replays queued packets and records sends.
type MockConnection struct {
	mu     sync.Mutex
	reads  []*Packet
	sent   []*Packet
	closed bool
}

func (m *MockConnection) queue(t *testing.T, env Envelope) {
	t.Helper()
	msgID, data, err := EncodeEnvelope(env)
	require.NoError(t, err)
	m.reads = append(m.reads, &Packet{MsgID: msgID, Data: data, Length: uint16(len(data))})
}

func (m *MockConnection) Send(msgID uint16, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, &Packet{MsgID: msgID, Data: data})
	return nil
}

func (m *MockConnection) ReadPacket() (*Packet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.reads) == 0 {
		return nil, io.EOF
	}
	p := m.reads[0]
	m.reads = m.reads[1:]
	return p, nil
}

func (m *MockConnection) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}
func (m *MockConnection) RemoteAddr() net.Addr                { return &net.TCPAddr{} }
func (m *MockConnection) SetHeartbeat(interval time.Duration) {}

func TestScopeOf(t *testing.T) {
	assert.Equal(t, ScopeAuthority, ScopeOf(MsgTypeRequestMeeting))
	assert.Equal(t, ScopeAll, ScopeOf(MsgTypeSetPhase))
	assert.Equal(t, ScopeAll, ScopeOf(MsgTypeCastVote))
	assert.Equal(t, ScopeAll, ScopeOf(MsgTypeShowResult))
	assert.Equal(t, ScopeAll, ScopeOf(MsgTypeSyncState))
	assert.Equal(t, ScopeRelay, ScopeOf(MsgTypeSetProperty))

	assert.True(t, AuthorityOnly(MsgTypeSetPhase))
	assert.False(t, AuthorityOnly(MsgTypeCastVote))
}

func TestEnvelope_SetPhaseKeepsDeadlineWithPhase(t *testing.T) {
	deadline := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	env := Envelope{
		Sender: "auth",
		Message: SetPhase{State: models.SessionState{
			Phase:    models.PhaseVoting,
			Deadline: deadline,
			Meeting:  4,
		}},
	}

	msgID, data, err := EncodeEnvelope(env)
	require.NoError(t, err)
	assert.Equal(t, uint16(MsgTypeSetPhase), msgID)

	decoded, err := DecodeEnvelope(&Packet{MsgID: msgID, Data: data})
	require.NoError(t, err)
	assert.Equal(t, models.MemberID("auth"), decoded.Sender)

	sp, ok := decoded.Message.(SetPhase)
	require.True(t, ok, "decoded message should be a SetPhase value")
	assert.Equal(t, models.PhaseVoting, sp.State.Phase)
	assert.True(t, sp.State.Deadline.Equal(deadline))
	assert.Equal(t, uint32(4), sp.State.Meeting)
}

func TestDecodeMessage_EmptyBody(t *testing.T) {
	m, err := DecodeMessage(MsgTypeRequestMeeting, nil)
	require.NoError(t, err)
	assert.Equal(t, RequestMeeting{}, m)
}

func TestDecodeMessage_Unknown(t *testing.T) {
	_, err := DecodeMessage(9999, []byte(`{}`))
	assert.ErrorIs(t, err, ErrUnknownMessage)
}

func TestInbox_PreservesOrder(t *testing.T) {
	in := NewInbox()
	for i := 0; i < 3; i++ {
		in.Deliver(Envelope{Sender: "a", Message: CastVote{Meeting: uint32(i)}})
	}
	assert.Equal(t, 3, in.Len())

	got := in.Drain()
	require.Len(t, got, 3)
	for i, env := range got {
		assert.Equal(t, uint32(i), env.Message.(CastVote).Meeting)
	}
	assert.Empty(t, in.Drain())
}

func TestClient_HandshakeAndReplicas(t *testing.T) {
	conn := &MockConnection{}
	conn.queue(t, Envelope{Message: Welcome{
		Member:     models.Member{ID: "me", Name: "Me"},
		Room:       "r1",
		ServerTime: time.Now().Add(time.Hour),
	}})
	conn.queue(t, Envelope{Message: Roster{
		Members:   []models.Member{{ID: "me", Name: "Me"}, {ID: "other", Name: "Other"}},
		Authority: "other",
	}})
	conn.queue(t, Envelope{Message: PropertyChanged{Member: "other", Key: models.PropIsReady, Value: true}})
	conn.queue(t, Envelope{Sender: "other", Message: RequestMeeting{}})

	c, err := NewClient(conn)
	require.NoError(t, err)
	assert.Equal(t, models.MemberID("me"), c.LocalID())
	assert.Equal(t, "r1", c.Room())
	assert.WithinDuration(t, time.Now().Add(time.Hour), c.Now(), time.Minute)

	inbox := NewInbox()
	err = c.Run(context.Background(), inbox, 0)
	assert.True(t, errors.Is(err, io.EOF))

	assert.Equal(t, models.MemberID("other"), c.AuthorityID())
	assert.Len(t, c.Members(), 2)
	ready, ok := c.Bool("other", models.PropIsReady)
	assert.True(t, ok)
	assert.True(t, ready)

	delivered := inbox.Drain()
	require.Len(t, delivered, 3)
	assert.Equal(t, models.MemberID("other"), delivered[2].Sender)
}

func TestClient_HandshakeRequiresWelcome(t *testing.T) {
	conn := &MockConnection{}
	conn.queue(t, Envelope{Message: Roster{}})

	_, err := NewClient(conn)
	assert.ErrorIs(t, err, ErrHandshake)
}

func TestClient_SendEncodesBody(t *testing.T) {
	conn := &MockConnection{}
	conn.queue(t, Envelope{Message: Welcome{Member: models.Member{ID: "me"}, ServerTime: time.Now()}})
	c, err := NewClient(conn)
	require.NoError(t, err)

	require.NoError(t, c.Send(CastVote{Target: "x", Meeting: 2}))
	require.NoError(t, c.SetBool("me", models.PropIsReady, true))

	require.Len(t, conn.sent, 2)
	vote, err := DecodeMessage(conn.sent[0].MsgID, conn.sent[0].Data)
	require.NoError(t, err)
	assert.Equal(t, CastVote{Target: "x", Meeting: 2}, vote)

	prop, err := DecodeMessage(conn.sent[1].MsgID, conn.sent[1].Data)
	require.NoError(t, err)
	assert.Equal(t, SetProperty{Member: "me", Key: models.PropIsReady, Value: true}, prop)
}

func TestFrame_RoundTripAndTruncation(t *testing.T) {
	frame, err := EncodeFrame(MsgTypeCastVote, []byte(`{"target":"b"}`))
	require.NoError(t, err)

	p, err := DecodeFrame(frame)
	require.NoError(t, err)
	assert.Equal(t, uint16(MsgTypeCastVote), p.MsgID)
	assert.Equal(t, `{"target":"b"}`, string(p.Data))

	_, err = DecodeFrame(frame[:3])
	assert.ErrorIs(t, err, io.ErrShortBuffer)
	_, err = DecodeFrame(frame[:len(frame)-1])
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)

	_, err = EncodeFrame(MsgTypeCastVote, make([]byte, 1<<16))
	assert.ErrorIs(t, err, ErrPacketTooLarge)
}
