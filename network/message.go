package network

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/wfunc/blackout/models"
)

var ErrUnknownMessage = errors.New("unknown message type")

// Message is a typed payload carried in a packet.
type Message interface {
	MsgID() uint16
}

type Heartbeat struct{}

// RequestMeeting asks the authority to open a meeting.
type RequestMeeting struct{}

// SetPhase carries phase and deadline together so they are never observed apart.
type SetPhase struct {
	State models.SessionState `json:"state"`
}

// CastVote is a ballot. The voter is the envelope sender.
type CastVote struct {
	Target  models.MemberID `json:"target"`
	Meeting uint32          `json:"meeting"`
}

type ShowResult struct {
	Meeting    uint32          `json:"meeting"`
	Message    string          `json:"message"`
	Eliminated models.MemberID `json:"eliminated,omitempty"`
}

// SyncState is the authority's periodic resync of clock and phase.
type SyncState struct {
	State models.SessionState `json:"state"`
}

type Welcome struct {
	Member     models.Member `json:"member"`
	Room       string        `json:"room"`
	ServerTime time.Time     `json:"server_time"`
}

type Roster struct {
	Members   []models.Member `json:"members"`
	Authority models.MemberID `json:"authority"`
}

// SetProperty asks the room service to write a replicated property.
type SetProperty struct {
	Member models.MemberID `json:"member"`
	Key    string          `json:"key"`
	Value  bool            `json:"value"`
}

type PropertyChanged struct {
	Member models.MemberID `json:"member"`
	Key    string          `json:"key"`
	Value  bool            `json:"value"`
}

type Error struct {
	Message string `json:"message"`
}

func (Heartbeat) MsgID() uint16       { return MsgTypeHeartbeat }
func (RequestMeeting) MsgID() uint16  { return MsgTypeRequestMeeting }
func (SetPhase) MsgID() uint16        { return MsgTypeSetPhase }
func (CastVote) MsgID() uint16        { return MsgTypeCastVote }
func (ShowResult) MsgID() uint16      { return MsgTypeShowResult }
func (SyncState) MsgID() uint16       { return MsgTypeSyncState }
func (Welcome) MsgID() uint16         { return MsgTypeWelcome }
func (Roster) MsgID() uint16          { return MsgTypeRoster }
func (SetProperty) MsgID() uint16     { return MsgTypeSetProperty }
func (PropertyChanged) MsgID() uint16 { return MsgTypePropertyChanged }
func (Error) MsgID() uint16           { return MsgTypeError }

// Envelope is a message as delivered by the room service, stamped with the
// identity of the member that sent it. Room-service messages have no sender.
type Envelope struct {
	Sender  models.MemberID
	Message Message
}

type wireEnvelope struct {
	Sender models.MemberID `json:"sender,omitempty"`
	Body   json.RawMessage `json:"body"`
}

func newMessage(msgID uint16) (Message, error) {
	switch msgID {
	case MsgTypeHeartbeat:
		return &Heartbeat{}, nil
	case MsgTypeRequestMeeting:
		return &RequestMeeting{}, nil
	case MsgTypeSetPhase:
		return &SetPhase{}, nil
	case MsgTypeCastVote:
		return &CastVote{}, nil
	case MsgTypeShowResult:
		return &ShowResult{}, nil
	case MsgTypeSyncState:
		return &SyncState{}, nil
	case MsgTypeWelcome:
		return &Welcome{}, nil
	case MsgTypeRoster:
		return &Roster{}, nil
	case MsgTypeSetProperty:
		return &SetProperty{}, nil
	case MsgTypePropertyChanged:
		return &PropertyChanged{}, nil
	case MsgTypeError:
		return &Error{}, nil
	}
	return nil, fmt.Errorf("%w: %d", ErrUnknownMessage, msgID)
}

// deref turns the pointer produced by newMessage back into a value message so
// that type switches on decoded and locally built messages agree.
func deref(m Message) Message {
	switch v := m.(type) {
	case *Heartbeat:
		return *v
	case *RequestMeeting:
		return *v
	case *SetPhase:
		return *v
	case *CastVote:
		return *v
	case *ShowResult:
		return *v
	case *SyncState:
		return *v
	case *Welcome:
		return *v
	case *Roster:
		return *v
	case *SetProperty:
		return *v
	case *PropertyChanged:
		return *v
	case *Error:
		return *v
	}
	return m
}

// EncodeMessage serialises a message body as sent by a member.
func EncodeMessage(m Message) ([]byte, error) {
	return json.Marshal(m)
}

// DecodeMessage parses a member-sent body.
func DecodeMessage(msgID uint16, data []byte) (Message, error) {
	m, err := newMessage(msgID)
	if err != nil {
		return nil, err
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, m); err != nil {
			return nil, fmt.Errorf("failed to unmarshal message %d: %w", msgID, err)
		}
	}
	return deref(m), nil
}

// EncodeEnvelope serialises an envelope as delivered by the room service.
func EncodeEnvelope(env Envelope) (uint16, []byte, error) {
	body, err := json.Marshal(env.Message)
	if err != nil {
		return 0, nil, err
	}
	data, err := json.Marshal(wireEnvelope{Sender: env.Sender, Body: body})
	if err != nil {
		return 0, nil, err
	}
	return env.Message.MsgID(), data, nil
}

// DecodeEnvelope parses a packet delivered by the room service.
func DecodeEnvelope(packet *Packet) (Envelope, error) {
	var wire wireEnvelope
	if err := json.Unmarshal(packet.Data, &wire); err != nil {
		return Envelope{}, fmt.Errorf("failed to unmarshal envelope %d: %w", packet.MsgID, err)
	}
	msg, err := DecodeMessage(packet.MsgID, wire.Body)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Sender: wire.Sender, Message: msg}, nil
}
