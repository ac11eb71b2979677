package game

import (
	"time"

	"github.com/wfunc/blackout/models"
	"github.com/wfunc/blackout/network"
)

// Transport sends a game message; the room service routes it by scope and
// stamps the sender.
type Transport interface {
	Send(msg network.Message) error
}

// Roster is the room service's membership view. The authority is elected by
// the room service, never by the engine.
type Roster interface {
	LocalID() models.MemberID
	AuthorityID() models.MemberID
	Members() []models.Member
}

// Properties are replicated per-member flags.
type Properties interface {
	Bool(member models.MemberID, key string) (value bool, ok bool)
	SetBool(member models.MemberID, key string, value bool) error
}

// Clock is the room service's shared clock, used for voting deadlines.
type Clock interface {
	Now() time.Time
}

// Link is everything an engine needs from the room service. room.Endpoint
// and network.Client both satisfy it.
type Link interface {
	Transport
	Roster
	Properties
	Clock
}

// Recorder receives game statistics. monitor.Monitor implements it.
type Recorder interface {
	MeetingStarted()
	BallotCounted()
	VoteResolved(eliminated bool)
	PhaseChanged(phase models.Phase)
}

type nopRecorder struct{}

func (nopRecorder) MeetingStarted()           {}
func (nopRecorder) BallotCounted()            {}
func (nopRecorder) VoteResolved(bool)         {}
func (nopRecorder) PhaseChanged(models.Phase) {}
