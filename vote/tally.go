package vote

import (
	"errors"

	"github.com/wfunc/blackout/models"
)

var (
	ErrNotVoting       = errors.New("no meeting in progress")
	ErrAlreadyVoted    = errors.New("voter already cast a ballot this meeting")
	ErrVoterEliminated = errors.New("eliminated members cannot vote")
	ErrUnknownVoter    = errors.New("voter is not a room member")
	ErrInvalidTarget   = errors.New("target is not a living member")
	ErrStaleMeeting    = errors.New("ballot belongs to another meeting")
	ErrResolved        = errors.New("meeting already resolved")
)

// Ballot is one member's vote. Voter always comes from the transport, never
// from the payload.
type Ballot struct {
	Voter   models.MemberID
	Target  models.MemberID
	Meeting uint32
}

// Electorate answers membership questions at the moment a ballot is counted.
type Electorate interface {
	IsMember(id models.MemberID) bool
	IsAlive(id models.MemberID) bool
}

// Tally 投票统计，仅由权威成员持有，离开投票阶段即丢弃
type Tally struct {
	meeting  uint32
	ballots  []Ballot
	voters   map[models.MemberID]bool
	resolved bool
	outcome  Outcome
}

func NewTally(meeting uint32) *Tally {
	return &Tally{
		meeting: meeting,
		voters:  make(map[models.MemberID]bool),
	}
}

func (t *Tally) Meeting() uint32 {
	return t.meeting
}

// Add counts a ballot. A second ballot from the same voter is rejected, not
// overwritten.
func (t *Tally) Add(b Ballot, electorate Electorate) error {
	switch {
	case t.resolved:
		return ErrResolved
	case b.Meeting != t.meeting:
		return ErrStaleMeeting
	case !electorate.IsMember(b.Voter):
		return ErrUnknownVoter
	case !electorate.IsAlive(b.Voter):
		return ErrVoterEliminated
	}
	if t.voters[b.Voter] {
		return ErrAlreadyVoted
	}
	if b.Target != models.Abstain && !living(electorate, b.Target) {
		return ErrInvalidTarget
	}

	t.voters[b.Voter] = true
	t.ballots = append(t.ballots, b)
	return nil
}

// CastCount is the number of accepted ballots, including those of voters who
// have since left.
func (t *Tally) CastCount() int {
	return len(t.ballots)
}

func (t *Tally) HasVoted(voter models.MemberID) bool {
	return t.voters[voter]
}

// Count returns the accepted votes for target; Abstain has its own bucket.
func (t *Tally) Count(target models.MemberID) int {
	n := 0
	for _, b := range t.ballots {
		if b.Target == target {
			n++
		}
	}
	return n
}

// Counts lists the buckets of every accepted ballot in the order their first
// ballot arrived.
func (t *Tally) Counts() []Count {
	return bucket(t.ballots)
}

// Counted is the number of ballots whose voter is still a living member.
func (t *Tally) Counted(electorate Electorate) int {
	n := 0
	for _, b := range t.ballots {
		if living(electorate, b.Voter) {
			n++
		}
	}
	return n
}

// Complete reports whether every living member has a ballot in.
func (t *Tally) Complete(livingMembers int, electorate Electorate) bool {
	return t.Counted(electorate) >= livingMembers
}

func (t *Tally) Resolved() bool {
	return t.resolved
}

// Resolve scans the buckets once, left to right in arrival order. Any bucket
// equal to the running maximum marks a tie; a strictly greater bucket takes
// over and clears it. A tie, an empty tally or an abstain win eliminates
// nobody. Ballots from voters who left are dropped and ballots for a target
// who left count as abstain. Resolving twice returns the first outcome.
func (t *Tally) Resolve(electorate Electorate) Outcome {
	if t.resolved {
		return t.outcome
	}

	counted := make([]Ballot, 0, len(t.ballots))
	for _, b := range t.ballots {
		if !living(electorate, b.Voter) {
			continue
		}
		if b.Target != models.Abstain && !living(electorate, b.Target) {
			b.Target = models.Abstain
		}
		counted = append(counted, b)
	}
	counts := bucket(counted)

	maxVotes := 0
	var leader models.MemberID
	tied := false
	for _, c := range counts {
		switch {
		case c.Votes > maxVotes:
			maxVotes = c.Votes
			leader = c.Target
			tied = false
		case c.Votes == maxVotes:
			tied = true
		}
	}

	outcome := Outcome{
		Meeting: t.meeting,
		Counts:  counts,
		Cast:    len(counted),
		Tied:    tied,
	}
	switch {
	case maxVotes == 0 || tied:
	case leader == models.Abstain:
		outcome.Skipped = true
	default:
		outcome.Eliminated = leader
	}

	t.resolved = true
	t.outcome = outcome
	return outcome
}

func living(electorate Electorate, id models.MemberID) bool {
	return electorate.IsMember(id) && electorate.IsAlive(id)
}

func bucket(ballots []Ballot) []Count {
	var out []Count
	index := make(map[models.MemberID]int)
	for _, b := range ballots {
		i, ok := index[b.Target]
		if !ok {
			i = len(out)
			index[b.Target] = i
			out = append(out, Count{Target: b.Target})
		}
		out[i].Votes++
	}
	return out
}
