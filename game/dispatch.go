package game

import (
	"errors"
	"time"

	"github.com/wfunc/blackout/logger"
	"github.com/wfunc/blackout/models"
	"github.com/wfunc/blackout/network"
	"github.com/wfunc/blackout/vote"
)

// dispatch handles one delivery. Messages only the authority may send are
// dropped when they come from anyone else.
func (e *Engine) dispatch(env network.Envelope) {
	if network.AuthorityOnly(env.Message.MsgID()) && env.Sender != e.link.AuthorityID() {
		logger.Log.Warnf("Ignoring message %d from non-authority %s", env.Message.MsgID(), env.Sender)
		return
	}
	own := env.Sender == e.link.LocalID()

	switch m := env.Message.(type) {
	case network.RequestMeeting:
		if e.isAuthority() {
			e.openMeeting(env.Sender)
		}
	case network.SetPhase:
		e.applyState(m.State, !own)
	case network.SyncState:
		if !own {
			e.applyState(m.State, true)
		}
	case network.CastVote:
		e.onBallot(env.Sender, m)
	case network.ShowResult:
		e.onResult(m)
	case network.Roster:
		if e.isAuthority() {
			// let newcomers converge on the next tick
			e.sinceSync = e.cfg.ResyncInterval
		}
		e.emit(Event{Kind: EventRoster})
	case network.PropertyChanged:
		e.emit(Event{Kind: EventProperty, Member: m.Member, Key: m.Key, Value: m.Value})
	case network.Error:
		logger.Log.Warnf("Room service error: %s", m.Message)
	}
}

// applyState installs an authoritative state. syncClock is false only for
// the authority's own messages, whose clock is already the source.
func (e *Engine) applyState(st models.SessionState, syncClock bool) {
	changed, err := e.session.Apply(st)
	if err != nil {
		logger.Log.Warnf("Rejected session state %s: %v", st.Phase, err)
		return
	}
	if syncClock {
		e.clock.Sync(st.Remaining)
		if !e.clock.Expired() {
			e.expired = false
		}
	}
	if changed {
		logger.Log.Infof("Member %s entered %s (meeting %d)", e.link.LocalID(), st.Phase, st.Meeting)
		e.recorder.PhaseChanged(st.Phase)
		e.emit(Event{Kind: EventPhaseChanged, Phase: st.Phase, Meeting: st.Meeting, Deadline: st.Deadline})
	}
}

func (e *Engine) onBallot(voter models.MemberID, m network.CastVote) {
	if e.session.Phase() != models.PhaseVoting || m.Meeting != e.session.Meeting() {
		logger.Log.Debugf("Dropping ballot from %s for meeting %d", voter, m.Meeting)
		return
	}
	if !e.alive(voter) {
		return
	}
	if !e.voted[voter] {
		e.voted[voter] = true
		e.emit(Event{Kind: EventVoterMarked, Member: voter, Meeting: m.Meeting})
	}

	if e.tally == nil || !e.isAuthority() {
		return
	}
	ballot := vote.Ballot{Voter: voter, Target: m.Target, Meeting: m.Meeting}
	err := e.tally.Add(ballot, electorate{e})
	if errors.Is(err, vote.ErrInvalidTarget) {
		// the target left or died after the ballot was cast; the voter's guard is spent
		logger.Log.Warnf("Ballot from %s for %s counted as abstain: %v", voter, m.Target, err)
		ballot.Target = models.Abstain
		err = e.tally.Add(ballot, electorate{e})
	}
	if err != nil {
		logger.Log.Warnf("Ballot from %s not counted: %v", voter, err)
		return
	}
	e.recorder.BallotCounted()
}

// onResult shows the outcome and schedules the local close. Every member
// schedules it; only the authority's close changes the phase.
func (e *Engine) onResult(m network.ShowResult) {
	if e.session.Phase() != models.PhaseVoting || m.Meeting != e.session.Meeting() {
		return
	}
	if e.result != nil && e.result.Meeting == m.Meeting {
		return
	}
	result := m
	e.result = &result
	e.emit(Event{Kind: EventResult, Meeting: m.Meeting, Message: m.Message, Eliminated: m.Eliminated})

	meeting := m.Meeting
	e.closeTimer = e.scheduler.AddTimer(e.cfg.ResultDisplay, 0, func() {
		e.closeTimer = 0
		e.emit(Event{Kind: EventResultClosed, Meeting: meeting})
		e.closeMeeting(meeting)
	})
}

// LightingChanged implements state.SessionContext.
func (e *Engine) LightingChanged(dark bool) {
	if e.dark == dark {
		return
	}
	e.dark = dark
	e.emit(Event{Kind: EventLighting, Dark: dark})
}

// VotingOpened implements state.SessionContext.
func (e *Engine) VotingOpened(meeting uint32, deadline time.Time) {
	e.guard.Open(meeting)
	e.voted = make(map[models.MemberID]bool)
	if e.isAuthority() {
		e.tally = vote.NewTally(meeting)
		e.recorder.MeetingStarted()
	}
	e.emit(Event{Kind: EventVotingOpened, Meeting: meeting, Deadline: deadline})
}

// VotingClosed implements state.SessionContext.
func (e *Engine) VotingClosed(meeting uint32) {
	e.guard.Close()
	e.tally = nil
	if e.closeTimer != 0 {
		e.scheduler.RemoveTimer(e.closeTimer)
		e.closeTimer = 0
	}
	e.emit(Event{Kind: EventVotingClosed, Meeting: meeting})
}

// PlayingUpdate implements state.SessionContext. The authority runs the clock
// and the blackout; followers only interpolate between resyncs.
func (e *Engine) PlayingUpdate(dt time.Duration) {
	if !e.isAuthority() {
		e.clock.Interpolate(dt)
		e.checkExpired()
		return
	}
	e.clock.Advance(dt)
	e.checkExpired()
	e.checkBlackout()
}

// VotingUpdate implements state.SessionContext.
func (e *Engine) VotingUpdate(time.Duration) {
	if e.isAuthority() {
		e.checkVoting()
	}
}

func (e *Engine) checkExpired() {
	if e.clock.Expired() && !e.expired {
		e.expired = true
		e.emit(Event{Kind: EventClockExpired})
	}
}
