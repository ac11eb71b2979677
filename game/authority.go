package game

import (
	"github.com/wfunc/blackout/logger"
	"github.com/wfunc/blackout/models"
	"github.com/wfunc/blackout/network"
	"github.com/wfunc/blackout/state"
	"github.com/wfunc/blackout/vote"
)

// 以下方法只在权威成员上调用

func (e *Engine) openMeeting(requester models.MemberID) {
	if err := e.session.Propose(models.PhaseVoting); err != nil {
		logger.Log.Debugf("Meeting requested by %s ignored: %v", requester, err)
		return
	}
	logger.Log.Infof("Meeting %d called by %s", e.session.Meeting()+1, requester)
	e.startVoting()
}

// startVoting broadcasts a new meeting with a fresh deadline.
func (e *Engine) startVoting() {
	st := models.SessionState{
		Phase:     models.PhaseVoting,
		Deadline:  e.link.Now().Add(e.cfg.VotingTime),
		Meeting:   e.session.Meeting() + 1,
		Remaining: e.clock.Remaining(),
	}
	e.broadcast(network.SetPhase{State: st})
}

func (e *Engine) checkBlackout() {
	if e.session.Phase() != models.PhasePlayingLit || e.clock.Elapsed() < e.cfg.BlackoutDelay {
		return
	}
	if err := e.session.Propose(models.PhasePlayingDark); err != nil {
		return
	}
	e.broadcast(network.SetPhase{State: models.SessionState{
		Phase:     models.PhasePlayingDark,
		Meeting:   e.session.Meeting(),
		Remaining: e.clock.Remaining(),
	}})
}

// checkVoting resolves the meeting once every living member has voted or the
// deadline has passed, whichever the tick sees first. Either way the result is
// shown for ResultDisplay before play resumes.
func (e *Engine) checkVoting() {
	if e.tally == nil {
		// voting we never counted can only end by restarting it
		e.startVoting()
		return
	}
	if e.tally.Resolved() {
		e.awaitClose()
		return
	}

	el := electorate{e}
	complete := e.tally.Complete(e.livingCount(), el)
	expired := !e.link.Now().Before(e.session.Deadline())
	if !complete && !expired {
		return
	}

	meeting := e.tally.Meeting()
	outcome := e.tally.Resolve(el)
	if outcome.HasElimination() {
		e.eliminate(outcome.Eliminated)
	}
	e.recorder.VoteResolved(outcome.HasElimination())
	logger.Log.Infof("Meeting %d resolved with %d ballots (complete=%t): %+v", meeting, outcome.Cast, complete, outcome.Counts)

	e.showResult(outcome)
}

// showResult broadcasts the outcome. The local copy schedules the close.
func (e *Engine) showResult(outcome vote.Outcome) {
	err := e.broadcast(network.ShowResult{
		Meeting:    outcome.Meeting,
		Message:    outcome.Message(e.nameOf),
		Eliminated: outcome.Eliminated,
	})
	if err != nil {
		logger.Log.Warnf("Result of meeting %d not sent, retrying next tick: %v", outcome.Meeting, err)
	}
}

// awaitClose runs while a resolved meeting is still open. An unsent result is
// resent, and the meeting closes regardless once the deadline plus the result
// display has passed.
func (e *Engine) awaitClose() {
	meeting := e.tally.Meeting()
	if e.result == nil || e.result.Meeting != meeting {
		e.showResult(e.tally.Resolve(electorate{e}))
	}
	if !e.link.Now().Before(e.session.Deadline().Add(e.cfg.ResultDisplay)) {
		e.closeMeeting(meeting)
	}
}

// closeMeeting returns to play if the given meeting is still the open one.
func (e *Engine) closeMeeting(meeting uint32) {
	if !e.isAuthority() || e.session.Phase() != models.PhaseVoting || e.session.Meeting() != meeting {
		return
	}
	to := state.ReturnPhase(e.clock.Elapsed(), e.cfg.BlackoutDelay)
	if err := e.session.Propose(to); err != nil {
		logger.Log.Warnf("Cannot close meeting %d: %v", meeting, err)
		return
	}
	e.broadcast(network.SetPhase{State: models.SessionState{
		Phase:     to,
		Meeting:   meeting,
		Remaining: e.clock.Remaining(),
	}})
}

// eliminate writes IsDead once per member per round.
func (e *Engine) eliminate(id models.MemberID) {
	if e.eliminated[id] {
		return
	}
	e.eliminated[id] = true
	if dead, ok := e.link.Bool(id, models.PropIsDead); ok && dead {
		return
	}
	if err := e.link.SetBool(id, models.PropIsDead, true); err != nil {
		logger.Log.Errorf("Failed to eliminate %s: %v", id, err)
		delete(e.eliminated, id)
		return
	}
	logger.Log.Infof("Member %s eliminated", id)
}

// takeOver runs when this member becomes the authority. A meeting in flight
// that this member was not counting is restarted under a new number, since
// the previous authority's tally is gone; play continues from the replicated
// clock.
func (e *Engine) takeOver() {
	logger.Log.Infof("Member %s took over as authority in %s", e.link.LocalID(), e.session.Phase())
	e.sinceSync = e.cfg.ResyncInterval
	if e.session.Phase() == models.PhaseVoting && e.tally == nil {
		e.startVoting()
	}
}
