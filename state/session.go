package state

import (
	"fmt"
	"time"

	"github.com/wfunc/blackout/models"
)

// Session is the replicated session state machine. The authority decides
// transitions with Propose and every member, the authority included, applies
// the broadcast result through Apply.
type Session struct {
	machine  *BaseStateMachine
	states   map[models.Phase]State
	deadline time.Time
	meeting  uint32
}

// NewSession builds the machine in PlayingLit. The initial OnEnter runs
// immediately, so ctx sees the lit lighting hook during construction.
func NewSession(ctx SessionContext) *Session {
	s := &Session{}

	lit := NewPlayingState(ctx, false)
	dark := NewPlayingState(ctx, true)
	voting := NewVotingState(ctx, s.Deadline, s.Meeting)
	s.states = map[models.Phase]State{
		models.PhasePlayingLit:  lit,
		models.PhasePlayingDark: dark,
		models.PhaseVoting:      voting,
	}

	s.machine = NewBaseStateMachine(lit)
	for from, fromState := range s.states {
		for to, toState := range s.states {
			if from.CanTransitionTo(to) {
				s.machine.AddTransition(fromState, toState, nil)
			}
		}
	}
	return s
}

func (s *Session) Phase() models.Phase {
	return s.machine.GetCurrentState().GetID()
}

// Deadline is zero unless the phase is Voting.
func (s *Session) Deadline() time.Time {
	return s.deadline
}

// Meeting is the number of the current or most recent meeting.
func (s *Session) Meeting() uint32 {
	return s.meeting
}

// Snapshot returns phase, deadline and meeting; Remaining is filled by the clock owner.
func (s *Session) Snapshot() models.SessionState {
	return models.SessionState{
		Phase:    s.Phase(),
		Deadline: s.deadline,
		Meeting:  s.meeting,
	}
}

// Propose validates an authority decision against the phase graph.
func (s *Session) Propose(to models.Phase) error {
	if !s.machine.CanChange(to) {
		return fmt.Errorf("%w: %s -> %s", ErrTransitionNotAllowed, s.Phase(), to)
	}
	return nil
}

// Apply installs a broadcast state verbatim. Hooks only run when the phase
// differs, or when Voting is re-entered under a new meeting number, so
// re-delivered messages are harmless.
func (s *Session) Apply(st models.SessionState) (changed bool, err error) {
	if err := st.Validate(); err != nil {
		return false, err
	}

	current := s.Phase()
	changed = st.Phase != current || (st.Phase == models.PhaseVoting && st.Meeting != s.meeting)

	s.deadline = st.Deadline
	s.meeting = st.Meeting
	if changed {
		s.machine.ForceState(s.states[st.Phase])
	}
	return changed, nil
}

// Update runs the current phase's per-tick hook.
func (s *Session) Update(dt time.Duration) {
	s.machine.GetCurrentState().OnUpdate(dt)
}

// ReturnPhase picks the playing phase a finished meeting returns to.
func ReturnPhase(elapsed, blackoutDelay time.Duration) models.Phase {
	if elapsed >= blackoutDelay {
		return models.PhasePlayingDark
	}
	return models.PhasePlayingLit
}
