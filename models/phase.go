package models

import "fmt"

// Phase 会话阶段
type Phase uint8

const (
	PhasePlayingLit Phase = iota
	PhasePlayingDark
	PhaseVoting
)

var phaseNames = map[Phase]string{
	PhasePlayingLit:  "playing_lit",
	PhasePlayingDark: "playing_dark",
	PhaseVoting:      "voting",
}

// String returns the wire name of the phase.
func (p Phase) String() string {
	if name, ok := phaseNames[p]; ok {
		return name
	}
	return fmt.Sprintf("phase(%d)", uint8(p))
}

// IsPlaying reports whether the round clock runs in this phase.
func (p Phase) IsPlaying() bool {
	return p == PhasePlayingLit || p == PhasePlayingDark
}

// Valid reports whether p is one of the known phases.
func (p Phase) Valid() bool {
	_, ok := phaseNames[p]
	return ok
}

// CanTransitionTo checks the session graph. Lit -> Dark is one-way; any playing
// phase may enter Voting; Voting returns to either playing phase.
func (p Phase) CanTransitionTo(target Phase) bool {
	validTransitions := map[Phase][]Phase{
		PhasePlayingLit:  {PhasePlayingDark, PhaseVoting},
		PhasePlayingDark: {PhaseVoting},
		PhaseVoting:      {PhasePlayingLit, PhasePlayingDark},
	}

	for _, phase := range validTransitions[p] {
		if phase == target {
			return true
		}
	}
	return false
}

func (p Phase) MarshalText() ([]byte, error) {
	if !p.Valid() {
		return nil, fmt.Errorf("unknown phase %d", uint8(p))
	}
	return []byte(p.String()), nil
}

func (p *Phase) UnmarshalText(text []byte) error {
	for phase, name := range phaseNames {
		if name == string(text) {
			*p = phase
			return nil
		}
	}
	return fmt.Errorf("unknown phase %q", string(text))
}
