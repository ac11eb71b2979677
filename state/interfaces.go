// state/interfaces.go
package state

import "time"

// SessionContext is what the phase states need from their owner. The game
// engine implements it; defining it here keeps state free of engine imports.
type SessionContext interface {
	LightingChanged(dark bool)
	VotingOpened(meeting uint32, deadline time.Time)
	VotingClosed(meeting uint32)
	PlayingUpdate(dt time.Duration)
	VotingUpdate(dt time.Duration)
}
