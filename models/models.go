// models/models.go
package models

import (
	"errors"
	"time"
)

// MemberID is the identity the room service assigns to a member.
type MemberID string

// Abstain is the ballot target meaning "skip". It never collides with a
// relay-assigned identity.
const Abstain MemberID = "abstain"

// Replicated property keys.
const (
	PropIsDead  = "IsDead"
	PropIsReady = "IsReady"
)

// Member 房间成员
type Member struct {
	ID   MemberID `json:"id"`
	Name string   `json:"name"`
}

// MemberStatus is the display view of a member during a round.
type MemberStatus struct {
	Member
	Alive bool `json:"alive"`
	Ready bool `json:"ready"`
	Voted bool `json:"voted"`
}

var ErrInvalidState = errors.New("invalid session state")

// SessionState 会话状态，phase 与 deadline 总是一起传输
type SessionState struct {
	Phase     Phase         `json:"phase"`
	Deadline  time.Time     `json:"deadline"`
	Meeting   uint32        `json:"meeting"`
	Remaining time.Duration `json:"remaining"`
}

// Validate enforces that a voting deadline is set iff the phase is Voting.
func (s SessionState) Validate() error {
	if !s.Phase.Valid() {
		return ErrInvalidState
	}
	if (s.Phase == PhaseVoting) == s.Deadline.IsZero() {
		return ErrInvalidState
	}
	if s.Remaining < 0 {
		return ErrInvalidState
	}
	return nil
}
