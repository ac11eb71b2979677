package vote

import (
	"fmt"

	"github.com/wfunc/blackout/models"
)

type Count struct {
	Target models.MemberID `json:"target"`
	Votes  int             `json:"votes"`
}

// Outcome is the resolved result of one meeting.
type Outcome struct {
	Meeting    uint32          `json:"meeting"`
	Eliminated models.MemberID `json:"eliminated,omitempty"`
	Tied       bool            `json:"tied"`
	Skipped    bool            `json:"skipped"`
	Cast       int             `json:"cast"`
	Counts     []Count         `json:"counts"`
}

func (o Outcome) HasElimination() bool {
	return o.Eliminated != ""
}

// Message renders the outcome for every member's result screen.
func (o Outcome) Message(nameOf func(models.MemberID) string) string {
	switch {
	case o.HasElimination():
		return fmt.Sprintf("%s was ejected.", nameOf(o.Eliminated))
	case o.Tied:
		return "No one was ejected. (Tie)"
	case o.Skipped:
		return "No one was ejected. (Skipped)"
	default:
		return "No one was ejected."
	}
}
