package room

import "github.com/wfunc/blackout/models"

// ReadyToStart reports whether a match may start: the room is full and every
// member has set IsReady. A member whose IsReady was never written is still
// loading and blocks the start.
func ReadyToStart(members []models.Member, property func(models.MemberID, string) (bool, bool), maxPlayers int) bool {
	if len(members) != maxPlayers {
		return false
	}
	for _, m := range members {
		ready, ok := property(m.ID, models.PropIsReady)
		if !ok || !ready {
			return false
		}
	}
	return true
}
