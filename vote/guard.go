package vote

// Guard is the caller-side hasVoted flag. It is reset each time a meeting opens
// and stops a second ballot before it is ever broadcast.
type Guard struct {
	meeting uint32
	open    bool
	voted   bool
}

// Open resets the guard for a new meeting.
func (g *Guard) Open(meeting uint32) {
	g.meeting = meeting
	g.open = true
	g.voted = false
}

func (g *Guard) Close() {
	g.open = false
}

func (g *Guard) Meeting() uint32 {
	return g.meeting
}

func (g *Guard) Voted() bool {
	return g.voted
}

// Check reports the error Mark would return, without claiming the ballot.
func (g *Guard) Check() error {
	if !g.open {
		return ErrNotVoting
	}
	if g.voted {
		return ErrAlreadyVoted
	}
	return nil
}

// Mark claims this meeting's single ballot.
func (g *Guard) Mark() error {
	if err := g.Check(); err != nil {
		return err
	}
	g.voted = true
	return nil
}
