package game

import (
	"time"

	"github.com/wfunc/blackout/models"
)

type EventKind uint8

const (
	EventPhaseChanged EventKind = iota
	EventLighting
	EventVotingOpened
	EventVoterMarked
	EventResult
	EventResultClosed
	EventVotingClosed
	EventRoster
	EventProperty
	EventClockExpired
)

func (k EventKind) String() string {
	switch k {
	case EventPhaseChanged:
		return "phase_changed"
	case EventLighting:
		return "lighting"
	case EventVotingOpened:
		return "voting_opened"
	case EventVoterMarked:
		return "voter_marked"
	case EventResult:
		return "result"
	case EventResultClosed:
		return "result_closed"
	case EventVotingClosed:
		return "voting_closed"
	case EventRoster:
		return "roster"
	case EventProperty:
		return "property"
	case EventClockExpired:
		return "clock_expired"
	}
	return "unknown"
}

// Event is what presentation code renders. Only the fields relevant to Kind
// are set.
type Event struct {
	Kind       EventKind
	Phase      models.Phase
	Dark       bool
	Meeting    uint32
	Deadline   time.Time
	Member     models.MemberID
	Key        string
	Value      bool
	Message    string
	Eliminated models.MemberID
}

// Subscribe registers an observer. Observers are called after the engine lock
// is released, on the goroutine whose call produced the event, so they may
// query the engine or unsubscribe.
func (e *Engine) Subscribe(fn func(Event)) (unsubscribe func()) {
	e.mu.Lock()
	defer e.mu.Unlock()

	id := e.nextObserver
	e.nextObserver++
	e.observers[id] = fn
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.observers, id)
	}
}

// emit queues an event for delivery by unlock.
func (e *Engine) emit(ev Event) {
	e.pending = append(e.pending, ev)
}

// unlock releases the engine lock and then delivers the queued events to the
// observers registered at that moment, in subscription order.
func (e *Engine) unlock() {
	events := e.pending
	e.pending = nil
	var observers []func(Event)
	if len(events) > 0 {
		for id := 0; id < e.nextObserver; id++ {
			if fn, ok := e.observers[id]; ok {
				observers = append(observers, fn)
			}
		}
	}
	e.mu.Unlock()

	for _, ev := range events {
		for _, fn := range observers {
			fn(ev)
		}
	}
}
