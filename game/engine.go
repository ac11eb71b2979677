package game

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/wfunc/blackout/config"
	"github.com/wfunc/blackout/logger"
	"github.com/wfunc/blackout/models"
	"github.com/wfunc/blackout/network"
	"github.com/wfunc/blackout/room"
	"github.com/wfunc/blackout/state"
	"github.com/wfunc/blackout/timer"
	"github.com/wfunc/blackout/vote"
)

var (
	ErrNotAuthority = errors.New("only the room authority may do this")
	ErrNotReady     = errors.New("room is not full or not every member is ready")
)

// Engine 单个成员的对局引擎：把回合计时、会话状态机和投票统计接到房间服务上。
// Everything runs on the goroutine that calls Tick; deliveries are queued in
// the inbox and handled at the start of the next tick.
type Engine struct {
	cfg      config.GameConfig
	link     Link
	inbox    *network.Inbox
	recorder Recorder

	mu        sync.Mutex
	session   *state.Session
	clock     *timer.RoundClock
	scheduler *timer.Scheduler

	// authority only, while voting
	tally *vote.Tally

	guard        vote.Guard
	voted        map[models.MemberID]bool
	result       *network.ShowResult
	closeTimer   int64
	dark         bool
	expired      bool
	wasAuthority bool
	sinceSync    time.Duration
	eliminated   map[models.MemberID]bool

	observers    map[int]func(Event)
	nextObserver int
	pending      []Event
}

type Option func(*Engine)

func WithRecorder(r Recorder) Option {
	return func(e *Engine) {
		if r != nil {
			e.recorder = r
		}
	}
}

// NewEngine builds an engine in PlayingLit with a full round clock. inbox must
// be the receiver the link delivers to.
func NewEngine(cfg config.GameConfig, link Link, inbox *network.Inbox, opts ...Option) *Engine {
	e := &Engine{
		cfg:        cfg,
		link:       link,
		inbox:      inbox,
		recorder:   nopRecorder{},
		clock:      timer.NewRoundClock(cfg.GameTime),
		scheduler:  timer.NewScheduler(),
		voted:      make(map[models.MemberID]bool),
		eliminated: make(map[models.MemberID]bool),
		observers:  make(map[int]func(Event)),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.session = state.NewSession(e)
	return e
}

// Run ticks the engine at the configured interval until ctx is done.
func (e *Engine) Run(ctx context.Context) error {
	interval := e.cfg.TickInterval
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			e.Tick(interval)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Tick advances the engine by one frame: deliveries, authority takeover,
// timers, the current phase's update and the periodic resync, in that order.
func (e *Engine) Tick(dt time.Duration) {
	e.mu.Lock()
	defer e.unlock()

	for _, env := range e.inbox.Drain() {
		e.dispatch(env)
	}

	authority := e.isAuthority()
	if authority && !e.wasAuthority {
		e.takeOver()
	}
	e.wasAuthority = authority

	e.scheduler.Advance(dt)
	e.session.Update(dt)

	e.sinceSync += dt
	if authority && e.sinceSync >= e.cfg.ResyncInterval {
		e.sinceSync = 0
		if err := e.link.Send(network.SyncState{State: e.snapshot()}); err != nil {
			logger.Log.Warnf("Failed to send state resync: %v", err)
		}
	}
}

// RequestMeeting asks for a meeting. The authority opens it directly; any
// other member forwards the request and waits for the authority's SetPhase.
func (e *Engine) RequestMeeting() {
	e.mu.Lock()
	defer e.unlock()

	if e.session.Phase() == models.PhaseVoting {
		logger.Log.Debugf("Meeting requested by %s while already voting, ignored", e.link.LocalID())
		return
	}
	if e.isAuthority() {
		e.openMeeting(e.link.LocalID())
		return
	}
	if err := e.link.Send(network.RequestMeeting{}); err != nil {
		logger.Log.Warnf("Failed to forward meeting request: %v", err)
	}
}

// CastVote sends this member's single ballot for the current meeting. A
// second ballot is rejected before it is ever sent.
func (e *Engine) CastVote(target models.MemberID) error {
	e.mu.Lock()
	defer e.unlock()

	if e.session.Phase() != models.PhaseVoting {
		return vote.ErrNotVoting
	}
	local := e.link.LocalID()
	if !e.alive(local) {
		return vote.ErrVoterEliminated
	}
	if target != models.Abstain && (!e.isMember(target) || !e.alive(target)) {
		return vote.ErrInvalidTarget
	}
	if err := e.guard.Check(); err != nil {
		logger.Log.Debugf("Ballot from %s rejected: %v", local, err)
		return err
	}

	if err := e.broadcast(network.CastVote{Target: target, Meeting: e.guard.Meeting()}); err != nil {
		return err
	}
	return e.guard.Mark()
}

// Skip casts an abstain ballot.
func (e *Engine) Skip() error {
	return e.CastVote(models.Abstain)
}

// SetReady writes this member's IsReady flag.
func (e *Engine) SetReady(ready bool) error {
	return e.link.SetBool(e.link.LocalID(), models.PropIsReady, ready)
}

// StartRound begins a new round once the room is full and everyone is ready:
// every member is revived, the clock is reset and play resumes lit.
func (e *Engine) StartRound() error {
	e.mu.Lock()
	defer e.unlock()

	if !e.isAuthority() {
		return ErrNotAuthority
	}
	members := e.link.Members()
	if !room.ReadyToStart(members, e.link.Bool, e.cfg.MaxPlayers) {
		return ErrNotReady
	}

	for _, m := range members {
		if dead, ok := e.link.Bool(m.ID, models.PropIsDead); ok && !dead {
			continue
		}
		if err := e.link.SetBool(m.ID, models.PropIsDead, false); err != nil {
			return err
		}
	}
	e.eliminated = make(map[models.MemberID]bool)
	e.clock.Reset()
	e.expired = false

	st := models.SessionState{
		Phase:     models.PhasePlayingLit,
		Meeting:   e.session.Meeting(),
		Remaining: e.clock.Remaining(),
	}
	if err := e.broadcast(network.SetPhase{State: st}); err != nil {
		return err
	}
	logger.Log.Infof("Round started by %s with %d members", e.link.LocalID(), len(members))
	return nil
}

func (e *Engine) Phase() models.Phase {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session.Phase()
}

// Snapshot returns the local view of the session, including the clock.
func (e *Engine) Snapshot() models.SessionState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshot()
}

func (e *Engine) snapshot() models.SessionState {
	st := e.session.Snapshot()
	st.Remaining = e.clock.Remaining()
	return st
}

// Remaining is the round countdown.
func (e *Engine) Remaining() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.clock.Remaining()
}

// ClockText renders the countdown as mm:ss.
func (e *Engine) ClockText() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.clock.Format()
}

// VotingRemaining is the time left before the voting deadline, zero outside Voting.
func (e *Engine) VotingRemaining() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session.Phase() != models.PhaseVoting {
		return 0
	}
	left := e.session.Deadline().Sub(e.link.Now())
	if left < 0 {
		return 0
	}
	return left
}

// LastResult is the most recent meeting result shown, if any.
func (e *Engine) LastResult() (network.ShowResult, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.result == nil {
		return network.ShowResult{}, false
	}
	return *e.result, true
}

func (e *Engine) IsAuthority() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.isAuthority()
}

// Members lists the roster with replicated flags and this meeting's voter marks.
func (e *Engine) Members() []models.MemberStatus {
	e.mu.Lock()
	defer e.mu.Unlock()

	members := e.link.Members()
	out := make([]models.MemberStatus, 0, len(members))
	for _, m := range members {
		ready, _ := e.link.Bool(m.ID, models.PropIsReady)
		out = append(out, models.MemberStatus{
			Member: m,
			Alive:  e.alive(m.ID),
			Ready:  ready,
			Voted:  e.voted[m.ID],
		})
	}
	return out
}

func (e *Engine) isAuthority() bool {
	local := e.link.LocalID()
	return local != "" && e.link.AuthorityID() == local
}

func (e *Engine) isMember(id models.MemberID) bool {
	for _, m := range e.link.Members() {
		if m.ID == id {
			return true
		}
	}
	return false
}

// alive treats a member whose IsDead was never written as alive.
func (e *Engine) alive(id models.MemberID) bool {
	dead, ok := e.link.Bool(id, models.PropIsDead)
	return !ok || !dead
}

func (e *Engine) livingCount() int {
	n := 0
	for _, m := range e.link.Members() {
		if e.alive(m.ID) {
			n++
		}
	}
	return n
}

func (e *Engine) nameOf(id models.MemberID) string {
	for _, m := range e.link.Members() {
		if m.ID == id && m.Name != "" {
			return m.Name
		}
	}
	return string(id)
}

// broadcast sends a message to every other member and applies it locally
// through the same path a delivery takes.
func (e *Engine) broadcast(msg network.Message) error {
	if err := e.link.Send(msg); err != nil {
		logger.Log.Warnf("Failed to send message %d: %v", msg.MsgID(), err)
		return err
	}
	e.dispatch(network.Envelope{Sender: e.link.LocalID(), Message: msg})
	return nil
}

// electorate answers tally membership questions from the live roster.
type electorate struct{ e *Engine }

func (el electorate) IsMember(id models.MemberID) bool { return el.e.isMember(id) }
func (el electorate) IsAlive(id models.MemberID) bool  { return el.e.alive(id) }
