package game

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wfunc/blackout/config"
	"github.com/wfunc/blackout/models"
	"github.com/wfunc/blackout/network"
	"github.com/wfunc/blackout/room"
	"github.com/wfunc/blackout/vote"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func testConfig(players int) config.GameConfig {
	return config.GameConfig{
		GameTime:       1800 * time.Second,
		BlackoutDelay:  30 * time.Second,
		VotingTime:     120 * time.Second,
		ResultDisplay:  3 * time.Second,
		TickInterval:   time.Second,
		ResyncInterval: time.Second,
		MaxPlayers:     players,
	}
}

// table is a room of engines joined in order a, b, c... so a is the authority.
type table struct {
	t         *testing.T
	clock     *fakeClock
	hub       *room.Hub
	endpoints []*room.Endpoint
	inboxes   []*network.Inbox
	engines   []*Engine
}

func newTable(t *testing.T, players int) *table {
	t.Helper()
	tb := &table{
		t:     t,
		clock: &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)},
	}
	tb.hub = room.NewHub("table", players, room.NewMemoryStore(), room.WithClock(tb.clock.Now))
	cfg := testConfig(players)

	for i := 0; i < players; i++ {
		id := string(rune('a' + i))
		inbox := network.NewInbox()
		ep, err := tb.hub.Join(models.Member{ID: models.MemberID(id), Name: "name-" + id}, inbox)
		require.NoError(t, err)
		tb.endpoints = append(tb.endpoints, ep)
		tb.inboxes = append(tb.inboxes, inbox)
		tb.engines = append(tb.engines, NewEngine(cfg, ep, inbox))
	}
	return tb
}

// step advances the shared clock and ticks every engine in join order.
func (tb *table) step(dt time.Duration) {
	tb.clock.Advance(dt)
	for _, e := range tb.engines {
		e.Tick(dt)
	}
}

func (tb *table) steps(n int, dt time.Duration) {
	for i := 0; i < n; i++ {
		tb.step(dt)
	}
}

// remove makes member i leave the room and stops ticking it.
func (tb *table) remove(i int) {
	tb.endpoints[i].Leave()
	tb.endpoints = append(tb.endpoints[:i], tb.endpoints[i+1:]...)
	tb.inboxes = append(tb.inboxes[:i], tb.inboxes[i+1:]...)
	tb.engines = append(tb.engines[:i], tb.engines[i+1:]...)
}

func (tb *table) assertPhase(want models.Phase, note ...string) {
	tb.t.Helper()
	for i, e := range tb.engines {
		assert.Equal(tb.t, want, e.Phase(), "engine %d %s", i, strings.Join(note, " "))
	}
}

// openMeeting has the authority call a meeting and lets followers apply it.
func (tb *table) openMeeting() models.SessionState {
	tb.t.Helper()
	tb.engines[0].RequestMeeting()
	tb.step(time.Second)
	tb.assertPhase(models.PhaseVoting)
	return tb.engines[0].Snapshot()
}

func (tb *table) dead(id models.MemberID) bool {
	dead, ok := tb.hub.Property(id, models.PropIsDead)
	return ok && dead
}

func TestEngine_StartsLit(t *testing.T) {
	tb := newTable(t, 3)
	tb.assertPhase(models.PhasePlayingLit)
	assert.True(t, tb.engines[0].IsAuthority())
	assert.False(t, tb.engines[1].IsAuthority())
	assert.Equal(t, 1800*time.Second, tb.engines[0].Remaining())
	assert.Equal(t, "30:00", tb.engines[0].ClockText())
}

func TestEngine_BlackoutAtDelay(t *testing.T) {
	tb := newTable(t, 3)

	tb.steps(29, time.Second)
	tb.assertPhase(models.PhasePlayingLit, "elapsed 29s")

	tb.step(time.Second)
	tb.assertPhase(models.PhasePlayingDark, "elapsed 30s")

	tb.steps(60, time.Second)
	tb.assertPhase(models.PhasePlayingDark, "dark is one-way")
	assert.Equal(t, 1710*time.Second, tb.engines[0].Remaining())
}

func TestEngine_FollowerMeetingRequestGoesThroughAuthority(t *testing.T) {
	tb := newTable(t, 4)
	tb.step(time.Second)

	tb.engines[1].RequestMeeting()
	assert.Equal(t, models.PhasePlayingLit, tb.engines[1].Phase(), "followers never self-transition")

	tb.step(time.Second)
	tb.assertPhase(models.PhaseVoting)

	want := tb.clock.Now().Add(120 * time.Second)
	for _, e := range tb.engines {
		st := e.Snapshot()
		assert.Equal(t, uint32(1), st.Meeting)
		assert.True(t, st.Deadline.Equal(want))
		assert.Equal(t, 120*time.Second, e.VotingRemaining())
	}

	// a second request while voting changes nothing
	tb.engines[2].RequestMeeting()
	tb.step(time.Second)
	assert.Equal(t, uint32(1), tb.engines[0].Snapshot().Meeting)
}

func TestEngine_EveryoneVotesEliminatesAndReturnsToPlay(t *testing.T) {
	tb := newTable(t, 4)
	tb.step(time.Second)
	tb.openMeeting()

	var deaths int
	unsubscribe := tb.engines[1].Subscribe(func(ev Event) {
		if ev.Kind == EventProperty && ev.Key == models.PropIsDead && ev.Value && ev.Member == "d" {
			deaths++
		}
	})
	defer unsubscribe()

	require.NoError(t, tb.engines[0].CastVote("d"))
	require.NoError(t, tb.engines[1].CastVote("d"))
	require.NoError(t, tb.engines[2].CastVote("d"))
	require.NoError(t, tb.engines[3].CastVote("a"))

	tb.step(time.Second)
	assert.True(t, tb.dead("d"))
	assert.Equal(t, 1, deaths)
	for _, e := range tb.engines {
		result, ok := e.LastResult()
		require.True(t, ok)
		assert.Equal(t, "name-d was ejected.", result.Message)
		assert.Equal(t, models.MemberID("d"), result.Eliminated)
	}
	tb.assertPhase(models.PhaseVoting, "result is shown before play resumes")

	tb.steps(2, time.Second)
	tb.assertPhase(models.PhaseVoting)
	tb.step(time.Second)
	tb.assertPhase(models.PhasePlayingLit, "closed after the result display")

	for _, status := range tb.engines[2].Members() {
		assert.Equal(t, status.ID != "d", status.Alive, status.ID)
	}
}

func TestEngine_TieEliminatesNobody(t *testing.T) {
	tb := newTable(t, 4)
	tb.openMeeting()

	require.NoError(t, tb.engines[0].CastVote("c"))
	require.NoError(t, tb.engines[1].CastVote("c"))
	require.NoError(t, tb.engines[2].CastVote("a"))
	require.NoError(t, tb.engines[3].CastVote("a"))
	tb.step(time.Second)

	result, ok := tb.engines[3].LastResult()
	require.True(t, ok)
	assert.Equal(t, "No one was ejected. (Tie)", result.Message)
	for _, id := range []models.MemberID{"a", "b", "c", "d"} {
		assert.False(t, tb.dead(id), id)
	}
}

func TestEngine_AllAbstainEliminatesNobody(t *testing.T) {
	tb := newTable(t, 4)
	tb.openMeeting()

	for _, e := range tb.engines {
		require.NoError(t, e.Skip())
	}
	tb.step(time.Second)

	result, ok := tb.engines[0].LastResult()
	require.True(t, ok)
	assert.Equal(t, "No one was ejected. (Skipped)", result.Message)
	assert.Empty(t, result.Eliminated)
}

func TestEngine_SecondBallotRejectedBeforeBroadcast(t *testing.T) {
	tb := newTable(t, 4)
	tb.openMeeting()

	require.NoError(t, tb.engines[1].CastVote("c"))
	assert.ErrorIs(t, tb.engines[1].CastVote("d"), vote.ErrAlreadyVoted)
	tb.step(time.Second)

	authority := tb.engines[0]
	authority.mu.Lock()
	defer authority.mu.Unlock()
	require.NotNil(t, authority.tally)
	assert.Equal(t, 1, authority.tally.Count("c"))
	assert.Equal(t, 0, authority.tally.Count("d"))
	assert.Equal(t, 1, authority.tally.CastCount())
}

func TestEngine_CastVoteValidation(t *testing.T) {
	tb := newTable(t, 3)
	assert.ErrorIs(t, tb.engines[1].CastVote("c"), vote.ErrNotVoting)

	require.NoError(t, tb.endpoints[0].SetBool("c", models.PropIsDead, true))
	tb.openMeeting()

	assert.ErrorIs(t, tb.engines[1].CastVote("c"), vote.ErrInvalidTarget)
	assert.ErrorIs(t, tb.engines[1].CastVote("zz"), vote.ErrInvalidTarget)
	assert.ErrorIs(t, tb.engines[2].CastVote("a"), vote.ErrVoterEliminated)
	assert.NoError(t, tb.engines[1].CastVote("a"))
}

func TestEngine_DeadlineExpiryEndsVoting(t *testing.T) {
	tb := newTable(t, 6)
	st := tb.openMeeting()

	require.NoError(t, tb.engines[0].CastVote("f"))
	require.NoError(t, tb.engines[1].CastVote("f"))
	require.NoError(t, tb.engines[2].Skip())

	for tb.clock.Now().Add(time.Second).Before(st.Deadline) {
		tb.step(time.Second)
	}
	tb.assertPhase(models.PhaseVoting, "one second before the deadline")

	tb.step(time.Second)
	tb.assertPhase(models.PhaseVoting, "deadline reached with 3 of 6 ballots, result on screen")
	assert.True(t, tb.dead("f"))
	for _, e := range tb.engines {
		result, ok := e.LastResult()
		require.True(t, ok)
		assert.Equal(t, "name-f was ejected.", result.Message)
	}

	tb.steps(2, time.Second)
	tb.assertPhase(models.PhaseVoting)
	tb.step(time.Second)
	tb.assertPhase(models.PhasePlayingLit, "closed after the result display")
}

// flakyLink fails the next sends of the listed message types.
type flakyLink struct {
	Link
	failures map[uint16]int
}

var errSendFailed = errors.New("send failed")

func (l *flakyLink) Send(msg network.Message) error {
	if l.failures[msg.MsgID()] > 0 {
		l.failures[msg.MsgID()]--
		return errSendFailed
	}
	return l.Link.Send(msg)
}

// flakyAuthority rebuilds the authority's engine on a link that drops the
// first n results it sends.
func (tb *table) flakyAuthority(n int) {
	link := &flakyLink{Link: tb.endpoints[0], failures: map[uint16]int{network.MsgTypeShowResult: n}}
	tb.engines[0] = NewEngine(testConfig(len(tb.engines)), link, tb.inboxes[0])
}

func TestEngine_UnsentResultIsResent(t *testing.T) {
	tb := newTable(t, 3)
	tb.flakyAuthority(1)
	tb.openMeeting()

	require.NoError(t, tb.engines[0].CastVote("c"))
	require.NoError(t, tb.engines[1].CastVote("c"))
	require.NoError(t, tb.engines[2].Skip())

	tb.step(time.Second)
	_, ok := tb.engines[0].LastResult()
	assert.False(t, ok, "the first result send failed")
	assert.True(t, tb.dead("c"))

	tb.step(time.Second)
	for _, e := range tb.engines {
		result, ok := e.LastResult()
		require.True(t, ok)
		assert.Equal(t, "name-c was ejected.", result.Message)
	}
	tb.steps(3, time.Second)
	tb.assertPhase(models.PhasePlayingLit)
}

func TestEngine_ResolvedMeetingClosesAfterDeadline(t *testing.T) {
	tb := newTable(t, 3)
	tb.flakyAuthority(1 << 20)
	st := tb.openMeeting()

	for _, e := range tb.engines {
		require.NoError(t, e.Skip())
	}
	for tb.clock.Now().Before(st.Deadline.Add(3 * time.Second)) {
		tb.step(time.Second)
	}
	tb.assertPhase(models.PhasePlayingLit, "results never reached anyone")
	_, ok := tb.engines[1].LastResult()
	assert.False(t, ok)
}

func TestEngine_DepartedVoterDoesNotCompleteVoting(t *testing.T) {
	tb := newTable(t, 4)
	tb.openMeeting()

	require.NoError(t, tb.engines[1].CastVote("d"))
	tb.step(time.Second)
	tb.remove(1)

	// a, c and d are left; d has not voted
	require.NoError(t, tb.engines[0].CastVote("c"))
	require.NoError(t, tb.engines[1].CastVote("d"))
	tb.step(time.Second)
	tb.assertPhase(models.PhaseVoting)
	for _, e := range tb.engines {
		_, ok := e.LastResult()
		assert.False(t, ok, "voting stays open for d")
	}

	require.NoError(t, tb.engines[2].CastVote("c"))
	tb.step(time.Second)
	result, ok := tb.engines[2].LastResult()
	require.True(t, ok)
	assert.Equal(t, "name-c was ejected.", result.Message, "b's ballot for d no longer counts")
	assert.True(t, tb.dead("c"))
	assert.False(t, tb.dead("d"))
}

func TestEngine_BallotForDepartedTargetCountsAsAbstain(t *testing.T) {
	tb := newTable(t, 4)
	tb.openMeeting()

	require.NoError(t, tb.engines[1].CastVote("d"))
	tb.remove(3)
	tb.step(time.Second)

	authority := tb.engines[0]
	authority.mu.Lock()
	require.NotNil(t, authority.tally)
	assert.Equal(t, 1, authority.tally.Count(models.Abstain))
	authority.mu.Unlock()

	require.NoError(t, tb.engines[0].Skip())
	require.NoError(t, tb.engines[2].CastVote("b"))
	tb.step(time.Second)

	result, ok := tb.engines[1].LastResult()
	require.True(t, ok, "the remaining three ballots complete the meeting")
	assert.Equal(t, "No one was ejected. (Skipped)", result.Message)
}

func TestEngine_ObserverMayCallBack(t *testing.T) {
	tb := newTable(t, 2)
	follower := tb.engines[1]

	var phases []models.Phase
	var unsubscribe func()
	unsubscribe = follower.Subscribe(func(ev Event) {
		if ev.Kind == EventPhaseChanged {
			phases = append(phases, follower.Phase())
			unsubscribe()
		}
	})

	tb.openMeeting()
	for _, e := range tb.engines {
		require.NoError(t, e.Skip())
	}
	tb.steps(4, time.Second)
	tb.assertPhase(models.PhasePlayingLit)
	assert.Equal(t, []models.Phase{models.PhaseVoting}, phases)
}

func TestEngine_MeetingDuringDarkReturnsDark(t *testing.T) {
	tb := newTable(t, 3)
	tb.steps(35, time.Second)
	tb.assertPhase(models.PhasePlayingDark)

	var lighting []bool
	tb.engines[2].Subscribe(func(ev Event) {
		if ev.Kind == EventLighting {
			lighting = append(lighting, ev.Dark)
		}
	})

	tb.openMeeting()
	remaining := tb.engines[0].Remaining()
	for _, e := range tb.engines {
		require.NoError(t, e.Skip())
	}
	tb.steps(3, time.Second)
	tb.assertPhase(models.PhaseVoting)
	assert.Equal(t, remaining, tb.engines[0].Remaining(), "the clock stands still while voting")

	tb.step(time.Second)
	tb.assertPhase(models.PhasePlayingDark)
	assert.Equal(t, []bool{false, true}, lighting, "meetings light the room")
}

func TestEngine_AuthorityChangeRestartsVoting(t *testing.T) {
	tb := newTable(t, 4)
	tb.openMeeting()
	require.NoError(t, tb.engines[2].CastVote("d"))

	tb.remove(0)
	tb.step(time.Second)

	assert.True(t, tb.engines[0].IsAuthority())
	tb.assertPhase(models.PhaseVoting)
	want := tb.clock.Now().Add(120 * time.Second)
	for _, e := range tb.engines {
		st := e.Snapshot()
		assert.Equal(t, uint32(2), st.Meeting)
		assert.True(t, st.Deadline.Equal(want))
	}

	// ballots reopen under the new meeting
	require.NoError(t, tb.engines[0].CastVote("d"))
	require.NoError(t, tb.engines[1].CastVote("d"))
	require.NoError(t, tb.engines[2].Skip())
	tb.step(time.Second)

	result, ok := tb.engines[1].LastResult()
	require.True(t, ok)
	assert.Equal(t, uint32(2), result.Meeting)
	assert.True(t, tb.dead("d"))
}

func TestEngine_AuthorityChangeWhilePlayingKeepsClock(t *testing.T) {
	tb := newTable(t, 3)
	tb.steps(10, time.Second)

	tb.remove(0)
	tb.steps(25, time.Second)

	// b ran the clock from the replicated value: 10s + 25s elapsed
	tb.assertPhase(models.PhasePlayingDark)
	assert.InDelta(t, float64(1765*time.Second), float64(tb.engines[0].Remaining()), float64(2*time.Second))
}

func TestEngine_IgnoresAuthorityMessagesFromOthers(t *testing.T) {
	tb := newTable(t, 3)
	tb.step(time.Second)

	tb.inboxes[2].Deliver(network.Envelope{Sender: "b", Message: network.SetPhase{State: models.SessionState{
		Phase:    models.PhaseVoting,
		Deadline: tb.clock.Now().Add(time.Minute),
		Meeting:  1,
	}}})
	tb.inboxes[2].Deliver(network.Envelope{Sender: "b", Message: network.ShowResult{Meeting: 1, Message: "spoof"}})
	tb.step(time.Second)

	tb.assertPhase(models.PhasePlayingLit)
	_, ok := tb.engines[2].LastResult()
	assert.False(t, ok)
}

func TestEngine_SetPhaseConvergesOnLastMessage(t *testing.T) {
	tb := newTable(t, 3)
	follower := tb.engines[1]

	var opened int
	follower.Subscribe(func(ev Event) {
		if ev.Kind == EventVotingOpened {
			opened++
		}
	})

	voting := network.SetPhase{State: models.SessionState{
		Phase:    models.PhaseVoting,
		Deadline: tb.clock.Now().Add(time.Minute),
		Meeting:  5,
	}}
	tb.inboxes[1].Deliver(network.Envelope{Sender: "a", Message: voting})
	tb.inboxes[1].Deliver(network.Envelope{Sender: "a", Message: voting})
	follower.Tick(0)

	assert.Equal(t, models.PhaseVoting, follower.Phase())
	assert.Equal(t, uint32(5), follower.Snapshot().Meeting)
	assert.Equal(t, 1, opened, "re-delivery is a no-op")

	sequence := []models.Phase{models.PhasePlayingDark, models.PhasePlayingDark, models.PhasePlayingLit}
	for _, phase := range sequence {
		tb.inboxes[1].Deliver(network.Envelope{Sender: "a", Message: network.SetPhase{State: models.SessionState{Phase: phase, Meeting: 5}}})
	}
	follower.Tick(0)
	assert.Equal(t, models.PhasePlayingLit, follower.Phase())
}

func TestEngine_SyncStateWinsOverInterpolation(t *testing.T) {
	tb := newTable(t, 2)
	tb.steps(3, time.Second)

	tb.inboxes[1].Deliver(network.Envelope{Sender: "a", Message: network.SyncState{State: models.SessionState{
		Phase:     models.PhasePlayingLit,
		Remaining: 100 * time.Second,
	}}})
	tb.engines[1].Tick(0)
	assert.Equal(t, 100*time.Second, tb.engines[1].Remaining())
}

func TestEngine_EliminationWritesOnce(t *testing.T) {
	tb := newTable(t, 3)
	tb.step(time.Second)

	var writes int
	tb.engines[1].Subscribe(func(ev Event) {
		if ev.Kind == EventProperty && ev.Key == models.PropIsDead && ev.Member == "c" {
			writes++
		}
	})

	authority := tb.engines[0]
	authority.mu.Lock()
	authority.eliminate("c")
	authority.eliminate("c")
	delete(authority.eliminated, "c")
	authority.eliminate("c")
	authority.mu.Unlock()

	tb.step(time.Second)
	assert.True(t, tb.dead("c"))
	assert.Equal(t, 1, writes)
}

func TestEngine_StartRoundRequiresReadyRoom(t *testing.T) {
	tb := newTable(t, 3)
	tb.steps(40, time.Second)
	require.NoError(t, tb.endpoints[0].SetBool("c", models.PropIsDead, true))

	assert.ErrorIs(t, tb.engines[1].StartRound(), ErrNotAuthority)
	assert.ErrorIs(t, tb.engines[0].StartRound(), ErrNotReady)

	for _, e := range tb.engines {
		require.NoError(t, e.SetReady(true))
	}
	require.NoError(t, tb.engines[0].StartRound())
	assert.False(t, tb.dead("c"))
	assert.Equal(t, 1800*time.Second, tb.engines[0].Remaining())

	tb.step(time.Second)
	tb.assertPhase(models.PhasePlayingLit)
	for _, status := range tb.engines[1].Members() {
		assert.True(t, status.Alive)
		assert.True(t, status.Ready)
	}
}

func TestEngine_Unsubscribe(t *testing.T) {
	tb := newTable(t, 2)
	var events int
	unsubscribe := tb.engines[1].Subscribe(func(Event) { events++ })

	tb.step(time.Second)
	require.Positive(t, events)

	unsubscribe()
	seen := events
	tb.openMeeting()
	assert.Equal(t, seen, events)
}

type countingRecorder struct {
	meetings, ballots, resolved, eliminations int
	phases                                    []models.Phase
}

func (r *countingRecorder) MeetingStarted() { r.meetings++ }
func (r *countingRecorder) BallotCounted()  { r.ballots++ }
func (r *countingRecorder) VoteResolved(eliminated bool) {
	r.resolved++
	if eliminated {
		r.eliminations++
	}
}
func (r *countingRecorder) PhaseChanged(p models.Phase) { r.phases = append(r.phases, p) }

func TestEngine_Recorder(t *testing.T) {
	tb := newTable(t, 2)
	rec := &countingRecorder{}
	tb.engines[0].recorder = rec

	tb.openMeeting()
	require.NoError(t, tb.engines[0].CastVote("b"))
	require.NoError(t, tb.engines[1].Skip())
	tb.steps(4, time.Second)

	assert.Equal(t, 1, rec.meetings)
	assert.Equal(t, 2, rec.ballots)
	assert.Equal(t, 1, rec.resolved)
	assert.Equal(t, 0, rec.eliminations, "one vote against one abstain is a tie")
	assert.Equal(t, []models.Phase{models.PhaseVoting, models.PhasePlayingLit}, rec.phases)
}
