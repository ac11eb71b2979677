package state

import (
	"time"

	"github.com/wfunc/blackout/models"
)

// PlayingState 游戏进行状态（亮灯或暗灯）
type PlayingState struct {
	PhaseStateBase
}

func NewPlayingState(ctx SessionContext, dark bool) *PlayingState {
	id := models.PhasePlayingLit
	if dark {
		id = models.PhasePlayingDark
	}
	return &PlayingState{
		PhaseStateBase: PhaseStateBase{ID: id, Session: ctx},
	}
}

func (s *PlayingState) Dark() bool {
	return s.ID == models.PhasePlayingDark
}

// OnEnter 进入游戏状态，刷新灯光
func (s *PlayingState) OnEnter() {
	s.Session.LightingChanged(s.Dark())
}

func (s *PlayingState) OnUpdate(dt time.Duration) {
	s.Session.PlayingUpdate(dt)
}

// VotingState 会议投票状态
type VotingState struct {
	PhaseStateBase
	deadline func() time.Time
	meeting  func() uint32
	entered  uint32
}

func NewVotingState(ctx SessionContext, deadline func() time.Time, meeting func() uint32) *VotingState {
	return &VotingState{
		PhaseStateBase: PhaseStateBase{ID: models.PhaseVoting, Session: ctx},
		deadline:       deadline,
		meeting:        meeting,
	}
}

// OnEnter 进入投票状态：打开投票面板并点亮全局灯光
func (s *VotingState) OnEnter() {
	s.entered = s.meeting()
	s.Session.LightingChanged(false)
	s.Session.VotingOpened(s.entered, s.deadline())
}

// OnExit 退出投票状态
func (s *VotingState) OnExit() {
	s.Session.VotingClosed(s.entered)
}

func (s *VotingState) OnUpdate(dt time.Duration) {
	s.Session.VotingUpdate(dt)
}
