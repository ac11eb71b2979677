package state

import (
	"errors"
	"time"

	"github.com/wfunc/blackout/models"
)

// 状态机接口
type StateMachine interface {
	ChangeState(state State) error
	ForceState(state State)
	GetCurrentState() State
	AddTransition(from State, to State, condition func() bool) error
}

// 状态接口
type State interface {
	OnEnter()
	OnExit()
	OnUpdate(dt time.Duration)
	GetID() models.Phase
}

// ErrTransitionNotAllowed is returned when a state transition is not allowed.
var ErrTransitionNotAllowed = errors.New("state transition not allowed")

// BaseStateMachine 基础状态机实现。
// Only registered transitions are allowed through ChangeState. It is owned by a
// single tick goroutine, so state hooks may call back into it freely.
type BaseStateMachine struct {
	currentState State
	transitions  map[models.Phase]map[models.Phase]func() bool // fromState -> toState -> condition
}

func NewBaseStateMachine(initialState State) *BaseStateMachine {
	machine := &BaseStateMachine{
		currentState: initialState,
		transitions:  make(map[models.Phase]map[models.Phase]func() bool),
	}
	initialState.OnEnter()
	return machine
}

// CanChange reports whether ChangeState would accept a move to the given phase.
func (sm *BaseStateMachine) CanChange(to models.Phase) bool {
	conditions, exists := sm.transitions[sm.currentState.GetID()]
	if !exists {
		return false
	}
	condition, exists := conditions[to]
	if !exists {
		return false
	}
	return condition == nil || condition()
}

func (sm *BaseStateMachine) ChangeState(newState State) error {
	if !sm.CanChange(newState.GetID()) {
		return ErrTransitionNotAllowed
	}
	sm.ForceState(newState)
	return nil
}

// ForceState swaps states without consulting the transition table.
func (sm *BaseStateMachine) ForceState(newState State) {
	sm.currentState.OnExit()
	sm.currentState = newState
	sm.currentState.OnEnter()
}

func (sm *BaseStateMachine) GetCurrentState() State {
	return sm.currentState
}

func (sm *BaseStateMachine) AddTransition(from State, to State, condition func() bool) error {
	fromID := from.GetID()
	toID := to.GetID()

	if _, exists := sm.transitions[fromID]; !exists {
		sm.transitions[fromID] = make(map[models.Phase]func() bool)
	}

	sm.transitions[fromID][toID] = condition
	return nil
}

// PhaseStateBase 阶段状态基础结构
type PhaseStateBase struct {
	ID      models.Phase
	Session SessionContext
}

func (s *PhaseStateBase) GetID() models.Phase {
	return s.ID
}

func (s *PhaseStateBase) OnEnter() {}

func (s *PhaseStateBase) OnExit() {}

func (s *PhaseStateBase) OnUpdate(dt time.Duration) {}
