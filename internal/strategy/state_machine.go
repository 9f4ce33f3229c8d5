package strategy

import "sync"

// StateMachine tracks where one market is in the buy-both-sides cycle.
// There is never more than one working order, so the state fully
// describes what the market is waiting on.
type StateMachine struct {
	mu    sync.Mutex
	State State
}

func NewStateMachine() *StateMachine {
	return &StateMachine{State: StateIdle}
}

func (s *StateMachine) Apply(event Event) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.State = nextState(s.State, event)
	return s.State
}

func (s *StateMachine) Current() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.State
}

func nextState(current State, event Event) State {
	if event == EventExit && current != StateExiting {
		return StateExiting
	}
	switch current {
	case StateIdle:
		if event == EventBidUp {
			return StateBiddingUp
		}
		if event == EventBidDown {
			return StateBiddingDown
		}
	case StateBiddingUp:
		if event == EventBidDown {
			return StateBiddingDown
		}
		if event == EventPairDone || event == EventAbandon {
			return StateIdle
		}
	case StateBiddingDown:
		if event == EventBidUp {
			return StateBiddingUp
		}
		if event == EventPairDone || event == EventAbandon {
			return StateIdle
		}
	case StateExiting:
		if event == EventDone {
			return StateIdle
		}
	}
	return current
}
