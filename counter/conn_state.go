package counter

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/arloliu/go-coincounter/logger"
)

// ConnState represents the connection lifecycle stage of a Counter.
type ConnState uint32

// Connection states.
const (
	// StateDisconnected indicates no device handle is held.
	StateDisconnected ConnState = iota
	// StateConnecting indicates Connect is selecting and opening a device.
	StateConnecting
	// StateConnected indicates a device handle is open and commands can be exchanged.
	StateConnected
	// StateReconnecting indicates a manual or automatic reconnect is running.
	StateReconnecting
)

// String returns string representation of the state.
func (cs ConnState) String() string {
	switch cs {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// IsConnected returns if the state is connected.
func (cs ConnState) IsConnected() bool { return cs == StateConnected }

// StateChange describes one connection state transition.
type StateChange struct {
	Previous ConnState
	Current  ConnState
}

// allowed transitions, keyed by source state.
var validTransitions = map[ConnState][]ConnState{
	StateDisconnected: {StateConnecting, StateReconnecting},
	StateConnecting:   {StateConnected, StateDisconnected},
	StateConnected:    {StateDisconnected, StateReconnecting},
	StateReconnecting: {StateConnected, StateDisconnected},
}

// canTransition reports whether from -> to is an allowed transition.
func canTransition(from, to ConnState) bool {
	return slices.Contains(validTransitions[from], to)
}

// connStateMgr owns the connection state of a Counter.
//
// Transitions are serialized by mu; the change callback is invoked with mu held,
// so it must not block. The Counter forwards changes to its event worker.
type connStateMgr struct {
	mu       sync.Mutex
	cond     *sync.Cond
	state    atomic.Uint32
	logger   logger.Logger
	onChange func(prev, cur ConnState)
}

func newConnStateMgr(l logger.Logger, onChange func(prev, cur ConnState)) *connStateMgr {
	m := &connStateMgr{logger: l, onChange: onChange}
	m.state.Store(uint32(StateDisconnected))
	m.cond = sync.NewCond(&m.mu)

	return m
}

// State returns the current state.
func (m *connStateMgr) State() ConnState {
	return ConnState(m.state.Load())
}

// to transitions to state. It is a no-op when already in state and returns
// ErrInvalidTransition when the transition is not allowed.
func (m *connStateMgr) to(state ConnState) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur := m.State()
	if cur == state {
		return nil
	}

	if !canTransition(cur, state) {
		m.logger.Warn("invalid connection state transition", "from", cur, "to", state)
		return ErrInvalidTransition
	}

	m.state.Store(uint32(state))
	m.cond.Broadcast()
	m.logger.Debug("connection state changed", "from", cur, "to", state)

	if m.onChange != nil {
		m.onChange(cur, state)
	}

	return nil
}

// waitState waits for the state to reach state or until ctx is done.
func (m *connStateMgr) waitState(ctx context.Context, state ConnState) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.State() == state {
		return nil
	}

	stop := context.AfterFunc(ctx, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.cond.Broadcast()
	})
	defer stop()

	for m.State() != state {
		if err := ctx.Err(); err != nil {
			return err
		}
		m.cond.Wait()
	}

	return nil
}
