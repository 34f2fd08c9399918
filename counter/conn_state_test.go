package counter

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/arloliu/go-coincounter/logger"
	"github.com/stretchr/testify/require"
)

func TestConnState_String(t *testing.T) {
	require.Equal(t, "disconnected", StateDisconnected.String())
	require.Equal(t, "connecting", StateConnecting.String())
	require.Equal(t, "connected", StateConnected.String())
	require.Equal(t, "reconnecting", StateReconnecting.String())
	require.Equal(t, "unknown", ConnState(99).String())
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to ConnState
		ok       bool
	}{
		{StateDisconnected, StateConnecting, true},
		{StateConnecting, StateConnected, true},
		{StateConnecting, StateDisconnected, true},
		{StateConnected, StateDisconnected, true},
		{StateConnected, StateReconnecting, true},
		{StateReconnecting, StateConnected, true},
		{StateReconnecting, StateDisconnected, true},
		{StateDisconnected, StateReconnecting, true},

		{StateDisconnected, StateConnected, false},
		{StateConnecting, StateReconnecting, false},
		{StateConnected, StateConnecting, false},
		{StateReconnecting, StateConnecting, false},
	}

	for _, tt := range tests {
		require.Equal(t, tt.ok, canTransition(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestConnStateMgr_Transitions(t *testing.T) {
	require := require.New(t)

	var mu sync.Mutex
	var changes []StateChange
	m := newConnStateMgr(logger.GetLogger(), func(prev, cur ConnState) {
		mu.Lock()
		defer mu.Unlock()
		changes = append(changes, StateChange{Previous: prev, Current: cur})
	})

	require.Equal(StateDisconnected, m.State())
	require.ErrorIs(m.to(StateConnected), ErrInvalidTransition)
	require.Equal(StateDisconnected, m.State())

	require.NoError(m.to(StateConnecting))
	require.NoError(m.to(StateConnected))
	require.NoError(m.to(StateConnected)) // same state is a no-op
	require.NoError(m.to(StateReconnecting))
	require.NoError(m.to(StateDisconnected))

	mu.Lock()
	defer mu.Unlock()
	require.Equal([]StateChange{
		{StateDisconnected, StateConnecting},
		{StateConnecting, StateConnected},
		{StateConnected, StateReconnecting},
		{StateReconnecting, StateDisconnected},
	}, changes)
}

func TestConnStateMgr_WaitState(t *testing.T) {
	require := require.New(t)

	m := newConnStateMgr(logger.GetLogger(), nil)
	require.NoError(m.waitState(context.Background(), StateDisconnected))

	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = m.to(StateConnecting)
		_ = m.to(StateConnected)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(m.waitState(ctx, StateConnected))

	ctx2, cancel2 := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel2()
	require.ErrorIs(m.waitState(ctx2, StateReconnecting), context.DeadlineExceeded)
}
