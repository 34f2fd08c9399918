package counter

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/arloliu/go-coincounter/transport"
	"github.com/stretchr/testify/require"
)

func TestConnect(t *testing.T) {
	require := require.New(t)

	tr := newFakeTransport(deviceResponder(staticCounts("0 0 0 0 0 0 0 0 0")))
	c := newTestCounter(t, tr)

	var mu sync.Mutex
	var changes []StateChange
	c.OnConnStateChange(func(sc StateChange) {
		mu.Lock()
		defer mu.Unlock()
		changes = append(changes, sc)
	})

	require.Equal(StateDisconnected, c.State())
	require.NoError(c.Connect(context.Background()))
	require.True(c.IsConnected())

	info, ok := c.Device()
	require.True(ok)
	require.Equal(testDeviceInfo, info)
	require.Equal([]transport.DeviceInfo{testDeviceInfo}, tr.authInfos)

	// connect while connected is satisfied without touching the transport
	require.NoError(c.Connect(context.Background()))
	require.Equal(int32(1), tr.selectCalls.Load())
	require.Equal(1, tr.portCount())

	require.Eventually(func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(changes) == 2
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Equal([]StateChange{
		{StateDisconnected, StateConnecting},
		{StateConnecting, StateConnected},
	}, changes)
}

func TestConnect_SettleDelay(t *testing.T) {
	tr := newFakeTransport(deviceResponder(staticCounts("0 0 0 0 0 0 0 0 0")))
	c := newTestCounter(t, tr, WithSettleDelay(60*time.Millisecond))

	start := time.Now()
	require.NoError(t, c.Connect(context.Background()))
	require.GreaterOrEqual(t, time.Since(start), 60*time.Millisecond)
}

func TestConnect_SettleAborted(t *testing.T) {
	require := require.New(t)

	tr := newFakeTransport(deviceResponder(staticCounts("0 0 0 0 0 0 0 0 0")))
	c := newTestCounter(t, tr, WithSettleDelay(5*time.Second))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	err := c.Connect(ctx)
	require.ErrorIs(err, ErrOperationAborted)
	require.Equal(StateDisconnected, c.State())
	require.True(tr.port(0).isClosed())
}

func TestConnect_SelectionCancelled(t *testing.T) {
	require := require.New(t)

	tr := newFakeTransport(nil)
	tr.setSelectErr(fmt.Errorf("picker closed: %w", transport.ErrSelectionCancelled))
	c := newTestCounter(t, tr)

	err := c.Connect(context.Background())
	require.ErrorIs(err, ErrDeviceSelectionCancelled)
	require.ErrorIs(err, ErrDevice)
	require.Equal(StateDisconnected, c.State())
}

func TestConnect_Unsupported(t *testing.T) {
	c := newTestCounter(t, nil)
	err := c.Connect(context.Background())
	require.ErrorIs(t, err, ErrUnsupportedTransport)

	tr := newFakeTransport(nil)
	tr.setSelectErr(transport.ErrUnsupported)
	c = newTestCounter(t, tr)
	err = c.Connect(context.Background())
	require.ErrorIs(t, err, ErrUnsupportedTransport)
}

func TestConnect_OpenFailure(t *testing.T) {
	require := require.New(t)

	openErr := errors.New("permission denied")
	tr := newFakeTransport(nil)
	tr.openErr = openErr
	c := newTestCounter(t, tr)

	err := c.Connect(context.Background())
	require.ErrorIs(err, ErrConnection)
	require.ErrorIs(err, openErr)
	require.Equal(StateDisconnected, c.State())

	// the failed attempt does not block the next one
	tr.mu.Lock()
	tr.openErr = nil
	tr.mu.Unlock()
	require.NoError(c.Connect(context.Background()))
}

func TestConnect_PreAborted(t *testing.T) {
	tr := newFakeTransport(nil)
	c := newTestCounter(t, tr)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := c.Connect(ctx)
	require.ErrorIs(t, err, ErrOperationAborted)
	require.Zero(t, tr.selectCalls.Load())
}

func TestConnect_WhileReconnecting(t *testing.T) {
	tr := newFakeTransport(nil)
	c := newTestCounter(t, tr)

	run, _ := c.beginReconnect()
	require.True(t, run)
	defer c.endReconnect()

	require.ErrorIs(t, c.Connect(context.Background()), ErrConnectInProgress)
}

func TestDisconnect_Twice(t *testing.T) {
	require := require.New(t)

	tr := newFakeTransport(deviceResponder(staticCounts("0 0 0 0 0 0 0 0 0")))
	c := newConnectedCounter(t, tr)

	disconnects := make(chan struct{}, 4)
	c.OnDisconnect(func() { disconnects <- struct{}{} })

	c.Disconnect()
	c.Disconnect()
	require.Equal(StateDisconnected, c.State())
	require.True(tr.port(0).isClosed())

	select {
	case <-disconnects:
	case <-time.After(time.Second):
		require.Fail("disconnect handler not invoked")
	}
	// the second call released nothing
	select {
	case <-disconnects:
		require.Fail("disconnect handler invoked twice")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDisconnect_NeverConnected(t *testing.T) {
	c := newTestCounter(t, newFakeTransport(nil))
	c.Disconnect()
	require.Equal(t, StateDisconnected, c.State())
}

func TestReconnect_Manual(t *testing.T) {
	require := require.New(t)

	tr := newFakeTransport(deviceResponder(staticCounts("0 0 0 0 0 0 0 0 0")))
	c := newConnectedCounter(t, tr)

	events := make(chan ReconnectEvent, 1)
	c.OnReconnect(func(ev ReconnectEvent) { events <- ev })

	ok, err := c.Reconnect(context.Background())
	require.NoError(err)
	require.True(ok)
	require.Equal(StateConnected, c.State())
	require.Equal(2, tr.portCount())
	require.True(tr.port(0).isClosed())
	require.Equal(int32(1), tr.selectCalls.Load())
	require.Equal(int32(1), tr.authorizedCalls.Load())

	select {
	case ev := <-events:
		require.Equal(1, ev.Attempt)
	case <-time.After(time.Second):
		require.Fail("reconnect handler not invoked")
	}

	// commands use the new handle
	_, err = c.Version(context.Background())
	require.NoError(err)
	require.Equal([]string{"v"}, tr.port(1).Writes())
}

func TestReconnect_NoDevice(t *testing.T) {
	require := require.New(t)

	tr := newFakeTransport(deviceResponder(staticCounts("0 0 0 0 0 0 0 0 0")))
	c := newConnectedCounter(t, tr)
	tr.setAvailable(false)

	ok, err := c.Reconnect(context.Background())
	require.False(ok)
	require.ErrorIs(err, ErrConnection)
	require.Contains(err.Error(), "no previously connected device found")
	require.Equal(StateDisconnected, c.State())
	require.True(tr.port(0).isClosed())
}

func TestReconnect_AlreadyRunning(t *testing.T) {
	tr := newFakeTransport(nil)
	c := newTestCounter(t, tr)

	run, _ := c.beginReconnect()
	require.True(t, run)
	require.True(t, c.IsReconnecting())

	ok, err := c.Reconnect(context.Background())
	require.NoError(t, err)
	require.False(t, ok)
	require.Zero(t, tr.authorizedCalls.Load())

	c.endReconnect()
	require.False(t, c.IsReconnecting())
}

func TestAutoReconnect_BoundedAttempts(t *testing.T) {
	require := require.New(t)

	tr := newFakeTransport(nil)
	tr.setAvailable(false)
	c := newTestCounter(t, tr, WithAutoReconnect(true), WithReconnectAttempts(4))

	failed := make(chan struct{}, 2)
	c.OnReconnectFailed(func() { failed <- struct{}{} })

	_, err := c.SendCommand(context.Background(), "v", 0)
	require.ErrorIs(err, ErrNotConnected)
	require.Equal(int32(4), tr.authorizedCalls.Load())
	require.Equal(uint64(4), c.Metrics().ReconnectAttemptCount.Load())
	require.Equal(StateDisconnected, c.State())

	select {
	case <-failed:
	case <-time.After(time.Second):
		require.Fail("reconnect failed handler not invoked")
	}
}

func TestAutoReconnect_LinearBackoff(t *testing.T) {
	tr := newFakeTransport(nil)
	tr.setAvailable(false)
	c := newTestCounter(t, tr,
		WithAutoReconnect(true),
		WithReconnectAttempts(3),
		WithReconnectDelay(20*time.Millisecond),
	)

	start := time.Now()
	_, err := c.SendCommand(context.Background(), "v", 0)
	require.ErrorIs(t, err, ErrNotConnected)
	// 20 + 40 + 60 ms
	require.GreaterOrEqual(t, time.Since(start), 120*time.Millisecond)
}

func TestAutoReconnect_AfterUnplug(t *testing.T) {
	require := require.New(t)

	tr := newFakeTransport(deviceResponder(staticCounts("0 0 0 0 0 0 0 0 0")))
	c := newConnectedCounter(t, tr, WithAutoReconnect(true))

	disconnected := make(chan struct{}, 1)
	reconnected := make(chan ReconnectEvent, 1)
	c.OnDisconnect(func() { disconnected <- struct{}{} })
	c.OnReconnect(func(ev ReconnectEvent) { reconnected <- ev })

	tr.port(0).unplug()

	select {
	case <-disconnected:
	case <-time.After(time.Second):
		require.Fail("disconnect handler not invoked")
	}
	select {
	case ev := <-reconnected:
		require.Equal(1, ev.Attempt)
	case <-time.After(time.Second):
		require.Fail("reconnect handler not invoked")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(c.WaitState(ctx, StateConnected))
	require.Equal(2, tr.portCount())
	require.Equal(uint64(1), c.Metrics().ConnLostCount.Load())

	_, err := c.Version(context.Background())
	require.NoError(err)
}

func TestAutoReconnect_StoppedByDisconnect(t *testing.T) {
	require := require.New(t)

	tr := newFakeTransport(nil)
	tr.setAvailable(false)
	c := newTestCounter(t, tr,
		WithAutoReconnect(true),
		WithReconnectAttempts(10),
		WithReconnectDelay(20*time.Millisecond),
	)

	errCh := make(chan error, 1)
	go func() {
		_, err := c.SendCommand(context.Background(), "v", 0)
		errCh <- err
	}()

	require.Eventually(c.IsReconnecting, time.Second, time.Millisecond)
	c.Disconnect()

	select {
	case err := <-errCh:
		require.ErrorIs(err, ErrNotConnected)
	case <-time.After(2 * time.Second):
		require.Fail("reconnect not stopped")
	}
	require.Less(tr.authorizedCalls.Load(), int32(10))
	require.Equal(StateDisconnected, c.State())
}

func TestClose(t *testing.T) {
	require := require.New(t)

	tr := newFakeTransport(deviceResponder(staticCounts("0 0 0 0 0 0 0 0 0")))
	cfg, err := NewConfig(fastOpts()...)
	require.NoError(err)
	c, err := NewCounter(context.Background(), tr, cfg)
	require.NoError(err)
	require.NotEmpty(c.ID())
	require.NoError(c.Connect(context.Background()))

	disconnected := make(chan struct{}, 1)
	c.OnDisconnect(func() { disconnected <- struct{}{} })

	require.NoError(c.Close())
	require.NoError(c.Close())
	require.Equal(StateDisconnected, c.State())
	require.True(tr.port(0).isClosed())

	// handlers queued before close still run
	select {
	case <-disconnected:
	default:
		require.Fail("disconnect handler not invoked before close returned")
	}

	require.ErrorIs(c.Connect(context.Background()), ErrCounterClosed)
	_, err = c.SendCommand(context.Background(), "v", 0)
	require.ErrorIs(err, ErrCounterClosed)
}
