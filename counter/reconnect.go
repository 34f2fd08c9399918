package counter

import (
	"context"
	"time"

	"github.com/arloliu/go-coincounter/internal/pool"
)

// Reconnect re-opens the most recently authorized device without prompting.
//
// It returns (false, nil) when a reconnect is already running. The current
// handle, if any, is released first. When no authorized device is present a
// ConnectionError is returned and the state becomes disconnected.
func (c *Counter) Reconnect(ctx context.Context) (bool, error) {
	if c.closed.Load() {
		return false, ErrCounterClosed
	}
	if err := ctx.Err(); err != nil {
		return false, newAbortedError("reconnect", err)
	}

	run, _ := c.beginReconnect()
	if !run {
		c.logger.Debug("reconnect already in progress")
		return false, nil
	}
	defer c.endReconnect()

	if err := c.reopen(ctx, c.disconnectGen.Load()); err != nil {
		_ = c.stateMgr.to(StateDisconnected)
		return false, err
	}

	c.metrics.incReconnectCount()
	c.emitReconnect(1)

	return true, nil
}

// autoReconnect runs the automatic reconnect sequence for op.
//
// Attempt k waits ReconnectDelay*k before re-opening. When another sequence is
// already running the call waits for its outcome instead of starting a new one.
func (c *Counter) autoReconnect(ctx context.Context, op string) error {
	if !c.cfg.autoReconnect {
		return &NotConnectedError{Op: op}
	}

	run, done := c.beginReconnect()
	if !run {
		select {
		case <-done:
		case <-ctx.Done():
			return newAbortedError(op, ctx.Err())
		}
		if c.currentHandle() != nil {
			return nil
		}

		return &NotConnectedError{Op: op}
	}
	defer c.endReconnect()

	if c.currentHandle() != nil && c.IsConnected() {
		return nil
	}

	gen := c.disconnectGen.Load()
	if err := c.stateMgr.to(StateReconnecting); err != nil {
		return &NotConnectedError{Op: op}
	}

	attempts := c.cfg.reconnectAttempts
	for k := 1; k <= attempts; k++ {
		delay := c.cfg.reconnectDelay * time.Duration(k)
		c.logger.Info("reconnecting", "op", op, "attempt", k, "max_attempts", attempts, "delay", delay)

		if err := pool.Sleep(ctx, delay); err != nil {
			_ = c.stateMgr.to(StateDisconnected)
			return newAbortedError(op, err)
		}

		if c.disconnectGen.Load() != gen {
			c.logger.Debug("reconnect stopped by disconnect", "op", op)
			return &NotConnectedError{Op: op}
		}

		c.metrics.incReconnectAttemptCount()
		err := c.reopen(ctx, gen)
		if err == nil {
			c.metrics.incReconnectCount()
			c.logger.Info("reconnected", "attempt", k)
			c.emitReconnect(k)

			return nil
		}
		c.logger.Warn("reconnect attempt failed", "attempt", k, "error", err)

		if ctx.Err() != nil {
			_ = c.stateMgr.to(StateDisconnected)
			return newAbortedError(op, ctx.Err())
		}
	}

	_ = c.stateMgr.to(StateDisconnected)
	c.logger.Error("reconnect attempts exhausted", "op", op, "attempts", attempts)
	c.emitReconnectFailed()

	return &NotConnectedError{Op: op}
}

// reopen releases the current handle and opens the first authorized device.
// On failure the state is left at reconnecting; callers decide when to give up.
// gen is the disconnect generation observed by the caller; an explicit
// Disconnect since then cancels the reopen.
func (c *Counter) reopen(ctx context.Context, gen uint64) error {
	if c.transport == nil {
		return &UnsupportedTransportError{Reason: "no transport configured"}
	}

	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()

	if c.disconnectGen.Load() != gen {
		return &NotConnectedError{Op: "reconnect"}
	}

	if h := c.detach(); h != nil {
		h.close()
		c.logger.Debug("released handle before reconnect", "port", h.info.Name)
	}

	if err := c.stateMgr.to(StateReconnecting); err != nil {
		return err
	}

	devices, err := c.transport.Authorized(ctx, c.cfg.filter)
	if err != nil {
		if ctx.Err() != nil {
			return newAbortedError("reconnect", ctx.Err())
		}

		return &ConnectionError{Msg: "failed to query authorized devices", Cause: err}
	}
	if len(devices) == 0 {
		return &ConnectionError{Msg: "no previously connected device found"}
	}

	h, err := c.openDevice(ctx, devices[0])
	if err != nil {
		return err
	}

	c.attach(h)
	if err := c.stateMgr.to(StateConnected); err != nil {
		c.detach()
		h.close()

		return err
	}
	c.logger.Info("device re-opened", "port", h.info.Name)

	return nil
}

// beginReconnect marks a reconnect sequence as running. It returns false and
// the running sequence's done channel when one is already active.
func (c *Counter) beginReconnect() (bool, <-chan struct{}) {
	c.reconnectMu.Lock()
	defer c.reconnectMu.Unlock()

	if c.reconnectDone != nil {
		return false, c.reconnectDone
	}
	c.reconnectDone = make(chan struct{})

	return true, c.reconnectDone
}

func (c *Counter) endReconnect() {
	c.reconnectMu.Lock()
	defer c.reconnectMu.Unlock()

	if c.reconnectDone != nil {
		close(c.reconnectDone)
		c.reconnectDone = nil
	}
}
