package counter

import (
	"context"
	"errors"

	"github.com/arloliu/go-coincounter/internal/pool"
	"github.com/arloliu/go-coincounter/transport"
)

// Connect selects a device through the transport, opens it and waits for the
// settle delay.
//
// Connect is a no-op when already connected and returns ErrConnectInProgress
// while another connect or reconnect is running. Selection dismissal is
// reported as DeviceSelectionCancelledError; other failures as ConnectionError.
// On any failure the state returns to disconnected.
func (c *Counter) Connect(ctx context.Context) error {
	if c.closed.Load() {
		return ErrCounterClosed
	}
	if c.transport == nil {
		return &UnsupportedTransportError{Reason: "no transport configured"}
	}
	if err := ctx.Err(); err != nil {
		return newAbortedError("connect", err)
	}

	if c.IsReconnecting() {
		return ErrConnectInProgress
	}

	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()

	switch c.stateMgr.State() {
	case StateConnected:
		return nil
	case StateConnecting, StateReconnecting:
		return ErrConnectInProgress
	}

	if err := c.stateMgr.to(StateConnecting); err != nil {
		return err
	}

	c.logger.Info("connecting", "filter", c.cfg.filter.String())

	dev, err := c.transport.Select(ctx, c.cfg.filter)
	if err != nil {
		_ = c.stateMgr.to(StateDisconnected)
		return c.selectionError(ctx, err)
	}

	h, err := c.openDevice(ctx, dev)
	if err != nil {
		_ = c.stateMgr.to(StateDisconnected)
		return err
	}

	c.attach(h)
	if err := c.stateMgr.to(StateConnected); err != nil {
		c.detach()
		h.close()

		return err
	}

	c.logger.Info("connected", "port", h.info.Name, "vid", h.info.VendorID, "pid", h.info.ProductID)

	return nil
}

func (c *Counter) selectionError(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, transport.ErrSelectionCancelled):
		c.logger.Info("device selection cancelled")
		return &DeviceSelectionCancelledError{}
	case errors.Is(err, transport.ErrUnsupported):
		return &UnsupportedTransportError{Reason: err.Error()}
	case ctx.Err() != nil:
		return newAbortedError("connect", ctx.Err())
	default:
		c.logger.Warn("device selection failed", "error", err)
		return &ConnectionError{Msg: "device selection failed", Cause: err}
	}
}

// openDevice opens dev, starts its reader and waits for the settle delay.
// The device is recorded as authorized on success.
func (c *Counter) openDevice(ctx context.Context, dev transport.Device) (*deviceHandle, error) {
	info := dev.Info()

	port, err := dev.Open(ctx, c.cfg.baudRate)
	if err != nil {
		if ctx.Err() != nil {
			return nil, newAbortedError("open", ctx.Err())
		}
		c.logger.Warn("failed to open device", "port", info.Name, "error", err)

		return nil, &ConnectionError{Msg: "failed to open device " + info.Name, Cause: err}
	}

	h := newDeviceHandle(port, info, c.logger, c.connectionLost)

	if err := pool.Sleep(ctx, c.cfg.settleDelay); err != nil {
		h.close()
		return nil, newAbortedError("settle", err)
	}

	if a, ok := c.transport.(transport.Authorizer); ok {
		a.Authorize(info)
	}

	return h, nil
}

// Disconnect releases the device. It is idempotent and never fails; the
// disconnect handler runs only when a handle was actually released.
func (c *Counter) Disconnect() {
	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()

	c.disconnectGen.Add(1)

	h := c.detach()
	_ = c.stateMgr.to(StateDisconnected)
	if h == nil {
		return
	}

	h.close()
	c.logger.Info("disconnected", "port", h.info.Name)
	c.emitDisconnect()
}

// connectionLost tears down h after a transport failure and starts automatic
// reconnection in the background when enabled.
func (c *Counter) connectionLost(h *deviceHandle, cause error) {
	c.handleMu.Lock()
	if c.handle != h {
		c.handleMu.Unlock()
		return
	}
	c.handle = nil
	c.handleMu.Unlock()

	h.close()
	c.metrics.incConnLostCount()
	c.logger.Warn("connection lost", "port", h.info.Name, "error", cause)

	if err := c.stateMgr.to(StateDisconnected); err != nil {
		c.logger.Debug("state not changed on connection loss", "state", c.State(), "error", err)
	}
	c.emitDisconnect()

	if c.cfg.autoReconnect && !c.closed.Load() {
		go func() {
			if err := c.autoReconnect(c.ctx, "background"); err != nil {
				c.logger.Debug("background reconnect ended", "error", err)
			}
		}()
	}
}

func (c *Counter) currentHandle() *deviceHandle {
	c.handleMu.RLock()
	defer c.handleMu.RUnlock()

	return c.handle
}

func (c *Counter) attach(h *deviceHandle) {
	c.handleMu.Lock()
	defer c.handleMu.Unlock()

	if c.handle != nil && c.handle != h {
		c.handle.close()
	}
	c.handle = h
}

func (c *Counter) detach() *deviceHandle {
	c.handleMu.Lock()
	defer c.handleMu.Unlock()

	h := c.handle
	c.handle = nil

	return h
}
