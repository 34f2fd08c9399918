package counter

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arloliu/go-coincounter/logger"
	"github.com/arloliu/go-coincounter/transport"
	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
)

// ReconnectEvent is passed to the reconnect handler.
type ReconnectEvent struct {
	// Attempt is the 1-based attempt that succeeded. Manual reconnects report 1.
	Attempt int
}

// Counter drives one coincidence counter device.
//
// All methods are safe for concurrent use. Commands from concurrent callers are
// executed one at a time in the order they were issued.
type Counter struct {
	id        string
	cfg       *Config
	transport transport.Transport
	logger    logger.Logger

	ctx      context.Context //nolint:containedctx
	cancel   context.CancelFunc
	closed   atomic.Bool
	stateMgr *connStateMgr

	// lifecycleMu serializes Connect, Disconnect and device re-opening.
	lifecycleMu sync.Mutex
	// handleMu guards handle; the command worker only takes the read side.
	handleMu sync.RWMutex
	handle   *deviceHandle

	// disconnectGen increases on every explicit Disconnect and stops a running
	// automatic reconnect sequence.
	disconnectGen atomic.Uint64

	reconnectMu   sync.Mutex
	reconnectDone chan struct{}

	cmdWorker   *serialWorker
	eventWorker *serialWorker
	sem         *semaphore.Weighted
	seq         *seqGenerator

	// lastWrite is only accessed by the command worker.
	lastWrite time.Time

	handlersMu        sync.RWMutex
	onDisconnect      func()
	onReconnect       func(ReconnectEvent)
	onReconnectFailed func()
	onStateChange     func(StateChange)

	metrics Metrics
}

// NewCounter creates a Counter that reaches the device through tr.
//
// A nil cfg uses the defaults of NewConfig. A nil tr is accepted; Connect then
// reports an UnsupportedTransportError.
//
// The returned Counter starts disconnected. Call Close to release it.
func NewCounter(ctx context.Context, tr transport.Transport, cfg *Config) (*Counter, error) {
	if cfg == nil {
		var err error
		if cfg, err = NewConfig(); err != nil {
			return nil, err
		}
	}

	id := uuid.NewString()
	c := &Counter{
		id:        id,
		cfg:       cfg,
		transport: tr,
		logger:    cfg.logger.With("engine", id),
		sem:       semaphore.NewWeighted(1),
		seq:       newSeqGenerator(),
	}
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.stateMgr = newConnStateMgr(c.logger, c.stateChanged)
	c.cmdWorker = newSerialWorker("command", c.logger)
	c.eventWorker = newSerialWorker("event", c.logger)

	c.logger.Debug("counter created",
		"baud", cfg.baudRate,
		"filter", cfg.filter.String(),
		"auto_reconnect", cfg.autoReconnect,
	)

	return c, nil
}

// ID returns the engine instance id used in log records.
func (c *Counter) ID() string { return c.id }

// Config returns the configuration of the Counter.
func (c *Counter) Config() *Config { return c.cfg }

// State returns the current connection state.
func (c *Counter) State() ConnState { return c.stateMgr.State() }

// IsConnected returns if a device handle is open.
func (c *Counter) IsConnected() bool { return c.stateMgr.State().IsConnected() }

// IsReconnecting returns if a reconnect sequence is running.
func (c *Counter) IsReconnecting() bool {
	c.reconnectMu.Lock()
	defer c.reconnectMu.Unlock()

	return c.reconnectDone != nil
}

// WaitState waits until the connection state equals state or ctx is done.
func (c *Counter) WaitState(ctx context.Context, state ConnState) error {
	return c.stateMgr.waitState(ctx, state)
}

// Device returns the identity of the connected device.
func (c *Counter) Device() (transport.DeviceInfo, bool) {
	h := c.currentHandle()
	if h == nil {
		return transport.DeviceInfo{}, false
	}

	return h.info, true
}

// Metrics returns the metrics of the Counter.
func (c *Counter) Metrics() *Metrics { return &c.metrics }

// OnDisconnect sets the handler invoked when a connection was released.
// Handlers run on a dedicated goroutine in event order; nil clears it.
func (c *Counter) OnDisconnect(f func()) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	c.onDisconnect = f
}

// OnReconnect sets the handler invoked after a successful reconnect.
func (c *Counter) OnReconnect(f func(ReconnectEvent)) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	c.onReconnect = f
}

// OnReconnectFailed sets the handler invoked when automatic reconnection gave up.
func (c *Counter) OnReconnectFailed(f func()) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	c.onReconnectFailed = f
}

// OnConnStateChange sets the handler invoked on every connection state transition.
func (c *Counter) OnConnStateChange(f func(StateChange)) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	c.onStateChange = f
}

// Close disconnects the device and stops the engine goroutines.
// Queued commands fail with ErrCounterClosed.
func (c *Counter) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}

	c.logger.Debug("closing counter")
	c.cancel()
	c.Disconnect()
	c.cmdWorker.stop()
	c.eventWorker.stop()

	return nil
}

func (c *Counter) stateChanged(prev, cur ConnState) {
	c.handlersMu.RLock()
	f := c.onStateChange
	c.handlersMu.RUnlock()

	if f != nil {
		change := StateChange{Previous: prev, Current: cur}
		c.emit(func() { f(change) })
	}
}

func (c *Counter) emitDisconnect() {
	c.handlersMu.RLock()
	f := c.onDisconnect
	c.handlersMu.RUnlock()

	if f != nil {
		c.emit(f)
	}
}

func (c *Counter) emitReconnect(attempt int) {
	c.handlersMu.RLock()
	f := c.onReconnect
	c.handlersMu.RUnlock()

	if f != nil {
		ev := ReconnectEvent{Attempt: attempt}
		c.emit(func() { f(ev) })
	}
}

func (c *Counter) emitReconnectFailed() {
	c.handlersMu.RLock()
	f := c.onReconnectFailed
	c.handlersMu.RUnlock()

	if f != nil {
		c.emit(f)
	}
}

func (c *Counter) emit(f func()) {
	if !c.eventWorker.submit(f) {
		c.logger.Debug("event dropped, counter closed")
	}
}
