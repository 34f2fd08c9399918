package counter

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync/atomic"
	"time"

	"github.com/arloliu/go-coincounter/internal/pool"
	"github.com/arloliu/go-coincounter/logger"
)

// command request states.
const (
	reqQueued uint32 = iota
	reqRunning
	reqAbandoned
)

// commandRequest is one queued exchange.
type commandRequest struct {
	ctx     context.Context //nolint:containedctx
	command string
	seq     uint32
	timeout time.Duration
	attempt int
	state   atomic.Uint32
	result  chan commandResult
}

type commandResult struct {
	resp string
	err  error
}

// start claims the request for execution. It fails when the caller abandoned it.
func (r *commandRequest) start() bool {
	return r.state.CompareAndSwap(reqQueued, reqRunning)
}

// abandon marks a still-queued request as abandoned so the worker skips it.
func (r *commandRequest) abandon() bool {
	return r.state.CompareAndSwap(reqQueued, reqAbandoned)
}

func (r *commandRequest) finish(resp string, err error) {
	r.result <- commandResult{resp: resp, err: err}
}

// SendCommand writes command to the device and returns the trimmed response.
//
// A non-positive timeout uses the configured command timeout. Commands from
// concurrent callers are executed one at a time in FIFO order.
//
// Errors:
//   - NotConnectedError when disconnected and automatic reconnection is disabled or fails.
//   - CommandTimeoutError when no response byte arrived within timeout.
//   - CommunicationError when the transport failed; retried up to CommandRetries times.
//   - OperationAbortedError when ctx ended while waiting.
func (c *Counter) SendCommand(ctx context.Context, command string, timeout time.Duration) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", newAbortedError(command, err)
	}
	if c.closed.Load() {
		return "", ErrCounterClosed
	}
	if timeout <= 0 {
		timeout = c.cfg.commandTimeout
	}

	var lastErr error
	for attempt := 0; attempt <= c.cfg.commandRetries; attempt++ {
		if attempt > 0 {
			if err := pool.Sleep(ctx, c.cfg.retryDelay); err != nil {
				return "", c.aborted(command, err)
			}
		}

		if err := c.ensureConnected(ctx, command); err != nil {
			if lastErr != nil && !errors.Is(err, ErrOperationAborted) {
				// nothing left to retry on
				break
			}
			c.metrics.incCommandErrCount()

			return "", err
		}

		if attempt > 0 {
			c.metrics.incCommandRetryCount()
			c.logger.Debug("retrying command", "command", command, "attempt", attempt, "error", lastErr)
		}

		resp, err := c.dispatch(ctx, command, timeout, attempt)
		if err == nil {
			return resp, nil
		}
		if !errors.Is(err, ErrCommunication) {
			if !errors.Is(err, ErrOperationAborted) {
				c.metrics.incCommandErrCount()
			}

			return "", err
		}
		lastErr = err
	}

	c.metrics.incCommandErrCount()
	c.logger.Error("command failed", "command", command, "retries", c.cfg.commandRetries, "error", lastErr)

	return "", lastErr
}

// ensureConnected returns nil when a handle is open, otherwise runs automatic
// reconnection when enabled.
func (c *Counter) ensureConnected(ctx context.Context, op string) error {
	if c.currentHandle() != nil && c.IsConnected() {
		return nil
	}

	if !c.cfg.autoReconnect {
		return &NotConnectedError{Op: op}
	}

	return c.autoReconnect(ctx, op)
}

// dispatch queues one exchange on the command worker and waits for its result.
func (c *Counter) dispatch(ctx context.Context, command string, timeout time.Duration, attempt int) (string, error) {
	if c.cfg.useLock {
		if err := c.sem.Acquire(ctx, 1); err != nil {
			return "", c.aborted(command, err)
		}
		defer c.sem.Release(1)
	}

	req := &commandRequest{
		ctx:     ctx,
		command: command,
		seq:     c.seq.next(),
		timeout: timeout,
		attempt: attempt,
		result:  make(chan commandResult, 1),
	}

	c.metrics.incInflight()
	if !c.cmdWorker.submit(func() { c.execute(req) }) {
		c.metrics.decInflight()
		return "", ErrCounterClosed
	}

	select {
	case res := <-req.result:
		return res.resp, res.err
	case <-ctx.Done():
		if req.abandon() {
			c.logger.Debug("queued command abandoned", "command", command, "seq", req.seq)
		} else {
			c.logger.Debug("in-flight command abandoned", "command", command, "seq", req.seq)
		}

		return "", c.aborted(command, ctx.Err())
	}
}

func (c *Counter) aborted(command string, cause error) error {
	c.metrics.incCommandAbortCount()
	return newAbortedError(command, cause)
}

// execute runs on the command worker.
func (c *Counter) execute(req *commandRequest) {
	defer c.metrics.decInflight()

	if !req.start() {
		return
	}

	h := c.currentHandle()
	if h == nil {
		req.finish("", &NotConnectedError{Op: req.command})
		return
	}

	if c.cfg.rateLimit > 0 && !c.lastWrite.IsZero() {
		if wait := c.cfg.rateLimit - time.Since(c.lastWrite); wait > 0 {
			if err := pool.Sleep(req.ctx, wait); err != nil {
				req.finish("", newAbortedError(req.command, err))
				return
			}
		}
	}

	resp, err := c.exchange(h, req)
	if err != nil {
		var commErr *CommunicationError
		if errors.As(err, &commErr) {
			c.connectionLost(h, commErr.Cause)
		}
	}
	req.finish(resp, err)
}

// exchange writes the command and collects the response. It does not observe
// the caller's context; once written, an exchange always runs to completion so
// its reply cannot leak into the next command.
func (c *Counter) exchange(h *deviceHandle, req *commandRequest) (string, error) {
	l := c.logger.With("command", req.command, "seq", req.seq)

	if n := h.discardInput(); n > 0 {
		l.Debug("discarded stale input", "bytes", n)
	}
	if rb, ok := h.port.(interface{ ResetInputBuffer() error }); ok {
		if err := rb.ResetInputBuffer(); err != nil {
			l.Debug("failed to reset input buffer", "error", err)
		}
	}

	select {
	case err := <-h.rxErr:
		return "", &CommunicationError{Command: req.command, Cause: err}
	default:
	}

	c.lastWrite = time.Now()
	frame := []byte(req.command + "\r")
	n, err := h.port.Write(frame)
	c.metrics.addBytesWritten(n)
	if err == nil && n < len(frame) {
		err = io.ErrShortWrite
	}
	if err != nil {
		l.Warn("failed to write command", "error", err)
		return "", &CommunicationError{Command: req.command, Cause: err}
	}
	c.metrics.incCommandSendCount()
	l.Debug("command sent", "attempt", req.attempt)

	deadline := pool.GetTimer(req.timeout)
	defer pool.PutTimer(deadline)

	if c.cfg.commandDelay > 0 {
		delay := pool.GetTimer(c.cfg.commandDelay)
		expired := false
		select {
		case <-delay.C:
		case <-deadline.C:
			expired = true
		}
		pool.PutTimer(delay)

		if expired {
			var buf bytes.Buffer
			c.drainInto(h, &buf)

			return c.deadlineReached(req, &buf, l)
		}
	}

	var buf bytes.Buffer
	for {
		// take everything already buffered before checking for a terminator;
		// line ends ahead of any content belong to the previous reply
		c.drainInto(h, &buf)
		if bytes.ContainsAny(bytes.TrimLeft(buf.Bytes(), "\r\n"), "\r\n") {
			resp := strings.TrimSpace(buf.String())
			l.Debug("response received", "response", resp)

			return resp, nil
		}

		select {
		case chunk := <-h.rx:
			buf.Write(chunk)
			c.metrics.addBytesRead(len(chunk))
		case err := <-h.rxErr:
			l.Warn("failed to read response", "error", err)
			return "", &CommunicationError{Command: req.command, Cause: err}
		case <-deadline.C:
			c.drainInto(h, &buf)
			return c.deadlineReached(req, &buf, l)
		}
	}
}

// deadlineReached returns whatever arrived before the deadline, or a
// CommandTimeoutError when nothing but line ends did.
func (c *Counter) deadlineReached(req *commandRequest, buf *bytes.Buffer, l logger.Logger) (string, error) {
	resp := strings.TrimSpace(buf.String())
	if resp == "" {
		c.metrics.incCommandTimeoutCount()
		l.Warn("command timeout", "timeout", req.timeout)

		return "", &CommandTimeoutError{Command: req.command, Timeout: req.timeout}
	}

	l.Debug("response without terminator", "response", resp)

	return resp, nil
}

func (c *Counter) drainInto(h *deviceHandle, buf *bytes.Buffer) {
	for {
		select {
		case chunk := <-h.rx:
			buf.Write(chunk)
			c.metrics.addBytesRead(len(chunk))
		default:
			return
		}
	}
}
