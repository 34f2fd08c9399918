// Package counter is a client for an 8-channel coincidence counter attached
// over a USB serial link.
//
// A Counter owns one device connection. It turns the line-oriented ASCII
// protocol of the device into typed, cancellable calls:
//
//	tr := transport.NewSerialTransport()
//	cfg, _ := counter.NewConfig(counter.WithAutoReconnect(true), counter.WithCommandRetries(2))
//	c, _ := counter.NewCounter(ctx, tr, cfg)
//	defer c.Close()
//
//	if err := c.Connect(ctx); err != nil {
//		// handle err
//	}
//	m, err := c.MeasureCoincidenceRate(ctx, counter.DefaultCoincidenceParams(10*time.Second))
//
// # Commands
//
// Every command goes through SendCommand. Commands are executed one at a time
// by a single worker goroutine, in the order they were issued. A command
// writes "<text>\r" and returns the response up to the first CR or LF, with
// surrounding whitespace removed.
//
// # Connection states
//
// The connection moves between StateDisconnected, StateConnecting,
// StateConnected and StateReconnecting. Transitions are reported through
// OnConnStateChange. When automatic reconnection is enabled, a command issued
// while disconnected first runs up to ReconnectAttempts reconnect attempts,
// waiting ReconnectDelay*k before attempt k.
//
// # Errors
//
// Errors returned by a Counter match ErrDevice with errors.Is, and each kind
// matches its own sentinel, e.g. ErrCommandTimeout or ErrNotConnected. The
// lifecycle sentinels ErrCounterClosed, ErrConnectInProgress and
// ErrInvalidTransition wrap ErrDevice as well. Config validation errors from
// NewConfig do not.
// Use errors.As to inspect the payload of a typed error.
//
// # Cancellation
//
// A context that is done before a call starts fails the call with
// OperationAbortedError without any I/O. Cancelling while a call waits returns
// the same error promptly. A command already written to the device is still
// completed by the worker, so its response never reaches a later command.
package counter
