package counter

import "sync/atomic"

// Metrics contains atomic counters of a Counter.
// Metrics can be used as the value of a prometheus CounterFunc or GaugeFunc.
type Metrics struct {
	// CommandSendCount indicates the number of commands written to the device.
	CommandSendCount atomic.Uint64
	// CommandErrCount indicates the number of commands that ended with an error.
	CommandErrCount atomic.Uint64
	// CommandTimeoutCount indicates the number of commands without any response.
	CommandTimeoutCount atomic.Uint64
	// CommandRetryCount indicates the number of command retries.
	CommandRetryCount atomic.Uint64
	// CommandAbortCount indicates the number of commands aborted by their caller.
	CommandAbortCount atomic.Uint64
	// CommandInflightCount indicates the number of commands queued or executing.
	CommandInflightCount atomic.Int64

	// BytesWritten and BytesRead count raw bytes on the link.
	BytesWritten atomic.Uint64
	BytesRead    atomic.Uint64

	// ReconnectAttemptCount indicates the number of automatic reconnect attempts.
	ReconnectAttemptCount atomic.Uint64
	// ReconnectCount indicates the number of successful reconnects.
	ReconnectCount atomic.Uint64
	// ConnLostCount indicates the number of unexpected connection losses.
	ConnLostCount atomic.Uint64
}

func (m *Metrics) incCommandSendCount()      { m.CommandSendCount.Add(1) }
func (m *Metrics) incCommandErrCount()       { m.CommandErrCount.Add(1) }
func (m *Metrics) incCommandTimeoutCount()   { m.CommandTimeoutCount.Add(1) }
func (m *Metrics) incCommandRetryCount()     { m.CommandRetryCount.Add(1) }
func (m *Metrics) incCommandAbortCount()     { m.CommandAbortCount.Add(1) }
func (m *Metrics) incInflight()              { m.CommandInflightCount.Add(1) }
func (m *Metrics) decInflight()              { m.CommandInflightCount.Add(-1) }
func (m *Metrics) addBytesWritten(n int)     { m.BytesWritten.Add(uint64(n)) } //nolint:gosec
func (m *Metrics) addBytesRead(n int)        { m.BytesRead.Add(uint64(n)) }    //nolint:gosec
func (m *Metrics) incReconnectAttemptCount() { m.ReconnectAttemptCount.Add(1) }
func (m *Metrics) incReconnectCount()        { m.ReconnectCount.Add(1) }
func (m *Metrics) incConnLostCount()         { m.ConnLostCount.Add(1) }
