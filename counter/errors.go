package counter

import (
	"errors"
	"fmt"
	"time"
)

// ErrDevice is the root of every error reported by a Counter.
// errors.Is(err, ErrDevice) holds for all typed errors and lifecycle sentinels below.
var ErrDevice = errors.New("counter: device error")

var (
	// ErrUnsupportedTransport indicates the engine has no usable transport.
	ErrUnsupportedTransport = errors.New("counter: unsupported transport")
	// ErrDeviceSelectionCancelled indicates the user dismissed the device picker.
	ErrDeviceSelectionCancelled = errors.New("counter: device selection cancelled")
	// ErrConnection indicates opening or re-opening the device failed.
	ErrConnection = errors.New("counter: connection failed")
	// ErrNotConnected indicates an operation needs a connection that is absent.
	ErrNotConnected = errors.New("counter: not connected")
	// ErrCommandTimeout indicates no response bytes arrived within the command timeout.
	ErrCommandTimeout = errors.New("counter: command timeout")
	// ErrCommunication indicates a transport failure during write or read.
	ErrCommunication = errors.New("counter: communication failure")
	// ErrInvalidResponse indicates a response could not be parsed.
	ErrInvalidResponse = errors.New("counter: invalid response")
	// ErrFirmwareIncompatible indicates the device firmware is below the supported minimum.
	ErrFirmwareIncompatible = errors.New("counter: firmware incompatible")
	// ErrValidation indicates an argument failed validation before any I/O.
	ErrValidation = errors.New("counter: validation failed")
	// ErrInvalidChannel is the channel flavour of ErrValidation.
	ErrInvalidChannel = errors.New("counter: invalid channel")
	// ErrInvalidVoltage is the voltage flavour of ErrValidation.
	ErrInvalidVoltage = errors.New("counter: invalid voltage")
	// ErrOperationAborted indicates the caller's context ended the operation.
	ErrOperationAborted = errors.New("counter: operation aborted")
)

var (
	// ErrConnectInProgress is returned by Connect while a connect or reconnect is running.
	ErrConnectInProgress = fmt.Errorf("%w: connect already in progress", ErrDevice)

	// ErrInvalidTransition is returned when a connection state change is not allowed.
	ErrInvalidTransition = fmt.Errorf("%w: invalid state transition", ErrDevice)

	// ErrCounterClosed is returned after Close was called.
	ErrCounterClosed = fmt.Errorf("%w: engine closed", ErrDevice)

	// ErrConfigNil indicates that a nil Config was provided.
	ErrConfigNil = errors.New("counter: config is nil")
)

// UnsupportedTransportError reports that the host cannot reach the device.
type UnsupportedTransportError struct {
	Reason string
}

func (e *UnsupportedTransportError) Error() string {
	if e.Reason == "" {
		return ErrUnsupportedTransport.Error()
	}

	return ErrUnsupportedTransport.Error() + ": " + e.Reason
}

func (e *UnsupportedTransportError) Is(target error) bool {
	return target == ErrUnsupportedTransport || target == ErrDevice
}

// DeviceSelectionCancelledError reports that device selection was dismissed.
type DeviceSelectionCancelledError struct{}

func (e *DeviceSelectionCancelledError) Error() string { return ErrDeviceSelectionCancelled.Error() }

func (e *DeviceSelectionCancelledError) Is(target error) bool {
	return target == ErrDeviceSelectionCancelled || target == ErrDevice
}

// ConnectionError reports a failure to open or re-open the device.
type ConnectionError struct {
	Msg   string
	Cause error
}

func (e *ConnectionError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", ErrConnection, e.Msg)
	}

	return fmt.Sprintf("%s: %s: %v", ErrConnection, e.Msg, e.Cause)
}

func (e *ConnectionError) Is(target error) bool {
	return target == ErrConnection || target == ErrDevice
}

func (e *ConnectionError) Unwrap() error { return e.Cause }

// NotConnectedError reports an operation attempted without a connection.
type NotConnectedError struct {
	Op string
}

func (e *NotConnectedError) Error() string {
	return fmt.Sprintf("%s (operation %q)", ErrNotConnected, e.Op)
}

func (e *NotConnectedError) Is(target error) bool {
	return target == ErrNotConnected || target == ErrDevice
}

// CommandTimeoutError reports that no response arrived in time.
type CommandTimeoutError struct {
	Command string
	Timeout time.Duration
}

func (e *CommandTimeoutError) Error() string {
	return fmt.Sprintf("%s: %q after %dms", ErrCommandTimeout, e.Command, e.Timeout.Milliseconds())
}

func (e *CommandTimeoutError) Is(target error) bool {
	return target == ErrCommandTimeout || target == ErrDevice
}

// CommunicationError reports a transport failure while exchanging a command.
type CommunicationError struct {
	Command string
	Cause   error
}

func (e *CommunicationError) Error() string {
	return fmt.Sprintf("%s: %q: %v", ErrCommunication, e.Command, e.Cause)
}

func (e *CommunicationError) Is(target error) bool {
	return target == ErrCommunication || target == ErrDevice
}

func (e *CommunicationError) Unwrap() error { return e.Cause }

// InvalidResponseError reports a response that does not have the expected shape.
type InvalidResponseError struct {
	Raw      string
	Expected string
}

func (e *InvalidResponseError) Error() string {
	return fmt.Sprintf("%s: %q, expected %s", ErrInvalidResponse, e.Raw, e.Expected)
}

func (e *InvalidResponseError) Is(target error) bool {
	return target == ErrInvalidResponse || target == ErrDevice
}

// FirmwareIncompatibleError reports firmware older than the supported minimum.
type FirmwareIncompatibleError struct {
	Current FirmwareVersion
	Minimum FirmwareVersion
}

func (e *FirmwareIncompatibleError) Error() string {
	return fmt.Sprintf("%s: version %s, minimum %s", ErrFirmwareIncompatible, e.Current, e.Minimum)
}

func (e *FirmwareIncompatibleError) Is(target error) bool {
	return target == ErrFirmwareIncompatible || target == ErrDevice
}

// ValidationKind classifies a ValidationError.
type ValidationKind uint8

const (
	// ValidationGeneric is an argument that is neither a channel nor a voltage.
	ValidationGeneric ValidationKind = iota
	// ValidationChannel is an out-of-range channel index.
	ValidationChannel
	// ValidationVoltage is an out-of-range or non-finite voltage.
	ValidationVoltage
)

// ValidationError reports an argument rejected before any I/O.
type ValidationError struct {
	Kind       ValidationKind
	Param      string
	Value      any
	Constraint string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s=%v, %s", e.sentinel(), e.Param, e.Value, e.Constraint)
}

func (e *ValidationError) sentinel() error {
	switch e.Kind {
	case ValidationChannel:
		return ErrInvalidChannel
	case ValidationVoltage:
		return ErrInvalidVoltage
	default:
		return ErrValidation
	}
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation || target == ErrDevice || target == e.sentinel()
}

// OperationAbortedError reports that the caller's context ended an operation.
// Cause is the context error, so errors.Is(err, context.Canceled) also holds.
type OperationAbortedError struct {
	Op    string
	Cause error
}

func (e *OperationAbortedError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", ErrOperationAborted, e.Op)
	}

	return fmt.Sprintf("%s: %s: %v", ErrOperationAborted, e.Op, e.Cause)
}

func (e *OperationAbortedError) Is(target error) bool {
	return target == ErrOperationAborted || target == ErrDevice
}

func (e *OperationAbortedError) Unwrap() error { return e.Cause }

func newChannelError(param string, ch int) error {
	return &ValidationError{
		Kind:       ValidationChannel,
		Param:      param,
		Value:      ch,
		Constraint: fmt.Sprintf("must be in range [0, %d]", NumChannels-1),
	}
}

func newVoltageError(param string, v float64) error {
	return &ValidationError{
		Kind:       ValidationVoltage,
		Param:      param,
		Value:      v,
		Constraint: fmt.Sprintf("must be a finite value in range [0, %.2f]", MaxVoltage),
	}
}

func newValidationError(param string, v any, constraint string) error {
	return &ValidationError{Kind: ValidationGeneric, Param: param, Value: v, Constraint: constraint}
}

func newAbortedError(op string, cause error) error {
	return &OperationAbortedError{Op: op, Cause: cause}
}

func validateChannel(param string, ch int) error {
	if ch < 0 || ch >= NumChannels {
		return newChannelError(param, ch)
	}

	return nil
}
