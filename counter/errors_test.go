package counter

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestErrors_Is(t *testing.T) {
	cause := errors.New("boom")

	tests := []struct {
		name     string
		err      error
		sentinel error
	}{
		{"unsupported", &UnsupportedTransportError{Reason: "no serial"}, ErrUnsupportedTransport},
		{"selection cancelled", &DeviceSelectionCancelledError{}, ErrDeviceSelectionCancelled},
		{"connection", &ConnectionError{Msg: "open failed", Cause: cause}, ErrConnection},
		{"not connected", &NotConnectedError{Op: "c"}, ErrNotConnected},
		{"timeout", &CommandTimeoutError{Command: "v", Timeout: time.Second}, ErrCommandTimeout},
		{"communication", &CommunicationError{Command: "v", Cause: cause}, ErrCommunication},
		{"invalid response", &InvalidResponseError{Raw: "x", Expected: countsExpected}, ErrInvalidResponse},
		{"firmware", &FirmwareIncompatibleError{Current: FirmwareVersion{0, 9, 0}, Minimum: MinFirmwareVersion}, ErrFirmwareIncompatible},
		{"validation", newValidationError("duration", 0, "must be positive"), ErrValidation},
		{"aborted", newAbortedError("c", context.Canceled), ErrOperationAborted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.ErrorIs(t, tt.err, tt.sentinel)
			require.ErrorIs(t, tt.err, ErrDevice)
			require.ErrorIs(t, fmt.Errorf("wrapped: %w", tt.err), tt.sentinel)
			require.NotErrorIs(t, tt.err, otherSentinel(tt.sentinel))
		})
	}
}

// otherSentinel returns a sentinel different from s.
func otherSentinel(s error) error {
	if s == ErrCommandTimeout {
		return ErrCommunication
	}

	return ErrCommandTimeout
}

func TestErrors_Unwrap(t *testing.T) {
	cause := errors.New("usb gone")

	err := error(&CommunicationError{Command: "c", Cause: cause})
	require.ErrorIs(t, err, cause)

	err = &ConnectionError{Msg: "failed to open device", Cause: cause}
	require.ErrorIs(t, err, cause)
	require.EqualError(t, err, "counter: connection failed: failed to open device: usb gone")

	err = newAbortedError("measureRate", context.DeadlineExceeded)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	var aborted *OperationAbortedError
	require.ErrorAs(t, err, &aborted)
	require.Equal(t, "measureRate", aborted.Op)
}

func TestValidationError_Kinds(t *testing.T) {
	err := newChannelError("channel", 8)
	require.ErrorIs(t, err, ErrValidation)
	require.ErrorIs(t, err, ErrInvalidChannel)
	require.NotErrorIs(t, err, ErrInvalidVoltage)

	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	require.Equal(t, "channel", ve.Param)
	require.Equal(t, 8, ve.Value)
	require.Equal(t, "must be in range [0, 7]", ve.Constraint)

	err = newVoltageError("triggerLevel", 5.0)
	require.ErrorIs(t, err, ErrValidation)
	require.ErrorIs(t, err, ErrInvalidVoltage)
	require.NotErrorIs(t, err, ErrInvalidChannel)

	err = newValidationError("duration", -1, "must be positive")
	require.ErrorIs(t, err, ErrValidation)
	require.NotErrorIs(t, err, ErrInvalidChannel)
	require.NotErrorIs(t, err, ErrInvalidVoltage)
}

func TestErrors_Messages(t *testing.T) {
	require.EqualError(t, &NotConnectedError{Op: "c"}, `counter: not connected (operation "c")`)
	require.EqualError(t, &CommandTimeoutError{Command: "v", Timeout: 1500 * time.Millisecond},
		`counter: command timeout: "v" after 1500ms`)
	require.EqualError(t, &InvalidResponseError{Raw: "1 2", Expected: countsExpected},
		`counter: invalid response: "1 2", expected 8 counts + overflow flag`)
	require.EqualError(t, &FirmwareIncompatibleError{Current: FirmwareVersion{0, 9, 1}, Minimum: MinFirmwareVersion},
		"counter: firmware incompatible: version 0.9.1, minimum 1.0.0")
	require.EqualError(t, &UnsupportedTransportError{}, "counter: unsupported transport")
}

func TestErrors_LifecycleSentinels(t *testing.T) {
	for _, err := range []error{ErrCounterClosed, ErrConnectInProgress, ErrInvalidTransition} {
		require.ErrorIs(t, err, ErrDevice, err.Error())
		require.ErrorIs(t, fmt.Errorf("wrapped: %w", err), ErrDevice)
	}

	require.EqualError(t, ErrCounterClosed, "counter: device error: engine closed")

	c := newConnectedCounter(t, newFakeTransport(deviceResponder(staticCounts("0 0 0 0 0 0 0 0 0"))))
	require.NoError(t, c.Close())
	_, err := c.SendCommand(context.Background(), "c", 0)
	require.ErrorIs(t, err, ErrCounterClosed)
	require.ErrorIs(t, err, ErrDevice)
}
