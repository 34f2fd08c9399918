package counter

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// Wire commands.
const (
	cmdVersion       = "v"
	cmdHelp          = "H"
	cmdCounts        = "c"
	cmdCountsText    = "C"
	cmdSettings      = "p"
	cmdSettingsText  = "P"
	cmdConfigure     = "S"
	cmdTriggerLevel  = "L"
	cmdDAC           = "V"
	cmdImpedance50   = "z"
	cmdImpedanceHigh = "Z"
	cmdRepeat        = "r"
	cmdToggleRepeat  = "R"
	cmdOverflow      = "E"
	cmdTestLEDs      = "T"
)

// ChannelInputs selects which of the inputs A to D feed a counter channel.
type ChannelInputs struct {
	A, B, C, D bool
}

func (in ChannelInputs) String() string {
	var sb strings.Builder
	for _, on := range []bool{in.A, in.B, in.C, in.D} {
		if on {
			sb.WriteByte('1')
		} else {
			sb.WriteByte('0')
		}
	}

	return sb.String()
}

// Version returns the raw firmware version string.
func (c *Counter) Version(ctx context.Context) (string, error) {
	return c.SendCommand(ctx, cmdVersion, 0)
}

// FirmwareInfo queries and parses the firmware version. The result is never cached.
func (c *Counter) FirmwareInfo(ctx context.Context) (FirmwareInfo, error) {
	raw, err := c.Version(ctx)
	if err != nil {
		return FirmwareInfo{}, err
	}

	v := ParseFirmwareVersion(raw)
	info := FirmwareInfo{
		Raw:        raw,
		Version:    v,
		Minimum:    MinFirmwareVersion,
		Compatible: v.Compare(MinFirmwareVersion) >= 0,
	}
	c.logger.Debug("firmware info", "raw", raw, "version", v.String(), "compatible", info.Compatible)

	return info, nil
}

// CheckFirmwareCompatibility returns a FirmwareIncompatibleError when the device
// firmware is older than MinFirmwareVersion.
func (c *Counter) CheckFirmwareCompatibility(ctx context.Context) (FirmwareInfo, error) {
	info, err := c.FirmwareInfo(ctx)
	if err != nil {
		return info, err
	}
	if !info.Compatible {
		return info, &FirmwareIncompatibleError{Current: info.Version, Minimum: info.Minimum}
	}

	return info, nil
}

// Help returns the firmware help text.
func (c *Counter) Help(ctx context.Context) (string, error) {
	return c.SendCommand(ctx, cmdHelp, 0)
}

// ReadCounts reads and resets all channel counters together with the overflow flag.
func (c *Counter) ReadCounts(ctx context.Context) (Counts, error) {
	raw, err := c.SendCommand(ctx, cmdCounts, 0)
	if err != nil {
		return Counts{}, err
	}

	return ParseCounts(raw)
}

// ReadCountsText returns the human-readable counts.
func (c *Counter) ReadCountsText(ctx context.Context) (string, error) {
	return c.SendCommand(ctx, cmdCountsText, 0)
}

// ClearCounters resets the counters by reading and discarding them.
func (c *Counter) ClearCounters(ctx context.Context) error {
	_, err := c.SendCommand(ctx, cmdCounts, 0)
	return err
}

// Settings returns the raw settings dump.
func (c *Counter) Settings(ctx context.Context) (string, error) {
	return c.SendCommand(ctx, cmdSettings, 0)
}

// SettingsText returns the human-readable settings.
func (c *Counter) SettingsText(ctx context.Context) (string, error) {
	return c.SendCommand(ctx, cmdSettingsText, 0)
}

// ConfigureChannel routes the inputs selected by in to channel ch.
func (c *Counter) ConfigureChannel(ctx context.Context, ch int, in ChannelInputs) (string, error) {
	if err := validateChannel("channel", ch); err != nil {
		return "", err
	}

	return c.SendCommand(ctx, fmt.Sprintf("%s%d%s", cmdConfigure, ch, in), 0)
}

// SetTriggerLevel sets the input trigger threshold in volts and returns the
// converter setting that was sent.
func (c *Counter) SetTriggerLevel(ctx context.Context, volts float64) (uint8, error) {
	if !validVoltage(volts) {
		return 0, newVoltageError("triggerLevel", volts)
	}

	b := VoltageToByte(volts)
	_, err := c.SetTriggerLevelByte(ctx, b)

	return b, err
}

// SetTriggerLevelByte sets the raw trigger converter value.
func (c *Counter) SetTriggerLevelByte(ctx context.Context, b uint8) (string, error) {
	return c.SendCommand(ctx, cmdTriggerLevel+strconv.Itoa(int(b)), 0)
}

// SetDACVoltage sets the DAC output in volts and returns the converter setting that was sent.
func (c *Counter) SetDACVoltage(ctx context.Context, volts float64) (uint8, error) {
	if !validVoltage(volts) {
		return 0, newVoltageError("dacVoltage", volts)
	}

	b := VoltageToByte(volts)
	_, err := c.SetDACByte(ctx, b)

	return b, err
}

// SetDACByte sets the raw DAC value.
func (c *Counter) SetDACByte(ctx context.Context, b uint8) (string, error) {
	return c.SendCommand(ctx, cmdDAC+strconv.Itoa(int(b)), 0)
}

// SetImpedance50Ohm terminates the inputs with 50 ohm.
func (c *Counter) SetImpedance50Ohm(ctx context.Context) (string, error) {
	return c.SendCommand(ctx, cmdImpedance50, 0)
}

// SetImpedanceHighZ switches the inputs to high impedance.
func (c *Counter) SetImpedanceHighZ(ctx context.Context) (string, error) {
	return c.SendCommand(ctx, cmdImpedanceHigh, 0)
}

// SetRepeatInterval sets the auto-repeat interval. ms is clamped to
// [MinRepeatInterval, MaxRepeatInterval]; the applied value is returned.
func (c *Counter) SetRepeatInterval(ctx context.Context, ms int) (int, error) {
	applied := ClampRepeatInterval(ms)
	if applied != ms {
		c.logger.Debug("repeat interval clamped", "requested", ms, "applied", applied)
	}

	_, err := c.SendCommand(ctx, cmdRepeat+strconv.Itoa(applied), 0)

	return applied, err
}

// ToggleRepeat toggles auto-repeat output.
func (c *Counter) ToggleRepeat(ctx context.Context) (string, error) {
	return c.SendCommand(ctx, cmdToggleRepeat, 0)
}

// ReadOverflow reads and clears the overflow flag.
func (c *Counter) ReadOverflow(ctx context.Context) (int, error) {
	raw, err := c.SendCommand(ctx, cmdOverflow, 0)
	if err != nil {
		return 0, err
	}

	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, &InvalidResponseError{Raw: raw, Expected: "integer"}
	}

	return v, nil
}

// TestLEDs runs the LED self-test.
func (c *Counter) TestLEDs(ctx context.Context) (string, error) {
	return c.SendCommand(ctx, cmdTestLEDs, 0)
}
