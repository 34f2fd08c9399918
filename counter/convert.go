package counter

import "math"

// MaxVoltage is the full-scale output of the trigger and DAC converters.
const MaxVoltage = 4.08

// Repeat interval limits of the "r" command, in milliseconds.
const (
	MinRepeatInterval = 100
	MaxRepeatInterval = 65535
)

// VoltageToByte converts volts to the 8-bit converter setting.
// The input is clamped to [0, MaxVoltage]; NaN maps to 0.
func VoltageToByte(volts float64) uint8 {
	if math.IsNaN(volts) {
		return 0
	}
	v := math.Min(math.Max(volts, 0), MaxVoltage)

	return uint8(math.Round(v / MaxVoltage * 255))
}

// ByteToVoltage converts an 8-bit converter setting to volts.
func ByteToVoltage(b uint8) float64 {
	return float64(b) / 255 * MaxVoltage
}

// ClampRepeatInterval clamps ms to [MinRepeatInterval, MaxRepeatInterval].
func ClampRepeatInterval(ms int) int {
	return min(max(ms, MinRepeatInterval), MaxRepeatInterval)
}

func validVoltage(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0 && v <= MaxVoltage
}
