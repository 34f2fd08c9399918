package counter

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVoltageByteRoundTrip(t *testing.T) {
	for b := 0; b <= 255; b++ {
		require.Equal(t, uint8(b), VoltageToByte(ByteToVoltage(uint8(b))), "byte %d", b)
	}
}

func TestByteToVoltage(t *testing.T) {
	require.InDelta(t, 0.0, ByteToVoltage(0), 1e-12)
	require.InDelta(t, 4.08, ByteToVoltage(255), 1e-12)
	require.InDelta(t, 2.048, ByteToVoltage(128), 1e-3)
}

func TestVoltageToByte(t *testing.T) {
	require.Equal(t, uint8(0), VoltageToByte(0))
	require.Equal(t, uint8(255), VoltageToByte(4.08))
	require.Equal(t, uint8(128), VoltageToByte(2.04))
	require.Equal(t, uint8(0), VoltageToByte(-1))
	require.Equal(t, uint8(255), VoltageToByte(10))
	require.Equal(t, uint8(0), VoltageToByte(math.NaN()))
	require.Equal(t, uint8(255), VoltageToByte(math.Inf(1)))
}

func TestClampRepeatInterval(t *testing.T) {
	require.Equal(t, 100, ClampRepeatInterval(50))
	require.Equal(t, 65535, ClampRepeatInterval(70000))
	require.Equal(t, 1000, ClampRepeatInterval(1000))
	require.Equal(t, 100, ClampRepeatInterval(100))
	require.Equal(t, 65535, ClampRepeatInterval(65535))
	require.Equal(t, 100, ClampRepeatInterval(-5))
}
