package counter

import (
	"testing"
	"time"

	"github.com/arloliu/go-coincounter/logger"
	"github.com/arloliu/go-coincounter/transport"
	"github.com/stretchr/testify/require"
)

func TestNewConfig_Defaults(t *testing.T) {
	require := require.New(t)

	cfg, err := NewConfig()
	require.NoError(err)
	require.Equal(115200, cfg.BaudRate())
	require.Equal(50*time.Millisecond, cfg.CommandDelay())
	require.False(cfg.AutoReconnect())
	require.Equal(3, cfg.ReconnectAttempts())
	require.Equal(time.Second, cfg.ReconnectDelay())
	require.Zero(cfg.RateLimit())
	require.Zero(cfg.CommandRetries())
	require.Equal(100*time.Millisecond, cfg.RetryDelay())
	require.False(cfg.UseLock())
	require.Equal(time.Second, cfg.CommandTimeout())
	require.Equal(2*time.Second, cfg.SettleDelay())
	require.Equal(transport.Filter{VendorID: "2341"}, cfg.DeviceFilter())
}

func TestNewConfig_Options(t *testing.T) {
	require := require.New(t)

	l := logger.GetLogger()
	cfg, err := NewConfig(
		WithBaudRate(9600),
		WithCommandDelay(10*time.Millisecond),
		WithAutoReconnect(true),
		WithReconnectAttempts(5),
		WithReconnectDelay(500*time.Millisecond),
		WithRateLimit(20*time.Millisecond),
		WithCommandRetries(2),
		WithRetryDelay(50*time.Millisecond),
		WithLock(true),
		WithCommandTimeout(3*time.Second),
		WithSettleDelay(0),
		WithDeviceFilter(transport.Filter{VendorID: "2e8a", ProductID: "000a"}),
		WithLogger(l),
	)
	require.NoError(err)
	require.Equal(9600, cfg.BaudRate())
	require.Equal(10*time.Millisecond, cfg.CommandDelay())
	require.True(cfg.AutoReconnect())
	require.Equal(5, cfg.ReconnectAttempts())
	require.Equal(500*time.Millisecond, cfg.ReconnectDelay())
	require.Equal(20*time.Millisecond, cfg.RateLimit())
	require.Equal(2, cfg.CommandRetries())
	require.Equal(50*time.Millisecond, cfg.RetryDelay())
	require.True(cfg.UseLock())
	require.Equal(3*time.Second, cfg.CommandTimeout())
	require.Zero(cfg.SettleDelay())
	require.Equal("2e8a", cfg.DeviceFilter().VendorID)
}

func TestNewConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		opt  ConnOption
		msg  string
	}{
		{"baud rate", WithBaudRate(0), "baud rate should be positive"},
		{"command delay", WithCommandDelay(-time.Millisecond), "command delay out of range [0, 5s]"},
		{"command delay too long", WithCommandDelay(6 * time.Second), "command delay out of range [0, 5s]"},
		{"reconnect attempts", WithReconnectAttempts(0), "reconnect attempts out of range [1, 100]"},
		{"reconnect delay", WithReconnectDelay(-1), "reconnect delay should not be negative"},
		{"rate limit", WithRateLimit(-1), "rate limit should not be negative"},
		{"command retries", WithCommandRetries(11), "command retries out of range [0, 10]"},
		{"retry delay", WithRetryDelay(-1), "retry delay should not be negative"},
		{"command timeout", WithCommandTimeout(0), "command timeout out of range [1ms, 60s]"},
		{"settle delay", WithSettleDelay(31 * time.Second), "settle delay out of range [0, 30s]"},
		{"logger", WithLogger(nil), "logger is nil"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewConfig(tt.opt)
			require.EqualError(t, err, tt.msg)
		})
	}
}

func TestConnOption_NilConfig(t *testing.T) {
	err := WithBaudRate(9600).apply(nil)
	require.ErrorIs(t, err, ErrConfigNil)
}
