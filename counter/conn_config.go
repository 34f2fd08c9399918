package counter

import (
	"errors"
	"time"

	"github.com/arloliu/go-coincounter/logger"
	"github.com/arloliu/go-coincounter/transport"
)

// Default configuration values.
const (
	DefaultBaudRate          = 115200
	DefaultCommandDelay      = 50 * time.Millisecond
	DefaultReconnectAttempts = 3
	DefaultReconnectDelay    = time.Second
	DefaultRetryDelay        = 100 * time.Millisecond
	DefaultCommandTimeout    = time.Second
	DefaultSettleDelay       = 2 * time.Second
	DefaultVendorID          = "2341"
)

// Config holds the settings of a Counter. It is immutable once built.
type Config struct {
	// baudRate is the serial bit rate passed to Device.Open.
	// Defaults to 115200.
	baudRate int

	// commandDelay is the pause between writing a command and reading the reply,
	// giving the firmware time to emit a complete response.
	// Defaults to 50 milliseconds.
	commandDelay time.Duration

	// autoReconnect enables automatic reconnection when the device is lost or
	// a command is issued while disconnected.
	// Defaults to false.
	autoReconnect bool
	// reconnectAttempts is the number of automatic reconnect attempts. Attempt k
	// waits reconnectDelay*k first.
	// Defaults to 3.
	reconnectAttempts int
	// reconnectDelay is the base delay of the linear reconnect backoff.
	// Defaults to 1 second.
	reconnectDelay time.Duration

	// rateLimit is the minimum spacing between two command writes. Zero disables it.
	rateLimit time.Duration

	// commandRetries is the number of additional attempts for a command that failed
	// with a CommunicationError.
	// Defaults to 0.
	commandRetries int
	// retryDelay is the pause before each retry.
	// Defaults to 100 milliseconds.
	retryDelay time.Duration

	// useLock makes callers wait for their turn before queueing, so at most one
	// command is queued at a time.
	// Defaults to false.
	useLock bool

	// commandTimeout is the default response timeout of SendCommand.
	// Defaults to 1 second.
	commandTimeout time.Duration

	// settleDelay is the wait after opening a port; many boards reset on open.
	// Defaults to 2 seconds.
	settleDelay time.Duration

	// filter selects the devices offered during selection and reconnection.
	// Defaults to vendor id 2341.
	filter transport.Filter

	logger logger.Logger
}

// NewConfig creates a Config with default values and applies opts in order.
func NewConfig(opts ...ConnOption) (*Config, error) {
	cfg := &Config{
		baudRate:          DefaultBaudRate,
		commandDelay:      DefaultCommandDelay,
		reconnectAttempts: DefaultReconnectAttempts,
		reconnectDelay:    DefaultReconnectDelay,
		retryDelay:        DefaultRetryDelay,
		commandTimeout:    DefaultCommandTimeout,
		settleDelay:       DefaultSettleDelay,
		filter:            transport.Filter{VendorID: DefaultVendorID},
		logger:            logger.GetLogger(),
	}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return cfg, err
		}
	}

	return cfg, nil
}

// BaudRate returns the serial bit rate.
func (cfg *Config) BaudRate() int {
	return cfg.baudRate
}

// CommandDelay returns the pause between a write and the first read.
func (cfg *Config) CommandDelay() time.Duration {
	return cfg.commandDelay
}

// AutoReconnect returns if automatic reconnection is enabled.
func (cfg *Config) AutoReconnect() bool {
	return cfg.autoReconnect
}

// ReconnectAttempts returns the number of automatic reconnect attempts.
func (cfg *Config) ReconnectAttempts() int {
	return cfg.reconnectAttempts
}

// ReconnectDelay returns the base delay of the linear reconnect backoff.
func (cfg *Config) ReconnectDelay() time.Duration {
	return cfg.reconnectDelay
}

// RateLimit returns the minimum spacing between command writes.
func (cfg *Config) RateLimit() time.Duration {
	return cfg.rateLimit
}

// CommandRetries returns the number of retries after a CommunicationError.
func (cfg *Config) CommandRetries() int {
	return cfg.commandRetries
}

// RetryDelay returns the pause before each retry.
func (cfg *Config) RetryDelay() time.Duration {
	return cfg.retryDelay
}

// UseLock returns if callers wait for their turn before queueing.
func (cfg *Config) UseLock() bool {
	return cfg.useLock
}

// CommandTimeout returns the default response timeout.
func (cfg *Config) CommandTimeout() time.Duration {
	return cfg.commandTimeout
}

// SettleDelay returns the wait after opening a port.
func (cfg *Config) SettleDelay() time.Duration {
	return cfg.settleDelay
}

// DeviceFilter returns the filter used for selection and reconnection.
func (cfg *Config) DeviceFilter() transport.Filter {
	return cfg.filter
}

// ConnOption represents a functional option for configuring a Config.
type ConnOption interface {
	apply(*Config) error
}

type connOptFunc struct {
	name      string
	applyFunc func(*Config) error
}

func (c *connOptFunc) apply(cfg *Config) error {
	if cfg == nil {
		return ErrConfigNil
	}

	return c.applyFunc(cfg)
}

func newConnOptFunc(name string, f func(*Config) error) *connOptFunc {
	return &connOptFunc{name: name, applyFunc: f}
}

// WithBaudRate sets the serial bit rate. It should be positive.
//
// The default value is 115200.
func WithBaudRate(baud int) ConnOption {
	return newConnOptFunc("WithBaudRate", func(cfg *Config) error {
		if baud <= 0 {
			return errors.New("baud rate should be positive")
		}
		cfg.baudRate = baud

		return nil
	})
}

// WithCommandDelay sets the pause between writing a command and reading its response.
// It should be between 0 and 5 seconds.
//
// The default value is 50 milliseconds.
func WithCommandDelay(d time.Duration) ConnOption {
	return newConnOptFunc("WithCommandDelay", func(cfg *Config) error {
		if d < 0 || d > 5*time.Second {
			return errors.New("command delay out of range [0, 5s]")
		}
		cfg.commandDelay = d

		return nil
	})
}

// WithAutoReconnect enables or disables automatic reconnection.
//
// The default value is false.
func WithAutoReconnect(val bool) ConnOption {
	return newConnOptFunc("WithAutoReconnect", func(cfg *Config) error {
		cfg.autoReconnect = val
		return nil
	})
}

// WithReconnectAttempts sets the number of automatic reconnect attempts.
// It should be between 1 and 100.
//
// The default value is 3.
func WithReconnectAttempts(n int) ConnOption {
	return newConnOptFunc("WithReconnectAttempts", func(cfg *Config) error {
		if n < 1 || n > 100 {
			return errors.New("reconnect attempts out of range [1, 100]")
		}
		cfg.reconnectAttempts = n

		return nil
	})
}

// WithReconnectDelay sets the base delay of the linear reconnect backoff.
// It should not be negative.
//
// The default value is 1 second.
func WithReconnectDelay(d time.Duration) ConnOption {
	return newConnOptFunc("WithReconnectDelay", func(cfg *Config) error {
		if d < 0 {
			return errors.New("reconnect delay should not be negative")
		}
		cfg.reconnectDelay = d

		return nil
	})
}

// WithRateLimit sets the minimum spacing between command writes. Zero disables rate limiting.
//
// The default value is 0.
func WithRateLimit(d time.Duration) ConnOption {
	return newConnOptFunc("WithRateLimit", func(cfg *Config) error {
		if d < 0 {
			return errors.New("rate limit should not be negative")
		}
		cfg.rateLimit = d

		return nil
	})
}

// WithCommandRetries sets how many times a command failing with a CommunicationError
// is retried. It should be between 0 and 10.
//
// The default value is 0.
func WithCommandRetries(n int) ConnOption {
	return newConnOptFunc("WithCommandRetries", func(cfg *Config) error {
		if n < 0 || n > 10 {
			return errors.New("command retries out of range [0, 10]")
		}
		cfg.commandRetries = n

		return nil
	})
}

// WithRetryDelay sets the pause before each command retry. It should not be negative.
//
// The default value is 100 milliseconds.
func WithRetryDelay(d time.Duration) ConnOption {
	return newConnOptFunc("WithRetryDelay", func(cfg *Config) error {
		if d < 0 {
			return errors.New("retry delay should not be negative")
		}
		cfg.retryDelay = d

		return nil
	})
}

// WithLock makes callers acquire a FIFO lock before queueing a command.
//
// The default value is false.
func WithLock(val bool) ConnOption {
	return newConnOptFunc("WithLock", func(cfg *Config) error {
		cfg.useLock = val
		return nil
	})
}

// WithCommandTimeout sets the default response timeout. It should be between
// 1 millisecond and 60 seconds.
//
// The default value is 1 second.
func WithCommandTimeout(d time.Duration) ConnOption {
	return newConnOptFunc("WithCommandTimeout", func(cfg *Config) error {
		if d < time.Millisecond || d > 60*time.Second {
			return errors.New("command timeout out of range [1ms, 60s]")
		}
		cfg.commandTimeout = d

		return nil
	})
}

// WithSettleDelay sets the wait after opening the port. It should be between 0 and 30 seconds.
//
// The default value is 2 seconds.
func WithSettleDelay(d time.Duration) ConnOption {
	return newConnOptFunc("WithSettleDelay", func(cfg *Config) error {
		if d < 0 || d > 30*time.Second {
			return errors.New("settle delay out of range [0, 30s]")
		}
		cfg.settleDelay = d

		return nil
	})
}

// WithDeviceFilter sets the USB identity used to select devices.
//
// The default value is vendor id 2341 with any product id.
func WithDeviceFilter(f transport.Filter) ConnOption {
	return newConnOptFunc("WithDeviceFilter", func(cfg *Config) error {
		cfg.filter = f
		return nil
	})
}

// WithLogger sets the logger of the Counter.
//
// The default value is the package default logger.
func WithLogger(l logger.Logger) ConnOption {
	return newConnOptFunc("WithLogger", func(cfg *Config) error {
		if l == nil {
			return errors.New("logger is nil")
		}
		cfg.logger = l

		return nil
	})
}
