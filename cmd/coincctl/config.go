package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/arloliu/go-coincounter/counter"
	"github.com/arloliu/go-coincounter/transport"
)

// Config is the coincctl configuration, read from an optional YAML file and
// COINC_* environment variables.
type Config struct {
	Serial  SerialConfig  `mapstructure:"serial"`
	Counter CounterConfig `mapstructure:"counter"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// SerialConfig selects the device.
type SerialConfig struct {
	Port        string        `mapstructure:"port"`
	VendorID    string        `mapstructure:"vendor_id"`
	ProductID   string        `mapstructure:"product_id"`
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	Interactive bool          `mapstructure:"interactive"`
	// Authorized lists ports granted in earlier sessions; they are reused on reconnect.
	Authorized []string `mapstructure:"authorized"`
}

// CounterConfig mirrors the counter connection options.
type CounterConfig struct {
	BaudRate          int           `mapstructure:"baud_rate"`
	CommandDelay      time.Duration `mapstructure:"command_delay"`
	CommandTimeout    time.Duration `mapstructure:"command_timeout"`
	SettleDelay       time.Duration `mapstructure:"settle_delay"`
	AutoReconnect     bool          `mapstructure:"auto_reconnect"`
	ReconnectAttempts int           `mapstructure:"reconnect_attempts"`
	ReconnectDelay    time.Duration `mapstructure:"reconnect_delay"`
	RateLimit         time.Duration `mapstructure:"rate_limit"`
	CommandRetries    int           `mapstructure:"command_retries"`
	RetryDelay        time.Duration `mapstructure:"retry_delay"`
	UseLock           bool          `mapstructure:"use_lock"`
}

// LoggingConfig selects the log backend.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"` // json, console or zap
	Output     string `mapstructure:"output"` // stderr or a file path
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// LoadConfig reads path (when non-empty) and the environment on top of the defaults.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("COINC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("serial.port", "")
	v.SetDefault("serial.vendor_id", counter.DefaultVendorID)
	v.SetDefault("serial.product_id", "")
	v.SetDefault("serial.read_timeout", transport.DefaultReadTimeout)
	v.SetDefault("serial.interactive", false)
	v.SetDefault("serial.authorized", []string{})

	v.SetDefault("counter.baud_rate", counter.DefaultBaudRate)
	v.SetDefault("counter.command_delay", counter.DefaultCommandDelay)
	v.SetDefault("counter.command_timeout", counter.DefaultCommandTimeout)
	v.SetDefault("counter.settle_delay", counter.DefaultSettleDelay)
	v.SetDefault("counter.auto_reconnect", true)
	v.SetDefault("counter.reconnect_attempts", counter.DefaultReconnectAttempts)
	v.SetDefault("counter.reconnect_delay", counter.DefaultReconnectDelay)
	v.SetDefault("counter.rate_limit", time.Duration(0))
	v.SetDefault("counter.command_retries", 0)
	v.SetDefault("counter.retry_delay", counter.DefaultRetryDelay)
	v.SetDefault("counter.use_lock", true)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.output", "stderr")
	v.SetDefault("logging.max_size", 10)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age", 28)
	v.SetDefault("logging.compress", false)
}

func (cfg *Config) validate() error {
	switch cfg.Logging.Format {
	case "json", "console", "zap":
	default:
		return fmt.Errorf("logging.format must be one of json, console, zap: %q", cfg.Logging.Format)
	}

	if cfg.Logging.Format == "zap" && cfg.Logging.Output != "stderr" {
		return errors.New("logging.format zap only writes to stderr")
	}

	// the counter options carry their own range checks
	_, err := counter.NewConfig(cfg.connOptions()...)

	return err
}

// filter returns the USB filter the serial transport enumerates with.
func (cfg *Config) filter() transport.Filter {
	return transport.Filter{VendorID: cfg.Serial.VendorID, ProductID: cfg.Serial.ProductID}
}

func (cfg *Config) connOptions() []counter.ConnOption {
	c := cfg.Counter

	return []counter.ConnOption{
		counter.WithBaudRate(c.BaudRate),
		counter.WithCommandDelay(c.CommandDelay),
		counter.WithCommandTimeout(c.CommandTimeout),
		counter.WithSettleDelay(c.SettleDelay),
		counter.WithAutoReconnect(c.AutoReconnect),
		counter.WithReconnectAttempts(c.ReconnectAttempts),
		counter.WithReconnectDelay(c.ReconnectDelay),
		counter.WithRateLimit(c.RateLimit),
		counter.WithCommandRetries(c.CommandRetries),
		counter.WithRetryDelay(c.RetryDelay),
		counter.WithLock(c.UseLock),
		counter.WithDeviceFilter(cfg.filter()),
	}
}
