// Command coincctl talks to an 8-channel coincidence counter over USB serial.
//
// Usage:
//
//	coincctl [flags] <command> [command flags]
//
// Commands:
//
//	info     Print device, firmware and settings
//	counts   Read and clear the counters once
//	rate     Measure the rate of one channel
//	coinc    Measure a coincidence rate with accidental correction
//	shell    Start an interactive shell
//
// Flags:
//
//	-config string     Configuration file path (YAML)
//	-port string       Serial port, overrides USB enumeration
//	-log-level string  Log level: debug, info, warn, error
//	-select            Pick the device interactively
//
// Every configuration key can also be set through the environment, e.g.
// COINC_SERIAL_PORT=/dev/ttyACM0 or COINC_COUNTER_RATE_LIMIT=20ms.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/arloliu/go-coincounter/counter"
	"github.com/arloliu/go-coincounter/logger"
	"github.com/arloliu/go-coincounter/transport"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

type app struct {
	cfg    *Config
	log    logger.Logger
	tr     *transport.SerialTransport
	c      *counter.Counter
	stdout io.Writer
	stderr io.Writer
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("coincctl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "Configuration file path (YAML)")
	port := fs.String("port", "", "Serial port, overrides USB enumeration")
	logLevel := fs.String("log-level", "", "Log level: debug, info, warn, error")
	pick := fs.Bool("select", false, "Pick the device interactively")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "Usage: coincctl [flags] info|counts|rate|coinc|shell [command flags]")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return 2
	}

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "coincctl: %v\n", err)
		return 1
	}
	if *port != "" {
		cfg.Serial.Port = *port
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if *pick {
		cfg.Serial.Interactive = true
	}

	log, closer, err := newLogger(cfg.Logging, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "coincctl: %v\n", err)
		return 1
	}
	defer closer.Close()
	logger.SetLogger(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{cfg: cfg, log: log, stdout: stdout, stderr: stderr}
	if err := a.open(ctx); err != nil {
		fmt.Fprintf(stderr, "coincctl: %v\n", err)
		return 1
	}
	defer a.c.Close()

	cmd, cmdArgs := fs.Arg(0), fs.Args()[1:]
	if err := a.dispatch(ctx, cmd, cmdArgs); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 2
		}
		fmt.Fprintf(stderr, "coincctl %s: %v\n", cmd, err)
		return 1
	}

	return 0
}

// open builds the transport and the counter. The device is connected lazily
// by the subcommands.
func (a *app) open(ctx context.Context) error {
	opts := []transport.SerialOption{
		transport.WithTransportLogger(a.log),
		transport.WithReadTimeout(a.cfg.Serial.ReadTimeout),
	}
	if a.cfg.Serial.Port != "" {
		opts = append(opts, transport.WithPortName(a.cfg.Serial.Port))
	}
	if a.cfg.Serial.Interactive {
		opts = append(opts, transport.WithSelector(promptSelector(a.stderr)))
	}
	for _, name := range a.cfg.Serial.Authorized {
		opts = append(opts, transport.WithAuthorized(transport.DeviceInfo{Name: name}))
	}
	a.tr = transport.NewSerialTransport(opts...)

	connOpts := append(a.cfg.connOptions(), counter.WithLogger(a.log))
	ccfg, err := counter.NewConfig(connOpts...)
	if err != nil {
		return err
	}

	a.c, err = counter.NewCounter(ctx, a.tr, ccfg)
	if err != nil {
		return err
	}

	a.c.OnDisconnect(func() { a.log.Warn("device disconnected") })
	a.c.OnReconnect(func(ev counter.ReconnectEvent) { a.log.Info("device reconnected", "attempt", ev.Attempt) })
	a.c.OnReconnectFailed(func() { a.log.Error("device reconnect failed") })

	return nil
}

func (a *app) dispatch(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "info":
		return a.cmdInfo(ctx)
	case "counts":
		return a.cmdCounts(ctx)
	case "rate":
		return a.cmdRate(ctx, args)
	case "coinc":
		return a.cmdCoinc(ctx, args)
	case "shell":
		sh, err := newShell(a)
		if err != nil {
			return err
		}

		return sh.Run(ctx)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func (a *app) connect(ctx context.Context) error {
	if err := a.c.Connect(ctx); err != nil {
		return err
	}

	fw, err := a.c.CheckFirmwareCompatibility(ctx)
	if errors.Is(err, counter.ErrFirmwareIncompatible) {
		a.log.Warn("firmware older than supported", "version", fw.Version.String(), "minimum", fw.Minimum.String())
		return nil
	}

	return err
}

func (a *app) info(ctx context.Context) (infoView, error) {
	fw, err := a.c.FirmwareInfo(ctx)
	if err != nil {
		return infoView{}, err
	}
	settings, err := a.c.SettingsText(ctx)
	if err != nil {
		return infoView{}, err
	}
	dev, _ := a.c.Device()

	return infoView{Device: newDeviceView(dev), Firmware: newFirmwareView(fw), Settings: settings}, nil
}

func (a *app) cmdInfo(ctx context.Context) error {
	if err := a.connect(ctx); err != nil {
		return err
	}

	v, err := a.info(ctx)
	if err != nil {
		return err
	}

	return writeYAML(a.stdout, v)
}

func (a *app) cmdCounts(ctx context.Context) error {
	if err := a.connect(ctx); err != nil {
		return err
	}

	counts, err := a.c.ReadCounts(ctx)
	if err != nil {
		return err
	}

	return writeYAML(a.stdout, newCountsView(counts))
}

func (a *app) cmdRate(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("rate", flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	ch := fs.Int("ch", 0, "Channel 0-7")
	d := fs.Duration("d", time.Second, "Measurement duration")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if err := a.connect(ctx); err != nil {
		return err
	}

	m, err := a.c.MeasureRate(ctx, *ch, *d)
	if err != nil {
		return err
	}

	return writeYAML(a.stdout, newRateView(m))
}

func (a *app) cmdCoinc(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("coinc", flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	p := counter.DefaultCoincidenceParams(time.Second)
	fs.IntVar(&p.SinglesAChannel, "a", p.SinglesAChannel, "Singles channel A")
	fs.IntVar(&p.SinglesBChannel, "b", p.SinglesBChannel, "Singles channel B")
	fs.IntVar(&p.CoincidenceChannel, "c", p.CoincidenceChannel, "Coincidence channel")
	fs.DurationVar(&p.Duration, "d", p.Duration, "Measurement duration")
	fs.Float64Var(&p.Window, "window", p.Window, "Coincidence window in seconds")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if err := a.connect(ctx); err != nil {
		return err
	}

	m, err := a.c.MeasureCoincidenceRate(ctx, p)
	if err != nil {
		return err
	}

	return writeYAML(a.stdout, newCoincView(m))
}
