package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/arloliu/go-coincounter/counter"
	"github.com/arloliu/go-coincounter/transport"
)

// shell is the interactive command loop of coincctl.
type shell struct {
	app *app
	rl  *readline.Instance
}

func newShell(a *app) (*shell, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "coinc> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}

	return &shell{app: a, rl: rl}, nil
}

func (s *shell) out() io.Writer { return s.rl.Stdout() }

// Run reads commands until EOF, "quit" or ctx is done.
func (s *shell) Run(ctx context.Context) error {
	defer s.rl.Close()

	s.app.c.OnConnStateChange(func(ch counter.StateChange) {
		fmt.Fprintf(s.out(), "[state] %s -> %s\n", ch.Previous, ch.Current)
	})

	s.printHelp()

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		line, err := s.rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			fmt.Fprintln(s.out(), "Exiting...")
			return nil
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}

		parts := strings.Fields(input)
		cmd := strings.ToLower(parts[0])
		if cmd == "quit" || cmd == "exit" || cmd == "q" {
			fmt.Fprintln(s.out(), "Exiting...")
			return nil
		}

		if err := s.exec(ctx, cmd, parts[1:]); err != nil {
			fmt.Fprintf(s.out(), "Error: %v\n", err)
		}
	}
}

func (s *shell) exec(ctx context.Context, cmd string, args []string) error {
	c := s.app.c

	switch cmd {
	case "help", "?":
		s.printHelp()
		return nil
	case "connect":
		return s.app.connect(ctx)
	case "disconnect":
		c.Disconnect()
		return nil
	case "reconnect":
		ok, err := c.Reconnect(ctx)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(s.out(), "reconnect already running")
		}

		return nil
	case "status", "metrics":
		return writeYAML(s.out(), newMetricsView(c))
	case "info":
		v, err := s.app.info(ctx)
		if err != nil {
			return err
		}

		return writeYAML(s.out(), v)
	case "counts", "c":
		counts, err := c.ReadCounts(ctx)
		if err != nil {
			return err
		}

		return writeYAML(s.out(), newCountsView(counts))
	case "clear":
		return c.ClearCounters(ctx)
	case "settings", "p":
		return s.print(c.SettingsText(ctx))
	case "firmware-help", "h":
		return s.print(c.Help(ctx))
	case "overflow":
		n, err := c.ReadOverflow(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(s.out(), n)

		return nil
	case "rate":
		return s.cmdRate(ctx, args)
	case "coinc":
		return s.cmdCoinc(ctx, args)
	case "channel":
		return s.cmdChannel(ctx, args)
	case "trigger":
		return s.cmdVoltage(args, func(v float64) (uint8, error) { return c.SetTriggerLevel(ctx, v) })
	case "dac":
		return s.cmdVoltage(args, func(v float64) (uint8, error) { return c.SetDACVoltage(ctx, v) })
	case "z50":
		return s.print(c.SetImpedance50Ohm(ctx))
	case "zhigh":
		return s.print(c.SetImpedanceHighZ(ctx))
	case "repeat":
		return s.cmdRepeat(ctx, args)
	case "toggle-repeat":
		return s.print(c.ToggleRepeat(ctx))
	case "leds":
		return s.print(c.TestLEDs(ctx))
	case "send", "raw":
		if len(args) == 0 {
			return errors.New("usage: send <command>")
		}

		return s.print(c.SendCommand(ctx, strings.Join(args, " "), 0))
	default:
		return fmt.Errorf("unknown command: %s (type 'help' for commands)", cmd)
	}
}

func (s *shell) print(resp string, err error) error {
	if err != nil {
		return err
	}
	fmt.Fprintln(s.out(), resp)

	return nil
}

func (s *shell) cmdRate(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: rate <channel> [duration]")
	}
	ch, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid channel %q", args[0])
	}
	d, err := parseDuration(argAt(args, 1), time.Second)
	if err != nil {
		return err
	}

	m, err := s.app.c.MeasureRate(ctx, ch, d)
	if err != nil {
		return err
	}

	return writeYAML(s.out(), newRateView(m))
}

func (s *shell) cmdCoinc(ctx context.Context, args []string) error {
	d, err := parseDuration(argAt(args, 0), time.Second)
	if err != nil {
		return err
	}

	m, err := s.app.c.MeasureCoincidenceRate(ctx, counter.DefaultCoincidenceParams(d))
	if err != nil {
		return err
	}

	return writeYAML(s.out(), newCoincView(m))
}

func (s *shell) cmdChannel(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return errors.New("usage: channel <0-7> <ABCD mask, e.g. 1100>")
	}
	ch, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid channel %q", args[0])
	}
	in, err := parseInputs(args[1])
	if err != nil {
		return err
	}

	return s.print(s.app.c.ConfigureChannel(ctx, ch, in))
}

func (s *shell) cmdVoltage(args []string, set func(float64) (uint8, error)) error {
	if len(args) != 1 {
		return errors.New("usage: <trigger|dac> <volts>")
	}
	v, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return fmt.Errorf("invalid voltage %q", args[0])
	}

	b, err := set(v)
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out(), "set %.3f V (byte %d)\n", counter.ByteToVoltage(b), b)

	return nil
}

func (s *shell) cmdRepeat(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: repeat <milliseconds>")
	}
	ms, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid interval %q", args[0])
	}

	applied, err := s.app.c.SetRepeatInterval(ctx, ms)
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out(), "repeat interval %d ms\n", applied)

	return nil
}

func (s *shell) printHelp() {
	fmt.Fprintln(s.out(), `
Commands:
  connect | disconnect | reconnect   Manage the device connection
  status                             Connection state and metrics
  info                               Device, firmware and settings
  counts, c                          Read and clear all counters
  clear                              Clear all counters
  settings, p                        Print device settings
  firmware-help, h                   Print the firmware help text
  overflow                           Read the overflow flag
  rate <ch> [duration]               Measure a channel rate
  coinc [duration]                   Coincidence rate on channels 0, 1 and 4
  channel <ch> <ABCD>                Route inputs to a channel, e.g. channel 4 1100
  trigger <volts>                    Set the trigger level
  dac <volts>                        Set the DAC output
  z50 | zhigh                        Input impedance 50 ohm or high
  repeat <ms> | toggle-repeat        Repeat mode control
  leds                               Run the LED test
  send <raw>                         Send a raw command
  quit                               Exit`)
}

func argAt(args []string, i int) string {
	if i < len(args) {
		return args[i]
	}

	return ""
}

// parseInputs parses a four character mask of inputs A to D.
func parseInputs(mask string) (counter.ChannelInputs, error) {
	if len(mask) != 4 || strings.Trim(mask, "01") != "" {
		return counter.ChannelInputs{}, fmt.Errorf("invalid input mask %q, want four of 0 or 1", mask)
	}

	return counter.ChannelInputs{
		A: mask[0] == '1',
		B: mask[1] == '1',
		C: mask[2] == '1',
		D: mask[3] == '1',
	}, nil
}

// promptSelector returns a transport.Selector that lists the candidates on w and
// reads the chosen index. An empty answer or EOF cancels the selection.
func promptSelector(w io.Writer) transport.Selector {
	return func(ctx context.Context, candidates []transport.DeviceInfo) (transport.DeviceInfo, error) {
		fmt.Fprintln(w, "Available devices:")
		for i, info := range candidates {
			fmt.Fprintf(w, "  [%d] %s %s %s\n", i+1, info.Name, info.Product, info.SerialNumber)
		}

		rl, err := readline.NewEx(&readline.Config{
			Prompt: fmt.Sprintf("select device [1-%d]> ", len(candidates)),
			Stdout: w,
		})
		if err != nil {
			return transport.DeviceInfo{}, fmt.Errorf("failed to create readline: %w", err)
		}
		defer rl.Close()

		for {
			if err := ctx.Err(); err != nil {
				return transport.DeviceInfo{}, err
			}

			line, err := rl.Readline()
			if err != nil {
				return transport.DeviceInfo{}, transport.ErrSelectionCancelled
			}

			line = strings.TrimSpace(line)
			if line == "" {
				return transport.DeviceInfo{}, transport.ErrSelectionCancelled
			}

			n, err := strconv.Atoi(line)
			if err == nil && n >= 1 && n <= len(candidates) {
				return candidates[n-1], nil
			}
			fmt.Fprintf(w, "enter a number between 1 and %d\n", len(candidates))
		}
	}
}
