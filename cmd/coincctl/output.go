package main

import (
	"io"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/arloliu/go-coincounter/counter"
	"github.com/arloliu/go-coincounter/internal/util"
	"github.com/arloliu/go-coincounter/transport"
)

type deviceView struct {
	Name         string `yaml:"name"`
	VendorID     string `yaml:"vendor_id,omitempty"`
	ProductID    string `yaml:"product_id,omitempty"`
	SerialNumber string `yaml:"serial_number,omitempty"`
	Product      string `yaml:"product,omitempty"`
}

type firmwareView struct {
	Raw        string `yaml:"raw"`
	Version    string `yaml:"version"`
	Minimum    string `yaml:"minimum"`
	Compatible bool   `yaml:"compatible"`
}

type infoView struct {
	Device   deviceView   `yaml:"device"`
	Firmware firmwareView `yaml:"firmware"`
	Settings string       `yaml:"settings"`
}

type countsView struct {
	Channels []uint64 `yaml:"channels,flow"`
	Overflow bool     `yaml:"overflow"`
}

type rateView struct {
	Channel     int     `yaml:"channel"`
	Duration    string  `yaml:"duration"`
	Counts      uint64  `yaml:"counts"`
	Rate        float64 `yaml:"rate_hz"`
	RateErr     float64 `yaml:"rate_err_hz"`
	RelativeErr float64 `yaml:"relative_err_pct"`
}

type coincView struct {
	Duration     string  `yaml:"duration"`
	Window       float64 `yaml:"window_s"`
	SinglesA     uint64  `yaml:"singles_a"`
	SinglesB     uint64  `yaml:"singles_b"`
	Coincidences uint64  `yaml:"coincidences"`

	RateA           valueErr `yaml:"rate_a_hz"`
	RateB           valueErr `yaml:"rate_b_hz"`
	CoincidenceRate valueErr `yaml:"coincidence_rate_hz"`
	AccidentalRate  valueErr `yaml:"accidental_rate_hz"`
	TrueRate        valueErr `yaml:"true_coincidence_rate_hz"`
}

type valueErr struct {
	Value float64 `yaml:"value"`
	Err   float64 `yaml:"err"`
}

type metricsView struct {
	State             string `yaml:"state"`
	CommandsSent      uint64 `yaml:"commands_sent"`
	CommandErrors     uint64 `yaml:"command_errors"`
	CommandTimeouts   uint64 `yaml:"command_timeouts"`
	CommandRetries    uint64 `yaml:"command_retries"`
	CommandsAborted   uint64 `yaml:"commands_aborted"`
	BytesWritten      uint64 `yaml:"bytes_written"`
	BytesRead         uint64 `yaml:"bytes_read"`
	ReconnectAttempts uint64 `yaml:"reconnect_attempts"`
	Reconnects        uint64 `yaml:"reconnects"`
	ConnectionsLost   uint64 `yaml:"connections_lost"`
}

func newDeviceView(info transport.DeviceInfo) deviceView {
	return deviceView{
		Name:         info.Name,
		VendorID:     info.VendorID,
		ProductID:    info.ProductID,
		SerialNumber: info.SerialNumber,
		Product:      info.Product,
	}
}

func newFirmwareView(fw counter.FirmwareInfo) firmwareView {
	return firmwareView{
		Raw:        fw.Raw,
		Version:    fw.Version.String(),
		Minimum:    fw.Minimum.String(),
		Compatible: fw.Compatible,
	}
}

func newCountsView(c counter.Counts) countsView {
	return countsView{Channels: util.CloneSlice(c.Channels[:], 0), Overflow: c.Overflowed()}
}

func newRateView(m counter.RateMeasurement) rateView {
	return rateView{
		Channel:     m.Channel,
		Duration:    m.Duration.String(),
		Counts:      m.Counts,
		Rate:        m.Rate,
		RateErr:     m.Uncertainty.Rate,
		RelativeErr: m.Uncertainty.Relative,
	}
}

func newCoincView(m counter.CoincidenceMeasurement) coincView {
	u := m.Uncertainty

	return coincView{
		Duration:        m.Duration.String(),
		Window:          m.Params.Window,
		SinglesA:        m.SinglesA,
		SinglesB:        m.SinglesB,
		Coincidences:    m.Coincidences,
		RateA:           valueErr{m.RateA, u.RateA},
		RateB:           valueErr{m.RateB, u.RateB},
		CoincidenceRate: valueErr{m.CoincidenceRate, u.CoincidenceRate},
		AccidentalRate:  valueErr{m.AccidentalRate, u.AccidentalRate},
		TrueRate:        valueErr{m.TrueCoincidenceRate, u.TrueCoincidenceRate},
	}
}

func newMetricsView(c *counter.Counter) metricsView {
	m := c.Metrics()

	return metricsView{
		State:             c.State().String(),
		CommandsSent:      m.CommandSendCount.Load(),
		CommandErrors:     m.CommandErrCount.Load(),
		CommandTimeouts:   m.CommandTimeoutCount.Load(),
		CommandRetries:    m.CommandRetryCount.Load(),
		CommandsAborted:   m.CommandAbortCount.Load(),
		BytesWritten:      m.BytesWritten.Load(),
		BytesRead:         m.BytesRead.Load(),
		ReconnectAttempts: m.ReconnectAttemptCount.Load(),
		Reconnects:        m.ReconnectCount.Load(),
		ConnectionsLost:   m.ConnLostCount.Load(),
	}
}

// writeYAML encodes v as a YAML document.
func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}

	return enc.Close()
}

func parseDuration(s string, def time.Duration) (time.Duration, error) {
	if s == "" {
		return def, nil
	}

	return time.ParseDuration(s)
}
