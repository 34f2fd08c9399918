package transport

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync/atomic"
	"time"

	"github.com/arloliu/go-coincounter/logger"
	"github.com/puzpuzpuz/xsync/v3"
	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// DefaultReadTimeout is the serial read timeout applied to opened ports.
// A read returns (0, nil) when it elapses, so it bounds how quickly a
// reader notices a closed port.
const DefaultReadTimeout = 50 * time.Millisecond

// Selector picks one device from candidates. It returns ErrSelectionCancelled
// when the user dismissed the choice.
type Selector func(ctx context.Context, candidates []DeviceInfo) (DeviceInfo, error)

// FirstDevice is the default Selector; it picks the first candidate.
func FirstDevice(_ context.Context, candidates []DeviceInfo) (DeviceInfo, error) {
	if len(candidates) == 0 {
		return DeviceInfo{}, ErrNoDevice
	}

	return candidates[0], nil
}

type authorizedEntry struct {
	info DeviceInfo
	seq  uint64
}

// SerialTransport is a Transport for USB CDC serial devices.
type SerialTransport struct {
	selector    Selector
	portName    string
	readTimeout time.Duration
	logger      logger.Logger

	authorized *xsync.MapOf[string, authorizedEntry]
	authSeq    atomic.Uint64

	listPorts func() ([]*enumerator.PortDetails, error)
	openPort  func(name string, mode *serial.Mode) (Port, error)
}

var _ Transport = (*SerialTransport)(nil)
var _ Authorizer = (*SerialTransport)(nil)

// SerialOption configures a SerialTransport.
type SerialOption func(*SerialTransport)

// WithSelector sets the device picker used by Select.
func WithSelector(s Selector) SerialOption {
	return func(t *SerialTransport) {
		if s != nil {
			t.selector = s
		}
	}
}

// WithPortName restricts selection to the named port. The port is used even if
// enumeration cannot report its USB identity.
func WithPortName(name string) SerialOption {
	return func(t *SerialTransport) { t.portName = name }
}

// WithReadTimeout sets the per-read timeout of opened ports.
func WithReadTimeout(d time.Duration) SerialOption {
	return func(t *SerialTransport) {
		if d > 0 {
			t.readTimeout = d
		}
	}
}

// WithTransportLogger sets the logger of the transport.
func WithTransportLogger(l logger.Logger) SerialOption {
	return func(t *SerialTransport) {
		if l != nil {
			t.logger = l
		}
	}
}

// WithAuthorized pre-authorizes devices, e.g. restored from a configuration file.
func WithAuthorized(infos ...DeviceInfo) SerialOption {
	return func(t *SerialTransport) {
		for _, info := range infos {
			t.Authorize(info)
		}
	}
}

// NewSerialTransport creates a serial transport.
func NewSerialTransport(opts ...SerialOption) *SerialTransport {
	t := &SerialTransport{
		selector:    FirstDevice,
		readTimeout: DefaultReadTimeout,
		logger:      logger.GetLogger(),
		authorized:  xsync.NewMapOf[string, authorizedEntry](),
		listPorts:   enumerator.GetDetailedPortsList,
		openPort:    openSerialPort,
	}
	for _, opt := range opts {
		opt(t)
	}

	return t
}

func openSerialPort(name string, mode *serial.Mode) (Port, error) {
	p, err := serial.Open(name, mode)
	if err != nil {
		return nil, err
	}

	return p, nil
}

// Select enumerates the present devices matching f and lets the selector pick one.
func (t *SerialTransport) Select(ctx context.Context, f Filter) (Device, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	candidates, err := t.candidates(f)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: filter %s", ErrNoDevice, f)
	}

	info, err := t.selector(ctx, candidates)
	if err != nil {
		return nil, err
	}
	t.logger.Debug("serial device selected", "port", info.Name, "vid", info.VendorID, "pid", info.ProductID)

	return &serialDevice{info: info, t: t}, nil
}

// Authorized returns present devices that match f and were authorized before,
// most recently authorized first.
func (t *SerialTransport) Authorized(ctx context.Context, f Filter) ([]Device, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if t.authorized.Size() == 0 {
		return nil, nil
	}

	present, err := t.candidates(f)
	if err != nil {
		return nil, err
	}

	type match struct {
		info DeviceInfo
		seq  uint64
	}
	matches := make([]match, 0, len(present))
	for _, info := range present {
		if e, ok := t.authorized.Load(info.Key()); ok {
			matches = append(matches, match{info: info, seq: e.seq})
		}
	}
	slices.SortFunc(matches, func(a, b match) int {
		switch {
		case a.seq > b.seq:
			return -1
		case a.seq < b.seq:
			return 1
		default:
			return 0
		}
	})

	devices := make([]Device, 0, len(matches))
	for _, m := range matches {
		devices = append(devices, &serialDevice{info: m.info, t: t})
	}

	return devices, nil
}

// Authorize remembers info so that Authorized can return it later.
func (t *SerialTransport) Authorize(info DeviceInfo) {
	seq := t.authSeq.Add(1)
	t.authorized.Store(info.Key(), authorizedEntry{info: info, seq: seq})
}

// Forget removes a device from the authorized list.
func (t *SerialTransport) Forget(info DeviceInfo) {
	t.authorized.Delete(info.Key())
}

func (t *SerialTransport) candidates(f Filter) ([]DeviceInfo, error) {
	ports, err := t.listPorts()
	if err != nil {
		if t.portName != "" {
			// enumeration failed but the port is known; trust the caller
			t.logger.Debug("serial port enumeration failed, using configured port", "port", t.portName, "error", err)
			return []DeviceInfo{{Name: t.portName}}, nil
		}

		return nil, mapSerialError(err)
	}

	var result []DeviceInfo
	for _, p := range ports {
		if t.portName != "" && p.Name != t.portName {
			continue
		}
		info := DeviceInfo{
			Name:         p.Name,
			VendorID:     p.VID,
			ProductID:    p.PID,
			SerialNumber: p.SerialNumber,
			Product:      p.Product,
		}
		// an explicit port name overrides the usb filter
		if t.portName == "" && (!p.IsUSB || !f.Match(info)) {
			continue
		}
		result = append(result, info)
	}

	if len(result) == 0 && t.portName != "" {
		return []DeviceInfo{{Name: t.portName}}, nil
	}

	return result, nil
}

func mapSerialError(err error) error {
	var portErr *serial.PortError
	if errors.As(err, &portErr) {
		switch portErr.Code() {
		case serial.FunctionNotImplemented:
			return fmt.Errorf("%w: %w", ErrUnsupported, err)
		case serial.PortNotFound:
			return fmt.Errorf("%w: %w", ErrNoDevice, err)
		}
	}

	// platforms without an enumerator return the error without a cause
	var enumErr *enumerator.PortEnumerationError
	if errors.As(err, &enumErr) && *enumErr == (enumerator.PortEnumerationError{}) {
		return fmt.Errorf("%w: %w", ErrUnsupported, err)
	}

	return err
}

type serialDevice struct {
	info DeviceInfo
	t    *SerialTransport
}

func (d *serialDevice) Info() DeviceInfo { return d.info }

func (d *serialDevice) Open(ctx context.Context, baudRate int) (Port, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if baudRate <= 0 {
		return nil, fmt.Errorf("transport: invalid baud rate %d", baudRate)
	}

	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := d.t.openPort(d.info.Name, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial port %q: %w", d.info.Name, mapSerialError(err))
	}

	if rt, ok := port.(interface{ SetReadTimeout(time.Duration) error }); ok {
		if err := rt.SetReadTimeout(d.t.readTimeout); err != nil {
			_ = port.Close()
			return nil, fmt.Errorf("set serial read timeout: %w", err)
		}
	}

	// drop bytes buffered by the driver before the port was ours
	if rb, ok := port.(interface{ ResetInputBuffer() error }); ok {
		_ = rb.ResetInputBuffer()
	}

	d.t.logger.Debug("serial port opened", "port", d.info.Name, "baud", baudRate)

	return port, nil
}
