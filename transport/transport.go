package transport

import (
	"context"
	"errors"
	"io"
	"strings"
)

var (
	// ErrSelectionCancelled is returned by Transport.Select when the user or caller
	// dismissed the device picker.
	ErrSelectionCancelled = errors.New("transport: device selection cancelled")

	// ErrNoDevice indicates that no device matched the filter.
	ErrNoDevice = errors.New("transport: no matching device")

	// ErrUnsupported indicates the host lacks the capability required by the transport,
	// e.g. serial port enumeration is not implemented for the operating system.
	ErrUnsupported = errors.New("transport: not supported on this host")
)

// Filter selects devices by USB identity. Ids are hexadecimal strings compared
// case-insensitively; an empty field matches any value.
type Filter struct {
	VendorID  string
	ProductID string
}

// Match reports whether info satisfies the filter.
func (f Filter) Match(info DeviceInfo) bool {
	if f.VendorID != "" && !strings.EqualFold(f.VendorID, info.VendorID) {
		return false
	}
	if f.ProductID != "" && !strings.EqualFold(f.ProductID, info.ProductID) {
		return false
	}

	return true
}

// String returns "vid:pid" with "*" for unset fields.
func (f Filter) String() string {
	vid, pid := f.VendorID, f.ProductID
	if vid == "" {
		vid = "*"
	}
	if pid == "" {
		pid = "*"
	}

	return vid + ":" + pid
}

// DeviceInfo describes a device visible to the host.
type DeviceInfo struct {
	// Name is the OS port name, e.g. /dev/ttyACM0 or COM3.
	Name         string
	VendorID     string
	ProductID    string
	SerialNumber string
	Product      string
}

// Key identifies the physical device across re-plugs. It prefers the USB serial
// number and falls back to the port name.
func (d DeviceInfo) Key() string {
	if d.SerialNumber != "" {
		return strings.ToLower(d.VendorID + ":" + d.ProductID + ":" + d.SerialNumber)
	}

	return d.Name
}

// Port is an opened duplex byte channel.
//
// Read may return (0, nil) when the read timeout elapsed without data.
// Close unblocks a pending Read, which then returns an error.
type Port interface {
	io.ReadWriteCloser
}

// Device is a selectable device that can be opened.
type Device interface {
	Info() DeviceInfo
	Open(ctx context.Context, baudRate int) (Port, error)
}

// Transport is the host environment's device access layer.
type Transport interface {
	// Select asks the user (or a policy) to pick one device matching f.
	// It returns ErrSelectionCancelled when the selection was dismissed.
	Select(ctx context.Context, f Filter) (Device, error)

	// Authorized returns the currently present devices matching f that were
	// authorized before, in most-recently-authorized order.
	Authorized(ctx context.Context, f Filter) ([]Device, error)
}

// Authorizer is implemented by transports that remember devices opened successfully,
// so later Authorized calls can find them without a new selection prompt.
type Authorizer interface {
	Authorize(info DeviceInfo)
}
