// Package transport defines the byte-stream link used to reach a coincidence counter
// and provides a USB serial implementation built on go.bug.st/serial.
//
// The engine in package counter only depends on the interfaces declared here:
//
//   - [Transport] selects a device interactively and lists previously authorized devices.
//   - [Device] opens a [Port] at a given bit rate.
//   - [Port] is a duplex byte channel. Read may return (0, nil) when no byte arrived
//     within the port read timeout; callers treat that as "nothing yet".
//
// Devices are identified by a [Filter] on the USB vendor (and optionally product) id.
// The same filter is used for interactive selection and for matching the authorized
// device list during reconnection.
package transport
