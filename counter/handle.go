package counter

import (
	"errors"
	"io"
	"sync"

	"github.com/arloliu/go-coincounter/internal/util"
	"github.com/arloliu/go-coincounter/logger"
	"github.com/arloliu/go-coincounter/transport"
)

const (
	readChunkSize = 256
	rxQueueSize   = 64
)

// deviceHandle wraps one opened port.
//
// A reader goroutine pumps incoming bytes into rx so an exchange can race
// reads against its deadline. A read error ends the pump, is delivered once
// on rxErr and reported through onLost.
type deviceHandle struct {
	port   transport.Port
	info   transport.DeviceInfo
	logger logger.Logger

	rx     chan []byte
	rxErr  chan error
	onLost func(h *deviceHandle, err error)

	closeOnce sync.Once
	quit      chan struct{}
}

func newDeviceHandle(
	port transport.Port,
	info transport.DeviceInfo,
	l logger.Logger,
	onLost func(h *deviceHandle, err error),
) *deviceHandle {
	h := &deviceHandle{
		port:   port,
		info:   info,
		logger: l,
		onLost: onLost,
		rx:     make(chan []byte, rxQueueSize),
		rxErr:  make(chan error, 1),
		quit:   make(chan struct{}),
	}
	go h.pump()

	return h
}

func (h *deviceHandle) pump() {
	buf := make([]byte, readChunkSize)
	for {
		n, err := h.port.Read(buf)
		if n > 0 {
			select {
			case h.rx <- util.CloneSlice(buf[:n], 0):
			case <-h.quit:
				return
			}
		}

		if err != nil {
			select {
			case <-h.quit:
				// closed by us, not a link failure
			default:
				if errors.Is(err, io.EOF) {
					err = io.ErrUnexpectedEOF
				}
				h.rxErr <- err
				if h.onLost != nil {
					h.onLost(h, err)
				}
			}

			return
		}
	}
}

// discardInput drops bytes received before the next exchange.
func (h *deviceHandle) discardInput() int {
	dropped := 0
	for {
		select {
		case chunk := <-h.rx:
			dropped += len(chunk)
		default:
			return dropped
		}
	}
}

// close releases the port. Errors are logged and swallowed.
func (h *deviceHandle) close() {
	h.closeOnce.Do(func() {
		close(h.quit)
		if err := h.port.Close(); err != nil {
			h.logger.Debug("failed to close port", "port", h.info.Name, "error", err)
		}
	})
}
