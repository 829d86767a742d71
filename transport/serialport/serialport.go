// Package serialport adapts go.bug.st/serial into the transport.Transport
// contract, for devices directly attached to the host running the
// scheduler.
package serialport

import (
	"bufio"
	"context"
	"errors"

	"go.bug.st/serial"

	"github.com/atgocore/atcore/transport"
)

var errShortWrite = errors.New("short write")

// Serial is a transport.Transport backed by a local serial port.
type Serial struct{}

// New returns a Serial transport.
func New() Serial { return Serial{} }

// Enumerate lists the names of serial ports go.bug.st/serial can see.
func (Serial) Enumerate() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, transport.NewError("enumerate", transport.ErrIO, err)
	}
	return ports, nil
}

// Open opens port at baud, with 8N1 framing (the universal default for
// G-code firmware).
func (Serial) Open(ctx context.Context, port string, baud int) (transport.Handle, error) {
	mode := &serial.Mode{BaudRate: baud}
	p, err := serial.Open(port, mode)
	if err != nil {
		kind := transport.ErrIO
		if portErr, ok := err.(*serial.PortError); ok {
			switch portErr.Code() {
			case serial.PortNotFound:
				kind = transport.ErrNotFound
			case serial.PortBusy:
				kind = transport.ErrBusy
			}
		}
		return nil, transport.NewError("open", kind, err)
	}

	h := &handle{port: p, lines: make(chan string, 64)}
	go h.readLoop()
	return h, nil
}

type handle struct {
	port  serial.Port
	lines chan string
}

func (h *handle) readLoop() {
	defer close(h.lines)
	scan := bufio.NewScanner(h.port)
	for scan.Scan() {
		h.lines <- scan.Text()
	}
}

func (h *handle) Write(p []byte) error {
	n, err := h.port.Write(p)
	if err != nil {
		return transport.NewError("write", transport.ErrIO, err)
	}
	if n != len(p) {
		return transport.NewError("write", transport.ErrIO, errShortWrite)
	}
	return nil
}

func (h *handle) Lines() <-chan string { return h.lines }

func (h *handle) Close() error {
	err := h.port.Close()
	if err != nil {
		return transport.NewError("close", transport.ErrClosed, err)
	}
	return nil
}
