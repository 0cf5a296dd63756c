// Package serialmux provides the serial port abstraction used to talk to a
// SMAC LAC-1 motion controller. A single exclusive port is shared between the
// protocol session and any observers tapping the raw traffic.
package serialmux

import (
	"io"
	"time"
)

// SerialPorter defines the minimal interface needed for a serial port.
// This abstraction enables unit testing without real controller hardware.
type SerialPorter interface {
	io.ReadWriter
	io.Closer
}

// InputFlusher is implemented by ports that can discard pending input.
// The LAC-1 protocol flushes before every transaction so a previous partial
// response cannot corrupt the next one.
type InputFlusher interface {
	FlushInput() error
}

// TimeoutSerialPorter extends SerialPorter with timeout capabilities.
// This is an optional interface that serial ports may implement.
type TimeoutSerialPorter interface {
	SerialPorter
	// SetReadTimeout sets the read timeout for the serial port.
	SetReadTimeout(timeout time.Duration) error
}

// SerialPortFactory defines an interface for creating serial ports.
// This abstraction enables dependency injection of serial port creation:
// the tools open real hardware through RealSerialPortFactory and switch to
// a ScriptedPortFactory in dev mode.
type SerialPortFactory interface {
	// Open opens a serial port at the specified path with the given options.
	Open(path string, opts PortOptions) (SerialPorter, error)
}
