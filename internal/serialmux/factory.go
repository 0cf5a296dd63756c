package serialmux

import (
	"fmt"

	"go.bug.st/serial"
)

// realPort wraps a go.bug.st/serial port so it satisfies InputFlusher in
// addition to SerialPorter and TimeoutSerialPorter.
type realPort struct {
	serial.Port
}

func (p realPort) FlushInput() error {
	return p.Port.ResetInputBuffer()
}

// OpenPort opens a real serial port at the given path using the provided
// options. The read timeout from the options is applied immediately.
func OpenPort(path string, opts PortOptions) (SerialPorter, error) {
	normalized, err := opts.Normalize()
	if err != nil {
		return nil, err
	}

	mode, err := normalized.SerialMode()
	if err != nil {
		return nil, err
	}

	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", path, err)
	}

	if err := port.SetReadTimeout(normalized.ReadTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to set read timeout on %s: %w", path, err)
	}

	return realPort{port}, nil
}

// RealSerialPortFactory implements SerialPortFactory backed by real hardware.
type RealSerialPortFactory struct{}

// Open opens a serial port at the specified path with the given options.
func (RealSerialPortFactory) Open(path string, opts PortOptions) (SerialPorter, error) {
	return OpenPort(path, opts)
}
