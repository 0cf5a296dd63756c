package serialmux

import (
	"bytes"
	"errors"
	"strings"
	"sync"
	"time"
)

// ScriptedPort implements SerialPorter for testing against a simulated LAC-1.
// Written bytes are accumulated until a carriage return completes a
// transmission, at which point the Responder is invoked to queue the bytes
// the device would emit. Reads drain the queued response; an empty queue
// behaves like a timed-out read on real hardware (0 bytes, no error).
type ScriptedPort struct {
	mu sync.Mutex

	readBuf  bytes.Buffer
	writeBuf bytes.Buffer
	pending  bytes.Buffer

	// Responder produces the raw device output for a completed transmission
	// (the command text without the trailing CR). If nil, EchoResponder is
	// used with no data lines.
	Responder func(command string) string

	// ReadError is returned by the next Read call if set.
	ReadError error

	// WriteError is returned by the next Write call if set.
	WriteError error

	// CloseError is returned by Close if set.
	CloseError error

	// Closed indicates whether Close was called.
	Closed bool

	// ReadCalls, WriteCalls and FlushCalls record call counts.
	ReadCalls  int
	WriteCalls int
	FlushCalls int

	readTimeout time.Duration
}

// NewScriptedPort creates a ScriptedPort with the given responder. A nil
// responder echoes each transmission and returns the ready prompt with no
// data lines.
func NewScriptedPort(responder func(command string) string) *ScriptedPort {
	return &ScriptedPort{Responder: responder}
}

// EchoResponder builds the byte stream a LAC-1 produces for a transmission:
// the echoed input, any data lines, then the CRLF ready prompt.
func EchoResponder(command string, dataLines ...string) string {
	var b strings.Builder
	b.WriteString(command)
	b.WriteString("\r\n")
	for _, line := range dataLines {
		b.WriteString(line)
		b.WriteString("\r\n")
	}
	b.WriteString("\r\n>")
	return b.String()
}

// Read drains queued response bytes. An empty queue returns 0 bytes with no
// error, matching a real port read timing out.
func (p *ScriptedPort) Read(buf []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.ReadCalls++

	if p.Closed {
		return 0, errors.New("serial port closed")
	}
	if p.ReadError != nil {
		err := p.ReadError
		p.ReadError = nil
		return 0, err
	}
	if p.readBuf.Len() == 0 {
		return 0, nil
	}
	return p.readBuf.Read(buf)
}

// Write captures outgoing bytes and runs the responder once a transmission
// is completed by a carriage return.
func (p *ScriptedPort) Write(data []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.WriteCalls++

	if p.Closed {
		return 0, errors.New("serial port closed")
	}
	if p.WriteError != nil {
		err := p.WriteError
		p.WriteError = nil
		return 0, err
	}

	p.writeBuf.Write(data)
	for _, b := range data {
		if b == '\r' {
			command := p.pending.String()
			p.pending.Reset()
			if p.Responder != nil {
				p.readBuf.WriteString(p.Responder(command))
			} else {
				p.readBuf.WriteString(EchoResponder(command))
			}
			continue
		}
		p.pending.WriteByte(b)
	}
	return len(data), nil
}

// Close marks the port as closed.
func (p *ScriptedPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Closed = true
	return p.CloseError
}

// FlushInput discards any queued response bytes.
func (p *ScriptedPort) FlushInput() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.FlushCalls++
	p.readBuf.Reset()
	return nil
}

// SetReadTimeout implements TimeoutSerialPorter.
func (p *ScriptedPort) SetReadTimeout(timeout time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.readTimeout = timeout
	return nil
}

// Enqueue adds raw bytes to be returned by subsequent Read calls without
// requiring a write, for simulating unsolicited device output.
func (p *ScriptedPort) Enqueue(data string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.readBuf.WriteString(data)
}

// WrittenData returns all bytes written to the port so far.
func (p *ScriptedPort) WrittenData() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.writeBuf.String()
}

// Transmissions splits the written data into CR-terminated transmissions.
func (p *ScriptedPort) Transmissions() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	raw := p.writeBuf.String()
	parts := strings.Split(raw, "\r")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Reset clears all buffers and recorded state.
func (p *ScriptedPort) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.readBuf.Reset()
	p.writeBuf.Reset()
	p.pending.Reset()
	p.ReadCalls = 0
	p.WriteCalls = 0
	p.FlushCalls = 0
	p.Closed = false
	p.ReadError = nil
	p.WriteError = nil
	p.CloseError = nil
}

// ScriptedPortFactory implements SerialPortFactory by handing out simulated
// ports. The tools install one in dev mode so the rest of the stack dials a
// "port" exactly as it would real hardware.
type ScriptedPortFactory struct {
	// Responder produces the device output for each transmission, as for
	// ScriptedPort.
	Responder func(command string) string
}

// Open returns a fresh ScriptedPort; path and options are ignored.
func (f ScriptedPortFactory) Open(path string, opts PortOptions) (SerialPorter, error) {
	return NewScriptedPort(f.Responder), nil
}

// MockSerialPortFactory implements SerialPortFactory for testing.
type MockSerialPortFactory struct {
	mu sync.Mutex

	// Port is the port to return from Open.
	Port SerialPorter

	// Error is returned by Open if set.
	Error error

	// OpenCalls records all Open calls.
	OpenCalls []MockOpenCall
}

// MockOpenCall records details of an Open call.
type MockOpenCall struct {
	Path string
	Opts PortOptions
}

// NewMockSerialPortFactory creates a new MockSerialPortFactory.
func NewMockSerialPortFactory(port SerialPorter) *MockSerialPortFactory {
	return &MockSerialPortFactory{Port: port}
}

// Open returns the configured port or error.
func (f *MockSerialPortFactory) Open(path string, opts PortOptions) (SerialPorter, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.OpenCalls = append(f.OpenCalls, MockOpenCall{Path: path, Opts: opts})

	if f.Error != nil {
		return nil, f.Error
	}
	return f.Port, nil
}

// LastCall returns the most recent Open call, or nil if none.
func (f *MockSerialPortFactory) LastCall() *MockOpenCall {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.OpenCalls) == 0 {
		return nil
	}
	return &f.OpenCalls[len(f.OpenCalls)-1]
}
