package lac1

import (
	"context"
	crand "crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/smac-tools/stagebench/internal/serialmux"
)

var (
	// ErrWriteFailed indicates a short write to the serial port.
	ErrWriteFailed = fmt.Errorf("failed to write to serial port")

	// ErrSessionClosed is returned by Exec after Close.
	ErrSessionClosed = fmt.Errorf("session is closed")
)

// escape is the ESC byte sent (twice) during shutdown to break the
// controller out of any interactive or macro state. The device suppresses
// its prompt for it, so it is always sent fire-and-forget.
var escape = Command{Mnemonic: "\033"}

// DeviceError is an error reported by the controller itself, from a response
// line beginning with '?'.
type DeviceError struct {
	Message string
}

func (e *DeviceError) Error() string {
	return "LAC-1 error: " + e.Message
}

// CommandHook observes every prompt-terminated transaction executed on a
// session: the encoded command text and the data lines the controller
// returned. Device errors are reported with the '?' line as the response.
// Fire-and-forget sends have no response pair and are not reported.
type CommandHook func(command string, response []string)

// Session owns a serial port and serialises prompt-terminated transactions
// over it. Observers may subscribe to the raw response lines, mirroring how
// multiple clients tap a shared sensor port; the fan-out never blocks the
// reader.
type Session struct {
	mu   sync.Mutex
	port serialmux.SerialPorter
	hook CommandHook

	subscribers  map[string]chan string
	subscriberMu sync.Mutex

	closed    bool
	closeOnce sync.Once
	closeErr  error
}

// NewSession creates a Session over the given port. The port is assumed to
// be configured with a short read timeout so empty reads poll rather than
// block indefinitely.
func NewSession(port serialmux.SerialPorter) *Session {
	return &Session{
		port:        port,
		subscribers: make(map[string]chan string),
	}
}

// SetCommandHook installs the transaction observer. The daemon uses this to
// persist every command/response pair to the command log, including moves and
// initialization traffic that never pass through the raw command surface.
func (s *Session) SetCommandHook(hook CommandHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hook = hook
}

// randomID generates a random subscriber ID (8 byte random hex encoded value)
func randomID() string {
	b := make([]byte, 8)
	crand.Read(b)
	return hex.EncodeToString(b)
}

// Subscribe creates a channel receiving every raw line read from the
// controller. The returned ID identifies the channel when unsubscribing.
func (s *Session) Subscribe() (string, chan string) {
	id := randomID()
	ch := make(chan string, 16)
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	s.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (s *Session) Unsubscribe(id string) {
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	if ch, ok := s.subscribers[id]; ok {
		close(ch)
		delete(s.subscribers, id)
	}
}

func (s *Session) publish(line string) {
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	for _, ch := range s.subscribers {
		select {
		case ch <- line:
		default:
			// drop rather than block the transaction loop
		}
	}
}

// write sends raw bytes and verifies the full payload went out.
func (s *Session) write(payload string) error {
	n, err := s.port.Write([]byte(payload))
	if err != nil {
		return err
	}
	if n != len(payload) {
		return ErrWriteFailed
	}
	return nil
}

// readLine reads until CR. LF is ignored, and a '>' terminates the line
// immediately since the controller emits its ready prompt without a trailing
// CR. Empty reads (port timeout) are retried until the context is done.
func (s *Session) readLine(ctx context.Context) (string, error) {
	var line strings.Builder
	buf := make([]byte, 1)
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
		}

		n, err := s.port.Read(buf)
		if err != nil {
			return "", fmt.Errorf("serial read failed: %w", err)
		}
		if n == 0 {
			// port read timed out with no data; poll again
			time.Sleep(time.Millisecond)
			continue
		}

		switch c := buf[0]; c {
		case '\n':
			// not a terminal, linefeeds carry no information
		case '\r':
			return line.String(), nil
		default:
			line.WriteByte(c)
			if c == '>' {
				return line.String(), nil
			}
		}
	}
}

// Exec sends the given commands as one transmission and reads response lines
// until the controller's ready prompt. The echoed input line is discarded and
// the remaining data lines are returned. A response line beginning with '?'
// is returned as a *DeviceError.
func (s *Session) Exec(ctx context.Context, cmds ...Command) ([]string, error) {
	if len(cmds) == 0 {
		return nil, fmt.Errorf("no commands to send")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrSessionClosed
	}

	// Clear any characters pending in the input in case a previous
	// transaction did not consume its full response.
	if f, ok := s.port.(serialmux.InputFlusher); ok {
		if err := f.FlushInput(); err != nil {
			return nil, fmt.Errorf("failed to flush input buffer: %w", err)
		}
	}

	sent := Encode(cmds)
	if err := s.write(sent + "\r"); err != nil {
		return nil, err
	}

	var lines []string
	for {
		line, err := s.readLine(ctx)
		if err != nil {
			return nil, err
		}
		s.publish(line)

		if line == ">" {
			break
		}

		done := false
		if strings.HasSuffix(line, ">") {
			line = strings.TrimSuffix(line, ">")
			done = true
		}
		if line != "" {
			if line[0] == '?' {
				if s.hook != nil {
					s.hook(sent, []string{line})
				}
				return nil, &DeviceError{Message: line[1:]}
			}
			lines = append(lines, line)
		}
		if done {
			break
		}
	}

	// The first line is a repeat of what we sent: echo is on by default and
	// cannot be disabled reliably on this firmware.
	if len(lines) > 0 {
		lines = lines[1:]
	}
	if s.hook != nil {
		s.hook(sent, lines)
	}
	return lines, nil
}

// ExecNoWait sends the commands without waiting for the ready prompt, for
// commands that suppress output. A short settle delay is applied instead.
func (s *Session) ExecNoWait(cmds ...Command) error {
	if len(cmds) == 0 {
		return fmt.Errorf("no commands to send")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}

	if err := s.write(Encode(cmds) + "\r"); err != nil {
		return err
	}
	time.Sleep(100 * time.Millisecond)
	return nil
}

// Close shuts the controller down safely and closes the port: two ESC bytes
// to break out of any running macro, abort, motor off, echo back on. The
// command sequence is best-effort; the port close error is what is reported.
// Close is idempotent.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		s.ExecNoWait(escape)
		s.ExecNoWait(escape)
		s.Exec(ctx, Cmd("AB"))
		s.Exec(ctx, Cmd("MF"))
		s.Exec(ctx, Cmd("EN"))

		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		s.subscriberMu.Lock()
		for id, ch := range s.subscribers {
			close(ch)
			delete(s.subscribers, id)
		}
		s.subscriberMu.Unlock()

		s.closeErr = s.port.Close()
	})
	return s.closeErr
}
