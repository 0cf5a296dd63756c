package serialmux

import (
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readAll(t *testing.T, port *ScriptedPort) string {
	t.Helper()
	var out []byte
	buf := make([]byte, 64)
	for {
		n, err := port.Read(buf)
		require.NoError(t, err)
		if n == 0 {
			return string(out)
		}
		out = append(out, buf[:n]...)
	}
}

func TestScriptedPortEchoesByDefault(t *testing.T) {
	port := NewScriptedPort(nil)

	n, err := port.Write([]byte("TP\r"))
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	assert.Equal(t, "TP\r\n\r\n>", readAll(t, port))
}

func TestScriptedPortResponder(t *testing.T) {
	port := NewScriptedPort(func(command string) string {
		assert.Equal(t, "TP", command)
		return EchoResponder(command, "1000")
	})

	_, err := port.Write([]byte("TP\r"))
	require.NoError(t, err)

	assert.Equal(t, "TP\r\n1000\r\n\r\n>", readAll(t, port))
}

func TestScriptedPortPartialWrites(t *testing.T) {
	port := NewScriptedPort(nil)

	// a transmission split across writes only triggers the responder once
	// the carriage return arrives
	_, err := port.Write([]byte("SG"))
	require.NoError(t, err)
	assert.Equal(t, "", readAll(t, port))

	_, err = port.Write([]byte("50\r"))
	require.NoError(t, err)
	assert.Equal(t, "SG50\r\n\r\n>", readAll(t, port))

	assert.Equal(t, []string{"SG50"}, port.Transmissions())
}

func TestScriptedPortFlushInput(t *testing.T) {
	port := NewScriptedPort(nil)
	port.Enqueue("stale data")

	require.NoError(t, port.FlushInput())
	assert.Equal(t, "", readAll(t, port))
	assert.Equal(t, 1, port.FlushCalls)
}

func TestScriptedPortErrors(t *testing.T) {
	port := NewScriptedPort(nil)

	wantErr := errors.New("bus fault")
	port.ReadError = wantErr
	_, err := port.Read(make([]byte, 1))
	assert.Equal(t, wantErr, err)

	// error is one-shot
	_, err = port.Read(make([]byte, 1))
	assert.NoError(t, err)

	port.WriteError = wantErr
	_, err = port.Write([]byte("GO\r"))
	assert.Equal(t, wantErr, err)
}

func TestScriptedPortClose(t *testing.T) {
	port := NewScriptedPort(nil)
	require.NoError(t, port.Close())

	_, err := port.Read(make([]byte, 1))
	assert.Error(t, err)
	_, err = port.Write([]byte("GO\r"))
	assert.Error(t, err)
}

func TestScriptedPortReset(t *testing.T) {
	port := NewScriptedPort(nil)
	port.Write([]byte("GO\r"))
	port.Close()

	port.Reset()
	assert.False(t, port.Closed)
	assert.Equal(t, "", port.WrittenData())
	assert.Equal(t, 0, port.WriteCalls)
}

func TestScriptedPortImplementsOptionalInterfaces(t *testing.T) {
	var port SerialPorter = NewScriptedPort(nil)

	_, ok := port.(InputFlusher)
	assert.True(t, ok)
	_, ok = port.(TimeoutSerialPorter)
	assert.True(t, ok)
}

func TestMockSerialPortFactory(t *testing.T) {
	scripted := NewScriptedPort(nil)
	factory := NewMockSerialPortFactory(scripted)

	port, err := factory.Open("/dev/ttyS0", PortOptions{BaudRate: 19200})
	require.NoError(t, err)
	assert.Same(t, scripted, port.(*ScriptedPort))

	call := factory.LastCall()
	require.NotNil(t, call)
	assert.Equal(t, "/dev/ttyS0", call.Path)
	assert.Equal(t, 19200, call.Opts.BaudRate)

	factory.Error = io.ErrClosedPipe
	_, err = factory.Open("/dev/ttyS1", PortOptions{})
	assert.Error(t, err)
}

func TestScriptedPortFactory(t *testing.T) {
	factory := ScriptedPortFactory{Responder: func(command string) string {
		return EchoResponder(command, "7")
	}}

	port, err := factory.Open("ignored", PortOptions{})
	require.NoError(t, err)

	_, err = port.Write([]byte("TP\r"))
	require.NoError(t, err)
	assert.Equal(t, "TP\r\n7\r\n\r\n>", readAll(t, port.(*ScriptedPort)))

	// each Open hands out an independent port
	again, err := factory.Open("ignored", PortOptions{})
	require.NoError(t, err)
	assert.NotSame(t, port, again)
}
