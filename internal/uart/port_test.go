package uart

import (
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSerialPort_Write(t *testing.T) {
	tsp := NewTestableSerialPort()
	port := NewSerialPort(tsp)

	require.NoError(t, port.Write([]byte{0xEF, 0x01}))
	assert.Equal(t, []byte{0xEF, 0x01}, tsp.GetWrittenData())
	assert.Equal(t, 1, tsp.WriteCalls)
}

func TestSerialPort_WriteErrors(t *testing.T) {
	tsp := NewTestableSerialPort()
	port := NewSerialPort(tsp)

	boom := errors.New("boom")
	tsp.WriteError = boom
	assert.ErrorIs(t, port.Write([]byte{0x01}), boom)

	tsp.ShortWrite = true
	assert.ErrorIs(t, port.Write([]byte{0x01, 0x02}), ErrWriteFailed)
}

func TestSerialPort_ReadWithTimeout_FullRead(t *testing.T) {
	tsp := NewTestableSerialPort()
	tsp.ReadChunk = 3 // force several Read calls
	tsp.AddReadData([]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10})
	port := NewSerialPort(tsp)

	got, err := port.ReadWithTimeout(9, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8, 9}, got)
	assert.GreaterOrEqual(t, tsp.ReadCalls, 3)
	assert.Greater(t, tsp.ReadTimeout, time.Duration(0))

	rest, err := port.ReadWithTimeout(9, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, []byte{10}, rest)
}

func TestSerialPort_ReadWithTimeout_Empty(t *testing.T) {
	port := NewSerialPort(NewTestableSerialPort())

	got, err := port.ReadWithTimeout(12, 10*time.Millisecond)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSerialPort_ReadWithTimeout_DeadlinePassed(t *testing.T) {
	tsp := NewTestableSerialPort()
	tsp.AddReadData([]byte{1, 2, 3})
	port := NewSerialPort(tsp)

	base := time.Unix(0, 0)
	calls := 0
	port.now = func() time.Time {
		calls++
		// the deadline is computed from the first call; every later call is past it
		if calls == 1 {
			return base
		}
		return base.Add(time.Hour)
	}

	got, err := port.ReadWithTimeout(3, time.Second)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, 0, tsp.ReadCalls)
}

func TestSerialPort_ReadWithTimeout_Error(t *testing.T) {
	tsp := NewTestableSerialPort()
	tsp.ReadError = errors.New("unplugged")
	port := NewSerialPort(tsp)

	_, err := port.ReadWithTimeout(4, time.Second)
	assert.Error(t, err)
}

type eofPort struct{ *TestableSerialPort }

func (e eofPort) Read(p []byte) (int, error) {
	n, _ := e.TestableSerialPort.Read(p)
	return n, io.EOF
}

func TestSerialPort_ReadWithTimeout_EOFAfterData(t *testing.T) {
	tsp := NewTestableSerialPort()
	tsp.AddReadData([]byte{0xAA})
	port := NewSerialPort(eofPort{tsp})

	got, err := port.ReadWithTimeout(4, time.Second)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xAA}, got)
}

func TestSerialPort_Close(t *testing.T) {
	tsp := NewTestableSerialPort()
	port := NewSerialPort(tsp)

	require.NoError(t, port.Close())
	assert.True(t, tsp.Closed)
	assert.Error(t, port.Write([]byte{0x01}))
}

func TestSerialPort_ResetInput(t *testing.T) {
	tsp := NewTestableSerialPort()
	tsp.AddReadData([]byte{0xEF, 0x01, 0xFF})
	port := NewSerialPort(tsp)

	require.NoError(t, port.ResetInput())
	assert.Equal(t, 1, tsp.ResetCalls)
	assert.Zero(t, tsp.Buffered())

	got, err := port.ReadWithTimeout(3, 10*time.Millisecond)
	require.NoError(t, err)
	assert.Empty(t, got)

	boom := errors.New("boom")
	tsp.ResetError = boom
	assert.ErrorIs(t, port.ResetInput(), boom)
}
