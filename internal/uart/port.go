// Package uart provides the byte channel the fingerprint module is reached
// over: a blocking write and a read bounded by a timeout.
package uart

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.bug.st/serial"
)

var ErrWriteFailed = fmt.Errorf("failed to write to serial port")

// Port is a blocking byte channel. ReadWithTimeout returns once max bytes
// have arrived or timeout has elapsed; an empty result with a nil error means
// nothing arrived in time. ResetInput discards whatever has been received but
// not yet read.
type Port interface {
	Write(p []byte) error
	ReadWithTimeout(max int, timeout time.Duration) ([]byte, error)
	ResetInput() error
	Close() error
}

// TimeoutReader is the subset of a serial port SerialPort needs: reads that
// return (0, nil) once the configured read timeout expires.
type TimeoutReader interface {
	io.ReadWriteCloser
	SetReadTimeout(timeout time.Duration) error
	ResetInputBuffer() error
}

// SerialPort adapts a TimeoutReader (normally a go.bug.st/serial port) to Port.
type SerialPort struct {
	rw TimeoutReader
	mu sync.Mutex
	// now is swapped in tests
	now func() time.Time
}

// NewSerialPort wraps rw.
func NewSerialPort(rw TimeoutReader) *SerialPort {
	return &SerialPort{rw: rw, now: time.Now}
}

// Open opens the serial device at path with opts.
func Open(path string, opts PortOptions) (*SerialPort, error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}

	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	// drop anything the module sent before we were listening
	if err := port.ResetInputBuffer(); err != nil {
		port.Close()
		return nil, fmt.Errorf("reset input buffer on %s: %w", path, err)
	}

	return NewSerialPort(port), nil
}

// Write sends p in full.
func (s *SerialPort) Write(p []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := s.rw.Write(p)
	if err != nil {
		return err
	}
	if n != len(p) {
		return ErrWriteFailed
	}
	return nil
}

// ReadWithTimeout reads until max bytes are collected or timeout elapses.
func (s *SerialPort) ReadWithTimeout(max int, timeout time.Duration) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if max <= 0 {
		return nil, nil
	}

	buf := make([]byte, max)
	got := 0
	deadline := s.now().Add(timeout)
	for got < max {
		remaining := deadline.Sub(s.now())
		if remaining <= 0 {
			break
		}
		if err := s.rw.SetReadTimeout(remaining); err != nil {
			return buf[:got], fmt.Errorf("set read timeout: %w", err)
		}
		n, err := s.rw.Read(buf[got:])
		got += n
		if err != nil {
			if errors.Is(err, io.EOF) && got > 0 {
				break
			}
			return buf[:got], fmt.Errorf("read after %d/%d bytes: %w", got, max, err)
		}
		if n == 0 {
			// read timeout expired with nothing new
			break
		}
	}
	return buf[:got], nil
}

// ResetInput drops any received bytes still buffered by the driver.
func (s *SerialPort) ResetInput() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.rw.ResetInputBuffer()
}

// Close closes the underlying port.
func (s *SerialPort) Close() error {
	return s.rw.Close()
}
