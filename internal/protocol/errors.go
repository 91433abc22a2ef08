package protocol

import (
	"errors"
	"fmt"
)

var (
	// ErrHeaderMismatch is returned when a frame does not start with EF 01.
	ErrHeaderMismatch = errors.New("packet header mismatch")
	// ErrChecksumMismatch is returned when the trailing checksum is wrong.
	ErrChecksumMismatch = errors.New("packet checksum mismatch")
	// ErrTruncated is returned when fewer bytes are available than the frame needs.
	ErrTruncated = errors.New("packet truncated")
	// ErrBadLength is returned when the length field cannot describe a valid frame.
	ErrBadLength = errors.New("invalid packet length")
	// ErrInvalidParameter is returned by command constructors for out of range
	// arguments.
	ErrInvalidParameter = errors.New("invalid command parameter")
)

// ChecksumError carries both checksum values of a rejected frame.
type ChecksumError struct {
	Expected uint16
	Actual   uint16
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("%v: frame carries 0x%04X, computed 0x%04X", ErrChecksumMismatch, e.Expected, e.Actual)
}

func (e *ChecksumError) Unwrap() error { return ErrChecksumMismatch }
