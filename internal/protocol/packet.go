// Package protocol implements the packet format spoken by R30x/AS608 style
// optical fingerprint modules: framing, checksums, the command catalog and
// the per-command interpretation of confirmation codes.
//
// Frame layout (multi-byte fields big-endian):
//
//	[EF 01][ADDR(4)][PID][LEN(2)][PAYLOAD(N)][SUM(2)]
//
// LEN counts the payload plus the two checksum bytes. SUM is the 16-bit
// truncated sum of every byte from PID through the end of the payload.
package protocol

import (
	"encoding/binary"
	"fmt"
)

// Frame constants.
const (
	HeaderHigh = 0xEF
	HeaderLow  = 0x01

	// DefaultAddress is the broadcast address every module answers to.
	DefaultAddress uint32 = 0xFFFFFFFF

	HeaderSize   = 2
	AddressSize  = 4
	LengthSize   = 2
	ChecksumSize = 2

	// HeadSize is the number of bytes before the payload.
	HeadSize = HeaderSize + AddressSize + 1 + LengthSize

	// MinFrameSize is a frame with a single payload byte.
	MinFrameSize = HeadSize + 1 + ChecksumSize

	// MaxPayloadSize bounds data packets; commands and acks are far smaller.
	MaxPayloadSize = 256
)

// PID is the packet identifier byte.
type PID byte

const (
	PIDCommand   PID = 0x01
	PIDData      PID = 0x02
	PIDAck       PID = 0x07
	PIDEndOfData PID = 0x08
)

func (p PID) String() string {
	switch p {
	case PIDCommand:
		return "command"
	case PIDData:
		return "data"
	case PIDAck:
		return "ack"
	case PIDEndOfData:
		return "end-of-data"
	default:
		return fmt.Sprintf("pid(0x%02X)", byte(p))
	}
}

// Packet is a decoded frame.
type Packet struct {
	Address    uint32
	Identifier PID
	Payload    []byte
	Checksum   uint16
}

// Checksum returns the 16-bit truncated sum of b.
func Checksum(b []byte) uint16 {
	var sum uint16
	for _, v := range b {
		sum += uint16(v)
	}
	return sum
}

// Encode frames payload into a complete packet. Payloads longer than
// MaxPayloadSize cannot be decoded by the module and are a programming error:
// Encode panics on them.
func Encode(pid PID, address uint32, payload []byte) []byte {
	if len(payload) > MaxPayloadSize {
		panic(fmt.Sprintf("protocol: payload of %d bytes exceeds %d", len(payload), MaxPayloadSize))
	}
	frame := make([]byte, HeadSize, HeadSize+len(payload)+ChecksumSize)
	frame[0] = HeaderHigh
	frame[1] = HeaderLow
	binary.BigEndian.PutUint32(frame[2:6], address)
	frame[6] = byte(pid)
	binary.BigEndian.PutUint16(frame[7:9], uint16(len(payload)+ChecksumSize))
	frame = append(frame, payload...)

	sum := Checksum(frame[HeaderSize+AddressSize:])
	return binary.BigEndian.AppendUint16(frame, sum)
}

// Bytes re-encodes the packet. The stored Checksum is ignored.
func (p *Packet) Bytes() []byte {
	return Encode(p.Identifier, p.Address, p.Payload)
}

// FrameSize reports the total size of the frame that starts with head. head
// must hold at least HeadSize bytes.
func FrameSize(head []byte) (int, error) {
	if len(head) < HeaderSize {
		return 0, fmt.Errorf("%w: got %d bytes", ErrTruncated, len(head))
	}
	if head[0] != HeaderHigh || head[1] != HeaderLow {
		return 0, fmt.Errorf("%w: got 0x%02X 0x%02X", ErrHeaderMismatch, head[0], head[1])
	}
	if len(head) < HeadSize {
		return 0, fmt.Errorf("%w: got %d bytes, need %d for the packet head", ErrTruncated, len(head), HeadSize)
	}

	length := int(binary.BigEndian.Uint16(head[7:9]))
	if length < ChecksumSize || length > MaxPayloadSize+ChecksumSize {
		return 0, fmt.Errorf("%w: %d", ErrBadLength, length)
	}
	return HeadSize + length, nil
}

// Decode parses a frame from b. Bytes after the declared frame are ignored.
// Address and payload content are not validated.
func Decode(b []byte) (*Packet, error) {
	size, err := FrameSize(b)
	if err != nil {
		return nil, err
	}
	if len(b) < size {
		return nil, fmt.Errorf("%w: got %d bytes, length field declares %d", ErrTruncated, len(b), size)
	}

	frame := b[:size]
	body := frame[HeaderSize+AddressSize : size-ChecksumSize]
	want := binary.BigEndian.Uint16(frame[size-ChecksumSize:])
	if got := Checksum(body); got != want {
		return nil, &ChecksumError{Expected: want, Actual: got}
	}

	payload := make([]byte, size-HeadSize-ChecksumSize)
	copy(payload, frame[HeadSize:size-ChecksumSize])

	return &Packet{
		Address:    binary.BigEndian.Uint32(frame[2:6]),
		Identifier: PID(frame[6]),
		Payload:    payload,
		Checksum:   want,
	}, nil
}
