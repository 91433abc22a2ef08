package protocol

import (
	"encoding/binary"
	"fmt"
)

// Instruction is the first payload byte of a command packet.
type Instruction byte

const (
	InsCaptureImage   Instruction = 0x01 // GenImg
	InsConvertImage   Instruction = 0x02 // Img2Tz
	InsCreateModel    Instruction = 0x05 // RegModel
	InsStoreModel     Instruction = 0x06 // Store
	InsVerifyPassword Instruction = 0x13 // VfyPwd
)

func (i Instruction) String() string {
	switch i {
	case InsCaptureImage:
		return "CaptureImage"
	case InsConvertImage:
		return "ConvertImage"
	case InsCreateModel:
		return "CreateModel"
	case InsStoreModel:
		return "StoreModel"
	case InsVerifyPassword:
		return "VerifyPassword"
	default:
		return fmt.Sprintf("Instruction(0x%02X)", byte(i))
	}
}

// BufferID selects one of the module's two character file buffers.
type BufferID byte

const (
	Buffer1 BufferID = 0x01
	Buffer2 BufferID = 0x02
)

// Valid reports whether b names a real capture buffer.
func (b BufferID) Valid() bool {
	return b == Buffer1 || b == Buffer2
}

// Command is an instruction plus its parameter bytes.
type Command struct {
	Instruction Instruction
	Params      []byte
}

// Payload returns the instruction byte followed by the parameters.
func (c Command) Payload() []byte {
	p := make([]byte, 0, 1+len(c.Params))
	p = append(p, byte(c.Instruction))
	return append(p, c.Params...)
}

func (c Command) String() string {
	if len(c.Params) == 0 {
		return c.Instruction.String()
	}
	return fmt.Sprintf("%s[% X]", c.Instruction, c.Params)
}

// CaptureImage asks the sensor to take an image into the image buffer.
func CaptureImage() Command {
	return Command{Instruction: InsCaptureImage}
}

// ConvertImage extracts features from the image buffer into buf.
func ConvertImage(buf BufferID) (Command, error) {
	if !buf.Valid() {
		return Command{}, fmt.Errorf("%w: buffer id 0x%02X", ErrInvalidParameter, byte(buf))
	}
	return Command{Instruction: InsConvertImage, Params: []byte{byte(buf)}}, nil
}

// CreateModel merges both character buffers into a template.
func CreateModel() Command {
	return Command{Instruction: InsCreateModel}
}

// StoreModel writes the template held in buf to flash slot templateID.
func StoreModel(buf BufferID, templateID uint16) (Command, error) {
	if !buf.Valid() {
		return Command{}, fmt.Errorf("%w: buffer id 0x%02X", ErrInvalidParameter, byte(buf))
	}
	params := []byte{byte(buf), 0, 0}
	binary.BigEndian.PutUint16(params[1:], templateID)
	return Command{Instruction: InsStoreModel, Params: params}, nil
}

// VerifyPassword performs the module handshake with the given password.
// Factory modules use 0.
func VerifyPassword(password uint32) Command {
	return Command{Instruction: InsVerifyPassword, Params: binary.BigEndian.AppendUint32(nil, password)}
}
