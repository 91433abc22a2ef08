package protocol

import "fmt"

// Kind is the meaning of a confirmation code in the context of the command
// that produced it.
type Kind int

const (
	Unknown Kind = iota
	Success
	NoFingerDetected
	ImageCaptureFailed
	ImageTooMessy
	FeatureExtractionFailed
	InvalidImage
	ModelMismatch
	InvalidStoreLocation
	FlashWriteError
	CommunicationError
	WrongPassword
)

var kindNames = map[Kind]string{
	Unknown:                 "unknown",
	Success:                 "success",
	NoFingerDetected:        "no finger detected",
	ImageCaptureFailed:      "image capture failed",
	ImageTooMessy:           "image too messy",
	FeatureExtractionFailed: "feature extraction failed",
	InvalidImage:            "invalid image",
	ModelMismatch:           "model mismatch",
	InvalidStoreLocation:    "invalid store location",
	FlashWriteError:         "flash write error",
	CommunicationError:      "communication error",
	WrongPassword:           "wrong password",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Code is an interpreted confirmation code. Raw keeps the device byte so an
// Unknown code still reports what was received.
type Code struct {
	Kind Kind
	Raw  byte
}

// OK reports whether the device accepted the command.
func (c Code) OK() bool { return c.Kind == Success }

func (c Code) String() string {
	return fmt.Sprintf("%s (0x%02X)", c.Kind, c.Raw)
}

// Raw confirmation bytes. Several share a value with different meanings
// depending on the instruction that was sent.
const (
	ccOK            = 0x00
	ccPacketRecvErr = 0x01
	ccNoFinger      = 0x02
	ccImageFail     = 0x03
	ccImageMess     = 0x06
	ccFeatureFail   = 0x07
	ccEnrollMismat  = 0x0A
	ccBadLocation   = 0x0B
	ccWrongPassword = 0x13
	ccInvalidImage  = 0x15
	ccFlashErr      = 0x18
)

var codeTables = map[Instruction]map[byte]Kind{
	InsCaptureImage: {
		ccOK:            Success,
		ccPacketRecvErr: CommunicationError,
		ccNoFinger:      NoFingerDetected,
		ccImageFail:     ImageCaptureFailed,
	},
	InsConvertImage: {
		ccOK:            Success,
		ccPacketRecvErr: CommunicationError,
		ccImageMess:     ImageTooMessy,
		ccFeatureFail:   FeatureExtractionFailed,
		ccInvalidImage:  InvalidImage,
	},
	InsCreateModel: {
		ccOK:            Success,
		ccPacketRecvErr: CommunicationError,
		ccEnrollMismat:  ModelMismatch,
	},
	InsStoreModel: {
		ccOK:            Success,
		ccPacketRecvErr: CommunicationError,
		ccNoFinger:      InvalidStoreLocation, // some firmwares report 0x02 here
		ccBadLocation:   InvalidStoreLocation,
		ccFlashErr:      FlashWriteError,
	},
	InsVerifyPassword: {
		ccOK:            Success,
		ccPacketRecvErr: CommunicationError,
		ccWrongPassword: WrongPassword,
	},
}

// Interpret maps the confirmation byte of resp through the table for cmd's
// instruction. Unrecognised bytes yield Unknown with the raw value kept.
func Interpret(cmd Command, resp *Packet) Code {
	if resp == nil || len(resp.Payload) == 0 {
		return Code{Kind: CommunicationError, Raw: ccPacketRecvErr}
	}
	raw := resp.Payload[0]
	if kind, ok := codeTables[cmd.Instruction][raw]; ok {
		return Code{Kind: kind, Raw: raw}
	}
	return Code{Kind: Unknown, Raw: raw}
}
