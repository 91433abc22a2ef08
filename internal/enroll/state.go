package enroll

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/VioletBL/fingerprint-sensor/internal/device"
	"github.com/VioletBL/fingerprint-sensor/internal/protocol"
)

// ErrTimeout is the failure reason of a session that ran out of capture
// attempts or wall-clock time.
var ErrTimeout = errors.New("enrollment timed out")

// State is a step of the enrollment workflow.
type State int

const (
	Idle State = iota
	AwaitFirstImage
	ExtractFirstFeatures
	AwaitFingerRemoval
	AwaitSecondImage
	ExtractSecondFeatures
	CreateModel
	StoreModel
	Completed
	Failed
)

var stateNames = [...]string{
	Idle:                  "Idle",
	AwaitFirstImage:       "AwaitFirstImage",
	ExtractFirstFeatures:  "ExtractFirstFeatures",
	AwaitFingerRemoval:    "AwaitFingerRemoval",
	AwaitSecondImage:      "AwaitSecondImage",
	ExtractSecondFeatures: "ExtractSecondFeatures",
	CreateModel:           "CreateModel",
	StoreModel:            "StoreModel",
	Completed:             "Completed",
	Failed:                "Failed",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// MarshalText lets states appear by name in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText accepts the names produced by MarshalText.
func (s *State) UnmarshalText(b []byte) error {
	for i, name := range stateNames {
		if name == string(b) {
			*s = State(i)
			return nil
		}
	}
	return fmt.Errorf("unknown enrollment state %q", b)
}

// Terminal reports whether no further transition can leave s.
func (s State) Terminal() bool {
	return s == Completed || s == Failed
}

// Session is one enrollment attempt. It is owned by the Enroller that created
// it until it reaches a terminal state.
type Session struct {
	ID              uuid.UUID
	TemplateID      uint16
	State           State
	ImagesCaptured  int
	CaptureAttempts int
	StartedAt       time.Time
	FinishedAt      time.Time

	// FailedIn is the state the session left when it failed.
	FailedIn State
	// Err is the failure reason; nil unless State is Failed.
	Err error
}

func newSession(templateID uint16, now time.Time) *Session {
	return &Session{
		ID:         uuid.New(),
		TemplateID: templateID,
		State:      Idle,
		StartedAt:  now,
	}
}

// Code returns the confirmation code a device-reported failure carried.
func (s *Session) Code() (protocol.Code, bool) {
	var de *device.DeviceError
	if errors.As(s.Err, &de) {
		return de.Code, true
	}
	return protocol.Code{}, false
}

// Snapshot is a read-only view of a session, safe to hand to other
// goroutines and to encode as JSON.
type Snapshot struct {
	ID              string    `json:"id"`
	TemplateID      uint16    `json:"template_id"`
	State           State     `json:"state"`
	ImagesCaptured  int       `json:"images_captured"`
	CaptureAttempts int       `json:"capture_attempts"`
	StartedAt       time.Time `json:"started_at"`
	FinishedAt      time.Time `json:"finished_at,omitzero"`
	FailedIn        string    `json:"failed_in,omitempty"`
	Error           string    `json:"error,omitempty"`
}

// Snapshot copies the session's current values.
func (s *Session) Snapshot() Snapshot {
	snap := Snapshot{
		ID:              s.ID.String(),
		TemplateID:      s.TemplateID,
		State:           s.State,
		ImagesCaptured:  s.ImagesCaptured,
		CaptureAttempts: s.CaptureAttempts,
		StartedAt:       s.StartedAt,
		FinishedAt:      s.FinishedAt,
	}
	if s.Err != nil {
		snap.Error = s.Err.Error()
		snap.FailedIn = s.FailedIn.String()
	}
	return snap
}
