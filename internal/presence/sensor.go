// Package presence reports whether a finger is resting on the sensor window.
// R30x and AS608 modules expose this on a touch output line that is pulled
// low while a finger is present.
package presence

import (
	"errors"
	"sync"
	"time"

	"github.com/VioletBL/fingerprint-sensor/internal/timeutil"
)

// ErrNoPin is returned when the named GPIO line does not exist on the host.
var ErrNoPin = errors.New("presence pin not found")

// Sensor is the finger-presence input polled by the enrollment loop.
type Sensor interface {
	FingerPresent() (bool, error)
}

// SensorFunc adapts a plain function to Sensor.
type SensorFunc func() (bool, error)

func (f SensorFunc) FingerPresent() (bool, error) { return f() }

// Script replays a fixed sequence of readings. Once the sequence is
// exhausted the last reading repeats; an empty Script reports no finger.
type Script struct {
	mu       sync.Mutex
	readings []bool
	pos      int
	calls    int
	err      error
}

// NewScript returns a Script that yields readings in order.
func NewScript(readings ...bool) *Script {
	return &Script{readings: readings}
}

// FailWith makes every following read return err.
func (s *Script) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// Calls returns how many times the sensor was read.
func (s *Script) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *Script) FingerPresent() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return false, s.err
	}
	if len(s.readings) == 0 {
		return false, nil
	}
	v := s.readings[s.pos]
	if s.pos < len(s.readings)-1 {
		s.pos++
	}
	return v, nil
}

// Periodic simulates a user who places a finger for On and lifts it for Off,
// repeating forever. It drives dev mode.
type Periodic struct {
	clock timeutil.Clock
	start time.Time
	On    time.Duration
	Off   time.Duration
}

// NewPeriodic starts the cycle at the clock's current time with the finger
// lifted.
func NewPeriodic(clock timeutil.Clock, on, off time.Duration) *Periodic {
	return &Periodic{clock: clock, start: clock.Now(), On: on, Off: off}
}

func (p *Periodic) FingerPresent() (bool, error) {
	period := p.On + p.Off
	if period <= 0 {
		return false, nil
	}
	phase := p.clock.Since(p.start) % period
	return phase >= p.Off, nil
}
