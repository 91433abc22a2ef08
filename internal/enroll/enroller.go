// Package enroll runs the two-image fingerprint enrollment workflow: capture
// and extract features twice, merge them into a template and store it in the
// module's flash.
package enroll

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/VioletBL/fingerprint-sensor/internal/config"
	"github.com/VioletBL/fingerprint-sensor/internal/device"
	"github.com/VioletBL/fingerprint-sensor/internal/monitoring"
	"github.com/VioletBL/fingerprint-sensor/internal/presence"
	"github.com/VioletBL/fingerprint-sensor/internal/protocol"
	"github.com/VioletBL/fingerprint-sensor/internal/timeutil"
)

// Config holds the enrollment timing and the target slot.
type Config struct {
	TemplateID           uint16
	PollInterval         time.Duration
	CaptureRetryInterval time.Duration
	MaxCaptureAttempts   int
	RemovalDelay         time.Duration
	// SessionTimeout bounds a whole session, including the wait for the
	// finger to be lifted.
	SessionTimeout time.Duration
}

// DefaultConfig mirrors the config package defaults.
func DefaultConfig() Config {
	return FromConfig(&config.EnrollConfig{})
}

// FromConfig extracts the enrollment settings from the file configuration.
func FromConfig(c *config.EnrollConfig) Config {
	return Config{
		TemplateID:           c.GetTemplateID(),
		PollInterval:         c.GetPollInterval(),
		CaptureRetryInterval: c.GetCaptureRetryInterval(),
		MaxCaptureAttempts:   c.GetMaxCaptureAttempts(),
		RemovalDelay:         c.GetRemovalDelay(),
		SessionTimeout:       c.GetSessionTimeout(),
	}
}

// Stats counts sessions since the Enroller was created.
type Stats struct {
	Started   int `json:"started"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	TimedOut  int `json:"timed_out"`
}

// Enroller owns the device executor and the presence sensor and runs at most
// one session at a time.
type Enroller struct {
	exec   device.Executor
	sensor presence.Sensor
	clock  timeutil.Clock
	cfg    Config
	hub    *Hub

	// session is held for the whole of a session so that two callers never
	// interleave commands on the module's feature buffers.
	session sync.Mutex

	mu    sync.Mutex
	last  *Snapshot
	stats Stats
}

type Option func(*Enroller)

// WithClock replaces the real clock, for tests.
func WithClock(c timeutil.Clock) Option {
	return func(e *Enroller) { e.clock = c }
}

// WithHub publishes transitions to h instead of a private hub.
func WithHub(h *Hub) Option {
	return func(e *Enroller) { e.hub = h }
}

// New creates an Enroller. Non-positive polling and session bounds fall back
// to the defaults so that neither the idle loop nor a session can spin
// unbounded.
func New(exec device.Executor, sensor presence.Sensor, cfg Config, opts ...Option) *Enroller {
	if exec == nil || sensor == nil {
		panic("enroll: nil executor or sensor")
	}
	if cfg.MaxCaptureAttempts < 1 {
		cfg.MaxCaptureAttempts = 1
	}
	def := DefaultConfig()
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.SessionTimeout <= 0 {
		cfg.SessionTimeout = def.SessionTimeout
	}
	e := &Enroller{
		exec:   exec,
		sensor: sensor,
		clock:  timeutil.RealClock{},
		cfg:    cfg,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.hub == nil {
		e.hub = NewHub()
	}
	return e
}

// Hub returns the hub transitions are published to.
func (e *Enroller) Hub() *Hub { return e.hub }

// Stats returns a copy of the session counters.
func (e *Enroller) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}

// Last returns the most recent snapshot of the current or last session.
func (e *Enroller) Last() (Snapshot, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.last == nil {
		return Snapshot{}, false
	}
	return *e.last, true
}

// Run polls the presence sensor forever, enrolling into the configured slot
// whenever a finger shows up. Session failures are logged and polling
// resumes; only ctx ends the loop.
func (e *Enroller) Run(ctx context.Context) error {
	monitoring.Logf("enroll: waiting for a finger, template #%d, polling every %s", e.cfg.TemplateID, e.cfg.PollInterval)
	for {
		if _, err := e.Poll(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			monitoring.Logf("enroll: presence check failed: %v", err)
		}
		if err := e.clock.Sleep(ctx, e.cfg.PollInterval); err != nil {
			return err
		}
	}
}

// Poll performs one idle check. It returns nil, nil when no finger is
// present, otherwise the finished session.
func (e *Enroller) Poll(ctx context.Context) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	present, err := e.sensor.FingerPresent()
	if err != nil {
		return nil, fmt.Errorf("read presence: %w", err)
	}
	if !present {
		return nil, nil
	}
	monitoring.Logf("enroll: finger detected")
	return e.Enroll(ctx, e.cfg.TemplateID), nil
}

// Enroll runs a complete session for templateID, assuming a finger has just
// been placed. It always returns a session in a terminal state. Concurrent
// calls are serialized: a second caller waits for the running session to
// finish before starting its own.
func (e *Enroller) Enroll(ctx context.Context, templateID uint16) *Session {
	e.session.Lock()
	defer e.session.Unlock()

	s := newSession(templateID, e.clock.Now())
	e.mu.Lock()
	e.stats.Started++
	e.mu.Unlock()
	e.observe(s)
	monitoring.Logf("enroll: session %s started for template #%d", s.ID, templateID)

	if err := e.run(ctx, s); err != nil {
		e.fail(s, err)
		return s
	}

	s.FinishedAt = e.clock.Now()
	e.transition(s, Completed)
	e.mu.Lock()
	e.stats.Completed++
	e.mu.Unlock()
	monitoring.Logf("enroll: template #%d stored in %s", templateID, s.FinishedAt.Sub(s.StartedAt))
	return s
}

func (e *Enroller) run(ctx context.Context, s *Session) error {
	e.transition(s, AwaitFirstImage)
	if err := e.capture(ctx, s); err != nil {
		return err
	}
	s.ImagesCaptured = 1

	e.transition(s, ExtractFirstFeatures)
	if err := e.convert(ctx, protocol.Buffer1); err != nil {
		return err
	}

	e.transition(s, AwaitFingerRemoval)
	monitoring.Logf("enroll: remove finger")
	if err := e.awaitRemoval(ctx, s); err != nil {
		return err
	}

	monitoring.Logf("enroll: place same finger again")
	e.transition(s, AwaitSecondImage)
	if err := e.capture(ctx, s); err != nil {
		return err
	}
	s.ImagesCaptured = 2

	e.transition(s, ExtractSecondFeatures)
	if err := e.convert(ctx, protocol.Buffer2); err != nil {
		return err
	}

	e.transition(s, CreateModel)
	if err := e.step(ctx, protocol.CreateModel()); err != nil {
		return err
	}

	e.transition(s, StoreModel)
	store, err := protocol.StoreModel(protocol.Buffer1, s.TemplateID)
	if err != nil {
		return err
	}
	return e.step(ctx, store)
}

// capture issues CaptureImage until the module sees a finger. NoFingerDetected
// is retried within the attempt and deadline bounds; any other code fails.
func (e *Enroller) capture(ctx context.Context, s *Session) error {
	for attempt := 1; ; attempt++ {
		if err := e.checkDeadline(ctx, s); err != nil {
			return err
		}
		if attempt > e.cfg.MaxCaptureAttempts {
			return fmt.Errorf("%w: no finger after %d capture attempts", ErrTimeout, e.cfg.MaxCaptureAttempts)
		}

		s.CaptureAttempts++
		cmd := protocol.CaptureImage()
		code, err := e.exec.Execute(ctx, cmd)
		if err != nil {
			return err
		}
		switch code.Kind {
		case protocol.Success:
			return nil
		case protocol.NoFingerDetected:
			if err := e.clock.Sleep(ctx, e.cfg.CaptureRetryInterval); err != nil {
				return err
			}
		default:
			return &device.DeviceError{Command: cmd.Instruction, Code: code}
		}
	}
}

func (e *Enroller) convert(ctx context.Context, buf protocol.BufferID) error {
	cmd, err := protocol.ConvertImage(buf)
	if err != nil {
		return err
	}
	return e.step(ctx, cmd)
}

// step executes a command that must succeed for the workflow to continue.
func (e *Enroller) step(ctx context.Context, cmd protocol.Command) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	code, err := e.exec.Execute(ctx, cmd)
	if err != nil {
		return err
	}
	if !code.OK() {
		return &device.DeviceError{Command: cmd.Instruction, Code: code}
	}
	return nil
}

// awaitRemoval waits until the presence sensor reports the finger lifted.
func (e *Enroller) awaitRemoval(ctx context.Context, s *Session) error {
	if err := e.clock.Sleep(ctx, e.cfg.RemovalDelay); err != nil {
		return err
	}
	for {
		if err := e.checkDeadline(ctx, s); err != nil {
			return err
		}
		present, err := e.sensor.FingerPresent()
		if err != nil {
			return fmt.Errorf("read presence: %w", err)
		}
		if !present {
			return nil
		}
		if err := e.clock.Sleep(ctx, e.cfg.PollInterval); err != nil {
			return err
		}
	}
}

func (e *Enroller) checkDeadline(ctx context.Context, s *Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if elapsed := e.clock.Since(s.StartedAt); elapsed >= e.cfg.SessionTimeout {
		return fmt.Errorf("%w: session exceeded %s in %s", ErrTimeout, e.cfg.SessionTimeout, s.State)
	}
	return nil
}

func (e *Enroller) transition(s *Session, next State) {
	s.State = next
	e.observe(s)
}

func (e *Enroller) fail(s *Session, err error) {
	s.FailedIn = s.State
	s.Err = err
	s.FinishedAt = e.clock.Now()
	e.transition(s, Failed)

	e.mu.Lock()
	e.stats.Failed++
	if errors.Is(err, ErrTimeout) {
		e.stats.TimedOut++
	}
	e.mu.Unlock()
	monitoring.Logf("enroll: session %s failed in %s: %v", s.ID, s.FailedIn, err)
}

// observe records and publishes the session's current values.
func (e *Enroller) observe(s *Session) {
	snap := s.Snapshot()
	e.mu.Lock()
	e.last = &snap
	e.mu.Unlock()
	e.hub.Publish(snap)
}
