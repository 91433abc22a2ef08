package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/VioletBL/fingerprint-sensor/internal/uart"
)

// EnrollConfig is the on-disk configuration of the enrollment binary. Every
// field is optional; the Get* methods supply the default for anything unset.
type EnrollConfig struct {
	// Serial link
	PortPath *string `json:"port_path,omitempty"`
	BaudRate *int    `json:"baud_rate,omitempty"`
	DataBits *int    `json:"data_bits,omitempty"`
	StopBits *int    `json:"stop_bits,omitempty"`
	Parity   *string `json:"parity,omitempty"`

	// Module
	Address         *string `json:"address,omitempty"` // "0xFFFFFFFF"
	Password        *uint32 `json:"password,omitempty"`
	Handshake       *bool   `json:"handshake,omitempty"`
	ResponseTimeout *string `json:"response_timeout,omitempty"` // duration string like "2s"

	// Enrollment
	TemplateID           *int    `json:"template_id,omitempty"`
	PollInterval         *string `json:"poll_interval,omitempty"`
	CaptureRetryInterval *string `json:"capture_retry_interval,omitempty"`
	MaxCaptureAttempts   *int    `json:"max_capture_attempts,omitempty"`
	RemovalDelay         *string `json:"removal_delay,omitempty"`
	SessionTimeout       *string `json:"session_timeout,omitempty"`

	// Finger presence line
	PresencePin       *string `json:"presence_pin,omitempty"`
	PresenceActiveLow *bool   `json:"presence_active_low,omitempty"`

	// Debug HTTP listener; empty disables it
	DebugListen *string `json:"debug_listen,omitempty"`
}

const maxConfigSize = 1 * 1024 * 1024 // 1MB

// LoadEnrollConfig loads an EnrollConfig from a JSON file.
// The file must have a .json extension and be under 1MB. Fields omitted from
// the file keep their defaults, so partial configs are safe.
func LoadEnrollConfig(path string) (*EnrollConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxConfigSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxConfigSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &EnrollConfig{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration values are valid.
func (c *EnrollConfig) Validate() error {
	if _, err := c.PortOptions().Normalize(); err != nil {
		return err
	}

	if c.Address != nil {
		if _, err := parseAddress(*c.Address); err != nil {
			return err
		}
	}

	if c.TemplateID != nil && (*c.TemplateID < 0 || *c.TemplateID > 0xFFFF) {
		return fmt.Errorf("template_id must be between 0 and 65535, got %d", *c.TemplateID)
	}

	if c.MaxCaptureAttempts != nil && *c.MaxCaptureAttempts < 1 {
		return fmt.Errorf("max_capture_attempts must be at least 1, got %d", *c.MaxCaptureAttempts)
	}

	// a zero poll interval spins the idle loop and a zero response or
	// session timeout leaves nothing bounding a wait
	for _, d := range []struct {
		name     string
		value    *string
		positive bool
	}{
		{"response_timeout", c.ResponseTimeout, true},
		{"poll_interval", c.PollInterval, true},
		{"capture_retry_interval", c.CaptureRetryInterval, false},
		{"removal_delay", c.RemovalDelay, false},
		{"session_timeout", c.SessionTimeout, true},
	} {
		if d.value == nil || *d.value == "" {
			continue
		}
		v, err := time.ParseDuration(*d.value)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", d.name, *d.value, err)
		}
		if v < 0 {
			return fmt.Errorf("%s must be non-negative, got %s", d.name, v)
		}
		if d.positive && v == 0 {
			return fmt.Errorf("%s must be positive", d.name)
		}
	}

	return nil
}

func parseAddress(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid address %q: %w", s, err)
	}
	return uint32(v), nil
}

func durationOr(v *string, def time.Duration) time.Duration {
	if v == nil || *v == "" {
		return def
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return def // default on parse error
	}
	return d
}

// GetPortPath returns the serial device path or the default.
func (c *EnrollConfig) GetPortPath() string {
	if c.PortPath == nil || *c.PortPath == "" {
		return "/dev/ttyS0"
	}
	return *c.PortPath
}

// PortOptions collects the serial settings. Unset fields are left zero for
// uart.PortOptions.Normalize to default.
func (c *EnrollConfig) PortOptions() uart.PortOptions {
	var opts uart.PortOptions
	if c.BaudRate != nil {
		opts.BaudRate = *c.BaudRate
	}
	if c.DataBits != nil {
		opts.DataBits = *c.DataBits
	}
	if c.StopBits != nil {
		opts.StopBits = *c.StopBits
	}
	if c.Parity != nil {
		opts.Parity = *c.Parity
	}
	return opts
}

// GetAddress returns the module address or broadcast.
func (c *EnrollConfig) GetAddress() uint32 {
	if c.Address == nil || *c.Address == "" {
		return 0xFFFFFFFF
	}
	v, err := parseAddress(*c.Address)
	if err != nil {
		return 0xFFFFFFFF
	}
	return v
}

// GetPassword returns the module password or the factory default 0.
func (c *EnrollConfig) GetPassword() uint32 {
	if c.Password == nil {
		return 0
	}
	return *c.Password
}

// GetHandshake reports whether to verify the password at startup.
func (c *EnrollConfig) GetHandshake() bool {
	if c.Handshake == nil {
		return true
	}
	return *c.Handshake
}

// GetResponseTimeout returns the per-command response timeout.
func (c *EnrollConfig) GetResponseTimeout() time.Duration {
	return durationOr(c.ResponseTimeout, 2*time.Second)
}

// GetTemplateID returns the flash slot enrolled templates are stored in.
func (c *EnrollConfig) GetTemplateID() uint16 {
	if c.TemplateID == nil {
		return 1
	}
	return uint16(*c.TemplateID)
}

// GetPollInterval returns the idle presence polling interval.
func (c *EnrollConfig) GetPollInterval() time.Duration {
	return durationOr(c.PollInterval, 500*time.Millisecond)
}

// GetCaptureRetryInterval returns the pause between capture attempts.
func (c *EnrollConfig) GetCaptureRetryInterval() time.Duration {
	return durationOr(c.CaptureRetryInterval, 100*time.Millisecond)
}

// GetMaxCaptureAttempts returns how many capture commands one image may take.
func (c *EnrollConfig) GetMaxCaptureAttempts() int {
	if c.MaxCaptureAttempts == nil {
		return 50
	}
	return *c.MaxCaptureAttempts
}

// GetRemovalDelay returns the pause before waiting for the finger to lift.
func (c *EnrollConfig) GetRemovalDelay() time.Duration {
	return durationOr(c.RemovalDelay, 2*time.Second)
}

// GetSessionTimeout returns the wall-clock bound of one enrollment session.
func (c *EnrollConfig) GetSessionTimeout() time.Duration {
	return durationOr(c.SessionTimeout, 60*time.Second)
}

// GetPresencePin returns the GPIO line name of the module's touch output.
func (c *EnrollConfig) GetPresencePin() string {
	if c.PresencePin == nil || *c.PresencePin == "" {
		return "GPIO21"
	}
	return *c.PresencePin
}

// GetPresenceActiveLow reports whether a low level means a finger is present.
func (c *EnrollConfig) GetPresenceActiveLow() bool {
	if c.PresenceActiveLow == nil {
		return true
	}
	return *c.PresenceActiveLow
}

// GetDebugListen returns the debug HTTP listen address, empty when disabled.
func (c *EnrollConfig) GetDebugListen() string {
	if c.DebugListen == nil {
		return ""
	}
	return *c.DebugListen
}
