package main

import (
	"flag"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/VioletBL/fingerprint-sensor/internal/enroll"
	"github.com/VioletBL/fingerprint-sensor/internal/protocol"
)

// TestFlagDefaults verifies the flags exist with defaults that defer to the
// config file.
func TestFlagDefaults(t *testing.T) {
	o := flagOverrides()
	if o.Port != "" || o.Listen != "" || o.PresencePin != "" {
		t.Errorf("string overrides should default to empty, got %+v", o)
	}
	if o.TemplateID != nil {
		t.Errorf("template-id should not override the config unless given, got %d", *o.TemplateID)
	}
	if *templateID != 0 || *portPath != "" {
		t.Errorf("unexpected flag defaults: template-id %d, port %q", *templateID, *portPath)
	}
	if *devMode {
		t.Error("dev mode should be off by default")
	}
	if *configPath != "" {
		t.Errorf("expected empty config path, got %q", *configPath)
	}
}

func TestLoadConfig_DefaultsWithoutFile(t *testing.T) {
	cfg, err := loadConfig("", overrides{})
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}
	if cfg.GetPortPath() != "/dev/ttyS0" {
		t.Errorf("GetPortPath() = %q", cfg.GetPortPath())
	}
	if cfg.GetTemplateID() != 1 {
		t.Errorf("GetTemplateID() = %d", cfg.GetTemplateID())
	}
	if cfg.GetDebugListen() != "" {
		t.Errorf("debug listener should be disabled, got %q", cfg.GetDebugListen())
	}
}

func TestLoadConfig_FlagsOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fpenroll.json")
	body := `{"port_path": "/dev/ttyAMA0", "template_id": 3, "presence_pin": "GPIO4", "poll_interval": "1s"}`
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := loadConfig(path, overrides{
		Port:       "/dev/ttyUSB0",
		TemplateID: intPtr(0),
		Listen:     "127.0.0.1:8081",
	})
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}

	if cfg.GetPortPath() != "/dev/ttyUSB0" {
		t.Errorf("port override ignored: %q", cfg.GetPortPath())
	}
	if cfg.GetTemplateID() != 0 {
		t.Errorf("template override ignored: %d", cfg.GetTemplateID())
	}
	if cfg.GetDebugListen() != "127.0.0.1:8081" {
		t.Errorf("listen override ignored: %q", cfg.GetDebugListen())
	}
	// values without an override come from the file
	if cfg.GetPresencePin() != "GPIO4" {
		t.Errorf("GetPresencePin() = %q", cfg.GetPresencePin())
	}
	if got := enroll.FromConfig(cfg).PollInterval; got != time.Second {
		t.Errorf("PollInterval = %v", got)
	}
}

func intPtr(v int) *int { return &v }

func TestLoadConfig_RejectsBadOverride(t *testing.T) {
	for _, id := range []int{70000, -1, -2} {
		_, err := loadConfig("", overrides{TemplateID: intPtr(id)})
		if err == nil || !strings.Contains(err.Error(), "template_id") {
			t.Errorf("template-id %d: expected template_id error, got %v", id, err)
		}
	}
}

// testFlagSet mirrors the override flags registered on the command line.
func testFlagSet(args ...string) *flag.FlagSet {
	fs := flag.NewFlagSet("fpenroll", flag.ContinueOnError)
	fs.String("port", "", "")
	fs.Int("template-id", 0, "")
	fs.String("listen", "", "")
	fs.String("presence-pin", "", "")
	fs.Bool("dev", false, "")
	if err := fs.Parse(args); err != nil {
		panic(err)
	}
	return fs
}

func TestOverridesFrom(t *testing.T) {
	o := overridesFrom(testFlagSet("-port", "/dev/ttyUSB1", "-template-id", "0", "-dev"))
	if o.Port != "/dev/ttyUSB1" {
		t.Errorf("Port = %q", o.Port)
	}
	if o.TemplateID == nil || *o.TemplateID != 0 {
		t.Errorf("explicit -template-id 0 should override, got %v", o.TemplateID)
	}
	if o.Listen != "" {
		t.Errorf("Listen = %q", o.Listen)
	}

	if o := overridesFrom(testFlagSet()); o.TemplateID != nil {
		t.Errorf("TemplateID without the flag = %d, want nil", *o.TemplateID)
	}
}

func TestLoadConfig_ExplicitNegativeTemplateID(t *testing.T) {
	for _, arg := range []string{"-1", "-3"} {
		o := overridesFrom(testFlagSet("-template-id", arg))
		if _, err := loadConfig("", o); err == nil || !strings.Contains(err.Error(), "template_id") {
			t.Errorf("-template-id %s: expected template_id error, got %v", arg, err)
		}
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	if _, err := loadConfig(filepath.Join(t.TempDir(), "nope.json"), overrides{}); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestOpenHardware_DevMode(t *testing.T) {
	cfg, err := loadConfig("", overrides{})
	if err != nil {
		t.Fatal(err)
	}
	port, sensor, err := openHardware(cfg, true)
	if err != nil {
		t.Fatalf("openHardware() error = %v", err)
	}
	defer port.Close()

	if sensor == nil {
		t.Fatal("dev mode should provide a presence sensor")
	}
	if err := port.Write(protocol.Encode(protocol.PIDCommand, protocol.DefaultAddress, protocol.CaptureImage().Payload())); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	resp, err := port.ReadWithTimeout(64, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("ReadWithTimeout() error = %v", err)
	}
	pkt, err := protocol.Decode(resp)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if pkt.Identifier != protocol.PIDAck || pkt.Payload[0] != 0x00 {
		t.Errorf("unexpected reply %+v", pkt)
	}
}
