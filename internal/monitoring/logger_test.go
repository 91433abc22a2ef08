package monitoring

import (
	"fmt"
	"log"
	"testing"
)

func TestSetLogger(t *testing.T) {
	defer SetLogger(log.Printf)

	var got string
	SetLogger(func(format string, v ...interface{}) {
		got = fmt.Sprintf(format, v...)
	})
	Logf("sent %s", "CaptureImage")

	if got != "sent CaptureImage" {
		t.Errorf("custom logger got %q", got)
	}
}

func TestSetLogger_Nil(t *testing.T) {
	defer SetLogger(log.Printf)

	called := false
	SetLogger(func(string, ...interface{}) { called = true })
	SetLogger(nil)

	// must not panic, must not reach the previous logger
	Logf("test message")
	if called {
		t.Error("No-op logger should not have triggered callback")
	}
}

func TestLogf_Default(t *testing.T) {
	defer func() {
		if r := recover(); r != nil {
			t.Errorf("Logf panicked: %v", r)
		}
	}()

	Logf("test message: %s", "value")
}
