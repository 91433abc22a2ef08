package presence

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"

	"github.com/VioletBL/fingerprint-sensor/internal/timeutil"
)

func readAll(t *testing.T, s Sensor, n int) []bool {
	t.Helper()
	out := make([]bool, 0, n)
	for i := 0; i < n; i++ {
		v, err := s.FingerPresent()
		require.NoError(t, err)
		out = append(out, v)
	}
	return out
}

func TestScript_ReplaysThenHoldsLast(t *testing.T) {
	s := NewScript(false, true, true, false)
	assert.Equal(t, []bool{false, true, true, false, false, false}, readAll(t, s, 6))
	assert.Equal(t, 6, s.Calls())
}

func TestScript_Empty(t *testing.T) {
	assert.Equal(t, []bool{false, false}, readAll(t, NewScript(), 2))
}

func TestScript_FailWith(t *testing.T) {
	s := NewScript(true)
	boom := errors.New("line read failed")
	s.FailWith(boom)

	_, err := s.FingerPresent()
	assert.ErrorIs(t, err, boom)
}

func TestSensorFunc(t *testing.T) {
	var s Sensor = SensorFunc(func() (bool, error) { return true, nil })
	present, err := s.FingerPresent()
	require.NoError(t, err)
	assert.True(t, present)
}

func TestPeriodic(t *testing.T) {
	clock := timeutil.NewMockClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	p := NewPeriodic(clock, 3*time.Second, 5*time.Second)

	tests := []struct {
		at   time.Duration
		want bool
	}{
		{0, false},
		{4 * time.Second, false},
		{5 * time.Second, true},
		{7 * time.Second, true},
		{8 * time.Second, false},
		{13 * time.Second, true},
	}
	start := clock.Now()
	for _, tt := range tests {
		clock.Set(start.Add(tt.at))
		got, err := p.FingerPresent()
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "at %v", tt.at)
	}
}

func TestPeriodic_ZeroPeriod(t *testing.T) {
	p := NewPeriodic(timeutil.NewMockClock(time.Now()), 0, 0)
	present, err := p.FingerPresent()
	require.NoError(t, err)
	assert.False(t, present)
}

func TestGPIO_ActiveLow(t *testing.T) {
	pin := &gpiotest.Pin{N: "GPIO21", Num: 21}
	g, err := NewGPIO(pin, true)
	require.NoError(t, err)
	assert.Equal(t, gpio.PullUp, pin.P)

	pin.L = gpio.Low
	present, err := g.FingerPresent()
	require.NoError(t, err)
	assert.True(t, present)

	pin.L = gpio.High
	present, err = g.FingerPresent()
	require.NoError(t, err)
	assert.False(t, present)

	assert.Contains(t, g.String(), "GPIO21")
}

func TestGPIO_ActiveHigh(t *testing.T) {
	pin := &gpiotest.Pin{N: "GPIO4", Num: 4}
	g, err := NewGPIO(pin, false)
	require.NoError(t, err)
	assert.Equal(t, gpio.PullDown, pin.P)

	pin.L = gpio.High
	present, err := g.FingerPresent()
	require.NoError(t, err)
	assert.True(t, present)
}
