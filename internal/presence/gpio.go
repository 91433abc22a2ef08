package presence

import (
	"fmt"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// GPIO reads the module's touch output from a host GPIO line.
type GPIO struct {
	pin       gpio.PinIn
	activeLow bool
}

// NewGPIO configures pin as an input biased towards the idle level.
func NewGPIO(pin gpio.PinIn, activeLow bool) (*GPIO, error) {
	pull := gpio.PullDown
	if activeLow {
		pull = gpio.PullUp
	}
	if err := pin.In(pull, gpio.NoEdge); err != nil {
		return nil, fmt.Errorf("configure %s: %w", pin, err)
	}
	return &GPIO{pin: pin, activeLow: activeLow}, nil
}

// OpenGPIO initialises the host drivers and opens the named line, for example
// "GPIO21".
func OpenGPIO(name string, activeLow bool) (*GPIO, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("init host drivers: %w", err)
	}
	pin := gpioreg.ByName(name)
	if pin == nil {
		return nil, fmt.Errorf("%w: %q", ErrNoPin, name)
	}
	return NewGPIO(pin, activeLow)
}

func (g *GPIO) FingerPresent() (bool, error) {
	level := g.pin.Read()
	if g.activeLow {
		return level == gpio.Low, nil
	}
	return level == gpio.High, nil
}

func (g *GPIO) String() string {
	return g.pin.String()
}
