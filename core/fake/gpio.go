// Package fake provides in-memory implementations of the core HAL interfaces
// for host-side tests and simulation.
package fake

import (
	"sync"

	"github.com/pkg/errors"

	"sailguide/core"
)

// PinMode records how a fake pin was configured.
type PinMode uint8

// Pin modes
const (
	PinUnconfigured PinMode = iota
	PinOutput
	PinInputPullUp
	PinInputPullDown
)

// GPIO implements core.GPIODriver over a map of pin levels.
type GPIO struct {
	mu     sync.Mutex
	levels map[core.GPIOPin]bool
	modes  map[core.GPIOPin]PinMode
	writes map[core.GPIOPin]int
}

// NewGPIO returns a GPIO with every pin low and unconfigured.
func NewGPIO() *GPIO {
	return &GPIO{
		levels: make(map[core.GPIOPin]bool),
		modes:  make(map[core.GPIOPin]PinMode),
		writes: make(map[core.GPIOPin]int),
	}
}

func (g *GPIO) configure(pin core.GPIOPin, mode PinMode, level bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.modes[pin] = mode
	g.levels[pin] = level
	return nil
}

// ConfigureOutput implements core.GPIODriver.
func (g *GPIO) ConfigureOutput(pin core.GPIOPin) error {
	return g.configure(pin, PinOutput, false)
}

// ConfigureInputPullUp implements core.GPIODriver. The pin idles high.
func (g *GPIO) ConfigureInputPullUp(pin core.GPIOPin) error {
	return g.configure(pin, PinInputPullUp, true)
}

// ConfigureInputPullDown implements core.GPIODriver. The pin idles low.
func (g *GPIO) ConfigureInputPullDown(pin core.GPIOPin) error {
	return g.configure(pin, PinInputPullDown, false)
}

// SetPin implements core.GPIODriver.
func (g *GPIO) SetPin(pin core.GPIOPin, value bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.modes[pin] != PinOutput {
		return errors.Errorf("pin %d is not an output", pin)
	}
	g.levels[pin] = value
	g.writes[pin]++
	return nil
}

// ReadPin implements core.GPIODriver.
func (g *GPIO) ReadPin(pin core.GPIOPin) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.levels[pin]
}

// Drive forces the level of an input pin, as the outside world would.
func (g *GPIO) Drive(pin core.GPIOPin, value bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.levels[pin] = value
}

// Mode returns how pin was configured.
func (g *GPIO) Mode(pin core.GPIOPin) PinMode {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.modes[pin]
}

// Writes returns the number of SetPin calls on pin.
func (g *GPIO) Writes(pin core.GPIOPin) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.writes[pin]
}
