//go:build rp2040

package main

import (
	"machine"

	"github.com/pkg/errors"

	"sailguide/core"
)

// RP2040 has GPIO0-GPIO29
const gpioCount = 30

// RPGPIODriver implements core.GPIODriver on machine.Pin
type RPGPIODriver struct {
	// Track configured pins to catch a pin claimed twice with different modes
	configured map[core.GPIOPin]machine.PinMode
}

// NewRPGPIODriver creates a new RP2040 GPIO driver
func NewRPGPIODriver() *RPGPIODriver {
	return &RPGPIODriver{
		configured: make(map[core.GPIOPin]machine.PinMode),
	}
}

func (d *RPGPIODriver) configure(pin core.GPIOPin, mode machine.PinMode) error {
	if pin >= gpioCount {
		return errors.Errorf("gpio%d: no such pin", pin)
	}
	if prev, ok := d.configured[pin]; ok {
		if prev != mode {
			return errors.Errorf("gpio%d: already configured in another mode", pin)
		}
		return nil
	}
	machine.Pin(pin).Configure(machine.PinConfig{Mode: mode})
	d.configured[pin] = mode
	return nil
}

// ConfigureOutput configures a pin as a digital output
func (d *RPGPIODriver) ConfigureOutput(pin core.GPIOPin) error {
	return d.configure(pin, machine.PinOutput)
}

// ConfigureInputPullUp configures a pin as an input with pull-up
func (d *RPGPIODriver) ConfigureInputPullUp(pin core.GPIOPin) error {
	return d.configure(pin, machine.PinInputPullup)
}

// ConfigureInputPullDown configures a pin as an input with pull-down
func (d *RPGPIODriver) ConfigureInputPullDown(pin core.GPIOPin) error {
	return d.configure(pin, machine.PinInputPulldown)
}

// SetPin drives a configured output
func (d *RPGPIODriver) SetPin(pin core.GPIOPin, value bool) error {
	if mode, ok := d.configured[pin]; !ok || mode != machine.PinOutput {
		return errors.Errorf("gpio%d: not an output", pin)
	}
	machine.Pin(pin).Set(value)
	return nil
}

// ReadPin reads the pin level. Unconfigured pins read low.
func (d *RPGPIODriver) ReadPin(pin core.GPIOPin) bool {
	if _, ok := d.configured[pin]; !ok {
		return false
	}
	return machine.Pin(pin).Get()
}
