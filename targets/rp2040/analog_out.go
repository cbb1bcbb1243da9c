//go:build rp2040

package main

import (
	"machine"

	"github.com/pkg/errors"

	"sailguide/core"
)

const (
	// analogOutMax is the set point resolution seen by the motor layer
	analogOutMax = 4095

	// 20 kHz carrier, above the controller's input filter corner
	analogOutPeriodNS = 50_000
)

// pwmPeripheral abstracts over TinyGo's unexported *pwmGroup type
type pwmPeripheral interface {
	Configure(config machine.PWMConfig) error
	Channel(pin machine.Pin) (uint8, error)
	Top() uint32
	Set(channel uint8, value uint32)
}

type pwmOutput struct {
	slice   pwmPeripheral
	channel uint8
}

// PWMAnalogOut implements core.AnalogOutDriver with a hardware PWM slice
// feeding an RC filter on the board.
type PWMAnalogOut struct {
	outputs map[core.GPIOPin]pwmOutput
}

// NewPWMAnalogOut creates the driver
func NewPWMAnalogOut() *PWMAnalogOut {
	return &PWMAnalogOut{outputs: make(map[core.GPIOPin]pwmOutput)}
}

// MaxValue returns the full-scale output value
func (d *PWMAnalogOut) MaxValue() uint32 {
	return analogOutMax
}

// Configure claims the pin's PWM slice and drives it to zero.
func (d *PWMAnalogOut) Configure(pin core.GPIOPin) error {
	// GPIO N belongs to slice (N >> 1) & 7, channel A for even pins
	slice := pwmSlice(uint8(pin>>1) & 0x7)
	if err := slice.Configure(machine.PWMConfig{Period: analogOutPeriodNS}); err != nil {
		return errors.Wrapf(err, "pwm on gpio%d", pin)
	}
	channel, err := slice.Channel(machine.Pin(pin))
	if err != nil {
		return errors.Wrapf(err, "pwm channel on gpio%d", pin)
	}
	slice.Set(channel, 0)
	d.outputs[pin] = pwmOutput{slice: slice, channel: channel}
	return nil
}

// Set scales value from 0..MaxValue onto the slice's counter range.
func (d *PWMAnalogOut) Set(pin core.GPIOPin, value core.AnalogOutValue) error {
	out, ok := d.outputs[pin]
	if !ok {
		return errors.Errorf("gpio%d: analog output not configured", pin)
	}
	if value > analogOutMax {
		value = analogOutMax
	}
	out.slice.Set(out.channel, uint32(uint64(value)*uint64(out.slice.Top())/analogOutMax))
	return nil
}

func pwmSlice(n uint8) pwmPeripheral {
	switch n {
	case 1:
		return machine.PWM1
	case 2:
		return machine.PWM2
	case 3:
		return machine.PWM3
	case 4:
		return machine.PWM4
	case 5:
		return machine.PWM5
	case 6:
		return machine.PWM6
	case 7:
		return machine.PWM7
	default:
		return machine.PWM0
	}
}
