package fake

import (
	"sync"

	"github.com/pkg/errors"

	"sailguide/core"
)

// ADC implements core.ADCDriver with settable channel values.
type ADC struct {
	mu         sync.Mutex
	values     map[core.ADCChannelID]core.ADCValue
	configured map[core.ADCChannelID]bool
	// Pending makes ReadRaw report an unfinished conversion.
	Pending bool
	Err     error
}

// NewADC returns an ADC whose channels all read zero.
func NewADC() *ADC {
	return &ADC{
		values:     make(map[core.ADCChannelID]core.ADCValue),
		configured: make(map[core.ADCChannelID]bool),
	}
}

// ConfigureChannel implements core.ADCDriver.
func (a *ADC) ConfigureChannel(ch core.ADCChannelID) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.configured[ch] = true
	return nil
}

// ReadRaw implements core.ADCDriver.
func (a *ADC) ReadRaw(ch core.ADCChannelID) (core.ADCValue, bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.Err != nil {
		return 0, false, a.Err
	}
	if !a.configured[ch] {
		return 0, false, errors.Errorf("adc channel %d not configured", ch)
	}
	if a.Pending {
		return 0, false, nil
	}
	return a.values[ch], true, nil
}

// SetValue sets the raw reading of ch.
func (a *ADC) SetValue(ch core.ADCChannelID, v core.ADCValue) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.values[ch] = v
}

// AnalogOut implements core.AnalogOutDriver and remembers the last level.
type AnalogOut struct {
	mu     sync.Mutex
	Max    uint32
	levels map[core.GPIOPin]core.AnalogOutValue
}

// NewAnalogOut returns a 12-bit analog output.
func NewAnalogOut() *AnalogOut {
	return &AnalogOut{Max: 4095, levels: make(map[core.GPIOPin]core.AnalogOutValue)}
}

// Configure implements core.AnalogOutDriver.
func (o *AnalogOut) Configure(pin core.GPIOPin) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.levels[pin] = 0
	return nil
}

// Set implements core.AnalogOutDriver.
func (o *AnalogOut) Set(pin core.GPIOPin, value core.AnalogOutValue) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.levels[pin]; !ok {
		return errors.Errorf("analog pin %d not configured", pin)
	}
	if uint32(value) > o.Max {
		return errors.Errorf("analog value %d above %d", value, o.Max)
	}
	o.levels[pin] = value
	return nil
}

// MaxValue implements core.AnalogOutDriver.
func (o *AnalogOut) MaxValue() uint32 {
	return o.Max
}

// Level returns the last value written to pin.
func (o *AnalogOut) Level(pin core.GPIOPin) core.AnalogOutValue {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.levels[pin]
}
