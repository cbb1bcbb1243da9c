package core

// Indicator is a status LED on a digital output.
type Indicator struct {
	Pin   GPIOPin
	state bool
	gpio  GPIODriver
}

// NewIndicator configures pin as an output and switches it off.
func NewIndicator(gpio GPIODriver, pin GPIOPin) (*Indicator, error) {
	if err := gpio.ConfigureOutput(pin); err != nil {
		return nil, err
	}
	ind := &Indicator{Pin: pin, gpio: gpio}
	return ind, gpio.SetPin(pin, false)
}

// Set drives the LED. Writes are skipped when the state is unchanged.
func (ind *Indicator) Set(on bool) error {
	if ind.state == on {
		return nil
	}
	ind.state = on
	return ind.gpio.SetPin(ind.Pin, on)
}

// Toggle inverts the LED.
func (ind *Indicator) Toggle() error {
	return ind.Set(!ind.state)
}

// On reports the last driven state.
func (ind *Indicator) On() bool {
	return ind.state
}
