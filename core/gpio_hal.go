package core

// GPIOPin is a board GPIO number
type GPIOPin uint32

// GPIODriver is implemented per target. Configuring a pin twice with a
// different mode is an error.
type GPIODriver interface {
	ConfigureOutput(pin GPIOPin) error
	ConfigureInputPullUp(pin GPIOPin) error
	ConfigureInputPullDown(pin GPIOPin) error

	// SetPin fails unless pin is a configured output.
	SetPin(pin GPIOPin, value bool) error
	ReadPin(pin GPIOPin) bool
}

// InputPin is a configured digital input with an optional inversion.
type InputPin struct {
	Pin    GPIOPin
	Invert bool
	gpio   GPIODriver
}

// NewInputPin configures pin as an input and returns a reader for it.
func NewInputPin(gpio GPIODriver, pin GPIOPin, pullUp, invert bool) (*InputPin, error) {
	var err error
	if pullUp {
		err = gpio.ConfigureInputPullUp(pin)
	} else {
		err = gpio.ConfigureInputPullDown(pin)
	}
	if err != nil {
		return nil, err
	}
	return &InputPin{Pin: pin, Invert: invert, gpio: gpio}, nil
}

// Active reports whether the input is asserted, honoring Invert.
func (p *InputPin) Active() bool {
	return p.gpio.ReadPin(p.Pin) != p.Invert
}
