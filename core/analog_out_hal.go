package core

// AnalogOutValue is the output level (0 to AnalogOutDriver.MaxValue()).
type AnalogOutValue uint32

// AnalogOutDriver drives an analog setpoint output, either a DAC channel or a
// filtered hardware PWM pin depending on the board.
type AnalogOutDriver interface {
	// Configure prepares the output and sets it to zero.
	Configure(pin GPIOPin) error

	// Set updates the output level
	Set(pin GPIOPin, value AnalogOutValue) error

	// MaxValue returns the full-scale output value (e.g. 4095 for a 12-bit DAC)
	MaxValue() uint32
}
