package core

// ADCChannelID is an ADC input number, 0-3 on the RP2040 pins.
type ADCChannelID uint8

// ADCValue is a 12-bit conversion result.
type ADCValue uint16

// ADCMax is the full-scale reading.
const ADCMax = 4095

// ADCDriver samples analog inputs without blocking the main loop.
type ADCDriver interface {
	ConfigureChannel(ch ADCChannelID) error

	// ReadRaw starts a conversion on ch if none is running and returns the
	// result once it is ready. ok is false while the conversion is pending.
	ReadRaw(ch ADCChannelID) (v ADCValue, ok bool, err error)
}
