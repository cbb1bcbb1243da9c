package core

// SPIBusID selects one of the board's SPI controller and pin combinations
type SPIBusID uint8

// SPIMode is the clock polarity and phase, 0-3 in the usual numbering
type SPIMode uint8

// SPIConfig describes one device on a bus.
type SPIConfig struct {
	BusID SPIBusID
	Mode  SPIMode
	Rate  uint32  // Hz
	CS    GPIOPin // held low for the length of a Transfer
}

// SPIDriver is the board's SPI master.
type SPIDriver interface {
	// ConfigureBus sets up the bus and chip select for one device and
	// returns the handle Transfer takes.
	ConfigureBus(config SPIConfig) (interface{}, error)

	// Transfer clocks out txData while reading the same number of bytes
	// into rxData.
	Transfer(busHandle interface{}, txData []byte, rxData []byte) error
}
