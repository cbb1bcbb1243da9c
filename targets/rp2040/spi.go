//go:build rp2040

package main

import (
	"machine"

	"github.com/pkg/errors"

	"sailguide/core"
)

// spiBusConfig selects an SPI controller and its pins
type spiBusConfig struct {
	spi  *machine.SPI
	sck  machine.Pin
	mosi machine.Pin
	miso machine.Pin
}

var rp2040SPIBuses = map[core.SPIBusID]spiBusConfig{
	// SPI0
	0: {spi: machine.SPI0, sck: machine.GPIO2, mosi: machine.GPIO3, miso: machine.GPIO0},
	1: {spi: machine.SPI0, sck: machine.GPIO6, mosi: machine.GPIO7, miso: machine.GPIO4},
	2: {spi: machine.SPI0, sck: machine.GPIO18, mosi: machine.GPIO19, miso: machine.GPIO16},
	3: {spi: machine.SPI0, sck: machine.GPIO22, mosi: machine.GPIO23, miso: machine.GPIO20},
	4: {spi: machine.SPI0, sck: machine.GPIO2, mosi: machine.GPIO3, miso: machine.GPIO4},

	// SPI1
	5: {spi: machine.SPI1, sck: machine.GPIO10, mosi: machine.GPIO11, miso: machine.GPIO8},
	6: {spi: machine.SPI1, sck: machine.GPIO14, mosi: machine.GPIO15, miso: machine.GPIO12},
	7: {spi: machine.SPI1, sck: machine.GPIO26, mosi: machine.GPIO27, miso: machine.GPIO24},
	8: {spi: machine.SPI1, sck: machine.GPIO10, mosi: machine.GPIO11, miso: machine.GPIO12},
}

// spiDevice is the handle returned by ConfigureBus
type spiDevice struct {
	bus spiBusConfig
	cs  machine.Pin
}

// RP2040SPIDriver implements core.SPIDriver on machine.SPI with a GPIO chip
// select per device.
type RP2040SPIDriver struct{}

// NewRP2040SPIDriver creates a new RP2040 SPI driver
func NewRP2040SPIDriver() *RP2040SPIDriver {
	return &RP2040SPIDriver{}
}

// ConfigureBus sets up the controller and parks chip select high.
func (d *RP2040SPIDriver) ConfigureBus(config core.SPIConfig) (interface{}, error) {
	bus, ok := rp2040SPIBuses[config.BusID]
	if !ok {
		return nil, errors.Errorf("spi bus %d: unknown", config.BusID)
	}
	if config.Mode > 3 {
		return nil, errors.Errorf("spi mode %d: invalid", config.Mode)
	}

	err := bus.spi.Configure(machine.SPIConfig{
		Frequency: config.Rate,
		SCK:       bus.sck,
		SDO:       bus.mosi,
		SDI:       bus.miso,
		Mode:      uint8(config.Mode),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "spi bus %d", config.BusID)
	}

	cs := machine.Pin(config.CS)
	cs.Configure(machine.PinConfig{Mode: machine.PinOutput})
	cs.High()
	return &spiDevice{bus: bus, cs: cs}, nil
}

// Transfer performs a full-duplex transfer with chip select asserted.
func (d *RP2040SPIDriver) Transfer(busHandle interface{}, txData []byte, rxData []byte) error {
	dev, ok := busHandle.(*spiDevice)
	if !ok {
		return errors.New("invalid spi bus handle")
	}
	if len(txData) != len(rxData) {
		return errors.Errorf("spi transfer: tx %d bytes, rx %d bytes", len(txData), len(rxData))
	}

	dev.cs.Low()
	err := dev.bus.spi.Tx(txData, rxData)
	dev.cs.High()
	return err
}
