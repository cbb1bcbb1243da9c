package store

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"sailguide/core"
)

// 25xx-series instruction set
const (
	cmdRead  = 0x03
	cmdWrite = 0x02
	cmdWREN  = 0x06
	cmdRDSR  = 0x05

	statusWIP = 1 << 0
)

// EEPROMConfig describes a 25xx-series SPI EEPROM with 16-bit addressing.
type EEPROMConfig struct {
	Bus          core.SPIConfig
	Size         int
	PageSize     int
	WriteTimeout time.Duration // bound on the write cycle busy poll
	PollInterval time.Duration // zero polls back to back
}

// EEPROM is a Store on an SPI EEPROM. Writes are split on page boundaries and
// each page waits for the write cycle to finish.
type EEPROM struct {
	spi    core.SPIDriver
	bus    interface{}
	cfg    EEPROMConfig
	clock  clock.Clock
	logger *zap.SugaredLogger
}

// NewEEPROM configures the SPI bus for the device.
func NewEEPROM(spi core.SPIDriver, cfg EEPROMConfig, clk clock.Clock, logger *zap.SugaredLogger) (*EEPROM, error) {
	if cfg.Size <= 0 || cfg.Size > 1<<16 || cfg.PageSize <= 0 {
		return nil, errors.Errorf("invalid eeprom geometry: size %d page %d", cfg.Size, cfg.PageSize)
	}
	if cfg.WriteTimeout <= 0 {
		return nil, errors.New("eeprom write timeout must be set")
	}
	bus, err := spi.ConfigureBus(cfg.Bus)
	if err != nil {
		return nil, errors.Wrap(err, "configure eeprom bus")
	}
	return &EEPROM{spi: spi, bus: bus, cfg: cfg, clock: clk, logger: logger}, nil
}

func (e *EEPROM) transfer(tx []byte) ([]byte, error) {
	rx := make([]byte, len(tx))
	if err := e.spi.Transfer(e.bus, tx, rx); err != nil {
		return nil, errors.Wrapf(err, "eeprom instruction 0x%02x", tx[0])
	}
	return rx, nil
}

// Read implements Store.
func (e *EEPROM) Read(ctx context.Context, offset, n int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := checkRange(e.cfg.Size, offset, n); err != nil {
		return nil, err
	}
	tx := make([]byte, 3+n)
	tx[0] = cmdRead
	tx[1] = uint8(offset >> 8)
	tx[2] = uint8(offset)
	rx, err := e.transfer(tx)
	if err != nil {
		return nil, err
	}
	return rx[3:], nil
}

// Write implements Store.
func (e *EEPROM) Write(ctx context.Context, offset int, b []byte) error {
	if err := checkRange(e.cfg.Size, offset, len(b)); err != nil {
		return err
	}
	for len(b) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		chunk := e.cfg.PageSize - offset%e.cfg.PageSize
		if chunk > len(b) {
			chunk = len(b)
		}
		if err := e.writePage(ctx, offset, b[:chunk]); err != nil {
			return err
		}
		offset += chunk
		b = b[chunk:]
	}
	return nil
}

func (e *EEPROM) writePage(ctx context.Context, offset int, b []byte) error {
	if _, err := e.transfer([]byte{cmdWREN}); err != nil {
		return err
	}
	tx := make([]byte, 3+len(b))
	tx[0] = cmdWrite
	tx[1] = uint8(offset >> 8)
	tx[2] = uint8(offset)
	copy(tx[3:], b)
	if _, err := e.transfer(tx); err != nil {
		return err
	}
	return e.waitReady(ctx)
}

// waitReady polls the status register until the write cycle completes.
func (e *EEPROM) waitReady(ctx context.Context) error {
	deadline := e.clock.Now().Add(e.cfg.WriteTimeout)
	for {
		rx, err := e.transfer([]byte{cmdRDSR, 0})
		if err != nil {
			return err
		}
		if rx[1]&statusWIP == 0 {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if e.clock.Now().After(deadline) {
			e.logger.Warnw("eeprom busy past write timeout", "timeout", e.cfg.WriteTimeout)
			return errors.Wrapf(ErrTimeout, "write cycle longer than %s", e.cfg.WriteTimeout)
		}
		if e.cfg.PollInterval > 0 {
			e.clock.Sleep(e.cfg.PollInterval)
		}
	}
}
