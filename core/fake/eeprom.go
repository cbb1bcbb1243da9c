package fake

import (
	"sync"

	"github.com/pkg/errors"

	"sailguide/core"
)

// 25xx-series instruction set
const (
	eepromRead  = 0x03
	eepromWrite = 0x02
	eepromWRDI  = 0x04
	eepromWREN  = 0x06
	eepromRDSR  = 0x05

	statusWIP = 1 << 0
	statusWEL = 1 << 1
)

// EEPROM emulates a 25xx SPI EEPROM behind core.SPIDriver. Each Transfer is one
// chip-select framed transaction.
type EEPROM struct {
	mu       sync.Mutex
	mem      []byte
	pageSize int
	status   byte
	busy     int

	// BusyPolls is how many RDSR reads report WIP after a write.
	BusyPolls int
	// Stuck keeps WIP set forever.
	Stuck bool
	// PageWrites counts completed WRITE transactions.
	PageWrites int
}

// NewEEPROM returns an erased (0xFF) device of size bytes.
func NewEEPROM(size, pageSize int) *EEPROM {
	mem := make([]byte, size)
	for i := range mem {
		mem[i] = 0xFF
	}
	return &EEPROM{mem: mem, pageSize: pageSize, BusyPolls: 2}
}

// ConfigureBus implements core.SPIDriver.
func (e *EEPROM) ConfigureBus(config core.SPIConfig) (interface{}, error) {
	return e, nil
}

// Transfer implements core.SPIDriver.
func (e *EEPROM) Transfer(busHandle interface{}, tx []byte, rx []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(tx) != len(rx) {
		return errors.New("tx and rx buffer lengths must match")
	}
	if len(tx) == 0 {
		return nil
	}

	switch tx[0] {
	case eepromWREN:
		if e.status&statusWIP == 0 {
			e.status |= statusWEL
		}
	case eepromWRDI:
		e.status &^= statusWEL
	case eepromRDSR:
		if len(rx) > 1 {
			rx[1] = e.status
		}
		if e.status&statusWIP != 0 && !e.Stuck {
			e.busy--
			if e.busy <= 0 {
				e.status &^= statusWIP
			}
		}
	case eepromRead:
		if len(tx) < 3 {
			return errors.New("short read command")
		}
		addr := int(tx[1])<<8 | int(tx[2])
		for i := 3; i < len(rx); i++ {
			rx[i] = e.mem[(addr+i-3)%len(e.mem)]
		}
	case eepromWrite:
		if len(tx) < 3 {
			return errors.New("short write command")
		}
		if e.status&statusWEL == 0 || e.status&statusWIP != 0 {
			// Real parts silently ignore the write
			return nil
		}
		addr := int(tx[1])<<8 | int(tx[2])
		page := addr - addr%e.pageSize
		for i, b := range tx[3:] {
			// Writes past the page boundary wrap to the start of the page
			off := page + (addr-page+i)%e.pageSize
			e.mem[off%len(e.mem)] = b
		}
		e.PageWrites++
		e.status &^= statusWEL
		e.status |= statusWIP
		e.busy = e.BusyPolls
		if e.busy == 0 && !e.Stuck {
			e.status &^= statusWIP
		}
	default:
		return errors.Errorf("unsupported instruction 0x%02x", tx[0])
	}
	return nil
}

// Bytes returns a copy of the memory array.
func (e *EEPROM) Bytes() []byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]byte, len(e.mem))
	copy(out, e.mem)
	return out
}
