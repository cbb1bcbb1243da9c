//go:build rp2040

package main

import (
	"machine"

	"github.com/pkg/errors"
)

// InitUSB configures machine.Serial, which is USB CDC-ACM on the RP2040
func InitUSB() {
	_ = machine.Serial.Configure(machine.UARTConfig{})
}

// USBAvailable returns the number of bytes available to read from USB
func USBAvailable() int {
	return machine.Serial.Buffered()
}

// USBRead reads a single byte from USB
func USBRead() (byte, error) {
	return machine.Serial.ReadByte()
}

// usbPort writes link output to the host
type usbPort struct {
	failures uint32 // consecutive failed writes
}

// Write sends p, retrying short writes. A write that makes no progress is
// reported as an error so the caller drops the frame.
func (u *usbPort) Write(p []byte) (int, error) {
	written := 0
	for written < len(p) {
		n, err := machine.Serial.Write(p[written:])
		if err != nil {
			u.failures++
			return written, errors.Wrap(err, "usb write")
		}
		if n == 0 {
			u.failures++
			return written, errors.New("usb write: no progress, host disconnected?")
		}
		written += n
	}
	u.failures = 0
	return written, nil
}
