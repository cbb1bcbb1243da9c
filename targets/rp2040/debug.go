//go:build rp2040

package main

import (
	"machine"

	"sailguide/core"
)

// InitDebugUART sets up UART0 on GPIO0 (TX) / GPIO1 (RX) at 115200 baud and
// returns a log writer for it, or nil when the UART is unavailable.
func InitDebugUART() core.DebugWriter {
	uart := machine.UART0
	err := uart.Configure(machine.UARTConfig{
		BaudRate: 115200,
		TX:       machine.GPIO0,
		RX:       machine.GPIO1,
	})
	if err != nil {
		return nil
	}
	return func(s string) {
		uart.Write([]byte(s))
		uart.Write([]byte("\r\n"))
	}
}
