//go:build rp2040

package main

import (
	"machine"
)

// usbPort adapts the USB CDC serial port to io.Reader and io.Writer for the
// console. On RP2040 machine.Serial is USB CDC, not a UART.
type usbPort struct{}

// InitUSB initializes USB serial communication
func InitUSB() usbPort {
	_ = machine.Serial.Configure(machine.UARTConfig{})
	return usbPort{}
}

// Read blocks until at least one byte is available
func (usbPort) Read(p []byte) (int, error) {
	for machine.Serial.Buffered() == 0 {
		// The step loop and planner run while we wait
		yield()
	}
	n := 0
	for n < len(p) && machine.Serial.Buffered() > 0 {
		b, err := machine.Serial.ReadByte()
		if err != nil {
			return n, err
		}
		p[n] = b
		n++
	}
	return n, nil
}

// Write writes all of p to USB
func (usbPort) Write(p []byte) (int, error) {
	return machine.Serial.Write(p)
}
