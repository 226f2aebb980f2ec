package pio

const (
	pulseHighCycles = 8
	sysClockMHz     = 125

	cmdDirBit = 1 << 24

	// Polls of a full TX FIFO before a step is dropped
	fifoSpinMax = 256
)

// stepCommand encodes a single pulse in the given direction level
func stepCommand(dirLevel bool) uint32 {
	cmd := uint32(0) // one pulse, one delay loop
	if dirLevel {
		cmd |= cmdDirBit
	}
	return cmd
}

// clockDivider returns the integer divider that holds the step pin high for
// at least pulseWidthUs
func clockDivider(pulseWidthUs uint32) uint16 {
	div := (pulseWidthUs*sysClockMHz + pulseHighCycles - 1) / pulseHighCycles
	if div < 1 {
		div = 1
	}
	if div > 0xffff {
		div = 0xffff
	}
	return uint16(div)
}
