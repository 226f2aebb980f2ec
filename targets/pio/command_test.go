package pio

import "testing"

// runProgram executes one command word the way the state machine runs the
// stepper program: OUT shifts right, JMP X-- tests before decrementing.
// It returns the pulses and delay loops emitted and the direction level.
func runProgram(cmd uint32) (pulses, delays int, dirLevel bool) {
	x := cmd & 0xffff
	y := (cmd >> 16) & 0xff
	dirLevel = (cmd>>24)&1 == 1

	for {
		pulses++
		delays += int(y) + 1
		if x == 0 {
			return pulses, delays, dirLevel
		}
		x--
	}
}

func TestStepCommandSinglePulse(t *testing.T) {
	testCases := []struct {
		dir bool
	}{
		{false},
		{true},
	}

	for _, tc := range testCases {
		pulses, delays, dir := runProgram(stepCommand(tc.dir))
		if pulses != 1 || delays != 1 {
			t.Errorf("dir=%v: expected 1 pulse and 1 delay loop per command, got %d and %d", tc.dir, pulses, delays)
		}
		if dir != tc.dir {
			t.Errorf("dir=%v: direction pin driven %v", tc.dir, dir)
		}
	}
}

func TestClockDivider(t *testing.T) {
	testCases := []struct {
		us       uint32
		expected uint16
	}{
		{0, 1},
		{1, 16},
		{2, 32},
		{5, 79},
		{100000, 0xffff},
	}

	for _, tc := range testCases {
		div := clockDivider(tc.us)
		if div != tc.expected {
			t.Errorf("%dus: expected divider %d, got %d", tc.us, tc.expected, div)
		}
		if tc.us > 0 && tc.us < 4000 {
			// High time in ns: 8 cycles at 125MHz/div
			if highNs := uint32(div) * pulseHighCycles * 1000 / sysClockMHz; highNs < tc.us*1000 {
				t.Errorf("%dus: pulse only %dns high", tc.us, highNs)
			}
		}
	}
}
