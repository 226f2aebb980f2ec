//go:build rp2040

package pio

import (
	"errors"

	"cablewinder/core"
)

// ErrNoStateMachine is returned when every PIO state machine is taken
var ErrNoStateMachine = errors.New("pio stepper: no free state machine")

var (
	// RP2040 has 2 PIO blocks (PIO0, PIO1) with 4 state machines each
	pioAllocations = [2][4]bool{} // [pioNum][smNum]
	nextPIONum     = uint8(0)
	nextSMNum      = uint8(0)
)

// NewBackend allocates a state machine and returns a stepper backend on it
// with at least pulseWidthUs of step pulse high time
func NewBackend(pulseWidthUs uint32) (core.StepperBackend, error) {
	pioNum, smNum, ok := allocatePIO()
	if !ok {
		return nil, ErrNoStateMachine
	}
	return NewPIOStepperBackend(pioNum, smNum, pulseWidthUs), nil
}

// allocatePIO allocates a PIO state machine
// Returns (pioNum, smNum, ok)
func allocatePIO() (uint8, uint8, bool) {
	// Round-robin allocation across PIO blocks and state machines
	for i := 0; i < 8; i++ {
		pioNum := nextPIONum
		smNum := nextSMNum

		nextSMNum++
		if nextSMNum >= 4 {
			nextSMNum = 0
			nextPIONum = (nextPIONum + 1) % 2
		}

		if !pioAllocations[pioNum][smNum] {
			pioAllocations[pioNum][smNum] = true
			return pioNum, smNum, true
		}
	}
	return 0, 0, false
}
