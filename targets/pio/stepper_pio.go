//go:build rp2040

package pio

// PIO stepper backend using the tinygo-org/pio package. Pulses are timed by
// the state machine, so the step timer handler only pushes one word per step.

import (
	"errors"
	"machine"
	"sync/atomic"

	rp2pio "github.com/tinygo-org/pio/rp2-pio"

	"cablewinder/core"
)

// PIO program for step pulse generation
// Command word format, shifted out LSB first:
//
//	Bits 0-15:  pulse count minus one
//	Bits 16-23: delay loops after each pulse, minus one
//	Bit 24:     direction pin level
//
// Program flow:
//  1. Pull 32-bit command from FIFO
//  2. Extract pulse count into X register
//  3. Extract delay into Y register
//  4. Set direction pin
//  5. Generate X+1 pulses, each followed by Y+1 delay loops
//
// The pulse is high for 8 state machine cycles.
// buildStepperProgram creates the stepper PIO program using AssemblerV0
func buildStepperProgram() []uint16 {
	asm := rp2pio.AssemblerV0{SidesetBits: 0}
	return []uint16{
		// .wrap_target
		asm.Pull(false, true).Encode(),          // 0: pull block
		asm.Out(rp2pio.OutDestX, 16).Encode(),   // 1: out x, 16 (pulse count)
		asm.Out(rp2pio.OutDestY, 8).Encode(),    // 2: out y, 8 (delay cycles)
		asm.Out(rp2pio.OutDestPins, 1).Encode(), // 3: out pins, 1 (direction)
		// step_loop:
		asm.Set(rp2pio.SetDestPins, 1).Delay(7).Encode(), // 4: set pins, 1 [7]
		asm.Set(rp2pio.SetDestPins, 0).Encode(),          // 5: set pins, 0
		// delay_loop:
		asm.Jmp(6, rp2pio.JmpYNZeroDec).Encode(), // 6: jmp y--, 6 (taken while Y was non-zero)
		asm.Jmp(4, rp2pio.JmpXNZeroDec).Encode(), // 7: jmp x--, 4 (taken while X was non-zero)
		// .wrap
	}
}

const stepperPIOOrigin = 0 // Load at offset 0 for correct jump addresses

// ErrInvertedStep is returned because the program drives active-high pulses
var ErrInvertedStep = errors.New("pio stepper: inverted step pin not supported")

// PIOStepperBackend implements core.StepperBackend on a PIO state machine
type PIOStepperBackend struct {
	pio       *rp2pio.PIO
	sm        rp2pio.StateMachine
	stepPin   machine.Pin
	dirPin    machine.Pin
	direction bool
	invertDir bool
	clockDiv  uint16
	offset    uint8
	pioNum    uint8
	smNum     uint8
	overruns  atomic.Uint32
}

// NewPIOStepperBackend creates a new PIO-based stepper backend
// pioNum: 0 for PIO0, 1 for PIO1
// smNum: 0-3 for state machine number
// pulseWidthUs: minimum step pulse high time
func NewPIOStepperBackend(pioNum, smNum uint8, pulseWidthUs uint32) *PIOStepperBackend {
	var pioHW *rp2pio.PIO
	if pioNum == 0 {
		pioHW = rp2pio.PIO0
	} else {
		pioHW = rp2pio.PIO1
	}

	return &PIOStepperBackend{
		pio:      pioHW,
		sm:       pioHW.StateMachine(smNum),
		pioNum:   pioNum,
		smNum:    smNum,
		clockDiv: clockDivider(pulseWidthUs),
	}
}

// Init loads the program and starts the state machine
func (b *PIOStepperBackend) Init(stepPin, dirPin core.GPIOPin, invertStep, invertDir bool) error {
	if invertStep {
		return ErrInvertedStep
	}
	b.stepPin = machine.Pin(stepPin)
	b.dirPin = machine.Pin(dirPin)
	b.invertDir = invertDir

	// Claim the state machine before touching it
	b.sm.TryClaim()

	program := buildStepperProgram()
	offset, err := b.pio.AddProgram(program, stepperPIOOrigin)
	if err != nil {
		return err
	}
	b.offset = offset

	b.stepPin.Configure(machine.PinConfig{Mode: b.pio.PinMode()})
	b.dirPin.Configure(machine.PinConfig{Mode: b.pio.PinMode()})

	cfg := rp2pio.DefaultStateMachineConfig()

	// SET drives the step pin, OUT the direction pin
	cfg.SetSetPins(b.stepPin, 1)
	cfg.SetOutPins(b.dirPin, 1)

	// Shift right, explicit PULL, 32-bit threshold
	cfg.SetOutShift(true, false, 32)
	cfg.SetWrap(offset+uint8(len(program))-1, offset)

	// 8 cycle pulse at 125MHz / div
	cfg.SetClkDivIntFrac(b.clockDiv, 0)

	// Pin directions must be set after Init
	b.sm.Init(offset, cfg)
	b.sm.SetPindirsConsecutive(b.stepPin, 1, true)
	b.sm.SetPindirsConsecutive(b.dirPin, 1, true)
	b.sm.SetPinsConsecutive(b.stepPin, 1, false)
	b.sm.SetPinsConsecutive(b.dirPin, 1, b.invertDir)

	b.sm.SetEnabled(true)
	return nil
}

// Step queues a single step pulse in the current direction. It runs in the
// timer handler, so a FIFO that stays full drops the step and counts an
// overrun instead of blocking.
func (b *PIOStepperBackend) Step() {
	cmd := stepCommand(b.direction != b.invertDir)
	for i := 0; b.sm.IsTxFIFOFull(); i++ {
		if i >= fifoSpinMax {
			b.overruns.Add(1)
			return
		}
	}
	b.sm.TxPut(cmd)
}

// Overruns returns how many steps were dropped on a full FIFO
func (b *PIOStepperBackend) Overruns() uint32 {
	return b.overruns.Load()
}

// SetDirection sets the direction for the following steps
func (b *PIOStepperBackend) SetDirection(dir bool) {
	b.direction = dir
}

// Stop drops queued pulses and restarts the state machine
func (b *PIOStepperBackend) Stop() {
	b.sm.SetEnabled(false)
	b.sm.ClearFIFOs()
	b.sm.Restart()
	b.sm.SetEnabled(true)
}

// GetName returns the backend name
func (b *PIOStepperBackend) GetName() string {
	return "PIO"
}
