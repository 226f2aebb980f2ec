package core

import "sync/atomic"

// GPIOStepperBackend bit-bangs step and direction through a GPIODriver.
// The step pulse is held high for whatever PulseDelay spends; on hardware
// that is a short busy-wait, on the host it is usually nil.
type GPIOStepperBackend struct {
	gpio       GPIODriver
	stepPin    GPIOPin
	dirPin     GPIOPin
	invertStep bool
	invertDir  bool
	PulseDelay func()
	pinErrors  atomic.Uint32
}

// NewGPIOStepperBackend creates a backend on top of a GPIO driver
func NewGPIOStepperBackend(gpio GPIODriver, pulseDelay func()) *GPIOStepperBackend {
	return &GPIOStepperBackend{gpio: gpio, PulseDelay: pulseDelay}
}

// Init configures both pins as outputs at their idle level
func (b *GPIOStepperBackend) Init(stepPin, dirPin GPIOPin, invertStep, invertDir bool) error {
	b.stepPin = stepPin
	b.dirPin = dirPin
	b.invertStep = invertStep
	b.invertDir = invertDir

	if err := b.gpio.ConfigureOutput(stepPin); err != nil {
		return err
	}
	if err := b.gpio.ConfigureOutput(dirPin); err != nil {
		return err
	}
	if err := b.gpio.SetPin(stepPin, invertStep); err != nil {
		return err
	}
	return b.gpio.SetPin(dirPin, invertDir)
}

// Step emits one pulse: active level, delay, idle level
func (b *GPIOStepperBackend) Step() {
	if b.gpio.SetPin(b.stepPin, !b.invertStep) != nil {
		b.pinErrors.Add(1)
	}
	if b.PulseDelay != nil {
		b.PulseDelay()
	}
	if b.gpio.SetPin(b.stepPin, b.invertStep) != nil {
		b.pinErrors.Add(1)
	}
}

// SetDirection drives the direction pin
func (b *GPIOStepperBackend) SetDirection(dir bool) {
	if b.gpio.SetPin(b.dirPin, dir != b.invertDir) != nil {
		b.pinErrors.Add(1)
	}
}

// Stop returns the step pin to idle
func (b *GPIOStepperBackend) Stop() {
	if b.gpio.SetPin(b.stepPin, b.invertStep) != nil {
		b.pinErrors.Add(1)
	}
}

// GetName returns backend implementation name
func (b *GPIOStepperBackend) GetName() string {
	return "gpio"
}

// PinErrors returns how many pin writes failed; Step cannot return errors
func (b *GPIOStepperBackend) PinErrors() uint32 {
	return b.pinErrors.Load()
}
