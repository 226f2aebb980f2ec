package core

import (
	"testing"
)

func TestGPIOStepperPulse(t *testing.T) {
	gpio := NewSimGPIO(true)
	backend := NewGPIOStepperBackend(gpio, nil)

	if err := backend.Init(2, 3, false, false); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	backend.SetDirection(true)
	backend.Step()
	backend.Step()

	if got := gpio.Rises(2); got != 2 {
		t.Errorf("Expected 2 step pulses, got %d", got)
	}
	if level, _ := gpio.GetPin(2); level {
		t.Error("Step pin should idle low after a pulse")
	}
	if level, _ := gpio.GetPin(3); !level {
		t.Error("Direction pin should be high for reverse")
	}

	// Direction must settle before the first step edge
	edges := gpio.Edges()
	if len(edges) == 0 || edges[0].Pin != 3 {
		t.Errorf("Expected direction edge first, got %v", edges)
	}
	if backend.PinErrors() != 0 {
		t.Errorf("Unexpected pin errors: %d", backend.PinErrors())
	}
}

func TestGPIOStepperInverted(t *testing.T) {
	gpio := NewSimGPIO(false)
	backend := NewGPIOStepperBackend(gpio, nil)

	if err := backend.Init(2, 3, true, true); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if level, _ := gpio.GetPin(2); !level {
		t.Error("Inverted step pin should idle high")
	}

	backend.SetDirection(true)
	if level, _ := gpio.GetPin(3); level {
		t.Error("Inverted direction pin should be low for reverse")
	}
}

func TestSimGPIORejectsInputWrite(t *testing.T) {
	gpio := NewSimGPIO(false)
	if err := gpio.ConfigureInputPullUp(5); err != nil {
		t.Fatalf("ConfigureInputPullUp failed: %v", err)
	}
	if err := gpio.SetPin(5, false); err == nil {
		t.Error("Expected error writing an input pin")
	}

	gpio.Drive(5, false)
	if level, err := gpio.GetPin(5); err != nil || level {
		t.Errorf("Expected driven low, got %v (err=%v)", level, err)
	}
}

func TestSimCarriageHardStops(t *testing.T) {
	c := NewSimCarriage(nil, 0, 10, 8)

	for i := 0; i < 5; i++ {
		c.Step()
	}
	if c.Position() != 10 {
		t.Errorf("Expected carriage at upper stop 10, got %d", c.Position())
	}
	if c.Stalls() != 3 {
		t.Errorf("Expected 3 stalled steps, got %d", c.Stalls())
	}

	c.SetDirection(true)
	for i := 0; i < 15; i++ {
		c.Step()
	}
	if c.Position() != 0 {
		t.Errorf("Expected carriage at lower stop 0, got %d", c.Position())
	}
	if c.Stalls() != 8 {
		t.Errorf("Expected 8 stalled steps, got %d", c.Stalls())
	}
	if c.DirectionChanges() != 1 {
		t.Errorf("Expected 1 direction change, got %d", c.DirectionChanges())
	}
	if c.Steps() != 20 {
		t.Errorf("Expected 20 pulses, got %d", c.Steps())
	}
}

func TestSimEncoderAndADC(t *testing.T) {
	enc := NewSimEncoder()
	enc.Add(1200)
	enc.Add(-200)
	if enc.CumulativeSteps() != 1000 {
		t.Errorf("Expected 1000 encoder steps, got %d", enc.CumulativeSteps())
	}
	enc.Reset()
	if enc.CumulativeSteps() != 0 {
		t.Errorf("Expected 0 after reset, got %d", enc.CumulativeSteps())
	}

	adc := NewSimADC()
	if _, err := adc.ReadRaw(1); err == nil {
		t.Error("Expected error reading unconfigured channel")
	}
	if err := adc.ConfigureChannel(1); err != nil {
		t.Fatalf("ConfigureChannel failed: %v", err)
	}
	adc.Set(1, 3300)
	if v, err := adc.ReadRaw(1); err != nil || v != 3300 {
		t.Errorf("Expected 3300, got %d (err=%v)", v, err)
	}
}
