package core

import "sync/atomic"

// SimCarriage wraps a StepperBackend and models the mechanics behind it: a
// carriage on a lead screw between two hard stops. Steps commanded into a
// hard stop are lost (the motor stalls) instead of moving the carriage.
type SimCarriage struct {
	inner   StepperBackend
	min     int64
	max     int64
	reverse atomic.Bool
	pos     atomic.Int64
	steps   atomic.Uint64
	stalls  atomic.Uint64
	flips   atomic.Uint64
}

// NewSimCarriage creates a carriage at start, limited to [min, max] steps.
// inner may be nil.
func NewSimCarriage(inner StepperBackend, min, max, start int64) *SimCarriage {
	c := &SimCarriage{inner: inner, min: min, max: max}
	c.pos.Store(start)
	return c
}

// Init forwards to the wrapped backend
func (c *SimCarriage) Init(stepPin, dirPin GPIOPin, invertStep, invertDir bool) error {
	if c.inner == nil {
		return nil
	}
	return c.inner.Init(stepPin, dirPin, invertStep, invertDir)
}

// Step moves the carriage one step unless it is against a stop
func (c *SimCarriage) Step() {
	if c.inner != nil {
		c.inner.Step()
	}
	c.steps.Add(1)
	pos := c.pos.Load()
	if c.reverse.Load() {
		if pos <= c.min {
			c.stalls.Add(1)
			return
		}
		c.pos.Store(pos - 1)
		return
	}
	if pos >= c.max {
		c.stalls.Add(1)
		return
	}
	c.pos.Store(pos + 1)
}

// SetDirection records the direction for the following steps
func (c *SimCarriage) SetDirection(dir bool) {
	if c.inner != nil {
		c.inner.SetDirection(dir)
	}
	if c.reverse.Swap(dir) != dir {
		c.flips.Add(1)
	}
}

// Stop forwards to the wrapped backend
func (c *SimCarriage) Stop() {
	if c.inner != nil {
		c.inner.Stop()
	}
}

// GetName returns backend implementation name
func (c *SimCarriage) GetName() string {
	if c.inner != nil {
		return "sim+" + c.inner.GetName()
	}
	return "sim"
}

// Position returns the physical carriage position in steps
func (c *SimCarriage) Position() int64 { return c.pos.Load() }

// Steps returns the number of pulses received
func (c *SimCarriage) Steps() uint64 { return c.steps.Load() }

// Stalls returns the number of pulses lost against a hard stop
func (c *SimCarriage) Stalls() uint64 { return c.stalls.Load() }

// DirectionChanges returns how often the direction signal flipped
func (c *SimCarriage) DirectionChanges() uint64 { return c.flips.Load() }
