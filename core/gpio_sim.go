package core

import (
	"errors"
	"sync"
)

// PinEdge is one recorded level change on a simulated pin
type PinEdge struct {
	Pin   GPIOPin
	Level bool
	Seq   uint64
}

// SimGPIO is an in-memory GPIODriver for host builds and tests. It records
// every level change so tests can reason about pin ordering.
type SimGPIO struct {
	mu      sync.Mutex
	outputs map[GPIOPin]bool
	levels  map[GPIOPin]bool
	rises   map[GPIOPin]uint64
	edges   []PinEdge
	seq     uint64
	record  bool
}

// NewSimGPIO creates a simulated GPIO bank. With record set every edge is
// kept in memory, which long simulations should avoid.
func NewSimGPIO(record bool) *SimGPIO {
	return &SimGPIO{
		outputs: make(map[GPIOPin]bool),
		levels:  make(map[GPIOPin]bool),
		rises:   make(map[GPIOPin]uint64),
		record:  record,
	}
}

// ConfigureOutput marks pin as an output driven low
func (g *SimGPIO) ConfigureOutput(pin GPIOPin) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.outputs[pin] = true
	g.levels[pin] = false
	return nil
}

// ConfigureInputPullUp marks pin as an input idling high
func (g *SimGPIO) ConfigureInputPullUp(pin GPIOPin) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.outputs[pin] = false
	g.levels[pin] = true
	return nil
}

// SetPin drives an output pin
func (g *SimGPIO) SetPin(pin GPIOPin, value bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.outputs[pin] {
		return errors.New("pin " + itoa(int(pin)) + " is not an output")
	}
	if g.levels[pin] == value {
		return nil
	}
	g.levels[pin] = value
	g.seq++
	if value {
		g.rises[pin]++
	}
	if g.record {
		g.edges = append(g.edges, PinEdge{Pin: pin, Level: value, Seq: g.seq})
	}
	return nil
}

// GetPin returns the current pin level
func (g *SimGPIO) GetPin(pin GPIOPin) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	level, ok := g.levels[pin]
	if !ok {
		return false, errors.New("pin " + itoa(int(pin)) + " not configured")
	}
	return level, nil
}

// Drive sets the level of an input pin from the outside world
func (g *SimGPIO) Drive(pin GPIOPin, value bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.levels[pin] = value
}

// Rises returns the number of low-to-high transitions seen on pin
func (g *SimGPIO) Rises(pin GPIOPin) uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rises[pin]
}

// Edges returns a copy of the recorded edge log
func (g *SimGPIO) Edges() []PinEdge {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]PinEdge, len(g.edges))
	copy(out, g.edges)
	return out
}
