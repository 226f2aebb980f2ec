package core

import "sync/atomic"

// Encoder is a monotonically counting rotary sensor on the measuring roll.
// The count is signed: the roll can turn backwards when the spool relaxes.
type Encoder interface {
	// CumulativeSteps returns the count since the last Reset
	CumulativeSteps() int64

	// Reset sets the count back to zero
	Reset()
}

// SimEncoder is an Encoder whose count is advanced by the host
type SimEncoder struct {
	count atomic.Int64
}

// NewSimEncoder creates a simulated encoder at zero
func NewSimEncoder() *SimEncoder {
	return &SimEncoder{}
}

// CumulativeSteps returns the simulated count
func (e *SimEncoder) CumulativeSteps() int64 {
	return e.count.Load()
}

// Reset zeroes the simulated count
func (e *SimEncoder) Reset() {
	e.count.Store(0)
}

// Add advances the count by n steps (negative to turn backwards)
func (e *SimEncoder) Add(n int64) {
	e.count.Add(n)
}
