//go:build rp2040

package main

import (
	"machine"
	"sync/atomic"

	"tinygo.org/x/drivers/encoders"
)

// lengthEncoder counts cable through the measuring wheel with pin change
// interrupts
type lengthEncoder struct {
	dev    *encoders.QuadratureDevice
	offset atomic.Int64
}

func newLengthEncoder(pinA, pinB machine.Pin, precision int) (*lengthEncoder, error) {
	dev := encoders.NewQuadratureViaInterrupt(pinA, pinB)
	if err := dev.Configure(encoders.QuadratureConfig{Precision: precision}); err != nil {
		return nil, err
	}
	return &lengthEncoder{dev: dev}, nil
}

// CumulativeSteps returns the signed count since the last Reset
func (e *lengthEncoder) CumulativeSteps() int64 {
	return int64(e.dev.Position()) - e.offset.Load()
}

// Reset makes the current count zero
func (e *lengthEncoder) Reset() {
	e.offset.Store(int64(e.dev.Position()))
}
