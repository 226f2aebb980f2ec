package kinematics

import (
	"math"

	"github.com/pkg/errors"
)

// Spool maps cable length wound onto a reel to guide travel. Each full
// traversal of the guide adds one layer, growing the working diameter by
// twice the layer thickness.
type Spool struct {
	ReelDiameterMm   float64 // Diameter of the empty reel core
	CablePitchMm     float64 // Guide travel per reel turn
	LayerThicknessMm float64 // Radial growth per layer
	StepsPerMm       float64 // Guide axis resolution
	EncoderStepsPerM float64 // Length encoder resolution
}

// NewSpool validates the geometry
func NewSpool(s Spool) (*Spool, error) {
	if s.ReelDiameterMm <= 0 {
		return nil, errors.New("reel diameter must be positive")
	}
	if s.CablePitchMm <= 0 {
		return nil, errors.New("cable pitch must be positive")
	}
	if s.LayerThicknessMm < 0 {
		return nil, errors.New("layer thickness must not be negative")
	}
	if s.StepsPerMm <= 0 {
		return nil, errors.New("steps per mm must be positive")
	}
	if s.EncoderStepsPerM <= 0 {
		return nil, errors.New("encoder steps per meter must be positive")
	}
	return &s, nil
}

// Diameter returns the working diameter with layer layers wound
func (s *Spool) Diameter(layer uint32) float64 {
	return s.ReelDiameterMm + 2*s.LayerThicknessMm*float64(layer)
}

// LengthMm converts an encoder step delta to cable length
func (s *Spool) LengthMm(encoderSteps int64) float64 {
	return float64(encoderSteps) * 1000 / s.EncoderStepsPerM
}

// Turns returns how many reel turns lengthMm of cable takes at layer
func (s *Spool) Turns(lengthMm float64, layer uint32) float64 {
	return lengthMm / (math.Pi * s.Diameter(layer))
}

// TravelMm returns the guide travel that follows lengthMm of cable
func (s *Spool) TravelMm(lengthMm float64, layer uint32) float64 {
	return s.Turns(lengthMm, layer) * s.CablePitchMm
}

// TravelSteps returns the exact, unrounded guide travel in steps for an
// encoder delta. Negative deltas give negative travel.
func (s *Spool) TravelSteps(encoderSteps int64, layer uint32) float64 {
	return s.TravelMm(s.LengthMm(encoderSteps), layer) * s.StepsPerMm
}

// MmToSteps converts a guide distance to whole steps, rounding to nearest
func (s *Spool) MmToSteps(mm float64) int64 {
	return int64(math.Round(mm * s.StepsPerMm))
}

// StepsToMm converts guide steps to millimeters
func (s *Spool) StepsToMm(steps int64) float64 {
	return float64(steps) / s.StepsPerMm
}
