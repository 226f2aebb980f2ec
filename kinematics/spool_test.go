package kinematics

import (
	"math"
	"testing"
)

func testSpool(t *testing.T) *Spool {
	t.Helper()
	s, err := NewSpool(Spool{
		ReelDiameterMm:   160,
		CablePitchMm:     6,
		LayerThicknessMm: 5,
		StepsPerMm:       100,
		EncoderStepsPerM: 2118,
	})
	if err != nil {
		t.Fatalf("NewSpool failed: %v", err)
	}
	return s
}

func TestSpoolTravelForOneMeter(t *testing.T) {
	s := testSpool(t)

	travel := s.TravelMm(1000, 0)
	expected := 1000 / (math.Pi * 160) * 6
	if math.Abs(travel-expected) > 1e-9 {
		t.Errorf("Expected %.6fmm, got %.6fmm", expected, travel)
	}
	if math.Abs(travel-11.94) > 0.005 {
		t.Errorf("Expected about 11.94mm, got %.4fmm", travel)
	}
}

func TestSpoolDiameterGrowsPerLayer(t *testing.T) {
	s := testSpool(t)

	testCases := []struct {
		layer    uint32
		expected float64
	}{
		{0, 160},
		{1, 170},
		{4, 200},
	}
	for _, tc := range testCases {
		if got := s.Diameter(tc.layer); got != tc.expected {
			t.Errorf("Layer %d: expected diameter %g, got %g", tc.layer, tc.expected, got)
		}
	}

	if s.TravelMm(1000, 4) >= s.TravelMm(1000, 0) {
		t.Error("Travel per meter should shrink as layers build up")
	}
}

func TestSpoolEncoderConversion(t *testing.T) {
	s := testSpool(t)

	if got := s.LengthMm(2118); math.Abs(got-1000) > 1e-9 {
		t.Errorf("Expected 1000mm for one meter of encoder steps, got %g", got)
	}
	if got := s.TravelSteps(-2118, 0); math.Abs(got+s.TravelMm(1000, 0)*100) > 1e-6 {
		t.Errorf("Expected negative travel for negative delta, got %g", got)
	}
	if got := s.MmToSteps(90); got != 9000 {
		t.Errorf("Expected 9000 steps, got %d", got)
	}
	if got := s.StepsToMm(4050); got != 40.5 {
		t.Errorf("Expected 40.5mm, got %g", got)
	}
}

func TestNewSpoolValidation(t *testing.T) {
	testCases := []struct {
		name  string
		spool Spool
	}{
		{"zero reel", Spool{CablePitchMm: 6, StepsPerMm: 100, EncoderStepsPerM: 2118}},
		{"zero pitch", Spool{ReelDiameterMm: 160, StepsPerMm: 100, EncoderStepsPerM: 2118}},
		{"negative layer", Spool{ReelDiameterMm: 160, CablePitchMm: 6, LayerThicknessMm: -1, StepsPerMm: 100, EncoderStepsPerM: 2118}},
		{"zero encoder", Spool{ReelDiameterMm: 160, CablePitchMm: 6, StepsPerMm: 100}},
	}
	for _, tc := range testCases {
		if _, err := NewSpool(tc.spool); err == nil {
			t.Errorf("%s: expected error", tc.name)
		}
	}
}
