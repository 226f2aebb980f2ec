package guide

import (
	"testing"

	"github.com/pkg/errors"
)

func TestWidthForLength(t *testing.T) {
	thresholds := []WidthThreshold{
		{MaxLengthMm: 5000, WidthMm: 30},
		{MaxLengthMm: 20000, WidthMm: 60},
	}

	testCases := []struct {
		lengthMm float64
		expected float64
	}{
		{1000, 30},
		{5000, 30},
		{5001, 60},
		{20000, 60},
		{50000, 90},
	}
	for _, tc := range testCases {
		if got := WidthForLength(thresholds, tc.lengthMm, 90); got != tc.expected {
			t.Errorf("Length %gmm: expected width %g, got %g", tc.lengthMm, tc.expected, got)
		}
	}

	if got := WidthForLength(nil, 1000, 90); got != 90 {
		t.Errorf("Expected default without thresholds, got %g", got)
	}
}

func TestSetWindingWidth(t *testing.T) {
	p, _, _ := newTestPlanner(t, testConfig(), nil)

	if p.WindingWidthMm() != 90 {
		t.Errorf("Expected default width 90, got %g", p.WindingWidthMm())
	}
	if err := p.SetWindingWidthMm(45); err != nil {
		t.Fatalf("SetWindingWidthMm failed: %v", err)
	}
	if p.WindingWidthMm() != 45 || p.maxSteps() != 4500 {
		t.Errorf("Expected 45mm / 4500 steps, got %g / %d", p.WindingWidthMm(), p.maxSteps())
	}

	for _, mm := range []float64{0, -5, 101} {
		if err := p.SetWindingWidthMm(mm); errors.Cause(err) != ErrWidthRange {
			t.Errorf("Width %g: expected ErrWidthRange, got %v", mm, err)
		}
	}
	if p.WindingWidthMm() != 45 {
		t.Errorf("Rejected width must not change the bound, got %g", p.WindingWidthMm())
	}
}

func TestSetTargetLength(t *testing.T) {
	cfg := testConfig()
	p, _, _ := newTestPlanner(t, cfg, nil)

	if w, err := p.SetTargetLength(1000); err != nil || w != 90 {
		t.Errorf("Static width expected 90, got %g (err=%v)", w, err)
	}

	cfg.DynamicWidth = true
	cfg.WidthThresholds = []WidthThreshold{
		{MaxLengthMm: 5000, WidthMm: 30},
		{MaxLengthMm: 20000, WidthMm: 150},
	}
	p, _, _ = newTestPlanner(t, cfg, nil)

	if w, err := p.SetTargetLength(3000); err != nil || w != 30 {
		t.Errorf("Expected 30mm for short cable, got %g (err=%v)", w, err)
	}
	if w, err := p.SetTargetLength(10000); err != nil || w != 100 {
		t.Errorf("Expected width capped at 100mm, got %g (err=%v)", w, err)
	}
	if w, _ := p.SetTargetLength(90000); w != 90 {
		t.Errorf("Expected default width for long cable, got %g", w)
	}
}
