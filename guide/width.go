package guide

import (
	"github.com/pkg/errors"
)

// WidthThreshold selects WidthMm for target lengths up to MaxLengthMm
type WidthThreshold struct {
	MaxLengthMm float64 `json:"max_length_mm" yaml:"max_length_mm"`
	WidthMm     float64 `json:"width_mm" yaml:"width_mm"`
}

// WidthForLength picks the winding width for a target cable length. Short
// cable is wound narrow so it stacks into layers instead of one thin spiral.
// thresholds must be sorted by MaxLengthMm; lengths beyond the last one get
// def.
func WidthForLength(thresholds []WidthThreshold, lengthMm, def float64) float64 {
	for _, th := range thresholds {
		if lengthMm <= th.MaxLengthMm {
			return th.WidthMm
		}
	}
	return def
}

// SetWindingWidthMm sets the upper travel bound. The lock is held only for
// the write; a travel already under way keeps the bound it started with.
func (p *Planner) SetWindingWidthMm(mm float64) error {
	if mm <= p.cfg.MinMm || mm > p.cfg.MaxSelectableWidthMm {
		return errors.Wrapf(ErrWidthRange, "%gmm not in (%g, %g]", mm, p.cfg.MinMm, p.cfg.MaxSelectableWidthMm)
	}
	p.widthMu.Lock()
	p.widthMm = mm
	p.widthMu.Unlock()
	p.log.WithField("width_mm", mm).Info("winding width set")
	return nil
}

// WindingWidthMm returns the upper travel bound
func (p *Planner) WindingWidthMm() float64 {
	p.widthMu.Lock()
	defer p.widthMu.Unlock()
	return p.widthMm
}

// SetTargetLength adapts the winding width to a new target length when
// dynamic width is enabled. It returns the width in effect afterwards.
func (p *Planner) SetTargetLength(lengthMm float64) (float64, error) {
	if !p.cfg.DynamicWidth {
		return p.WindingWidthMm(), nil
	}
	w := WidthForLength(p.cfg.WidthThresholds, lengthMm, p.cfg.DefaultWidthMm)
	if w > p.cfg.MaxSelectableWidthMm {
		w = p.cfg.MaxSelectableWidthMm
	}
	if err := p.SetWindingWidthMm(w); err != nil {
		return p.WindingWidthMm(), err
	}
	return w, nil
}
