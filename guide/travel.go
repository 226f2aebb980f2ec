package guide

import (
	"context"

	"github.com/sirupsen/logrus"
)

// Direction of guide travel. Right increases the position.
type Direction int32

const (
	Right Direction = 1
	Left  Direction = -1
)

func (d Direction) String() string {
	if d == Left {
		return "left"
	}
	return "right"
}

// travel moves the guide by steps, bouncing between the bounds. Every bounce
// adds one layer for positive requests and removes one for negative
// requests. Negative requests run with the direction inverted, as cable
// paying off the spool retraces the guide's path. It returns the signed
// number of steps actually travelled; the rest is left to the caller.
func (p *Planner) travel(ctx context.Context, steps int64) (int64, error) {
	if steps == 0 {
		return 0, nil
	}
	lo, hi := p.minSteps(), p.maxSteps()
	if hi <= lo {
		p.rangeFaults.Add(1)
		p.log.WithFields(logrus.Fields{"min": lo, "max": hi}).Error("empty travel range, not moving")
		return 0, ErrEmptyRange
	}

	// A width change can leave the guide outside the range
	if p.pos > hi || p.pos < lo {
		bound := hi
		if p.pos < lo {
			bound = lo
		}
		p.log.WithFields(logrus.Fields{"pos": p.pos, "bound": bound}).Warn("guide outside winding range, moving to bound")
		if err := p.moveTo(ctx, bound); err != nil {
			return 0, err
		}
		p.pos = bound
	}

	if steps < 0 {
		p.setDirection(-p.Direction())
		defer func() { p.setDirection(-p.Direction()) }()
	}

	sign := int64(1)
	togo := steps
	if steps < 0 {
		sign = -1
		togo = -steps
	}

	var done int64
	for togo != 0 {
		var bound, room int64
		if p.Direction() == Right {
			bound, room = hi, hi-p.pos
		} else {
			bound, room = lo, p.pos-lo
		}

		if togo <= room {
			target := p.pos + int64(p.Direction())*togo
			if err := p.moveTo(ctx, target); err != nil {
				return sign * done, err
			}
			p.pos = target
			return sign * (done + togo), nil
		}

		if err := p.moveTo(ctx, bound); err != nil {
			return sign * done, err
		}
		p.pos = bound
		done += room
		togo -= room
		if err := p.axis.WaitForStop(ctx, p.cfg.MoveTimeout); err != nil {
			if ctx.Err() != nil {
				return sign * done, ctx.Err()
			}
			p.log.WithError(err).Warn("guide did not reach bound in time")
		}
		p.setDirection(-p.Direction())
		p.addLayer(int32(sign))

		p.log.WithFields(logrus.Fields{
			"bound": bound,
			"layer": p.Layer(),
			"dir":   p.Direction(),
		}).Debug("reflected at bound")
	}
	return sign * done, nil
}

// moveTo commands the axis to steps. A move against the previous one first
// waits for the axis to stop, so a retarget never makes it overshoot past a
// bound while it decelerates.
func (p *Planner) moveTo(ctx context.Context, steps int64) error {
	dir := Direction(0)
	if steps > p.lastTarget {
		dir = Right
	} else if steps < p.lastTarget {
		dir = Left
	}
	if dir != 0 && p.lastMove != 0 && dir != p.lastMove {
		if err := p.axis.WaitForStop(ctx, p.cfg.MoveTimeout); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.log.WithError(err).Warn("guide still moving before reversal")
		}
	}
	if err := p.axis.SetTargetPositionSteps(steps); err != nil {
		return err
	}
	if dir != 0 {
		p.lastMove = dir
	}
	p.lastTarget = steps
	return nil
}

// resetMoves forgets the last commanded move after the axis was driven
// outside of travel
func (p *Planner) resetMoves(target int64) {
	p.lastTarget = target
	p.lastMove = 0
}

func (p *Planner) addLayer(sign int32) {
	l := int64(p.layer.Load()) + int64(sign)
	if l < 0 {
		l = 0
	}
	p.layer.Store(uint32(l))
}
