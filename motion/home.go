package motion

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"cablewinder/core"
)

// Home drives the axis toward its lower hard stop for up to maxTravelSteps
// and defines the point it ends at as position zero. There is no limit
// switch: the motor is expected to stall against the stop for the rest of
// the travel. On timeout the axis is stopped, its position is unknown and
// ErrHomingTimeout is returned; nothing retries on its own.
func (a *Axis) Home(ctx context.Context, maxTravelSteps int64, timeout time.Duration) error {
	if maxTravelSteps < 0 {
		maxTravelSteps = 0
	}
	log := a.log.WithFields(logrus.Fields{
		"travel":  maxTravelSteps,
		"timeout": timeout,
	})

	if a.running.Load() {
		a.Stop()
		if err := a.WaitForStop(ctx, timeout); err != nil {
			return errors.Wrap(err, "stop before homing")
		}
	}

	log.Info("homing")
	start := time.Now()

	prev := a.SpeedTarget()
	a.SetSpeed(a.cfg.HomingSpeed)
	defer a.SetSpeed(prev)

	// Idle, so the position may be rewritten. Counting down from the full
	// travel keeps the position non-negative the whole way.
	a.position.Store(maxTravelSteps)
	if err := a.SetTargetPositionSteps(0); err != nil {
		return err
	}

	if timeout <= 0 {
		timeout = a.Plan().Duration()*2 + time.Second
	}
	if err := a.WaitForStop(ctx, timeout); err != nil {
		a.Stop()
		_ = a.WaitForStop(context.Background(), time.Second)
		log.WithError(err).Error("homing did not finish")
		if errors.Cause(err) == ErrWaitTimeout {
			return errors.Wrapf(ErrHomingTimeout, "axis %s after %s", a.cfg.Name, timeout)
		}
		return err
	}

	a.position.Store(0)
	a.target.Store(0)
	now := a.sched.Now()
	a.sched.Do(func() {
		a.events.Record(core.EvtHome, now, int32(maxTravelSteps), 0)
	})
	log.WithField("took", time.Since(start).Round(time.Millisecond)).Info("homing finished")
	return nil
}
