package motion

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"cablewinder/core"
)

var (
	// ErrWaitTimeout is returned when the axis did not stop in time
	ErrWaitTimeout = errors.New("axis did not stop before timeout")

	// ErrHomingTimeout is returned when a homing pass did not finish in time.
	// The axis position is unknown afterwards.
	ErrHomingTimeout = errors.New("homing timed out")

	// ErrNegativeTarget is returned for targets below the zero position
	ErrNegativeTarget = errors.New("target below zero position")
)

// Direction of travel along the axis
type Direction int8

const (
	Forward Direction = 1
	Reverse Direction = -1
)

func (d Direction) String() string {
	if d == Reverse {
		return "reverse"
	}
	return "forward"
}

// AxisConfig holds the electrical and ramp parameters of one axis.
// Speeds are steps/s; AccelInc and DecelInc are the speed change applied per
// step, in steps/s.
type AxisConfig struct {
	Name         string
	StepPin      core.GPIOPin
	DirPin       core.GPIOPin
	InvertStep   bool
	InvertDir    bool
	SpeedMin     float64
	SpeedDefault float64
	HomingSpeed  float64
	AccelInc     float64
	DecelInc     float64
	PollInterval time.Duration
}

func (c *AxisConfig) validate() error {
	if c.SpeedMin <= 0 {
		return errors.Errorf("axis %s: speed_min must be positive", c.Name)
	}
	if c.SpeedDefault < c.SpeedMin {
		return errors.Errorf("axis %s: default speed %g below speed_min %g", c.Name, c.SpeedDefault, c.SpeedMin)
	}
	if c.AccelInc <= 0 || c.DecelInc <= 0 {
		return errors.Errorf("axis %s: accel/decel increments must be positive", c.Name)
	}
	if c.HomingSpeed == 0 {
		c.HomingSpeed = c.SpeedDefault
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 2 * time.Millisecond
	}
	return nil
}

// Faults counts invariant violations caught inside the timer handler
type Faults struct {
	Underflow  uint32 // steps refused below the zero position
	SpeedClamp uint32 // speed found below speed_min and clamped
}

// Axis is a step generator for one stepper motor. Task code writes the
// target and cruise speed; a recurring scheduler timer owns the ramp and
// emits one step per firing.
type Axis struct {
	cfg     AxisConfig
	sched   *core.Scheduler
	backend core.StepperBackend
	log     logrus.FieldLogger
	timer   core.Timer

	// Shared with task context. Single-word cells only.
	target      atomic.Int64
	position    atomic.Int64
	speedTarget atomic.Uint64 // float64 bits
	speedNow    atomic.Uint64 // float64 bits, published for status
	running     atomic.Bool
	underflows  atomic.Uint32
	speedClamps atomic.Uint32

	// Owned by the timer handler. Task code writes these only while
	// running is false and before the timer is armed.
	direction  Direction
	remaining  int64
	speed      float64
	armed      bool
	seenTarget int64
	events     core.EventRing

	planMu sync.Mutex
	plan   Profile
}

// NewAxis configures the backend pins and returns an idle axis at position 0.
// The position is meaningless until Home succeeds.
func NewAxis(cfg AxisConfig, sched *core.Scheduler, backend core.StepperBackend, log logrus.FieldLogger) (*Axis, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if err := backend.Init(cfg.StepPin, cfg.DirPin, cfg.InvertStep, cfg.InvertDir); err != nil {
		return nil, errors.Wrapf(err, "axis %s: init %s backend", cfg.Name, backend.GetName())
	}
	if log == nil {
		log = logrus.StandardLogger()
	}

	a := &Axis{
		cfg:       cfg,
		sched:     sched,
		backend:   backend,
		log:       log.WithField("axis", cfg.Name),
		direction: Forward,
		speed:     cfg.SpeedMin,
	}
	a.timer.Handler = a.onTimer
	a.speedTarget.Store(math.Float64bits(cfg.SpeedDefault))
	a.speedNow.Store(math.Float64bits(0))
	backend.SetDirection(false)
	return a, nil
}

// Config returns the axis configuration
func (a *Axis) Config() AxisConfig {
	return a.cfg
}

// SetTargetPositionSteps sets a new absolute target. It never blocks: an idle
// axis is armed, a moving one picks the target up on its next step and
// decelerates first if the target lies behind it.
func (a *Axis) SetTargetPositionSteps(steps int64) error {
	if steps < 0 {
		return errors.Wrapf(ErrNegativeTarget, "axis %s: target %d", a.cfg.Name, steps)
	}

	pos := a.position.Load()
	a.target.Store(steps)
	a.updatePlan(steps, pos)

	if steps == pos {
		return nil
	}
	a.arm()
	return nil
}

// arm starts the timer if the axis is idle
func (a *Axis) arm() {
	if !a.running.CompareAndSwap(false, true) {
		return
	}
	a.remaining = 0
	a.speed = a.cfg.SpeedMin
	a.armed = true
	a.sched.ScheduleIn(&a.timer, 1)
}

func (a *Axis) updatePlan(target, pos int64) {
	dist := target - pos
	if dist < 0 {
		dist = -dist
	}
	cruise := a.SpeedTarget()
	avg := (cruise + a.cfg.SpeedMin) / 2
	current := a.Speed()
	if current < a.cfg.SpeedMin {
		current = a.cfg.SpeedMin
	}

	p, err := CalcProfile(dist, cruise, a.cfg.AccelInc*avg, a.cfg.DecelInc*avg, current)
	if err != nil {
		a.log.WithError(err).Warn("profile calculation failed")
		return
	}
	a.planMu.Lock()
	a.plan = p
	a.planMu.Unlock()
}

// SetSpeed sets the cruise speed for the following steps, clamped to
// speed_min. A move already decelerating is not affected.
func (a *Axis) SetSpeed(stepsPerSecond float64) {
	if stepsPerSecond < a.cfg.SpeedMin {
		stepsPerSecond = a.cfg.SpeedMin
	}
	a.speedTarget.Store(math.Float64bits(stepsPerSecond))
}

// Stop decelerates the axis as soon as possible
func (a *Axis) Stop() {
	_ = a.SetTargetPositionSteps(a.position.Load())
}

// WaitForStop blocks until the axis is idle. A zero timeout is derived from
// the current move plan. It must never be called from a timer handler.
func (a *Axis) WaitForStop(ctx context.Context, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = a.Plan().Duration()*2 + time.Second
	}
	deadline := time.Now().Add(timeout)

	ticker := time.NewTicker(a.cfg.PollInterval)
	defer ticker.Stop()

	for a.running.Load() {
		if time.Now().After(deadline) {
			a.log.WithFields(logrus.Fields{
				"position": a.Position(),
				"target":   a.Target(),
				"timeout":  timeout,
			}).Warn("axis still moving after timeout")
			return errors.Wrapf(ErrWaitTimeout, "axis %s after %s", a.cfg.Name, timeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

// Position returns the absolute position in steps
func (a *Axis) Position() int64 {
	return a.position.Load()
}

// Target returns the absolute target in steps
func (a *Axis) Target() int64 {
	return a.target.Load()
}

// Speed returns the current step rate, 0 when idle
func (a *Axis) Speed() float64 {
	return math.Float64frombits(a.speedNow.Load())
}

// SpeedTarget returns the cruise speed
func (a *Axis) SpeedTarget() float64 {
	return math.Float64frombits(a.speedTarget.Load())
}

// Running reports whether the step timer is armed
func (a *Axis) Running() bool {
	return a.running.Load()
}

// Plan returns the profile computed for the latest target
func (a *Axis) Plan() Profile {
	a.planMu.Lock()
	defer a.planMu.Unlock()
	return a.plan
}

// Faults returns the counted handler faults
func (a *Axis) Faults() Faults {
	return Faults{
		Underflow:  a.underflows.Load(),
		SpeedClamp: a.speedClamps.Load(),
	}
}

// Events returns the recent handler events, oldest first
func (a *Axis) Events() []core.Event {
	var out []core.Event
	a.sched.Do(func() {
		out = a.events.Snapshot()
	})
	return out
}

// DumpEvents writes the recent handler events through w
func (a *Axis) DumpEvents(w core.DebugWriter) {
	var ring core.EventRing
	a.sched.Do(func() {
		ring = a.events
	})
	ring.Dump(w)
}

// decelDistance returns the steps needed to slow from the current speed to
// speed_min
func (a *Axis) decelDistance() int64 {
	if a.speed <= a.cfg.SpeedMin {
		return 0
	}
	return int64(math.Ceil((a.speed - a.cfg.SpeedMin) / a.cfg.DecelInc))
}

// onTimer runs once per step. It must not block, allocate or log.
func (a *Axis) onTimer(t *core.Timer) uint8 {
	now := t.WakeTime
	target := a.target.Load()
	pos := a.position.Load()
	if a.armed {
		a.armed = false
		a.seenTarget = target
		a.events.Record(core.EvtArm, now, int32(pos), int32(target))
	} else if target != a.seenTarget {
		a.events.Record(core.EvtRetarget, now, int32(a.seenTarget), int32(target))
		a.seenTarget = target
	}
	diff := target - pos

	want := a.direction
	if diff > 0 {
		want = Forward
	} else if diff < 0 {
		want = Reverse
	}

	switch {
	case want != a.direction && diff != 0:
		if d := a.decelDistance(); a.remaining > d {
			a.remaining = d
		}
		if a.remaining == 0 {
			a.direction = want
			a.backend.SetDirection(want == Reverse)
			a.remaining = abs64(diff)
			a.events.Record(core.EvtReverse, now, int32(pos), int32(target))
		}
	case diff == 0 && a.remaining > 0 && a.speed > a.cfg.SpeedMin:
		// Stopped on the spot at speed: run out the ramp and come back
		if d := a.decelDistance(); a.remaining > d {
			a.remaining = d
		}
	default:
		a.remaining = abs64(diff)
	}

	if a.speed < a.cfg.SpeedMin {
		a.speedClamps.Add(1)
		a.speed = a.cfg.SpeedMin
	}
	cruise := math.Float64frombits(a.speedTarget.Load())
	switch {
	case a.remaining <= a.decelDistance():
		a.speed = math.Max(a.speed-a.cfg.DecelInc, a.cfg.SpeedMin)
	case a.speed < cruise:
		a.speed = math.Min(a.speed+a.cfg.AccelInc, cruise)
	case a.speed > cruise:
		a.speed = math.Max(a.speed-a.cfg.DecelInc, cruise)
	}

	if a.remaining == 0 {
		return a.finish(t, pos)
	}

	period := uint32(float64(a.sched.Freq()) / a.speed)
	if period == 0 {
		period = 1
	}
	t.WakeTime += period

	if a.direction == Reverse && pos <= 0 {
		// Refuse to count below zero; reverse from standstill next tick
		a.underflows.Add(1)
		a.events.Record(core.EvtFault, now, int32(pos), int32(target))
		a.remaining = 0
		a.speed = a.cfg.SpeedMin
		a.speedNow.Store(math.Float64bits(a.speed))
		return core.SF_RESCHEDULE
	}

	a.backend.Step()
	a.remaining--
	a.position.Add(int64(a.direction))
	a.speedNow.Store(math.Float64bits(a.speed))
	return core.SF_RESCHEDULE
}

func (a *Axis) finish(t *core.Timer, pos int64) uint8 {
	a.backend.Stop()
	a.speed = a.cfg.SpeedMin
	a.speedNow.Store(math.Float64bits(0))
	a.events.Record(core.EvtStop, t.WakeTime, int32(pos), 0)
	a.running.Store(false)

	// A target written between the loads above and the store would
	// otherwise be lost until the next retarget.
	if a.target.Load() != a.position.Load() && a.running.CompareAndSwap(false, true) {
		t.WakeTime++
		return core.SF_RESCHEDULE
	}
	return core.SF_DONE
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
