package guide

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"cablewinder/core"
	"cablewinder/kinematics"
)

var (
	// ErrNotReady is returned while the guide has no valid zero
	ErrNotReady = errors.New("guide not ready")

	// ErrEmptyRange is returned when the upper bound is not above the lower
	ErrEmptyRange = errors.New("guide travel range is empty")

	// ErrWidthRange is returned for winding widths outside the allowed range
	ErrWidthRange = errors.New("winding width out of range")
)

// Motor is the axis the planner drives
type Motor interface {
	SetTargetPositionSteps(steps int64) error
	WaitForStop(ctx context.Context, timeout time.Duration) error
	Position() int64
	Home(ctx context.Context, maxTravelSteps int64, timeout time.Duration) error
}

// Recovery supplies values saved before the last power loss
type Recovery interface {
	LastAxisPositionSteps() (uint32, bool)
	LastEncoderSteps() (int64, bool)
}

// Config holds the guide travel limits and timing
type Config struct {
	MinMm                float64
	MaxTotalTravelMm     float64
	HomeAddMm            float64
	DefaultWidthMm       float64
	MaxSelectableWidthMm float64
	CycleInterval        time.Duration
	MoveTimeout          time.Duration
	HomingTimeout        time.Duration
	DynamicWidth         bool
	WidthThresholds      []WidthThreshold
}

// Status is a point-in-time view of the planner
type Status struct {
	Ready             bool
	Fault             string
	AxisPositionSteps int64
	AxisPositionMm    float64
	Layer             uint32
	Direction         Direction
	WidthMm           float64
	RecoveredLengthMm float64
	RangeFaults       uint32
}

// Planner keeps the guide over the point where cable runs onto the spool.
// It turns encoder deltas into guide travel and bounces the guide between
// the winding bounds.
type Planner struct {
	cfg   Config
	spool *kinematics.Spool
	axis  Motor
	enc   core.Encoder
	store Recovery
	log   logrus.FieldLogger

	// Owned by the planner loop
	pos         int64
	partial     float64
	lastEncoder int64
	lastTarget  int64
	lastMove    Direction

	layer       atomic.Uint32
	dir         atomic.Int32
	ready       atomic.Bool
	rangeFaults atomic.Uint32

	widthMu sync.Mutex
	widthMm float64

	faultMu sync.Mutex
	fault   error

	recoveredMm atomic.Uint64 // float64 bits

	zeroCh chan struct{}
	homeCh chan struct{}
}

// NewPlanner creates a planner that is not ready until Home succeeds.
// store may be nil.
func NewPlanner(cfg Config, spool *kinematics.Spool, axis Motor, enc core.Encoder, store Recovery, log logrus.FieldLogger) (*Planner, error) {
	if spool == nil || axis == nil || enc == nil {
		return nil, errors.New("guide: spool, axis and encoder are required")
	}
	if cfg.MaxSelectableWidthMm <= cfg.MinMm {
		return nil, errors.Wrapf(ErrEmptyRange, "max selectable width %gmm", cfg.MaxSelectableWidthMm)
	}
	if cfg.CycleInterval <= 0 {
		cfg.CycleInterval = 5 * time.Millisecond
	}
	if log == nil {
		log = logrus.StandardLogger()
	}

	p := &Planner{
		cfg:    cfg,
		spool:  spool,
		axis:   axis,
		enc:    enc,
		store:  store,
		log:    log.WithField("component", "guide"),
		zeroCh: make(chan struct{}, 1),
		homeCh: make(chan struct{}, 1),
	}
	p.dir.Store(int32(Right))
	p.pos = p.minSteps()
	p.lastTarget = p.pos
	if err := p.SetWindingWidthMm(cfg.DefaultWidthMm); err != nil {
		return nil, err
	}
	p.setFault(ErrNotReady)
	return p, nil
}

// Run executes planning cycles until ctx is done
func (p *Planner) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.cfg.CycleInterval)
	defer ticker.Stop()

	p.log.WithField("interval", p.cfg.CycleInterval).Info("guide planner running")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.cycle(ctx)
		}
	}
}

// cycle runs one planning step
func (p *Planner) cycle(ctx context.Context) {
	now := p.enc.CumulativeSteps()

	select {
	case <-p.homeCh:
		if err := p.Home(ctx); err != nil {
			p.log.WithError(err).Error("re-home failed")
		}
		return
	default:
	}

	select {
	case <-p.zeroCh:
		p.returnToZero(ctx, now)
		return
	default:
	}

	if !p.ready.Load() {
		return
	}

	delta := now - p.lastEncoder
	exact := p.spool.TravelSteps(delta, p.Layer()) + p.partial
	whole := math.Trunc(exact)
	if math.Abs(whole) < 1 {
		return
	}

	// Steps not travelled stay in the carry for the next cycle
	moved, err := p.travel(ctx, int64(whole))
	if err != nil && err != ErrEmptyRange {
		p.log.WithError(err).Warn("travel failed")
	}
	p.partial = exact - float64(moved)
	p.lastEncoder = now
}

func (p *Planner) returnToZero(ctx context.Context, encoderNow int64) {
	if !p.ready.Load() {
		p.log.Warn("return to zero ignored, guide not ready")
		return
	}

	target := p.minSteps()
	if err := p.axis.SetTargetPositionSteps(target); err != nil {
		p.log.WithError(err).Error("return to zero failed")
		return
	}
	if err := p.axis.WaitForStop(ctx, p.cfg.MoveTimeout); err != nil {
		p.log.WithError(err).Warn("return to zero did not finish in time")
	}

	p.lastEncoder = encoderNow
	p.pos = target
	p.resetMoves(target)
	p.layer.Store(0)
	p.setDirection(Right)
	p.partial = 0
	p.log.WithField("encoder", encoderNow).Info("guide returned to zero")
}

// Home drives the guide against its hard stop to find zero. The travel is
// shortened when a position saved before the last power loss is available.
// On failure the planner holds a fault and stays not ready until Home is
// called again.
func (p *Planner) Home(ctx context.Context) error {
	p.ready.Store(false)
	travelMm := p.HomingTravelMm()
	steps := p.spool.MmToSteps(travelMm)

	if err := p.axis.Home(ctx, steps, p.cfg.HomingTimeout); err != nil {
		p.setFault(err)
		p.log.WithError(err).Error("homing failed, guide not ready")
		return errors.Wrap(err, "guide homing")
	}

	p.pos = 0
	p.partial = 0
	p.layer.Store(0)
	p.setDirection(Right)
	p.lastEncoder = p.enc.CumulativeSteps()
	p.resetMoves(0)

	if lo := p.minSteps(); lo > 0 {
		p.pos = lo
		p.resetMoves(lo)
		if err := p.axis.SetTargetPositionSteps(lo); err != nil {
			p.setFault(err)
			return errors.Wrap(err, "move to lower bound")
		}
		if err := p.axis.WaitForStop(ctx, p.cfg.MoveTimeout); err != nil {
			p.setFault(err)
			return errors.Wrap(err, "move to lower bound")
		}
	}

	p.setFault(nil)
	p.ready.Store(true)
	p.log.WithField("travel_mm", travelMm).Info("guide homed")
	return nil
}

// HomingTravelMm returns how far homing drives toward the stop: the saved
// position plus a margin, capped at the full axis travel. Without a saved
// position the full travel is used.
func (p *Planner) HomingTravelMm() float64 {
	full := p.cfg.MaxTotalTravelMm
	if p.store == nil {
		return full
	}

	if enc, ok := p.store.LastEncoderSteps(); ok {
		mm := p.spool.LengthMm(enc)
		p.recoveredMm.Store(math.Float64bits(mm))
		p.log.WithField("length_mm", mm).Info("cable length before last shutdown")
	}

	last, ok := p.store.LastAxisPositionSteps()
	if !ok {
		p.log.Warn("no saved guide position, homing full travel")
		return full
	}
	mm := p.spool.StepsToMm(int64(last)) + p.cfg.HomeAddMm
	if mm > full {
		mm = full
	}
	p.log.WithFields(logrus.Fields{
		"last_mm":   p.spool.StepsToMm(int64(last)),
		"travel_mm": mm,
	}).Info("shortened homing from saved position")
	return mm
}

// MoveToZero asks the planner loop to return the guide to zero and reset the
// layer count. It reports false if a request is already pending.
func (p *Planner) MoveToZero() bool {
	select {
	case p.zeroCh <- struct{}{}:
		return true
	default:
		return false
	}
}

// RequestHome asks the planner loop to home again. It reports false if a
// request is already pending.
func (p *Planner) RequestHome() bool {
	select {
	case p.homeCh <- struct{}{}:
		return true
	default:
		return false
	}
}

// AxisPositionSteps returns the physical guide position
func (p *Planner) AxisPositionSteps() int64 {
	return p.axis.Position()
}

// Layer returns the number of completed traversals
func (p *Planner) Layer() uint32 {
	return p.layer.Load()
}

// Direction returns the current travel direction
func (p *Planner) Direction() Direction {
	return Direction(p.dir.Load())
}

func (p *Planner) setDirection(d Direction) {
	p.dir.Store(int32(d))
}

// Ready reports whether the guide has a valid zero and may be driven
func (p *Planner) Ready() bool {
	return p.ready.Load()
}

// Fault returns the held fault, nil when ready
func (p *Planner) Fault() error {
	p.faultMu.Lock()
	defer p.faultMu.Unlock()
	return p.fault
}

func (p *Planner) setFault(err error) {
	p.faultMu.Lock()
	p.fault = err
	p.faultMu.Unlock()
}

// Status returns a snapshot for display and the console
func (p *Planner) Status() Status {
	pos := p.AxisPositionSteps()
	s := Status{
		Ready:             p.Ready(),
		AxisPositionSteps: pos,
		AxisPositionMm:    p.spool.StepsToMm(pos),
		Layer:             p.Layer(),
		Direction:         p.Direction(),
		WidthMm:           p.WindingWidthMm(),
		RecoveredLengthMm: math.Float64frombits(p.recoveredMm.Load()),
		RangeFaults:       p.rangeFaults.Load(),
	}
	if err := p.Fault(); err != nil {
		s.Fault = err.Error()
	}
	return s
}

func (p *Planner) minSteps() int64 {
	return p.spool.MmToSteps(p.cfg.MinMm)
}

func (p *Planner) maxSteps() int64 {
	return p.spool.MmToSteps(p.WindingWidthMm())
}
