// Package console implements the line-oriented operator console of the
// winder. Each line is one command; the reply ends with "ok" or "error: ...".
package console

import (
	"context"
	"fmt"
	"io"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cast"

	"cablewinder/core"
	"cablewinder/guide"
	"cablewinder/motion"
	"cablewinder/protocol"
)

// Guide is the planner surface the console drives
type Guide interface {
	Status() guide.Status
	RequestHome() bool
	MoveToZero() bool
	SetWindingWidthMm(mm float64) error
	WindingWidthMm() float64
	SetTargetLength(lengthMm float64) (float64, error)
}

// Axis is the stepper surface the console drives
type Axis interface {
	SetSpeed(stepsPerSecond float64)
	SpeedTarget() float64
	Faults() motion.Faults
	DumpEvents(w core.DebugWriter)
}

// LineMax bounds one console line
const LineMax = 128

// Console binds the command registry to the winder
type Console struct {
	reg        *Registry
	guide      Guide
	axis       Axis
	stepsPerMm float64
	log        logrus.FieldLogger
}

// New creates a console with all winder commands registered
func New(g Guide, axis Axis, stepsPerMm float64, log logrus.FieldLogger) *Console {
	if log == nil {
		log = logrus.StandardLogger()
	}
	c := &Console{
		reg:        NewRegistry(),
		guide:      g,
		axis:       axis,
		stepsPerMm: stepsPerMm,
		log:        log.WithField("component", "console"),
	}
	c.register()
	return c
}

// Registry returns the command registry
func (c *Console) Registry() *Registry {
	return c.reg
}

// Execute runs one line and writes the reply followed by ok or the error
func (c *Console) Execute(line string, w io.Writer) error {
	err := c.reg.Dispatch(line, w)
	if err != nil {
		fmt.Fprintf(w, "error: %v\n", err)
		c.log.WithError(err).WithField("line", line).Debug("command failed")
		return err
	}
	fmt.Fprintln(w, "ok")
	return nil
}

// Serve reads commands from r until EOF or ctx is done. Cancellation takes
// effect once the pending read returns.
func (c *Console) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	fifo := protocol.NewFifoBuffer(LineMax)
	buf := make([]byte, LineMax)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, err := r.Read(buf[:fifo.Free()])
		if n > 0 {
			fifo.Write(buf[:n])
			for {
				line, ok := fifo.NextLine()
				if !ok {
					break
				}
				_ = c.Execute(line, w)
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "console read")
		}
	}
}

func (c *Console) register() {
	c.reg.Register("status", "", "show guide state", c.cmdStatus)
	c.reg.Register("home", "", "home the guide again", c.cmdHome)
	c.reg.Register("zero", "", "return to zero and reset the layer count", c.cmdZero)
	c.reg.Register("width", "[mm]", "show or set the winding width", c.cmdWidth)
	c.reg.Register("length", "<mm>", "set target length, picks width when dynamic", c.cmdLength)
	c.reg.Register("speed", "[mm/s]", "show or set the guide cruise speed", c.cmdSpeed)
	c.reg.Register("events", "", "dump recent step timer events", c.cmdEvents)
	c.reg.Register("faults", "", "show fault counters", c.cmdFaults)
	c.reg.Register("help", "", "list commands", c.cmdHelp)
}

func (c *Console) cmdStatus(args []string, w io.Writer) error {
	s := c.guide.Status()
	state := "ready"
	if !s.Ready {
		state = "not ready"
	}
	fmt.Fprintf(w, "state: %s\n", state)
	if s.Fault != "" {
		fmt.Fprintf(w, "fault: %s\n", s.Fault)
	}
	fmt.Fprintf(w, "position: %.2fmm (%d steps)\n", s.AxisPositionMm, s.AxisPositionSteps)
	fmt.Fprintf(w, "layer: %d direction: %s\n", s.Layer, s.Direction)
	fmt.Fprintf(w, "width: %.1fmm\n", s.WidthMm)
	if s.RecoveredLengthMm > 0 {
		fmt.Fprintf(w, "length before shutdown: %.0fmm\n", s.RecoveredLengthMm)
	}
	return nil
}

func (c *Console) cmdHome(args []string, w io.Writer) error {
	if !c.guide.RequestHome() {
		fmt.Fprintln(w, "home already pending")
		return nil
	}
	fmt.Fprintln(w, "home requested")
	return nil
}

func (c *Console) cmdZero(args []string, w io.Writer) error {
	if !c.guide.Status().Ready {
		return guide.ErrNotReady
	}
	if !c.guide.MoveToZero() {
		fmt.Fprintln(w, "zero already pending")
		return nil
	}
	fmt.Fprintln(w, "zero requested")
	return nil
}

func (c *Console) cmdWidth(args []string, w io.Writer) error {
	switch len(args) {
	case 0:
	case 1:
		mm, err := cast.ToFloat64E(args[0])
		if err != nil {
			return errors.Wrapf(ErrUsage, "width [mm]: %v", err)
		}
		if err := c.guide.SetWindingWidthMm(mm); err != nil {
			return err
		}
	default:
		return errors.Wrap(ErrUsage, "width [mm]")
	}
	fmt.Fprintf(w, "width: %.1fmm\n", c.guide.WindingWidthMm())
	return nil
}

func (c *Console) cmdLength(args []string, w io.Writer) error {
	if len(args) != 1 {
		return errors.Wrap(ErrUsage, "length <mm>")
	}
	mm, err := cast.ToFloat64E(args[0])
	if err != nil || mm <= 0 {
		return errors.Wrapf(ErrUsage, "length <mm>: %q", args[0])
	}
	width, err := c.guide.SetTargetLength(mm)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "width: %.1fmm\n", width)
	return nil
}

func (c *Console) cmdSpeed(args []string, w io.Writer) error {
	switch len(args) {
	case 0:
	case 1:
		mmS, err := cast.ToFloat64E(args[0])
		if err != nil || mmS <= 0 {
			return errors.Wrapf(ErrUsage, "speed [mm/s]: %q", args[0])
		}
		c.axis.SetSpeed(mmS * c.stepsPerMm)
	default:
		return errors.Wrap(ErrUsage, "speed [mm/s]")
	}
	fmt.Fprintf(w, "speed: %.1fmm/s\n", c.axis.SpeedTarget()/c.stepsPerMm)
	return nil
}

func (c *Console) cmdEvents(args []string, w io.Writer) error {
	c.axis.DumpEvents(func(line string) {
		fmt.Fprintln(w, line)
	})
	return nil
}

func (c *Console) cmdFaults(args []string, w io.Writer) error {
	f := c.axis.Faults()
	fmt.Fprintf(w, "underflow: %d\n", f.Underflow)
	fmt.Fprintf(w, "speed_clamp: %d\n", f.SpeedClamp)
	fmt.Fprintf(w, "empty_range: %d\n", c.guide.Status().RangeFaults)
	return nil
}

func (c *Console) cmdHelp(args []string, w io.Writer) error {
	_, err := io.WriteString(w, c.reg.Help())
	return err
}
