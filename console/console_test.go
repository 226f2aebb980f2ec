package console

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"cablewinder/core"
	"cablewinder/guide"
	"cablewinder/motion"
)

type fakeGuide struct {
	status   guide.Status
	homes    int
	zeros    int
	pending  bool
	width    float64
	lengthMm float64
}

func (g *fakeGuide) Status() guide.Status {
	s := g.status
	s.WidthMm = g.width
	return s
}

func (g *fakeGuide) RequestHome() bool {
	g.homes++
	return !g.pending
}

func (g *fakeGuide) MoveToZero() bool {
	g.zeros++
	return !g.pending
}

func (g *fakeGuide) SetWindingWidthMm(mm float64) error {
	if mm <= 0 || mm > 100 {
		return guide.ErrWidthRange
	}
	g.width = mm
	return nil
}

func (g *fakeGuide) WindingWidthMm() float64 { return g.width }

func (g *fakeGuide) SetTargetLength(mm float64) (float64, error) {
	g.lengthMm = mm
	if mm <= 5000 {
		g.width = 30
	}
	return g.width, nil
}

type fakeAxis struct {
	speed  float64
	faults motion.Faults
}

func (a *fakeAxis) SetSpeed(v float64)            { a.speed = v }
func (a *fakeAxis) SpeedTarget() float64          { return a.speed }
func (a *fakeAxis) Faults() motion.Faults         { return a.faults }
func (a *fakeAxis) DumpEvents(w core.DebugWriter) { w("=== EVENTS (0) ===") }

func newTestConsole() (*Console, *fakeGuide, *fakeAxis) {
	g := &fakeGuide{width: 90, status: guide.Status{Ready: true, AxisPositionMm: 12.5, AxisPositionSteps: 1250, Layer: 2, Direction: guide.Left}}
	a := &fakeAxis{speed: 2500, faults: motion.Faults{Underflow: 1}}
	log := logrus.New()
	log.SetOutput(io.Discard)
	return New(g, a, 100, log), g, a
}

func run(t *testing.T, c *Console, line string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	err := c.Execute(line, &buf)
	return buf.String(), err
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	var got []string
	reg.Register("echo", "<word>", "repeat a word", func(args []string, w io.Writer) error {
		got = args
		return nil
	})
	reg.Register("echo", "", "", nil)

	if reg.Count() != 1 {
		t.Errorf("Expected 1 command, got %d", reg.Count())
	}
	if err := reg.Dispatch(`ECHO "two words" x`, io.Discard); err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if len(got) != 2 || got[0] != "two words" {
		t.Errorf("Expected quoted argument kept together, got %q", got)
	}
	if err := reg.Dispatch("   ", io.Discard); err != nil {
		t.Errorf("Blank line should be ignored, got %v", err)
	}
	if err := reg.Dispatch("nope", io.Discard); errors.Cause(err) != ErrUnknownCommand {
		t.Errorf("Expected ErrUnknownCommand, got %v", err)
	}
	if !strings.Contains(reg.Help(), "echo <word> - repeat a word") {
		t.Errorf("Unexpected help %q", reg.Help())
	}
}

func TestConsoleCommandsRegistered(t *testing.T) {
	c, _, _ := newTestConsole()
	want := []string{"events", "faults", "help", "home", "length", "speed", "status", "width", "zero"}
	names := c.Registry().Names()
	if strings.Join(names, ",") != strings.Join(want, ",") {
		t.Errorf("Expected commands %v, got %v", want, names)
	}
}

func TestConsoleStatus(t *testing.T) {
	c, g, _ := newTestConsole()

	out, err := run(t, c, "status")
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	for _, want := range []string{"state: ready", "12.50mm (1250 steps)", "layer: 2 direction: left", "width: 90.0mm", "ok"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected %q in status output:\n%s", want, out)
		}
	}

	g.status.Ready = false
	g.status.Fault = "homing timed out"
	out, _ = run(t, c, "status")
	if !strings.Contains(out, "state: not ready") || !strings.Contains(out, "fault: homing timed out") {
		t.Errorf("Expected fault in status output:\n%s", out)
	}
}

func TestConsoleWidth(t *testing.T) {
	c, g, _ := newTestConsole()

	out, err := run(t, c, "width 45.5")
	if err != nil {
		t.Fatalf("width failed: %v", err)
	}
	if g.width != 45.5 || !strings.Contains(out, "width: 45.5mm") {
		t.Errorf("Expected width 45.5, got %g (%q)", g.width, out)
	}

	testCases := []string{"width abc", "width 1 2", "width 150"}
	for _, line := range testCases {
		out, err := run(t, c, line)
		if err == nil || !strings.HasPrefix(out, "error: ") {
			t.Errorf("%q: expected error reply, got %q", line, out)
		}
	}
	if g.width != 45.5 {
		t.Errorf("Rejected widths must not change the width, got %g", g.width)
	}
}

func TestConsoleLength(t *testing.T) {
	c, g, _ := newTestConsole()

	out, err := run(t, c, "length 4000")
	if err != nil {
		t.Fatalf("length failed: %v", err)
	}
	if g.lengthMm != 4000 || !strings.Contains(out, "width: 30.0mm") {
		t.Errorf("Unexpected length reply %q", out)
	}
	if _, err := run(t, c, "length"); errors.Cause(err) != ErrUsage {
		t.Errorf("Expected ErrUsage, got %v", err)
	}
	if _, err := run(t, c, "length -3"); errors.Cause(err) != ErrUsage {
		t.Errorf("Expected ErrUsage for negative length, got %v", err)
	}
}

func TestConsoleSpeed(t *testing.T) {
	c, _, a := newTestConsole()

	out, _ := run(t, c, "speed")
	if !strings.Contains(out, "speed: 25.0mm/s") {
		t.Errorf("Unexpected speed reply %q", out)
	}
	if _, err := run(t, c, "speed 12"); err != nil {
		t.Fatalf("speed failed: %v", err)
	}
	if a.speed != 1200 {
		t.Errorf("Expected 1200 steps/s, got %g", a.speed)
	}
	if _, err := run(t, c, "speed 0"); errors.Cause(err) != ErrUsage {
		t.Errorf("Expected ErrUsage for zero speed, got %v", err)
	}
}

func TestConsoleHomeAndZero(t *testing.T) {
	c, g, _ := newTestConsole()

	out, _ := run(t, c, "home")
	if g.homes != 1 || !strings.Contains(out, "home requested") {
		t.Errorf("Unexpected home reply %q", out)
	}
	out, _ = run(t, c, "zero")
	if g.zeros != 1 || !strings.Contains(out, "zero requested") {
		t.Errorf("Unexpected zero reply %q", out)
	}

	g.pending = true
	out, _ = run(t, c, "zero")
	if !strings.Contains(out, "zero already pending") {
		t.Errorf("Expected pending reply, got %q", out)
	}

	g.status.Ready = false
	if _, err := run(t, c, "zero"); errors.Cause(err) != guide.ErrNotReady {
		t.Errorf("Expected ErrNotReady, got %v", err)
	}
}

func TestConsoleFaultsAndEvents(t *testing.T) {
	c, g, _ := newTestConsole()
	g.status.RangeFaults = 4

	out, _ := run(t, c, "faults")
	if !strings.Contains(out, "underflow: 1") || !strings.Contains(out, "empty_range: 4") {
		t.Errorf("Unexpected faults reply %q", out)
	}
	out, _ = run(t, c, "events")
	if !strings.Contains(out, "=== EVENTS (0) ===") {
		t.Errorf("Unexpected events reply %q", out)
	}
}

func TestConsoleServe(t *testing.T) {
	c, g, _ := newTestConsole()

	in := strings.NewReader("width 60\r\n\nbogus\nhelp\n")
	var out bytes.Buffer
	if err := c.Serve(context.Background(), in, &out); err != nil {
		t.Fatalf("Serve failed: %v", err)
	}

	if g.width != 60 {
		t.Errorf("Expected width 60, got %g", g.width)
	}
	text := out.String()
	if !strings.Contains(text, "error: bogus: unknown command") {
		t.Errorf("Expected unknown command error in %q", text)
	}
	if strings.Count(text, "ok\n") != 2 {
		t.Errorf("Expected two ok replies in %q", text)
	}
}

func TestConsoleServeCancelled(t *testing.T) {
	c, _, _ := newTestConsole()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.Serve(ctx, strings.NewReader("status\n"), io.Discard); err != context.Canceled {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}
