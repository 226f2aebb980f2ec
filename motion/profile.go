package motion

import (
	"math"
	"time"

	"github.com/pkg/errors"
)

// Profile is the ramp plan for one move. Step indices count from the start
// of the move.
type Profile struct {
	Distance       int64   // Total steps in the move
	AccelSteps     float64 // Steps spent ramping up; the ramp ends at this step
	DecelSteps     float64 // Steps spent ramping down to standstill
	DecelStartStep float64 // Distance - DecelSteps
	PeakSpeed      float64 // Highest speed reached, steps/s
	StartSpeed     float64 // Speed the move starts at, steps/s
	Triangular     bool    // Move too short to reach cruise speed
}

// CalcProfile derives the accel and decel distances for a move of distance
// steps, starting at current and cruising at cruise (steps/s), with accel and
// decel in steps/s². Moves too short to reach cruise get a reduced peak.
func CalcProfile(distance int64, cruise, accel, decel, current float64) (Profile, error) {
	if accel <= 0 || decel <= 0 {
		return Profile{}, errors.Errorf("invalid ramp rates accel=%g decel=%g", accel, decel)
	}
	if distance < 0 {
		return Profile{}, errors.Errorf("negative move distance %d", distance)
	}
	if distance == 0 {
		return Profile{StartSpeed: current}, nil
	}
	if current < 0 {
		current = 0
	}

	p := Profile{Distance: distance, StartSpeed: current, PeakSpeed: cruise}
	p.AccelSteps, p.DecelSteps = rampSteps(cruise, accel, decel, current)

	d := float64(distance)
	if d < p.AccelSteps+p.DecelSteps {
		p.Triangular = true
		p.PeakSpeed = math.Sqrt(2 * d * (accel * decel) / (accel + decel))
		p.AccelSteps, p.DecelSteps = rampSteps(p.PeakSpeed, accel, decel, current)
	}
	p.DecelStartStep = d - p.DecelSteps
	return p, nil
}

func rampSteps(cruise, accel, decel, current float64) (float64, float64) {
	var up float64
	if cruise > current {
		t := (cruise - current) / accel
		up = 0.5 * accel * t * t
	}
	t := cruise / decel
	return up, 0.5 * decel * t * t
}

// Duration estimates how long the move takes under continuous kinematics.
// It is used to size wait timeouts, not to time steps.
func (p Profile) Duration() time.Duration {
	if p.Distance == 0 || p.PeakSpeed <= 0 {
		return 0
	}
	var secs float64
	if p.AccelSteps > 0 {
		secs += 2 * p.AccelSteps / (p.StartSpeed + p.PeakSpeed)
	}
	secs += 2 * p.DecelSteps / p.PeakSpeed
	if cruise := float64(p.Distance) - p.AccelSteps - p.DecelSteps; cruise > 0 {
		secs += cruise / p.PeakSpeed
	}
	return time.Duration(secs * float64(time.Second))
}
