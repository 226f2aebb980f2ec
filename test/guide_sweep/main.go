//go:build rp2040

package main

// Guide sweep bench test - moves the guide back and forth at several speeds
// Watch the carriage and the step pin on an oscilloscope

import (
	"context"
	"machine"
	"time"

	"github.com/sirupsen/logrus"

	"cablewinder/config"
	"cablewinder/core"
	"cablewinder/motion"
	piostepper "cablewinder/targets/pio"
)

// Cruise speeds to sweep, mm/s
var sweepSpeeds = []float64{4, 10, 25, 40}

// sweepMm is kept well inside the winding range so no homing is needed
const sweepMm = 20

func main() {
	time.Sleep(3 * time.Second)

	led := machine.LED
	led.Configure(machine.PinConfig{Mode: machine.PinOutput})

	cfg := config.Default()
	spm := cfg.Stepper.StepsPerMm

	println("=== Guide Sweep Test ===")
	println("Step:", cfg.Stepper.StepPin, "Dir:", cfg.Stepper.DirPin)

	stepper, err := piostepper.NewBackend(cfg.Stepper.PulseWidthUs)
	if err != nil {
		fail(led, err)
	}

	log := logrus.New()
	log.SetLevel(logrus.WarnLevel)
	sched := core.NewScheduler(cfg.Stepper.TimerFreq)
	axis, err := motion.NewAxis(cfg.Axis(), sched, stepper, log)
	if err != nil {
		fail(led, err)
	}

	go func() {
		for {
			sched.Dispatch(uint32(time.Now().UnixMicro()))
			time.Sleep(10 * time.Microsecond)
		}
	}()
	println("Init OK!")

	ctx := context.Background()
	cycle := 0
	for {
		cycle++
		println("\n=== Cycle", cycle, "===")

		for _, mmS := range sweepSpeeds {
			axis.SetSpeed(mmS * spm)
			println("Speed:", int(mmS), "mm/s")

			led.High()
			for _, target := range []int64{int64(sweepMm * spm), 0} {
				if err := axis.SetTargetPositionSteps(target); err != nil {
					fail(led, err)
				}
				if err := axis.WaitForStop(ctx, 0); err != nil {
					println("  wait:", err.Error())
				}
			}
			led.Low()

			f := axis.Faults()
			println("  position:", int(axis.Position()), "underflow:", int(f.Underflow))
			time.Sleep(500 * time.Millisecond)
		}
	}
}

func fail(led machine.Pin, err error) {
	println("Init error:", err.Error())
	for {
		led.High()
		time.Sleep(100 * time.Millisecond)
		led.Low()
		time.Sleep(100 * time.Millisecond)
	}
}
