//go:build rp2040

package main

import (
	"context"
	"fmt"
	"io"
	"machine"
	"time"

	"github.com/sirupsen/logrus"

	"cablewinder/config"
	"cablewinder/core"
	"cablewinder/persist"
	"cablewinder/targets/pio"
	"cablewinder/winder"
)

// yield lets the planner and console goroutines run
func yield() {
	time.Sleep(10 * time.Microsecond)
}

func main() {
	// Disable a watchdog left running by a previous image
	if err := machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: 0}); err != nil {
		return
	}

	port := InitUSB()

	cfg := config.Default()
	log := logrus.New()
	log.SetOutput(port)
	log.SetFormatter(&logrus.TextFormatter{DisableColors: true, DisableTimestamp: true})

	stepper, err := pio.NewBackend(cfg.Stepper.PulseWidthUs)
	if err != nil {
		halt(log, err)
	}

	enc, err := newLengthEncoder(machine.Pin(cfg.Encoder.PinA), machine.Pin(cfg.Encoder.PinB), cfg.Encoder.Precision)
	if err != nil {
		halt(log, err)
	}

	sched := core.NewScheduler(cfg.Stepper.TimerFreq)
	m, err := winder.NewManager(cfg, winder.Hardware{
		Sched:   sched,
		Stepper: stepper,
		Encoder: enc,
		ADC:     NewRPAdcDriver(),
		DB:      persist.NewFlashDB(machine.Flash),
	}, log)
	if err != nil {
		halt(log, err)
	}

	if o, ok := stepper.(interface{ Overruns() uint32 }); ok {
		m.Console().Registry().Register("overruns", "", "steps dropped on a full PIO FIFO", func(args []string, w io.Writer) error {
			_, err := fmt.Fprintf(w, "overruns=%d\n", o.Overruns())
			return err
		})
	}

	ctx := context.Background()
	if err := m.Start(ctx); err != nil {
		halt(log, err)
	}
	go func() {
		if err := m.Serve(ctx, port, port); err != nil {
			log.WithError(err).Error("console stopped")
		}
	}()

	// Step loop: the scheduler runs against the microsecond counter
	for {
		sched.Dispatch(GetHardwareTime())
		yield()
	}
}

// halt reports a startup failure forever so it can be read from the console
func halt(log logrus.FieldLogger, err error) {
	for {
		log.WithError(err).Error("startup failed")
		time.Sleep(5 * time.Second)
	}
}
