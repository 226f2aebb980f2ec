package main

import (
	"fmt"
	"io"

	"github.com/pkg/errors"
	"github.com/spf13/cast"

	"cablewinder/config"
	"cablewinder/console"
	"cablewinder/core"
	"cablewinder/winder"
)

// registerSimCommands adds console commands that drive the simulated hardware
func registerSimCommands(m *winder.Manager, carriage *core.SimCarriage, enc *core.SimEncoder, adc *core.SimADC, cfg *config.Config) {
	reg := m.Console().Registry()
	spm := cfg.Stepper.StepsPerMm
	ch := core.ADCChannelID(cfg.Shutdown.ADCChannel)

	reg.Register("feed", "<mm>", "pay cable through the encoder", func(args []string, w io.Writer) error {
		if len(args) != 1 {
			return errors.Wrap(console.ErrUsage, "feed <mm>")
		}
		mm, err := cast.ToFloat64E(args[0])
		if err != nil {
			return errors.Wrap(console.ErrUsage, "feed <mm>")
		}
		steps := int64(mm / 1000 * cfg.Encoder.StepsPerMeter)
		enc.Add(steps)
		fmt.Fprintf(w, "encoder: %d steps\n", enc.CumulativeSteps())
		return nil
	})

	reg.Register("supply", "<raw>", "set the supply voltage reading", func(args []string, w io.Writer) error {
		if len(args) != 1 {
			return errors.Wrap(console.ErrUsage, "supply <raw>")
		}
		v, err := cast.ToUint16E(args[0])
		if err != nil {
			return errors.Wrap(console.ErrUsage, "supply <raw>")
		}
		adc.Set(ch, core.ADCValue(v))
		return nil
	})

	reg.Register("carriage", "", "show the simulated carriage", func(args []string, w io.Writer) error {
		fmt.Fprintf(w, "carriage: %.2fmm steps=%d stalls=%d reversals=%d\n",
			float64(carriage.Position())/spm, carriage.Steps(), carriage.Stalls(), carriage.DirectionChanges())
		return nil
	})
}
