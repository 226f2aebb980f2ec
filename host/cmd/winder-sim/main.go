package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/tarmac-project/hord/drivers/hashmap"

	"cablewinder/config"
	"cablewinder/core"
	"cablewinder/winder"
)

var (
	configPath string
	startMm    float64
	logLevel   string
)

func main() {
	root := &cobra.Command{
		Use:   "winder-sim",
		Short: "Run the winder against a simulated guide, encoder and supply",
		Long: `winder-sim runs the complete winder on the host. The guide carriage
has hard stops at 0 and the full axis travel, the encoder is advanced with
the console "feed" command and the supply voltage with "supply".`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          run,
	}
	root.Flags().StringVarP(&configPath, "config", "c", "", "Config file (.json, .yaml)")
	root.Flags().Float64Var(&startMm, "start-mm", 40, "Initial carriage position in mm")
	root.Flags().StringVar(&logLevel, "log-level", "", "Override the configured log level")

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	cfg := config.Default()
	if configPath != "" {
		var err error
		if cfg, err = config.LoadFile(configPath); err != nil {
			return err
		}
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	log, err := cfg.NewLogger(os.Stderr)
	if err != nil {
		return err
	}

	db, err := hashmap.Dial(hashmap.Config{})
	if err != nil {
		return errors.Wrap(err, "open store")
	}

	spm := cfg.Stepper.StepsPerMm
	sched := core.NewScheduler(cfg.Stepper.TimerFreq)
	// Step and dir go through the GPIO backend so pin errors show up as
	// they would on a board without PIO
	gpio := core.NewSimGPIO(false)
	carriage := core.NewSimCarriage(core.NewGPIOStepperBackend(gpio, nil), 0, int64(cfg.Guide.MaxTotalTravelMm*spm), int64(startMm*spm))
	enc := core.NewSimEncoder()
	adc := core.NewSimADC()
	adc.Set(core.ADCChannelID(cfg.Shutdown.ADCChannel), core.ADCValue(cfg.Shutdown.Threshold)+500)

	m, err := winder.NewManager(cfg, winder.Hardware{
		Sched:   sched,
		Stepper: carriage,
		Encoder: enc,
		ADC:     adc,
		DB:      db,
	}, log)
	if err != nil {
		return err
	}
	defer m.Close()

	registerSimCommands(m, carriage, enc, adc, cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go sched.RunRealtime(ctx)
	if err := m.Start(ctx); err != nil {
		return err
	}

	fmt.Println("winder-sim ready, type 'help' for commands")
	return m.Serve(ctx, os.Stdin, os.Stdout)
}
