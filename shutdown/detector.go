package shutdown

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"cablewinder/core"
)

// Snapshotter persists the values needed after power comes back
type Snapshotter interface {
	SaveSnapshot(posSteps uint32, encoderSteps int64) error
}

// PositionSource reports the physical guide position
type PositionSource interface {
	AxisPositionSteps() int64
}

// Config selects the supply voltage channel and trip level
type Config struct {
	Channel      core.ADCChannelID
	Threshold    core.ADCValue
	PollInterval time.Duration
}

// Detector watches the supply voltage and writes a snapshot once when it
// drops below the threshold. The supply buffer holds the controller up long
// enough for one write.
type Detector struct {
	cfg   Config
	adc   core.ADCDriver
	guide PositionSource
	enc   core.Encoder
	store Snapshotter
	log   logrus.FieldLogger

	below      atomic.Bool
	saves      atomic.Uint32
	readErrors atomic.Uint32
}

// New creates a detector; call Run to start polling
func New(cfg Config, adc core.ADCDriver, guide PositionSource, enc core.Encoder, store Snapshotter, log logrus.FieldLogger) (*Detector, error) {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 30 * time.Millisecond
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	if err := adc.ConfigureChannel(cfg.Channel); err != nil {
		return nil, errors.Wrapf(err, "configure adc channel %d", cfg.Channel)
	}
	return &Detector{
		cfg:   cfg,
		adc:   adc,
		guide: guide,
		enc:   enc,
		store: store,
		log:   log.WithField("component", "shutdown"),
	}, nil
}

// Run polls the supply voltage until ctx is done
func (d *Detector) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			d.Poll()
		}
	}
}

// Poll takes one reading and reports whether it wrote a snapshot
func (d *Detector) Poll() bool {
	v, err := d.adc.ReadRaw(d.cfg.Channel)
	if err != nil {
		if d.readErrors.Add(1) == 1 {
			d.log.WithError(err).Error("supply voltage read failed")
		}
		return false
	}

	if v < d.cfg.Threshold {
		if d.below.Swap(true) {
			return false
		}
		pos := d.guide.AxisPositionSteps()
		if pos < 0 {
			pos = 0
		}
		enc := d.enc.CumulativeSteps()
		fields := logrus.Fields{
			"adc":       v,
			"threshold": d.cfg.Threshold,
			"pos_steps": pos,
			"encoder":   enc,
		}
		if err := d.store.SaveSnapshot(uint32(pos), enc); err != nil {
			d.log.WithFields(fields).WithError(err).Error("supply below threshold, snapshot failed")
			return false
		}
		d.saves.Add(1)
		d.log.WithFields(fields).Error("supply below threshold, wrote snapshot")
		return true
	}

	if d.below.Swap(false) {
		d.log.WithFields(logrus.Fields{
			"adc":       v,
			"threshold": d.cfg.Threshold,
		}).Error("supply above threshold again, check power supply or threshold")
	}
	return false
}

// Below reports whether the last reading was under the threshold
func (d *Detector) Below() bool {
	return d.below.Load()
}

// Saves returns how many snapshots were written
func (d *Detector) Saves() uint32 {
	return d.saves.Load()
}
