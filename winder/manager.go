// Package winder wires the guide axis, planner, persistence, supply monitor
// and console of one cable winder.
package winder

import (
	"context"
	"io"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/tarmac-project/hord"

	"cablewinder/config"
	"cablewinder/console"
	"cablewinder/core"
	"cablewinder/guide"
	"cablewinder/motion"
	"cablewinder/persist"
	"cablewinder/shutdown"
)

// Hardware bundles the target specific drivers. ADC may be nil, in which
// case no supply monitor runs. DB may be nil, in which case nothing is
// persisted and homing always uses the full travel.
type Hardware struct {
	Sched   *core.Scheduler
	Stepper core.StepperBackend
	Encoder core.Encoder
	ADC     core.ADCDriver
	DB      hord.Database
}

// Manager coordinates all winder components
type Manager struct {
	cfg *config.Config
	hw  Hardware
	log logrus.FieldLogger

	axis     *motion.Axis
	planner  *guide.Planner
	store    *persist.Store
	detector *shutdown.Detector
	console  *console.Console

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewManager builds every component from cfg
func NewManager(cfg *config.Config, hw Hardware, log logrus.FieldLogger) (*Manager, error) {
	if cfg == nil {
		return nil, errors.New("winder: config is required")
	}
	if hw.Sched == nil || hw.Stepper == nil || hw.Encoder == nil {
		return nil, errors.New("winder: scheduler, stepper and encoder are required")
	}
	if log == nil {
		log = logrus.StandardLogger()
	}

	m := &Manager{cfg: cfg, hw: hw, log: log}

	spool, err := cfg.Spool()
	if err != nil {
		return nil, errors.Wrap(err, "spool geometry")
	}

	m.axis, err = motion.NewAxis(cfg.Axis(), hw.Sched, hw.Stepper, log)
	if err != nil {
		return nil, errors.Wrap(err, "guide axis")
	}

	var recovery guide.Recovery
	if hw.DB != nil {
		m.store, err = persist.New(hw.DB, log)
		if err != nil {
			return nil, errors.Wrap(err, "persistent store")
		}
		recovery = m.store
	} else {
		log.Warn("no persistent store, crash recovery disabled")
	}

	m.planner, err = guide.NewPlanner(cfg.Planner(), spool, m.axis, hw.Encoder, recovery, log)
	if err != nil {
		return nil, errors.Wrap(err, "guide planner")
	}

	if hw.ADC != nil && m.store != nil {
		m.detector, err = shutdown.New(cfg.Detector(), hw.ADC, m.planner, hw.Encoder, m.store, log)
		if err != nil {
			return nil, errors.Wrap(err, "supply monitor")
		}
	}

	m.console = console.New(m.planner, m.axis, cfg.Stepper.StepsPerMm, log)
	return m, nil
}

// Start homes the guide and runs the planner and supply monitor in the
// background. Homing runs on the planner loop; poll Ready to learn when the
// guide may be driven. A homing failure leaves the winder not ready until the
// console home command succeeds.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return errors.New("winder already running")
	}

	ctx, m.cancel = context.WithCancel(ctx)
	m.running = true

	m.planner.RequestHome()
	m.goRun(ctx, "planner", m.planner.Run)
	if m.detector != nil {
		m.goRun(ctx, "supply monitor", m.detector.Run)
	}
	m.log.Info("winder started")
	return nil
}

func (m *Manager) goRun(ctx context.Context, name string, run func(context.Context) error) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		if err := run(ctx); err != nil && errors.Cause(err) != context.Canceled {
			m.log.WithError(err).WithField("task", name).Error("task stopped")
		}
	}()
}

// Stop halts the background tasks, brings the guide to rest and saves its
// position
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return
	}
	m.cancel()
	m.wg.Wait()
	m.running = false

	m.axis.Stop()
	if err := m.axis.WaitForStop(context.Background(), 0); err != nil {
		m.log.WithError(err).Warn("guide did not come to rest")
	}
	if m.store != nil && m.planner.Ready() {
		pos := m.axis.Position()
		if err := m.store.SaveSnapshot(uint32(pos), m.hw.Encoder.CumulativeSteps()); err != nil {
			m.log.WithError(err).Error("save position on stop")
		}
	}
	m.log.Info("winder stopped")
}

// Close stops the winder and releases the store
func (m *Manager) Close() {
	m.Stop()
	if m.store != nil {
		m.store.Close()
	}
}

// Serve runs the operator console on r and w until EOF or ctx is done
func (m *Manager) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	return m.console.Serve(ctx, r, w)
}

// IsRunning returns whether the background tasks are running
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Ready reports whether the guide is homed and following the cable
func (m *Manager) Ready() bool {
	return m.planner.Ready()
}

// Status returns the planner state
func (m *Manager) Status() guide.Status {
	return m.planner.Status()
}

// Planner returns the guide planner
func (m *Manager) Planner() *guide.Planner {
	return m.planner
}

// Axis returns the guide axis
func (m *Manager) Axis() *motion.Axis {
	return m.axis
}

// Console returns the operator console
func (m *Manager) Console() *console.Console {
	return m.console
}
