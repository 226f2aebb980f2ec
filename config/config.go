package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"cablewinder/core"
	"cablewinder/guide"
	"cablewinder/kinematics"
	"cablewinder/motion"
	"cablewinder/shutdown"
)

// StepperConfig describes the guide stepper and its ramp
type StepperConfig struct {
	StepPin         uint32  `json:"step_pin" yaml:"step_pin"`
	DirPin          uint32  `json:"dir_pin" yaml:"dir_pin"`
	InvertStep      bool    `json:"invert_step" yaml:"invert_step"`
	InvertDir       bool    `json:"invert_dir" yaml:"invert_dir"`
	TimerFreq       uint32  `json:"timer_freq" yaml:"timer_freq"`
	StepsPerMm      float64 `json:"steps_per_mm" yaml:"steps_per_mm"`
	AccelInc        float64 `json:"accel_inc" yaml:"accel_inc"` // steps/s gained per step
	DecelInc        float64 `json:"decel_inc" yaml:"decel_inc"` // steps/s lost per step
	SpeedMinMmS     float64 `json:"speed_min_mm_s" yaml:"speed_min_mm_s"`
	SpeedDefaultMmS float64 `json:"speed_default_mm_s" yaml:"speed_default_mm_s"`
	HomingSpeedMmS  float64 `json:"homing_speed_mm_s" yaml:"homing_speed_mm_s"`
	PulseWidthUs    uint32  `json:"pulse_width_us" yaml:"pulse_width_us"`
}

// GuideConfig describes the guide travel and spool geometry
type GuideConfig struct {
	MinMm                float64                `json:"min_mm" yaml:"min_mm"`
	MaxMm                float64                `json:"max_mm" yaml:"max_mm"`
	MaxTotalTravelMm     float64                `json:"max_total_travel_mm" yaml:"max_total_travel_mm"`
	HomeAddMm            float64                `json:"home_add_mm" yaml:"home_add_mm"`
	ReelDiameterMm       float64                `json:"reel_diameter_mm" yaml:"reel_diameter_mm"`
	CablePitchMm         float64                `json:"cable_pitch_mm" yaml:"cable_pitch_mm"`
	LayerThicknessMm     float64                `json:"layer_thickness_mm" yaml:"layer_thickness_mm"`
	DefaultWidthMm       float64                `json:"default_width_mm" yaml:"default_width_mm"`
	MaxSelectableWidthMm float64                `json:"max_selectable_width_mm" yaml:"max_selectable_width_mm"`
	CycleMs              uint32                 `json:"cycle_ms" yaml:"cycle_ms"`
	MoveTimeoutMs        uint32                 `json:"move_timeout_ms" yaml:"move_timeout_ms"`
	HomingTimeoutMs      uint32                 `json:"homing_timeout_ms" yaml:"homing_timeout_ms"`
	DynamicWidth         bool                   `json:"dynamic_width" yaml:"dynamic_width"`
	WidthThresholds      []guide.WidthThreshold `json:"width_thresholds" yaml:"width_thresholds"`
}

// EncoderConfig describes the cable length encoder
type EncoderConfig struct {
	PinA          uint32  `json:"pin_a" yaml:"pin_a"`
	PinB          uint32  `json:"pin_b" yaml:"pin_b"`
	StepsPerMeter float64 `json:"steps_per_meter" yaml:"steps_per_meter"`
	Precision     int     `json:"precision" yaml:"precision"`
}

// ShutdownConfig describes the supply voltage monitor
type ShutdownConfig struct {
	ADCChannel uint8  `json:"adc_channel" yaml:"adc_channel"`
	Threshold  uint16 `json:"threshold" yaml:"threshold"`
	PollMs     uint32 `json:"poll_ms" yaml:"poll_ms"`
}

// ConsoleConfig describes the operator console port
type ConsoleConfig struct {
	Baud int `json:"baud" yaml:"baud"`
}

// LogConfig selects log level and output format
type LogConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"` // text or json
}

// Config is the complete winder configuration
type Config struct {
	Stepper  StepperConfig  `json:"stepper" yaml:"stepper"`
	Guide    GuideConfig    `json:"guide" yaml:"guide"`
	Encoder  EncoderConfig  `json:"encoder" yaml:"encoder"`
	Shutdown ShutdownConfig `json:"shutdown" yaml:"shutdown"`
	Console  ConsoleConfig  `json:"console" yaml:"console"`
	Log      LogConfig      `json:"log" yaml:"log"`
}

// Load parses a JSON configuration and fills in defaults
func Load(data []byte) (*Config, error) {
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "parse json config")
	}
	return finish(&cfg)
}

// LoadYAML parses a YAML configuration and fills in defaults
func LoadYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "parse yaml config")
	}
	return finish(&cfg)
}

// LoadFile reads a configuration file, picking the format by extension
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read config")
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return LoadYAML(data)
	case ".json":
		return Load(data)
	default:
		return nil, errors.Errorf("unsupported config format %q", filepath.Ext(path))
	}
}

func finish(cfg *Config) (*Config, error) {
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults fills in missing configuration values
func applyDefaults(cfg *Config) {
	s := &cfg.Stepper
	if s.StepPin == 0 && s.DirPin == 0 {
		s.StepPin = 2
		s.DirPin = 3
	}
	if s.TimerFreq == 0 {
		s.TimerFreq = core.TimerFreq
	}
	if s.StepsPerMm == 0 {
		s.StepsPerMm = 100
	}
	if s.AccelInc == 0 {
		s.AccelInc = 3
	}
	if s.DecelInc == 0 {
		s.DecelInc = 7
	}
	if s.SpeedMinMmS == 0 {
		s.SpeedMinMmS = 4
	}
	if s.SpeedDefaultMmS == 0 {
		s.SpeedDefaultMmS = 25
	}
	if s.HomingSpeedMmS == 0 {
		s.HomingSpeedMmS = s.SpeedDefaultMmS
	}
	if s.PulseWidthUs == 0 {
		s.PulseWidthUs = 2
	}

	g := &cfg.Guide
	if g.MaxMm == 0 {
		g.MaxMm = 90
	}
	if g.MaxTotalTravelMm == 0 {
		g.MaxTotalTravelMm = 103
	}
	if g.HomeAddMm == 0 {
		g.HomeAddMm = 20
	}
	if g.ReelDiameterMm == 0 {
		g.ReelDiameterMm = 160
	}
	if g.CablePitchMm == 0 {
		g.CablePitchMm = 6
	}
	if g.LayerThicknessMm == 0 {
		g.LayerThicknessMm = 5
	}
	if g.DefaultWidthMm == 0 {
		g.DefaultWidthMm = g.MaxMm
	}
	if g.MaxSelectableWidthMm == 0 {
		g.MaxSelectableWidthMm = 100
	}
	if g.CycleMs == 0 {
		g.CycleMs = 5
	}
	if g.HomingTimeoutMs == 0 {
		g.HomingTimeoutMs = 30000
	}
	if g.DynamicWidth && len(g.WidthThresholds) == 0 {
		g.WidthThresholds = []guide.WidthThreshold{
			{MaxLengthMm: 5000, WidthMm: 30},
			{MaxLengthMm: 20000, WidthMm: 60},
		}
	}

	e := &cfg.Encoder
	if e.PinA == 0 && e.PinB == 0 {
		e.PinA = 6
		e.PinB = 7
	}
	if e.StepsPerMeter == 0 {
		e.StepsPerMeter = 2118
	}
	if e.Precision == 0 {
		e.Precision = 4
	}

	if cfg.Shutdown.Threshold == 0 {
		cfg.Shutdown.Threshold = 3200
	}
	if cfg.Shutdown.PollMs == 0 {
		cfg.Shutdown.PollMs = 30
	}

	if cfg.Console.Baud == 0 {
		cfg.Console.Baud = 115200
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}

// Validate checks values that defaults cannot repair
func (c *Config) Validate() error {
	s := c.Stepper
	if s.StepPin == s.DirPin {
		return errors.Errorf("stepper: step and dir share pin %d", s.StepPin)
	}
	if s.SpeedDefaultMmS < s.SpeedMinMmS {
		return errors.Errorf("stepper: speed_default_mm_s %g below speed_min_mm_s %g", s.SpeedDefaultMmS, s.SpeedMinMmS)
	}
	if s.AccelInc < 0 || s.DecelInc < 0 {
		return errors.New("stepper: accel_inc and decel_inc must be positive")
	}

	g := c.Guide
	if g.MinMm < 0 {
		return errors.Errorf("guide: min_mm %g is negative", g.MinMm)
	}
	if g.MaxSelectableWidthMm <= g.MinMm {
		return errors.Errorf("guide: max_selectable_width_mm %g not above min_mm %g", g.MaxSelectableWidthMm, g.MinMm)
	}
	if g.DefaultWidthMm <= g.MinMm || g.DefaultWidthMm > g.MaxSelectableWidthMm {
		return errors.Errorf("guide: default_width_mm %g not in (%g, %g]", g.DefaultWidthMm, g.MinMm, g.MaxSelectableWidthMm)
	}
	if g.MaxTotalTravelMm < g.MaxSelectableWidthMm {
		return errors.Errorf("guide: max_total_travel_mm %g shorter than max_selectable_width_mm %g", g.MaxTotalTravelMm, g.MaxSelectableWidthMm)
	}
	for i, th := range g.WidthThresholds {
		if th.WidthMm <= g.MinMm || th.WidthMm > g.MaxSelectableWidthMm {
			return errors.Errorf("guide: width_thresholds[%d] width %gmm out of range", i, th.WidthMm)
		}
		if i > 0 && th.MaxLengthMm <= g.WidthThresholds[i-1].MaxLengthMm {
			return errors.Errorf("guide: width_thresholds must be sorted by max_length_mm")
		}
	}

	if c.Encoder.StepsPerMeter <= 0 {
		return errors.New("encoder: steps_per_meter must be positive")
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return errors.Errorf("log: unknown format %q", c.Log.Format)
	}
	return nil
}

func ms(v uint32) time.Duration {
	return time.Duration(v) * time.Millisecond
}

// Axis returns the guide axis parameters in steps
func (c *Config) Axis() motion.AxisConfig {
	s := c.Stepper
	return motion.AxisConfig{
		Name:         "guide",
		StepPin:      core.GPIOPin(s.StepPin),
		DirPin:       core.GPIOPin(s.DirPin),
		InvertStep:   s.InvertStep,
		InvertDir:    s.InvertDir,
		SpeedMin:     s.SpeedMinMmS * s.StepsPerMm,
		SpeedDefault: s.SpeedDefaultMmS * s.StepsPerMm,
		HomingSpeed:  s.HomingSpeedMmS * s.StepsPerMm,
		AccelInc:     s.AccelInc,
		DecelInc:     s.DecelInc,
	}
}

// Spool returns the spool geometry
func (c *Config) Spool() (*kinematics.Spool, error) {
	return kinematics.NewSpool(kinematics.Spool{
		ReelDiameterMm:   c.Guide.ReelDiameterMm,
		CablePitchMm:     c.Guide.CablePitchMm,
		LayerThicknessMm: c.Guide.LayerThicknessMm,
		StepsPerMm:       c.Stepper.StepsPerMm,
		EncoderStepsPerM: c.Encoder.StepsPerMeter,
	})
}

// Planner returns the guide planner parameters
func (c *Config) Planner() guide.Config {
	g := c.Guide
	return guide.Config{
		MinMm:                g.MinMm,
		MaxTotalTravelMm:     g.MaxTotalTravelMm,
		HomeAddMm:            g.HomeAddMm,
		DefaultWidthMm:       g.DefaultWidthMm,
		MaxSelectableWidthMm: g.MaxSelectableWidthMm,
		CycleInterval:        ms(g.CycleMs),
		MoveTimeout:          ms(g.MoveTimeoutMs),
		HomingTimeout:        ms(g.HomingTimeoutMs),
		DynamicWidth:         g.DynamicWidth,
		WidthThresholds:      g.WidthThresholds,
	}
}

// Detector returns the supply monitor parameters
func (c *Config) Detector() shutdown.Config {
	return shutdown.Config{
		Channel:      core.ADCChannelID(c.Shutdown.ADCChannel),
		Threshold:    core.ADCValue(c.Shutdown.Threshold),
		PollInterval: ms(c.Shutdown.PollMs),
	}
}

// Default returns the configuration of the reference winder
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}
