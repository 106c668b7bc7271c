package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"strings"

	"github.com/akmonengine/tether/actor"
	"github.com/akmonengine/tether/constraint"
	"github.com/akmonengine/tether/linalg"
	"github.com/go-gl/mathgl/mgl64"
	"github.com/lmittmann/tint"
	"gopkg.in/yaml.v3"
)

const (
	DefaultMaxError          = 1e-6
	DefaultMaxIter           = 20
	DefaultMaxCollisionLoops = 3
	DefaultNrSkip            = 0
	DefaultWorkers           = 1
)

var ErrInvalid = errors.New("config: invalid value")

type Config struct {
	Gravity    [3]float64    `yaml:"gravity"`
	Integrator string        `yaml:"integrator"`
	Workers    int           `yaml:"workers"`
	LogLevel   string        `yaml:"log_level"`
	Solver     SolverConfig  `yaml:"solver"`
	Contact    ContactConfig `yaml:"contact"`
}

// SolverConfig drives the constraint manager
type SolverConfig struct {
	MaxError          float64 `yaml:"max_error"`
	MaxIter           int     `yaml:"max_iter"`
	MaxCollisionLoops int     `yaml:"max_collision_loops"`
	// NrSkip is the number of frames that may reuse a Jacobian before it is
	// rebuilt, 0 rebuilds it on every correction
	NrSkip             int    `yaml:"nr_skip"`
	MinSolveMethod     string `yaml:"min_solve_method"`
	AnalyticalJacobian bool   `yaml:"analytical_jacobian"`
	Reorder            bool   `yaml:"reorder"`
	VelocityTerms      string `yaml:"velocity_terms"`
	MaxOsc             int    `yaml:"max_osc"`
}

type ContactConfig struct {
	Margin   float64 `yaml:"margin"`
	Bias     float64 `yaml:"bias"`
	CellSize float64 `yaml:"cell_size"`
	Cells    int     `yaml:"cells"`
}

func DefaultConfig() *Config {
	return &Config{
		Gravity:    [3]float64{0, -9.81, 0},
		Integrator: actor.Symplectic.Name,
		Workers:    DefaultWorkers,
		LogLevel:   "info",
		Solver: SolverConfig{
			MaxError:           DefaultMaxError,
			MaxIter:            DefaultMaxIter,
			MaxCollisionLoops:  DefaultMaxCollisionLoops,
			NrSkip:             DefaultNrSkip,
			MinSolveMethod:     linalg.MethodLU.String(),
			AnalyticalJacobian: true,
			Reorder:            true,
			VelocityTerms:      constraint.SoftAuto.String(),
			MaxOsc:             constraint.DefaultMaxOsc,
		},
		Contact: ContactConfig{
			Margin:   0.01,
			Bias:     constraint.DefaultPenetrationBias,
			CellSize: 2,
			Cells:    1024,
		},
	}
}

// Load reads a YAML file over the defaults
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := cfg.Parse(data); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse overlays YAML data on c and validates the result
func (c *Config) Parse(data []byte) error {
	if err := yaml.Unmarshal(data, c); err != nil {
		return err
	}
	return c.Validate()
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func (c *Config) Validate() error {
	for _, g := range c.Gravity {
		if math.IsNaN(g) || math.IsInf(g, 0) {
			return fmt.Errorf("%w: gravity %v", ErrInvalid, c.Gravity)
		}
	}
	if _, err := actor.ParseIntegrator(c.Integrator); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if c.Workers < 1 {
		return fmt.Errorf("%w: workers %d", ErrInvalid, c.Workers)
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}

	s := c.Solver
	switch {
	case !(s.MaxError > 0):
		return fmt.Errorf("%w: max_error %g", ErrInvalid, s.MaxError)
	case s.MaxIter < 1:
		return fmt.Errorf("%w: max_iter %d", ErrInvalid, s.MaxIter)
	case s.MaxCollisionLoops < 0:
		return fmt.Errorf("%w: max_collision_loops %d", ErrInvalid, s.MaxCollisionLoops)
	case s.NrSkip < 0:
		return fmt.Errorf("%w: nr_skip %d", ErrInvalid, s.NrSkip)
	case s.MaxOsc < 1:
		return fmt.Errorf("%w: max_osc %d", ErrInvalid, s.MaxOsc)
	}
	if _, err := linalg.ParseSolveMethod(s.MinSolveMethod); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if _, err := constraint.ParseSoftness(s.VelocityTerms); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	if c.Contact.Margin < 0 || c.Contact.Bias < 0 || c.Contact.Bias > 1 {
		return fmt.Errorf("%w: contact margin %g bias %g", ErrInvalid, c.Contact.Margin, c.Contact.Bias)
	}
	if !(c.Contact.CellSize > 0) || c.Contact.Cells < 1 {
		return fmt.Errorf("%w: contact grid %g x %d", ErrInvalid, c.Contact.CellSize, c.Contact.Cells)
	}
	return nil
}

// GravityVec returns the gravity as a vector
func (c *Config) GravityVec() mgl64.Vec3 {
	return mgl64.Vec3(c.Gravity)
}

// ParseLevel converts debug, info, warn or error into a slog level
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("%w: log level %q", ErrInvalid, name)
}

// NewLogger builds the diagnostic logger writing to w
func NewLogger(w io.Writer, level string) *slog.Logger {
	lvl, err := ParseLevel(level)
	if err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(tint.NewHandler(w, &tint.Options{
		Level:      lvl,
		TimeFormat: "15:04:05",
	}))
}
