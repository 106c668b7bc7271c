package config

import (
	"bytes"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should be valid: %v", err)
	}
	if cfg.Integrator != "symplectic" {
		t.Errorf("expected integrator symplectic, got %s", cfg.Integrator)
	}
	if cfg.Solver.MaxIter <= 0 {
		t.Error("max_iter should be positive")
	}
	if !cfg.Solver.AnalyticalJacobian {
		t.Error("analytical jacobian should be the default")
	}
	if g := cfg.GravityVec(); g.Y() >= 0 {
		t.Errorf("default gravity should point down, got %v", g)
	}
}

func TestParse_OverlaysDefaults(t *testing.T) {
	cfg := DefaultConfig()
	data := []byte(`
gravity: [0, -1, 0]
integrator: midpoint
solver:
  max_iter: 7
  min_solve_method: svd
  velocity_terms: hard
`)
	if err := cfg.Parse(data); err != nil {
		t.Fatalf("Parse: %v", err)
	}

	want := DefaultConfig()
	want.Gravity = [3]float64{0, -1, 0}
	want.Integrator = "midpoint"
	want.Solver.MaxIter = 7
	want.Solver.MinSolveMethod = "svd"
	want.Solver.VelocityTerms = "hard"

	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"unknown integrator", func(c *Config) { c.Integrator = "rk4" }},
		{"no integrator", func(c *Config) { c.Integrator = "" }},
		{"zero max_error", func(c *Config) { c.Solver.MaxError = 0 }},
		{"zero max_iter", func(c *Config) { c.Solver.MaxIter = 0 }},
		{"negative collision loops", func(c *Config) { c.Solver.MaxCollisionLoops = -1 }},
		{"negative nr_skip", func(c *Config) { c.Solver.NrSkip = -2 }},
		{"unknown solve method", func(c *Config) { c.Solver.MinSolveMethod = "qr" }},
		{"unknown velocity terms", func(c *Config) { c.Solver.VelocityTerms = "sometimes" }},
		{"zero max_osc", func(c *Config) { c.Solver.MaxOsc = 0 }},
		{"no workers", func(c *Config) { c.Workers = 0 }},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }},
		{"bias above one", func(c *Config) { c.Contact.Bias = 1.5 }},
		{"zero cell size", func(c *Config) { c.Contact.CellSize = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if !errors.Is(err, ErrInvalid) {
				t.Errorf("expected ErrInvalid, got %v", err)
			}
		})
	}
}

func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tether.yaml")

	cfg := DefaultConfig()
	cfg.Solver.NrSkip = 3
	cfg.Solver.Reorder = false
	cfg.Contact.Margin = 0.05

	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if diff := cmp.Diff(cfg, loaded); diff != "" {
		t.Errorf("round trip mismatch (-saved +loaded):\n%s", diff)
	}
}

func TestLoad_Errors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected ErrNotExist, got %v", err)
	}

	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("integrator: verlet\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); !errors.Is(err, ErrInvalid) {
		t.Errorf("expected ErrInvalid, got %v", err)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"", slog.LevelInfo},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.name)
		if err != nil {
			t.Errorf("ParseLevel(%q): %v", tt.name, err)
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "warn")

	logger.Info("hidden")
	logger.Warn("singular matrix", "size", 6)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("info message should be filtered at warn level")
	}
	if !strings.Contains(out, "singular matrix") || !strings.Contains(out, "size") {
		t.Errorf("warn message missing from output: %q", out)
	}
}
