// Package config layers the run configuration: built-in defaults, an optional
// YAML file, ODTS_* environment variables and command-line flags, in
// increasing order of precedence.
package config

import (
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/cwbudde/odts/internal/lm"
)

// EnvPrefix is the prefix of environment overrides, e.g. ODTS_SOLVER_TOLERANCE.
const EnvPrefix = "ODTS"

// Configuration keys.
const (
	KeyStartX            = "start.x"
	KeyStartY            = "start.y"
	KeyStartSearch       = "start.search"
	KeyDamping           = "solver.damping"
	KeyDampingUp         = "solver.damping_up"
	KeyDampingDown       = "solver.damping_down"
	KeyMaxDamping        = "solver.max_damping"
	KeyMaxIterations     = "solver.max_iterations"
	KeyTolerance         = "solver.tolerance"
	KeySingularTolerance = "solver.singular_tolerance"
	KeyImprovement       = "solver.improvement_margin"
	KeyDataDir           = "output.data_dir"
	KeyCSV               = "output.csv"
	KeySQLite            = "output.sqlite"
	KeyServerAddr        = "server.addr"
	KeyLogLevel          = "log_level"
)

// Settings is the effective configuration.
type Settings struct {
	Start    StartSettings  `yaml:"start"`
	Solver   SolverSettings `yaml:"solver"`
	Output   OutputSettings `yaml:"output"`
	Server   ServerSettings `yaml:"server"`
	LogLevel string         `yaml:"log_level"`
}

type StartSettings struct {
	X      float64 `yaml:"x"`
	Y      float64 `yaml:"y"`
	Search bool    `yaml:"search"`
}

type SolverSettings struct {
	Damping           float64 `yaml:"damping"`
	DampingUp         float64 `yaml:"damping_up"`
	DampingDown       float64 `yaml:"damping_down"`
	MaxDamping        float64 `yaml:"max_damping"`
	MaxIterations     int     `yaml:"max_iterations"`
	Tolerance         float64 `yaml:"tolerance"`
	SingularTolerance float64 `yaml:"singular_tolerance"`
	ImprovementMargin float64 `yaml:"improvement_margin"`
}

type OutputSettings struct {
	DataDir string `yaml:"data_dir"`
	CSV     bool   `yaml:"csv"`
	// SQLite is the database path; empty disables the SQLite audit store
	SQLite string `yaml:"sqlite"`
}

type ServerSettings struct {
	Addr string `yaml:"addr"`
}

// SetDefaults registers the built-in defaults on v.
func SetDefaults(v *viper.Viper) {
	d := lm.DefaultConfig()

	v.SetDefault(KeyStartX, 0.3)
	v.SetDefault(KeyStartY, 0.8)
	v.SetDefault(KeyStartSearch, false)

	v.SetDefault(KeyDamping, d.InitialDamping)
	v.SetDefault(KeyDampingUp, d.DampingUp)
	v.SetDefault(KeyDampingDown, d.DampingDown)
	v.SetDefault(KeyMaxDamping, d.MaxDamping)
	v.SetDefault(KeyMaxIterations, d.MaxIterations)
	v.SetDefault(KeyTolerance, d.Tolerance)
	v.SetDefault(KeySingularTolerance, d.SingularTolerance)
	v.SetDefault(KeyImprovement, d.ImprovementMargin)

	v.SetDefault(KeyDataDir, "./data")
	v.SetDefault(KeyCSV, false)
	v.SetDefault(KeySQLite, "")

	v.SetDefault(KeyServerAddr, "localhost:8080")
	v.SetDefault(KeyLogLevel, "info")
}

// New returns a viper instance with defaults and environment overrides
// registered. If path is non-empty the YAML file is read as well.
func New(path string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	return v, nil
}

// BindFlags binds each configuration key to the named flag of flags.
// Flags missing from the set are skipped.
func BindFlags(v *viper.Viper, flags *pflag.FlagSet, bindings map[string]string) error {
	for key, name := range bindings {
		flag := flags.Lookup(name)
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("failed to bind flag %s: %w", name, err)
		}
	}
	return nil
}

// Load reads the effective settings from v and validates them.
func Load(v *viper.Viper) (*Settings, error) {
	// Explicit getters keep float keys exact regardless of their source.
	s := &Settings{
		Start: StartSettings{
			X:      v.GetFloat64(KeyStartX),
			Y:      v.GetFloat64(KeyStartY),
			Search: v.GetBool(KeyStartSearch),
		},
		Solver: SolverSettings{
			Damping:           v.GetFloat64(KeyDamping),
			DampingUp:         v.GetFloat64(KeyDampingUp),
			DampingDown:       v.GetFloat64(KeyDampingDown),
			MaxDamping:        v.GetFloat64(KeyMaxDamping),
			MaxIterations:     v.GetInt(KeyMaxIterations),
			Tolerance:         v.GetFloat64(KeyTolerance),
			SingularTolerance: v.GetFloat64(KeySingularTolerance),
			ImprovementMargin: v.GetFloat64(KeyImprovement),
		},
		Output: OutputSettings{
			DataDir: v.GetString(KeyDataDir),
			CSV:     v.GetBool(KeyCSV),
			SQLite:  v.GetString(KeySQLite),
		},
		Server: ServerSettings{
			Addr: v.GetString(KeyServerAddr),
		},
		LogLevel: v.GetString(KeyLogLevel),
	}

	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return s, nil
}

// Validate checks the start point, the solver settings and the output directory.
func (s *Settings) Validate() error {
	if math.IsNaN(s.Start.X) || math.IsInf(s.Start.X, 0) ||
		math.IsNaN(s.Start.Y) || math.IsInf(s.Start.Y, 0) {
		return &lm.ValidationError{Field: "start", Reason: "must be finite"}
	}
	if err := s.LMConfig().Validate(); err != nil {
		return err
	}
	if s.Output.DataDir == "" {
		return &lm.ValidationError{Field: KeyDataDir, Reason: "cannot be empty"}
	}
	return nil
}

// LMConfig converts the solver settings to an engine configuration.
func (s *Settings) LMConfig() lm.Config {
	return lm.Config{
		InitialDamping:    s.Solver.Damping,
		DampingUp:         s.Solver.DampingUp,
		DampingDown:       s.Solver.DampingDown,
		MaxDamping:        s.Solver.MaxDamping,
		MaxIterations:     s.Solver.MaxIterations,
		Tolerance:         s.Solver.Tolerance,
		SingularTolerance: s.Solver.SingularTolerance,
		ImprovementMargin: s.Solver.ImprovementMargin,
	}
}

// Dump writes s as YAML.
func Dump(w io.Writer, s *Settings) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(s); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return enc.Close()
}
