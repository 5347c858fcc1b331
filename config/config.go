// Package config loads the fingerprint server settings. Values start from the
// struct tag defaults, are overlaid from an optional TOML file and finally
// from FP_* environment variables.
package config

import (
	"errors"
	"fmt"
	"math"
	"runtime"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/mcuadros/go-defaults"

	fingerprint "github.com/high-horse/fingerprint-server"
	"github.com/high-horse/fingerprint-server/extract"
)

type Config struct {
	Server    Server    `toml:"server"`
	Matching  Matching  `toml:"matching"`
	Quality   Quality   `toml:"quality"`
	Extract   Extract   `toml:"extract"`
	Template  Template  `toml:"template"`
	Log       Log       `toml:"log"`
	RateLimit RateLimit `toml:"rate_limit"`
}

type Server struct {
	Addr            string        `toml:"addr" default:":9090"`
	BodyLimitMB     int           `toml:"body_limit_mb" default:"16"`
	ReadTimeout     time.Duration `toml:"read_timeout" default:"30s"`
	WriteTimeout    time.Duration `toml:"write_timeout" default:"30s"`
	ShutdownTimeout time.Duration `toml:"shutdown_timeout" default:"10s"`
	AllowOrigins    string        `toml:"allow_origins" default:"*"`
}

// Matching angles are configured in degrees.
type Matching struct {
	DecisionThreshold       float64       `toml:"decision_threshold" default:"0.45"`
	AmbiguityMargin         float64       `toml:"ambiguity_margin" default:"0.05"`
	MaxRotationDeg          float64       `toml:"max_rotation_deg" default:"30"`
	RotationStepDeg         float64       `toml:"rotation_step_deg" default:"2"`
	DistanceTolerance       float64       `toml:"distance_tolerance" default:"10"`
	OrientationToleranceDeg float64       `toml:"orientation_tolerance_deg" default:"30"`
	Workers                 int           `toml:"workers" default:"0"`
	ReportCandidates        int           `toml:"report_candidates" default:"3"`
	Timeout                 time.Duration `toml:"timeout" default:"10s"`
}

type Quality struct {
	MinMinutiae int     `toml:"min_minutiae" default:"12"`
	Threshold   float64 `toml:"threshold" default:"0.5"`
}

type Extract struct {
	MaxMinutiae  int `toml:"max_minutiae" default:"50"`
	BorderMargin int `toml:"border_margin" default:"12"`
	MinSpacing   int `toml:"min_spacing" default:"6"`
}

type Template struct {
	Format string `toml:"format" default:"json"`
}

type Log struct {
	Level        string        `toml:"level" default:"info"`
	Dir          string        `toml:"dir"`
	NoColors     bool          `toml:"no_colors" default:"false"`
	MaxAge       time.Duration `toml:"max_age" default:"168h"`
	RotationTime time.Duration `toml:"rotation_time" default:"24h"`
}

type RateLimit struct {
	Enabled bool          `toml:"enabled" default:"true"`
	RPS     float64       `toml:"rps" default:"50"`
	Burst   int           `toml:"burst" default:"100"`
	IdleTTL time.Duration `toml:"idle_ttl" default:"10m"`
}

// LoadDefaultConfig returns the built-in defaults.
func LoadDefaultConfig() *Config {
	cfg := new(Config)
	defaults.SetDefaults(cfg)
	return cfg
}

// Load builds the configuration. path may be empty, in which case only
// defaults and the environment apply. Unknown TOML keys are an error.
func Load(path string, env func(string) (string, bool)) (*Config, error) {
	cfg := LoadDefaultConfig()
	if path != "" {
		md, err := toml.DecodeFile(path, cfg)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			return nil, fmt.Errorf("config %s: unknown keys %s", path, strings.Join(keys, ", "))
		}
	}
	if env != nil {
		if err := applyEnv(cfg, env); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.Server.Addr != "", "server.addr is required")
	check(c.Server.BodyLimitMB > 0, "server.body_limit_mb must be positive")
	check(c.Server.ReadTimeout > 0, "server.read_timeout must be positive")
	check(c.Server.WriteTimeout > 0, "server.write_timeout must be positive")

	m := c.Matching
	check(inUnit(m.DecisionThreshold), "matching.decision_threshold %v outside [0,1]", m.DecisionThreshold)
	check(inUnit(m.AmbiguityMargin), "matching.ambiguity_margin %v outside [0,1]", m.AmbiguityMargin)
	check(m.MaxRotationDeg >= 0 && m.MaxRotationDeg <= 180, "matching.max_rotation_deg %v outside [0,180]", m.MaxRotationDeg)
	check(m.RotationStepDeg > 0, "matching.rotation_step_deg must be positive")
	check(m.DistanceTolerance > 0, "matching.distance_tolerance must be positive")
	check(m.OrientationToleranceDeg > 0 && m.OrientationToleranceDeg <= 180,
		"matching.orientation_tolerance_deg %v outside (0,180]", m.OrientationToleranceDeg)
	check(m.Workers >= 0, "matching.workers must not be negative")
	check(m.ReportCandidates >= 0, "matching.report_candidates must not be negative")
	check(m.Timeout > 0, "matching.timeout must be positive")

	check(c.Quality.MinMinutiae > 0, "quality.min_minutiae must be positive")
	check(inUnit(c.Quality.Threshold), "quality.threshold %v outside [0,1]", c.Quality.Threshold)

	check(c.Extract.MaxMinutiae > c.Quality.MinMinutiae,
		"extract.max_minutiae %d must exceed quality.min_minutiae %d", c.Extract.MaxMinutiae, c.Quality.MinMinutiae)
	check(c.Extract.BorderMargin >= 0, "extract.border_margin must not be negative")
	check(c.Extract.MinSpacing >= 0, "extract.min_spacing must not be negative")

	if _, err := fingerprint.ParseFormat(c.Template.Format); err != nil {
		errs = append(errs, fmt.Errorf("template.format: %w", err))
	}

	if c.RateLimit.Enabled {
		check(c.RateLimit.RPS > 0, "rate_limit.rps must be positive")
		check(c.RateLimit.Burst > 0, "rate_limit.burst must be positive")
		check(c.RateLimit.IdleTTL > 0, "rate_limit.idle_ttl must be positive")
	}
	return errors.Join(errs...)
}

// ToPolicy converts the matching and quality sections into engine values.
func (c *Config) ToPolicy() fingerprint.Policy {
	workers := c.Matching.Workers
	if workers == 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return fingerprint.Policy{
		Quality: fingerprint.QualityPolicy{
			MinMinutiae: c.Quality.MinMinutiae,
			Threshold:   c.Quality.Threshold,
		},
		Match: fingerprint.MatchParams{
			MaxRotation:          radians(c.Matching.MaxRotationDeg),
			RotationStep:         radians(c.Matching.RotationStepDeg),
			DistanceTolerance:    c.Matching.DistanceTolerance,
			OrientationTolerance: radians(c.Matching.OrientationToleranceDeg),
		},
		DecisionThreshold: c.Matching.DecisionThreshold,
		AmbiguityMargin:   c.Matching.AmbiguityMargin,
		Workers:           workers,
		ReportCandidates:  c.Matching.ReportCandidates,
	}
}

// ToExtractOptions converts the extract section for extract.NewCreator.
func (c *Config) ToExtractOptions() extract.Options {
	return extract.Options{
		MaxMinutiae:  c.Extract.MaxMinutiae,
		BorderMargin: c.Extract.BorderMargin,
		MinSpacing:   c.Extract.MinSpacing,
	}
}

// Codec returns the template codec selected by template.format.
func (c *Config) Codec() fingerprint.Codec {
	f, _ := fingerprint.ParseFormat(c.Template.Format)
	return fingerprint.Codec{Format: f}
}

func inUnit(v float64) bool {
	return v >= 0 && v <= 1
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}
