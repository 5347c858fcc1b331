package config

import (
	"fmt"
	"strconv"
	"time"
)

// EnvPrefix is prepended to every environment key.
const EnvPrefix = "FP_"

type binding struct {
	key string
	set func(c *Config, v string) error
}

func str(dst func(*Config) *string) func(*Config, string) error {
	return func(c *Config, v string) error {
		*dst(c) = v
		return nil
	}
}

func integer(dst func(*Config) *int) func(*Config, string) error {
	return func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*dst(c) = n
		return nil
	}
}

func float(dst func(*Config) *float64) func(*Config, string) error {
	return func(c *Config, v string) error {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return err
		}
		*dst(c) = f
		return nil
	}
}

func boolean(dst func(*Config) *bool) func(*Config, string) error {
	return func(c *Config, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		*dst(c) = b
		return nil
	}
}

func duration(dst func(*Config) *time.Duration) func(*Config, string) error {
	return func(c *Config, v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		*dst(c) = d
		return nil
	}
}

var bindings = []binding{
	{"SERVER_ADDR", str(func(c *Config) *string { return &c.Server.Addr })},
	{"SERVER_BODY_LIMIT_MB", integer(func(c *Config) *int { return &c.Server.BodyLimitMB })},
	{"SERVER_READ_TIMEOUT", duration(func(c *Config) *time.Duration { return &c.Server.ReadTimeout })},
	{"SERVER_WRITE_TIMEOUT", duration(func(c *Config) *time.Duration { return &c.Server.WriteTimeout })},
	{"SERVER_ALLOW_ORIGINS", str(func(c *Config) *string { return &c.Server.AllowOrigins })},

	{"MATCH_THRESHOLD", float(func(c *Config) *float64 { return &c.Matching.DecisionThreshold })},
	{"AMBIGUITY_MARGIN", float(func(c *Config) *float64 { return &c.Matching.AmbiguityMargin })},
	{"MAX_ROTATION_DEG", float(func(c *Config) *float64 { return &c.Matching.MaxRotationDeg })},
	{"ROTATION_STEP_DEG", float(func(c *Config) *float64 { return &c.Matching.RotationStepDeg })},
	{"MAX_DISTANCE_THRESHOLD", float(func(c *Config) *float64 { return &c.Matching.DistanceTolerance })},
	{"ORIENTATION_TOLERANCE_DEG", float(func(c *Config) *float64 { return &c.Matching.OrientationToleranceDeg })},
	{"MATCH_WORKERS", integer(func(c *Config) *int { return &c.Matching.Workers })},
	{"MATCH_TIMEOUT", duration(func(c *Config) *time.Duration { return &c.Matching.Timeout })},

	{"MIN_MINUTIAE_POINTS", integer(func(c *Config) *int { return &c.Quality.MinMinutiae })},
	{"MIN_QUALITY_THRESHOLD", float(func(c *Config) *float64 { return &c.Quality.Threshold })},
	{"MAX_MINUTIAE_POINTS", integer(func(c *Config) *int { return &c.Extract.MaxMinutiae })},

	{"TEMPLATE_FORMAT", str(func(c *Config) *string { return &c.Template.Format })},

	{"LOG_LEVEL", str(func(c *Config) *string { return &c.Log.Level })},
	{"LOG_DIR", str(func(c *Config) *string { return &c.Log.Dir })},
	{"LOG_NO_COLORS", boolean(func(c *Config) *bool { return &c.Log.NoColors })},

	{"RATE_LIMIT_ENABLED", boolean(func(c *Config) *bool { return &c.RateLimit.Enabled })},
	{"RATE_LIMIT_RPS", float(func(c *Config) *float64 { return &c.RateLimit.RPS })},
	{"RATE_LIMIT_BURST", integer(func(c *Config) *int { return &c.RateLimit.Burst })},
}

func applyEnv(c *Config, lookup func(string) (string, bool)) error {
	for _, b := range bindings {
		v, ok := lookup(EnvPrefix + b.key)
		if !ok || v == "" {
			continue
		}
		if err := b.set(c, v); err != nil {
			return fmt.Errorf("env %s%s: %w", EnvPrefix, b.key, err)
		}
	}
	return nil
}
