// Package appconfig loads the Worker Loop's environment-driven
// configuration into a validated struct using struct-tag validation rules.
package appconfig

import (
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	pipeerrors "github.com/flowforge/pipeline/pkg/errors"
)

// Config is the Worker Loop's full runtime configuration.
type Config struct {
	// StoreDSN is the connection string for the persistent store. Required.
	// The literal value "memory" opts into the in-process store instead of
	// dialing Postgres, for local runs and demos.
	StoreDSN string `validate:"required"`

	// PollInterval is the worker's poll cadence. Default 5000ms.
	PollInterval time.Duration `validate:"required,min=1ms"`

	// MetricsInterval is loaded and validated, default 60000ms. No component
	// reads it: run metrics are recorded as each run completes, not flushed
	// on an interval.
	MetricsInterval time.Duration `validate:"required,min=1ms"`

	// RetryDelayMultiplier scales every backoff sleep; intended for test
	// harnesses that want to compress retry timing. Default 1.0.
	RetryDelayMultiplier float64 `validate:"required,gt=0"`

	// PipelineDir is the directory scanned for pipeline definition files.
	PipelineDir string `validate:"required"`

	// StuckRunThreshold is the age past which a running run is considered
	// interrupted. Default 10 minutes.
	StuckRunThreshold time.Duration `validate:"required,min=1s"`

	// ShutdownGrace bounds how long graceful shutdown waits for in-flight
	// work before force-exiting. Default 30 seconds.
	ShutdownGrace time.Duration `validate:"required,min=0s"`

	// AutoRecover runs recovery in recover-all mode at startup.
	AutoRecover bool
}

// ApplyDefaults fills every zero-valued field with its documented default.
func (c *Config) ApplyDefaults() {
	if c.PollInterval == 0 {
		c.PollInterval = 5 * time.Second
	}
	if c.MetricsInterval == 0 {
		c.MetricsInterval = 60 * time.Second
	}
	if c.RetryDelayMultiplier == 0 {
		c.RetryDelayMultiplier = 1.0
	}
	if c.PipelineDir == "" {
		c.PipelineDir = "./pipelines"
	}
	if c.StuckRunThreshold == 0 {
		c.StuckRunThreshold = 10 * time.Minute
	}
	if c.ShutdownGrace == 0 {
		c.ShutdownGrace = 30 * time.Second
	}
}

var (
	validatorOnce sync.Once
	validatorInst *validator.Validate
)

func getValidator() *validator.Validate {
	validatorOnce.Do(func() {
		validatorInst = validator.New()
	})
	return validatorInst
}

// Validate checks the configuration against its struct-tag rules, after
// defaults have already been applied.
func (c *Config) Validate() error {
	if err := getValidator().Struct(c); err != nil {
		return pipeerrors.NewValidationError("config", err.Error(), err)
	}
	return nil
}

// LoadFromEnv reads the Worker Loop's configuration from environment
// variables, applies defaults, and validates the result.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		StoreDSN:    os.Getenv("STORE_DSN"),
		PipelineDir: os.Getenv("PIPELINE_DIR"),
		AutoRecover: os.Getenv("AUTO_RECOVER") == "true",
	}

	var err error
	if cfg.PollInterval, err = durationFromMillisEnv("POLL_INTERVAL", 0); err != nil {
		return nil, err
	}
	if cfg.MetricsInterval, err = durationFromMillisEnv("METRICS_INTERVAL", 0); err != nil {
		return nil, err
	}
	if cfg.StuckRunThreshold, err = durationFromMillisEnv("STUCK_RUN_THRESHOLD", 0); err != nil {
		return nil, err
	}
	if cfg.ShutdownGrace, err = durationFromMillisEnv("SHUTDOWN_GRACE", 0); err != nil {
		return nil, err
	}
	if raw := os.Getenv("RETRY_DELAY_MULTIPLIER"); raw != "" {
		mult, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, pipeerrors.NewValidationError("RETRY_DELAY_MULTIPLIER", "must be a decimal", err)
		}
		cfg.RetryDelayMultiplier = mult
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func durationFromMillisEnv(name string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback, nil
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, pipeerrors.NewValidationError(name, fmt.Sprintf("must be an integer number of milliseconds, got %q", raw), err)
	}
	return time.Duration(ms) * time.Millisecond, nil
}
