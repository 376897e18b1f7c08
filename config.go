package qbridge

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// RetryConfig configures how the job pool retries failing backend calls.
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	Initial     time.Duration `yaml:"initial"`
}

// BreakerConfig configures the per-backend circuit breaker.
type BreakerConfig struct {
	MaxFailures  int           `yaml:"max_failures"`
	ResetTimeout time.Duration `yaml:"reset_timeout"`
	HalfOpenMax  int           `yaml:"half_open_max"`
}

// RateLimitConfig configures the token bucket guarding the HTTP surface.
type RateLimitConfig struct {
	Burst  int           `yaml:"burst"`
	Refill time.Duration `yaml:"refill"`
}

// BackPressureConfig configures when a congested job pool refuses new jobs.
type BackPressureConfig struct {
	MaxQueue      int           `yaml:"max_queue"`
	TargetLatency time.Duration `yaml:"target_latency"`
}

type Config struct {
	DefaultShots      int                `yaml:"default_shots"`
	MaxQubits         int                `yaml:"max_qubits"`
	MemoryCeiling     uint64             `yaml:"memory_ceiling"`
	MemoryFraction    float64            `yaml:"memory_fraction"`
	SampleWorkers     int                `yaml:"sample_workers"`
	MinShotsPerWorker int                `yaml:"min_shots_per_worker"`
	Seed              uint64             `yaml:"seed"`
	Workers           int                `yaml:"workers"`
	SchedulingTimeout time.Duration      `yaml:"scheduling_timeout"`
	JobTimeout        time.Duration      `yaml:"job_timeout"`
	Backend           string             `yaml:"backend"`
	Addr              string             `yaml:"addr"`
	Retry             RetryConfig        `yaml:"retry"`
	Breaker           BreakerConfig      `yaml:"breaker"`
	RateLimit         RateLimitConfig    `yaml:"rate_limit"`
	BackPressure      BackPressureConfig `yaml:"back_pressure"`
}

func NewConfig() *Config {
	return &Config{
		DefaultShots:      1024,
		MaxQubits:         24,
		MemoryCeiling:     1 << 30,
		MemoryFraction:    0.5,
		SampleWorkers:     runtime.NumCPU(),
		MinShotsPerWorker: 4096,
		Workers:           4,
		SchedulingTimeout: 10 * time.Second,
		JobTimeout:        30 * time.Second,
		Backend:           SimulatorBackendName,
		Addr:              ":8420",
		Retry: RetryConfig{
			MaxAttempts: 3,
			Initial:     100 * time.Millisecond,
		},
		Breaker: BreakerConfig{
			MaxFailures:  5,
			ResetTimeout: 30 * time.Second,
			HalfOpenMax:  1,
		},
		RateLimit: RateLimitConfig{
			Burst:  50,
			Refill: 20 * time.Millisecond,
		},
		BackPressure: BackPressureConfig{
			MaxQueue:      40,
			TargetLatency: 5 * time.Second,
		},
	}
}

/*
LoadConfig layers configuration sources over NewConfig defaults: the YAML file
at path (skipped when path is empty), then a .env file in the working
directory if one exists, then QBRIDGE_* environment variables.
*/
func LoadConfig(path string) (*Config, error) {
	cfg := NewConfig()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}

		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	// A missing .env is the normal case.
	_ = godotenv.Load()

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	return cfg, cfg.Validate()
}

func (c *Config) applyEnv() error {
	ints := map[string]*int{
		"QBRIDGE_DEFAULT_SHOTS":  &c.DefaultShots,
		"QBRIDGE_MAX_QUBITS":     &c.MaxQubits,
		"QBRIDGE_SAMPLE_WORKERS": &c.SampleWorkers,
		"QBRIDGE_WORKERS":        &c.Workers,
	}
	for key, dst := range ints {
		if v, ok := os.LookupEnv(key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = n
		}
	}

	uints := map[string]*uint64{
		"QBRIDGE_MEMORY_CEILING": &c.MemoryCeiling,
		"QBRIDGE_SEED":           &c.Seed,
	}
	for key, dst := range uints {
		if v, ok := os.LookupEnv(key); ok {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = n
		}
	}

	if v, ok := os.LookupEnv("QBRIDGE_BACKEND"); ok {
		c.Backend = v
	}
	if v, ok := os.LookupEnv("QBRIDGE_ADDR"); ok {
		c.Addr = v
	}

	return nil
}

// Validate rejects settings the simulator cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.DefaultShots <= 0:
		return validationErrorf("default_shots", "must be positive, got %d", c.DefaultShots)
	case c.MaxQubits <= 0 || c.MaxQubits > 62:
		return validationErrorf("max_qubits", "must be in [1, 62], got %d", c.MaxQubits)
	case c.MemoryFraction < 0 || c.MemoryFraction > 1:
		return validationErrorf("memory_fraction", "must be in [0, 1], got %v", c.MemoryFraction)
	case c.Workers <= 0:
		return validationErrorf("workers", "must be positive, got %d", c.Workers)
	}

	return nil
}

// sampleWorkers returns the configured sampling parallelism, at least 1.
func (c *Config) sampleWorkers() int {
	if c.SampleWorkers < 1 {
		return 1
	}
	return c.SampleWorkers
}

// minShotsPerWorker returns the smallest chunk worth a goroutine.
func (c *Config) minShotsPerWorker() int {
	if c.MinShotsPerWorker < 1 {
		return 4096
	}
	return c.MinShotsPerWorker
}
