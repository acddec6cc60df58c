package scheduler

import (
	"time"

	"github.com/smallbiznis/eventcover/internal/config"
)

// Config controls sweep intervals and batch sizes.
type Config struct {
	Enabled         bool
	RunInterval     time.Duration
	BatchSize       int
	StaleEventAfter time.Duration
	LockTTL         time.Duration
	EnabledJobs     []string
}

func DefaultConfig() Config {
	return Config{
		Enabled:         true,
		RunInterval:     time.Minute,
		BatchSize:       100,
		StaleEventAfter: 15 * time.Minute,
		LockTTL:         50 * time.Second,
	}
}

func ProvideConfig(cfg config.Config) Config {
	return Config{
		Enabled:         cfg.Scheduler.Enabled,
		RunInterval:     time.Duration(cfg.Scheduler.RunIntervalSeconds) * time.Second,
		BatchSize:       cfg.Scheduler.BatchSize,
		StaleEventAfter: time.Duration(cfg.Scheduler.StaleEventMinutes) * time.Minute,
		EnabledJobs:     cfg.Scheduler.Jobs,
	}.withDefaults()
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.StaleEventAfter <= 0 {
		c.StaleEventAfter = defaults.StaleEventAfter
	}
	if c.LockTTL <= 0 || c.LockTTL >= c.RunInterval {
		c.LockTTL = c.RunInterval * 5 / 6
	}
	return c
}
