package scheduler

import (
	"time"

	"github.com/fleetpass/fleetpass/internal/config"
)

// Config controls sweep interval, batch size, and the job lock lease.
type Config struct {
	RunInterval time.Duration
	BatchSize   int
	LockTTL     time.Duration
}

func DefaultConfig() Config {
	return Config{
		RunInterval: time.Hour,
		BatchSize:   500,
		LockTTL:     10 * time.Minute,
	}
}

func ProvideConfig(cfg config.Config) Config {
	out := DefaultConfig()
	if interval, err := time.ParseDuration(cfg.SweepInterval); err == nil && interval > 0 {
		out.RunInterval = interval
	}
	if cfg.SweepBatchSize > 0 {
		out.BatchSize = cfg.SweepBatchSize
	}
	return out
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.LockTTL <= 0 {
		c.LockTTL = defaults.LockTTL
	}
	return c
}
