package timer

import "time"

const (
	DefaultInactivityTimeout = 30 * time.Minute
	DefaultSweepInterval     = 5 * time.Minute
	DefaultWatchInterval     = time.Second
)

// Config tunes the lifecycle timings. Zero values fall back to defaults.
type Config struct {
	// InactivityTimeout is how long a room with no connected users may sit
	// idle before eviction. Rooms inactive for four times this value are
	// evicted regardless of connected users.
	InactivityTimeout time.Duration

	// SweepInterval is the reaper period.
	SweepInterval time.Duration

	// WatchInterval is how often a running room is rechecked for completion.
	WatchInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.InactivityTimeout <= 0 {
		c.InactivityTimeout = DefaultInactivityTimeout
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = DefaultSweepInterval
	}
	if c.WatchInterval <= 0 {
		c.WatchInterval = DefaultWatchInterval
	}
	return c
}
