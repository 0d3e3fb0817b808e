package capability

import (
	"fmt"
	"time"
)

// Config holds manager tunables.
type Config struct {
	// RetryDelay is how long to wait before re-checking after an abort, a
	// barrier failure or a failed probe.
	RetryDelay time.Duration

	// PhaseTimeout is the per-attempt timeout of capability requests.
	PhaseTimeout time.Duration

	// ProbeRetries is the retry budget of GET_RADIO_CAPABILITY.
	ProbeRetries int

	// RequestRetries is the retry budget of SET_RADIO_CAPABILITY. Failures
	// inside a transaction are not retried by the manager itself.
	RequestRetries int

	// MaxSlots bounds the number of records (and so the N! permutation set).
	MaxSlots int
}

// DefaultConfig returns the defaults applied by New.
func DefaultConfig() Config {
	return Config{
		RetryDelay:     200 * time.Millisecond,
		PhaseTimeout:   30 * time.Second,
		ProbeRetries:   3,
		RequestRetries: 0,
		MaxSlots:       4,
	}
}

// withDefaults fills zero fields from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.RetryDelay <= 0 {
		c.RetryDelay = d.RetryDelay
	}
	if c.PhaseTimeout <= 0 {
		c.PhaseTimeout = d.PhaseTimeout
	}
	if c.ProbeRetries < 0 {
		c.ProbeRetries = d.ProbeRetries
	}
	if c.RequestRetries < 0 {
		c.RequestRetries = 0
	}
	if c.MaxSlots <= 0 {
		c.MaxSlots = d.MaxSlots
	}
	return c
}

// Validate rejects configurations the manager cannot run with.
func (c Config) Validate() error {
	if c.MaxSlots > maxPermutationSlots {
		return fmt.Errorf("max slots %d exceeds limit %d", c.MaxSlots, maxPermutationSlots)
	}
	return nil
}
