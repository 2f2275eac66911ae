package risk

import (
	"fmt"
	"time"
)

// Config groups the engine limits and defaults. All limits must be positive;
// Validate is called by NewService before any component is constructed.
type Config struct {
	DefaultNTrials           int           // trials per run when the caller does not ask for a count
	MaxNTrials               int           // hard ceiling on trials per run
	DefaultParallelism       int           // concurrent trials per run when unspecified
	MaxParallelism           int           // hard ceiling on concurrent trials within one run
	MaxConcurrentSimulations int           // system-wide ceiling on in-flight simulation runs
	MaxTreeDepth             int           // maximum root-to-leaf depth accepted on construction or edit
	DefaultSeed              int64         // seed material when the caller does not provide one
	Admission                AdmissionPolicy // governor policy at the limit: queue (default) or reject
	CacheRetryAttempts       int           // bounded attempts for idempotent cache store operations
	CacheRetryBackoff        time.Duration // fixed delay between cache store retries
}

// DefaultConfig returns the limits used by the CLI when no config file is given.
func DefaultConfig() Config {
	return Config{
		DefaultNTrials:           10000,
		MaxNTrials:               1000000,
		DefaultParallelism:       8,
		MaxParallelism:           64,
		MaxConcurrentSimulations: 4,
		MaxTreeDepth:             32,
		DefaultSeed:              42,
		Admission:                PolicyQueue,
		CacheRetryAttempts:       3,
		CacheRetryBackoff:        50 * time.Millisecond,
	}
}

// Validate checks that every limit is positive and defaults do not exceed
// their ceilings.
func (c Config) Validate() error {
	if c.DefaultNTrials <= 0 || c.MaxNTrials <= 0 {
		return fmt.Errorf("trial counts must be positive, got default=%d max=%d", c.DefaultNTrials, c.MaxNTrials)
	}
	if c.DefaultNTrials > c.MaxNTrials {
		return fmt.Errorf("default_n_trials %d exceeds max_n_trials %d", c.DefaultNTrials, c.MaxNTrials)
	}
	if c.DefaultParallelism <= 0 || c.MaxParallelism <= 0 {
		return fmt.Errorf("parallelism must be positive, got default=%d max=%d", c.DefaultParallelism, c.MaxParallelism)
	}
	if c.DefaultParallelism > c.MaxParallelism {
		return fmt.Errorf("default_parallelism %d exceeds max_parallelism %d", c.DefaultParallelism, c.MaxParallelism)
	}
	if c.MaxConcurrentSimulations <= 0 {
		return fmt.Errorf("max_concurrent_simulations must be positive, got %d", c.MaxConcurrentSimulations)
	}
	if c.MaxTreeDepth <= 0 {
		return fmt.Errorf("max_tree_depth must be positive, got %d", c.MaxTreeDepth)
	}
	if c.Admission != PolicyQueue && c.Admission != PolicyReject {
		return fmt.Errorf("unknown admission policy %q", c.Admission)
	}
	if c.CacheRetryAttempts <= 0 {
		return fmt.Errorf("cache_retry_attempts must be positive, got %d", c.CacheRetryAttempts)
	}
	return nil
}
