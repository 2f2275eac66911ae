package cmd

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/risk-sim/risk-sim/risk"
)

// LoadConfig reads the engine config from an optional file with environment
// overrides (RISKSIM_*). An empty path returns the built-in defaults with
// env overrides still applied.
func LoadConfig(path string) (risk.Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("RISKSIM")
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return risk.Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := risk.Config{
		DefaultNTrials:           v.GetInt("default_n_trials"),
		MaxNTrials:               v.GetInt("max_n_trials"),
		DefaultParallelism:       v.GetInt("default_parallelism"),
		MaxParallelism:           v.GetInt("max_parallelism"),
		MaxConcurrentSimulations: v.GetInt("max_concurrent_simulations"),
		MaxTreeDepth:             v.GetInt("max_tree_depth"),
		DefaultSeed:              v.GetInt64("default_seed"),
		Admission:                risk.AdmissionPolicy(v.GetString("admission_policy")),
		CacheRetryAttempts:       v.GetInt("cache_retry_attempts"),
		CacheRetryBackoff:        v.GetDuration("cache_retry_backoff"),
	}
	if err := cfg.Validate(); err != nil {
		return risk.Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	d := risk.DefaultConfig()
	v.SetDefault("default_n_trials", d.DefaultNTrials)
	v.SetDefault("max_n_trials", d.MaxNTrials)
	v.SetDefault("default_parallelism", d.DefaultParallelism)
	v.SetDefault("max_parallelism", d.MaxParallelism)
	v.SetDefault("max_concurrent_simulations", d.MaxConcurrentSimulations)
	v.SetDefault("max_tree_depth", d.MaxTreeDepth)
	v.SetDefault("default_seed", d.DefaultSeed)
	v.SetDefault("admission_policy", string(d.Admission))
	v.SetDefault("cache_retry_attempts", d.CacheRetryAttempts)
	v.SetDefault("cache_retry_backoff", d.CacheRetryBackoff)
}
