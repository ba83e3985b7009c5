// Package config implements the kernel.toml-driven configuration,
// registered onto a flag.FlagSet so command-line flags override file
// values.
package config

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds every runtime tunable for a booted kernel.
type Config struct {
	NumCPU              int           `toml:"num_cpu"`
	TimeSliceTicks      int           `toml:"time_slice_ticks"`
	MaxSiginfoPerSignal int           `toml:"max_siginfo_per_signal"`
	RCUGracePeriod      time.Duration `toml:"rcu_grace_period"`
	WorkqueueMinActive  int           `toml:"workqueue_min_active"`
	WorkqueueMaxActive  int           `toml:"workqueue_max_active"`
	JiffyInterval       time.Duration `toml:"jiffy_interval"`
}

// Default returns the configuration used when no kernel.toml is supplied.
func Default() *Config {
	return &Config{
		NumCPU:              4,
		TimeSliceTicks:      10,
		MaxSiginfoPerSignal: 8,
		RCUGracePeriod:      50 * time.Millisecond,
		WorkqueueMinActive:  1,
		WorkqueueMaxActive:  8,
		JiffyInterval:       time.Millisecond,
	}
}

// Load reads path (if non-empty) and overlays it onto Default.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("config: decoding %s: %w", path, err)
	}
	return cfg, nil
}

// RegisterFlags registers flags that override whatever kernel.toml set;
// flags always take precedence over file values.
func RegisterFlags(fs *flag.FlagSet, cfg *Config) {
	fs.IntVar(&cfg.NumCPU, "num-cpu", cfg.NumCPU, "number of virtual harts to bring up")
	fs.IntVar(&cfg.TimeSliceTicks, "time-slice-ticks", cfg.TimeSliceTicks, "ticks per scheduling quantum")
	fs.IntVar(&cfg.MaxSiginfoPerSignal, "max-siginfo-per-signal", cfg.MaxSiginfoPerSignal, "bounded per-signal pending queue depth")
	fs.DurationVar(&cfg.RCUGracePeriod, "rcu-grace-period", cfg.RCUGracePeriod, "target RCU grace period duration")
	fs.IntVar(&cfg.WorkqueueMinActive, "workqueue-min-active", cfg.WorkqueueMinActive, "minimum live workqueue workers")
	fs.IntVar(&cfg.WorkqueueMaxActive, "workqueue-max-active", cfg.WorkqueueMaxActive, "maximum live workqueue workers")
	fs.DurationVar(&cfg.JiffyInterval, "jiffy-interval", cfg.JiffyInterval, "wall-clock duration of one timer-wheel jiffy")
}

// LoadFromEnv is a convenience used by cmd/rvkernel: reads RVKERNEL_CONFIG
// if set, else falls back to Default.
func LoadFromEnv() (*Config, error) {
	return Load(os.Getenv("RVKERNEL_CONFIG"))
}
