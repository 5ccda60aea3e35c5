package config

import (
	"flag"
	"fmt"
	"runtime"
	"time"
)

// Dispatch modes.
const (
	ModePerformance = "performance" // per-core event loops + fast-route table
	ModeStandard    = "standard"    // net/http (h2c), fallback router only
)

// Config holds all application configuration.
type Config struct {
	Mode           string
	Addr           string
	Cores          int
	Backlog        int
	WorkersPerCore int
	NoDelay        bool
	GracePeriod    time.Duration
	Env            string
}

// New loads configuration from the environment, with flags as fallback.
// Environment variables take precedence over flag values.
func New() *Config {
	cfg := &Config{}

	flag.StringVar(&cfg.Mode, "mode", ModePerformance, "dispatch mode (performance/standard)")
	flag.StringVar(&cfg.Addr, "addr", ":8080", "listen address")
	flag.IntVar(&cfg.Cores, "cores", runtime.NumCPU(), "number of per-core listeners")
	flag.IntVar(&cfg.Backlog, "backlog", 8192, "accept backlog depth")
	flag.IntVar(&cfg.WorkersPerCore, "workers-per-core", 1, "worker threads per core (>1 enables work stealing)")
	flag.BoolVar(&cfg.NoDelay, "nodelay", true, "set TCP_NODELAY on accepted connections")
	flag.DurationVar(&cfg.GracePeriod, "grace", 5*time.Second, "shutdown grace period")
	flag.StringVar(&cfg.Env, "env", "development", "Environment (development/production)")

	flag.Parse()

	m := NewManager()
	m.LoadEnv("CHOPIN_")

	cfg.Mode = m.GetString("mode", cfg.Mode)
	cfg.Addr = m.GetString("addr", cfg.Addr)
	cfg.Cores = m.GetInt("cores", cfg.Cores)
	cfg.Backlog = m.GetInt("backlog", cfg.Backlog)
	cfg.WorkersPerCore = m.GetInt("workers_per_core", cfg.WorkersPerCore)
	cfg.NoDelay = m.GetBool("nodelay", cfg.NoDelay)
	cfg.GracePeriod = m.GetDuration("grace", cfg.GracePeriod)
	cfg.Env = m.GetString("env", cfg.Env)

	return cfg
}

// Validate reports the first invalid setting. Invalid configuration is a
// startup error: the caller aborts the process.
func (c *Config) Validate() error {
	switch c.Mode {
	case ModePerformance, ModeStandard:
	default:
		return fmt.Errorf("config: unknown mode %q", c.Mode)
	}
	if c.Addr == "" {
		return fmt.Errorf("config: empty listen address")
	}
	if c.Cores < 1 {
		return fmt.Errorf("config: cores must be >= 1, got %d", c.Cores)
	}
	if c.Backlog < 1 {
		return fmt.Errorf("config: backlog must be >= 1, got %d", c.Backlog)
	}
	if c.WorkersPerCore < 1 {
		return fmt.Errorf("config: workers per core must be >= 1, got %d", c.WorkersPerCore)
	}
	if c.GracePeriod < 0 {
		return fmt.Errorf("config: negative grace period %v", c.GracePeriod)
	}
	return nil
}
