// Package config loads and validates the simulator's configuration
// surface: fetch policy, queue sizes, trace-cache sizing, SMT
// scheduling parameters, and core/thread counts.
package config

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/kausin97/x86fetchsim/internal/simerr"
)

// FetchKind selects one of the three SMT fetch policies.
type FetchKind string

const (
	FetchShared        FetchKind = "shared"
	FetchTimeslice      FetchKind = "timeslice"
	FetchSwitchOnEvent FetchKind = "switchonevent"
)

// Config is the full recognized configuration surface.
type Config struct {
	FetchKind             FetchKind `yaml:"fetch_kind"`
	FetchQueueSize        int       `yaml:"fetch_queue_size"`
	TraceCachePresent     bool      `yaml:"trace_cache_present"`
	TraceCacheQueueSize   int       `yaml:"trace_cache_queue_size"`
	TraceCacheBranchMax   int       `yaml:"trace_cache_branch_max"`
	ThreadQuantum         uint64    `yaml:"thread_quantum"`
	ThreadSwitchPenalty   uint64    `yaml:"thread_switch_penalty"`
	NumThreads            int       `yaml:"num_threads"`
	NumCores              int       `yaml:"num_cores"`
	BlockSize             int       `yaml:"block_size"`
	MMUReportEnabled      bool      `yaml:"mmu_report_enabled"`
	TraceEnabled          bool      `yaml:"trace_enabled"`
	DrainToOOO            bool      `yaml:"drain_to_ooo"`
}

// Default returns the configuration used when no file is supplied, a
// small single-core single-thread setup convenient for demos and
// scenario tests.
func Default() *Config {
	return &Config{
		FetchKind:           FetchShared,
		FetchQueueSize:      16,
		TraceCachePresent:   false,
		TraceCacheQueueSize: 32,
		TraceCacheBranchMax: 4,
		ThreadQuantum:       100,
		ThreadSwitchPenalty: 5,
		NumThreads:          1,
		NumCores:            1,
		BlockSize:           64,
		MMUReportEnabled:    false,
		TraceEnabled:        false,
		DrainToOOO:          false,
	}
}

// Load reads and parses a YAML config file, defaulting fields that
// are absent from the document to Default()'s values.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, simerr.Wrap("config.Load", simerr.CodeConfigLoad, "reading config file", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, simerr.Wrap("config.Load", simerr.CodeConfigLoad, "parsing config file", err)
	}
	return cfg, nil
}

// Validate checks the configuration surface for internal consistency,
// returning a *simerr.Error describing the first violation found.
func (c *Config) Validate() error {
	switch c.FetchKind {
	case FetchShared, FetchTimeslice, FetchSwitchOnEvent:
	default:
		return simerr.New("Config.Validate", simerr.CodeInvalidFetchKind,
			"fetch_kind must be one of shared, timeslice, switchonevent")
	}
	if c.FetchQueueSize <= 0 {
		return simerr.New("Config.Validate", simerr.CodeInvalidSize, "fetch_queue_size must be positive")
	}
	if c.TraceCachePresent && c.TraceCacheQueueSize <= 0 {
		return simerr.New("Config.Validate", simerr.CodeInvalidSize, "trace_cache_queue_size must be positive when trace_cache_present")
	}
	if c.BlockSize <= 0 || (c.BlockSize&(c.BlockSize-1)) != 0 {
		return simerr.New("Config.Validate", simerr.CodeInvalidSize, "block_size must be a positive power of two")
	}
	if c.NumThreads <= 0 {
		return simerr.New("Config.Validate", simerr.CodeInvalidThreads, "num_threads must be positive")
	}
	if c.NumCores <= 0 {
		return simerr.New("Config.Validate", simerr.CodeInvalidCores, "num_cores must be positive")
	}
	return nil
}
