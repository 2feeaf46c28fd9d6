package bulkscan

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config carries every key from spec.md §6. Flags set in cmd/bulkscan
// populate this struct directly; LoadYAML layers an optional config
// file underneath for unattended/batch runs, the way a teacher-style
// CLI would combine a config file with flag overrides.
type Config struct {
	NumThreads int `yaml:"num_threads"`

	MaxBadAllocErrors int           `yaml:"max_bad_alloc_errors"`
	RetrySeconds      time.Duration `yaml:"-"`
	RetrySecondsYAML  float64       `yaml:"retry_seconds"`

	MaxWaitTime time.Duration `yaml:"-"`
	MaxWaitYAML float64       `yaml:"max_wait_time"`

	OffsetStart uint64 `yaml:"opt_offset_start"`
	OffsetEnd   uint64 `yaml:"opt_offset_end"` // 0 means unset/no end gate
	PageStart   uint64 `yaml:"opt_page_start"`

	NotifyRate int  `yaml:"opt_notify_rate"`
	Quiet      bool `yaml:"opt_quiet"`

	ReportReadErrors bool `yaml:"opt_report_read_errors"`

	// SamplingFraction == 0 selects sequential mode (spec.md §4.2).
	SamplingFraction float64 `yaml:"sampling_fraction"`
	SamplingPasses   int     `yaml:"sampling_passes"`

	// SamplingSeed seeds the sampling-plan RNG. It is rebuilt fresh
	// from this seed on every pass (spec.md §4.3: "the plan is
	// independently rebuilt"), so every pass of a run replays the same
	// plan and the seen-set caps at the plan's cardinality regardless
	// of sampling_passes. Zero means derive a seed from the current
	// time, so distinct runs sample distinct blocks.
	SamplingSeed int64 `yaml:"sampling_seed"`

	// PageSize is the fixed logical page size in bytes.
	PageSize int `yaml:"page_size"`

	// EnableHash enables the rolling whole-image SHA-1 (spec.md §4.5).
	EnableHash bool `yaml:"enable_hash"`

	// MaxRecursionDepth bounds Position tag-segment depth; deeper
	// Recurse calls are refused and logged (spec.md §5, §9c).
	MaxRecursionDepth int `yaml:"max_recursion_depth"`
}

// DefaultConfig returns sensible defaults matching the teacher's
// DefaultParams idiom (backend.go).
func DefaultConfig() Config {
	return Config{
		NumThreads:        4,
		MaxBadAllocErrors: 3,
		RetrySeconds:      1 * time.Second,
		MaxWaitTime:       5 * time.Minute,
		NotifyRate:        256,
		PageSize:          4096,
		SamplingPasses:    1,
		MaxRecursionDepth: 7,
	}
}

// LoadYAML reads a YAML config file and layers it on top of
// DefaultConfig, returning the merged Config. A missing file is not an
// error; Config.Validate still runs against whatever results.
func LoadYAML(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	if cfg.RetrySecondsYAML > 0 {
		cfg.RetrySeconds = time.Duration(cfg.RetrySecondsYAML * float64(time.Second))
	}
	if cfg.MaxWaitYAML > 0 {
		cfg.MaxWaitTime = time.Duration(cfg.MaxWaitYAML * float64(time.Second))
	}
	return cfg, nil
}

// Validate checks the configuration-error conditions of spec.md §4.3
// and §6, returning a *Error with ErrCodeConfiguration on failure.
func (c Config) Validate() error {
	if c.NumThreads < 1 {
		return NewConfigError("config", "num_threads must be >= 1")
	}
	if c.MaxBadAllocErrors < 0 {
		return NewConfigError("config", "max_bad_alloc_errors must be >= 0")
	}
	if c.RetrySeconds < 0 {
		return NewConfigError("config", "retry_seconds must be >= 0")
	}
	if c.PageSize <= 0 {
		return NewConfigError("config", "page_size must be > 0")
	}

	if c.SamplingFraction != 0 {
		if c.SamplingFraction <= 0 || c.SamplingFraction >= 0.2 {
			return NewConfigError("config", "sampling_fraction must satisfy 0 < f < 0.2")
		}
		if c.SamplingPasses < 1 {
			return NewConfigError("config", "sampling_passes must be >= 1")
		}
	}

	return nil
}

// Sampling reports whether sampling mode is selected.
func (c Config) Sampling() bool {
	return c.SamplingFraction > 0
}
