// Package config loads the settings of an rvtlb run.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/sarchlab/rvtlb/datarecording"
	"github.com/sarchlab/rvtlb/mem/mem"
	"github.com/sarchlab/rvtlb/mem/vm"
)

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("invalid config")

// EnvPrefix prefixes every environment override.
const EnvPrefix = "RVTLB_"

// Config holds everything needed to assemble and drive a machine.
type Config struct {
	TLBEntries  int  `yaml:"tlb_entries"`
	MemorySize  Size `yaml:"memory_size"`
	MonitorPort int  `yaml:"monitor_port"`

	// TraceCSV, when not empty, is the file every TLB event is written to.
	TraceCSV string `yaml:"trace_csv"`

	Recorder datarecording.RecorderConfig `yaml:"recorder"`
	Workload WorkloadConfig               `yaml:"workload"`
}

// WorkloadConfig parameterizes the synthetic workload.
type WorkloadConfig struct {
	Seed          int64 `yaml:"seed"`
	NumSpaces     int   `yaml:"num_spaces"`
	PagesPerSpace int   `yaml:"pages_per_space"`
	Accesses      int   `yaml:"accesses"`
	SwitchEvery   int   `yaml:"switch_every"`
	FenceEvery    int   `yaml:"fence_every"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		TLBEntries: 32,
		MemorySize: Size(64 * mem.MB),
		Recorder: datarecording.RecorderConfig{
			Type:      "none",
			BatchSize: 100000,
		},
		Workload: WorkloadConfig{
			Seed:          1,
			NumSpaces:     4,
			PagesPerSpace: 64,
			Accesses:      100000,
			SwitchEvery:   1000,
			FenceEvery:    5000,
		},
	}
}

// Load starts from Default, applies the YAML file at path if path is not
// empty, then applies the environment. A .env file in the working directory
// is loaded first if present; variables already set take precedence.
func Load(path string) (Config, error) {
	c := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return c, fmt.Errorf("reading config: %w", err)
		}

		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)

		if err := dec.Decode(&c); err != nil {
			return c, fmt.Errorf("parsing %s: %w", path, err)
		}
	}

	if err := loadDotEnv(".env"); err != nil {
		return c, err
	}

	if err := c.ApplyEnv(os.LookupEnv); err != nil {
		return c, err
	}

	return c, nil
}

func loadDotEnv(path string) error {
	err := godotenv.Load(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}

	return fmt.Errorf("loading %s: %w", path, err)
}

// ApplyEnv overrides fields from RVTLB_* variables found by lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	ints := map[string]*int{
		"TLB_ENTRIES":     &c.TLBEntries,
		"MONITOR_PORT":    &c.MonitorPort,
		"NUM_SPACES":      &c.Workload.NumSpaces,
		"PAGES_PER_SPACE": &c.Workload.PagesPerSpace,
		"ACCESSES":        &c.Workload.Accesses,
		"BATCH_SIZE":      &c.Recorder.BatchSize,
	}

	for name, field := range ints {
		v, ok := lookup(EnvPrefix + name)
		if !ok {
			continue
		}

		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
		}

		*field = n
	}

	strs := map[string]*string{
		"TRACE_CSV":      &c.TraceCSV,
		"RECORDER":       &c.Recorder.Type,
		"RECORD_PATH":    &c.Recorder.Path,
		"CLICKHOUSE_DSN": &c.Recorder.ConnStr,
	}

	for name, field := range strs {
		if v, ok := lookup(EnvPrefix + name); ok {
			*field = v
		}
	}

	if v, ok := lookup(EnvPrefix + "SEED"); ok {
		seed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%sSEED: %w", EnvPrefix, err)
		}

		c.Workload.Seed = seed
	}

	if v, ok := lookup(EnvPrefix + "MEMORY_SIZE"); ok {
		size, err := ParseSize(v)
		if err != nil {
			return fmt.Errorf("%sMEMORY_SIZE: %w", EnvPrefix, err)
		}

		c.MemorySize = size
	}

	return nil
}

// Validate reports the first setting that cannot be used.
func (c Config) Validate() error {
	switch {
	case c.TLBEntries <= 0:
		return fmt.Errorf("%w: tlb_entries must be positive, got %d",
			ErrInvalidConfig, c.TLBEntries)
	case c.MemorySize < vm.PageSize:
		return fmt.Errorf("%w: memory_size %s is smaller than a page",
			ErrInvalidConfig, c.MemorySize)
	case c.MonitorPort < 0 || c.MonitorPort > 65535:
		return fmt.Errorf("%w: monitor_port %d out of range",
			ErrInvalidConfig, c.MonitorPort)
	}

	switch c.Recorder.Type {
	case "", "none", "sqlite":
	case "clickhouse":
		if c.Recorder.ConnStr == "" {
			return fmt.Errorf("%w: clickhouse recorder needs conn_str",
				ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: recorder type %q",
			ErrInvalidConfig, c.Recorder.Type)
	}

	return nil
}

// Recording tells whether a data recorder should be created.
func (c Config) Recording() bool {
	return c.Recorder.Type != "" && c.Recorder.Type != "none"
}
