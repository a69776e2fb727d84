package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/hupe1980/lurch"
	"github.com/hupe1980/lurch/lurchtable"
)

// Config describes one stress run. It is read from YAML and then overridden
// by any flag set on the command line.
type Config struct {
	Seed        int64   `yaml:"seed"`
	Workers     int     `yaml:"workers"`
	Ops         int     `yaml:"ops"`
	Keyspace    int     `yaml:"keyspace"`
	ReadRatio   float64 `yaml:"read_ratio"`
	Zipf        float64 `yaml:"zipf"` // 0 draws keys uniformly
	Rate        float64 `yaml:"rate"` // ops per second, 0 is unthrottled
	MemoryLimit int64   `yaml:"memory_limit"`
	LogLevel    string  `yaml:"log_level"`
	LogFormat   string  `yaml:"log_format"`
	Metrics     bool    `yaml:"metrics"`

	Table TableConfig `yaml:"table"`
	Tree  TreeConfig  `yaml:"tree"`
}

// TableConfig configures the table workload.
type TableConfig struct {
	Ordering string `yaml:"ordering"`
	Limit    int    `yaml:"limit"`
	Hasher   string `yaml:"hasher"`
}

// TreeConfig configures the tree workload.
type TreeConfig struct {
	PageSize      int `yaml:"page_size"`
	SnapshotEvery int `yaml:"snapshot_every"`
	Readers       int `yaml:"readers"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() Config {
	return Config{
		Seed:      1,
		Workers:   4,
		Ops:       100_000,
		Keyspace:  10_000,
		ReadRatio: 0.8,
		Zipf:      1.1,
		LogLevel:  "info",
		LogFormat: "text",
		Table: TableConfig{
			Ordering: "access",
			Limit:    4096,
			Hasher:   "maphash",
		},
		Tree: TreeConfig{
			SnapshotEvery: 1000,
			Readers:       2,
		},
	}
}

var hashers = []string{"maphash", "xxhash", "siphash", "circlehash"}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	switch {
	case c.Workers <= 0:
		return invalid("workers must be positive, got %d", c.Workers)
	case c.Ops < 0:
		return invalid("ops must not be negative, got %d", c.Ops)
	case c.Keyspace <= 0:
		return invalid("keyspace must be positive, got %d", c.Keyspace)
	case c.ReadRatio < 0 || c.ReadRatio > 1:
		return invalid("read_ratio must be in [0, 1], got %g", c.ReadRatio)
	case c.Zipf != 0 && c.Zipf <= 1:
		return invalid("zipf must be 0 or greater than 1, got %g", c.Zipf)
	case c.Rate < 0:
		return invalid("rate must not be negative, got %g", c.Rate)
	case c.MemoryLimit < 0:
		return invalid("memory_limit must not be negative, got %d", c.MemoryLimit)
	case c.LogFormat != "text" && c.LogFormat != "json":
		return invalid("log_format must be text or json, got %q", c.LogFormat)
	case c.Table.Limit <= 0:
		return invalid("table.limit must be positive, got %d", c.Table.Limit)
	case c.Tree.PageSize < 0:
		return invalid("tree.page_size must not be negative, got %d", c.Tree.PageSize)
	case c.Tree.SnapshotEvery < 0:
		return invalid("tree.snapshot_every must not be negative, got %d", c.Tree.SnapshotEvery)
	case c.Tree.Readers <= 0:
		return invalid("tree.readers must be positive, got %d", c.Tree.Readers)
	}

	if _, err := c.level(); err != nil {
		return invalid("log_level: %v", err)
	}
	if _, err := lurchtable.ParseOrdering(c.Table.Ordering); err != nil {
		return invalid("table.ordering: %v", err)
	}
	for _, h := range hashers {
		if h == c.Table.Hasher {
			return nil
		}
	}
	return invalid("table.hasher must be one of %v, got %q", hashers, c.Table.Hasher)
}

func (c Config) level() (slog.Level, error) {
	var l slog.Level
	err := l.UnmarshalText([]byte(c.LogLevel))
	return l, err
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", lurch.ErrInvalidArgument, fmt.Sprintf(format, args...))
}

// ParseConfig decodes YAML on top of the defaults. Unknown keys are errors.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// loadConfig reads the file named by --config, if any, applies the flags the
// user set and validates the result.
func loadConfig(fs *pflag.FlagSet) (Config, error) {
	cfg := DefaultConfig()

	path, err := fs.GetString("config")
	if err != nil {
		return Config{}, err
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if cfg, err = ParseConfig(data); err != nil {
			return Config{}, err
		}
	}

	if err := applyFlags(fs, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

func applyFlags(fs *pflag.FlagSet, cfg *Config) error {
	var err error
	set := func(name string, fn func() error) {
		if err == nil && fs.Lookup(name) != nil && fs.Changed(name) {
			err = fn()
		}
	}

	set("seed", func() (e error) { cfg.Seed, e = fs.GetInt64("seed"); return })
	set("workers", func() (e error) { cfg.Workers, e = fs.GetInt("workers"); return })
	set("ops", func() (e error) { cfg.Ops, e = fs.GetInt("ops"); return })
	set("keyspace", func() (e error) { cfg.Keyspace, e = fs.GetInt("keyspace"); return })
	set("read-ratio", func() (e error) { cfg.ReadRatio, e = fs.GetFloat64("read-ratio"); return })
	set("zipf", func() (e error) { cfg.Zipf, e = fs.GetFloat64("zipf"); return })
	set("rate", func() (e error) { cfg.Rate, e = fs.GetFloat64("rate"); return })
	set("memory-limit", func() (e error) { cfg.MemoryLimit, e = fs.GetInt64("memory-limit"); return })
	set("log-level", func() (e error) { cfg.LogLevel, e = fs.GetString("log-level"); return })
	set("log-format", func() (e error) { cfg.LogFormat, e = fs.GetString("log-format"); return })
	set("metrics", func() (e error) { cfg.Metrics, e = fs.GetBool("metrics"); return })

	set("ordering", func() (e error) { cfg.Table.Ordering, e = fs.GetString("ordering"); return })
	set("limit", func() (e error) { cfg.Table.Limit, e = fs.GetInt("limit"); return })
	set("hasher", func() (e error) { cfg.Table.Hasher, e = fs.GetString("hasher"); return })

	set("page-size", func() (e error) { cfg.Tree.PageSize, e = fs.GetInt("page-size"); return })
	set("snapshot-every", func() (e error) { cfg.Tree.SnapshotEvery, e = fs.GetInt("snapshot-every"); return })
	set("readers", func() (e error) { cfg.Tree.Readers, e = fs.GetInt("readers"); return })
	return err
}
