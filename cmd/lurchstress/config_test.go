package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/lurch"
)

func TestDefaultConfigIsValid(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
}

func TestParseConfig(t *testing.T) {
	cfg, err := ParseConfig([]byte(`
seed: 42
workers: 8
read_ratio: 0.5
zipf: 0
table:
  ordering: insertion
  hasher: xxhash
tree:
  snapshot_every: 10
`))
	require.NoError(t, err)
	assert.Equal(t, int64(42), cfg.Seed)
	assert.Equal(t, 8, cfg.Workers)
	assert.InDelta(t, 0.5, cfg.ReadRatio, 0)
	assert.Zero(t, cfg.Zipf)
	assert.Equal(t, "insertion", cfg.Table.Ordering)
	assert.Equal(t, "xxhash", cfg.Table.Hasher)
	assert.Equal(t, 10, cfg.Tree.SnapshotEvery)

	// Unset keys keep their defaults.
	def := DefaultConfig()
	assert.Equal(t, def.Ops, cfg.Ops)
	assert.Equal(t, def.Table.Limit, cfg.Table.Limit)
	assert.Equal(t, def.Tree.Readers, cfg.Tree.Readers)

	cfg, err = ParseConfig(nil)
	require.NoError(t, err)
	assert.Equal(t, def, cfg)

	_, err = ParseConfig([]byte("workres: 3\n"))
	assert.Error(t, err, "unknown keys are rejected")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"workers", func(c *Config) { c.Workers = 0 }},
		{"ops", func(c *Config) { c.Ops = -1 }},
		{"keyspace", func(c *Config) { c.Keyspace = 0 }},
		{"read ratio", func(c *Config) { c.ReadRatio = 1.5 }},
		{"zipf", func(c *Config) { c.Zipf = 0.5 }},
		{"rate", func(c *Config) { c.Rate = -1 }},
		{"memory limit", func(c *Config) { c.MemoryLimit = -1 }},
		{"log level", func(c *Config) { c.LogLevel = "loud" }},
		{"log format", func(c *Config) { c.LogFormat = "xml" }},
		{"ordering", func(c *Config) { c.Table.Ordering = "random" }},
		{"limit", func(c *Config) { c.Table.Limit = 0 }},
		{"hasher", func(c *Config) { c.Table.Hasher = "md5" }},
		{"page size", func(c *Config) { c.Tree.PageSize = -1 }},
		{"snapshot every", func(c *Config) { c.Tree.SnapshotEvery = -1 }},
		{"readers", func(c *Config) { c.Tree.Readers = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), lurch.ErrInvalidArgument)
		})
	}
}

func TestLoadConfigFlagsOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stress.yaml")
	require.NoError(t, os.WriteFile(path, []byte("ops: 500\nworkers: 2\ntable:\n  limit: 64\n"), 0o600))

	cmd, _, err := newRootCmd().Find([]string{"table"})
	require.NoError(t, err)
	require.NoError(t, cmd.ParseFlags([]string{"--config", path, "--workers", "6", "--hasher", "siphash"}))

	cfg, err := loadConfig(cmd.Flags())
	require.NoError(t, err)
	assert.Equal(t, 500, cfg.Ops, "from the file")
	assert.Equal(t, 64, cfg.Table.Limit, "from the file")
	assert.Equal(t, 6, cfg.Workers, "the flag wins")
	assert.Equal(t, "siphash", cfg.Table.Hasher)
	assert.Equal(t, DefaultConfig().Keyspace, cfg.Keyspace)
}

func TestLoadConfigErrors(t *testing.T) {
	cmd, _, err := newRootCmd().Find([]string{"tree"})
	require.NoError(t, err)

	require.NoError(t, cmd.ParseFlags([]string{"--config", filepath.Join(t.TempDir(), "missing.yaml")}))
	_, err = loadConfig(cmd.Flags())
	assert.ErrorIs(t, err, os.ErrNotExist)

	cmd, _, err = newRootCmd().Find([]string{"tree"})
	require.NoError(t, err)
	require.NoError(t, cmd.ParseFlags([]string{"--readers", "0"}))
	_, err = loadConfig(cmd.Flags())
	assert.ErrorIs(t, err, lurch.ErrInvalidArgument)
}
