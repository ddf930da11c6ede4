package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/phuslu/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llxisdsh/shardmap"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "shardmap.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	s, err := Load(WithEnvPrefix("SHARDMAP_TEST_DEFAULTS_"))
	require.NoError(t, err)
	assert.Equal(t, Default(), s)
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
shards: 64
capacity: 1000
hash: murmur3
seed: 42
log:
  level: debug
  format: json
`)
	s, err := Load(WithFile(path), WithEnvPrefix("SHARDMAP_TEST_FILE_"))
	require.NoError(t, err)

	assert.Equal(t, 64, s.Shards)
	assert.Equal(t, 1000, s.Capacity)
	assert.Equal(t, "murmur3", s.Hash)
	assert.Equal(t, uint64(42), s.Seed)
	assert.Equal(t, "debug", s.Log.Level)
	assert.Equal(t, "json", s.Log.Format)
	assert.Equal(t, "stderr", s.Log.Output, "unset keys keep their defaults")
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "shards: 64\nhash: xxh3\n")
	t.Setenv("SHARDMAP_SHARDS", "8")
	t.Setenv("SHARDMAP_LOG_LEVEL", "warn")

	s, err := Load(WithFile(path))
	require.NoError(t, err)
	assert.Equal(t, 8, s.Shards)
	assert.Equal(t, "xxh3", s.Hash)
	assert.Equal(t, "warn", s.Log.Level)
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load(WithFile(filepath.Join(t.TempDir(), "missing.yaml")))
	require.Error(t, err)
}

func TestLoad_Invalid(t *testing.T) {
	path := writeConfig(t, "shards: 12\nhash: crc32\n")
	_, err := Load(WithFile(path), WithEnvPrefix("SHARDMAP_TEST_INVALID_"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "shards")
	assert.Contains(t, err.Error(), "hash")
}

func TestSettings_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Settings)
		wantErr string
	}{
		{"defaults", func(*Settings) {}, ""},
		{"shards power of two", func(s *Settings) { s.Shards = 32 }, ""},
		{"shards not power of two", func(s *Settings) { s.Shards = 3 }, "shards"},
		{"negative shards", func(s *Settings) { s.Shards = -4 }, "shards"},
		{"negative capacity", func(s *Settings) { s.Capacity = -1 }, "capacity"},
		{"unknown hash", func(s *Settings) { s.Hash = "fnv" }, "hash"},
		{"unknown level", func(s *Settings) { s.Log.Level = "loud" }, "log.level"},
		{"unknown format", func(s *Settings) { s.Log.Format = "xml" }, "log.format"},
		{"unknown output", func(s *Settings) { s.Log.Output = "file" }, "log.output"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Default()
			tt.mutate(&s)
			err := s.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSettings_MapOptions(t *testing.T) {
	s := Default()
	s.Shards = 16
	s.Capacity = 100
	s.Hash = "xxhash"
	s.Seed = 7

	opts, err := s.MapOptions()
	require.NoError(t, err)

	a := shardmap.NewMap[string, int](opts...)
	b := shardmap.NewMap[string, int](opts...)
	assert.Equal(t, 16, a.ShardCount())
	assert.GreaterOrEqual(t, a.Capacity(), 100)
	assert.Equal(t, a.HashKey("key"), b.HashKey("key"), "fixed seed gives reproducible hashes")

	s.Shards = 5
	_, err = s.MapOptions()
	require.Error(t, err)
}

func TestSettings_MapOptionsDefaultShards(t *testing.T) {
	opts, err := Default().MapOptions()
	require.NoError(t, err)
	m := shardmap.NewMap[int, int](opts...)
	assert.Equal(t, shardmap.DefaultShardAmount(), m.ShardCount())
}

func TestSettings_Logger(t *testing.T) {
	s := Default()
	s.Log.Level = "error"
	l := s.Logger()
	require.NotNil(t, l)
	assert.Equal(t, log.ErrorLevel, l.Level)
	assert.IsType(t, &log.ConsoleWriter{}, l.Writer)

	s.Log.Format = "json"
	s.Log.Output = "stdout"
	l = s.Logger()
	assert.IsType(t, &log.IOWriter{}, l.Writer)
}
