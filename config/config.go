// Package config loads shardmap settings from a YAML file and the
// environment, and turns them into map options and a logger.
//
// Sources are applied in order, later ones overriding earlier ones:
//  1. Defaults
//  2. Configuration file (YAML), if given
//  3. Environment variables (SHARDMAP_SHARDS, SHARDMAP_LOG_LEVEL, ...)
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/phuslu/log"

	"github.com/llxisdsh/shardmap"
)

// DefaultEnvPrefix is the default environment variable prefix.
const DefaultEnvPrefix = "SHARDMAP_"

// Settings configures a shardmap.Map.
type Settings struct {
	// Shards is the shard amount; 0 selects shardmap.DefaultShardAmount.
	Shards int `koanf:"shards"`
	// Capacity is the expected number of entries.
	Capacity int `koanf:"capacity"`
	// Hash names the built-in hasher: default, xxh3, xxhash, murmur3, maphash.
	Hash string `koanf:"hash"`
	// Seed fixes the hash seed; 0 keeps a random one.
	Seed uint64 `koanf:"seed"`

	Log LogSettings `koanf:"log"`
}

// LogSettings configures the logger handed to the map.
type LogSettings struct {
	// Level is one of trace, debug, info, warn, error, fatal.
	Level string `koanf:"level"`
	// Format is "console" or "json".
	Format string `koanf:"format"`
	// Output is "stderr" or "stdout".
	Output string `koanf:"output"`
	Color  bool   `koanf:"color"`
}

// Default returns the settings used when no source overrides them.
func Default() Settings {
	return Settings{
		Hash: "default",
		Log: LogSettings{
			Level:  "info",
			Format: "console",
			Output: "stderr",
		},
	}
}

func defaultValues() map[string]any {
	d := Default()
	return map[string]any{
		"shards":   d.Shards,
		"capacity": d.Capacity,
		"hash":     d.Hash,
		"seed":     d.Seed,
		"log": map[string]any{
			"level":  d.Log.Level,
			"format": d.Log.Format,
			"output": d.Log.Output,
			"color":  d.Log.Color,
		},
	}
}

type loader struct {
	filePath  string
	envPrefix string
}

// Option configures Load.
type Option func(*loader)

// WithFile loads the YAML file at path. An empty path is ignored.
func WithFile(path string) Option {
	return func(l *loader) {
		l.filePath = path
	}
}

// WithEnvPrefix sets the environment variable prefix.
func WithEnvPrefix(prefix string) Option {
	return func(l *loader) {
		l.envPrefix = prefix
	}
}

// Load reads the settings from every source and validates them.
func Load(opts ...Option) (Settings, error) {
	l := loader{envPrefix: DefaultEnvPrefix}
	for _, opt := range opts {
		opt(&l)
	}

	k := koanf.New(".")
	if err := k.Load(mapProvider(defaultValues()), nil); err != nil {
		return Settings{}, fmt.Errorf("load defaults: %w", err)
	}

	if l.filePath != "" {
		if err := k.Load(file.Provider(l.filePath), yaml.Parser()); err != nil {
			return Settings{}, fmt.Errorf("load file %s: %w", l.filePath, err)
		}
	}

	// SHARDMAP_LOG_LEVEL -> log.level
	prefix := l.envPrefix
	transform := func(s string) string {
		s = strings.TrimPrefix(s, prefix)
		s = strings.ToLower(s)
		return strings.ReplaceAll(s, "_", ".")
	}
	if err := k.Load(env.Provider(prefix, ".", transform), nil); err != nil {
		return Settings{}, fmt.Errorf("load env: %w", err)
	}

	var s Settings
	if err := k.Unmarshal("", &s); err != nil {
		return Settings{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Validate reports every invalid field at once.
func (s Settings) Validate() error {
	var errs []error
	if s.Shards < 0 || s.Shards&(s.Shards-1) != 0 {
		errs = append(errs, fmt.Errorf("shards: %d is not a power of two", s.Shards))
	}
	if s.Capacity < 0 {
		errs = append(errs, fmt.Errorf("capacity: %d is negative", s.Capacity))
	}
	if _, err := shardmap.ParseHashAlgorithm(s.Hash); err != nil {
		errs = append(errs, fmt.Errorf("hash: %w", err))
	}
	if _, ok := parseLevel(s.Log.Level); !ok {
		errs = append(errs, fmt.Errorf("log.level: unknown level %q", s.Log.Level))
	}
	switch s.Log.Format {
	case "", "console", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format: unknown format %q", s.Log.Format))
	}
	switch s.Log.Output {
	case "", "stderr", "stdout":
	default:
		errs = append(errs, fmt.Errorf("log.output: unknown output %q", s.Log.Output))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// MapOptions converts the settings into shardmap options. The logger is
// not included; pass WithLogger(s.Logger()) to opt in.
func (s Settings) MapOptions() ([]func(*shardmap.MapConfig), error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	algo, _ := shardmap.ParseHashAlgorithm(s.Hash)
	opts := []func(*shardmap.MapConfig){
		shardmap.WithHashAlgorithm(algo),
		shardmap.WithCapacity(s.Capacity),
	}
	if s.Shards > 0 {
		opts = append(opts, shardmap.WithShardAmount(s.Shards))
	}
	if s.Seed != 0 {
		opts = append(opts, shardmap.WithSeed(s.Seed))
	}
	return opts, nil
}

// Logger builds a logger from the log settings.
func (s Settings) Logger() *log.Logger {
	var w io.Writer = os.Stderr
	if s.Log.Output == "stdout" {
		w = os.Stdout
	}
	level, _ := parseLevel(s.Log.Level)

	var writer log.Writer
	if s.Log.Format == "json" {
		writer = &log.IOWriter{Writer: w}
	} else {
		writer = &log.ConsoleWriter{
			ColorOutput:    s.Log.Color,
			QuoteString:    true,
			EndWithMessage: true,
			Writer:         w,
		}
	}
	return &log.Logger{
		Level:  level,
		Writer: writer,
	}
}

// parseLevel converts string log level to log.Level
func parseLevel(level string) (log.Level, bool) {
	switch strings.ToLower(level) {
	case "trace":
		return log.TraceLevel, true
	case "debug":
		return log.DebugLevel, true
	case "", "info":
		return log.InfoLevel, true
	case "warn", "warning":
		return log.WarnLevel, true
	case "error":
		return log.ErrorLevel, true
	case "fatal":
		return log.FatalLevel, true
	default:
		return log.InfoLevel, false
	}
}

// mapProvider is a koanf provider over an in-memory map.
type mapProvider map[string]any

// ReadBytes is not supported; koanf uses Read for map providers.
func (m mapProvider) ReadBytes() ([]byte, error) {
	return nil, errors.New("config: ReadBytes not supported by map provider")
}

// Read returns the configuration map.
func (m mapProvider) Read() (map[string]any, error) {
	return m, nil
}
