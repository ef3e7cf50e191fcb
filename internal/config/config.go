// Package config loads resdb settings from a YAML file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/resdb/internal/store"
)

// Config is the file format:
//
//	database:
//	  path: ./application.db
//	  name: application.db
//	  version: 1
//	  busy_timeout_ms: 5000
//	  max_open_conns: 4
//	schema:
//	  path: ./schema.cue
//	log:
//	  level: info
type Config struct {
	Database Database `yaml:"database"`
	Schema   Schema   `yaml:"schema"`
	Log      Log      `yaml:"log"`
}

// Database configures the store.
type Database struct {
	Path          string `yaml:"path"`
	Name          string `yaml:"name"`
	Version       int    `yaml:"version"`
	BusyTimeoutMS int    `yaml:"busy_timeout_ms"`
	MaxOpenConns  int    `yaml:"max_open_conns"`
}

// Schema points at the CUE table definitions.
type Schema struct {
	Path string `yaml:"path,omitempty"`
}

// Log configures logging.
type Log struct {
	Level string `yaml:"level"`
}

// Default values.
const (
	DefaultName          = "application.db"
	DefaultVersion       = 1
	DefaultBusyTimeoutMS = 5000
	DefaultMaxOpenConns  = 4
	DefaultLevel         = "info"
)

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Database: Database{
			Path:          DefaultName,
			Name:          DefaultName,
			Version:       DefaultVersion,
			BusyTimeoutMS: DefaultBusyTimeoutMS,
			MaxOpenConns:  DefaultMaxOpenConns,
		},
		Log: Log{Level: DefaultLevel},
	}
}

// Load reads path over the defaults. Unknown keys are rejected. Relative
// database and schema paths are resolved against the file's directory.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	dir := filepath.Dir(path)
	cfg.Database.Path = resolve(dir, cfg.Database.Path)
	cfg.Schema.Path = resolve(dir, cfg.Schema.Path)

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func resolve(dir, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(dir, path)
}

// Validate checks required fields and ranges.
func (c Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Database.Version < 0 {
		return fmt.Errorf("database.version must not be negative")
	}
	if c.Database.BusyTimeoutMS < 0 {
		return fmt.Errorf("database.busy_timeout_ms must not be negative")
	}
	if c.Database.MaxOpenConns < 0 {
		return fmt.Errorf("database.max_open_conns must not be negative")
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		return err
	}
	return nil
}

// Store converts the database section to a store configuration.
func (c Config) Store() store.Config {
	name := c.Database.Name
	if name == "" {
		name = filepath.Base(c.Database.Path)
	}
	return store.Config{
		Path:         c.Database.Path,
		Name:         name,
		Version:      c.Database.Version,
		BusyTimeout:  time.Duration(c.Database.BusyTimeoutMS) * time.Millisecond,
		MaxOpenConns: c.Database.MaxOpenConns,
	}
}

// ParseLevel maps debug, info, warn and error to slog levels. Empty means
// info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("log.level %q: must be one of debug, info, warn, error", s)
	}
}
