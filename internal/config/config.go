// Package config manages RVC configuration. It finds, loads, validates and
// saves rvc.toml (or rvc.yaml) and turns its record type tables into
// models.RecordType definitions.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/kilupskalvis/rvc/internal/errclass"
	"github.com/kilupskalvis/rvc/internal/models"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

const (
	ConfigFile      = "rvc.toml"
	YAMLConfigFile  = "rvc.yaml"
	DefaultDatabase = "rvc.db"
)

// Config represents the RVC configuration
type Config struct {
	Database     string        `toml:"database" yaml:"database"`
	CommitPolicy string        `toml:"commit_policy,omitempty" yaml:"commit_policy,omitempty"`
	Logging      LoggingConfig `toml:"logging" yaml:"logging"`
	Types        []TypeConfig  `toml:"types" yaml:"types"`
	path         string        // path to the config file
}

// LoggingConfig selects the slog level and handler
type LoggingConfig struct {
	Level  string `toml:"level,omitempty" yaml:"level,omitempty"`
	Format string `toml:"format,omitempty" yaml:"format,omitempty"`
}

// TypeConfig declares one versioned record type
type TypeConfig struct {
	Name        string        `toml:"name" yaml:"name"`
	Table       string        `toml:"table,omitempty" yaml:"table,omitempty"`
	Versioned   []string      `toml:"versioned,omitempty" yaml:"versioned,omitempty"`
	Exclude     []string      `toml:"exclude,omitempty" yaml:"exclude,omitempty"`
	OnUnchanged string        `toml:"on_unchanged,omitempty" yaml:"on_unchanged,omitempty"`
	Fields      []FieldConfig `toml:"fields" yaml:"fields"`
}

// FieldConfig declares one persisted attribute
type FieldConfig struct {
	Name string `toml:"name" yaml:"name"`
	Kind string `toml:"kind" yaml:"kind"`
}

// FindConfig finds rvc.toml or rvc.yaml by walking up from the current directory
func FindConfig() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		for _, name := range []string{ConfigFile, YAMLConfigFile} {
			path := filepath.Join(dir, name)
			if info, err := os.Stat(path); err == nil && !info.IsDir() {
				return path, nil
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("not an rvc project: no %s or %s (or any parent up to root)", ConfigFile, YAMLConfigFile)
		}
		dir = parent
	}
}

// Load finds and loads the project configuration
func Load() (*Config, error) {
	path, err := FindConfig()
	if err != nil {
		return nil, err
	}
	return LoadFile(path)
}

// LoadFile loads and validates a configuration file. Files ending in .yaml
// or .yml are read as YAML, everything else as TOML.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if isYAML(path) {
		err = yaml.Unmarshal(data, &cfg)
	} else {
		err = toml.Unmarshal(data, &cfg)
	}
	if err != nil {
		return nil, errclass.ErrConfiguration.WithMessagef("parse %s", filepath.Base(path)).Wrap(err)
	}

	cfg.path = path
	if cfg.Database == "" {
		cfg.Database = DefaultDatabase
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// Validate checks the values the configuration layer owns. Selector rules
// are checked when the record types are registered.
func (c *Config) Validate() error {
	if _, err := c.Logging.SlogLevel(); err != nil {
		return err
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		return errclass.ErrConfiguration.WithMessagef("unknown log format %q", c.Logging.Format)
	}

	seen := make(map[string]bool, len(c.Types))
	for i, t := range c.Types {
		if t.Name == "" {
			return errclass.ErrConfiguration.WithMessagef("types[%d] has no name", i)
		}
		if seen[t.Name] {
			return errclass.ErrConfiguration.WithMessagef("record type %q declared twice", t.Name)
		}
		seen[t.Name] = true
		if len(t.Fields) == 0 {
			return errclass.ErrConfiguration.WithMessagef("record type %q declares no fields", t.Name)
		}
		for _, f := range t.Fields {
			if _, err := models.ParseKind(f.Kind); err != nil {
				return errclass.ErrConfiguration.WithMessagef("%s.%s", t.Name, f.Name).Wrap(err)
			}
		}
	}
	return nil
}

// RecordTypes converts the [[types]] tables into record type definitions
func (c *Config) RecordTypes() ([]*models.RecordType, error) {
	types := make([]*models.RecordType, 0, len(c.Types))
	for _, t := range c.Types {
		rt := &models.RecordType{
			Name:        t.Name,
			Table:       t.Table,
			Versioned:   t.Versioned,
			Exclude:     t.Exclude,
			OnUnchanged: models.UnchangedPolicy(strings.ToLower(t.OnUnchanged)),
		}
		if rt.Table == "" {
			rt.Table = t.Name
		}
		for _, f := range t.Fields {
			kind, err := models.ParseKind(f.Kind)
			if err != nil {
				return nil, errclass.ErrConfiguration.WithMessagef("%s.%s", t.Name, f.Name).Wrap(err)
			}
			rt.Fields = append(rt.Fields, models.FieldDef{Name: f.Name, Kind: kind})
		}
		types = append(types, rt)
	}
	return types, nil
}

// SlogLevel maps the configured level name to a slog level, defaulting to info
func (l LoggingConfig) SlogLevel() (slog.Level, error) {
	switch strings.ToLower(l.Level) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, errclass.ErrConfiguration.WithMessagef("unknown log level %q", l.Level)
}

// Save saves the configuration to disk in the format of its file name
func (c *Config) Save() error {
	var (
		data []byte
		err  error
	)
	if isYAML(c.path) {
		data, err = yaml.Marshal(c)
	} else {
		data, err = toml.Marshal(c)
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	return os.WriteFile(c.path, data, 0644)
}

// Path returns the path to the config file
func (c *Config) Path() string {
	return c.path
}

// DatabasePath returns the SQLite database path. Relative paths are resolved
// against the directory holding the config file.
func (c *Config) DatabasePath() string {
	if filepath.IsAbs(c.Database) {
		return c.Database
	}
	return filepath.Join(filepath.Dir(c.path), c.Database)
}

// Initialize writes a starter configuration into dir. asYAML selects
// rvc.yaml over rvc.toml.
func Initialize(dir string, asYAML bool) (*Config, error) {
	for _, name := range []string{ConfigFile, YAMLConfigFile} {
		if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
			return nil, fmt.Errorf("rvc project already exists: %s", name)
		}
	}

	name := ConfigFile
	if asYAML {
		name = YAMLConfigFile
	}

	cfg := &Config{
		Database:     DefaultDatabase,
		CommitPolicy: "atomic",
		Logging:      LoggingConfig{Level: "info", Format: "text"},
		Types: []TypeConfig{{
			Name: "notes",
			Fields: []FieldConfig{
				{Name: "title", Kind: "string"},
				{Name: "body", Kind: "string"},
			},
			Versioned: []string{"title", "body"},
		}},
		path: filepath.Join(dir, name),
	}

	if err := cfg.Save(); err != nil {
		return nil, err
	}
	return cfg, nil
}
