// Package config loads daemon settings from a YAML or TOML file.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// Config holds daemon configuration.
type Config struct {
	// Listen is the API server address.
	Listen string `yaml:"listen" toml:"listen"`
	// DBPath is the SQLite database file.
	DBPath string `yaml:"db_path" toml:"db_path"`
	// Layout controls graph placement.
	Layout LayoutConfig `yaml:"layout" toml:"layout"`
	// Ranker controls the what's-next list.
	Ranker RankerConfig `yaml:"ranker" toml:"ranker"`
}

// LayoutConfig sizes the dependency graph layout.
type LayoutConfig struct {
	GridColumns  int `yaml:"grid_columns" toml:"grid_columns"`
	LayerSpacing int `yaml:"layer_spacing" toml:"layer_spacing"`
	RowSpacing   int `yaml:"row_spacing" toml:"row_spacing"`
}

// RankerConfig sets the default list length.
type RankerConfig struct {
	Limit int `yaml:"limit" toml:"limit"`
}

// Dir returns ~/.taskgraph, or .taskgraph when the home directory is unknown.
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".taskgraph"
	}
	return filepath.Join(home, ".taskgraph")
}

// DefaultPath is the config file read when none is given.
func DefaultPath() string {
	return filepath.Join(Dir(), "config.yaml")
}

// DefaultConfig returns the default daemon configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen: "127.0.0.1:7466",
		DBPath: filepath.Join(Dir(), "taskgraph.db"),
		Layout: LayoutConfig{
			GridColumns:  4,
			LayerSpacing: 240,
			RowSpacing:   120,
		},
		Ranker: RankerConfig{
			Limit: 10,
		},
	}
}

// Load reads path from fs. A missing file yields the defaults. The format
// follows the extension: .toml is TOML, anything else YAML.
func Load(fs afero.Fs, path string) (*Config, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := DefaultConfig()
	if isTOML(path) {
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.fillDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Save writes cfg to path, creating parent directories if needed.
func Save(fs afero.Fs, path string, cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := fs.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}

	var data []byte
	if isTOML(path) {
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
			return fmt.Errorf("marshaling config: %w", err)
		}
		data = buf.Bytes()
	} else {
		var err error
		if data, err = yaml.Marshal(cfg); err != nil {
			return fmt.Errorf("marshaling config: %w", err)
		}
	}

	if err := afero.WriteFile(fs, path, data, 0o600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("listen address must be set")
	}
	if c.DBPath == "" {
		return fmt.Errorf("db_path must be set")
	}
	if c.Layout.GridColumns < 1 {
		return fmt.Errorf("layout.grid_columns must be at least 1")
	}
	if c.Layout.LayerSpacing < 1 || c.Layout.RowSpacing < 1 {
		return fmt.Errorf("layout spacing must be positive")
	}
	if c.Ranker.Limit < 1 {
		return fmt.Errorf("ranker.limit must be at least 1")
	}
	return nil
}

// fillDefaults restores fields a file explicitly zeroed.
func (c *Config) fillDefaults() {
	def := DefaultConfig()
	if c.Listen == "" {
		c.Listen = def.Listen
	}
	if c.DBPath == "" {
		c.DBPath = def.DBPath
	}
	if c.Layout.GridColumns == 0 {
		c.Layout.GridColumns = def.Layout.GridColumns
	}
	if c.Layout.LayerSpacing == 0 {
		c.Layout.LayerSpacing = def.Layout.LayerSpacing
	}
	if c.Layout.RowSpacing == 0 {
		c.Layout.RowSpacing = def.Layout.RowSpacing
	}
	if c.Ranker.Limit == 0 {
		c.Ranker.Limit = def.Ranker.Limit
	}
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}
