// Package config loads the engine settings file. The format follows the
// file extension: engine.yaml / engine.yml or engine.toml.
package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

var (
	ErrUnknownFormat = errors.New("unknown config format")
	ErrInvalidConfig = errors.New("invalid engine configuration")
)

// Config holds engine configuration
type Config struct {
	// Project is the directory scanned into the asset cache.
	Project  string `yaml:"project" toml:"project"`
	LogLevel string `yaml:"log_level" toml:"log_level"`
	// Console keeps this many recent log entries for the log panel.
	Console int  `yaml:"console" toml:"console"`
	Builtin bool `yaml:"builtin" toml:"builtin"`
	Watch   bool `yaml:"watch" toml:"watch"`
	Playing bool `yaml:"playing" toml:"playing"`
	// FrameRate is the fixed update rate of Run, in frames per second.
	FrameRate int `yaml:"frame_rate" toml:"frame_rate"`
	// Extensions maps extra file extensions onto registered type tags.
	Extensions map[string]string `yaml:"extensions,omitempty" toml:"extensions,omitempty"`
	Notifier   Notifier          `yaml:"notifier" toml:"notifier"`
}

// Notifier configures the websocket endpoint editors connect to.
type Notifier struct {
	Addr  string `yaml:"addr" toml:"addr"`
	Token string `yaml:"token,omitempty" toml:"token,omitempty"`
	// Buffer is the number of pending messages per client before drops.
	Buffer int `yaml:"buffer" toml:"buffer"`
}

// Default returns default engine configuration
func Default() Config {
	return Config{
		Project:   ".",
		LogLevel:  "info",
		Console:   256,
		Builtin:   true,
		Watch:     false,
		Playing:   true,
		FrameRate: 60,
		Notifier: Notifier{
			Addr:   "127.0.0.1:8787",
			Buffer: 64,
		},
	}
}

// Validate checks ranges and normalizes extension keys.
func (c *Config) Validate() error {
	switch {
	case c.Project == "":
		return errors.Wrap(ErrInvalidConfig, "project must be set")
	case c.FrameRate <= 0 || c.FrameRate > 1000:
		return errors.Wrapf(ErrInvalidConfig, "frame_rate %d out of range 1..1000", c.FrameRate)
	case c.Console < 0:
		return errors.Wrapf(ErrInvalidConfig, "console %d is negative", c.Console)
	case c.Notifier.Buffer <= 0:
		return errors.Wrapf(ErrInvalidConfig, "notifier buffer %d must be positive", c.Notifier.Buffer)
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error", "fatal":
	default:
		return errors.Wrapf(ErrInvalidConfig, "log_level %q", c.LogLevel)
	}
	if len(c.Extensions) > 0 {
		norm := make(map[string]string, len(c.Extensions))
		for ext, tag := range c.Extensions {
			ext = strings.ToLower(strings.TrimPrefix(ext, "."))
			if ext == "" || tag == "" {
				return errors.Wrapf(ErrInvalidConfig, "extension mapping %q -> %q", ext, tag)
			}
			norm[ext] = tag
		}
		c.Extensions = norm
	}
	return nil
}

type format int

const (
	formatYAML format = iota
	formatTOML
)

func formatOf(path string) (format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return formatYAML, nil
	case ".toml":
		return formatTOML, nil
	}
	return 0, errors.Wrap(ErrUnknownFormat, path)
}

// Load reads path over the defaults. A missing file yields Default().
func Load(path string) (Config, error) {
	cfg := Default()
	f, err := formatOf(path)
	if err != nil {
		return cfg, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, errors.Wrapf(err, "read %s", path)
	}
	if err := Decode(data, f == formatTOML, &cfg); err != nil {
		return Default(), errors.Wrapf(err, "parse %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return Default(), err
	}
	return cfg, nil
}

// Decode parses data into cfg; fields not present keep their values.
func Decode(data []byte, isTOML bool, cfg *Config) error {
	if isTOML {
		return toml.NewDecoder(bytes.NewReader(data)).DisallowUnknownFields().Decode(cfg)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && len(bytes.TrimSpace(data)) > 0 {
		return err
	}
	return nil
}

// Save writes c to path in the format its extension names.
func (c Config) Save(path string) error {
	f, err := formatOf(path)
	if err != nil {
		return err
	}
	var data []byte
	if f == formatTOML {
		data, err = toml.Marshal(c)
	} else {
		data, err = yaml.Marshal(c)
	}
	if err != nil {
		return errors.Wrap(err, "encode config")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrapf(err, "mkdir %s", dir)
		}
	}
	return errors.Wrapf(os.WriteFile(path, data, 0o644), "write %s", path)
}
