// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvironmentVariable names the variable [Load] reads the config path
// from.
const EnvironmentVariable = "VICI_CONFIG"

// Config is the configuration of the vici tool.
type Config struct {
	// Socket is the daemon's control socket.
	// Default: /var/run/charon.vici
	Socket string `yaml:"socket"`

	// Timeouts bounds socket operations.
	Timeouts TimeoutsConfig `yaml:"timeouts"`

	// Output configures how decoded messages are printed.
	Output OutputConfig `yaml:"output"`

	// Capture configures packet recordings.
	Capture CaptureConfig `yaml:"capture"`

	// Log configures diagnostic logging.
	Log LogConfig `yaml:"log"`
}

// TimeoutsConfig bounds socket operations. Values are Go durations.
type TimeoutsConfig struct {
	// Dial bounds connecting to the socket.
	// Default: 5s
	Dial string `yaml:"dial"`

	// Call bounds one command, including streamed events. Zero
	// disables the bound.
	// Default: 30s
	Call string `yaml:"call"`
}

// OutputConfig configures printed messages.
type OutputConfig struct {
	// Format is the interchange format for decoded messages.
	// Values: json, yaml, cbor, msgpack. Default: json
	Format string `yaml:"format"`

	// Color selects syntax highlighting.
	// Values: auto (on a terminal), always, never. Default: auto
	Color string `yaml:"color"`

	// Style is the highlighting style name.
	// Default: monokai
	Style string `yaml:"style"`
}

// CaptureConfig configures packet recordings.
type CaptureConfig struct {
	// Directory holds captures given as relative paths.
	// Default: current directory
	Directory string `yaml:"directory"`

	// Compression of new captures.
	// Values: none, lz4, zstd, brotli. Default: zstd
	Compression string `yaml:"compression"`

	// Recipients are age X25519 recipients (age1...) new captures are
	// encrypted to. Empty leaves captures unencrypted.
	Recipients []string `yaml:"recipients"`

	// IdentityFile holds age identities for reading encrypted captures.
	IdentityFile string `yaml:"identity_file"`
}

// LogConfig configures diagnostic logging.
type LogConfig struct {
	// Level is the minimum level logged.
	// Values: debug, info, warn, error. Default: warn
	Level string `yaml:"level"`
}

// Default returns the default configuration, used as-is when no config
// file is given and as the base a config file is merged into.
func Default() *Config {
	return &Config{
		Socket: "/var/run/charon.vici",
		Timeouts: TimeoutsConfig{
			Dial: "5s",
			Call: "30s",
		},
		Output: OutputConfig{
			Format: "json",
			Color:  "auto",
			Style:  "monokai",
		},
		Capture: CaptureConfig{
			Compression: "zstd",
		},
		Log: LogConfig{
			Level: "warn",
		},
	}
}

// Load loads the file named by VICI_CONFIG, or returns the defaults
// when the variable is unset.
func Load() (*Config, error) {
	configPath := os.Getenv(EnvironmentVariable)
	if configPath == "" {
		cfg := Default()
		cfg.expandVariables()
		return cfg, nil
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path, merged over
// the defaults.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}

	cfg.expandVariables()

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config: %w", err)
	}

	// Unknown keys are rejected; an empty file leaves the defaults.
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parsing config %s: %w", path, err)
	}
	return nil
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in path
// fields.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}

	c.Socket = expandVars(c.Socket, vars)
	c.Capture.Directory = expandVars(c.Capture.Directory, vars)
	c.Capture.IdentityFile = expandVars(c.Capture.IdentityFile, vars)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars expands ${VAR} and ${VAR:-default} patterns, preferring
// vars over the process environment.
func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		name := parts[1]
		defaultValue := parts[2]

		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

var (
	formats      = []string{"json", "yaml", "cbor", "msgpack"}
	colorModes   = []string{"auto", "always", "never"}
	compressions = []string{"none", "lz4", "zstd", "brotli"}
	logLevels    = []string{"debug", "info", "warn", "error"}
)

// Validate checks the configuration and reports every problem found.
func (c *Config) Validate() error {
	var errs []error

	if c.Socket == "" {
		errs = append(errs, fmt.Errorf("socket is required"))
	}

	if _, err := parseDuration(c.Timeouts.Dial); err != nil {
		errs = append(errs, fmt.Errorf("timeouts.dial: %w", err))
	}
	if _, err := parseDuration(c.Timeouts.Call); err != nil {
		errs = append(errs, fmt.Errorf("timeouts.call: %w", err))
	}

	if !slices.Contains(formats, c.Output.Format) {
		errs = append(errs, fmt.Errorf("output.format must be one of: %v", formats))
	}
	if !slices.Contains(colorModes, c.Output.Color) {
		errs = append(errs, fmt.Errorf("output.color must be one of: %v", colorModes))
	}
	if !slices.Contains(compressions, c.Capture.Compression) {
		errs = append(errs, fmt.Errorf("capture.compression must be one of: %v", compressions))
	}
	if !slices.Contains(logLevels, c.Log.Level) {
		errs = append(errs, fmt.Errorf("log.level must be one of: %v", logLevels))
	}

	return errors.Join(errs...)
}

// DialTimeout returns timeouts.dial. Call after Validate.
func (c *Config) DialTimeout() time.Duration {
	duration, _ := parseDuration(c.Timeouts.Dial)
	return duration
}

// CallTimeout returns timeouts.call; zero means unbounded. Call after
// Validate.
func (c *Config) CallTimeout() time.Duration {
	duration, _ := parseDuration(c.Timeouts.Call)
	return duration
}

func parseDuration(value string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, err
	}
	if duration < 0 {
		return 0, fmt.Errorf("negative duration %s", value)
	}
	return duration, nil
}

// CapturePath resolves a capture file name against capture.directory.
func (c *Config) CapturePath(name string) string {
	if filepath.IsAbs(name) || c.Capture.Directory == "" {
		return name
	}
	return filepath.Join(c.Capture.Directory, name)
}
