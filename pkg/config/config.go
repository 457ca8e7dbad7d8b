// Package config loads client settings from an optional YAML file,
// capturing environment overrides exactly once at load time. Nothing
// else in the client reads the environment after Load returns.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/rerobots/client-go/pkg/telemetry"
)

const (
	// EnvBaseURI overrides the API origin when the config file does not
	// set one.
	EnvBaseURI = "REROBOTS_BASE_URI"

	// EnvLogLevel overrides the configured log level for one invocation.
	EnvLogLevel = "LOG_LEVEL"

	// DefaultKeyFileName is where launch writes a generated secret key.
	DefaultKeyFileName = "key.pem"
)

// Config is the client and CLI configuration. The zero value is not
// usable; start from Default or Load.
type Config struct {
	// BaseURI is the API origin. Empty selects the production origin.
	BaseURI string `yaml:"base_uri" validate:"omitempty,url"`

	// TokenFile is the path of a file holding the API token.
	TokenFile string `yaml:"token_file"`

	// IgnoreEnvironment disables every environment fallback: base URI,
	// log level, and the API token variable.
	IgnoreEnvironment bool `yaml:"ignore_environment"`

	// Insecure skips TLS certificate verification, for self-hosted
	// test origins only.
	Insecure bool `yaml:"insecure"`

	// KeyFileName is where launch writes a generated secret key.
	KeyFileName string `yaml:"key_file"`

	// HistoryPath is the launch-history database file. Empty selects
	// DefaultHistoryPath.
	HistoryPath string `yaml:"history_path"`

	// Telemetry configures logging, tracing and metrics.
	Telemetry *telemetry.Config `yaml:"telemetry"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		KeyFileName: DefaultKeyFileName,
		Telemetry:   telemetry.DefaultConfig(),
	}
}

// DefaultPath returns the conventional config file location.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate config directory: %w", err)
	}
	return filepath.Join(dir, "rerobots", "config.yaml"), nil
}

// DefaultHistoryPath returns the conventional launch-history location.
func DefaultHistoryPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate config directory: %w", err)
	}
	return filepath.Join(dir, "rerobots", "history.db"), nil
}

// Load builds the configuration: defaults, then the YAML file, then the
// one-shot environment capture. An explicit path must exist; with an
// empty path the conventional location is used if present and silently
// skipped otherwise.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		var err error
		path, err = DefaultPath()
		if err != nil {
			path = ""
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
			}
		case explicit:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg.captureEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// captureEnv applies environment overrides once. The base URI from the
// environment fills in only when the file left it empty; the log level
// from the environment wins over the file, since exporting it is the
// per-invocation debugging path.
func (c *Config) captureEnv() {
	if c.IgnoreEnvironment {
		return
	}

	if c.BaseURI == "" {
		c.BaseURI = strings.TrimSpace(os.Getenv(EnvBaseURI))
	}

	if level := strings.TrimSpace(os.Getenv(EnvLogLevel)); level != "" {
		c.Telemetry.Logging.Level = strings.ToLower(level)
	}
}

// Validate checks the configuration, including the telemetry section.
func (c *Config) Validate() error {
	if c.Telemetry == nil {
		return fmt.Errorf("telemetry configuration is required")
	}

	v := validator.New()
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if err := c.Telemetry.Validate(); err != nil {
		return fmt.Errorf("invalid telemetry configuration: %w", err)
	}
	return nil
}
