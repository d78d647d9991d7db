// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// EnvironmentVariable names the config file for Load.
const EnvironmentVariable = "MESH_CONFIG"

// Environment represents the deployment environment.
type Environment string

const (
	Development Environment = "development"
	Staging     Environment = "staging"
	Production  Environment = "production"
)

// Config is the configuration of the session daemon.
type Config struct {
	// Environment selects which override section applies.
	Environment Environment `yaml:"environment"`

	// Homeserver is the base URL the CLI discovers login options on
	// when none is given on the command line. Optional.
	Homeserver string `yaml:"homeserver"`

	// DeviceDisplayName is sent with every login.
	// Default: mesh
	DeviceDisplayName string `yaml:"device_display_name"`

	// SocketPath is the Unix socket the daemon serves commands on.
	// Default: ${XDG_RUNTIME_DIR:-/tmp}/mesh-session.sock
	SocketPath string `yaml:"socket_path"`

	// LogLevel is one of debug, info, warn, error.
	// Default: info
	LogLevel string `yaml:"log_level"`

	Sync     SyncConfig     `yaml:"sync"`
	Login    LoginConfig    `yaml:"login"`
	Observer ObserverConfig `yaml:"observer"`

	Development *ConfigOverrides `yaml:"development,omitempty"`
	Staging     *ConfigOverrides `yaml:"staging,omitempty"`
	Production  *ConfigOverrides `yaml:"production,omitempty"`
}

// ConfigOverrides contains fields that can be overridden per environment.
type ConfigOverrides struct {
	Homeserver string          `yaml:"homeserver,omitempty"`
	SocketPath string          `yaml:"socket_path,omitempty"`
	LogLevel   string          `yaml:"log_level,omitempty"`
	Sync       *SyncConfig     `yaml:"sync,omitempty"`
	Login      *LoginConfig    `yaml:"login,omitempty"`
	Observer   *ObserverConfig `yaml:"observer,omitempty"`
}

// SyncConfig configures the /sync loop and room indexing.
type SyncConfig struct {
	// Timeout is the server-side long-poll timeout. Default: 30s
	Timeout time.Duration `yaml:"timeout"`

	// MaxBackoff caps the retry delay after a failed poll. Default: 30s
	MaxBackoff time.Duration `yaml:"max_backoff"`

	// MaxFailures ends the session after this many consecutive failed
	// polls. Default: 10
	MaxFailures int `yaml:"max_failures"`

	// RoomLookupConcurrency bounds concurrent room-name fetches at
	// login. Default: 8
	RoomLookupConcurrency int `yaml:"room_lookup_concurrency"`
}

// LoginConfig configures the login command.
type LoginConfig struct {
	// AttemptsPerMinute rate-limits login requests on the command
	// socket. Default: 10
	AttemptsPerMinute int `yaml:"attempts_per_minute"`
}

// ObserverConfig configures delivery of incoming text messages.
type ObserverConfig struct {
	// QueueSize is the number of messages buffered for the observer
	// before new ones are dropped. Default: 256
	QueueSize int `yaml:"queue_size"`
}

// Default returns the configuration used as the base before loading
// the config file.
func Default() *Config {
	return &Config{
		Environment:       Development,
		DeviceDisplayName: "mesh",
		SocketPath:        "${XDG_RUNTIME_DIR:-/tmp}/mesh-session.sock",
		LogLevel:          "info",
		Sync: SyncConfig{
			Timeout:               30 * time.Second,
			MaxBackoff:            30 * time.Second,
			MaxFailures:           10,
			RoomLookupConcurrency: 8,
		},
		Login: LoginConfig{
			AttemptsPerMinute: 10,
		},
		Observer: ObserverConfig{
			QueueSize: 256,
		},
	}
}

// Load loads configuration from the file named by MESH_CONFIG. It fails
// if the variable is unset.
func Load() (*Config, error) {
	configPath := os.Getenv(EnvironmentVariable)
	if configPath == "" {
		return nil, fmt.Errorf("%s environment variable not set; "+
			"set it to the path of your mesh.yaml config file, or use --config flag", EnvironmentVariable)
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from path on top of Default, applies the
// matching environment section, and expands variables.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}
	cfg.applyEnvironmentOverrides()
	cfg.ExpandVariables()
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		// JSON is valid YAML once comments and trailing commas are gone.
		data = jsonc.ToJSON(data)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnvironmentOverrides() {
	var overrides *ConfigOverrides
	switch c.Environment {
	case Development:
		overrides = c.Development
	case Staging:
		overrides = c.Staging
	case Production:
		overrides = c.Production
	}
	if overrides == nil {
		return
	}

	if overrides.Homeserver != "" {
		c.Homeserver = overrides.Homeserver
	}
	if overrides.SocketPath != "" {
		c.SocketPath = overrides.SocketPath
	}
	if overrides.LogLevel != "" {
		c.LogLevel = overrides.LogLevel
	}

	if sync := overrides.Sync; sync != nil {
		if sync.Timeout != 0 {
			c.Sync.Timeout = sync.Timeout
		}
		if sync.MaxBackoff != 0 {
			c.Sync.MaxBackoff = sync.MaxBackoff
		}
		if sync.MaxFailures != 0 {
			c.Sync.MaxFailures = sync.MaxFailures
		}
		if sync.RoomLookupConcurrency != 0 {
			c.Sync.RoomLookupConcurrency = sync.RoomLookupConcurrency
		}
	}
	if overrides.Login != nil && overrides.Login.AttemptsPerMinute != 0 {
		c.Login.AttemptsPerMinute = overrides.Login.AttemptsPerMinute
	}
	if overrides.Observer != nil && overrides.Observer.QueueSize != 0 {
		c.Observer.QueueSize = overrides.Observer.QueueSize
	}
}

// ExpandVariables expands ${VAR} patterns in path fields. LoadFile calls
// it; callers starting from Default call it themselves.
func (c *Config) ExpandVariables() {
	c.SocketPath = expandVars(c.SocketPath)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars expands ${VAR} and ${VAR:-default} from the process
// environment. Unset and empty variables take the default.
func expandVars(s string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if value := os.Getenv(parts[1]); value != "" {
			return value
		}
		return parts[2]
	})
}

// SlogLevel returns LogLevel as a slog.Level.
func (c *Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("log_level %q: %w", c.LogLevel, err)
	}
	return level, nil
}

// Validate checks the configuration for errors. Every problem is
// reported, joined.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Staging && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}
	if c.Homeserver != "" {
		parsed, err := url.Parse(c.Homeserver)
		if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
			errs = append(errs, fmt.Errorf("homeserver %q must be an http or https URL", c.Homeserver))
		}
	}
	if c.SocketPath == "" {
		errs = append(errs, errors.New("socket_path is required"))
	}
	if _, err := c.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	if c.Sync.Timeout <= 0 {
		errs = append(errs, errors.New("sync.timeout must be positive"))
	}
	if c.Sync.MaxBackoff < time.Second {
		errs = append(errs, errors.New("sync.max_backoff must be at least 1s"))
	}
	if c.Sync.MaxFailures <= 0 {
		errs = append(errs, errors.New("sync.max_failures must be positive"))
	}
	if c.Sync.RoomLookupConcurrency <= 0 {
		errs = append(errs, errors.New("sync.room_lookup_concurrency must be positive"))
	}
	if c.Login.AttemptsPerMinute <= 0 {
		errs = append(errs, errors.New("login.attempts_per_minute must be positive"))
	}
	if c.Observer.QueueSize <= 0 {
		errs = append(errs, errors.New("observer.queue_size must be positive"))
	}

	return errors.Join(errs...)
}
