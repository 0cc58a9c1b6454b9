// Package config loads and validates the pakctl configuration file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	pakerrors "git.home.luguber.info/inful/pakctl/internal/errors"
)

// Config represents the application configuration.
type Config struct {
	Daemon   DaemonConfig   `yaml:"daemon"`
	Journal  JournalConfig  `yaml:"journal"`
	Monitor  MonitorConfig  `yaml:"monitor"`
	Logging  LoggingConfig  `yaml:"logging"`
	Packages PackagesConfig `yaml:"packages"`
}

// DaemonConfig describes how to reach the package daemon.
type DaemonConfig struct {
	// Socket is the daemon's unix control socket.
	Socket string `yaml:"socket,omitempty"`
	// Transport selects the change event stream: "sse" reads the daemon's
	// HTTP event feed, "nats" subscribes to the broker instead.
	Transport Transport  `yaml:"transport,omitempty"`
	NATS      NATSConfig `yaml:"nats,omitempty"`
}

// NATSConfig configures the broker-based change event stream.
type NATSConfig struct {
	URL           string `yaml:"url,omitempty"`
	SubjectPrefix string `yaml:"subject_prefix,omitempty"`
}

// JournalConfig configures the change-event journal.
type JournalConfig struct {
	// Path is the sqlite database path; ":memory:" keeps the journal
	// session-local.
	Path string `yaml:"path,omitempty"`
}

// MonitorConfig configures the local monitoring endpoint and the periodic
// update recheck.
type MonitorConfig struct {
	Enabled bool   `yaml:"enabled,omitempty"`
	Addr    string `yaml:"addr,omitempty"`
	// UpdateCheckInterval is a duration string ("30m", "1h").
	UpdateCheckInterval string `yaml:"update_check_interval,omitempty"`
}

// LoggingConfig configures structured logging output.
type LoggingConfig struct {
	Level  string `yaml:"level,omitempty"`
	Format string `yaml:"format,omitempty"`
}

// PackagesConfig lists the packages tracked across sessions and the
// channel used when a package tracks none.
type PackagesConfig struct {
	Tracked        []string `yaml:"tracked,omitempty"`
	DefaultChannel string   `yaml:"default_channel,omitempty"`
}

// Default configuration values.
const (
	DefaultSocket              = "/run/pakd.socket"
	DefaultJournalPath         = ":memory:"
	DefaultMonitorAddr         = "127.0.0.1:9716"
	DefaultUpdateCheckInterval = 30 * time.Minute
	DefaultNATSSubjectPrefix   = "pakd"
)

// Load loads configuration from the specified file. A missing file yields
// the defaults rather than an error; pakctl is usable unconfigured.
func Load(configPath string) (*Config, error) {
	// Load .env file if it exists
	if err := loadEnvFile(); err != nil {
		// Don't fail if .env doesn't exist, just log it
		fmt.Fprintf(os.Stderr, "Note: .env file not found or couldn't be loaded: %v\n", err)
	}

	config := &Config{}
	if _, err := os.Stat(configPath); err == nil {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		// Expand environment variables in the YAML content
		expandedData := os.ExpandEnv(string(data))

		if err := yaml.Unmarshal([]byte(expandedData), config); err != nil {
			return nil, pakerrors.Wrap(err, pakerrors.CategoryConfig, pakerrors.SeverityFatal,
				"failed to unmarshal config").WithContext("path", configPath)
		}
	}

	config.applyDefaults()
	if err := config.validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) applyDefaults() {
	if c.Daemon.Socket == "" {
		c.Daemon.Socket = DefaultSocket
	}
	c.Daemon.Transport = NormalizeTransport(string(c.Daemon.Transport))
	if c.Daemon.NATS.SubjectPrefix == "" {
		c.Daemon.NATS.SubjectPrefix = DefaultNATSSubjectPrefix
	}
	if c.Journal.Path == "" {
		c.Journal.Path = DefaultJournalPath
	}
	if c.Monitor.Addr == "" {
		c.Monitor.Addr = DefaultMonitorAddr
	}
	if c.Monitor.UpdateCheckInterval == "" {
		c.Monitor.UpdateCheckInterval = DefaultUpdateCheckInterval.String()
	}
}

func (c *Config) validate() error {
	if _, err := time.ParseDuration(c.Monitor.UpdateCheckInterval); err != nil {
		return pakerrors.Wrap(err, pakerrors.CategoryValidation, pakerrors.SeverityFatal,
			"invalid monitor.update_check_interval")
	}
	if c.Daemon.Transport == TransportNATS && c.Daemon.NATS.URL == "" {
		return pakerrors.New(pakerrors.CategoryValidation, pakerrors.SeverityFatal,
			"daemon.nats.url is required with the nats transport")
	}
	return nil
}

// UpdateCheckInterval returns the parsed recheck interval. Load validated
// the string, so a parse failure here means the config was mutated since.
func (c *Config) UpdateCheckInterval() time.Duration {
	d, err := time.ParseDuration(c.Monitor.UpdateCheckInterval)
	if err != nil {
		return DefaultUpdateCheckInterval
	}
	return d
}
