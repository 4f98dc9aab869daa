// Package config handles configuration loading from YAML files and environment variables.
// Configuration precedence: CLI flags > environment variables > config file > defaults.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a wrapper around time.Duration that supports YAML unmarshaling
// from human-readable strings like "30s", "5m", "1h".
type Duration struct {
	time.Duration
}

// UnmarshalYAML implements the yaml.Unmarshaler interface for Duration.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		parsed, err := time.ParseDuration(value.Value)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", value.Value, err)
		}
		d.Duration = parsed
		return nil
	default:
		return fmt.Errorf("unsupported duration format: %v", value.Kind)
	}
}

// MarshalYAML implements the yaml.Marshaler interface for Duration.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}

// Config holds all exporter configuration.
type Config struct {
	Aria     AriaConfig     `yaml:"vmware_aria"`
	Exporter ExporterConfig `yaml:"exporter"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Labels   LabelsConfig   `yaml:"labels"`
}

// AriaConfig holds the upstream Aria Operations connection settings.
type AriaConfig struct {
	Host      string `yaml:"host"`
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
	VerifySSL bool   `yaml:"verify_ssl"`
}

// ExporterConfig holds the HTTP listener and scrape-loop settings.
type ExporterConfig struct {
	Port     int      `yaml:"port"`
	Interval Duration `yaml:"interval"`
	LogLevel string   `yaml:"log_level"`
}

// MetricsConfig controls which resources are collected and how deeply.
type MetricsConfig struct {
	ResourceTypes         []string       `yaml:"resource_types"`
	DetailedResourceTypes []string       `yaml:"detailed_resource_types"`
	MaxStatsPerResource   int            `yaml:"max_stats_per_resource"`
	StatsTimeRange        Duration       `yaml:"stats_time_range"`
	MaxPages              int            `yaml:"max_pages"`
	MaxRequestsPerSecond  float64        `yaml:"max_requests_per_second"`
	CollectSupermetrics   bool           `yaml:"collect_supermetrics"`
	Timeouts              TimeoutsConfig `yaml:"timeouts"`
}

// TimeoutsConfig holds the per-call-category upstream request timeouts.
type TimeoutsConfig struct {
	Resources    Duration `yaml:"resources"`
	Alerts       Duration `yaml:"alerts"`
	Stats        Duration `yaml:"stats"`
	Supermetrics Duration `yaml:"supermetrics"`
}

// LabelsConfig holds static labels attached to every exported metric.
type LabelsConfig struct {
	Static map[string]string `yaml:"static"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Aria: AriaConfig{
			VerifySSL: false,
		},
		Exporter: ExporterConfig{
			Port:     9273,
			Interval: Duration{5 * time.Minute},
			LogLevel: "info",
		},
		Metrics: MetricsConfig{
			ResourceTypes: []string{
				"VirtualMachine", "HostSystem", "Datastore", "ClusterComputeResource",
			},
			DetailedResourceTypes: []string{
				"VirtualMachine", "HostSystem", "ClusterComputeResource",
			},
			MaxStatsPerResource:  10,
			StatsTimeRange:       Duration{1 * time.Hour},
			MaxPages:             50,
			MaxRequestsPerSecond: 20,
			CollectSupermetrics:  true,
			Timeouts: TimeoutsConfig{
				Resources:    Duration{60 * time.Second},
				Alerts:       Duration{30 * time.Second},
				Stats:        Duration{45 * time.Second},
				Supermetrics: Duration{30 * time.Second},
			},
		},
		Labels: LabelsConfig{
			Static: map[string]string{},
		},
	}
}

// CLIOverrides holds values from command-line flags.
// Zero values are treated as "not set" and skipped.
type CLIOverrides struct {
	Host      string
	Username  string
	Password  string
	Port      int
	Interval  time.Duration
	VerifySSL *bool
	LogLevel  string
}

// Load reads configuration with the full precedence chain:
// CLI flags > env vars > YAML file > defaults.
// If path is empty or the file does not exist, the file layer is skipped.
func Load(path string, cli CLIOverrides) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("reading config file: %w", err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)
	applyCLIOverrides(cfg, cli)

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) {
	if host := os.Getenv("VMWARE_ARIA_HOST"); host != "" {
		cfg.Aria.Host = host
	}
	if user := os.Getenv("VMWARE_ARIA_USERNAME"); user != "" {
		cfg.Aria.Username = user
	}
	if pass := os.Getenv("VMWARE_ARIA_PASSWORD"); pass != "" {
		cfg.Aria.Password = pass
	}
	if verify := os.Getenv("VMWARE_ARIA_VERIFY_SSL"); verify != "" {
		cfg.Aria.VerifySSL = verify == "true" || verify == "1"
	}
	if port := os.Getenv("EXPORTER_PORT"); port != "" {
		var p int
		if _, err := fmt.Sscanf(port, "%d", &p); err == nil && p > 0 {
			cfg.Exporter.Port = p
		}
	}
	if level := os.Getenv("EXPORTER_LOG_LEVEL"); level != "" {
		cfg.Exporter.LogLevel = strings.ToLower(level)
	}
}

// applyCLIOverrides applies command-line flag overrides (highest precedence).
func applyCLIOverrides(cfg *Config, cli CLIOverrides) {
	if cli.Host != "" {
		cfg.Aria.Host = cli.Host
	}
	if cli.Username != "" {
		cfg.Aria.Username = cli.Username
	}
	if cli.Password != "" {
		cfg.Aria.Password = cli.Password
	}
	if cli.Port > 0 {
		cfg.Exporter.Port = cli.Port
	}
	if cli.Interval > 0 {
		cfg.Exporter.Interval = Duration{cli.Interval}
	}
	if cli.VerifySSL != nil {
		cfg.Aria.VerifySSL = *cli.VerifySSL
	}
	if cli.LogLevel != "" {
		cfg.Exporter.LogLevel = cli.LogLevel
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Aria.Host == "" {
		return fmt.Errorf("vmware_aria.host is required")
	}
	if c.Aria.Username == "" {
		return fmt.Errorf("vmware_aria.username is required")
	}
	if c.Aria.Password == "" {
		return fmt.Errorf("vmware_aria.password is required (config or VMWARE_ARIA_PASSWORD)")
	}
	if c.Exporter.Port <= 0 || c.Exporter.Port > 65535 {
		return fmt.Errorf("exporter.port %d is out of range", c.Exporter.Port)
	}
	if c.Exporter.Interval.Duration <= 0 {
		return fmt.Errorf("exporter.interval must be positive")
	}
	if len(c.Metrics.ResourceTypes) == 0 {
		return fmt.Errorf("metrics.resource_types must not be empty")
	}
	if c.Metrics.MaxStatsPerResource < 0 {
		return fmt.Errorf("metrics.max_stats_per_resource must not be negative")
	}
	for name, v := range map[string]time.Duration{
		"resources":    c.Metrics.Timeouts.Resources.Duration,
		"alerts":       c.Metrics.Timeouts.Alerts.Duration,
		"stats":        c.Metrics.Timeouts.Stats.Duration,
		"supermetrics": c.Metrics.Timeouts.Supermetrics.Duration,
	} {
		if v <= 0 {
			return fmt.Errorf("metrics.timeouts.%s must be positive", name)
		}
	}
	return nil
}
