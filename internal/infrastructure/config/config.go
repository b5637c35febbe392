package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for kasad.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	API       APIConfig       `yaml:"api"`
	UDP       UDPConfig       `yaml:"udp"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Kasaconf  KasaconfConfig  `yaml:"kasaconf"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`

	// PublicHost is the identity reported in /kasa/status's "host" field.
	// Defaults to the OS hostname when empty.
	PublicHost string `yaml:"public_host"`

	// Proxy is the portal/reverse-proxy base URL reported in the same
	// response. Registration with the portal is handled elsewhere; the
	// status payload only names it.
	Proxy string `yaml:"proxy"`
}

// APITimeoutConfig contains HTTP timeout settings (seconds).
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// UDPConfig contains settings for the Kasa UDP transport.
type UDPConfig struct {
	// ListenAddr is the local address the socket binds to, e.g. "0.0.0.0:0"
	// for an ephemeral port. Default: "0.0.0.0:0".
	ListenAddr string `yaml:"listen_addr"`

	// DevicePort is the UDP port Kasa devices listen on. Default: 9999.
	DevicePort int `yaml:"device_port"`
}

// DiscoveryConfig contains the discovery and command timing
// parameters. Fields left at zero take the documented default;
// overriding them is intended for testing, not production tuning.
type DiscoveryConfig struct {
	// TickInterval is how often the host loop drives Manager.Tick. Default: 1s.
	TickInterval time.Duration `yaml:"tick_interval"`

	// BroadcastSweepInterval is the cadence of the all-targets sense sweep. Default: 60s.
	BroadcastSweepInterval time.Duration `yaml:"broadcast_sweep_interval"`

	// ProbeInterval is the cadence of per-device directed probes. Default: 5s.
	ProbeInterval time.Duration `yaml:"probe_interval"`

	// ProbeStaleAfter is how old lastSense must be before a directed probe fires. Default: 35s.
	ProbeStaleAfter time.Duration `yaml:"probe_stale_after"`

	// SilenceAfter is how long since detected before a device is declared silent. Default: 100s.
	SilenceAfter time.Duration `yaml:"silence_after"`

	// CommandTimeout is the pending-confirmation deadline set by set(). Default: 5s.
	CommandTimeout time.Duration `yaml:"command_timeout"`
}

// KasaconfConfig locates the persisted device/broadcast-target
// document. This is distinct from the service config file itself; it
// is the JSON document the configuration bridge loads and re-saves.
type KasaconfConfig struct {
	// Path is the filesystem path of the JSON document.
	Path string `yaml:"path"`

	// SaveCheckInterval is how often the DeviceListChanged flag is polled. Default: 5s.
	SaveCheckInterval time.Duration `yaml:"save_check_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: KASAD_SECTION_KEY.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with the standard cadence defaults.
func defaultConfig() *Config {
	return &Config{
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		UDP: UDPConfig{
			ListenAddr: "0.0.0.0:0",
			DevicePort: 9999,
		},
		Discovery: DiscoveryConfig{
			TickInterval:           time.Second,
			BroadcastSweepInterval: 60 * time.Second,
			ProbeInterval:          5 * time.Second,
			ProbeStaleAfter:        35 * time.Second,
			SilenceAfter:           100 * time.Second,
			CommandTimeout:         5 * time.Second,
		},
		Kasaconf: KasaconfConfig{
			Path:              "./data/kasa.json",
			SaveCheckInterval: 5 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("KASAD_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("KASAD_KASACONF_PATH"); v != "" {
		cfg.Kasaconf.Path = v
	}
	if v := os.Getenv("KASAD_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}
	if c.UDP.DevicePort < 1 || c.UDP.DevicePort > 65535 {
		errs = append(errs, "udp.device_port must be between 1 and 65535")
	}
	if c.Kasaconf.Path == "" {
		errs = append(errs, "kasaconf.path is required")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
