// Package config loads the service configuration from a YAML file with
// environment variable overrides for the secrets and deploy-specific values.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings like "30s".
// Bare integers are read as seconds.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		v, perr := time.ParseDuration(s)
		if perr != nil {
			return fmt.Errorf("invalid duration %q: %w", s, perr)
		}
		*d = Duration(v)
		return nil
	}
	var secs int64
	if err := value.Decode(&secs); err != nil {
		return fmt.Errorf("invalid duration value at line %d", value.Line)
	}
	*d = Duration(time.Duration(secs) * time.Second)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// DeviceConfig identifies the point-of-sale terminal to the gateway.
type DeviceConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
	User string `yaml:"user"`
}

// Config is the full service configuration.
type Config struct {
	APIKey    string       `yaml:"api_key"`
	SecretKey string       `yaml:"secret_key"`
	BaseURL   string       `yaml:"base_url"`
	GroupID   string       `yaml:"group_id"`
	Device    DeviceConfig `yaml:"device"`

	ListenAddr   string   `yaml:"listen_addr"`
	HTTPTimeout  Duration `yaml:"http_timeout"`
	PollInterval Duration `yaml:"poll_interval"`
	PollAttempts int      `yaml:"poll_attempts"`

	// Mock replaces the real gateway with a simulated one. Credentials are
	// not required in this mode.
	Mock bool `yaml:"mock"`
}

// Load reads the configuration from path, applies environment overrides and
// defaults, and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("QRPAY_API_KEY"); v != "" {
		c.APIKey = v
	}
	if v := os.Getenv("QRPAY_SECRET_KEY"); v != "" {
		c.SecretKey = v
	}
	if v := os.Getenv("QRPAY_BASE_URL"); v != "" {
		c.BaseURL = v
	}
	if v := os.Getenv("QRPAY_GROUP_ID"); v != "" {
		c.GroupID = v
	}
	if v := os.Getenv("QRPAY_DEVICE_ID"); v != "" {
		c.Device.ID = v
	}
}

func (c *Config) applyDefaults() {
	if c.ListenAddr == "" {
		c.ListenAddr = ":8080"
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = Duration(30 * time.Second)
	}
	if c.PollInterval <= 0 {
		c.PollInterval = Duration(2 * time.Second)
	}
	if c.PollAttempts <= 0 {
		c.PollAttempts = 60
	}
}

// Validate checks that the configuration is usable. In mock mode the gateway
// credentials are optional.
func (c *Config) Validate() error {
	if c.Mock {
		return nil
	}
	if c.APIKey == "" {
		return fmt.Errorf("api_key is required (or set QRPAY_API_KEY)")
	}
	if c.SecretKey == "" {
		return fmt.Errorf("secret_key is required (or set QRPAY_SECRET_KEY)")
	}
	if c.BaseURL == "" {
		return fmt.Errorf("base_url is required (or set QRPAY_BASE_URL)")
	}
	if c.GroupID == "" {
		return fmt.Errorf("group_id is required (or set QRPAY_GROUP_ID)")
	}
	if c.Device.ID == "" {
		return fmt.Errorf("device.id is required (or set QRPAY_DEVICE_ID)")
	}
	return nil
}
