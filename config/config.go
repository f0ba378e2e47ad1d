// Package config loads server configuration from YAML, TOML, or JSON
// files with environment-variable overrides, and validates the result
// before the server starts.
package config

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v6"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Operator is an operator credential entry. Hash is a bcrypt hash of the
// operator password; plaintext never appears in configuration.
type Operator struct {
	Name string `yaml:"name" toml:"name" json:"name" validate:"required"`
	Hash string `yaml:"hash" toml:"hash" json:"hash" validate:"required"`
}

// Admin configures the HTTP admin listener.
type Admin struct {
	Enabled bool   `yaml:"enabled" toml:"enabled" json:"enabled" env:"IRCD_ADMIN_ENABLED"`
	Host    string `yaml:"host" toml:"host" json:"host" env:"IRCD_ADMIN_HOST"`
	Port    int    `yaml:"port" toml:"port" json:"port" env:"IRCD_ADMIN_PORT" validate:"omitempty,gte=1,lte=65535"`
	Metrics bool   `yaml:"metrics" toml:"metrics" json:"metrics" env:"IRCD_ADMIN_METRICS"`
}

// Config represents the server configuration. Precedence, lowest to
// highest: built-in defaults, configuration file, environment variables,
// command-line arguments.
type Config struct {
	ServerName string `yaml:"server_name" toml:"server_name" json:"server_name" env:"IRCD_SERVER_NAME" validate:"required"`
	Host       string `yaml:"host" toml:"host" json:"host" env:"IRCD_HOST"`
	Port       int    `yaml:"port" toml:"port" json:"port" env:"IRCD_PORT" validate:"required,gte=1024,lte=65535"`
	Password   string `yaml:"password" toml:"password" json:"password" env:"IRCD_PASSWORD"`

	MOTD []string `yaml:"motd" toml:"motd" json:"motd" env:"IRCD_MOTD" envSeparator:"|"`

	Operators []Operator `yaml:"operators" toml:"operators" json:"operators" validate:"dive"`

	Admin Admin `yaml:"admin" toml:"admin" json:"admin"`

	Debug bool `yaml:"debug" toml:"debug" json:"debug" env:"IRCD_DEBUG"`

	// Configuration source for diagnostics
	Source string `yaml:"-" toml:"-" json:"-"`
}

// New returns a configuration with the built-in defaults.
func New() *Config {
	cfg := &Config{
		ServerName: "ircserv",
		Host:       "",
		Port:       6667,
	}
	cfg.Admin.Host = "127.0.0.1"
	cfg.Admin.Port = 8090
	cfg.Admin.Metrics = true
	return cfg
}

// Load reads configuration from a file or URL, applies environment
// overrides, and validates the result.
func Load(source string) (*Config, error) {
	cfg := New()

	if err := cfg.loadFromSource(source); err != nil {
		return nil, err
	}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment variables: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromEnv builds a configuration from defaults and environment variables
// alone, for running without a configuration file.
func FromEnv() (*Config, error) {
	cfg := New()

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment variables: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFromSource loads configuration from a file or URL, picking the
// format from the file extension. YAML is the default.
func (c *Config) loadFromSource(source string) error {
	var data []byte
	var err error

	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		resp, err := http.Get(source)
		if err != nil {
			return fmt.Errorf("failed to load config from URL: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("failed to load config from URL, status: %s", resp.Status)
		}

		data, err = io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read config from URL: %w", err)
		}
	} else {
		data, err = os.ReadFile(source)
		if err != nil {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}

	switch {
	case strings.HasSuffix(source, ".yaml") || strings.HasSuffix(source, ".yml"):
		err = yaml.Unmarshal(data, c)
	case strings.HasSuffix(source, ".toml"):
		err = toml.Unmarshal(data, c)
	case strings.HasSuffix(source, ".json"):
		err = json.Unmarshal(data, c)
	default:
		err = yaml.Unmarshal(data, c)
	}
	if err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}

	c.Source = source
	return nil
}

// Validate checks the configuration against its declared constraints.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// ListenAddr returns the host:port the IRC listener binds.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// AdminAddr returns the host:port the admin listener binds.
func (c *Config) AdminAddr() string {
	return fmt.Sprintf("%s:%d", c.Admin.Host, c.Admin.Port)
}

// FindOperator looks up an operator credential by name.
func (c *Config) FindOperator(name string) (Operator, bool) {
	for _, op := range c.Operators {
		if op.Name == name {
			return op, true
		}
	}
	return Operator{}, false
}
