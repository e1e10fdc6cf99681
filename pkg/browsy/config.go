package browsy

import (
	"fmt"
	"time"
)

const (
	DefaultPort            = 3847
	DefaultServerTimeoutMs = 10_000
)

// Config is the fully resolved browsy bridge configuration
type Config struct {
	Port                int    `json:"port"`
	AutoStart           bool   `json:"autoStart"`
	AllowPrivateNetwork bool   `json:"allowPrivateNetwork"`
	PreferBrowsy        bool   `json:"preferBrowsy"`
	ServerTimeoutMs     int    `json:"serverTimeout"`
	BinaryPath          string `json:"binaryPath,omitempty"` // takes precedence over BROWSY_BIN and PATH
}

// ConfigInput holds caller overrides. Nil fields fall back to defaults.
type ConfigInput struct {
	Port                *int    `json:"port,omitempty" mapstructure:"port"`
	AutoStart           *bool   `json:"autoStart,omitempty" mapstructure:"auto_start"`
	AllowPrivateNetwork *bool   `json:"allowPrivateNetwork,omitempty" mapstructure:"allow_private_network"`
	PreferBrowsy        *bool   `json:"preferBrowsy,omitempty" mapstructure:"prefer_browsy"`
	ServerTimeoutMs     *int    `json:"serverTimeout,omitempty" mapstructure:"server_timeout"`
	BinaryPath          *string `json:"binaryPath,omitempty" mapstructure:"binary_path"`
}

// DefaultConfig returns the built-in defaults
func DefaultConfig() Config {
	return Config{
		Port:                DefaultPort,
		AutoStart:           true,
		AllowPrivateNetwork: false,
		PreferBrowsy:        true,
		ServerTimeoutMs:     DefaultServerTimeoutMs,
	}
}

// ParseConfig merges input onto the defaults
func ParseConfig(input *ConfigInput) Config {
	cfg := DefaultConfig()
	if input == nil {
		return cfg
	}

	if input.Port != nil {
		cfg.Port = *input.Port
	}
	if input.AutoStart != nil {
		cfg.AutoStart = *input.AutoStart
	}
	if input.AllowPrivateNetwork != nil {
		cfg.AllowPrivateNetwork = *input.AllowPrivateNetwork
	}
	if input.PreferBrowsy != nil {
		cfg.PreferBrowsy = *input.PreferBrowsy
	}
	if input.ServerTimeoutMs != nil {
		cfg.ServerTimeoutMs = *input.ServerTimeoutMs
	}
	if input.BinaryPath != nil {
		cfg.BinaryPath = *input.BinaryPath
	}

	return cfg
}

// Validate checks the resolved values
func (c Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return &Error{
			Code:    ErrCodeConfiguration,
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", c.Port),
		}
	}
	if c.ServerTimeoutMs <= 0 {
		return &Error{
			Code:    ErrCodeConfiguration,
			Message: fmt.Sprintf("server timeout must be positive, got %dms", c.ServerTimeoutMs),
		}
	}
	return nil
}

// ServerTimeout returns the readiness timeout as a duration
func (c Config) ServerTimeout() time.Duration {
	return time.Duration(c.ServerTimeoutMs) * time.Millisecond
}

// BaseURL returns the address of the browsy REST API
func (c Config) BaseURL() string {
	return fmt.Sprintf("http://127.0.0.1:%d", c.Port)
}
