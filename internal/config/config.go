package config

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/harun/browsy/internal/logger"
	"github.com/harun/browsy/pkg/browsy"
	"github.com/harun/browsy/pkg/toolexecutor"
)

// Config represents the browsy bridge configuration file
type Config struct {
	// Browsy holds the bridge core settings. Unset fields take the built-in defaults.
	Browsy browsy.ConfigInput `json:"browsy" mapstructure:"browsy"`

	Logging  LoggingConfig  `json:"logging" mapstructure:"logging"`
	Gateway  GatewayConfig  `json:"gateway" mapstructure:"gateway"`
	Hooks    HooksConfig    `json:"hooks" mapstructure:"hooks"`
	Watchdog WatchdogConfig `json:"watchdog" mapstructure:"watchdog"`
	Metrics  MetricsConfig  `json:"metrics" mapstructure:"metrics"`
	Tracing  TracingConfig  `json:"tracing" mapstructure:"tracing"`
	Audit    AuditConfig    `json:"audit" mapstructure:"audit"`
	Tools    ToolsConfig    `json:"tools" mapstructure:"tools"`

	// Data directory for logs and the audit trail
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	Console   bool   `json:"console" mapstructure:"console"`
	Pretty    bool   `json:"pretty" mapstructure:"pretty"`
	MaxSize   int    `json:"max_size" mapstructure:"max_size"` // MB
	MaxAge    int    `json:"max_age" mapstructure:"max_age"`   // days
	Compress  bool   `json:"compress" mapstructure:"compress"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
}

// GatewayConfig holds the JSON-RPC gateway settings
type GatewayConfig struct {
	Enabled      bool   `json:"enabled" mapstructure:"enabled"`
	Port         int    `json:"port" mapstructure:"port"`
	Host         string `json:"host" mapstructure:"host"`
	SharedSecret string `json:"shared_secret" mapstructure:"shared_secret"`
}

// HooksConfig configures lifecycle shell hooks
type HooksConfig struct {
	Enabled bool        `json:"enabled" mapstructure:"enabled"`
	Entries []HookEntry `json:"entries" mapstructure:"entries"`
}

// HookEntry is one shell hook bound to a server lifecycle event
type HookEntry struct {
	ID             string `json:"id" mapstructure:"id"`
	Event          string `json:"event" mapstructure:"event"` // server.started, server.stopped, server.error, server.unhealthy
	Script         string `json:"script" mapstructure:"script"`
	TimeoutSeconds int    `json:"timeout_seconds" mapstructure:"timeout_seconds"`
	Enabled        bool   `json:"enabled" mapstructure:"enabled"`
}

// Timeout returns the hook timeout as a duration
func (h HookEntry) Timeout() time.Duration {
	return time.Duration(h.TimeoutSeconds) * time.Second
}

// WatchdogConfig configures the periodic health probe
type WatchdogConfig struct {
	Enabled  bool   `json:"enabled" mapstructure:"enabled"`
	Schedule string `json:"schedule" mapstructure:"schedule"` // cron spec, e.g. "@every 30s"
}

// MetricsConfig toggles the prometheus endpoint on the gateway
type MetricsConfig struct {
	Enabled bool `json:"enabled" mapstructure:"enabled"`
}

// TracingConfig configures OpenTelemetry
type TracingConfig struct {
	Enabled     bool    `json:"enabled" mapstructure:"enabled"`
	ServiceName string  `json:"service_name" mapstructure:"service_name"`
	SampleRatio float64 `json:"sample_ratio" mapstructure:"sample_ratio"`
}

// AuditConfig configures the JSON lines audit trail
type AuditConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Path    string `json:"path" mapstructure:"path"`
}

// ToolsConfig configures the agent-facing tool layer
type ToolsConfig struct {
	Policy         toolexecutor.ToolPolicy `json:"policy" mapstructure:"policy"`
	TimeoutSeconds int                     `json:"timeout_seconds" mapstructure:"timeout_seconds"`
	MaxOutputBytes int                     `json:"max_output_bytes" mapstructure:"max_output_bytes"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:     "info",
			Console:   true,
			Pretty:    true,
			MaxSize:   50,
			MaxAge:    7,
			Compress:  true,
			Redaction: true,
		},
		Gateway: GatewayConfig{
			Enabled: true,
			Port:    3848,
			Host:    "127.0.0.1",
		},
		Watchdog: WatchdogConfig{
			Enabled:  true,
			Schedule: "@every 30s",
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
		Tracing: TracingConfig{
			ServiceName: "browsy-bridge",
			SampleRatio: 1,
		},
		Tools: ToolsConfig{
			Policy: toolexecutor.ToolPolicy{
				Allow: []string{"*"},
				Deny:  []string{},
			},
			TimeoutSeconds: 90,
			MaxOutputBytes: 64 * 1024,
		},
	}
}

// BrowsyConfig resolves the core settings against the defaults
func (c *Config) BrowsyConfig() (browsy.Config, error) {
	cfg := browsy.ParseConfig(&c.Browsy)
	if err := cfg.Validate(); err != nil {
		return browsy.Config{}, err
	}
	return cfg, nil
}

// LoggerConfig converts the logging section for internal/logger
func (c *Config) LoggerConfig() logger.Config {
	return logger.Config{
		Level:      c.Logging.Level,
		File:       c.Logging.File,
		Console:    c.Logging.Console,
		Pretty:     c.Logging.Pretty,
		Redaction:  c.Logging.Redaction,
		MaxSizeMB:  c.Logging.MaxSize,
		MaxAgeDays: c.Logging.MaxAge,
		Compress:   c.Logging.Compress,
	}
}

// GatewayAddr returns host:port for the gateway listener
func (c *Config) GatewayAddr() string {
	return fmt.Sprintf("%s:%d", c.Gateway.Host, c.Gateway.Port)
}

// ToolTimeout returns the per-call tool timeout
func (c *Config) ToolTimeout() time.Duration {
	return time.Duration(c.Tools.TimeoutSeconds) * time.Second
}

// String returns a JSON representation of the config with secrets masked
func (c *Config) String() string {
	masked := *c
	if masked.Gateway.SharedSecret != "" {
		masked.Gateway.SharedSecret = "***"
	}
	data, _ := json.MarshalIndent(masked, "", "  ")
	return string(data)
}

// Validate checks the configuration and reports the first problem
func (c *Config) Validate() error {
	if errs := NewValidator().ValidateConfig(c); len(errs) > 0 {
		return errs[0]
	}
	return nil
}
