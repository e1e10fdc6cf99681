package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const (
	// EnvPrefix is prepended to every environment override
	EnvPrefix = "BROWSY"

	defaultDirName  = ".browsy"
	defaultFileName = "browsy.json"
)

// envBindings maps config keys to the short environment names users expect.
// Every other key is reachable as BROWSY_<SECTION>_<KEY>.
var envBindings = map[string]string{
	"browsy.port":                  "BROWSY_PORT",
	"browsy.auto_start":            "BROWSY_AUTO_START",
	"browsy.allow_private_network": "BROWSY_ALLOW_PRIVATE_NETWORK",
	"browsy.prefer_browsy":         "BROWSY_PREFER_BROWSY",
	"browsy.server_timeout":        "BROWSY_SERVER_TIMEOUT",
}

// keys registered with viper so AutomaticEnv can see them without a file entry
var envKeys = []string{
	"logging.level",
	"logging.file",
	"gateway.enabled",
	"gateway.host",
	"gateway.port",
	"gateway.shared_secret",
	"watchdog.enabled",
	"watchdog.schedule",
	"metrics.enabled",
	"tracing.enabled",
	"audit.enabled",
	"audit.path",
	"data_dir",
}

// Loader handles configuration loading
type Loader struct {
	configPath string
}

// NewLoader creates a new config loader. An empty path means ~/.browsy/browsy.json.
func NewLoader(configPath string) *Loader {
	return &Loader{configPath: configPath}
}

// Load reads the config file and environment overrides onto the defaults.
// A missing file is not an error.
func (l *Loader) Load() (*Config, error) {
	configPath := l.GetConfigPath()
	if configPath == "" {
		return nil, fmt.Errorf("failed to resolve config path: no home directory")
	}

	v := newViper(configPath)

	if _, err := os.Stat(configPath); err == nil {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := applyPathDefaults(cfg, filepath.Dir(configPath)); err != nil {
		return nil, err
	}

	return cfg, nil
}

func newViper(configPath string) *viper.Viper {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("json")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, env := range envBindings {
		_ = v.BindEnv(key, env)
	}
	for _, key := range envKeys {
		_ = v.BindEnv(key)
	}

	return v
}

// applyPathDefaults fills paths derived from the data directory
func applyPathDefaults(cfg *Config, configDir string) error {
	if cfg.DataDir == "" {
		cfg.DataDir = configDir
	}
	if cfg.Audit.Enabled && cfg.Audit.Path == "" {
		cfg.Audit.Path = filepath.Join(cfg.DataDir, "audit.jsonl")
	}
	if strings.HasPrefix(cfg.DataDir, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		cfg.DataDir = filepath.Join(home, strings.TrimPrefix(cfg.DataDir, "~"))
	}
	return nil
}

// Save writes cfg as JSON, creating the directory if needed
func (l *Loader) Save(cfg *Config) error {
	configPath := l.GetConfigPath()
	if configPath == "" {
		return fmt.Errorf("failed to resolve config path: no home directory")
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("json")

	v.Set("browsy", browsySection(cfg))
	v.Set("logging", cfg.Logging)
	v.Set("gateway", cfg.Gateway)
	v.Set("hooks", cfg.Hooks)
	v.Set("watchdog", cfg.Watchdog)
	v.Set("metrics", cfg.Metrics)
	v.Set("tracing", cfg.Tracing)
	v.Set("audit", cfg.Audit)
	v.Set("tools", cfg.Tools)
	v.Set("data_dir", cfg.DataDir)

	if err := v.WriteConfigAs(configPath); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// browsySection lists only the core settings the user set, keyed like the file
func browsySection(cfg *Config) map[string]interface{} {
	section := map[string]interface{}{}
	in := cfg.Browsy
	if in.Port != nil {
		section["port"] = *in.Port
	}
	if in.AutoStart != nil {
		section["auto_start"] = *in.AutoStart
	}
	if in.AllowPrivateNetwork != nil {
		section["allow_private_network"] = *in.AllowPrivateNetwork
	}
	if in.PreferBrowsy != nil {
		section["prefer_browsy"] = *in.PreferBrowsy
	}
	if in.ServerTimeoutMs != nil {
		section["server_timeout"] = *in.ServerTimeoutMs
	}
	if in.BinaryPath != nil {
		section["binary_path"] = *in.BinaryPath
	}
	return section
}

// GetConfigPath returns the config file path
func (l *Loader) GetConfigPath() string {
	if l.configPath != "" {
		return l.configPath
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, defaultDirName, defaultFileName)
}

// Load is a convenience function that creates a loader and loads the config
func Load(configPath string) (*Config, error) {
	return NewLoader(configPath).Load()
}
