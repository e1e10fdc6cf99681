package config

import (
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"
)

// HookEvents lists the lifecycle events a hook may subscribe to
var HookEvents = []string{"server.started", "server.stopped", "server.error", "server.unhealthy"}

// Validator validates configuration values
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidatePort checks a TCP port number
func (v *Validator) ValidatePort(name string, port int) error {
	if port <= 0 || port > 65535 {
		return fmt.Errorf("%s must be between 1 and 65535, got %d", name, port)
	}
	return nil
}

// ValidateLogLevel validates log level
func (v *Validator) ValidateLogLevel(level string) error {
	validLevels := []string{"debug", "info", "warn", "error"}
	for _, valid := range validLevels {
		if level == valid {
			return nil
		}
	}
	return fmt.Errorf("invalid log level: %s (must be one of: %s)", level, strings.Join(validLevels, ", "))
}

// ValidateSchedule checks a watchdog cron spec
func (v *Validator) ValidateSchedule(spec string) error {
	if strings.TrimSpace(spec) == "" {
		return fmt.Errorf("watchdog schedule cannot be empty")
	}
	if _, err := cron.ParseStandard(spec); err != nil {
		return fmt.Errorf("invalid watchdog schedule %q: %w", spec, err)
	}
	return nil
}

// ValidateHookEvent checks that a hook targets a known lifecycle event
func (v *Validator) ValidateHookEvent(event string) error {
	for _, known := range HookEvents {
		if event == known {
			return nil
		}
	}
	return fmt.Errorf("unknown hook event %q (must be one of: %s)", event, strings.Join(HookEvents, ", "))
}

// ValidateConfig performs comprehensive validation and returns every problem found
func (v *Validator) ValidateConfig(cfg *Config) []error {
	var errs []error

	if _, err := cfg.BrowsyConfig(); err != nil {
		errs = append(errs, fmt.Errorf("browsy: %w", err))
	}

	if cfg.Gateway.Enabled {
		if err := v.ValidatePort("gateway port", cfg.Gateway.Port); err != nil {
			errs = append(errs, err)
		}
		if strings.TrimSpace(cfg.Gateway.Host) == "" {
			errs = append(errs, fmt.Errorf("gateway host is required when the gateway is enabled"))
		}
		if browsyCfg, err := cfg.BrowsyConfig(); err == nil && browsyCfg.Port == cfg.Gateway.Port {
			errs = append(errs, fmt.Errorf("gateway port %d collides with the browsy server port", cfg.Gateway.Port))
		}
	}

	if cfg.Watchdog.Enabled {
		if err := v.ValidateSchedule(cfg.Watchdog.Schedule); err != nil {
			errs = append(errs, err)
		}
	}

	if cfg.Hooks.Enabled {
		for i, hook := range cfg.Hooks.Entries {
			if !hook.Enabled {
				continue
			}
			if err := v.ValidateHookEvent(strings.TrimSpace(hook.Event)); err != nil {
				errs = append(errs, fmt.Errorf("hook %d: %w", i, err))
			}
			if strings.TrimSpace(hook.Script) == "" {
				errs = append(errs, fmt.Errorf("hook %d: script is required", i))
			}
			if hook.TimeoutSeconds < 0 {
				errs = append(errs, fmt.Errorf("hook %d: timeout_seconds must be >= 0", i))
			}
		}
	}

	if cfg.Tracing.Enabled && (cfg.Tracing.SampleRatio < 0 || cfg.Tracing.SampleRatio > 1) {
		errs = append(errs, fmt.Errorf("tracing sample_ratio must be between 0 and 1, got %v", cfg.Tracing.SampleRatio))
	}

	if cfg.Tools.TimeoutSeconds < 0 {
		errs = append(errs, fmt.Errorf("tools.timeout_seconds must be >= 0"))
	}
	if cfg.Tools.MaxOutputBytes < 0 {
		errs = append(errs, fmt.Errorf("tools.max_output_bytes must be >= 0"))
	}

	if err := v.ValidateLogLevel(cfg.Logging.Level); err != nil {
		errs = append(errs, err)
	}

	return errs
}
