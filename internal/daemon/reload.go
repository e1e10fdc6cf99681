package daemon

import (
	"context"
	"fmt"
	"time"

	"github.com/harun/browsy/internal/config"
	"github.com/harun/browsy/internal/observability"
)

const reloadTimeout = 30 * time.Second

// Reload applies a changed config file. Only the browsy section and tool
// settings take effect live; gateway, watchdog and hooks need a restart.
func (d *Daemon) Reload(next *config.Config) error {
	if err := next.Validate(); err != nil {
		return err
	}
	browsyCfg, err := next.BrowsyConfig()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), reloadTimeout)
	defer cancel()

	if err := d.browsy.Reconfigure(ctx, browsyCfg); err != nil {
		observability.RecordConfigAudit(ctx, "config.reload", "watcher", map[string]interface{}{"error": err.Error()})
		return fmt.Errorf("failed to apply browsy config: %w", err)
	}
	d.toolExecutor.SetMaxOutput(next.Tools.MaxOutputBytes)

	d.mu.Lock()
	prev := d.config
	d.config = next
	d.mu.Unlock()

	if prev.Gateway != next.Gateway || prev.Watchdog != next.Watchdog || prev.Hooks.Enabled != next.Hooks.Enabled {
		d.logger.Warn().Msg("Gateway, watchdog and hook changes apply after restart")
	}

	observability.RecordConfigAudit(ctx, "config.reload", "watcher", map[string]interface{}{
		"port":          browsyCfg.Port,
		"auto_start":    browsyCfg.AutoStart,
		"prefer_browsy": browsyCfg.PreferBrowsy,
	})
	d.logger.Info().Int("port", browsyCfg.Port).Msg("Configuration reloaded")
	return nil
}
