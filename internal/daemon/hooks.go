package daemon

import (
	"strings"
	"time"

	"github.com/harun/browsy/internal/config"
	"github.com/harun/browsy/pkg/hooks"
	"github.com/rs/zerolog"
)

const defaultHookTimeout = 10 * time.Second

func newHookManager(cfg config.HooksConfig, logger zerolog.Logger) (*hooks.Manager, error) {
	hookDefs := make([]hooks.Hook, 0, len(cfg.Entries))
	for _, entry := range cfg.Entries {
		timeout := entry.Timeout()
		if timeout <= 0 {
			timeout = defaultHookTimeout
		}
		hookDefs = append(hookDefs, hooks.Hook{
			ID:      strings.TrimSpace(entry.ID),
			Event:   strings.TrimSpace(entry.Event),
			Script:  strings.TrimSpace(entry.Script),
			Timeout: timeout,
			Enabled: entry.Enabled,
		})
	}

	return hooks.NewManager(hooks.Config{
		Enabled: cfg.Enabled,
		Hooks:   hookDefs,
		Logger:  logger,
	})
}
