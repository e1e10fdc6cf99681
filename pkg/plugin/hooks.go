package plugin

import (
	"context"
	"fmt"

	"github.com/harun/browsy/pkg/browsy"
	"github.com/harun/browsy/pkg/toolexecutor"
	"github.com/rs/zerolog/log"
)

// BrowserToolNames are the built-in browser tools browsy replaces
var BrowserToolNames = map[string]struct{}{
	"browser":            {},
	"web_browser":        {},
	"playwright_browser": {},
	"browse_web":         {},
}

// NewPreToolExecutionHook aborts built-in browser tool calls while the
// context prefers browsy. The setting is read on every call so a reload
// takes effect immediately.
func NewPreToolExecutionHook(bc *browsy.BrowsyContext) PreToolHook {
	return func(ctx context.Context, event *ToolEvent) {
		if !bc.Config().PreferBrowsy {
			return
		}
		if _, ok := BrowserToolNames[event.ToolName]; !ok {
			return
		}

		log.Debug().
			Str("tool", event.ToolName).
			Str("agent", event.AgentName).
			Msg("Intercepted built-in browser tool")

		event.Abort(fmt.Sprintf(
			"[BROWSY] Tool '%s' intercepted, use browsy_browse instead for faster execution. "+
				"browsy is a zero-render browser that handles this at 10x speed.",
			event.ToolName,
		))
	}
}

// NewAgentBootstrapHook appends the browsy tools to an agent's tool list.
// Tools the agent already has by name are left alone.
func NewAgentBootstrapHook(bc *browsy.BrowsyContext) BootstrapHook {
	return func(ctx context.Context, event *BootstrapEvent) {
		existing := make(map[string]struct{}, len(event.Tools))
		for _, tool := range event.Tools {
			existing[tool.Name] = struct{}{}
		}

		merged := append([]toolexecutor.ToolDefinition(nil), event.Tools...)
		for _, tool := range browsy.ToolDefinitions(bc) {
			if _, ok := existing[tool.Name]; ok {
				continue
			}
			merged = append(merged, tool)
		}

		event.ReplaceTools(merged)
	}
}
