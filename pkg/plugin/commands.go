package plugin

import (
	"fmt"
	"strings"
	"time"

	"github.com/harun/browsy/pkg/browsy"
)

const tokenPreviewLen = 8

// Commands returns the text commands offered to the host
func Commands(bc *browsy.BrowsyContext) map[string]Command {
	return map[string]Command{
		"browsy-status": {
			Description: "Show browsy server status: running/stopped, port, PID",
			Handler:     func() string { return StatusText(bc) },
		},
		"browsy-sessions": {
			Description: "List active browsy browsing sessions",
			Handler:     func() string { return SessionsText(bc) },
		},
	}
}

// StatusText renders the server status block
func StatusText(bc *browsy.BrowsyContext) string {
	info := bc.Status()

	lines := []string{
		"=== Browsy Status ===",
		fmt.Sprintf("Status: %s", info.Status),
		fmt.Sprintf("Port: %d", info.Port),
	}
	if info.PID > 0 {
		lines = append(lines, fmt.Sprintf("PID: %d", info.PID))
	}
	if info.Error != "" {
		lines = append(lines, fmt.Sprintf("Error: %s", info.Error))
	}
	lines = append(lines, fmt.Sprintf("Active sessions: %d", bc.Sessions().Count()))

	return strings.Join(lines, "\n")
}

// SessionsText renders one line per session with the token shortened
func SessionsText(bc *browsy.BrowsyContext) string {
	sessions := bc.Sessions().List()
	if len(sessions) == 0 {
		return "No active browsy sessions."
	}

	lines := make([]string, 0, len(sessions)+1)
	lines = append(lines, fmt.Sprintf("=== Browsy Sessions (%d) ===", len(sessions)))
	for _, s := range sessions {
		lines = append(lines, fmt.Sprintf("  %s: token=%s created=%s",
			s.AgentID, previewToken(s.Token), s.CreatedAt.UTC().Format(time.RFC3339)))
	}
	return strings.Join(lines, "\n")
}

func previewToken(token string) string {
	if token == "" {
		return "(pending)"
	}
	if len(token) > tokenPreviewLen {
		token = token[:tokenPreviewLen]
	}
	return token + "..."
}
