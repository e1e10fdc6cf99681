package hooks

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/harun/browsy/pkg/browsy"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManagerTriggerExecutesHookScript(t *testing.T) {
	outputPath := filepath.Join(t.TempDir(), "startup.txt")
	hookScript := "echo startup > " + outputPath

	manager, err := NewManager(Config{
		Enabled: true,
		Logger:  zerolog.Nop(),
		Hooks: []Hook{
			{
				ID:      "startup",
				Event:   "server.started",
				Script:  hookScript,
				Enabled: true,
			},
		},
	})
	require.NoError(t, err)

	require.NoError(t, manager.Trigger(context.Background(), "server.started", nil))

	content, err := os.ReadFile(outputPath)
	require.NoError(t, err)
	assert.Equal(t, "startup\n", string(content))
}

func TestManagerTriggerInjectsEventDataIntoEnvironment(t *testing.T) {
	outputPath := filepath.Join(t.TempDir(), "env.txt")
	hookScript := "echo \"$BROWSY_HOOK_EVENT:$BROWSY_HOOK_DATA_ERROR\" > " + outputPath

	manager, err := NewManager(Config{
		Enabled: true,
		Logger:  zerolog.Nop(),
		Hooks: []Hook{
			{
				ID:      "on-error",
				Event:   "server.error",
				Script:  hookScript,
				Enabled: true,
			},
		},
	})
	require.NoError(t, err)

	require.NoError(t, manager.Trigger(context.Background(), "server.error", map[string]interface{}{
		"error": "exit-3",
	}))

	content, err := os.ReadFile(outputPath)
	require.NoError(t, err)
	assert.Equal(t, "server.error:exit-3\n", string(content))
}

func TestManagerTriggerReturnsJoinedErrors(t *testing.T) {
	manager, err := NewManager(Config{
		Enabled: true,
		Logger:  zerolog.Nop(),
		Hooks: []Hook{
			{
				ID:      "fail-1",
				Event:   "server.stopped",
				Script:  "exit 2",
				Enabled: true,
			},
			{
				ID:      "fail-2",
				Event:   "server.stopped",
				Script:  "exit 3",
				Enabled: true,
			},
		},
	})
	require.NoError(t, err)

	err = manager.Trigger(context.Background(), "server.stopped", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hook fail-1 failed")
	assert.Contains(t, err.Error(), "hook fail-2 failed")
}

func TestManagerTriggerRespectsTimeout(t *testing.T) {
	manager, err := NewManager(Config{
		Enabled: true,
		Logger:  zerolog.Nop(),
		Hooks: []Hook{
			{
				ID:      "timeout",
				Event:   "server.started",
				Script:  "sleep 1",
				Enabled: true,
				Timeout: 30 * time.Millisecond,
			},
		},
	})
	require.NoError(t, err)

	err = manager.Trigger(context.Background(), "server.started", nil)
	require.Error(t, err)
	assert.True(t,
		strings.Contains(err.Error(), "deadline exceeded") || strings.Contains(err.Error(), "signal: killed"),
		"expected timeout-related error, got: %v",
		err,
	)
}

func TestManagerDisabledIgnoresHooks(t *testing.T) {
	manager, err := NewManager(Config{
		Enabled: false,
		Logger:  zerolog.Nop(),
		Hooks:   []Hook{{Event: "server.started", Script: "exit 1", Enabled: true}},
	})
	require.NoError(t, err)

	assert.False(t, manager.HasHooks("server.started"))
	assert.NoError(t, manager.Trigger(context.Background(), "server.started", nil))

	var nilManager *Manager
	assert.NoError(t, nilManager.Trigger(context.Background(), "server.started", nil))
}

func TestNewManagerRejectsIncompleteHooks(t *testing.T) {
	_, err := NewManager(Config{
		Enabled: true,
		Hooks:   []Hook{{Event: "server.started", Enabled: true}},
	})
	assert.Error(t, err)

	_, err = NewManager(Config{
		Enabled: true,
		Hooks:   []Hook{{Script: "true", Enabled: true}},
	})
	assert.Error(t, err)
}

func TestOnServerStateChangeMapsEvents(t *testing.T) {
	dir := t.TempDir()
	script := func(name string) string {
		return "echo \"$BROWSY_HOOK_DATA_STATUS $BROWSY_HOOK_DATA_PORT $BROWSY_HOOK_DATA_ERROR\" > " + filepath.Join(dir, name)
	}

	manager, err := NewManager(Config{
		Enabled: true,
		Logger:  zerolog.Nop(),
		Hooks: []Hook{
			{Event: EventServerStarted, Script: script("started"), Enabled: true},
			{Event: EventServerStopped, Script: script("stopped"), Enabled: true},
			{Event: EventServerError, Script: script("error"), Enabled: true},
		},
	})
	require.NoError(t, err)

	manager.OnServerStateChange(browsy.StatusStopped, browsy.StatusStarting, browsy.ServerInfo{Status: browsy.StatusStarting, Port: 3847})
	manager.OnServerStateChange(browsy.StatusStarting, browsy.StatusRunning, browsy.ServerInfo{Status: browsy.StatusRunning, Port: 3847, PID: 42})
	manager.OnServerStateChange(browsy.StatusRunning, browsy.StatusError, browsy.ServerInfo{Status: browsy.StatusError, Port: 3847, Error: "gone"})
	manager.OnServerStateChange(browsy.StatusError, browsy.StatusStopped, browsy.ServerInfo{Status: browsy.StatusStopped, Port: 3847})
	manager.Wait()

	read := func(name string) string {
		data, err := os.ReadFile(filepath.Join(dir, name))
		require.NoError(t, err)
		return strings.TrimSpace(string(data))
	}
	assert.Equal(t, "running 3847", read("started"))
	assert.Equal(t, "error 3847 gone", read("error"))
	assert.Equal(t, "stopped 3847", read("stopped"))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 3, "starting has no hook event")
}
